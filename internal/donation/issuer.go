package donation

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"treasury/internal/domain"
	"treasury/internal/referral"
)

const issueAttempts = 3

// IssueParams describes a new donation request. Zero values fall back to the
// issuer defaults.
type IssueParams struct {
	RequesterID         string
	MinimumAmount       decimal.Decimal
	ReferralAttribution string
	TTL                 time.Duration
}

// Issuer creates PENDING donation requests with fresh correlation tokens.
type Issuer struct {
	store          domain.RequestRepository
	codec          *MemoCodec
	registry       *referral.Registry
	defaultMinimum decimal.Decimal
	defaultTTL     time.Duration
	now            func() time.Time
	logger         zerolog.Logger
}

func NewIssuer(store domain.RequestRepository, codec *MemoCodec, registry *referral.Registry, defaultMinimum decimal.Decimal, defaultTTL time.Duration, logger zerolog.Logger) *Issuer {
	return &Issuer{
		store:          store,
		codec:          codec,
		registry:       registry,
		defaultMinimum: defaultMinimum,
		defaultTTL:     defaultTTL,
		now:            func() time.Time { return time.Now().UTC() },
		logger:         logger.With().Str("component", "issuer").Logger(),
	}
}

func (i *Issuer) Issue(ctx context.Context, p IssueParams) (*domain.DonationRequest, error) {
	requester := strings.TrimSpace(p.RequesterID)
	if requester == "" {
		return nil, fmt.Errorf("%w: requester id is required", domain.ErrInvalidRequest)
	}
	minimum := p.MinimumAmount
	if minimum.IsZero() {
		minimum = i.defaultMinimum
	}
	if !minimum.IsPositive() {
		return nil, fmt.Errorf("%w: minimum amount must be positive", domain.ErrInvalidRequest)
	}
	ttl := p.TTL
	if ttl == 0 {
		ttl = i.defaultTTL
	}
	if ttl < 0 {
		return nil, fmt.Errorf("%w: ttl must be positive", domain.ErrInvalidRequest)
	}

	attribution := referral.Normalize(p.ReferralAttribution)
	if attribution != "" && i.registry != nil && i.registry.Restricted() && !i.registry.Known(attribution) {
		return nil, fmt.Errorf("%w: %s", domain.ErrUnknownReferrer, attribution)
	}

	now := i.now()
	for attempt := 1; ; attempt++ {
		token, err := i.codec.Generate()
		if err != nil {
			return nil, err
		}
		req := &domain.DonationRequest{
			CorrelationToken:    token,
			RequesterID:         requester,
			MinimumAmount:       minimum,
			ReferralAttribution: attribution,
			Status:              domain.RequestStatusPending,
			ReceivedAmount:      decimal.Zero,
			CreatedAt:           now,
			ExpiresAt:           now.Add(ttl),
		}
		err = i.store.CreateRequest(ctx, req)
		if err == nil {
			i.logger.Info().
				Str("token", token).
				Str("requester_id", requester).
				Str("minimum", minimum.String()).
				Str("referral", attribution).
				Time("expires_at", req.ExpiresAt).
				Msg("donation request issued")
			return req, nil
		}
		if !errors.Is(err, domain.ErrDuplicateToken) || attempt >= issueAttempts {
			return nil, err
		}
		i.logger.Warn().Int("attempt", attempt).Msg("correlation token collision, regenerating")
	}
}
