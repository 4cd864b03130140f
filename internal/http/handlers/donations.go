package handlers

import (
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	json "github.com/json-iterator/go"
	"github.com/shopspring/decimal"

	"treasury/internal/domain"
	"treasury/internal/donation"
)

const maxBodyBytes = 16 << 10

type createDonationRequest struct {
	RequesterID   string `json:"requester_id"`
	MinimumAmount string `json:"minimum_amount"`
	Referral      string `json:"referral"`
	TTLSeconds    int64  `json:"ttl_seconds"`
}

type donationView struct {
	CorrelationToken    string     `json:"correlation_token"`
	RequesterID         string     `json:"requester_id"`
	Status              string     `json:"status"`
	MinimumAmount       string     `json:"minimum_amount"`
	ReceivedAmount      string     `json:"received_amount"`
	ReferralAttribution string     `json:"referral,omitempty"`
	CreditedTxID        string     `json:"credited_tx_id,omitempty"`
	CreatedAt           time.Time  `json:"created_at"`
	ExpiresAt           time.Time  `json:"expires_at"`
	VerifiedAt          *time.Time `json:"verified_at,omitempty"`
}

type paymentInstructions struct {
	donationView
	Destination string `json:"destination"`
	Asset       string `json:"asset"`
	Memo        string `json:"memo"`
}

func toDonationView(req *domain.DonationRequest) donationView {
	return donationView{
		CorrelationToken:    req.CorrelationToken,
		RequesterID:         req.RequesterID,
		Status:              string(req.Status),
		MinimumAmount:       req.MinimumAmount.String(),
		ReceivedAmount:      req.ReceivedAmount.String(),
		ReferralAttribution: req.ReferralAttribution,
		CreditedTxID:        req.CreditedTxID,
		CreatedAt:           req.CreatedAt,
		ExpiresAt:           req.ExpiresAt,
		VerifiedAt:          req.VerifiedAt,
	}
}

// DonationsCreate issues a donation request and returns the payment
// instructions the donor must follow.
func (a *App) DonationsCreate(w http.ResponseWriter, r *http.Request) {
	var body createDonationRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(&body); err != nil {
		a.error(w, http.StatusBadRequest, "bad_request", "invalid payload")
		return
	}

	params := donation.IssueParams{
		RequesterID:         body.RequesterID,
		ReferralAttribution: body.Referral,
	}
	if raw := strings.TrimSpace(body.MinimumAmount); raw != "" {
		minimum, err := decimal.NewFromString(raw)
		if err != nil || !minimum.IsPositive() {
			a.error(w, http.StatusBadRequest, "bad_request", "minimum_amount must be a positive decimal")
			return
		}
		params.MinimumAmount = minimum
	}
	if body.TTLSeconds < 0 {
		a.error(w, http.StatusBadRequest, "bad_request", "ttl_seconds must not be negative")
		return
	}
	params.TTL = time.Duration(body.TTLSeconds) * time.Second

	req, err := a.Issuer.Issue(r.Context(), params)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	w.Header().Set("Location", "/v1/donations/"+req.CorrelationToken)
	a.json(w, http.StatusCreated, paymentInstructions{
		donationView: toDonationView(req),
		Destination:  a.TreasuryAddress,
		Asset:        a.Asset,
		Memo:         req.CorrelationToken,
	})
}

func (a *App) DonationStatus(w http.ResponseWriter, r *http.Request) {
	token := strings.ToLower(strings.TrimSpace(chi.URLParam(r, "token")))
	req, err := a.Store.GetRequest(r.Context(), token)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	a.json(w, http.StatusOK, toDonationView(req))
}

func parseLimit(raw string, fallback, ceiling int) (int, error) {
	if raw == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n <= 0 {
		return 0, fmt.Errorf("%w: limit must be a positive integer", domain.ErrInvalidRequest)
	}
	return min(n, ceiling), nil
}
