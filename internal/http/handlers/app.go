package handlers

import (
	"context"
	"errors"
	"net/http"

	json "github.com/json-iterator/go"
	"github.com/rs/zerolog"

	"treasury/internal/domain"
	"treasury/internal/donation"
)

// RequestIssuer creates donation requests. *donation.Issuer satisfies it.
type RequestIssuer interface {
	Issue(ctx context.Context, p donation.IssueParams) (*domain.DonationRequest, error)
}

// StateReader is the part of the State Store the API reads and mutates.
type StateReader interface {
	GetRequest(ctx context.Context, token string) (*domain.DonationRequest, error)
	ListPayouts(ctx context.Context, status domain.PayoutStatus, limit int) ([]domain.ReferralPayout, error)
	RequeuePayout(ctx context.Context, id string) (*domain.ReferralPayout, error)
}

type App struct {
	Issuer          RequestIssuer
	Store           StateReader
	TreasuryAddress string
	Asset           string
	// Ready reports dependency health for /v1/healthz; nil means always ready.
	Ready  func(ctx context.Context) error
	Logger zerolog.Logger
}

func (a *App) json(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func (a *App) error(w http.ResponseWriter, code int, kind, message string) {
	a.json(w, code, map[string]string{"error": kind, "message": message})
}

// fail maps domain errors to HTTP responses; anything unknown is logged and
// reported as 500.
func (a *App) fail(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, domain.ErrInvalidRequest):
		a.error(w, http.StatusBadRequest, "bad_request", err.Error())
	case errors.Is(err, domain.ErrUnknownReferrer):
		a.error(w, http.StatusUnprocessableEntity, "unknown_referrer", err.Error())
	case errors.Is(err, domain.ErrNotFound):
		a.error(w, http.StatusNotFound, "not_found", "resource not found")
	case errors.Is(err, domain.ErrPayoutNotFailed):
		a.error(w, http.StatusConflict, "conflict", err.Error())
	default:
		zerolog.Ctx(r.Context()).Error().Err(err).Str("path", r.URL.Path).Msg("request failed")
		a.error(w, http.StatusInternalServerError, "internal", "internal error")
	}
}
