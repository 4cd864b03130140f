package handlers

import (
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"treasury/internal/domain"
)

type payoutView struct {
	ID               string    `json:"id"`
	CorrelationToken string    `json:"correlation_token"`
	Payee            string    `json:"payee"`
	PayeeAddress     string    `json:"payee_address,omitempty"`
	Amount           string    `json:"amount"`
	Status           string    `json:"status"`
	Attempts         int       `json:"attempts"`
	LedgerTxID       string    `json:"ledger_tx_id,omitempty"`
	LastError        string    `json:"last_error,omitempty"`
	CreatedAt        time.Time `json:"created_at"`
	UpdatedAt        time.Time `json:"updated_at"`
}

func toPayoutView(p *domain.ReferralPayout) payoutView {
	return payoutView{
		ID:               p.ID,
		CorrelationToken: p.CorrelationToken,
		Payee:            p.Payee,
		PayeeAddress:     p.PayeeAddress,
		Amount:           p.Amount.String(),
		Status:           string(p.Status),
		Attempts:         p.Attempts,
		LedgerTxID:       p.LedgerTxID,
		LastError:        p.LastError,
		CreatedAt:        p.CreatedAt,
		UpdatedAt:        p.UpdatedAt,
	}
}

func parsePayoutStatus(raw string) (domain.PayoutStatus, error) {
	status := domain.PayoutStatus(strings.ToUpper(strings.TrimSpace(raw)))
	switch status {
	case "", domain.PayoutStatusPending, domain.PayoutStatusSent, domain.PayoutStatusFailed, domain.PayoutStatusSkipped:
		return status, nil
	}
	return "", fmt.Errorf("%w: unknown payout status %q", domain.ErrInvalidRequest, raw)
}

func (a *App) PayoutsList(w http.ResponseWriter, r *http.Request) {
	status, err := parsePayoutStatus(r.URL.Query().Get("status"))
	if err != nil {
		a.fail(w, r, err)
		return
	}
	limit, err := parseLimit(r.URL.Query().Get("limit"), 50, 500)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	payouts, err := a.Store.ListPayouts(r.Context(), status, limit)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	items := make([]payoutView, 0, len(payouts))
	for i := range payouts {
		items = append(items, toPayoutView(&payouts[i]))
	}
	a.json(w, http.StatusOK, map[string]any{"items": items})
}

// PayoutRetry moves a FAILED payout back to PENDING. The worker's recovery
// sweep performs the actual resubmission.
func (a *App) PayoutRetry(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	payout, err := a.Store.RequeuePayout(r.Context(), id)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	a.Logger.Info().Str("payout_id", payout.ID).Str("token", payout.CorrelationToken).Msg("payout requeued via api")
	a.json(w, http.StatusAccepted, toPayoutView(payout))
}
