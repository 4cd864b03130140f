package signer

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	json "github.com/json-iterator/go"
	"github.com/shopspring/decimal"

	"treasury/internal/domain"
	"treasury/internal/ledger"
)

func TestSubmitTransferSuccess(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/transfers" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		if got := r.Header.Get("Authorization"); got != "Bearer secret" {
			t.Errorf("unexpected auth header %q", got)
		}
		var payload transferPayload
		if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
			t.Errorf("decode payload: %v", err)
		}
		if payload.Amount != "2" || payload.To != "rPan" || payload.Reference != "payout-1" {
			t.Errorf("unexpected payload %+v", payload)
		}
		_, _ = w.Write([]byte(`{"tx_id":"LEDGERHASH"}`))
	}))
	defer srv.Close()

	txID, err := NewClient(srv.URL+"/", "secret").SubmitTransfer(context.Background(), ledger.TransferRequest{
		Reference: "payout-1",
		From:      "rTreasury",
		To:        "rPan",
		Asset:     "PFT.rIssuer",
		Amount:    decimal.NewFromInt(2),
		Memo:      "referral fee for pftabc",
	})
	if err != nil {
		t.Fatalf("SubmitTransfer error: %v", err)
	}
	if txID != "LEDGERHASH" {
		t.Fatalf("txID = %q", txID)
	}
}

func TestSubmitTransferClassifiesFailures(t *testing.T) {
	tests := []struct {
		name    string
		status  int
		body    string
		wantErr error
	}{
		{name: "unavailable", status: http.StatusServiceUnavailable, body: `{"message":"down"}`, wantErr: domain.ErrPayoutSubmission},
		{name: "rejected", status: http.StatusUnprocessableEntity, body: `{"message":"unfunded"}`, wantErr: domain.ErrPayoutRejected},
		{name: "missing tx id", status: http.StatusOK, body: `{}`, wantErr: domain.ErrPayoutSubmission},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tc.status)
				_, _ = w.Write([]byte(tc.body))
			}))
			defer srv.Close()

			_, err := NewClient(srv.URL, "").SubmitTransfer(context.Background(), ledger.TransferRequest{Amount: decimal.NewFromInt(1)})
			if !errors.Is(err, tc.wantErr) {
				t.Fatalf("expected %v, got %v", tc.wantErr, err)
			}
		})
	}
}
