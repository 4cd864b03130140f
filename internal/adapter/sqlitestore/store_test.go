package sqlitestore

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"treasury/internal/domain"
)

func openTempStore(t *testing.T) *Store {
	t.Helper()
	store, err := Open(context.Background(), filepath.Join(t.TempDir(), "donations.db"))
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(store.Close)
	return store
}

func createRequest(t *testing.T, store *Store, token string, minimum int64, expiresAt time.Time) {
	t.Helper()
	err := store.CreateRequest(context.Background(), &domain.DonationRequest{
		CorrelationToken:    token,
		RequesterID:         "user-1",
		MinimumAmount:       decimal.NewFromInt(minimum),
		ReferralAttribution: "pan",
		CreatedAt:           expiresAt.Add(-time.Hour),
		ExpiresAt:           expiresAt,
	})
	if err != nil {
		t.Fatalf("create request: %v", err)
	}
}

func payment(token, txID string, amount int64, now time.Time) domain.PaymentApplication {
	return domain.PaymentApplication{
		CorrelationToken: token,
		Tx:               domain.LedgerTransaction{ID: txID, Amount: decimal.NewFromInt(amount), Ledger: 100, Index: 1},
		Now:              now,
	}
}

func TestCreateRequestRejectsDuplicateToken(t *testing.T) {
	store := openTempStore(t)
	expires := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	createRequest(t, store, "pftdup", 10, expires)

	err := store.CreateRequest(context.Background(), &domain.DonationRequest{
		CorrelationToken: "pftdup",
		MinimumAmount:    decimal.NewFromInt(1),
		CreatedAt:        expires,
		ExpiresAt:        expires,
	})
	if !errors.Is(err, domain.ErrDuplicateToken) {
		t.Fatalf("expected ErrDuplicateToken, got %v", err)
	}
}

func TestApplyPaymentCreditsOnce(t *testing.T) {
	store := openTempStore(t)
	ctx := context.Background()
	now := time.Date(2026, 3, 1, 11, 0, 0, 0, time.UTC)
	createRequest(t, store, "pftone", 10, now.Add(time.Hour))

	req, err := store.ApplyPayment(ctx, payment("pftone", "tx-1", 10, now))
	if err != nil {
		t.Fatalf("ApplyPayment error: %v", err)
	}
	if req.Status != domain.RequestStatusVerified {
		t.Fatalf("status = %s, want VERIFIED", req.Status)
	}

	if _, err := store.ApplyPayment(ctx, payment("pftone", "tx-1", 10, now)); !errors.Is(err, domain.ErrDuplicateTransaction) {
		t.Fatalf("replay: expected ErrDuplicateTransaction, got %v", err)
	}
	if _, err := store.ApplyPayment(ctx, payment("pftone", "tx-2", 10, now)); !errors.Is(err, domain.ErrRequestNotPending) {
		t.Fatalf("second tx: expected ErrRequestNotPending, got %v", err)
	}

	processed, err := store.IsProcessed(ctx, "tx-1")
	if err != nil || !processed {
		t.Fatalf("IsProcessed(tx-1) = %v, %v", processed, err)
	}
	processed, err = store.IsProcessed(ctx, "tx-2")
	if err != nil || processed {
		t.Fatalf("IsProcessed(tx-2) = %v, %v", processed, err)
	}

	stored, err := store.GetRequest(ctx, "pftone")
	if err != nil {
		t.Fatalf("GetRequest error: %v", err)
	}
	if stored.CreditedTxID != "tx-1" || stored.VerifiedAt == nil {
		t.Fatalf("unexpected stored request: %+v", stored)
	}
}

func TestApplyPaymentShortPaymentRollsBack(t *testing.T) {
	store := openTempStore(t)
	ctx := context.Background()
	now := time.Date(2026, 3, 1, 11, 0, 0, 0, time.UTC)
	createRequest(t, store, "pftshort", 10, now.Add(time.Hour))

	if _, err := store.ApplyPayment(ctx, payment("pftshort", "tx-short", 5, now)); !errors.Is(err, domain.ErrInsufficientAmount) {
		t.Fatalf("expected ErrInsufficientAmount, got %v", err)
	}
	processed, err := store.IsProcessed(ctx, "tx-short")
	if err != nil {
		t.Fatalf("IsProcessed error: %v", err)
	}
	if processed {
		t.Fatal("short payment must not be recorded without accumulation")
	}
}

func TestApplyPaymentAccumulates(t *testing.T) {
	store := openTempStore(t)
	ctx := context.Background()
	now := time.Date(2026, 3, 1, 11, 0, 0, 0, time.UTC)
	createRequest(t, store, "pftacc", 10, now.Add(time.Hour))

	first := payment("pftacc", "tx-a", 4, now)
	first.Accumulate = true
	req, err := store.ApplyPayment(ctx, first)
	if err != nil {
		t.Fatalf("first ApplyPayment error: %v", err)
	}
	if req.Status != domain.RequestStatusPending || !req.ReceivedAmount.Equal(decimal.NewFromInt(4)) {
		t.Fatalf("after first payment: %+v", req)
	}

	second := payment("pftacc", "tx-b", 6, now)
	second.Accumulate = true
	req, err = store.ApplyPayment(ctx, second)
	if err != nil {
		t.Fatalf("second ApplyPayment error: %v", err)
	}
	if req.Status != domain.RequestStatusVerified || !req.ReceivedAmount.Equal(decimal.NewFromInt(10)) {
		t.Fatalf("after second payment: %+v", req)
	}
}

func TestApplyPaymentRejectsExpired(t *testing.T) {
	store := openTempStore(t)
	now := time.Date(2026, 3, 1, 11, 0, 0, 0, time.UTC)
	createRequest(t, store, "pftold", 10, now.Add(-time.Minute))

	if _, err := store.ApplyPayment(context.Background(), payment("pftold", "tx-late", 10, now)); !errors.Is(err, domain.ErrExpiredRequest) {
		t.Fatalf("expected ErrExpiredRequest, got %v", err)
	}
}

func TestApplyPaymentConcurrentSameToken(t *testing.T) {
	store := openTempStore(t)
	ctx := context.Background()
	now := time.Date(2026, 3, 1, 11, 0, 0, 0, time.UTC)
	createRequest(t, store, "pftrace", 10, now.Add(time.Hour))

	const racers = 8
	var (
		wg       sync.WaitGroup
		mu       sync.Mutex
		credited int
	)
	for i := 0; i < racers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, err := store.ApplyPayment(ctx, payment("pftrace", fmt.Sprintf("tx-%d", i), 10, now))
			if err == nil {
				mu.Lock()
				credited++
				mu.Unlock()
				return
			}
			if !errors.Is(err, domain.ErrRequestNotPending) {
				t.Errorf("racer %d: unexpected error %v", i, err)
			}
		}(i)
	}
	wg.Wait()

	if credited != 1 {
		t.Fatalf("credited %d times, want exactly 1", credited)
	}
}

func TestExpireOverdue(t *testing.T) {
	store := openTempStore(t)
	ctx := context.Background()
	now := time.Date(2026, 3, 1, 11, 0, 0, 0, time.UTC)
	createRequest(t, store, "pftgone", 10, now.Add(-time.Minute))
	createRequest(t, store, "pftlive", 10, now.Add(time.Hour))

	expired, err := store.ExpireOverdue(ctx, now, 10)
	if err != nil {
		t.Fatalf("ExpireOverdue error: %v", err)
	}
	if len(expired) != 1 || expired[0].CorrelationToken != "pftgone" || expired[0].Status != domain.RequestStatusExpired {
		t.Fatalf("unexpected expired set: %+v", expired)
	}

	changed, err := store.ExpireRequest(ctx, "pftgone", now)
	if err != nil {
		t.Fatalf("ExpireRequest error: %v", err)
	}
	if changed {
		t.Fatal("terminal request must not transition again")
	}
	live, err := store.GetRequest(ctx, "pftlive")
	if err != nil {
		t.Fatalf("GetRequest error: %v", err)
	}
	if live.Status != domain.RequestStatusPending {
		t.Fatalf("live request status = %s", live.Status)
	}
}

func TestPayoutLifecycle(t *testing.T) {
	store := openTempStore(t)
	ctx := context.Background()
	now := time.Date(2026, 3, 1, 11, 0, 0, 0, time.UTC)
	createRequest(t, store, "pftpay", 10, now.Add(time.Hour))
	if _, err := store.ApplyPayment(ctx, payment("pftpay", "tx-pay", 10, now)); err != nil {
		t.Fatalf("ApplyPayment error: %v", err)
	}

	unpaid, err := store.ListUnpaidReferrals(ctx, 10)
	if err != nil {
		t.Fatalf("ListUnpaidReferrals error: %v", err)
	}
	if len(unpaid) != 1 {
		t.Fatalf("expected one unpaid referral, got %d", len(unpaid))
	}

	payout, created, err := store.CreatePayout(ctx, &domain.ReferralPayout{
		CorrelationToken: "pftpay",
		Payee:            "pan",
		PayeeAddress:     "rPan",
		Amount:           decimal.NewFromInt(2),
	})
	if err != nil || !created {
		t.Fatalf("CreatePayout = %v, %v", created, err)
	}
	again, created, err := store.CreatePayout(ctx, &domain.ReferralPayout{
		CorrelationToken: "pftpay",
		Payee:            "pan",
		Amount:           decimal.NewFromInt(3),
	})
	if err != nil {
		t.Fatalf("second CreatePayout error: %v", err)
	}
	if created || again.ID != payout.ID || !again.Amount.Equal(decimal.NewFromInt(2)) {
		t.Fatalf("second CreatePayout must return the original row: %+v created=%v", again, created)
	}

	payout.Status = domain.PayoutStatusFailed
	payout.Attempts = 3
	payout.LastError = "signer unavailable"
	if err := store.UpdatePayout(ctx, payout); err != nil {
		t.Fatalf("UpdatePayout error: %v", err)
	}
	failed, err := store.ListPayouts(ctx, domain.PayoutStatusFailed, 10)
	if err != nil || len(failed) != 1 {
		t.Fatalf("ListPayouts(FAILED) = %v, %v", failed, err)
	}

	requeued, err := store.RequeuePayout(ctx, payout.ID)
	if err != nil {
		t.Fatalf("RequeuePayout error: %v", err)
	}
	if requeued.Status != domain.PayoutStatusPending || requeued.Attempts != 3 {
		t.Fatalf("unexpected requeued payout: %+v", requeued)
	}
	if _, err := store.RequeuePayout(ctx, payout.ID); !errors.Is(err, domain.ErrPayoutNotFailed) {
		t.Fatalf("expected ErrPayoutNotFailed, got %v", err)
	}

	requeued.Status = domain.PayoutStatusSent
	requeued.LedgerTxID = "LEDGER-TX"
	if err := store.UpdatePayout(ctx, requeued); err != nil {
		t.Fatalf("UpdatePayout(SENT) error: %v", err)
	}
	requeued.Status = domain.PayoutStatusFailed
	if err := store.UpdatePayout(ctx, requeued); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("SENT payout must not be overwritten, got %v", err)
	}

	unpaid, err = store.ListUnpaidReferrals(ctx, 10)
	if err != nil {
		t.Fatalf("ListUnpaidReferrals error: %v", err)
	}
	if len(unpaid) != 0 {
		t.Fatalf("expected no unpaid referrals, got %d", len(unpaid))
	}
	if _, err := store.RequeuePayout(ctx, "missing"); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestCursorRoundTrip(t *testing.T) {
	store := openTempStore(t)
	ctx := context.Background()

	if _, ok, err := store.LoadCursor(ctx, "rTreasury"); err != nil || ok {
		t.Fatalf("LoadCursor on empty store = %v, %v", ok, err)
	}
	for _, cursor := range []int64{100, 250} {
		if err := store.SaveCursor(ctx, "rTreasury", cursor); err != nil {
			t.Fatalf("SaveCursor error: %v", err)
		}
	}
	cursor, ok, err := store.LoadCursor(ctx, "rTreasury")
	if err != nil || !ok || cursor != 250 {
		t.Fatalf("LoadCursor = %d, %v, %v", cursor, ok, err)
	}
}

func TestPayoutClaims(t *testing.T) {
	store := openTempStore(t)
	ctx := context.Background()
	now := time.Date(2026, 3, 1, 11, 0, 0, 0, time.UTC)
	createRequest(t, store, "pftclaim", 10, now.Add(time.Hour))
	if _, err := store.ApplyPayment(ctx, payment("pftclaim", "tx-claim", 10, now)); err != nil {
		t.Fatalf("ApplyPayment error: %v", err)
	}
	payout, _, err := store.CreatePayout(ctx, &domain.ReferralPayout{
		CorrelationToken: "pftclaim",
		Payee:            "pan",
		PayeeAddress:     "rPan",
		Amount:           decimal.NewFromInt(2),
	})
	if err != nil {
		t.Fatalf("CreatePayout error: %v", err)
	}

	if _, claimed, err := store.ClaimPayout(ctx, payout.ID, now, now.Add(time.Minute)); err != nil || !claimed {
		t.Fatalf("first claim = %v, %v", claimed, err)
	}
	if _, claimed, err := store.ClaimPayout(ctx, payout.ID, now.Add(30*time.Second), now.Add(2*time.Minute)); err != nil || claimed {
		t.Fatalf("claim while held = %v, %v; want false", claimed, err)
	}
	if _, claimed, err := store.ClaimPayout(ctx, payout.ID, now.Add(2*time.Minute), now.Add(3*time.Minute)); err != nil || !claimed {
		t.Fatalf("claim after lapse = %v, %v; want true", claimed, err)
	}
	if err := store.ReleasePayout(ctx, payout.ID); err != nil {
		t.Fatalf("ReleasePayout error: %v", err)
	}
	if _, claimed, err := store.ClaimPayout(ctx, payout.ID, now, now.Add(time.Minute)); err != nil || !claimed {
		t.Fatalf("claim after release = %v, %v; want true", claimed, err)
	}

	payout.Status = domain.PayoutStatusSent
	if err := store.UpdatePayout(ctx, payout); err != nil {
		t.Fatalf("UpdatePayout error: %v", err)
	}
	current, claimed, err := store.ClaimPayout(ctx, payout.ID, now.Add(time.Hour), now.Add(2*time.Hour))
	if err != nil || claimed || current.Status != domain.PayoutStatusSent {
		t.Fatalf("claim on SENT = %+v, %v, %v", current, claimed, err)
	}
	if _, _, err := store.ClaimPayout(ctx, "missing", now, now); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestSkippedPayoutSettlesReferral(t *testing.T) {
	store := openTempStore(t)
	ctx := context.Background()
	now := time.Date(2026, 3, 1, 11, 0, 0, 0, time.UTC)
	createRequest(t, store, "pftzero", 10, now.Add(time.Hour))
	if _, err := store.ApplyPayment(ctx, payment("pftzero", "tx-zero", 10, now)); err != nil {
		t.Fatalf("ApplyPayment error: %v", err)
	}

	skipped, created, err := store.CreatePayout(ctx, &domain.ReferralPayout{
		CorrelationToken: "pftzero",
		Payee:            "zero",
		Amount:           decimal.Zero,
		Status:           domain.PayoutStatusSkipped,
		LastError:        "referral fee truncates to zero",
	})
	if err != nil || !created {
		t.Fatalf("CreatePayout = %v, %v", created, err)
	}
	if skipped.Status != domain.PayoutStatusSkipped || skipped.LastError == "" {
		t.Fatalf("unexpected skipped payout: %+v", skipped)
	}

	unpaid, err := store.ListUnpaidReferrals(ctx, 10)
	if err != nil || len(unpaid) != 0 {
		t.Fatalf("ListUnpaidReferrals = %v, %v; want none", unpaid, err)
	}
	skipped.Status = domain.PayoutStatusPending
	if err := store.UpdatePayout(ctx, skipped); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("SKIPPED payout must not be overwritten, got %v", err)
	}
}
