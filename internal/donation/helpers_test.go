package donation

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"treasury/internal/adapter/sqlitestore"
	"treasury/internal/domain"
	"treasury/internal/infra"
	"treasury/internal/ledger"
	"treasury/internal/notify"
	"treasury/internal/referral"
)

const (
	testTreasury = "rTreasury"
	testAsset    = "PFT.rIssuer"
)

var testNow = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func openStore(t *testing.T) *sqlitestore.Store {
	t.Helper()
	store, err := sqlitestore.Open(context.Background(), filepath.Join(t.TempDir(), "donations.db"))
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(store.Close)
	return store
}

func testCodec() *MemoCodec {
	return NewMemoCodec("pft", 5)
}

func testRegistry(t *testing.T) *referral.Registry {
	t.Helper()
	return registryWithFees(t, nil)
}

// registryWithFees loads the test parties with per-party fee overrides.
func registryWithFees(t *testing.T, fees map[string]decimal.Decimal) *referral.Registry {
	t.Helper()
	path := filepath.Join(t.TempDir(), "referrals.yaml")
	content := "parties:\n  - name: pan\n    address: rPan\n  - name: ghost\n"
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("write registry: %v", err)
	}
	reg, err := referral.NewRegistry(infra.ReferralConfig{
		FeeDefault:   decimal.RequireFromString("0.20"),
		FeeByParty:   fees,
		RegistryPath: path,
	})
	if err != nil {
		t.Fatalf("load registry: %v", err)
	}
	return reg
}

// seedRequest stores a PENDING request created an hour before testNow.
func seedRequest(t *testing.T, store domain.RequestRepository, token string, minimum int64, referralName string, expiresAt time.Time) {
	t.Helper()
	err := store.CreateRequest(context.Background(), &domain.DonationRequest{
		CorrelationToken:    token,
		RequesterID:         "agent-7",
		MinimumAmount:       decimal.NewFromInt(minimum),
		ReferralAttribution: referralName,
		Status:              domain.RequestStatusPending,
		ReceivedAmount:      decimal.Zero,
		CreatedAt:           testNow.Add(-time.Hour),
		ExpiresAt:           expiresAt,
	})
	if err != nil {
		t.Fatalf("seed request %s: %v", token, err)
	}
}

func donationTx(id, memo string, amount int64, ledgerIndex, index int64) domain.LedgerTransaction {
	return domain.LedgerTransaction{
		ID:     id,
		From:   "rDonor",
		To:     testTreasury,
		Asset:  testAsset,
		Amount: decimal.NewFromInt(amount),
		Memo:   memo,
		Ledger: ledgerIndex,
		Index:  index,
	}
}

func newTestVerifier(store VerificationStore, accumulate bool) *Verifier {
	v := NewVerifier(store, testCodec(), accumulate, zerolog.Nop())
	v.now = func() time.Time { return testNow }
	return v
}

type recordingSink struct {
	mu     sync.Mutex
	events []notify.Event
}

func (r *recordingSink) Notify(_ context.Context, ev notify.Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, ev)
}

func (r *recordingSink) kinds() []notify.EventKind {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]notify.EventKind, 0, len(r.events))
	for _, ev := range r.events {
		out = append(out, ev.Kind)
	}
	return out
}

func (r *recordingSink) count(kind notify.EventKind) int {
	var n int
	for _, k := range r.kinds() {
		if k == kind {
			n++
		}
	}
	return n
}

// scriptedSubmitter returns the scripted errors in order, then succeeds.
type scriptedSubmitter struct {
	mu       sync.Mutex
	errs     []error
	requests []ledger.TransferRequest
}

func (s *scriptedSubmitter) SubmitTransfer(_ context.Context, req ledger.TransferRequest) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.requests = append(s.requests, req)
	if len(s.errs) > 0 {
		err := s.errs[0]
		s.errs = s.errs[1:]
		return "", err
	}
	return "LEDGER-" + req.Reference, nil
}

func (s *scriptedSubmitter) calls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.requests)
}

// blockingSubmitter parks every submission until release is closed, then
// fails attempts whose context ended meanwhile.
type blockingSubmitter struct {
	entered chan struct{}
	release chan struct{}

	mu   sync.Mutex
	refs []string
}

func newBlockingSubmitter() *blockingSubmitter {
	return &blockingSubmitter{entered: make(chan struct{}, 4), release: make(chan struct{})}
}

func (b *blockingSubmitter) SubmitTransfer(ctx context.Context, req ledger.TransferRequest) (string, error) {
	b.mu.Lock()
	b.refs = append(b.refs, req.Reference)
	b.mu.Unlock()
	b.entered <- struct{}{}
	<-b.release
	if err := ctx.Err(); err != nil {
		return "", fmt.Errorf("%w: %v", domain.ErrPayoutSubmission, err)
	}
	return "LEDGER-" + req.Reference, nil
}

func (b *blockingSubmitter) calls() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.refs)
}

type captureQueue struct {
	mu   sync.Mutex
	jobs []payoutJob
}

func (q *captureQueue) Enqueue(req domain.DonationRequest, credited decimal.Decimal) bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.jobs = append(q.jobs, payoutJob{req: req, credited: credited})
	return true
}
