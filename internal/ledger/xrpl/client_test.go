package xrpl

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"treasury/internal/domain"
)

const firstPage = `{"result":{"status":"success","ledger_index_min":100,"ledger_index_max":180,"marker":{"ledger":150,"seq":2},
"transactions":[
 {"validated":true,"meta":{"TransactionResult":"tesSUCCESS","TransactionIndex":4,
   "delivered_amount":{"currency":"PFT","issuer":"rIssuer","value":"10"}},
  "tx":{"hash":"AAA","TransactionType":"Payment","Account":"rDonor","Destination":"rTreasury","ledger_index":120,
   "Amount":{"currency":"PFT","issuer":"rIssuer","value":"10"},
   "Memos":[{"Memo":{"MemoData":"7066746162636465"}}]}},
 {"validated":true,"meta":{"TransactionResult":"tecPATH_DRY","TransactionIndex":1},
  "tx":{"hash":"BBB","TransactionType":"Payment","Account":"rDonor","Destination":"rTreasury","ledger_index":121,
   "Amount":{"currency":"PFT","issuer":"rIssuer","value":"3"}}}
]}}`

const secondPage = `{"result":{"status":"success","ledger_index_min":100,"ledger_index_max":181,
"transactions":[
 {"validated":true,"hash":"CCC","ledger_index":150,
  "meta":{"TransactionResult":"tesSUCCESS","TransactionIndex":2,"delivered_amount":"2500000"},
  "tx_json":{"TransactionType":"Payment","Account":"rDonor","Destination":"rTreasury","DeliverMax":"2500000"}},
 {"validated":true,"meta":{"TransactionResult":"tesSUCCESS","TransactionIndex":0},
  "tx":{"hash":"DDD","TransactionType":"TrustSet","Account":"rDonor","ledger_index":151}}
]}}`

func TestFetchActivityPaginatesAndConverts(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		if !strings.Contains(string(body), `"method":"account_tx"`) {
			t.Errorf("unexpected method in %s", body)
		}
		if atomic.AddInt32(&calls, 1) == 1 {
			if strings.Contains(string(body), `"marker"`) {
				t.Errorf("first page must not carry a marker: %s", body)
			}
			_, _ = w.Write([]byte(firstPage))
			return
		}
		if !strings.Contains(string(body), `"marker":{"ledger":150,"seq":2}`) {
			t.Errorf("second page must echo the marker: %s", body)
		}
		_, _ = w.Write([]byte(secondPage))
	}))
	defer srv.Close()

	client := NewClient(srv.URL, zerolog.Nop())
	activity, err := client.FetchActivity(context.Background(), "rTreasury", 100)
	if err != nil {
		t.Fatalf("FetchActivity error: %v", err)
	}
	if activity.Cursor != 181 {
		t.Fatalf("cursor = %d, want 181", activity.Cursor)
	}
	if len(activity.Transactions) != 2 {
		t.Fatalf("expected 2 transactions, got %d: %+v", len(activity.Transactions), activity.Transactions)
	}

	issued := activity.Transactions[0]
	if issued.ID != "AAA" || issued.Asset != "PFT.rIssuer" || issued.Memo != "pftabcde" {
		t.Fatalf("unexpected issued tx: %+v", issued)
	}
	if !issued.Amount.Equal(decimal.NewFromInt(10)) || issued.Ledger != 120 || issued.Index != 4 {
		t.Fatalf("unexpected issued amount/position: %+v", issued)
	}

	native := activity.Transactions[1]
	if native.ID != "CCC" || native.Asset != "XRP" || !native.Amount.Equal(decimal.RequireFromString("2.5")) || native.Ledger != 150 {
		t.Fatalf("unexpected native tx: %+v", native)
	}
}

func TestFetchActivityTransientErrors(t *testing.T) {
	tests := []struct {
		name    string
		status  int
		body    string
		wantErr error
	}{
		{name: "server error", status: http.StatusBadGateway, body: "", wantErr: domain.ErrTransientLedger},
		{name: "rate limited", status: http.StatusTooManyRequests, body: "", wantErr: domain.ErrTransientLedger},
		{name: "too busy", status: http.StatusOK, body: `{"result":{"status":"error","error":"tooBusy"}}`, wantErr: domain.ErrTransientLedger},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tc.status)
				_, _ = w.Write([]byte(tc.body))
			}))
			defer srv.Close()

			_, err := NewClient(srv.URL, zerolog.Nop()).FetchActivity(context.Background(), "rTreasury", 1)
			if !errors.Is(err, tc.wantErr) {
				t.Fatalf("expected %v, got %v", tc.wantErr, err)
			}
		})
	}
}

func TestFetchActivityPermanentRPCError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"result":{"status":"error","error":"actMalformed","error_message":"Account malformed."}}`))
	}))
	defer srv.Close()

	_, err := NewClient(srv.URL, zerolog.Nop()).FetchActivity(context.Background(), "bad", 1)
	if err == nil {
		t.Fatal("expected error")
	}
	if errors.Is(err, domain.ErrTransientLedger) {
		t.Fatalf("actMalformed must not be transient: %v", err)
	}
}

func TestLatestCursor(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		if !strings.Contains(string(body), `"method":"server_info"`) {
			t.Errorf("unexpected request %s", body)
		}
		_, _ = w.Write([]byte(`{"result":{"status":"success","info":{"validated_ledger":{"seq":90210}}}}`))
	}))
	defer srv.Close()

	seq, err := NewClient(srv.URL, zerolog.Nop()).LatestCursor(context.Background())
	if err != nil {
		t.Fatalf("LatestCursor error: %v", err)
	}
	if seq != 90210 {
		t.Fatalf("seq = %d, want 90210", seq)
	}
}

func stalledPage(hash string, ledgerIndex int64, marker bool) string {
	page := fmt.Sprintf(`{"result":{"status":"success","ledger_index_max":200,"transactions":[
 {"validated":true,"meta":{"TransactionResult":"tesSUCCESS","TransactionIndex":0,
   "delivered_amount":{"currency":"PFT","issuer":"rIssuer","value":"1"}},
  "tx":{"hash":%q,"TransactionType":"Payment","Account":"rDonor","Destination":"rTreasury","ledger_index":%d,
   "Amount":{"currency":"PFT","issuer":"rIssuer","value":"1"}}}]`, hash, ledgerIndex)
	if marker {
		page += fmt.Sprintf(`,"marker":{"ledger":%d,"seq":1}`, ledgerIndex)
	}
	return page + `}}`
}

func TestFetchActivityPagesPastLimitUntilCursorAdvances(t *testing.T) {
	pages := []string{
		stalledPage("P1", 100, true),
		stalledPage("P2", 101, true),
		stalledPage("P3", 105, true),
		stalledPage("P4", 106, false),
	}
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		n := atomic.AddInt32(&calls, 1)
		_, _ = w.Write([]byte(pages[n-1]))
	}))
	defer srv.Close()

	client := NewClient(srv.URL, zerolog.Nop())
	client.maxPages = 1
	activity, err := client.FetchActivity(context.Background(), "rTreasury", 100)
	if err != nil {
		t.Fatalf("FetchActivity error: %v", err)
	}
	if activity.Cursor != 104 {
		t.Fatalf("cursor = %d, want 104", activity.Cursor)
	}
	if got := atomic.LoadInt32(&calls); got != 3 {
		t.Fatalf("pages fetched = %d, want 3", got)
	}
	if len(activity.Transactions) != 3 {
		t.Fatalf("expected 3 transactions, got %d", len(activity.Transactions))
	}
}
