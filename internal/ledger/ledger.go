// Package ledger defines the read and write collaborators of the public
// ledger. Implementations live in the xrpl and signer subpackages.
package ledger

import (
	"context"

	"github.com/shopspring/decimal"

	"treasury/internal/domain"
)

// Activity is one page of ledger history. Cursor is the ledger position up to
// which the history is complete.
type Activity struct {
	Transactions []domain.LedgerTransaction
	Cursor       int64
}

// Reader fetches incoming activity for an address. Calling it again with an
// overlapping cursor must be safe.
type Reader interface {
	FetchActivity(ctx context.Context, address string, sinceCursor int64) (Activity, error)
	LatestCursor(ctx context.Context) (int64, error)
}

// TransferRequest describes one outgoing payment.
type TransferRequest struct {
	// Reference is an idempotency key the collaborator may use to drop
	// duplicate submissions.
	Reference string
	From      string
	To        string
	Asset     string
	Amount    decimal.Decimal
	Memo      string
}

// Submitter signs and broadcasts transfers. Key custody is entirely internal
// to the implementation.
type Submitter interface {
	SubmitTransfer(ctx context.Context, req TransferRequest) (txID string, err error)
}
