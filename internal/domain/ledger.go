package domain

import "github.com/shopspring/decimal"

// LedgerTransaction is an immutable record observed on the ledger.
// Asset is "<currency>.<issuer>" for issued tokens and "XRP" for the native asset.
type LedgerTransaction struct {
	ID     string
	From   string
	To     string
	Asset  string
	Amount decimal.Decimal
	Memo   string
	Ledger int64
	Index  int64
}

// Before orders transactions by ledger position.
func (t LedgerTransaction) Before(other LedgerTransaction) bool {
	if t.Ledger != other.Ledger {
		return t.Ledger < other.Ledger
	}
	return t.Index < other.Index
}
