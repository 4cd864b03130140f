package domain

import "github.com/shopspring/decimal"

type OutcomeKind string

const (
	OutcomeCredited         OutcomeKind = "CREDITED"
	OutcomeRejected         OutcomeKind = "REJECTED"
	OutcomeAlreadyProcessed OutcomeKind = "ALREADY_PROCESSED"
)

// RejectReason explains a REJECTED outcome. Rejections are expected noise,
// not failures.
type RejectReason string

const (
	ReasonNoMemoMatch        RejectReason = "no-memo-match"
	ReasonNoMatchingRequest  RejectReason = "no-matching-request"
	ReasonExpired            RejectReason = "expired"
	ReasonInsufficientAmount RejectReason = "insufficient-amount"
)

// Outcome is the result of verifying one ledger transaction.
type Outcome struct {
	Kind             OutcomeKind
	Reason           RejectReason
	TxID             string
	CorrelationToken string
	Amount           decimal.Decimal
	// Request is the state after verification when a request was matched.
	Request *DonationRequest
}

func Credited(tx LedgerTransaction, req *DonationRequest) Outcome {
	return Outcome{Kind: OutcomeCredited, TxID: tx.ID, CorrelationToken: req.CorrelationToken, Amount: tx.Amount, Request: req}
}

func Rejected(tx LedgerTransaction, token string, reason RejectReason) Outcome {
	return Outcome{Kind: OutcomeRejected, Reason: reason, TxID: tx.ID, CorrelationToken: token, Amount: tx.Amount}
}

func AlreadyProcessed(tx LedgerTransaction) Outcome {
	return Outcome{Kind: OutcomeAlreadyProcessed, TxID: tx.ID, Amount: tx.Amount}
}

func (o Outcome) String() string {
	if o.Kind == OutcomeRejected {
		return string(o.Kind) + "(" + string(o.Reason) + ")"
	}
	return string(o.Kind)
}
