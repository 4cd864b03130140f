package donation

import (
	"testing"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"treasury/internal/domain"
)

func TestFilterApply(t *testing.T) {
	keep1 := donationTx("A", "m", 10, 5, 0)
	keep2 := donationTx("E", "m", 1, 6, 0)
	otherDest := donationTx("B", "m", 10, 5, 1)
	otherDest.To = "rSomeoneElse"
	otherAsset := donationTx("C", "m", 10, 5, 2)
	otherAsset.Asset = "XRP"
	zero := donationTx("D", "m", 0, 5, 3)
	negative := donationTx("F", "m", 0, 5, 4)
	negative.Amount = decimal.NewFromInt(-3)

	filter := NewFilter(testTreasury, testAsset, zerolog.Nop())
	got := filter.Apply([]domain.LedgerTransaction{keep1, otherDest, otherAsset, zero, keep2, negative})

	if len(got) != 2 || got[0].ID != "A" || got[1].ID != "E" {
		t.Fatalf("unexpected filter result: %+v", got)
	}
}

func TestFilterApplyEmpty(t *testing.T) {
	filter := NewFilter(testTreasury, testAsset, zerolog.Nop())
	if got := filter.Apply(nil); len(got) != 0 {
		t.Fatalf("expected empty result, got %+v", got)
	}
}
