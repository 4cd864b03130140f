package donation

import (
	"github.com/rs/zerolog"

	"treasury/internal/domain"
)

// Filter keeps incoming transfers of the monitored asset to the treasury.
type Filter struct {
	treasury string
	asset    string
	logger   zerolog.Logger
}

func NewFilter(treasury, asset string, logger zerolog.Logger) *Filter {
	return &Filter{treasury: treasury, asset: asset, logger: logger}
}

// Apply returns the matching transactions in their original order.
func (f *Filter) Apply(batch []domain.LedgerTransaction) []domain.LedgerTransaction {
	kept := make([]domain.LedgerTransaction, 0, len(batch))
	for _, tx := range batch {
		if tx.To != f.treasury || tx.Asset != f.asset || !tx.Amount.IsPositive() {
			continue
		}
		kept = append(kept, tx)
	}
	if dropped := len(batch) - len(kept); dropped > 0 {
		f.logger.Debug().Int("dropped", dropped).Int("kept", len(kept)).Msg("filtered ledger batch")
	}
	return kept
}
