package ledger

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"
)

// StubSubmitter simulates transfers for development. It never touches the
// ledger and returns a synthetic transaction id.
type StubSubmitter struct {
	Logger  zerolog.Logger
	Latency time.Duration
}

func NewStubSubmitter(logger zerolog.Logger) *StubSubmitter {
	return &StubSubmitter{Logger: logger, Latency: 200 * time.Millisecond}
}

func (s *StubSubmitter) SubmitTransfer(ctx context.Context, req TransferRequest) (string, error) {
	s.Logger.Info().
		Str("to", req.To).
		Str("asset", req.Asset).
		Str("amount", req.Amount.String()).
		Str("memo", req.Memo).
		Msg("stub transfer")

	select {
	case <-ctx.Done():
		return "", ctx.Err()
	case <-time.After(s.Latency):
	}

	return fmt.Sprintf("stub_%d", time.Now().UnixNano()), nil
}
