package differ

import (
	"github.com/defistate/simplest-amm-client-go/engine"
	"github.com/defistate/simplest-amm-client-go/fixedpoint"
	simplestamm "github.com/defistate/simplest-amm-client-go/protocols/simplestamm"
)

// Logger defines a standard interface for structured, leveled logging.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// Field names reported in a Mismatch.
const (
	FieldReserveETH   = "pool.reserveETH"
	FieldReserveToken = "pool.reserveToken"
	FieldTotalLP      = "pool.totalLP"
	FieldWalletETH    = "wallet.eth"
	FieldWalletToken  = "wallet.token"
	FieldWalletLP     = "wallet.lp"
)

// Mismatch is a single field whose observed value differs from the prediction.
type Mismatch struct {
	Field    string            `json:"field"`
	Expected fixedpoint.Amount `json:"expected"`
	Observed fixedpoint.Amount `json:"observed"`
}

// StateDiff summarizes how an observation departs from the prediction.
type StateDiff struct {
	Timestamp  uint64               `json:"timestamp"`
	Block      engine.BlockSummary  `json:"block"`
	Pool       simplestamm.PoolDiff `json:"pool"`
	Mismatches []Mismatch           `json:"mismatches,omitempty"`
}

// IsEmpty reports whether the observation matched the prediction exactly.
func (d *StateDiff) IsEmpty() bool {
	return len(d.Mismatches) == 0
}

// Fields returns the names of the mismatched fields in report order.
func (d *StateDiff) Fields() []string {
	fields := make([]string, len(d.Mismatches))
	for i, m := range d.Mismatches {
		fields[i] = m.Field
	}
	return fields
}
