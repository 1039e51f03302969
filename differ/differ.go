package differ

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/defistate/simplest-amm-client-go/engine"
	"github.com/defistate/simplest-amm-client-go/fixedpoint"
	simplestamm "github.com/defistate/simplest-amm-client-go/protocols/simplestamm"
	"github.com/prometheus/client_golang/prometheus"
)

var (
	// ErrNilObservation is returned when either side of a comparison is missing.
	ErrNilObservation = errors.New("observation cannot be nil")
	// ErrStateMismatch is returned by Check when the chain disagrees with the prediction.
	ErrStateMismatch = errors.New("observed state does not match prediction")
)

// StateDifferConfig holds the dependencies of a StateDiffer.
type StateDifferConfig struct {
	Registry prometheus.Registerer
	Logger   Logger
}

// validate checks if the configuration is valid, ensuring required dependencies are present.
func (c *StateDifferConfig) validate() error {
	if c.Registry == nil {
		return errors.New("config: Registry cannot be nil")
	}
	if c.Logger == nil {
		return errors.New("config: Logger cannot be nil")
	}
	return nil
}

// StateDiffer compares predicted observations with observed ones. Every
// field is compared exactly; the engine mirrors the contract's integer
// arithmetic, so any difference is a defect rather than noise.
type StateDiffer struct {
	metrics *Metrics
	logger  Logger
}

// NewStateDiffer constructs a new differ from a configuration, returning an error if the config is invalid.
func NewStateDiffer(cfg *StateDifferConfig) (*StateDiffer, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &StateDiffer{
		metrics: NewMetrics(cfg.Registry),
		logger:  cfg.Logger,
	}, nil
}

// Diff lists every field of observed that differs from expected.
func (d *StateDiffer) Diff(expected, observed *engine.Observation) (*StateDiff, error) {
	timer := prometheus.NewTimer(d.metrics.diffDuration.WithLabelValues())
	defer timer.ObserveDuration()

	if expected == nil || observed == nil {
		return nil, ErrNilObservation
	}

	poolDiff := simplestamm.Differ(expected.Pool, observed.Pool)
	diff := &StateDiff{
		Timestamp: uint64(time.Now().UnixNano()),
		Block:     observed.Block,
		Pool:      poolDiff,
	}

	diff.add(FieldReserveETH, poolDiff.ReserveETH)
	diff.add(FieldReserveToken, poolDiff.ReserveToken)
	diff.add(FieldTotalLP, poolDiff.TotalLP)
	diff.compare(FieldWalletETH, expected.Wallet.ETH, observed.Wallet.ETH)
	diff.compare(FieldWalletToken, expected.Wallet.Token, observed.Wallet.Token)
	diff.compare(FieldWalletLP, expected.Wallet.LP, observed.Wallet.LP)

	for _, m := range diff.Mismatches {
		d.metrics.mismatches.WithLabelValues(m.Field).Inc()
	}
	if !diff.IsEmpty() {
		d.logger.Warn("observed state diverges from prediction",
			"block", observed.BlockNumber(),
			"fields", diff.Fields(),
		)
	} else {
		d.logger.Debug("observed state matches prediction", "block", observed.BlockNumber())
	}
	return diff, nil
}

// Check is Diff reduced to an error: nil when the states match, otherwise an
// error wrapping ErrStateMismatch that names each differing field.
func (d *StateDiffer) Check(expected, observed *engine.Observation) error {
	diff, err := d.Diff(expected, observed)
	if err != nil {
		return err
	}
	if diff.IsEmpty() {
		return nil
	}
	parts := make([]string, len(diff.Mismatches))
	for i, m := range diff.Mismatches {
		parts[i] = fmt.Sprintf("%s expected %s observed %s", m.Field, m.Expected.WeiString(), m.Observed.WeiString())
	}
	return fmt.Errorf("%w at block %d: %s", ErrStateMismatch, observed.BlockNumber(), strings.Join(parts, "; "))
}

func (s *StateDiff) add(field string, change *simplestamm.Change) {
	if change == nil {
		return
	}
	s.Mismatches = append(s.Mismatches, Mismatch{Field: field, Expected: change.Old, Observed: change.New})
}

func (s *StateDiff) compare(field string, expected, observed fixedpoint.Amount) {
	if expected.Equal(observed) {
		return
	}
	s.Mismatches = append(s.Mismatches, Mismatch{Field: field, Expected: expected, Observed: observed})
}
