// Package patcher rebuilds an observation from a previous one and the
// StateDiff computed against it.
package patcher

import (
	"errors"
	"fmt"

	"github.com/defistate/simplest-amm-client-go/differ"
	"github.com/defistate/simplest-amm-client-go/engine"
	"github.com/defistate/simplest-amm-client-go/fixedpoint"
	simplestamm "github.com/defistate/simplest-amm-client-go/protocols/simplestamm"
)

var (
	// ErrNilInput is returned when the previous observation or the diff is missing.
	ErrNilInput = errors.New("patcher: observation and diff cannot be nil")
	// ErrBlockRegression is returned when the diff describes an older block than prev.
	ErrBlockRegression = errors.New("patcher: diff block is older than the observation")
	// ErrStaleDiff is returned when the diff was computed against a different state.
	ErrStaleDiff = errors.New("patcher: diff does not apply to the observation")
	// ErrUnknownField is returned for a mismatch field this package cannot apply.
	ErrUnknownField = errors.New("patcher: unknown field")
)

// Patch creates a new observation by applying diff to prev.
//
// CONTRACT:
//  1. Immutability: prev is never modified.
//  2. Integrity: every changed field must still hold the value the diff was
//     computed against, otherwise ErrStaleDiff is returned.
func Patch(prev *engine.Observation, diff *differ.StateDiff) (*engine.Observation, error) {
	if prev == nil || diff == nil {
		return nil, ErrNilInput
	}
	if prev.Block.Number != nil && diff.Block.Number != nil && diff.Block.Number.Cmp(prev.Block.Number) < 0 {
		return nil, fmt.Errorf("%w (observation=%s, diff=%s)", ErrBlockRegression, prev.Block.Number, diff.Block.Number)
	}

	pool, err := simplestamm.Patcher(prev.Pool, diff.Pool)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrStaleDiff, err)
	}

	wallet := prev.Wallet
	for _, m := range diff.Mismatches {
		var dst *fixedpoint.Amount
		switch m.Field {
		case differ.FieldReserveETH, differ.FieldReserveToken, differ.FieldTotalLP:
			// Already applied through diff.Pool.
			continue
		case differ.FieldWalletETH:
			dst = &wallet.ETH
		case differ.FieldWalletToken:
			dst = &wallet.Token
		case differ.FieldWalletLP:
			dst = &wallet.LP
		default:
			return nil, fmt.Errorf("%w: %q", ErrUnknownField, m.Field)
		}
		if !dst.Equal(m.Expected) {
			return nil, fmt.Errorf("%w: %s is %s, diff expects %s", ErrStaleDiff, m.Field, dst.WeiString(), m.Expected.WeiString())
		}
		*dst = m.Observed
	}

	return &engine.Observation{
		ChainID: prev.ChainID,
		Account: prev.Account,
		Block:   diff.Block, // The diff carries the block it was observed at.
		Pool:    pool,
		Wallet:  wallet,
	}, nil
}
