package simplestamm

import (
	"errors"
	"fmt"

	"github.com/defistate/simplest-amm-client-go/fixedpoint"
)

// ErrStalePatch is returned when a diff was computed against a different pool state.
var ErrStalePatch = errors.New("diff does not apply to pool state")

// Patcher applies a diff to a previous pool state and returns the new state.
// Every changed field must start from the value recorded in the diff; the
// previous state is never mutated.
func Patcher(prev Pool, diff PoolDiff) (Pool, error) {
	next := prev
	var err error
	if next.ReserveETH, err = patchField("reserveEth", prev.ReserveETH, diff.ReserveETH); err != nil {
		return Pool{}, err
	}
	if next.ReserveToken, err = patchField("reserveToken", prev.ReserveToken, diff.ReserveToken); err != nil {
		return Pool{}, err
	}
	if next.TotalLP, err = patchField("totalLp", prev.TotalLP, diff.TotalLP); err != nil {
		return Pool{}, err
	}
	return next, nil
}

func patchField(name string, current fixedpoint.Amount, change *Change) (fixedpoint.Amount, error) {
	if change == nil {
		return current, nil
	}
	if !change.Old.Equal(current) {
		return fixedpoint.Amount{}, fmt.Errorf("%w: %s is %s, diff expects %s", ErrStalePatch, name, current, change.Old)
	}
	return change.New, nil
}
