package simplestamm

import (
	"testing"

	"github.com/defistate/simplest-amm-client-go/fixedpoint"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPatcher(t *testing.T) {
	prev := Pool{
		ReserveETH:   fixedpoint.FromUnits(10),
		ReserveToken: fixedpoint.FromUnits(20),
		TotalLP:      fixedpoint.FromUnits(14),
	}

	t.Run("should reproduce the target state", func(t *testing.T) {
		target := Pool{
			ReserveETH:   fixedpoint.FromUnits(15),
			ReserveToken: fixedpoint.FromUnits(30),
			TotalLP:      fixedpoint.FromUnits(21),
		}
		patched, err := Patcher(prev, Differ(prev, target))
		require.NoError(t, err)
		assert.Equal(t, target, patched)
		assert.Equal(t, "10", prev.ReserveETH.String(), "previous state must not be mutated")
	})

	t.Run("should be a no-op for an empty diff", func(t *testing.T) {
		patched, err := Patcher(prev, PoolDiff{})
		require.NoError(t, err)
		assert.Equal(t, prev, patched)
	})

	t.Run("should reject a diff computed against another state", func(t *testing.T) {
		diff := PoolDiff{
			ReserveToken: &Change{Old: fixedpoint.FromUnits(19), New: fixedpoint.FromUnits(25)},
		}
		_, err := Patcher(prev, diff)
		assert.ErrorIs(t, err, ErrStalePatch)
	})
}
