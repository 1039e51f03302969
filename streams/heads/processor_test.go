package heads

import (
	"io"
	"log/slog"
	"math/big"
	"testing"

	"github.com/defistate/simplest-amm-client-go/engine"
	"github.com/defistate/simplest-amm-client-go/fixedpoint"
	simplestamm "github.com/defistate/simplest-amm-client-go/protocols/simplestamm"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testLogger() Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func observationAt(block int64, reserveETH uint64) *engine.Observation {
	return &engine.Observation{
		Block: engine.BlockSummary{Number: big.NewInt(block)},
		Pool: simplestamm.Pool{
			ReserveETH:   fixedpoint.FromUnits(reserveETH),
			ReserveToken: fixedpoint.FromUnits(20),
			TotalLP:      fixedpoint.FromUnits(14),
		},
	}
}

func TestProcessor(t *testing.T) {
	t.Run("first observation carries no diff", func(t *testing.T) {
		p := NewProcessor(testLogger(), 4)
		require.True(t, p.Process(observationAt(1, 10)))

		u := <-p.Updates()
		assert.False(t, u.PoolChanged)
		assert.True(t, u.PoolDiff.IsEmpty())
		assert.Equal(t, uint64(1), p.Last().BlockNumber())
	})

	t.Run("flags pool changes between heads", func(t *testing.T) {
		p := NewProcessor(testLogger(), 4)
		p.Process(observationAt(1, 10))
		p.Process(observationAt(2, 10))
		p.Process(observationAt(3, 11))

		<-p.Updates()
		u2 := <-p.Updates()
		assert.False(t, u2.PoolChanged)
		u3 := <-p.Updates()
		assert.True(t, u3.PoolChanged)
		require.NotNil(t, u3.PoolDiff.ReserveETH)
		assert.Equal(t, "10", u3.PoolDiff.ReserveETH.Old.String())
		assert.Equal(t, "11", u3.PoolDiff.ReserveETH.New.String())
		assert.Nil(t, u3.PoolDiff.ReserveToken)
	})

	t.Run("discards stale and duplicate heads", func(t *testing.T) {
		p := NewProcessor(testLogger(), 4)
		require.True(t, p.Process(observationAt(5, 10)))
		assert.False(t, p.Process(observationAt(5, 11)))
		assert.False(t, p.Process(observationAt(4, 11)))
		assert.False(t, p.Process(nil))
		assert.False(t, p.Process(&engine.Observation{}))

		assert.Len(t, p.Updates(), 1)
		assert.Equal(t, "10", p.Last().Pool.ReserveETH.String())
	})

	t.Run("drops updates when the buffer is full", func(t *testing.T) {
		p := NewProcessor(testLogger(), 1)
		require.True(t, p.Process(observationAt(1, 10)))
		require.True(t, p.Process(observationAt(2, 11)), "accepted even when not delivered")

		assert.Len(t, p.Updates(), 1)
		u := <-p.Updates()
		assert.Equal(t, uint64(1), u.Observation.BlockNumber())
		assert.Equal(t, uint64(2), p.Last().BlockNumber())
	})
}
