package patcher

import (
	"io"
	"log/slog"
	"math/big"
	"testing"

	"github.com/defistate/simplest-amm-client-go/differ"
	"github.com/defistate/simplest-amm-client-go/engine"
	"github.com/defistate/simplest-amm-client-go/fixedpoint"
	simplestamm "github.com/defistate/simplest-amm-client-go/protocols/simplestamm"
	calculator "github.com/defistate/simplest-amm-client-go/protocols/simplestamm/calculator"
	"github.com/ethereum/go-ethereum/common"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// --------------------------------------------------------------------------------
// --- Helpers ---
// --------------------------------------------------------------------------------

func makeObservation(blockNum int64, pool simplestamm.Pool, wallet engine.Wallet) *engine.Observation {
	bNum := big.NewInt(blockNum)
	return &engine.Observation{
		ChainID: 31337,
		Account: common.HexToAddress("0x70997970C51812dc3A010C7d01b50e0d17dc79C8"),
		Block: engine.BlockSummary{
			Number: bNum,
			Hash:   common.BigToHash(bNum),
		},
		Pool:   pool,
		Wallet: wallet,
	}
}

func newDiffer(t *testing.T) *differ.StateDiffer {
	t.Helper()
	d, err := differ.NewStateDiffer(&differ.StateDifferConfig{
		Registry: prometheus.NewRegistry(),
		Logger:   slog.New(slog.NewTextHandler(io.Discard, nil)),
	})
	require.NoError(t, err)
	return d
}

func seededPool() simplestamm.Pool {
	return simplestamm.Pool{
		ReserveETH:   fixedpoint.FromUnits(10),
		ReserveToken: fixedpoint.FromUnits(20),
		TotalLP:      fixedpoint.MustParseWei("14142135623730950488"),
	}
}

// --------------------------------------------------------------------------------
// --- Main Test Suite ---
// --------------------------------------------------------------------------------

func TestPatch_HappyPath(t *testing.T) {
	d := newDiffer(t)

	prev := makeObservation(100, seededPool(), engine.Wallet{
		ETH:   fixedpoint.FromUnits(90),
		Token: fixedpoint.FromUnits(980),
		LP:    fixedpoint.MustParseWei("14142135623730950488"),
	})

	// Someone else swaps 1 ETH in, and the account receives 5 tokens.
	out, pool, err := calculator.SimulateSwap(prev.Pool, simplestamm.AssetETH, fixedpoint.FromUnits(1))
	require.NoError(t, err)
	require.False(t, out.IsZero())
	wallet := prev.Wallet
	wallet.Token, _ = wallet.Token.Add(fixedpoint.FromUnits(5))
	next := makeObservation(101, pool, wallet)

	diff, err := d.Diff(prev, next)
	require.NoError(t, err)
	require.False(t, diff.IsEmpty())

	patched, err := Patch(prev, diff)
	require.NoError(t, err)

	assert.Equal(t, next.Pool, patched.Pool)
	assert.Equal(t, next.Wallet, patched.Wallet)
	assert.Equal(t, next.Block, patched.Block)
	assert.Equal(t, prev.ChainID, patched.ChainID)
	assert.Equal(t, prev.Account, patched.Account)

	// Immutability: prev is untouched.
	assert.Equal(t, seededPool(), prev.Pool)
	assert.Equal(t, "980", prev.Wallet.Token.String())
}

func TestPatch_EmptyDiff(t *testing.T) {
	d := newDiffer(t)
	prev := makeObservation(100, seededPool(), engine.Wallet{ETH: fixedpoint.FromUnits(1)})
	next := makeObservation(105, seededPool(), engine.Wallet{ETH: fixedpoint.FromUnits(1)})

	diff, err := d.Diff(prev, next)
	require.NoError(t, err)
	require.True(t, diff.IsEmpty())

	patched, err := Patch(prev, diff)
	require.NoError(t, err)
	assert.Equal(t, prev.Pool, patched.Pool)
	assert.Equal(t, prev.Wallet, patched.Wallet)
	assert.Equal(t, int64(105), patched.Block.Number.Int64())
}

func TestPatch_Errors(t *testing.T) {
	d := newDiffer(t)
	prev := makeObservation(100, seededPool(), engine.Wallet{ETH: fixedpoint.FromUnits(1)})
	drained := makeObservation(101, seededPool(), engine.Wallet{})

	diff, err := d.Diff(prev, drained)
	require.NoError(t, err)

	t.Run("Nil Inputs", func(t *testing.T) {
		_, err := Patch(nil, diff)
		assert.ErrorIs(t, err, ErrNilInput)
		_, err = Patch(prev, nil)
		assert.ErrorIs(t, err, ErrNilInput)
	})

	t.Run("Block Regression", func(t *testing.T) {
		later := makeObservation(200, prev.Pool, prev.Wallet)
		_, err := Patch(later, diff)
		assert.ErrorIs(t, err, ErrBlockRegression)
	})

	t.Run("Stale Wallet", func(t *testing.T) {
		other := makeObservation(100, prev.Pool, engine.Wallet{ETH: fixedpoint.FromUnits(2)})
		_, err := Patch(other, diff)
		assert.ErrorIs(t, err, ErrStaleDiff)
	})

	t.Run("Stale Pool", func(t *testing.T) {
		swapped := makeObservation(101, simplestamm.Pool{
			ReserveETH:   fixedpoint.FromUnits(11),
			ReserveToken: fixedpoint.MustParseWei("18186778212239701737"),
			TotalLP:      seededPool().TotalLP,
		}, prev.Wallet)
		poolDiff, err := d.Diff(prev, swapped)
		require.NoError(t, err)

		moved := makeObservation(100, simplestamm.Pool{
			ReserveETH:   fixedpoint.FromUnits(12),
			ReserveToken: fixedpoint.FromUnits(20),
			TotalLP:      seededPool().TotalLP,
		}, prev.Wallet)
		_, err = Patch(moved, poolDiff)
		assert.ErrorIs(t, err, ErrStaleDiff)
	})

	t.Run("Unknown Field", func(t *testing.T) {
		bogus := *diff
		bogus.Mismatches = append([]differ.Mismatch{{Field: "wallet.nft"}}, diff.Mismatches...)
		_, err := Patch(prev, &bogus)
		assert.ErrorIs(t, err, ErrUnknownField)
	})
}
