package main

import (
	"bytes"
	"context"
	"math/big"
	"strings"
	"testing"

	"github.com/defistate/simplest-amm-client-go/chains/ethereum"
	"github.com/defistate/simplest-amm-client-go/engine"
	"github.com/defistate/simplest-amm-client-go/fixedpoint"
	simplestamm "github.com/defistate/simplest-amm-client-go/protocols/simplestamm"
	calculator "github.com/defistate/simplest-amm-client-go/protocols/simplestamm/calculator"
	"github.com/stretchr/testify/assert"
)

func seededState() *ethereum.State {
	pool := simplestamm.Pool{
		ReserveETH:   fixedpoint.FromUnits(10),
		ReserveToken: fixedpoint.FromUnits(20),
		TotalLP:      fixedpoint.MustParseWei("14142135623730950488"),
	}
	state := &ethereum.State{
		Observation: &engine.Observation{
			ChainID: 31337,
			Block:   engine.BlockSummary{Number: big.NewInt(42)},
			Pool:    pool,
			Wallet: engine.Wallet{
				ETH:   fixedpoint.FromUnits(90),
				Token: fixedpoint.FromUnits(980),
				LP:    fixedpoint.MustParse("7.071067811865475244"),
			},
		},
	}
	rate, _ := calculator.ExchangeRate(pool.ReserveETH, pool.ReserveToken)
	state.RateETHToToken = &rate
	inverse, _ := calculator.ExchangeRate(pool.ReserveToken, pool.ReserveETH)
	state.RateTokenToETH = &inverse
	return state
}

func runConsole(t *testing.T, state *ethereum.State, input ...string) string {
	t.Helper()
	safe := &SafeState{}
	if state != nil {
		safe.Update(state)
	}
	var out bytes.Buffer
	c := newConsole(strings.NewReader(strings.Join(input, "\n")+"\n"), &out, safe, 50)
	c.run(context.Background())
	return out.String()
}

func TestConsoleWaitsForState(t *testing.T) {
	out := runConsole(t, nil, "1", "", "q")
	assert.Contains(t, out, "Waiting for first state update")
}

func TestConsoleBlockAndPool(t *testing.T) {
	out := runConsole(t, seededState(), "1", "", "2", "", "q")
	assert.Contains(t, out, "#42")
	assert.Contains(t, out, "31337")
	assert.Contains(t, out, "POOL SUMMARY")
	assert.Contains(t, out, "14.142135623730950488")
	assert.Contains(t, out, "980")
	assert.Contains(t, out, " 2 TOKEN")
	assert.Contains(t, out, " 0.5 ETH")
}

func TestConsoleQuoteSwap(t *testing.T) {
	out := runConsole(t, seededState(), "3", "eth", "1", "", "q")
	assert.Contains(t, out, "SWAP QUOTE")
	assert.Contains(t, out, "1.813221787760298263 token")
	assert.Contains(t, out, "1.804155678821496771 token")
	assert.Contains(t, out, "(0.5%)")

	out = runConsole(t, seededState(), "3", "eth", "0", "", "q")
	assert.Contains(t, out, "Rejected")

	out = runConsole(t, seededState(), "3", "btc", "", "q")
	assert.NotContains(t, out, "SWAP QUOTE")
}

func TestConsoleQuoteAdd(t *testing.T) {
	out := runConsole(t, seededState(), "4", "1", "", "", "q")
	assert.Contains(t, out, "ADD LIQUIDITY QUOTE")
	assert.Contains(t, out, "2 token")
	assert.Contains(t, out, "1.414213562373095048 LP")
	assert.Contains(t, out, "1.407142494561229572 LP")
}

func TestConsoleQuoteRemove(t *testing.T) {
	// A blank LP amount burns the account's whole position.
	out := runConsole(t, seededState(), "5", "", "", "q")
	assert.Contains(t, out, "REMOVE LIQUIDITY QUOTE")
	assert.Contains(t, out, "5 eth")
	assert.Contains(t, out, "10 token")
	assert.Contains(t, out, "min 4.975")
	assert.Contains(t, out, "min 9.95")

	out = runConsole(t, seededState(), "5", "100", "", "q")
	assert.Contains(t, out, calculator.ErrInsufficientLPSupply.Error())
}

func TestConsoleUnknownCommand(t *testing.T) {
	out := runConsole(t, seededState(), "x", "", "q")
	assert.Contains(t, out, "Unknown command.")
}
