package main

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/defistate/simplest-amm-client-go/cmd/client/config"
	calculator "github.com/defistate/simplest-amm-client-go/protocols/simplestamm/calculator"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var offlinePoolArgs = []string{
	"--reserve-eth=10",
	"--reserve-token=20",
	"--total-lp=14.142135623730950488",
}

func runCLI(t *testing.T, args ...string) (map[string]any, error) {
	t.Helper()
	root := newRootCmd()
	var stdout, stderr bytes.Buffer
	root.SetOut(&stdout)
	root.SetErr(&stderr)
	root.SetArgs(args)

	if err := root.Execute(); err != nil {
		return nil, err
	}
	var out map[string]any
	require.NoError(t, json.Unmarshal(stdout.Bytes(), &out), "stdout: %s", stdout.String())
	return out, nil
}

func quoteField(t *testing.T, out map[string]any, key string) any {
	t.Helper()
	quote, ok := out["quote"].(map[string]any)
	require.True(t, ok, "quote is missing from %v", out)
	return quote[key]
}

func TestQuoteSwapOffline(t *testing.T) {
	out, err := runCLI(t, append([]string{"quote", "swap", "--amount-in=1"}, offlinePoolArgs...)...)
	require.NoError(t, err)

	assert.Equal(t, "eth", quoteField(t, out, "assetIn"))
	assert.Equal(t, "1813221787760298263", quoteField(t, out, "expectedOut"))
	assert.Equal(t, "1804155678821496771", quoteField(t, out, "minAmountOut"))
	pool := out["pool"].(map[string]any)
	assert.Equal(t, "10000000000000000000", pool["reserveEth"])
}

func TestQuoteSwapExactOutput(t *testing.T) {
	out, err := runCLI(t, append([]string{"quote", "swap", "--amount-out=1", "--slippage-bps=100"}, offlinePoolArgs...)...)
	require.NoError(t, err)

	assert.Equal(t, "527899487937496700", quoteField(t, out, "amountIn"))
	assert.Equal(t, 100.0, quoteField(t, out, "toleranceBps"))
}

func TestQuoteSwapErrors(t *testing.T) {
	_, err := runCLI(t, append([]string{"quote", "swap", "--amount-out=20"}, offlinePoolArgs...)...)
	assert.ErrorIs(t, err, calculator.ErrLiquidityExceeded)

	_, err = runCLI(t, append([]string{"quote", "swap", "--amount-in=0"}, offlinePoolArgs...)...)
	assert.ErrorIs(t, err, calculator.ErrInvalidInput)

	_, err = runCLI(t, append([]string{"quote", "swap", "--amount-in=1", "--amount-out=1"}, offlinePoolArgs...)...)
	assert.Error(t, err, "amount-in and amount-out are exclusive")

	_, err = runCLI(t, append([]string{"quote", "swap", "--amount-in=1", "--asset-in=btc"}, offlinePoolArgs...)...)
	assert.Error(t, err)

	_, err = runCLI(t, append([]string{"quote", "swap", "--amount-in=1", "--cross-check"}, offlinePoolArgs...)...)
	assert.ErrorIs(t, err, errCrossCheckOffline)

	_, err = runCLI(t, "quote", "swap", "--amount-in=1", "--reserve-eth=10", "--reserve-token=20")
	assert.Error(t, err, "reserves without LP supply are inconsistent")
}

func TestQuoteNeedsPoolSource(t *testing.T) {
	t.Setenv("SIMPLEST_RPC", "")
	_, err := runCLI(t, "quote", "swap", "--amount-in=1")
	assert.ErrorIs(t, err, config.ErrMissingValue)
}

func TestQuoteAddOffline(t *testing.T) {
	out, err := runCLI(t, append([]string{"quote", "add", "--amount-eth=1"}, offlinePoolArgs...)...)
	require.NoError(t, err)
	assert.Equal(t, "2000000000000000000", quoteField(t, out, "amountToken"))
	assert.Equal(t, "1414213562373095048", quoteField(t, out, "expectedLp"))
	assert.Equal(t, "1407142494561229572", quoteField(t, out, "minLp"))

	out, err = runCLI(t, "quote", "add", "--amount-eth=4", "--amount-token=9", "--reserve-eth=0")
	require.NoError(t, err)
	assert.Equal(t, "6000000000000000000", quoteField(t, out, "expectedLp"))

	_, err = runCLI(t, "quote", "add", "--amount-eth=4", "--reserve-eth=0")
	assert.ErrorIs(t, err, calculator.ErrZeroLiquidity)
}

func TestQuoteRemoveOffline(t *testing.T) {
	out, err := runCLI(t, append([]string{"quote", "remove", "--lp=7.071067811865475244"}, offlinePoolArgs...)...)
	require.NoError(t, err)
	expected := quoteField(t, out, "expected").(map[string]any)
	assert.Equal(t, "5000000000000000000", expected["amountEth"])
	assert.Equal(t, "10000000000000000000", expected["amountToken"])
	assert.Equal(t, "4975000000000000000", quoteField(t, out, "minEth"))
	assert.Equal(t, "9950000000000000000", quoteField(t, out, "minToken"))

	_, err = runCLI(t, append([]string{"quote", "remove", "--lp=15"}, offlinePoolArgs...)...)
	assert.ErrorIs(t, err, calculator.ErrInsufficientLPSupply)
}

func TestWatchRequiresAccount(t *testing.T) {
	t.Setenv("SIMPLEST_ACCOUNT", "")
	_, err := runCLI(t, "watch",
		"--rpc=ws://127.0.0.1:1",
		"--pool=0x5FbDB2315678afecb367f032d93F642f64180aa3",
		"--token=0xe7f1725E7734CE288F8367e1Bb143E90bb3F0512",
	)
	assert.ErrorIs(t, err, config.ErrMissingValue)
}

func TestParseLevel(t *testing.T) {
	assert.Equal(t, "DEBUG", parseLevel("debug").Level().String())
	assert.Equal(t, "WARN", parseLevel("warning").Level().String())
	assert.Equal(t, "ERROR", parseLevel("error").Level().String())
	assert.Equal(t, "INFO", parseLevel("info").Level().String())
}
