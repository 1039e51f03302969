package slippage

import (
	"github.com/defistate/simplest-amm-client-go/fixedpoint"
	simplestamm "github.com/defistate/simplest-amm-client-go/protocols/simplestamm"
	calculator "github.com/defistate/simplest-amm-client-go/protocols/simplestamm/calculator"
)

// SwapParams are the arguments of swap(tokenIn, amountIn, minAmountOut).
type SwapParams struct {
	AssetIn      simplestamm.Asset `json:"assetIn"`
	AmountIn     fixedpoint.Amount `json:"amountIn"`
	ExpectedOut  fixedpoint.Amount `json:"expectedOut"`
	MinAmountOut fixedpoint.Amount `json:"minAmountOut"`
	ToleranceBps uint16            `json:"toleranceBps"`
}

// NewSwapParams quotes amountIn of assetIn against pool and bounds the quote.
func NewSwapParams(pool simplestamm.Pool, assetIn simplestamm.Asset, amountIn fixedpoint.Amount, toleranceBps uint16) SwapParams {
	reserveIn, reserveOut := pool.Reserves(assetIn)
	expected := calculator.QuoteSwapOutput(amountIn, reserveIn, reserveOut)
	bound := NewBound(expected, toleranceBps)
	return SwapParams{
		AssetIn:      assetIn,
		AmountIn:     amountIn,
		ExpectedOut:  expected,
		MinAmountOut: bound.MinAmount,
		ToleranceBps: bound.ToleranceBps,
	}
}

// Bound returns the output bound carried by the parameters.
func (p SwapParams) Bound() Bound {
	return Bound{MinAmount: p.MinAmountOut, ToleranceBps: p.ToleranceBps}
}

// AddLiquidityParams are the arguments of addLiquidity(amountToken, minLP)
// together with the ETH value sent along.
type AddLiquidityParams struct {
	AmountETH    fixedpoint.Amount `json:"amountEth"`
	AmountToken  fixedpoint.Amount `json:"amountToken"`
	ExpectedLP   fixedpoint.Amount `json:"expectedLp"`
	MinLP        fixedpoint.Amount `json:"minLp"`
	ToleranceBps uint16            `json:"toleranceBps"`
}

// NewAddLiquidityParams bounds the LP tokens minted for depositing the given
// amounts. When amountToken is zero and the pool already has a ratio, the
// ratio-preserving token amount is filled in.
func NewAddLiquidityParams(pool simplestamm.Pool, amountETH, amountToken fixedpoint.Amount, toleranceBps uint16) AddLiquidityParams {
	if amountToken.IsZero() {
		amountToken = calculator.RequiredCounterAmount(amountETH, pool.ReserveETH, pool.ReserveToken)
	}
	expected := calculator.LiquidityOutput(pool, amountToken, amountETH)
	bound := NewBound(expected, toleranceBps)
	return AddLiquidityParams{
		AmountETH:    amountETH,
		AmountToken:  amountToken,
		ExpectedLP:   expected,
		MinLP:        bound.MinAmount,
		ToleranceBps: bound.ToleranceBps,
	}
}

// Bound returns the LP bound carried by the parameters.
func (p AddLiquidityParams) Bound() Bound {
	return Bound{MinAmount: p.MinLP, ToleranceBps: p.ToleranceBps}
}

// RemoveLiquidityParams are the arguments of removeLiquidity(lpAmount, minToken, minEth).
type RemoveLiquidityParams struct {
	LP           fixedpoint.Amount          `json:"lp"`
	Expected     calculator.RedemptionQuote `json:"expected"`
	MinToken     fixedpoint.Amount          `json:"minToken"`
	MinETH       fixedpoint.Amount          `json:"minEth"`
	ToleranceBps uint16                     `json:"toleranceBps"`
}

// NewRemoveLiquidityParams bounds both assets returned for burning lp tokens.
func NewRemoveLiquidityParams(pool simplestamm.Pool, lp fixedpoint.Amount, toleranceBps uint16) RemoveLiquidityParams {
	expected := calculator.RemoveLiquidityOutput(pool, lp)
	ethBound := NewBound(expected.AmountETH, toleranceBps)
	return RemoveLiquidityParams{
		LP:           lp,
		Expected:     expected,
		MinToken:     MinimumAcceptable(expected.AmountToken, ethBound.ToleranceBps),
		MinETH:       ethBound.MinAmount,
		ToleranceBps: ethBound.ToleranceBps,
	}
}

// Bounds returns the ETH and token bounds carried by the parameters.
func (p RemoveLiquidityParams) Bounds() (eth, token Bound) {
	return Bound{MinAmount: p.MinETH, ToleranceBps: p.ToleranceBps},
		Bound{MinAmount: p.MinToken, ToleranceBps: p.ToleranceBps}
}
