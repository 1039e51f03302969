package simplestamm

import (
	"errors"
	"fmt"

	"github.com/defistate/simplest-amm-client-go/fixedpoint"
	simplestamm "github.com/defistate/simplest-amm-client-go/protocols/simplestamm"
)

var (
	// ErrInsufficientLPSupply is returned when more LP tokens are redeemed than exist.
	ErrInsufficientLPSupply = errors.New("lp amount exceeds total supply")
	// ErrZeroLiquidity is returned when a deposit would mint no LP tokens or a redemption would return nothing.
	ErrZeroLiquidity = errors.New("operation moves zero liquidity")
)

// LiquidityQuote is the result of quoting a deposit.
type LiquidityQuote struct {
	// CounterAmount is the amount of the other asset needed to keep the pool ratio.
	CounterAmount fixedpoint.Amount `json:"counterAmount"`
	// LPTokens is the number of LP tokens the deposit mints.
	LPTokens fixedpoint.Amount `json:"lpTokens"`
}

// RedemptionQuote is the pair of amounts returned for burning LP tokens.
type RedemptionQuote struct {
	AmountETH   fixedpoint.Amount `json:"amountEth"`
	AmountToken fixedpoint.Amount `json:"amountToken"`
}

// RequiredCounterAmount returns floor(amountX*reserveY/reserveX), the amount
// of asset Y that keeps a deposit of amountX at the pool's current ratio. It
// works in either direction. Zero means the pool is empty and has no ratio
// yet; both amounts of a bootstrap deposit are chosen freely.
func RequiredCounterAmount(amountX, reserveX, reserveY fixedpoint.Amount) fixedpoint.Amount {
	if amountX.IsZero() || reserveX.IsZero() || reserveY.IsZero() {
		return fixedpoint.Zero()
	}
	y, ok := mulDiv(amountX, reserveY, reserveX)
	if !ok {
		return fixedpoint.Zero()
	}
	return y
}

// QuoteLPIssuance returns the LP tokens minted for depositing amountX and
// amountY into a pool holding reserveX and reserveY with totalLP outstanding.
//
// The first deposit mints isqrt(amountX*amountY), fixing the initial price at
// the depositor's ratio. Later deposits mint the smaller of the two
// proportional shares, so an unbalanced deposit is credited for its weaker
// side only.
func QuoteLPIssuance(amountX, amountY, reserveX, reserveY, totalLP fixedpoint.Amount) fixedpoint.Amount {
	if amountX.IsZero() || amountY.IsZero() {
		return fixedpoint.Zero()
	}

	if totalLP.IsZero() {
		product, ok := amountX.Mul(amountY)
		if !ok {
			return fixedpoint.Zero()
		}
		return product.Sqrt()
	}

	if reserveX.IsZero() || reserveY.IsZero() {
		return fixedpoint.Zero()
	}
	shareX, okX := mulDiv(amountX, totalLP, reserveX)
	shareY, okY := mulDiv(amountY, totalLP, reserveY)
	if !okX || !okY {
		return fixedpoint.Zero()
	}
	return fixedpoint.Min(shareX, shareY)
}

// QuoteRedemption returns the proportional share of both reserves owed for
// burning lp tokens: floor(lp*reserve/totalLP) for each side. It returns
// (0, 0) for an empty pool, a zero amount or an amount above the supply.
func QuoteRedemption(lp, reserveX, reserveY, totalLP fixedpoint.Amount) (fixedpoint.Amount, fixedpoint.Amount) {
	if lp.IsZero() || totalLP.IsZero() || lp.Cmp(totalLP) > 0 {
		return fixedpoint.Zero(), fixedpoint.Zero()
	}
	x, okX := mulDiv(lp, reserveX, totalLP)
	y, okY := mulDiv(lp, reserveY, totalLP)
	if !okX || !okY {
		return fixedpoint.Zero(), fixedpoint.Zero()
	}
	return x, y
}

// QuoteAddLiquidity quotes a ratio-preserving deposit of amountETH: the token
// amount to pair with it and the LP tokens minted. On an empty pool both
// fields are zero because no ratio exists yet.
func QuoteAddLiquidity(pool simplestamm.Pool, amountETH fixedpoint.Amount) LiquidityQuote {
	counter := RequiredCounterAmount(amountETH, pool.ReserveETH, pool.ReserveToken)
	if counter.IsZero() {
		return LiquidityQuote{}
	}
	return LiquidityQuote{
		CounterAmount: counter,
		LPTokens:      QuoteLPIssuance(amountETH, counter, pool.ReserveETH, pool.ReserveToken, pool.TotalLP),
	}
}

// LiquidityOutput mirrors the contract's getLiquidityOutput(amountToken, amountEth).
func LiquidityOutput(pool simplestamm.Pool, amountToken, amountETH fixedpoint.Amount) fixedpoint.Amount {
	return QuoteLPIssuance(amountETH, amountToken, pool.ReserveETH, pool.ReserveToken, pool.TotalLP)
}

// RemoveLiquidityOutput mirrors the contract's getRemoveLiquidityOutput(lpAmount).
func RemoveLiquidityOutput(pool simplestamm.Pool, lp fixedpoint.Amount) RedemptionQuote {
	eth, token := QuoteRedemption(lp, pool.ReserveETH, pool.ReserveToken, pool.TotalLP)
	return RedemptionQuote{AmountETH: eth, AmountToken: token}
}

// SimulateAddLiquidity returns the LP tokens minted for the deposit and the
// pool state afterwards. The input pool is not modified.
func SimulateAddLiquidity(pool simplestamm.Pool, amountETH, amountToken fixedpoint.Amount) (fixedpoint.Amount, simplestamm.Pool, error) {
	minted := LiquidityOutput(pool, amountToken, amountETH)
	if minted.IsZero() {
		return fixedpoint.Zero(), pool, fmt.Errorf("%w: deposit of %s eth and %s token", ErrZeroLiquidity, amountETH, amountToken)
	}

	next := pool
	var okETH, okToken, okLP bool
	next.ReserveETH, okETH = pool.ReserveETH.Add(amountETH)
	next.ReserveToken, okToken = pool.ReserveToken.Add(amountToken)
	next.TotalLP, okLP = pool.TotalLP.Add(minted)
	if !okETH || !okToken || !okLP {
		return fixedpoint.Zero(), pool, ErrArithmeticOverflow
	}
	return minted, next, nil
}

// SimulateRemoveLiquidity returns the assets paid out for burning lp tokens
// and the pool state afterwards. The input pool is not modified.
func SimulateRemoveLiquidity(pool simplestamm.Pool, lp fixedpoint.Amount) (RedemptionQuote, simplestamm.Pool, error) {
	if lp.Cmp(pool.TotalLP) > 0 {
		return RedemptionQuote{}, pool, fmt.Errorf("%w: burning %s of %s", ErrInsufficientLPSupply, lp, pool.TotalLP)
	}
	quote := RemoveLiquidityOutput(pool, lp)
	if quote.AmountETH.IsZero() && quote.AmountToken.IsZero() {
		return RedemptionQuote{}, pool, fmt.Errorf("%w: burning %s lp", ErrZeroLiquidity, lp)
	}

	next := pool
	next.ReserveETH, _ = pool.ReserveETH.Sub(quote.AmountETH)
	next.ReserveToken, _ = pool.ReserveToken.Sub(quote.AmountToken)
	next.TotalLP, _ = pool.TotalLP.Sub(lp)
	return quote, next, nil
}
