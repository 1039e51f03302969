package simplestamm

import (
	"errors"
	"fmt"

	"github.com/defistate/simplest-amm-client-go/fixedpoint"
	simplestamm "github.com/defistate/simplest-amm-client-go/protocols/simplestamm"
)

var (
	// feeNumerator and feeDenominator encode the pool's fixed 0.3% swap fee.
	feeNumerator   = fixedpoint.FromUint64(997)
	feeDenominator = fixedpoint.FromUint64(1000)

	// ErrInvalidInput is returned when an amount or a reserve is zero.
	ErrInvalidInput = errors.New("amount and reserves must be positive")
	// ErrLiquidityExceeded is returned when the requested output is greater than or equal to the available reserve.
	ErrLiquidityExceeded = errors.New("requested output exceeds pool liquidity")
	// ErrArithmeticOverflow is returned when an intermediate product does not fit in 256 bits.
	ErrArithmeticOverflow = errors.New("arithmetic overflow")
)

// mulDiv computes floor(x*y/d) the way the contract does: the product is
// checked at 256 bits before the division.
func mulDiv(x, y, d fixedpoint.Amount) (fixedpoint.Amount, bool) {
	product, ok := x.Mul(y)
	if !ok {
		return fixedpoint.Amount{}, false
	}
	return product.Div(d)
}

// amountWithFee returns floor(amountIn*997/1000).
func amountWithFee(amountIn fixedpoint.Amount) (fixedpoint.Amount, bool) {
	return mulDiv(amountIn, feeNumerator, feeDenominator)
}

// QuoteSwapOutput returns the amount of the opposing asset received for
// amountIn, matching the contract's getSwapOutput:
//
//	amountInWithFee = amountIn * 997 / 1000
//	amountOut       = reserveOut * amountInWithFee / (reserveIn + amountInWithFee)
//
// A zero amount or reserve yields a zero quote, as does any input for which
// the contract's checked arithmetic would revert.
func QuoteSwapOutput(amountIn, reserveIn, reserveOut fixedpoint.Amount) fixedpoint.Amount {
	out, _ := swapOutput(amountIn, reserveIn, reserveOut)
	return out
}

func swapOutput(amountIn, reserveIn, reserveOut fixedpoint.Amount) (fixedpoint.Amount, error) {
	if amountIn.IsZero() || reserveIn.IsZero() || reserveOut.IsZero() {
		return fixedpoint.Zero(), ErrInvalidInput
	}
	withFee, ok := amountWithFee(amountIn)
	if !ok {
		return fixedpoint.Zero(), ErrArithmeticOverflow
	}
	denominator, ok := reserveIn.Add(withFee)
	if !ok {
		return fixedpoint.Zero(), ErrArithmeticOverflow
	}
	out, ok := mulDiv(reserveOut, withFee, denominator)
	if !ok {
		return fixedpoint.Zero(), ErrArithmeticOverflow
	}
	return out, nil
}

// QuoteSwapInput returns the input required to receive amountOut:
//
//	amountIn = reserveIn * amountOut * 1000 / ((reserveOut - amountOut) * 997)
//
// It is an approximate inverse of QuoteSwapOutput; both round down, so
// QuoteSwapOutput(QuoteSwapInput(x)) may fall slightly short of x. Zero is
// returned when amountOut would drain the pool or any operand is zero.
func QuoteSwapInput(amountOut, reserveIn, reserveOut fixedpoint.Amount) fixedpoint.Amount {
	in, _ := swapInput(amountOut, reserveIn, reserveOut)
	return in
}

func swapInput(amountOut, reserveIn, reserveOut fixedpoint.Amount) (fixedpoint.Amount, error) {
	if amountOut.IsZero() || reserveIn.IsZero() || reserveOut.IsZero() {
		return fixedpoint.Zero(), ErrInvalidInput
	}
	if amountOut.Cmp(reserveOut) >= 0 {
		return fixedpoint.Zero(), ErrLiquidityExceeded
	}
	numerator, ok := reserveIn.Mul(amountOut)
	if !ok {
		return fixedpoint.Zero(), ErrArithmeticOverflow
	}
	if numerator, ok = numerator.Mul(feeDenominator); !ok {
		return fixedpoint.Zero(), ErrArithmeticOverflow
	}
	remaining, _ := reserveOut.Sub(amountOut)
	denominator, ok := remaining.Mul(feeNumerator)
	if !ok {
		return fixedpoint.Zero(), ErrArithmeticOverflow
	}
	in, _ := numerator.Div(denominator)
	return in, nil
}

// CheckSwapInput classifies why QuoteSwapInput would return zero for the given
// arguments. It returns nil when the quote is well defined.
func CheckSwapInput(amountOut, reserveIn, reserveOut fixedpoint.Amount) error {
	_, err := swapInput(amountOut, reserveIn, reserveOut)
	return err
}

// CheckSwapOutput classifies why QuoteSwapOutput would return zero for the
// given arguments. It returns nil when the quote is well defined, even if the
// quote itself rounds down to zero.
func CheckSwapOutput(amountIn, reserveIn, reserveOut fixedpoint.Amount) error {
	_, err := swapOutput(amountIn, reserveIn, reserveOut)
	return err
}

// Rate is the informational price reserveOut/reserveIn, kept as an exact fraction.
type Rate struct {
	Numerator   fixedpoint.Amount
	Denominator fixedpoint.Amount
}

// Scaled returns the rate as an 18-decimal amount, rounded down.
func (r Rate) Scaled() fixedpoint.Amount {
	q, _ := fixedpoint.MulDiv(r.Numerator, fixedpoint.One(), r.Denominator)
	return q
}

// String renders the scaled rate as a decimal number.
func (r Rate) String() string {
	return r.Scaled().String()
}

// ExchangeRate returns how many units of the out asset one unit of the in
// asset is worth before fees and price impact. ok is false when either
// reserve is zero and no price exists yet.
func ExchangeRate(reserveIn, reserveOut fixedpoint.Amount) (Rate, bool) {
	if reserveIn.IsZero() || reserveOut.IsZero() {
		return Rate{}, false
	}
	return Rate{Numerator: reserveOut, Denominator: reserveIn}, true
}

// SimulateSwap quotes a swap of amountIn of assetIn against pool and returns
// the amount received together with the pool state after the trade. The input
// pool is not modified. A zero quote leaves the pool unchanged.
func SimulateSwap(pool simplestamm.Pool, assetIn simplestamm.Asset, amountIn fixedpoint.Amount) (fixedpoint.Amount, simplestamm.Pool, error) {
	reserveIn, reserveOut := pool.Reserves(assetIn)
	out, err := swapOutput(amountIn, reserveIn, reserveOut)
	if err != nil {
		return fixedpoint.Zero(), pool, err
	}
	newIn, ok := reserveIn.Add(amountIn)
	if !ok {
		return fixedpoint.Zero(), pool, fmt.Errorf("%w: reserve %s", ErrArithmeticOverflow, assetIn)
	}
	newOut, _ := reserveOut.Sub(out)
	return out, pool.WithReserves(assetIn, newIn, newOut), nil
}
