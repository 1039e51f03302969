// Package slippage turns expected quotes into the minimum amounts passed to
// the pool contract, which reverts any trade that realizes less.
package slippage

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/defistate/simplest-amm-client-go/fixedpoint"
)

const (
	// DefaultToleranceBps is the default tolerance of 0.5%.
	DefaultToleranceBps uint16 = 50
	// MaxToleranceBps is 100%; larger tolerances are clamped to it.
	MaxToleranceBps uint16 = 10000
)

var (
	basisPointDivisor = fixedpoint.FromUint64(uint64(MaxToleranceBps))

	// ErrInvalidPercent is returned when a tolerance string is not a percentage between 0 and 100.
	ErrInvalidPercent = errors.New("invalid slippage percentage")
)

// MinimumAcceptable returns floor(expected*(10000-toleranceBps)/10000).
// A tolerance of 0 returns expected unchanged; tolerances above 100% are
// treated as 100% and yield zero.
func MinimumAcceptable(expected fixedpoint.Amount, toleranceBps uint16) fixedpoint.Amount {
	if toleranceBps > MaxToleranceBps {
		toleranceBps = MaxToleranceBps
	}
	keep := fixedpoint.FromUint64(uint64(MaxToleranceBps - toleranceBps))
	// The product is formed at 512 bits, so this cannot fail for a nonzero divisor.
	minAmount, _ := fixedpoint.MulDiv(expected, keep, basisPointDivisor)
	return minAmount
}

// Bound is a minimum acceptable amount attached to a pending transaction.
type Bound struct {
	MinAmount    fixedpoint.Amount `json:"minAmount"`
	ToleranceBps uint16            `json:"toleranceBps"`
}

// NewBound derives the bound for an expected amount.
func NewBound(expected fixedpoint.Amount, toleranceBps uint16) Bound {
	if toleranceBps > MaxToleranceBps {
		toleranceBps = MaxToleranceBps
	}
	return Bound{
		MinAmount:    MinimumAcceptable(expected, toleranceBps),
		ToleranceBps: toleranceBps,
	}
}

// Admits reports whether a realized amount would pass the contract's
// minimum-output check. The contract alone enforces the bound; this only
// predicts the outcome.
func (b Bound) Admits(realized fixedpoint.Amount) bool {
	return realized.Cmp(b.MinAmount) >= 0
}

// TolerancePercent renders the tolerance as a percentage, e.g. "0.5".
func (b Bound) TolerancePercent() string {
	whole, frac := b.ToleranceBps/100, b.ToleranceBps%100
	if frac == 0 {
		return strconv.Itoa(int(whole))
	}
	return strings.TrimRight(fmt.Sprintf("%d.%02d", whole, frac), "0")
}

// ParsePercent converts a percentage such as "0.5" or "1" to basis points.
// At most two fractional digits are accepted and the value must not exceed 100.
func ParsePercent(s string) (uint16, error) {
	s = strings.TrimSuffix(strings.TrimSpace(s), "%")
	whole, frac, hasDot := strings.Cut(s, ".")
	if whole == "" && frac == "" {
		return 0, fmt.Errorf("%w: %q", ErrInvalidPercent, s)
	}
	if hasDot && frac == "" {
		return 0, fmt.Errorf("%w: %q", ErrInvalidPercent, s)
	}
	if !isDigits(whole) || !isDigits(frac) {
		return 0, fmt.Errorf("%w: %q", ErrInvalidPercent, s)
	}
	frac = strings.TrimRight(frac, "0")
	if len(frac) > 2 {
		return 0, fmt.Errorf("%w: %q has more than two decimals", ErrInvalidPercent, s)
	}
	whole = strings.TrimLeft(whole, "0")
	if len(whole) > 3 {
		return 0, fmt.Errorf("%w: %q exceeds 100", ErrInvalidPercent, s)
	}

	digits := whole + frac + strings.Repeat("0", 2-len(frac))
	bps, err := strconv.ParseUint(digits, 10, 16)
	if err != nil {
		return 0, fmt.Errorf("%w: %q", ErrInvalidPercent, s)
	}
	if bps > uint64(MaxToleranceBps) {
		return 0, fmt.Errorf("%w: %q exceeds 100", ErrInvalidPercent, s)
	}
	return uint16(bps), nil
}

func isDigits(s string) bool {
	for i := 0; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return false
		}
	}
	return true
}
