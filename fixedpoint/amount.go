// Package fixedpoint implements the 18-decimal scaled integer used for every
// ETH, token and LP-token amount the pool contract handles.
package fixedpoint

import (
	"errors"
	"fmt"
	"math/big"
	"strings"

	"github.com/holiman/uint256"
)

// Decimals is the number of implied decimal places of an Amount.
const Decimals = 18

// maxDigits is the length of the decimal form of 2^256-1.
const maxDigits = 78

var (
	scale = uint256.NewInt(1_000_000_000_000_000_000)

	// ErrEmpty is returned when parsing an empty string.
	ErrEmpty = errors.New("empty amount")
	// ErrSyntax is returned when a string is not a plain decimal number.
	ErrSyntax = errors.New("invalid amount syntax")
	// ErrNegative is returned for negative inputs; amounts are unsigned like the contract's uint256.
	ErrNegative = errors.New("amount must not be negative")
	// ErrTooPrecise is returned when a decimal string has more than 18 significant fractional digits.
	ErrTooPrecise = errors.New("amount has more than 18 fractional digits")
	// ErrOverflow is returned when a value does not fit in 256 bits.
	ErrOverflow = errors.New("amount overflows uint256")
	// ErrNilAmount is returned when a nil *big.Int is converted.
	ErrNilAmount = errors.New("nil pointer passed as amount")
)

// Amount is an unsigned 256-bit integer holding a value scaled by 10^18 (wei).
// The zero value is 0. Amount is a value type and safe to copy.
type Amount struct {
	v uint256.Int
}

// Zero returns the zero amount.
func Zero() Amount {
	return Amount{}
}

// One returns 1.0, i.e. 10^18 wei.
func One() Amount {
	var a Amount
	a.v.Set(scale)
	return a
}

// FromUint64 returns an amount of u wei.
func FromUint64(u uint64) Amount {
	var a Amount
	a.v.SetUint64(u)
	return a
}

// FromUnits returns an amount of u whole units (u * 10^18 wei).
func FromUnits(u uint64) Amount {
	var a Amount
	a.v.Mul(uint256.NewInt(u), scale)
	return a
}

// FromWei converts a wei-denominated big integer.
func FromWei(b *big.Int) (Amount, error) {
	if b == nil {
		return Amount{}, ErrNilAmount
	}
	if b.Sign() < 0 {
		return Amount{}, ErrNegative
	}
	var a Amount
	if overflow := a.v.SetFromBig(b); overflow {
		return Amount{}, fmt.Errorf("%w: %s", ErrOverflow, b.String())
	}
	return a, nil
}

// ParseWei parses a base-10 integer string of wei.
func ParseWei(s string) (Amount, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return Amount{}, ErrEmpty
	}
	if strings.HasPrefix(s, "-") {
		return Amount{}, ErrNegative
	}
	s = strings.TrimPrefix(s, "+")
	if !isDigits(s) || s == "" {
		return Amount{}, fmt.Errorf("%w: %q", ErrSyntax, s)
	}
	return fromDigits(s)
}

// Parse parses a human-readable decimal string such as "1.5" into an Amount.
// The integer is assembled from the digit groups directly; no floating point
// value is involved at any stage.
func Parse(s string) (Amount, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return Amount{}, ErrEmpty
	}
	if strings.HasPrefix(s, "-") {
		return Amount{}, ErrNegative
	}
	s = strings.TrimPrefix(s, "+")

	whole, frac, _ := strings.Cut(s, ".")
	if whole == "" && frac == "" {
		return Amount{}, fmt.Errorf("%w: %q", ErrSyntax, s)
	}
	if !isDigits(whole) || !isDigits(frac) {
		return Amount{}, fmt.Errorf("%w: %q", ErrSyntax, s)
	}

	frac = strings.TrimRight(frac, "0")
	if len(frac) > Decimals {
		return Amount{}, fmt.Errorf("%w: %q", ErrTooPrecise, s)
	}

	return fromDigits(whole + frac + strings.Repeat("0", Decimals-len(frac)))
}

// MustParse is like Parse but panics on error. Intended for constants and tests.
func MustParse(s string) Amount {
	a, err := Parse(s)
	if err != nil {
		panic(err)
	}
	return a
}

// MustParseWei is like ParseWei but panics on error.
func MustParseWei(s string) Amount {
	a, err := ParseWei(s)
	if err != nil {
		panic(err)
	}
	return a
}

func fromDigits(digits string) (Amount, error) {
	digits = strings.TrimLeft(digits, "0")
	if digits == "" {
		return Amount{}, nil
	}
	if len(digits) > maxDigits {
		return Amount{}, fmt.Errorf("%w: %d digits", ErrOverflow, len(digits))
	}
	var a Amount
	if err := a.v.SetFromDecimal(digits); err != nil {
		return Amount{}, fmt.Errorf("%w: %v", ErrOverflow, err)
	}
	return a, nil
}

func isDigits(s string) bool {
	for i := 0; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return false
		}
	}
	return true
}

// String formats the amount as a decimal number of whole units, e.g. "1.8132".
// Trailing fractional zeros are trimmed; Parse(a.String()) == a for every a.
func (a Amount) String() string {
	digits := a.v.Dec()
	if len(digits) <= Decimals {
		digits = strings.Repeat("0", Decimals-len(digits)+1) + digits
	}
	cut := len(digits) - Decimals
	whole, frac := digits[:cut], strings.TrimRight(digits[cut:], "0")
	if frac == "" {
		return whole
	}
	return whole + "." + frac
}

// WeiString returns the base-10 integer representation of the underlying wei value.
func (a Amount) WeiString() string {
	return a.v.Dec()
}

// Wei returns the wei value as a newly allocated big integer.
func (a Amount) Wei() *big.Int {
	return a.v.ToBig()
}

// IsZero reports whether a is 0.
func (a Amount) IsZero() bool {
	return a.v.IsZero()
}

// Cmp compares a and b and returns -1, 0 or +1.
func (a Amount) Cmp(b Amount) int {
	return a.v.Cmp(&b.v)
}

// Equal reports whether a == b.
func (a Amount) Equal(b Amount) bool {
	return a.v.Eq(&b.v)
}

// Add returns a+b. ok is false if the sum overflows 256 bits.
func (a Amount) Add(b Amount) (sum Amount, ok bool) {
	_, overflow := sum.v.AddOverflow(&a.v, &b.v)
	return sum, !overflow
}

// Sub returns a-b. ok is false if b > a.
func (a Amount) Sub(b Amount) (diff Amount, ok bool) {
	_, underflow := diff.v.SubOverflow(&a.v, &b.v)
	return diff, !underflow
}

// Mul returns a*b on the raw wei values. ok is false on overflow.
func (a Amount) Mul(b Amount) (product Amount, ok bool) {
	_, overflow := product.v.MulOverflow(&a.v, &b.v)
	return product, !overflow
}

// Div returns floor(a/b) on the raw wei values. ok is false if b is zero.
func (a Amount) Div(b Amount) (quo Amount, ok bool) {
	if b.v.IsZero() {
		return Amount{}, false
	}
	quo.v.Div(&a.v, &b.v)
	return quo, true
}

// Sqrt returns the floor of the square root of the raw wei value.
func (a Amount) Sqrt() Amount {
	var r Amount
	r.v.Sqrt(&a.v)
	return r
}

// MulDiv returns floor(x*y/d) computed with a 512-bit intermediate product,
// matching the contract's truncating integer division. ok is false when d is
// zero or the quotient does not fit in 256 bits.
func MulDiv(x, y, d Amount) (q Amount, ok bool) {
	if d.v.IsZero() {
		return Amount{}, false
	}
	if _, overflow := q.v.MulDivOverflow(&x.v, &y.v, &d.v); overflow {
		return Amount{}, false
	}
	return q, true
}

// Min returns the smaller of a and b.
func Min(a, b Amount) Amount {
	if a.Cmp(b) <= 0 {
		return a
	}
	return b
}

// MarshalText encodes the amount as its wei integer string.
func (a Amount) MarshalText() ([]byte, error) {
	return []byte(a.v.Dec()), nil
}

// UnmarshalText decodes a wei integer string.
func (a *Amount) UnmarshalText(text []byte) error {
	parsed, err := ParseWei(string(text))
	if err != nil {
		return err
	}
	*a = parsed
	return nil
}
