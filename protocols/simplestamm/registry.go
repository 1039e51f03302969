package simplestamm

import (
	"errors"
	"fmt"
	"strings"

	"github.com/defistate/simplest-amm-client-go/fixedpoint"
)

var (
	// ErrUnknownAsset is returned when an asset name is neither ETH nor the pool token.
	ErrUnknownAsset = errors.New("unknown asset")
	// ErrInconsistentPool is returned when LP supply and reserves disagree about emptiness.
	ErrInconsistentPool = errors.New("inconsistent pool state")
)

// Asset selects one side of the ETH / token pool.
type Asset uint8

const (
	AssetETH Asset = iota
	AssetToken
)

func (a Asset) String() string {
	switch a {
	case AssetETH:
		return "eth"
	case AssetToken:
		return "token"
	default:
		return fmt.Sprintf("asset(%d)", uint8(a))
	}
}

// MarshalText encodes the asset by name.
func (a Asset) MarshalText() ([]byte, error) {
	if a != AssetETH && a != AssetToken {
		return nil, fmt.Errorf("%w: %d", ErrUnknownAsset, uint8(a))
	}
	return []byte(a.String()), nil
}

// UnmarshalText decodes an asset name accepted by ParseAsset.
func (a *Asset) UnmarshalText(text []byte) error {
	parsed, err := ParseAsset(string(text))
	if err != nil {
		return err
	}
	*a = parsed
	return nil
}

// Other returns the opposing asset of the pair.
func (a Asset) Other() Asset {
	if a == AssetETH {
		return AssetToken
	}
	return AssetETH
}

// ParseAsset maps "eth" and "token" (or "simplest") to an Asset.
func ParseAsset(s string) (Asset, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "eth":
		return AssetETH, nil
	case "token", "simplest":
		return AssetToken, nil
	}
	return 0, fmt.Errorf("%w: %q", ErrUnknownAsset, s)
}

// Pool mirrors the contract's reserveETH(), reserveSimplest() and totalLPTokens().
type Pool struct {
	ReserveETH   fixedpoint.Amount `json:"reserveEth"`
	ReserveToken fixedpoint.Amount `json:"reserveToken"`
	TotalLP      fixedpoint.Amount `json:"totalLp"`
}

// Reserve returns the reserve held for asset a.
func (p Pool) Reserve(a Asset) fixedpoint.Amount {
	if a == AssetETH {
		return p.ReserveETH
	}
	return p.ReserveToken
}

// Reserves returns the reserves ordered for a trade that sells assetIn.
func (p Pool) Reserves(assetIn Asset) (reserveIn, reserveOut fixedpoint.Amount) {
	return p.Reserve(assetIn), p.Reserve(assetIn.Other())
}

// WithReserves returns a copy of p whose reserves are set for a trade that sold assetIn.
func (p Pool) WithReserves(assetIn Asset, reserveIn, reserveOut fixedpoint.Amount) Pool {
	if assetIn == AssetETH {
		p.ReserveETH, p.ReserveToken = reserveIn, reserveOut
	} else {
		p.ReserveToken, p.ReserveETH = reserveIn, reserveOut
	}
	return p
}

// IsEmpty reports whether the pool holds nothing and has no LP supply.
func (p Pool) IsEmpty() bool {
	return p.ReserveETH.IsZero() && p.ReserveToken.IsZero() && p.TotalLP.IsZero()
}

// Validate checks that the LP supply is zero exactly when both reserves are zero.
func (p Pool) Validate() error {
	reservesEmpty := p.ReserveETH.IsZero() && p.ReserveToken.IsZero()
	if p.TotalLP.IsZero() != reservesEmpty {
		return fmt.Errorf("%w: reserveEth=%s reserveToken=%s totalLp=%s",
			ErrInconsistentPool, p.ReserveETH, p.ReserveToken, p.TotalLP)
	}
	return nil
}
