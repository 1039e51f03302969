package simplestamm

import "github.com/defistate/simplest-amm-client-go/fixedpoint"

// Change records the old and new value of a single pool field.
type Change struct {
	Old fixedpoint.Amount `json:"old"`
	New fixedpoint.Amount `json:"new"`
}

// PoolDiff lists the fields that changed between two pool states. A nil field is unchanged.
type PoolDiff struct {
	ReserveETH   *Change `json:"reserveEth,omitempty"`
	ReserveToken *Change `json:"reserveToken,omitempty"`
	TotalLP      *Change `json:"totalLp,omitempty"`
}

// IsEmpty returns true if the diff contains no changes.
func (d PoolDiff) IsEmpty() bool {
	return d.ReserveETH == nil && d.ReserveToken == nil && d.TotalLP == nil
}

// Differ calculates the field-level difference between two states of the pool.
func Differ(old, new Pool) PoolDiff {
	return PoolDiff{
		ReserveETH:   diffField(old.ReserveETH, new.ReserveETH),
		ReserveToken: diffField(old.ReserveToken, new.ReserveToken),
		TotalLP:      diffField(old.TotalLP, new.TotalLP),
	}
}

func diffField(old, new fixedpoint.Amount) *Change {
	if old.Equal(new) {
		return nil
	}
	return &Change{Old: old, New: new}
}
