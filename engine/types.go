package engine

import (
	"math/big"
	"time"

	"github.com/defistate/simplest-amm-client-go/fixedpoint"
	simplestamm "github.com/defistate/simplest-amm-client-go/protocols/simplestamm"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
)

// Wallet holds the balances of the account under test.
type Wallet struct {
	ETH   fixedpoint.Amount `json:"eth"`
	Token fixedpoint.Amount `json:"token"`
	LP    fixedpoint.Amount `json:"lp"`
}

// BlockSummary contains only the essential block information for clients.
type BlockSummary struct {
	Number     *big.Int    `json:"number"`
	Hash       common.Hash `json:"hash"`
	ParentHash common.Hash `json:"parentHash"`
	Timestamp  uint64      `json:"timestamp"`
	ReceivedAt int64       `json:"receivedAt"` // The Unix nanosecond timestamp when the head was received.
	GasUsed    uint64      `json:"gasUsed"`
	GasLimit   uint64      `json:"gasLimit"`
	StateRoot  common.Hash `json:"stateRoot"`
}

// SummarizeHeader extracts a BlockSummary from a block header.
func SummarizeHeader(h *types.Header, receivedAt time.Time) BlockSummary {
	var number *big.Int
	if h.Number != nil {
		number = new(big.Int).Set(h.Number)
	}
	return BlockSummary{
		Number:     number,
		Hash:       h.Hash(),
		ParentHash: h.ParentHash,
		Timestamp:  h.Time,
		ReceivedAt: receivedAt.UnixNano(),
		GasUsed:    h.GasUsed,
		GasLimit:   h.GasLimit,
		StateRoot:  h.Root,
	}
}

// Observation is one consistent read of the pool and the account, pinned to a block.
type Observation struct {
	ChainID uint64           `json:"chainId"`
	Account common.Address   `json:"account"`
	Block   BlockSummary     `json:"block"`
	Pool    simplestamm.Pool `json:"pool"`
	Wallet  Wallet           `json:"wallet"`
}

// BlockNumber returns the observed block number, or 0 when it is unknown.
func (o *Observation) BlockNumber() uint64 {
	if o.Block.Number == nil || !o.Block.Number.IsUint64() {
		return 0
	}
	return o.Block.Number.Uint64()
}
