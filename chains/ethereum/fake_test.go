package ethereum

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"sync"
	"sync/atomic"

	"github.com/defistate/simplest-amm-client-go/fixedpoint"
	simplestamm "github.com/defistate/simplest-amm-client-go/protocols/simplestamm"
	calculator "github.com/defistate/simplest-amm-client-go/protocols/simplestamm/calculator"
	goethereum "github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
)

var (
	poolAddr    = common.HexToAddress("0x00000000000000000000000000000000000a11ce")
	tokenAddr   = common.HexToAddress("0x0000000000000000000000000000000000005e57")
	accountAddr = common.HexToAddress("0x000000000000000000000000000000000000b0b0")
)

// fakeContract answers calls to the pool and token contracts from in-memory state.
type fakeContract struct {
	mu      sync.Mutex
	pool    simplestamm.Pool
	eth     map[common.Address]*big.Int
	tokens  map[common.Address]*big.Int
	lp      map[common.Address]*big.Int
	skew    int64 // added to getSwapOutput to simulate a divergent contract
	blocks  []*big.Int
	failFor atomic.Int32 // number of upcoming calls that fail with a transient error
	calls   atomic.Int32
}

var errTransient = errors.New("connection reset by peer")

func newFakeContract() *fakeContract {
	return &fakeContract{
		pool: simplestamm.Pool{
			ReserveETH:   fixedpoint.FromUnits(10),
			ReserveToken: fixedpoint.FromUnits(20),
			TotalLP:      fixedpoint.MustParseWei("14142135623730950488"),
		},
		eth:    map[common.Address]*big.Int{accountAddr: fixedpoint.MustParse("89.999").Wei()},
		tokens: map[common.Address]*big.Int{accountAddr: fixedpoint.FromUnits(980).Wei()},
		lp:     map[common.Address]*big.Int{accountAddr: fixedpoint.MustParseWei("14142135623730950488").Wei()},
	}
}

func (f *fakeContract) handle(to common.Address, data []byte, block *big.Int) ([]byte, error) {
	f.calls.Add(1)
	if f.failFor.Load() > 0 {
		f.failFor.Add(-1)
		return nil, errTransient
	}
	if len(data) < 4 {
		return nil, errors.New("short calldata")
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	f.blocks = append(f.blocks, block)

	switch to {
	case tokenAddr:
		method, err := erc20ABI.MethodById(data[:4])
		if err != nil {
			return nil, err
		}
		args, err := method.Inputs.Unpack(data[4:])
		if err != nil {
			return nil, err
		}
		return method.Outputs.Pack(orZero(f.tokens[args[0].(common.Address)]))

	case poolAddr:
		method, err := poolABI.MethodById(data[:4])
		if err != nil {
			return nil, err
		}
		args, err := method.Inputs.Unpack(data[4:])
		if err != nil {
			return nil, err
		}
		switch method.Name {
		case "reserveETH":
			return method.Outputs.Pack(f.pool.ReserveETH.Wei())
		case "reserveSimplest":
			return method.Outputs.Pack(f.pool.ReserveToken.Wei())
		case "totalLPTokens":
			return method.Outputs.Pack(f.pool.TotalLP.Wei())
		case "lpTokens":
			return method.Outputs.Pack(orZero(f.lp[args[0].(common.Address)]))
		case "getSwapOutput":
			asset := simplestamm.AssetToken
			if args[0].(common.Address) == (common.Address{}) {
				asset = simplestamm.AssetETH
			}
			amountIn, err := fixedpoint.FromWei(args[1].(*big.Int))
			if err != nil {
				return nil, err
			}
			reserveIn, reserveOut := f.pool.Reserves(asset)
			out := calculator.QuoteSwapOutput(amountIn, reserveIn, reserveOut).Wei()
			return method.Outputs.Pack(out.Add(out, big.NewInt(f.skew)))
		case "getLiquidityOutput":
			amountToken, _ := fixedpoint.FromWei(args[0].(*big.Int))
			amountETH, _ := fixedpoint.FromWei(args[1].(*big.Int))
			return method.Outputs.Pack(calculator.LiquidityOutput(f.pool, amountToken, amountETH).Wei())
		case "getRemoveLiquidityOutput":
			lp, _ := fixedpoint.FromWei(args[0].(*big.Int))
			q := calculator.RemoveLiquidityOutput(f.pool, lp)
			return method.Outputs.Pack(q.AmountToken.Wei(), q.AmountETH.Wei())
		}
		return nil, fmt.Errorf("unhandled method %s", method.Name)
	}
	return nil, fmt.Errorf("no contract at %s", to.Hex())
}

func (f *fakeContract) balance(account common.Address) (*big.Int, error) {
	f.calls.Add(1)
	if f.failFor.Load() > 0 {
		f.failFor.Add(-1)
		return nil, errTransient
	}
	return new(big.Int).Set(orZero(f.eth[account])), nil
}

func orZero(v *big.Int) *big.Int {
	if v == nil {
		return new(big.Int)
	}
	return v
}

// fakeBackend implements chains.Backend on top of a fakeContract.
type fakeBackend struct {
	contract *fakeContract
	head     *types.Header
}

func (b *fakeBackend) CallContract(ctx context.Context, call goethereum.CallMsg, blockNumber *big.Int) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return b.contract.handle(*call.To, call.Data, blockNumber)
}

func (b *fakeBackend) BalanceAt(ctx context.Context, account common.Address, blockNumber *big.Int) (*big.Int, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return b.contract.balance(account)
}

func (b *fakeBackend) HeaderByNumber(ctx context.Context, number *big.Int) (*types.Header, error) {
	return b.head, nil
}

func (b *fakeBackend) ChainID(ctx context.Context) (*big.Int, error) {
	return big.NewInt(31337), nil
}
