package ethereum

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"time"

	retry "github.com/avast/retry-go"
	"github.com/defistate/simplest-amm-client-go/chains"
	"github.com/defistate/simplest-amm-client-go/engine"
	"github.com/defistate/simplest-amm-client-go/fixedpoint"
	simplestamm "github.com/defistate/simplest-amm-client-go/protocols/simplestamm"
	calculator "github.com/defistate/simplest-amm-client-go/protocols/simplestamm/calculator"
	goethereum "github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/ethclient"
	"golang.org/x/sync/errgroup"
)

const (
	defaultRetryAttempts = 3
	defaultRetryDelay    = 200 * time.Millisecond
)

var (
	// ErrQuoteDivergence is returned when the local quote differs from the contract's.
	ErrQuoteDivergence = errors.New("local quote diverges from contract")
	// ErrUnexpectedOutput is returned when a call returns data of an unexpected shape.
	ErrUnexpectedOutput = errors.New("unexpected contract output")
)

// Reader reads the pool contract and one account's balances.
// It is safe for concurrent use.
type Reader struct {
	backend chains.Backend
	logger  chains.Logger
	pool    common.Address
	token   common.Address
	chainID uint64

	retryAttempts uint
	retryDelay    time.Duration
}

// Option configures the Reader.
// The interface method is unexported to prevent external modification after construction.
type Option interface {
	apply(*Reader)
}

type funcOption func(*Reader)

func (f funcOption) apply(r *Reader) {
	f(r)
}

func newOption(f func(*Reader)) Option {
	return funcOption(f)
}

// WithRetry sets how many times a failed RPC call is attempted and the base
// delay between attempts. Delays back off exponentially.
func WithRetry(attempts uint, delay time.Duration) Option {
	return newOption(func(r *Reader) {
		r.retryAttempts = attempts
		r.retryDelay = delay
	})
}

// WithChainID records the chain ID stamped on observations.
func WithChainID(id uint64) Option {
	return newOption(func(r *Reader) {
		r.chainID = id
	})
}

// NewReader creates a Reader for the pool at pool whose token lives at token.
func NewReader(backend chains.Backend, pool, token common.Address, logger chains.Logger, opts ...Option) (*Reader, error) {
	if backend == nil {
		return nil, errors.New("reader: backend cannot be nil")
	}
	if logger == nil {
		return nil, errors.New("reader: logger cannot be nil")
	}
	if pool == (common.Address{}) {
		return nil, errors.New("reader: pool address is required")
	}
	if token == (common.Address{}) {
		return nil, errors.New("reader: token address is required")
	}

	r := &Reader{
		backend:       backend,
		logger:        logger,
		pool:          pool,
		token:         token,
		retryAttempts: defaultRetryAttempts,
		retryDelay:    defaultRetryDelay,
	}
	for _, opt := range opts {
		opt.apply(r)
	}
	if r.retryAttempts == 0 {
		r.retryAttempts = 1
	}
	return r, nil
}

// DialReader connects to url and returns a Reader on top of the connection along
// with the underlying client, which the caller must close.
func DialReader(ctx context.Context, url string, pool, token common.Address, logger chains.Logger, opts ...Option) (*Reader, *ethclient.Client, error) {
	client, err := ethclient.DialContext(ctx, url)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to dial rpc url: %w", err)
	}
	chainID, err := client.ChainID(ctx)
	if err != nil {
		client.Close()
		return nil, nil, fmt.Errorf("failed to read chain id: %w", err)
	}

	opts = append([]Option{WithChainID(chainID.Uint64())}, opts...)
	r, err := NewReader(client, pool, token, logger, opts...)
	if err != nil {
		client.Close()
		return nil, nil, err
	}
	logger.Info("Reader connected", "url", url, "chain_id", chainID, "pool", pool.Hex())
	return r, client, nil
}

// PoolAddress returns the address of the pool contract.
func (r *Reader) PoolAddress() common.Address {
	return r.pool
}

// ChainID returns the chain ID stamped on observations.
func (r *Reader) ChainID() uint64 {
	return r.chainID
}

// TokenAddress returns the address of the pool's ERC-20 token.
func (r *Reader) TokenAddress() common.Address {
	return r.token
}

// withRetry runs fn until it succeeds, the attempts are exhausted or ctx ends.
func (r *Reader) withRetry(ctx context.Context, what string, fn func() error) error {
	return retry.Do(fn,
		retry.Context(ctx),
		retry.Attempts(r.retryAttempts),
		retry.Delay(r.retryDelay),
		retry.DelayType(retry.BackOffDelay),
		retry.LastErrorOnly(true),
		retry.RetryIf(func(err error) bool {
			return !errors.Is(err, context.Canceled) && !errors.Is(err, context.DeadlineExceeded)
		}),
		retry.OnRetry(func(n uint, err error) {
			r.logger.Warn("RPC call failed, retrying", "call", what, "attempt", n+1, "err", err)
		}),
	)
}

// call invokes a view method on contract at block and returns its unpacked outputs.
func (r *Reader) call(ctx context.Context, contract common.Address, parsed abi.ABI, block *big.Int, method string, args ...any) ([]any, error) {
	data, err := parsed.Pack(method, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to pack %s: %w", method, err)
	}

	var raw []byte
	err = r.withRetry(ctx, method, func() error {
		var callErr error
		raw, callErr = r.backend.CallContract(ctx, goethereum.CallMsg{To: &contract, Data: data}, block)
		return callErr
	})
	if err != nil {
		return nil, fmt.Errorf("%s call failed: %w", method, err)
	}

	out, err := parsed.Unpack(method, raw)
	if err != nil {
		return nil, fmt.Errorf("failed to unpack %s: %w", method, err)
	}
	return out, nil
}

// callAmounts calls method and converts each uint256 output to an Amount.
func (r *Reader) callAmounts(ctx context.Context, contract common.Address, parsed abi.ABI, block *big.Int, method string, args ...any) ([]fixedpoint.Amount, error) {
	out, err := r.call(ctx, contract, parsed, block, method, args...)
	if err != nil {
		return nil, err
	}
	amounts := make([]fixedpoint.Amount, len(out))
	for i, v := range out {
		n, ok := v.(*big.Int)
		if !ok {
			return nil, fmt.Errorf("%w: %s output %d is %T", ErrUnexpectedOutput, method, i, v)
		}
		if amounts[i], err = fixedpoint.FromWei(n); err != nil {
			return nil, fmt.Errorf("%s output %d: %w", method, i, err)
		}
	}
	return amounts, nil
}

func (r *Reader) callAmount(ctx context.Context, contract common.Address, parsed abi.ABI, block *big.Int, method string, args ...any) (fixedpoint.Amount, error) {
	amounts, err := r.callAmounts(ctx, contract, parsed, block, method, args...)
	if err != nil {
		return fixedpoint.Amount{}, err
	}
	if len(amounts) != 1 {
		return fixedpoint.Amount{}, fmt.Errorf("%w: %s returned %d values", ErrUnexpectedOutput, method, len(amounts))
	}
	return amounts[0], nil
}

// Pool reads reserves and LP supply at block. A nil block reads the latest state.
func (r *Reader) Pool(ctx context.Context, block *big.Int) (simplestamm.Pool, error) {
	var pool simplestamm.Pool
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() (err error) {
		pool.ReserveETH, err = r.callAmount(gctx, r.pool, poolABI, block, "reserveETH")
		return err
	})
	g.Go(func() (err error) {
		pool.ReserveToken, err = r.callAmount(gctx, r.pool, poolABI, block, "reserveSimplest")
		return err
	})
	g.Go(func() (err error) {
		pool.TotalLP, err = r.callAmount(gctx, r.pool, poolABI, block, "totalLPTokens")
		return err
	})
	if err := g.Wait(); err != nil {
		return simplestamm.Pool{}, err
	}
	return pool, nil
}

// Wallet reads the ETH, token and LP balances of account at block.
func (r *Reader) Wallet(ctx context.Context, account common.Address, block *big.Int) (engine.Wallet, error) {
	var w engine.Wallet
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var balance *big.Int
		err := r.withRetry(gctx, "eth_getBalance", func() error {
			var callErr error
			balance, callErr = r.backend.BalanceAt(gctx, account, block)
			return callErr
		})
		if err != nil {
			return fmt.Errorf("eth balance: %w", err)
		}
		w.ETH, err = fixedpoint.FromWei(balance)
		return err
	})
	g.Go(func() (err error) {
		w.Token, err = r.callAmount(gctx, r.token, erc20ABI, block, "balanceOf", account)
		return err
	})
	g.Go(func() (err error) {
		w.LP, err = r.callAmount(gctx, r.pool, poolABI, block, "lpTokens", account)
		return err
	})
	if err := g.Wait(); err != nil {
		return engine.Wallet{}, err
	}
	return w, nil
}

// Observe reads the pool and account pinned to header's block, so both
// halves of the observation describe the same state.
func (r *Reader) Observe(ctx context.Context, account common.Address, header *types.Header) (*engine.Observation, error) {
	receivedAt := time.Now()
	if header == nil {
		var err error
		if err = r.withRetry(ctx, "eth_getBlockByNumber", func() error {
			var callErr error
			header, callErr = r.backend.HeaderByNumber(ctx, nil)
			return callErr
		}); err != nil {
			return nil, fmt.Errorf("failed to read latest header: %w", err)
		}
	}

	var (
		pool   simplestamm.Pool
		wallet engine.Wallet
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() (err error) {
		pool, err = r.Pool(gctx, header.Number)
		return err
	})
	g.Go(func() (err error) {
		wallet, err = r.Wallet(gctx, account, header.Number)
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	return &engine.Observation{
		ChainID: r.chainID,
		Account: account,
		Block:   engine.SummarizeHeader(header, receivedAt),
		Pool:    pool,
		Wallet:  wallet,
	}, nil
}

// tokenInAddress maps an asset to the tokenIn argument of getSwapOutput.
// ETH is addressed as the zero address.
func (r *Reader) tokenInAddress(asset simplestamm.Asset) common.Address {
	if asset == simplestamm.AssetETH {
		return common.Address{}
	}
	return r.token
}

// SwapOutput returns the contract's getSwapOutput quote.
func (r *Reader) SwapOutput(ctx context.Context, assetIn simplestamm.Asset, amountIn fixedpoint.Amount, block *big.Int) (fixedpoint.Amount, error) {
	return r.callAmount(ctx, r.pool, poolABI, block, "getSwapOutput", r.tokenInAddress(assetIn), amountIn.Wei())
}

// LiquidityOutput returns the contract's getLiquidityOutput quote.
func (r *Reader) LiquidityOutput(ctx context.Context, amountToken, amountETH fixedpoint.Amount, block *big.Int) (fixedpoint.Amount, error) {
	return r.callAmount(ctx, r.pool, poolABI, block, "getLiquidityOutput", amountToken.Wei(), amountETH.Wei())
}

// RemoveLiquidityOutput returns the contract's getRemoveLiquidityOutput quote.
func (r *Reader) RemoveLiquidityOutput(ctx context.Context, lp fixedpoint.Amount, block *big.Int) (calculator.RedemptionQuote, error) {
	amounts, err := r.callAmounts(ctx, r.pool, poolABI, block, "getRemoveLiquidityOutput", lp.Wei())
	if err != nil {
		return calculator.RedemptionQuote{}, err
	}
	if len(amounts) != 2 {
		return calculator.RedemptionQuote{}, fmt.Errorf("%w: getRemoveLiquidityOutput returned %d values", ErrUnexpectedOutput, len(amounts))
	}
	return calculator.RedemptionQuote{AmountToken: amounts[0], AmountETH: amounts[1]}, nil
}

// CrossCheckSwap quotes a swap locally against the pool read at block and
// compares the result with the contract's own quote at the same block.
func (r *Reader) CrossCheckSwap(ctx context.Context, assetIn simplestamm.Asset, amountIn fixedpoint.Amount, block *big.Int) (fixedpoint.Amount, error) {
	pool, err := r.Pool(ctx, block)
	if err != nil {
		return fixedpoint.Amount{}, err
	}
	reserveIn, reserveOut := pool.Reserves(assetIn)
	local := calculator.QuoteSwapOutput(amountIn, reserveIn, reserveOut)

	remote, err := r.SwapOutput(ctx, assetIn, amountIn, block)
	if err != nil {
		return fixedpoint.Amount{}, err
	}
	if !local.Equal(remote) {
		r.logger.Error("Swap quote diverges from contract",
			"asset_in", assetIn, "amount_in", amountIn.WeiString(),
			"local", local.WeiString(), "contract", remote.WeiString())
		return local, fmt.Errorf("%w: local %s, contract %s", ErrQuoteDivergence, local.WeiString(), remote.WeiString())
	}
	return local, nil
}
