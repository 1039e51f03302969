// Package oracle keeps an independent mirror of the pool and of one wallet,
// advanced by the same formulas the quoting engine uses, so that observed
// chain state can be checked against a prediction after every step of a
// scenario.
//
// An Oracle belongs to a single scenario. It panics on misuse: calling it
// before Initialize, initializing it twice, spending more than a balance
// holds, swapping against an empty pool, or entering it from two goroutines
// at once. These are bugs in the driving code, never runtime conditions.
package oracle

import (
	"errors"
	"fmt"
	"sync/atomic"

	"github.com/defistate/simplest-amm-client-go/differ"
	"github.com/defistate/simplest-amm-client-go/engine"
	"github.com/defistate/simplest-amm-client-go/fixedpoint"
	"github.com/defistate/simplest-amm-client-go/patcher"
	simplestamm "github.com/defistate/simplest-amm-client-go/protocols/simplestamm"
	calculator "github.com/defistate/simplest-amm-client-go/protocols/simplestamm/calculator"
)

var (
	ErrNotInitialized      = errors.New("oracle is not initialized")
	ErrAlreadyInitialized  = errors.New("oracle is already initialized")
	ErrInsufficientBalance = errors.New("wallet balance too low")
	ErrEmptyPool           = errors.New("pool has no liquidity")
	ErrConcurrentUse       = errors.New("oracle entered from two goroutines")
	ErrRejectedOperation   = errors.New("operation would revert on chain")
)

// MisuseError is the panic value raised by an Oracle.
type MisuseError struct {
	Op  string
	Err error
	Msg string
}

func (e *MisuseError) Error() string {
	if e.Msg == "" {
		return fmt.Sprintf("oracle: %s: %v", e.Op, e.Err)
	}
	return fmt.Sprintf("oracle: %s: %v: %s", e.Op, e.Err, e.Msg)
}

func (e *MisuseError) Unwrap() error {
	return e.Err
}

// State is the lifecycle stage of an Oracle.
type State uint8

const (
	StateUninitialized State = iota
	StateSeeded
	StateActive
)

func (s State) String() string {
	switch s {
	case StateUninitialized:
		return "uninitialized"
	case StateSeeded:
		return "seeded"
	case StateActive:
		return "active"
	default:
		return fmt.Sprintf("state(%d)", uint8(s))
	}
}

// Oracle mirrors one pool and one wallet. The zero value is not usable; call New.
type Oracle struct {
	busy   atomic.Bool
	state  State
	pool   simplestamm.Pool
	wallet engine.Wallet
}

// New returns an uninitialized oracle.
func New() *Oracle {
	return &Oracle{}
}

// enter marks the oracle as in use for the duration of op. The returned
// function must be deferred.
func (o *Oracle) enter(op string) func() {
	if !o.busy.CompareAndSwap(false, true) {
		panic(&MisuseError{Op: op, Err: ErrConcurrentUse})
	}
	return func() { o.busy.Store(false) }
}

func (o *Oracle) requireInitialized(op string) {
	if o.state == StateUninitialized {
		panic(&MisuseError{Op: op, Err: ErrNotInitialized})
	}
}

func fail(op string, err error, format string, args ...any) {
	panic(&MisuseError{Op: op, Err: err, Msg: fmt.Sprintf(format, args...)})
}

func debit(op, field string, balance fixedpoint.Amount, amount fixedpoint.Amount) fixedpoint.Amount {
	rest, ok := balance.Sub(amount)
	if !ok {
		fail(op, ErrInsufficientBalance, "%s balance %s, spending %s", field, balance, amount)
	}
	return rest
}

func credit(op, field string, balance fixedpoint.Amount, amount fixedpoint.Amount) fixedpoint.Amount {
	sum, ok := balance.Add(amount)
	if !ok {
		fail(op, ErrRejectedOperation, "%s balance overflows", field)
	}
	return sum
}

// Initialize seeds the wallet with balances read once from the chain and
// sets the mirrored pool to empty.
func (o *Oracle) Initialize(wallet engine.Wallet) {
	const op = "Initialize"
	defer o.enter(op)()
	if o.state != StateUninitialized {
		panic(&MisuseError{Op: op, Err: ErrAlreadyInitialized, Msg: o.state.String()})
	}
	o.wallet = wallet
	o.pool = simplestamm.Pool{}
	o.state = StateSeeded
}

// ApplyAddLiquidity mirrors addLiquidity by the account: the deposit and the
// transaction fee leave the wallet, the deposit enters the reserves and the
// minted LP tokens are credited. It returns the LP tokens minted.
func (o *Oracle) ApplyAddLiquidity(amountETH, amountToken, feeCost fixedpoint.Amount) fixedpoint.Amount {
	const op = "ApplyAddLiquidity"
	defer o.enter(op)()
	o.requireInitialized(op)

	minted, next, err := calculator.SimulateAddLiquidity(o.pool, amountETH, amountToken)
	if err != nil {
		fail(op, ErrRejectedOperation, "%v", err)
	}
	spent, ok := amountETH.Add(feeCost)
	if !ok {
		fail(op, ErrInsufficientBalance, "eth spend overflows")
	}

	w := o.wallet
	w.ETH = debit(op, "eth", w.ETH, spent)
	w.Token = debit(op, "token", w.Token, amountToken)
	w.LP = credit(op, "lp", w.LP, minted)

	o.wallet, o.pool, o.state = w, next, StateActive
	return minted
}

// ApplySwap mirrors a swap by the account. The output is computed with
// QuoteSwapOutput against the mirrored reserves; the fee is always paid in
// ETH whichever asset is sold. It returns the amount received.
func (o *Oracle) ApplySwap(assetIn simplestamm.Asset, amountIn, feeCost fixedpoint.Amount) fixedpoint.Amount {
	const op = "ApplySwap"
	defer o.enter(op)()
	o.requireInitialized(op)
	o.requireLiquidity(op)

	out, next, err := calculator.SimulateSwap(o.pool, assetIn, amountIn)
	if err != nil {
		fail(op, ErrRejectedOperation, "%v", err)
	}

	w := o.wallet
	if assetIn == simplestamm.AssetETH {
		w.ETH = debit(op, "eth", w.ETH, amountIn)
		w.Token = credit(op, "token", w.Token, out)
	} else {
		w.Token = debit(op, "token", w.Token, amountIn)
		w.ETH = credit(op, "eth", w.ETH, out)
	}
	w.ETH = debit(op, "eth", w.ETH, feeCost)

	o.wallet, o.pool = w, next
	return out
}

// ApplyExternalSwap mirrors a third party's trade: only the reserves move,
// the account's balances do not.
func (o *Oracle) ApplyExternalSwap(assetIn simplestamm.Asset, amountIn, amountOut fixedpoint.Amount) {
	const op = "ApplyExternalSwap"
	defer o.enter(op)()
	o.requireInitialized(op)
	o.requireLiquidity(op)

	reserveIn, reserveOut := o.pool.Reserves(assetIn)
	newIn := credit(op, "reserve "+assetIn.String(), reserveIn, amountIn)
	newOut, ok := reserveOut.Sub(amountOut)
	if !ok || newOut.IsZero() {
		fail(op, ErrRejectedOperation, "output %s drains reserve %s", amountOut, reserveOut)
	}
	o.pool = o.pool.WithReserves(assetIn, newIn, newOut)
}

// ApplyExternalChange applies a pool diff observed on chain that was not made
// by the account, such as another provider's deposit. The diff must have been
// computed against the mirrored pool.
func (o *Oracle) ApplyExternalChange(diff simplestamm.PoolDiff) {
	const op = "ApplyExternalChange"
	defer o.enter(op)()
	o.requireInitialized(op)

	next, err := simplestamm.Patcher(o.pool, diff)
	if err != nil {
		fail(op, ErrRejectedOperation, "%v", err)
	}
	if err := next.Validate(); err != nil {
		fail(op, ErrRejectedOperation, "%v", err)
	}
	o.pool = next
	if !next.IsEmpty() {
		o.state = StateActive
	}
}

// Reconcile adopts the chain state described by diff, which must have been
// computed by comparing this oracle's Expected observation with the chain.
// It follows third-party activity the oracle could not predict: trades
// against the pool or transfers into or out of the wallet.
func (o *Oracle) Reconcile(diff *differ.StateDiff) {
	const op = "Reconcile"
	defer o.enter(op)()
	o.requireInitialized(op)
	if diff == nil {
		fail(op, ErrRejectedOperation, "nil diff")
	}

	prev := &engine.Observation{Block: diff.Block, Pool: o.pool, Wallet: o.wallet}
	next, err := patcher.Patch(prev, diff)
	if err != nil {
		fail(op, ErrRejectedOperation, "%v", err)
	}
	if err := next.Pool.Validate(); err != nil {
		fail(op, ErrRejectedOperation, "%v", err)
	}
	o.pool = next.Pool
	o.wallet = next.Wallet
	if !next.Pool.IsEmpty() {
		o.state = StateActive
	}
}

// ApplyRemoveLiquidity mirrors removeLiquidity by the account: lp tokens are
// burned, the proportional share of both reserves is paid out and the fee
// is deducted from ETH.
func (o *Oracle) ApplyRemoveLiquidity(lp, feeCost fixedpoint.Amount) calculator.RedemptionQuote {
	const op = "ApplyRemoveLiquidity"
	defer o.enter(op)()
	o.requireInitialized(op)

	w := o.wallet
	w.LP = debit(op, "lp", w.LP, lp)

	quote, next, err := calculator.SimulateRemoveLiquidity(o.pool, lp)
	if err != nil {
		fail(op, ErrRejectedOperation, "%v", err)
	}
	w.ETH = credit(op, "eth", w.ETH, quote.AmountETH)
	w.Token = credit(op, "token", w.Token, quote.AmountToken)
	w.ETH = debit(op, "eth", w.ETH, feeCost)

	o.wallet, o.pool = w, next
	return quote
}

func (o *Oracle) requireLiquidity(op string) {
	if o.pool.ReserveETH.IsZero() || o.pool.ReserveToken.IsZero() {
		panic(&MisuseError{Op: op, Err: ErrEmptyPool})
	}
}

// State returns the lifecycle stage.
func (o *Oracle) State() State {
	defer o.enter("State")()
	return o.state
}

// Pool returns a copy of the mirrored pool.
func (o *Oracle) Pool() simplestamm.Pool {
	defer o.enter("Pool")()
	o.requireInitialized("Pool")
	return o.pool
}

// Wallet returns a copy of the mirrored wallet.
func (o *Oracle) Wallet() engine.Wallet {
	defer o.enter("Wallet")()
	o.requireInitialized("Wallet")
	return o.wallet
}

// Expected returns the predicted observation at block, ready to be compared
// with what the chain reports for that block.
func (o *Oracle) Expected(block engine.BlockSummary) *engine.Observation {
	defer o.enter("Expected")()
	o.requireInitialized("Expected")
	return &engine.Observation{
		Block:  block,
		Pool:   o.pool,
		Wallet: o.wallet,
	}
}
