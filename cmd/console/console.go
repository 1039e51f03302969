package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"math/big"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/defistate/simplest-amm-client-go/chains/ethereum"
	"github.com/defistate/simplest-amm-client-go/fixedpoint"
	simplestamm "github.com/defistate/simplest-amm-client-go/protocols/simplestamm"
	calculator "github.com/defistate/simplest-amm-client-go/protocols/simplestamm/calculator"
	"github.com/defistate/simplest-amm-client-go/slippage"
)

// console handles user input and display.
type console struct {
	in           *bufio.Reader
	out          io.Writer
	state        *SafeState
	toleranceBps uint16
}

func newConsole(in io.Reader, out io.Writer, state *SafeState, toleranceBps uint16) *console {
	return &console{
		in:           bufio.NewReader(in),
		out:          out,
		state:        state,
		toleranceBps: toleranceBps,
	}
}

// run shows the menu until the user quits, the input ends or ctx is cancelled.
func (c *console) run(ctx context.Context) {
	for {
		if ctx.Err() != nil {
			return
		}

		c.printMenu()

		fmt.Fprint(c.out, Bold+"Enter selection: "+Reset)
		input, err := c.readLine()
		if err != nil {
			return
		}
		if quit := c.handleCommand(input); quit {
			return
		}

		fmt.Fprintln(c.out, "\n"+Gray+"[Press Enter to continue]"+Reset)
		if _, err := c.readLine(); err != nil {
			return
		}
	}
}

func (c *console) readLine() (string, error) {
	line, err := c.in.ReadString('\n')
	if err != nil && (err != io.EOF || line == "") {
		return "", err
	}
	return strings.TrimSpace(line), nil
}

func (c *console) header(title string) {
	fmt.Fprintln(c.out, "\n"+Bold+Cyan+":: "+title+" ::"+Reset)
}

func (c *console) printMenu() {
	fmt.Fprint(c.out, "\033[H\033[2J") // Clear screen
	fmt.Fprintln(c.out, Bold+"SIMPLEST AMM CONSOLE"+Reset)
	fmt.Fprintln(c.out, Gray+"-----------------------------------"+Reset)
	fmt.Fprintf(c.out, " %s1.%s Current Block Info\n", Cyan, Reset)
	fmt.Fprintf(c.out, " %s2.%s Pool Summary\n", Cyan, Reset)
	fmt.Fprintf(c.out, " %s3.%s Quote Swap       %s(exact input)%s\n", Cyan, Reset, Gray, Reset)
	fmt.Fprintf(c.out, " %s4.%s Quote Add        %s(liquidity)%s\n", Cyan, Reset, Gray, Reset)
	fmt.Fprintf(c.out, " %s5.%s Quote Remove     %s(liquidity)%s\n", Cyan, Reset, Gray, Reset)
	fmt.Fprintf(c.out, " %s6.%s Watch Pool       %s(Live Monitor)%s\n", Cyan, Reset, Gray, Reset)
	fmt.Fprintln(c.out, Gray+"-----------------------------------"+Reset)
	fmt.Fprintf(c.out, " %sh.%s Help\n", Yellow, Reset)
	fmt.Fprintf(c.out, " %sq.%s Quit\n", Red, Reset)
	fmt.Fprintln(c.out, "")
}

// handleCommand runs one menu selection and reports whether the user quit.
func (c *console) handleCommand(input string) bool {
	state := c.state.Get()

	// Allow help and quit even if state isn't ready
	if state == nil && input != "q" && input != "h" {
		fmt.Fprintln(c.out, "\n"+Yellow+"[INFO] Waiting for first state update... (Check connection/logs)"+Reset)
		return false
	}

	switch input {
	case "1":
		c.printBlockInfo(state)
	case "2":
		c.printPoolSummary(state)
	case "3":
		c.quoteSwap(state)
	case "4":
		c.quoteAdd(state)
	case "5":
		c.quoteRemove(state)
	case "6":
		c.watchPool()
	case "h":
		c.printHelp()
	case "q":
		return true
	default:
		fmt.Fprintln(c.out, Red+"Unknown command."+Reset)
	}
	return false
}

// --- COMMAND HANDLERS ---

func (c *console) printHelp() {
	c.header("SIMPLEST AMM")
	fmt.Fprintln(c.out, "The pool holds ETH and the Simplest token and prices swaps with the")
	fmt.Fprintln(c.out, "constant-product rule x * y = k, minus a 0.3% fee on the input.")
	fmt.Fprintln(c.out, "")
	fmt.Fprintln(c.out, Bold+"QUOTES"+Reset)
	fmt.Fprintln(c.out, "   Every quote is computed from the latest observed block and carries")
	fmt.Fprintf(c.out, "   a minimum acceptable amount at %s%d bps%s slippage tolerance.\n", Green, c.toleranceBps, Reset)
	fmt.Fprintln(c.out, "   A zero quote means the trade would revert and shows the reason.")
	fmt.Fprintln(c.out, "")
	fmt.Fprintln(c.out, Bold+"STATE"+Reset)
	fmt.Fprintln(c.out, "   The client re-reads the pool and the account on every new head")
	fmt.Fprintln(c.out, "   and reports the fields that moved since the previous block.")
}

func (c *console) printBlockInfo(state *ethereum.State) {
	ts := time.Unix(int64(state.Block().Timestamp), 0).Format("15:04:05")

	fmt.Fprintf(c.out, "\n%sSTATUS  ::%s Block %s#%d%s | Chain %s%d%s | Time %s%s%s\n",
		Green, Reset,
		Bold, state.Observation.BlockNumber(), Reset,
		Bold, state.Observation.ChainID, Reset,
		Bold, ts, Reset,
	)
	if state.Changes != nil && !state.Changes.IsEmpty() {
		fmt.Fprintf(c.out, "%sChanged ::%s %s\n", Yellow, Reset, strings.Join(state.Changes.Fields(), ", "))
	}
}

func (c *console) printPoolSummary(state *ethereum.State) {
	c.header("POOL SUMMARY")
	obs := state.Observation

	w := tabwriter.NewWriter(c.out, 0, 0, 4, ' ', 0)
	fmt.Fprintln(w, "FIELD\tPOOL\tACCOUNT\t")
	fmt.Fprintln(w, "-----\t----\t-------\t")
	fmt.Fprintf(w, "ETH\t%s\t%s\t\n", obs.Pool.ReserveETH, obs.Wallet.ETH)
	fmt.Fprintf(w, "TOKEN\t%s\t%s\t\n", obs.Pool.ReserveToken, obs.Wallet.Token)
	fmt.Fprintf(w, "LP\t%s\t%s\t\n", obs.Pool.TotalLP, obs.Wallet.LP)
	w.Flush()

	if state.RateETHToToken == nil || state.RateTokenToETH == nil {
		fmt.Fprintln(c.out, "\n"+Yellow+"Pool is empty; no exchange rate."+Reset)
		return
	}
	fmt.Fprintf(c.out, "\n%s1 ETH   =%s %s TOKEN\n", Bold, Reset, state.RateETHToToken)
	fmt.Fprintf(c.out, "%s1 TOKEN =%s %s ETH\n", Bold, Reset, state.RateTokenToETH)
}

func (c *console) quoteSwap(state *ethereum.State) {
	pool := state.Observation.Pool

	fmt.Fprint(c.out, "\n"+Bold+"[Swap] Asset in (eth/token): "+Reset)
	raw, err := c.readLine()
	if err != nil {
		return
	}
	assetIn, err := simplestamm.ParseAsset(raw)
	if err != nil {
		fmt.Fprintln(c.out, Red+err.Error()+Reset)
		return
	}
	amountIn, ok := c.readAmount("[Swap] Amount in: ")
	if !ok {
		return
	}

	params := slippage.NewSwapParams(pool, assetIn, amountIn, c.toleranceBps)
	c.header("SWAP QUOTE")
	if params.ExpectedOut.IsZero() {
		reserveIn, reserveOut := pool.Reserves(assetIn)
		c.printRejected(calculator.CheckSwapOutput(amountIn, reserveIn, reserveOut))
		return
	}

	w := tabwriter.NewWriter(c.out, 0, 0, 4, ' ', 0)
	fmt.Fprintf(w, "Pay\t%s %s\t\n", params.AmountIn, assetIn)
	fmt.Fprintf(w, "Receive\t%s %s\t\n", params.ExpectedOut, assetIn.Other())
	fmt.Fprintf(w, "Minimum\t%s %s\t(%s%%)\n", params.MinAmountOut, assetIn.Other(), params.Bound().TolerancePercent())
	w.Flush()
}

func (c *console) quoteAdd(state *ethereum.State) {
	pool := state.Observation.Pool

	amountETH, ok := c.readAmount("[Add] ETH amount: ")
	if !ok {
		return
	}
	fmt.Fprint(c.out, Bold+"[Add] Token amount (blank keeps the pool ratio): "+Reset)
	raw, err := c.readLine()
	if err != nil {
		return
	}
	amountToken := fixedpoint.Zero()
	if raw != "" {
		if amountToken, err = fixedpoint.Parse(raw); err != nil {
			fmt.Fprintln(c.out, Red+err.Error()+Reset)
			return
		}
	}

	params := slippage.NewAddLiquidityParams(pool, amountETH, amountToken, c.toleranceBps)
	c.header("ADD LIQUIDITY QUOTE")
	if params.ExpectedLP.IsZero() {
		c.printRejected(calculator.ErrZeroLiquidity)
		return
	}

	w := tabwriter.NewWriter(c.out, 0, 0, 4, ' ', 0)
	fmt.Fprintf(w, "Deposit\t%s eth\t\n", params.AmountETH)
	fmt.Fprintf(w, "Deposit\t%s token\t\n", params.AmountToken)
	fmt.Fprintf(w, "Mint\t%s LP\t\n", params.ExpectedLP)
	fmt.Fprintf(w, "Minimum\t%s LP\t(%s%%)\n", params.MinLP, params.Bound().TolerancePercent())
	w.Flush()
}

func (c *console) quoteRemove(state *ethereum.State) {
	obs := state.Observation

	fmt.Fprint(c.out, "\n"+Bold+"[Remove] LP amount (blank burns the account's LP): "+Reset)
	raw, err := c.readLine()
	if err != nil {
		return
	}
	lp := obs.Wallet.LP
	if raw != "" {
		if lp, err = fixedpoint.Parse(raw); err != nil {
			fmt.Fprintln(c.out, Red+err.Error()+Reset)
			return
		}
	}

	params := slippage.NewRemoveLiquidityParams(obs.Pool, lp, c.toleranceBps)
	c.header("REMOVE LIQUIDITY QUOTE")
	switch {
	case lp.Cmp(obs.Pool.TotalLP) > 0:
		c.printRejected(calculator.ErrInsufficientLPSupply)
		return
	case params.Expected.AmountETH.IsZero() && params.Expected.AmountToken.IsZero():
		c.printRejected(calculator.ErrZeroLiquidity)
		return
	}

	ethBound, tokenBound := params.Bounds()
	w := tabwriter.NewWriter(c.out, 0, 0, 4, ' ', 0)
	fmt.Fprintf(w, "Burn\t%s LP\t\n", params.LP)
	fmt.Fprintf(w, "Receive\t%s eth\t(min %s)\n", params.Expected.AmountETH, ethBound.MinAmount)
	fmt.Fprintf(w, "Receive\t%s token\t(min %s)\n", params.Expected.AmountToken, tokenBound.MinAmount)
	w.Flush()
}

func (c *console) watchPool() {
	fmt.Fprintln(c.out, Green+"Starting Live Watch... (Press 'Enter' to stop)"+Reset)

	stopCh := make(chan struct{})
	go func() {
		c.in.ReadString('\n')
		close(stopCh)
	}()

	ticker := time.NewTicker(100 * time.Millisecond)
	defer ticker.Stop()

	lastBlock := new(big.Int)

	for {
		select {
		case <-stopCh:
			return
		case <-ticker.C:
			state := c.state.Get()
			if state == nil || state.Block().Number == nil {
				continue
			}

			if state.Block().Number.Cmp(lastBlock) > 0 {
				lastBlock.Set(state.Block().Number)

				fmt.Fprint(c.out, "\033[H\033[2J")
				fmt.Fprintf(c.out, Bold+"\n--- LIVE MONITOR (Block: %s) ---\n"+Reset, lastBlock.String())
				fmt.Fprintln(c.out, Gray+"Press ENTER to return to menu."+Reset)

				c.printBlockInfo(state)
				c.printPoolSummary(state)
			}
		}
	}
}

func (c *console) readAmount(prompt string) (fixedpoint.Amount, bool) {
	fmt.Fprint(c.out, Bold+prompt+Reset)
	raw, err := c.readLine()
	if err != nil {
		return fixedpoint.Zero(), false
	}
	amount, err := fixedpoint.Parse(raw)
	if err != nil {
		fmt.Fprintln(c.out, Red+err.Error()+Reset)
		return fixedpoint.Zero(), false
	}
	return amount, true
}

func (c *console) printRejected(err error) {
	fmt.Fprintf(c.out, "%sRejected:%s the trade would revert (%v)\n", Red, Reset, err)
}
