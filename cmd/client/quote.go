package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math/big"

	"github.com/defistate/simplest-amm-client-go/chains/ethereum"
	"github.com/defistate/simplest-amm-client-go/cmd/client/config"
	"github.com/defistate/simplest-amm-client-go/fixedpoint"
	simplestamm "github.com/defistate/simplest-amm-client-go/protocols/simplestamm"
	calculator "github.com/defistate/simplest-amm-client-go/protocols/simplestamm/calculator"
	"github.com/defistate/simplest-amm-client-go/slippage"
	"github.com/spf13/cobra"
)

var errCrossCheckOffline = errors.New("--cross-check needs a live pool (--rpc, --pool, --token)")

func newQuoteCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "quote",
		Short: "Quote a trade from given reserves or from the live pool",
	}

	flags := cmd.PersistentFlags()
	flags.String("reserve-eth", "", "ETH reserve for an offline quote")
	flags.String("reserve-token", "", "token reserve for an offline quote")
	flags.String("total-lp", "", "LP token supply for an offline quote")
	flags.Uint64("block", 0, "block to read the live pool at, 0 for the latest")
	flags.Bool("cross-check", false, "compare the local quote with the contract's own quote")

	cmd.AddCommand(newQuoteSwapCmd(), newQuoteAddCmd(), newQuoteRemoveCmd())
	return cmd
}

// quoteOutput is what every quote subcommand prints.
type quoteOutput struct {
	Block *big.Int         `json:"block,omitempty"`
	Pool  simplestamm.Pool `json:"pool"`
	Quote any              `json:"quote"`
}

// quoteSession is the pool a quote runs against and, when live, the reader it came from.
type quoteSession struct {
	cfg    config.Config
	logger *slog.Logger
	pool   simplestamm.Pool
	block  *big.Int
	reader *ethereum.Reader
	close  func()
}

func openQuoteSession(cmd *cobra.Command) (*quoteSession, error) {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return nil, err
	}
	s := &quoteSession{
		cfg:    cfg,
		logger: newLogger(cfg, cmd.ErrOrStderr()),
		close:  func() {},
	}

	flags := cmd.Flags()
	if flags.Changed("reserve-eth") || flags.Changed("reserve-token") || flags.Changed("total-lp") {
		s.pool, err = offlinePool(cmd)
		if err != nil {
			return nil, err
		}
		return s, nil
	}

	if err := cfg.RequireChain(); err != nil {
		return nil, fmt.Errorf("give --reserve-eth, --reserve-token and --total-lp for an offline quote: %w", err)
	}
	if n, _ := flags.GetUint64("block"); n != 0 {
		s.block = new(big.Int).SetUint64(n)
	}

	reader, client, err := dialReader(cmd.Context(), cfg, s.logger)
	if err != nil {
		return nil, err
	}
	s.reader = reader
	s.close = client.Close

	s.pool, err = reader.Pool(cmd.Context(), s.block)
	if err != nil {
		s.close()
		return nil, fmt.Errorf("read pool: %w", err)
	}
	return s, nil
}

func offlinePool(cmd *cobra.Command) (simplestamm.Pool, error) {
	var pool simplestamm.Pool
	for _, f := range []struct {
		name string
		dst  *fixedpoint.Amount
	}{
		{"reserve-eth", &pool.ReserveETH},
		{"reserve-token", &pool.ReserveToken},
		{"total-lp", &pool.TotalLP},
	} {
		raw, _ := cmd.Flags().GetString(f.name)
		if raw == "" {
			continue
		}
		amount, err := fixedpoint.Parse(raw)
		if err != nil {
			return simplestamm.Pool{}, fmt.Errorf("--%s: %w", f.name, err)
		}
		*f.dst = amount
	}
	if err := pool.Validate(); err != nil {
		return simplestamm.Pool{}, err
	}
	return pool, nil
}

// crossCheck runs fn against the live pool when --cross-check is set.
func (s *quoteSession) crossCheck(cmd *cobra.Command, fn func(ctx context.Context) error) error {
	enabled, _ := cmd.Flags().GetBool("cross-check")
	if !enabled {
		return nil
	}
	if s.reader == nil {
		return errCrossCheckOffline
	}
	return fn(cmd.Context())
}

func (s *quoteSession) print(w io.Writer, quote any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(quoteOutput{Block: s.block, Pool: s.pool, Quote: quote})
}

func parseAmountFlag(cmd *cobra.Command, name string) (fixedpoint.Amount, error) {
	raw, _ := cmd.Flags().GetString(name)
	if raw == "" {
		return fixedpoint.Zero(), nil
	}
	amount, err := fixedpoint.Parse(raw)
	if err != nil {
		return fixedpoint.Zero(), fmt.Errorf("--%s: %w", name, err)
	}
	return amount, nil
}

func newQuoteSwapCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "swap",
		Short: "Quote a swap and its minimum output",
		RunE:  runQuoteSwap,
	}
	cmd.Flags().String("asset-in", "eth", "asset sent to the pool (eth, token)")
	cmd.Flags().String("amount-in", "", "exact amount sent")
	cmd.Flags().String("amount-out", "", "exact amount wanted; the required input is quoted")
	cmd.MarkFlagsMutuallyExclusive("amount-in", "amount-out")
	cmd.MarkFlagsOneRequired("amount-in", "amount-out")
	return cmd
}

func runQuoteSwap(cmd *cobra.Command, _ []string) error {
	rawAsset, _ := cmd.Flags().GetString("asset-in")
	assetIn, err := simplestamm.ParseAsset(rawAsset)
	if err != nil {
		return fmt.Errorf("--asset-in: %w", err)
	}
	amountIn, err := parseAmountFlag(cmd, "amount-in")
	if err != nil {
		return err
	}
	amountOut, err := parseAmountFlag(cmd, "amount-out")
	if err != nil {
		return err
	}

	s, err := openQuoteSession(cmd)
	if err != nil {
		return err
	}
	defer s.close()

	reserveIn, reserveOut := s.pool.Reserves(assetIn)
	if !amountOut.IsZero() {
		if err := calculator.CheckSwapInput(amountOut, reserveIn, reserveOut); err != nil {
			return fmt.Errorf("quote swap input: %w", err)
		}
		amountIn = calculator.QuoteSwapInput(amountOut, reserveIn, reserveOut)
	}
	if err := calculator.CheckSwapOutput(amountIn, reserveIn, reserveOut); err != nil {
		return fmt.Errorf("quote swap: %w", err)
	}

	params := slippage.NewSwapParams(s.pool, assetIn, amountIn, s.cfg.SlippageBps)
	err = s.crossCheck(cmd, func(ctx context.Context) error {
		_, err := s.reader.CrossCheckSwap(ctx, assetIn, amountIn, s.block)
		return err
	})
	if err != nil {
		return err
	}

	s.logger.Debug("Quoted swap",
		"asset_in", assetIn, "amount_in", params.AmountIn.String(),
		"expected_out", params.ExpectedOut.String(), "min_out", params.MinAmountOut.String())
	return s.print(cmd.OutOrStdout(), params)
}

func newQuoteAddCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "add",
		Short: "Quote the LP tokens minted for a deposit",
		RunE:  runQuoteAdd,
	}
	cmd.Flags().String("amount-eth", "", "ETH deposited")
	cmd.Flags().String("amount-token", "", "tokens deposited; defaults to the amount matching the pool ratio")
	_ = cmd.MarkFlagRequired("amount-eth")
	return cmd
}

func runQuoteAdd(cmd *cobra.Command, _ []string) error {
	amountETH, err := parseAmountFlag(cmd, "amount-eth")
	if err != nil {
		return err
	}
	amountToken, err := parseAmountFlag(cmd, "amount-token")
	if err != nil {
		return err
	}

	s, err := openQuoteSession(cmd)
	if err != nil {
		return err
	}
	defer s.close()

	params := slippage.NewAddLiquidityParams(s.pool, amountETH, amountToken, s.cfg.SlippageBps)
	if params.ExpectedLP.IsZero() {
		return fmt.Errorf("quote add: %w", calculator.ErrZeroLiquidity)
	}
	err = s.crossCheck(cmd, func(ctx context.Context) error {
		remote, err := s.reader.LiquidityOutput(ctx, params.AmountToken, params.AmountETH, s.block)
		if err != nil {
			return err
		}
		if !remote.Equal(params.ExpectedLP) {
			return fmt.Errorf("%w: local %s, contract %s", ethereum.ErrQuoteDivergence, params.ExpectedLP.WeiString(), remote.WeiString())
		}
		return nil
	})
	if err != nil {
		return err
	}
	return s.print(cmd.OutOrStdout(), params)
}

func newQuoteRemoveCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "remove",
		Short: "Quote the assets returned for burning LP tokens",
		RunE:  runQuoteRemove,
	}
	cmd.Flags().String("lp", "", "LP tokens burned")
	_ = cmd.MarkFlagRequired("lp")
	return cmd
}

func runQuoteRemove(cmd *cobra.Command, _ []string) error {
	lp, err := parseAmountFlag(cmd, "lp")
	if err != nil {
		return err
	}

	s, err := openQuoteSession(cmd)
	if err != nil {
		return err
	}
	defer s.close()

	if lp.Cmp(s.pool.TotalLP) > 0 {
		return fmt.Errorf("quote remove: %w: %s > %s", calculator.ErrInsufficientLPSupply, lp, s.pool.TotalLP)
	}
	params := slippage.NewRemoveLiquidityParams(s.pool, lp, s.cfg.SlippageBps)
	if params.Expected.AmountETH.IsZero() && params.Expected.AmountToken.IsZero() {
		return fmt.Errorf("quote remove: %w", calculator.ErrZeroLiquidity)
	}
	err = s.crossCheck(cmd, func(ctx context.Context) error {
		remote, err := s.reader.RemoveLiquidityOutput(ctx, lp, s.block)
		if err != nil {
			return err
		}
		if remote != params.Expected {
			return fmt.Errorf("%w: local %s/%s, contract %s/%s", ethereum.ErrQuoteDivergence,
				params.Expected.AmountETH.WeiString(), params.Expected.AmountToken.WeiString(),
				remote.AmountETH.WeiString(), remote.AmountToken.WeiString())
		}
		return nil
	})
	if err != nil {
		return err
	}
	return s.print(cmd.OutOrStdout(), params)
}
