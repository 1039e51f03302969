package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"time"

	"github.com/defistate/simplest-amm-client-go/chains/ethereum"
	"github.com/defistate/simplest-amm-client-go/cmd/client/config"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

func main() {
	// A missing .env file is fine; real environment variables still apply.
	_ = godotenv.Load()

	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:          "simplest",
		Short:        "Quote and verify trades against the Simplest ETH/token pool",
		SilenceUsage: true,
	}

	flags := root.PersistentFlags()
	flags.String("config", "", "config file path (default ./config.yaml if present)")
	flags.String("rpc", "", "Ethereum RPC URL; websocket or IPC for watch")
	flags.String("pool", "", "pool contract address")
	flags.String("token", "", "Simplest token contract address")
	flags.Uint64("chain-id", 0, "expected chain ID, 0 skips the check")
	flags.Int("slippage-bps", 50, "slippage tolerance in basis points")
	flags.Uint("retry-attempts", 3, "attempts per contract call")
	flags.Duration("retry-delay", 200*time.Millisecond, "initial delay between contract call attempts")
	flags.String("log-level", "info", "log level (debug, info, warn, error)")
	flags.String("log-format", "json", "log format (json, text)")

	root.AddCommand(newQuoteCmd(), newWatchCmd(), newServeCmd())
	return root
}

// loadConfig merges the command's flags with the environment and config file.
func loadConfig(cmd *cobra.Command) (config.Config, error) {
	cfgFile, _ := cmd.Flags().GetString("config")
	return config.Load(cfgFile, cmd.Flags())
}

func newLogger(cfg config.Config, w io.Writer) *slog.Logger {
	opts := &slog.HandlerOptions{Level: parseLevel(cfg.LogLevel)}
	if cfg.LogFormat == "text" {
		return slog.New(slog.NewTextHandler(w, opts))
	}
	return slog.New(slog.NewJSONHandler(w, opts))
}

func parseLevel(level string) slog.Leveler {
	switch level {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// dialReader connects to the configured node and checks its chain ID
// against the configured one, if any.
func dialReader(ctx context.Context, cfg config.Config, logger *slog.Logger) (*ethereum.Reader, *ethclient.Client, error) {
	reader, client, err := ethereum.DialReader(ctx, cfg.RPCURL, cfg.PoolAddress, cfg.TokenAddress,
		logger.With("component", "reader"),
		ethereum.WithRetry(cfg.RetryAttempts, cfg.RetryDelay),
	)
	if err != nil {
		return nil, nil, err
	}
	if cfg.ChainID != 0 && reader.ChainID() != cfg.ChainID {
		client.Close()
		return nil, nil, fmt.Errorf("node serves chain %d, expected %d", reader.ChainID(), cfg.ChainID)
	}
	return reader, client, nil
}

func requireFlag(cmd *cobra.Command, name string) (string, error) {
	v, _ := cmd.Flags().GetString(name)
	if v == "" {
		return "", fmt.Errorf("--%s is required", name)
	}
	return v, nil
}
