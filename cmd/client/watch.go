package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/defistate/simplest-amm-client-go/chains/ethereum"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
)

func newWatchCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Follow new blocks and log every change to the pool and the account",
		RunE:  runWatch,
	}
	cmd.Flags().String("account", "", "account whose balances are tracked")
	cmd.Flags().Uint("buffer-size", 100, "updates buffered for a slow consumer")
	cmd.Flags().Uint("max-reconnect-attempts", 0, "consecutive failed connections before giving up, 0 retries forever")
	cmd.Flags().String("metrics-addr", "", "serve Prometheus metrics on this address")
	return cmd
}

func runWatch(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	if err := cfg.RequireAccount(); err != nil {
		return err
	}
	logger := newLogger(cfg, cmd.ErrOrStderr())

	// Create a context that cancels when the OS sends an interrupt (Ctrl+C) or termination signal.
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	reader, ethClient, err := dialReader(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer ethClient.Close()

	if addr, _ := cmd.Flags().GetString("metrics-addr"); addr != "" {
		metricsServer := startMetricsServer(addr, logger)
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = metricsServer.Shutdown(shutdownCtx)
		}()
	}

	client, err := ethereum.Dial(ctx, ethereum.ClientConfig{
		URL:                  cfg.RPCURL,
		Account:              cfg.Account,
		Reader:               reader,
		Logger:               logger.With("component", "client"),
		Registry:             prometheus.DefaultRegisterer,
		BufferSize:           cfg.BufferSize,
		MaxReconnectAttempts: cfg.MaxReconnectAttempts,
	})
	if err != nil {
		return fmt.Errorf("failed to start client: %w", err)
	}

	for {
		select {
		case state, ok := <-client.State():
			if !ok {
				// The client closes its channels on exit; a fatal error may be pending.
				select {
				case err := <-client.Err():
					return err
				default:
					return nil
				}
			}
			reportState(logger, state)
		case err, ok := <-client.Err():
			if !ok {
				return nil
			}
			logger.Error("Fatal client error", "error", err)
			return err
		case <-ctx.Done():
			return nil
		}
	}
}

// reportState logs a processed block and every field that moved since the previous one.
func reportState(logger *slog.Logger, state *ethereum.State) {
	obs := state.Observation
	attrs := []any{
		"block", obs.BlockNumber(),
		"reserve_eth", obs.Pool.ReserveETH.String(),
		"reserve_token", obs.Pool.ReserveToken.String(),
		"total_lp", obs.Pool.TotalLP.String(),
		"pool_changed", state.PoolChanged,
	}
	if state.RateETHToToken != nil {
		attrs = append(attrs, "token_per_eth", state.RateETHToToken.Scaled().String())
	}
	logger.Info("Observed block", attrs...)

	if state.Changes == nil || state.Changes.IsEmpty() {
		return
	}
	for _, m := range state.Changes.Mismatches {
		logger.Warn("State moved",
			"block", obs.BlockNumber(),
			"field", m.Field,
			"previous", m.Expected.String(),
			"current", m.Observed.String(),
		)
	}
}

// startMetricsServer exposes the default registry on addr in the background.
func startMetricsServer(addr string, logger *slog.Logger) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	server := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		logger.Info("Starting metrics server", "address", addr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("Metrics server failed", "error", err)
		}
	}()
	return server
}
