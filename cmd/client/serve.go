package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/defistate/simplest-amm-client-go/quoteapi"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
)

func newServeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve live pool quotes over HTTP with a /metrics endpoint",
		RunE:  runServe,
	}
	cmd.Flags().String("listen", ":8080", "HTTP listen address")
	cmd.Flags().Duration("request-timeout", 10*time.Second, "per-request deadline for pool reads")
	return cmd
}

func runServe(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	if err := cfg.RequireChain(); err != nil {
		return err
	}
	logger := newLogger(cfg, cmd.ErrOrStderr())

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	reader, ethClient, err := dialReader(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer ethClient.Close()

	server, err := quoteapi.NewServer(quoteapi.Config{
		Source:         reader,
		Logger:         logger.With("component", "quote-api"),
		Registry:       prometheus.DefaultRegisterer,
		RequestTimeout: cfg.RequestTimeout,
		MetricsHandler: promhttp.Handler(),
	})
	if err != nil {
		return err
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- server.Start(cfg.ListenAddr)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return server.Stop(shutdownCtx)
}
