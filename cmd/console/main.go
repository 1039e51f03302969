package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/defistate/simplest-amm-client-go/chains/ethereum"
	"github.com/defistate/simplest-amm-client-go/cmd/client/config"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/pflag"
)

// --- VISUAL CONSTANTS ---
const (
	Reset  = "\033[0m"
	Bold   = "\033[1m"
	Red    = "\033[31m"
	Green  = "\033[32m"
	Yellow = "\033[33m"
	Cyan   = "\033[36m"
	Gray   = "\033[37m"

	DefaultClientStateBufferSize = 100
)

// SafeState is a thread-safe container for the latest processed state.
type SafeState struct {
	mu    sync.RWMutex
	state *ethereum.State
}

func (s *SafeState) Update(newState *ethereum.State) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state = newState
}

func (s *SafeState) Get() *ethereum.State {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state
}

func main() {
	// --- 1. SETUP LOGGING (To File) ---
	logFile, err := os.OpenFile("console.log", os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0666)
	if err != nil {
		panic(fmt.Sprintf("Failed to open log file: %v", err))
	}
	defer logFile.Close()

	rootLogger := slog.New(slog.NewJSONHandler(logFile, nil))

	closeApp := func() {
		fmt.Println("\n" + Red + "Fatal error occurred. Check console.log for details." + Reset)
		os.Exit(1)
	}

	// --- 2. CONFIG & CONTEXT ---
	_ = godotenv.Load()
	cfg, err := loadConfig(os.Args[1:])
	if err != nil {
		rootLogger.Error("Failed to load configuration", "error", err)
		closeApp()
	}
	if err := cfg.RequireAccount(); err != nil {
		rootLogger.Error("Incomplete configuration", "error", err)
		closeApp()
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// --- 3. INITIALIZE READER ---
	reader, ethClient, err := ethereum.DialReader(ctx, cfg.RPCURL, cfg.PoolAddress, cfg.TokenAddress,
		rootLogger.With("component", "reader"),
		ethereum.WithRetry(cfg.RetryAttempts, cfg.RetryDelay),
	)
	if err != nil {
		rootLogger.Error("Failed to initialize Reader", "rpc", cfg.RPCURL, "error", err)
		closeApp()
	}
	defer ethClient.Close()

	// --- 4. INITIALIZE CLIENT ---
	client, err := ethereum.Dial(ctx, ethereum.ClientConfig{
		URL:                  cfg.RPCURL,
		Account:              cfg.Account,
		Reader:               reader,
		Logger:               rootLogger.With("component", "client"),
		Registry:             prometheus.DefaultRegisterer,
		BufferSize:           DefaultClientStateBufferSize,
		MaxReconnectAttempts: cfg.MaxReconnectAttempts,
	})
	if err != nil {
		rootLogger.Error("Failed to initialize Client", "chain_id", reader.ChainID(), "error", err)
		closeApp()
	}

	// --- 5. START CONSOLE & STATE LOOP ---
	safeState := &SafeState{}
	c := newConsole(os.Stdin, os.Stdout, safeState, cfg.SlippageBps)

	fmt.Println(Green + "Starting Simplest AMM Console..." + Reset)
	fmt.Println("Logs are being written to 'console.log'")
	go func() {
		time.Sleep(500 * time.Millisecond)
		c.run(ctx)
		fmt.Println(Yellow + "Exiting..." + Reset)
		stop()
	}()

	for {
		select {
		case n, ok := <-client.State():
			if !ok {
				return
			}
			safeState.Update(n)

		case err, ok := <-client.Err():
			if !ok {
				return
			}
			rootLogger.Error("Fatal client error", "error", err)
			closeApp()

		case <-ctx.Done():
			fmt.Println("\n" + Yellow + "Shutting down..." + Reset)
			return
		}
	}
}

func loadConfig(args []string) (config.Config, error) {
	flags := pflag.NewFlagSet("console", pflag.ContinueOnError)
	configPath := flags.String("config", "", "Path to the configuration file.")
	flags.String("rpc", "", "Ethereum websocket or IPC endpoint")
	flags.String("pool", "", "pool contract address")
	flags.String("token", "", "Simplest token contract address")
	flags.String("account", "", "account whose balances are tracked")
	flags.Int("slippage-bps", 50, "slippage tolerance in basis points")
	if err := flags.Parse(args); err != nil {
		return config.Config{}, err
	}
	return config.Load(*configPath, flags)
}
