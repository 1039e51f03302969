package heads

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/defistate/simplest-amm-client-go/engine"
	goethereum "github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/ethclient"
)

// Constants for reconnection logic
const (
	initialReconnectDelay = 1 * time.Second
	maxReconnectDelay     = 30 * time.Second
)

// ErrReconnectExhausted is sent on Err when MaxReconnectAttempts consecutive connections fail.
var ErrReconnectExhausted = errors.New("giving up after repeated connection failures")

// Logger defines a standard interface for structured, leveled logging.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// Observer reads an observation pinned to a header.
type Observer interface {
	Observe(ctx context.Context, account common.Address, header *types.Header) (*engine.Observation, error)
}

// HeadSource pushes new chain heads over a live connection.
type HeadSource interface {
	SubscribeNewHead(ctx context.Context, ch chan<- *types.Header) (goethereum.Subscription, error)
	Close()
}

// DialFunc opens a HeadSource.
type DialFunc func(ctx context.Context, url string) (HeadSource, error)

// DialEthClient is the default DialFunc; url must be a websocket or IPC endpoint.
func DialEthClient(ctx context.Context, url string) (HeadSource, error) {
	return ethclient.DialContext(ctx, url)
}

// Config holds the configuration for the client.
type Config struct {
	URL        string
	Account    common.Address
	Observer   Observer
	Logger     Logger
	BufferSize uint
	// Dial defaults to DialEthClient.
	Dial DialFunc
	// MaxReconnectAttempts bounds consecutive failed connections; zero retries forever.
	MaxReconnectAttempts uint
	// InitialReconnectDelay defaults to one second and doubles up to thirty.
	InitialReconnectDelay time.Duration
}

// validate checks if the configuration is valid.
func (c *Config) validate() error {
	if c.URL == "" {
		return errors.New("config: URL is required")
	}
	if c.BufferSize < 1 {
		return errors.New("config: BufferSize must be greater than 0")
	}
	if c.Logger == nil {
		return errors.New("config: Logger is required")
	}
	if c.Observer == nil {
		return errors.New("config: Observer is required")
	}
	return nil
}

// Client follows new heads and reads an observation for each one.
// Its lifecycle is bound to the context passed to Dial.
type Client struct {
	processor *Processor
	observer  Observer
	account   common.Address
	dial      DialFunc
	errCh     chan error
	logger    Logger

	maxAttempts  uint
	initialDelay time.Duration
}

// Dial validates cfg and starts following heads in the background.
func Dial(ctx context.Context, cfg Config) (*Client, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	dial := cfg.Dial
	if dial == nil {
		dial = DialEthClient
	}
	initialDelay := cfg.InitialReconnectDelay
	if initialDelay <= 0 {
		initialDelay = initialReconnectDelay
	}

	c := &Client{
		processor:    NewProcessor(cfg.Logger, cfg.BufferSize),
		observer:     cfg.Observer,
		account:      cfg.Account,
		dial:         dial,
		errCh:        make(chan error, 1),
		logger:       cfg.Logger,
		maxAttempts:  cfg.MaxReconnectAttempts,
		initialDelay: initialDelay,
	}

	go c.run(ctx, cfg.URL)
	return c, nil
}

// Updates is best-effort; if the consumer is slow, updates may be dropped.
// The channel is closed when the client stops.
func (c *Client) Updates() <-chan *Update {
	return c.processor.Updates()
}

// Err returns a read-only channel for receiving fatal (unrecoverable) errors.
func (c *Client) Err() <-chan error {
	return c.errCh
}

// run handles the networking lifecycle and feeds data to the processor.
func (c *Client) run(ctx context.Context, url string) {
	defer close(c.errCh)
	defer c.processor.close()
	reconnectDelay := c.initialDelay
	var failures uint

	for {
		if ctx.Err() != nil {
			c.logger.Info("Client context canceled, shutting down.")
			return
		}

		c.logger.Info("Attempting to connect to RPC server", "url", url)
		src, err := c.dial(ctx, url)
		if err == nil {
			c.logger.Info("Successfully connected to RPC server.")
			failures = 0
			reconnectDelay = c.initialDelay
			err = c.subscribeAndProcess(ctx, src)
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				c.logger.Info("Context canceled, shutting down.")
				return
			}
		}

		failures++
		if c.maxAttempts > 0 && failures >= c.maxAttempts {
			c.logger.Error("Connection failed too many times", "error", err, "attempts", failures)
			c.errCh <- fmt.Errorf("%w: %v", ErrReconnectExhausted, err)
			return
		}
		c.logger.Error("Connection lost, will reconnect...", "error", err, "delay", reconnectDelay)
		select {
		case <-time.After(reconnectDelay):
		case <-ctx.Done():
			return
		}
		reconnectDelay = min(reconnectDelay*2, maxReconnectDelay)
	}
}

func (c *Client) subscribeAndProcess(ctx context.Context, src HeadSource) error {
	defer src.Close()

	headCh := make(chan *types.Header)
	sub, err := src.SubscribeNewHead(ctx, headCh)
	if err != nil {
		return fmt.Errorf("failed to subscribe: %w", err)
	}
	defer sub.Unsubscribe()

	c.logger.Info("Successfully subscribed. Waiting for heads...")
	for {
		select {
		case header := <-headCh:
			obs, err := c.observer.Observe(ctx, c.account, header)
			if err != nil {
				if ctx.Err() != nil {
					return ctx.Err()
				}
				c.logger.Error("Failed to read observation", "block", header.Number, "error", err)
				continue
			}
			c.processor.Process(obs)
		case err := <-sub.Err():
			if err == nil {
				err = errors.New("subscription closed")
			}
			return err
		case <-ctx.Done():
			c.logger.Info("Context cancelled, stopping subscription.")
			return ctx.Err()
		}
	}
}
