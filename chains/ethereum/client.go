package ethereum

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/defistate/simplest-amm-client-go/chains"
	"github.com/defistate/simplest-amm-client-go/differ"
	"github.com/defistate/simplest-amm-client-go/engine"
	calculator "github.com/defistate/simplest-amm-client-go/protocols/simplestamm/calculator"
	"github.com/defistate/simplest-amm-client-go/streams/heads"
	"github.com/ethereum/go-ethereum/common"
	"github.com/prometheus/client_golang/prometheus"
)

const defaultStateBufferSize = 1

// Stream is the upstream source of per-block observations.
type Stream interface {
	Updates() <-chan *heads.Update
	Err() <-chan error
}

// State is one processed block.
type State struct {
	Observation *engine.Observation
	// Changes lists every pool and wallet field that moved since the previous
	// state. It is nil for the first state.
	Changes *differ.StateDiff
	// PoolChanged is true when reserves or LP supply moved since the previous block.
	PoolChanged bool
	// RateETHToToken and RateTokenToETH are unset while the pool is empty.
	RateETHToToken    *calculator.Rate
	RateTokenToETH    *calculator.Rate
	ProcessedAtUnixNs uint64
}

// Block returns the block the state was observed at.
func (s *State) Block() engine.BlockSummary {
	return s.Observation.Block
}

// ClientConfig holds the configuration for Dial.
type ClientConfig struct {
	URL      string
	Account  common.Address
	Reader   *Reader
	Logger   chains.Logger
	Registry prometheus.Registerer
	// BufferSize bounds the processed states held for a slow consumer; defaults to 1.
	BufferSize uint
	// MaxReconnectAttempts bounds consecutive failed connections; zero retries forever.
	MaxReconnectAttempts uint
}

func (c *ClientConfig) validate() error {
	if c.URL == "" {
		return errors.New("config: URL is required")
	}
	if c.Reader == nil {
		return errors.New("config: Reader is required")
	}
	if c.Logger == nil {
		return errors.New("config: Logger is required")
	}
	if c.Registry == nil {
		return errors.New("config: Registry is required")
	}
	return nil
}

// Client orchestrates the ingestion and processing of pool and wallet state.
// Its lifecycle is bound to the context passed during Dial.
type Client struct {
	stream  Stream
	differ  *differ.StateDiffer
	logger  chains.Logger
	stateCh chan *State
	errCh   chan error

	last *engine.Observation

	ctx context.Context
	wg  sync.WaitGroup
}

// Dial follows new heads at cfg.URL, reads an observation for each through
// cfg.Reader and starts the processing loop. The returned Client will remain
// active until the provided ctx is cancelled.
func Dial(ctx context.Context, cfg ClientConfig) (*Client, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	stream, err := heads.Dial(ctx, heads.Config{
		URL:                  cfg.URL,
		Account:              cfg.Account,
		Observer:             cfg.Reader,
		Logger:               cfg.Logger,
		BufferSize:           1,
		MaxReconnectAttempts: cfg.MaxReconnectAttempts,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to dial head stream: %w", err)
	}
	c, err := NewClient(ctx, stream, cfg.Logger, cfg.Registry, cfg.BufferSize)
	if err != nil {
		return nil, err
	}
	cfg.Logger.Info("Client started", "url", cfg.URL, "account", cfg.Account.Hex())
	return c, nil
}

// NewClient processes the observations of an existing stream.
func NewClient(ctx context.Context, stream Stream, logger chains.Logger, registry prometheus.Registerer, bufferSize uint) (*Client, error) {
	if stream == nil {
		return nil, errors.New("client: stream cannot be nil")
	}
	stateDiffer, err := differ.NewStateDiffer(&differ.StateDifferConfig{
		Registry: registry,
		Logger:   logger,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create state differ: %w", err)
	}
	if bufferSize == 0 {
		bufferSize = defaultStateBufferSize
	}

	c := &Client{
		stream:  stream,
		differ:  stateDiffer,
		logger:  logger,
		stateCh: make(chan *State, bufferSize),
		errCh:   make(chan error, 1),
		ctx:     ctx,
	}
	c.wg.Add(1)
	go c.loop()
	return c, nil
}

// State channel is best-effort; if consumer is slow, updates may be dropped.
func (c *Client) State() <-chan *State {
	return c.stateCh
}

// Err delivers the fatal error that stopped the client, if any.
func (c *Client) Err() <-chan error {
	return c.errCh
}

// Wait blocks until the processing loop has exited.
func (c *Client) Wait() {
	c.wg.Wait()
}

func (c *Client) loop() {
	defer c.wg.Done()
	defer func() {
		close(c.stateCh)
		close(c.errCh)
		c.logger.Info("Client stopped")
	}()

	updates, errs := c.stream.Updates(), c.stream.Err()
	for {
		select {
		case <-c.ctx.Done():
			return

		case err, ok := <-errs:
			if !ok {
				errs = nil
				continue
			}
			c.logger.Error("Fatal client error", "err", err)
			c.errCh <- err
			return

		case update, ok := <-updates:
			if !ok {
				// A fatal error is sent before the stream closes its channels.
				select {
				case err, ok := <-errs:
					if ok && err != nil {
						c.errCh <- err
					}
				default:
				}
				return
			}
			if update == nil || update.Observation == nil {
				c.logger.Warn("Discarding update without observation")
				continue
			}

			processed, err := c.processUpdate(update)
			if err != nil {
				c.logger.Error("Failed to process update", "block", update.Observation.BlockNumber(), "err", err)
				continue
			}

			select {
			case c.stateCh <- processed:
			case <-c.ctx.Done():
				return
			default:
				c.logger.Warn("State buffer full, discarding processed state...", "block", processed.Observation.BlockNumber())
			}
		}
	}
}

func (c *Client) processUpdate(update *heads.Update) (*State, error) {
	obs := update.Observation
	state := &State{
		Observation: obs,
		PoolChanged: update.PoolChanged,
	}
	if rate, ok := calculator.ExchangeRate(obs.Pool.ReserveETH, obs.Pool.ReserveToken); ok {
		state.RateETHToToken = &rate
	}
	if rate, ok := calculator.ExchangeRate(obs.Pool.ReserveToken, obs.Pool.ReserveETH); ok {
		state.RateTokenToETH = &rate
	}

	if c.last != nil {
		changes, err := c.differ.Diff(c.last, obs)
		if err != nil {
			return nil, err
		}
		state.Changes = changes
	}
	c.last = obs
	state.ProcessedAtUnixNs = uint64(time.Now().UnixNano())
	return state, nil
}
