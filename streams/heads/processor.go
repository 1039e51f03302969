package heads

import (
	"time"

	"github.com/defistate/simplest-amm-client-go/engine"
	simplestamm "github.com/defistate/simplest-amm-client-go/protocols/simplestamm"
)

// Update is published for every accepted observation.
type Update struct {
	Observation *engine.Observation
	// PoolDiff holds the pool fields that changed since the previous update.
	PoolDiff simplestamm.PoolDiff
	// PoolChanged is true when reserves or LP supply moved since the previous
	// update. Between a quote and its confirmation this means someone else
	// traded against the pool.
	PoolChanged bool
}

// Processor orders observations, tracks the latest one and publishes updates.
// It is decoupled from the networking layer.
type Processor struct {
	last     *engine.Observation
	updateCh chan *Update
	logger   Logger
}

// NewProcessor creates a pure logic processor without networking.
func NewProcessor(logger Logger, bufferSize uint) *Processor {
	return &Processor{
		logger:   logger,
		updateCh: make(chan *Update, bufferSize),
	}
}

// Updates returns a read-only channel for receiving updates.
func (p *Processor) Updates() <-chan *Update {
	return p.updateCh
}

// Last returns the most recently accepted observation, or nil.
func (p *Processor) Last() *engine.Observation {
	return p.last
}

// Process accepts an observation. Observations at or below the last accepted
// block are discarded. It reports whether obs was accepted.
func (p *Processor) Process(obs *engine.Observation) bool {
	start := time.Now()
	if obs == nil || obs.Block.Number == nil {
		p.logger.Warn("Discarding observation without block number")
		return false
	}

	update := &Update{Observation: obs}
	if p.last != nil {
		if obs.Block.Number.Cmp(p.last.Block.Number) <= 0 {
			p.logger.Warn("Received stale or duplicate head. Discarding.",
				"last_known_block", p.last.Block.Number,
				"block", obs.Block.Number,
			)
			return false
		}
		update.PoolDiff = simplestamm.Differ(p.last.Pool, obs.Pool)
		update.PoolChanged = !update.PoolDiff.IsEmpty()
	}
	p.last = obs

	p.logLatency(obs, time.Since(start))

	select {
	case p.updateCh <- update:
	default:
		p.logger.Warn("Update buffer full, discarding update...", "block", obs.Block.Number)
	}
	return true
}

func (p *Processor) logLatency(obs *engine.Observation, processingDur time.Duration) {
	blockTime := time.Unix(int64(obs.Block.Timestamp), 0)
	p.logger.Debug("Observation processed",
		"block", obs.Block.Number,
		"reserve_eth", obs.Pool.ReserveETH.String(),
		"reserve_token", obs.Pool.ReserveToken.String(),
		"latency_total_ms", time.Since(blockTime).Milliseconds(),
		"latency_read_ms", time.Since(time.Unix(0, obs.Block.ReceivedAt)).Milliseconds(),
		"latency_proc_ms", processingDur.Milliseconds(),
	)
}

func (p *Processor) close() {
	close(p.updateCh)
}
