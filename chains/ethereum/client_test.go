package ethereum

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"math/big"
	"testing"
	"time"

	"github.com/defistate/simplest-amm-client-go/differ"
	"github.com/defistate/simplest-amm-client-go/engine"
	"github.com/defistate/simplest-amm-client-go/fixedpoint"
	simplestamm "github.com/defistate/simplest-amm-client-go/protocols/simplestamm"
	"github.com/defistate/simplest-amm-client-go/streams/heads"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeStream struct {
	updates chan *heads.Update
	errs    chan error
}

func newFakeStream() *fakeStream {
	return &fakeStream{
		updates: make(chan *heads.Update, 4),
		errs:    make(chan error, 1),
	}
}

func (f *fakeStream) Updates() <-chan *heads.Update { return f.updates }
func (f *fakeStream) Err() <-chan error             { return f.errs }

func observationAt(block int64, pool simplestamm.Pool, wallet engine.Wallet) *engine.Observation {
	return &engine.Observation{
		ChainID: 31337,
		Account: accountAddr,
		Block:   engine.BlockSummary{Number: big.NewInt(block)},
		Pool:    pool,
		Wallet:  wallet,
	}
}

func newTestClient(t *testing.T, ctx context.Context, stream Stream) *Client {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	c, err := NewClient(ctx, stream, logger, prometheus.NewRegistry(), 4)
	require.NoError(t, err)
	return c
}

func receiveState(t *testing.T, c *Client) *State {
	t.Helper()
	select {
	case s, ok := <-c.State():
		require.True(t, ok, "state channel closed")
		return s
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for state")
		return nil
	}
}

func TestClientProcessesUpdates(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	stream := newFakeStream()
	c := newTestClient(t, ctx, stream)

	pool := simplestamm.Pool{
		ReserveETH:   fixedpoint.FromUnits(10),
		ReserveToken: fixedpoint.FromUnits(20),
		TotalLP:      fixedpoint.MustParseWei("14142135623730950488"),
	}
	wallet := engine.Wallet{ETH: fixedpoint.FromUnits(90), Token: fixedpoint.FromUnits(980)}
	stream.updates <- &heads.Update{Observation: observationAt(10, pool, wallet)}

	first := receiveState(t, c)
	assert.Nil(t, first.Changes)
	assert.Equal(t, uint64(10), first.Observation.BlockNumber())
	require.NotNil(t, first.RateETHToToken)
	assert.Equal(t, pool.ReserveToken, first.RateETHToToken.Numerator)
	assert.Equal(t, pool.ReserveETH, first.RateETHToToken.Denominator)
	require.NotNil(t, first.RateTokenToETH)
	assert.Equal(t, pool.ReserveETH, first.RateTokenToETH.Numerator)
	assert.NotZero(t, first.ProcessedAtUnixNs)

	moved := pool
	moved.ReserveETH = fixedpoint.FromUnits(11)
	moved.ReserveToken = fixedpoint.MustParseWei("18186778212239701737")
	stream.updates <- &heads.Update{
		Observation: observationAt(11, moved, wallet),
		PoolChanged: true,
	}

	second := receiveState(t, c)
	assert.True(t, second.PoolChanged)
	assert.Equal(t, uint64(11), second.Block().Number.Uint64())
	require.NotNil(t, second.Changes)
	assert.Equal(t, []string{differ.FieldReserveETH, differ.FieldReserveToken}, second.Changes.Fields())
}

func TestClientEmptyPoolHasNoRates(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	stream := newFakeStream()
	c := newTestClient(t, ctx, stream)

	stream.updates <- nil
	stream.updates <- &heads.Update{}
	stream.updates <- &heads.Update{Observation: observationAt(3, simplestamm.Pool{}, engine.Wallet{})}

	s := receiveState(t, c)
	assert.Equal(t, uint64(3), s.Observation.BlockNumber())
	assert.Nil(t, s.RateETHToToken)
	assert.Nil(t, s.RateTokenToETH)
}

func TestClientForwardsFatalError(t *testing.T) {
	stream := newFakeStream()
	c := newTestClient(t, context.Background(), stream)

	fatal := errors.New("reconnect attempts exhausted")
	stream.errs <- fatal
	close(stream.updates)

	select {
	case err := <-c.Err():
		assert.ErrorIs(t, err, fatal)
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for fatal error")
	}
	c.Wait()

	_, ok := <-c.State()
	assert.False(t, ok, "state channel should be closed")
}

func TestClientStopsOnContextCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	stream := newFakeStream()
	c := newTestClient(t, ctx, stream)

	cancel()
	c.Wait()

	_, ok := <-c.State()
	assert.False(t, ok)
	_, ok = <-c.Err()
	assert.False(t, ok)
}

func TestClientConfigValidation(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	reader := newTestReader(t, newFakeContract())

	_, err := NewClient(context.Background(), nil, logger, prometheus.NewRegistry(), 1)
	assert.Error(t, err)

	valid := ClientConfig{
		URL:      "ws://127.0.0.1:1",
		Account:  accountAddr,
		Reader:   reader,
		Logger:   logger,
		Registry: prometheus.NewRegistry(),
	}
	testCases := []struct {
		name   string
		mutate func(*ClientConfig)
	}{
		{"missing URL", func(c *ClientConfig) { c.URL = "" }},
		{"missing reader", func(c *ClientConfig) { c.Reader = nil }},
		{"missing logger", func(c *ClientConfig) { c.Logger = nil }},
		{"missing registry", func(c *ClientConfig) { c.Registry = nil }},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := valid
			tc.mutate(&cfg)
			_, err := Dial(context.Background(), cfg)
			assert.Error(t, err)
		})
	}
}
