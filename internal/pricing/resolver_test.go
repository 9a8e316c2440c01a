package pricing

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/helixtrade/helixbot/internal/domain"
)

type fakeCache struct {
	prices map[string]float64
	times  map[string]time.Time
	sets   int
}

func newFakeCache() *fakeCache {
	return &fakeCache{
		prices: map[string]float64{},
		times:  map[string]time.Time{},
	}
}

func (c *fakeCache) SetPrice(_ context.Context, instrument string, price float64, ts time.Time) error {
	c.prices[instrument] = price
	c.times[instrument] = ts
	c.sets++
	return nil
}

func (c *fakeCache) GetPrice(_ context.Context, instrument string) (float64, time.Time, error) {
	price, ok := c.prices[instrument]
	if !ok {
		return 0, time.Time{}, domain.ErrNotFound
	}
	return price, c.times[instrument], nil
}

func (c *fakeCache) GetPrices(_ context.Context, instruments []string) (map[string]float64, error) {
	out := map[string]float64{}
	for _, id := range instruments {
		if p, ok := c.prices[id]; ok {
			out[id] = p
		}
	}
	return out, nil
}

type fakeSymbolOracle struct {
	price float64
	err   error
	calls int
}

func (o *fakeSymbolOracle) TickerPrice(_ context.Context, _ string) (float64, error) {
	o.calls++
	return o.price, o.err
}

type fakeMintOracle struct {
	price float64
	err   error
	calls int
}

func (o *fakeMintOracle) TokenPrice(_ context.Context, _ string) (float64, error) {
	o.calls++
	return o.price, o.err
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func cexPosition(symbol string) domain.Position {
	return domain.Position{
		ID:           "pos-1",
		Venue:        domain.VenueCEX,
		Instrument:   symbol,
		ExchangeName: "binance",
		Side:         domain.SideLong,
		Status:       domain.PositionStatusOpen,
	}
}

func dexPosition(mint string) domain.Position {
	return domain.Position{
		ID:         "pos-2",
		Venue:      domain.VenueDEX,
		Instrument: mint,
		Side:       domain.SideLong,
		Status:     domain.PositionStatusOpen,
	}
}

func TestResolveCEXWritesThroughCache(t *testing.T) {
	cache := newFakeCache()
	oracle := &fakeSymbolOracle{price: 104.5}
	r := NewResolver(cache, map[string]SymbolOracle{"binance": oracle}, nil, time.Minute, testLogger())

	price, err := r.Resolve(context.Background(), cexPosition("SOLUSDT"))
	require.NoError(t, err)
	assert.Equal(t, 104.5, price)
	assert.Equal(t, 1, cache.sets)
	assert.Equal(t, 104.5, cache.prices["SOLUSDT"])
}

func TestResolveUsesFreshCachedPrice(t *testing.T) {
	cache := newFakeCache()
	require.NoError(t, cache.SetPrice(context.Background(), "SOLUSDT", 99.0, time.Now()))
	cache.sets = 0

	oracle := &fakeSymbolOracle{price: 104.5}
	r := NewResolver(cache, map[string]SymbolOracle{"binance": oracle}, nil, time.Minute, testLogger())

	price, err := r.Resolve(context.Background(), cexPosition("SOLUSDT"))
	require.NoError(t, err)
	assert.Equal(t, 99.0, price)
	assert.Equal(t, 0, oracle.calls)
}

func TestResolveIgnoresStaleCachedPrice(t *testing.T) {
	cache := newFakeCache()
	require.NoError(t, cache.SetPrice(context.Background(), "SOLUSDT", 99.0, time.Now().Add(-5*time.Minute)))

	oracle := &fakeSymbolOracle{price: 104.5}
	r := NewResolver(cache, map[string]SymbolOracle{"binance": oracle}, nil, time.Minute, testLogger())

	price, err := r.Resolve(context.Background(), cexPosition("SOLUSDT"))
	require.NoError(t, err)
	assert.Equal(t, 104.5, price)
	assert.Equal(t, 1, oracle.calls)
}

func TestResolveDEXFallbackChain(t *testing.T) {
	cache := newFakeCache()
	primary := &fakeMintOracle{err: errors.New("upstream down")}
	fallback := &fakeMintOracle{price: 0.0042}
	r := NewResolver(cache, nil, []MintOracle{primary, fallback}, time.Minute, testLogger())

	price, err := r.Resolve(context.Background(), dexPosition("So11111111111111111111111111111111111111112"))
	require.NoError(t, err)
	assert.Equal(t, 0.0042, price)
	assert.Equal(t, 1, primary.calls)
	assert.Equal(t, 1, fallback.calls)
}

func TestResolveDEXAllOraclesFail(t *testing.T) {
	cache := newFakeCache()
	primary := &fakeMintOracle{err: errors.New("down")}
	fallback := &fakeMintOracle{err: errors.New("also down")}
	r := NewResolver(cache, nil, []MintOracle{primary, fallback}, time.Minute, testLogger())

	_, err := r.Resolve(context.Background(), dexPosition("mint"))
	assert.ErrorIs(t, err, domain.ErrPriceUnavailable)
}

func TestResolveUnknownExchange(t *testing.T) {
	r := NewResolver(newFakeCache(), map[string]SymbolOracle{}, nil, time.Minute, testLogger())

	p := cexPosition("SOLUSDT")
	p.ExchangeName = "kraken"
	_, err := r.Resolve(context.Background(), p)
	assert.ErrorIs(t, err, domain.ErrPriceUnavailable)
}

func TestResolveRejectsNonPositivePrice(t *testing.T) {
	oracle := &fakeSymbolOracle{price: 0}
	r := NewResolver(newFakeCache(), map[string]SymbolOracle{"binance": oracle}, nil, time.Minute, testLogger())

	_, err := r.Resolve(context.Background(), cexPosition("SOLUSDT"))
	assert.ErrorIs(t, err, domain.ErrPriceUnavailable)
}
