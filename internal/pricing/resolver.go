// Package pricing resolves current prices for positions, dispatching on venue
// and consulting the Redis price cache before any upstream API.
package pricing

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/helixtrade/helixbot/internal/domain"
)

// SymbolOracle returns the latest spot price for a CEX symbol.
type SymbolOracle interface {
	TickerPrice(ctx context.Context, symbol string) (float64, error)
}

// MintOracle returns the USD price for a DEX token mint.
type MintOracle interface {
	TokenPrice(ctx context.Context, mint string) (float64, error)
}

// Resolver resolves instrument prices. A cached price younger than
// staleAfter short-circuits the upstream call; anything older is treated as
// missing. DEX oracles form an ordered fallback chain.
type Resolver struct {
	cache      domain.PriceCache
	cex        map[string]SymbolOracle // keyed by exchange name
	dexChain   []MintOracle
	staleAfter time.Duration
	logger     *slog.Logger
}

// NewResolver creates a price resolver.
func NewResolver(
	cache domain.PriceCache,
	cex map[string]SymbolOracle,
	dexChain []MintOracle,
	staleAfter time.Duration,
	logger *slog.Logger,
) *Resolver {
	return &Resolver{
		cache:      cache,
		cex:        cex,
		dexChain:   dexChain,
		staleAfter: staleAfter,
		logger:     logger.With("component", "pricing"),
	}
}

// Resolve returns the current price for a position's instrument. Failures
// wrap domain.ErrPriceUnavailable so callers can treat them as transient.
func (r *Resolver) Resolve(ctx context.Context, p domain.Position) (float64, error) {
	if price, ok := r.cached(ctx, p.Instrument); ok {
		return price, nil
	}

	var price float64
	var err error
	switch p.Venue {
	case domain.VenueCEX:
		price, err = r.resolveCEX(ctx, p.ExchangeName, p.Instrument)
	case domain.VenueDEX:
		price, err = r.resolveDEX(ctx, p.Instrument)
	default:
		return 0, fmt.Errorf("pricing: unknown venue %q: %w", p.Venue, domain.ErrPriceUnavailable)
	}
	if err != nil {
		return 0, err
	}

	if cacheErr := r.cache.SetPrice(ctx, p.Instrument, price, time.Now()); cacheErr != nil {
		r.logger.Warn("price cache write failed",
			"instrument", p.Instrument, "error", cacheErr)
	}
	return price, nil
}

// cached returns a fresh cached price, if one exists.
func (r *Resolver) cached(ctx context.Context, instrument string) (float64, bool) {
	price, ts, err := r.cache.GetPrice(ctx, instrument)
	if err != nil {
		if !errors.Is(err, domain.ErrNotFound) {
			r.logger.Warn("price cache read failed",
				"instrument", instrument, "error", err)
		}
		return 0, false
	}
	if time.Since(ts) > r.staleAfter {
		return 0, false
	}
	return price, true
}

func (r *Resolver) resolveCEX(ctx context.Context, exchange, symbol string) (float64, error) {
	oracle, ok := r.cex[exchange]
	if !ok {
		return 0, fmt.Errorf("pricing: no oracle for exchange %q: %w", exchange, domain.ErrPriceUnavailable)
	}

	price, err := oracle.TickerPrice(ctx, symbol)
	if err != nil {
		return 0, fmt.Errorf("pricing: cex ticker %s: %w: %v", symbol, domain.ErrPriceUnavailable, err)
	}
	if price <= 0 {
		return 0, fmt.Errorf("pricing: cex ticker %s returned %g: %w", symbol, price, domain.ErrPriceUnavailable)
	}
	return price, nil
}

// resolveDEX walks the oracle chain in order, returning the first usable
// price.
func (r *Resolver) resolveDEX(ctx context.Context, mint string) (float64, error) {
	var lastErr error
	for i, oracle := range r.dexChain {
		price, err := oracle.TokenPrice(ctx, mint)
		if err != nil {
			lastErr = err
			r.logger.Debug("dex oracle failed, trying next",
				"instrument", mint, "oracle", i, "error", err)
			continue
		}
		if price > 0 {
			return price, nil
		}
	}
	if lastErr == nil {
		lastErr = errors.New("no dex oracles configured")
	}
	return 0, fmt.Errorf("pricing: dex price %s: %w: %v", mint, domain.ErrPriceUnavailable, lastErr)
}
