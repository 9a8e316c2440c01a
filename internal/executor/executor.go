// Package executor turns a close decision into a filled exit order, routing
// to the right venue and guarding against duplicate execution.
package executor

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"time"

	"github.com/helixtrade/helixbot/internal/crypto"
	"github.com/helixtrade/helixbot/internal/domain"
	"github.com/helixtrade/helixbot/internal/platform/jupiter"
	"github.com/helixtrade/helixbot/internal/platform/solana"
)

// CEXTrader places spot market orders on a centralized exchange.
type CEXTrader interface {
	MarketOrder(ctx context.Context, symbol string, side domain.Side, quantity float64) (domain.ExitFill, error)
}

// TraderSource resolves an authenticated CEX trading session for an owner.
// It returns domain.ErrAuthRequired when the owner has no stored credentials
// for the exchange.
type TraderSource interface {
	Trader(ctx context.Context, ownerID int64, exchange string) (CEXTrader, error)
}

// SignerSource resolves an owner's Solana signing keypair from their primary
// wallet.
type SignerSource interface {
	Signer(ctx context.Context, ownerID int64) (*crypto.Keypair, error)
}

// Gateway executes exit orders. CEX exits go through a per-owner
// authenticated market order; DEX exits go through a Jupiter swap signed with
// the owner's wallet and submitted to the Solana RPC.
type Gateway struct {
	traders TraderSource
	signers SignerSource
	jup     *jupiter.Client
	rpc     *solana.Client
	dedup   *Dedup
	logger  *slog.Logger

	cleanupInterval time.Duration
}

// NewGateway creates an exit execution gateway. dedupTTL bounds how long an
// executed position id blocks re-execution; zero or negative selects a
// 2-minute default.
func NewGateway(
	traders TraderSource,
	signers SignerSource,
	jup *jupiter.Client,
	rpc *solana.Client,
	dedupTTL time.Duration,
	logger *slog.Logger,
) *Gateway {
	if dedupTTL <= 0 {
		dedupTTL = 2 * time.Minute
	}
	return &Gateway{
		traders:         traders,
		signers:         signers,
		jup:             jup,
		rpc:             rpc,
		dedup:           NewDedup(dedupTTL),
		logger:          logger.With(slog.String("component", "executor")),
		cleanupInterval: 30 * time.Second,
	}
}

// ExecuteExit flattens a position at market and returns the fill. A position
// id seen within the dedup TTL is rejected without touching the venue; the
// entry is dropped again when execution fails so a later cycle can retry.
func (g *Gateway) ExecuteExit(ctx context.Context, p domain.Position) (domain.ExitFill, error) {
	if g.dedup.IsDuplicate(p.ID) {
		return domain.ExitFill{}, fmt.Errorf("executor: exit already in flight for %s: %w", p.ID, domain.ErrPositionClosed)
	}

	log := g.logger.With(
		slog.String("position_id", p.ID),
		slog.String("venue", string(p.Venue)),
		slog.String("instrument", p.Instrument),
		slog.String("side", string(p.Side)),
	)

	var fill domain.ExitFill
	var err error
	switch p.Venue {
	case domain.VenueCEX:
		fill, err = g.executeCEX(ctx, p)
	case domain.VenueDEX:
		fill, err = g.executeDEX(ctx, p)
	default:
		err = fmt.Errorf("executor: unknown venue %q", p.Venue)
	}

	if err != nil {
		g.dedup.Forget(p.ID)
		log.Error("exit execution failed", slog.String("error", err.Error()))
		return domain.ExitFill{}, err
	}

	log.Info("exit executed",
		slog.Float64("filled_price", fill.FilledPrice),
		slog.Float64("filled_amount", fill.FilledAmount),
		slog.String("reference", fill.Reference),
	)
	return fill, nil
}

// executeCEX places the opposite-side spot market order.
func (g *Gateway) executeCEX(ctx context.Context, p domain.Position) (domain.ExitFill, error) {
	trader, err := g.traders.Trader(ctx, p.OwnerID, p.ExchangeName)
	if err != nil {
		return domain.ExitFill{}, fmt.Errorf("executor: trader for owner %d: %w", p.OwnerID, err)
	}

	fill, err := trader.MarketOrder(ctx, p.Instrument, p.ExitSide(), p.Amount)
	if err != nil {
		return domain.ExitFill{}, fmt.Errorf("executor: cex exit %s: %w", p.ID, err)
	}
	return fill, nil
}

// executeDEX sells the position's token back to USDC through Jupiter: quote,
// build, sign with the owner's wallet, submit, confirm.
func (g *Gateway) executeDEX(ctx context.Context, p domain.Position) (domain.ExitFill, error) {
	if p.Side != domain.SideLong {
		return domain.ExitFill{}, fmt.Errorf("executor: dex exit %s: short positions are not supported on dex", p.ID)
	}

	signer, err := g.signers.Signer(ctx, p.OwnerID)
	if err != nil {
		return domain.ExitFill{}, fmt.Errorf("executor: wallet for owner %d: %w", p.OwnerID, err)
	}

	decimals, err := g.rpc.TokenDecimals(ctx, p.Instrument)
	if err != nil {
		return domain.ExitFill{}, fmt.Errorf("executor: token decimals %s: %w", p.Instrument, err)
	}

	baseUnits := uint64(math.Round(p.Amount * math.Pow10(decimals)))
	if baseUnits == 0 {
		return domain.ExitFill{}, fmt.Errorf("executor: dex exit %s: amount %g rounds to zero base units", p.ID, p.Amount)
	}

	slippage := p.SlippageBps
	if slippage <= 0 {
		slippage = 100
	}

	quote, err := g.jup.GetQuote(ctx, p.Instrument, jupiter.USDCMint, baseUnits, slippage)
	if err != nil {
		return domain.ExitFill{}, fmt.Errorf("executor: dex exit %s: %w", p.ID, err)
	}

	txBase64, err := g.jup.BuildSwapTransaction(ctx, quote, signer.PublicKey())
	if err != nil {
		return domain.ExitFill{}, fmt.Errorf("executor: dex exit %s: %w", p.ID, err)
	}

	signedTx, err := signer.SignTransaction(txBase64)
	if err != nil {
		return domain.ExitFill{}, fmt.Errorf("executor: dex exit %s: %w", p.ID, err)
	}

	signature, err := g.rpc.SendTransaction(ctx, signedTx)
	if err != nil {
		return domain.ExitFill{}, fmt.Errorf("executor: dex exit %s: %w", p.ID, err)
	}

	if err := g.rpc.ConfirmTransaction(ctx, signature); err != nil {
		return domain.ExitFill{}, fmt.Errorf("executor: dex exit %s: %w", p.ID, err)
	}

	// USDC has 6 decimals; the quote's out amount is the realized proceeds.
	proceeds := float64(quote.OutAmount) / 1e6
	return domain.ExitFill{
		FilledPrice:  proceeds / p.Amount,
		FilledAmount: p.Amount,
		Reference:    signature,
	}, nil
}

// Run garbage-collects the dedup map until the context is cancelled.
func (g *Gateway) Run(ctx context.Context) error {
	ticker := time.NewTicker(g.cleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			g.dedup.Cleanup()
		}
	}
}
