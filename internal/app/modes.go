package app

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/helixtrade/helixbot/internal/crypto"
	"github.com/helixtrade/helixbot/internal/executor"
	"github.com/helixtrade/helixbot/internal/feed"
	"github.com/helixtrade/helixbot/internal/monitor"
	"github.com/helixtrade/helixbot/internal/platform/binance"
	"github.com/helixtrade/helixbot/internal/platform/dexscreener"
	"github.com/helixtrade/helixbot/internal/platform/jupiter"
	"github.com/helixtrade/helixbot/internal/platform/solana"
	"github.com/helixtrade/helixbot/internal/pricing"
	"github.com/helixtrade/helixbot/internal/server"
	"github.com/helixtrade/helixbot/internal/server/handler"
	"github.com/helixtrade/helixbot/internal/service"
)

// coreServices bundles the services shared by the monitor, serve, and full
// modes: price resolution, exit execution, the closure pipeline, and the
// user-facing position/user/fee services.
type coreServices struct {
	resolver    *pricing.Resolver
	gateway     *executor.Gateway
	closer      *monitor.Closer
	positionSvc *service.PositionService
	userSvc     *service.UserService
	feeSvc      *service.FeeService
}

// buildCore constructs the shared service graph from wired dependencies.
func (a *App) buildCore(deps *Dependencies) (*coreServices, error) {
	box, err := crypto.NewSecretBox(a.cfg.Security.MasterPassword)
	if err != nil {
		return nil, fmt.Errorf("build core: secret box: %w", err)
	}

	userSvc := service.NewUserService(
		deps.UserStore, deps.WalletStore, box,
		binance.Config{BaseURL: a.cfg.Binance.BaseURL},
		a.logger,
	).WithSessions(deps.SessionStore)

	feeSvc := service.NewFeeService(deps.FeeStore, a.cfg.Fees.Rate, a.logger)

	// Price oracles. The public Binance client needs no credentials; it is
	// registered under the empty exchange name too so positions recorded
	// without an explicit exchange still resolve.
	spot := binance.NewClient("", "", binance.Config{BaseURL: a.cfg.Binance.BaseURL})
	cex := map[string]pricing.SymbolOracle{
		"":        spot,
		"binance": spot,
	}
	jup := jupiter.NewClient(a.cfg.Solana.JupiterQuoteHosts, a.cfg.Solana.JupiterPriceHost)
	dexChain := []pricing.MintOracle{
		dexscreener.NewClient(a.cfg.Solana.DexScreenerHost),
		jup,
	}
	resolver := pricing.NewResolver(
		deps.PriceCache, cex, dexChain,
		a.cfg.Monitor.PriceStaleAfter.Duration,
		a.logger,
	)

	rpc := solana.NewClient(a.cfg.Solana.RPCURL)
	gateway := executor.NewGateway(userSvc, userSvc, jup, rpc, a.cfg.Monitor.DedupTTL.Duration, a.logger)

	closer := monitor.NewCloser(
		deps.PositionStore, gateway, deps.LockManager,
		feeSvc, deps.SignalBus, deps.AuditStore, deps.Notifier,
		a.logger,
	)

	riskSvc := service.NewRiskService(deps.PositionStore, deps.PriceCache, service.RiskConfig{
		MaxPositions:     a.cfg.Risk.MaxPositions,
		MaxNotional:      a.cfg.Risk.MaxNotional,
		MaxTotalExposure: a.cfg.Risk.MaxTotalExposure,
	}, a.logger)

	positionSvc := service.NewPositionService(
		deps.PositionStore, resolver, closer,
		deps.SignalBus, deps.AuditStore,
		a.logger,
	).WithRiskChecker(riskSvc)

	return &coreServices{
		resolver:    resolver,
		gateway:     gateway,
		closer:      closer,
		positionSvc: positionSvc,
		userSvc:     userSvc,
		feeSvc:      feeSvc,
	}, nil
}

// MonitorMode runs the position monitor, the exit gateway, the optional
// Binance ticker feed, and the HTTP server when enabled.
func (a *App) MonitorMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting monitor mode")

	core, err := a.buildCore(deps)
	if err != nil {
		return fmt.Errorf("monitor mode: %w", err)
	}

	g, ctx := errgroup.WithContext(ctx)

	a.startMonitor(ctx, g, deps, core)

	if a.cfg.Server.Enabled {
		a.startHTTPServer(ctx, g, deps, core)
	}

	return g.Wait()
}

// ServeMode runs only the HTTP API. The monitor loop stays off; manual closes
// through the API still go through the full closure pipeline.
func (a *App) ServeMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting serve mode")

	core, err := a.buildCore(deps)
	if err != nil {
		return fmt.Errorf("serve mode: %w", err)
	}

	g, ctx := errgroup.WithContext(ctx)

	// The gateway loop only garbage-collects dedup entries, but manual
	// closes depend on it running.
	g.Go(func() error {
		return core.gateway.Run(ctx)
	})

	// Serve mode always starts the HTTP server regardless of server.enabled.
	a.startHTTPServer(ctx, g, deps, core)

	return g.Wait()
}

// ArchiveMode performs a one-shot archive sweep of closed positions and fee
// records older than the retention cutoff, then exits.
func (a *App) ArchiveMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting archive mode",
		slog.Int("retention_days", a.cfg.Archive.RetentionDays),
	)
	return a.runArchiveSweep(ctx, deps)
}

// FullMode runs every subsystem: monitoring, the optional ticker feed, the
// HTTP server, and a daily archive sweep.
func (a *App) FullMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting full mode")

	core, err := a.buildCore(deps)
	if err != nil {
		return fmt.Errorf("full mode: %w", err)
	}

	g, ctx := errgroup.WithContext(ctx)

	a.startMonitor(ctx, g, deps, core)

	// Daily archive sweep.
	g.Go(func() error {
		ticker := time.NewTicker(24 * time.Hour)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-ticker.C:
				if err := a.runArchiveSweep(ctx, deps); err != nil {
					a.logger.WarnContext(ctx, "archive sweep failed",
						slog.String("error", err.Error()),
					)
				}
			}
		}
	})

	if a.cfg.Server.Enabled {
		a.startHTTPServer(ctx, g, deps, core)
	}

	return g.Wait()
}

// startMonitor adds the monitor loop, the exit gateway loop, and the optional
// Binance ticker feed to the errgroup.
func (a *App) startMonitor(ctx context.Context, g *errgroup.Group, deps *Dependencies, core *coreServices) {
	mon := monitor.New(
		deps.PositionStore, core.resolver, core.closer, deps.Notifier,
		monitor.Config{
			Interval:              a.cfg.Monitor.Interval.Duration,
			BackstopInterval:      a.cfg.Monitor.BackstopInterval.Duration,
			MaxConcurrent:         int64(a.cfg.Monitor.MaxConcurrent),
			FailureAlertThreshold: a.cfg.Monitor.FailureAlertThreshold,
		},
		a.logger,
	)

	g.Go(func() error {
		return core.gateway.Run(ctx)
	})
	g.Go(func() error {
		return mon.Run(ctx)
	})

	if len(a.cfg.Binance.FeedSymbols) > 0 {
		tickerFeed := feed.NewBinanceTickerFeed(
			a.cfg.Binance.WSURL,
			a.cfg.Binance.FeedSymbols,
			deps.PriceCache,
			a.logger,
		)
		g.Go(func() error {
			defer tickerFeed.Close()
			return tickerFeed.Run(ctx)
		})
	}
}

// runArchiveSweep archives closed positions and fee records older than the
// retention cutoff.
func (a *App) runArchiveSweep(ctx context.Context, deps *Dependencies) error {
	if deps.Archiver == nil {
		return fmt.Errorf("archive sweep: archiver not wired for mode %q", a.cfg.Mode)
	}

	cutoff := time.Now().UTC().AddDate(0, 0, -a.cfg.Archive.RetentionDays)

	positions, err := deps.Archiver.ArchiveClosedPositions(ctx, cutoff)
	if err != nil {
		return fmt.Errorf("archive sweep: positions: %w", err)
	}
	fees, err := deps.Archiver.ArchiveFees(ctx, cutoff)
	if err != nil {
		return fmt.Errorf("archive sweep: fees: %w", err)
	}

	a.logger.InfoContext(ctx, "archive sweep complete",
		slog.Int64("positions", positions),
		slog.Int64("fees", fees),
		slog.Time("cutoff", cutoff),
	)
	return nil
}

// startHTTPServer adds the HTTP server and its shutdown watcher to the
// errgroup.
func (a *App) startHTTPServer(ctx context.Context, g *errgroup.Group, deps *Dependencies, core *coreServices) {
	handlers := server.Handlers{
		Health:    handler.NewHealthHandler(a.logger),
		Positions: handler.NewPositionHandler(core.positionSvc, a.logger),
		Fees:      handler.NewFeeHandler(core.feeSvc, a.logger),
	}

	srv := server.NewServer(server.Config{
		Port:        a.cfg.Server.Port,
		CORSOrigins: a.cfg.Server.CORSOrigins,
		APIKey:      a.cfg.Server.APIKey,
		RateLimit:   a.cfg.Server.RateLimit,
		RateWindow:  a.cfg.Server.RateWindow.Duration,
	}, handlers, deps.RateLimiter, a.logger)

	g.Go(func() error {
		return srv.Start()
	})
	g.Go(func() error {
		<-ctx.Done()
		shutCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutCtx)
	})
}
