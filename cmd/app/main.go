package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/CrisisCore-Systems/Autotrader-sub003/internal/app"
	"github.com/CrisisCore-Systems/Autotrader-sub003/internal/broker"
	"github.com/CrisisCore-Systems/Autotrader-sub003/internal/domain"
	"github.com/CrisisCore-Systems/Autotrader-sub003/internal/engine"
	"github.com/CrisisCore-Systems/Autotrader-sub003/internal/infra/feed"
	"github.com/CrisisCore-Systems/Autotrader-sub003/internal/oms"
	"github.com/CrisisCore-Systems/Autotrader-sub003/internal/resiliency"
	"github.com/CrisisCore-Systems/Autotrader-sub003/internal/strategy"
	"github.com/CrisisCore-Systems/Autotrader-sub003/pkg/quant"
)

// logAlerter routes kill switch alerts to the log when no external
// pager is wired.
type logAlerter struct{}

func (logAlerter) Notify(alert domain.Alert) {
	slog.Error("ALERT",
		slog.String("severity", string(alert.Severity)),
		slog.String("source", alert.Source),
		slog.String("message", alert.Message))
}

func main() {
	// 1. System Bootstrapping
	bootstrap := app.NewBootstrap()
	if err := bootstrap.Initialize(); err != nil {
		slog.Error("❌ Bootstrapping failed", slog.Any("error", err))
		os.Exit(1)
	}
	defer bootstrap.Close()
	cfg := bootstrap.Config

	// 2. Graceful Shutdown Context
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM, syscall.SIGQUIT)
	defer stop()

	// 3. Broker Adapter (mode-gated factory)
	adapter, err := broker.NewAdapter(cfg)
	if err != nil {
		slog.Error("❌ Adapter setup failed", slog.Any("error", err))
		os.Exit(1)
	}

	// 4. Execution Core: ledger, resiliency layer, strategy, engine
	ledger := oms.NewManager().WithJournal(bootstrap.Journal)
	submit := resiliency.NewManager(adapter, resiliency.ConfigFrom(cfg, adapter.Name())).
		WithDeadLetterSink(bootstrap.Journal)

	var strat strategy.Strategy
	if len(cfg.Feed.Symbols) > 0 {
		// One momentum instance on the primary symbol.
		strat = strategy.NewMomentumStrategy(cfg.Feed.Symbols[0], 5, 20, quant.ToQtySats(0.001))
	}

	eng := engine.NewEngine(adapter, ledger, submit, strat)
	killSwitch := engine.NewKillSwitch(eng, logAlerter{})

	if err := eng.Connect(ctx); err != nil {
		slog.Error("❌ Venue connect failed", slog.Any("error", err))
		os.Exit(1)
	}
	slog.InfoContext(ctx, "✅ Execution engine connected", slog.String("adapter", adapter.Name()))

	g, gctx := errgroup.WithContext(ctx)

	// 5. Market Data Feed (Gateway)
	// The paper venue doubles as the price sink so resting orders see
	// the same ticks the strategy does.
	ticks := make(chan domain.MarketState, 1024)
	if cfg.Feed.WSURL != "" {
		var sink feed.PriceSink
		if paper, ok := adapter.(*broker.PaperAdapter); ok {
			sink = paper
		}
		worker := feed.NewWorker(cfg.Feed.WSURL, cfg.Feed.Symbols, sink, func(state domain.MarketState) {
			select {
			case ticks <- state:
			default:
				// Strategy lags behind the feed; drop the tick rather
				// than block the read loop.
			}
		})
		if err := worker.Connect(gctx); err != nil {
			slog.Error("Failed to connect feed", slog.Any("error", err))
		}
		defer worker.Disconnect()
		slog.InfoContext(ctx, "✅ Ticker feed started",
			slog.String("url", cfg.Feed.WSURL),
			slog.Int("symbols", len(cfg.Feed.Symbols)))
	}

	// 6. Decision Loop
	if strat != nil {
		g.Go(func() error {
			for {
				select {
				case <-gctx.Done():
					return nil
				case state := <-ticks:
					for _, d := range strat.OnMarketUpdate(state) {
						if _, err := eng.ExecuteDecision(gctx, d); err != nil {
							slog.Warn("Decision execution failed",
								slog.String("action", string(d.Action)),
								slog.String("symbol", d.Symbol),
								slog.Any("error", err))
						}
					}
				}
			}
		})
	}

	// 7. Status heartbeat
	g.Go(func() error {
		ticker := time.NewTicker(30 * time.Second)
		defer ticker.Stop()
		for {
			select {
			case <-gctx.Done():
				return nil
			case <-ticker.C:
				st := eng.GetStatus()
				slog.Info("Heartbeat",
					slog.Bool("connected", st.Connected),
					slog.String("strategy", st.Strategy),
					slog.Int("orders", st.Metrics.TotalOrders),
					slog.Float64("fill_rate", st.Metrics.FillRate),
					slog.String("circuit", st.Resiliency.CircuitState),
					slog.Int("dlq", st.Resiliency.DLQSize))
			}
		}
	})

	slog.InfoContext(ctx, "✨ Autotrader fully operational. Press Ctrl+C to exit.")

	<-ctx.Done()
	slog.Info("👋 Shutting down gracefully...")

	// Shutdown through the kill switch so working orders are cancelled
	// before the session drops.
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	killSwitch.Activate(shutdownCtx, "shutdown signal")

	if err := g.Wait(); err != nil {
		slog.Error("Worker error during shutdown", slog.Any("error", err))
	}
}
