// Command watcher polls ETF option quotes and tracks the premium
// differential between two selected spread groups, serving results over a
// JSON API.
package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/tianyi-liu/premiumdiff/internal/catalog"
	"github.com/tianyi-liu/premiumdiff/internal/config"
	"github.com/tianyi-liu/premiumdiff/internal/dashboard"
	"github.com/tianyi-liu/premiumdiff/internal/engine"
	"github.com/tianyi-liu/premiumdiff/internal/market"
	"github.com/tianyi-liu/premiumdiff/internal/mock"
	"github.com/tianyi-liu/premiumdiff/internal/models"
	"github.com/tianyi-liu/premiumdiff/internal/provider"
	"github.com/tianyi-liu/premiumdiff/internal/storage"
	"github.com/tianyi-liu/premiumdiff/internal/tracking"
)

const (
	tickInterval   = 1 * time.Second
	refreshTimeout = 30 * time.Second
)

func main() {
	configPath := flag.String("config", "config.yaml", "path to config file")
	flag.Parse()

	log := logrus.New()
	log.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.WithError(err).Fatal("config load failed")
	}
	level, err := logrus.ParseLevel(cfg.Environment.LogLevel)
	if err != nil {
		level = logrus.InfoLevel
	}
	log.SetLevel(level)

	prov := buildProvider(cfg, log)

	cat := catalog.New(prov, log, catalog.Config{
		CacheTTL:     cfg.CatalogTTL(),
		LookbackDays: cfg.Catalog.LookbackDays,
	})
	fetcher := market.NewFetcher(prov)
	tracker := tracking.New(cfg.Refresh.HistorySize)

	var store *storage.Store
	if cfg.Storage.Path != "" {
		store = storage.NewStore(cfg.Storage.Path)
		if snap, err := store.Load(); err != nil {
			log.WithError(err).Warn("tracking snapshot load failed, starting clean")
		} else if snap != nil {
			tracker.Restore(snap.Tracking)
			log.Infof("tracking state restored from %s", cfg.Storage.Path)
		}
	}

	eng := engine.New(engine.Config{
		Logger:   log,
		Catalog:  cat,
		Fetcher:  fetcher,
		Batch:    market.NewBatchFetcher(fetcher, 0),
		Tracker:  tracker,
		Store:    store,
		Interval: cfg.RefreshInterval(),
	})
	eng.SetAutoRefresh(cfg.Refresh.AutoStart)
	if cfg.Selection.Underlying != "" {
		if class, ok := models.ClassByName(cfg.Selection.Underlying); ok {
			eng.SelectUnderlying(class)
		} else {
			log.Warnf("unknown underlying %q in config, ignoring", cfg.Selection.Underlying)
		}
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	srv := dashboard.NewServer(cfg.Dashboard.Port, eng, cat, log, cfg.Dashboard.AuthToken)
	go func() {
		if err := srv.Start(); err != nil {
			log.WithError(err).Error("dashboard server failed")
			stop()
		}
	}()

	log.Info("watcher started")
	run(ctx, log, eng)

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.WithError(err).Warn("dashboard shutdown incomplete")
	}
	log.Info("watcher stopped")
}

// run drives the refresh loop until the context is cancelled.
func run(ctx context.Context, log *logrus.Logger, eng *engine.Engine) {
	ticker := time.NewTicker(tickInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			if !eng.RefreshDue(now) {
				continue
			}
			cycleCtx, cancel := context.WithTimeout(ctx, refreshTimeout)
			if _, err := eng.Refresh(cycleCtx); err != nil {
				log.WithError(err).Error("refresh cycle failed")
			}
			cancel()
		}
	}
}

func buildProvider(cfg *config.Config, log *logrus.Logger) provider.Interface {
	if cfg.Provider.Mode == "mock" {
		log.Info("using mock data provider")
		return mock.NewProvider()
	}

	opts := []provider.Option{provider.WithTimeout(cfg.ProviderTimeout())}
	if cfg.Provider.RatePerMinute > 0 {
		opts = append(opts, provider.WithRateLimit(cfg.Provider.RatePerMinute))
	}
	client := provider.NewClient(cfg.Provider.BaseURL, log, opts...)
	return provider.NewCircuitBreakerProvider(client, log)
}
