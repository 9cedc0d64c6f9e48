package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/rs/zerolog"

	"vault-capacity-alerts/internal/alerting"
	"vault-capacity-alerts/internal/config"
	"vault-capacity-alerts/internal/fetcher"
	"vault-capacity-alerts/internal/metrics"
	"vault-capacity-alerts/internal/scheduler"
	"vault-capacity-alerts/internal/service"
	"vault-capacity-alerts/internal/storage"
)

// App aggregates configuration and shared dependencies for the CLI commands.
type App struct {
	Config *config.Config
	Logger zerolog.Logger
	Out    io.Writer
}

// NewApp constructs a new application handle.
func NewApp(cfg *config.Config, logger zerolog.Logger) *App {
	return &App{Config: cfg, Logger: logger.With().Str("component", "app").Logger(), Out: os.Stdout}
}

func (a *App) newFetcher() *fetcher.Sui {
	return fetcher.NewSui(fetcher.SuiOptions{
		RPCURL:          a.Config.Sui.RPCURL,
		Timeout:         a.Config.Sui.RequestTimeout,
		BreakerFailures: a.Config.Sui.BreakerFailures,
		BreakerCooldown: a.Config.Sui.BreakerCooldown,
	}, a.Logger)
}

func (a *App) newNotifier() alerting.Notifier {
	if a.Config.Alerting.Telegram.Enabled {
		cfg := a.Config.Alerting.Telegram
		return alerting.NewTelegramNotifier(cfg.BotToken, cfg.APIBase, cfg.Timeout, a.Logger)
	}
	return alerting.NewLogNotifier(a.Logger)
}

func (a *App) openStore(ctx context.Context) (storage.ThresholdStore, error) {
	switch a.Config.Database.Driver {
	case config.DriverPostgres:
		return storage.OpenPostgres(ctx, a.Config.Database)
	case config.DriverSQLite:
		return storage.OpenSQLite(a.Config.Database.Path)
	default:
		return nil, fmt.Errorf("unsupported database driver %q", a.Config.Database.Driver)
	}
}

func (a *App) newService(sched *scheduler.Scheduler, poolFetcher fetcher.PoolStateFetcher, store storage.ThresholdStore, notifier alerting.Notifier, m *metrics.Metrics) (*service.Service, error) {
	tracked, err := a.Config.TrackedAssets()
	if err != nil {
		return nil, err
	}
	return service.New(service.Options{
		Assets:          tracked,
		MaxConcurrency:  a.Config.Dispatch.MaxConcurrency,
		StoreTimeout:    a.Config.Dispatch.StoreTimeout,
		AdvisoryLockKey: a.Config.Scheduler.AdvisoryLockKey,
	}, sched, poolFetcher, store, notifier, m, a.Logger), nil
}

// withService opens the store and fetcher for a one-shot command.
func (a *App) withService(ctx context.Context, fn func(svc *service.Service) error) error {
	store, err := a.openStore(ctx)
	if err != nil {
		return err
	}
	defer store.Close()

	sui := a.newFetcher()
	defer sui.Close()

	svc, err := a.newService(nil, sui, store, a.newNotifier(), nil)
	if err != nil {
		return err
	}
	defer svc.Close()

	return fn(svc)
}

// Run executes the long-running polling service.
func (a *App) Run(ctx context.Context) error {
	ctx, cancel := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	store, err := a.openStore(ctx)
	if err != nil {
		return err
	}
	defer store.Close()

	sui := a.newFetcher()
	defer sui.Close()

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.New(registry)

	metricsErr := make(chan error, 1)
	if listen := a.Config.Metrics.Listen; listen != "" {
		go func() {
			metricsErr <- metrics.Serve(ctx, listen, registry, a.Logger)
		}()
	}

	sched := scheduler.New(scheduler.Options{
		Interval:     a.Config.Scheduler.Interval,
		StartupDelay: a.Config.Scheduler.StartupDelay,
	}, a.Logger)

	svc, err := a.newService(sched, sui, store, a.newNotifier(), m)
	if err != nil {
		return err
	}
	defer svc.Close()

	a.Logger.Info().
		Str("driver", a.Config.Database.Driver).
		Strs("assets", a.Config.Assets.Tracked).
		Dur("interval", a.Config.Scheduler.Interval).
		Msg("starting capacity alert service")

	err = svc.Run(ctx)
	if err != nil && !errors.Is(err, context.Canceled) {
		a.Logger.Error().Err(err).Msg("service terminated with error")
		return err
	}

	select {
	case mErr := <-metricsErr:
		if mErr != nil {
			a.Logger.Error().Err(mErr).Msg("metrics listener failed")
		}
	default:
	}

	a.Logger.Info().Msg("capacity alert service stopped")
	return nil
}
