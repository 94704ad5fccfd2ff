package app

import (
	"context"
	"errors"
	"fmt"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/rs/zerolog"

	"campaign-signal-alerts/internal/alerting"
	"campaign-signal-alerts/internal/catalog"
	"campaign-signal-alerts/internal/config"
	"campaign-signal-alerts/internal/metrics"
	"campaign-signal-alerts/internal/resolve"
	"campaign-signal-alerts/internal/rules"
	"campaign-signal-alerts/internal/scheduler"
	"campaign-signal-alerts/internal/service"
	"campaign-signal-alerts/internal/storage"
	"campaign-signal-alerts/internal/suppression"
)

// App aggregates configuration and shared dependencies for the CLI commands.
type App struct {
	Config *config.Config
	Logger zerolog.Logger
}

// NewApp constructs a new application handle.
func NewApp(cfg *config.Config, logger zerolog.Logger) *App {
	return &App{Config: cfg, Logger: logger.With().Str("component", "app").Logger()}
}

func (a *App) openStore(ctx context.Context) (*storage.Store, func(), error) {
	if a.Config.Database.DSN == "" {
		return nil, nil, errors.New("database.dsn not configured")
	}

	pool, err := storage.NewPool(ctx, a.Config.Database)
	if err != nil {
		return nil, nil, err
	}

	guard := storage.NewQueryGuard(a.Config.Query)
	store := storage.NewStore(pool, guard, a.Config.Database.MetricsTable)
	closer := func() {
		store.Close()
	}
	return store, closer, nil
}

func (a *App) newNotifier() alerting.Notifier {
	var notifiers []alerting.Notifier
	if cfg := a.Config.Alerting.Lark; cfg.Enabled && cfg.WebhookURL != "" {
		notifiers = append(notifiers, alerting.NewLarkNotifier(cfg.WebhookURL, cfg.RequestTimeout, a.Logger))
	}
	if cfg := a.Config.Alerting.Telegram; cfg.Enabled {
		notifiers = append(notifiers, alerting.NewTelegramNotifier(cfg.BotToken, cfg.ChatID, cfg.APIBase, 10*time.Second, a.Logger))
	}

	multi := alerting.NewMultiNotifier(notifiers...)
	if multi.Empty() {
		return nil
	}
	return multi
}

func (a *App) newSuppressor() (*suppression.Controller, error) {
	cfg := a.Config.Suppression

	var store suppression.Store
	switch cfg.Backend {
	case "redis":
		client := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		store = suppression.NewRedisStore(client)
	case "file", "":
		store = suppression.NewFileStore(cfg.FilePath)
	default:
		return nil, fmt.Errorf("unknown suppression backend %q", cfg.Backend)
	}

	return suppression.NewController(store, cfg.Cycles, cfg.Retention, a.Logger), nil
}

// newService wires the evaluation pipeline over an open store. The
// scheduler may be nil for one-off invocations.
func (a *App) newService(store *storage.Store, sched *scheduler.Scheduler, notifier alerting.Notifier, suppressor *suppression.Controller) (*service.Service, error) {
	cat := catalog.New(store, a.Config.Catalog.RowCountCeiling, a.Logger)
	resolver := resolve.New(cat, a.Logger)
	view := metrics.NewView(store, a.Logger)

	ruleCfg := rules.ConfigFromSettings(a.Config.Rules)
	history := service.NewCTRHistory(resolver, view, ruleCfg.LookbackDays)
	engine, err := rules.NewEngine(ruleCfg, history, rules.NewOwnerParser(a.Config.Owners), a.Logger)
	if err != nil {
		return nil, err
	}

	return service.New(a.Config, sched, resolver, view, engine, suppressor, store, notifier, a.Logger), nil
}

// Run executes the long-running evaluation service.
func (a *App) Run(ctx context.Context) error {
	ctx, cancel := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	store, closeStore, err := a.openStore(ctx)
	if err != nil {
		return err
	}
	defer closeStore()

	sched := scheduler.New(scheduler.Options{
		Interval:     a.Config.Scheduler.Interval,
		AlignToStart: a.Config.Scheduler.AlignToBucket,
		StartupDelay: a.Config.Scheduler.StartupDelay,
	}, a.Logger)

	notifier := a.newNotifier()
	if notifier == nil {
		a.Logger.Warn().Msg("no notification channel configured; signals will only be persisted")
	}

	suppressor, err := a.newSuppressor()
	if err != nil {
		return err
	}

	svc, err := a.newService(store, sched, notifier, suppressor)
	if err != nil {
		return err
	}

	a.Logger.Info().Msg("starting evaluation service")
	err = svc.Run(ctx)
	if err != nil && !errors.Is(err, context.Canceled) {
		a.Logger.Error().Err(err).Msg("service terminated with error")
		return err
	}

	a.Logger.Info().Msg("evaluation service stopped")
	return nil
}

// Evaluate runs a single evaluation cycle for the current instant and
// exits. Intended for cron-style deployments and manual reruns.
func (a *App) Evaluate(ctx context.Context, at time.Time) error {
	store, closeStore, err := a.openStore(ctx)
	if err != nil {
		return err
	}
	defer closeStore()

	suppressor, err := a.newSuppressor()
	if err != nil {
		return err
	}

	svc, err := a.newService(store, nil, a.newNotifier(), suppressor)
	if err != nil {
		return err
	}

	bucket := at.Truncate(a.Config.Scheduler.Interval)
	return svc.EvaluateCycle(ctx, bucket)
}

// ReportOptions configure the report command.
type ReportOptions struct {
	Date        time.Time
	Granularity resolve.Granularity
	Comparison  resolve.Comparison
	ByCountry   bool
}

// ShowOptions configure the show command.
type ShowOptions struct {
	Limit int
}

// ExportOptions hold parameters for exporting daily rollups.
type ExportOptions struct {
	Channel   string
	From      time.Time
	To        time.Time
	PNGPath   string
	CSVPath   string
	MaxPoints int
}
