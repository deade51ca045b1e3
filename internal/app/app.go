package app

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"github.com/letrung1998vn/currency-exchange/internal/config"
	"github.com/letrung1998vn/currency-exchange/internal/fetcher"
	"github.com/letrung1998vn/currency-exchange/internal/metrics"
	"github.com/letrung1998vn/currency-exchange/internal/scheduler"
	"github.com/letrung1998vn/currency-exchange/internal/secure"
	"github.com/letrung1998vn/currency-exchange/internal/server"
	"github.com/letrung1998vn/currency-exchange/internal/service"
	"github.com/letrung1998vn/currency-exchange/internal/storage"
	"github.com/letrung1998vn/currency-exchange/internal/syncer"
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

func (a *App) newFeed() fetcher.RateFeed {
	return fetcher.NewFeed(fetcher.FeedOptions{
		BaseURL:       a.Config.Feed.BaseURL,
		QuoteCurrency: a.Config.Feed.QuoteCurrency,
		Timeout:       a.Config.Feed.RequestTimeout,
		UserAgent:     a.Config.Feed.UserAgent,
		RetryAttempts: a.Config.Feed.RetryAttempts,
		RetryDelay:    a.Config.Feed.RetryDelay,
	}, a.Logger)
}

// openStore returns the rate store, the advisory locker when the backend
// supports one, and a close func. Without a DSN the in-memory store is used
// and nothing persists across restarts.
func (a *App) openStore(ctx context.Context) (storage.ExchangeRateStore, storage.AdvisoryLocker, func(), error) {
	if a.Config.Database.DSN == "" {
		a.Logger.Warn().Msg("database.dsn not configured; using in-memory store")
		return storage.NewMemoryStore(), nil, func() {}, nil
	}

	pool, err := storage.NewPool(ctx, a.Config.Database)
	if err != nil {
		return nil, nil, nil, err
	}

	store := storage.NewStore(pool)
	return store, store, store.Close, nil
}

func (a *App) newSyncer(feed fetcher.RateFeed, rates *service.RateService, sched *scheduler.Scheduler, locker storage.AdvisoryLocker, m *metrics.Metrics) *syncer.Syncer {
	return syncer.New(syncer.Options{
		WatchList:  a.Config.Feed.WatchList,
		OnConflict: a.Config.Feed.OnConflict,
		LockKey:    a.Config.Scheduler.AdvisoryLockKey,
	}, feed, rates, sched, locker, m, a.Logger)
}

// Serve runs the HTTP API and the daily sync loop until interrupted.
func (a *App) Serve(ctx context.Context) error {
	ctx, cancel := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	store, locker, closeStore, err := a.openStore(ctx)
	if err != nil {
		return err
	}
	defer closeStore()

	rates := service.New(store, a.Logger)
	feed := a.newFeed()
	keyring := secure.NewKeyring()
	appMetrics := metrics.NewMetrics()

	sched := scheduler.New(scheduler.Options{
		Interval:     a.Config.Scheduler.Interval,
		AlignToStart: a.Config.Scheduler.AlignToDay,
		StartupDelay: a.Config.Scheduler.StartupDelay,
	}, a.Logger)
	sync := a.newSyncer(feed, rates, sched, locker, appMetrics)

	handler := server.NewHandler(rates, feed, keyring, a.Config.Secure.KeyBits, a.Logger)
	router := server.NewRouter(handler, a.Logger, appMetrics)

	srv := &http.Server{
		Addr:         a.Config.Server.Addr,
		Handler:      router.Routes(),
		ReadTimeout:  a.Config.Server.ReadTimeout,
		WriteTimeout: a.Config.Server.WriteTimeout,
		IdleTimeout:  a.Config.Server.IdleTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		a.Logger.Info().Str("addr", srv.Addr).Msg("starting http server")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	go func() {
		if err := sync.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			a.Logger.Error().Err(err).Msg("sync loop terminated")
		}
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	a.Logger.Info().Msg("shutting down")
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), a.Config.Server.ShutdownTimeout)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}

	a.Logger.Info().Msg("server stopped")
	return nil
}

// Sync executes a single sync pass for the given day (ingesting the
// [day-1, day] feed window).
func (a *App) Sync(ctx context.Context, day time.Time) error {
	store, _, closeStore, err := a.openStore(ctx)
	if err != nil {
		return err
	}
	defer closeStore()

	rates := service.New(store, a.Logger)
	sync := a.newSyncer(a.newFeed(), rates, nil, nil, nil)
	return sync.SyncPass(ctx, day)
}

// ShowOptions configure the show command.
type ShowOptions struct {
	Limit int
}

// ExportOptions hold parameters for exporting stored rate history.
type ExportOptions struct {
	Base      string
	From      *time.Time
	To        *time.Time
	PNGPath   string
	CSVPath   string
	MaxPoints int
}
