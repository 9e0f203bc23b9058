// Package app wires configuration into the storage, price feed, channels and
// monitor shared by the CLI and the daemon.
package app

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/ogulcanaydogan/orbit-alerts/internal/config"
	"github.com/ogulcanaydogan/orbit-alerts/internal/server"
	"github.com/ogulcanaydogan/orbit-alerts/pkg/metrics"
	"github.com/ogulcanaydogan/orbit-alerts/pkg/monitor"
	"github.com/ogulcanaydogan/orbit-alerts/pkg/notify"
	"github.com/ogulcanaydogan/orbit-alerts/pkg/pricefeed"
	"github.com/ogulcanaydogan/orbit-alerts/pkg/storage"
)

// App holds the fully wired components.
type App struct {
	Config   *config.Config
	Logger   *slog.Logger
	Store    storage.Storage
	Redis    *redis.Client
	Feed     pricefeed.Feed
	Notifier *notify.Service
	Metrics  *metrics.Metrics
	Monitor  *monitor.Monitor
}

// New builds every component from cfg. The caller must Close the result.
func New(cfg *config.Config, logger *slog.Logger) (*App, error) {
	if logger == nil {
		logger = NewLogger(cfg, os.Stderr)
	}

	store, err := OpenStorage(cfg)
	if err != nil {
		return nil, fmt.Errorf("init storage: %w", err)
	}

	feed, rdb, err := newFeed(cfg, logger)
	if err != nil {
		store.Close()
		return nil, fmt.Errorf("init price feed: %w", err)
	}

	notifier := notify.NewService(NewChannels(cfg, store), logger)
	mt := metrics.New()

	mon := monitor.New(store, store, feed, notifier, logger,
		monitor.WithCooldown(cfg.Monitor.Cooldown),
		monitor.WithConcurrency(cfg.Monitor.Concurrency),
		monitor.WithMetrics(mt),
	)

	return &App{
		Config:   cfg,
		Logger:   logger,
		Store:    store,
		Redis:    rdb,
		Feed:     feed,
		Notifier: notifier,
		Metrics:  mt,
		Monitor:  mon,
	}, nil
}

// Close stops the monitor and releases connections.
func (a *App) Close() error {
	a.Monitor.Stop()
	if a.Redis != nil {
		if err := a.Redis.Close(); err != nil {
			a.Logger.Warn("close redis", "error", err)
		}
	}
	return a.Store.Close()
}

// PingCache checks the price cache. It is a no-op when redis is disabled.
func (a *App) PingCache(ctx context.Context) error {
	if a.Redis == nil {
		return nil
	}
	return a.Redis.Ping(ctx).Err()
}

// HTTPServer builds the API server on the configured listen address.
func (a *App) HTTPServer() *http.Server {
	api := server.NewServer(server.Deps{
		Store:      a.Store,
		Monitor:    a.Monitor,
		Notifier:   a.Notifier,
		Metrics:    a.Metrics,
		CachePing:  a.PingCache,
		CronSecret: a.Config.Server.CronSecret,
	}, a.Logger)

	readTimeout := a.Config.Server.ReadTimeout
	if readTimeout == 0 {
		readTimeout = 30 * time.Second
	}
	writeTimeout := a.Config.Server.WriteTimeout
	if writeTimeout == 0 {
		writeTimeout = 60 * time.Second
	}

	return &http.Server{
		Addr:         a.Config.Server.Listen,
		Handler:      api.Handler(),
		ReadTimeout:  readTimeout,
		WriteTimeout: writeTimeout,
	}
}

// Serve runs the HTTP API, and the continuous monitor when enabled, until
// ctx is cancelled. On shutdown the in-flight price check is drained before
// the listener closes.
func (a *App) Serve(ctx context.Context) error {
	srv := a.HTTPServer()

	if a.Config.Monitor.Enabled {
		// Stop below owns the schedule's lifetime.
		a.Monitor.Start(context.WithoutCancel(ctx), a.Config.Monitor.Interval)
	}

	errCh := make(chan error, 1)
	go func() {
		a.Logger.Info("orbit started", "listen", srv.Addr, "monitor", a.Config.Monitor.Enabled)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		a.Monitor.Stop()
		return fmt.Errorf("server error: %w", err)
	case <-ctx.Done():
	}

	a.Logger.Info("shutting down")
	a.Monitor.Stop()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown error: %w", err)
	}

	a.Logger.Info("orbit stopped")
	return nil
}

// NewLogger creates a structured logger from config.
func NewLogger(cfg *config.Config, w io.Writer) *slog.Logger {
	level := slog.LevelInfo
	switch cfg.Logging.Level {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	}

	var handler slog.Handler
	if cfg.Logging.Format == "text" {
		handler = slog.NewTextHandler(w, &slog.HandlerOptions{Level: level})
	} else {
		handler = slog.NewJSONHandler(w, &slog.HandlerOptions{Level: level})
	}

	return slog.New(handler)
}

// OpenStorage opens the configured database. SQLite uses the file path,
// other drivers the DSN.
func OpenStorage(cfg *config.Config) (storage.Storage, error) {
	switch cfg.Storage.Driver {
	case "", storage.DriverSQLite:
		return storage.NewSQLite(cfg.Storage.Path)
	default:
		return storage.Open(cfg.Storage.Driver, cfg.Storage.DSN)
	}
}

// NewChannels builds one channel per known kind from provider credentials.
// Channels without credentials are still registered and fail validation.
func NewChannels(cfg *config.Config, inbox notify.InboxStore) notify.Channels {
	ch := cfg.Channels
	twilio := notify.TwilioConfig{
		AccountSID: ch.Twilio.AccountSID,
		AuthToken:  ch.Twilio.AuthToken,
		FromNumber: ch.Twilio.FromNumber,
		BaseURL:    ch.Twilio.BaseURL,
	}

	return notify.Channels{
		InApp: notify.NewInApp(inbox),
		Email: notify.NewEmail(notify.EmailConfig{
			APIKey:  ch.Email.APIKey,
			From:    ch.Email.From,
			BaseURL: ch.Email.BaseURL,
			AppURL:  cfg.App.URL,
		}),
		SMS:   notify.NewSMS(twilio, cfg.App.URL),
		Phone: notify.NewPhone(twilio, cfg.App.URL),
		Telegram: notify.NewTelegram(notify.TelegramConfig{
			BotToken: ch.Telegram.BotToken,
			BaseURL:  ch.Telegram.BaseURL,
			AppURL:   cfg.App.URL,
		}),
		Slack: notify.NewSlack(notify.SlackConfig{
			AllowedPrefix: ch.Slack.AllowedPrefix,
			AppURL:        cfg.App.URL,
		}),
		Webhook: notify.NewWebhook(ch.Webhook.Secret),
	}
}

func newFeed(cfg *config.Config, logger *slog.Logger) (pricefeed.Feed, *redis.Client, error) {
	ids := pricefeed.NewCoinIDs()
	if cfg.PriceFeed.CoinIDsFile != "" {
		overrides, err := pricefeed.LoadCoinIDs(cfg.PriceFeed.CoinIDsFile)
		if err != nil {
			return nil, nil, err
		}
		ids.Merge(overrides)
	}

	var feed pricefeed.Feed = pricefeed.NewCoinGecko(pricefeed.CoinGeckoConfig{
		BaseURL: cfg.PriceFeed.BaseURL,
		APIKey:  cfg.PriceFeed.APIKey,
		Timeout: cfg.PriceFeed.Timeout,
	}, ids)

	if !cfg.Redis.Enabled {
		return feed, nil, nil
	}

	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	return pricefeed.NewCachedFeed(feed, rdb, cfg.Redis.PriceTTL, logger), rdb, nil
}
