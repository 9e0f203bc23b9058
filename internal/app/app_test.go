package app_test

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ogulcanaydogan/orbit-alerts/internal/app"
	"github.com/ogulcanaydogan/orbit-alerts/internal/config"
	"github.com/ogulcanaydogan/orbit-alerts/pkg/model"
	"github.com/ogulcanaydogan/orbit-alerts/pkg/notify"
)

func testConfig(t *testing.T, priceURL string) *config.Config {
	t.Helper()
	cfg := &config.Config{}
	cfg.Storage.Driver = "sqlite"
	cfg.Storage.Path = filepath.Join(t.TempDir(), "orbit.db")
	cfg.Monitor.Cooldown = time.Hour
	cfg.Monitor.Concurrency = 2
	cfg.PriceFeed.BaseURL = priceURL
	cfg.PriceFeed.Timeout = 5 * time.Second
	cfg.App.URL = "https://orbit.example"
	cfg.Logging.Level = "error"
	return cfg
}

func coinGecko(t *testing.T, body string) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(body))
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestNew_RunOnceDeliversToInbox(t *testing.T) {
	srv := coinGecko(t, `{"bitcoin":{"usd":51000}}`)
	cfg := testConfig(t, srv.URL)

	a, err := app.New(cfg, nil)
	require.NoError(t, err)
	t.Cleanup(func() { a.Close() })

	ctx := t.Context()
	require.NoError(t, a.Store.UpsertPreferences(ctx, &model.Preferences{
		UserID:   "u1",
		Channels: model.ChannelList{model.ChannelInApp},
	}))
	require.NoError(t, a.Store.CreateAlert(ctx, &model.Alert{
		UserID:      "u1",
		Token:       "btc",
		Condition:   model.ConditionAbove,
		TargetPrice: 50000,
		Active:      true,
		Channels:    model.ChannelList{model.ChannelInApp, model.ChannelEmail},
	}))

	report := a.Monitor.RunOnce(ctx)
	require.NoError(t, report.Err)
	assert.Equal(t, 1, report.Triggered)

	inbox, err := a.Store.ListNotifications(ctx, "u1", 10)
	require.NoError(t, err)
	require.Len(t, inbox, 1)
	assert.Equal(t, "BTC", inbox[0].Token)
	assert.NoError(t, a.PingCache(ctx))
}

func TestNew_CoinIDsOverride(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "pepe-token", r.URL.Query().Get("ids"))
		w.Write([]byte(`{"pepe-token":{"usd":0.0000123}}`))
	}))
	t.Cleanup(srv.Close)

	cfg := testConfig(t, srv.URL)
	cfg.PriceFeed.CoinIDsFile = filepath.Join(t.TempDir(), "coins.yaml")
	require.NoError(t, os.WriteFile(cfg.PriceFeed.CoinIDsFile, []byte("coins:\n  PEPE: pepe-token\n"), 0o644))

	a, err := app.New(cfg, nil)
	require.NoError(t, err)
	t.Cleanup(func() { a.Close() })

	prices, err := a.Feed.GetPrices(t.Context(), []string{"PEPE"})
	require.NoError(t, err)
	assert.InDelta(t, 0.0000123, prices["PEPE"], 1e-12)
}

func TestNew_MissingCoinIDsFile(t *testing.T) {
	cfg := testConfig(t, "http://127.0.0.1:1")
	cfg.PriceFeed.CoinIDsFile = filepath.Join(t.TempDir(), "missing.yaml")

	_, err := app.New(cfg, nil)
	assert.Error(t, err)
}

func TestOpenStorage_UnsupportedDriver(t *testing.T) {
	cfg := testConfig(t, "")
	cfg.Storage.Driver = "mysql"

	_, err := app.OpenStorage(cfg)
	assert.Error(t, err)
}

func TestNewChannels_UnconfiguredProviders(t *testing.T) {
	cfg := testConfig(t, "")
	svc := notify.NewService(app.NewChannels(cfg, nil), nil)

	prefs := &model.Preferences{
		UserID:         "u1",
		Email:          "a@example.com",
		TelegramChatID: "42",
		Channels:       model.AllChannelKinds,
	}
	for _, kind := range []model.ChannelKind{model.ChannelEmail, model.ChannelSMS, model.ChannelTelegram, model.ChannelInApp} {
		res := svc.TestChannel(t.Context(), kind, prefs)
		assert.False(t, res.Success, kind)
		assert.Equal(t, notify.MsgChannelNotConfigured, res.Error, kind)
	}
}

func TestNewLogger(t *testing.T) {
	cfg := &config.Config{}
	cfg.Logging.Level = "warn"
	cfg.Logging.Format = "text"

	var buf bytes.Buffer
	logger := app.NewLogger(cfg, &buf)
	logger.Info("hidden")
	logger.Warn("shown", "k", "v")

	assert.NotContains(t, buf.String(), "hidden")
	assert.Contains(t, buf.String(), "msg=shown k=v")
}

func TestHTTPServer_Health(t *testing.T) {
	cfg := testConfig(t, "")
	cfg.Server.Listen = ":9999"

	a, err := app.New(cfg, nil)
	require.NoError(t, err)
	t.Cleanup(func() { a.Close() })

	srv := a.HTTPServer()
	assert.Equal(t, ":9999", srv.Addr)
	assert.Equal(t, 30*time.Second, srv.ReadTimeout)

	w := httptest.NewRecorder()
	srv.Handler.ServeHTTP(w, httptest.NewRequest("GET", "/healthz", nil))
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestServe_GracefulShutdown(t *testing.T) {
	cfg := testConfig(t, coinGecko(t, `{}`).URL)
	cfg.Server.Listen = "127.0.0.1:0"
	cfg.Monitor.Enabled = true
	cfg.Monitor.Interval = time.Hour

	a, err := app.New(cfg, nil)
	require.NoError(t, err)
	t.Cleanup(func() { a.Close() })

	ctx, cancel := context.WithCancel(t.Context())
	errCh := make(chan error, 1)
	go func() { errCh <- a.Serve(ctx) }()

	require.Eventually(t, a.Monitor.Running, time.Second, 10*time.Millisecond)
	cancel()

	select {
	case err := <-errCh:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("Serve did not return after cancel")
	}
	assert.False(t, a.Monitor.Running())
}
