package server_test

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ogulcanaydogan/orbit-alerts/internal/server"
	"github.com/ogulcanaydogan/orbit-alerts/pkg/metrics"
	"github.com/ogulcanaydogan/orbit-alerts/pkg/model"
	"github.com/ogulcanaydogan/orbit-alerts/pkg/monitor"
	"github.com/ogulcanaydogan/orbit-alerts/pkg/notify"
	"github.com/ogulcanaydogan/orbit-alerts/pkg/storage"
)

type stubRunner struct {
	report *monitor.CycleReport
	calls  int
}

func (s *stubRunner) RunOnce(context.Context) *monitor.CycleReport {
	s.calls++
	return s.report
}

type fixture struct {
	store  *storage.SQLStore
	runner *stubRunner
	deps   server.Deps
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	store, err := storage.NewSQLite(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
	runner := &stubRunner{report: &monitor.CycleReport{ActiveAlerts: 2, Triggered: 1}}
	notifier := notify.NewService(notify.Channels{InApp: notify.NewInApp(store)}, logger)

	return &fixture{
		store:  store,
		runner: runner,
		deps: server.Deps{
			Store:    store,
			Monitor:  runner,
			Notifier: notifier,
			Metrics:  metrics.New(),
		},
	}
}

func (f *fixture) serve(req *http.Request) *httptest.ResponseRecorder {
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
	w := httptest.NewRecorder()
	server.NewServer(f.deps, logger).Handler().ServeHTTP(w, req)
	return w
}

func decode(t *testing.T, w *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var resp map[string]any
	require.NoError(t, json.NewDecoder(w.Body).Decode(&resp))
	return resp
}

func TestServer_Health(t *testing.T) {
	f := newFixture(t)

	w := f.serve(httptest.NewRequest("GET", "/healthz", nil))
	assert.Equal(t, http.StatusOK, w.Code)

	resp := decode(t, w)
	assert.Equal(t, "ok", resp["status"])
	assert.Equal(t, map[string]any{"storage": "ok"}, resp["checks"])
}

func TestServer_HealthDegraded(t *testing.T) {
	f := newFixture(t)
	f.deps.CachePing = func(context.Context) error { return errors.New("connection refused") }

	w := f.serve(httptest.NewRequest("GET", "/healthz", nil))
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)

	resp := decode(t, w)
	assert.Equal(t, "degraded", resp["status"])
	checks := resp["checks"].(map[string]any)
	assert.Equal(t, "ok", checks["storage"])
	assert.Equal(t, "connection refused", checks["redis"])
}

func TestServer_Metrics(t *testing.T) {
	f := newFixture(t)

	w := f.serve(httptest.NewRequest("GET", "/metrics", nil))
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "go_goroutines")
}

func TestServer_PriceMonitor(t *testing.T) {
	f := newFixture(t)

	for _, method := range []string{"GET", "POST"} {
		w := f.serve(httptest.NewRequest(method, "/api/v1/cron/price-monitor", nil))
		assert.Equal(t, http.StatusOK, w.Code)

		resp := decode(t, w)
		assert.Equal(t, true, resp["success"])
		assert.Equal(t, float64(2), resp["active_alerts"])
		assert.Equal(t, float64(1), resp["triggered"])
	}
	assert.Equal(t, 2, f.runner.calls)
}

func TestServer_PriceMonitorCycleError(t *testing.T) {
	f := newFixture(t)
	f.runner.report = &monitor.CycleReport{Err: errors.New("fetch prices: timeout")}

	w := f.serve(httptest.NewRequest("POST", "/api/v1/cron/price-monitor", nil))
	assert.Equal(t, http.StatusInternalServerError, w.Code)

	resp := decode(t, w)
	assert.Equal(t, false, resp["success"])
	assert.Equal(t, "fetch prices: timeout", resp["error"])
}

func TestServer_CronSecret(t *testing.T) {
	f := newFixture(t)
	f.deps.CronSecret = "s3cret"

	w := f.serve(httptest.NewRequest("GET", "/api/v1/cron/price-monitor", nil))
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	req := httptest.NewRequest("GET", "/api/v1/cron/price-monitor", nil)
	req.Header.Set("Authorization", "Bearer wrong")
	w = f.serve(req)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Equal(t, 0, f.runner.calls)

	req = httptest.NewRequest("GET", "/api/v1/cron/price-monitor", nil)
	req.Header.Set("Authorization", "Bearer s3cret")
	w = f.serve(req)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, 1, f.runner.calls)
}

func TestServer_Cleanup(t *testing.T) {
	f := newFixture(t)

	w := f.serve(httptest.NewRequest("POST", "/api/v1/cron/cleanup", nil))
	assert.Equal(t, http.StatusOK, w.Code)

	resp := decode(t, w)
	assert.Equal(t, true, resp["success"])
	assert.Equal(t, float64(0), resp["deleted_notifications"])
	assert.Equal(t, float64(0), resp["deleted_alerts"])
	assert.Equal(t, float64(0), resp["archived_alerts"])
}

func TestServer_TwiML(t *testing.T) {
	f := newFixture(t)

	w := f.serve(httptest.NewRequest("POST", "/api/v1/voice/twiml?token=btc&condition=above&target=50000&current=51000", nil))
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "text/xml", w.Header().Get("Content-Type"))

	body := w.Body.String()
	assert.True(t, strings.HasPrefix(body, "<?xml"))
	assert.Contains(t, body, `<Say voice="alice">This is an alert from ORBIT. BTC has risen above your target price of $50,000.00. The current price is $51,000.00.`)
	assert.Contains(t, body, `<Pause length="1"></Pause>`)
}

func TestServer_TwiMLFallback(t *testing.T) {
	f := newFixture(t)

	w := f.serve(httptest.NewRequest("GET", "/api/v1/voice/twiml?token=BTC&condition=sideways", nil))
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "One of your price alerts has triggered.")
}

func seedInbox(t *testing.T, store *storage.SQLStore, userID string, n int) []string {
	t.Helper()
	ids := make([]string, 0, n)
	for range n {
		note := &model.InboxNotification{
			UserID:       userID,
			AlertID:      "a1",
			Type:         "price_alert",
			Title:        "BTC Price Alert",
			Message:      "BTC is now above $50,000.00",
			Token:        "BTC",
			Condition:    model.ConditionAbove,
			TargetPrice:  50000,
			CurrentPrice: 51000,
		}
		require.NoError(t, store.CreateNotification(t.Context(), note))
		ids = append(ids, note.ID)
	}
	return ids
}

func TestServer_ListNotifications(t *testing.T) {
	f := newFixture(t)
	seedInbox(t, f.store, "u1", 3)
	seedInbox(t, f.store, "u2", 1)

	w := f.serve(httptest.NewRequest("GET", "/api/v1/notifications?user_id=u1", nil))
	assert.Equal(t, http.StatusOK, w.Code)

	resp := decode(t, w)
	assert.Len(t, resp["notifications"], 3)
	assert.Equal(t, float64(3), resp["unread_count"])

	w = f.serve(httptest.NewRequest("GET", "/api/v1/notifications?user_id=nobody", nil))
	resp = decode(t, w)
	assert.Equal(t, []any{}, resp["notifications"])

	w = f.serve(httptest.NewRequest("GET", "/api/v1/notifications", nil))
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestServer_MarkRead(t *testing.T) {
	f := newFixture(t)
	ids := seedInbox(t, f.store, "u1", 3)

	w := f.serve(httptest.NewRequest("PUT", "/api/v1/notifications",
		strings.NewReader(`{"user_id":"u1","ids":["`+ids[0]+`"]}`)))
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, float64(1), decode(t, w)["updated"])

	w = f.serve(httptest.NewRequest("PUT", "/api/v1/notifications",
		strings.NewReader(`{"user_id":"u1","mark_all":true}`)))
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, float64(2), decode(t, w)["updated"])

	w = f.serve(httptest.NewRequest("GET", "/api/v1/notifications?user_id=u1", nil))
	assert.Equal(t, float64(0), decode(t, w)["unread_count"])
}

func TestServer_MarkReadBadRequest(t *testing.T) {
	f := newFixture(t)

	for _, body := range []string{`not json`, `{"ids":["x"]}`, `{"user_id":"u1"}`} {
		w := f.serve(httptest.NewRequest("PUT", "/api/v1/notifications", strings.NewReader(body)))
		assert.Equal(t, http.StatusBadRequest, w.Code, body)
	}
}

func TestServer_TestChannel(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.store.UpsertPreferences(t.Context(), &model.Preferences{
		UserID:   "u1",
		Channels: model.ChannelList{model.ChannelInApp},
	}))

	w := f.serve(httptest.NewRequest("POST", "/api/v1/notifications/test",
		strings.NewReader(`{"user_id":"u1","channel":"in-app"}`)))
	assert.Equal(t, http.StatusOK, w.Code)

	resp := decode(t, w)
	assert.Equal(t, true, resp["success"])
	assert.Equal(t, "in-app", resp["channel"])

	inbox, err := f.store.ListNotifications(t.Context(), "u1", 10)
	require.NoError(t, err)
	require.Len(t, inbox, 1)
	assert.Equal(t, "test-alert", inbox[0].AlertID)

	w = f.serve(httptest.NewRequest("POST", "/api/v1/notifications/test",
		strings.NewReader(`{"user_id":"u1","channel":"slack"}`)))
	assert.Equal(t, http.StatusOK, w.Code)
	resp = decode(t, w)
	assert.Equal(t, false, resp["success"])
	assert.Equal(t, notify.MsgChannelNotFound, resp["error"])
}

func TestServer_TestChannelErrors(t *testing.T) {
	f := newFixture(t)

	w := f.serve(httptest.NewRequest("POST", "/api/v1/notifications/test",
		strings.NewReader(`{"user_id":"u1","channel":"pigeon"}`)))
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = f.serve(httptest.NewRequest("POST", "/api/v1/notifications/test",
		strings.NewReader(`{"user_id":"ghost","channel":"email"}`)))
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestServer_UserRoutesRequireSecret(t *testing.T) {
	f := newFixture(t)
	f.deps.CronSecret = "s3cret"
	seedInbox(t, f.store, "u1", 1)

	requests := []func() *http.Request{
		func() *http.Request { return httptest.NewRequest("GET", "/api/v1/notifications?user_id=u1", nil) },
		func() *http.Request {
			return httptest.NewRequest("PUT", "/api/v1/notifications", strings.NewReader(`{"user_id":"u1","mark_all":true}`))
		},
		func() *http.Request {
			return httptest.NewRequest("POST", "/api/v1/notifications/test", strings.NewReader(`{"user_id":"u1","channel":"in-app"}`))
		},
	}
	for _, newReq := range requests {
		req := newReq()
		w := f.serve(req)
		assert.Equal(t, http.StatusUnauthorized, w.Code, req.URL.Path)
	}

	unread, err := f.store.ListNotifications(t.Context(), "u1", 10)
	require.NoError(t, err)
	require.Len(t, unread, 1)
	assert.False(t, unread[0].Read)

	req := requests[0]()
	req.Header.Set("Authorization", "Bearer s3cret")
	w := f.serve(req)
	assert.Equal(t, http.StatusOK, w.Code)
}
