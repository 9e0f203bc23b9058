package server

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/ogulcanaydogan/orbit-alerts/pkg/metrics"
	"github.com/ogulcanaydogan/orbit-alerts/pkg/model"
	"github.com/ogulcanaydogan/orbit-alerts/pkg/monitor"
	"github.com/ogulcanaydogan/orbit-alerts/pkg/notify"
	"github.com/ogulcanaydogan/orbit-alerts/pkg/storage"
)

const (
	requestTimeout = 10 * time.Second
	cronTimeout    = 60 * time.Second
	inboxLimit     = 50
)

const fallbackVoiceMessage = "This is an alert from ORBIT. One of your price alerts has triggered. Log into ORBIT to view details."

// CycleRunner runs a single price check cycle.
type CycleRunner interface {
	RunOnce(ctx context.Context) *monitor.CycleReport
}

// ChannelTester sends the synthetic test notification on one channel.
type ChannelTester interface {
	TestChannel(ctx context.Context, kind model.ChannelKind, prefs *model.Preferences) model.NotificationResult
}

// Pinger reports whether a dependency is reachable.
type Pinger func(ctx context.Context) error

// Deps are the components the API serves.
type Deps struct {
	Store      storage.Storage
	Monitor    CycleRunner
	Notifier   ChannelTester
	Metrics    *metrics.Metrics
	CachePing  Pinger
	CronSecret string
}

// Server provides the cron, inbox, voice and health endpoints.
type Server struct {
	deps   Deps
	mux    *http.ServeMux
	logger *slog.Logger
	now    func() time.Time
}

// NewServer creates an API server.
func NewServer(deps Deps, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Server{
		deps:   deps,
		mux:    http.NewServeMux(),
		logger: logger,
		now:    func() time.Time { return time.Now().UTC() },
	}
	s.routes()
	return s
}

func (s *Server) routes() {
	s.mux.HandleFunc("GET /healthz", s.handleHealth)
	s.mux.Handle("GET /metrics", s.deps.Metrics.Handler())

	s.mux.HandleFunc("GET /api/v1/cron/price-monitor", s.requireSecret(s.handlePriceMonitor))
	s.mux.HandleFunc("POST /api/v1/cron/price-monitor", s.requireSecret(s.handlePriceMonitor))
	s.mux.HandleFunc("GET /api/v1/cron/cleanup", s.requireSecret(s.handleCleanup))
	s.mux.HandleFunc("POST /api/v1/cron/cleanup", s.requireSecret(s.handleCleanup))

	// Twilio fetches call instructions with POST unless told otherwise.
	s.mux.HandleFunc("GET "+notify.TwiMLPath, s.handleTwiML)
	s.mux.HandleFunc("POST "+notify.TwiMLPath, s.handleTwiML)

	// user_id is trusted as given, so these share the cron secret.
	s.mux.HandleFunc("GET /api/v1/notifications", s.requireSecret(s.handleListNotifications))
	s.mux.HandleFunc("PUT /api/v1/notifications", s.requireSecret(s.handleMarkRead))
	s.mux.HandleFunc("POST /api/v1/notifications/test", s.requireSecret(s.handleTestChannel))
}

// Handler returns the HTTP handler for this server.
func (s *Server) Handler() http.Handler {
	return s.mux
}

type healthResponse struct {
	Status string            `json:"status"`
	Checks map[string]string `json:"checks"`
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	resp := healthResponse{Status: "ok", Checks: map[string]string{}}
	check := func(name string, ping Pinger) {
		if ping == nil {
			return
		}
		if err := ping(ctx); err != nil {
			s.logger.Warn("health check failed", "check", name, "error", err)
			resp.Status = "degraded"
			resp.Checks[name] = err.Error()
			return
		}
		resp.Checks[name] = "ok"
	}
	check("storage", s.deps.Store.Ping)
	check("redis", s.deps.CachePing)

	status := http.StatusOK
	if resp.Status != "ok" {
		status = http.StatusServiceUnavailable
	}
	writeJSON(w, status, resp)
}

func (s *Server) requireSecret(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if s.deps.CronSecret != "" {
			got := strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer ")
			if subtle.ConstantTimeCompare([]byte(got), []byte(s.deps.CronSecret)) != 1 {
				writeError(w, http.StatusUnauthorized, "unauthorized")
				return
			}
		}
		next(w, r)
	}
}

type cronResponse struct {
	Success bool   `json:"success"`
	Error   string `json:"error,omitempty"`
	*monitor.CycleReport
}

func (s *Server) handlePriceMonitor(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), cronTimeout)
	defer cancel()

	report := s.deps.Monitor.RunOnce(ctx)
	if report.Err != nil {
		writeJSON(w, http.StatusInternalServerError, cronResponse{Error: report.Err.Error(), CycleReport: report})
		return
	}
	writeJSON(w, http.StatusOK, cronResponse{Success: true, CycleReport: report})
}

type cleanupResponse struct {
	Success bool `json:"success"`
	*storage.CleanupResult
}

func (s *Server) handleCleanup(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), cronTimeout)
	defer cancel()

	res, err := s.deps.Store.Cleanup(ctx, s.now())
	if err != nil {
		s.logger.Error("cleanup", "error", err)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	s.logger.Info("cleanup finished",
		"deleted_notifications", res.DeletedNotifications,
		"deleted_alerts", res.DeletedAlerts,
		"archived_alerts", res.ArchivedAlerts,
	)
	writeJSON(w, http.StatusOK, cleanupResponse{Success: true, CleanupResult: res})
}

func (s *Server) handleTwiML(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	message := fallbackVoiceMessage

	token := model.NormalizeToken(q.Get("token"))
	condition := model.Condition(q.Get("condition"))
	target, terr := strconv.ParseFloat(q.Get("target"), 64)
	current, cerr := strconv.ParseFloat(q.Get("current"), 64)
	if token != "" && condition.Valid() && terr == nil && cerr == nil {
		message = notify.VoiceMessage(token, condition, target, current)
	}

	body, err := notify.RenderTwiML(message)
	if err != nil {
		s.logger.Error("render twiml", "error", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/xml")
	w.Write(body)
}

type notificationsResponse struct {
	Notifications []model.InboxNotification `json:"notifications"`
	UnreadCount   int                       `json:"unread_count"`
}

func (s *Server) handleListNotifications(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), requestTimeout)
	defer cancel()

	userID := r.URL.Query().Get("user_id")
	if userID == "" {
		writeError(w, http.StatusBadRequest, "user_id is required")
		return
	}

	list, err := s.deps.Store.ListNotifications(ctx, userID, inboxLimit)
	if err != nil {
		s.logger.Error("list notifications", "user_id", userID, "error", err)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}

	resp := notificationsResponse{Notifications: list}
	if resp.Notifications == nil {
		resp.Notifications = []model.InboxNotification{}
	}
	for _, n := range list {
		if !n.Read {
			resp.UnreadCount++
		}
	}
	writeJSON(w, http.StatusOK, resp)
}

type markReadRequest struct {
	UserID  string   `json:"user_id"`
	IDs     []string `json:"ids"`
	MarkAll bool     `json:"mark_all"`
}

func (s *Server) handleMarkRead(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), requestTimeout)
	defer cancel()

	var req markReadRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.UserID == "" {
		writeError(w, http.StatusBadRequest, "user_id is required")
		return
	}

	var (
		updated int64
		err     error
	)
	switch {
	case req.MarkAll:
		updated, err = s.deps.Store.MarkAllNotificationsRead(ctx, req.UserID)
	case len(req.IDs) > 0:
		updated, err = s.deps.Store.MarkNotificationsRead(ctx, req.UserID, req.IDs)
	default:
		writeError(w, http.StatusBadRequest, "ids or mark_all is required")
		return
	}
	if err != nil {
		s.logger.Error("mark notifications read", "user_id", req.UserID, "error", err)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{"success": true, "updated": updated})
}

type testChannelRequest struct {
	UserID  string `json:"user_id"`
	Channel string `json:"channel"`
}

func (s *Server) handleTestChannel(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), requestTimeout)
	defer cancel()

	var req testChannelRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	kind, err := model.ParseChannelKind(req.Channel)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if req.UserID == "" {
		writeError(w, http.StatusBadRequest, "user_id is required")
		return
	}

	prefs, err := s.deps.Store.GetPreferences(ctx, req.UserID)
	if errors.Is(err, storage.ErrNotFound) {
		writeError(w, http.StatusNotFound, "preferences not found")
		return
	}
	if err != nil {
		s.logger.Error("get preferences", "user_id", req.UserID, "error", err)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}

	writeJSON(w, http.StatusOK, s.deps.Notifier.TestChannel(ctx, kind, prefs))
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
