// Package monitor runs the periodic price check that fires user alerts.
package monitor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/sourcegraph/conc/pool"

	"github.com/ogulcanaydogan/orbit-alerts/pkg/metrics"
	"github.com/ogulcanaydogan/orbit-alerts/pkg/model"
	"github.com/ogulcanaydogan/orbit-alerts/pkg/storage"
)

const (
	DefaultCooldown    = time.Hour
	DefaultInterval    = time.Minute
	DefaultConcurrency = 8
)

// AlertStore is the subset of alert storage the monitor needs.
type AlertStore interface {
	ListActiveAlerts(ctx context.Context) ([]model.Alert, error)
	UpdateTriggered(ctx context.Context, id string, at time.Time) error
}

// PreferenceStore returns storage.ErrNotFound for users without preferences.
type PreferenceStore interface {
	GetPreferences(ctx context.Context, userID string) (*model.Preferences, error)
}

// PriceFeed resolves USD prices for a batch of symbols.
type PriceFeed interface {
	GetPrices(ctx context.Context, symbols []string) (map[string]float64, error)
}

// Dispatcher delivers a triggered alert to the user's channels.
type Dispatcher interface {
	SendNotification(ctx context.Context, payload model.NotificationPayload, prefs *model.Preferences) []model.NotificationResult
}

// Option configures a Monitor.
type Option func(*Monitor)

// WithCooldown sets the minimum interval between firings of one alert.
func WithCooldown(d time.Duration) Option {
	return func(m *Monitor) { m.cooldown = d }
}

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(m *Monitor) { m.now = now }
}

// WithConcurrency bounds how many alerts are evaluated at once.
func WithConcurrency(n int) Option {
	return func(m *Monitor) {
		if n > 0 {
			m.concurrency = n
		}
	}
}

// WithMetrics records cycle statistics.
func WithMetrics(mt *metrics.Metrics) Option {
	return func(m *Monitor) { m.metrics = mt }
}

// CycleReport summarises one check cycle.
type CycleReport struct {
	StartedAt    time.Time                             `json:"started_at"`
	Duration     time.Duration                         `json:"duration"`
	Skipped      bool                                  `json:"skipped"`
	ActiveAlerts int                                   `json:"active_alerts"`
	Tokens       int                                   `json:"tokens"`
	Unpriced     []string                              `json:"unpriced,omitempty"`
	Evaluated    int                                   `json:"evaluated"`
	Triggered    int                                   `json:"triggered"`
	Cooldown     int                                   `json:"cooldown"`
	Failed       int                                   `json:"failed"`
	Results      map[string][]model.NotificationResult `json:"results,omitempty"`
	Err          error                                 `json:"-"`
}

// Monitor evaluates active alerts against current prices and dispatches
// notifications for those that fire. Cycles never overlap.
type Monitor struct {
	alerts      AlertStore
	prefs       PreferenceStore
	feed        PriceFeed
	dispatcher  Dispatcher
	logger      *slog.Logger
	metrics     *metrics.Metrics
	cooldown    time.Duration
	concurrency int
	now         func() time.Time

	cycle sync.Mutex

	mu      sync.Mutex
	running bool
	cancel  context.CancelFunc
	done    chan struct{}
}

// New creates a price monitor.
func New(alerts AlertStore, prefs PreferenceStore, feed PriceFeed, dispatcher Dispatcher, logger *slog.Logger, opts ...Option) *Monitor {
	if logger == nil {
		logger = slog.Default()
	}
	m := &Monitor{
		alerts:      alerts,
		prefs:       prefs,
		feed:        feed,
		dispatcher:  dispatcher,
		logger:      logger,
		cooldown:    DefaultCooldown,
		concurrency: DefaultConcurrency,
		now:         func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// RunOnce runs exactly one check cycle and returns once every dispatch of
// that cycle has settled. If a cycle is already in flight it returns
// immediately with Skipped set.
func (m *Monitor) RunOnce(ctx context.Context) *CycleReport {
	if !m.cycle.TryLock() {
		m.logger.Warn("price check already in progress, skipping")
		m.metrics.ObserveCycle(metrics.OutcomeSkipped, 0, 0)
		return &CycleReport{StartedAt: m.now(), Skipped: true}
	}
	defer m.cycle.Unlock()

	start := time.Now()
	report := m.check(ctx)
	report.Duration = time.Since(start)

	outcome := metrics.OutcomeOK
	switch {
	case report.Err != nil:
		outcome = metrics.OutcomeError
	case report.ActiveAlerts == 0:
		outcome = metrics.OutcomeIdle
	}
	m.metrics.ObserveCycle(outcome, report.Duration, report.ActiveAlerts)

	m.logger.Info("price check complete",
		"active", report.ActiveAlerts,
		"tokens", report.Tokens,
		"triggered", report.Triggered,
		"cooldown", report.Cooldown,
		"duration", report.Duration,
	)
	return report
}

func (m *Monitor) check(ctx context.Context) *CycleReport {
	now := m.now()
	report := &CycleReport{StartedAt: now, Results: make(map[string][]model.NotificationResult)}

	alerts, err := m.alerts.ListActiveAlerts(ctx)
	if err != nil {
		report.Err = fmt.Errorf("list active alerts: %w", err)
		m.logger.Error("price check aborted", "error", report.Err)
		return report
	}
	report.ActiveAlerts = len(alerts)
	if len(alerts) == 0 {
		m.logger.Debug("no active alerts")
		return report
	}

	tokens := distinctTokens(alerts)
	report.Tokens = len(tokens)

	prices, err := m.feed.GetPrices(ctx, tokens)
	if err != nil {
		report.Err = fmt.Errorf("fetch prices: %w", err)
		m.logger.Error("price check aborted", "error", report.Err)
		return report
	}
	for _, t := range tokens {
		if prices[t] <= 0 {
			report.Unpriced = append(report.Unpriced, t)
		}
	}
	if len(report.Unpriced) > 0 {
		m.logger.Info("no price for tokens, skipping their alerts", "tokens", report.Unpriced)
		m.metrics.AddUnpriced(len(report.Unpriced))
	}

	var mu sync.Mutex
	p := pool.New().WithMaxGoroutines(m.concurrency)
	for _, alert := range alerts {
		p.Go(func() {
			out := m.evaluate(ctx, alert, prices, now)

			mu.Lock()
			defer mu.Unlock()
			switch out.state {
			case stateNotMet:
				report.Evaluated++
			case stateCooldown:
				report.Evaluated++
				report.Cooldown++
			case stateNoPreferences:
				report.Evaluated++
			case stateFired:
				report.Evaluated++
				report.Triggered++
				report.Results[alert.ID] = out.results
			case stateFailed:
				report.Failed++
			}
		})
	}
	p.Wait()

	return report
}

type alertState int

const (
	stateUnpriced alertState = iota
	stateNotMet
	stateCooldown
	stateNoPreferences
	stateFired
	stateFailed
)

type alertOutcome struct {
	state   alertState
	results []model.NotificationResult
}

// evaluate runs the trigger state machine for one alert. Errors and panics
// stay inside the alert.
func (m *Monitor) evaluate(ctx context.Context, alert model.Alert, prices map[string]float64, now time.Time) (out alertOutcome) {
	defer func() {
		if r := recover(); r != nil {
			m.logger.Error("alert evaluation panicked", "alert_id", alert.ID, "panic", r)
			out = alertOutcome{state: stateFailed}
		}
	}()

	token := model.NormalizeToken(alert.Token)
	price, ok := prices[token]
	if !ok || price <= 0 {
		return alertOutcome{state: stateUnpriced}
	}

	if !alert.Condition.Met(price, alert.TargetPrice) {
		return alertOutcome{state: stateNotMet}
	}

	if alert.InCooldown(now, m.cooldown) {
		m.logger.Debug("alert in cooldown", "alert_id", alert.ID, "last_triggered", *alert.LastTriggered)
		m.metrics.IncCooldown()
		return alertOutcome{state: stateCooldown}
	}

	prefs, err := m.prefs.GetPreferences(ctx, alert.UserID)
	if errors.Is(err, storage.ErrNotFound) || (err == nil && prefs == nil) {
		m.logger.Warn("no notification preferences, skipping alert", "alert_id", alert.ID, "user_id", alert.UserID)
		return alertOutcome{state: stateNoPreferences}
	}
	if err != nil {
		m.logger.Error("load preferences", "alert_id", alert.ID, "user_id", alert.UserID, "error", err)
		return alertOutcome{state: stateFailed}
	}

	m.logger.Info("alert triggered",
		"alert_id", alert.ID,
		"token", token,
		"condition", alert.Condition,
		"target", alert.TargetPrice,
		"price", price,
	)
	m.metrics.IncTriggered()

	payload := model.NotificationPayload{
		AlertID:      alert.ID,
		UserID:       alert.UserID,
		Token:        token,
		Condition:    alert.Condition,
		TargetPrice:  alert.TargetPrice,
		CurrentPrice: price,
		Timestamp:    now,
		Channels:     alert.Channels,
	}
	// Once dispatch begins, the attempt and its cooldown write must both
	// land even if the caller goes away.
	attemptCtx := context.WithoutCancel(ctx)
	results := m.dispatcher.SendNotification(attemptCtx, payload, prefs)
	m.metrics.ObserveNotifications(results)

	// Cooldown starts on the attempt, even if every channel failed.
	if err := m.alerts.UpdateTriggered(attemptCtx, alert.ID, now); err != nil {
		m.logger.Error("update last triggered", "alert_id", alert.ID, "error", err)
	}

	return alertOutcome{state: stateFired, results: results}
}

func distinctTokens(alerts []model.Alert) []string {
	seen := make(map[string]struct{}, len(alerts))
	tokens := make([]string, 0, len(alerts))
	for _, a := range alerts {
		t := model.NormalizeToken(a.Token)
		if _, ok := seen[t]; ok {
			continue
		}
		seen[t] = struct{}{}
		tokens = append(tokens, t)
	}
	sort.Strings(tokens)
	return tokens
}

// Start runs a cycle immediately and then every interval after the previous
// cycle settles. It returns false if the monitor is already running.
func (m *Monitor) Start(ctx context.Context, interval time.Duration) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.running {
		m.logger.Warn("price monitor already running")
		return false
	}
	if interval <= 0 {
		interval = DefaultInterval
	}

	loopCtx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})
	m.running = true
	m.cancel = cancel
	m.done = done

	go m.loop(loopCtx, interval, done)

	m.logger.Info("price monitor started", "interval", interval, "cooldown", m.cooldown)
	return true
}

func (m *Monitor) loop(ctx context.Context, interval time.Duration, done chan struct{}) {
	defer func() {
		m.mu.Lock()
		if m.done == done {
			m.cancel()
			m.running = false
			m.cancel = nil
			m.done = nil
		}
		m.mu.Unlock()
		close(done)
	}()

	// In-flight cycles finish even after Stop.
	cycleCtx := context.WithoutCancel(ctx)

	timer := time.NewTimer(0)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-timer.C:
			m.RunOnce(cycleCtx)
			timer.Reset(interval)
		}
	}
}

// Stop cancels the schedule and waits for the in-flight cycle to drain.
// Stopping a monitor that is not running is a no-op.
func (m *Monitor) Stop() {
	m.mu.Lock()
	if !m.running {
		m.mu.Unlock()
		return
	}
	cancel, done := m.cancel, m.done
	m.running = false
	m.cancel = nil
	m.done = nil
	m.mu.Unlock()

	cancel()
	<-done
	m.logger.Info("price monitor stopped")
}

// Running reports whether the continuous schedule is active.
func (m *Monitor) Running() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.running
}
