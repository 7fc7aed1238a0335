// Package health tracks per-provider call statistics and classifies provider
// health from a rolling error window.
package health

import (
	"context"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/airqa/inspect-cli/internal/model"
	"github.com/airqa/inspect-cli/internal/store"
)

// Status classifies a provider's recent behavior.
type Status string

const (
	StatusUnknown  Status = "unknown"
	StatusHealthy  Status = "healthy"
	StatusDegraded Status = "degraded"
	StatusWarning  Status = "warning"
	StatusCritical Status = "critical"
)

const (
	// DefaultWindow is the rolling window for recent-error counting.
	DefaultWindow = time.Hour
	// DefaultErrorThreshold is the recent-error count that marks critical.
	DefaultErrorThreshold = 5
)

// Stats is a snapshot of one config's tracked statistics.
type Stats struct {
	ConfigName   string        `json:"config_name"`
	TotalCalls   int64         `json:"total_calls"`
	TotalErrors  int64         `json:"total_errors"`
	RecentErrors int           `json:"recent_errors"`
	AvgLatency   time.Duration `json:"avg_latency"`
	LastError    string        `json:"last_error,omitempty"`
	LastCallAt   time.Time     `json:"last_call_at"`
	Status       Status        `json:"status"`
}

// ErrorRate is TotalErrors/TotalCalls, or 0 with no history.
func (s Stats) ErrorRate() float64 {
	if s.TotalCalls == 0 {
		return 0
	}
	return float64(s.TotalErrors) / float64(s.TotalCalls)
}

type entry struct {
	totalCalls   int64
	totalErrors  int64
	successCalls int64
	avgLatency   time.Duration
	lastError    string
	lastCallAt   time.Time
	// windowErrors holds recent error timestamps, expired lazily on access.
	windowErrors []time.Time
}

// Monitor records call outcomes and serves health classification. All state
// is in memory; persistent counters go through the store.
type Monitor struct {
	store     store.Store
	log       *zap.Logger
	window    time.Duration
	threshold int

	mu      sync.Mutex
	entries map[string]*entry

	nowFunc func() time.Time
}

// Option configures the monitor.
type Option func(*Monitor)

// WithWindow sets the rolling error window.
func WithWindow(w time.Duration) Option {
	return func(m *Monitor) { m.window = w }
}

// WithErrorThreshold sets the recent-error count for critical status.
func WithErrorThreshold(n int) Option {
	return func(m *Monitor) { m.threshold = n }
}

func withNowFunc(now func() time.Time) Option {
	return func(m *Monitor) { m.nowFunc = now }
}

func NewMonitor(st store.Store, log *zap.Logger, opts ...Option) *Monitor {
	m := &Monitor{
		store:     st,
		log:       log,
		window:    DefaultWindow,
		threshold: DefaultErrorThreshold,
		entries:   make(map[string]*entry),
		nowFunc:   time.Now,
	}
	for _, o := range opts {
		o(m)
	}
	return m
}

// Record tracks one finished call: running average latency, error window,
// persistent counters, and the audit log. The acting user lands on the audit
// row, empty for global-scope calls. Store failures are logged, never
// propagated; tracking must not break the call path.
func (m *Monitor) Record(ctx context.Context, cfg model.ServiceConfig, kind model.CallKind, user string, latency time.Duration, callErr error) {
	now := m.nowFunc()

	m.mu.Lock()
	e, ok := m.entries[cfg.Name]
	if !ok {
		e = &entry{}
		m.entries[cfg.Name] = e
	}
	e.totalCalls++
	e.lastCallAt = now
	if callErr != nil {
		e.totalErrors++
		e.lastError = callErr.Error()
		e.windowErrors = append(e.windowErrors, now)
	} else {
		// Running mean over successful calls only, so timeouts and
		// rejections do not skew the latency figure.
		e.successCalls++
		e.avgLatency = time.Duration((int64(e.avgLatency)*(e.successCalls-1) + int64(latency)) / e.successCalls)
	}
	m.expireLocked(e, now)
	m.mu.Unlock()

	logEntry := model.UsageLogEntry{
		ConfigID:   cfg.ID,
		ConfigName: cfg.Name,
		Kind:       kind,
		Success:    callErr == nil,
		LatencyMS:  latency.Milliseconds(),
		User:       user,
		CreatedAt:  now.UTC(),
	}
	if callErr != nil {
		logEntry.Error = callErr.Error()
	}
	if err := m.store.AppendUsageLog(ctx, logEntry); err != nil {
		m.log.Warn("usage log append failed", zap.Error(err))
	}

	if cfg.ID != "" {
		var err error
		if callErr == nil {
			err = m.store.RecordSuccess(ctx, cfg.ID)
		} else {
			err = m.store.RecordFailure(ctx, cfg.ID)
		}
		if err != nil {
			m.log.Warn("counter update failed", zap.String("config", cfg.Name), zap.Error(err))
		}
	}
}

// NoteFailure adds an error to a config's rolling window without touching
// call counters or persistent state. The failed call itself is recorded by
// the call path; this marks the follow-up decision (such as a failover) so
// the window reflects how often the config forced one.
func (m *Monitor) NoteFailure(name string, cause error) {
	now := m.nowFunc()

	m.mu.Lock()
	defer m.mu.Unlock()

	e, ok := m.entries[name]
	if !ok {
		e = &entry{}
		m.entries[name] = e
	}
	if cause != nil {
		e.lastError = cause.Error()
	}
	e.windowErrors = append(e.windowErrors, now)
	m.expireLocked(e, now)
}

// Track wraps a call, measuring latency and recording the outcome.
func (m *Monitor) Track(ctx context.Context, cfg model.ServiceConfig, kind model.CallKind, user string, fn func(ctx context.Context) error) error {
	start := m.nowFunc()
	err := fn(ctx)
	m.Record(ctx, cfg, kind, user, m.nowFunc().Sub(start), err)
	return err
}

func (m *Monitor) expireLocked(e *entry, now time.Time) {
	cutoff := now.Add(-m.window)
	i := 0
	for i < len(e.windowErrors) && !e.windowErrors[i].After(cutoff) {
		i++
	}
	if i > 0 {
		e.windowErrors = append(e.windowErrors[:0:0], e.windowErrors[i:]...)
	}
}

// CheckHealth classifies one config by name.
func (m *Monitor) CheckHealth(name string) Status {
	m.mu.Lock()
	defer m.mu.Unlock()

	e, ok := m.entries[name]
	if !ok || e.totalCalls == 0 {
		return StatusUnknown
	}
	m.expireLocked(e, m.nowFunc())
	return classify(e, m.threshold)
}

func classify(e *entry, threshold int) Status {
	if len(e.windowErrors) >= threshold {
		return StatusCritical
	}
	rate := float64(e.totalErrors) / float64(e.totalCalls)
	switch {
	case rate > 0.5:
		return StatusWarning
	case rate > 0.1:
		return StatusDegraded
	default:
		return StatusHealthy
	}
}

// Snapshot returns stats for every tracked config, sorted by name.
func (m *Monitor) Snapshot() []Stats {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.nowFunc()
	out := make([]Stats, 0, len(m.entries))
	for name, e := range m.entries {
		m.expireLocked(e, now)
		out = append(out, Stats{
			ConfigName:   name,
			TotalCalls:   e.totalCalls,
			TotalErrors:  e.totalErrors,
			RecentErrors: len(e.windowErrors),
			AvgLatency:   e.avgLatency,
			LastError:    e.lastError,
			LastCallAt:   e.lastCallAt,
			Status:       classify(e, m.threshold),
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ConfigName < out[j].ConfigName })
	return out
}
