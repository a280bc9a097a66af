package risk

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/tradedesk/riskmon/internal/events"
	"github.com/tradedesk/riskmon/internal/notify"
	"github.com/tradedesk/riskmon/pkg/types"
)

// AllowedIntervals is the fixed set of evaluation intervals the operator
// may choose from.
var AllowedIntervals = []time.Duration{
	15 * time.Second,
	30 * time.Second,
	60 * time.Second,
	120 * time.Second,
}

const (
	DefaultInterval    = 30 * time.Second
	maxAlertHistory    = 1000
	defaultFetchBudget = 10 * time.Second
)

// Config is the monitor's full operator-facing configuration.
type Config struct {
	Interval             time.Duration
	NotificationsEnabled bool
	SoundEnabled         bool
	Thresholds           types.RiskThresholds
}

// DefaultConfig returns the standard 30-second setup with side effects
// enabled and default thresholds.
func DefaultConfig() Config {
	return Config{
		Interval:             DefaultInterval,
		NotificationsEnabled: true,
		SoundEnabled:         true,
		Thresholds:           types.DefaultRiskThresholds(),
	}
}

// Validate checks the interval against the allowed set and the
// threshold ordering.
func (c Config) Validate() error {
	valid := false
	for _, d := range AllowedIntervals {
		if c.Interval == d {
			valid = true
			break
		}
	}
	if !valid {
		return fmt.Errorf("interval %s not in allowed set %v", c.Interval, AllowedIntervals)
	}
	return c.Thresholds.Validate()
}

// ConfigUpdate is a partial configuration change. Nil fields keep their
// current value. Changes take effect from the next tick and never
// interrupt a tick in progress.
type ConfigUpdate struct {
	Interval             *time.Duration
	NotificationsEnabled *bool
	SoundEnabled         *bool
	Thresholds           *types.RiskThresholds
}

// Monitor runs the recurring risk evaluation loop. Exactly one tick is
// in flight at a time; a tick still running when the next is due causes
// that schedule to be skipped, never queued.
type Monitor struct {
	mu        sync.Mutex
	cfg       Config
	portfolio types.Portfolio
	tracker   *TransitionTracker
	events    *events.Dispatcher
	sink      notify.Sink
	logger    *logrus.Entry

	stats        types.MonitoringStats
	fetchFails   int
	alertHistory []events.Alert

	running bool
	stopCh  chan struct{}
	done    chan struct{}
}

// NewMonitor builds a monitor. The sink may be nil, in which case side
// effects are dropped silently.
func NewMonitor(portfolio types.Portfolio, dispatcher *events.Dispatcher, sink notify.Sink, cfg Config) (*Monitor, error) {
	if portfolio == nil {
		return nil, fmt.Errorf("portfolio is required")
	}
	if dispatcher == nil {
		dispatcher = events.NewDispatcher()
	}
	if sink == nil {
		sink = notify.NoopSink{}
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid monitor config: %w", err)
	}

	return &Monitor{
		cfg:       cfg,
		portfolio: portfolio,
		tracker:   NewTransitionTracker(),
		events:    dispatcher,
		sink:      sink,
		logger:    logrus.WithField("component", "risk-monitor"),
	}, nil
}

// Start begins the evaluation loop. Stats and tracker state are reset,
// so a restart begins a fresh monitoring session.
func (m *Monitor) Start() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.running {
		return fmt.Errorf("monitor already running")
	}

	m.stats = types.MonitoringStats{}
	m.fetchFails = 0
	m.alertHistory = nil
	m.tracker.Reset()

	m.stopCh = make(chan struct{})
	m.done = make(chan struct{})
	m.running = true

	go m.loop(m.stopCh, m.done)

	m.logger.Infof("monitoring started, interval %s", m.cfg.Interval)
	return nil
}

// Stop cancels the timer and waits for any in-flight tick to finish.
// Safe to call at any time and idempotent.
func (m *Monitor) Stop() {
	m.mu.Lock()
	if !m.running {
		m.mu.Unlock()
		return
	}
	m.running = false
	close(m.stopCh)
	done := m.done
	m.mu.Unlock()

	<-done
	m.logger.Info("monitoring stopped")
}

// UpdateConfig applies a partial update and returns the resulting
// configuration. The new values are picked up by the next tick.
func (m *Monitor) UpdateConfig(u ConfigUpdate) (Config, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	next := m.cfg
	if u.Interval != nil {
		next.Interval = *u.Interval
	}
	if u.NotificationsEnabled != nil {
		next.NotificationsEnabled = *u.NotificationsEnabled
	}
	if u.SoundEnabled != nil {
		next.SoundEnabled = *u.SoundEnabled
	}
	if u.Thresholds != nil {
		next.Thresholds = *u.Thresholds
	}
	if err := next.Validate(); err != nil {
		return m.cfg, fmt.Errorf("invalid config update: %w", err)
	}

	m.cfg = next
	return next, nil
}

// Config returns the current configuration.
func (m *Monitor) Config() Config {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.cfg
}

// Stats returns a copy of the session counters.
func (m *Monitor) Stats() types.MonitoringStats {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.stats
}

// PreviousLevel exposes tracker state for inspection. During alert
// delivery this still reports the pre-commit level, matching the
// engine's ordering guarantee.
func (m *Monitor) PreviousLevel(ticker string) (types.RiskLevel, bool) {
	return m.tracker.Previous(ticker)
}

// AlertHistory returns the alerts raised this session, oldest first.
func (m *Monitor) AlertHistory() []events.Alert {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]events.Alert, len(m.alertHistory))
	copy(out, m.alertHistory)
	return out
}

// RecordAPICalls adds externally made broker calls (for example from the
// emergency executor) to the session counter.
func (m *Monitor) RecordAPICalls(n int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.stats.APICallsUsed += int64(n)
}

// loop drives the schedule. Ticks run synchronously in this goroutine,
// which is what guarantees they never overlap; the drain after each tick
// discards a schedule that fired while the tick was still running.
func (m *Monitor) loop(stopCh <-chan struct{}, done chan<- struct{}) {
	defer close(done)

	interval := m.Config().Interval
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-stopCh:
			return
		case <-ticker.C:
			m.tick()

			select {
			case <-ticker.C:
			default:
			}

			if next := m.Config().Interval; next != interval {
				interval = next
				ticker.Reset(interval)
				m.logger.Infof("interval changed to %s", interval)
			}
		}
	}
}

// tick performs one evaluation cycle: fetch, classify, compare, emit,
// and only then commit the tracker.
func (m *Monitor) tick() {
	cfg := m.Config()
	now := time.Now()

	ctx, cancel := context.WithTimeout(context.Background(), defaultFetchBudget)
	positions, err := m.portfolio.ListOpenPositions(ctx)
	cancel()

	m.mu.Lock()
	m.stats.APICallsUsed++
	m.mu.Unlock()

	if err != nil {
		m.mu.Lock()
		m.fetchFails++
		fails := m.fetchFails
		m.mu.Unlock()

		m.logger.Warnf("position fetch failed (attempt %d): %v", fails, err)
		m.events.PublishStatus(events.Status{
			Message:             "position data unavailable, retrying next tick",
			Err:                 err.Error(),
			ConsecutiveFailures: fails,
			At:                  now,
		})
		return
	}

	m.mu.Lock()
	m.fetchFails = 0
	m.mu.Unlock()

	risks := make([]*types.PositionRisk, 0, len(positions))
	levels := make(map[string]types.RiskLevel, len(positions))
	var newAlerts []events.Alert

	for _, p := range positions {
		r, cerr := Classify(p, cfg.Thresholds)
		if cerr != nil {
			m.logger.Warnf("skipping position: %v", cerr)
			// Keep the previous level so a transient data problem
			// cannot manufacture a false "new" transition later.
			if prev, ok := m.tracker.Previous(p.Ticker); ok {
				levels[p.Ticker] = prev
			}
			continue
		}

		risks = append(risks, r)
		levels[p.Ticker] = r.Level

		if r.Level != types.RiskLevelSafe && m.tracker.IsNew(p.Ticker, r.Level) {
			prev, seen := m.tracker.Previous(p.Ticker)
			newAlerts = append(newAlerts, events.Alert{
				ID:            uuid.NewString(),
				Risk:          r,
				PreviousLevel: prev,
				FirstSeen:     !seen,
				At:            now,
			})
		}
	}

	m.mu.Lock()
	m.stats.PositionsMonitored = len(risks)
	m.stats.TotalChecks++
	m.stats.AlertsTriggered += int64(len(newAlerts))
	m.stats.LastCheckAt = now
	m.alertHistory = append(m.alertHistory, newAlerts...)
	if len(m.alertHistory) > maxAlertHistory {
		m.alertHistory = m.alertHistory[len(m.alertHistory)-maxAlertHistory:]
	}
	statsCopy := m.stats
	m.mu.Unlock()

	m.events.PublishSnapshot(events.Snapshot{Risks: risks, Stats: statsCopy, At: now})

	for _, a := range newAlerts {
		m.events.PublishAlert(a)
	}
	m.dispatchSideEffects(cfg, newAlerts)

	// Tracker commit strictly follows event emission: a consumer that
	// reacts to an alert and immediately queries PreviousLevel sees the
	// pre-commit state.
	m.tracker.Commit(levels)
}

// dispatchSideEffects sends notifications per alert and at most one
// sound per tick, at the most severe level raised. Failures are logged
// and swallowed.
func (m *Monitor) dispatchSideEffects(cfg Config, alerts []events.Alert) {
	if len(alerts) == 0 {
		return
	}

	maxLevel := types.RiskLevelSafe
	for _, a := range alerts {
		if cfg.NotificationsEnabled {
			n := notify.Notification{
				Ticker: a.Risk.Position.Ticker,
				Level:  a.Risk.Level,
				Title:  fmt.Sprintf("%s risk", a.Risk.Level),
			}
			if len(a.Risk.Alerts) > 0 {
				n.Message = a.Risk.Alerts[0]
			}
			if err := m.sink.Notify(n); err != nil {
				m.logger.Warnf("notification dispatch failed: %v", err)
			}
		}
		if a.Risk.Level.MoreSevereThan(maxLevel) {
			maxLevel = a.Risk.Level
		}
	}

	if cfg.SoundEnabled {
		if err := m.sink.PlaySound(maxLevel); err != nil {
			m.logger.Warnf("sound dispatch failed: %v", err)
		}
	}
}
