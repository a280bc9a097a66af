package risk

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tradedesk/riskmon/internal/events"
	"github.com/tradedesk/riskmon/internal/notify"
	"github.com/tradedesk/riskmon/pkg/types"
)

type fakePortfolio struct {
	mu        sync.Mutex
	positions []*types.Position
	err       error
	delay     time.Duration
	inFlight  atomic.Int32
	maxSeen   atomic.Int32
	fetches   atomic.Int32
}

func (f *fakePortfolio) set(positions []*types.Position, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.positions = positions
	f.err = err
}

func (f *fakePortfolio) ListOpenPositions(ctx context.Context) ([]*types.Position, error) {
	n := f.inFlight.Add(1)
	defer f.inFlight.Add(-1)
	for {
		max := f.maxSeen.Load()
		if n <= max || f.maxSeen.CompareAndSwap(max, n) {
			break
		}
	}
	f.fetches.Add(1)

	if f.delay > 0 {
		time.Sleep(f.delay)
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	return f.positions, nil
}

type recordingSubscriber struct {
	mu        sync.Mutex
	snapshots []events.Snapshot
	alerts    []events.Alert
	statuses  []events.Status
	onAlert   func(events.Alert)
}

func (r *recordingSubscriber) OnSnapshot(s events.Snapshot) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.snapshots = append(r.snapshots, s)
}

func (r *recordingSubscriber) OnAlert(a events.Alert) {
	r.mu.Lock()
	r.alerts = append(r.alerts, a)
	hook := r.onAlert
	r.mu.Unlock()
	if hook != nil {
		hook(a)
	}
}

func (r *recordingSubscriber) OnStatus(s events.Status) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.statuses = append(r.statuses, s)
}

func (r *recordingSubscriber) snapshotCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.snapshots)
}

func newTestMonitor(t *testing.T, portfolio types.Portfolio, sub events.Subscriber, sink notify.Sink) *Monitor {
	t.Helper()
	dispatcher := events.NewDispatcher()
	if sub != nil {
		dispatcher.Subscribe(sub)
	}
	m, err := NewMonitor(portfolio, dispatcher, sink, DefaultConfig())
	require.NoError(t, err)
	return m
}

func TestMonitorTickIsolatesMalformedPositions(t *testing.T) {
	positions := []*types.Position{
		position("A", 100, 99),
		position("B", 100, 94),
		{Ticker: "BAD", Quantity: decimal.NewFromInt(10)}, // zero prices
		position("D", 100, 89),
		position("E", 100, 84),
	}
	portfolio := &fakePortfolio{}
	portfolio.set(positions, nil)
	sub := &recordingSubscriber{}
	m := newTestMonitor(t, portfolio, sub, nil)

	m.tick()

	require.Len(t, sub.snapshots, 1)
	assert.Len(t, sub.snapshots[0].Risks, 4)
	assert.Equal(t, 4, m.Stats().PositionsMonitored)
	assert.Equal(t, int64(1), m.Stats().TotalChecks)
}

func TestMonitorAlertOnlyOnNewTransition(t *testing.T) {
	portfolio := &fakePortfolio{}
	portfolio.set([]*types.Position{position("AAPL", 100, 94)}, nil) // WARNING
	sub := &recordingSubscriber{}
	m := newTestMonitor(t, portfolio, sub, nil)

	m.tick()
	require.Len(t, sub.alerts, 1)
	assert.True(t, sub.alerts[0].FirstSeen)
	assert.Equal(t, int64(1), m.Stats().AlertsTriggered)

	// Same level again: snapshot still emitted, no repeat alert.
	m.tick()
	assert.Len(t, sub.alerts, 1)
	assert.Equal(t, 2, sub.snapshotCount())
	assert.Equal(t, int64(1), m.Stats().AlertsTriggered)

	// Deterioration to CRITICAL: new alert.
	portfolio.set([]*types.Position{position("AAPL", 100, 84)}, nil)
	m.tick()
	require.Len(t, sub.alerts, 2)
	assert.Equal(t, types.RiskLevelWarning, sub.alerts[1].PreviousLevel)
	assert.False(t, sub.alerts[1].FirstSeen)

	// Improvement back to WARNING: no alert.
	portfolio.set([]*types.Position{position("AAPL", 100, 94)}, nil)
	m.tick()
	assert.Len(t, sub.alerts, 2)
}

func TestMonitorSafePositionsNeverAlert(t *testing.T) {
	portfolio := &fakePortfolio{}
	portfolio.set([]*types.Position{position("AAPL", 100, 99)}, nil)
	sub := &recordingSubscriber{}
	m := newTestMonitor(t, portfolio, sub, nil)

	m.tick()
	assert.Empty(t, sub.alerts)
	assert.Equal(t, 1, sub.snapshotCount())
	assert.Equal(t, int64(0), m.Stats().AlertsTriggered)
}

func TestMonitorFetchFailureSkipsTick(t *testing.T) {
	portfolio := &fakePortfolio{}
	portfolio.set([]*types.Position{position("AAPL", 100, 94)}, nil)
	sub := &recordingSubscriber{}
	m := newTestMonitor(t, portfolio, sub, nil)

	m.tick()
	statsBefore := m.Stats()
	require.Equal(t, int64(1), statsBefore.TotalChecks)

	portfolio.set(nil, fmt.Errorf("%w: connection reset", types.ErrDataUnavailable))
	m.tick()

	stats := m.Stats()
	assert.Equal(t, int64(1), stats.TotalChecks, "failed tick must not count as a check")
	assert.Equal(t, statsBefore.AlertsTriggered, stats.AlertsTriggered, "stats must not reset")
	assert.Equal(t, statsBefore.LastCheckAt, stats.LastCheckAt)
	assert.Equal(t, 1, sub.snapshotCount(), "no snapshot for a skipped tick")
	require.Len(t, sub.statuses, 1)
	assert.Equal(t, 1, sub.statuses[0].ConsecutiveFailures)

	// Tracker still holds the previous tick's level, so recovery at the
	// same level is not a new transition.
	portfolio.set([]*types.Position{position("AAPL", 100, 94)}, nil)
	m.tick()
	assert.Len(t, sub.alerts, 1, "no false new transition after a failed fetch")
}

func TestMonitorTrackerCommitFollowsEmission(t *testing.T) {
	portfolio := &fakePortfolio{}
	portfolio.set([]*types.Position{position("AAPL", 100, 94)}, nil)
	sub := &recordingSubscriber{}
	m := newTestMonitor(t, portfolio, sub, nil)

	m.tick() // commits WARNING

	var duringAlert types.RiskLevel
	var seenDuringAlert bool
	sub.onAlert = func(events.Alert) {
		duringAlert, seenDuringAlert = m.PreviousLevel("AAPL")
	}

	portfolio.set([]*types.Position{position("AAPL", 100, 84)}, nil)
	m.tick()

	// During alert delivery the tracker still shows the pre-commit level.
	require.True(t, seenDuringAlert)
	assert.Equal(t, types.RiskLevelWarning, duringAlert)

	after, ok := m.PreviousLevel("AAPL")
	require.True(t, ok)
	assert.Equal(t, types.RiskLevelCritical, after)
}

func TestMonitorMalformedPositionKeepsTrackerEntry(t *testing.T) {
	portfolio := &fakePortfolio{}
	portfolio.set([]*types.Position{position("AAPL", 100, 84)}, nil) // CRITICAL
	sub := &recordingSubscriber{}
	m := newTestMonitor(t, portfolio, sub, nil)

	m.tick()
	require.Len(t, sub.alerts, 1)

	// The feed briefly serves a broken snapshot for the same ticker.
	portfolio.set([]*types.Position{{Ticker: "AAPL", Quantity: decimal.NewFromInt(10)}}, nil)
	m.tick()

	// Recovery at the same level must not re-alert.
	portfolio.set([]*types.Position{position("AAPL", 100, 84)}, nil)
	m.tick()
	assert.Len(t, sub.alerts, 1)
}

func TestMonitorStartStop(t *testing.T) {
	portfolio := &fakePortfolio{}
	portfolio.set([]*types.Position{position("AAPL", 100, 99)}, nil)
	m := newTestMonitor(t, portfolio, nil, nil)

	require.NoError(t, m.Start())
	assert.Error(t, m.Start(), "second start must fail while running")

	m.Stop()
	m.Stop() // idempotent

	// Restart resets the session.
	require.NoError(t, m.Start())
	assert.Equal(t, int64(0), m.Stats().TotalChecks)
	m.Stop()
}

func TestMonitorStopWithoutStart(t *testing.T) {
	portfolio := &fakePortfolio{}
	m := newTestMonitor(t, portfolio, nil, nil)
	m.Stop() // must not panic or block
}

func TestMonitorNoOverlappingTicks(t *testing.T) {
	portfolio := &fakePortfolio{delay: 50 * time.Millisecond}
	portfolio.set([]*types.Position{position("AAPL", 100, 94)}, nil)
	m := newTestMonitor(t, portfolio, nil, nil)

	// Force a schedule much faster than the fetch to provoke overlap.
	m.cfg.Interval = 10 * time.Millisecond

	startLoop(t, m)
	time.Sleep(250 * time.Millisecond)
	m.Stop()

	assert.Equal(t, int32(1), portfolio.maxSeen.Load(), "ticks must never overlap")
	assert.GreaterOrEqual(t, portfolio.fetches.Load(), int32(2), "loop should have ticked repeatedly")
}

// startLoop starts the monitor without interval validation, for loop
// behavior tests that need sub-second schedules.
func startLoop(t *testing.T, m *Monitor) {
	t.Helper()
	m.mu.Lock()
	require.False(t, m.running)
	m.stopCh = make(chan struct{})
	m.done = make(chan struct{})
	m.running = true
	go m.loop(m.stopCh, m.done)
	m.mu.Unlock()
}

func TestMonitorUpdateConfig(t *testing.T) {
	portfolio := &fakePortfolio{}
	m := newTestMonitor(t, portfolio, nil, nil)

	interval := 60 * time.Second
	enabled := false
	cfg, err := m.UpdateConfig(ConfigUpdate{Interval: &interval, SoundEnabled: &enabled})
	require.NoError(t, err)
	assert.Equal(t, 60*time.Second, cfg.Interval)
	assert.False(t, cfg.SoundEnabled)
	assert.True(t, cfg.NotificationsEnabled, "untouched fields keep their value")

	bad := 7 * time.Second
	_, err = m.UpdateConfig(ConfigUpdate{Interval: &bad})
	require.Error(t, err)
	assert.Equal(t, 60*time.Second, m.Config().Interval, "failed update must not change config")
}

type failingSink struct {
	notifies int
	sounds   int
}

func (f *failingSink) Notify(notify.Notification) error {
	f.notifies++
	return errors.New("notification daemon gone")
}

func (f *failingSink) PlaySound(types.RiskLevel) error {
	f.sounds++
	return errors.New("no audio device")
}

func TestMonitorSinkFailuresAreSwallowed(t *testing.T) {
	portfolio := &fakePortfolio{}
	portfolio.set([]*types.Position{position("AAPL", 100, 84)}, nil)
	sink := &failingSink{}
	sub := &recordingSubscriber{}
	m := newTestMonitor(t, portfolio, sub, sink)

	m.tick() // must not panic or abort

	assert.Equal(t, 1, sink.notifies)
	assert.Equal(t, 1, sink.sounds)
	assert.Equal(t, 1, sub.snapshotCount())
	assert.Len(t, sub.alerts, 1)
}

func TestMonitorSideEffectFlags(t *testing.T) {
	portfolio := &fakePortfolio{}
	portfolio.set([]*types.Position{position("AAPL", 100, 84)}, nil)
	sink := &failingSink{}
	m := newTestMonitor(t, portfolio, nil, sink)

	disabled := false
	_, err := m.UpdateConfig(ConfigUpdate{NotificationsEnabled: &disabled, SoundEnabled: &disabled})
	require.NoError(t, err)

	m.tick()
	assert.Equal(t, 0, sink.notifies)
	assert.Equal(t, 0, sink.sounds)
}

func TestMonitorRecordAPICalls(t *testing.T) {
	portfolio := &fakePortfolio{}
	m := newTestMonitor(t, portfolio, nil, nil)

	m.RecordAPICalls(3)
	assert.Equal(t, int64(3), m.Stats().APICallsUsed)
}
