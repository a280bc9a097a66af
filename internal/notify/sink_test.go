package notify

import (
	"bytes"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tradedesk/riskmon/pkg/types"
)

func TestTerminalSinkNotify(t *testing.T) {
	var buf bytes.Buffer
	s := NewTerminalSink(&buf)

	err := s.Notify(Notification{
		Ticker:  "AAPL",
		Level:   types.RiskLevelDanger,
		Title:   "DANGER risk",
		Message: "DANGER: loss exceeds 10%",
	})
	require.NoError(t, err)

	out := buf.String()
	assert.Contains(t, out, "AAPL")
	assert.Contains(t, out, "DANGER")
	assert.True(t, strings.HasSuffix(out, "\n"))
}

func TestTerminalSinkSound(t *testing.T) {
	var buf bytes.Buffer
	s := NewTerminalSink(&buf)

	require.NoError(t, s.PlaySound(types.RiskLevelWarning))
	assert.Equal(t, "\a", buf.String())

	buf.Reset()
	require.NoError(t, s.PlaySound(types.RiskLevelCritical))
	assert.Equal(t, "\a\a\a", buf.String(), "critical rings three times")
}

type failWriter struct{}

func (failWriter) Write([]byte) (int, error) { return 0, errors.New("broken pipe") }

func TestTerminalSinkReportsWriteErrors(t *testing.T) {
	s := NewTerminalSink(failWriter{})
	assert.Error(t, s.Notify(Notification{Ticker: "AAPL"}))
	assert.Error(t, s.PlaySound(types.RiskLevelWarning))
}

type stubSink struct {
	notifyErr error
	soundErr  error
	notifies  int
	sounds    int
}

func (s *stubSink) Notify(Notification) error {
	s.notifies++
	return s.notifyErr
}

func (s *stubSink) PlaySound(types.RiskLevel) error {
	s.sounds++
	return s.soundErr
}

func TestMultiSinkContinuesPastFailures(t *testing.T) {
	first := &stubSink{notifyErr: errors.New("daemon unavailable")}
	second := &stubSink{}
	m := NewMultiSink(first, second)

	err := m.Notify(Notification{Ticker: "AAPL"})
	assert.EqualError(t, err, "daemon unavailable")
	assert.Equal(t, 1, first.notifies)
	assert.Equal(t, 1, second.notifies, "later sinks still run after a failure")

	require.NoError(t, m.PlaySound(types.RiskLevelDanger))
	assert.Equal(t, 1, second.sounds)
}

func TestMultiSinkReturnsFirstError(t *testing.T) {
	first := &stubSink{soundErr: errors.New("first")}
	second := &stubSink{soundErr: errors.New("second")}
	m := NewMultiSink(first, second)

	assert.EqualError(t, m.PlaySound(types.RiskLevelCritical), "first")
}

func TestNoopSink(t *testing.T) {
	var s Sink = NoopSink{}
	assert.NoError(t, s.Notify(Notification{}))
	assert.NoError(t, s.PlaySound(types.RiskLevelCritical))
}
