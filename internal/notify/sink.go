// Package notify is the best-effort side-effect sink for risk alerts:
// desktop-style notifications and audible cues. Dispatch failures are
// reported to the caller for logging but must never abort the monitoring
// loop, so every implementation here is safe to call and forget.
package notify

import (
	"fmt"
	"io"
	"sync"

	"github.com/sirupsen/logrus"

	"github.com/tradedesk/riskmon/pkg/types"
)

// Notification is one operator-facing message about a position.
type Notification struct {
	Ticker  string
	Level   types.RiskLevel
	Title   string
	Message string
}

// Sink dispatches notifications and sounds. Implementations are
// best-effort; errors are informational only.
type Sink interface {
	Notify(n Notification) error
	PlaySound(level types.RiskLevel) error
}

// NoopSink discards everything. Default for headless and test runs.
type NoopSink struct{}

func (NoopSink) Notify(Notification) error       { return nil }
func (NoopSink) PlaySound(types.RiskLevel) error { return nil }

// LogSink records notifications in the structured log, useful when no
// desktop environment is attached.
type LogSink struct {
	logger *logrus.Entry
}

func NewLogSink() *LogSink {
	return &LogSink{logger: logrus.WithField("component", "notify")}
}

func (s *LogSink) Notify(n Notification) error {
	s.logger.WithFields(logrus.Fields{
		"ticker": n.Ticker,
		"level":  n.Level.String(),
	}).Warnf("%s: %s", n.Title, n.Message)
	return nil
}

func (s *LogSink) PlaySound(level types.RiskLevel) error {
	s.logger.Debugf("sound cue for level %s", level)
	return nil
}

// TerminalSink writes notifications to a terminal and rings the bell for
// sound cues. Stands in for the desktop notification and audio APIs the
// dashboard UI uses.
type TerminalSink struct {
	mu sync.Mutex
	w  io.Writer
}

func NewTerminalSink(w io.Writer) *TerminalSink {
	return &TerminalSink{w: w}
}

func (s *TerminalSink) Notify(n Notification) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, err := fmt.Fprintf(s.w, "[%s] %s %s: %s\n", n.Level, n.Ticker, n.Title, n.Message)
	if err != nil {
		return fmt.Errorf("terminal notify: %w", err)
	}
	return nil
}

func (s *TerminalSink) PlaySound(level types.RiskLevel) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	// BEL; repeated for critical so it stands out.
	cue := "\a"
	if level == types.RiskLevelCritical {
		cue = "\a\a\a"
	}
	if _, err := io.WriteString(s.w, cue); err != nil {
		return fmt.Errorf("terminal sound: %w", err)
	}
	return nil
}

// MultiSink fans out to several sinks and keeps going past failures,
// returning the first error seen for logging.
type MultiSink struct {
	sinks []Sink
}

func NewMultiSink(sinks ...Sink) *MultiSink {
	return &MultiSink{sinks: sinks}
}

func (m *MultiSink) Notify(n Notification) error {
	var first error
	for _, s := range m.sinks {
		if err := s.Notify(n); err != nil && first == nil {
			first = err
		}
	}
	return first
}

func (m *MultiSink) PlaySound(level types.RiskLevel) error {
	var first error
	for _, s := range m.sinks {
		if err := s.PlaySound(level); err != nil && first == nil {
			first = err
		}
	}
	return first
}
