// Package nats bridges engine events onto a NATS connection so an
// out-of-process dashboard can consume them, and relays operator execute
// commands back in. Publishing is best-effort: a broken connection is
// logged and never propagates into the monitoring loop.
package nats

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/sirupsen/logrus"

	"github.com/tradedesk/riskmon/internal/events"
	"github.com/tradedesk/riskmon/pkg/types"
)

// Subject layout. Alert subjects carry the ticker so consumers can
// filter with a wildcard subscription (risk.alert.*).
const (
	SubjectSnapshot = "risk.snapshot"
	SubjectAlert    = "risk.alert"
	SubjectStatus   = "risk.status"
	SubjectExecute  = "risk.execute"
	SubjectOutcome  = "risk.outcome"
)

// ExecuteRequest is the operator command to run emergency execution for
// one position. Publishing it implies the UI already collected
// confirmation.
type ExecuteRequest struct {
	Ticker string `json:"ticker"`
}

// OutcomeMessage pairs an execution outcome with its position.
type OutcomeMessage struct {
	Ticker  string                  `json:"ticker"`
	Outcome *types.EmergencyOutcome `json:"outcome,omitempty"`
	Error   string                  `json:"error,omitempty"`
}

// Bridge publishes engine events and receives execute commands. It
// implements events.Subscriber.
type Bridge struct {
	conn   *nats.Conn
	logger *logrus.Entry
}

// NewBridge connects to the NATS server with indefinite reconnects.
func NewBridge(url string) (*Bridge, error) {
	logger := logrus.WithField("component", "nats-bridge")

	opts := []nats.Option{
		nats.Name("riskmon"),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(time.Second),
		nats.DisconnectErrHandler(func(nc *nats.Conn, err error) {
			logger.Errorf("NATS disconnected: %v", err)
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			logger.Info("NATS reconnected")
		}),
	}

	conn, err := nats.Connect(url, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to NATS: %w", err)
	}

	return &Bridge{conn: conn, logger: logger}, nil
}

// Close drains and closes the connection.
func (b *Bridge) Close() {
	if b.conn != nil {
		b.conn.Close()
	}
}

func (b *Bridge) OnSnapshot(s events.Snapshot) {
	b.publish(SubjectSnapshot, s)
}

func (b *Bridge) OnAlert(a events.Alert) {
	subject := SubjectAlert
	if a.Risk != nil && a.Risk.Position != nil {
		subject = fmt.Sprintf("%s.%s", SubjectAlert, a.Risk.Position.Ticker)
	}
	b.publish(subject, a)
}

func (b *Bridge) OnStatus(s events.Status) {
	b.publish(SubjectStatus, s)
}

// PublishOutcome reports an emergency execution result to subscribers.
func (b *Bridge) PublishOutcome(msg OutcomeMessage) {
	b.publish(SubjectOutcome, msg)
}

// SubscribeExecute registers a handler for operator execute commands.
func (b *Bridge) SubscribeExecute(handler func(ExecuteRequest)) (*nats.Subscription, error) {
	return b.conn.Subscribe(SubjectExecute, func(msg *nats.Msg) {
		var req ExecuteRequest
		if err := json.Unmarshal(msg.Data, &req); err != nil {
			b.logger.Errorf("malformed execute request: %v", err)
			return
		}
		handler(req)
	})
}

func (b *Bridge) publish(subject string, payload interface{}) {
	data, err := json.Marshal(payload)
	if err != nil {
		b.logger.Errorf("failed to marshal message for %s: %v", subject, err)
		return
	}
	if err := b.conn.Publish(subject, data); err != nil {
		b.logger.Errorf("failed to publish to %s: %v", subject, err)
		return
	}
	b.logger.Debugf("published to %s", subject)
}
