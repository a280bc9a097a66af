package risk

import (
	"context"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/tradedesk/riskmon/pkg/types"
)

// CallRecorder receives the count of broker calls an execution made, so
// the monitoring session's API usage stays accurate. Optional.
type CallRecorder interface {
	RecordAPICalls(n int)
}

// EmergencyExecutor performs the two-step protective sequence for one
// position: cancel the resting limit order, then place a stop. The two
// calls are independent broker operations, not a transaction, and each
// outcome is reported separately so the caller can tell "fully
// protected", "old order gone but stop failed" and "nothing changed"
// apart.
//
// Callers must have obtained operator confirmation before invoking; the
// executor performs no confirmation of its own and never retries.
type EmergencyExecutor struct {
	broker types.Broker
	calls  CallRecorder
	logger *logrus.Entry
}

// NewEmergencyExecutor builds an executor. The recorder may be nil.
func NewEmergencyExecutor(broker types.Broker, calls CallRecorder) *EmergencyExecutor {
	return &EmergencyExecutor{
		broker: broker,
		calls:  calls,
		logger: logrus.WithField("component", "emergency-executor"),
	}
}

// Execute runs the cancel-then-protect sequence for the given position
// risk and returns a structured outcome with wall-clock elapsed time.
//
// Broker-acknowledged rejections land in the outcome's boolean fields.
// The only raised error is types.ErrTransport, when the broker is
// unreachable before either call could be attempted.
func (e *EmergencyExecutor) Execute(ctx context.Context, r *types.PositionRisk) (*types.EmergencyOutcome, error) {
	if r == nil || r.Position == nil {
		return nil, fmt.Errorf("%w: no position to protect", types.ErrInvalidPosition)
	}

	start := time.Now()
	ticker := r.Position.Ticker
	log := e.logger.WithField("ticker", ticker)

	if err := e.broker.Ping(ctx); err != nil {
		return nil, fmt.Errorf("%w: %v", types.ErrTransport, err)
	}
	e.recordCalls(1)

	outcome := &types.EmergencyOutcome{}

	if order := r.Position.FirstPendingLimitOrder(); order != nil {
		outcome.CancelAttempted = true
		ok, err := e.broker.CancelOrder(ctx, ticker, order.ID)
		e.recordCalls(1)
		if err != nil {
			log.Errorf("cancel of order %s failed in transit: %v", order.ID, err)
			ok = false
		}
		outcome.CancelSuccess = ok
		log.Infof("cancel step done, order=%s success=%t", order.ID, ok)
	}

	// The stop is attempted even when the cancel failed: the position is
	// still at risk either way.
	res, err := e.broker.PlaceStopOrder(ctx, ticker, r.StopLossPrice, r.Position.Quantity)
	e.recordCalls(1)
	if err != nil {
		log.Errorf("stop placement failed in transit: %v", err)
	} else {
		outcome.StopLossSuccess = res.Success
		outcome.StopOrderID = res.OrderID
	}

	if outcome.CancelAttempted {
		outcome.OverallSuccess = outcome.CancelSuccess && outcome.StopLossSuccess
	} else {
		outcome.OverallSuccess = outcome.StopLossSuccess
	}
	outcome.ElapsedSeconds = time.Since(start).Seconds()

	log.Infof("emergency execution finished in %.2fs: overall=%t cancel=%t stop=%t",
		outcome.ElapsedSeconds, outcome.OverallSuccess, outcome.CancelSuccess, outcome.StopLossSuccess)

	return outcome, nil
}

func (e *EmergencyExecutor) recordCalls(n int) {
	if e.calls != nil {
		e.calls.RecordAPICalls(n)
	}
}
