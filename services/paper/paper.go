// Package paper is an in-memory exchange used for dry runs: it serves
// whatever position snapshots it was seeded with and acknowledges every
// order call without touching a real broker.
package paper

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"github.com/tradedesk/riskmon/pkg/types"
)

// Exchange implements types.Portfolio and types.Broker.
type Exchange struct {
	mu        sync.RWMutex
	positions []*types.Position
	cancelled map[string]bool
	nextID    atomic.Int64
	logger    *logrus.Entry
}

func New() *Exchange {
	return &Exchange{
		cancelled: make(map[string]bool),
		logger:    logrus.WithField("component", "paper-exchange"),
	}
}

// SetPositions replaces the snapshot served to the next fetch.
func (e *Exchange) SetPositions(positions []*types.Position) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.positions = positions
}

func (e *Exchange) Ping(ctx context.Context) error { return nil }

func (e *Exchange) ListOpenPositions(ctx context.Context) ([]*types.Position, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	out := make([]*types.Position, len(e.positions))
	copy(out, e.positions)
	return out, nil
}

func (e *Exchange) CancelOrder(ctx context.Context, ticker, orderID string) (bool, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.cancelled[orderID] {
		// Matches a real broker rejecting a second cancel of the same order.
		e.logger.Warnf("order %s already cancelled", orderID)
		return false, nil
	}
	e.cancelled[orderID] = true
	e.logger.Infof("cancelled order %s on %s", orderID, ticker)
	return true, nil
}

func (e *Exchange) PlaceStopOrder(ctx context.Context, ticker string, stopPrice, quantity decimal.Decimal) (types.StopOrderResult, error) {
	id := fmt.Sprintf("paper-%d", e.nextID.Add(1))
	e.logger.Infof("placed stop for %s: %s @ %s (order %s)", ticker, quantity, stopPrice, id)
	return types.StopOrderResult{Success: true, OrderID: id}, nil
}
