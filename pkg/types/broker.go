package types

import (
	"context"

	"github.com/shopspring/decimal"
)

// Portfolio supplies per-tick position snapshots. Implementations wrap
// transport failures with ErrDataUnavailable.
type Portfolio interface {
	// ListOpenPositions returns all open positions together with their
	// pending orders.
	ListOpenPositions(ctx context.Context) ([]*Position, error)
}

// StopOrderResult reports the broker's answer to a stop placement.
// Success false with a nil error means the broker acknowledged the
// request and rejected it.
type StopOrderResult struct {
	Success bool   `json:"success"`
	OrderID string `json:"order_id,omitempty"`
}

// Broker exposes the two order operations consumed during emergency
// execution. Call errors indicate transport problems; broker-side
// rejections come back as false results with a nil error.
type Broker interface {
	// Ping verifies connectivity before an order sequence is attempted.
	Ping(ctx context.Context) error

	// CancelOrder cancels the identified order and reports whether the
	// broker accepted the cancellation.
	CancelOrder(ctx context.Context, ticker, orderID string) (bool, error)

	// PlaceStopOrder submits a protective stop for the given quantity at
	// the given trigger price.
	PlaceStopOrder(ctx context.Context, ticker string, stopPrice, quantity decimal.Decimal) (StopOrderResult, error)
}
