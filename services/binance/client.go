// Package binance adapts Binance USD-M futures to the engine's Portfolio
// and Broker interfaces: position snapshots with pending orders on the
// read side, cancel and stop placement on the execution side.
package binance

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/adshao/go-binance/v2/common"
	"github.com/adshao/go-binance/v2/futures"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"github.com/tradedesk/riskmon/pkg/cache"
	"github.com/tradedesk/riskmon/pkg/types"
)

// Client implements types.Portfolio and types.Broker against Binance
// futures.
type Client struct {
	client  *futures.Client
	limiter *cache.RateLimiter
	logger  *logrus.Entry
}

// New builds a client. Testnet selection must happen before the first
// client is created.
func New(apiKey, secretKey string, testnet bool) *Client {
	if testnet {
		futures.UseTestnet = true
	}

	return &Client{
		client:  futures.NewClient(apiKey, secretKey),
		limiter: cache.NewRateLimiter(2400, time.Minute),
		logger:  logrus.WithField("component", "binance"),
	}
}

// Ping verifies REST connectivity.
func (c *Client) Ping(ctx context.Context) error {
	return c.client.NewPingService().Do(ctx)
}

// ListOpenPositions returns all non-flat positions together with their
// resting orders. Transport failures are wrapped with
// types.ErrDataUnavailable so the monitoring tick skips gracefully.
func (c *Client) ListOpenPositions(ctx context.Context) ([]*types.Position, error) {
	if !c.limiter.Allow("position_risk") {
		return nil, fmt.Errorf("%w: rate limit exceeded", types.ErrDataUnavailable)
	}

	risks, err := c.client.NewGetPositionRiskService().Do(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", types.ErrDataUnavailable, err)
	}

	ordersBySymbol, err := c.openOrdersBySymbol(ctx)
	if err != nil {
		return nil, err
	}

	positions := make([]*types.Position, 0, len(risks))
	for _, r := range risks {
		qty := parseDecimal(r.PositionAmt)
		if qty.IsZero() {
			continue
		}

		entry := parseDecimal(r.EntryPrice)
		mark := parseDecimal(r.MarkPrice)

		p := &types.Position{
			Ticker:        r.Symbol,
			Quantity:      qty.Abs(),
			EntryPrice:    entry,
			CurrentPrice:  mark,
			UnrealizedPL:  parseDecimal(r.UnRealizedProfit),
			PendingOrders: ordersBySymbol[r.Symbol],
		}
		if entry.IsPositive() {
			p.UnrealizedPLPct = mark.Sub(entry).Div(entry).Mul(decimal.NewFromInt(100))
		}
		positions = append(positions, p)
	}

	return positions, nil
}

func (c *Client) openOrdersBySymbol(ctx context.Context) (map[string][]types.PendingOrder, error) {
	if !c.limiter.Allow("open_orders") {
		return nil, fmt.Errorf("%w: rate limit exceeded", types.ErrDataUnavailable)
	}

	orders, err := c.client.NewListOpenOrdersService().Do(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", types.ErrDataUnavailable, err)
	}

	result := make(map[string][]types.PendingOrder)
	for _, o := range orders {
		result[o.Symbol] = append(result[o.Symbol], types.PendingOrder{
			ID:         strconv.FormatInt(o.OrderID, 10),
			Type:       string(o.Type),
			Side:       string(o.Side),
			Quantity:   parseDecimal(o.OrigQuantity),
			LimitPrice: parseDecimal(o.Price),
		})
	}
	return result, nil
}

// CancelOrder cancels the identified order. A rejection the exchange
// acknowledged (unknown order, already filled) reports false with a nil
// error; transport problems surface as errors.
func (c *Client) CancelOrder(ctx context.Context, ticker, orderID string) (bool, error) {
	if !c.limiter.Allow("cancel_order") {
		return false, fmt.Errorf("rate limit exceeded")
	}

	svc := c.client.NewCancelOrderService().Symbol(ticker)
	if id, perr := strconv.ParseInt(orderID, 10, 64); perr == nil {
		svc.OrderID(id)
	} else {
		svc.OrigClientOrderID(orderID)
	}

	_, err := svc.Do(ctx)
	if err != nil {
		var apiErr *common.APIError
		if errors.As(err, &apiErr) {
			c.logger.Warnf("cancel of %s rejected by exchange: %v", orderID, apiErr)
			return false, nil
		}
		return false, err
	}
	return true, nil
}

// PlaceStopOrder submits a reduce-only stop-market sell for the given
// quantity, triggering at stopPrice.
func (c *Client) PlaceStopOrder(ctx context.Context, ticker string, stopPrice, quantity decimal.Decimal) (types.StopOrderResult, error) {
	if !c.limiter.Allow("create_order") {
		return types.StopOrderResult{}, fmt.Errorf("rate limit exceeded")
	}

	res, err := c.client.NewCreateOrderService().
		Symbol(ticker).
		Side(futures.SideTypeSell).
		Type(futures.OrderTypeStopMarket).
		StopPrice(stopPrice.String()).
		Quantity(quantity.String()).
		ReduceOnly(true).
		Do(ctx)
	if err != nil {
		var apiErr *common.APIError
		if errors.As(err, &apiErr) {
			c.logger.Warnf("stop order for %s rejected by exchange: %v", ticker, apiErr)
			return types.StopOrderResult{Success: false}, nil
		}
		return types.StopOrderResult{}, err
	}

	return types.StopOrderResult{
		Success: true,
		OrderID: strconv.FormatInt(res.OrderID, 10),
	}, nil
}

func parseDecimal(s string) decimal.Decimal {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero
	}
	return d
}
