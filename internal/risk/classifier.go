// Package risk implements the position risk monitoring and emergency
// execution engine: a pure classifier, a transition tracker, a recurring
// monitoring loop, and a two-step emergency executor.
package risk

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/tradedesk/riskmon/pkg/types"
)

var oneHundred = decimal.NewFromInt(100)

// Classify evaluates one position against the configured thresholds. It
// is pure and deterministic: no I/O, no side effects, identical inputs
// yield identical results apart from the EvaluatedAt stamp.
//
// Malformed input fails with types.ErrInvalidPosition so the caller can
// skip the position and keep the tick going.
func Classify(p *types.Position, thresholds types.RiskThresholds) (*types.PositionRisk, error) {
	if err := validatePosition(p); err != nil {
		return nil, err
	}

	plPct := p.CurrentPrice.Sub(p.EntryPrice).Div(p.EntryPrice).Mul(oneHundred)
	pl := p.CurrentPrice.Sub(p.EntryPrice).Mul(p.Quantity)
	level := thresholds.LevelFor(plPct)

	offset := thresholds.StopOffsetFor(level)
	stopPrice := p.CurrentPrice.Mul(decimal.NewFromInt(1).Sub(offset.Div(oneHundred)))

	// Worst-case realized loss if the protective stop executes. Zero for
	// positions whose stop sits above entry.
	stopAmount := p.EntryPrice.Sub(stopPrice).Mul(p.Quantity)
	if stopAmount.IsNegative() {
		stopAmount = decimal.Zero
	}

	return &types.PositionRisk{
		Position:        p,
		Level:           level,
		UnrealizedPL:    pl,
		UnrealizedPLPct: plPct,
		StopLossPrice:   stopPrice,
		StopLossAmount:  stopAmount,
		Alerts:          buildAlerts(p, plPct, thresholds),
		Recommendations: buildRecommendations(p, level, stopPrice),
		EvaluatedAt:     time.Now(),
	}, nil
}

func validatePosition(p *types.Position) error {
	switch {
	case p == nil:
		return fmt.Errorf("%w: nil position", types.ErrInvalidPosition)
	case p.Ticker == "":
		return fmt.Errorf("%w: missing ticker", types.ErrInvalidPosition)
	case !p.Quantity.IsPositive():
		return fmt.Errorf("%w: %s has non-positive quantity %s", types.ErrInvalidPosition, p.Ticker, p.Quantity)
	case !p.EntryPrice.IsPositive():
		return fmt.Errorf("%w: %s has non-positive entry price %s", types.ErrInvalidPosition, p.Ticker, p.EntryPrice)
	case !p.CurrentPrice.IsPositive():
		return fmt.Errorf("%w: %s has non-positive current price %s", types.ErrInvalidPosition, p.Ticker, p.CurrentPrice)
	}
	return nil
}

// buildAlerts emits one message per crossed boundary, most severe first,
// then any auxiliary market-signal alerts.
func buildAlerts(p *types.Position, plPct decimal.Decimal, t types.RiskThresholds) []string {
	var alerts []string
	loss := plPct.Abs().StringFixed(1)

	if plPct.LessThanOrEqual(t.Critical) {
		alerts = append(alerts, fmt.Sprintf("CRITICAL: %s down %s%% (beyond %s%%)", p.Ticker, loss, t.Critical.Abs()))
	}
	if plPct.LessThanOrEqual(t.Danger) {
		alerts = append(alerts, fmt.Sprintf("DANGER: %s down more than %s%%", p.Ticker, t.Danger.Abs()))
	}
	if plPct.LessThanOrEqual(t.Warning) {
		alerts = append(alerts, fmt.Sprintf("WARNING: %s down more than %s%%", p.Ticker, t.Warning.Abs()))
	}
	if p.HighVolumeSell {
		alerts = append(alerts, fmt.Sprintf("High-volume selling detected in %s", p.Ticker))
	}
	return alerts
}

func buildRecommendations(p *types.Position, level types.RiskLevel, stopPrice decimal.Decimal) []string {
	var recs []string
	stop := stopPrice.StringFixed(2)

	switch level {
	case types.RiskLevelCritical:
		recs = append(recs, fmt.Sprintf("Exit %s now or place an emergency stop at %s", p.Ticker, stop))
	case types.RiskLevelDanger:
		recs = append(recs, fmt.Sprintf("Tighten the stop on %s to %s", p.Ticker, stop))
	case types.RiskLevelWarning:
		recs = append(recs, fmt.Sprintf("Review %s; consider a protective stop at %s", p.Ticker, stop))
	}

	if level >= types.RiskLevelDanger && p.FirstPendingLimitOrder() != nil {
		recs = append(recs, fmt.Sprintf("Cancel the resting limit order on %s before placing the stop", p.Ticker))
	}
	return recs
}
