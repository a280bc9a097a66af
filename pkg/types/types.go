package types

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// Order types
const (
	OrderTypeMarket     = "MARKET"
	OrderTypeLimit      = "LIMIT"
	OrderTypeStopMarket = "STOP_MARKET"
	OrderTypeStopLimit  = "STOP_LIMIT"
)

// Order sides
const (
	OrderSideBuy  = "BUY"
	OrderSideSell = "SELL"
)

type OrderType = string
type OrderSide = string

// RiskLevel classifies how far a position's unrealized loss has
// progressed. Levels are totally ordered: Safe < Warning < Danger <
// Critical, so "worsened" and "improved" transitions are well defined.
type RiskLevel int

const (
	RiskLevelSafe RiskLevel = iota
	RiskLevelWarning
	RiskLevelDanger
	RiskLevelCritical
)

var riskLevelNames = map[RiskLevel]string{
	RiskLevelSafe:     "SAFE",
	RiskLevelWarning:  "WARNING",
	RiskLevelDanger:   "DANGER",
	RiskLevelCritical: "CRITICAL",
}

func (l RiskLevel) String() string {
	if name, ok := riskLevelNames[l]; ok {
		return name
	}
	return fmt.Sprintf("RiskLevel(%d)", int(l))
}

// MoreSevereThan reports whether l is strictly more severe than other.
func (l RiskLevel) MoreSevereThan(other RiskLevel) bool {
	return l > other
}

// MarshalJSON encodes the level as its name so event consumers see
// "CRITICAL" rather than an integer.
func (l RiskLevel) MarshalJSON() ([]byte, error) {
	return json.Marshal(l.String())
}

// UnmarshalJSON accepts the level name produced by MarshalJSON.
func (l *RiskLevel) UnmarshalJSON(data []byte) error {
	var name string
	if err := json.Unmarshal(data, &name); err != nil {
		return err
	}
	for level, n := range riskLevelNames {
		if n == name {
			*l = level
			return nil
		}
	}
	return fmt.Errorf("unknown risk level %q", name)
}

// PendingOrder is an immutable snapshot of a resting order attached to a
// position. It is referenced by ID during emergency execution so the
// correct order is cancelled.
type PendingOrder struct {
	ID         string          `json:"id"`
	Type       OrderType       `json:"type"`
	Side       OrderSide       `json:"side,omitempty"`
	Quantity   decimal.Decimal `json:"quantity"`
	LimitPrice decimal.Decimal `json:"limit_price,omitempty"`
}

// Position is a read-only snapshot of an open holding, owned by the
// portfolio collaborator and refreshed every monitoring tick.
type Position struct {
	Ticker          string          `json:"ticker"`
	Quantity        decimal.Decimal `json:"quantity"`
	EntryPrice      decimal.Decimal `json:"entry_price"`
	CurrentPrice    decimal.Decimal `json:"current_price"`
	UnrealizedPL    decimal.Decimal `json:"unrealized_pl"`
	UnrealizedPLPct decimal.Decimal `json:"unrealized_pl_pct"`
	// HighVolumeSell is an optional market-data signal; when set the
	// classifier raises an additional alert for the position.
	HighVolumeSell bool           `json:"high_volume_sell,omitempty"`
	PendingOrders  []PendingOrder `json:"pending_orders,omitempty"`
}

// FirstPendingLimitOrder returns the position's first resting LIMIT
// order, or nil when there is none.
func (p *Position) FirstPendingLimitOrder() *PendingOrder {
	for i := range p.PendingOrders {
		if p.PendingOrders[i].Type == OrderTypeLimit {
			return &p.PendingOrders[i]
		}
	}
	return nil
}

// RiskThresholds holds the loss-percentage boundaries mapping unrealized
// P/L to a RiskLevel, plus the stop offsets used to compute protective
// stop prices. Boundaries are negative percentages and must be strictly
// decreasing: Warning > Danger > Critical.
type RiskThresholds struct {
	Warning  decimal.Decimal `json:"warning"`
	Danger   decimal.Decimal `json:"danger"`
	Critical decimal.Decimal `json:"critical"`

	// Stop offsets, in percent below current price. Tighter at higher
	// severity so a deteriorating position gets protected closer to
	// the market.
	StopOffsetWarning  decimal.Decimal `json:"stop_offset_warning"`
	StopOffsetDanger   decimal.Decimal `json:"stop_offset_danger"`
	StopOffsetCritical decimal.Decimal `json:"stop_offset_critical"`
}

// DefaultRiskThresholds returns the standard boundaries: WARNING at -5%,
// DANGER at -10%, CRITICAL at -15%, with 5/3/2 percent stop offsets.
func DefaultRiskThresholds() RiskThresholds {
	return RiskThresholds{
		Warning:            decimal.NewFromInt(-5),
		Danger:             decimal.NewFromInt(-10),
		Critical:           decimal.NewFromInt(-15),
		StopOffsetWarning:  decimal.NewFromInt(5),
		StopOffsetDanger:   decimal.NewFromInt(3),
		StopOffsetCritical: decimal.NewFromInt(2),
	}
}

// Validate checks the four-level ordering invariant.
func (t RiskThresholds) Validate() error {
	if !t.Warning.IsNegative() || !t.Danger.IsNegative() || !t.Critical.IsNegative() {
		return fmt.Errorf("risk thresholds must be negative percentages")
	}
	if !t.Warning.GreaterThan(t.Danger) || !t.Danger.GreaterThan(t.Critical) {
		return fmt.Errorf("risk thresholds must be strictly ordered: warning > danger > critical")
	}
	for _, offset := range []decimal.Decimal{t.StopOffsetWarning, t.StopOffsetDanger, t.StopOffsetCritical} {
		if !offset.IsPositive() {
			return fmt.Errorf("stop offsets must be positive percentages")
		}
	}
	return nil
}

// LevelFor maps an unrealized loss percentage to the most severe level
// whose boundary is crossed. A value exactly at a boundary counts as
// having crossed it.
func (t RiskThresholds) LevelFor(plPct decimal.Decimal) RiskLevel {
	switch {
	case plPct.LessThanOrEqual(t.Critical):
		return RiskLevelCritical
	case plPct.LessThanOrEqual(t.Danger):
		return RiskLevelDanger
	case plPct.LessThanOrEqual(t.Warning):
		return RiskLevelWarning
	default:
		return RiskLevelSafe
	}
}

// StopOffsetFor returns the stop offset to apply at a given level. Safe
// positions use the warning offset as the widest reasonable stop.
func (t RiskThresholds) StopOffsetFor(level RiskLevel) decimal.Decimal {
	switch level {
	case RiskLevelCritical:
		return t.StopOffsetCritical
	case RiskLevelDanger:
		return t.StopOffsetDanger
	default:
		return t.StopOffsetWarning
	}
}

// PositionRisk is the classifier's per-position verdict, recomputed every
// tick and never persisted.
type PositionRisk struct {
	Position        *Position       `json:"position"`
	Level           RiskLevel       `json:"level"`
	UnrealizedPL    decimal.Decimal `json:"unrealized_pl"`
	UnrealizedPLPct decimal.Decimal `json:"unrealized_pl_pct"`
	StopLossPrice   decimal.Decimal `json:"stop_loss_price"`
	StopLossAmount  decimal.Decimal `json:"stop_loss_amount"`
	Alerts          []string        `json:"alerts,omitempty"`
	Recommendations []string        `json:"recommendations,omitempty"`
	EvaluatedAt     time.Time       `json:"evaluated_at"`
}

// MonitoringStats accumulates operational counters for one monitoring
// session. Reset only on explicit restart.
type MonitoringStats struct {
	PositionsMonitored int       `json:"positions_monitored"`
	TotalChecks        int64     `json:"total_checks"`
	AlertsTriggered    int64     `json:"alerts_triggered"`
	APICallsUsed       int64     `json:"api_calls_used"`
	LastCheckAt        time.Time `json:"last_check_at"`
}

// EmergencyOutcome is the structured result of one emergency execution.
// CancelAttempted distinguishes "nothing to cancel" from a cancel that
// was tried: the caller must be able to tell "old order still active,
// nothing changed" apart from "old order gone but new stop also failed".
type EmergencyOutcome struct {
	OverallSuccess  bool    `json:"overall_success"`
	CancelAttempted bool    `json:"cancel_attempted"`
	CancelSuccess   bool    `json:"cancel_success"`
	StopLossSuccess bool    `json:"stop_loss_success"`
	StopOrderID     string  `json:"stop_order_id,omitempty"`
	ElapsedSeconds  float64 `json:"elapsed_seconds"`
}
