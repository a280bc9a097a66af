// Package events carries the engine's outbound event surface: one
// consolidated snapshot per tick, one alert per new risk transition, and
// transient status updates. Consumers register on a Dispatcher instead of
// listening for ambient global events.
package events

import (
	"time"

	"github.com/tradedesk/riskmon/pkg/types"
)

// Snapshot is emitted once per completed tick and carries every
// evaluated position regardless of whether anything changed.
type Snapshot struct {
	Risks []*types.PositionRisk `json:"risks"`
	Stats types.MonitoringStats `json:"stats"`
	At    time.Time             `json:"at"`
}

// Alert is emitted only for a position that just transitioned into a
// more severe non-SAFE level. Notification and sound side effects key
// off this event, never off the snapshot.
type Alert struct {
	ID            string              `json:"id"`
	Risk          *types.PositionRisk `json:"risk"`
	PreviousLevel types.RiskLevel     `json:"previous_level"`
	FirstSeen     bool                `json:"first_seen"`
	At            time.Time           `json:"at"`
}

// Status reports a transient operational condition, currently a failed
// portfolio fetch. The UI shows it as an indicator, not a blocking error.
type Status struct {
	Message             string    `json:"message"`
	Err                 string    `json:"error,omitempty"`
	ConsecutiveFailures int       `json:"consecutive_failures"`
	At                  time.Time `json:"at"`
}

// Subscriber receives engine events. Calls arrive from the monitoring
// goroutine in emission order; implementations must not block for long.
type Subscriber interface {
	OnSnapshot(Snapshot)
	OnAlert(Alert)
	OnStatus(Status)
}
