package types

import "errors"

// Error taxonomy for the monitoring and execution paths. Callers match
// with errors.Is; lower layers wrap these with context.
var (
	// ErrInvalidPosition marks malformed per-position data. The tick
	// skips that position and continues with the rest.
	ErrInvalidPosition = errors.New("invalid position")

	// ErrDataUnavailable marks a failed portfolio fetch. The whole tick
	// is skipped and retried on the next schedule; stats are kept.
	ErrDataUnavailable = errors.New("position data unavailable")

	// ErrTransport marks total loss of connectivity to the broker before
	// any order call could be attempted. Distinct from a broker
	// acknowledged rejection, which is reported via result flags.
	ErrTransport = errors.New("broker unreachable")
)
