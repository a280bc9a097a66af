package events

// ChannelSubscriber adapts the Subscriber interface to buffered channels
// a UI can select on. Sends are non-blocking: when a consumer falls
// behind, older events are dropped rather than stalling the monitoring
// loop.
type ChannelSubscriber struct {
	snapshots chan Snapshot
	alerts    chan Alert
	statuses  chan Status
}

// NewChannelSubscriber creates a subscriber whose channels buffer up to
// size events each.
func NewChannelSubscriber(size int) *ChannelSubscriber {
	if size < 1 {
		size = 1
	}
	return &ChannelSubscriber{
		snapshots: make(chan Snapshot, size),
		alerts:    make(chan Alert, size),
		statuses:  make(chan Status, size),
	}
}

func (c *ChannelSubscriber) Snapshots() <-chan Snapshot { return c.snapshots }
func (c *ChannelSubscriber) Alerts() <-chan Alert       { return c.alerts }
func (c *ChannelSubscriber) Statuses() <-chan Status    { return c.statuses }

func (c *ChannelSubscriber) OnSnapshot(s Snapshot) {
	select {
	case c.snapshots <- s:
	default:
		// Drop the oldest so the latest snapshot always gets through.
		select {
		case <-c.snapshots:
		default:
		}
		select {
		case c.snapshots <- s:
		default:
		}
	}
}

func (c *ChannelSubscriber) OnAlert(a Alert) {
	select {
	case c.alerts <- a:
	default:
	}
}

func (c *ChannelSubscriber) OnStatus(s Status) {
	select {
	case c.statuses <- s:
	default:
	}
}
