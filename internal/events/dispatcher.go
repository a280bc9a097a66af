package events

import "sync"

// Dispatcher fans events out to registered subscribers synchronously and
// in registration order, which preserves the engine's ordering guarantee
// that all event delivery for a tick completes before the transition
// tracker commits.
type Dispatcher struct {
	mu   sync.RWMutex
	subs []Subscriber
}

func NewDispatcher() *Dispatcher {
	return &Dispatcher{}
}

// Subscribe registers a subscriber. Registration after Start is safe.
func (d *Dispatcher) Subscribe(s Subscriber) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.subs = append(d.subs, s)
}

func (d *Dispatcher) snapshotSubs() []Subscriber {
	d.mu.RLock()
	defer d.mu.RUnlock()
	subs := make([]Subscriber, len(d.subs))
	copy(subs, d.subs)
	return subs
}

// PublishSnapshot delivers a snapshot to every subscriber.
func (d *Dispatcher) PublishSnapshot(s Snapshot) {
	for _, sub := range d.snapshotSubs() {
		sub.OnSnapshot(s)
	}
}

// PublishAlert delivers an alert to every subscriber.
func (d *Dispatcher) PublishAlert(a Alert) {
	for _, sub := range d.snapshotSubs() {
		sub.OnAlert(a)
	}
}

// PublishStatus delivers a status update to every subscriber.
func (d *Dispatcher) PublishStatus(s Status) {
	for _, sub := range d.snapshotSubs() {
		sub.OnStatus(s)
	}
}
