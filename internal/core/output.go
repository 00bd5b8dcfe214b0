package core

import (
	"sync"
	"time"

	"SerialShell/internal/model"
)

// OutputLog is the shared, append-only sequence of output events. It has no
// size bound: a chatty device grows it for the whole session.
type OutputLog struct {
	mu     sync.Mutex
	events []model.Event
	seq    uint64

	// notifyMu serializes subscriber calls so they observe events in
	// sequence order.
	notifyMu sync.Mutex
	subs     []func(model.Event)
}

// NewOutputLog creates an empty log.
func NewOutputLog() *OutputLog {
	return &OutputLog{}
}

// Publish assigns the next sequence number and timestamp to ev, appends it
// and notifies subscribers. The stored event is returned.
func (o *OutputLog) Publish(ev model.Event) model.Event {
	o.notifyMu.Lock()
	defer o.notifyMu.Unlock()

	o.mu.Lock()
	o.seq++
	ev.Seq = o.seq
	if ev.Time.IsZero() {
		ev.Time = time.Now()
	}
	o.events = append(o.events, ev)
	subs := o.subs
	o.mu.Unlock()

	for _, fn := range subs {
		fn(ev)
	}
	return ev
}

// OnEvent registers fn to be called for every later event.
func (o *OutputLog) OnEvent(fn func(model.Event)) {
	o.mu.Lock()
	defer o.mu.Unlock()
	subs := make([]func(model.Event), len(o.subs), len(o.subs)+1)
	copy(subs, o.subs)
	o.subs = append(subs, fn)
}

// Events returns a copy of all events.
func (o *OutputLog) Events() []model.Event {
	o.mu.Lock()
	defer o.mu.Unlock()
	out := make([]model.Event, len(o.events))
	copy(out, o.events)
	return out
}

// Since returns the events with a sequence number greater than seq.
func (o *OutputLog) Since(seq uint64) []model.Event {
	o.mu.Lock()
	defer o.mu.Unlock()
	var out []model.Event
	for i := len(o.events) - 1; i >= 0 && o.events[i].Seq > seq; i-- {
		out = append(out, o.events[i])
	}
	for i, j := 0, len(out)-1; i < j; i, j = i+1, j-1 {
		out[i], out[j] = out[j], out[i]
	}
	return out
}

// Len returns the number of stored events.
func (o *OutputLog) Len() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return len(o.events)
}

// Reset drops every event. Sequence numbers keep increasing so readers that
// track the last seen sequence do not receive old numbers again.
func (o *OutputLog) Reset() {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.events = nil
}
