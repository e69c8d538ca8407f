package scan

import "github.com/user/pingcheck/internal/model"

// Event is one message on a run's result channel: Scanning, Result or
// Finished.
type Event interface {
	event()
}

// Scanning announces that probing of the target at Index (0-based) begins.
type Scanning struct {
	Index  int
	Total  int
	Target model.Target
}

// Result carries the outcome of the target at Index.
type Result struct {
	Index int
	model.ProbeResult
}

// Finished is the last event of a run. Completed is false when the run was
// cancelled before its final target.
type Finished struct {
	Completed bool
	Scanned   int
}

func (Scanning) event() {}
func (Result) event()   {}
func (Finished) event() {}

// ResultChannel carries events from a run's worker to a single consumer.
// Capacity covers every event a run can emit, so the worker never waits
// on a slow consumer. The channel is closed after Finished.
type ResultChannel struct {
	ch chan Event
}

func newResultChannel(targets int) *ResultChannel {
	return &ResultChannel{ch: make(chan Event, 2*targets+1)}
}

func (c *ResultChannel) publish(ev Event) {
	c.ch <- ev
}

func (c *ResultChannel) close() {
	close(c.ch)
}

// C exposes the underlying channel for range or select.
func (c *ResultChannel) C() <-chan Event {
	return c.ch
}

// TryReceive returns the next event without blocking. ok is false when no
// event is pending or the channel is closed and empty.
func (c *ResultChannel) TryReceive() (ev Event, ok bool) {
	select {
	case ev, ok = <-c.ch:
		return ev, ok
	default:
		return nil, false
	}
}

// Drain returns all pending events without blocking. closed reports that
// the run has finished and no more events will follow.
func (c *ResultChannel) Drain() (events []Event, closed bool) {
	for {
		select {
		case ev, ok := <-c.ch:
			if !ok {
				return events, true
			}
			events = append(events, ev)
		default:
			return events, false
		}
	}
}
