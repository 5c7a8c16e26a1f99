package linksweep

// scheduler.go holds the discrete-event engine that drives a trial.
// Events are kept in a min-priority heap ordered on scheduled time, with
// the insertion sequence number breaking ties so that events scheduled for
// the same instant are dispatched first-come first-serve.  Replaying a trial
// with the same parameters therefore dispatches the same events in the same order.

import (
	"container/heap"
	"context"
	"fmt"
)

// EventKind identifies which registered handler an Event is dispatched to
type EventKind int

const (
	PacketArrival EventKind = iota
	SourceTick
	StopSimulation
)

var kindToStr map[EventKind]string = map[EventKind]string{
	PacketArrival:  "arrival",
	SourceTick:     "tick",
	StopSimulation: "stop",
}

func (ek EventKind) String() string {
	str, present := kindToStr[ek]
	if !present {
		return fmt.Sprintf("kind(%d)", int(ek))
	}
	return str
}

// Event is a scheduled occurrence in virtual time
type Event struct {
	Time    float64   // virtual time (seconds) at which the event fires
	Kind    EventKind // selects the handler
	Payload any       // opaque to the engine, interpreted by the handler
	seq     uint64    // insertion order, breaks ties in Time
}

// EventHandlerFunc is called when an event of the kind it is registered for
// reaches the head of the queue.  A non-nil error stops the run.
type EventHandlerFunc func(eng Engine, payload any) error

// Engine is what the traffic source, channel, and sink schedule through.
// EventScheduler is the native implementation, EvtmEngine runs the same
// events on the iti/evt event manager.
type Engine interface {
	Now() float64
	Schedule(time float64, kind EventKind, payload any) error
	Register(kind EventKind, hdlr EventHandlerFunc)
	RunUntil(ctx context.Context, stopTime float64) error
}

// eventHeap and its methods implement a min-priority heap on (Time, seq)
type eventHeap []*Event

func (h eventHeap) Len() int { return len(h) }
func (h eventHeap) Less(i, j int) bool {
	if h[i].Time == h[j].Time {
		return h[i].seq < h[j].seq
	}
	return h[i].Time < h[j].Time
}
func (h eventHeap) Swap(i, j int) { h[i], h[j] = h[j], h[i] }

func (h *eventHeap) Push(x any) {
	*h = append(*h, x.(*Event))
}

func (h *eventHeap) Pop() any {
	old := *h
	n := len(old)
	x := old[n-1]
	old[n-1] = nil
	*h = old[0 : n-1]
	return x
}

// EventScheduler holds the event queue and virtual clock of one trial
type EventScheduler struct {
	now        float64                        // current virtual time
	nxtSeq     uint64                         // next insertion sequence number
	queue      eventHeap                      // pending events
	handlers   map[EventKind]EventHandlerFunc // one handler per kind
	dispatched uint64                         // count of events handed to handlers
}

// CreateEventScheduler is a constructor.  Virtual time starts at 0.0
func CreateEventScheduler() *EventScheduler {
	es := new(EventScheduler)
	es.queue = eventHeap{}
	es.handlers = make(map[EventKind]EventHandlerFunc)
	heap.Init(&es.queue)
	return es
}

// Now returns the current virtual time
func (es *EventScheduler) Now() float64 {
	return es.now
}

// Pending returns the number of events not yet dispatched
func (es *EventScheduler) Pending() int {
	return len(es.queue)
}

// Dispatched returns the number of events handed to handlers so far
func (es *EventScheduler) Dispatched() uint64 {
	return es.dispatched
}

// Register binds the handler called for events of the given kind, replacing
// any handler bound earlier
func (es *EventScheduler) Register(kind EventKind, hdlr EventHandlerFunc) {
	es.handlers[kind] = hdlr
}

// Schedule inserts an event at absolute virtual time.  Scheduling in the
// past is a causality violation and is refused with an *InvalidTimeError
func (es *EventScheduler) Schedule(time float64, kind EventKind, payload any) error {
	if time < es.now {
		return &InvalidTimeError{Now: es.now, Requested: time}
	}
	evt := &Event{Time: time, Kind: kind, Payload: payload, seq: es.nxtSeq}
	es.nxtSeq += 1
	heap.Push(&es.queue, evt)
	return nil
}

// RunUntil dispatches events in (time, insertion) order.  It returns when the queue
// empties, when a StopSimulation event has been dispatched, or when the next event
// lies beyond stopTime, in which case the clock is left at stopTime.   The context is
// checked between dispatches.
func (es *EventScheduler) RunUntil(ctx context.Context, stopTime float64) error {
	for len(es.queue) > 0 {
		if err := ctx.Err(); err != nil {
			return err
		}

		// leave the event in place if it lies beyond the horizon
		if es.queue[0].Time > stopTime {
			es.now = stopTime
			return nil
		}

		evt := heap.Pop(&es.queue).(*Event)
		es.now = evt.Time

		hdlr, present := es.handlers[evt.Kind]
		if !present && evt.Kind != StopSimulation {
			return fmt.Errorf("no handler registered for %s event at %g", evt.Kind, evt.Time)
		}
		es.dispatched += 1
		if present {
			if err := hdlr(es, evt.Payload); err != nil {
				return err
			}
		}
		if evt.Kind == StopSimulation {
			return nil
		}
	}
	return nil
}
