package linksweep

// evtm-engine.go adapts the iti/evt event manager to the Engine interface, so
// that a trial can be run on the same event list other iti/evt models use and
// its results cross-checked against the native scheduler.   The event manager
// schedules by offset from the current time, so absolute times are converted on
// the way in and carried with the event to keep the engine's clock exact.

import (
	"context"
	"fmt"
	"math"

	"github.com/iti/evt/evtm"
	"github.com/iti/evt/vrtime"
)

// EvtmEngine runs Engine events on an evtm.EventManager.  The event manager
// orders events on vrtime ticks of 100ns; events whose times fall within the
// same tick are dispatched in the order they were scheduled, not by time, and
// the clock never moves backwards when that happens.  Use the EventScheduler
// where sub-tick spacing matters
type EvtmEngine struct {
	evtMgr   *evtm.EventManager
	handlers map[EventKind]EventHandlerFunc

	clock   float64 // absolute time of the most recently dispatched event
	pending int     // events scheduled but not yet popped by the event manager

	ctx      context.Context
	stopTime float64
	halted   bool  // set once the run is over; later pops are ignored
	err      error // first error raised during the run
}

// CreateEvtmEngine is a constructor
func CreateEvtmEngine() *EvtmEngine {
	ee := new(EvtmEngine)
	ee.evtMgr = evtm.New()
	ee.handlers = make(map[EventKind]EventHandlerFunc)
	ee.stopTime = math.MaxFloat64
	return ee
}

// Now returns the current virtual time
func (ee *EvtmEngine) Now() float64 {
	return ee.clock
}

// Register binds the handler called for events of the given kind
func (ee *EvtmEngine) Register(kind EventKind, hdlr EventHandlerFunc) {
	ee.handlers[kind] = hdlr
}

// Schedule converts the absolute time to an offset and hands the event to the event manager
func (ee *EvtmEngine) Schedule(time float64, kind EventKind, payload any) error {
	if time < ee.clock {
		return &InvalidTimeError{Now: ee.clock, Requested: time}
	}
	evt := &Event{Time: time, Kind: kind, Payload: payload}
	ee.pending += 1
	ee.evtMgr.Schedule(ee, evt, evtmDispatch, vrtime.SecondsToTime(time-ee.clock))
	return nil
}

// RunUntil runs the event manager.  Events beyond stopTime are left undispatched
// and the clock is set to stopTime when any remain
func (ee *EvtmEngine) RunUntil(ctx context.Context, stopTime float64) error {
	ee.ctx = ctx
	ee.stopTime = stopTime
	ee.halted = false

	ee.evtMgr.Run(stopTime)

	if ee.err != nil {
		return ee.err
	}
	if ee.pending > 0 && ee.clock < stopTime {
		ee.clock = stopTime
	}
	return nil
}

// evtmDispatch is the evtm event handler every Engine event is scheduled with
func evtmDispatch(evtMgr *evtm.EventManager, context any, data any) any {
	ee := context.(*EvtmEngine)
	evt := data.(*Event)
	ee.pending -= 1

	if ee.halted {
		return nil
	}
	if err := ee.ctx.Err(); err != nil {
		ee.err = err
		ee.halted = true
		return nil
	}
	if evt.Time > ee.stopTime {
		ee.pending += 1
		ee.halted = true
		return nil
	}

	ee.clock = math.Max(ee.clock, evt.Time)

	hdlr, present := ee.handlers[evt.Kind]
	if !present && evt.Kind != StopSimulation {
		ee.err = fmt.Errorf("no handler registered for %s event at %g", evt.Kind, evt.Time)
		ee.halted = true
		return nil
	}
	if present {
		if err := hdlr(ee, evt.Payload); err != nil {
			ee.err = err
			ee.halted = true
			return nil
		}
	}
	if evt.Kind == StopSimulation {
		ee.halted = true
	}
	return nil
}
