package linksweep

// source.go holds the constant-rate traffic source.  Like a UDP client
// application it wakes on a timer, stamps and hands one packet to the
// channel, and re-arms the timer until its packet budget or its active
// window is exhausted.

// SourceState is the position of a TrafficSource in its life cycle
type SourceState int

const (
	SourceIdle SourceState = iota
	SourceEmitting
	SourceStopped
)

var srcStateToStr map[SourceState]string = map[SourceState]string{
	SourceIdle:     "idle",
	SourceEmitting: "emitting",
	SourceStopped:  "stopped",
}

func (ss SourceState) String() string {
	return srcStateToStr[ss]
}

// TrafficSource emits a bounded sequence of fixed-size packets at a fixed interval
type TrafficSource struct {
	pcktSize  uint32  // bytes per packet
	pcktCount uint64  // packets to send, if the window allows
	interval  float64 // seconds between packets
	srtTime   float64 // time of the first packet
	stopTime  float64 // no packet is sent at or after this time

	state  SourceState
	nxtSeq uint64 // sequence number of the next packet, also the number sent so far

	channel *Channel
}

// CreateTrafficSource is a constructor.  The source is active over [srtTime, stopTime)
func CreateTrafficSource(channel *Channel, pcktSize uint32, pcktCount uint64,
	interval, srtTime, stopTime float64) *TrafficSource {
	ts := new(TrafficSource)
	ts.channel = channel
	ts.pcktSize = pcktSize
	ts.pcktCount = pcktCount
	ts.interval = interval
	ts.srtTime = srtTime
	ts.stopTime = stopTime
	ts.state = SourceIdle
	return ts
}

// State reports where the source is in its life cycle
func (ts *TrafficSource) State() SourceState {
	return ts.state
}

// Sent returns the number of packets emitted so far
func (ts *TrafficSource) Sent() uint64 {
	return ts.nxtSeq
}

// Start schedules the first tick.  A source with nothing to send, or whose
// window is empty, goes straight to Stopped
func (ts *TrafficSource) Start(eng Engine) error {
	if ts.state != SourceIdle {
		return nil
	}
	if ts.pcktCount == 0 || !(ts.srtTime < ts.stopTime) {
		ts.state = SourceStopped
		return nil
	}
	ts.state = SourceEmitting
	return eng.Schedule(ts.srtTime, SourceTick, ts)
}

// tickTime is the scheduled time of the packet with the given sequence number.
// Computed from the start rather than accumulated so that long runs do not drift
func (ts *TrafficSource) tickTime(seq uint64) float64 {
	return roundFloat(ts.srtTime+float64(seq)*ts.interval, rdigits)
}

// sourceTick is the handler registered for SourceTick events
func sourceTick(eng Engine, payload any) error {
	ts := payload.(*TrafficSource)
	return ts.tick(eng)
}

// tick emits one packet and either re-arms or stops the source
func (ts *TrafficSource) tick(eng Engine) error {
	if ts.state != SourceEmitting {
		return nil
	}

	now := eng.Now()
	pckt := &Packet{SeqNum: ts.nxtSeq, SizeBytes: ts.pcktSize, SendTime: now}
	ts.nxtSeq += 1

	if err := ts.channel.Transmit(pckt, now); err != nil {
		return err
	}

	if ts.nxtSeq >= ts.pcktCount {
		ts.state = SourceStopped
		return nil
	}

	// the application stop wins over a tick landing on the same instant
	nxt := ts.tickTime(ts.nxtSeq)
	if !(nxt < ts.stopTime) {
		ts.state = SourceStopped
		return nil
	}
	return eng.Schedule(nxt, SourceTick, ts)
}
