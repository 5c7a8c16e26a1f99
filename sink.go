package linksweep

// sink.go holds the receiving end of the link.  It counts what arrives,
// infers loss from gaps in the sequence numbers, and accumulates the
// deviation of inter-arrival gaps from the interval the source sends at.

import (
	"math"

	"gonum.org/v1/gonum/stat"
)

// Sink consumes PacketArrival events
type Sink struct {
	expInterval float64 // inter-arrival gap expected from the source

	highestSeen int64  // highest sequence number received, -1 before the first arrival
	lost        uint64 // packets whose sequence numbers were skipped
	received    uint64
	bytesRcvd   uint64

	firstArrival float64
	lastArrival  float64
	gapDevs      []float64 // |gap - expInterval| for every gap observed

	traceMgr *TraceManager
	trialID  int
}

// CreateSink is a constructor.  interval is the spacing the source sends at
func CreateSink(interval float64) *Sink {
	sk := new(Sink)
	sk.expInterval = interval
	sk.highestSeen = -1
	sk.gapDevs = make([]float64, 0)
	return sk
}

// setTrace directs the sink to record each arrival with the trace manager
func (sk *Sink) setTrace(tm *TraceManager, trialID int) {
	sk.traceMgr = tm
	sk.trialID = trialID
}

// handleArrival is registered as the handler for PacketArrival events
func (sk *Sink) handleArrival(eng Engine, payload any) error {
	sk.Receive(payload.(*Packet))
	return nil
}

// Receive accounts for one arriving packet
func (sk *Sink) Receive(pckt *Packet) {
	seq := int64(pckt.SeqNum)

	// skipped sequence numbers are permanently counted as lost
	if seq > sk.highestSeen+1 {
		sk.lost += uint64(seq - sk.highestSeen - 1)
	}
	if seq > sk.highestSeen {
		sk.highestSeen = seq
	}

	if sk.received == 0 {
		sk.firstArrival = pckt.ArrivalTime
	} else {
		gap := pckt.ArrivalTime - sk.lastArrival
		sk.gapDevs = append(sk.gapDevs, math.Abs(gap-sk.expInterval))
	}
	sk.lastArrival = pckt.ArrivalTime
	sk.received += 1
	sk.bytesRcvd += uint64(pckt.SizeBytes)

	if sk.traceMgr.Active() {
		sk.traceMgr.AddPacketTrace(pckt.ArrivalTime, sk.trialID, pckt, "arrive")
	}
}

// Lost returns the running count of packets inferred lost
func (sk *Sink) Lost() uint64 {
	return sk.lost
}

// Received returns the number of packets that arrived
func (sk *Sink) Received() uint64 {
	return sk.received
}

// BytesReceived returns the number of payload bytes that arrived
func (sk *Sink) BytesReceived() uint64 {
	return sk.bytesRcvd
}

// HighestSeen returns the highest sequence number received, -1 if none
func (sk *Sink) HighestSeen() int64 {
	return sk.highestSeen
}

// ArrivalSpan returns the times of the first and last arrivals
func (sk *Sink) ArrivalSpan() (float64, float64) {
	return sk.firstArrival, sk.lastArrival
}

// Jitter is the mean absolute deviation of the inter-arrival gaps from the
// expected interval, reported to nanosecond resolution.  Zero when fewer than
// two packets arrived
func (sk *Sink) Jitter() float64 {
	if len(sk.gapDevs) == 0 {
		return 0.0
	}
	return roundFloat(stat.Mean(sk.gapDevs, nil), 9)
}
