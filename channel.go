package linksweep

// channel.go holds the model of the single directional link between the
// traffic source and the sink.  A packet handed to the channel occupies the
// link for its serialization time, then travels for the propagation latency.
// Optionally each packet picks up extra queueing delay drawn from a distribution,
// but the link never reorders: an arrival is never scheduled before the
// arrival of the packet sent ahead of it.

import (
	"fmt"
	"math"

	"github.com/iti/rngstream"
)

// Packet is one datagram crossing the link
type Packet struct {
	SeqNum      uint64  // position in the source's sequence, starting at 0
	SizeBytes   uint32  // length of the datagram
	SendTime    float64 // virtual time the source handed it to the channel
	ArrivalTime float64 // virtual time it reaches the sink, set by the channel
}

// Channel models one direction of a point-to-point link
type Channel struct {
	bndwdth float64 // bits per second
	latency float64 // propagation delay, seconds

	// function that samples extra per-packet delay.  First argument is a U01
	// random number, second argument is the vector of parameters of the distribution.
	// nil when the link adds no delay beyond serialization and latency
	sampleDelay func(float64, []float64) float64
	delayParams []float64
	rngstrm     *rngstream.RngStream

	lastArrival float64 // arrival time of the most recently transmitted packet
	transmitted uint64  // packets handed to the channel

	eng      Engine
	traceMgr *TraceManager
	trialID  int
}

// CreateChannel is a constructor.  bndwdth is in bits per second and latency in seconds
func CreateChannel(eng Engine, bndwdth, latency float64) *Channel {
	ch := new(Channel)
	ch.eng = eng
	ch.bndwdth = bndwdth
	ch.latency = latency
	ch.lastArrival = 0.0
	return ch
}

// SetDelayModel selects a distribution for extra per-packet delay with the given mean.
// Recognized models are "none", "constant" and "exponential" (with the usual abbreviations)
func (ch *Channel) SetDelayModel(model string, mean float64, rngstrm *rngstream.RngStream) error {
	switch model {
	case "", "none":
		ch.sampleDelay = nil
		ch.delayParams = nil
		return nil

	case "constant", "const":
		ch.sampleDelay = sampleConst

	case "exponential", "exp", "expon":
		if rngstrm == nil {
			return fmt.Errorf("delay model %s requires a random number stream", model)
		}
		ch.sampleDelay = sampleExpRV

	default:
		return fmt.Errorf("unrecognized delay model %s", model)
	}
	if !(mean > 0.0) {
		return fmt.Errorf("delay model %s requires a positive mean, got %g", model, mean)
	}
	ch.delayParams = []float64{mean}
	ch.rngstrm = rngstrm
	return nil
}

// setTrace directs the channel to record each transmission with the trace manager
func (ch *Channel) setTrace(tm *TraceManager, trialID int) {
	ch.traceMgr = tm
	ch.trialID = trialID
}

// SerializationTime is the time needed to push a packet of sizeBytes onto the link
func (ch *Channel) SerializationTime(sizeBytes uint32) float64 {
	return float64(sizeBytes) * 8.0 / ch.bndwdth
}

// Transmitted returns the number of packets handed to the channel
func (ch *Channel) Transmitted() uint64 {
	return ch.transmitted
}

// Transmit computes when the packet reaches the far end of the link and schedules
// a PacketArrival event carrying it at that time
func (ch *Channel) Transmit(pckt *Packet, atTime float64) error {
	arrival := atTime + ch.latency + ch.SerializationTime(pckt.SizeBytes)

	if ch.sampleDelay != nil {
		var u01 float64
		if ch.rngstrm != nil {
			u01 = ch.rngstrm.RandU01()
		}
		arrival += ch.sampleDelay(u01, ch.delayParams)
	}

	// the link is order-preserving
	arrival = math.Max(roundFloat(arrival, rdigits), ch.lastArrival)

	pckt.ArrivalTime = arrival
	ch.lastArrival = arrival
	ch.transmitted += 1

	if ch.traceMgr.Active() {
		ch.traceMgr.AddPacketTrace(atTime, ch.trialID, pckt, "send")
	}
	return ch.eng.Schedule(arrival, PacketArrival, pckt)
}

var rdigits uint = 15

// round computed simulation time to avoid non-sensical comparisons
// induced by rounding error
func roundFloat(val float64, precision uint) float64 {
	ratio := math.Pow(10, float64(precision))
	return math.Round(val*ratio) / ratio
}

// expRV returns a sample of a exponentially distributed random number
func expRV(u01, rate float64) float64 {
	return -math.Log(1.0-u01) / rate
}

// sampleExpRV samples an exponentially distributed delay whose mean is params[0]
func sampleExpRV(u01 float64, params []float64) float64 {
	return expRV(u01, 1.0/params[0])
}

// sampleConst returns the constant delay params[0]
func sampleConst(u01 float64, params []float64) float64 {
	return params[0]
}
