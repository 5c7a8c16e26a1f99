package linksweep

import (
	"encoding/json"
	"fmt"
	"os"
	"path"
	"sync"

	"github.com/iti/evt/vrtime"
	"golang.org/x/exp/slices"
	"gopkg.in/yaml.v3"
)

// PacketTrace saves information about the passage of a packet through one end
// of the link, saved for post-run analysis
type PacketTrace struct {
	Time     float64 `json:"time" yaml:"time"`         // time in float64
	Ticks    int64   `json:"ticks" yaml:"ticks"`       // ticks variable of time
	Priority int64   `json:"priority" yaml:"priority"` // priority field of time-stamp
	TrialID  int     `json:"trialid" yaml:"trialid"`   // index of the trial in its sweep
	SeqNum   uint64  `json:"seqnum" yaml:"seqnum"`
	Size     uint32  `json:"size" yaml:"size"`
	Op       string  `json:"op" yaml:"op"` // "send", "arrive"
}

// TrialDesc names the parameters of a traced trial
type TrialDesc struct {
	PacketSize  uint32  `json:"packetsize" yaml:"packetsize"`
	Bandwidth   float64 `json:"bandwidth" yaml:"bandwidth"`
	PacketCount uint64  `json:"packetcount" yaml:"packetcount"`
	Duration    uint32  `json:"duration" yaml:"duration"`
}

// TraceManager gathers packet traces from the channel and sink of every trial
// in a sweep.  By testing the InUse flag we can inhibit the activity of gathering
// a trace when we don't want it, while embedding calls to its methods everywhere
// we need them when it is.  Trials running concurrently share one TraceManager
type TraceManager struct {
	// experiment uses trace
	InUse bool `json:"inuse" yaml:"inuse"`

	// name of experiment
	ExpName string `json:"expname" yaml:"expname"`

	// parameters of each traced trial
	Trials map[int]TrialDesc `json:"trials" yaml:"trials"`

	// all trace records for this experiment, by trial
	Traces map[int][]PacketTrace `json:"traces" yaml:"traces"`

	mu sync.Mutex
}

// CreateTraceManager is a constructor.  It saves the name of the experiment
// and a flag indicating whether the trace manager is active
func CreateTraceManager(expName string, active bool) *TraceManager {
	tm := new(TraceManager)
	tm.InUse = active
	tm.ExpName = expName
	tm.Trials = make(map[int]TrialDesc)
	tm.Traces = make(map[int][]PacketTrace)
	return tm
}

// Active tells the caller whether the Trace Manager is actively being used.
// A nil TraceManager is inactive
func (tm *TraceManager) Active() bool {
	return tm != nil && tm.InUse
}

// AddTrial records the parameters of a trial under its index
func (tm *TraceManager) AddTrial(trialID int, params TrialParameters) {
	if !tm.Active() {
		return
	}
	tm.mu.Lock()
	defer tm.mu.Unlock()
	tm.Trials[trialID] = TrialDesc{PacketSize: params.PacketSizeBytes, Bandwidth: params.BandwidthBps,
		PacketCount: params.PacketCount, Duration: params.SimDurationSec}
}

// AddPacketTrace creates a record of a packet event at virtual time t and stores it
func (tm *TraceManager) AddPacketTrace(t float64, trialID int, pckt *Packet, op string) {
	if !tm.Active() {
		return
	}
	vrt := vrtime.SecondsToTime(t)
	ptr := PacketTrace{Time: vrt.Seconds(), Ticks: vrt.Ticks(), Priority: vrt.Pri(),
		TrialID: trialID, SeqNum: pckt.SeqNum, Size: pckt.SizeBytes, Op: op}

	tm.mu.Lock()
	defer tm.mu.Unlock()
	tm.Traces[trialID] = append(tm.Traces[trialID], ptr)
}

// TrialTraces returns a copy of the records gathered for one trial
func (tm *TraceManager) TrialTraces(trialID int) []PacketTrace {
	if tm == nil {
		return nil
	}
	tm.mu.Lock()
	defer tm.mu.Unlock()
	return slices.Clone(tm.Traces[trialID])
}

// WriteToFile stores the TraceManager struct to the file whose name is given.
// Serialization to json or to yaml is selected based on the extension of this name.
// Nothing is written when the manager is inactive
func (tm *TraceManager) WriteToFile(filename string) (bool, error) {
	if !tm.Active() {
		return false, nil
	}
	tm.mu.Lock()
	defer tm.mu.Unlock()

	pathExt := path.Ext(filename)
	var bytes []byte
	var merr error

	if slices.Contains(yamlExts, pathExt) {
		bytes, merr = yaml.Marshal(tm)
	} else if slices.Contains(jsonExts, pathExt) {
		bytes, merr = json.MarshalIndent(tm, "", "\t")
	} else {
		return false, fmt.Errorf("trace file %s has unrecognized extension", filename)
	}
	if merr != nil {
		return false, merr
	}

	if werr := os.WriteFile(filename, bytes, 0644); werr != nil {
		return false, werr
	}
	return true, nil
}
