package linksweep

// trial.go holds the ExperimentRunner, which runs one (packet size, bandwidth)
// trial: it wires a traffic source through a channel to a sink on a fresh
// engine, runs the engine to the stop time, and derives the trial's metrics.

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"

	"github.com/iti/rngstream"
)

// TrialParameters fix one trial.  They are not modified once the trial begins
type TrialParameters struct {
	PacketSizeBytes uint32  `json:"packetsize" yaml:"packetsize"`
	BandwidthBps    float64 `json:"bandwidth" yaml:"bandwidth"`
	PacketCount     uint64  `json:"packetcount" yaml:"packetcount"`
	SimDurationSec  uint32  `json:"duration" yaml:"duration"`
	IntervalSec     float64 `json:"interval" yaml:"interval"` // 0 selects the default of 1.0
}

// TrialResult holds the metrics of one completed trial
type TrialResult struct {
	PacketSizeBytes uint32  `json:"packetsize" yaml:"packetsize"`
	BandwidthBps    float64 `json:"bandwidth" yaml:"bandwidth"`
	ThroughputPps   float64 `json:"throughputpps" yaml:"throughputpps"`
	ThroughputBps   float64 `json:"throughputbps" yaml:"throughputbps"`
	CPUUtilization  float64 `json:"cpu" yaml:"cpu"`
	JitterSec       float64 `json:"jitter" yaml:"jitter"`
	PacketsLost     uint32  `json:"lost" yaml:"lost"`
	PacketsSent     uint32  `json:"sent" yaml:"sent"`
}

const (
	defaultInterval   = 1.0
	defaultLatency    = 2e-3
	defaultSrtTime    = 1.0
	defaultStopMargin = 2.0
)

// EngineKind selects the event engine a trial runs on
type EngineKind string

const (
	HeapEngine     EngineKind = "heap"
	EvtmEngineKind EngineKind = "evtm"
)

// RunnerCfg holds the settings shared by every trial a runner executes
type RunnerCfg struct {
	Latency    float64    // propagation delay of the link, seconds
	SrtTime    float64    // time of the source's first packet
	StopMargin float64    // time past the duration allowed for packets in flight
	DelayModel string     // extra per-packet delay: "none", "const", "exp"
	DelayMean  float64    // mean of the extra delay, seconds
	Engine     EngineKind // "heap" or "evtm"
}

// DefaultRunnerCfg returns the settings of the reference experiment: 2ms latency,
// first packet at 1.0s, 2.0s of stop margin, deterministic delay
func DefaultRunnerCfg() RunnerCfg {
	return RunnerCfg{Latency: defaultLatency, SrtTime: defaultSrtTime, StopMargin: defaultStopMargin,
		DelayModel: "none", Engine: HeapEngine}
}

// ExperimentRunner executes trials
type ExperimentRunner struct {
	cfg       RunnerCfg
	telemetry HostTelemetry
	traceMgr  *TraceManager
	logger    *slog.Logger
}

// CreateExperimentRunner is a constructor.  A nil telemetry disables the CPU estimate,
// a nil trace manager disables tracing, and a nil logger selects slog.Default()
func CreateExperimentRunner(cfg RunnerCfg, telemetry HostTelemetry, tm *TraceManager,
	logger *slog.Logger) *ExperimentRunner {
	er := new(ExperimentRunner)
	er.cfg = cfg
	if telemetry == nil {
		telemetry = NoTelemetry{}
	}
	er.telemetry = telemetry
	er.traceMgr = tm
	if logger == nil {
		logger = slog.Default()
	}
	er.logger = logger
	return er
}

// newEngine creates the engine selected by the runner's configuration
func (er *ExperimentRunner) newEngine() Engine {
	if er.cfg.Engine == EvtmEngineKind {
		return CreateEvtmEngine()
	}
	return CreateEventScheduler()
}

// ValidateTrial checks that the parameters describe a trial that can be simulated
func ValidateTrial(params TrialParameters) error {
	if !(params.BandwidthBps > 0.0) {
		return &InvalidParameterError{Param: "bandwidth", Value: params.BandwidthBps, Reason: "must be positive"}
	}
	if params.PacketSizeBytes == 0 {
		return &InvalidParameterError{Param: "packetsize", Value: params.PacketSizeBytes, Reason: "must be positive"}
	}
	if params.SimDurationSec == 0 {
		return &InvalidParameterError{Param: "duration", Value: params.SimDurationSec, Reason: "must be positive"}
	}
	if params.IntervalSec < 0.0 {
		return &InvalidParameterError{Param: "interval", Value: params.IntervalSec, Reason: "must be positive"}
	}

	// the packets a trial can send are bounded by the count and by the window,
	// and must fit the uint32 counters of TrialResult
	interval := params.IntervalSec
	if interval == 0.0 {
		interval = defaultInterval
	}
	window := math.Ceil(float64(params.SimDurationSec) / interval)
	if float64(params.PacketCount) > math.MaxUint32 && window > math.MaxUint32 {
		if float64(params.PacketCount) < window {
			return &InvalidParameterError{Param: "packetcount", Value: params.PacketCount,
				Reason: fmt.Sprintf("trial would send more than %d packets", uint32(math.MaxUint32))}
		}
		return &InvalidParameterError{Param: "interval", Value: params.IntervalSec,
			Reason: fmt.Sprintf("window holds more than %d packets", uint32(math.MaxUint32))}
	}
	return nil
}

// RunTrial runs one trial on a fresh engine
func (er *ExperimentRunner) RunTrial(ctx context.Context, params TrialParameters) (TrialResult, error) {
	return er.RunTrialOn(ctx, er.newEngine(), params)
}

// RunTrialOn runs one trial on the engine supplied by the caller, which must not
// have been run before
func (er *ExperimentRunner) RunTrialOn(ctx context.Context, eng Engine, params TrialParameters) (TrialResult, error) {
	var rngstrm *rngstream.RngStream
	if er.needsRng() {
		rngstrm = rngstream.New("trial")
	}
	return er.runTrial(ctx, eng, 0, params, rngstrm)
}

// needsRng reports whether the configured delay model draws random numbers
func (er *ExperimentRunner) needsRng() bool {
	switch er.cfg.DelayModel {
	case "", "none", "const", "constant":
		return false
	}
	return true
}

func (er *ExperimentRunner) runTrial(ctx context.Context, eng Engine, trialID int,
	params TrialParameters, rngstrm *rngstream.RngStream) (TrialResult, error) {

	// reject before anything touches the engine
	if err := ValidateTrial(params); err != nil {
		return TrialResult{}, err
	}
	interval := params.IntervalSec
	if interval == 0.0 {
		interval = defaultInterval
	}

	logger := er.logger.With("trial", trialID, "packetsize", params.PacketSizeBytes,
		"bandwidth", params.BandwidthBps)
	logger.Debug("trial starting", "packets", params.PacketCount, "duration", params.SimDurationSec)

	duration := float64(params.SimDurationSec)
	srcStop := er.cfg.SrtTime + duration
	simStop := duration + er.cfg.StopMargin

	channel := CreateChannel(eng, params.BandwidthBps, er.cfg.Latency)
	if err := channel.SetDelayModel(er.cfg.DelayModel, er.cfg.DelayMean, rngstrm); err != nil {
		return TrialResult{}, err
	}
	sink := CreateSink(interval)
	source := CreateTrafficSource(channel, params.PacketSizeBytes, params.PacketCount,
		interval, er.cfg.SrtTime, srcStop)

	if er.traceMgr.Active() {
		er.traceMgr.AddTrial(trialID, params)
		channel.setTrace(er.traceMgr, trialID)
		sink.setTrace(er.traceMgr, trialID)
	}

	eng.Register(SourceTick, sourceTick)
	eng.Register(PacketArrival, sink.handleArrival)

	if err := source.Start(eng); err != nil {
		return TrialResult{}, err
	}
	if err := eng.Schedule(simStop, StopSimulation, nil); err != nil {
		return TrialResult{}, err
	}
	if err := eng.RunUntil(ctx, simStop); err != nil {
		return TrialResult{}, err
	}

	sent := source.Sent()
	result := TrialResult{
		PacketSizeBytes: params.PacketSizeBytes,
		BandwidthBps:    params.BandwidthBps,
		ThroughputPps:   float64(sent) / duration,
		JitterSec:       sink.Jitter(),
		PacketsLost:     uint32(sink.Lost()),
		PacketsSent:     uint32(sent),
	}
	result.ThroughputBps = float64(params.PacketSizeBytes) * result.ThroughputPps

	hs, err := er.telemetry.Sample()
	if err != nil {
		if !errors.Is(err, ErrHostTelemetryUnavailable) {
			return TrialResult{}, err
		}
		logger.Warn("cpu utilization not estimated", "err", err)
	} else {
		result.CPUUtilization = cpuEstimate(eng.Now(), params.SimDurationSec, hs)
	}

	logger.Debug("trial finished", "sent", result.PacketsSent, "lost", result.PacketsLost,
		"received", sink.Received(), "jitter", result.JitterSec, "now", eng.Now())
	return result, nil
}
