package linksweep

import (
	"context"
	"errors"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTrialReferenceScenario(t *testing.T) {
	er := CreateExperimentRunner(DefaultRunnerCfg(), nil, nil, nil)
	params := TrialParameters{PacketSizeBytes: 1024, BandwidthBps: 1e6, PacketCount: 1000, SimDurationSec: 30}

	result, err := er.RunTrial(context.Background(), params)
	require.NoError(t, err)

	assert.Equal(t, uint32(1024), result.PacketSizeBytes)
	assert.Equal(t, 1e6, result.BandwidthBps)
	assert.Equal(t, uint32(30), result.PacketsSent)
	assert.Equal(t, uint32(0), result.PacketsLost)
	assert.Equal(t, 1.0, result.ThroughputPps)
	assert.Equal(t, 1024.0, result.ThroughputBps)
	assert.Equal(t, 0.0, result.JitterSec)
	assert.Equal(t, 0.0, result.CPUUtilization)
}

func TestTrialInvalidParameters(t *testing.T) {
	er := CreateExperimentRunner(DefaultRunnerCfg(), nil, nil, nil)

	cases := []struct {
		name   string
		params TrialParameters
		param  string
	}{
		{"zero bandwidth", TrialParameters{PacketSizeBytes: 1024, BandwidthBps: 0, PacketCount: 10, SimDurationSec: 30}, "bandwidth"},
		{"negative bandwidth", TrialParameters{PacketSizeBytes: 1024, BandwidthBps: -1e6, PacketCount: 10, SimDurationSec: 30}, "bandwidth"},
		{"zero packet size", TrialParameters{PacketSizeBytes: 0, BandwidthBps: 1e6, PacketCount: 10, SimDurationSec: 30}, "packetsize"},
		{"zero duration", TrialParameters{PacketSizeBytes: 1024, BandwidthBps: 1e6, PacketCount: 10, SimDurationSec: 0}, "duration"},
		{"negative interval", TrialParameters{PacketSizeBytes: 1024, BandwidthBps: 1e6, PacketCount: 10, SimDurationSec: 30, IntervalSec: -1}, "interval"},
		{"window beyond counters", TrialParameters{PacketSizeBytes: 64, BandwidthBps: 1e6, PacketCount: math.MaxUint64,
			SimDurationSec: 10, IntervalSec: 1e-9}, "interval"},
		{"count beyond counters", TrialParameters{PacketSizeBytes: 64, BandwidthBps: 1e6, PacketCount: math.MaxUint32 + 10,
			SimDurationSec: math.MaxUint32, IntervalSec: 0.5}, "packetcount"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			es := CreateEventScheduler()
			_, err := er.RunTrialOn(context.Background(), es, tc.params)

			var ipe *InvalidParameterError
			require.True(t, errors.As(err, &ipe), "expected InvalidParameterError, got %v", err)
			assert.Equal(t, tc.param, ipe.Param)

			// rejected before anything was scheduled
			assert.Equal(t, 0.0, es.Now())
			assert.Equal(t, 0, es.Pending())
			assert.Equal(t, uint64(0), es.Dispatched())
		})
	}
}

func TestTrialPacketsSent(t *testing.T) {
	er := CreateExperimentRunner(DefaultRunnerCfg(), nil, nil, nil)

	cases := []struct {
		count    uint64
		duration uint32
		interval float64
	}{
		{5, 30, 1.0},
		{1000, 30, 1.0},
		{1000, 10, 0.5},
		{1000, 10, 3.0},
		{1, 1, 1.0},
		{0, 10, 1.0},
		{math.MaxUint64, 5, 1.0},
	}
	for _, tc := range cases {
		params := TrialParameters{PacketSizeBytes: 256, BandwidthBps: 0.8e6, PacketCount: tc.count,
			SimDurationSec: tc.duration, IntervalSec: tc.interval}
		result, err := er.RunTrial(context.Background(), params)
		require.NoError(t, err)

		window := uint64(math.Ceil(float64(tc.duration) / tc.interval))
		assert.Equal(t, uint32(min(tc.count, window)), result.PacketsSent, "params %+v", params)
		assert.Equal(t, uint32(0), result.PacketsLost)
		assert.LessOrEqual(t, result.PacketsLost, result.PacketsSent)
		assert.Equal(t, float64(params.PacketSizeBytes)*result.ThroughputPps, result.ThroughputBps)
	}
}

func TestTrialSlowLinkStillLossless(t *testing.T) {
	// 1280 bytes at 8 kbps serializes for longer than the interval
	// but every packet still lands before the stop margin runs out
	er := CreateExperimentRunner(DefaultRunnerCfg(), nil, nil, nil)
	params := TrialParameters{PacketSizeBytes: 1280, BandwidthBps: 8e3, PacketCount: 1000, SimDurationSec: 30}
	result, err := er.RunTrial(context.Background(), params)
	require.NoError(t, err)
	assert.Equal(t, uint32(30), result.PacketsSent)
	assert.Equal(t, uint32(0), result.PacketsLost)
}

func TestTrialCPUEstimate(t *testing.T) {
	er := CreateExperimentRunner(DefaultRunnerCfg(), FixedTelemetry{TotalRAM: 1000, Procs: 4}, nil, nil)
	params := TrialParameters{PacketSizeBytes: 128, BandwidthBps: 1e6, PacketCount: 1000, SimDurationSec: 30}

	result, err := er.RunTrial(context.Background(), params)
	require.NoError(t, err)

	// the trial ends at 30+2 seconds
	total := 32.0 * 2.0 * 30.0
	idle := (total - 1000.0) / 4.0
	assert.InDelta(t, (total-idle)/total*100.0, result.CPUUtilization, 1e-9)
}

type brokenTelemetry struct{}

func (brokenTelemetry) Sample() (HostStats, error) {
	return HostStats{}, errors.New("permission denied")
}

func TestTrialTelemetryFailure(t *testing.T) {
	er := CreateExperimentRunner(DefaultRunnerCfg(), brokenTelemetry{}, nil, nil)
	params := TrialParameters{PacketSizeBytes: 128, BandwidthBps: 1e6, PacketCount: 10, SimDurationSec: 5}
	_, err := er.RunTrial(context.Background(), params)
	assert.Error(t, err)
}

func TestTrialStochasticDelay(t *testing.T) {
	cfg := DefaultRunnerCfg()
	cfg.DelayModel = "exp"
	cfg.DelayMean = 0.05
	er := CreateExperimentRunner(cfg, nil, nil, nil)
	params := TrialParameters{PacketSizeBytes: 512, BandwidthBps: 1e6, PacketCount: 1000, SimDurationSec: 30}

	result, err := er.RunTrial(context.Background(), params)
	require.NoError(t, err)
	assert.Equal(t, uint32(30), result.PacketsSent)
	assert.Equal(t, uint32(0), result.PacketsLost)
	assert.Greater(t, result.JitterSec, 0.0)
}

func TestTrialTrace(t *testing.T) {
	tm := CreateTraceManager("trace-test", true)
	er := CreateExperimentRunner(DefaultRunnerCfg(), nil, tm, nil)
	params := TrialParameters{PacketSizeBytes: 1024, BandwidthBps: 1e6, PacketCount: 3, SimDurationSec: 30}

	_, err := er.RunTrial(context.Background(), params)
	require.NoError(t, err)

	traces := tm.TrialTraces(0)
	require.Len(t, traces, 6)
	sends, arrives := 0, 0
	for _, ptr := range traces {
		switch ptr.Op {
		case "send":
			sends += 1
		case "arrive":
			arrives += 1
		}
	}
	assert.Equal(t, 3, sends)
	assert.Equal(t, 3, arrives)
	assert.Equal(t, uint32(1024), tm.Trials[0].PacketSize)
}

func TestTrialCancelled(t *testing.T) {
	er := CreateExperimentRunner(DefaultRunnerCfg(), nil, nil, nil)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	params := TrialParameters{PacketSizeBytes: 1024, BandwidthBps: 1e6, PacketCount: 1000, SimDurationSec: 30}
	_, err := er.RunTrial(ctx, params)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestTrialZeroLatencyStartAndMargin(t *testing.T) {
	cfg := RunnerCfg{Latency: 0.0, SrtTime: 0.0, StopMargin: 0.0, DelayModel: "none", Engine: HeapEngine}
	er := CreateExperimentRunner(cfg, nil, nil, nil)
	es := CreateEventScheduler()
	params := TrialParameters{PacketSizeBytes: 1024, BandwidthBps: 1e6, PacketCount: 1000, SimDurationSec: 30}

	result, err := er.RunTrialOn(context.Background(), es, params)
	require.NoError(t, err)
	assert.Equal(t, uint32(30), result.PacketsSent)
	assert.Equal(t, uint32(0), result.PacketsLost)
	assert.Equal(t, 0.0, result.JitterSec)
	assert.Equal(t, 30.0, es.Now())
}
