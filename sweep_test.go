package linksweep

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSweepTrialsRowMajor(t *testing.T) {
	sp := SweepParameters{PacketSizes: []uint32{128, 256}, Bandwidths: []float64{1e6, 2e6},
		PacketCount: 10, SimDurationSec: 5}
	trials := sp.Trials()
	require.Len(t, trials, 4)

	expected := []struct {
		size    uint32
		bndwdth float64
	}{{128, 1e6}, {128, 2e6}, {256, 1e6}, {256, 2e6}}
	for idx, exp := range expected {
		assert.Equal(t, exp.size, trials[idx].PacketSizeBytes)
		assert.Equal(t, exp.bndwdth, trials[idx].BandwidthBps)
		assert.Equal(t, uint64(10), trials[idx].PacketCount)
		assert.Equal(t, uint32(5), trials[idx].SimDurationSec)
	}
}

func TestSweepRun(t *testing.T) {
	sp := SweepParameters{PacketSizes: []uint32{128, 256, 512}, Bandwidths: []float64{0.8e6, 1e6},
		PacketCount: 1000, SimDurationSec: 10}
	runner := CreateExperimentRunner(DefaultRunnerCfg(), nil, nil, nil)

	results, err := CreateExperimentSweep(runner, 1, nil).Run(context.Background(), sp)
	require.NoError(t, err)
	require.Len(t, results, len(sp.PacketSizes)*len(sp.Bandwidths))

	idx := 0
	for _, size := range sp.PacketSizes {
		for _, bndwdth := range sp.Bandwidths {
			assert.Equal(t, size, results[idx].PacketSizeBytes)
			assert.Equal(t, bndwdth, results[idx].BandwidthBps)
			assert.Equal(t, uint32(10), results[idx].PacketsSent)
			assert.Equal(t, float64(size), results[idx].ThroughputBps)
			idx += 1
		}
	}
}

func TestSweepParallelMatchesSequential(t *testing.T) {
	sp := SweepParameters{PacketSizes: []uint32{128, 256, 512, 1024, 1280}, Bandwidths: []float64{0.8e6, 1e6},
		PacketCount: 1000, SimDurationSec: 30}
	runner := CreateExperimentRunner(DefaultRunnerCfg(), nil, nil, nil)

	sequential, err := CreateExperimentSweep(runner, 1, nil).Run(context.Background(), sp)
	require.NoError(t, err)
	parallel, err := CreateExperimentSweep(runner, 4, nil).Run(context.Background(), sp)
	require.NoError(t, err)

	assert.Equal(t, sequential, parallel)
}

func TestSweepStochasticParallel(t *testing.T) {
	cfg := DefaultRunnerCfg()
	cfg.DelayModel = "exp"
	cfg.DelayMean = 0.01
	runner := CreateExperimentRunner(cfg, nil, nil, nil)
	sp := SweepParameters{PacketSizes: []uint32{128, 1280}, Bandwidths: []float64{0.8e6, 1e6},
		PacketCount: 1000, SimDurationSec: 20}

	results, err := CreateExperimentSweep(runner, 3, nil).Run(context.Background(), sp)
	require.NoError(t, err)
	require.Len(t, results, 4)
	for _, tr := range results {
		assert.Equal(t, uint32(20), tr.PacketsSent)
		assert.Equal(t, uint32(0), tr.PacketsLost)
	}
}

func TestSweepAbortsOnInvalidTrial(t *testing.T) {
	sp := SweepParameters{PacketSizes: []uint32{128, 256}, Bandwidths: []float64{1e6, 0.0},
		PacketCount: 10, SimDurationSec: 5}
	runner := CreateExperimentRunner(DefaultRunnerCfg(), nil, nil, nil)

	for _, workers := range []int{1, 3} {
		results, err := CreateExperimentSweep(runner, workers, nil).Run(context.Background(), sp)
		assert.Nil(t, results)

		var ipe *InvalidParameterError
		require.True(t, errors.As(err, &ipe), "expected InvalidParameterError, got %v", err)
		assert.Equal(t, "bandwidth", ipe.Param)
	}
}

func TestSweepEmptyGrid(t *testing.T) {
	runner := CreateExperimentRunner(DefaultRunnerCfg(), nil, nil, nil)
	results, err := CreateExperimentSweep(runner, 2, nil).Run(context.Background(), SweepParameters{})
	require.NoError(t, err)
	assert.Empty(t, results)
}

func TestSweepTracesEveryTrial(t *testing.T) {
	tm := CreateTraceManager("sweep-trace", true)
	runner := CreateExperimentRunner(DefaultRunnerCfg(), nil, tm, nil)
	sp := SweepParameters{PacketSizes: []uint32{128, 256}, Bandwidths: []float64{1e6},
		PacketCount: 2, SimDurationSec: 5}

	_, err := CreateExperimentSweep(runner, 2, nil).Run(context.Background(), sp)
	require.NoError(t, err)

	require.Len(t, tm.Trials, 2)
	assert.Equal(t, uint32(128), tm.Trials[0].PacketSize)
	assert.Equal(t, uint32(256), tm.Trials[1].PacketSize)
	assert.Len(t, tm.TrialTraces(0), 4)
	assert.Len(t, tm.TrialTraces(1), 4)
}
