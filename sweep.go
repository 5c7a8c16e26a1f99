package linksweep

// sweep.go holds the ExperimentSweep, which runs the trial of every
// (packet size, bandwidth) pair in a grid.  Results come back in row-major
// order, packet sizes on the outer loop and bandwidths on the inner, whether
// the trials run one after another or on several workers.

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/iti/rngstream"
	"golang.org/x/sync/errgroup"
)

// SweepParameters describe the grid of trials and the settings they share
type SweepParameters struct {
	PacketSizes    []uint32
	Bandwidths     []float64
	PacketCount    uint64
	SimDurationSec uint32
	IntervalSec    float64
}

// Trials expands the grid into per-trial parameters, in row-major order
func (sp SweepParameters) Trials() []TrialParameters {
	trials := make([]TrialParameters, 0, len(sp.PacketSizes)*len(sp.Bandwidths))
	for _, size := range sp.PacketSizes {
		for _, bndwdth := range sp.Bandwidths {
			trials = append(trials, TrialParameters{PacketSizeBytes: size, BandwidthBps: bndwdth,
				PacketCount: sp.PacketCount, SimDurationSec: sp.SimDurationSec, IntervalSec: sp.IntervalSec})
		}
	}
	return trials
}

// ExperimentSweep runs the trials of a grid through one ExperimentRunner
type ExperimentSweep struct {
	runner  *ExperimentRunner
	workers int
	logger  *slog.Logger
}

// CreateExperimentSweep is a constructor.  workers below 2 runs trials sequentially
func CreateExperimentSweep(runner *ExperimentRunner, workers int, logger *slog.Logger) *ExperimentSweep {
	sweep := new(ExperimentSweep)
	sweep.runner = runner
	sweep.workers = max(workers, 1)
	if logger == nil {
		logger = slog.Default()
	}
	sweep.logger = logger
	return sweep
}

// Run executes every trial of the grid and returns their results in row-major order.
// The first trial to fail aborts the sweep and no results are returned
func (sweep *ExperimentSweep) Run(ctx context.Context, sp SweepParameters) ([]TrialResult, error) {
	trials := sp.Trials()
	results := make([]TrialResult, len(trials))

	// streams are drawn in trial order before any trial starts, so that a trial's
	// stream does not depend on which worker picks it up
	rngstrms := make([]*rngstream.RngStream, len(trials))
	if sweep.runner.needsRng() {
		for idx := range trials {
			rngstrms[idx] = rngstream.New(fmt.Sprintf("trial-%d", idx))
		}
	}

	sweep.logger.Info("sweep starting", "trials", len(trials), "workers", sweep.workers,
		"engine", sweep.runner.cfg.Engine)

	grp, gctx := errgroup.WithContext(ctx)
	grp.SetLimit(sweep.workers)
	for idx, params := range trials {
		grp.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			result, err := sweep.runner.runTrial(gctx, sweep.runner.newEngine(), idx, params, rngstrms[idx])
			if err != nil {
				return fmt.Errorf("trial %d (packet size %d, bandwidth %g): %w",
					idx, params.PacketSizeBytes, params.BandwidthBps, err)
			}
			results[idx] = result
			return nil
		})
	}
	if err := grp.Wait(); err != nil {
		sweep.logger.Error("sweep aborted", "err", err)
		return nil, err
	}

	sweep.logger.Info("sweep finished", "trials", len(results))
	return results, nil
}
