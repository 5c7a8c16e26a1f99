package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"

	"github.com/iti/linksweep"
	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "linksweep",
	Short: "Sweeps packet size and bandwidth over a simulated point-to-point link",
	Long: `Runs one discrete-event simulation per (packet size, bandwidth) pair of the
experiment grid and writes the throughput, loss, jitter, and CPU estimate of
each trial.

The grid comes from a yaml or json experiment file given with --config, or
from the reference experiment when none is given.  Flags override the file.
Results are written in the format selected by the extension of --out
(.csv, .yaml, or .json).`,
	Args:         cobra.NoArgs,
	SilenceUsage: true,
	RunE:         runSweep,
}

func init() {
	rootCmd.Flags().StringP("config", "c", "", "Experiment description (.yaml or .json)")
	rootCmd.Flags().StringP("out", "o", "results.csv", "Results file (.csv, .yaml, or .json)")
	rootCmd.Flags().String("trace", "", "Write per-packet traces to this file (.yaml or .json)")
	rootCmd.Flags().Int("workers", 0, "Trials run concurrently (overrides the experiment file)")
	rootCmd.Flags().String("engine", "", "Event engine: heap or evtm (overrides the experiment file)")
	rootCmd.Flags().String("log-level", "info", "Log level: debug, info, warn, error")
	rootCmd.Flags().UintSlice("sizes", nil, "Packet sizes in bytes")
	rootCmd.Flags().Float64Slice("bandwidths", nil, "Bandwidths in bits per second")
	rootCmd.Flags().Uint64("packets", 0, "Packets per trial")
	rootCmd.Flags().Uint32("duration", 0, "Simulated seconds per trial")
	rootCmd.Flags().Bool("no-telemetry", false, "Report the CPU estimate as 0 rather than reading host statistics")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func parseLevel(level string) (slog.Level, error) {
	var lvl slog.Level
	err := lvl.UnmarshalText([]byte(strings.ToUpper(level)))
	return lvl, err
}

// loadCfg reads the experiment file, if any, and applies the flag overrides
func loadCfg(cmd *cobra.Command) (*linksweep.SweepCfg, error) {
	cfgFile, _ := cmd.Flags().GetString("config")

	sc := linksweep.DefaultSweepCfg()
	if len(cfgFile) > 0 {
		var err error
		sc, err = linksweep.ReadSweepCfg(cfgFile, linksweep.UseYAML(cfgFile), []byte{})
		if err != nil {
			return nil, fmt.Errorf("reading %s: %w", cfgFile, err)
		}
	}

	flags := cmd.Flags()
	if flags.Changed("sizes") {
		sizes, _ := flags.GetUintSlice("sizes")
		sc.PacketSizes = make([]uint32, len(sizes))
		for idx, size := range sizes {
			sc.PacketSizes[idx] = uint32(size)
		}
	}
	if flags.Changed("bandwidths") {
		sc.Bandwidths, _ = flags.GetFloat64Slice("bandwidths")
	}
	if flags.Changed("packets") {
		sc.PacketCount, _ = flags.GetUint64("packets")
	}
	if flags.Changed("duration") {
		sc.Duration, _ = flags.GetUint32("duration")
	}
	if flags.Changed("workers") {
		sc.Workers, _ = flags.GetInt("workers")
	}
	if flags.Changed("engine") {
		sc.Engine, _ = flags.GetString("engine")
	}

	if err := sc.Validate(); err != nil {
		return nil, err
	}
	return sc, nil
}

func runSweep(cmd *cobra.Command, args []string) error {
	levelStr, _ := cmd.Flags().GetString("log-level")
	level, err := parseLevel(levelStr)
	if err != nil {
		return err
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(logger)

	sc, err := loadCfg(cmd)
	if err != nil {
		return err
	}

	outFile, _ := cmd.Flags().GetString("out")
	traceFile, _ := cmd.Flags().GetString("trace")
	if _, err := linksweep.CheckOutputFiles([]string{outFile, traceFile}); err != nil {
		return err
	}

	var telemetry linksweep.HostTelemetry = linksweep.SysinfoTelemetry{}
	if noTelemetry, _ := cmd.Flags().GetBool("no-telemetry"); noTelemetry {
		telemetry = linksweep.NoTelemetry{}
	}
	traceMgr := linksweep.CreateTraceManager(sc.Name, len(traceFile) > 0)

	runner := linksweep.CreateExperimentRunner(sc.RunnerCfg(), telemetry, traceMgr, logger)
	sweep := linksweep.CreateExperimentSweep(runner, sc.Workers, logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	results, err := sweep.Run(ctx, sc.SweepParameters())
	if err != nil {
		return err
	}

	sr := linksweep.CreateSweepResults(sc.Name, results)
	if err := sr.WriteToFile(outFile); err != nil {
		return fmt.Errorf("writing results: %w", err)
	}
	logger.Info("results written", "file", outFile, "trials", len(results))

	if written, err := traceMgr.WriteToFile(traceFile); err != nil {
		return fmt.Errorf("writing trace: %w", err)
	} else if written {
		logger.Info("trace written", "file", traceFile)
	}

	sum := sr.Summary
	fmt.Printf("%d trials: mean throughput %.3f pps (%.1f Bps), max jitter %g s, lost %d of %d sent\n",
		sum.Trials, sum.MeanPps, sum.MeanBps, sum.MaxJitter, sum.TotalLost, sum.TotalSent)
	return nil
}
