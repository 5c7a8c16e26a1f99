package linksweep

// results.go holds the export of sweep results and their summary statistics.
// The CSV layout, header text and column order, is what downstream tools parse.

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path"
	"strconv"

	"golang.org/x/exp/slices"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"
	"gopkg.in/yaml.v3"
)

// ResultsHeader is the header row of the CSV export
var ResultsHeader []string = []string{"Packet Size", "Throughput (pps)", "Throughput (Bps)",
	"CPU Utilization (%)", "Jitter", "Packets Lost", "Packets Sent"}

var csvExts []string = []string{".csv", ".CSV"}

// csvRecord formats one result in the column order of ResultsHeader
func (tr *TrialResult) csvRecord() []string {
	return []string{
		strconv.FormatUint(uint64(tr.PacketSizeBytes), 10),
		strconv.FormatFloat(tr.ThroughputPps, 'g', -1, 64),
		strconv.FormatFloat(tr.ThroughputBps, 'g', -1, 64),
		strconv.FormatFloat(tr.CPUUtilization, 'g', -1, 64),
		strconv.FormatFloat(tr.JitterSec, 'g', -1, 64),
		strconv.FormatUint(uint64(tr.PacketsLost), 10),
		strconv.FormatUint(uint64(tr.PacketsSent), 10),
	}
}

// WriteResultsCSV writes the header row followed by one row per result, in order
func WriteResultsCSV(w io.Writer, results []TrialResult) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(ResultsHeader); err != nil {
		return err
	}
	for idx := range results {
		if err := cw.Write(results[idx].csvRecord()); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

// SweepResults bundles the results of a sweep with the name of its experiment
type SweepResults struct {
	ExpName string        `json:"expname" yaml:"expname"`
	Results []TrialResult `json:"results" yaml:"results"`
	Summary SweepSummary  `json:"summary" yaml:"summary"`
}

// CreateSweepResults is a constructor.  The summary is computed from the results
func CreateSweepResults(expName string, results []TrialResult) *SweepResults {
	return &SweepResults{ExpName: expName, Results: results, Summary: Summarize(results)}
}

// WriteToFile stores the results to the file whose name is given.  A .csv extension
// selects the tabular export, otherwise serialization to json or to yaml is selected
// based on the extension
func (sr *SweepResults) WriteToFile(filename string) error {
	pathExt := path.Ext(filename)

	if slices.Contains(csvExts, pathExt) {
		f, cerr := os.Create(filename)
		if cerr != nil {
			return cerr
		}
		werr := WriteResultsCSV(f, sr.Results)
		if ferr := f.Close(); werr == nil {
			werr = ferr
		}
		return werr
	}

	var bytes []byte
	var merr error
	if slices.Contains(yamlExts, pathExt) {
		bytes, merr = yaml.Marshal(*sr)
	} else if slices.Contains(jsonExts, pathExt) {
		bytes, merr = json.MarshalIndent(*sr, "", "\t")
	} else {
		return fmt.Errorf("results file %s has unrecognized extension", filename)
	}
	if merr != nil {
		return merr
	}
	return os.WriteFile(filename, bytes, 0644)
}

// SweepSummary aggregates the results of a sweep
type SweepSummary struct {
	Trials       int     `json:"trials" yaml:"trials"`
	MeanPps      float64 `json:"meanpps" yaml:"meanpps"`
	StdDevPps    float64 `json:"stddevpps" yaml:"stddevpps"`
	MeanBps      float64 `json:"meanbps" yaml:"meanbps"`
	StdDevBps    float64 `json:"stddevbps" yaml:"stddevbps"`
	MaxBps       float64 `json:"maxbps" yaml:"maxbps"`
	MaxJitter    float64 `json:"maxjitter" yaml:"maxjitter"`
	TotalLost    uint64  `json:"totallost" yaml:"totallost"`
	TotalSent    uint64  `json:"totalsent" yaml:"totalsent"`
	LossFraction float64 `json:"lossfraction" yaml:"lossfraction"`
}

// Summarize computes the summary statistics of a list of results.  Standard
// deviations are zero when there are fewer than two results
func Summarize(results []TrialResult) SweepSummary {
	summary := SweepSummary{Trials: len(results)}
	if len(results) == 0 {
		return summary
	}

	pps := make([]float64, len(results))
	bps := make([]float64, len(results))
	jitter := make([]float64, len(results))
	for idx, tr := range results {
		pps[idx] = tr.ThroughputPps
		bps[idx] = tr.ThroughputBps
		jitter[idx] = tr.JitterSec
		summary.TotalLost += uint64(tr.PacketsLost)
		summary.TotalSent += uint64(tr.PacketsSent)
	}

	if len(results) > 1 {
		summary.MeanPps, summary.StdDevPps = stat.MeanStdDev(pps, nil)
		summary.MeanBps, summary.StdDevBps = stat.MeanStdDev(bps, nil)
	} else {
		summary.MeanPps = pps[0]
		summary.MeanBps = bps[0]
	}
	summary.MaxBps = floats.Max(bps)
	summary.MaxJitter = floats.Max(jitter)
	if summary.TotalSent > 0 {
		summary.LossFraction = float64(summary.TotalLost) / float64(summary.TotalSent)
	}
	return summary
}
