package linksweep

// desc-exp.go holds the serializable description of a sweep experiment and
// the functions that read, write, and check it.

import (
	"encoding/json"
	"fmt"
	"os"
	"path"
	"path/filepath"

	"golang.org/x/exp/slices"
	"gopkg.in/yaml.v3"
)

var yamlExts []string = []string{".yaml", ".YAML", ".yml"}
var jsonExts []string = []string{".json", ".JSON"}

// UseYAML reports whether the file extension selects yaml serialization
func UseYAML(filename string) bool {
	return slices.Contains(yamlExts, path.Ext(filename))
}

var delayModels []string = []string{"none", "const", "constant", "exp", "expon", "exponential"}
var engineKinds []string = []string{string(HeapEngine), string(EvtmEngineKind)}

// A SweepCfg describes a sweep experiment: the grid of packet sizes and
// bandwidths, what every trial shares, and how the link is modeled
type SweepCfg struct {
	// Name is an identifier for the experiment, carried into traces
	Name string `json:"expname" yaml:"expname"`

	// the grid, in the order trials are reported
	PacketSizes []uint32  `json:"packetsizes" yaml:"packetsizes"`
	Bandwidths  []float64 `json:"bandwidths" yaml:"bandwidths"`

	// shared by every trial
	PacketCount uint64  `json:"packetcount" yaml:"packetcount"`
	Duration    uint32  `json:"duration" yaml:"duration"`
	Interval    float64 `json:"interval" yaml:"interval"`

	// link and schedule settings
	Latency    float64 `json:"latency" yaml:"latency"`
	SrtTime    float64 `json:"srttime" yaml:"srttime"`
	StopMargin float64 `json:"stopmargin" yaml:"stopmargin"`
	DelayModel string  `json:"delaymodel" yaml:"delaymodel"`
	DelayMean  float64 `json:"delaymean" yaml:"delaymean"`

	// execution settings
	Engine  string `json:"engine" yaml:"engine"`
	Workers int    `json:"workers" yaml:"workers"`
}

// CreateSweepCfg is a constructor.  Grid empty, everything else at its default
func CreateSweepCfg(name string) *SweepCfg {
	sc := &SweepCfg{Name: name, PacketSizes: make([]uint32, 0), Bandwidths: make([]float64, 0),
		Latency: defaultLatency, SrtTime: defaultSrtTime, StopMargin: defaultStopMargin}
	sc.FillDefaults()
	return sc
}

// DefaultSweepCfg returns the reference experiment: five packet sizes against
// 80% and 100% of a 1 Mbps link, 30 seconds per trial
func DefaultSweepCfg() *SweepCfg {
	sc := CreateSweepCfg("p2p-sweep")
	sc.PacketSizes = []uint32{128, 256, 512, 1024, 1280}
	sc.Bandwidths = []float64{0.8e6, 1e6}
	sc.PacketCount = 1000000
	sc.Duration = 30
	return sc
}

// FillDefaults gives its default value to every setting whose zero value is
// not meaningful.  Latency, srttime, and stopmargin may legitimately be zero,
// so their defaults come from CreateSweepCfg instead
func (sc *SweepCfg) FillDefaults() {
	if sc.Interval == 0.0 {
		sc.Interval = defaultInterval
	}
	if len(sc.DelayModel) == 0 {
		sc.DelayModel = "none"
	}
	if len(sc.Engine) == 0 {
		sc.Engine = string(HeapEngine)
	}
	if sc.Workers == 0 {
		sc.Workers = 1
	}
}

// Validate returns a single error reporting every problem found in the configuration
func (sc *SweepCfg) Validate() error {
	errs := []error{}
	if len(sc.PacketSizes) == 0 {
		errs = append(errs, fmt.Errorf("no packet sizes given"))
	}
	if len(sc.Bandwidths) == 0 {
		errs = append(errs, fmt.Errorf("no bandwidths given"))
	}
	if slices.Contains(sc.PacketSizes, 0) {
		errs = append(errs, fmt.Errorf("packet size 0 in %v", sc.PacketSizes))
	}
	if slices.ContainsFunc(sc.Bandwidths, func(b float64) bool { return !(b > 0.0) }) {
		errs = append(errs, fmt.Errorf("non-positive bandwidth in %v", sc.Bandwidths))
	}
	if sc.Duration == 0 {
		errs = append(errs, fmt.Errorf("duration must be positive"))
	}
	if !(sc.Interval > 0.0) {
		errs = append(errs, fmt.Errorf("interval %g must be positive", sc.Interval))
	}
	if sc.Latency < 0.0 || sc.SrtTime < 0.0 || sc.StopMargin < 0.0 {
		errs = append(errs, fmt.Errorf("latency, srttime, and stopmargin may not be negative"))
	}
	if !slices.Contains(delayModels, sc.DelayModel) {
		errs = append(errs, fmt.Errorf("delay model %s is not recognized", sc.DelayModel))
	} else if sc.DelayModel != "none" && !(sc.DelayMean > 0.0) {
		errs = append(errs, fmt.Errorf("delay model %s needs a positive delaymean", sc.DelayModel))
	}
	if !slices.Contains(engineKinds, sc.Engine) {
		errs = append(errs, fmt.Errorf("engine %s is not one of %v", sc.Engine, engineKinds))
	}
	if sc.Workers < 0 {
		errs = append(errs, fmt.Errorf("workers may not be negative"))
	}
	return ReportErrs(errs)
}

// SweepParameters extracts the grid and shared trial settings
func (sc *SweepCfg) SweepParameters() SweepParameters {
	return SweepParameters{PacketSizes: slices.Clone(sc.PacketSizes), Bandwidths: slices.Clone(sc.Bandwidths),
		PacketCount: sc.PacketCount, SimDurationSec: sc.Duration, IntervalSec: sc.Interval}
}

// RunnerCfg extracts the settings the ExperimentRunner needs
func (sc *SweepCfg) RunnerCfg() RunnerCfg {
	return RunnerCfg{Latency: sc.Latency, SrtTime: sc.SrtTime, StopMargin: sc.StopMargin,
		DelayModel: sc.DelayModel, DelayMean: sc.DelayMean, Engine: EngineKind(sc.Engine)}
}

// WriteToFile stores the SweepCfg struct to the file whose name is given.
// Serialization to json or to yaml is selected based on the extension of this name.
func (sc *SweepCfg) WriteToFile(filename string) error {
	pathExt := path.Ext(filename)
	var bytes []byte
	var merr error

	if slices.Contains(yamlExts, pathExt) {
		bytes, merr = yaml.Marshal(*sc)
	} else if slices.Contains(jsonExts, pathExt) {
		bytes, merr = json.MarshalIndent(*sc, "", "\t")
	} else {
		return fmt.Errorf("configuration file %s has unrecognized extension", filename)
	}

	if merr != nil {
		return merr
	}

	return os.WriteFile(filename, bytes, 0644)
}

// ReadSweepCfg deserializes a byte slice holding a representation of a SweepCfg struct.
// If the input argument of dict (those bytes) is empty, the file whose name is given is read
// to acquire them.  Settings absent from the description are given their defaults.  A deserialized representation
// is returned, or an error if one is generated from a file read or the deserialization.
func ReadSweepCfg(filename string, useYAML bool, dict []byte) (*SweepCfg, error) {
	var err error

	// if the dict slice of bytes is empty we get them from the file whose name is an argument
	if len(dict) == 0 {
		dict, err = os.ReadFile(filename)
		if err != nil {
			return nil, err
		}
	}

	// keys absent from the description keep the defaults set here
	sc := CreateSweepCfg("")

	if useYAML {
		err = yaml.Unmarshal(dict, sc)
	} else {
		err = json.Unmarshal(dict, sc)
	}

	if err != nil {
		return nil, err
	}
	sc.FillDefaults()

	return sc, nil
}

// CheckOutputFiles probes the file system to ensure that the directory
// of every (non-empty) argument filename exists
func CheckOutputFiles(names []string) (bool, error) {
	errs := make([]error, 0)

	for _, name := range names {
		if len(name) == 0 {
			continue
		}

		// split off the directory portion of the path
		directory, _ := filepath.Split(name)
		if len(directory) == 0 {
			continue
		}
		if _, err := os.Stat(directory); err != nil {
			errs = append(errs, err)
		}
	}

	if len(errs) == 0 {
		return true, nil
	}
	return false, ReportErrs(errs)
}
