package linksweep

// telemetry.go holds the host statistics used to estimate CPU utilization.
// The estimate compares elapsed virtual time with the host's total memory
// and process count.  It is a proxy, not a measurement, and nothing in the
// simulation depends on it.

// HostStats are the host-reported proxies feeding the CPU estimate
type HostStats struct {
	TotalRAM uint64 `json:"totalram" yaml:"totalram"` // bytes
	Procs    uint32 `json:"procs" yaml:"procs"`       // processes the host reports
}

// HostTelemetry samples host statistics.  Implementations that cannot
// read them return ErrHostTelemetryUnavailable
type HostTelemetry interface {
	Sample() (HostStats, error)
}

// FixedTelemetry reports the same HostStats on every sample
type FixedTelemetry HostStats

func (ft FixedTelemetry) Sample() (HostStats, error) {
	return HostStats(ft), nil
}

// NoTelemetry always reports that host statistics are unavailable
type NoTelemetry struct{}

func (NoTelemetry) Sample() (HostStats, error) {
	return HostStats{}, ErrHostTelemetryUnavailable
}

// cpuEstimate treats the host's total RAM as total CPU time and spreads the
// idle remainder over the process count, with the simulation assumed to run at
// twice real time.
func cpuEstimate(now float64, simDuration uint32, hs HostStats) float64 {
	totalCPUTime := now * 2.0 * float64(simDuration)
	if totalCPUTime == 0.0 || hs.Procs == 0 {
		return 0.0
	}
	idleCPUTime := (totalCPUTime - float64(hs.TotalRAM)) / float64(hs.Procs)
	return (totalCPUTime - idleCPUTime) / totalCPUTime * 100.0
}
