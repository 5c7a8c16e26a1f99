//go:build !linux

package linksweep

// SysinfoTelemetry has no source of host statistics off Linux
type SysinfoTelemetry struct{}

func (SysinfoTelemetry) Sample() (HostStats, error) {
	return HostStats{}, ErrHostTelemetryUnavailable
}
