//go:build linux

package linksweep

import (
	"fmt"

	"golang.org/x/sys/unix"
)

// SysinfoTelemetry reads host statistics with sysinfo(2)
type SysinfoTelemetry struct{}

func (SysinfoTelemetry) Sample() (HostStats, error) {
	var info unix.Sysinfo_t
	if err := unix.Sysinfo(&info); err != nil {
		return HostStats{}, fmt.Errorf("%w: %v", ErrHostTelemetryUnavailable, err)
	}
	unit := uint64(info.Unit)
	if unit == 0 {
		unit = 1
	}
	return HostStats{TotalRAM: uint64(info.Totalram) * unit, Procs: uint32(info.Procs)}, nil
}
