package linksweep

import (
	"errors"
	"fmt"
	"strings"
)

// InvalidParameterError reports trial parameters that cannot be simulated.
// It is raised before any event is scheduled.
type InvalidParameterError struct {
	Param  string
	Value  any
	Reason string
}

func (ipe *InvalidParameterError) Error() string {
	return fmt.Sprintf("invalid trial parameter %s=%v: %s", ipe.Param, ipe.Value, ipe.Reason)
}

// InvalidTimeError reports an attempt to schedule an event before the current virtual time
type InvalidTimeError struct {
	Now       float64
	Requested float64
}

func (ite *InvalidTimeError) Error() string {
	return fmt.Sprintf("event scheduled at %g precedes current virtual time %g", ite.Requested, ite.Now)
}

// ErrHostTelemetryUnavailable is returned by a HostTelemetry that cannot read host statistics
var ErrHostTelemetryUnavailable = errors.New("host telemetry unavailable")

// ReportErrs transforms a list of errors and transforms the non-nil ones into a single error
// with comma-separated report of all the constituent errors, and returns it.
func ReportErrs(errs []error) error {
	errMsg := make([]string, 0)
	for _, err := range errs {
		if err != nil {
			errMsg = append(errMsg, err.Error())
		}
	}
	if len(errMsg) == 0 {
		return nil
	}

	return errors.New(strings.Join(errMsg, ","))
}
