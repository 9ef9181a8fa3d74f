package diagnostic

import (
	"errors"
	"fmt"
	"time"

	"aks-egress-check/internal/egress"
)

// ErrReportNotFound means the probe output contained no report line.
var ErrReportNotFound = errors.New("probe output contained no report")

// EnvironmentError means the probe pod never started within its startup
// deadline. It signals an infrastructure problem rather than blocked egress.
type EnvironmentError struct {
	Pod     string
	Phase   string
	Reason  string
	Message string
	Timeout time.Duration
}

func (e *EnvironmentError) Error() string {
	msg := fmt.Sprintf("execution environment not ready: pod %s did not start within %v (phase %s", e.Pod, e.Timeout, e.Phase)
	if e.Reason != "" {
		msg += ", reason " + e.Reason
	}
	msg += ")"
	if e.Message != "" {
		msg += ": " + e.Message
	}
	return msg
}

// ProbeExitError means the probe container terminated with a non-zero
// exit code.
type ProbeExitError struct {
	Pod      string
	ExitCode int32
	Reason   string
}

func (e *ProbeExitError) Error() string {
	if e.Provisioning() {
		return fmt.Sprintf("probe pod %s could not provision its toolchain (exit code %d)", e.Pod, e.ExitCode)
	}
	return fmt.Sprintf("probe pod %s exited with code %d (%s)", e.Pod, e.ExitCode, e.Reason)
}

// Provisioning reports whether the probe failed before running any check.
func (e *ProbeExitError) Provisioning() bool {
	return e.ExitCode == egress.ProvisioningExitCode
}
