package egress

import (
	"context"
	"crypto/x509"
	"fmt"
	"os"
	"runtime"
)

// ProvisioningExitCode is the process exit code of the probe command when
// its toolchain could not be prepared.
const ProvisioningExitCode = 3

// DefaultResolvConf is the resolver configuration consulted on Linux.
const DefaultResolvConf = "/etc/resolv.conf"

// Provisioner prepares whatever the probes need before any check runs.
type Provisioner interface {
	Provision(ctx context.Context) error
}

// ProvisionerFunc adapts a function to the Provisioner interface.
type ProvisionerFunc func(ctx context.Context) error

func (f ProvisionerFunc) Provision(ctx context.Context) error { return f(ctx) }

// ProvisioningError means the probing toolchain was unavailable, so no
// check ran and no Report exists.
type ProvisioningError struct {
	Err error
}

func (e *ProvisioningError) Error() string {
	return fmt.Sprintf("probe toolchain provisioning failed: %v", e.Err)
}

func (e *ProvisioningError) Unwrap() error { return e.Err }

// SystemToolchain checks that the host can resolve names and verify TLS
// peers: the resolver configuration must be readable and a system root
// pool must load.
type SystemToolchain struct {
	ResolvConfPath string
	LoadRoots      func() (*x509.CertPool, error)
}

// Provision implements Provisioner.
func (s SystemToolchain) Provision(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	if runtime.GOOS != "windows" {
		path := s.ResolvConfPath
		if path == "" {
			path = DefaultResolvConf
		}
		if _, err := os.ReadFile(path); err != nil {
			return fmt.Errorf("resolver configuration unavailable: %w", err)
		}
	}

	load := s.LoadRoots
	if load == nil {
		load = x509.SystemCertPool
	}
	pool, err := load()
	if err != nil {
		return fmt.Errorf("system TLS roots unavailable: %w", err)
	}
	if pool == nil || pool.Equal(x509.NewCertPool()) {
		return fmt.Errorf("system TLS roots unavailable: empty pool")
	}
	return nil
}
