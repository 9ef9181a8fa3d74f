package egress

import (
	"context"
	"crypto/x509"
	"errors"
	"os"
	"path/filepath"
	"runtime"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSystemToolchainMissingResolvConf(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("resolver configuration is not file based on windows")
	}
	tc := SystemToolchain{ResolvConfPath: filepath.Join(t.TempDir(), "resolv.conf")}
	err := tc.Provision(context.Background())
	require.Error(t, err)
	assert.True(t, errors.Is(err, os.ErrNotExist))
}

func TestSystemToolchainMissingRoots(t *testing.T) {
	path := filepath.Join(t.TempDir(), "resolv.conf")
	require.NoError(t, os.WriteFile(path, []byte("nameserver 168.63.129.16\n"), 0644))

	tc := SystemToolchain{
		ResolvConfPath: path,
		LoadRoots:      func() (*x509.CertPool, error) { return x509.NewCertPool(), nil },
	}
	err := tc.Provision(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "TLS roots")

	tc.LoadRoots = func() (*x509.CertPool, error) { return nil, errors.New("no bundle") }
	assert.Error(t, tc.Provision(context.Background()))
}

func TestSystemToolchainReady(t *testing.T) {
	path := filepath.Join(t.TempDir(), "resolv.conf")
	require.NoError(t, os.WriteFile(path, []byte("nameserver 168.63.129.16\n"), 0644))

	pool := x509.NewCertPool()
	pool.AddCert(&x509.Certificate{Raw: []byte{0x30}, RawSubject: []byte{0x30}})
	tc := SystemToolchain{
		ResolvConfPath: path,
		LoadRoots:      func() (*x509.CertPool, error) { return pool, nil },
	}
	assert.NoError(t, tc.Provision(context.Background()))
}

func TestProvisioningErrorUnwraps(t *testing.T) {
	cause := errors.New("boom")
	err := error(&ProvisioningError{Err: cause})
	assert.ErrorIs(t, err, cause)
}
