package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := LoadFrom(viper.New())
	require.NoError(t, err)

	assert.Equal(t, "aks-egress-check", cfg.Namespace)
	assert.Equal(t, DefaultEndpoints, cfg.Endpoints)
	assert.Equal(t, 5*time.Second, cfg.ConnectTimeout)
	assert.Equal(t, 12*time.Second, cfg.RequestTimeout)
	assert.Equal(t, 300*time.Second, cfg.StartupTimeout)
	assert.Equal(t, 60*time.Second, cfg.CompletionTimeout)
	assert.Equal(t, 60*time.Second, cfg.CleanupTimeout)
	assert.Empty(t, cfg.Image)
	assert.Equal(t, 1, cfg.Concurrency)
	assert.Equal(t, OutputText, cfg.Output)
}

func TestLoadFromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
namespace: egress
endpoints:
  - mcr.microsoft.com
  - "*.blob.core.windows.net"
connect_timeout: 2s
request_timeout: 8s
completion_timeout: 90s
concurrency: 4
image: example.azurecr.io/aks-egress-check:v1
`), 0644))

	v := viper.New()
	v.SetConfigFile(path)
	require.NoError(t, v.ReadInConfig())

	cfg, err := LoadFrom(v)
	require.NoError(t, err)
	assert.Equal(t, "egress", cfg.Namespace)
	assert.Equal(t, []string{"mcr.microsoft.com", "*.blob.core.windows.net"}, cfg.Endpoints)
	assert.Equal(t, 2*time.Second, cfg.ConnectTimeout)
	assert.Equal(t, 8*time.Second, cfg.RequestTimeout)
	assert.Equal(t, 4, cfg.Concurrency)
	assert.Equal(t, 90*time.Second, cfg.CompletionTimeout)
	assert.NoError(t, cfg.ValidateRun())
}

func TestLoadRejectsInvalid(t *testing.T) {
	cases := map[string]func(v *viper.Viper){
		"duplicate endpoints": func(v *viper.Viper) { v.Set("endpoints", []string{"a.example.com", "a.example.com"}) },
		"bad wildcard":        func(v *viper.Viper) { v.Set("endpoints", []string{"a.*.example.com"}) },
		"zero connect":        func(v *viper.Viper) { v.Set("connect_timeout", "0s") },
		"request too short":   func(v *viper.Viper) { v.Set("request_timeout", "1s") },
		"zero concurrency":    func(v *viper.Viper) { v.Set("concurrency", 0) },
		"bad output":          func(v *viper.Viper) { v.Set("output", "xml") },
		"empty namespace":     func(v *viper.Viper) { v.Set("namespace", "") },
		"zero completion":     func(v *viper.Viper) { v.Set("completion_timeout", "0s") },
	}
	for name, mutate := range cases {
		t.Run(name, func(t *testing.T) {
			v := viper.New()
			mutate(v)
			_, err := LoadFrom(v)
			assert.Error(t, err)
		})
	}
}

func TestEmptyEndpointListIsValid(t *testing.T) {
	v := viper.New()
	v.Set("endpoints", []string{})
	cfg, err := LoadFrom(v)
	require.NoError(t, err)
	specs, err := cfg.EndpointSpecs()
	require.NoError(t, err)
	assert.Empty(t, specs)
}

func TestValidateRunRequiresImage(t *testing.T) {
	cfg, err := LoadFrom(viper.New())
	require.NoError(t, err)

	err = cfg.ValidateRun()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "image is required")

	cfg.Image = "   "
	assert.Error(t, cfg.ValidateRun())

	cfg.Image = "example.azurecr.io/aks-egress-check:v1"
	assert.NoError(t, cfg.ValidateRun())
}
