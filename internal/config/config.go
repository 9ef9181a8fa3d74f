package config

import (
	"fmt"
	"strings"
	"time"

	"aks-egress-check/internal/egress"

	"github.com/spf13/viper"
)

// DefaultEndpoints are the outbound FQDNs an AKS cluster needs to operate.
var DefaultEndpoints = []string{
	"mcr.microsoft.com",
	"*.data.mcr.microsoft.com",
	"management.azure.com",
	"login.microsoftonline.com",
	"packages.microsoft.com",
	"acs-mirror.azureedge.net",
	"packages.aks.azure.com",
}

// Output formats for the run command.
const (
	OutputText = "text"
	OutputJSON = "json"
)

// Config holds application configuration
type Config struct {
	Verbose               bool          `mapstructure:"verbose"`
	LogLevel              string        `mapstructure:"log_level"`
	Kubeconfig            string        `mapstructure:"kubeconfig"`
	Namespace             string        `mapstructure:"namespace"`
	Image                 string        `mapstructure:"image"`
	Endpoints             []string      `mapstructure:"endpoints"`
	ConnectTimeout        time.Duration `mapstructure:"connect_timeout"`
	RequestTimeout        time.Duration `mapstructure:"request_timeout"`
	Concurrency           int           `mapstructure:"concurrency"`
	StartupTimeout        time.Duration `mapstructure:"startup_timeout"`
	RunTimeout            time.Duration `mapstructure:"run_timeout"`
	CompletionTimeout     time.Duration `mapstructure:"completion_timeout"`
	CleanupTimeout        time.Duration `mapstructure:"cleanup_timeout"`
	ResultsDir            string        `mapstructure:"results_dir"`
	Output                string        `mapstructure:"output"`
	SimulateBlockedEgress bool          `mapstructure:"simulate_blocked_egress"`
}

// SetDefaults registers the default value of every key.
func SetDefaults(v *viper.Viper) {
	v.SetDefault("verbose", false)
	v.SetDefault("log_level", "info")
	v.SetDefault("namespace", "aks-egress-check")
	v.SetDefault("endpoints", DefaultEndpoints)
	v.SetDefault("connect_timeout", egress.DefaultConnectTimeout)
	v.SetDefault("request_timeout", egress.DefaultRequestTimeout)
	v.SetDefault("concurrency", 1)
	v.SetDefault("startup_timeout", 300*time.Second)
	v.SetDefault("run_timeout", 10*time.Minute)
	v.SetDefault("completion_timeout", 60*time.Second)
	v.SetDefault("cleanup_timeout", 60*time.Second)
	v.SetDefault("results_dir", "test_results")
	v.SetDefault("output", OutputText)
}

// Load loads configuration from various sources
func Load() (*Config, error) {
	return LoadFrom(viper.GetViper())
}

// LoadFrom reads and validates configuration from v.
func LoadFrom(v *viper.Viper) (*Config, error) {
	SetDefaults(v)

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("failed to decode configuration: %w", err)
	}
	if err := config.Validate(); err != nil {
		return nil, err
	}
	return &config, nil
}

// Validate checks value ranges and the endpoint list.
func (c *Config) Validate() error {
	if c.Namespace == "" {
		return fmt.Errorf("namespace must not be empty")
	}
	if c.ConnectTimeout <= 0 {
		return fmt.Errorf("connect_timeout must be positive, got %v", c.ConnectTimeout)
	}
	if c.RequestTimeout < c.ConnectTimeout {
		return fmt.Errorf("request_timeout (%v) must not be shorter than connect_timeout (%v)", c.RequestTimeout, c.ConnectTimeout)
	}
	if c.Concurrency < 1 {
		return fmt.Errorf("concurrency must be at least 1, got %d", c.Concurrency)
	}
	if c.StartupTimeout <= 0 {
		return fmt.Errorf("startup_timeout must be positive, got %v", c.StartupTimeout)
	}
	if c.RunTimeout <= 0 {
		return fmt.Errorf("run_timeout must be positive, got %v", c.RunTimeout)
	}
	if c.CompletionTimeout <= 0 {
		return fmt.Errorf("completion_timeout must be positive, got %v", c.CompletionTimeout)
	}
	if c.CleanupTimeout <= 0 {
		return fmt.Errorf("cleanup_timeout must be positive, got %v", c.CleanupTimeout)
	}
	switch c.Output {
	case OutputText, OutputJSON:
	default:
		return fmt.Errorf("output must be %q or %q, got %q", OutputText, OutputJSON, c.Output)
	}
	if _, err := c.EndpointSpecs(); err != nil {
		return err
	}
	return nil
}

// ValidateRun checks the settings only the in-cluster run needs. There is
// no default image: it must contain the aks-egress-check binary, so it is
// built from this repository's Dockerfile and pushed to a registry the
// cluster can pull from.
func (c *Config) ValidateRun() error {
	if strings.TrimSpace(c.Image) == "" {
		return fmt.Errorf("image is required: build the probe image from the Dockerfile and pass it with --image or AKS_EGRESS_CHECK_IMAGE")
	}
	return nil
}

// EndpointSpecs parses the configured endpoint list.
func (c *Config) EndpointSpecs() ([]egress.EndpointSpec, error) {
	specs, err := egress.ParseEndpoints(c.Endpoints)
	if err != nil {
		return nil, fmt.Errorf("invalid endpoints: %w", err)
	}
	return specs, nil
}

// ProbePayload builds the document delivered to the probe pod.
func (c *Config) ProbePayload(runID string) ProbePayload {
	return NewProbePayload(runID, c.Endpoints, c.ConnectTimeout, c.RequestTimeout, c.Concurrency)
}
