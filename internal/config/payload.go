package config

import (
	"fmt"
	"os"
	"time"

	"aks-egress-check/internal/egress"

	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"sigs.k8s.io/yaml"
)

// ProbePayload is the typed input of the probe command. The driver stores
// it as YAML in a ConfigMap mounted into the probe pod.
type ProbePayload struct {
	RunID          string          `json:"runID,omitempty"`
	Endpoints      []string        `json:"endpoints"`
	ConnectTimeout metav1.Duration `json:"connectTimeout"`
	RequestTimeout metav1.Duration `json:"requestTimeout"`
	Concurrency    int             `json:"concurrency,omitempty"`
}

// NewProbePayload builds a payload from plain values.
func NewProbePayload(runID string, endpoints []string, connect, request time.Duration, concurrency int) ProbePayload {
	return ProbePayload{
		RunID:          runID,
		Endpoints:      append([]string(nil), endpoints...),
		ConnectTimeout: metav1.Duration{Duration: connect},
		RequestTimeout: metav1.Duration{Duration: request},
		Concurrency:    concurrency,
	}
}

// Marshal encodes the payload as YAML.
func (p ProbePayload) Marshal() ([]byte, error) {
	data, err := yaml.Marshal(p)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal probe payload: %w", err)
	}
	return data, nil
}

// ParseProbePayload decodes a YAML or JSON payload. Unknown fields are
// rejected and zero timeouts take their defaults.
func ParseProbePayload(data []byte) (*ProbePayload, error) {
	var p ProbePayload
	if err := yaml.UnmarshalStrict(data, &p); err != nil {
		return nil, fmt.Errorf("failed to parse probe payload: %w", err)
	}
	if p.ConnectTimeout.Duration == 0 {
		p.ConnectTimeout.Duration = egress.DefaultConnectTimeout
	}
	if p.RequestTimeout.Duration == 0 {
		p.RequestTimeout.Duration = egress.DefaultRequestTimeout
	}
	if p.Concurrency == 0 {
		p.Concurrency = 1
	}
	if p.ConnectTimeout.Duration < 0 || p.RequestTimeout.Duration < 0 {
		return nil, fmt.Errorf("probe payload timeouts must not be negative")
	}
	if p.Concurrency < 0 {
		return nil, fmt.Errorf("probe payload concurrency must not be negative")
	}
	return &p, nil
}

// LoadProbePayload reads and parses the payload file at path.
func LoadProbePayload(path string) (*ProbePayload, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read probe payload %s: %w", path, err)
	}
	return ParseProbePayload(data)
}

// EndpointSpecs parses the payload's endpoint list.
func (p *ProbePayload) EndpointSpecs() ([]egress.EndpointSpec, error) {
	return egress.ParseEndpoints(p.Endpoints)
}

// CheckerOptions translates the payload into checker options.
func (p *ProbePayload) CheckerOptions() []egress.Option {
	return []egress.Option{
		egress.WithTimeouts(p.ConnectTimeout.Duration, p.RequestTimeout.Duration),
		egress.WithConcurrency(p.Concurrency),
	}
}
