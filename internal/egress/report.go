package egress

import (
	"encoding/json"
	"fmt"
	"io"
)

// CheckResult is the outcome for one EndpointSpec. Host is always the
// configured pattern, never a derived candidate.
type CheckResult struct {
	Host    string `json:"host"`
	DNSOK   bool   `json:"dns_ok"`
	HTTPSOK bool   `json:"https_ok"`
}

// Reachable reports whether both probes succeeded.
func (r CheckResult) Reachable() bool {
	return r.DNSOK && r.HTTPSOK
}

// Report holds one CheckResult per EndpointSpec, in input order.
type Report []CheckResult

// Summary aggregates a Report.
type Summary struct {
	Total         int `json:"total"`
	Reachable     int `json:"reachable"`
	DNSFailures   int `json:"dns_failures"`
	HTTPSFailures int `json:"https_failures"`
}

// Passed is true when every endpoint passed both probes.
func (s Summary) Passed() bool {
	return s.Reachable == s.Total
}

// Summary counts failures per probe.
func (r Report) Summary() Summary {
	s := Summary{Total: len(r)}
	for _, res := range r {
		if !res.DNSOK {
			s.DNSFailures++
		}
		if !res.HTTPSOK {
			s.HTTPSFailures++
		}
		if res.Reachable() {
			s.Reachable++
		}
	}
	return s
}

// Encode writes the report as a single-line JSON array followed by a
// newline. A nil report is written as [].
func (r Report) Encode(w io.Writer) error {
	if r == nil {
		r = Report{}
	}
	data, err := json.Marshal(r)
	if err != nil {
		return fmt.Errorf("failed to marshal report: %w", err)
	}
	data = append(data, '\n')
	if _, err := w.Write(data); err != nil {
		return fmt.Errorf("failed to write report: %w", err)
	}
	return nil
}

// DecodeReport parses a JSON array of check results.
func DecodeReport(data []byte) (Report, error) {
	var r Report
	if err := json.Unmarshal(data, &r); err != nil {
		return nil, fmt.Errorf("failed to decode report: %w", err)
	}
	if r == nil {
		return nil, fmt.Errorf("failed to decode report: not a JSON array")
	}
	return r, nil
}
