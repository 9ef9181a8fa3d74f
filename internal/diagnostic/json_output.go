package diagnostic

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"aks-egress-check/internal/egress"
)

// Overall statuses of a saved report.
const (
	StatusPassed = "PASSED"
	StatusFailed = "FAILED"
	StatusError  = "ERROR"
)

// ExecutionInfoJSON represents execution metadata
type ExecutionInfoJSON struct {
	RunID            string `json:"run_id"`
	Timestamp        string `json:"timestamp"`
	Filename         string `json:"filename"`
	Namespace        string `json:"namespace"`
	KubeconfigSource string `json:"kubeconfig_source"`
	Image            string `json:"image"`
	VerboseMode      bool   `json:"verbose_mode"`
}

// SummaryJSON represents the overall run summary
type SummaryJSON struct {
	TotalEndpoints            int      `json:"total_endpoints"`
	Reachable                 int      `json:"reachable"`
	DNSFailures               int      `json:"dns_failures"`
	HTTPSFailures             int      `json:"https_failures"`
	OverallStatus             string   `json:"overall_status"`
	TotalExecutionTimeSeconds float64  `json:"total_execution_time_seconds"`
	ErrorsEncountered         []string `json:"errors_encountered"`
	CompletionTime            string   `json:"completion_time"`
}

// DiagnosticReportJSON represents the complete JSON output structure
type DiagnosticReportJSON struct {
	ExecutionInfo ExecutionInfoJSON `json:"execution_info"`
	Results       egress.Report     `json:"results"`
	Summary       SummaryJSON       `json:"summary"`
}

// CreateJSONReport combines execution metadata, the probe report and any
// run error into one document. A run error leaves Results empty.
func CreateJSONReport(info ExecutionInfoJSON, report egress.Report, runErr error, startTime, endTime time.Time) DiagnosticReportJSON {
	info.Timestamp = startTime.Format(time.RFC3339)
	if report == nil {
		report = egress.Report{}
	}

	s := report.Summary()
	summary := SummaryJSON{
		TotalEndpoints:            s.Total,
		Reachable:                 s.Reachable,
		DNSFailures:               s.DNSFailures,
		HTTPSFailures:             s.HTTPSFailures,
		OverallStatus:             StatusPassed,
		TotalExecutionTimeSeconds: endTime.Sub(startTime).Seconds(),
		ErrorsEncountered:         []string{},
		CompletionTime:            endTime.Format(time.RFC3339),
	}

	switch {
	case runErr != nil:
		summary.OverallStatus = StatusError
		summary.ErrorsEncountered = append(summary.ErrorsEncountered, runErr.Error())
	case !s.Passed():
		summary.OverallStatus = StatusFailed
		for _, res := range report {
			if res.Reachable() {
				continue
			}
			summary.ErrorsEncountered = append(summary.ErrorsEncountered,
				fmt.Sprintf("%s: dns_ok=%t https_ok=%t", res.Host, res.DNSOK, res.HTTPSOK))
		}
	}

	return DiagnosticReportJSON{
		ExecutionInfo: info,
		Results:       report,
		Summary:       summary,
	}
}

// SaveJSONReport saves the report to a timestamped JSON file in dir and
// returns its path.
func SaveJSONReport(dir string, report *DiagnosticReportJSON) (string, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", fmt.Errorf("failed to create %s directory: %w", dir, err)
	}

	filename := fmt.Sprintf("aks-egress-check-results-%s.json", time.Now().Format("20060102-150405"))
	fullPath := filepath.Join(dir, filename)
	report.ExecutionInfo.Filename = filename

	jsonData, err := json.MarshalIndent(report, "", "  ")
	if err != nil {
		return "", fmt.Errorf("failed to marshal JSON: %w", err)
	}
	if err := os.WriteFile(fullPath, jsonData, 0644); err != nil {
		return "", fmt.Errorf("failed to write JSON file %s: %w", fullPath, err)
	}
	return fullPath, nil
}
