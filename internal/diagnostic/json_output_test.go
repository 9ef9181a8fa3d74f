package diagnostic

import (
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"aks-egress-check/internal/egress"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCreateJSONReportPassed(t *testing.T) {
	start := time.Date(2026, 10, 16, 9, 0, 0, 0, time.UTC)
	end := start.Add(42 * time.Second)
	report := egress.Report{{Host: "mcr.microsoft.com", DNSOK: true, HTTPSOK: true}}

	doc := CreateJSONReport(ExecutionInfoJSON{RunID: "r1", Namespace: "ns"}, report, nil, start, end)
	assert.Equal(t, StatusPassed, doc.Summary.OverallStatus)
	assert.Equal(t, 1, doc.Summary.TotalEndpoints)
	assert.Equal(t, 42.0, doc.Summary.TotalExecutionTimeSeconds)
	assert.Equal(t, "2026-10-16T09:00:00Z", doc.ExecutionInfo.Timestamp)
	assert.Empty(t, doc.Summary.ErrorsEncountered)
}

func TestCreateJSONReportFailed(t *testing.T) {
	now := time.Now()
	report := egress.Report{
		{Host: "mcr.microsoft.com", DNSOK: true, HTTPSOK: true},
		{Host: "*.data.mcr.microsoft.com", DNSOK: true},
	}
	doc := CreateJSONReport(ExecutionInfoJSON{}, report, nil, now, now)
	assert.Equal(t, StatusFailed, doc.Summary.OverallStatus)
	assert.Equal(t, 1, doc.Summary.HTTPSFailures)
	assert.Equal(t, []string{"*.data.mcr.microsoft.com: dns_ok=true https_ok=false"}, doc.Summary.ErrorsEncountered)
}

func TestCreateJSONReportRunError(t *testing.T) {
	now := time.Now()
	doc := CreateJSONReport(ExecutionInfoJSON{}, nil, errors.New("pod never started"), now, now)
	assert.Equal(t, StatusError, doc.Summary.OverallStatus)
	assert.NotNil(t, doc.Results)
	assert.Equal(t, []string{"pod never started"}, doc.Summary.ErrorsEncountered)
}

func TestSaveJSONReport(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "test_results")
	now := time.Now()
	doc := CreateJSONReport(ExecutionInfoJSON{RunID: "r1"}, egress.Report{{Host: "a.example.com"}}, nil, now, now)

	path, err := SaveJSONReport(dir, &doc)
	require.NoError(t, err)
	assert.Equal(t, dir, filepath.Dir(path))
	assert.Equal(t, filepath.Base(path), doc.ExecutionInfo.Filename)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	var decoded DiagnosticReportJSON
	require.NoError(t, json.Unmarshal(data, &decoded))
	assert.Equal(t, doc.Results, decoded.Results)
	assert.Equal(t, StatusFailed, decoded.Summary.OverallStatus)
}
