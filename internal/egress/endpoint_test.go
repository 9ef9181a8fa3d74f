package egress

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCandidatesLiteral(t *testing.T) {
	for _, host := range []string{"mcr.microsoft.com", "management.azure.com", "localhost"} {
		assert.Equal(t, []string{host}, Candidates(host))
	}
}

func TestCandidatesWildcardOrder(t *testing.T) {
	assert.Equal(t,
		[]string{"www.example.com", "api.example.com", "example.com"},
		Candidates("*.example.com"))

	spec, err := ParseEndpoint("*.data.mcr.microsoft.com")
	require.NoError(t, err)
	assert.True(t, spec.IsWildcard())
	assert.Equal(t,
		[]string{"www.data.mcr.microsoft.com", "api.data.mcr.microsoft.com", "data.mcr.microsoft.com"},
		spec.Candidates())
}

func TestParseEndpointKeepsCase(t *testing.T) {
	spec, err := ParseEndpoint("  MCR.Microsoft.com ")
	require.NoError(t, err)
	assert.Equal(t, "MCR.Microsoft.com", spec.Pattern)
	assert.Equal(t, "mcr.microsoft.com", spec.Key())
	assert.Equal(t, []string{"mcr.microsoft.com"}, spec.Candidates())
	assert.False(t, spec.IsWildcard())

	wild, err := ParseEndpoint("*.Data.MCR.microsoft.com")
	require.NoError(t, err)
	assert.Equal(t, "*.Data.MCR.microsoft.com", wild.Pattern)
	assert.Equal(t,
		[]string{"www.data.mcr.microsoft.com", "api.data.mcr.microsoft.com", "data.mcr.microsoft.com"},
		wild.Candidates())
}

func TestParseEndpointRejectsInvalid(t *testing.T) {
	cases := map[string]string{
		"empty":             "",
		"blank":             "   ",
		"bare wildcard":     "*.",
		"inner wildcard":    "api.*.example.com",
		"double wildcard":   "*.*.example.com",
		"trailing wildcard": "example.*",
		"url":               "https://example.com",
		"path":              "example.com/path",
		"port":              "example.com:443",
		"empty label":       "example..com",
		"leading dot":       ".example.com",
	}
	for name, raw := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := ParseEndpoint(raw)
			assert.Error(t, err)
		})
	}
}

func TestParseEndpointsRejectsDuplicates(t *testing.T) {
	_, err := ParseEndpoints([]string{"mcr.microsoft.com", "management.azure.com", "MCR.microsoft.com"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "duplicates endpoint #1")
	assert.Contains(t, err.Error(), `"MCR.microsoft.com"`)
}

func TestParseEndpointsKeepsOrder(t *testing.T) {
	specs, err := ParseEndpoints([]string{"b.example.com", "*.a.example.com", "c.example.com"})
	require.NoError(t, err)
	require.Len(t, specs, 3)
	assert.Equal(t, "b.example.com", specs[0].Pattern)
	assert.Equal(t, "*.a.example.com", specs[1].Pattern)
	assert.Equal(t, "c.example.com", specs[2].Pattern)

	empty, err := ParseEndpoints(nil)
	require.NoError(t, err)
	assert.Empty(t, empty)
}
