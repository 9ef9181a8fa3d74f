package egress

import (
	"fmt"
	"strings"
)

// WildcardPrefix marks a pattern that expands to several candidate hosts.
const WildcardPrefix = "*."

// EndpointSpec is one configured hostname pattern, either a literal
// hostname or a wildcard of the form *.<base-domain>. Pattern keeps the
// configured spelling; it is what a CheckResult reports as its host.
type EndpointSpec struct {
	Pattern string
}

// ParseEndpoint validates a raw pattern and returns its EndpointSpec.
// Surrounding whitespace is trimmed; case is preserved.
func ParseEndpoint(raw string) (EndpointSpec, error) {
	pattern := strings.TrimSpace(raw)
	if pattern == "" {
		return EndpointSpec{}, fmt.Errorf("endpoint pattern is empty")
	}
	if strings.ContainsAny(pattern, " \t/:@?#") {
		return EndpointSpec{}, fmt.Errorf("endpoint %q must be a bare hostname", raw)
	}

	host := pattern
	if strings.HasPrefix(pattern, WildcardPrefix) {
		host = strings.TrimPrefix(pattern, WildcardPrefix)
		if host == "" {
			return EndpointSpec{}, fmt.Errorf("wildcard endpoint %q has no base domain", raw)
		}
	}
	if strings.Contains(host, "*") {
		return EndpointSpec{}, fmt.Errorf("endpoint %q may only use a single leading %q", raw, WildcardPrefix)
	}
	if strings.HasPrefix(host, ".") || strings.HasSuffix(host, ".") || strings.Contains(host, "..") {
		return EndpointSpec{}, fmt.Errorf("endpoint %q has an empty label", raw)
	}

	return EndpointSpec{Pattern: pattern}, nil
}

// ParseEndpoints parses every pattern in order. Patterns that differ only
// in case are duplicates and are rejected, so each host appears once in
// the resulting Report.
func ParseEndpoints(raw []string) ([]EndpointSpec, error) {
	specs := make([]EndpointSpec, 0, len(raw))
	seen := make(map[string]int, len(raw))
	for i, r := range raw {
		spec, err := ParseEndpoint(r)
		if err != nil {
			return nil, fmt.Errorf("endpoint #%d: %w", i+1, err)
		}
		key := spec.Key()
		if first, ok := seen[key]; ok {
			return nil, fmt.Errorf("endpoint #%d: %q duplicates endpoint #%d", i+1, spec.Pattern, first+1)
		}
		seen[key] = i
		specs = append(specs, spec)
	}
	return specs, nil
}

// Key is the case-folded pattern used to compare endpoints.
func (e EndpointSpec) Key() string {
	return strings.ToLower(e.Pattern)
}

// IsWildcard reports whether the pattern starts with "*.".
func (e EndpointSpec) IsWildcard() bool {
	return strings.HasPrefix(e.Pattern, WildcardPrefix)
}

// Candidates returns the concrete hostnames to probe for this spec.
func (e EndpointSpec) Candidates() []string {
	return Candidates(e.Pattern)
}

// Candidates derives the concrete hostnames for a pattern. A wildcard
// *.B yields www.B, api.B and B in that priority order; anything else
// yields the pattern itself. Candidates are always lowercase.
func Candidates(pattern string) []string {
	pattern = strings.ToLower(pattern)
	if !strings.HasPrefix(pattern, WildcardPrefix) {
		return []string{pattern}
	}
	base := strings.TrimPrefix(pattern, WildcardPrefix)
	return []string{"www." + base, "api." + base, base}
}
