package egress

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"time"
)

// Default probe timeouts.
const (
	DefaultConnectTimeout = 5 * time.Second
	DefaultRequestTimeout = 12 * time.Second
)

// Resolver looks up host addresses. *net.Resolver satisfies it.
type Resolver interface {
	LookupHost(ctx context.Context, host string) ([]string, error)
}

// HTTPSProber attempts one HTTPS exchange with a host. A nil error means a
// response status line was received, whatever the status code.
type HTTPSProber interface {
	Probe(ctx context.Context, host string) error
}

type httpsProber struct {
	client *http.Client
}

// NewHTTPSProber returns a prober bounded by a connect timeout (TCP dial
// and TLS handshake) and an overall request timeout. Redirects are not
// followed.
func NewHTTPSProber(connectTimeout, requestTimeout time.Duration) HTTPSProber {
	dialer := &net.Dialer{Timeout: connectTimeout}
	transport := &http.Transport{
		Proxy:               http.ProxyFromEnvironment,
		DialContext:         dialer.DialContext,
		TLSHandshakeTimeout: connectTimeout,
		DisableKeepAlives:   true,
	}
	return NewHTTPSProberWithClient(&http.Client{
		Timeout:   requestTimeout,
		Transport: transport,
	})
}

// NewHTTPSProberWithClient wraps an existing client. Its redirect policy is
// replaced so the first response is always the one observed.
func NewHTTPSProberWithClient(client *http.Client) HTTPSProber {
	c := *client
	c.CheckRedirect = func(*http.Request, []*http.Request) error {
		return http.ErrUseLastResponse
	}
	return &httpsProber{client: &c}
}

func (p *httpsProber) Probe(ctx context.Context, host string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, "https://"+host, nil)
	if err != nil {
		return fmt.Errorf("failed to build request for %s: %w", host, err)
	}
	resp, err := p.client.Do(req)
	if err != nil {
		return err
	}
	resp.Body.Close()
	return nil
}
