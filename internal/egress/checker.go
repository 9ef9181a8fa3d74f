// Package egress checks whether a set of hostname patterns is reachable
// from the current network: each pattern gets a DNS probe and an
// independent HTTPS probe, and the outcomes form a Report.
package egress

import (
	"context"
	"net"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// Checker evaluates EndpointSpecs against the DNS and HTTPS probes.
type Checker struct {
	resolver       Resolver
	prober         HTTPSProber
	provisioner    Provisioner
	concurrency    int
	connectTimeout time.Duration
	requestTimeout time.Duration
	logger         *zap.Logger
}

// Option configures a Checker.
type Option func(*Checker)

// WithResolver replaces the system resolver.
func WithResolver(r Resolver) Option {
	return func(c *Checker) { c.resolver = r }
}

// WithHTTPSProber replaces the default HTTPS prober. Timeouts set with
// WithTimeouts are ignored when a prober is supplied.
func WithHTTPSProber(p HTTPSProber) Option {
	return func(c *Checker) { c.prober = p }
}

// WithProvisioner replaces the SystemToolchain provisioner.
func WithProvisioner(p Provisioner) Option {
	return func(c *Checker) { c.provisioner = p }
}

// WithConcurrency sets how many EndpointSpecs are probed at once. Values
// below 1 mean sequential.
func WithConcurrency(n int) Option {
	return func(c *Checker) {
		if n < 1 {
			n = 1
		}
		c.concurrency = n
	}
}

// WithTimeouts sets the HTTPS connect and overall request timeouts.
func WithTimeouts(connect, request time.Duration) Option {
	return func(c *Checker) {
		if connect > 0 {
			c.connectTimeout = connect
		}
		if request > 0 {
			c.requestTimeout = request
		}
	}
}

// WithLogger sets the progress logger.
func WithLogger(l *zap.Logger) Option {
	return func(c *Checker) {
		if l != nil {
			c.logger = l
		}
	}
}

// New builds a Checker. Without options it probes sequentially with the
// system resolver and the default timeouts.
func New(opts ...Option) *Checker {
	c := &Checker{
		resolver:       net.DefaultResolver,
		provisioner:    SystemToolchain{},
		concurrency:    1,
		connectTimeout: DefaultConnectTimeout,
		requestTimeout: DefaultRequestTimeout,
		logger:         zap.NewNop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.prober == nil {
		c.prober = NewHTTPSProber(c.connectTimeout, c.requestTimeout)
	}
	return c
}

// Run provisions the toolchain and checks every spec. The Report has one
// entry per spec in input order. Probe failures are recorded in the
// Report; Run only fails on a *ProvisioningError or when ctx ends before
// every spec was checked, in which case no Report is returned.
func (c *Checker) Run(ctx context.Context, specs []EndpointSpec) (Report, error) {
	if err := c.provisioner.Provision(ctx); err != nil {
		c.logger.Error("probe toolchain unavailable", zap.Error(err))
		return nil, &ProvisioningError{Err: err}
	}
	c.logger.Info("starting endpoint checks",
		zap.Int("endpoints", len(specs)),
		zap.Int("concurrency", c.concurrency))

	results := make(Report, len(specs))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(c.concurrency)
	for i, spec := range specs {
		i, spec := i, spec
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			results[i] = c.Check(gctx, spec)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s := results.Summary()
	c.logger.Info("endpoint checks finished",
		zap.Int("total", s.Total),
		zap.Int("reachable", s.Reachable),
		zap.Int("dns_failures", s.DNSFailures),
		zap.Int("https_failures", s.HTTPSFailures))
	return results, nil
}

// Check runs both probes for one spec. The HTTPS probe runs whatever the
// DNS outcome.
func (c *Checker) Check(ctx context.Context, spec EndpointSpec) CheckResult {
	candidates := spec.Candidates()
	res := CheckResult{
		Host:    spec.Pattern,
		DNSOK:   c.probeDNS(ctx, candidates),
		HTTPSOK: c.probeHTTPS(ctx, candidates),
	}
	c.logger.Info("endpoint checked",
		zap.String("host", res.Host),
		zap.Bool("dns_ok", res.DNSOK),
		zap.Bool("https_ok", res.HTTPSOK))
	return res
}

func (c *Checker) probeDNS(ctx context.Context, candidates []string) bool {
	for _, host := range candidates {
		addrs, err := c.resolver.LookupHost(ctx, host)
		if err == nil && len(addrs) > 0 {
			c.logger.Debug("dns resolved", zap.String("candidate", host), zap.Strings("addrs", addrs))
			return true
		}
		c.logger.Debug("dns lookup failed", zap.String("candidate", host), zap.Error(err))
	}
	return false
}

func (c *Checker) probeHTTPS(ctx context.Context, candidates []string) bool {
	for _, host := range candidates {
		err := c.prober.Probe(ctx, host)
		if err == nil {
			c.logger.Debug("https reachable", zap.String("candidate", host))
			return true
		}
		c.logger.Debug("https probe failed", zap.String("candidate", host), zap.Error(err))
	}
	return false
}
