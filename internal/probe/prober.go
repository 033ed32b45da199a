// Package probe checks whether image URLs answer at all. It is advisory: a failed
// probe never invalidates an upload.
package probe

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strings"
	"syscall"
	"time"

	gocache "github.com/patrickmn/go-cache"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"
)

// Options tunes a Prober. Zero values fall back to defaults.
type Options struct {
	Timeout     time.Duration
	Workers     int
	RatePerHost float64
	Burst       int
	CacheTTL    time.Duration
	UserAgent   string
	// AllowPrivate lets probes reach loopback, private and link-local addresses.
	AllowPrivate bool
}

var errBlockedAddress = errors.New("probe: address not allowed")

// Prober issues HEAD requests for image URLs.
type Prober struct {
	client    *http.Client
	limiter   *HostLimiter
	cache     *gocache.Cache
	sf        singleflight.Group
	timeout   time.Duration
	workers   int
	userAgent string
}

func New(opts Options) *Prober {
	if opts.Timeout <= 0 {
		opts.Timeout = 5 * time.Second
	}
	if opts.Workers <= 0 {
		opts.Workers = 8
	}
	if opts.CacheTTL <= 0 {
		opts.CacheTTL = 10 * time.Minute
	}
	if opts.UserAgent == "" {
		opts.UserAgent = "trivia-board-service/1.0"
	}

	dialer := &net.Dialer{Timeout: opts.Timeout}
	if !opts.AllowPrivate {
		dialer.Control = publicOnly
	}

	return &Prober{
		client: &http.Client{
			Timeout: opts.Timeout,
			// no proxy: every hop, redirects included, dials through the guarded dialer
			Transport: &http.Transport{
				DialContext:           dialer.DialContext,
				TLSHandshakeTimeout:   opts.Timeout,
				ResponseHeaderTimeout: opts.Timeout,
				MaxIdleConnsPerHost:   2,
				IdleConnTimeout:       30 * time.Second,
			},
			CheckRedirect: func(req *http.Request, via []*http.Request) error {
				if len(via) >= 3 {
					return fmt.Errorf("stopped after 3 redirects")
				}
				return nil
			},
		},
		limiter:   NewHostLimiter(opts.RatePerHost, opts.Burst),
		cache:     gocache.New(opts.CacheTTL, 2*opts.CacheTTL),
		timeout:   opts.Timeout,
		workers:   opts.Workers,
		userAgent: opts.UserAgent,
	}
}

// Probe checks every url and waits for all of them. The result maps each url to
// whether any HTTP response came back.
func (p *Prober) Probe(ctx context.Context, urls []string) map[string]bool {
	results := make([]bool, len(urls))

	var g errgroup.Group
	g.SetLimit(p.workers)
	for i, u := range urls {
		i, u := i, u
		g.Go(func() error {
			results[i] = p.reachable(ctx, u)
			return nil
		})
	}
	_ = g.Wait()

	out := make(map[string]bool, len(urls))
	for i, u := range urls {
		out[u] = results[i]
	}
	return out
}

func (p *Prober) reachable(ctx context.Context, rawURL string) bool {
	if strings.HasPrefix(rawURL, "data:") {
		return true
	}
	if ctx.Err() != nil {
		return false
	}
	if v, ok := p.cache.Get(rawURL); ok {
		return v.(bool)
	}

	// the shared request outlives any single caller, so one caller leaving does not
	// fail the others waiting on the same URL
	flight := p.sf.DoChan(rawURL, func() (interface{}, error) {
		probeCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), p.timeout)
		defer cancel()
		ok := p.head(probeCtx, rawURL)
		p.cache.Set(rawURL, ok, gocache.DefaultExpiration)
		return ok, nil
	})
	select {
	case res := <-flight:
		return res.Val.(bool)
	case <-ctx.Done():
		return false
	}
}

// head treats any response, whatever its status, as reachable. Hosts that block
// HEAD or cross-origin access still prove the URL resolves.
func (p *Prober) head(ctx context.Context, rawURL string) bool {
	if err := p.limiter.Wait(ctx, rawURL); err != nil {
		return false
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodHead, rawURL, nil)
	if err != nil {
		return false
	}
	req.Header.Set("User-Agent", p.userAgent)

	resp, err := p.client.Do(req)
	if err != nil {
		return false
	}
	_ = resp.Body.Close()
	return true
}

// publicOnly refuses connections to addresses that are not publicly routable.
func publicOnly(network, address string, _ syscall.RawConn) error {
	host, _, err := net.SplitHostPort(address)
	if err != nil {
		return err
	}
	ip := net.ParseIP(host)
	if ip == nil {
		return fmt.Errorf("%w: %s", errBlockedAddress, address)
	}
	if ip.IsLoopback() || ip.IsPrivate() || ip.IsUnspecified() ||
		ip.IsLinkLocalUnicast() || ip.IsLinkLocalMulticast() ||
		ip.IsInterfaceLocalMulticast() || ip.IsMulticast() {
		return fmt.Errorf("%w: %s", errBlockedAddress, address)
	}
	return nil
}
