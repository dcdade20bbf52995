package cdn

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/netip"
	"time"

	"github.com/cloudflare/cloudflare-go"
)

// ErrNoAddresses is returned by Run when the source produced no usable
// addresses, before any DNS provider call is made.
var ErrNoAddresses = errors.New("cdn: source produced no addresses")

var discard = log.New(io.Discard, "", log.LstdFlags)

// Source produces the list of candidate IP addresses that the domain's
// A records should point at, in preference order.
type Source interface {
	Fetch(context.Context) ([]netip.Addr, error)
}

// SourceFunc adapts a function to the Source interface.
type SourceFunc func(context.Context) ([]netip.Addr, error)

func (f SourceFunc) Fetch(ctx context.Context) ([]netip.Addr, error) {
	return f(ctx)
}

// Provider replaces the existing address records for domain with one
// record per addr. It returns the number of records created successfully;
// per-record failures reduce the count but are not fatal.
type Provider interface {
	ReplaceDNSRecords(ctx context.Context, domain string, addrs []netip.Addr) (created int, err error)
}

// New returns a Client which replaces the A records of domain with
// addresses fetched from the configured Source on every Run.
func New(domain string, options ...clientOption) (Client, error) {
	if domain == "" {
		return nil, fmt.Errorf("cdn.New: domain cannot be empty")
	}
	c := &client{
		domain: domain,
		logger: discard,
	}
	for i, opt := range options {
		if err := opt(c); err != nil {
			return nil, fmt.Errorf("cdn.New: option %d returned an error: %s", i, err)
		}
	}

	if c.Provider == nil {
		return nil, fmt.Errorf("cdn.New: no DNS provider was registered and there is no default option - use cdn.UsingCloudflareZone or similar")
	}
	if c.Source == nil {
		return nil, fmt.Errorf("cdn.New: no IP source was registered and there is no default option - use cdn.UsingWebSource or similar")
	}

	// this lets us propagate the logger and http client to dependencies that use them if WithLogger or UsingHTTPClient was called before all of the dependencies were registered
	withLogger(c.logger)(c)
	applyHTTPClient(c)
	return c, nil
}

type clientOption func(*client) error

// UsingCloudflareZone registers a Cloudflare DNS provider operating on a
// fixed zone ID.
func UsingCloudflareZone(token string, zoneID string) clientOption {
	return func(c *client) (err error) {
		if c.Provider, err = newCloudflareProvider(token, zoneID); err != nil {
			return fmt.Errorf("cdn.UsingCloudflareZone: error creating cloudflare DNS provider: %w", err)
		}
		return nil
	}
}

// UsingCloudflare registers a Cloudflare DNS provider which discovers the
// zone ID from the domain name on each run.
func UsingCloudflare(token string) clientOption {
	return UsingCloudflareZone(token, "")
}

// UsingProvider registers a custom Provider implementation.
func UsingProvider(provider Provider) clientOption {
	return func(c *client) error {
		if provider == nil {
			return errors.New("provider cannot be nil")
		}
		c.Provider = provider
		return nil
	}
}

// UsingSource registers the source of candidate addresses.
func UsingSource(source Source) clientOption {
	return func(c *client) error {
		if source == nil {
			return errors.New("source cannot be nil")
		}
		c.Source = source
		return nil
	}
}

// UsingWebSource registers a WebSource for the given URL.
func UsingWebSource(sourceURL string, options ...sourceOption) clientOption {
	return func(c *client) error {
		ws, err := WebSource(sourceURL, options...)
		if err != nil {
			return err
		}
		c.Source = ws
		return nil
	}
}

// WithMaxIPs caps how many fetched candidates are used per run.
// Zero means no cap.
func WithMaxIPs(n int) clientOption {
	return func(c *client) error {
		if n < 0 {
			return fmt.Errorf("max IP count cannot be negative: %d", n)
		}
		c.maxIPs = n
		return nil
	}
}

func withLogger(logger *log.Logger) clientOption {
	return func(c *client) error {
		if logger == nil {
			logger = discard
		}
		type setLogger interface {
			SetLogger(*log.Logger)
		}

		switch p := c.Provider.(type) {
		case *cloudflareProvider:
			p.logger = logger
		case setLogger:
			p.SetLogger(logger)
		}

		switch s := c.Source.(type) {
		case *webSource:
			s.logger = logger
		case setLogger:
			s.SetLogger(logger)
		}

		return nil
	}
}

// WithLogger directs the client's (and its dependencies') log output to
// logger. The default is to discard log messages.
func WithLogger(logger *log.Logger) clientOption {
	return func(c *client) error {
		if logger == nil {
			logger = discard
		}
		c.logger = logger
		return nil
	}
}

// UsingHTTPClient supplies the *http.Client used for both the source fetch
// and the provider API calls.
func UsingHTTPClient(httpclient *http.Client) clientOption {
	return func(c *client) error {
		if httpclient == nil {
			httpclient = http.DefaultClient
		}
		c.httpClient = httpclient
		return applyHTTPClient(c)
	}
}

func applyHTTPClient(c *client) error {
	if c.httpClient == nil {
		return nil
	}
	type setHTTPClient interface {
		SetHTTPClient(*http.Client)
	}
	switch s := c.Source.(type) {
	case *webSource:
		s.httpClient = c.httpClient
	case setHTTPClient:
		s.SetHTTPClient(c.httpClient)
	}
	switch p := c.Provider.(type) {
	case *cloudflareProvider:
		cloudflare.HTTPClient(c.httpClient)(p.api)
	case setHTTPClient:
		p.SetHTTPClient(c.httpClient)
	}
	return nil
}

// Client runs one full record refresh per call to Run.
type Client interface {
	Run(ctx context.Context) error
}

type client struct {
	Source
	Provider
	logger     *log.Logger
	httpClient *http.Client
	domain     string
	maxIPs     int
}

func (c *client) Run(ctx context.Context) error {
	addrs, err := c.Fetch(ctx)
	if err != nil {
		c.logger.Printf("error fetching preferred IPs: %s", err)
		return fmt.Errorf("%w: %s", ErrNoAddresses, err)
	}
	if c.maxIPs > 0 && len(addrs) > c.maxIPs {
		c.logger.Printf("limiting to the first %d of %d candidates", c.maxIPs, len(addrs))
		addrs = addrs[:c.maxIPs]
	}
	if len(addrs) == 0 {
		c.logger.Printf("got zero preferred IPs; leaving %s untouched", c.domain)
		return ErrNoAddresses
	}
	c.logger.Printf("got %d preferred IPs: %v", len(addrs), addrs)

	created, err := c.ReplaceDNSRecords(ctx, c.domain, addrs)
	if err != nil {
		return fmt.Errorf("error updating %s with new IPs: %w", c.domain, err)
	}
	c.logger.Printf("created %d/%d records for %s", created, len(addrs), c.domain)
	return nil
}

type logf interface {
	Printf(string, ...any)
}

// clampInterval keeps daemon refreshes at least a minute apart.
func clampInterval(interval time.Duration) time.Duration {
	if interval < 1*time.Minute {
		return 1 * time.Minute
	}
	return interval
}

// RunDaemon starts cdnClient as a goroutine, refreshing records every interval.
//
// A nil logger for a Client supplied by this library indicates that the daemon should send error logs to the logger configured in the client.
// Otherwise the default is to discard log messages.
func RunDaemon(cdnClient Client, ctx context.Context, interval time.Duration, logger logf) {
	interval = clampInterval(interval)
	if logger == nil {
		if c, ok := cdnClient.(*client); ok && c.logger != nil {
			logger = c.logger
		} else {
			logger = discard
		}
	}
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				err := cdnClient.Run(ctx)
				if err != nil {
					logger.Printf("cdn.RunDaemon: %s", err)
				}
			}
		}
	}()
}
