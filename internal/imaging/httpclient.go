package imaging

import (
	"context"
	"net"
	"net/http"
	"time"

	"github.com/hashicorp/go-cleanhttp"
	"github.com/rs/dnscache"
	"golang.org/x/sync/semaphore"
)

// maxParallelLookups caps concurrent DNS lookups from a single client.
const maxParallelLookups = 25

// NewHTTPClient returns a pooled client whose dialer resolves hosts through
// resolver. A nil resolver keeps the default dialer. Timeouts are applied
// per request by the caller through the context.
func NewHTTPClient(resolver *dnscache.Resolver) *http.Client {
	transport := cleanhttp.DefaultPooledTransport()

	if resolver != nil {
		dialer := &net.Dialer{
			Timeout:   30 * time.Second,
			KeepAlive: 30 * time.Second,
		}
		sem := semaphore.NewWeighted(maxParallelLookups)
		transport.DialContext = func(ctx context.Context, network, addr string) (net.Conn, error) {
			host, port, err := net.SplitHostPort(addr)
			if err != nil {
				return nil, err
			}
			if err := sem.Acquire(ctx, 1); err != nil {
				return nil, err
			}
			ips, err := resolver.LookupHost(ctx, host)
			sem.Release(1)
			if err != nil {
				return nil, err
			}
			if len(ips) == 0 {
				return nil, &net.DNSError{Err: "no addresses", Name: host, IsNotFound: true}
			}

			var conn net.Conn
			for _, ip := range ips {
				conn, err = dialer.DialContext(ctx, network, net.JoinHostPort(ip, port))
				if err == nil {
					return conn, nil
				}
			}
			return nil, err
		}
	}

	return &http.Client{Transport: transport}
}

// RefreshDNS refreshes resolver on every tick of interval until ctx is done.
// Entries that were not used since the previous refresh are dropped.
func RefreshDNS(ctx context.Context, resolver *dnscache.Resolver, interval time.Duration) {
	if resolver == nil || interval <= 0 {
		return
	}

	t := time.NewTicker(interval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			resolver.Refresh(true)
		}
	}
}
