// Package transport opens the upstream side of a forwarded connection.
// A forwarder pairs every connection accepted from the edge with one
// dialed here, plain TCP or TLS depending on the destination URL.
package transport

import (
	"context"
	"crypto/tls"
	"fmt"
	"net"
	"net/url"
	"time"

	"edgetun/internal/errors"
	"edgetun/util"
)

// DefaultDialTimeout bounds a single upstream dial.
const DefaultDialTimeout = 10 * time.Second

// Dialer opens outbound network connections.
type Dialer interface {
	// Dial establishes a connection to the given network address.
	Dial(ctx context.Context, network, address string) (net.Conn, error)

	// Close releases any long-lived resources held by the dialer.
	// Stateless dialers return nil.
	Close() error
}

// Upstream is a resolved forwarding destination.
type Upstream struct {
	URL    *url.URL
	Addr   string // host:port to dial
	Dialer Dialer
}

// Dial connects to the upstream address. Failures are returned as
// *errors.NetworkError.
func (u *Upstream) Dial(ctx context.Context) (net.Conn, error) {
	conn, err := u.Dialer.Dial(ctx, "tcp", u.Addr)
	if err != nil {
		return nil, errors.Wrap("dial upstream", u.Addr, err)
	}
	return conn, nil
}

// ForURL picks a dialer for the destination URL: tcp:// and http://
// dial plain TCP, https:// and tls:// dial TLS verified against the
// URL's host name.
func ForURL(u *url.URL) (*Upstream, error) {
	addr, err := util.HostPort(u)
	if err != nil {
		return nil, err
	}

	var d Dialer
	switch u.Scheme {
	case "tcp", "http":
		d = &TCPDialer{Timeout: DefaultDialTimeout}
	case "https", "tls":
		d = &TLSDialer{
			Timeout: DefaultDialTimeout,
			Config:  &tls.Config{ServerName: u.Hostname(), MinVersion: tls.VersionTLS12},
		}
	default:
		return nil, fmt.Errorf("unsupported upstream scheme %q", u.Scheme)
	}
	return &Upstream{URL: u, Addr: addr, Dialer: d}, nil
}
