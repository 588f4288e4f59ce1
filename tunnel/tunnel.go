// Package tunnel builds tunnels on an edge session. One builder exists
// per wire protocol (TCP, TLS, HTTP and labeled); each collects options
// through fluent setters and then binds with Listen, or binds and
// forwards connections to a local service with ListenAndForward.
//
//	fwd, err := tunnel.NewHTTPBuilder(sess).
//		Domain("app.example.com").
//		AllowCIDR("10.0.0.0/8").
//		ListenAndForward(ctx, upstreamURL)
package tunnel

import (
	"context"
	"errors"
	"net/url"

	"edgetun/options"
	"edgetun/session"
)

// ErrNoSession is returned when a builder without a session is asked
// to bind.
var ErrNoSession = errors.New("tunnel builder has no session")

// Session starts tunnels on the edge. *session.Session implements it.
type Session interface {
	StartTunnel(ctx context.Context, cfg options.TunnelConfig) (session.Tunnel, error)
}

// Tunnel is satisfied by every protocol-specific tunnel handle.
type Tunnel interface {
	session.Tunnel
}

// TunnelBuilder binds a tunnel of type T.
type TunnelBuilder[T Tunnel] interface {
	Listen(ctx context.Context) (T, error)
}

// ForwarderBuilder binds a tunnel of type T and forwards its
// connections to a destination.
type ForwarderBuilder[T Tunnel] interface {
	TunnelBuilder[T]
	ListenAndForward(ctx context.Context, to *url.URL) (*Forwarder, error)
}
