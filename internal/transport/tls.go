package transport

import (
	"context"
	"crypto/tls"
	"net"
	"time"
)

// TLSDialer establishes TLS connections, completing the handshake
// before returning.
type TLSDialer struct {
	Timeout time.Duration
	Config  *tls.Config
}

// Dial connects to address and performs the TLS handshake.
func (d *TLSDialer) Dial(ctx context.Context, network, address string) (net.Conn, error) {
	dialer := tls.Dialer{
		NetDialer: &net.Dialer{Timeout: d.Timeout},
		Config:    d.Config,
	}
	return dialer.DialContext(ctx, network, address)
}

// Close is a no-op for stateless TLS dialers.
func (d *TLSDialer) Close() error { return nil }
