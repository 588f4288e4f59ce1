package tunnel

import (
	"bytes"
	"net/url"
	"strings"

	"edgetun/internal/proto"
	"edgetun/options"
	"edgetun/session"
)

// ── Tunnel handles ───────────────────────────────────────────────────

// TCPTunnel is a bound TCP endpoint.
type TCPTunnel struct{ session.Tunnel }

// RemoteAddr returns the host:port the edge listens on.
func (t TCPTunnel) RemoteAddr() string {
	return strings.TrimPrefix(t.URL(), "tcp://")
}

// TLSTunnel is a bound TLS endpoint.
type TLSTunnel struct{ session.Tunnel }

// Hostname returns the host name the edge serves.
func (t TLSTunnel) Hostname() string { return urlHost(t.URL()) }

// HTTPTunnel is a bound HTTP or HTTPS endpoint.
type HTTPTunnel struct{ session.Tunnel }

// Hostname returns the host name the edge serves.
func (t HTTPTunnel) Hostname() string { return urlHost(t.URL()) }

// LabeledTunnel is a tunnel routed to an edge by labels.
type LabeledTunnel struct{ session.Tunnel }

func urlHost(raw string) string {
	u, err := url.Parse(raw)
	if err != nil {
		return ""
	}
	return u.Hostname()
}

// ── TCP ──────────────────────────────────────────────────────────────

// TCPTunnelBuilder configures and binds TCP tunnels.
type TCPTunnelBuilder struct {
	builder[options.TCPOptions, *options.TCPOptions, TCPTunnel]
}

// NewTCPBuilder returns a TCP builder with default options.
func NewTCPBuilder(s Session) *TCPTunnelBuilder {
	return &TCPTunnelBuilder{newBuilder[options.TCPOptions, *options.TCPOptions](s,
		func(t session.Tunnel) TCPTunnel { return TCPTunnel{t} })}
}

// RemoteAddr requests a specific address on the edge.
func (b *TCPTunnelBuilder) RemoteAddr(addr string) *TCPTunnelBuilder {
	b.opts.RemoteAddr = addr
	return b
}

func (b *TCPTunnelBuilder) AllowCIDR(cidr ...string) *TCPTunnelBuilder {
	b.opts.Common.CIDRRestrictions.Allow(cidr...)
	return b
}

func (b *TCPTunnelBuilder) DenyCIDR(cidr ...string) *TCPTunnelBuilder {
	b.opts.Common.CIDRRestrictions.Deny(cidr...)
	return b
}

func (b *TCPTunnelBuilder) ProxyProto(p proto.ProxyProto) *TCPTunnelBuilder {
	b.opts.Common.ProxyProto = p
	return b
}

func (b *TCPTunnelBuilder) Metadata(m string) *TCPTunnelBuilder {
	b.opts.Common.Metadata = m
	return b
}

func (b *TCPTunnelBuilder) ForwardsTo(s string) *TCPTunnelBuilder {
	b.opts.Common.ForwardsTo = s
	return b
}

// Clone returns an independent copy sharing the session.
func (b *TCPTunnelBuilder) Clone() *TCPTunnelBuilder {
	return &TCPTunnelBuilder{b.clone()}
}

// ── TLS ──────────────────────────────────────────────────────────────

// TLSTunnelBuilder configures and binds TLS tunnels.
type TLSTunnelBuilder struct {
	builder[options.TLSOptions, *options.TLSOptions, TLSTunnel]
}

// NewTLSBuilder returns a TLS builder with default options.
func NewTLSBuilder(s Session) *TLSTunnelBuilder {
	return &TLSTunnelBuilder{newBuilder[options.TLSOptions, *options.TLSOptions](s,
		func(t session.Tunnel) TLSTunnel { return TLSTunnel{t} })}
}

// Domain requests a host name on the edge.
func (b *TLSTunnelBuilder) Domain(d string) *TLSTunnelBuilder {
	b.opts.Domain = d
	return b
}

// MutualTLSCA appends a PEM CA bundle used to verify client
// certificates at the edge.
func (b *TLSTunnelBuilder) MutualTLSCA(ca []byte) *TLSTunnelBuilder {
	b.opts.MutualTLSCAs = append(b.opts.MutualTLSCAs, bytes.Clone(ca))
	return b
}

// Termination makes the edge present certPEM/keyPEM to clients.
func (b *TLSTunnelBuilder) Termination(certPEM, keyPEM []byte) *TLSTunnelBuilder {
	b.opts.CertPEM = bytes.Clone(certPEM)
	b.opts.KeyPEM = proto.NewSecretString(string(keyPEM))
	return b
}

func (b *TLSTunnelBuilder) AllowCIDR(cidr ...string) *TLSTunnelBuilder {
	b.opts.Common.CIDRRestrictions.Allow(cidr...)
	return b
}

func (b *TLSTunnelBuilder) DenyCIDR(cidr ...string) *TLSTunnelBuilder {
	b.opts.Common.CIDRRestrictions.Deny(cidr...)
	return b
}

func (b *TLSTunnelBuilder) ProxyProto(p proto.ProxyProto) *TLSTunnelBuilder {
	b.opts.Common.ProxyProto = p
	return b
}

func (b *TLSTunnelBuilder) Metadata(m string) *TLSTunnelBuilder {
	b.opts.Common.Metadata = m
	return b
}

func (b *TLSTunnelBuilder) ForwardsTo(s string) *TLSTunnelBuilder {
	b.opts.Common.ForwardsTo = s
	return b
}

// Clone returns an independent copy sharing the session.
func (b *TLSTunnelBuilder) Clone() *TLSTunnelBuilder {
	return &TLSTunnelBuilder{b.clone()}
}

// ── HTTP ─────────────────────────────────────────────────────────────

// HTTPTunnelBuilder configures and binds HTTP and HTTPS tunnels.
type HTTPTunnelBuilder struct {
	builder[options.HTTPOptions, *options.HTTPOptions, HTTPTunnel]
}

// NewHTTPBuilder returns an HTTPS builder with default options.
func NewHTTPBuilder(s Session) *HTTPTunnelBuilder {
	return &HTTPTunnelBuilder{newBuilder[options.HTTPOptions, *options.HTTPOptions](s,
		func(t session.Tunnel) HTTPTunnel { return HTTPTunnel{t} })}
}

// Domain requests a host name on the edge.
func (b *HTTPTunnelBuilder) Domain(d string) *HTTPTunnelBuilder {
	b.opts.Domain = d
	return b
}

// Scheme selects "http" or "https" (the default).
func (b *HTTPTunnelBuilder) Scheme(s string) *HTTPTunnelBuilder {
	b.opts.Scheme = s
	return b
}

// BasicAuth adds a credential the edge will accept.
func (b *HTTPTunnelBuilder) BasicAuth(username, password string) *HTTPTunnelBuilder {
	b.opts.BasicAuth = append(b.opts.BasicAuth, options.BasicAuthCredential{
		Username: username,
		Password: proto.NewSecretString(password),
	})
	return b
}

// OAuth puts an OAuth login in front of the endpoint.
func (b *HTTPTunnelBuilder) OAuth(o *options.OAuthOptions) *HTTPTunnelBuilder {
	b.opts.OAuth = o.Clone()
	return b
}

// MutualTLSCA appends a PEM CA bundle used to verify client
// certificates at the edge.
func (b *HTTPTunnelBuilder) MutualTLSCA(ca []byte) *HTTPTunnelBuilder {
	b.opts.MutualTLSCAs = append(b.opts.MutualTLSCAs, bytes.Clone(ca))
	return b
}

func (b *HTTPTunnelBuilder) Compression(on bool) *HTTPTunnelBuilder {
	b.opts.Compression = on
	return b
}

// CircuitBreaker sets the upstream error ratio at which the edge stops
// forwarding requests.
func (b *HTTPTunnelBuilder) CircuitBreaker(ratio float64) *HTTPTunnelBuilder {
	b.opts.CircuitBreaker = ratio
	return b
}

func (b *HTTPTunnelBuilder) WebsocketTCPConversion(on bool) *HTTPTunnelBuilder {
	b.opts.WebsocketTCPConversion = on
	return b
}

func (b *HTTPTunnelBuilder) AllowCIDR(cidr ...string) *HTTPTunnelBuilder {
	b.opts.Common.CIDRRestrictions.Allow(cidr...)
	return b
}

func (b *HTTPTunnelBuilder) DenyCIDR(cidr ...string) *HTTPTunnelBuilder {
	b.opts.Common.CIDRRestrictions.Deny(cidr...)
	return b
}

func (b *HTTPTunnelBuilder) ProxyProto(p proto.ProxyProto) *HTTPTunnelBuilder {
	b.opts.Common.ProxyProto = p
	return b
}

func (b *HTTPTunnelBuilder) Metadata(m string) *HTTPTunnelBuilder {
	b.opts.Common.Metadata = m
	return b
}

func (b *HTTPTunnelBuilder) ForwardsTo(s string) *HTTPTunnelBuilder {
	b.opts.Common.ForwardsTo = s
	return b
}

// Clone returns an independent copy sharing the session.
func (b *HTTPTunnelBuilder) Clone() *HTTPTunnelBuilder {
	return &HTTPTunnelBuilder{b.clone()}
}

// ── Labeled ──────────────────────────────────────────────────────────

// LabeledTunnelBuilder configures and binds labeled tunnels.
type LabeledTunnelBuilder struct {
	builder[options.LabeledOptions, *options.LabeledOptions, LabeledTunnel]
}

// NewLabeledBuilder returns a labeled builder with no labels.
func NewLabeledBuilder(s Session) *LabeledTunnelBuilder {
	return &LabeledTunnelBuilder{newBuilder[options.LabeledOptions, *options.LabeledOptions](s,
		func(t session.Tunnel) LabeledTunnel { return LabeledTunnel{t} })}
}

// Label adds or replaces a routing label.
func (b *LabeledTunnelBuilder) Label(key, value string) *LabeledTunnelBuilder {
	if b.opts.LabelPairs == nil {
		b.opts.LabelPairs = make(map[string]string)
	}
	b.opts.LabelPairs[key] = value
	return b
}

func (b *LabeledTunnelBuilder) Metadata(m string) *LabeledTunnelBuilder {
	b.opts.Common.Metadata = m
	return b
}

func (b *LabeledTunnelBuilder) ForwardsTo(s string) *LabeledTunnelBuilder {
	b.opts.Common.ForwardsTo = s
	return b
}

// Clone returns an independent copy sharing the session.
func (b *LabeledTunnelBuilder) Clone() *LabeledTunnelBuilder {
	return &LabeledTunnelBuilder{b.clone()}
}
