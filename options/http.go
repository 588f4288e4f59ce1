package options

import "edgetun/internal/proto"

// BasicAuthCredential is a username/password pair accepted at the edge.
type BasicAuthCredential struct {
	Username string
	Password proto.SecretString
}

// HTTPOptions configures an HTTP or HTTPS tunnel.
type HTTPOptions struct {
	Common CommonOpts
	// Domain is the hostname to request on the edge.
	Domain string
	// Scheme is "http" or "https"; empty means https.
	Scheme string

	BasicAuth    []BasicAuthCredential
	OAuth        *OAuthOptions
	MutualTLSCAs [][]byte

	Compression bool
	// CircuitBreaker is the upstream error ratio above which the edge
	// stops forwarding requests; 0 disables it.
	CircuitBreaker         float64
	WebsocketTCPConversion bool
}

func (o HTTPOptions) ForwardsTo() string        { return o.Common.forwardsTo() }
func (o HTTPOptions) Extra() proto.BindExtra    { return o.Common.extra() }
func (o HTTPOptions) Labels() map[string]string { return nil }

func (o HTTPOptions) Proto() string {
	if o.Scheme == "" {
		return "https"
	}
	return o.Scheme
}

func (o HTTPOptions) Opts() *proto.BindOpts {
	ep := &proto.HTTPEndpoint{
		Hostname:              o.Domain,
		ProxyProto:            o.Common.ProxyProto,
		IPRestriction:         o.Common.IPRestriction(),
		Compression:           o.Compression,
		WebsocketTCPConverter: o.WebsocketTCPConversion,
	}
	if o.CircuitBreaker > 0 {
		ep.CircuitBreaker = &proto.CircuitBreaker{ErrorThreshold: o.CircuitBreaker}
	}
	if len(o.BasicAuth) > 0 {
		creds := make([]proto.BasicAuthCredential, len(o.BasicAuth))
		for i, c := range o.BasicAuth {
			creds[i] = proto.BasicAuthCredential{Username: c.Username, Password: c.Password}
		}
		ep.BasicAuth = &proto.BasicAuth{Credentials: creds}
	}
	if o.OAuth != nil {
		ep.OAuth = o.OAuth.ToProto()
	}
	if len(o.MutualTLSCAs) > 0 {
		ep.MutualTLSCA = MutualTLSFromCAs(o.MutualTLSCAs)
	}
	return &proto.BindOpts{HTTP: ep}
}

// WithForwardsTo overrides the forwards-to label.
func (o *HTTPOptions) WithForwardsTo(s string) { o.Common.ForwardsTo = s }

// Clone returns an independent copy.
func (o HTTPOptions) Clone() HTTPOptions {
	o.Common = o.Common.clone()
	o.BasicAuth = append([]BasicAuthCredential(nil), o.BasicAuth...)
	o.OAuth = o.OAuth.Clone()
	o.MutualTLSCAs = cloneCAs(o.MutualTLSCAs)
	return o
}
