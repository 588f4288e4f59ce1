package options

import "edgetun/internal/proto"

// TLSOptions configures a TLS tunnel.
type TLSOptions struct {
	Common CommonOpts
	// Domain is the hostname to request on the edge.
	Domain string
	// MutualTLSCAs verify client certificates at the edge.
	MutualTLSCAs [][]byte
	// CertPEM and KeyPEM, when set, are presented by the edge instead of
	// its own certificate.
	CertPEM []byte
	KeyPEM  proto.SecretString
}

func (o TLSOptions) ForwardsTo() string        { return o.Common.forwardsTo() }
func (o TLSOptions) Extra() proto.BindExtra    { return o.Common.extra() }
func (o TLSOptions) Proto() string             { return "tls" }
func (o TLSOptions) Labels() map[string]string { return nil }

func (o TLSOptions) Opts() *proto.BindOpts {
	ep := &proto.TLSEndpoint{
		Hostname:      o.Domain,
		ProxyProto:    o.Common.ProxyProto,
		IPRestriction: o.Common.IPRestriction(),
	}
	if len(o.MutualTLSCAs) > 0 {
		ep.MutualTLSAtEdge = MutualTLSFromCAs(o.MutualTLSCAs)
	}
	if len(o.CertPEM) > 0 || !o.KeyPEM.IsEmpty() {
		ep.TLSTermination = &proto.TLSTermination{
			Cert: append([]byte(nil), o.CertPEM...),
			Key:  o.KeyPEM,
		}
	}
	return &proto.BindOpts{TLS: ep}
}

// WithForwardsTo overrides the forwards-to label.
func (o *TLSOptions) WithForwardsTo(s string) { o.Common.ForwardsTo = s }

// Clone returns an independent copy.
func (o TLSOptions) Clone() TLSOptions {
	o.Common = o.Common.clone()
	o.MutualTLSCAs = cloneCAs(o.MutualTLSCAs)
	o.CertPEM = append([]byte(nil), o.CertPEM...)
	return o
}
