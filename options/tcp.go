package options

import "edgetun/internal/proto"

// TCPOptions configures a raw TCP tunnel.
type TCPOptions struct {
	Common CommonOpts
	// RemoteAddr is the TCP address to request on the edge, empty to let
	// the edge choose.
	RemoteAddr string
}

func (o TCPOptions) ForwardsTo() string        { return o.Common.forwardsTo() }
func (o TCPOptions) Extra() proto.BindExtra    { return o.Common.extra() }
func (o TCPOptions) Proto() string             { return "tcp" }
func (o TCPOptions) Labels() map[string]string { return nil }

func (o TCPOptions) Opts() *proto.BindOpts {
	return &proto.BindOpts{TCP: &proto.TCPEndpoint{
		Addr:          o.RemoteAddr,
		ProxyProto:    o.Common.ProxyProto,
		IPRestriction: o.Common.IPRestriction(),
	}}
}

// WithForwardsTo overrides the forwards-to label.
func (o *TCPOptions) WithForwardsTo(s string) { o.Common.ForwardsTo = s }

// Clone returns an independent copy.
func (o TCPOptions) Clone() TCPOptions {
	o.Common = o.Common.clone()
	return o
}
