package options

import "edgetun/internal/proto"

// CommonOpts are the settings shared by every tunnel type.
type CommonOpts struct {
	// Restrictions placed on the origin of incoming connections to the edge.
	CIDRRestrictions CIDRRestrictions
	// The PROXY protocol version the edge should send, none by default.
	ProxyProto proto.ProxyProto
	// Tunnel-specific opaque metadata, viewable via the edge API.
	Metadata string
	// Backend description shown by the edge. Informational only; falls
	// back to DefaultForwardsTo when empty.
	ForwardsTo string
}

// IPRestriction returns the wire restriction, or nil when no CIDR has
// been allowed or denied.
func (c CommonOpts) IPRestriction() *proto.IPRestriction {
	if c.CIDRRestrictions.IsEmpty() {
		return nil
	}
	return c.CIDRRestrictions.toProto()
}

func (c CommonOpts) forwardsTo() string {
	if c.ForwardsTo != "" {
		return c.ForwardsTo
	}
	return DefaultForwardsTo()
}

func (c CommonOpts) extra() proto.BindExtra {
	return proto.BindExtra{Metadata: c.Metadata}
}

func (c CommonOpts) clone() CommonOpts {
	out := c
	out.CIDRRestrictions = c.CIDRRestrictions.clone()
	return out
}
