package options

import "edgetun/internal/proto"

// TunnelConfig is the read-only view of an option bundle that a session
// turns into a bind request.
//
// Bundles implement it with value receivers, so both a bundle and a
// pointer to one satisfy it with identical results.
type TunnelConfig interface {
	// ForwardsTo is informational metadata describing the backend.
	ForwardsTo() string
	// Extra is agent-side data sent along with the bind.
	Extra() proto.BindExtra
	// Proto names the tunnel protocol; empty for labeled tunnels.
	Proto() string
	// Opts is the endpoint configuration, nil for labeled tunnels.
	Opts() *proto.BindOpts
	// Labels selects the edge for labeled tunnels, nil otherwise.
	Labels() map[string]string
}
