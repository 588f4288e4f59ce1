// Package options holds the per-protocol tunnel option bundles and their
// translation into bind requests.
//
// Every bundle embeds a CommonOpts and implements TunnelConfig with value
// receivers, so a bundle and a pointer to it present the same view to the
// session. Translation is total: nothing here validates CIDR strings,
// credentials or certificate bytes; the edge is the judge of those.
package options
