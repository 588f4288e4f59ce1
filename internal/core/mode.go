// Package core is the orchestration layer.  It turns a Config into a
// running agent: one edge session plus a forwarder for every configured
// tunnel.
//
// Architecture layers (bottom → top):
//
//	transport  →  session  →  tunnel  →  core  →  cmd (CLI)
//
// The builder in this package is the single dispatch point from a
// config.TunnelSpec to the protocol-specific tunnel builder.
package core

import "context"

// Mode represents a complete operational mode of the agent.  Each mode
// owns its full lifecycle from session establishment to teardown.
type Mode interface {
	Run(ctx context.Context) error
}
