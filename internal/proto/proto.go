// Package proto defines the messages exchanged with the tunnel edge.
//
// Everything here is produced by the agent and consumed by the edge (or
// the other way round for responses). The types carry no behaviour
// beyond encoding: translation from user-facing options lives in package
// options.
package proto

// Request and channel types used on the SSH connection to the edge.
const (
	BindRequest      = "tunnel-bind"
	UnbindRequest    = "tunnel-unbind"
	KeepaliveRequest = "keepalive@openssh.com"
	ConnChannel      = "tunnel-conn"
)

// ProxyProto selects the PROXY protocol header the edge prepends to
// forwarded connections.
type ProxyProto int

const (
	ProxyProtoNone ProxyProto = 0
	ProxyProtoV1   ProxyProto = 1
	ProxyProtoV2   ProxyProto = 2
)

func (p ProxyProto) String() string {
	switch p {
	case ProxyProtoNone:
		return "none"
	case ProxyProtoV1:
		return "v1"
	case ProxyProtoV2:
		return "v2"
	default:
		return "unknown"
	}
}

// IPRestriction limits which client addresses may connect at the edge.
type IPRestriction struct {
	AllowCIDRs []string `cbor:"allow_cidrs"`
	DenyCIDRs  []string `cbor:"deny_cidrs"`
}

// Oauth protects an HTTP endpoint behind an OAuth login.
type Oauth struct {
	Provider     string       `cbor:"provider"`
	ClientID     string       `cbor:"client_id"`
	ClientSecret SecretString `cbor:"client_secret"`
	// SealedClientSecret is filled by provisioning paths that hand the
	// edge an already encrypted secret. The agent never sets it.
	SealedClientSecret []byte   `cbor:"sealed_client_secret"`
	AllowEmails        []string `cbor:"allow_emails"`
	AllowDomains       []string `cbor:"allow_domains"`
	Scopes             []string `cbor:"scopes"`
}

// MutualTLS carries the CA bundle used to verify client certificates.
type MutualTLS struct {
	MutualTLSCA []byte `cbor:"mutual_tls_ca"`
}

// BasicAuthCredential is a single username/password pair.
type BasicAuthCredential struct {
	Username string       `cbor:"username"`
	Password SecretString `cbor:"password"`
}

// BasicAuth protects an HTTP endpoint with HTTP basic authentication.
type BasicAuth struct {
	Credentials []BasicAuthCredential `cbor:"credentials"`
}

// CircuitBreaker rejects requests at the edge when the upstream error
// rate crosses ErrorThreshold (0..1).
type CircuitBreaker struct {
	ErrorThreshold float64 `cbor:"error_threshold"`
}

// TLSTermination configures the certificate the edge presents.
type TLSTermination struct {
	Cert      []byte       `cbor:"cert"`
	Key       SecretString `cbor:"key"`
	SealedKey []byte       `cbor:"sealed_key"`
}

// TCPEndpoint binds a raw TCP address on the edge.
type TCPEndpoint struct {
	Addr          string         `cbor:"addr"`
	ProxyProto    ProxyProto     `cbor:"proxy_proto"`
	IPRestriction *IPRestriction `cbor:"ip_restriction,omitempty"`
}

// TLSEndpoint binds a TLS hostname on the edge.
type TLSEndpoint struct {
	Hostname        string          `cbor:"hostname"`
	ProxyProto      ProxyProto      `cbor:"proxy_proto"`
	IPRestriction   *IPRestriction  `cbor:"ip_restriction,omitempty"`
	MutualTLSAtEdge *MutualTLS      `cbor:"mutual_tls_at_edge,omitempty"`
	TLSTermination  *TLSTermination `cbor:"tls_termination,omitempty"`
}

// HTTPEndpoint binds an HTTP(S) hostname on the edge.
type HTTPEndpoint struct {
	Hostname              string          `cbor:"hostname"`
	ProxyProto            ProxyProto      `cbor:"proxy_proto"`
	IPRestriction         *IPRestriction  `cbor:"ip_restriction,omitempty"`
	Compression           bool            `cbor:"compression"`
	CircuitBreaker        *CircuitBreaker `cbor:"circuit_breaker,omitempty"`
	BasicAuth             *BasicAuth      `cbor:"basic_auth,omitempty"`
	OAuth                 *Oauth          `cbor:"oauth,omitempty"`
	MutualTLSCA           *MutualTLS      `cbor:"mutual_tls_ca,omitempty"`
	WebsocketTCPConverter bool            `cbor:"websocket_tcp_converter"`
}

// BindOpts holds exactly one endpoint configuration, matching the
// protocol named in the enclosing BindReq.
type BindOpts struct {
	TCP  *TCPEndpoint  `cbor:"tcp,omitempty"`
	TLS  *TLSEndpoint  `cbor:"tls,omitempty"`
	HTTP *HTTPEndpoint `cbor:"http,omitempty"`
}

// BindExtra is agent-side data attached to every bind.
type BindExtra struct {
	Token       string `cbor:"token"`
	IPPolicyRef string `cbor:"ip_policy_ref"`
	Metadata    string `cbor:"metadata"`
}

// BindReq asks the edge to establish a tunnel. Labeled tunnels leave
// Proto empty and Opts nil and carry Labels instead.
type BindReq struct {
	ID         string            `cbor:"id"`
	Proto      string            `cbor:"proto"`
	ForwardsTo string            `cbor:"forwards_to"`
	Opts       *BindOpts         `cbor:"opts,omitempty"`
	Labels     map[string]string `cbor:"labels,omitempty"`
	Extra      BindExtra         `cbor:"extra"`
}

// Error kinds reported by the edge in BindResp.ErrorKind.
const (
	ErrorKindRejected     = "rejected"
	ErrorKindUnauthorized = "unauthorized"
)

// BindResp is the edge's answer to a BindReq.
type BindResp struct {
	ReqID     string `cbor:"req_id"`
	TunnelID  string `cbor:"tunnel_id"`
	URL       string `cbor:"url"`
	Proto     string `cbor:"proto"`
	ErrorKind string `cbor:"error_kind,omitempty"`
	Error     string `cbor:"error,omitempty"`
}

// UnbindReq releases a tunnel on the edge.
type UnbindReq struct {
	TunnelID string `cbor:"tunnel_id"`
}

// ConnHeader is the extra data of a ConnChannel open: which tunnel the
// connection belongs to and who is on the other end.
type ConnHeader struct {
	TunnelID   string `cbor:"tunnel_id"`
	ClientAddr string `cbor:"client_addr"`
	Proto      string `cbor:"proto"`
}
