// Package config defines the runtime configuration for the edgetun agent
// and provides helpers for parsing server and tunnel specifications.
package config

import (
	"fmt"
	"net/url"
	"regexp"
	"strconv"
	"strings"
	"time"
)

// Config holds every tuneable for a single agent session.
type Config struct {
	// ── Edge connection ──────────────────────────────────────────────
	Server         string        `yaml:"server"` // raw [user@]host[:port]
	ServerUser     string        `yaml:"-"`
	ServerHost     string        `yaml:"-"`
	ServerPort     int           `yaml:"-"`
	Authtoken      string        `yaml:"authtoken"`
	SSHKeyPath     string        `yaml:"ssh_key"`
	SSHPassword    bool          `yaml:"-"` // true → prompt interactively
	UseSSHAgent    bool          `yaml:"ssh_agent"`
	StrictHostKey  bool          `yaml:"strict_host_key"`
	KnownHostsPath string        `yaml:"known_hosts"`
	ConnTimeout    time.Duration `yaml:"conn_timeout"`
	KeepAlive      time.Duration `yaml:"keep_alive"`

	// ── Observability ────────────────────────────────────────────────
	MetricsAddr string `yaml:"metrics_addr"` // empty disables the endpoint
	Verbose     int    `yaml:"verbose"`

	// ── Tunnels ──────────────────────────────────────────────────────
	Tunnels []TunnelSpec `yaml:"tunnels"`
}

// TunnelSpec describes one tunnel to bind and the local service its
// connections are forwarded to.
type TunnelSpec struct {
	Name      string `yaml:"name"`
	Proto     string `yaml:"proto"` // tcp, tls, http, https or labeled
	ForwardTo string `yaml:"forward_to"`

	RemoteAddr string            `yaml:"remote_addr"` // tcp
	Domain     string            `yaml:"domain"`      // tls, http, https
	Labels     map[string]string `yaml:"labels"`      // labeled

	AllowCIDRs []string `yaml:"allow_cidrs"`
	DenyCIDRs  []string `yaml:"deny_cidrs"`
	ProxyProto int      `yaml:"proxy_proto"`
	Metadata   string   `yaml:"metadata"`

	// HTTP only.
	BasicAuth              []string   `yaml:"basic_auth"` // user:pass
	OAuth                  *OAuthSpec `yaml:"oauth"`
	Compression            bool       `yaml:"compression"`
	CircuitBreaker         float64    `yaml:"circuit_breaker"`
	WebsocketTCPConversion bool       `yaml:"websocket_tcp_conversion"`

	// HTTP and TLS.
	MutualTLSCAs []string `yaml:"mutual_tls_cas"` // PEM file paths

	// TLS termination at the edge.
	CertFile string `yaml:"cert_file"`
	KeyFile  string `yaml:"key_file"`
}

// OAuthSpec configures an OAuth login in front of an HTTP tunnel.
type OAuthSpec struct {
	Provider     string   `yaml:"provider"`
	ClientID     string   `yaml:"client_id"`
	ClientSecret string   `yaml:"client_secret"`
	AllowEmails  []string `yaml:"allow_emails"`
	AllowDomains []string `yaml:"allow_domains"`
	Scopes       []string `yaml:"scopes"`
}

// Protocols lists the accepted TunnelSpec.Proto values.
var Protocols = []string{"tcp", "tls", "http", "https", "labeled"}

// DisplayName returns Name, or a name derived from the protocol and
// destination when none was given.
func (t TunnelSpec) DisplayName() string {
	if t.Name != "" {
		return t.Name
	}
	return t.Proto + "→" + t.ForwardTo
}

// ForwardURL parses ForwardTo. A bare port means localhost, and a
// missing scheme is filled in from the tunnel protocol: "http" for
// HTTP-like tunnels and "tcp" otherwise.
func (t TunnelSpec) ForwardURL() (*url.URL, error) {
	raw := strings.TrimSpace(t.ForwardTo)
	if raw == "" {
		return nil, fmt.Errorf("no forward address")
	}
	if _, err := strconv.Atoi(raw); err == nil {
		raw = "localhost:" + raw
	}
	if !strings.Contains(raw, "://") {
		raw = defaultUpstreamScheme(t.Proto) + "://" + raw
	}
	u, err := url.Parse(raw)
	if err != nil {
		return nil, err
	}
	if u.Host == "" {
		return nil, fmt.Errorf("forward address %q has no host", t.ForwardTo)
	}
	return u, nil
}

func defaultUpstreamScheme(proto string) string {
	switch proto {
	case "http", "https", "labeled":
		return "http"
	default:
		return "tcp"
	}
}

// ── Server-spec parser ───────────────────────────────────────────────

// serverRe matches [user@]host[:port].
var serverRe = regexp.MustCompile(`^(?:([^@]+)@)?([^:@]+)(?::(\d+))?$`)

// ParseServerSpec extracts user, host, and port from a string such as
// "agent@edge.example.com:2222". Port defaults to 22 and user is empty
// when omitted.
func ParseServerSpec(spec string) (user, host string, port int, err error) {
	m := serverRe.FindStringSubmatch(spec)
	if m == nil {
		return "", "", 0, fmt.Errorf("invalid server spec %q – expected [user@]host[:port]", spec)
	}
	user = m[1]
	host = m[2]
	port = DefaultSSHPort
	if m[3] != "" {
		port, err = strconv.Atoi(m[3])
		if err != nil || port < 1 || port > 65535 {
			return "", "", 0, fmt.Errorf("invalid server port %q", m[3])
		}
	}
	return user, host, port, nil
}

// String renders the configuration with the authtoken and OAuth client
// secrets masked.
func (c *Config) String() string {
	var b strings.Builder
	fmt.Fprintf(&b, "server=%s authtoken=%s", c.Server, mask(c.Authtoken))
	if c.SSHKeyPath != "" {
		fmt.Fprintf(&b, " ssh_key=%s", c.SSHKeyPath)
	}
	if c.UseSSHAgent {
		b.WriteString(" ssh_agent")
	}
	if c.MetricsAddr != "" {
		fmt.Fprintf(&b, " metrics=%s", c.MetricsAddr)
	}
	for _, t := range c.Tunnels {
		fmt.Fprintf(&b, " tunnel[%s %s→%s", t.DisplayName(), t.Proto, t.ForwardTo)
		if len(t.BasicAuth) > 0 {
			fmt.Fprintf(&b, " basic_auth=%d", len(t.BasicAuth))
		}
		if t.OAuth != nil {
			fmt.Fprintf(&b, " oauth=%s", t.OAuth.Provider)
		}
		b.WriteString("]")
	}
	return b.String()
}

func mask(secret string) string {
	if secret == "" {
		return `""`
	}
	if len(secret) <= 4 {
		return "****"
	}
	return secret[:2] + "****"
}
