package config

import (
	"fmt"
	"slices"
	"strings"

	"edgetun/internal/errors"
	"edgetun/options"
)

// Validate checks that the configuration is internally consistent and
// resolves Server into ServerUser, ServerHost and ServerPort. Every
// failure is a *errors.ConfigError.
func (c *Config) Validate() error {
	if c.Server == "" {
		return &errors.ConfigError{
			Field:   "server",
			Message: "edge server is required",
			Hint:    "pass -s [user@]host[:port] or set EDGETUN_SERVER",
		}
	}
	user, host, port, err := ParseServerSpec(c.Server)
	if err != nil {
		return &errors.ConfigError{Field: "server", Value: c.Server, Message: err.Error()}
	}
	if user != "" {
		c.ServerUser = user
	}
	c.ServerHost = host
	c.ServerPort = port

	if c.ConnTimeout < 0 {
		return &errors.ConfigError{Field: "conn_timeout", Value: c.ConnTimeout, Message: "must not be negative"}
	}
	if c.KeepAlive < 0 {
		return &errors.ConfigError{Field: "keep_alive", Value: c.KeepAlive, Message: "must not be negative", Hint: "use 0 to disable keepalives"}
	}

	if len(c.Tunnels) == 0 {
		return &errors.ConfigError{
			Field:   "tunnels",
			Message: "no tunnels configured",
			Hint:    "pass <proto> <forward-to> on the command line or add a tunnels: list to the config file",
		}
	}

	seen := make(map[string]int, len(c.Tunnels))
	for i := range c.Tunnels {
		t := &c.Tunnels[i]
		if err := t.validate(fmt.Sprintf("tunnels[%d]", i)); err != nil {
			return err
		}
		if t.Name == "" {
			continue
		}
		if j, dup := seen[t.Name]; dup {
			return &errors.ConfigError{
				Field:   fmt.Sprintf("tunnels[%d].name", i),
				Value:   t.Name,
				Message: fmt.Sprintf("duplicates tunnels[%d]", j),
			}
		}
		seen[t.Name] = i
	}
	return nil
}

func (t *TunnelSpec) validate(field string) error {
	fail := func(name string, value interface{}, msg, hint string) error {
		return &errors.ConfigError{Field: field + "." + name, Value: value, Message: msg, Hint: hint}
	}

	if !slices.Contains(Protocols, t.Proto) {
		return fail("proto", t.Proto, "unsupported protocol", "use one of "+strings.Join(Protocols, ", "))
	}
	if _, err := t.ForwardURL(); err != nil {
		return fail("forward_to", t.ForwardTo, err.Error(), "e.g. 8080, localhost:5432 or https://internal.example.com")
	}

	httpLike := t.Proto == "http" || t.Proto == "https"

	if t.RemoteAddr != "" && t.Proto != "tcp" {
		return fail("remote_addr", t.RemoteAddr, "only applies to tcp tunnels", "")
	}
	if t.Domain != "" && !httpLike && t.Proto != "tls" {
		return fail("domain", t.Domain, "only applies to tls, http and https tunnels", "")
	}
	if t.Proto == "labeled" {
		if len(t.Labels) == 0 {
			return fail("labels", nil, "labeled tunnels need at least one label", "e.g. labels: {edge: edghts_...}")
		}
	} else if len(t.Labels) > 0 {
		return fail("labels", t.Labels, "only applies to labeled tunnels", "")
	}

	if t.ProxyProto < 0 || t.ProxyProto > 2 {
		return fail("proxy_proto", t.ProxyProto, "must be 0 (off), 1 or 2", "")
	}
	if t.Proto == "labeled" && (len(t.AllowCIDRs) > 0 || len(t.DenyCIDRs) > 0 || t.ProxyProto != 0) {
		return fail("allow_cidrs", nil, "labeled tunnels take their policy from the edge", "")
	}

	if !httpLike {
		switch {
		case len(t.BasicAuth) > 0:
			return fail("basic_auth", nil, "only applies to http and https tunnels", "")
		case t.OAuth != nil:
			return fail("oauth", t.OAuth.Provider, "only applies to http and https tunnels", "")
		case t.Compression || t.WebsocketTCPConversion || t.CircuitBreaker != 0:
			return fail("compression", nil, "HTTP options set on a "+t.Proto+" tunnel", "")
		}
	}
	for j, cred := range t.BasicAuth {
		if user, _, ok := strings.Cut(cred, ":"); !ok || user == "" {
			return fail(fmt.Sprintf("basic_auth[%d]", j), nil, "expected user:password", "")
		}
	}
	if t.OAuth != nil {
		if _, err := options.ParseOAuthProvider(t.OAuth.Provider); err != nil {
			return fail("oauth.provider", t.OAuth.Provider, err.Error(), "")
		}
	}
	if t.CircuitBreaker < 0 || t.CircuitBreaker > 1 {
		return fail("circuit_breaker", t.CircuitBreaker, "must be a ratio between 0 and 1", "")
	}

	if len(t.MutualTLSCAs) > 0 && !httpLike && t.Proto != "tls" {
		return fail("mutual_tls_cas", nil, "only applies to tls, http and https tunnels", "")
	}
	if (t.CertFile != "") != (t.KeyFile != "") {
		return fail("cert_file", t.CertFile, "cert_file and key_file must be set together", "")
	}
	if t.CertFile != "" && t.Proto != "tls" {
		return fail("cert_file", t.CertFile, "only applies to tls tunnels", "")
	}
	return nil
}
