package core

import (
	"context"
	"fmt"
	"net/url"
	"os"
	"strings"

	"edgetun/config"
	"edgetun/internal/metrics"
	"edgetun/internal/proto"
	"edgetun/internal/retry"
	"edgetun/options"
	"edgetun/session"
	"edgetun/tunnel"
	"edgetun/util"
)

// Build constructs the agent Mode from a validated configuration.
func Build(cfg *config.Config, logger *util.Logger) (Mode, error) {
	if cfg.ServerHost == "" {
		return nil, fmt.Errorf("configuration has not been validated")
	}
	return &AgentMode{
		Session:     SessionConfig(cfg),
		Tunnels:     cfg.Tunnels,
		MetricsAddr: cfg.MetricsAddr,
		Logger:      logger,
		Metrics:     metrics.New(),
	}, nil
}

// SessionConfig maps the agent configuration onto session settings.
func SessionConfig(cfg *config.Config) session.Config {
	backoff := retry.DefaultBackoff()
	backoff.MaxAttempts = config.DefaultMaxReconnectAttempts
	backoff.MaxDelay = config.DefaultMaxReconnectBackoff

	return session.Config{
		User:          cfg.ServerUser,
		Host:          cfg.ServerHost,
		Port:          cfg.ServerPort,
		Authtoken:     proto.NewSecretString(cfg.Authtoken),
		KeyPath:       cfg.SSHKeyPath,
		PromptPass:    cfg.SSHPassword,
		UseAgent:      cfg.UseSSHAgent,
		StrictHostKey: cfg.StrictHostKey,
		KnownHosts:    cfg.KnownHostsPath,
		ConnTimeout:   cfg.ConnTimeout,
		KeepAlive:     cfg.KeepAlive,
		Backoff:       backoff,
	}
}

// forwarderBuilder is the part of tunnel.ForwarderBuilder that does not
// depend on the tunnel type.
type forwarderBuilder interface {
	ListenAndForward(ctx context.Context, to *url.URL) (*tunnel.Forwarder, error)
}

// Forward binds the tunnel described by spec on sess and starts
// forwarding its connections.
func Forward(ctx context.Context, sess tunnel.Session, spec config.TunnelSpec) (*tunnel.Forwarder, error) {
	to, err := spec.ForwardURL()
	if err != nil {
		return nil, fmt.Errorf("tunnel %s: %w", spec.DisplayName(), err)
	}
	b, err := builderFor(sess, spec)
	if err != nil {
		return nil, fmt.Errorf("tunnel %s: %w", spec.DisplayName(), err)
	}
	fwd, err := b.ListenAndForward(ctx, to)
	if err != nil {
		return nil, fmt.Errorf("tunnel %s: %w", spec.DisplayName(), err)
	}
	return fwd, nil
}

// builderFor selects and configures the builder matching spec.Proto.
func builderFor(sess tunnel.Session, spec config.TunnelSpec) (forwarderBuilder, error) {
	switch spec.Proto {
	case "tcp":
		return tunnel.NewTCPBuilder(sess).
			RemoteAddr(spec.RemoteAddr).
			AllowCIDR(spec.AllowCIDRs...).
			DenyCIDR(spec.DenyCIDRs...).
			ProxyProto(proto.ProxyProto(spec.ProxyProto)).
			Metadata(spec.Metadata), nil

	case "tls":
		b := tunnel.NewTLSBuilder(sess).
			Domain(spec.Domain).
			AllowCIDR(spec.AllowCIDRs...).
			DenyCIDR(spec.DenyCIDRs...).
			ProxyProto(proto.ProxyProto(spec.ProxyProto)).
			Metadata(spec.Metadata)
		cas, err := readFiles(spec.MutualTLSCAs)
		if err != nil {
			return nil, err
		}
		for _, ca := range cas {
			b.MutualTLSCA(ca)
		}
		if spec.CertFile != "" {
			pair, err := readFiles([]string{spec.CertFile, spec.KeyFile})
			if err != nil {
				return nil, err
			}
			b.Termination(pair[0], pair[1])
		}
		return b, nil

	case "http", "https":
		b := tunnel.NewHTTPBuilder(sess).
			Scheme(spec.Proto).
			Domain(spec.Domain).
			AllowCIDR(spec.AllowCIDRs...).
			DenyCIDR(spec.DenyCIDRs...).
			ProxyProto(proto.ProxyProto(spec.ProxyProto)).
			Metadata(spec.Metadata).
			Compression(spec.Compression).
			CircuitBreaker(spec.CircuitBreaker).
			WebsocketTCPConversion(spec.WebsocketTCPConversion)
		for _, cred := range spec.BasicAuth {
			user, pass, _ := strings.Cut(cred, ":")
			b.BasicAuth(user, pass)
		}
		if spec.OAuth != nil {
			o, err := oauthOptions(spec.OAuth)
			if err != nil {
				return nil, err
			}
			b.OAuth(o)
		}
		cas, err := readFiles(spec.MutualTLSCAs)
		if err != nil {
			return nil, err
		}
		for _, ca := range cas {
			b.MutualTLSCA(ca)
		}
		return b, nil

	case "labeled":
		b := tunnel.NewLabeledBuilder(sess).Metadata(spec.Metadata)
		for k, v := range spec.Labels {
			b.Label(k, v)
		}
		return b, nil

	default:
		return nil, fmt.Errorf("unsupported protocol %q", spec.Proto)
	}
}

func oauthOptions(spec *config.OAuthSpec) (*options.OAuthOptions, error) {
	provider, err := options.ParseOAuthProvider(spec.Provider)
	if err != nil {
		return nil, err
	}
	o := options.NewOAuthOptions(provider)
	if spec.ClientID != "" {
		o.ClientID(spec.ClientID)
	}
	if spec.ClientSecret != "" {
		o.ClientSecret(spec.ClientSecret)
	}
	for _, e := range spec.AllowEmails {
		o.AllowEmail(e)
	}
	for _, d := range spec.AllowDomains {
		o.AllowDomain(d)
	}
	for _, s := range spec.Scopes {
		o.Scope(s)
	}
	return o, nil
}

func readFiles(paths []string) ([][]byte, error) {
	out := make([][]byte, 0, len(paths))
	for _, p := range paths {
		data, err := os.ReadFile(p)
		if err != nil {
			return nil, err
		}
		out = append(out, data)
	}
	return out, nil
}
