// Package cmd wires up the CLI flags and dispatches to the agent core.
package cmd

import (
	"context"
	"fmt"
	"os"

	flag "github.com/spf13/pflag"

	"edgetun/config"
	"edgetun/internal/core"
	"edgetun/util"
)

// version is overridable at link time:
//
//	go build -ldflags "-X edgetun/cmd.version=2.0.0"
var version = "1.0.0" //nolint:gochecknoglobals

// flagValues collects everything the command line can set. Only flags
// the user actually passed override the file and environment.
type flagValues struct {
	configPath string
	cfg        config.Config
	tunnel     config.TunnelSpec
	oauth      config.OAuthSpec
}

// Execute parses args and runs the agent.
func Execute(ctx context.Context, args []string) error {
	var fv flagValues
	fs := flag.NewFlagSet("edgetun", flag.ContinueOnError)

	// ── edge session ─────────────────────────────────────────────
	fs.StringVarP(&fv.configPath, "config", "c", "", "YAML config file (default $"+config.EnvConfigFile+")")
	fs.StringVarP(&fv.cfg.Server, "server", "s", "", "Edge server as [user@]host[:port]")
	fs.StringVar(&fv.cfg.Authtoken, "authtoken", "", "Account authtoken")
	fs.StringVar(&fv.cfg.SSHKeyPath, "ssh-key", "", "SSH private key file")
	fs.BoolVar(&fv.cfg.SSHPassword, "ssh-password", false, "Prompt for SSH password")
	fs.BoolVar(&fv.cfg.UseSSHAgent, "ssh-agent", false, "Use SSH agent")
	fs.BoolVar(&fv.cfg.StrictHostKey, "strict-hostkey", false, "Verify the edge host key")
	fs.StringVar(&fv.cfg.KnownHostsPath, "known-hosts", "", "Custom known_hosts path")
	fs.DurationVarP(&fv.cfg.ConnTimeout, "timeout", "w", config.DefaultConnTimeout, "Connection timeout")
	fs.DurationVar(&fv.cfg.KeepAlive, "keep-alive", config.DefaultKeepAlive, "Keepalive interval (0 disables)")
	fs.StringVar(&fv.cfg.MetricsAddr, "metrics", "", "Serve /metrics, /stats and /healthz on this address")

	// ── command-line tunnel ──────────────────────────────────────
	t := &fv.tunnel
	fs.StringVar(&t.Name, "name", "", "Tunnel name")
	fs.StringVar(&t.Domain, "domain", "", "Hostname for tls/http/https tunnels")
	fs.StringVar(&t.RemoteAddr, "remote-addr", "", "Edge address for tcp tunnels")
	fs.StringSliceVar(&t.AllowCIDRs, "allow-cidr", nil, "Allow clients from CIDR (repeatable)")
	fs.StringSliceVar(&t.DenyCIDRs, "deny-cidr", nil, "Deny clients from CIDR (repeatable)")
	fs.IntVar(&t.ProxyProto, "proxy-proto", 0, "PROXY protocol version (1 or 2)")
	fs.StringVar(&t.Metadata, "metadata", "", "Opaque metadata attached to the tunnel")
	fs.StringArrayVar(&t.BasicAuth, "basic-auth", nil, "Require user:password (repeatable)")
	fs.StringVar(&fv.oauth.Provider, "oauth", "", "Require OAuth login with provider")
	fs.StringSliceVar(&fv.oauth.AllowDomains, "oauth-allow-domain", nil, "Allow OAuth users from domain")
	fs.StringSliceVar(&fv.oauth.AllowEmails, "oauth-allow-email", nil, "Allow OAuth user by email")
	fs.BoolVar(&t.Compression, "compression", false, "Compress HTTP responses at the edge")
	fs.Float64Var(&t.CircuitBreaker, "circuit-breaker", 0, "Upstream error ratio that trips the edge breaker")
	fs.BoolVar(&t.WebsocketTCPConversion, "websocket-tcp", false, "Convert websocket connections to TCP")
	fs.StringSliceVar(&t.MutualTLSCAs, "mtls-ca", nil, "CA bundle for client certificates (repeatable)")
	fs.StringVar(&t.CertFile, "cert", "", "Certificate the edge presents (tls)")
	fs.StringVar(&t.KeyFile, "key", "", "Key for --cert (tls)")
	fs.StringToStringVar(&t.Labels, "label", nil, "Routing label key=value (labeled)")

	// ── output ───────────────────────────────────────────────────
	fs.CountVarP(&fv.cfg.Verbose, "verbose", "v", "Increase verbosity (repeatable)")
	quiet := fs.BoolP("quiet", "q", false, "Only print errors")

	var showVersion, showHelp, dryRun bool
	fs.BoolVar(&showVersion, "version", false, "Print version and exit")
	fs.BoolVarP(&showHelp, "help", "h", false, "Show this help")
	fs.BoolVar(&dryRun, "dry-run", false, "Validate the configuration and exit")

	fs.Usage = func() { printUsage(fs) }

	// ── parse ────────────────────────────────────────────────────
	if err := fs.Parse(args); err != nil {
		return err
	}

	if showHelp || len(args) == 0 {
		printUsage(fs)
		return nil
	}
	if showVersion {
		fmt.Printf("edgetun %s\n", version)
		return nil
	}

	// ── layer: defaults → file → env → flags ─────────────────────
	cfg := config.Default()
	if fv.configPath == "" {
		fv.configPath = os.Getenv(config.EnvConfigFile)
	}
	if fv.configPath != "" {
		if err := config.LoadFile(fv.configPath, cfg); err != nil {
			return err
		}
	}
	config.LoadFromEnv(cfg)
	applyFlags(fs, &fv, cfg)
	if *quiet {
		cfg.Verbose = 0
	}

	// ── positional arguments ─────────────────────────────────────
	if err := parsePositional(fs, &fv, cfg, fs.Args()); err != nil {
		return err
	}

	// ── validate ─────────────────────────────────────────────────
	if err := cfg.Validate(); err != nil {
		return err
	}
	if dryRun {
		fmt.Printf("edgetun: configuration OK: %s\n", cfg)
		return nil
	}

	// ── run ──────────────────────────────────────────────────────
	logger := util.NewLogger(cfg.Verbose)
	defer logger.Sync()
	logger.Debug("config: %s", cfg)

	mode, err := core.Build(cfg, logger)
	if err != nil {
		return err
	}
	return mode.Run(ctx)
}

// ── helpers ──────────────────────────────────────────────────────────

// applyFlags copies every explicitly set session flag onto cfg.
func applyFlags(fs *flag.FlagSet, fv *flagValues, cfg *config.Config) {
	set := func(name string, apply func()) {
		if fs.Changed(name) {
			apply()
		}
	}
	src := &fv.cfg
	set("server", func() { cfg.Server = src.Server })
	set("authtoken", func() { cfg.Authtoken = src.Authtoken })
	set("ssh-key", func() { cfg.SSHKeyPath = src.SSHKeyPath })
	set("ssh-password", func() { cfg.SSHPassword = src.SSHPassword })
	set("ssh-agent", func() { cfg.UseSSHAgent = src.UseSSHAgent })
	set("strict-hostkey", func() { cfg.StrictHostKey = src.StrictHostKey })
	set("known-hosts", func() { cfg.KnownHostsPath = src.KnownHostsPath })
	set("timeout", func() { cfg.ConnTimeout = src.ConnTimeout })
	set("keep-alive", func() { cfg.KeepAlive = src.KeepAlive })
	set("metrics", func() { cfg.MetricsAddr = src.MetricsAddr })
	set("verbose", func() { cfg.Verbose = 1 + src.Verbose })
}

// tunnelFlags are only meaningful together with a positional tunnel.
var tunnelFlags = []string{
	"name", "domain", "remote-addr", "allow-cidr", "deny-cidr", "proxy-proto",
	"metadata", "basic-auth", "oauth", "oauth-allow-domain", "oauth-allow-email",
	"compression", "circuit-breaker", "websocket-tcp", "mtls-ca", "cert", "key", "label",
}

// parsePositional turns "<proto> <forward-to>" into a tunnel appended
// to those loaded from the config file.
func parsePositional(fs *flag.FlagSet, fv *flagValues, cfg *config.Config, remaining []string) error {
	switch len(remaining) {
	case 0:
		for _, name := range tunnelFlags {
			if fs.Changed(name) {
				return fmt.Errorf("--%s needs a tunnel: edgetun [options] <proto> <forward-to>", name)
			}
		}
		return nil
	case 2:
	default:
		return fmt.Errorf("expected <proto> <forward-to>, got %d arguments (use --help for usage)", len(remaining))
	}

	spec := fv.tunnel
	spec.Proto = remaining[0]
	spec.ForwardTo = remaining[1]
	if fv.oauth.Provider != "" {
		oauth := fv.oauth
		spec.OAuth = &oauth
	}
	cfg.Tunnels = append(cfg.Tunnels, spec)
	return nil
}

func printUsage(fs *flag.FlagSet) {
	fmt.Fprintf(os.Stderr, `edgetun – Tunnel Agent v%s

Exposes local services through a remote tunneling edge.

Usage:
  edgetun [options] <proto> <forward-to>      One tunnel from the command line
  edgetun -c edgetun.yml [options]            Tunnels from a config file

Protocols: tcp, tls, http, https, labeled

Options:
`, version)
	fs.PrintDefaults()
	fmt.Fprintf(os.Stderr, `
Examples:
  edgetun -s edge.example.com --authtoken $TOKEN http 8080
  edgetun -s agent@edge:2222 tcp localhost:5432 --allow-cidr 10.0.0.0/8
  edgetun https 3000 --domain app.example.com --oauth github
  edgetun labeled 9000 --label edge=edghts_123
  edgetun -c edgetun.yml --metrics 127.0.0.1:9100
`)
}
