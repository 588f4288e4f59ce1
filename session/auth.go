package session

import (
	"fmt"
	"io"
	"net"
	"os"
	"path/filepath"
	"strings"

	"golang.org/x/crypto/ssh"
	"golang.org/x/crypto/ssh/agent"
	"golang.org/x/crypto/ssh/knownhosts"
	"golang.org/x/term"

	"edgetun/internal/errors"
)

// defaultKeyNames are tried, in order, when nothing else is configured.
var defaultKeyNames = []string{"id_ed25519", "id_ecdsa", "id_rsa"}

// readSecret prompts on the controlling terminal without echo.
var readSecret = func(prompt string) ([]byte, error) {
	fd := int(os.Stdin.Fd())
	if !term.IsTerminal(fd) {
		return nil, fmt.Errorf("cannot prompt for %s: stdin is not a terminal", prompt)
	}
	fmt.Fprintf(os.Stderr, "%s: ", prompt)
	secret, err := term.ReadPassword(fd)
	fmt.Fprintln(os.Stderr)
	return secret, err
}

// credentials are the SSH auth methods offered on one dial.
type credentials struct {
	methods []ssh.AuthMethod
	names   []string
	closers []io.Closer
}

func (c *credentials) add(name string, m ssh.AuthMethod) {
	c.methods = append(c.methods, m)
	c.names = append(c.names, name)
}

// String lists the offered methods for log lines.
func (c *credentials) String() string { return strings.Join(c.names, ", ") }

// Close releases agent connections. Call it once the handshake is over.
func (c *credentials) Close() error {
	var errs []error
	for _, cl := range c.closers {
		errs = append(errs, cl.Close())
	}
	c.closers = nil
	return errors.Join(errs...)
}

// gatherCredentials builds the auth methods in the order the edge should
// try them: authtoken, explicit key, agent, prompted password. With none
// of those configured it falls back to the agent and the usual key files
// under ~/.ssh.
func gatherCredentials(cfg *Config) (*credentials, error) {
	c := &credentials{}

	if !cfg.Authtoken.IsEmpty() {
		c.add("authtoken", ssh.Password(cfg.Authtoken.Value()))
	}
	if cfg.KeyPath != "" {
		signer, err := loadSigner(cfg.KeyPath, true)
		if err != nil {
			return nil, fmt.Errorf("key %s: %w", cfg.KeyPath, err)
		}
		c.add("key "+cfg.KeyPath, ssh.PublicKeys(signer))
	}
	if cfg.UseAgent {
		if err := c.addAgent(); err != nil {
			c.Close()
			return nil, fmt.Errorf("ssh-agent: %w", err)
		}
	}
	if cfg.PromptPass {
		pass, err := readSecret("Edge password for " + cfg.User)
		if err != nil {
			c.Close()
			return nil, fmt.Errorf("reading password: %w", err)
		}
		c.add("password", ssh.Password(string(pass)))
	}

	if len(c.methods) == 0 {
		c.addDefaults()
	}
	if len(c.methods) == 0 {
		return nil, fmt.Errorf("no authentication methods available: " +
			"set an authtoken or use --ssh-key / --ssh-agent")
	}
	return c, nil
}

func (c *credentials) addAgent() error {
	sock := os.Getenv("SSH_AUTH_SOCK")
	if sock == "" {
		return fmt.Errorf("SSH_AUTH_SOCK is not set")
	}
	conn, err := net.Dial("unix", sock)
	if err != nil {
		return fmt.Errorf("connecting to agent at %s: %w", sock, err)
	}
	c.closers = append(c.closers, conn)
	c.add("agent", ssh.PublicKeysCallback(agent.NewClient(conn).Signers))
	return nil
}

// addDefaults never prompts: encrypted default keys are skipped.
func (c *credentials) addDefaults() {
	_ = c.addAgent()

	home, err := os.UserHomeDir()
	if err != nil {
		return
	}
	for _, name := range defaultKeyNames {
		p := filepath.Join(home, ".ssh", name)
		signer, err := loadSigner(p, false)
		if err != nil {
			continue
		}
		c.add("key "+p, ssh.PublicKeys(signer))
	}
}

// loadSigner parses a private key file. An encrypted key is decrypted
// with a prompted passphrase when prompt is set.
func loadSigner(path string, prompt bool) (ssh.Signer, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	signer, err := ssh.ParsePrivateKey(data)
	var missing *ssh.PassphraseMissingError
	switch {
	case err == nil:
		return signer, nil
	case !errors.As(err, &missing):
		return nil, fmt.Errorf("parsing key: %w", err)
	case !prompt:
		return nil, err
	}

	pass, err := readSecret("Passphrase for " + path)
	if err != nil {
		return nil, fmt.Errorf("reading passphrase: %w", err)
	}
	signer, err = ssh.ParsePrivateKeyWithPassphrase(data, pass)
	if err != nil {
		return nil, fmt.Errorf("decrypting key: %w", err)
	}
	return signer, nil
}

// hostKeyCallback picks the edge host key policy. A pinned callback
// wins; otherwise keys are checked against known_hosts only in strict
// mode.
func hostKeyCallback(cfg *Config) (ssh.HostKeyCallback, error) {
	switch {
	case cfg.HostKeyCallback != nil:
		return cfg.HostKeyCallback, nil
	case !cfg.StrictHostKey:
		//nolint:gosec // host key checking is opt-in
		return ssh.InsecureIgnoreHostKey(), nil
	}

	path := cfg.KnownHosts
	if path == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("locating known_hosts: %w", err)
		}
		path = filepath.Join(home, ".ssh", "known_hosts")
	}
	cb, err := knownhosts.New(path)
	if err != nil {
		return nil, fmt.Errorf("loading known_hosts from %s: %w", path, err)
	}
	return cb, nil
}
