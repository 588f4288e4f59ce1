// Package session maintains the agent's SSH connection to the tunnel
// edge. It carries bind and unbind exchanges as global requests and
// routes the edge's inbound connection channels to the tunnel they
// belong to.
package session

import (
	"context"
	"fmt"
	"net"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/ssh"
	"golang.org/x/crypto/ssh/knownhosts"

	"edgetun/internal/errors"
	"edgetun/internal/metrics"
	"edgetun/internal/proto"
	"edgetun/internal/retry"
	"edgetun/options"
	"edgetun/util"
)

// errRefused is returned when the edge answers a request negatively.
var errRefused = errors.New("refused by edge")

// Session is an authenticated connection to the edge. It is safe for
// concurrent use; any number of binds may be in flight at once.
type Session struct {
	cfg     Config
	logger  *util.Logger
	metrics *metrics.Collector
	breaker *retry.Breaker

	mu      sync.Mutex
	client  *ssh.Client
	tunnels map[string]*tunnel
	closed  bool
	err     error

	done chan struct{}
	wg   sync.WaitGroup
}

// Connect dials the edge, retrying transient failures according to
// cfg.Backoff. Authentication and host key failures are not retried.
// The metrics collector is optional (nil-safe).
func Connect(ctx context.Context, cfg Config, logger *util.Logger, m *metrics.Collector) (*Session, error) {
	cfg = cfg.withDefaults()
	if logger == nil {
		logger = util.NewLogger(int(util.LogQuiet))
	}

	s := &Session{
		cfg:     cfg,
		logger:  logger,
		metrics: m,
		tunnels: make(map[string]*tunnel),
		done:    make(chan struct{}),
	}
	breakerCfg := *cfg.Breaker
	breakerCfg.Counts = errors.IsTransport
	breakerCfg.OnChange = func(from, to retry.State) {
		logger.Warn("session: bind circuit %s → %s", from, to)
	}
	s.breaker = retry.NewBreaker(&breakerCfg)

	backoff := *cfg.Backoff
	backoff.Fatal = func(err error) bool {
		return errors.Is(err, errors.ErrAuthFailed) || errors.Is(err, errors.ErrHostKeyMismatch)
	}
	backoff.OnRetry = func(a retry.Attempt) {
		logger.Warn("session: connect attempt %d failed: %v (retrying in %v)",
			a.N, a.Err, a.Wait.Truncate(time.Millisecond))
	}

	var client *ssh.Client
	err := backoff.Do(ctx, func(attempt int) error {
		if attempt > 1 {
			m.SessionReconnect()
		}
		c, err := s.dial(ctx)
		if err != nil {
			m.RecordError(fmt.Sprintf("connect: %v", err))
			return err
		}
		client = c
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.client = client
	incoming := client.HandleChannelOpen(proto.ConnChannel)

	s.wg.Add(2)
	go s.dispatch(incoming)
	go s.watch(client)

	if cfg.KeepAlive > 0 {
		s.wg.Add(1)
		go s.keepaliveLoop(client)
	}

	logger.Info("session: connected to %s", util.FormatAddr(cfg.Host, cfg.Port))
	return s, nil
}

// dial establishes an authenticated SSH connection to the edge.
func (s *Session) dial(ctx context.Context) (*ssh.Client, error) {
	cfg := &s.cfg

	creds, err := gatherCredentials(cfg)
	if err != nil {
		return nil, errors.WrapSSH("auth", cfg.Host, cfg.Port, err)
	}
	defer creds.Close()

	hkCb, err := hostKeyCallback(cfg)
	if err != nil {
		return nil, errors.WrapSSH("hostkey", cfg.Host, cfg.Port, err)
	}

	sshCfg := &ssh.ClientConfig{
		User:            cfg.User,
		Auth:            creds.methods,
		HostKeyCallback: hkCb,
		Timeout:         cfg.ConnTimeout,
		BannerCallback: func(message string) error {
			s.logger.Info("%s", strings.TrimSpace(message))
			return nil
		},
	}

	addr := util.FormatAddr(cfg.Host, cfg.Port)
	s.logger.Debug("session: dialing %s as %s (auth: %s)", addr, cfg.User, creds)

	dialer := net.Dialer{Timeout: cfg.ConnTimeout}
	tcpConn, err := dialer.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, errors.Wrap("dial", addr, err)
	}

	sshConn, chans, reqs, err := ssh.NewClientConn(tcpConn, addr, sshCfg)
	if err != nil {
		tcpConn.Close()
		return nil, errors.WrapSSH("handshake", cfg.Host, cfg.Port, classifyHandshake(err))
	}
	return ssh.NewClient(sshConn, chans, reqs), nil
}

// classifyHandshake tags authentication and host key failures with the
// matching sentinel so callers can stop retrying.
func classifyHandshake(err error) error {
	var keyErr *knownhosts.KeyError
	if errors.As(err, &keyErr) {
		return fmt.Errorf("%w: %v", errors.ErrHostKeyMismatch, err)
	}
	if strings.Contains(err.Error(), "unable to authenticate") {
		return fmt.Errorf("%w: %v", errors.ErrAuthFailed, err)
	}
	return err
}

// StartTunnel asks the edge to bind a tunnel described by cfg. Failures
// are returned as *errors.BindError.
func (s *Session) StartTunnel(ctx context.Context, cfg options.TunnelConfig) (Tunnel, error) {
	p := cfg.Proto()

	client, err := s.activeClient()
	if err != nil {
		s.metrics.BindFailed(p, errors.KindTransport.String())
		return nil, errors.Transport(p, err)
	}

	extra := cfg.Extra()
	if extra.Token == "" {
		extra.Token = s.cfg.Authtoken.Value()
	}
	req := proto.BindReq{
		ID:         uuid.NewString(),
		Proto:      p,
		ForwardsTo: cfg.ForwardsTo(),
		Opts:       cfg.Opts(),
		Labels:     cfg.Labels(),
		Extra:      extra,
	}
	payload, err := proto.Marshal(&req)
	if err != nil {
		return nil, errors.Transport(p, fmt.Errorf("encode bind request: %w", err))
	}

	s.logger.Debug("session: bind %s request %s forwards-to %s", protoName(p), req.ID, req.ForwardsTo)

	var resp proto.BindResp
	err = s.breaker.Do(func() error {
		reply, err := s.request(ctx, client, proto.BindRequest, payload, func(late []byte) {
			s.releaseAbandoned(client, p, late)
		})
		if err != nil {
			return errors.Transport(p, err)
		}
		if err := proto.Unmarshal(reply, &resp); err != nil {
			return errors.Transport(p, fmt.Errorf("decode bind response: %w", err))
		}
		return nil
	})
	if err != nil {
		var be *errors.BindError
		if !errors.As(err, &be) {
			be = errors.Transport(p, err)
		}
		s.metrics.BindFailed(p, be.Kind.String())
		s.logger.Verbose("session: %v", be)
		return nil, be
	}

	switch resp.ErrorKind {
	case "":
	case proto.ErrorKindUnauthorized:
		s.metrics.BindFailed(p, errors.KindUnauthorized.String())
		return nil, errors.Unauthorized(p, errors.New(resp.Error))
	default:
		s.metrics.BindFailed(p, errors.KindRejected.String())
		return nil, errors.Rejected(p, errors.New(resp.Error))
	}

	t := newTunnel(s, Info{
		ID:         resp.TunnelID,
		URL:        resp.URL,
		Proto:      p,
		ForwardsTo: req.ForwardsTo,
		Metadata:   req.Extra.Metadata,
		Labels:     req.Labels,
	})

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		s.metrics.BindFailed(p, errors.KindTransport.String())
		return nil, errors.Transport(p, errors.ErrSessionClosed)
	}
	s.tunnels[t.info.ID] = t
	s.mu.Unlock()

	s.metrics.BindSucceeded(p)
	s.logger.Info("session: tunnel %s established at %s", t.info.ID, t.info.URL)
	return t, nil
}

// CloseTunnel unbinds the tunnel with the given ID.
func (s *Session) CloseTunnel(ctx context.Context, id string) error {
	s.mu.Lock()
	t := s.tunnels[id]
	s.mu.Unlock()
	if t == nil {
		return fmt.Errorf("tunnel %s: %w", id, errors.ErrTunnelClosed)
	}
	return t.CloseWithContext(ctx)
}

// Logger returns the session's logger.
func (s *Session) Logger() *util.Logger { return s.logger }

// Metrics returns the session's collector, possibly nil.
func (s *Session) Metrics() *metrics.Collector { return s.metrics }

// Done is closed once the session has ended.
func (s *Session) Done() <-chan struct{} { return s.done }

// Err reports why the session ended, or nil while it is still open.
func (s *Session) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

// Close tears down every tunnel and the connection to the edge.
func (s *Session) Close() error {
	err := s.shutdown(errors.ErrSessionClosed)
	s.wg.Wait()
	return err
}

// shutdown marks the session closed, stops all tunnels locally and
// closes the SSH client. It is idempotent.
func (s *Session) shutdown(cause error) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	s.err = cause
	client := s.client
	tunnels := make([]*tunnel, 0, len(s.tunnels))
	for _, t := range s.tunnels {
		tunnels = append(tunnels, t)
	}
	s.tunnels = make(map[string]*tunnel)
	s.mu.Unlock()

	close(s.done)
	for _, t := range tunnels {
		t.shutdown()
	}
	if client == nil {
		return nil
	}
	if err := client.Close(); err != nil && !errors.Is(err, net.ErrClosed) {
		return fmt.Errorf("session close: %w", err)
	}
	return nil
}

func (s *Session) activeClient() (*ssh.Client, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed || s.client == nil {
		return nil, errors.ErrSessionClosed
	}
	return s.client, nil
}

// forget drops a tunnel from the routing table.
func (s *Session) forget(id string) {
	s.mu.Lock()
	delete(s.tunnels, id)
	s.mu.Unlock()
}

func (s *Session) lookup(id string) *tunnel {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.tunnels[id]
}

// unbind tells the edge to release a tunnel. A closed session has
// already released everything, so that case is not an error.
func (s *Session) unbind(ctx context.Context, id string) error {
	client, err := s.activeClient()
	if err != nil {
		return nil
	}
	payload, err := proto.Marshal(&proto.UnbindReq{TunnelID: id})
	if err != nil {
		return err
	}
	if _, err := s.request(ctx, client, proto.UnbindRequest, payload, nil); err != nil {
		return fmt.Errorf("unbind tunnel %s: %w", id, err)
	}
	s.logger.Verbose("session: tunnel %s closed", id)
	return nil
}

// request sends a global request and waits for the reply or for ctx to
// end. When ctx wins, abandoned (if non-nil) receives a reply that
// arrives later so remote state can be released.
func (s *Session) request(ctx context.Context, client *ssh.Client, name string, payload []byte, abandoned func([]byte)) ([]byte, error) {
	type result struct {
		ok    bool
		reply []byte
		err   error
	}
	ch := make(chan result, 1)
	go func() {
		ok, reply, err := client.SendRequest(name, true, payload)
		ch <- result{ok, reply, err}
	}()

	var r result
	select {
	case <-ctx.Done():
		if abandoned != nil {
			go func() {
				if r := <-ch; r.err == nil && r.ok {
					abandoned(r.reply)
				}
			}()
		}
		return nil, ctx.Err()
	case r = <-ch:
	}

	if r.err != nil {
		return nil, fmt.Errorf("%s request: %w", name, r.err)
	}
	if !r.ok {
		return nil, fmt.Errorf("%s request: %w", name, errRefused)
	}
	return r.reply, nil
}

// releaseAbandoned unbinds a tunnel whose bind reply came back after the
// caller gave up waiting.
func (s *Session) releaseAbandoned(client *ssh.Client, p string, reply []byte) {
	var resp proto.BindResp
	if err := proto.Unmarshal(reply, &resp); err != nil || resp.ErrorKind != "" || resp.TunnelID == "" {
		return
	}
	s.logger.Verbose("session: releasing abandoned %s tunnel %s", protoName(p), resp.TunnelID)
	payload, err := proto.Marshal(&proto.UnbindReq{TunnelID: resp.TunnelID})
	if err != nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), unbindTimeout)
	defer cancel()
	s.request(ctx, client, proto.UnbindRequest, payload, nil) //nolint:errcheck
}

// dispatch routes inbound connection channels to their tunnel.
func (s *Session) dispatch(incoming <-chan ssh.NewChannel) {
	defer s.wg.Done()
	for newCh := range incoming {
		var hdr proto.ConnHeader
		if err := proto.Unmarshal(newCh.ExtraData(), &hdr); err != nil {
			newCh.Reject(ssh.ConnectionFailed, "malformed connection header") //nolint:errcheck
			continue
		}
		t := s.lookup(hdr.TunnelID)
		if t == nil {
			s.logger.Debug("session: connection for unknown tunnel %s", hdr.TunnelID)
			newCh.Reject(ssh.Prohibited, "unknown tunnel") //nolint:errcheck
			continue
		}
		go s.accept(t, newCh, hdr)
	}
}

func (s *Session) accept(t *tunnel, newCh ssh.NewChannel, hdr proto.ConnHeader) {
	ch, reqs, err := newCh.Accept()
	if err != nil {
		s.logger.Debug("session: channel accept: %v", err)
		return
	}
	go ssh.DiscardRequests(reqs)

	s.logger.Verbose("session: connection from %s on tunnel %s", hdr.ClientAddr, hdr.TunnelID)
	t.deliver(&chanConn{
		Channel: ch,
		laddr:   t.Addr(),
		raddr:   clientAddr(hdr.ClientAddr),
	})
}

// watch ends the session when the SSH connection goes away.
func (s *Session) watch(client *ssh.Client) {
	defer s.wg.Done()
	err := client.Wait()

	s.mu.Lock()
	closed := s.closed
	s.mu.Unlock()
	if closed {
		return
	}

	s.logger.Error("session: connection to edge lost: %v", err)
	s.metrics.RecordError(fmt.Sprintf("session lost: %v", err))
	cause := errors.ErrSessionClosed
	if err != nil {
		cause = fmt.Errorf("%w: %w", errors.ErrSessionClosed, err)
	}
	s.shutdown(cause) //nolint:errcheck
}

// keepaliveLoop sends periodic keepalive requests and closes the
// connection if the edge stops answering.
func (s *Session) keepaliveLoop(client *ssh.Client) {
	defer s.wg.Done()

	ticker := time.NewTicker(s.cfg.KeepAlive)
	defer ticker.Stop()

	for {
		select {
		case <-s.done:
			return
		case <-ticker.C:
			ctx, cancel := context.WithTimeout(context.Background(), s.cfg.KeepAlive)
			_, err := s.request(ctx, client, proto.KeepaliveRequest, nil, nil)
			cancel()
			// Any answer, even a refusal, proves the edge is alive.
			if err != nil && !errors.Is(err, errRefused) {
				s.logger.Error("session: keepalive failed: %v", err)
				s.metrics.RecordError(fmt.Sprintf("keepalive: %v", err))
				client.Close()
				return
			}
			s.metrics.RecordHealthCheck()
			s.logger.Debug("session: keepalive OK")
		}
	}
}

func protoName(p string) string {
	if p == "" {
		return "labeled"
	}
	return p
}
