// Package edgetest runs an in-process tunnel edge for tests. It speaks
// the same SSH requests and channels as the real edge: it answers binds,
// records unbinds and can open connections into bound tunnels.
package edgetest

import (
	"crypto/ed25519"
	"crypto/rand"
	"fmt"
	"net"
	"strconv"
	"sync"
	"testing"

	"github.com/google/uuid"
	"golang.org/x/crypto/ssh"

	"edgetun/internal/proto"
)

// Responder decides the answer to a bind request. It may block to
// simulate a slow edge.
type Responder func(req proto.BindReq) proto.BindResp

// Edge is a minimal tunnel edge listening on 127.0.0.1.
type Edge struct {
	t         testing.TB
	listener  net.Listener
	signer    ssh.Signer
	authtoken string

	mu        sync.Mutex
	responder Responder
	conns     []*ssh.ServerConn
	owners    map[string]*ssh.ServerConn // tunnel ID → agent connection
	binds     []proto.BindReq
	unbinds   []string
	wg        sync.WaitGroup
	closed    bool
}

// Option configures an Edge.
type Option func(*Edge)

// WithAuthtoken makes the edge require token as the SSH password.
func WithAuthtoken(token string) Option {
	return func(e *Edge) { e.authtoken = token }
}

// WithResponder replaces the default bind responder.
func WithResponder(r Responder) Option {
	return func(e *Edge) { e.responder = r }
}

// New starts an edge and registers its shutdown with t.Cleanup.
func New(t testing.TB, opts ...Option) *Edge {
	t.Helper()

	_, key, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		t.Fatalf("edgetest: host key: %v", err)
	}
	signer, err := ssh.NewSignerFromKey(key)
	if err != nil {
		t.Fatalf("edgetest: signer: %v", err)
	}
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("edgetest: listen: %v", err)
	}

	e := &Edge{
		t:        t,
		listener: ln,
		signer:   signer,
		owners:   make(map[string]*ssh.ServerConn),
	}
	e.responder = e.Accepting
	for _, opt := range opts {
		opt(e)
	}

	e.wg.Add(1)
	go e.serve()
	t.Cleanup(e.Close)
	return e
}

// Host returns the listen host.
func (e *Edge) Host() string {
	return e.listener.Addr().(*net.TCPAddr).IP.String()
}

// Port returns the listen port.
func (e *Edge) Port() int {
	return e.listener.Addr().(*net.TCPAddr).Port
}

// HostKeyCallback pins the edge's host key.
func (e *Edge) HostKeyCallback() ssh.HostKeyCallback {
	return ssh.FixedHostKey(e.signer.PublicKey())
}

// SetResponder replaces the bind responder for subsequent requests.
func (e *Edge) SetResponder(r Responder) {
	e.mu.Lock()
	e.responder = r
	e.mu.Unlock()
}

// Binds returns every bind request received so far.
func (e *Edge) Binds() []proto.BindReq {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]proto.BindReq(nil), e.binds...)
}

// Unbinds returns the tunnel IDs released so far, in order.
func (e *Edge) Unbinds() []string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]string(nil), e.unbinds...)
}

// Bound reports whether a tunnel is currently bound.
func (e *Edge) Bound(tunnelID string) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	_, ok := e.owners[tunnelID]
	return ok
}

// Accepting is the default responder: it binds every request and
// invents a URL matching the protocol.
func (e *Edge) Accepting(req proto.BindReq) proto.BindResp {
	id := uuid.NewString()
	return proto.BindResp{
		ReqID:    req.ID,
		TunnelID: id,
		URL:      urlFor(req, id),
		Proto:    req.Proto,
	}
}

// Rejecting returns a responder that refuses every bind with kind
// (proto.ErrorKindRejected or proto.ErrorKindUnauthorized).
func Rejecting(kind, msg string) Responder {
	return func(req proto.BindReq) proto.BindResp {
		return proto.BindResp{ReqID: req.ID, Proto: req.Proto, ErrorKind: kind, Error: msg}
	}
}

func urlFor(req proto.BindReq, id string) string {
	short := id[:8]
	switch req.Proto {
	case "tcp":
		if req.Opts != nil && req.Opts.TCP != nil && req.Opts.TCP.Addr != "" {
			return "tcp://" + req.Opts.TCP.Addr
		}
		return "tcp://0.tcp.edge.test:" + strconv.Itoa(20000+int(id[0]))
	case "tls":
		if req.Opts != nil && req.Opts.TLS != nil && req.Opts.TLS.Hostname != "" {
			return "tls://" + req.Opts.TLS.Hostname
		}
		return "tls://" + short + ".edge.test"
	case "http", "https":
		if req.Opts != nil && req.Opts.HTTP != nil && req.Opts.HTTP.Hostname != "" {
			return req.Proto + "://" + req.Opts.HTTP.Hostname
		}
		return req.Proto + "://" + short + ".edge.test"
	default:
		return "https://" + short + ".labeled.edge.test"
	}
}

// Dial opens a connection into a bound tunnel as if a client at
// clientAddr had connected to its URL.
func (e *Edge) Dial(tunnelID, clientAddr string) (ssh.Channel, error) {
	e.mu.Lock()
	conn := e.owners[tunnelID]
	e.mu.Unlock()
	if conn == nil {
		return nil, fmt.Errorf("edgetest: tunnel %s is not bound", tunnelID)
	}
	return e.open(conn, proto.ConnHeader{TunnelID: tunnelID, ClientAddr: clientAddr})
}

// DialRaw opens a connection channel with an arbitrary header on the
// most recent agent connection, bound tunnel or not.
func (e *Edge) DialRaw(hdr proto.ConnHeader) (ssh.Channel, error) {
	e.mu.Lock()
	var conn *ssh.ServerConn
	if n := len(e.conns); n > 0 {
		conn = e.conns[n-1]
	}
	e.mu.Unlock()
	if conn == nil {
		return nil, fmt.Errorf("edgetest: no agent connected")
	}
	return e.open(conn, hdr)
}

func (e *Edge) open(conn *ssh.ServerConn, hdr proto.ConnHeader) (ssh.Channel, error) {
	payload, err := proto.Marshal(&hdr)
	if err != nil {
		return nil, err
	}
	ch, reqs, err := conn.OpenChannel(proto.ConnChannel, payload)
	if err != nil {
		return nil, err
	}
	go ssh.DiscardRequests(reqs)
	return ch, nil
}

// DropConnections closes every agent connection without unbinding.
func (e *Edge) DropConnections() {
	e.mu.Lock()
	conns := e.conns
	e.conns = nil
	e.owners = make(map[string]*ssh.ServerConn)
	e.mu.Unlock()
	for _, c := range conns {
		c.Close()
	}
}

// Close stops the edge.
func (e *Edge) Close() {
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return
	}
	e.closed = true
	e.mu.Unlock()

	e.listener.Close()
	e.DropConnections()
	e.wg.Wait()
}

func (e *Edge) serverConfig() *ssh.ServerConfig {
	cfg := &ssh.ServerConfig{}
	if e.authtoken == "" {
		cfg.NoClientAuth = true
	}
	cfg.PasswordCallback = func(_ ssh.ConnMetadata, password []byte) (*ssh.Permissions, error) {
		if e.authtoken != "" && string(password) != e.authtoken {
			return nil, fmt.Errorf("invalid authtoken")
		}
		return nil, nil
	}
	cfg.AddHostKey(e.signer)
	return cfg
}

func (e *Edge) serve() {
	defer e.wg.Done()
	cfg := e.serverConfig()
	for {
		nc, err := e.listener.Accept()
		if err != nil {
			return
		}
		e.wg.Add(1)
		go e.handle(nc, cfg)
	}
}

func (e *Edge) handle(nc net.Conn, cfg *ssh.ServerConfig) {
	defer e.wg.Done()

	conn, chans, reqs, err := ssh.NewServerConn(nc, cfg)
	if err != nil {
		nc.Close()
		return
	}

	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		conn.Close()
		return
	}
	e.conns = append(e.conns, conn)
	e.mu.Unlock()

	go func() {
		for ch := range chans {
			ch.Reject(ssh.UnknownChannelType, "edge accepts no channels") //nolint:errcheck
		}
	}()

	for req := range reqs {
		switch req.Type {
		case proto.BindRequest:
			e.handleBind(conn, req)
		case proto.UnbindRequest:
			e.handleUnbind(req)
		case proto.KeepaliveRequest:
			req.Reply(true, nil) //nolint:errcheck
		default:
			req.Reply(false, nil) //nolint:errcheck
		}
	}
}

func (e *Edge) handleBind(conn *ssh.ServerConn, req *ssh.Request) {
	var bind proto.BindReq
	if err := proto.Unmarshal(req.Payload, &bind); err != nil {
		req.Reply(false, nil) //nolint:errcheck
		return
	}

	e.mu.Lock()
	e.binds = append(e.binds, bind)
	respond := e.responder
	e.mu.Unlock()

	resp := respond(bind)
	if resp.ErrorKind == "" {
		e.mu.Lock()
		e.owners[resp.TunnelID] = conn
		e.mu.Unlock()
	}

	payload, err := proto.Marshal(&resp)
	if err != nil {
		req.Reply(false, nil) //nolint:errcheck
		return
	}
	req.Reply(true, payload) //nolint:errcheck
}

func (e *Edge) handleUnbind(req *ssh.Request) {
	var unbind proto.UnbindReq
	if err := proto.Unmarshal(req.Payload, &unbind); err != nil {
		req.Reply(false, nil) //nolint:errcheck
		return
	}
	e.mu.Lock()
	e.unbinds = append(e.unbinds, unbind.TunnelID)
	delete(e.owners, unbind.TunnelID)
	e.mu.Unlock()
	req.Reply(true, nil) //nolint:errcheck
}
