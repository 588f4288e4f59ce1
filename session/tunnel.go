package session

import (
	"context"
	"fmt"
	"net"
	"sync"
	"time"

	"edgetun/internal/errors"
)

const (
	acceptBacklog = 16
	unbindTimeout = 5 * time.Second
)

// Info describes a tunnel as the edge established it.
type Info struct {
	ID         string
	URL        string
	Proto      string
	ForwardsTo string
	Metadata   string
	Labels     map[string]string
}

// Tunnel is a bound endpoint on the edge. Accept yields connections
// that clients opened against the tunnel's URL.
type Tunnel interface {
	net.Listener

	ID() string
	URL() string
	Proto() string
	ForwardsTo() string
	Metadata() string
	Labels() map[string]string
	Info() Info

	// SplitListener hands off the accepting side together with the
	// tunnel's metadata. After the call the returned listener is the
	// only handle that should accept or close.
	SplitListener() (net.Listener, Info)

	// CloseWithContext unbinds the tunnel, waiting at most until ctx
	// ends for the edge to acknowledge.
	CloseWithContext(ctx context.Context) error
}

type tunnel struct {
	sess     *Session
	info     Info
	incoming chan net.Conn
	done     chan struct{}
	stop     sync.Once
	once     sync.Once
	closeErr error
}

func newTunnel(s *Session, info Info) *tunnel {
	return &tunnel{
		sess:     s,
		info:     info,
		incoming: make(chan net.Conn, acceptBacklog),
		done:     make(chan struct{}),
	}
}

func (t *tunnel) ID() string         { return t.info.ID }
func (t *tunnel) URL() string        { return t.info.URL }
func (t *tunnel) Proto() string      { return t.info.Proto }
func (t *tunnel) ForwardsTo() string { return t.info.ForwardsTo }
func (t *tunnel) Metadata() string   { return t.info.Metadata }

func (t *tunnel) Labels() map[string]string {
	return copyLabels(t.info.Labels)
}

func (t *tunnel) Info() Info {
	info := t.info
	info.Labels = copyLabels(t.info.Labels)
	return info
}

func (t *tunnel) SplitListener() (net.Listener, Info) {
	return t, t.Info()
}

// Addr reports the public URL of the tunnel.
func (t *tunnel) Addr() net.Addr {
	network := t.info.Proto
	if network == "" {
		network = "labeled"
	}
	return edgeAddr{network: network, addr: t.info.URL}
}

// Accept waits for the next connection the edge routes to this tunnel.
func (t *tunnel) Accept() (net.Conn, error) {
	select {
	case <-t.done:
		return nil, t.closedErr()
	case conn := <-t.incoming:
		return conn, nil
	}
}

// Close unbinds the tunnel and unblocks Accept.
func (t *tunnel) Close() error {
	ctx, cancel := context.WithTimeout(context.Background(), unbindTimeout)
	defer cancel()
	return t.CloseWithContext(ctx)
}

func (t *tunnel) CloseWithContext(ctx context.Context) error {
	t.once.Do(func() {
		t.shutdown()
		t.closeErr = t.sess.unbind(ctx, t.info.ID)
	})
	return t.closeErr
}

// shutdown stops accepting locally without talking to the edge.
func (t *tunnel) shutdown() {
	t.stop.Do(func() {
		close(t.done)
		t.sess.forget(t.info.ID)
	})
	t.drain()
}

func (t *tunnel) drain() {
	for {
		select {
		case conn := <-t.incoming:
			conn.Close()
		default:
			return
		}
	}
}

// deliver queues conn for Accept, closing it if the tunnel has gone.
func (t *tunnel) deliver(conn net.Conn) {
	select {
	case t.incoming <- conn:
	case <-t.done:
		conn.Close()
		return
	}
	// shutdown may have drained before the send landed
	select {
	case <-t.done:
		t.drain()
	default:
	}
}

func (t *tunnel) closedErr() error {
	return fmt.Errorf("tunnel %s: %w: %w", t.info.ID, errors.ErrTunnelClosed, net.ErrClosed)
}

func copyLabels(in map[string]string) map[string]string {
	if in == nil {
		return nil
	}
	out := make(map[string]string, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}
