package tunnel

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/url"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"edgetun/internal/metrics"
	"edgetun/internal/transport"
	"edgetun/session"
	"edgetun/util"
)

// Forwarder copies every connection accepted on a tunnel to an
// upstream service. It owns the tunnel's listener.
type Forwarder struct {
	info     session.Info
	proto    string
	upstream *transport.Upstream
	listener net.Listener
	logger   *util.Logger
	metrics  *metrics.Collector

	ctx    context.Context
	cancel context.CancelFunc
	group  *errgroup.Group

	closeOnce sync.Once
	waitOnce  sync.Once
	closing   chan struct{}
	err       error
}

// forward starts forwarding connections from ln to upstream and returns
// immediately.
func forward(ln net.Listener, info session.Info, proto string, upstream *transport.Upstream, logger *util.Logger, m *metrics.Collector) *Forwarder {
	ctx, cancel := context.WithCancel(context.Background())
	g, ctx := errgroup.WithContext(ctx)

	f := &Forwarder{
		info:     info,
		proto:    proto,
		upstream: upstream,
		listener: ln,
		logger:   logger,
		metrics:  m,
		ctx:      ctx,
		cancel:   cancel,
		group:    g,
		closing:  make(chan struct{}),
	}

	logger.Info("forwarding %s → %s", info.URL, upstream.URL)
	g.Go(f.acceptLoop)
	return f
}

// Info describes the tunnel being forwarded.
func (f *Forwarder) Info() session.Info { return f.info }

// URL returns the tunnel's public URL.
func (f *Forwarder) URL() string { return f.info.URL }

// Upstream returns the destination connections are forwarded to.
func (f *Forwarder) Upstream() *url.URL { return f.upstream.URL }

// Proto returns the tunnel protocol, empty for labeled tunnels.
func (f *Forwarder) Proto() string { return f.proto }

// Wait blocks until the tunnel stops accepting and every forwarded
// connection has finished. It returns nil after Close and the accept
// error when the tunnel ended on its own.
func (f *Forwarder) Wait() error {
	f.waitOnce.Do(func() {
		f.err = f.group.Wait()
		f.cancel()
	})
	return f.err
}

// Close unbinds the tunnel, aborts in-flight connections and waits for
// them to finish.
func (f *Forwarder) Close() error {
	var closeErr error
	f.closeOnce.Do(func() {
		close(f.closing)
		closeErr = f.listener.Close()
		f.cancel()
	})
	if err := f.Wait(); err != nil {
		return err
	}
	return closeErr
}

func (f *Forwarder) acceptLoop() error {
	for {
		conn, err := f.listener.Accept()
		if err != nil {
			select {
			case <-f.closing:
				return nil
			default:
			}
			f.logger.Warn("forwarder %s: accept: %v", f.info.URL, err)
			return fmt.Errorf("forward %s: %w", f.info.URL, err)
		}

		f.metrics.ConnectionOpened(f.proto)
		f.group.Go(func() error {
			f.handle(conn)
			return nil
		})
	}
}

// handle bridges a single tunnel connection to the upstream service.
func (f *Forwarder) handle(conn net.Conn) {
	defer f.metrics.ConnectionClosed()
	defer conn.Close()

	start := time.Now()
	remote := conn.RemoteAddr().String()

	upstream, err := f.upstream.Dial(f.ctx)
	if err != nil {
		f.logger.Error("forwarder: %v", err)
		f.metrics.RecordError(err.Error())
		return
	}

	f.logger.Verbose("forwarder: bridging %s ↔ %s", remote, f.upstream.Addr)

	in, out, err := util.Bridge(f.ctx, conn, upstream)
	f.metrics.BytesReceived(in)
	f.metrics.BytesSent(out)
	if err != nil && !errors.Is(err, context.Canceled) {
		f.logger.Debug("forwarder: %s: %v", remote, err)
	}

	f.logger.Verbose("forwarder: %s closed after %v (in=%d out=%d)",
		remote, time.Since(start).Truncate(time.Millisecond), in, out)
}
