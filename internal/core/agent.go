package core

import (
	"context"
	"fmt"
	"sync"

	"golang.org/x/sync/errgroup"

	"edgetun/config"
	"edgetun/internal/metrics"
	"edgetun/session"
	"edgetun/tunnel"
	"edgetun/util"
)

// AgentMode connects to the edge, binds every configured tunnel and
// forwards its connections until the context is cancelled or the
// session is lost.
type AgentMode struct {
	Session     session.Config
	Tunnels     []config.TunnelSpec
	MetricsAddr string
	Logger      *util.Logger
	Metrics     *metrics.Collector

	// OnReady, if set, is called once every tunnel is bound.
	OnReady func([]*tunnel.Forwarder)
}

// Run blocks until ctx is cancelled (returning nil), the session to the
// edge is lost, or a tunnel stops on its own.
func (m *AgentMode) Run(ctx context.Context) error {
	if m.MetricsAddr != "" {
		srv, err := metrics.NewServer(m.MetricsAddr, m.Metrics, m.Logger.Zap())
		if err != nil {
			return fmt.Errorf("metrics endpoint: %w", err)
		}
		srv.Start()
		defer srv.Shutdown()
		m.Logger.Verbose("metrics on http://%s/metrics", srv.Addr())
	}

	m.Logger.Verbose("connecting to edge %s@%s",
		m.Session.User, util.FormatAddr(m.Session.Host, m.Session.Port))

	sess, err := session.Connect(ctx, m.Session, m.Logger, m.Metrics)
	if err != nil {
		return fmt.Errorf("connect: %w", err)
	}
	defer sess.Close()

	fwds := make([]*tunnel.Forwarder, 0, len(m.Tunnels))
	for _, spec := range m.Tunnels {
		fwd, err := Forward(ctx, sess, spec)
		if err != nil {
			closeAll(fwds)
			return err
		}
		m.Logger.Info("tunnel %s: %s → %s", spec.DisplayName(), fwd.URL(), fwd.Upstream())
		fwds = append(fwds, fwd)
	}
	if m.OnReady != nil {
		m.OnReady(fwds)
	}

	g, gctx := errgroup.WithContext(ctx)
	for _, fwd := range fwds {
		g.Go(fwd.Wait)
	}
	g.Go(func() error {
		select {
		case <-gctx.Done():
			return nil
		case <-sess.Done():
			return sess.Err()
		}
	})
	g.Go(func() error {
		<-gctx.Done()
		closeAll(fwds)
		return nil
	})

	err = g.Wait()
	if serr := sess.Err(); serr != nil {
		return fmt.Errorf("session: %w", serr)
	}
	if err != nil {
		return err
	}
	m.Logger.Verbose("shutdown complete (%d tunnels)", len(fwds))
	return nil
}

// closeAll closes forwarders concurrently so their unbinds overlap.
func closeAll(fwds []*tunnel.Forwarder) {
	var wg sync.WaitGroup
	for _, f := range fwds {
		wg.Add(1)
		go func() {
			defer wg.Done()
			f.Close() //nolint:errcheck
		}()
	}
	wg.Wait()
}
