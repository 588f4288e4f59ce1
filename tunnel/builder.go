package tunnel

import (
	"context"
	"fmt"
	"net/url"

	"edgetun/internal/metrics"
	"edgetun/internal/transport"
	"edgetun/options"
	"edgetun/session"
	"edgetun/util"
)

// bundle is the pointer side of an option bundle O.
type bundle[O any] interface {
	*O
	options.TunnelConfig
	WithForwardsTo(string)
	Clone() O
}

// builder pairs an option bundle with the session that binds it. The
// per-protocol builders embed it and add their own setters; everything
// else is shared.
type builder[O any, PO bundle[O], T Tunnel] struct {
	sess Session
	opts O
	wrap func(session.Tunnel) T
}

func newBuilder[O any, PO bundle[O], T Tunnel](s Session, wrap func(session.Tunnel) T) builder[O, PO, T] {
	return builder[O, PO, T]{sess: s, wrap: wrap}
}

// Options returns a copy of the options collected so far.
func (b *builder[O, PO, T]) Options() O {
	return PO(&b.opts).Clone()
}

// Listen binds a tunnel with a snapshot of the current options. The
// builder is not modified and may be reused.
func (b *builder[O, PO, T]) Listen(ctx context.Context) (T, error) {
	var zero T
	if b.sess == nil {
		return zero, ErrNoSession
	}
	snapshot := PO(&b.opts).Clone()
	t, err := b.sess.StartTunnel(ctx, PO(&snapshot))
	if err != nil {
		return zero, err
	}
	return b.wrap(t), nil
}

// ListenAndForward binds a tunnel whose forwards-to label is to, then
// forwards every connection it accepts to that URL. If the bind fails
// no forwarder is started.
func (b *builder[O, PO, T]) ListenAndForward(ctx context.Context, to *url.URL) (*Forwarder, error) {
	if to == nil {
		return nil, fmt.Errorf("listen and forward: no destination URL")
	}
	upstream, err := transport.ForURL(to)
	if err != nil {
		return nil, fmt.Errorf("listen and forward: %w", err)
	}

	clone := b.clone()
	PO(&clone.opts).WithForwardsTo(to.String())

	t, err := clone.Listen(ctx)
	if err != nil {
		return nil, err
	}
	ln, info := t.SplitListener()
	logger, m := instrumentation(b.sess)
	return forward(ln, info, PO(&clone.opts).Proto(), upstream, logger, m), nil
}

func (b *builder[O, PO, T]) clone() builder[O, PO, T] {
	out := *b
	out.opts = PO(&b.opts).Clone()
	return out
}

// instrumented is implemented by sessions that share their logger and
// metrics with the forwarders started on them.
type instrumented interface {
	Logger() *util.Logger
	Metrics() *metrics.Collector
}

func instrumentation(s Session) (*util.Logger, *metrics.Collector) {
	if in, ok := s.(instrumented); ok {
		return in.Logger(), in.Metrics()
	}
	return util.NewLogger(int(util.LogQuiet)), nil
}
