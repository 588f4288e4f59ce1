package tunnel

import (
	"context"
	"io"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"edgetun/internal/edgetest"
	"edgetun/internal/metrics"
	"edgetun/internal/proto"
	"edgetun/internal/retry"
	"edgetun/session"
)

func connectEdge(t *testing.T, edge *edgetest.Edge, m *metrics.Collector) *session.Session {
	t.Helper()
	sess, err := session.Connect(context.Background(), session.Config{
		Host:            edge.Host(),
		Port:            edge.Port(),
		Authtoken:       proto.NewSecretString("tok"),
		HostKeyCallback: edge.HostKeyCallback(),
		ConnTimeout:     5 * time.Second,
		Backoff:         &retry.Backoff{InitialDelay: time.Millisecond, MaxAttempts: 2},
	}, nil, m)
	require.NoError(t, err)
	t.Cleanup(func() { sess.Close() })
	return sess
}

// startEcho runs a TCP echo server and returns its address.
func startEcho(t *testing.T) string {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	t.Cleanup(func() { ln.Close() })

	go func() {
		for {
			c, err := ln.Accept()
			if err != nil {
				return
			}
			go func() {
				defer c.Close()
				io.Copy(c, c) //nolint:errcheck
			}()
		}
	}()
	return ln.Addr().String()
}

func TestForwarder_EndToEnd(t *testing.T) {
	edge := edgetest.New(t)
	m := metrics.New()
	sess := connectEdge(t, edge, m)
	echo := startEcho(t)

	fwd, err := NewTCPBuilder(sess).ListenAndForward(context.Background(), mustURL(t, "tcp://"+echo))
	require.NoError(t, err)

	binds := edge.Binds()
	require.Len(t, binds, 1)
	assert.Equal(t, "tcp://"+echo, binds[0].ForwardsTo)
	assert.Equal(t, "tcp", binds[0].Proto)

	ch, err := edge.Dial(fwd.Info().ID, "198.51.100.1:4000")
	require.NoError(t, err)

	_, err = ch.Write([]byte("hello"))
	require.NoError(t, err)
	buf := make([]byte, 5)
	_, err = io.ReadFull(ch, buf)
	require.NoError(t, err)
	assert.Equal(t, "hello", string(buf))
	ch.Close()

	assert.Eventually(t, func() bool {
		return m.TotalConnections() == 1 && m.ActiveConnections() == 0
	}, 2*time.Second, 10*time.Millisecond)
	assert.Equal(t, int64(5), m.TotalBytesIn())
	assert.Equal(t, int64(5), m.TotalBytesOut())

	require.NoError(t, fwd.Close())
	assert.Contains(t, edge.Unbinds(), fwd.Info().ID)
	assert.False(t, edge.Bound(fwd.Info().ID))

	// Close is idempotent.
	assert.NoError(t, fwd.Close())
	assert.NoError(t, fwd.Wait())
}

func TestForwarder_ConcurrentConnections(t *testing.T) {
	edge := edgetest.New(t)
	m := metrics.New()
	sess := connectEdge(t, edge, m)
	echo := startEcho(t)

	fwd, err := NewHTTPBuilder(sess).Scheme("http").ListenAndForward(context.Background(), mustURL(t, "http://"+echo))
	require.NoError(t, err)
	t.Cleanup(func() { fwd.Close() })

	const n = 8
	errs := make(chan error, n)
	for i := 0; i < n; i++ {
		go func() {
			ch, err := edge.Dial(fwd.Info().ID, "203.0.113.7:5555")
			if err != nil {
				errs <- err
				return
			}
			defer ch.Close()
			msg := []byte("ping")
			if _, err := ch.Write(msg); err != nil {
				errs <- err
				return
			}
			buf := make([]byte, len(msg))
			_, err = io.ReadFull(ch, buf)
			errs <- err
		}()
	}
	for i := 0; i < n; i++ {
		require.NoError(t, <-errs)
	}
	assert.Eventually(t, func() bool {
		return m.TotalConnections() == n
	}, 2*time.Second, 10*time.Millisecond)
}

func TestForwarder_UpstreamUnreachable(t *testing.T) {
	edge := edgetest.New(t)
	m := metrics.New()
	sess := connectEdge(t, edge, m)

	// Grab a port and release it so nothing is listening there.
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	dead := ln.Addr().String()
	ln.Close()

	fwd, err := NewTCPBuilder(sess).ListenAndForward(context.Background(), mustURL(t, "tcp://"+dead))
	require.NoError(t, err)
	t.Cleanup(func() { fwd.Close() })

	ch, err := edge.Dial(fwd.Info().ID, "198.51.100.2:1000")
	require.NoError(t, err)

	// The forwarder gives up on the upstream and closes the tunnel side.
	_, err = io.ReadAll(ch)
	assert.NoError(t, err)

	assert.Eventually(t, func() bool {
		return m.ErrorCount() >= 1 && m.ActiveConnections() == 0
	}, 2*time.Second, 10*time.Millisecond)
}

func TestForwarder_WaitReportsLostSession(t *testing.T) {
	edge := edgetest.New(t)
	sess := connectEdge(t, edge, nil)
	echo := startEcho(t)

	fwd, err := NewTCPBuilder(sess).ListenAndForward(context.Background(), mustURL(t, "tcp://"+echo))
	require.NoError(t, err)

	edge.DropConnections()

	done := make(chan error, 1)
	go func() { done <- fwd.Wait() }()

	select {
	case err := <-done:
		assert.ErrorIs(t, err, net.ErrClosed)
	case <-time.After(5 * time.Second):
		t.Fatal("Wait did not return after the session was lost")
	}
	<-sess.Done()
}

func TestForwarder_HalfClosedClientGetsReply(t *testing.T) {
	edge := edgetest.New(t)
	sess := connectEdge(t, edge, nil)

	// The service replies only after the request has been fully read.
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	t.Cleanup(func() { ln.Close() })
	go func() {
		c, err := ln.Accept()
		if err != nil {
			return
		}
		defer c.Close()
		req, err := io.ReadAll(c)
		if err != nil {
			return
		}
		c.Write(append([]byte("got "), req...)) //nolint:errcheck
	}()

	fwd, err := NewTCPBuilder(sess).ListenAndForward(context.Background(), mustURL(t, "tcp://"+ln.Addr().String()))
	require.NoError(t, err)
	t.Cleanup(func() { fwd.Close() })

	ch, err := edge.Dial(fwd.Info().ID, "198.51.100.7:5000")
	require.NoError(t, err)
	defer ch.Close()

	_, err = ch.Write([]byte("request"))
	require.NoError(t, err)
	require.NoError(t, ch.CloseWrite())

	got, err := io.ReadAll(ch)
	require.NoError(t, err)
	assert.Equal(t, "got request", string(got))
}
