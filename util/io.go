package util

import (
	"context"
	"errors"
	"io"
	"net"
	"sync"
)

// DefaultBufSize is the copy buffer size for forwarded connections.
const DefaultBufSize = 32 * 1024

// copyBufs holds the buffers of in-flight Bridge copies.
var copyBufs = sync.Pool{
	New: func() any {
		buf := make([]byte, DefaultBufSize)
		return &buf
	},
}

// Bridge copies data in both directions between a and b until both
// directions finish, a copy fails or ctx is cancelled. When one side
// reaches EOF the other is half-closed with CloseWrite, if it supports
// it, so replies still flow back. Both connections are closed on
// return. It reports the bytes moved in each direction and the first
// copy error that is not an ordinary shutdown condition.
func Bridge(ctx context.Context, a, b net.Conn) (aToB, bToA int64, err error) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	var wg sync.WaitGroup
	errCh := make(chan error, 2)
	pipe := func(dst, src net.Conn, n *int64) {
		defer wg.Done()
		var err error
		*n, err = pooledCopy(dst, src)
		errCh <- err
		if err == nil && closeWrite(dst) == nil {
			return
		}
		cancel()
	}
	wg.Add(2)
	go pipe(b, a, &aToB)
	go pipe(a, b, &bToA)

	finished := make(chan struct{})
	go func() {
		wg.Wait()
		close(finished)
	}()
	select {
	case <-finished:
	case <-ctx.Done():
	}
	a.Close()
	b.Close()
	<-finished
	close(errCh)

	for e := range errCh {
		if !isHarmless(e) {
			return aToB, bToA, e
		}
	}
	return aToB, bToA, nil
}

// closeWrite signals EOF to the peer of c while keeping its read side
// open.
func closeWrite(c net.Conn) error {
	if hc, ok := c.(interface{ CloseWrite() error }); ok {
		return hc.CloseWrite()
	}
	return errors.ErrUnsupported
}

func pooledCopy(dst io.Writer, src io.Reader) (int64, error) {
	buf := copyBufs.Get().(*[]byte)
	defer copyBufs.Put(buf)
	return io.CopyBuffer(dst, src, *buf)
}

// isHarmless returns true for errors that are expected during shutdown.
func isHarmless(err error) bool {
	if err == nil {
		return true
	}
	if errors.Is(err, io.EOF) || errors.Is(err, net.ErrClosed) || errors.Is(err, io.ErrClosedPipe) {
		return true
	}
	// net.OpError wrapping "use of closed network connection"
	var opErr *net.OpError
	if errors.As(err, &opErr) {
		return errors.Is(opErr.Err, net.ErrClosed)
	}
	return false
}
