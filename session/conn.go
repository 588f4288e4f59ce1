package session

import (
	"net"
	"time"

	"golang.org/x/crypto/ssh"
)

// chanConn wraps an [ssh.Channel] to satisfy [net.Conn].
type chanConn struct {
	ssh.Channel
	laddr net.Addr
	raddr net.Addr
}

func (c *chanConn) LocalAddr() net.Addr                { return c.laddr }
func (c *chanConn) RemoteAddr() net.Addr               { return c.raddr }
func (c *chanConn) SetDeadline(_ time.Time) error      { return nil }
func (c *chanConn) SetReadDeadline(_ time.Time) error  { return nil }
func (c *chanConn) SetWriteDeadline(_ time.Time) error { return nil }

// CloseWrite half-closes the channel so the edge sees EOF while replies
// can still be read.
func (c *chanConn) CloseWrite() error { return c.Channel.CloseWrite() }

// edgeAddr is a net.Addr reported by the edge as a plain string.
type edgeAddr struct {
	network string
	addr    string
}

func (a edgeAddr) Network() string { return a.network }
func (a edgeAddr) String() string  { return a.addr }

// clientAddr resolves the address the edge reports for a remote client,
// keeping the raw text when it is not an IP endpoint.
func clientAddr(s string) net.Addr {
	if ap, err := net.ResolveTCPAddr("tcp", s); err == nil && ap.IP != nil {
		return ap
	}
	return edgeAddr{network: "tcp", addr: s}
}
