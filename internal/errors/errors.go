// Package errors provides domain-specific error types for edgetun.
//
// These types carry structured context (operation, address, bind
// category) that helps callers decide how to handle failures and gives
// better diagnostics than plain string wrapping.
package errors

import (
	"errors"
	"fmt"
	"net"
)

// ── Sentinel errors ──────────────────────────────────────────────────

var (
	ErrSessionClosed   = errors.New("session is closed")
	ErrTunnelClosed    = errors.New("tunnel is closed")
	ErrCircuitOpen     = errors.New("circuit breaker is open")
	ErrAuthFailed      = errors.New("authentication failed")
	ErrHostKeyMismatch = errors.New("host key mismatch")
)

// ── Bind errors ──────────────────────────────────────────────────────

// BindKind categorizes why the edge did not establish a tunnel.
type BindKind int

const (
	// KindTransport means the request never got a definitive answer:
	// the connection dropped, the context ended, or the reply was
	// unreadable.
	KindTransport BindKind = iota
	// KindRejected means the edge refused the configuration.
	KindRejected
	// KindUnauthorized means the credentials were not accepted.
	KindUnauthorized
)

func (k BindKind) String() string {
	switch k {
	case KindTransport:
		return "transport"
	case KindRejected:
		return "rejected"
	case KindUnauthorized:
		return "unauthorized"
	default:
		return "unknown"
	}
}

// BindError is the single error kind surfaced by Listen and
// ListenAndForward.
type BindError struct {
	Kind  BindKind
	Proto string // protocol of the tunnel, empty for labeled tunnels
	Err   error
}

func (e *BindError) Error() string {
	proto := e.Proto
	if proto == "" {
		proto = "labeled"
	}
	return fmt.Sprintf("bind %s tunnel (%s): %v", proto, e.Kind, e.Err)
}

func (e *BindError) Unwrap() error { return e.Err }

// ── Structured error types ───────────────────────────────────────────

// NetworkError represents a failure in a network operation.
type NetworkError struct {
	Op        string // operation: "dial", "accept", "forward"
	Addr      string // network address involved
	Err       error  // underlying error
	Retryable bool   // whether the caller should retry
}

func (e *NetworkError) Error() string {
	s := fmt.Sprintf("%s %s: %v", e.Op, e.Addr, e.Err)
	if e.Retryable {
		s += " (retryable)"
	}
	return s
}

func (e *NetworkError) Unwrap() error { return e.Err }

// SSHError represents an SSH-specific failure with host context.
type SSHError struct {
	Op   string // "handshake", "auth", "hostkey"
	Host string
	Port int
	Err  error
}

func (e *SSHError) Error() string {
	return fmt.Sprintf("ssh %s %s:%d: %v", e.Op, e.Host, e.Port, e.Err)
}

func (e *SSHError) Unwrap() error { return e.Err }

// ConfigError represents an invalid configuration value.
type ConfigError struct {
	Field   string      // config field name
	Value   interface{} // the invalid value (nil if missing)
	Message string      // human-readable explanation
	Hint    string      // suggestion for the user (optional)
}

func (e *ConfigError) Error() string {
	msg := fmt.Sprintf("config: %s", e.Field)
	if e.Value != nil {
		msg += fmt.Sprintf("=%v", e.Value)
	}
	msg += ": " + e.Message
	if e.Hint != "" {
		msg += "\n  hint: " + e.Hint
	}
	return msg
}

// ── Constructors ─────────────────────────────────────────────────────

// Wrap creates a NetworkError, automatically detecting retryability
// from the underlying error.
func Wrap(op, addr string, err error) *NetworkError {
	return &NetworkError{
		Op:        op,
		Addr:      addr,
		Err:       err,
		Retryable: classifyRetryable(err),
	}
}

// WrapSSH creates an SSHError.
func WrapSSH(op, host string, port int, err error) *SSHError {
	return &SSHError{Op: op, Host: host, Port: port, Err: err}
}

// Rejected creates a BindError for a configuration the edge refused.
func Rejected(proto string, err error) *BindError {
	return &BindError{Kind: KindRejected, Proto: proto, Err: err}
}

// Unauthorized creates a BindError for refused credentials.
func Unauthorized(proto string, err error) *BindError {
	return &BindError{Kind: KindUnauthorized, Proto: proto, Err: err}
}

// Transport creates a BindError for a failed exchange.
func Transport(proto string, err error) *BindError {
	return &BindError{Kind: KindTransport, Proto: proto, Err: err}
}

// ── Classification helpers ───────────────────────────────────────────

// IsRejected reports whether err is a BindError of kind KindRejected.
func IsRejected(err error) bool { return bindKind(err) == KindRejected }

// IsUnauthorized reports whether err is a BindError of kind KindUnauthorized.
func IsUnauthorized(err error) bool { return bindKind(err) == KindUnauthorized }

// IsTransport reports whether err is a BindError of kind KindTransport.
func IsTransport(err error) bool { return bindKind(err) == KindTransport }

func bindKind(err error) BindKind {
	var be *BindError
	if errors.As(err, &be) {
		return be.Kind
	}
	return -1
}

// classifyRetryable inspects standard library error types.
func classifyRetryable(err error) bool {
	if err == nil {
		return false
	}
	var opErr *net.OpError
	if errors.As(err, &opErr) {
		return opErr.Temporary() //nolint:staticcheck // Temporary is deprecated but still useful
	}
	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) {
		return dnsErr.Temporary() //nolint:staticcheck
	}
	return false
}

// ── Re-exports for convenience ───────────────────────────────────────
//
// These allow callers to use edgetun/internal/errors as a drop-in
// replacement for the standard library in common operations.

// As is [errors.As].
func As(err error, target interface{}) bool { return errors.As(err, target) }

// Is is [errors.Is].
func Is(err, target error) bool { return errors.Is(err, target) }

// New is [errors.New].
func New(text string) error { return errors.New(text) }

// Join is [errors.Join].
func Join(errs ...error) error { return errors.Join(errs...) }
