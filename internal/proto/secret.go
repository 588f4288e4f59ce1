package proto

import (
	"fmt"

	"github.com/fxamacker/cbor/v2"
)

const redacted = "********"

// SecretString holds a credential that must reach the edge but never a
// log line. Every textual rendering is redacted; only Value and the wire
// encoding expose the content.
type SecretString struct {
	value string
}

// NewSecretString wraps s.
func NewSecretString(s string) SecretString {
	return SecretString{value: s}
}

// Value returns the secret for transmission.
func (s SecretString) Value() string { return s.value }

// IsEmpty reports whether no secret has been set.
func (s SecretString) IsEmpty() bool { return s.value == "" }

func (s SecretString) String() string   { return redacted }
func (s SecretString) GoString() string { return redacted }

// Format redacts for every verb, including %q, %x and %#v.
func (s SecretString) Format(f fmt.State, _ rune) {
	fmt.Fprint(f, redacted)
}

// MarshalText keeps encoders that honour encoding.TextMarshaler (zap's
// reflect encoder, encoding/json) from leaking the value.
func (s SecretString) MarshalText() ([]byte, error) {
	return []byte(redacted), nil
}

// MarshalCBOR encodes the real value; CBOR is only used on the wire.
func (s SecretString) MarshalCBOR() ([]byte, error) {
	return encMode.Marshal(s.value)
}

// UnmarshalCBOR decodes a secret sent on the wire.
func (s *SecretString) UnmarshalCBOR(data []byte) error {
	return cbor.Unmarshal(data, &s.value)
}
