package proto

import (
	"github.com/fxamacker/cbor/v2"
)

// encMode uses Core Deterministic Encoding so the same request always
// produces the same bytes on the wire. Nil slices and maps go out as
// empty containers, never as null.
var encMode cbor.EncMode

// decMode ignores unknown fields so older agents keep working against a
// newer edge.
var decMode cbor.DecMode

func init() {
	var err error
	opts := cbor.CoreDetEncOptions()
	opts.NilContainers = cbor.NilContainerAsEmpty
	encMode, err = opts.EncMode()
	if err != nil {
		panic("proto: CBOR encoder initialization failed: " + err.Error())
	}
	decMode, err = cbor.DecOptions{}.DecMode()
	if err != nil {
		panic("proto: CBOR decoder initialization failed: " + err.Error())
	}
}

// Marshal encodes a wire message.
func Marshal(v any) ([]byte, error) {
	return encMode.Marshal(v)
}

// Unmarshal decodes a wire message into v.
func Unmarshal(data []byte, v any) error {
	return decMode.Unmarshal(data, v)
}
