package options

import (
	"fmt"
	"os"
	"sync/atomic"
)

const unknownComponent = "<unknown>"

var defaultForwardsTo atomic.Pointer[string]

// DefaultForwardsTo describes this agent instance as
// app://<hostname>/<executable>?pid=<pid>. It is used as the forwards-to
// label of any tunnel that does not set one.
//
// The value is computed once per process. Concurrent first callers may
// each compute it; the first stored result wins and is returned to all.
func DefaultForwardsTo() string {
	if v := defaultForwardsTo.Load(); v != nil {
		return *v
	}
	v := resolveForwardsTo()
	if defaultForwardsTo.CompareAndSwap(nil, &v) {
		return v
	}
	return *defaultForwardsTo.Load()
}

func resolveForwardsTo() string {
	hostname, err := os.Hostname()
	if err != nil {
		hostname = unknownComponent
	}
	exe, err := os.Executable()
	if err != nil {
		exe = unknownComponent
	}
	return fmt.Sprintf("app://%s/%s?pid=%d", hostname, exe, os.Getpid())
}
