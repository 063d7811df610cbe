package process

import (
	"fmt"
	"strconv"
	"strings"
	"syscall"
)

// namedSignals is the fixed set spec.md §6 allows on the `kill{signal}`
// verb: {hup, int, quit, kill, term, cont, stop}, case-insensitive.
var namedSignals = map[string]syscall.Signal{
	"hup":  syscall.SIGHUP,
	"int":  syscall.SIGINT,
	"quit": syscall.SIGQUIT,
	"kill": syscall.SIGKILL,
	"term": syscall.SIGTERM,
	"cont": syscall.SIGCONT,
	"stop": syscall.SIGSTOP,
}

// ParseSignal resolves a `kill` request's optional signal field to a
// syscall.Signal. An empty name defaults to SIGTERM (spec.md §4.5: "the
// default is an interrupt/terminate signal"). Names are matched
// case-insensitively against the fixed set; a bare integer is accepted as
// its numeric equivalent.
func ParseSignal(name string) (syscall.Signal, error) {
	if name == "" {
		return syscall.SIGTERM, nil
	}
	if sig, ok := namedSignals[strings.ToLower(name)]; ok {
		return sig, nil
	}
	if n, err := strconv.Atoi(name); err == nil {
		return syscall.Signal(n), nil
	}
	return 0, fmt.Errorf("unrecognized signal %q", name)
}
