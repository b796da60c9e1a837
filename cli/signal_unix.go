//go:build !windows

package cli

import (
	"os"
	"syscall"
)

// StopSignals end a long-running command gracefully.
var StopSignals = []os.Signal{
	os.Interrupt,
	syscall.SIGTERM,
	syscall.SIGHUP,
}

// InterruptSignals are sent by a user at the terminal.
var InterruptSignals = []os.Signal{
	os.Interrupt,
}
