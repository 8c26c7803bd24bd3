//go:build !windows
// +build !windows

package cmd

import (
	"os"

	"golang.org/x/sys/unix"
)

// terminate asks the process to stop with SIGTERM, giving it a chance to
// finish its own output.
func terminate(p *os.Process) error {
	return unix.Kill(p.Pid, unix.SIGTERM)
}
