//go:build windows

package daemon

import (
	"os"
	"syscall"
)

// processAlive reports whether pid names a live process. FindProcess opens
// a handle on Windows, so it fails for exited processes.
func processAlive(pid int) bool {
	proc, err := os.FindProcess(pid)
	if err != nil {
		return false
	}
	_ = proc.Release()
	return true
}

// signalProcess delivers sig to pid. Only a kill is supported on Windows,
// so every signal terminates the process.
func signalProcess(pid int, sig syscall.Signal) error {
	proc, err := os.FindProcess(pid)
	if err != nil {
		return err
	}
	if sig == 0 {
		return proc.Release()
	}
	return proc.Kill()
}
