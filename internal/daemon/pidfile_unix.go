//go:build !windows

package daemon

import "syscall"

// processAlive probes pid with signal 0, which checks for existence and
// permission without delivering anything.
func processAlive(pid int) bool {
	return syscall.Kill(pid, 0) == nil
}

func signalProcess(pid int, sig syscall.Signal) error {
	return syscall.Kill(pid, sig)
}
