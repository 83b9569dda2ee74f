//go:build !windows

package tty

import (
	"os"
	"os/exec"
	"syscall"
)

// setProcAttr makes the child a session leader with this PTY as its
// controlling terminal.
func setProcAttr(cmd *exec.Cmd) {
	cmd.SysProcAttr = &syscall.SysProcAttr{
		Setsid:  true,
		Setctty: true,
	}
}

// Terminate sends sig to the child exactly once, relying on the caller's
// grace period for escalation rather than retrying here.
func (p *Process) Terminate(sig syscall.Signal) error {
	return p.cmd.Process.Signal(sig)
}

// Kill sends SIGKILL unconditionally. Used by the session as the
// escalation after a bounded grace period has elapsed without the child
// exiting on its own.
func (p *Process) Kill() error {
	return p.cmd.Process.Signal(syscall.SIGKILL)
}

// ExitStatus decodes a reaped child's exit status rather than logging the
// raw waitpid status undecoded. exited reports a normal exit (code
// meaningful); otherwise the child was killed by signaled with sig.
func ExitStatus(state *os.ProcessState) (exited bool, code int, signaled bool, sig syscall.Signal) {
	ws, ok := state.Sys().(syscall.WaitStatus)
	if !ok {
		return false, 0, false, 0
	}
	if ws.Exited() {
		return true, ws.ExitStatus(), false, 0
	}
	if ws.Signaled() {
		return false, 0, true, ws.Signal()
	}
	return false, 0, false, 0
}
