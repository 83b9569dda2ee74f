// Package tty forks child processes onto a pseudo-terminal and exposes the
// master side for reading, writing, and resizing.
package tty

import (
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"syscall"

	"github.com/creack/pty"
)

// Process is a forked child attached to a PTY master/slave pair.
type Process struct {
	Pid    int
	Master *os.File

	cmd *exec.Cmd
}

// Spawn forks a child session-leader with argv as its image, attached to a
// freshly allocated PTY. argv[0] is the executable; argv must be non-empty.
//
// The child's controlling terminal is set via Setsid+Setctty (unix) so that
// TIOCSWINSZ delivers SIGWINCH to its foreground process group.
func Spawn(argv []string) (*Process, error) {
	if len(argv) == 0 {
		return nil, fmt.Errorf("tty: spawn requires a non-empty argv")
	}

	cmd := exec.Command(argv[0], argv[1:]...)
	cmd.Env = append(os.Environ(), "TERM=xterm-256color")
	setProcAttr(cmd)

	master, err := pty.Start(cmd)
	if err != nil {
		return nil, fmt.Errorf("tty: spawn %s: %w", argv[0], err)
	}

	return &Process{
		Pid:    cmd.Process.Pid,
		Master: master,
		cmd:    cmd,
	}, nil
}

// SetWinsize issues the window-size ioctl for the PTY. Best-effort: a
// failure here is logged by the caller but never kills the session.
func (p *Process) SetWinsize(cols, rows uint16) error {
	return pty.Setsize(p.Master, &pty.Winsize{Cols: cols, Rows: rows})
}

// Write writes to the PTY master. Callers must treat a short write as an
// IOError and escalate (the underlying os.File.Write already returns an
// error on any partial write).
func (p *Process) Write(b []byte) (int, error) {
	return p.Master.Write(b)
}

// Read reads from the PTY master. Returns (0, io.EOF) on clean child exit.
func (p *Process) Read(b []byte) (int, error) {
	n, err := p.Master.Read(b)
	if err != nil && errors.Is(err, syscall.EIO) {
		// Linux reports the slave side closing as EIO rather than EOF.
		err = io.EOF
	}
	return n, err
}

// Close closes the PTY master fd.
func (p *Process) Close() error {
	return p.Master.Close()
}

// Wait blocks until the child has been reaped.
func (p *Process) Wait() (*os.ProcessState, error) {
	return p.cmd.Process.Wait()
}
