package ttysrv

import (
	"log"
	"os"
	"time"

	"github.com/Xiaohua-Shen/ttyd/internal/tty"
)

// terminateWithGrace signals p with cfg.Signal, then waits for it to be
// reaped. A signal-only teardown is a latent hang if the child masks the
// configured signal, so unless cfg.KillGrace is negative, it escalates to
// SIGKILL after the grace period elapses — cfg.KillGrace milliseconds if
// positive, or defaultKillGraceMillis if zero.
func terminateWithGrace(p *tty.Process, cfg *Config) {
	if err := p.Terminate(cfg.Signal); err != nil {
		log.Printf("ttysrv: sending %s to pid %d: %v", cfg.SignalName, p.Pid, err)
	}

	waited := make(chan *waitResult, 1)
	go func() {
		state, err := p.Wait()
		waited <- &waitResult{state: state, err: err}
	}()

	if cfg.KillGrace < 0 {
		r := <-waited
		logExit(p.Pid, r)
		return
	}

	grace := time.Duration(cfg.KillGrace) * time.Millisecond
	if cfg.KillGrace == 0 {
		grace = defaultKillGraceMillis * time.Millisecond
	}

	select {
	case r := <-waited:
		logExit(p.Pid, r)
		return
	case <-time.After(grace):
	}

	log.Printf("ttysrv: pid %d did not exit within grace period, sending SIGKILL", p.Pid)
	if err := p.Kill(); err != nil {
		log.Printf("ttysrv: SIGKILL pid %d: %v", p.Pid, err)
	}
	r := <-waited
	logExit(p.Pid, r)
}

type waitResult struct {
	state *os.ProcessState
	err   error
}

// logExit decodes the reaped child's status via tty.ExitStatus and reports
// exit code and terminating signal distinctly, rather than logging the raw
// undecoded waitpid status.
func logExit(pid int, r *waitResult) {
	if r.err != nil {
		log.Printf("ttysrv: waiting for pid %d: %v", pid, r.err)
		return
	}
	exited, code, signaled, sig := tty.ExitStatus(r.state)
	switch {
	case exited:
		log.Printf("ttysrv: pid %d exited with code %d", pid, code)
	case signaled:
		log.Printf("ttysrv: pid %d terminated by signal %s", pid, sig)
	default:
		log.Printf("ttysrv: pid %d reaped, status undetermined", pid)
	}
}
