package tty

import (
	"io"
	"strings"
	"syscall"
	"testing"
	"time"
)

// TestSpawnEchoRoundTrip exercises the PTY master read/write path end to
// end.
func TestSpawnEchoRoundTrip(t *testing.T) {
	p, err := Spawn([]string{"cat"})
	if err != nil {
		t.Fatalf("Spawn: %v", err)
	}
	defer p.Close()

	if _, err := p.Write([]byte("hello\n")); err != nil {
		t.Fatalf("Write: %v", err)
	}

	buf := make([]byte, 256)
	var got strings.Builder
	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) && !strings.Contains(got.String(), "hello") {
		p.Master.SetReadDeadline(time.Now().Add(200 * time.Millisecond))
		n, err := p.Read(buf)
		if n > 0 {
			got.Write(buf[:n])
		}
		if err != nil && err != io.EOF && !isTimeout(err) {
			t.Fatalf("Read: %v", err)
		}
	}

	if !strings.Contains(got.String(), "hello") {
		t.Fatalf("expected echoed output to contain %q, got %q", "hello", got.String())
	}

	if err := p.Terminate(syscall.SIGHUP); err != nil {
		t.Fatalf("Terminate: %v", err)
	}
	state, err := p.Wait()
	if err != nil {
		t.Fatalf("Wait: %v", err)
	}
	if state == nil {
		t.Fatal("Wait returned nil state")
	}
}

func isTimeout(err error) bool {
	te, ok := err.(interface{ Timeout() bool })
	return ok && te.Timeout()
}

func TestSpawnRejectsEmptyArgv(t *testing.T) {
	if _, err := Spawn(nil); err == nil {
		t.Fatal("expected error for empty argv")
	}
}

func TestSetWinsize(t *testing.T) {
	p, err := Spawn([]string{"cat"})
	if err != nil {
		t.Fatalf("Spawn: %v", err)
	}
	defer p.Close()
	defer func() {
		p.Terminate(syscall.SIGHUP)
		p.Wait()
	}()

	if err := p.SetWinsize(132, 40); err != nil {
		t.Fatalf("SetWinsize: %v", err)
	}
}

func TestTerminateAndWaitReapsChild(t *testing.T) {
	p, err := Spawn([]string{"sleep", "30"})
	if err != nil {
		t.Fatalf("Spawn: %v", err)
	}
	defer p.Close()

	if err := p.Terminate(syscall.SIGTERM); err != nil {
		t.Fatalf("Terminate: %v", err)
	}

	done := make(chan struct{})
	go func() {
		p.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("Wait did not return after Terminate")
	}
}

func TestExitStatusDecodesSignal(t *testing.T) {
	p, err := Spawn([]string{"sleep", "30"})
	if err != nil {
		t.Fatalf("Spawn: %v", err)
	}
	defer p.Close()

	if err := p.Terminate(syscall.SIGKILL); err != nil {
		t.Fatalf("Terminate: %v", err)
	}
	state, err := p.Wait()
	if err != nil {
		t.Fatalf("Wait: %v", err)
	}

	exited, _, signaled, sig := ExitStatus(state)
	if exited {
		t.Fatalf("expected a signaled exit, got a normal exit")
	}
	if !signaled || sig != syscall.SIGKILL {
		t.Fatalf("expected SIGKILL, got signaled=%v sig=%v", signaled, sig)
	}
}
