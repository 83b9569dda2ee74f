// Package ttysrv implements the per-client session engine: the WebSocket
// protocol state machine, the authentication handshake, the PTY/WebSocket
// relay with backpressure, admission control, and ordered teardown.
package ttysrv

import (
	"fmt"
	"syscall"
)

// Config is the immutable, process-wide configuration consumed by the
// core. It is read-only after construction and safe to share across
// goroutines without locking.
type Config struct {
	// Argv is the command+arguments forked for every session. Argv[0] is
	// the executable. Must be non-empty.
	Argv []string

	// Credential, when non-empty, requires every session to authenticate
	// via a JSON_DATA AuthToken before a PTY is spawned.
	Credential string

	// Readonly, when true, causes INPUT frames to be silently discarded.
	Readonly bool

	// CheckOrigin, when true, requires the WS Origin host to match Host.
	CheckOrigin bool

	// Once, when true, admits at most one session over the process
	// lifetime; its close triggers process exit.
	Once bool

	// MaxClients caps concurrent sessions. 0 means unlimited.
	MaxClients int

	// Signal is sent to the child on teardown.
	Signal syscall.Signal

	// SignalName is the human-readable name of Signal, used only for
	// logging.
	SignalName string

	// KillGrace bounds how long teardown waits, in milliseconds, after
	// Signal before escalating to SIGKILL. Zero uses a built-in default
	// grace period; a negative value disables escalation entirely and
	// teardown waits indefinitely for the child to exit on its own.
	KillGrace int

	// Reconnect is the seconds hint sent to the client as SET_RECONNECT.
	Reconnect int

	// PrefsJSON is forwarded verbatim as SET_PREFERENCES; the core never
	// inspects its structure.
	PrefsJSON string
}

// Validate checks Config's basic invariants.
func (c *Config) Validate() error {
	if len(c.Argv) == 0 {
		return fmt.Errorf("ttysrv: config: argv must be non-empty")
	}
	if c.MaxClients < 0 {
		return fmt.Errorf("ttysrv: config: max_clients must be >= 0")
	}
	return nil
}
