package ttysrv

import (
	"crypto/subtle"
	"fmt"
	"io"
	"log"
	"sync"

	"github.com/google/uuid"

	"github.com/Xiaohua-Shen/ttyd/internal/tty"
	"github.com/Xiaohua-Shen/ttyd/internal/wsframe"
)

// websocketBinaryMessage mirrors gorilla/websocket.BinaryMessage's wire
// value (2). It is redefined here so that the session/relay logic does not
// need to import the transport package directly — only Handler (the
// gorilla adapter) does.
const websocketBinaryMessage = 2

// WS close codes sent on session teardown.
const (
	CloseNormal              = 1000
	ClosePolicyViolation     = 1008
	CloseUnexpectedCondition = 1011
)

// MaxMessageSize caps the receive-assembly buffer. Without this cap a
// client that sends partial fragments and never a final one would grow rx
// unboundedly; the session closes instead once the cap is exceeded.
const MaxMessageSize = 1 << 20 // 1 MiB

// defaultKillGraceMillis is the grace period terminateWithGrace uses
// before escalating to SIGKILL when Config.KillGrace is 0.
const defaultKillGraceMillis = 2000

// Conn is the subset of a WebSocket connection the session needs. Handler
// adapts a *websocket.Conn to this interface; tests supply a fake.
type Conn interface {
	WriteMessage(messageType int, data []byte) error
	WriteClose(code int, reason string) error
	Close() error
}

// relayItem is one slot of the single-chunk producer/consumer handoff
// between the PTY reader and the WS writer — channel capacity 1 stands in
// for a pending-chunk flag plus a mutex/condvar pair.
type relayItem struct {
	data []byte
	err  error // nil and len(data)==0 is never sent; EOF is signaled by err == io.EOF
}

// Session is one WebSocket connection bound to one PTY.
type Session struct {
	ID           uuid.UUID
	PeerAddress  string
	PeerHostname string

	cfg      *Config
	registry *Registry
	conn     Conn

	mu              sync.Mutex
	authenticated   bool
	initialized     bool
	initialCmdIndex int
	running         bool

	pty *tty.Process

	// winsize is the last window size received via RESIZE_TERMINAL,
	// applied to the PTY immediately if one is live, and replayed onto a
	// freshly spawned PTY in Spawn. Zero until the first resize arrives.
	winsize wsframe.WindowSize

	rx []byte

	relay chan relayItem
	done  chan struct{}

	// BlockedHook, if set, is invoked by the PTY reader immediately before
	// it blocks waiting for the WS writer to drain the previous chunk —
	// an instrumentation point for observing backpressure in tests.
	BlockedHook func()

	teardownOnce sync.Once
	doneOnce     sync.Once
	closeOnce    sync.Once
}

// signalDone closes done, unblocking RelayLoop and any producer blocked in
// send. Idempotent. Handler calls this as soon as either side of the
// relay (WS read or PTY read) finishes, so the other side never blocks
// past the point the session is effectively over; Teardown calls it too,
// for the case nothing else ever did.
func (s *Session) signalDone() {
	s.doneOnce.Do(func() {
		close(s.done)
	})
}

// Close sends a WS close frame with the given code and reason, then
// closes the connection. Safe to call more than once, and from more than
// one goroutine — only the first call takes effect, so either the PTY
// side or the WS side of the relay can decide how the session ends.
func (s *Session) Close(code int, reason string) {
	s.closeOnce.Do(func() {
		_ = s.conn.WriteClose(code, reason)
		s.conn.Close()
	})
}

// NewSession constructs a session in the INIT state. The caller must still
// register it with registry (via Registry.Admit) before running its
// handshake and relay (see Handler.run).
func NewSession(cfg *Config, registry *Registry, conn Conn, peerAddress, peerHostname string) *Session {
	return &Session{
		ID:           uuid.New(),
		PeerAddress:  peerAddress,
		PeerHostname: peerHostname,
		cfg:          cfg,
		registry:     registry,
		conn:         conn,
		relay:        make(chan relayItem, 1),
		done:         make(chan struct{}),
	}
}

// handshakeFrame returns the next handshake frame to emit, or ok=false once
// all three have been sent. Order is fixed: SET_WINDOW_TITLE, SET_RECONNECT,
// SET_PREFERENCES.
func (s *Session) handshakeFrame() (frame []byte, ok bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	switch s.initialCmdIndex {
	case 0:
		title := wsframe.WindowTitle(s.cfg.Argv[0], s.PeerHostname)
		frame = wsframe.Encode(wsframe.SetWindowTitle, title)
	case 1:
		frame = wsframe.Encode(wsframe.SetReconnect, wsframe.Reconnect(s.cfg.Reconnect))
	case 2:
		frame = wsframe.Encode(wsframe.SetPreferences, []byte(s.cfg.PrefsJSON))
	default:
		s.initialized = true
		return nil, false
	}
	s.initialCmdIndex++
	return frame, true
}

// RunHandshake sends the three handshake frames in order, then marks the
// session initialized. Returns an error if any write fails — the caller
// must then tear the session down with CloseUnexpectedCondition.
func (s *Session) RunHandshake() error {
	for {
		frame, ok := s.handshakeFrame()
		if !ok {
			return nil
		}
		if err := s.conn.WriteMessage(websocketBinaryMessage, frame); err != nil {
			return fmt.Errorf("ttysrv: handshake write: %w", err)
		}
	}
}

// IsInitialized reports whether the handshake has completed.
func (s *Session) IsInitialized() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.initialized
}

// IsAuthenticated reports the auth gate state.
func (s *Session) IsAuthenticated() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.authenticated
}

// RequiresAuth reports whether a credential is configured.
func (s *Session) RequiresAuth() bool {
	return s.cfg.Credential != ""
}

// HasStarted reports whether the PTY has been spawned.
func (s *Session) HasStarted() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.pty != nil
}

// AppendRX appends a fragment to the receive-assembly buffer. Returns an
// error if the cap (MaxMessageSize) would be exceeded.
func (s *Session) AppendRX(fragment []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.rx)+len(fragment) > MaxMessageSize {
		return fmt.Errorf("ttysrv: message exceeds %d bytes", MaxMessageSize)
	}
	s.rx = append(s.rx, fragment...)
	return nil
}

// TakeRX returns the assembled message and resets rx for the next one.
func (s *Session) TakeRX() []byte {
	s.mu.Lock()
	defer s.mu.Unlock()
	msg := s.rx
	s.rx = nil
	return msg
}

// HandleInput writes payload to the PTY, unless readonly.
func (s *Session) HandleInput(payload []byte) error {
	if s.cfg.Readonly {
		return nil
	}
	s.mu.Lock()
	p := s.pty
	s.mu.Unlock()
	if p == nil {
		return nil
	}
	if _, err := p.Write(payload); err != nil {
		return fmt.Errorf("ttysrv: write INPUT to pty: %w", err)
	}
	return nil
}

// HandleResize parses and applies a RESIZE_TERMINAL payload. Malformed
// JSON or ioctl failure is logged and ignored, never fatal. The size is
// remembered even if no PTY is live yet, so Spawn can apply it at fork
// time instead of silently dropping a resize that arrived early.
func (s *Session) HandleResize(payload []byte) {
	ws, err := wsframe.ParseWindowSize(payload)
	if err != nil {
		log.Printf("ttysrv: [%s] malformed RESIZE_TERMINAL: %v", s.ID, err)
		return
	}

	s.mu.Lock()
	s.winsize = ws
	p := s.pty
	s.mu.Unlock()

	if p == nil {
		return
	}
	if err := p.SetWinsize(uint16(ws.Columns), uint16(ws.Rows)); err != nil {
		log.Printf("ttysrv: [%s] TIOCSWINSZ failed: %v", s.ID, err)
	}
}

// AuthResult is returned by HandleAuth.
type AuthResult int

const (
	AuthIgnored AuthResult = iota // a child already exists; second JSON_DATA is a no-op
	AuthSucceeded
	AuthFailed
)

// HandleAuth processes a JSON_DATA frame: the authentication handshake.
// A second JSON_DATA after the child exists is ignored.
func (s *Session) HandleAuth(payload []byte) AuthResult {
	if s.HasStarted() {
		return AuthIgnored
	}

	if s.cfg.Credential == "" {
		s.mu.Lock()
		s.authenticated = true
		s.mu.Unlock()
		return AuthSucceeded
	}

	msg, err := wsframe.ParseAuth(payload)
	if err != nil {
		log.Printf("ttysrv: [%s] malformed JSON_DATA: %v", s.ID, err)
		return AuthFailed
	}
	if msg.AuthToken == "" || subtle.ConstantTimeCompare([]byte(msg.AuthToken), []byte(s.cfg.Credential)) != 1 {
		log.Printf("ttysrv: [%s] authentication failed", s.ID)
		return AuthFailed
	}

	s.mu.Lock()
	s.authenticated = true
	s.mu.Unlock()
	return AuthSucceeded
}

// Spawn forks the configured argv onto a PTY and starts the producer
// goroutine that feeds the relay channel. Must be called at most once,
// after a successful HandleAuth. Any window size received before the
// child existed (see HandleResize) is applied immediately rather than
// waiting for the next RESIZE_TERMINAL.
func (s *Session) Spawn() error {
	p, err := tty.Spawn(s.cfg.Argv)
	if err != nil {
		return err
	}

	s.mu.Lock()
	s.pty = p
	s.running = true
	ws := s.winsize
	s.mu.Unlock()

	if ws.Columns > 0 && ws.Rows > 0 {
		if err := p.SetWinsize(uint16(ws.Columns), uint16(ws.Rows)); err != nil {
			log.Printf("ttysrv: [%s] TIOCSWINSZ failed: %v", s.ID, err)
		}
	}

	go s.ptyLoop(p)
	return nil
}

// ptyLoop is the PTY worker goroutine: it blocks on PTY readability, then
// blocks on the relay channel until the WS writer has drained the previous
// chunk — channel capacity 1 gives the "at most one chunk in flight"
// invariant without an explicit condition variable.
func (s *Session) ptyLoop(p *tty.Process) {
	buf := make([]byte, 32*1024)
	for {
		n, err := p.Read(buf)
		var item relayItem
		if n > 0 {
			item.data = append([]byte(nil), buf[:n]...)
		}
		if err != nil {
			if err == io.EOF {
				item.err = io.EOF
			} else {
				item.err = err
			}
			s.send(item)
			return
		}
		if n > 0 {
			s.send(item)
		}
	}
}

// send delivers item to the relay channel, invoking BlockedHook if the
// consumer has not yet drained the previous chunk. It gives up once the
// session is torn down, so a producer blocked here never outlives
// RelayLoop.
func (s *Session) send(item relayItem) {
	select {
	case s.relay <- item:
		return
	default:
	}
	if s.BlockedHook != nil {
		s.BlockedHook()
	}
	select {
	case s.relay <- item:
	case <-s.done:
	}
}

// RelayLoop is the WS writer side of the producer/consumer handoff: for
// each chunk it forwards an OUTPUT frame, or on EOF/error decides the
// close code and returns. It is a plain loop rather than a callback
// because Go's WebSocket API has no separate writable event — one
// goroutine owns all writes. It also returns as soon as Teardown closes
// done, so a session that closes before a PTY is ever spawned does not
// block here forever.
func (s *Session) RelayLoop() (closeCode int, reason string) {
	for {
		select {
		case item := <-s.relay:
			if item.err != nil {
				if item.err == io.EOF {
					return CloseNormal, "normal closure"
				}
				return CloseUnexpectedCondition, "unexpected condition"
			}
			if len(item.data) == 0 {
				continue
			}
			frame := wsframe.Encode(wsframe.Output, item.data)
			if err := s.conn.WriteMessage(websocketBinaryMessage, frame); err != nil {
				return CloseUnexpectedCondition, "unexpected condition"
			}
		case <-s.done:
			return CloseNormal, "normal closure"
		}
	}
}

// Teardown runs the ordered shutdown: signal the child, wait for it, close
// the PTY, release buffers, and remove from the registry. Safe to call
// more than once; only the first call acts.
func (s *Session) Teardown() {
	s.teardownOnce.Do(func() {
		s.mu.Lock()
		s.running = false
		p := s.pty
		s.mu.Unlock()

		s.signalDone()

		if p != nil {
			terminateWithGrace(p, s.cfg)
			p.Close()
		}

		s.mu.Lock()
		s.rx = nil
		s.mu.Unlock()

		if s.registry != nil {
			s.registry.Remove(s)
		}
	})
}
