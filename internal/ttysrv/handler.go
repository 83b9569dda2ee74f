package ttysrv

import (
	"context"
	"io"
	"log"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/gorilla/websocket"

	"github.com/Xiaohua-Shen/ttyd/internal/wsframe"
)

// WebSocketPath and Subprotocol are fixed.
const (
	WebSocketPath = "/ws"
	Subprotocol   = "tty"
)

// Handler adapts WebSocket transport events to Session and Registry calls:
// upgrade, then a blocking read loop dispatching on frame tag, with
// admission (registry caps, then path, then origin) evaluated before the
// connection is ever considered established.
type Handler struct {
	cfg      *Config
	registry *Registry
	upgrader websocket.Upgrader

	// onSession, if set, is invoked with every admitted session just
	// before its handshake and relay run. Nothing in this repository sets it.
	onSession func(*Session)
}

// NewHandler builds a Handler serving the fixed WebSocket path/subprotocol.
func NewHandler(cfg *Config, registry *Registry) *Handler {
	return &Handler{
		cfg:      cfg,
		registry: registry,
		upgrader: websocket.Upgrader{
			Subprotocols:    []string{Subprotocol},
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			// The origin decision belongs to this Handler, not the
			// transport, so the upgrader itself accepts everything and
			// ServeHTTP checks first.
			CheckOrigin: func(r *http.Request) bool { return true },
		},
	}
}

// ServeHTTP implements the admission pipeline: the registry's once/
// max_clients caps, then path, then origin, then the WebSocket upgrade —
// all evaluated as non-mutating checks. No session is registered with the
// registry until the upgrade has actually succeeded, so a request that
// never becomes a live session — a plain HTTP GET of /ws, a mismatched
// Origin, a failed upgrade — never claims the once slot and never fires
// onDrained.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	peerAddr := r.RemoteAddr
	peerHost := peerHostname(r)

	if !h.registry.CanAdmit() {
		log.Printf("ttysrv: refused connection from %s: admission cap reached", peerAddr)
		http.Error(w, "service unavailable", http.StatusServiceUnavailable)
		return
	}

	// Kept as defense in depth even though cmd/ttyd's router only mounts
	// this Handler at WebSocketPath, so a mismatched path never reaches
	// here in practice.
	if r.URL.Path != WebSocketPath {
		http.NotFound(w, r)
		return
	}

	if h.cfg.CheckOrigin && !originMatchesHost(r) {
		log.Printf("ttysrv: refused connection from %s: origin/host mismatch", r.RemoteAddr)
		http.Error(w, "forbidden", http.StatusForbidden)
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("ttysrv: upgrade failed for %s: %v", peerAddr, err)
		return
	}
	conn.SetReadLimit(MaxMessageSize)

	session := NewSession(h.cfg, h.registry, &wsConnAdapter{conn}, peerAddr, peerHost)
	if !h.registry.Admit(session) {
		log.Printf("ttysrv: refused connection from %s: admission cap reached after upgrade", peerAddr)
		session.Close(CloseUnexpectedCondition, "unexpected condition")
		return
	}

	log.Printf("ttysrv: [%s] established %s (%s), clients: %d", session.ID, peerAddr, peerHost, h.registry.Count())

	if h.onSession != nil {
		h.onSession(session)
	}

	h.run(session, conn)
}

// run drives one session end to end: handshake, then the PTY/WS relay and
// the inbound read loop concurrently, tearing the session down exactly
// once whichever side finishes first. Either the child exiting (PTY EOF,
// surfaced by RelayLoop) or the WS connection closing (surfaced by
// readLoop) ends the session; the other side is then unblocked by
// Session.Close tearing down the connection, or by signalDone/Teardown
// closing the relay's done channel.
func (h *Handler) run(s *Session, conn *websocket.Conn) {
	if err := s.RunHandshake(); err != nil {
		log.Printf("ttysrv: [%s] handshake failed: %v", s.ID, err)
		s.Close(CloseUnexpectedCondition, "unexpected condition")
		s.Teardown()
		return
	}

	relayDone := make(chan struct{})
	go func() {
		defer close(relayDone)
		code, reason := s.RelayLoop()
		s.Close(code, reason)
	}()

	code, reason := h.readLoop(s, conn)
	s.Close(code, reason)
	s.signalDone()

	<-relayDone
	s.Teardown()
}

// readLoop is the WS I/O goroutine: it blocks only in the transport's
// read, reassembling fragments into Session.rx until a complete message is
// ready, then dispatches the command byte. It returns the close
// code/reason to use for each error and edge case the relay can hit.
func (h *Handler) readLoop(s *Session, conn *websocket.Conn) (code int, reason string) {
	for {
		messageType, reader, err := conn.NextReader()
		if err != nil {
			return CloseNormal, "normal closure"
		}
		if messageType != websocket.BinaryMessage {
			continue
		}

		fragment, err := io.ReadAll(reader)
		if err != nil {
			log.Printf("ttysrv: [%s] read error: %v", s.ID, err)
			return CloseUnexpectedCondition, "unexpected condition"
		}
		if err := s.AppendRX(fragment); err != nil {
			log.Printf("ttysrv: [%s] %v, closing", s.ID, err)
			return CloseUnexpectedCondition, "unexpected condition"
		}

		msg := s.TakeRX()
		if len(msg) == 0 {
			continue
		}
		if code, reason, done := h.dispatch(s, msg); done {
			return code, reason
		}
	}
}

// dispatch handles one reassembled inbound frame. Before authentication,
// any frame other than JSON_DATA has no effect and is simply dropped; only
// an actual bad or missing auth token (JSON_DATA carrying a failed
// HandleAuth) closes the session with ClosePolicyViolation.
func (h *Handler) dispatch(s *Session, msg []byte) (code int, reason string, done bool) {
	tag, payload, ok := wsframe.DecodeCommand(msg)
	if !ok {
		return 0, "", false
	}

	if s.RequiresAuth() && !s.IsAuthenticated() && tag != wsframe.JSONData {
		log.Printf("ttysrv: [%s] ignored frame %q: not authenticated", s.ID, tag)
		return 0, "", false
	}

	switch tag {
	case wsframe.Input:
		if err := s.HandleInput(payload); err != nil {
			log.Printf("ttysrv: [%s] %v", s.ID, err)
			return CloseUnexpectedCondition, "unexpected condition", true
		}
	case wsframe.ResizeTerminal:
		s.HandleResize(payload)
	case wsframe.JSONData:
		switch s.HandleAuth(payload) {
		case AuthFailed:
			return ClosePolicyViolation, "policy violation", true
		case AuthSucceeded:
			if err := s.Spawn(); err != nil {
				log.Printf("ttysrv: [%s] pty spawn failed: %v", s.ID, err)
				return CloseUnexpectedCondition, "unexpected condition", true
			}
		case AuthIgnored:
		}
	default:
		log.Printf("ttysrv: [%s] ignored unknown command %q", s.ID, tag)
	}
	return 0, "", false
}

// originMatchesHost parses the Origin URL and derives its comparison
// string: the bare host when the port is 80 or 443, else host:port. The
// result is compared case-insensitively against the Host header.
func originMatchesHost(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" {
		return false
	}
	u, err := url.Parse(origin)
	if err != nil || u.Host == "" {
		return false
	}

	host := u.Hostname()
	port := u.Port()
	if port == "" {
		switch u.Scheme {
		case "https", "wss":
			port = "443"
		default:
			port = "80"
		}
	}

	var compare string
	if port == "80" || port == "443" {
		compare = host
	} else {
		compare = net.JoinHostPort(host, port)
	}

	return strings.EqualFold(compare, r.Host)
}

// peerHostname does a best-effort reverse lookup of the peer's address,
// falling back to the bare address on any failure.
func peerHostname(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		host = r.RemoteAddr
	}
	ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer cancel()
	names, err := net.DefaultResolver.LookupAddr(ctx, host)
	if err != nil || len(names) == 0 {
		return host
	}
	return strings.TrimSuffix(names[0], ".")
}

// wsConnAdapter adapts *websocket.Conn to the Conn interface Session uses.
type wsConnAdapter struct {
	conn *websocket.Conn
}

func (a *wsConnAdapter) WriteMessage(messageType int, data []byte) error {
	return a.conn.WriteMessage(messageType, data)
}

func (a *wsConnAdapter) WriteClose(code int, reason string) error {
	return a.conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(code, reason), time.Now().Add(time.Second))
}

func (a *wsConnAdapter) Close() error {
	return a.conn.Close()
}
