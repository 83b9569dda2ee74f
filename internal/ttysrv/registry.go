package ttysrv

import "sync"

// Registry is the process-wide set of live sessions. It enforces the
// once/max_clients admission caps and triggers process exit when the last
// session of a once run closes.
type Registry struct {
	mu       sync.Mutex
	clients  map[*Session]struct{}
	once     bool
	maxCount int

	// onDrained fires exactly once, with the registry mutex released,
	// when once is true and the last admitted session has closed.
	onDrained func()
	admitted  bool // once has admitted its single session
}

// NewRegistry builds a registry enforcing the given config's once/
// max_clients caps. onDrained may be nil.
func NewRegistry(cfg *Config, onDrained func()) *Registry {
	return &Registry{
		clients:   make(map[*Session]struct{}),
		once:      cfg.Once,
		maxCount:  cfg.MaxClients,
		onDrained: onDrained,
	}
}

// admissionLocked reports whether a new session currently passes the
// once/max_clients caps. Callers must hold mu.
func (r *Registry) admissionLocked() bool {
	if r.once && r.admitted {
		return false
	}
	if r.maxCount > 0 && len(r.clients) == r.maxCount {
		return false
	}
	return true
}

// CanAdmit is a non-mutating peek at the once/max_clients caps. Handler
// uses it to reject a connection cheaply before the path check, the origin
// check, and the WebSocket upgrade run -- none of which should be paid for
// (or, worse, need to be unwound) when the caps already forbid the
// connection. It never registers anything, so a caller that stops here
// never needs to call Remove.
func (r *Registry) CanAdmit() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.admissionLocked()
}

// Admit re-checks the once/max_clients caps and, if they still pass,
// registers s as live. This is the only call that mutates the admitted
// client set, and it must only be called once the WebSocket upgrade has
// actually succeeded, after the earlier checks (caps, path, origin) have
// already passed. Re-checking the caps here, rather than trusting a prior
// CanAdmit, closes the race window between that peek and the upgrade
// completing.
func (r *Registry) Admit(s *Session) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	if !r.admissionLocked() {
		return false
	}

	r.clients[s] = struct{}{}
	r.admitted = true
	return true
}

// Remove unregisters a session. If once is set and this call is the one
// that drains the registry to zero, onDrained fires after the lock is
// released. A redundant Remove of a session already gone is a no-op, so
// onDrained never fires more than once.
func (r *Registry) Remove(s *Session) {
	r.mu.Lock()
	_, present := r.clients[s]
	delete(r.clients, s)
	drained := present && r.once && len(r.clients) == 0
	r.mu.Unlock()

	if drained && r.onDrained != nil {
		r.onDrained()
	}
}

// Count reports the number of live sessions.
func (r *Registry) Count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.clients)
}
