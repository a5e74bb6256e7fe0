package server

import (
	"encoding/json"
	"net"
	"sync"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/boardcast/boardcast/pkg/database"
)

// Session represents an open client connection. It is created on accept,
// gains an identity on a successful handshake, and is destroyed on
// disconnect. Never persisted.
type Session struct {
	ID     uint64
	conn   wsConn
	origin string // network origin used for rate limiting

	mu    sync.RWMutex
	user  *database.User // nil until authenticated
	alive bool           // answered the last liveness probe

	writeMu sync.Mutex // serializes writes from the event loop, broadcasts and probes
}

// Send marshals an event and writes it to the connection. Safe for
// concurrent use.
func (s *Session) Send(event interface{}) error {
	data, err := json.Marshal(event)
	if err != nil {
		return err
	}

	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	return s.conn.WriteMessage(websocket.TextMessage, data)
}

// User returns the resolved identity, or nil while unauthenticated.
func (s *Session) User() *database.User {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.user
}

// setUser attaches an identity and reports whether the session was already
// authenticated.
func (s *Session) setUser(user *database.User) (wasAuthenticated bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	wasAuthenticated = s.user != nil
	s.user = user
	return wasAuthenticated
}

// markAlive records a probe answer.
func (s *Session) markAlive() {
	s.mu.Lock()
	s.alive = true
	s.mu.Unlock()
}

// aliveAndArm reports whether the last probe was answered and arms the next
// one by clearing the flag.
func (s *Session) aliveAndArm() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	was := s.alive
	s.alive = false
	return was
}

// SessionManager owns the registry of open connections and their identities.
// All mutation paths (connect, authenticate, disconnect, sweep) go through
// its lock.
type SessionManager struct {
	mu       sync.RWMutex
	sessions map[uint64]*Session
	nextID   uint64

	metrics *Metrics
	log     zerolog.Logger
}

// NewSessionManager creates an empty registry.
func NewSessionManager(log zerolog.Logger, metrics *Metrics) *SessionManager {
	return &SessionManager{
		sessions: make(map[uint64]*Session),
		nextID:   1,
		metrics:  metrics,
		log:      log.With().Str("component", "registry").Logger(),
	}
}

// Add registers a freshly accepted connection. New sessions start alive;
// they have not been probed yet.
func (sm *SessionManager) Add(conn wsConn) *Session {
	sm.mu.Lock()
	defer sm.mu.Unlock()

	sess := &Session{
		ID:     sm.nextID,
		conn:   conn,
		origin: originFromAddr(conn.RemoteAddr()),
		alive:  true,
	}
	sm.nextID++
	sm.sessions[sess.ID] = sess

	if sm.metrics != nil {
		sm.metrics.RecordActiveConnections(len(sm.sessions))
		sm.metrics.RecordConnectionOpened()
	}

	return sess
}

// Remove unconditionally deletes the session from the registry and reports
// whether it was authenticated. Idempotent.
func (sm *SessionManager) Remove(sessionID uint64) (wasAuthenticated bool) {
	sm.mu.Lock()
	sess, ok := sm.sessions[sessionID]
	if !ok {
		sm.mu.Unlock()
		return false
	}
	delete(sm.sessions, sessionID)
	count := len(sm.sessions)
	sm.mu.Unlock()

	if sm.metrics != nil {
		sm.metrics.RecordActiveConnections(count)
		sm.metrics.RecordConnectionClosed()
	}

	return sess.User() != nil
}

// Snapshot returns the current set of open sessions. Broadcast and the
// liveness sweep iterate the snapshot so sessions closing mid-iteration are
// simply skipped.
func (sm *SessionManager) Snapshot() []*Session {
	sm.mu.RLock()
	defer sm.mu.RUnlock()

	sessions := make([]*Session, 0, len(sm.sessions))
	for _, sess := range sm.sessions {
		sessions = append(sessions, sess)
	}
	return sessions
}

// CountOnline returns the number of open connections.
func (sm *SessionManager) CountOnline() int {
	sm.mu.RLock()
	defer sm.mu.RUnlock()
	return len(sm.sessions)
}

// CountAuthenticated returns the presence count: open connections with a
// resolved identity.
func (sm *SessionManager) CountAuthenticated() int {
	sm.mu.RLock()
	defer sm.mu.RUnlock()

	count := 0
	for _, sess := range sm.sessions {
		if sess.User() != nil {
			count++
		}
	}
	return count
}

// Broadcast delivers an event to every open connection regardless of
// authentication state, best-effort: a failed send is logged and skipped, it
// never fails the triggering operation. Failed connections are closed so
// their receive loops run the disconnect path.
func (sm *SessionManager) Broadcast(event interface{}) {
	data, err := json.Marshal(event)
	if err != nil {
		sm.log.Error().Err(err).Msg("failed to marshal broadcast event")
		return
	}

	sessions := sm.Snapshot()
	delivered := 0
	for _, sess := range sessions {
		sess.writeMu.Lock()
		err := sess.conn.WriteMessage(websocket.TextMessage, data)
		sess.writeMu.Unlock()
		if err != nil {
			sm.log.Debug().Uint64("session", sess.ID).Err(err).Msg("broadcast send failed")
			sess.conn.Close()
			continue
		}
		delivered++
	}

	if sm.metrics != nil {
		sm.metrics.RecordBroadcast(delivered)
	}
}

// CloseAll closes every connection and empties the registry.
func (sm *SessionManager) CloseAll() {
	sm.mu.Lock()
	defer sm.mu.Unlock()

	for _, sess := range sm.sessions {
		sess.conn.Close()
	}
	sm.sessions = make(map[uint64]*Session)
}

// originFromAddr reduces a remote address to its host part. Distinct users
// behind shared NAT share an origin.
func originFromAddr(addr net.Addr) string {
	if addr == nil {
		return "unknown"
	}
	host, _, err := net.SplitHostPort(addr.String())
	if err != nil {
		return addr.String()
	}
	return host
}
