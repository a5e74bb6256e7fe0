package server

import (
	"encoding/json"
	"errors"
	"net"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/boardcast/boardcast/pkg/database"
	"github.com/boardcast/boardcast/pkg/protocol"
)

// mockAddr implements net.Addr for testing
type mockAddr struct {
	addr string
}

func (m *mockAddr) Network() string { return "tcp" }
func (m *mockAddr) String() string  { return m.addr }

// mockConn implements wsConn for testing. Writes are captured for
// inspection; reads block until a frame is queued or the conn is closed.
type mockConn struct {
	mu          sync.Mutex
	written     [][]byte
	controls    []int
	closed      bool
	failWrites  bool
	pongHandler func(string) error
	addr        string

	readCh chan []byte
}

func newMockConn() *mockConn {
	return &mockConn{
		addr:   "127.0.0.1:12345",
		readCh: make(chan []byte, 16),
	}
}

func (m *mockConn) ReadMessage() (int, []byte, error) {
	data, ok := <-m.readCh
	if !ok {
		return 0, nil, errors.New("connection closed")
	}
	return 1, data, nil
}

func (m *mockConn) WriteMessage(messageType int, data []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failWrites || m.closed {
		return errors.New("write on closed connection")
	}
	buf := make([]byte, len(data))
	copy(buf, data)
	m.written = append(m.written, buf)
	return nil
}

func (m *mockConn) WriteControl(messageType int, data []byte, deadline time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failWrites || m.closed {
		return errors.New("write on closed connection")
	}
	m.controls = append(m.controls, messageType)
	return nil
}

func (m *mockConn) SetPongHandler(h func(appData string) error) {
	m.mu.Lock()
	m.pongHandler = h
	m.mu.Unlock()
}

func (m *mockConn) RemoteAddr() net.Addr { return &mockAddr{addr: m.addr} }

func (m *mockConn) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.closed {
		m.closed = true
		close(m.readCh)
	}
	return nil
}

// queue enqueues an inbound frame for ReadMessage.
func (m *mockConn) queue(data []byte) {
	m.readCh <- data
}

func (m *mockConn) isClosed() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.closed
}

func (m *mockConn) writtenFrames() [][]byte {
	m.mu.Lock()
	defer m.mu.Unlock()
	frames := make([][]byte, len(m.written))
	copy(frames, m.written)
	return frames
}

func (m *mockConn) controlCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.controls)
}

func testSessionManager() *SessionManager {
	return NewSessionManager(zerolog.Nop(), nil)
}

func TestSessionManagerAddAndRemove(t *testing.T) {
	sm := testSessionManager()

	conn1 := newMockConn()
	conn2 := newMockConn()
	sess1 := sm.Add(conn1)
	sess2 := sm.Add(conn2)

	if sess1.ID == sess2.ID {
		t.Fatalf("Expected distinct session IDs, both got %d", sess1.ID)
	}
	if sm.CountOnline() != 2 {
		t.Errorf("Expected 2 online sessions, got %d", sm.CountOnline())
	}

	if wasAuth := sm.Remove(sess1.ID); wasAuth {
		t.Error("Unauthenticated session reported as authenticated on removal")
	}
	if sm.CountOnline() != 1 {
		t.Errorf("Expected 1 online session after removal, got %d", sm.CountOnline())
	}

	// Removal is idempotent
	if wasAuth := sm.Remove(sess1.ID); wasAuth {
		t.Error("Second removal of same session reported authenticated")
	}
}

func TestSessionManagerAuthenticatedCount(t *testing.T) {
	sm := testSessionManager()

	sess1 := sm.Add(newMockConn())
	sess2 := sm.Add(newMockConn())
	sm.Add(newMockConn())

	if sm.CountAuthenticated() != 0 {
		t.Errorf("Expected 0 authenticated, got %d", sm.CountAuthenticated())
	}

	sess1.setUser(&database.User{ID: 100001, Username: "alice"})
	sess2.setUser(&database.User{ID: 100002, Username: "bob"})

	if sm.CountAuthenticated() != 2 {
		t.Errorf("Expected 2 authenticated, got %d", sm.CountAuthenticated())
	}
	if sm.CountOnline() != 3 {
		t.Errorf("Expected 3 online, got %d", sm.CountOnline())
	}

	if wasAuth := sm.Remove(sess1.ID); !wasAuth {
		t.Error("Authenticated session not reported as authenticated on removal")
	}
	if sm.CountAuthenticated() != 1 {
		t.Errorf("Expected 1 authenticated after removal, got %d", sm.CountAuthenticated())
	}
}

func TestSetUserReportsPriorState(t *testing.T) {
	sm := testSessionManager()
	sess := sm.Add(newMockConn())

	if was := sess.setUser(&database.User{ID: 100001, Username: "alice"}); was {
		t.Error("First setUser reported session as already authenticated")
	}
	if was := sess.setUser(&database.User{ID: 100001, Username: "alice"}); !was {
		t.Error("Second setUser did not report session as already authenticated")
	}
}

func TestBroadcastReachesAllConnections(t *testing.T) {
	sm := testSessionManager()

	conns := []*mockConn{newMockConn(), newMockConn(), newMockConn()}
	sessions := make([]*Session, len(conns))
	for i, conn := range conns {
		sessions[i] = sm.Add(conn)
	}
	// Only one session is authenticated; broadcast goes to everyone anyway.
	sessions[0].setUser(&database.User{ID: 100001, Username: "alice"})

	sm.Broadcast(protocol.NewUserCount(1))

	for i, conn := range conns {
		frames := conn.writtenFrames()
		if len(frames) != 1 {
			t.Fatalf("Connection %d: expected 1 frame, got %d", i, len(frames))
		}
		var event protocol.UserCountEvent
		if err := json.Unmarshal(frames[0], &event); err != nil {
			t.Fatalf("Connection %d: failed to decode frame: %v", i, err)
		}
		if event.T != protocol.TypeUserCount || event.Count != 1 {
			t.Errorf("Connection %d: unexpected event %+v", i, event)
		}
	}
}

func TestBroadcastClosesFailedConnections(t *testing.T) {
	sm := testSessionManager()

	healthy := newMockConn()
	broken := newMockConn()
	broken.failWrites = true

	sm.Add(healthy)
	sm.Add(broken)

	sm.Broadcast(protocol.NewUserCount(2))

	if len(healthy.writtenFrames()) != 1 {
		t.Errorf("Healthy connection expected 1 frame, got %d", len(healthy.writtenFrames()))
	}
	if !broken.isClosed() {
		t.Error("Failed connection was not closed after broadcast error")
	}
	// The registry entry is reaped by the connection's receive loop, not the
	// broadcast itself.
	if sm.CountOnline() != 2 {
		t.Errorf("Expected broadcast to leave registry untouched, got %d online", sm.CountOnline())
	}
}

func TestCloseAllEmptiesRegistry(t *testing.T) {
	sm := testSessionManager()

	conns := []*mockConn{newMockConn(), newMockConn()}
	for _, conn := range conns {
		sm.Add(conn)
	}

	sm.CloseAll()

	if sm.CountOnline() != 0 {
		t.Errorf("Expected empty registry, got %d online", sm.CountOnline())
	}
	for i, conn := range conns {
		if !conn.isClosed() {
			t.Errorf("Connection %d not closed", i)
		}
	}
}

func TestOriginFromAddr(t *testing.T) {
	tests := []struct {
		name string
		addr net.Addr
		want string
	}{
		{"host and port", &mockAddr{addr: "192.168.1.50:54321"}, "192.168.1.50"},
		{"ipv6 host and port", &mockAddr{addr: "[::1]:8080"}, "::1"},
		{"no port", &mockAddr{addr: "192.168.1.50"}, "192.168.1.50"},
		{"nil addr", nil, "unknown"},
	}

	for _, tt := range tests {
		if got := originFromAddr(tt.addr); got != tt.want {
			t.Errorf("%s: expected %q, got %q", tt.name, tt.want, got)
		}
	}
}

func TestSessionsShareOriginBehindNAT(t *testing.T) {
	sm := testSessionManager()

	conn1 := newMockConn()
	conn1.addr = "203.0.113.9:1111"
	conn2 := newMockConn()
	conn2.addr = "203.0.113.9:2222"

	sess1 := sm.Add(conn1)
	sess2 := sm.Add(conn2)

	if sess1.origin != sess2.origin {
		t.Errorf("Expected shared origin, got %q and %q", sess1.origin, sess2.origin)
	}
	if sess1.origin != "203.0.113.9" {
		t.Errorf("Expected origin 203.0.113.9, got %q", sess1.origin)
	}
}
