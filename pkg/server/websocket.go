package server

import (
	"net/http"

	"github.com/gorilla/websocket"

	"github.com/boardcast/boardcast/pkg/protocol"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
	CheckOrigin: func(r *http.Request) bool {
		// Browser clients connect from arbitrary origins; auth happens in
		// the handshake event, not at upgrade time.
		return true
	},
}

// HandleWebSocket upgrades the HTTP connection and runs its receive loop.
// Each connection's inbound events are processed one at a time, in arrival
// order; events from different connections run concurrently.
func (s *Server) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	ws, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.Debug().Err(err).Msg("websocket upgrade failed")
		return
	}

	sess := s.sessions.Add(ws)
	s.log.Debug().Uint64("session", sess.ID).Str("origin", sess.origin).Msg("connection opened")

	s.readLoop(sess)
}

// readLoop dequeues inbound events in order until the transport closes, then
// runs the disconnect path.
func (s *Server) readLoop(sess *Session) {
	defer s.dropSession(sess)

	sess.conn.SetPongHandler(func(string) error {
		sess.markAlive()
		return nil
	})

	for {
		_, data, err := sess.conn.ReadMessage()
		if err != nil {
			s.log.Debug().Uint64("session", sess.ID).Err(err).Msg("connection closed")
			return
		}

		s.handleEvent(sess, data)
	}
}

// dropSession runs the disconnect path: unconditional registry removal,
// regardless of prior state, plus a presence update if the connection was
// authenticated.
func (s *Server) dropSession(sess *Session) {
	wasAuthenticated := s.sessions.Remove(sess.ID)
	sess.conn.Close()

	if wasAuthenticated {
		s.broadcastPresence()
	}
}

// handleEvent dispatches one inbound event. Per-event failures are reported
// to the originating connection only; they never close the connection or
// escape the receive loop.
func (s *Server) handleEvent(sess *Session, data []byte) {
	tag, err := protocol.Tag(data)
	if err != nil {
		// No detail leaked about what failed to parse.
		sess.Send(protocol.NewError("malformed message"))
		return
	}

	if s.metrics != nil {
		s.metrics.RecordEventReceived(tag)
	}

	switch tag {
	case protocol.TypeHello:
		s.handleHello(sess, data)
	case protocol.TypePost:
		s.handlePost(sess, data)
	default:
		sess.Send(protocol.NewError("malformed message"))
	}
}
