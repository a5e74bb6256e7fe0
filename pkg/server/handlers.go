package server

import (
	"encoding/json"
	"errors"

	"github.com/boardcast/boardcast/pkg/database"
	"github.com/boardcast/boardcast/pkg/protocol"
	"github.com/boardcast/boardcast/pkg/sanitize"
)

// handleHello handles the authentication handshake. On success the session
// gains an identity and a presence update goes out; on failure the session
// stays unauthenticated and may retry.
func (s *Server) handleHello(sess *Session, data []byte) {
	var req protocol.HelloRequest
	if err := json.Unmarshal(data, &req); err != nil {
		sess.Send(protocol.NewError("malformed message"))
		return
	}

	// The handshake itself is rate limited by origin, before any identity
	// exists.
	if !s.limiter.Allow(sess.origin) {
		if s.metrics != nil {
			s.metrics.RecordRateLimited("hello")
		}
		sess.Send(protocol.NewHelloError("rate limited"))
		return
	}

	user, ok := s.auth.Verify(req.Token)
	if !ok {
		sess.Send(protocol.NewHelloError("invalid token"))
		return
	}

	wasAuthenticated := sess.setUser(user)
	s.log.Info().Uint64("session", sess.ID).Int64("user", user.ID).Str("username", user.Username).Msg("authenticated")

	sess.Send(protocol.NewHelloOK())
	if !wasAuthenticated {
		s.broadcastPresence()
	}
}

// handlePost handles message creation over the live connection. The result
// is echoed to the sender only; the new message is broadcast to everyone.
func (s *Server) handlePost(sess *Session, data []byte) {
	var req protocol.PostRequest
	if err := json.Unmarshal(data, &req); err != nil {
		sess.Send(protocol.NewError("malformed message"))
		return
	}

	user := sess.User()
	if user == nil {
		sess.Send(protocol.NewPostError("authentication required"))
		return
	}

	if !s.limiter.Allow(sess.origin) {
		if s.metrics != nil {
			s.metrics.RecordRateLimited("post")
		}
		sess.Send(protocol.NewPostError("rate limited"))
		return
	}

	msg, err := s.postAndBroadcast(user, req.Message.Content, req.Message.ParentID)
	if err != nil {
		sess.Send(protocol.NewPostError(s.postErrorText(err, sess.ID)))
		return
	}

	s.log.Debug().Uint64("session", sess.ID).Int64("message", msg.ID).Msg("message posted")
	sess.Send(protocol.NewPostOK())
}

// postErrorText maps a post failure to its client-visible text. Store
// failures are logged with their cause and reported generically.
func (s *Server) postErrorText(err error, sessionID uint64) string {
	switch {
	case errors.Is(err, ErrContentRequired):
		return "message content required"
	case errors.Is(err, ErrContentTooLong):
		return "message too long"
	case errors.Is(err, sanitize.ErrEmpty):
		return "message empty after sanitization"
	case errors.Is(err, database.ErrParentNotFound):
		return "parent message not found"
	default:
		s.log.Error().Err(err).Uint64("session", sessionID).Msg("post failed")
		return "internal error"
	}
}
