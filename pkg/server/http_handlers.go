package server

import (
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/boardcast/boardcast/pkg/auth"
	"github.com/boardcast/boardcast/pkg/database"
	"github.com/boardcast/boardcast/pkg/protocol"
	"github.com/boardcast/boardcast/pkg/sanitize"
)

// threadPageResponse is the wire shape of a board page.
type threadPageResponse struct {
	Page       int                `json:"page"`
	TotalPages int                `json:"totalPages"`
	Messages   []protocol.Message `json:"messages"`
}

type userResponse struct {
	ID        int64  `json:"id"`
	Username  string `json:"username"`
	CreatedAt int64  `json:"createdAt"`
}

type credentialsRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// writeJSON sends a JSON response with the given status code.
func (s *Server) writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		s.log.Error().Err(err).Msg("failed to write response")
	}
}

// writeError sends a JSON error response with the given status code.
func (s *Server) writeError(w http.ResponseWriter, status int, message string) {
	s.writeJSON(w, status, map[string]string{"error": message})
}

// HealthHandler reports liveness for load balancers and monitoring.
func (s *Server) HealthHandler(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
}

// ListMessagesHandler serves one page of the board, newest threads first.
// The page is selected with ?p= and defaults to the first page.
func (s *Server) ListMessagesHandler(w http.ResponseWriter, r *http.Request) {
	page := 1
	if raw := r.URL.Query().Get("p"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil {
			s.writeError(w, http.StatusBadRequest, "invalid page number")
			return
		}
		page = parsed
	}

	threadPage, err := s.db.ListPage(page)
	if err != nil {
		s.log.Error().Err(err).Int("page", page).Msg("failed to list messages")
		s.writeError(w, http.StatusInternalServerError, "internal error")
		return
	}

	resp := threadPageResponse{
		Page:       threadPage.Page,
		TotalPages: threadPage.TotalPages,
		Messages:   make([]protocol.Message, 0, len(threadPage.Messages)),
	}
	for _, msg := range threadPage.Messages {
		resp.Messages = append(resp.Messages, toProtocolMessage(msg))
	}

	s.writeJSON(w, http.StatusOK, resp)
}

// PostMessageHandler accepts a message over HTTP from an authenticated user.
// The post is persisted and fanned out to open connections exactly like a
// realtime post.
func (s *Server) PostMessageHandler(w http.ResponseWriter, r *http.Request) {
	user, ok := s.bearerUser(r)
	if !ok {
		s.writeError(w, http.StatusUnauthorized, "invalid token")
		return
	}

	origin := remoteHost(r)
	if !s.limiter.Allow(origin) {
		if s.metrics != nil {
			s.metrics.RecordRateLimited("post")
		}
		s.writeError(w, http.StatusTooManyRequests, "rate limited")
		return
	}

	var body protocol.PostBody
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		s.writeError(w, http.StatusBadRequest, "malformed request")
		return
	}

	msg, err := s.postAndBroadcast(user, body.Content, body.ParentID)
	if err != nil {
		switch {
		case errors.Is(err, ErrContentRequired), errors.Is(err, ErrContentTooLong), errors.Is(err, sanitize.ErrEmpty):
			s.writeError(w, http.StatusBadRequest, err.Error())
		case errors.Is(err, database.ErrParentNotFound):
			s.writeError(w, http.StatusNotFound, "parent message not found")
		default:
			s.log.Error().Err(err).Int64("author", user.ID).Msg("post failed")
			s.writeError(w, http.StatusInternalServerError, "internal error")
		}
		return
	}

	s.writeJSON(w, http.StatusCreated, toProtocolMessage(msg))
}

// GetUserHandler serves a user's public profile.
func (s *Server) GetUserHandler(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid user id")
		return
	}

	user, err := s.db.GetUser(id)
	if err != nil {
		if errors.Is(err, database.ErrUserNotFound) {
			s.writeError(w, http.StatusNotFound, "user not found")
			return
		}
		s.log.Error().Err(err).Int64("user", id).Msg("failed to load user")
		s.writeError(w, http.StatusInternalServerError, "internal error")
		return
	}

	s.writeJSON(w, http.StatusOK, userResponse{
		ID:        user.ID,
		Username:  user.Username,
		CreatedAt: user.CreatedAt,
	})
}

// RegisterHandler creates a new account.
func (s *Server) RegisterHandler(w http.ResponseWriter, r *http.Request) {
	var req credentialsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, "malformed request")
		return
	}

	user, err := s.auth.Register(req.Username, req.Password)
	if err != nil {
		switch {
		case errors.Is(err, database.ErrUsernameTaken):
			s.writeError(w, http.StatusConflict, "username taken")
		case errors.Is(err, auth.ErrUsernameInvalid), errors.Is(err, auth.ErrUsernameTooLong),
			errors.Is(err, auth.ErrPasswordRequired):
			s.writeError(w, http.StatusBadRequest, err.Error())
		default:
			s.log.Error().Err(err).Msg("registration failed")
			s.writeError(w, http.StatusInternalServerError, "internal error")
		}
		return
	}

	s.log.Info().Int64("user", user.ID).Str("username", user.Username).Msg("user registered")
	s.writeJSON(w, http.StatusCreated, userResponse{
		ID:        user.ID,
		Username:  user.Username,
		CreatedAt: user.CreatedAt,
	})
}

// LoginHandler verifies credentials and issues a connection token.
func (s *Server) LoginHandler(w http.ResponseWriter, r *http.Request) {
	var req credentialsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, "malformed request")
		return
	}

	token, err := s.auth.Login(req.Username, req.Password)
	if err != nil {
		if errors.Is(err, auth.ErrInvalidCredentials) {
			s.writeError(w, http.StatusUnauthorized, "invalid credentials")
			return
		}
		s.log.Error().Err(err).Msg("login failed")
		s.writeError(w, http.StatusInternalServerError, "internal error")
		return
	}

	s.writeJSON(w, http.StatusOK, map[string]string{"token": token})
}

// bearerUser resolves the request's Authorization bearer token to a user.
func (s *Server) bearerUser(r *http.Request) (*database.User, bool) {
	header := r.Header.Get("Authorization")
	token, found := strings.CutPrefix(header, "Bearer ")
	if !found || token == "" {
		return nil, false
	}
	return s.auth.Verify(token)
}

// remoteHost extracts the client host from the request address. RealIP
// middleware may have already stripped the port.
func remoteHost(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
