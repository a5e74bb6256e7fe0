// Package server implements the realtime broadcast engine for the threaded
// message board: connection registry, authentication handshake, per-origin
// rate limiting, liveness monitoring, and the HTTP read/write surface.
package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/boardcast/boardcast/pkg/auth"
	"github.com/boardcast/boardcast/pkg/database"
	"github.com/boardcast/boardcast/pkg/protocol"
	"github.com/boardcast/boardcast/pkg/sanitize"
)

var (
	// ErrContentRequired indicates a post without content.
	ErrContentRequired = errors.New("message content required")
	// ErrContentTooLong indicates content over the pre-sanitization limit.
	ErrContentTooLong = errors.New("message too long")
)

// Server is the boardcast server: it owns the store, the connection registry
// and the background sweeps.
type Server struct {
	db       *database.DB
	auth     *auth.Service
	sessions *SessionManager
	limiter  *RateLimiter
	metrics  *Metrics
	config   ServerConfig
	log      zerolog.Logger

	listener   net.Listener
	httpServer *http.Server
	startTime  time.Time
	shutdown   chan struct{}
	wg         sync.WaitGroup
}

// NewServer creates a new server instance
func NewServer(dbPath string, config ServerConfig, log zerolog.Logger, metrics *Metrics) (*Server, error) {
	db, err := database.Open(dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	s := &Server{
		db:       db,
		auth:     auth.NewService(db),
		sessions: NewSessionManager(log, metrics),
		limiter:  NewRateLimiter(config.PostCooldown),
		metrics:  metrics,
		config:   config,
		log:      log.With().Str("component", "server").Logger(),
		shutdown: make(chan struct{}),
	}

	return s, nil
}

// Router builds the HTTP surface: the websocket endpoint, the read API, the
// registration/login collaborators and the operational endpoints.
func (s *Server) Router() chi.Router {
	r := chi.NewRouter()

	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(chimw.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		AllowCredentials: false,
		MaxAge:           300,
	}))

	r.Get("/health", s.HealthHandler)
	r.Get("/ws", s.HandleWebSocket)
	r.Handle("/metrics", promhttp.Handler())

	r.Route("/api", func(r chi.Router) {
		r.Get("/msgs", s.ListMessagesHandler)
		r.Post("/msgs", s.PostMessageHandler)
		r.Get("/users/{id}", s.GetUserHandler)
		r.Post("/register", s.RegisterHandler)
		r.Post("/login", s.LoginHandler)
	})

	return r
}

// Start begins listening and launches the background sweeps.
func (s *Server) Start() error {
	addr := fmt.Sprintf(":%d", s.config.HTTPPort)
	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", addr, err)
	}

	s.listener = listener
	s.startTime = time.Now()
	s.httpServer = &http.Server{Handler: s.Router()}

	s.log.Info().Str("addr", addr).Msg("server listening")

	s.wg.Add(1)
	go s.livenessLoop()

	s.wg.Add(1)
	go s.limiterPruneLoop()

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		if err := s.httpServer.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.log.Error().Err(err).Msg("http server stopped")
		}
	}()

	return nil
}

// Addr returns the bound listen address, for tests that start on port 0.
func (s *Server) Addr() net.Addr {
	if s.listener == nil {
		return nil
	}
	return s.listener.Addr()
}

// Stop gracefully stops the server
func (s *Server) Stop() error {
	close(s.shutdown)

	if s.httpServer != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := s.httpServer.Shutdown(ctx); err != nil {
			s.log.Warn().Err(err).Msg("http shutdown")
		}
	}

	s.sessions.CloseAll()
	s.wg.Wait()

	return s.db.Close()
}

// livenessLoop probes every open connection on a fixed period and reaps the
// ones that did not answer the previous probe.
func (s *Server) livenessLoop() {
	defer s.wg.Done()

	ticker := time.NewTicker(s.config.ProbeInterval)
	defer ticker.Stop()

	for {
		select {
		case <-s.shutdown:
			return
		case <-ticker.C:
			s.sweepConnections()
		}
	}
}

// sweepConnections terminates connections on their first missed probe: a
// connection must answer within one full period of the probe being sent.
func (s *Server) sweepConnections() {
	for _, sess := range s.sessions.Snapshot() {
		if !sess.aliveAndArm() {
			s.log.Info().Uint64("session", sess.ID).Msg("closing unresponsive connection")
			if s.metrics != nil {
				s.metrics.RecordLivenessClose()
			}
			// Close triggers the receive loop's disconnect path, which
			// removes the session and updates the presence count.
			sess.conn.Close()
			continue
		}

		sess.writeMu.Lock()
		err := sess.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(5*time.Second))
		sess.writeMu.Unlock()
		if err != nil {
			s.log.Debug().Uint64("session", sess.ID).Err(err).Msg("probe send failed")
			sess.conn.Close()
		}
	}
}

// limiterPruneLoop keeps the rate limiter's origin mapping bounded.
func (s *Server) limiterPruneLoop() {
	defer s.wg.Done()

	ticker := time.NewTicker(s.config.LimiterPruneEvery)
	defer ticker.Stop()

	for {
		select {
		case <-s.shutdown:
			return
		case <-ticker.C:
			if removed := s.limiter.Prune(s.config.LimiterPruneEvery); removed > 0 {
				s.log.Debug().Int("removed", removed).Msg("pruned stale rate-limit origins")
			}
		}
	}
}

// broadcastPresence emits the authenticated-connection count to all open
// connections, when enabled.
func (s *Server) broadcastPresence() {
	if !s.config.PresenceUpdates {
		return
	}

	count := s.sessions.CountAuthenticated()
	if s.metrics != nil {
		s.metrics.RecordAuthenticatedConnections(count)
	}
	s.sessions.Broadcast(protocol.NewUserCount(count))
}

// createMessage validates, sanitizes and persists a message for an
// authenticated user. Shared by the realtime post path and the HTTP write
// path.
func (s *Server) createMessage(user *database.User, content string, parentID *int64) (*database.Message, error) {
	if content == "" {
		return nil, ErrContentRequired
	}
	// Length limits apply to the pre-sanitization input.
	if utf8.RuneCountInString(content) > s.config.MaxMessageLength {
		return nil, ErrContentTooLong
	}

	clean, err := sanitize.Clean(content)
	if err != nil {
		return nil, err
	}

	return s.db.PostMessage(user.ID, clean, parentID)
}

// postAndBroadcast persists a message and fans the new-message event out to
// every open connection. Broadcast failures never fail the post: the durable
// write already succeeded.
func (s *Server) postAndBroadcast(user *database.User, content string, parentID *int64) (*database.Message, error) {
	msg, err := s.createMessage(user, content, parentID)
	if err != nil {
		return nil, err
	}

	s.sessions.Broadcast(protocol.NewMessageBroadcast(toProtocolMessage(msg)))
	return msg, nil
}

// toProtocolMessage converts a stored message to its wire shape.
func toProtocolMessage(msg *database.Message) protocol.Message {
	return protocol.Message{
		ID:         msg.ID,
		Content:    msg.Content,
		Timestamp:  msg.CreatedAt,
		AuthorID:   msg.AuthorID,
		AuthorName: msg.AuthorName,
		ParentID:   msg.ParentID,
	}
}
