// Package gateway exposes the conversation engine over websockets. A
// connection authenticates once, then either streams a live conversation
// (the default) or exchanges request/response envelopes in api mode.
package gateway

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/amira/goalflow/pkg/flow"
	"github.com/amira/goalflow/pkg/identity"
	"github.com/gorilla/websocket"
	gonanoid "github.com/matoous/go-nanoid/v2"
	"github.com/rs/zerolog"
)

// Server is the websocket gateway.
type Server struct {
	port           int
	server         *http.Server
	upgrader       websocket.Upgrader
	clients        *ClientRegistry
	verifier       identity.Verifier
	executor       *flow.Executor
	sessions       *flow.SessionStore
	logger         zerolog.Logger
	isShuttingDown bool
	shutdownMu     sync.RWMutex
	convWG         sync.WaitGroup
}

// Config holds server configuration. Clients is optional; when nil a fresh
// registry is created. Pass a shared registry when the executor's channel
// resolver must see gateway connections.
type Config struct {
	Port     int
	Verifier identity.Verifier
	Executor *flow.Executor
	Sessions *flow.SessionStore
	Clients  *ClientRegistry
	Logger   zerolog.Logger
}

// NewServer creates a gateway server.
func NewServer(cfg Config) (*Server, error) {
	if cfg.Port <= 0 {
		return nil, fmt.Errorf("invalid port: %d", cfg.Port)
	}
	if cfg.Verifier == nil {
		return nil, fmt.Errorf("identity verifier is required")
	}
	if cfg.Executor == nil {
		return nil, fmt.Errorf("executor is required")
	}
	if cfg.Sessions == nil {
		return nil, fmt.Errorf("session store is required")
	}

	if cfg.Clients == nil {
		cfg.Clients = NewClientRegistry()
	}

	return &Server{
		port:     cfg.Port,
		clients:  cfg.Clients,
		verifier: cfg.Verifier,
		executor: cfg.Executor,
		sessions: cfg.Sessions,
		logger:   cfg.Logger,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool {
				return true // Allow all origins for now
			},
		},
	}, nil
}

// Clients exposes the registry, which doubles as the executor's channel
// resolver and the digest delivery target.
func (s *Server) Clients() *ClientRegistry {
	return s.clients
}

// Start begins serving websocket connections. It does not block.
func (s *Server) Start() error {
	mux := http.NewServeMux()
	mux.HandleFunc("/ws", s.handleWebSocket)
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})

	s.server = &http.Server{
		Addr:    fmt.Sprintf(":%d", s.port),
		Handler: mux,
	}

	s.logger.Info().Int("port", s.port).Msg("Starting gateway server")

	go func() {
		if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			s.logger.Error().Err(err).Msg("Gateway server error")
		}
	}()

	return nil
}

// Stop gracefully stops the server, closing all client connections.
func (s *Server) Stop() error {
	s.shutdownMu.Lock()
	s.isShuttingDown = true
	s.shutdownMu.Unlock()

	s.logger.Info().Msg("Shutting down gateway server")

	for _, client := range s.clients.All() {
		client.Close()
	}

	done := make(chan struct{})
	go func() {
		s.convWG.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(30 * time.Second):
		s.logger.Warn().Msg("Shutdown timeout reached, forcing close")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := s.server.Shutdown(ctx); err != nil {
		return fmt.Errorf("failed to shutdown server: %w", err)
	}

	s.logger.Info().Msg("Gateway server stopped")
	return nil
}

// handleWebSocket upgrades a connection, authenticates it, and hands it to
// the selected mode handler.
func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	s.shutdownMu.RLock()
	if s.isShuttingDown {
		s.shutdownMu.RUnlock()
		http.Error(w, "Server is shutting down", http.StatusServiceUnavailable)
		return
	}
	s.shutdownMu.RUnlock()

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Error().Err(err).Msg("Failed to upgrade connection")
		return
	}

	clientID, _ := gonanoid.New()
	client := NewClient(clientID, conn, s.logger)

	s.logger.Info().
		Str("clientId", clientID).
		Str("ip", r.RemoteAddr).
		Msg("Client connected")

	who, err := s.authenticate(r.Context(), client)
	if err != nil {
		s.logger.Warn().Err(err).Str("clientId", clientID).Msg("Authentication failed")
		client.Close()
		return
	}

	client.UserID = who.SubjectID
	s.clients.Add(client)

	s.logger.Info().
		Str("clientId", clientID).
		Str("user_id", who.SubjectID).
		Msg("Client authenticated")

	if r.URL.Query().Get("mode") == "api" {
		go s.serveAPI(client)
		return
	}
	go s.serveConversation(client)
}

// authenticate requires the first envelope to carry a verifiable token.
func (s *Server) authenticate(ctx context.Context, client *Client) (identity.Identity, error) {
	env, _, err := client.ReadEnvelope()
	if err != nil {
		return identity.Identity{}, err
	}
	if env.Type != TypeAuth {
		_ = client.Reply(errResponse(env.Type, "authentication required"))
		return identity.Identity{}, fmt.Errorf("first message must be auth, got %s", env.Type)
	}

	who, err := s.verifier.Verify(ctx, env.Token)
	if err != nil {
		_ = client.Reply(errResponse(TypeAuth, "invalid token"))
		return identity.Identity{}, err
	}

	if err := client.Reply(okResponse(TypeAuth, map[string]string{
		"user_id": who.SubjectID,
		"email":   who.Email,
		"name":    who.Name,
	})); err != nil {
		return identity.Identity{}, err
	}
	return who, nil
}

// serveConversation runs the live conversation loop. The read pump never
// touches the session: user frames become speech events, clear_history
// becomes an event the conversation applies between turns, and only the
// flow-graph query is answered inline.
func (s *Server) serveConversation(client *Client) {
	session := s.sessions.GetOrCreate(client.UserID)
	logger := s.logger.With().Str("user_id", client.UserID).Logger()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	s.convWG.Add(1)
	go func() {
		defer s.convWG.Done()
		defer client.Close()

		// Ownership blocks here until a displaced connection's conversation
		// has fully unwound, so two loops never run turns on one session.
		session.Acquire()
		defer session.Release()

		err := s.executor.RunConversation(ctx, session)
		switch {
		case err == nil:
			logger.Info().Msg("Conversation finished")
		case errors.Is(err, flow.ErrTurnAborted):
			logger.Info().Msg("Conversation aborted")
		default:
			logger.Error().Err(err).Msg("Conversation failed")
		}
	}()

	defer func() {
		s.clients.Remove(client)
		client.Close()
		logger.Info().Str("clientId", client.ID).Msg("Client disconnected")
	}()

	for {
		env, raw, err := client.ReadEnvelope()
		if err != nil {
			return
		}

		switch env.Type {
		case TypeFlowGraph:
			_ = client.Reply(graphResponse())
		case TypeClearHistory:
			// The conversation loop owns the session; it applies the clear
			// between turns. The reply only acknowledges receipt.
			client.Deliver(flow.Event{Type: flow.EventClearHistory})
			_ = client.Reply(okResponse(TypeClearHistory, nil))
		case TypeChat:
			client.Deliver(flow.Event{Type: flow.EventUserSpeech, Text: env.Text})
		default:
			// Tool envelopes ride through the conversation as speech so
			// the classifier can route them as direct actions.
			client.Deliver(flow.Event{Type: flow.EventUserSpeech, Text: string(raw)})
		}
	}
}

// serveAPI answers request envelopes one at a time. Each chat or tool
// envelope runs a full turn; the reply carries the transcript's final
// message for that turn.
func (s *Server) serveAPI(client *Client) {
	session := s.sessions.GetOrCreate(client.UserID)
	logger := s.logger.With().Str("user_id", client.UserID).Logger()

	defer func() {
		s.clients.Remove(client)
		client.Close()
		logger.Info().Str("clientId", client.ID).Msg("Client disconnected")
	}()

	for {
		env, raw, err := client.ReadEnvelope()
		if err != nil {
			return
		}

		switch env.Type {
		case TypeFlowGraph:
			_ = client.Reply(graphResponse())
		case TypeClearHistory:
			session.Acquire()
			session.ClearHistory()
			session.Release()
			_ = client.Reply(okResponse(TypeClearHistory, nil))
		case TypeChat:
			_ = client.Reply(s.runAPITurn(session, env.Type, env.Text))
		default:
			_ = client.Reply(s.runAPITurn(session, env.Type, string(raw)))
		}
	}
}

// runAPITurn appends the inbound text, runs one turn, and packages the
// turn's final message as the reply. Ownership is held per turn so a
// displaced conversation cannot mutate the session mid-flight.
func (s *Server) runAPITurn(session *flow.Session, reqType, text string) Response {
	session.Acquire()
	defer session.Release()

	session.Append(flow.UserText(text))

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()

	if err := s.executor.RunTurn(ctx, session); err != nil {
		return errResponse(reqType, err.Error())
	}

	last, ok := session.Last()
	if !ok {
		return errResponse(reqType, "turn produced no output")
	}
	return okResponse(reqType, map[string]string{"text": last.Content})
}
