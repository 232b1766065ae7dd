package httpapi

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/pranavsaji/autoapply-pro/internal/config"
	"github.com/pranavsaji/autoapply-pro/internal/events"
	"github.com/pranavsaji/autoapply-pro/internal/types"
)

// SubmissionService is the queue surface the API depends on.
type SubmissionService interface {
	Submit(ctx context.Context, plan types.ApplicationPlan) (uuid.UUID, error)
	Status(ctx context.Context, id uuid.UUID) (*types.SubmissionAttempt, error)
	List(ctx context.Context, state types.AttemptState) ([]*types.SubmissionAttempt, error)
	Decide(ctx context.Context, id uuid.UUID, approved bool) error
	Cancel(ctx context.Context, id uuid.UUID) error
}

// Server is the engine's HTTP front end.
type Server struct {
	httpServer   *http.Server
	service      SubmissionService
	hub          *events.Hub
	jwtService   *JWTService
	passwordHash string
}

// New assembles the server and its routes.
func New(cfg config.Config, service SubmissionService, hub *events.Hub) (*Server, error) {
	jwtCfg, err := config.NewJWTConfig(cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create JWT config: %w", err)
	}

	s := &Server{
		service:      service,
		hub:          hub,
		jwtService:   NewJWTService(jwtCfg),
		passwordHash: cfg.PasswordHash,
	}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/healthz", s.handleHealth)
	mux.HandleFunc("POST /api/token", s.handleToken)

	authed := http.NewServeMux()
	authed.HandleFunc("POST /api/attempts", s.handleSubmit)
	authed.HandleFunc("GET /api/attempts", s.handleList)
	authed.HandleFunc("GET /api/attempts/{id}", s.handleStatus)
	authed.HandleFunc("POST /api/attempts/{id}/decision", s.handleDecision)
	authed.HandleFunc("POST /api/attempts/{id}/cancel", s.handleCancel)
	authed.HandleFunc("GET /api/events", s.handleEvents)
	mux.Handle("/api/", authMiddleware(s.jwtService, authed))

	s.httpServer = &http.Server{
		Addr:         cfg.ListenAddr,
		Handler:      mux,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 0, // SSE connections stay open
	}
	return s, nil
}

// Handler exposes the router, mainly for tests.
func (s *Server) Handler() http.Handler {
	return s.httpServer.Handler
}

// Start serves until the listener fails or Shutdown is called.
func (s *Server) Start() error {
	log.Printf("[httpapi] listening on %s", s.httpServer.Addr)
	if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("server error: %w", err)
	}
	return nil
}

// Shutdown drains connections gracefully.
func (s *Server) Shutdown(ctx context.Context) error {
	if err := s.httpServer.Shutdown(ctx); err != nil {
		return fmt.Errorf("failed to shut down server: %w", err)
	}
	return nil
}

func (s *Server) jsonResponse(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		log.Printf("[httpapi] error encoding JSON response: %v", err)
	}
}

func (s *Server) errorResponse(w http.ResponseWriter, status int, message string) {
	s.jsonResponse(w, status, map[string]string{"error": message})
}
