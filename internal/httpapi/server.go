package httpapi

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"

	"github.com/tutorlink/tutorlink/internal/auth"
	"github.com/tutorlink/tutorlink/internal/config"
	"github.com/tutorlink/tutorlink/internal/logging"
	"github.com/tutorlink/tutorlink/internal/observability"
	"github.com/tutorlink/tutorlink/internal/presence"
	"github.com/tutorlink/tutorlink/internal/roomsvc"
	"github.com/tutorlink/tutorlink/internal/session"
)

// Deps are the collaborators the HTTP layer routes requests to.
type Deps struct {
	Sessions   session.Store
	Verifier   *auth.Verifier
	Tokens     *roomsvc.TokenIssuer
	Webhooks   *roomsvc.WebhookVerifier
	Ingestor   *presence.Ingestor
	Poller     *presence.Poller
	Reconciler *presence.Reconciler
	Registry   *presence.Registry
	Metrics    *observability.Metrics
	Log        *logging.Logger
}

type Server struct {
	cfg      config.Config
	deps     Deps
	log      *logging.Logger
	upgrader websocket.Upgrader
}

func New(cfg config.Config, deps Deps) *Server {
	log := deps.Log
	if log == nil {
		log = logging.Nop()
	}
	return &Server{
		cfg:  cfg,
		deps: deps,
		log:  log.Component("http"),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 4096,
			CheckOrigin: func(r *http.Request) bool {
				// Only the dashboard served from our own origin may open the push channel.
				if cfg.AllowAnyOrigin {
					return true
				}
				origin := strings.TrimSpace(r.Header.Get("Origin"))
				if origin == "" {
					// Non-browser clients often omit Origin. Allow them.
					return true
				}
				u, err := url.Parse(origin)
				if err != nil {
					return false
				}
				if u.Scheme != "http" && u.Scheme != "https" {
					return false
				}
				return strings.EqualFold(u.Host, r.Host)
			},
		},
	}
}

func (s *Server) Router() http.Handler {
	r := chi.NewRouter()

	r.Get("/healthz", s.handleHealth)
	r.Get("/readyz", s.handleReady)
	r.Get("/metrics", func(w http.ResponseWriter, r *http.Request) {
		observability.MetricsHandler().ServeHTTP(w, r)
	})

	r.Post("/v1/webhook/media", s.handleWebhook)

	r.Group(func(r chi.Router) {
		r.Use(s.deps.Verifier.Middleware(s.log))

		r.Post("/v1/sessions", s.handleCreateSession)
		r.Post("/v1/sessions/join", s.handleJoinSession)
		r.Get("/v1/sessions", s.handleListSessions)
		r.Delete("/v1/sessions/{id}", s.handleDeleteSession)

		r.Post("/v1/media/token", s.handleMediaToken)

		r.Get("/v1/rooms/status", s.handleRoomStatus)
		r.Get("/v1/presence", s.handlePresence)
		r.Get("/v1/presence/ws", s.handlePresenceWS)
	})

	return r
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	respondJSON(w, http.StatusOK, map[string]any{
		"status":           "ok",
		"store_mode":       s.storeMode(),
		"push_connections": s.deps.Registry.Count(),
	})
}

func (s *Server) handleReady(w http.ResponseWriter, _ *http.Request) {
	respondJSON(w, http.StatusOK, map[string]any{
		"status":            "ready",
		"store_mode":        s.storeMode(),
		"webhook_verifying": s.deps.Webhooks != nil,
	})
}

func (s *Server) storeMode() string {
	if _, ok := s.deps.Sessions.(*session.PostgresStore); ok {
		return "postgres"
	}
	return "in-memory"
}

type errorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}

var errEmptyBody = errors.New("empty body")

func decodeJSON(r *http.Request, out any) error {
	if r.Body == nil {
		return errEmptyBody
	}
	defer r.Body.Close()
	dec := json.NewDecoder(io.LimitReader(r.Body, 1<<20))
	if err := dec.Decode(out); err != nil {
		if strings.Contains(strings.ToLower(err.Error()), "eof") {
			return errEmptyBody
		}
		return err
	}
	return nil
}

func respondJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func respondError(w http.ResponseWriter, status int, code, message string) {
	respondJSON(w, status, errorResponse{Error: message, Code: code})
}

// principal returns the authenticated caller; the auth middleware guarantees one.
func principal(w http.ResponseWriter, r *http.Request) (auth.Principal, bool) {
	p, ok := auth.FromContext(r.Context())
	if !ok {
		respondError(w, http.StatusUnauthorized, "unauthorized", "missing credentials")
	}
	return p, ok
}
