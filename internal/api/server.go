// Package api is the dashboard's HTTP surface: health, metrics, the push
// websocket and the JSON API under /api.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"sync"
	"time"

	"xnom/internal/auth"
	"xnom/internal/engage"
	"xnom/internal/ingest"
	"xnom/internal/judge"
	"xnom/internal/logging"
	"xnom/internal/settings"
	"xnom/internal/suggest"
	"xnom/internal/xclient"
)

// Pinger reports storage health.
type Pinger interface {
	Ping(ctx context.Context) error
}

// RateReporter exposes the platform client's last rate-limit window.
type RateReporter interface {
	RateLimit() xclient.RateStatus
}

// Deps are the services the handlers call.
type Deps struct {
	Pipeline *ingest.Pipeline
	Engine   *engage.Engine
	Settings *settings.Service
	Ideas    *suggest.Generator
	Auth     *auth.Issuer
	Judge    judge.Judge
	Store    Pinger
	Rate     RateReporter
	// Push serves /ws; Metrics serves /metrics. Both are optional.
	Push    http.Handler
	Metrics http.Handler
}

type Server struct {
	addr    string
	deps    Deps
	started time.Time

	mu      sync.Mutex
	base    context.Context
	httpSrv *http.Server
}

func NewServer(addr string, deps Deps) *Server {
	if deps.Judge == nil {
		deps.Judge = judge.Disabled{}
	}
	return &Server{addr: addr, deps: deps, started: time.Now(), base: context.Background()}
}

// Handler builds the routing tree. Loops started over the API run under
// base, not under the request context.
func (s *Server) Handler(base context.Context) http.Handler {
	s.mu.Lock()
	s.base = base
	s.mu.Unlock()

	apiMux := http.NewServeMux()
	s.register(apiMux)

	mux := http.NewServeMux()
	mux.HandleFunc("GET /health", s.handleHealth)
	if s.deps.Metrics != nil {
		mux.Handle("GET /metrics", s.deps.Metrics)
	}
	if s.deps.Push != nil {
		mux.Handle("GET /ws", s.deps.Push)
	}
	var protected http.Handler = apiMux
	if s.deps.Auth != nil {
		protected = s.deps.Auth.Middleware(apiMux)
	}
	mux.Handle("/api/", withCORS(protected))
	return mux
}

// Start serves until ctx is cancelled.
func (s *Server) Start(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.addr,
		Handler:           s.Handler(ctx),
		ReadHeaderTimeout: 10 * time.Second,
	}
	s.mu.Lock()
	s.httpSrv = srv
	s.mu.Unlock()

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logging.Error("api_shutdown_error", map[string]any{"error": err})
		}
	}()

	logging.Info("api_listen", map[string]any{"addr": s.addr})
	err := srv.ListenAndServe()
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

func (s *Server) baseCtx() context.Context {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.base
}

func withCORS(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		h := w.Header()
		h.Set("Access-Control-Allow-Origin", "*")
		h.Set("Access-Control-Allow-Methods", "GET, POST, PUT, OPTIONS")
		h.Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// envelope is the JSON shape every /api response uses.
type envelope struct {
	Success bool   `json:"success"`
	Data    any    `json:"data,omitempty"`
	Error   string `json:"error,omitempty"`
	Message string `json:"message,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logging.Warn("api_encode_error", map[string]any{"error": err})
	}
}

func ok(w http.ResponseWriter, data any, msg string) {
	writeJSON(w, http.StatusOK, envelope{Success: true, Data: data, Message: msg})
}

func fail(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, envelope{Error: msg})
}
