// Package api is the control surface: it flips the intercept flags, answers
// pending pixel count prompts and streams state changes and logs.
package api

import (
	"context"
	"crypto/subtle"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/sunbk201/tilespoof/internal/common"
	"github.com/sunbk201/tilespoof/internal/config"
	applog "github.com/sunbk201/tilespoof/internal/log"
	"github.com/sunbk201/tilespoof/internal/mitm"
	"github.com/sunbk201/tilespoof/internal/prompt"
	"github.com/sunbk201/tilespoof/internal/state"
	"github.com/sunbk201/tilespoof/internal/statistics"
)

type Options struct {
	State    *state.InterceptState
	Prompts  *prompt.Queue
	Recorder *statistics.Recorder
	Tiles    []common.TileCoordinate
	CA       *mitm.CA
	Logs     *applog.Broadcaster
}

type APIServer struct {
	version string
	cfg     *config.Config
	addr    string
	opts    Options

	events      *applog.Broadcaster
	unsubscribe func()
	httpServer  *http.Server
}

func New(addr string, version string, cfg *config.Config, opts Options) *APIServer {
	s := &APIServer{
		version: version,
		cfg:     cfg,
		addr:    addr,
		opts:    opts,
		events:  applog.NewBroadcaster(),
	}
	if s.opts.Logs == nil {
		s.opts.Logs = applog.NewBroadcaster()
	}
	s.unsubscribe = opts.State.Subscribe(state.ObserverFuncs{
		SpoofToggle: func(enabled bool) {
			s.publish(event{Type: eventSpoof, Enabled: &enabled})
		},
		OverrideArm: func(armed bool) {
			s.publish(event{Type: eventOverride, Armed: &armed})
		},
	})
	if opts.Prompts != nil {
		opts.Prompts.OnPending = func(p prompt.Pending) {
			s.publish(event{Type: eventPrompt, Prompt: &p})
		}
	}
	return s
}

// Router builds the handler tree.
func (s *APIServer) Router() http.Handler {
	r := chi.NewRouter()

	r.Use(slogMiddleware)
	r.Use(middleware.Recoverer)
	r.Use(middleware.RealIP)

	if s.cfg.API.Secret != "" {
		r.Use(s.authMiddleware)
	}

	r.Get("/version", s.handleVersion)
	r.Get("/config", s.handleConfig)
	r.Get("/state", s.handleState)

	r.Post("/spoof/toggle", s.handleToggleSpoof)
	r.Put("/spoof", s.handleSetSpoof)
	r.Post("/override/arm", s.handleArmOverride)
	r.Delete("/override", s.handleDisarmOverride)

	r.Get("/prompts", s.handlePrompts)
	r.Post("/prompts/{id}", s.handleAnswerPrompt)

	r.Get("/stats", s.handleStats)
	r.Get("/tiles", s.handleTiles)
	r.Get("/ca.pem", s.handleCA)

	r.Get("/events", s.handleEvents)
	r.Get("/logs", s.handleLogs)
	return r
}

func (s *APIServer) Start() error {
	s.httpServer = &http.Server{
		Addr:              s.addr,
		Handler:           s.Router(),
		ReadHeaderTimeout: 5 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	ln, err := net.Listen("tcp", s.addr)
	if err != nil {
		return fmt.Errorf("api-server listen failed: %w", err)
	}

	slog.Info("api-server started", slog.String("addr", ln.Addr().String()))

	go func() {
		if err := s.httpServer.Serve(ln); err != nil && err != http.ErrServerClosed {
			slog.Error("api-server error", slog.Any("error", err))
		}
	}()
	return nil
}

func (s *APIServer) Close() error {
	s.unsubscribe()
	if s.opts.Prompts != nil {
		s.opts.Prompts.OnPending = nil
	}
	if s.httpServer == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	slog.Info("api-server shutting down")
	return s.httpServer.Shutdown(ctx)
}

func slogMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)
		slog.Debug("api-server request",
			slog.String("method", r.Method),
			slog.String("path", r.URL.Path),
			slog.String("remote", r.RemoteAddr),
			slog.Int("status", ww.Status()),
			slog.Duration("elapsed", time.Since(start)),
		)
	})
}

func (s *APIServer) authMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token := strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer ")
		if token == "" {
			token = r.URL.Query().Get("secret")
		}
		if subtle.ConstantTimeCompare([]byte(token), []byte(s.cfg.API.Secret)) != 1 {
			writeError(w, http.StatusUnauthorized, "unauthorized")
			return
		}
		next.ServeHTTP(w, r)
	})
}
