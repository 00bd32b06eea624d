package mirror

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"path/filepath"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

// Server is the local origin spoofed tile requests are sent to. It also
// answers the placement provider endpoint.
type Server struct {
	addr    string
	dataDir string
	updater *Updater

	httpServer *http.Server
	listener   net.Listener
}

func NewServer(addr, dataDir string, updater *Updater) *Server {
	return &Server{addr: addr, dataDir: dataDir, updater: updater}
}

func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(corsMiddleware)

	r.Get("/config.json", s.handleTilesFile)
	r.Get("/files/s0/tiles/{x:[0-9]+}/{y:[0-9]+}.png", s.handleTile)
	r.Get("/colors", s.handleColors)
	r.Get("/update", s.handleUpdate)
	r.Post("/update", s.handleUpdate)
	return r
}

func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		next.ServeHTTP(w, r)
	})
}

func (s *Server) handleTilesFile(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Cache-Control", "no-cache")
	http.ServeFile(w, r, s.updater.TilesPath())
}

func (s *Server) handleTile(w http.ResponseWriter, r *http.Request) {
	path := filepath.Join(s.dataDir, "files", "s0", "tiles", chi.URLParam(r, "x"), chi.URLParam(r, "y")+".png")
	w.Header().Set("Cache-Control", "no-cache")
	http.ServeFile(w, r, path)
}

func (s *Server) handleColors(w http.ResponseWriter, r *http.Request) {
	if _, err := s.updater.Update(r.Context()); err != nil {
		if errors.Is(err, ErrTilesFile) {
			slog.Error("Update before /colors failed", slog.Any("error", err))
			writeJSON(w, http.StatusInternalServerError, map[string]any{"ok": false, "message": err.Error()})
			return
		}
		slog.Warn("Update before /colors incomplete", slog.Any("error", err))
	}
	writeJSON(w, http.StatusOK, s.updater.Placement())
}

func (s *Server) handleUpdate(w http.ResponseWriter, r *http.Request) {
	summary, err := s.updater.Update(r.Context())
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]any{"ok": false, "message": err.Error(), "summary": summary})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"ok": true, "message": "Update complete.", "summary": summary})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func (s *Server) Start() error {
	ln, err := net.Listen("tcp", s.addr)
	if err != nil {
		return fmt.Errorf("mirror listen failed: %w", err)
	}
	s.listener = ln
	s.httpServer = &http.Server{
		Handler:           s.Router(),
		ReadHeaderTimeout: 5 * time.Second,
	}
	slog.Info("Mirror server started", slog.String("addr", ln.Addr().String()), slog.String("data_dir", s.dataDir))

	go func() {
		if err := s.httpServer.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("Mirror server error", slog.Any("error", err))
		}
	}()
	return nil
}

func (s *Server) Addr() string {
	if s.listener == nil {
		return s.addr
	}
	return s.listener.Addr().String()
}

func (s *Server) Shutdown(ctx context.Context) error {
	if s.httpServer == nil {
		return nil
	}
	return s.httpServer.Shutdown(ctx)
}
