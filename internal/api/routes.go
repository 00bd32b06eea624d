package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/sunbk201/tilespoof/internal/prompt"
)

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

func (s *APIServer) handleVersion(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"version": s.version})
}

func (s *APIServer) handleConfig(w http.ResponseWriter, r *http.Request) {
	cfg := *s.cfg
	cfg.API.Secret = ""
	cfg.MITM.P12 = ""
	cfg.MITM.Passphrase = ""
	writeJSON(w, http.StatusOK, cfg)
}

func (s *APIServer) handleState(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.opts.State.Snapshot())
}

func (s *APIServer) handleToggleSpoof(w http.ResponseWriter, r *http.Request) {
	s.opts.State.ToggleSpoof()
	writeJSON(w, http.StatusOK, s.opts.State.Snapshot())
}

func (s *APIServer) handleSetSpoof(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Enabled *bool `json:"enabled"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil || body.Enabled == nil {
		writeError(w, http.StatusBadRequest, `body must be {"enabled": bool}`)
		return
	}
	s.opts.State.SetSpoof(*body.Enabled)
	writeJSON(w, http.StatusOK, s.opts.State.Snapshot())
}

func (s *APIServer) handleArmOverride(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Confirmed bool `json:"confirmed"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, `body must be {"confirmed": bool}`)
		return
	}
	s.opts.State.ArmOverride(body.Confirmed)
	writeJSON(w, http.StatusOK, s.opts.State.Snapshot())
}

func (s *APIServer) handleDisarmOverride(w http.ResponseWriter, r *http.Request) {
	s.opts.State.DisarmOverride()
	writeJSON(w, http.StatusOK, s.opts.State.Snapshot())
}

func (s *APIServer) handlePrompts(w http.ResponseWriter, r *http.Request) {
	if s.opts.Prompts == nil {
		writeJSON(w, http.StatusOK, []prompt.Pending{})
		return
	}
	writeJSON(w, http.StatusOK, s.opts.Prompts.List())
}

func (s *APIServer) handleAnswerPrompt(w http.ResponseWriter, r *http.Request) {
	if s.opts.Prompts == nil {
		writeError(w, http.StatusNotFound, "prompts are not answered through the api")
		return
	}
	var body struct {
		Value string `json:"value"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, `body must be {"value": string}`)
		return
	}
	if err := s.opts.Prompts.Answer(chi.URLParam(r, "id"), body.Value); err != nil {
		if errors.Is(err, prompt.ErrUnknownPrompt) {
			writeError(w, http.StatusNotFound, err.Error())
			return
		}
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"ok": true, "count": prompt.ParseCount(body.Value)})
}

func (s *APIServer) handleStats(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.opts.Recorder.Snapshot())
}

func (s *APIServer) handleTiles(w http.ResponseWriter, r *http.Request) {
	pairs := make([][2]int, 0, len(s.opts.Tiles))
	for _, t := range s.opts.Tiles {
		pairs = append(pairs, [2]int{t.X, t.Y})
	}
	writeJSON(w, http.StatusOK, pairs)
}

func (s *APIServer) handleCA(w http.ResponseWriter, r *http.Request) {
	if s.opts.CA == nil {
		writeError(w, http.StatusNotFound, "mitm is disabled")
		return
	}
	w.Header().Set("Content-Type", "application/x-pem-file")
	w.Header().Set("Content-Disposition", `attachment; filename="tilespoof-ca.pem"`)
	_, _ = w.Write(s.opts.CA.CertPEM())
}
