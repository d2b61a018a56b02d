package fakestore

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

// Handler serves the store over HTTP. Failures are reported in the envelope
// with status 200, the way the production backend does it.
func (s *Store) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, Response{OK: true})
	})
	r.Post("/", s.handleExec)
	r.Post("/exec", s.handleExec)
	return r
}

func (s *Store) handleExec(w http.ResponseWriter, r *http.Request) {
	var req Request
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<20)).Decode(&req); err != nil {
		s.logger.Debug().Err(err).Msg("bad request body")
		writeJSON(w, fail(ErrInvalidRequest))
		return
	}
	if id := r.Header.Get("X-Request-ID"); id != "" {
		s.logger.Debug().Str("request_id", id).Str("action", req.Action).Msg("request")
	}
	writeJSON(w, s.Exec(req))
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}
