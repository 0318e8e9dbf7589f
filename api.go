// CLAUDE:SUMMARY HTTP API: health, stats, run log, mentions, and manual run triggers on a chi router.
package mirador

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
)

// NewRouter builds the read-plus-trigger HTTP surface.
func NewRouter(svc *Service) http.Handler {
	r := chi.NewRouter()

	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, 200, map[string]string{"status": "ok"})
	})

	r.Get("/api/stats", func(w http.ResponseWriter, r *http.Request) {
		st, err := svc.Store().Stats(r.Context())
		if err != nil {
			writeError(w, 500, err)
			return
		}
		writeJSON(w, 200, st)
	})

	r.Get("/api/runs", func(w http.ResponseWriter, r *http.Request) {
		runs, err := svc.Store().ListRuns(r.Context(), r.URL.Query().Get("source"), queryInt(r, "limit", 50))
		if err != nil {
			writeError(w, 500, err)
			return
		}
		if runs == nil {
			runs = []*RunLogEntry{}
		}
		writeJSON(w, 200, runs)
	})

	r.Get("/api/mentions", func(w http.ResponseWriter, r *http.Request) {
		mentions, err := svc.Store().ListMentions(r.Context(), r.URL.Query().Get("source"), queryInt(r, "limit", 50))
		if err != nil {
			writeError(w, 500, err)
			return
		}
		if mentions == nil {
			mentions = []*Mention{}
		}
		writeJSON(w, 200, mentions)
	})

	r.Get("/api/sources", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, 200, svc.SourceNames())
	})

	// Manual trigger. Honors the run mutex: a busy source answers 409.
	r.Post("/api/sources/{name}/run", func(w http.ResponseWriter, r *http.Request) {
		name := chi.URLParam(r, "name")
		switch err := svc.Trigger(name); {
		case errors.Is(err, ErrUnknownSource):
			writeError(w, 404, err)
		case errors.Is(err, ErrRunInProgress):
			writeError(w, 409, err)
		case err != nil:
			writeError(w, 500, err)
		default:
			writeJSON(w, 202, map[string]string{"source": name, "status": "triggered"})
		}
	})

	return r
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, code int, err error) {
	writeJSON(w, code, map[string]string{"error": err.Error()})
}

func queryInt(r *http.Request, key string, def int) int {
	s := r.URL.Query().Get(key)
	if s == "" {
		return def
	}
	v, err := strconv.Atoi(s)
	if err != nil {
		return def
	}
	return v
}
