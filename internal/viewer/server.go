// Package viewer serves a finished session to the browsing UI: the display
// hierarchy, the session history, and the rendered files themselves.
package viewer

import (
	"encoding/json"
	"errors"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/KenCoder/school-converter/internal/store"
)

// Server exposes one output directory plus the session store.
type Server struct {
	outDir   string
	sessions *store.Sessions
}

func NewServer(outDir string, sessions *store.Sessions) *Server {
	return &Server{outDir: outDir, sessions: sessions}
}

// Routes builds the HTTP handler. The UI is served from another origin
// during development, so CORS is open for reads.
func (s *Server) Routes() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID, middleware.RealIP, middleware.Logger, middleware.Recoverer)
	r.Use(middleware.Timeout(30 * time.Second))
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{"GET", "OPTIONS"},
		AllowedHeaders: []string{"Content-Type"},
		MaxAge:         300,
	}))

	r.Get("/api/hierarchy", s.handleHierarchy)
	r.Get("/api/sessions", s.handleSessions)
	r.Get("/api/sessions/{id}", s.handleSession)
	r.Handle("/files/*", http.StripPrefix("/files/", http.FileServer(http.Dir(s.outDir))))
	return r
}

// handleHierarchy serves the hierarchy.json written at the end of the run.
// The payload is already in viewer shape, so it is passed through untouched.
func (s *Server) handleHierarchy(w http.ResponseWriter, r *http.Request) {
	data, err := os.ReadFile(filepath.Join(s.outDir, "hierarchy.json"))
	if err != nil {
		if os.IsNotExist(err) {
			http.Error(w, "no hierarchy for this output directory", http.StatusNotFound)
			return
		}
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	_, _ = w.Write(data)
}

func (s *Server) handleSessions(w http.ResponseWriter, r *http.Request) {
	if s.sessions == nil {
		respondJSON(w, http.StatusOK, []store.Session{})
		return
	}
	list, err := s.sessions.List(r.Context())
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	if list == nil {
		list = []store.Session{}
	}
	respondJSON(w, http.StatusOK, list)
}

func (s *Server) handleSession(w http.ResponseWriter, r *http.Request) {
	if s.sessions == nil {
		http.Error(w, "session history disabled", http.StatusNotFound)
		return
	}
	sess, err := s.sessions.Get(r.Context(), chi.URLParam(r, "id"))
	if errors.Is(err, store.ErrNotFound) {
		http.Error(w, "session not found", http.StatusNotFound)
		return
	}
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	respondJSON(w, http.StatusOK, sess)
}

func respondJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
