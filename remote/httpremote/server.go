// Package httpremote exposes a remote.Store over HTTP and implements the
// matching client. The wire format is the flat snake_case record vocabulary;
// change notifications stream over a websocket per table and show.
package httpremote

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	syncErrors "github.com/boothkit/boothkit/errors"
	"github.com/boothkit/boothkit/logging"
	"github.com/boothkit/boothkit/remote"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// Server serves a remote.Store over REST plus websocket change feeds.
type Server struct {
	store  remote.Store
	logger *logging.Logger
	router chi.Router
}

// NewServer wraps store. The handler is ready immediately.
func NewServer(store remote.Store) *Server {
	s := &Server{
		store:  store,
		logger: logging.WithComponent(logging.Component("httpremote/server")),
	}
	s.router = s.routes()
	return s
}

// Handler returns the root HTTP handler.
func (s *Server) Handler() http.Handler { return s.router }

func (s *Server) routes() chi.Router {
	r := chi.NewRouter()
	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(chimw.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{"GET", "POST", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Content-Type"},
	}))
	r.Use(metricsMiddleware)

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	r.Method(http.MethodGet, "/metrics", promhttp.Handler())

	r.Route("/api/{table}", func(r chi.Router) {
		r.Use(s.requireTable)
		r.Get("/", s.handleQuery)
		r.Post("/", s.handleCreate)
		r.Get("/ws", s.handleSubscribe)
		r.Patch("/{id}", s.handleUpdate)
		r.Delete("/{id}", s.handleDelete)
	})
	return r
}

// requireTable rejects unknown table names before they reach the store.
func (s *Server) requireTable(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch chi.URLParam(r, "table") {
		case remote.TableLeads, remote.TableUsers:
			next.ServeHTTP(w, r)
		default:
			writeJSON(w, http.StatusNotFound, errBody{Error: "unknown table", Kind: string(syncErrors.KindNotFound)})
		}
	})
}

func (s *Server) handleCreate(w http.ResponseWriter, r *http.Request) {
	table := chi.URLParam(r, "table")

	var rec remote.Record
	if err := json.NewDecoder(r.Body).Decode(&rec); err != nil {
		writeJSON(w, http.StatusBadRequest, errBody{Error: "invalid JSON body", Kind: string(syncErrors.KindValidation)})
		return
	}

	created, err := s.store.Create(r.Context(), table, rec)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, created)
}

func (s *Server) handleUpdate(w http.ResponseWriter, r *http.Request) {
	table := chi.URLParam(r, "table")
	id := chi.URLParam(r, "id")

	var rec remote.Record
	if err := json.NewDecoder(r.Body).Decode(&rec); err != nil {
		writeJSON(w, http.StatusBadRequest, errBody{Error: "invalid JSON body", Kind: string(syncErrors.KindValidation)})
		return
	}

	if err := s.store.Update(r.Context(), table, id, rec); err != nil {
		s.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleDelete(w http.ResponseWriter, r *http.Request) {
	table := chi.URLParam(r, "table")
	id := chi.URLParam(r, "id")

	if err := s.store.Delete(r.Context(), table, id); err != nil {
		s.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleQuery(w http.ResponseWriter, r *http.Request) {
	table := chi.URLParam(r, "table")
	filter := remote.Filter{ShowID: r.URL.Query().Get("show_id")}

	recs, err := s.store.Query(r.Context(), table, filter)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if recs == nil {
		recs = []remote.Record{}
	}
	writeJSON(w, http.StatusOK, recs)
}

func (s *Server) handleSubscribe(w http.ResponseWriter, r *http.Request) {
	table := chi.URLParam(r, "table")
	filter := remote.Filter{ShowID: r.URL.Query().Get("show_id")}

	sub, err := s.store.Subscribe(r.Context(), table, filter)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	defer sub.Close()

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade already wrote the HTTP error.
		return
	}
	defer conn.Close()

	// Reader goroutine to observe the peer closing.
	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	for {
		select {
		case <-done:
			return
		case <-r.Context().Done():
			return
		case change, ok := <-sub.Changes():
			if !ok {
				_ = conn.WriteMessage(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseGoingAway, "feed closed"))
				return
			}
			if err := conn.WriteJSON(change); err != nil {
				s.logger.LogError(r.Context(), err, "websocket write failed", slog.String("table", table))
				return
			}
		}
	}
}

type errBody struct {
	Error string `json:"error"`
	Kind  string `json:"kind,omitempty"`
}

// writeError maps the error taxonomy onto HTTP statuses.
func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := http.StatusInternalServerError
	kind := ""

	switch {
	case syncErrors.IsKind(err, syncErrors.KindValidation):
		status = http.StatusBadRequest
	case syncErrors.IsKind(err, syncErrors.KindNotFound):
		status = http.StatusNotFound
	case syncErrors.IsUnavailable(err):
		status = http.StatusServiceUnavailable
	case syncErrors.IsKind(err, syncErrors.KindConflict):
		status = http.StatusConflict
	}

	var se *syncErrors.SyncError
	if errors.As(err, &se) {
		kind = string(se.Kind)
	}

	if status == http.StatusInternalServerError {
		s.logger.LogError(r.Context(), err, "request failed",
			slog.String("method", r.Method), slog.String("path", r.URL.Path))
	}
	writeJSON(w, status, errBody{Error: err.Error(), Kind: kind})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
