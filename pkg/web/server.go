package web

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/ritzau/mod-deps/pkg/logging"
	"github.com/ritzau/mod-deps/pkg/manager"
	"github.com/ritzau/mod-deps/pkg/model"
	"github.com/ritzau/mod-deps/pkg/modfolder"
	"github.com/ritzau/mod-deps/pkg/pubsub"
)

// ModView is a mod as returned by the API
type ModView struct {
	model.Mod
	ModID   string `json:"modId"`
	Name    string `json:"name"`
	Version string `json:"version"`
}

func newModView(m model.Mod) ModView {
	return ModView{Mod: m, ModID: m.ModID(), Name: m.Name(), Version: m.Version()}
}

func newModViews(mods []model.Mod) []ModView {
	out := make([]ModView, 0, len(mods))
	for _, m := range mods {
		out = append(out, newModView(m))
	}
	return out
}

// EnableRequest is the body of the affected and enabled endpoints
type EnableRequest struct {
	IDs    []string `json:"ids"`
	Action string   `json:"action"` // enable, disable or toggle
}

// EnableResponse lists the mods a request affects or changed
type EnableResponse struct {
	Action string    `json:"action"`
	Mods   []ModView `json:"mods"`
	Error  string    `json:"error,omitempty"`
}

// Server represents the web server
type Server struct {
	router    *mux.Router
	manager   *manager.Manager
	publisher *pubsub.SSEPublisher
}

// NewServer creates a new web server for the manager. The publisher must be the
// one the manager publishes to.
func NewServer(m *manager.Manager, publisher *pubsub.SSEPublisher) *Server {
	// folder_status: buffer last 10 events, replay only last event to new subscribers
	publisher.ConfigureTopic(pubsub.TopicFolderStatus, pubsub.TopicConfig{
		BufferSize: 10,
		ReplayAll:  false,
	})

	s := &Server{
		router:    mux.NewRouter(),
		manager:   m,
		publisher: publisher,
	}
	s.setupRoutes()
	return s
}

// Handler returns the router wrapped in the request logging middleware
func (s *Server) Handler() http.Handler {
	return logging.RequestIDMiddleware(s.router)
}

func (s *Server) setupRoutes() {
	s.router.HandleFunc("/api/subscribe/{topic}", s.handleSubscribe).Methods("GET")

	// More specific routes must come first
	s.router.HandleFunc("/api/mods", s.handleMods).Methods("GET")
	s.router.HandleFunc("/api/mods/affected", s.handleAffected).Methods("POST")
	s.router.HandleFunc("/api/mods/enabled", s.handleSetEnabled).Methods("POST")
	s.router.HandleFunc("/api/mods/{id}", s.handleMod).Methods("GET")
	s.router.HandleFunc("/api/mods/{id}/requires", s.handleRequires).Methods("GET")
	s.router.HandleFunc("/api/mods/{id}/required-by", s.handleRequiredBy).Methods("GET")
	s.router.HandleFunc("/api/graph", s.handleGraph).Methods("GET")
	s.router.HandleFunc("/api/cycles", s.handleCycles).Methods("GET")
	s.router.HandleFunc("/api/refresh", s.handleRefresh).Methods("POST")

	s.router.Handle("/metrics", s.manager.Metrics().Handler()).Methods("GET")
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logging.Debug("failed to write response", "error", err)
	}
}

func writeError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, modfolder.ErrModNotFound):
		status = http.StatusNotFound
	case errors.Is(err, model.ErrUnknownAction):
		status = http.StatusBadRequest
	}
	writeJSON(w, status, map[string]string{"error": err.Error()})
}

func (s *Server) handleSubscribe(w http.ResponseWriter, r *http.Request) {
	topic := mux.Vars(r)["topic"]
	if topic != pubsub.TopicFolderStatus && topic != pubsub.TopicModChanged {
		http.Error(w, fmt.Sprintf("unknown topic %q", topic), http.StatusNotFound)
		return
	}

	// Set SSE headers
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("Access-Control-Allow-Origin", "*") // CORS support

	sub, err := s.publisher.Subscribe(r.Context(), topic)
	if err != nil {
		http.Error(w, err.Error(), http.StatusServiceUnavailable)
		return
	}
	defer sub.Close()

	// Send initial comment to establish connection (Safari compatibility)
	fmt.Fprintf(w, ": connected\n\n")
	flusher, _ := w.(http.Flusher)
	if flusher != nil {
		flusher.Flush()
	}

	// The channel closes when the request context ends or the publisher shuts down
	for event := range sub.Events() {
		if err := pubsub.WriteSSE(w, event); err != nil {
			logging.DebugContext(r.Context(), "error writing SSE event", "error", err)
			return
		}
		if flusher != nil {
			flusher.Flush()
		}
	}
}

func (s *Server) handleMods(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, newModViews(s.manager.Mods()))
}

func (s *Server) handleMod(w http.ResponseWriter, r *http.Request) {
	mod, err := s.manager.Mod(mux.Vars(r)["id"])
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, newModView(mod))
}

func (s *Server) handleRequires(w http.ResponseWriter, r *http.Request) {
	names, err := s.manager.RequiresList(mux.Vars(r)["id"])
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, names)
}

func (s *Server) handleRequiredBy(w http.ResponseWriter, r *http.Request) {
	names, err := s.manager.RequiredByList(mux.Vars(r)["id"])
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, names)
}

func (s *Server) handleGraph(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.manager.Graph())
}

func (s *Server) handleCycles(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.manager.Cycles())
}

func decodeEnableRequest(r *http.Request) ([]string, model.EnableAction, error) {
	var req EnableRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		return nil, 0, fmt.Errorf("invalid request body: %w", err)
	}
	action, err := model.ParseEnableAction(req.Action)
	if err != nil {
		return nil, 0, err
	}
	return req.IDs, action, nil
}

func (s *Server) handleAffected(w http.ResponseWriter, r *http.Request) {
	ids, action, err := decodeEnableRequest(r)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}

	mods, err := s.manager.Affected(ids, action)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, EnableResponse{Action: action.String(), Mods: newModViews(mods)})
}

func (s *Server) handleSetEnabled(w http.ResponseWriter, r *http.Request) {
	ids, action, err := decodeEnableRequest(r)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}

	changed, err := s.manager.SetEnabled(r.Context(), ids, action)
	resp := EnableResponse{Action: action.String(), Mods: newModViews(changed)}
	if err != nil {
		if errors.Is(err, modfolder.ErrModNotFound) {
			writeError(w, err)
			return
		}
		// Mods changed before the failure are still reported
		resp.Error = err.Error()
		writeJSON(w, http.StatusInternalServerError, resp)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleRefresh(w http.ResponseWriter, r *http.Request) {
	// Parsing outlives the request
	batch, err := s.manager.Refresh(context.WithoutCancel(r.Context()))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]string{"batch": batch})
}

// Start serves on the given port until ctx is done
func (s *Server) Start(ctx context.Context, port int) error {
	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", port),
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logging.Info("starting web server", "url", fmt.Sprintf("http://localhost:%d", port))
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	// Ends open event streams so Shutdown does not wait for them
	_ = s.publisher.Close()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}
