package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/bryanchriswhite/FrameRelay/internal/cvar"
	"github.com/bryanchriswhite/FrameRelay/internal/logger"
	"github.com/bryanchriswhite/FrameRelay/internal/output"
	"github.com/bryanchriswhite/FrameRelay/internal/stream"
	"github.com/bryanchriswhite/FrameRelay/internal/window"
	"github.com/gorilla/mux"
)

// Version is reported by /api/health
const Version = "0.1.0"

// StatsSource reports frame provider activity
type StatsSource interface {
	Stats() stream.Stats
}

// Output is the viewer-facing side of the stream
type Output interface {
	Stats() output.Stats
	MJPEGHandler() http.HandlerFunc
	WebSocketHandler() http.HandlerFunc
}

// WindowLister enumerates capturable windows
type WindowLister interface {
	ListWindows() ([]*window.WindowInfo, error)
}

// Server represents the HTTP API server
type Server struct {
	router   *mux.Router
	provider StatsSource
	output   Output
	vars     *cvar.Registry
	windows  WindowLister

	mu       sync.Mutex
	http     *http.Server
	shutdown bool
}

// NewServer creates a new API server. windows may be nil when no display
// server is available.
func NewServer(provider StatsSource, out Output, vars *cvar.Registry, windows WindowLister) *Server {
	s := &Server{
		router:   mux.NewRouter(),
		provider: provider,
		output:   out,
		vars:     vars,
		windows:  windows,
	}

	s.setupRoutes()
	return s
}

// setupRoutes configures the API routes
func (s *Server) setupRoutes() {
	api := s.router.PathPrefix("/api").Subrouter()

	api.HandleFunc("/health", s.handleHealth).Methods("GET")
	api.HandleFunc("/stats", s.handleStats).Methods("GET")
	api.HandleFunc("/viewport", s.handleViewport).Methods("GET")
	api.HandleFunc("/windows", s.handleWindows).Methods("GET")

	// Runtime variables
	api.HandleFunc("/settings", s.handleGetSettings).Methods("GET")
	api.HandleFunc("/settings/{name}", s.handleGetSetting).Methods("GET")
	api.HandleFunc("/settings/{name}", s.handleSetSetting).Methods("PUT")
	api.HandleFunc("/settings/{name}", s.handleResetSetting).Methods("DELETE")

	// Viewer streams
	s.router.HandleFunc("/stream", s.output.MJPEGHandler()).Methods("GET")
	s.router.HandleFunc("/ws", s.output.WebSocketHandler())

	s.router.PathPrefix("/").HandlerFunc(s.handleIndex)
}

// Handler returns the router wrapped with CORS headers
func (s *Server) Handler() http.Handler {
	return s.enableCORS(s.router)
}

// Start serves on port until Shutdown is called
func (s *Server) Start(port int) error {
	addr := fmt.Sprintf(":%d", port)
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	s.mu.Lock()
	if s.shutdown {
		s.mu.Unlock()
		return nil
	}
	s.http = srv
	s.mu.Unlock()

	logger.WithComponent("api").Info().
		Str("addr", "http://localhost"+addr).
		Msg("Starting server")

	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown stops accepting requests and waits for active ones. Streaming
// handlers return once the output stops.
func (s *Server) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	srv := s.http
	s.shutdown = true
	s.mu.Unlock()

	if srv == nil {
		return nil
	}
	return srv.Shutdown(ctx)
}

// enableCORS adds CORS headers
func (s *Server) enableCORS(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type")

		if r.Method == "OPTIONS" {
			w.WriteHeader(http.StatusOK)
			return
		}

		next.ServeHTTP(w, r)
	})
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// HTTP Handlers

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"status":  "healthy",
		"version": Version,
	})
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, struct {
		Provider stream.Stats `json:"provider"`
		Output   output.Stats `json:"output"`
	}{
		Provider: s.provider.Stats(),
		Output:   s.output.Stats(),
	})
}

func (s *Server) handleViewport(w http.ResponseWriter, r *http.Request) {
	st := s.provider.Stats()
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"attached":  st.Attached,
		"capturing": st.Capturing,
		"width":     st.Width,
		"height":    st.Height,
	})
}

func (s *Server) handleWindows(w http.ResponseWriter, r *http.Request) {
	if s.windows == nil {
		http.Error(w, "window discovery unavailable", http.StatusServiceUnavailable)
		return
	}
	windows, err := s.windows.ListWindows()
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, windows)
}

type settingView struct {
	Name    string `json:"name"`
	Value   int    `json:"value"`
	Default int    `json:"default"`
	Set     bool   `json:"set"`
	Help    string `json:"help"`
}

func viewOf(v *cvar.Var) settingView {
	return settingView{
		Name:    v.Name(),
		Value:   v.Get(),
		Default: v.Default(),
		Set:     v.IsSet(),
		Help:    v.Help(),
	}
}

func (s *Server) handleGetSettings(w http.ResponseWriter, r *http.Request) {
	all := s.vars.All()
	views := make([]settingView, 0, len(all))
	for _, v := range all {
		views = append(views, viewOf(v))
	}
	writeJSON(w, http.StatusOK, views)
}

func (s *Server) lookupVar(w http.ResponseWriter, r *http.Request) (*cvar.Var, bool) {
	name := mux.Vars(r)["name"]
	v, ok := s.vars.Lookup(name)
	if !ok {
		http.Error(w, fmt.Sprintf("%v: %s", cvar.ErrUnknownVar, name), http.StatusNotFound)
		return nil, false
	}
	return v, true
}

func (s *Server) handleGetSetting(w http.ResponseWriter, r *http.Request) {
	v, ok := s.lookupVar(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, viewOf(v))
}

func (s *Server) handleSetSetting(w http.ResponseWriter, r *http.Request) {
	v, ok := s.lookupVar(w, r)
	if !ok {
		return
	}

	var req struct {
		Value *int `json:"value"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	if req.Value == nil {
		http.Error(w, "missing value", http.StatusBadRequest)
		return
	}

	if err := v.Set(*req.Value); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	logger.WithComponent("api").Info().
		Str("name", v.Name()).
		Int("value", *req.Value).
		Msg("Setting updated")
	writeJSON(w, http.StatusOK, viewOf(v))
}

func (s *Server) handleResetSetting(w http.ResponseWriter, r *http.Request) {
	v, ok := s.lookupVar(w, r)
	if !ok {
		return
	}
	v.Reset()
	writeJSON(w, http.StatusOK, viewOf(v))
}

const indexHTML = `<!DOCTYPE html>
<html lang="en">
<head>
    <meta charset="UTF-8">
    <title>FrameRelay</title>
    <style>
        body { font-family: sans-serif; background: #111; color: #ddd; margin: 20px; }
        img { max-width: 100%; border: 1px solid #333; }
        a { color: #6af; }
    </style>
</head>
<body>
    <h1>FrameRelay</h1>
    <img src="/stream" alt="stream">
    <ul>
        <li><a href="/api/health">/api/health</a></li>
        <li><a href="/api/stats">/api/stats</a></li>
        <li><a href="/api/settings">/api/settings</a></li>
        <li><a href="/api/viewport">/api/viewport</a></li>
    </ul>
</body>
</html>`

func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path == "/" {
		w.Header().Set("Content-Type", "text/html")
		w.Write([]byte(indexHTML))
		return
	}

	if !strings.HasPrefix(r.URL.Path, "/api") {
		http.NotFound(w, r)
		return
	}
	http.Error(w, "unknown endpoint", http.StatusNotFound)
}
