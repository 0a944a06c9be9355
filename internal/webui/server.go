// Package webui serves a small browser dashboard over the run history: a JSON
// API for runs and status, and a WebSocket that pushes new runs as they are
// analyzed.
package webui

import (
	"context"
	"embed"
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/coder/websocket"

	"github.com/tobert/chainscope/internal/storage"
	"github.com/tobert/chainscope/internal/viz"
)

//go:embed static/index.html
var staticFiles embed.FS

// Server serves the embedded web UI and WebSocket updates.
type Server struct {
	store     *storage.RunStore
	baselines *storage.BaselineManager
}

// New creates a new web UI server. baselines may be nil.
func New(store *storage.RunStore, baselines *storage.BaselineManager) *Server {
	return &Server{store: store, baselines: baselines}
}

// RegisterRoutes attaches web UI routes to an existing ServeMux.
func (s *Server) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /ui/", s.handleUI)
	mux.HandleFunc("GET /ui", s.handleUIRedirect)
	mux.HandleFunc("GET /api/runs", s.handleRuns)
	mux.HandleFunc("GET /api/runs/{id}", s.handleRun)
	mux.HandleFunc("GET /api/runs/{id}/waterfall", s.handleWaterfall)
	mux.HandleFunc("GET /api/status", s.handleStatus)
	mux.HandleFunc("GET /ws", s.handleWebSocket)
}

// handleUIRedirect redirects /ui to /ui/ for consistent routing.
func (s *Server) handleUIRedirect(w http.ResponseWriter, r *http.Request) {
	http.Redirect(w, r, "/ui/", http.StatusMovedPermanently)
}

// handleUI serves the embedded index.html.
func (s *Server) handleUI(w http.ResponseWriter, r *http.Request) {
	data, err := staticFiles.ReadFile("static/index.html")
	if err != nil {
		http.Error(w, "UI not found", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Write(data)
}

// handleRuns returns run summaries, newest first.
func (s *Server) handleRuns(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	filter := storage.RunFilter{URL: q.Get("url")}
	if limitStr := q.Get("limit"); limitStr != "" {
		if n, err := strconv.Atoi(limitStr); err == nil && n > 0 {
			filter.Limit = n
		}
	}

	runs := s.store.List(filter)
	summaries := make([]storage.RunSummary, len(runs))
	for i, run := range runs {
		summaries[i] = run.Summary()
	}
	writeJSON(w, summaries)
}

// lookup resolves the {id} path value; "latest" is the newest run.
func (s *Server) lookup(w http.ResponseWriter, r *http.Request) (*storage.Run, bool) {
	id := r.PathValue("id")
	if id == "latest" {
		id = ""
	}
	run, err := s.store.Resolve(id)
	if errors.Is(err, storage.ErrRunNotFound) {
		http.Error(w, err.Error(), http.StatusNotFound)
		return nil, false
	}
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return nil, false
	}
	return run, true
}

// handleRun returns one run with its full analysis.
func (s *Server) handleRun(w http.ResponseWriter, r *http.Request) {
	run, ok := s.lookup(w, r)
	if !ok {
		return
	}
	writeJSON(w, run)
}

// handleWaterfall returns the text report of one run.
func (s *Server) handleWaterfall(w http.ResponseWriter, r *http.Request) {
	run, ok := s.lookup(w, r)
	if !ok {
		return
	}

	width := 100
	if n, err := strconv.Atoi(r.URL.Query().Get("width")); err == nil && n >= 40 {
		width = n
	}

	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.Write([]byte(viz.AnalysisReport(run.Analysis, width)))
}

// statusResponse is the JSON shape for /api/status.
type statusResponse struct {
	Generation uint64  `json:"generation"`
	Runs       int     `json:"runs"`
	Capacity   int     `json:"capacity"`
	TotalAdded int     `json:"total_added"`
	Evicted    uint64  `json:"evicted"`
	Baselines  int     `json:"baselines"`
	Persistent bool    `json:"persistent"`
	Uptime     float64 `json:"uptime_seconds"`
}

func (s *Server) status() statusResponse {
	stats := s.store.Stats()
	st := statusResponse{
		Generation: stats.Generation,
		Runs:       stats.Runs,
		Capacity:   stats.Capacity,
		TotalAdded: stats.TotalAdded,
		Evicted:    stats.Evicted,
		Persistent: stats.Persistent,
		Uptime:     stats.UptimeSeconds,
	}
	if s.baselines != nil {
		st.Baselines = s.baselines.Count()
	}
	return st
}

// handleStatus returns generation counter, history counts, and uptime.
func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, s.status())
}

// wsFilter is the client-sent filter message on the WebSocket.
type wsFilter struct {
	URL    string `json:"url"`
	Paused bool   `json:"paused"`
}

// wsUpdate is the server-sent update message on the WebSocket.
type wsUpdate struct {
	Status statusResponse       `json:"status"`
	Runs   []storage.RunSummary `json:"runs,omitempty"`
}

// handleWebSocket upgrades to WebSocket and streams newly analyzed runs.
func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		InsecureSkipVerify: true, // Allow any origin for localhost dev
	})
	if err != nil {
		return
	}
	defer conn.CloseNow()

	ctx := r.Context()

	// Subscribe to history notifications
	notifyCh, unsubscribe := s.store.Subscribe()
	defer unsubscribe()

	// Back up to include recent history on connect
	const backfillRuns = 20
	lastPos := max(0, s.store.CurrentPosition()-backfillRuns)

	// Current filter (initially empty = show all)
	var filter wsFilter

	// Read filter messages from client in a goroutine
	filterCh := make(chan wsFilter, 4)
	go func() {
		defer close(filterCh)
		for {
			_, data, err := conn.Read(ctx)
			if err != nil {
				return
			}
			var f wsFilter
			if json.Unmarshal(data, &f) == nil {
				select {
				case filterCh <- f:
				default:
				}
			}
		}
	}()

	// Send initial status immediately
	s.sendWSUpdate(ctx, conn, &lastPos, filter)

	// Keepalive ticker (send status even with no data changes, so client knows we're alive)
	keepalive := time.NewTicker(15 * time.Second)
	defer keepalive.Stop()

	for {
		select {
		case <-ctx.Done():
			conn.Close(websocket.StatusNormalClosure, "server shutting down")
			return

		case f, ok := <-filterCh:
			if !ok {
				// Client disconnected
				return
			}
			filter = f

		case <-notifyCh:
			if filter.Paused {
				continue
			}
			s.sendWSUpdate(ctx, conn, &lastPos, filter)

		case <-keepalive.C:
			if filter.Paused {
				continue
			}
			s.sendWSUpdate(ctx, conn, &lastPos, filter)
		}
	}
}

// sendWSUpdate sends the runs added since lastPos and the current status.
func (s *Server) sendWSUpdate(ctx context.Context, conn *websocket.Conn, lastPos *int, filter wsFilter) {
	update := wsUpdate{Status: s.status()}

	runs, next := s.store.RunsSince(*lastPos)
	needle := strings.ToLower(filter.URL)
	for _, run := range runs {
		if needle != "" && !strings.Contains(strings.ToLower(run.URL), needle) {
			continue
		}
		update.Runs = append(update.Runs, run.Summary())
	}
	*lastPos = next

	data, err := json.Marshal(update)
	if err != nil {
		log.Printf("webui: failed to marshal update: %v", err)
		return
	}

	writeCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if err := conn.Write(writeCtx, websocket.MessageText, data); err != nil {
		// Connection closed; the main loop will handle cleanup.
		return
	}
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	enc := json.NewEncoder(w)
	enc.SetIndent("", "")
	if err := enc.Encode(v); err != nil {
		log.Printf("webui: failed to write JSON: %v", err)
	}
}
