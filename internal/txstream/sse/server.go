package sse

import (
	"encoding/json"
	"log"
	"net/http"

	"github.com/chenzhangda16/web3-txstream/internal/txstream/hub"
	"github.com/chenzhangda16/web3-txstream/internal/txstream/ingest"
)

// Server exposes the push stream plus the small status surface around it.
// It never surfaces ingestion errors to subscribers: the worst a client sees
// is a 503 at connect time or a longer gap between batches.
type Server struct {
	hub *hub.Hub
	ing *ingest.Ingestor
	cfg EmitterConfig
}

func NewServer(h *hub.Hub, ing *ingest.Ingestor, cfg EmitterConfig) *Server {
	return &Server{hub: h, ing: ing, cfg: cfg.withDefaults()}
}

func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/", s.handleStatus)
	mux.HandleFunc("/healthz", s.handleHealthz)
	mux.HandleFunc("/transaction-stream", s.handleStream)
	return mux
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		http.NotFound(w, r)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"service":     "web3-txstream",
		"ready":       s.ing.Ready(),
		"subscribers": s.hub.SubscriberCount(),
		"dropped":     s.hub.Dropped(),
		"ingest":      s.ing.Stats(),
	})
}

func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	if !s.ing.Ready() {
		http.Error(w, "ingestion not ready", http.StatusServiceUnavailable)
		return
	}
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

func (s *Server) handleStream(w http.ResponseWriter, r *http.Request) {
	if !s.ing.Ready() {
		http.Error(w, "service not ready", http.StatusServiceUnavailable)
		return
	}
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming unsupported", http.StatusInternalServerError)
		return
	}

	// Subscribe before the headers go out so nothing published after the
	// client sees the 200 can be missed.
	sub, cancel := s.hub.Subscribe()
	defer cancel()

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	// Browser frontend runs on another origin.
	w.Header().Set("Access-Control-Allow-Origin", "*")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	log.Printf("[sse] subscriber connected: sub=%d remote=%s", sub.ID(), r.RemoteAddr)
	err := RunEmitter(r.Context().Done(), sub, w, flusher.Flush, s.cfg)
	if err != nil {
		// Write errors mean the client went away mid-frame; normal termination.
		log.Printf("[sse] subscriber stream ended: sub=%d err=%v", sub.ID(), err)
		return
	}
	log.Printf("[sse] subscriber disconnected: sub=%d", sub.ID())
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}
