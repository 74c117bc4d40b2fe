package backend

import (
	"context"
	"fmt"
	"math/rand"
	"net/http"
	"time"

	"github.com/kroma-labs/hedging-go/example/hedging/internal/config"
)

// Server simulates an upstream with a latency tail: most responses come back
// in FastLatencyMillis, SlowSharePercent of them stall for SlowLatencyMillis.
// This is the traffic shape request hedging is built for.
type Server struct {
	srv *http.Server
}

// New creates the demo backend listening on config.BackendAddr.
func New() *Server {
	mux := http.NewServeMux()
	mux.HandleFunc("/search", handleSearch)

	return &Server{
		srv: &http.Server{
			Addr:    config.BackendAddr,
			Handler: mux,
		},
	}
}

// Start runs the backend. It blocks until the listener fails or is shut down.
func (s *Server) Start() error {
	return s.srv.ListenAndServe()
}

// Shutdown stops the backend gracefully.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.srv.Shutdown(ctx)
}

func handleSearch(w http.ResponseWriter, r *http.Request) {
	latency := time.Duration(config.FastLatencyMillis) * time.Millisecond
	slow := rand.Intn(100) < config.SlowSharePercent
	if slow {
		latency = time.Duration(config.SlowLatencyMillis) * time.Millisecond
	}

	select {
	case <-r.Context().Done():
		// The client hedged past us or gave up; nothing left to serve.
		return
	case <-time.After(latency):
	}

	w.Header().Set("Content-Type", "application/json")
	fmt.Fprintf(w, `{"query":%q,"slow":%t,"latency_ms":%d}`,
		r.URL.Query().Get("q"), slow, latency.Milliseconds())
}
