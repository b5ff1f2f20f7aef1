// Package healthserver exposes the liveness/readiness endpoints that every
// long-lived process in this system needs for orchestration probes. It is
// not the planner's request surface (that HTTP/REST encoding remains out
// of scope, spec §1) — it only answers "is this process alive and
// connected to its dependencies".
package healthserver

import (
	"context"
	"encoding/json"
	"net/http"
	"time"
)

// Checker reports whether a dependency (store, queue) is currently
// reachable. Returning an error marks the process not-ready.
type Checker func(ctx context.Context) error

// Server is a minimal net/http.Server serving /healthz (liveness, always
// 200 once the process is up) and /readyz (runs every registered Checker).
type Server struct {
	http *http.Server
}

// New builds a Server bound to addr, running checks against readyz.
func New(addr string, checks ...Checker) *Server {
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})
	mux.HandleFunc("/readyz", func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()

		for _, check := range checks {
			if err := check(ctx); err != nil {
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(http.StatusServiceUnavailable)
				_ = json.NewEncoder(w).Encode(map[string]string{"status": "unavailable", "error": err.Error()})
				return
			}
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_ = json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
	})

	return &Server{http: &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}}
}

// ListenAndServe blocks serving requests until Shutdown is called.
func (s *Server) ListenAndServe() error {
	return s.http.ListenAndServe()
}

// Shutdown gracefully drains in-flight requests.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.http.Shutdown(ctx)
}
