// Package diag serves the optional local diagnostics endpoint: the Prometheus
// scrape target backed by the OTel metric pipeline, plus liveness and
// readiness probes.
//
//   - /metrics — Prometheus exposition of the smartchat.* instruments.
//   - /healthz — liveness; always 200 while the process serves HTTP.
//   - /readyz  — readiness; 200 only when every registered [Check] passes.
//
// Probe responses are JSON objects with a top-level "status" field ("ok" or
// "fail") and a "checks" map with per-check results.
package diag

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// probeTimeout bounds a single readiness check.
const probeTimeout = 5 * time.Second

// Check is a named readiness probe. Probe must return nil when the dependency
// is usable and must respect context cancellation.
type Check struct {
	Name  string
	Probe func(ctx context.Context) error
}

// BackendCheck probes the SmartChat backend base URL. Any HTTP response
// counts as reachable; only transport-level failures fail the check, since an
// unauthenticated request is expected to be rejected with a status code.
func BackendCheck(baseURL string, client *http.Client) Check {
	if client == nil {
		client = http.DefaultClient
	}
	return Check{
		Name: "backend",
		Probe: func(ctx context.Context) error {
			req, err := http.NewRequestWithContext(ctx, http.MethodGet, baseURL, nil)
			if err != nil {
				return fmt.Errorf("diag: build probe request: %w", err)
			}
			resp, err := client.Do(req)
			if err != nil {
				return fmt.Errorf("diag: backend unreachable: %w", err)
			}
			resp.Body.Close()
			return nil
		},
	}
}

// Server is the diagnostics HTTP server. It binds to a local address from the
// metrics config and runs alongside the TUI.
type Server struct {
	srv    *http.Server
	checks []Check
}

// NewServer builds the server with its route table. Checks are evaluated
// sequentially on each /readyz request, in the order given.
func NewServer(addr string, checks ...Check) *Server {
	s := &Server{checks: append([]Check(nil), checks...)}

	mux := http.NewServeMux()
	mux.Handle("GET /metrics", promhttp.Handler())
	mux.HandleFunc("GET /healthz", s.healthz)
	mux.HandleFunc("GET /readyz", s.readyz)

	s.srv = &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
	return s
}

// Handler returns the route table. Used by tests.
func (s *Server) Handler() http.Handler {
	return s.srv.Handler
}

// Start begins serving in the background. Errors other than a clean shutdown
// are logged, not fatal: diagnostics must never take the client down.
func (s *Server) Start() {
	go func() {
		slog.Info("diag: listening", "addr", s.srv.Addr)
		if err := s.srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("diag: server stopped", "error", err)
		}
	}()
}

// Shutdown stops the server, waiting for in-flight scrapes up to the context
// deadline.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.srv.Shutdown(ctx)
}

type probeResult struct {
	Status string            `json:"status"`
	Checks map[string]string `json:"checks,omitempty"`
}

func (s *Server) healthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, probeResult{Status: "ok"})
}

func (s *Server) readyz(w http.ResponseWriter, r *http.Request) {
	checks := make(map[string]string, len(s.checks))
	allOK := true

	for _, c := range s.checks {
		ctx, cancel := context.WithTimeout(r.Context(), probeTimeout)
		err := c.Probe(ctx)
		cancel()

		if err != nil {
			checks[c.Name] = "fail: " + err.Error()
			allOK = false
		} else {
			checks[c.Name] = "ok"
		}
	}

	res := probeResult{Status: "ok", Checks: checks}
	status := http.StatusOK
	if !allOK {
		res.Status = "fail"
		status = http.StatusServiceUnavailable
	}
	writeJSON(w, status, res)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		http.Error(w, `{"status":"error"}`, http.StatusInternalServerError)
	}
}
