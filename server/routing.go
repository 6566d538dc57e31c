package server

import (
	"net/http"
	"strings"

	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// setupHTTPRoutes configures all HTTP handlers
func (s *Server) setupHTTPRoutes() {
	mux := http.NewServeMux()

	// Schedules
	mux.HandleFunc("GET /api/schedules", s.HandleListSchedules)
	mux.HandleFunc("POST /api/schedules", s.HandleCreateSchedule)
	mux.HandleFunc("GET /api/schedules/{id}", s.HandleGetSchedule)
	mux.HandleFunc("PATCH /api/schedules/{id}", s.HandleUpdateSchedule)
	mux.HandleFunc("POST /api/schedules/{id}/pause", s.HandlePauseSchedule)
	mux.HandleFunc("POST /api/schedules/{id}/resume", s.HandleResumeSchedule)
	mux.HandleFunc("GET /api/schedules/{id}/executions", s.HandleScheduleExecutions)

	// Job runs
	mux.HandleFunc("GET /api/executions", s.HandleListExecutions)
	mux.HandleFunc("GET /api/executions/{id}", s.HandleGetExecution)
	mux.HandleFunc("POST /api/jobs/run", s.HandleRunJob)

	// Global pause
	mux.HandleFunc("POST /api/pulse/pause-all", s.HandlePauseAll)
	mux.HandleFunc("POST /api/pulse/resume-all", s.HandleResumeAll)
	mux.HandleFunc("GET /api/pulse/status", s.HandlePulseStatus)

	// Approval gate
	mux.HandleFunc("GET /api/approvals", s.HandleListApprovals)
	mux.HandleFunc("GET /api/approvals/{id}", s.HandleGetApproval)
	mux.HandleFunc("POST /api/approvals/{id}/approve", s.HandleApprove)
	mux.HandleFunc("POST /api/approvals/{id}/reject", s.HandleReject)
	mux.HandleFunc("POST /api/approvals/sweep", s.HandleSweepApprovals)

	// Execution gateway
	mux.HandleFunc("POST /api/execute", s.HandleExecute)
	mux.HandleFunc("GET /api/killswitch", s.HandleGetKillSwitch)
	mux.HandleFunc("PUT /api/killswitch", s.HandleSetKillSwitch)

	// Operations
	mux.HandleFunc("GET /health", s.HandleHealth)
	mux.HandleFunc("GET /ws", s.HandleWebSocket)
	if s.registry != nil {
		mux.Handle("GET /metrics", promhttp.HandlerFor(s.registry, promhttp.HandlerOpts{}))
	}

	s.mux = mux
	s.handler = s.corsMiddleware(mux)
}

// corsMiddleware adds CORS headers for allowed origins and answers preflight
// requests before routing, since routes are registered per method
func (s *Server) corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		origin := r.Header.Get("Origin")
		if origin != "" && s.checkOrigin(r) {
			w.Header().Set("Access-Control-Allow-Origin", origin)
			w.Header().Set("Access-Control-Allow-Credentials", "true")
			w.Header().Set("Vary", "Origin")
		}
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PATCH, PUT, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// checkOrigin allows requests without an Origin header (CLI, tests) and
// origins matching a configured prefix, so any port is accepted
func (s *Server) checkOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" {
		return true
	}
	for _, allowed := range s.allowedOrigins {
		if strings.HasPrefix(origin, allowed) {
			return true
		}
	}
	return false
}
