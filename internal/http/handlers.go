package http

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"bookkeeping/internal/workspace"
)

// handleHealth performs a basic liveness check.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	NewHTMXResponse().JSON(map[string]any{
		"status":    "ok",
		"timestamp": s.now().Format(time.RFC3339),
		"uptime":    s.now().Sub(s.started).Round(time.Second).String(),
	}).Write(w, r)
}

// handleReady reports ready when templates are loaded and the store answers.
func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	status := "ready"
	code := http.StatusOK
	checks := make(map[string]string)

	if s.templates == nil {
		checks["templates"] = "failed: templates not loaded"
		status, code = "not_ready", http.StatusServiceUnavailable
	} else {
		checks["templates"] = "ok"
	}

	switch {
	case s.ping == nil:
		checks["store"] = "ok"
	default:
		if err := s.ping(ctx); err != nil {
			checks["store"] = fmt.Sprintf("failed: %v", err)
			status, code = "not_ready", http.StatusServiceUnavailable
		} else {
			checks["store"] = "ok"
		}
	}

	NewHTMXResponse().Status(code).JSON(map[string]any{
		"status":    status,
		"timestamp": s.now().Format(time.RFC3339),
		"checks":    checks,
	}).Write(w, r)
}

// handleMetrics reports request, security and session counters as text.
func (s *Server) handleMetrics(w http.ResponseWriter, r *http.Request) {
	tm := s.tracer.GetMetrics()
	dm := s.detector.GetMetrics()
	rm := s.limiter.GetMetrics()

	body := fmt.Sprintf(`# Bookkeeping dashboard metrics
http_requests_total %d
http_server_errors_total %d
http_last_request_duration_microseconds %d
security_suspicious_requests_total %d
security_blocked_requests_total %d
rate_limit_rejected_total %d
rate_limit_active_clients %d
sessions_active %d
uptime_seconds %d
`,
		tm.TotalRequests, tm.ServerErrors, tm.LastDurationMicros,
		dm.SuspiciousRequests, dm.BlockedRequests,
		rm.Rejected, rm.ClientCount,
		s.workspaces.Sessions(),
		int64(s.now().Sub(s.started).Seconds()))

	NewHTMXResponse().Header("Content-Type", "text/plain; charset=utf-8").BodyString(body).Write(w, r)
}

// fail reports a failed action. Form posts get the message as a notice on
// the redirected page; HTMX and JSON callers get it in the body with status.
func (s *Server) fail(w http.ResponseWriter, r *http.Request, ws *workspace.Workspace, status int, message string) {
	if isHTMX(r) || wantsJSON(r) || ws == nil {
		ErrorResponse(r, status, message).Write(w, r)
		return
	}
	ws.Notify(workspace.LevelError, message)
	NewHTMXResponse().Redirect(dashboardURL(r.Form)).Write(w, r)
}

// done redirects back to the dashboard after a successful action.
func (s *Server) done(w http.ResponseWriter, r *http.Request, b *HTMXResponseBuilder) {
	b.Redirect(dashboardURL(r.Form)).Write(w, r)
}
