package server

import (
	"encoding/json"
	"net/http"
)

// NewHTTPHandler returns an http.Handler with all routes registered.
// Stream routes authenticate users by JWT; admin routes require the admin
// Bearer token and are absent when no admin token is configured.
func (s *Server) NewHTTPHandler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /v1/health", s.handleHealth)
	mux.HandleFunc("GET /v1/me/notifications/stream", s.handleNotificationStream)
	mux.HandleFunc("GET /v1/me/notifications/ws", s.handleNotificationSocket)

	if s.adminToken != "" {
		admin := http.NewServeMux()
		admin.HandleFunc("POST /v1/admin/dispatch", s.handleDispatch)
		admin.HandleFunc("GET /v1/admin/jobs", s.handleListJobs)
		admin.HandleFunc("POST /v1/admin/jobs/{name}/run", s.handleRunJob)
		admin.HandleFunc("GET /v1/admin/connections", s.handleConnections)
		mux.Handle("/v1/admin/", AdminMiddleware(s.adminToken, admin))
	}
	return mux
}

// handleHealth handles GET /v1/health.
func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":      "ok",
		"connections": s.Presence.Count(),
	})
}

// writeJSON writes a JSON response with the given status code.
func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

// writeError writes a JSON error response.
func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}
