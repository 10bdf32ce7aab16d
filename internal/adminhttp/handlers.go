package adminhttp

import (
	"encoding/json"
	"net/http"
)

// Server holds the dependencies needed by the admin HTTP handlers.
type Server struct {
	sessions SessionLister
}

// handleHealthz responds to GET /healthz with a 200 and a minimal JSON body,
// so load balancers and orchestrators can verify liveness.
func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_ = json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
}

// sessionSummary is one entry in the /debug/sessions response.
type sessionSummary struct {
	ID                string `json:"id"`
	SubscriptionCount int    `json:"subscription_count"`
}

// debugSessionsResponse is the /debug/sessions response body.
type debugSessionsResponse struct {
	Count    int              `json:"count"`
	Sessions []sessionSummary `json:"sessions"`
}

// handleDebugSessions responds to GET /debug/sessions with the live session
// count and a per-session subscription count snapshot.
func (s *Server) handleDebugSessions(w http.ResponseWriter, r *http.Request) {
	infos := s.sessions.Sessions()
	resp := debugSessionsResponse{
		Count:    s.sessions.ClientCount(),
		Sessions: make([]sessionSummary, 0, len(infos)),
	}
	for _, info := range infos {
		resp.Sessions = append(resp.Sessions, sessionSummary{
			ID:                info.ID,
			SubscriptionCount: info.SubscriptionCount,
		})
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_ = json.NewEncoder(w).Encode(resp)
}
