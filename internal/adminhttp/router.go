// Package adminhttp exposes a small operator-facing HTTP surface alongside
// the Bedrock WebSocket listener: a liveness probe and a live-session
// snapshot. It is observability only, not part of the Bedrock protocol.
package adminhttp

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

// SessionLister is the subset of wsserver.Server used by the admin surface.
// Declared as a local interface so tests can substitute a fake rather than
// spinning up a real WebSocket server.
type SessionLister interface {
	ClientCount() int
	Sessions() []SessionInfo
}

// SessionInfo mirrors wsserver.SessionInfo; duplicated here (rather than
// imported) so this package does not need to depend on wsserver's internals
// beyond the SessionLister interface.
type SessionInfo struct {
	ID                string
	SubscriptionCount int
}

// NewRouter returns a configured chi.Router for the admin HTTP surface.
//
// Route layout:
//
//	GET /healthz         – liveness probe
//	GET /debug/sessions  – live session count and per-session subscriptions
func NewRouter(sessions SessionLister) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)

	srv := &Server{sessions: sessions}
	r.Get("/healthz", srv.handleHealthz)
	r.Get("/debug/sessions", srv.handleDebugSessions)

	return r
}
