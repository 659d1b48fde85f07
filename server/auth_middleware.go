package server

import (
	"context"
	"net/http"

	"github.com/turfbook/turf-client/guard"
	"github.com/turfbook/turf-client/sessions"
)

// ContextKey is a custom type for context keys to avoid collisions
type ContextKey string

// ContextKeySession stores the session the guard evaluated
const ContextKeySession ContextKey = "session"

// RequireRoute gates a route on the current session. A redirect decision
// answers 303 with the guard's location; otherwise the session the decision
// was made on is placed in the request context.
func (s *Server) RequireRoute(requirement guard.Requirement) func(http.HandlerFunc) http.HandlerFunc {
	return func(next http.HandlerFunc) http.HandlerFunc {
		return func(w http.ResponseWriter, r *http.Request) {
			session := s.store.Snapshot()
			decision := s.guard.Evaluate(session, requirement, r.URL.RequestURI())

			if decision.Outcome == guard.Redirect {
				s.logger.Debug().
					Str("path", r.URL.Path).
					Str("location", decision.Location).
					Msg("Route guard redirect")
				redirectSuccess(w, r, decision.RedirectURL())
				return
			}

			ctx := context.WithValue(r.Context(), ContextKeySession, session)
			next(w, r.WithContext(ctx))
		}
	}
}

// SessionFromContext returns the session stored by RequireRoute
func SessionFromContext(ctx context.Context) (sessions.Session, bool) {
	session, ok := ctx.Value(ContextKeySession).(sessions.Session)
	return session, ok
}
