package server

import (
	"net/http"

	"github.com/turfbook/turf-client/sessions"
	"github.com/turfbook/turf-client/users"
)

// View describes what a page shows. The route table serves these in place of
// rendered markup.
type View struct {
	Name    string         `json:"view"`
	Title   string         `json:"title"`
	Path    string         `json:"path"`
	Session SessionView    `json:"session"`
	Error   string         `json:"error,omitempty"`
	Data    map[string]any `json:"data,omitempty"`
}

// SessionView is the session as exposed over HTTP. Tokens are never included.
type SessionView struct {
	IsAuthenticated bool        `json:"isAuthenticated"`
	User            *users.User `json:"user"`
}

func newSessionView(session sessions.Session) SessionView {
	return SessionView{IsAuthenticated: session.IsAuthenticated, User: session.User}
}

// viewHandler serves a named view. data, when set, adds per-request view data.
func (s *Server) viewHandler(name, title string, data func(r *http.Request, session sessions.Session) map[string]any) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		session, ok := SessionFromContext(r.Context())
		if !ok {
			session = s.store.Snapshot()
		}

		view := View{
			Name:    name,
			Title:   title,
			Path:    r.URL.Path,
			Session: newSessionView(session),
			Error:   r.URL.Query().Get("error"),
		}
		if data != nil {
			view.Data = data(r, session)
		}
		writeJSON(w, http.StatusOK, view)
	}
}

func (s *Server) HomeHandler() http.HandlerFunc {
	return s.viewHandler("home", s.config.GetAppName(), nil)
}

func (s *Server) LoginPageHandler() http.HandlerFunc {
	return s.viewHandler("login", "Log in", func(r *http.Request, _ sessions.Session) map[string]any {
		if from := r.URL.Query().Get("from"); from != "" {
			return map[string]any{"from": from}
		}
		return nil
	})
}

func (s *Server) RegisterPageHandler() http.HandlerFunc {
	return s.viewHandler("register", "Create an account", nil)
}

func (s *Server) VerifyOtpPageHandler() http.HandlerFunc {
	return s.viewHandler("verify-otp", "Verify your email", func(r *http.Request, _ sessions.Session) map[string]any {
		return map[string]any{"email": s.auth.PendingVerificationEmail(r.Context())}
	})
}

func (s *Server) ForgotPasswordPageHandler() http.HandlerFunc {
	return s.viewHandler("forgot-password", "Forgot password", nil)
}

func (s *Server) ResetPasswordPageHandler() http.HandlerFunc {
	return s.viewHandler("reset-password", "Reset password", func(r *http.Request, _ sessions.Session) map[string]any {
		return map[string]any{"token": r.PathValue("token")}
	})
}

func (s *Server) UnauthorizedHandler() http.HandlerFunc {
	return s.viewHandler("unauthorized", "Unauthorized", nil)
}

func (s *Server) ProfileHandler() http.HandlerFunc {
	return s.viewHandler("profile", "Profile", func(_ *http.Request, session sessions.Session) map[string]any {
		return map[string]any{"displayName": session.User.DisplayName()}
	})
}

func (s *Server) UserBookingsHandler() http.HandlerFunc {
	return s.viewHandler("user-bookings", "My bookings", nil)
}

func (s *Server) AdminDashboardHandler() http.HandlerFunc {
	return s.viewHandler("admin-dashboard", "Admin dashboard", nil)
}

func (s *Server) ManagerDashboardHandler() http.HandlerFunc {
	return s.viewHandler("manager-dashboard", "Manager dashboard", nil)
}

// SessionHandler returns the current session without tokens
func (s *Server) SessionHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, newSessionView(s.store.Snapshot()))
	}
}
