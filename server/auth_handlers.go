package server

import (
	"context"
	"net/http"
	"net/url"
	"strings"

	"github.com/turfbook/turf-client/auth"
	"github.com/turfbook/turf-client/guard"
	interrors "github.com/turfbook/turf-client/internal/errors"
)

// submission runs one Session Service operation for a posted form
type submission func(ctx context.Context, form map[string]string) (auth.Result, error)

// submitHandler decodes the form, runs op and answers with JSON for JSON
// posts or an htmx-aware redirect for form posts. formPath is where a failed
// form post is sent back to.
func (s *Server) submitHandler(formPath string, op submission) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		form, err := formValues(w, r)
		if err != nil {
			s.respondFailure(w, r, formPath, err, "Invalid form")
			return
		}

		result, err := op(r.Context(), form)
		if err != nil {
			s.respondFailure(w, r, formPath, err, "")
			return
		}

		location := result.Location
		if from := form["from"]; from != "" && location == RouteHome {
			location = guard.ReturnTo(from, location)
		}

		if isJSONRequest(r) {
			writeJSON(w, http.StatusOK, messageResponse{Message: result.Message, Location: location})
			return
		}
		redirectSuccess(w, r, location)
	}
}

func (s *Server) respondFailure(w http.ResponseWriter, r *http.Request, formPath string, err error, fallback string) {
	status, message, fields := failureResponse(err, fallback)
	if isJSONRequest(r) {
		writeJSON(w, status, messageResponse{Message: message, Fields: fields})
		return
	}
	redirectWithError(w, r, formPath, message)
}

// failureResponse maps an operation error to a status, a message and per-field messages
func failureResponse(err error, fallback string) (int, string, map[string]string) {
	var validation auth.ValidationErrors
	if interrors.As(err, &validation) {
		fields := make(map[string]string, len(validation))
		messages := make([]string, 0, len(validation))
		for _, e := range validation {
			fields[e.Field] = e.Message
			messages = append(messages, e.Message)
		}
		return http.StatusBadRequest, strings.Join(messages, "; "), fields
	}

	message := fallback
	var failure *auth.Failure
	if interrors.As(err, &failure) {
		message = failure.Message
	}
	if message == "" {
		message = "Something went wrong"
	}

	switch {
	case interrors.Is(err, interrors.ErrInvalidCredentials):
		return http.StatusUnauthorized, message, nil
	case interrors.Is(err, interrors.ErrSessionExpired):
		return http.StatusUnauthorized, message, nil
	case interrors.Is(err, interrors.ErrTimeout):
		return http.StatusGatewayTimeout, message, nil
	case failure != nil:
		return http.StatusBadGateway, message, nil
	default:
		return http.StatusBadRequest, message, nil
	}
}

func (s *Server) LoginSubmissionHandler() http.HandlerFunc {
	return s.submitHandler(RouteLogin, func(ctx context.Context, form map[string]string) (auth.Result, error) {
		return s.auth.Login(ctx, auth.LoginData{Email: form["email"], Password: form["password"]})
	})
}

func (s *Server) RegisterSubmissionHandler() http.HandlerFunc {
	return s.submitHandler(RouteRegister, func(ctx context.Context, form map[string]string) (auth.Result, error) {
		return s.auth.Register(ctx, auth.RegisterData{
			Name:     form["name"],
			Email:    form["email"],
			Password: form["password"],
			Phone:    form["phone"],
		})
	})
}

func (s *Server) VerifyOtpSubmissionHandler() http.HandlerFunc {
	return s.submitHandler(RouteVerifyOtp, func(ctx context.Context, form map[string]string) (auth.Result, error) {
		return s.auth.VerifyOtp(ctx, auth.VerifyOtpData{Email: form["email"], OTP: form["otp"]})
	})
}

func (s *Server) ForgotPasswordSubmissionHandler() http.HandlerFunc {
	return s.submitHandler(RouteForgotPassword, func(ctx context.Context, form map[string]string) (auth.Result, error) {
		return s.auth.ForgotPassword(ctx, auth.ForgotPasswordData{Email: form["email"]})
	})
}

func (s *Server) ResetPasswordSubmissionHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		token := r.PathValue("token")
		formPath := "/auth/reset-password/" + url.PathEscape(token)
		s.submitHandler(formPath, func(ctx context.Context, form map[string]string) (auth.Result, error) {
			return s.auth.ResetPassword(ctx, auth.ResetPasswordData{Token: token, Password: form["password"]})
		})(w, r)
	}
}

func (s *Server) LogoutHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		result := s.auth.Logout(r.Context())
		if isJSONRequest(r) {
			writeJSON(w, http.StatusOK, messageResponse{Message: result.Message, Location: result.Location})
			return
		}
		redirectSuccess(w, r, result.Location)
	}
}
