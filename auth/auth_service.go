package auth

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/turfbook/turf-client/client"
	interrors "github.com/turfbook/turf-client/internal/errors"
	"github.com/turfbook/turf-client/storage"
)

const serverLogoutTimeout = 5 * time.Second

// Deps holds the collaborators of the Service
type Deps struct {
	Client APIClient
	Store  SessionStore
	// Pending is session-scoped storage for the email awaiting OTP verification
	Pending   storage.Repo
	Navigator Navigator
	Notifier  Notifier
}

// Service exposes each authentication use case as a single action. Every
// failure is reported through the Notifier and returned; nothing panics or
// leaves the session half-written.
type Service struct {
	deps         Deps
	validator    *Validator
	logger       zerolog.Logger
	serverLogout bool

	inFlight   atomic.Int32
	background sync.WaitGroup
}

// ServiceOption defines a function type to modify the Service instance.
type ServiceOption func(*Service)

func WithLogger(logger zerolog.Logger) ServiceOption {
	return func(s *Service) {
		s.logger = logger
	}
}

// WithServerLogout makes Logout also tell the backend, without waiting for it
func WithServerLogout(enabled bool) ServiceOption {
	return func(s *Service) {
		s.serverLogout = enabled
	}
}

func NewService(deps Deps, options ...ServiceOption) (*Service, error) {
	if deps.Client == nil {
		return nil, errors.New("[NewService] API client is required")
	}
	if deps.Store == nil {
		return nil, errors.New("[NewService] session store is required")
	}
	if deps.Pending == nil {
		return nil, errors.New("[NewService] pending verification storage is required")
	}

	s := &Service{
		deps:      deps,
		validator: NewValidator(),
		logger:    log.Logger,
	}
	for _, opt := range options {
		opt(s)
	}

	if s.deps.Navigator == nil {
		s.deps.Navigator = nopNavigator{}
	}
	if s.deps.Notifier == nil {
		s.deps.Notifier = logNotifier{logger: s.logger}
	}
	return s, nil
}

// IsLoading reports whether any operation is in flight
func (s *Service) IsLoading() bool {
	return s.inFlight.Load() > 0
}

func (s *Service) begin() func() {
	s.inFlight.Add(1)
	return func() { s.inFlight.Add(-1) }
}

// Login authenticates with email and password and navigates home
func (s *Service) Login(ctx context.Context, data LoginData) (Result, error) {
	defer s.begin()()

	data.Email = strings.TrimSpace(data.Email)
	if err := s.validator.ValidateLogin(data); err != nil {
		return Result{}, s.invalid("Login", err)
	}

	resp, err := s.deps.Client.Do(ctx, client.Request{Method: http.MethodPost, Path: PathLogin, Body: data})
	if err != nil {
		return Result{}, s.fail("Login", err, LoginFailedMsg)
	}
	return s.authenticate(ctx, "Login", resp, LoginSuccessMsg, LoginFailedMsg)
}

// Register creates an account and navigates to OTP verification. The user is
// not authenticated until VerifyOtp succeeds.
func (s *Service) Register(ctx context.Context, data RegisterData) (Result, error) {
	defer s.begin()()

	data.Name = strings.TrimSpace(data.Name)
	data.Email = strings.TrimSpace(data.Email)
	if err := s.validator.ValidateRegister(data); err != nil {
		return Result{}, s.invalid("Register", err)
	}

	resp, err := s.deps.Client.Do(ctx, client.Request{Method: http.MethodPost, Path: PathRegister, Body: data})
	if err != nil {
		return Result{}, s.fail("Register", err, RegistrationFailedMsg)
	}

	pendingEmail := data.Email
	var payload registerPayload
	if len(resp.Data) > 0 && resp.Decode(&payload) == nil && payload.Email != "" {
		pendingEmail = payload.Email
	}
	if err := s.deps.Pending.Set(ctx, storage.KeyPendingVerificationEmail, []byte(pendingEmail)); err != nil {
		return Result{}, s.fail("Register", err, RegistrationFailedMsg)
	}

	message := orMessage(resp.Message, RegistrationSuccessMsg)
	s.deps.Navigator.Navigate(RouteVerifyOtp)
	s.deps.Notifier.Success(message)
	s.logger.Info().Str("email", pendingEmail).Msg("Registration pending verification")
	return Result{Message: message, Location: RouteVerifyOtp}, nil
}

// VerifyOtp confirms the registration code. This is where a new user becomes
// authenticated. A failure keeps the pending email so the user can retry.
func (s *Service) VerifyOtp(ctx context.Context, data VerifyOtpData) (Result, error) {
	defer s.begin()()

	data.Email = strings.TrimSpace(data.Email)
	if data.Email == "" {
		data.Email = s.PendingVerificationEmail(ctx)
	}
	data.OTP = strings.TrimSpace(data.OTP)
	if err := s.validator.ValidateVerifyOtp(data); err != nil {
		return Result{}, s.invalid("VerifyOtp", err)
	}

	resp, err := s.deps.Client.Do(ctx, client.Request{Method: http.MethodPost, Path: PathVerifyOtp, Body: data})
	if err != nil {
		return Result{}, s.fail("VerifyOtp", err, OtpFailedMsg)
	}

	result, err := s.authenticate(ctx, "VerifyOtp", resp, OtpSuccessMsg, OtpFailedMsg)
	if err != nil {
		return result, err
	}
	if err := s.deps.Pending.Delete(ctx, storage.KeyPendingVerificationEmail); err != nil {
		s.logger.Warn().Err(err).Msg("Failed to clear pending verification email")
	}
	return result, nil
}

// ForgotPassword requests a reset email and navigates to login. The session is untouched.
func (s *Service) ForgotPassword(ctx context.Context, data ForgotPasswordData) (Result, error) {
	defer s.begin()()

	data.Email = strings.TrimSpace(data.Email)
	if err := s.validator.ValidateForgotPassword(data); err != nil {
		return Result{}, s.invalid("ForgotPassword", err)
	}

	resp, err := s.deps.Client.Do(ctx, client.Request{Method: http.MethodPost, Path: PathForgotPassword, Body: data})
	if err != nil {
		return Result{}, s.fail("ForgotPassword", err, ForgotPasswordFailedMsg)
	}

	message := orMessage(resp.Message, ForgotPasswordSuccessMsg)
	s.deps.Navigator.Navigate(RouteLogin)
	s.deps.Notifier.Success(message)
	return Result{Message: message, Location: RouteLogin}, nil
}

// ResetPassword sets a new password using the emailed token and logs the user in
func (s *Service) ResetPassword(ctx context.Context, data ResetPasswordData) (Result, error) {
	defer s.begin()()

	data.Token = strings.TrimSpace(data.Token)
	if err := s.validator.ValidateResetPassword(data); err != nil {
		return Result{}, s.invalid("ResetPassword", err)
	}

	resp, err := s.deps.Client.Do(ctx, client.Request{
		Method: http.MethodPatch,
		Path:   PathResetPassword + url.PathEscape(data.Token),
		Body:   data,
	})
	if err != nil {
		return Result{}, s.fail("ResetPassword", err, ResetPasswordFailedMsg)
	}
	return s.authenticate(ctx, "ResetPassword", resp, ResetPasswordSuccessMsg, ResetPasswordFailedMsg)
}

// Logout clears the session locally and navigates home. It always succeeds.
func (s *Service) Logout(ctx context.Context) Result {
	defer s.begin()()

	// The credentials are gone from the store once it is cleared
	credentials := s.credentialHeader()
	if err := s.deps.Store.Logout(ctx); err != nil {
		s.logger.Warn().Err(err).Msg("Failed to purge persisted session")
	}

	if s.serverLogout {
		s.background.Add(1)
		go func() {
			defer s.background.Done()
			logoutCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), serverLogoutTimeout)
			defer cancel()
			req := client.Request{Method: http.MethodPost, Path: PathLogout, Header: credentials, SkipRefresh: true}
			if _, err := s.deps.Client.Do(logoutCtx, req); err != nil {
				s.logger.Debug().Err(err).Msg("Server logout failed")
			}
		}()
	}

	s.deps.Navigator.Navigate(RouteHome)
	s.deps.Notifier.Success(LogoutSuccessMsg)
	return Result{Message: LogoutSuccessMsg, Location: RouteHome}
}

// credentialHeader carries the current tokens so the server can revoke them
func (s *Service) credentialHeader() http.Header {
	header := http.Header{}
	if accessToken := s.deps.Store.AccessToken(); accessToken != "" {
		header.Set("Authorization", "Bearer "+accessToken)
	}
	if refreshToken := s.deps.Store.RefreshToken(); refreshToken != "" {
		header.Set(client.HeaderRefreshToken, refreshToken)
	}
	return header
}

// Wait blocks until background server logouts have finished
func (s *Service) Wait() {
	s.background.Wait()
}

// PendingVerificationEmail returns the email awaiting OTP verification, or ""
func (s *Service) PendingVerificationEmail(ctx context.Context) string {
	data, err := s.deps.Pending.Get(ctx, storage.KeyPendingVerificationEmail)
	if err != nil {
		if !interrors.Is(err, storage.ErrNotFound) {
			s.logger.Warn().Err(err).Msg("Failed to read pending verification email")
		}
		return ""
	}
	return string(data)
}

// authenticate stores the user and tokens carried by resp, then navigates home
func (s *Service) authenticate(ctx context.Context, op string, resp *client.Response, successMsg, failedMsg string) (Result, error) {
	var payload authPayload
	if err := resp.Decode(&payload); err != nil {
		return Result{}, s.fail(op, err, failedMsg)
	}
	if payload.User == nil || payload.AccessToken == "" {
		return Result{}, s.fail(op, fmt.Errorf("response carried no user or access token: %w", interrors.ErrServer), failedMsg)
	}

	if err := s.deps.Store.Login(ctx, payload.User, payload.AccessToken, payload.RefreshToken); err != nil {
		return Result{}, s.fail(op, err, failedMsg)
	}

	message := orMessage(resp.Message, successMsg)
	s.deps.Navigator.Navigate(RouteHome)
	s.deps.Notifier.Success(message)
	s.logger.Info().Str("user_id", payload.User.ID).Str("role", string(payload.User.Role)).Msgf("%s succeeded", op)
	return Result{Message: message, Location: RouteHome, User: payload.User.Clone()}, nil
}

// invalid returns a local validation failure. These are shown inline by the
// form, so the Notifier is not called.
func (s *Service) invalid(op string, err error) error {
	s.logger.Debug().Err(err).Msgf("%s rejected by validation", op)
	return fmt.Errorf("[Service.%s] %w", op, err)
}

func (s *Service) fail(op string, err error, fallback string) error {
	message := client.ServerMessage(err, fallback)
	s.logger.Warn().Err(err).Msgf("%s failed", op)
	s.deps.Notifier.Error(message)
	return &Failure{Op: op, Message: message, Err: err}
}

func orMessage(message, fallback string) string {
	if message == "" {
		return fallback
	}
	return message
}
