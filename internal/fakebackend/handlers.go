package fakebackend

import (
	"encoding/json"
	"net/http"
	"strings"

	interrors "github.com/turfbook/turf-client/internal/errors"
	"github.com/turfbook/turf-client/internal/utils"
	"github.com/turfbook/turf-client/users"
)

const maxBodyBytes = 64 << 10

// Response messages, matching the production API's wording
const (
	msgBadRequest         = "Invalid request body"
	msgCredentials        = "Incorrect email or password"
	msgCredentialsMissing = "Email and password are required"
	msgUnverified         = "Please verify your email before logging in"
	msgLoggedIn           = "Logged in successfully"
	msgAccountExists      = "An account with this email already exists"
	msgRegistered         = "Registration successful. Please verify your email"
	msgInvalidOtp         = "Invalid or expired OTP"
	msgVerified           = "Email verified successfully"
	msgInvalidRefresh     = "Invalid or expired refresh token"
	msgResetSent          = "If an account exists for that email, a reset link has been sent"
	msgInvalidReset       = "Reset link is invalid or has expired"
	msgPasswordReset      = "Password reset successfully"
	msgLoggedOut          = "Logged out successfully"
	msgNotAuthorized      = "Not authorized, please log in"
	msgInternal           = "Something went wrong"
)

type envelope struct {
	Message string `json:"message,omitempty"`
	Data    any    `json:"data,omitempty"`
}

type authData struct {
	User         *users.User `json:"user"`
	AccessToken  string      `json:"accessToken"`
	RefreshToken string      `json:"refreshToken,omitempty"`
}

func (b *Backend) initRoutes() {
	b.mux.HandleFunc("POST /auth/register", b.registerHandler)
	b.mux.HandleFunc("POST /auth/verify-otp", b.verifyOtpHandler)
	b.mux.HandleFunc("POST /auth/login", b.loginHandler)
	b.mux.HandleFunc("POST /auth/refresh-token", b.refreshTokenHandler)
	b.mux.HandleFunc("POST /auth/forgot-password", b.forgotPasswordHandler)
	b.mux.HandleFunc("PATCH /auth/reset-password/{token}", b.resetPasswordHandler)
	b.mux.HandleFunc("POST /auth/logout", b.logoutHandler)

	// PROTECTED
	b.mux.HandleFunc("GET /users/me", b.meHandler)
}

func (b *Backend) loginHandler(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Email    string `json:"email"`
		Password string `json:"password"`
	}
	if !decodeBody(w, r, &body) {
		return
	}
	if body.Email == "" || body.Password == "" {
		writeMessage(w, http.StatusBadRequest, msgCredentialsMissing)
		return
	}

	account, err := b.accounts.GetByEmail(body.Email)
	if err != nil || !users.CheckPasswordHash(body.Password, account.PasswordHash) {
		writeMessage(w, http.StatusUnauthorized, msgCredentials)
		return
	}
	if !account.Verified {
		writeMessage(w, http.StatusForbidden, msgUnverified)
		return
	}

	b.writeAuthenticated(w, http.StatusOK, &account.User, msgLoggedIn)
}

func (b *Backend) registerHandler(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Name     string `json:"name"`
		Email    string `json:"email"`
		Password string `json:"password"`
		Phone    string `json:"phone"`
	}
	if !decodeBody(w, r, &body) {
		return
	}
	if strings.TrimSpace(body.Name) == "" || strings.TrimSpace(body.Email) == "" {
		writeMessage(w, http.StatusBadRequest, "Name and email are required")
		return
	}
	if err := users.ValidatePasswordStrength(body.Password); err != nil {
		writeMessage(w, http.StatusBadRequest, err.Error())
		return
	}

	user := users.User{
		Name:  strings.TrimSpace(body.Name),
		Email: normaliseEmail(body.Email),
		Role:  users.RoleUser,
		Phone: utils.NonEmpty(body.Phone),
	}
	existing, err := b.accounts.GetByEmail(user.Email)
	switch {
	case err == nil && existing.Verified:
		writeMessage(w, http.StatusConflict, msgAccountExists)
		return
	case err == nil:
		// Unverified registrations may be repeated; the newest details win
		user.ID = existing.User.ID
	case !interrors.Is(err, interrors.ErrNotFound):
		b.internalError(w, "load account", err)
		return
	}

	hash, err := users.HashPassword(body.Password)
	if err != nil {
		b.internalError(w, "hash password", err)
		return
	}
	if err := b.accounts.Upsert(&users.Account{User: user, PasswordHash: hash}); err != nil {
		b.internalError(w, "store account", err)
		return
	}
	if err := b.issueCode(r.Context(), CodeOTP, user.Email); err != nil {
		b.internalError(w, "issue otp", err)
		return
	}

	writeJSON(w, http.StatusCreated, envelope{Message: msgRegistered, Data: map[string]string{"email": user.Email}})
}

func (b *Backend) verifyOtpHandler(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Email string `json:"email"`
		OTP   string `json:"otp"`
	}
	if !decodeBody(w, r, &body) {
		return
	}

	if err := b.codes.verifyOTP(r.Context(), body.Email, body.OTP); err != nil {
		b.logger.Debug().Err(err).Str("email", body.Email).Msg("OTP rejected")
		writeMessage(w, http.StatusBadRequest, msgInvalidOtp)
		return
	}
	if err := b.accounts.SetVerified(body.Email, true); err != nil {
		writeMessage(w, http.StatusBadRequest, msgInvalidOtp)
		return
	}
	account, err := b.accounts.GetByEmail(body.Email)
	if err != nil {
		b.internalError(w, "load account", err)
		return
	}

	b.writeAuthenticated(w, http.StatusOK, &account.User, msgVerified)
}

func (b *Backend) refreshTokenHandler(w http.ResponseWriter, r *http.Request) {
	rt, err := b.refresh.Validate(refreshTokenFrom(r))
	if err != nil {
		b.logger.Debug().Err(err).Msg("Refresh rejected")
		clearRefreshCookie(w)
		writeMessage(w, http.StatusUnauthorized, msgInvalidRefresh)
		return
	}
	account, err := b.accounts.GetByID(rt.UserID)
	if err != nil {
		writeMessage(w, http.StatusUnauthorized, msgInvalidRefresh)
		return
	}

	accessToken, err := b.creator.CreateAccessToken(&account.User)
	if err != nil {
		b.internalError(w, "create access token", err)
		return
	}
	writeJSON(w, http.StatusOK, envelope{Data: map[string]string{"accessToken": *accessToken}})
}

func (b *Backend) forgotPasswordHandler(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Email string `json:"email"`
	}
	if !decodeBody(w, r, &body) {
		return
	}

	// The response never reveals whether the account exists
	if _, err := b.accounts.GetByEmail(body.Email); err == nil {
		if err := b.issueCode(r.Context(), CodeReset, normaliseEmail(body.Email)); err != nil {
			b.internalError(w, "issue reset token", err)
			return
		}
	}
	writeMessage(w, http.StatusOK, msgResetSent)
}

func (b *Backend) resetPasswordHandler(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Password string `json:"password"`
	}
	if !decodeBody(w, r, &body) {
		return
	}
	if err := users.ValidatePasswordStrength(body.Password); err != nil {
		writeMessage(w, http.StatusBadRequest, err.Error())
		return
	}

	email, err := b.codes.consumeResetToken(r.Context(), r.PathValue("token"))
	if err != nil {
		writeMessage(w, http.StatusBadRequest, msgInvalidReset)
		return
	}
	hash, err := users.HashPassword(body.Password)
	if err != nil {
		b.internalError(w, "hash password", err)
		return
	}
	if err := b.accounts.SetPasswordHash(email, hash); err != nil {
		writeMessage(w, http.StatusBadRequest, msgInvalidReset)
		return
	}
	account, err := b.accounts.GetByEmail(email)
	if err != nil {
		b.internalError(w, "load account", err)
		return
	}

	b.writeAuthenticated(w, http.StatusOK, &account.User, msgPasswordReset)
}

// logoutHandler revokes whatever credentials the request carries. It never fails.
func (b *Backend) logoutHandler(w http.ResponseWriter, r *http.Request) {
	if raw, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer "); ok {
		if jti, exp, err := b.inspect.ParseAndExtractJTI(raw); err == nil {
			_ = b.revoked.Add(jti, exp)
		}
	}
	if refreshToken := refreshTokenFrom(r); refreshToken != "" {
		_ = b.refresh.Delete(refreshToken)
	}
	clearRefreshCookie(w)
	writeMessage(w, http.StatusOK, msgLoggedOut)
}

func (b *Backend) meHandler(w http.ResponseWriter, r *http.Request) {
	user, err := b.authenticatedUser(r)
	if err != nil {
		b.logger.Debug().Err(err).Msg("Bearer token rejected")
		writeMessage(w, http.StatusUnauthorized, msgNotAuthorized)
		return
	}
	writeJSON(w, http.StatusOK, envelope{Data: map[string]any{"user": user}})
}

// writeAuthenticated issues a token pair for user and sets the refresh cookie
func (b *Backend) writeAuthenticated(w http.ResponseWriter, status int, user *users.User, message string) {
	accessToken, refreshToken, err := b.issueTokens(user)
	if err != nil {
		b.internalError(w, "issue tokens", err)
		return
	}

	http.SetCookie(w, &http.Cookie{
		Name:     RefreshCookie,
		Value:    refreshToken,
		Path:     "/",
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
		MaxAge:   int(b.config.GetRefreshTokenExpiry().Seconds()),
	})
	writeJSON(w, status, envelope{
		Message: message,
		Data:    authData{User: user, AccessToken: accessToken, RefreshToken: refreshToken},
	})
}

func (b *Backend) internalError(w http.ResponseWriter, op string, err error) {
	b.logger.Error().Err(err).Str("op", op).Msg("Request failed")
	writeMessage(w, http.StatusInternalServerError, msgInternal)
}

// refreshTokenFrom prefers the header over the cookie
func refreshTokenFrom(r *http.Request) string {
	if token := r.Header.Get(HeaderRefreshToken); token != "" {
		return token
	}
	if cookie, err := r.Cookie(RefreshCookie); err == nil {
		return cookie.Value
	}
	return ""
}

func clearRefreshCookie(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{Name: RefreshCookie, Value: "", Path: "/", HttpOnly: true, MaxAge: -1})
}

// decodeBody writes a 400 and reports false when the body is not a JSON object
func decodeBody(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(v); err != nil {
		writeMessage(w, http.StatusBadRequest, msgBadRequest)
		return false
	}
	return true
}

func writeMessage(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, envelope{Message: message})
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}
