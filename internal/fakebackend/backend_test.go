package fakebackend_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/turfbook/turf-client/auth"
	"github.com/turfbook/turf-client/client"
	"github.com/turfbook/turf-client/internal/config"
	interrors "github.com/turfbook/turf-client/internal/errors"
	"github.com/turfbook/turf-client/internal/fakebackend"
	"github.com/turfbook/turf-client/sessions"
	"github.com/turfbook/turf-client/storage"
	"github.com/turfbook/turf-client/users"
)

const (
	testEmail    = "asha@turf.test"
	testPassword = "Str0ngPass"
)

// codeInbox collects the codes a real backend would email
type codeInbox struct {
	mu    sync.Mutex
	codes map[fakebackend.CodeKind]string
}

func (i *codeInbox) deliver(kind fakebackend.CodeKind, _ string, code string) {
	i.mu.Lock()
	defer i.mu.Unlock()
	i.codes[kind] = code
}

func (i *codeInbox) last(kind fakebackend.CodeKind) string {
	i.mu.Lock()
	defer i.mu.Unlock()
	return i.codes[kind]
}

type testFixture struct {
	backend *fakebackend.Backend
	server  *httptest.Server
	store   *sessions.Store
	client  *client.Client
	service *auth.Service
	inbox   *codeInbox
	expired []string
}

func setupTestFixture(t *testing.T, options ...fakebackend.Option) *testFixture {
	t.Helper()

	f := &testFixture{inbox: &codeInbox{codes: make(map[fakebackend.CodeKind]string)}}
	options = append([]fakebackend.Option{fakebackend.WithCodeSink(f.inbox.deliver)}, options...)
	backend, err := fakebackend.New(config.New(), "turf-test", options...)
	require.NoError(t, err)
	f.backend = backend

	f.server = httptest.NewServer(backend)
	t.Cleanup(f.server.Close)

	store, err := sessions.NewStore(context.Background(), storage.NewInMemoryRepo())
	require.NoError(t, err)
	f.store = store

	f.client, err = client.New(client.Config{BaseURL: f.server.URL, Timeout: 2 * time.Second}, store,
		client.WithSessionExpiredHandler(func(location string) { f.expired = append(f.expired, location) }))
	require.NoError(t, err)

	f.service, err = auth.NewService(auth.Deps{
		Client:  f.client,
		Store:   store,
		Pending: storage.NewInMemoryRepo(),
	}, auth.WithServerLogout(true))
	require.NoError(t, err)
	return f
}

func (f *testFixture) seed(t *testing.T, role users.RoleType) *users.User {
	t.Helper()
	user, err := f.backend.Seed(users.User{Name: "Asha", Email: testEmail, Role: role}, testPassword)
	require.NoError(t, err)
	return user
}

func (f *testFixture) me(t *testing.T) (*users.User, error) {
	t.Helper()
	resp, err := f.client.Get(context.Background(), "/users/me", nil)
	if err != nil {
		return nil, err
	}
	var data struct {
		User *users.User `json:"user"`
	}
	require.NoError(t, resp.Decode(&data))
	return data.User, nil
}

func TestBackend_RegisterAndVerify(t *testing.T) {
	f := setupTestFixture(t)
	ctx := context.Background()

	result, err := f.service.Register(ctx, auth.RegisterData{Name: "Asha", Email: testEmail, Password: testPassword})
	require.NoError(t, err)
	require.Equal(t, auth.RouteVerifyOtp, result.Location)
	require.Equal(t, testEmail, f.service.PendingVerificationEmail(ctx))

	otp := f.inbox.last(fakebackend.CodeOTP)
	require.Len(t, otp, 6)

	t.Run("unverified accounts cannot log in", func(t *testing.T) {
		_, err := f.service.Login(ctx, auth.LoginData{Email: testEmail, Password: testPassword})
		require.Error(t, err)
		require.False(t, f.store.IsAuthenticated())
	})

	t.Run("wrong code keeps the account unverified", func(t *testing.T) {
		wrong := "000000"
		if otp == wrong {
			wrong = "111111"
		}
		_, err := f.service.VerifyOtp(ctx, auth.VerifyOtpData{OTP: wrong})
		require.Error(t, err)
		require.False(t, f.store.IsAuthenticated())
	})

	t.Run("correct code logs in", func(t *testing.T) {
		result, err := f.service.VerifyOtp(ctx, auth.VerifyOtpData{OTP: otp})
		require.NoError(t, err)
		require.Equal(t, auth.RouteHome, result.Location)
		require.True(t, f.store.IsAuthenticated())
		require.Equal(t, users.RoleUser, f.store.User().Role)
		require.Empty(t, f.service.PendingVerificationEmail(ctx))

		user, err := f.me(t)
		require.NoError(t, err)
		require.Equal(t, testEmail, user.Email)
	})

	t.Run("codes are single use", func(t *testing.T) {
		_, err := f.service.VerifyOtp(ctx, auth.VerifyOtpData{Email: testEmail, OTP: otp})
		require.Error(t, err)
	})

	t.Run("verified email cannot register again", func(t *testing.T) {
		_, err := f.service.Register(ctx, auth.RegisterData{Name: "Asha", Email: testEmail, Password: testPassword})
		require.Error(t, err)

		var failure *auth.Failure
		require.ErrorAs(t, err, &failure)
		require.Equal(t, "An account with this email already exists", failure.Message)
	})
}

func TestBackend_OtpExpiry(t *testing.T) {
	now := time.Unix(1_700_000_000, 0)
	clock := func() time.Time { return now }
	f := setupTestFixture(t, fakebackend.WithNowTime(func() time.Time { return clock() }))
	ctx := context.Background()

	_, err := f.service.Register(ctx, auth.RegisterData{Name: "Asha", Email: testEmail, Password: testPassword})
	require.NoError(t, err)

	clock = func() time.Time { return now.Add(11 * time.Minute) }
	_, err = f.service.VerifyOtp(ctx, auth.VerifyOtpData{OTP: f.inbox.last(fakebackend.CodeOTP)})
	require.Error(t, err)
	require.False(t, f.store.IsAuthenticated())
}

func TestBackend_Login(t *testing.T) {
	t.Run("seeded account logs in with its role", func(t *testing.T) {
		f := setupTestFixture(t)
		seeded := f.seed(t, users.RoleManager)

		_, err := f.service.Login(context.Background(), auth.LoginData{Email: testEmail, Password: testPassword})
		require.NoError(t, err)
		require.Equal(t, seeded.ID, f.store.User().ID)
		require.True(t, f.store.User().HasRole(users.RoleManager))
		require.NotEmpty(t, f.store.RefreshToken())
		require.False(t, f.store.Snapshot().AccessTokenExpired(time.Now()))
	})

	t.Run("wrong password is invalid credentials", func(t *testing.T) {
		f := setupTestFixture(t)
		f.seed(t, users.RoleUser)

		_, err := f.service.Login(context.Background(), auth.LoginData{Email: testEmail, Password: "Wr0ngPass"})
		require.ErrorIs(t, err, interrors.ErrInvalidCredentials)
		require.Empty(t, f.expired, "login failures never refresh")
	})
}

func TestBackend_Refresh(t *testing.T) {
	t.Run("rejected access token is refreshed once and retried", func(t *testing.T) {
		f := setupTestFixture(t)
		f.seed(t, users.RoleUser)
		ctx := context.Background()

		_, err := f.service.Login(ctx, auth.LoginData{Email: testEmail, Password: testPassword})
		require.NoError(t, err)
		refreshToken := f.store.RefreshToken()
		require.NoError(t, f.store.SetTokens(ctx, "not-a-jwt", refreshToken))

		resp, err := f.client.Get(ctx, "/users/me", nil)
		require.NoError(t, err)
		require.Equal(t, []client.RequestState{
			client.StateSent, client.StateUnauthorized, client.StateRefreshing, client.StateRetried, client.StateCompleted,
		}, resp.Trace)
		require.NotEqual(t, "not-a-jwt", f.store.AccessToken())
		require.Equal(t, refreshToken, f.store.RefreshToken(), "refresh keeps the refresh token")
	})

	t.Run("unknown refresh token ends the session", func(t *testing.T) {
		f := setupTestFixture(t)
		f.seed(t, users.RoleUser)
		ctx := context.Background()

		_, err := f.service.Login(ctx, auth.LoginData{Email: testEmail, Password: testPassword})
		require.NoError(t, err)
		require.NoError(t, f.store.SetTokens(ctx, "not-a-jwt", "unknown"))

		// Drop the cookie so only the stale header token is presented
		f.client, err = client.New(client.Config{BaseURL: f.server.URL, HTTPClient: &http.Client{}}, f.store,
			client.WithSessionExpiredHandler(func(location string) { f.expired = append(f.expired, location) }))
		require.NoError(t, err)

		_, err = f.me(t)
		require.ErrorIs(t, err, interrors.ErrRefreshFailed)
		require.False(t, f.store.IsAuthenticated())
		require.Equal(t, []string{"/auth/login"}, f.expired)
	})
}

func TestBackend_PasswordReset(t *testing.T) {
	f := setupTestFixture(t)
	f.seed(t, users.RoleUser)
	ctx := context.Background()

	result, err := f.service.ForgotPassword(ctx, auth.ForgotPasswordData{Email: testEmail})
	require.NoError(t, err)
	require.Equal(t, auth.RouteLogin, result.Location)

	token := f.inbox.last(fakebackend.CodeReset)
	require.Len(t, token, 64)

	_, err = f.service.ResetPassword(ctx, auth.ResetPasswordData{Token: token, Password: "N3wPassword"})
	require.NoError(t, err)
	require.True(t, f.store.IsAuthenticated())

	f.service.Logout(ctx)
	f.service.Wait()

	_, err = f.service.Login(ctx, auth.LoginData{Email: testEmail, Password: testPassword})
	require.ErrorIs(t, err, interrors.ErrInvalidCredentials)

	_, err = f.service.Login(ctx, auth.LoginData{Email: testEmail, Password: "N3wPassword"})
	require.NoError(t, err)

	t.Run("reset tokens are single use", func(t *testing.T) {
		_, err := f.service.ResetPassword(ctx, auth.ResetPasswordData{Token: token, Password: "An0therPass"})
		require.Error(t, err)
	})

	t.Run("unknown emails get the same answer", func(t *testing.T) {
		before := f.inbox.last(fakebackend.CodeReset)
		_, err := f.service.ForgotPassword(ctx, auth.ForgotPasswordData{Email: "nobody@turf.test"})
		require.NoError(t, err)
		require.Equal(t, before, f.inbox.last(fakebackend.CodeReset))
	})
}

func TestBackend_Logout(t *testing.T) {
	f := setupTestFixture(t)
	f.seed(t, users.RoleUser)
	ctx := context.Background()

	_, err := f.service.Login(ctx, auth.LoginData{Email: testEmail, Password: testPassword})
	require.NoError(t, err)
	refreshToken := f.store.RefreshToken()

	f.service.Logout(ctx)
	f.service.Wait()
	require.False(t, f.store.IsAuthenticated())

	req, err := http.NewRequest(http.MethodPost, f.server.URL+"/auth/refresh-token", strings.NewReader(""))
	require.NoError(t, err)
	req.Header.Set(fakebackend.HeaderRefreshToken, refreshToken)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusUnauthorized, resp.StatusCode, "server logout revokes the refresh token")
}

func TestBackend_LogoutRevokesAccessToken(t *testing.T) {
	f := setupTestFixture(t)
	f.seed(t, users.RoleUser)
	ctx := context.Background()

	_, err := f.service.Login(ctx, auth.LoginData{Email: testEmail, Password: testPassword})
	require.NoError(t, err)
	accessToken := f.store.AccessToken()

	f.service.Logout(ctx)
	f.service.Wait()

	req, err := http.NewRequest(http.MethodGet, f.server.URL+"/users/me", nil)
	require.NoError(t, err)
	req.Header.Set("Authorization", "Bearer "+accessToken)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	resp.Body.Close()
	require.Equal(t, http.StatusUnauthorized, resp.StatusCode, "access token is rejected after logout")
}

func TestBackend_RevokedAccessToken(t *testing.T) {
	f := setupTestFixture(t)
	f.seed(t, users.RoleUser)
	ctx := context.Background()

	_, err := f.service.Login(ctx, auth.LoginData{Email: testEmail, Password: testPassword})
	require.NoError(t, err)
	accessToken := f.store.AccessToken()

	req, err := http.NewRequest(http.MethodPost, f.server.URL+"/auth/logout", nil)
	require.NoError(t, err)
	req.Header.Set("Authorization", "Bearer "+accessToken)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	req, err = http.NewRequest(http.MethodGet, f.server.URL+"/users/me", nil)
	require.NoError(t, err)
	req.Header.Set("Authorization", "Bearer "+accessToken)
	resp, err = http.DefaultClient.Do(req)
	require.NoError(t, err)
	resp.Body.Close()
	require.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	// still within its lifetime, so the revocation is kept
	require.Zero(t, f.backend.PurgeRevoked())
}
