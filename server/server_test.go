package server_test

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/turfbook/turf-client/auth"
	"github.com/turfbook/turf-client/client"
	"github.com/turfbook/turf-client/internal/config"
	"github.com/turfbook/turf-client/server"
	"github.com/turfbook/turf-client/sessions"
	"github.com/turfbook/turf-client/storage"
	"github.com/turfbook/turf-client/users"
)

type testFixture struct {
	backend *http.ServeMux
	store   *sessions.Store
	server  *server.Server
}

func setupTestFixture(t *testing.T) *testFixture {
	t.Helper()
	t.Setenv("ENV", "TEST")
	t.Setenv("TURF_ALLOWED_ORIGINS", "http://localhost:3000")

	f := &testFixture{backend: http.NewServeMux()}
	api := httptest.NewServer(f.backend)
	t.Cleanup(api.Close)

	store, err := sessions.NewStore(context.Background(), storage.NewInMemoryRepo())
	require.NoError(t, err)
	f.store = store

	c, err := client.New(client.Config{BaseURL: api.URL, Timeout: 2 * time.Second}, store)
	require.NoError(t, err)

	service, err := auth.NewService(auth.Deps{Client: c, Store: store, Pending: storage.NewInMemoryRepo()})
	require.NoError(t, err)

	s, err := server.New(config.New(), store, service)
	require.NoError(t, err)
	f.server = s
	return f
}

func (f *testFixture) login(t *testing.T, role users.RoleType) {
	t.Helper()
	user := &users.User{ID: "u1", Name: "Asha", Email: "a@b.com", Role: role}
	require.NoError(t, f.store.Login(context.Background(), user, "access-1", "refresh-1"))
}

func (f *testFixture) do(req *http.Request) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	f.server.ServeHTTP(rec, req)
	return rec
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	return body
}

func TestNew_RequiresDeps(t *testing.T) {
	_, err := server.New(nil, nil, nil)
	require.Error(t, err)
}

func TestServer_RouteGuard(t *testing.T) {
	t.Run("anonymous user is sent to the fallback with the attempted path", func(t *testing.T) {
		f := setupTestFixture(t)

		rec := f.do(httptest.NewRequest(http.MethodGet, server.RouteProfile, nil))
		require.Equal(t, http.StatusSeeOther, rec.Code)
		require.Equal(t, "/?from=%2Fprofile", rec.Header().Get("Location"))
	})

	t.Run("htmx requests get an HX-Redirect", func(t *testing.T) {
		f := setupTestFixture(t)

		req := httptest.NewRequest(http.MethodGet, server.RouteAdminDashboard, nil)
		req.Header.Set("HX-Request", "true")
		rec := f.do(req)
		require.Equal(t, http.StatusNoContent, rec.Code)
		require.Equal(t, "/?from=%2Fadmin%2Fdashboard", rec.Header().Get("HX-Redirect"))
	})

	t.Run("role mismatch goes to unauthorized", func(t *testing.T) {
		f := setupTestFixture(t)
		f.login(t, users.RoleUser)

		rec := f.do(httptest.NewRequest(http.MethodGet, server.RouteAdminDashboard, nil))
		require.Equal(t, http.StatusSeeOther, rec.Code)
		require.Equal(t, server.RouteUnauthorized, rec.Header().Get("Location"))
	})

	t.Run("matching role renders the view", func(t *testing.T) {
		f := setupTestFixture(t)
		f.login(t, users.RoleAdmin)

		rec := f.do(httptest.NewRequest(http.MethodGet, server.RouteAdminDashboard, nil))
		require.Equal(t, http.StatusOK, rec.Code)

		body := decodeBody(t, rec)
		require.Equal(t, "admin-dashboard", body["view"])
		session := body["session"].(map[string]any)
		require.Equal(t, true, session["isAuthenticated"])
	})

	t.Run("any logged in user sees the profile", func(t *testing.T) {
		f := setupTestFixture(t)
		f.login(t, users.RoleManager)

		rec := f.do(httptest.NewRequest(http.MethodGet, server.RouteProfile, nil))
		require.Equal(t, http.StatusOK, rec.Code)
		body := decodeBody(t, rec)
		require.Equal(t, "Asha", body["data"].(map[string]any)["displayName"])
	})
}

func TestServer_Session(t *testing.T) {
	f := setupTestFixture(t)
	f.login(t, users.RoleUser)

	rec := f.do(httptest.NewRequest(http.MethodGet, server.RouteSession, nil))
	require.Equal(t, http.StatusOK, rec.Code)
	require.NotContains(t, rec.Body.String(), "access-1")
	require.NotContains(t, rec.Body.String(), "refresh-1")

	body := decodeBody(t, rec)
	require.Equal(t, true, body["isAuthenticated"])
	require.Equal(t, "u1", body["user"].(map[string]any)["id"])
}

func TestServer_LoginSubmission(t *testing.T) {
	t.Run("JSON post logs in", func(t *testing.T) {
		f := setupTestFixture(t)
		f.backend.HandleFunc("POST /auth/login", func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Content-Type", "application/json")
			_ = json.NewEncoder(w).Encode(map[string]any{
				"message": "Welcome back",
				"data": map[string]any{
					"user":        map[string]any{"_id": "u9", "role": "user", "email": "a@b.com"},
					"accessToken": "t1",
				},
			})
		})

		req := httptest.NewRequest(http.MethodPost, server.RouteLogin, strings.NewReader(`{"email":"a@b.com","password":"x"}`))
		req.Header.Set("Content-Type", "application/json")
		rec := f.do(req)

		require.Equal(t, http.StatusOK, rec.Code)
		body := decodeBody(t, rec)
		require.Equal(t, "Welcome back", body["message"])
		require.Equal(t, "/", body["location"])
		require.True(t, f.store.IsAuthenticated())
		require.Equal(t, "u9", f.store.User().ID)
	})

	t.Run("form post returns to the attempted page", func(t *testing.T) {
		f := setupTestFixture(t)
		f.backend.HandleFunc("POST /auth/login", func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Content-Type", "application/json")
			_ = json.NewEncoder(w).Encode(map[string]any{
				"data": map[string]any{"user": map[string]any{"id": "u1", "role": "user"}, "accessToken": "t1"},
			})
		})

		form := url.Values{"email": {"a@b.com"}, "password": {"x"}, "from": {"/user/bookings"}}
		req := httptest.NewRequest(http.MethodPost, server.RouteLogin, strings.NewReader(form.Encode()))
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
		rec := f.do(req)

		require.Equal(t, http.StatusSeeOther, rec.Code)
		require.Equal(t, "/user/bookings", rec.Header().Get("Location"))
	})

	t.Run("off-site return targets are ignored", func(t *testing.T) {
		f := setupTestFixture(t)
		f.backend.HandleFunc("POST /auth/login", func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Content-Type", "application/json")
			_ = json.NewEncoder(w).Encode(map[string]any{
				"data": map[string]any{"user": map[string]any{"id": "u1", "role": "user"}, "accessToken": "t1"},
			})
		})

		form := url.Values{"email": {"a@b.com"}, "password": {"x"}, "from": {"//evil.example"}}
		req := httptest.NewRequest(http.MethodPost, server.RouteLogin, strings.NewReader(form.Encode()))
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
		rec := f.do(req)

		require.Equal(t, http.StatusSeeOther, rec.Code)
		require.Equal(t, "/", rec.Header().Get("Location"))
	})

	t.Run("bad credentials redirect back with the server message", func(t *testing.T) {
		f := setupTestFixture(t)
		f.backend.HandleFunc("POST /auth/login", func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusUnauthorized)
			_ = json.NewEncoder(w).Encode(map[string]any{"message": "Incorrect email or password"})
		})

		form := url.Values{"email": {"a@b.com"}, "password": {"x"}}
		req := httptest.NewRequest(http.MethodPost, server.RouteLogin, strings.NewReader(form.Encode()))
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
		rec := f.do(req)

		require.Equal(t, http.StatusSeeOther, rec.Code)
		require.Equal(t, "/auth/login?error=Incorrect+email+or+password", rec.Header().Get("Location"))
		require.False(t, f.store.IsAuthenticated())
	})

	t.Run("invalid JSON input reports fields", func(t *testing.T) {
		f := setupTestFixture(t)

		req := httptest.NewRequest(http.MethodPost, server.RouteLogin, strings.NewReader(`{"email":"not-an-email"}`))
		req.Header.Set("Content-Type", "application/json")
		rec := f.do(req)

		require.Equal(t, http.StatusBadRequest, rec.Code)
		body := decodeBody(t, rec)
		fields := body["fields"].(map[string]any)
		require.Contains(t, fields, "email")
		require.Contains(t, fields, "password")
	})
}

func TestServer_JSONFieldsMustBeStrings(t *testing.T) {
	t.Run("numbers are rejected", func(t *testing.T) {
		f := setupTestFixture(t)
		var calls int
		f.backend.HandleFunc("POST /auth/verify-otp", func(w http.ResponseWriter, r *http.Request) { calls++ })

		req := httptest.NewRequest(http.MethodPost, server.RouteVerifyOtp, strings.NewReader(`{"email":"a@b.com","otp":12345}`))
		req.Header.Set("Content-Type", "application/json")
		rec := f.do(req)

		require.Equal(t, http.StatusBadRequest, rec.Code)
		fields := decodeBody(t, rec)["fields"].(map[string]any)
		require.Equal(t, "must be a string", fields["otp"])
		require.Zero(t, calls)
	})

	t.Run("string digits are forwarded as typed", func(t *testing.T) {
		f := setupTestFixture(t)
		phones := make(chan string, 1)
		f.backend.HandleFunc("POST /auth/register", func(w http.ResponseWriter, r *http.Request) {
			var body map[string]any
			_ = json.NewDecoder(r.Body).Decode(&body)
			phones <- fmt.Sprint(body["phone"])
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusConflict)
			_ = json.NewEncoder(w).Encode(map[string]any{"message": "Email already registered"})
		})

		body := `{"name":"Asha","email":"a@b.com","password":"Str0ngPass","phone":"008801712345678"}`
		req := httptest.NewRequest(http.MethodPost, server.RouteRegister, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
		f.do(req)

		require.Equal(t, "008801712345678", <-phones)
	})
}

func TestServer_Logout(t *testing.T) {
	f := setupTestFixture(t)
	f.login(t, users.RoleUser)

	req := httptest.NewRequest(http.MethodPost, server.RouteLogout, nil)
	req.Header.Set("Content-Type", "application/json")
	rec := f.do(req)

	require.Equal(t, http.StatusOK, rec.Code)
	body := decodeBody(t, rec)
	require.Equal(t, auth.LogoutSuccessMsg, body["message"])
	require.Equal(t, auth.RouteHome, body["location"])
	require.False(t, f.store.IsAuthenticated())
}

func TestServer_Middleware(t *testing.T) {
	t.Run("panics become a 500", func(t *testing.T) {
		f := setupTestFixture(t)
		f.server.RegisterRouteHandler("GET /boom", server.ChainMiddleware(func(w http.ResponseWriter, r *http.Request) {
			panic("boom")
		}, f.server.PageMiddleware()...))

		rec := f.do(httptest.NewRequest(http.MethodGet, "/boom", nil))
		require.Equal(t, http.StatusInternalServerError, rec.Code)
		require.Equal(t, "Something went wrong", decodeBody(t, rec)["message"])
	})

	t.Run("allowed origins get CORS headers", func(t *testing.T) {
		f := setupTestFixture(t)

		req := httptest.NewRequest(http.MethodGet, server.RouteSession, nil)
		req.Header.Set("Origin", "http://localhost:3000")
		rec := f.do(req)
		require.Equal(t, "http://localhost:3000", rec.Header().Get("Access-Control-Allow-Origin"))
		require.Equal(t, "SAMEORIGIN", rec.Header().Get("X-Frame-Options"))

		req = httptest.NewRequest(http.MethodGet, server.RouteSession, nil)
		req.Header.Set("Origin", "http://evil.example")
		rec = f.do(req)
		require.Empty(t, rec.Header().Get("Access-Control-Allow-Origin"))
	})
}

func TestServer_Routes(t *testing.T) {
	f := setupTestFixture(t)
	routes := f.server.Routes()
	require.Contains(t, routes, "GET "+server.RouteProfile)
	require.Contains(t, routes, "POST "+server.RouteResetPassword)
}
