package client_test

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/turfbook/turf-client/client"
	interrors "github.com/turfbook/turf-client/internal/errors"
	"github.com/turfbook/turf-client/sessions"
	"github.com/turfbook/turf-client/storage"
	"github.com/turfbook/turf-client/users"
)

// mockBackend is a scriptable REST backend. Handlers are looked up by "METHOD path".
type mockBackend struct {
	t        *testing.T
	server   *httptest.Server
	mu       sync.Mutex
	handlers map[string]http.HandlerFunc
	calls    map[string]int
	auth     map[string][]string // Authorization headers seen per route
}

func newMockBackend(t *testing.T) *mockBackend {
	t.Helper()
	b := &mockBackend{
		t:        t,
		handlers: make(map[string]http.HandlerFunc),
		calls:    make(map[string]int),
		auth:     make(map[string][]string),
	}
	b.server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		route := r.Method + " " + r.URL.Path
		b.mu.Lock()
		b.calls[route]++
		b.auth[route] = append(b.auth[route], r.Header.Get("Authorization"))
		handler, ok := b.handlers[route]
		b.mu.Unlock()
		if !ok {
			writeJSON(w, http.StatusNotFound, map[string]any{"message": "no route " + route})
			return
		}
		handler(w, r)
	}))
	t.Cleanup(b.server.Close)
	return b
}

func (b *mockBackend) handle(route string, handler http.HandlerFunc) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.handlers[route] = handler
}

func (b *mockBackend) callCount(route string) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.calls[route]
}

func (b *mockBackend) authHeaders(route string) []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]string(nil), b.auth[route]...)
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

// requireBearer answers 401 unless the request carries the expected token
func requireBearer(token string, data any) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer "+token {
			writeJSON(w, http.StatusUnauthorized, map[string]any{"message": "jwt expired"})
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"message": "ok", "data": data})
	}
}

func refreshReturning(token string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]any{"message": "refreshed", "data": map[string]any{"accessToken": token}})
	}
}

type testFixture struct {
	backend  *mockBackend
	store    *sessions.Store
	client   *client.Client
	expired  []string
	expireMu sync.Mutex
}

func setupTestFixture(t *testing.T, options ...client.Option) *testFixture {
	t.Helper()

	f := &testFixture{backend: newMockBackend(t)}

	store, err := sessions.NewStore(context.Background(), storage.NewInMemoryRepo())
	require.NoError(t, err)
	f.store = store

	options = append([]client.Option{client.WithSessionExpiredHandler(func(location string) {
		f.expireMu.Lock()
		defer f.expireMu.Unlock()
		f.expired = append(f.expired, location)
	})}, options...)

	c, err := client.New(client.Config{BaseURL: f.backend.server.URL, Timeout: 500 * time.Millisecond}, store, options...)
	require.NoError(t, err)
	f.client = c
	return f
}

func (f *testFixture) login(t *testing.T, accessToken, refreshToken string) {
	t.Helper()
	require.NoError(t, f.store.Login(context.Background(), &users.User{ID: "1", Email: "a@b.com", Role: users.RoleUser}, accessToken, refreshToken))
}

func (f *testFixture) expiredLocations() []string {
	f.expireMu.Lock()
	defer f.expireMu.Unlock()
	return append([]string(nil), f.expired...)
}

func TestClient_AttachesBearerToken(t *testing.T) {
	f := setupTestFixture(t)
	f.backend.handle("GET /turfs", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]any{"message": "ok", "data": []string{"turf-a"}})
	})

	t.Run("public request without token", func(t *testing.T) {
		_, err := f.client.Get(context.Background(), "/turfs", nil)
		require.NoError(t, err)
		require.Equal(t, []string{""}, f.backend.authHeaders("GET /turfs"))
	})

	t.Run("authenticated request", func(t *testing.T) {
		f.login(t, "t1", "")
		resp, err := f.client.Get(context.Background(), "/turfs", nil)
		require.NoError(t, err)
		require.Equal(t, "Bearer t1", f.backend.authHeaders("GET /turfs")[1])

		var turfs []string
		require.NoError(t, resp.Decode(&turfs))
		require.Equal(t, []string{"turf-a"}, turfs)
		require.Equal(t, "ok", resp.Message)
		require.NotEmpty(t, resp.RequestID)
		require.Equal(t, []client.RequestState{client.StateSent, client.StateCompleted}, resp.Trace)
	})
}

func TestClient_RefreshesAndRetriesOnce(t *testing.T) {
	f := setupTestFixture(t)
	f.login(t, "t1", "r1")
	f.backend.handle("GET /bookings", requireBearer("t2", map[string]any{"count": 3}))
	f.backend.handle("POST /auth/refresh-token", func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "r1", r.Header.Get(client.HeaderRefreshToken))
		require.Empty(t, r.Header.Get("Authorization"))
		refreshReturning("t2")(w, r)
	})

	resp, err := f.client.Get(context.Background(), "/bookings", nil)
	require.NoError(t, err)

	var data struct {
		Count int `json:"count"`
	}
	require.NoError(t, resp.Decode(&data))
	require.Equal(t, 3, data.Count)

	require.Equal(t, []string{"Bearer t1", "Bearer t2"}, f.backend.authHeaders("GET /bookings"))
	require.Equal(t, 1, f.backend.callCount("POST /auth/refresh-token"))
	require.Equal(t, "t2", f.store.AccessToken())
	require.Equal(t, "r1", f.store.RefreshToken())
	require.True(t, f.store.IsAuthenticated())
	require.Equal(t, []client.RequestState{
		client.StateSent, client.StateUnauthorized, client.StateRefreshing, client.StateRetried, client.StateCompleted,
	}, resp.Trace)
	require.Empty(t, f.expiredLocations())
}

func TestClient_RetriedRequestIsNotSentAThirdTime(t *testing.T) {
	f := setupTestFixture(t)
	f.login(t, "t1", "r1")
	f.backend.handle("GET /bookings", requireBearer("never-valid", nil))
	f.backend.handle("POST /auth/refresh-token", refreshReturning("t2"))

	_, err := f.client.Get(context.Background(), "/bookings", nil)
	require.Error(t, err)
	require.ErrorIs(t, err, interrors.ErrSessionExpired)

	var apiErr *client.APIError
	require.ErrorAs(t, err, &apiErr)
	require.Equal(t, http.StatusUnauthorized, apiErr.StatusCode)

	require.Equal(t, 2, f.backend.callCount("GET /bookings"))
	require.Equal(t, 1, f.backend.callCount("POST /auth/refresh-token"))
	require.True(t, f.store.IsAuthenticated(), "a failed retry does not clear the session")
}

func TestClient_LoginUnauthorizedNeverRefreshes(t *testing.T) {
	f := setupTestFixture(t)
	f.backend.handle("POST /auth/login", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusUnauthorized, map[string]any{"message": "Incorrect email or password"})
	})
	f.backend.handle("POST /auth/refresh-token", refreshReturning("t2"))

	var transitions []client.Transition
	f.client = mustClient(t, f, client.WithObserver(func(tr client.Transition) {
		transitions = append(transitions, tr)
	}))

	_, err := f.client.Post(context.Background(), "/auth/login", map[string]string{"email": "a@b.com", "password": "x"})
	require.Error(t, err)
	require.ErrorIs(t, err, interrors.ErrInvalidCredentials)
	require.Equal(t, "Incorrect email or password", client.ServerMessage(err, "Login failed"))

	require.Equal(t, 0, f.backend.callCount("POST /auth/refresh-token"))
	require.Len(t, transitions, 2)
	require.Equal(t, client.StateSent, transitions[0].To)
	require.Equal(t, client.StateFailed, transitions[1].To)
}

func TestClient_RefreshFailureClearsSession(t *testing.T) {
	f := setupTestFixture(t)
	f.login(t, "t1", "r1")
	f.backend.handle("GET /bookings", requireBearer("t2", nil))
	f.backend.handle("POST /auth/refresh-token", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusUnauthorized, map[string]any{"message": "refresh token expired"})
	})

	_, err := f.client.Get(context.Background(), "/bookings", nil)
	require.Error(t, err)
	require.ErrorIs(t, err, interrors.ErrSessionExpired)
	require.ErrorIs(t, err, interrors.ErrRefreshFailed)

	snapshot := f.store.Snapshot()
	require.Nil(t, snapshot.User)
	require.Empty(t, snapshot.AccessToken)
	require.False(t, snapshot.IsAuthenticated)
	require.Equal(t, []string{"/auth/login"}, f.expiredLocations())
	require.Equal(t, 1, f.backend.callCount("GET /bookings"))
}

func TestClient_RefreshWithoutTokenInResponseFails(t *testing.T) {
	f := setupTestFixture(t)
	f.login(t, "t1", "r1")
	f.backend.handle("GET /bookings", requireBearer("t2", nil))
	f.backend.handle("POST /auth/refresh-token", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]any{"message": "ok"})
	})

	_, err := f.client.Get(context.Background(), "/bookings", nil)
	require.ErrorIs(t, err, interrors.ErrRefreshFailed)
	require.False(t, f.store.IsAuthenticated())
}

func TestClient_ServerErrorsAreSurfaced(t *testing.T) {
	f := setupTestFixture(t)

	t.Run("server message", func(t *testing.T) {
		f.backend.handle("POST /bookings", func(w http.ResponseWriter, r *http.Request) {
			writeJSON(w, http.StatusConflict, map[string]any{"message": "Slot already booked"})
		})
		_, err := f.client.Post(context.Background(), "/bookings", map[string]string{"slot": "18:00"})
		require.ErrorIs(t, err, interrors.ErrServer)
		require.Equal(t, "Slot already booked", client.ServerMessage(err, "Booking failed"))
		require.Equal(t, 1, f.backend.callCount("POST /bookings"))
	})

	t.Run("non-json body falls back", func(t *testing.T) {
		f.backend.handle("GET /broken", func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusBadGateway)
			_, _ = w.Write([]byte("<html>bad gateway</html>"))
		})
		_, err := f.client.Get(context.Background(), "/broken", nil)
		require.ErrorIs(t, err, interrors.ErrServer)
		require.Equal(t, "Something went wrong", client.ServerMessage(err, "Something went wrong"))

		var apiErr *client.APIError
		require.ErrorAs(t, err, &apiErr)
		require.Equal(t, http.StatusText(http.StatusBadGateway), apiErr.Message)
	})
}

func TestClient_Timeout(t *testing.T) {
	f := setupTestFixture(t)
	release := make(chan struct{})
	t.Cleanup(func() { close(release) })
	f.backend.handle("GET /slow", func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	})

	_, err := f.client.Get(context.Background(), "/slow", nil)
	require.ErrorIs(t, err, interrors.ErrTimeout)
	require.Equal(t, 1, f.backend.callCount("GET /slow"))
}

func TestClient_ConcurrentUnauthorized(t *testing.T) {
	const parallel = 5

	run := func(t *testing.T, dedupe bool) *testFixture {
		var refreshing atomic.Int32
		allRefreshing := make(chan struct{})

		f := setupTestFixture(t)
		f.client = mustClient(t, f,
			client.WithRefreshDeduplication(dedupe),
			client.WithObserver(func(tr client.Transition) {
				if tr.To == client.StateRefreshing && refreshing.Add(1) == parallel {
					close(allRefreshing)
				}
			}),
		)
		f.login(t, "t1", "r1")
		f.backend.handle("GET /bookings", requireBearer("t2", nil))
		f.backend.handle("POST /auth/refresh-token", func(w http.ResponseWriter, r *http.Request) {
			if dedupe {
				select {
				case <-allRefreshing:
					time.Sleep(50 * time.Millisecond)
				case <-time.After(2 * time.Second):
				}
			}
			refreshReturning("t2")(w, r)
		})

		var wg sync.WaitGroup
		errs := make(chan error, parallel)
		for i := 0; i < parallel; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				_, err := f.client.Get(context.Background(), "/bookings", nil)
				errs <- err
			}()
		}
		wg.Wait()
		close(errs)
		for err := range errs {
			require.NoError(t, err)
		}
		require.Equal(t, 2*parallel, f.backend.callCount("GET /bookings"))
		return f
	}

	t.Run("deduplicated", func(t *testing.T) {
		f := run(t, true)
		require.Equal(t, 1, f.backend.callCount("POST /auth/refresh-token"))
	})

	t.Run("independent refreshes", func(t *testing.T) {
		f := run(t, false)
		require.Equal(t, parallel, f.backend.callCount("POST /auth/refresh-token"))
	})
}

func TestClient_SharedRefreshFailureExpiresOnce(t *testing.T) {
	const parallel = 5

	var refreshing atomic.Int32
	allRefreshing := make(chan struct{})

	f := setupTestFixture(t)
	f.client = mustClient(t, f,
		client.WithObserver(func(tr client.Transition) {
			if tr.To == client.StateRefreshing && refreshing.Add(1) == parallel {
				close(allRefreshing)
			}
		}),
	)
	f.login(t, "t1", "r1")
	f.backend.handle("GET /bookings", requireBearer("t2", nil))
	f.backend.handle("POST /auth/refresh-token", func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-allRefreshing:
			time.Sleep(50 * time.Millisecond)
		case <-time.After(2 * time.Second):
		}
		writeJSON(w, http.StatusUnauthorized, map[string]any{"message": "refresh token expired"})
	})

	var wg sync.WaitGroup
	errs := make(chan error, parallel)
	for i := 0; i < parallel; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := f.client.Get(context.Background(), "/bookings", nil)
			errs <- err
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		require.ErrorIs(t, err, interrors.ErrSessionExpired)
	}

	require.Equal(t, 1, f.backend.callCount("POST /auth/refresh-token"))
	require.Equal(t, []string{"/auth/login"}, f.expiredLocations())
	require.False(t, f.store.IsAuthenticated())
}

func TestClient_LogoutDuringRefreshDiscardsNewToken(t *testing.T) {
	for _, dedupe := range []bool{true, false} {
		t.Run(fmt.Sprintf("dedupe=%v", dedupe), func(t *testing.T) {
			f := setupTestFixture(t)
			f.client = mustClient(t, f, client.WithRefreshDeduplication(dedupe))
			f.login(t, "t1", "r1")

			refreshStarted := make(chan struct{})
			release := make(chan struct{})
			f.backend.handle("GET /bookings", requireBearer("t2", nil))
			f.backend.handle("GET /public", func(w http.ResponseWriter, r *http.Request) {
				writeJSON(w, http.StatusOK, map[string]any{"message": "ok"})
			})
			f.backend.handle("POST /auth/refresh-token", func(w http.ResponseWriter, r *http.Request) {
				close(refreshStarted)
				<-release
				refreshReturning("t2")(w, r)
			})

			done := make(chan error, 1)
			go func() {
				_, err := f.client.Get(context.Background(), "/bookings", nil)
				done <- err
			}()

			<-refreshStarted
			require.NoError(t, f.store.Logout(context.Background()))
			close(release)

			err := <-done
			require.ErrorIs(t, err, interrors.ErrSessionExpired)
			require.NotErrorIs(t, err, interrors.ErrRefreshFailed)

			require.Equal(t, sessions.Session{}, f.store.Snapshot())
			require.Empty(t, f.expiredLocations(), "the user logged out; there is nothing to expire")
			require.Equal(t, 1, f.backend.callCount("GET /bookings"))

			_, err = f.client.Get(context.Background(), "/public", nil)
			require.NoError(t, err)
			require.Equal(t, []string{""}, f.backend.authHeaders("GET /public"))
		})
	}
}

func TestNew_Validation(t *testing.T) {
	store, err := sessions.NewStore(context.Background(), storage.NewInMemoryRepo())
	require.NoError(t, err)

	_, err = client.New(client.Config{}, store)
	require.Error(t, err)

	_, err = client.New(client.Config{BaseURL: "http://localhost"}, nil)
	require.Error(t, err)

	c, err := client.New(client.Config{BaseURL: "http://localhost:5000/api/v1/"}, store)
	require.NoError(t, err)
	require.Equal(t, "http://localhost:5000/api/v1", c.BaseURL())
}

func mustClient(t *testing.T, f *testFixture, options ...client.Option) *client.Client {
	t.Helper()
	c, err := client.New(client.Config{BaseURL: f.backend.server.URL, Timeout: 2 * time.Second}, f.store, options...)
	require.NoError(t, err)
	return c
}

func TestClient_SkipRefresh(t *testing.T) {
	f := setupTestFixture(t)
	f.login(t, "t1", "r1")
	f.backend.handle("POST /auth/logout", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusUnauthorized, map[string]any{"message": "jwt expired"})
	})
	f.backend.handle("POST /auth/refresh-token", refreshReturning("t2"))

	_, err := f.client.Do(context.Background(), client.Request{Method: http.MethodPost, Path: "/auth/logout", SkipRefresh: true})
	require.ErrorIs(t, err, interrors.ErrSessionExpired)
	require.Equal(t, 0, f.backend.callCount("POST /auth/refresh-token"))
	require.Equal(t, "t1", f.store.AccessToken())
	require.Empty(t, f.expiredLocations())
}
