package main

import (
	"bytes"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/turfbook/turf-client/internal/config"
	"github.com/turfbook/turf-client/internal/fakebackend"
	"github.com/turfbook/turf-client/users"
)

func setupBackend(t *testing.T) {
	t.Helper()

	backend, err := fakebackend.New(config.New(), "turf-test")
	require.NoError(t, err)
	_, err = backend.Seed(users.User{Name: "Meera", Email: "meera@turf.test", Role: users.RoleManager}, "Str0ngPass")
	require.NoError(t, err)

	api := httptest.NewServer(backend)
	t.Cleanup(api.Close)

	t.Setenv("TURF_API_BASE_URL", api.URL)
	t.Setenv("TURF_STORAGE", "file")
	t.Setenv("TURF_STORAGE_DIR", t.TempDir())
	t.Setenv("TURF_LOG_LEVEL", "error")
}

func runCommand(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	err := run(args, &out)
	return out.String(), err
}

func TestRun_SessionLifecycle(t *testing.T) {
	setupBackend(t)

	out, err := runCommand(t, "whoami")
	require.NoError(t, err)
	require.Contains(t, out, "Not logged in")

	out, err = runCommand(t, "login", "--email", "meera@turf.test", "--password", "Str0ngPass")
	require.NoError(t, err)
	require.Contains(t, out, "-> /")

	// The session is read back from storage by the next invocation
	out, err = runCommand(t, "whoami")
	require.NoError(t, err)
	require.Contains(t, out, "Meera <meera@turf.test> role=manager")

	out, err = runCommand(t, "get", "/users/me")
	require.NoError(t, err)
	require.Contains(t, out, `"email": "meera@turf.test"`)

	out, err = runCommand(t, "logout")
	require.NoError(t, err)
	require.Contains(t, out, "ok: Logged out successfully")

	out, err = runCommand(t, "whoami")
	require.NoError(t, err)
	require.Contains(t, out, "Not logged in")
}

func TestRun_Errors(t *testing.T) {
	setupBackend(t)

	t.Run("unknown command", func(t *testing.T) {
		out, err := runCommand(t, "book")
		require.Error(t, err)
		require.Contains(t, out, "Usage: turfctl")
	})

	t.Run("missing flags", func(t *testing.T) {
		_, err := runCommand(t, "login", "--email", "meera@turf.test")
		require.ErrorContains(t, err, "--password")
	})

	t.Run("field messages are printed", func(t *testing.T) {
		out, err := runCommand(t, "register", "--name", "M", "--email", "nope", "--password", "weak")
		require.ErrorContains(t, err, "invalid input")
		require.Contains(t, out, "email: invalid email format")
	})

	t.Run("wrong password reports the server message", func(t *testing.T) {
		out, err := runCommand(t, "login", "--email", "meera@turf.test", "--password", "Wr0ngPass")
		require.Error(t, err)
		require.Contains(t, out, "failed: Incorrect email or password")
	})

	t.Run("no command prints help", func(t *testing.T) {
		out, err := runCommand(t)
		require.NoError(t, err)
		require.Contains(t, out, "whoami")
	})
}
