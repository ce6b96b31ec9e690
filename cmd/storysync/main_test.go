package main

import (
	"bytes"
	"encoding/json"
	"net"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"novel-client/internal/config"
	"novel-client/internal/models"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type cliEnv struct {
	server   *httptest.Server
	requests atomic.Int32
}

func newCLIEnv(t *testing.T, token string) *cliEnv {
	t.Helper()
	env := &cliEnv{}
	env.server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		env.requests.Add(1)
		if r.Header.Get("Authorization") != "Bearer "+token {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		prefix, suffix := "/users/", "/stories"
		if r.Method != http.MethodGet || !strings.HasPrefix(r.URL.Path, prefix) || !strings.HasSuffix(r.URL.Path, suffix) {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		user := strings.TrimSuffix(strings.TrimPrefix(r.URL.Path, prefix), suffix)
		created := time.Date(2025, 3, 14, 9, 0, 0, 0, time.UTC)
		_ = json.NewEncoder(w).Encode(map[string]any{"data": []models.Story{
			{ID: "old", OwnerID: user, Title: "Older", CreatedAt: created},
			{ID: "new", OwnerID: user, Title: "Newer", CreatedAt: created.Add(time.Hour)},
		}})
	}))
	t.Cleanup(env.server.Close)

	secrets := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(secrets, config.GatewayTokenSecret), []byte(token), 0o600))

	t.Setenv("GATEWAY_BASE_URL", env.server.URL)
	t.Setenv("SECRETS_DIR", secrets)
	t.Setenv("CACHE_BACKEND", "sqlite")
	t.Setenv("CACHE_SQLITE_PATH", filepath.Join(t.TempDir(), "cache.db"))
	t.Setenv("LOG_LEVEL", "error")
	return env
}

func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cmd := NewRootCommand()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func TestStoriesList_PrintsCanonicalOrder(t *testing.T) {
	newCLIEnv(t, "opaque-token")

	out, err := run(t, "stories", "list", "--user", "u1")
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(out), "\n")
	require.Len(t, lines, 3)
	assert.True(t, strings.HasPrefix(lines[1], "new"), out)
	assert.True(t, strings.HasPrefix(lines[2], "old"), out)
}

func TestStoriesList_FallsBackToCacheWhenRemoteIsDown(t *testing.T) {
	env := newCLIEnv(t, "opaque-token")

	_, err := run(t, "stories", "list", "--user", "u1")
	require.NoError(t, err)
	env.server.Close()

	out, err := run(t, "stories", "list", "--user", "u1", "--json")
	require.NoError(t, err)
	var stories []models.Story
	require.NoError(t, json.Unmarshal([]byte(out), &stories), out)
	require.Len(t, stories, 2)
	assert.Equal(t, "new", stories[0].ID)
}

func TestStoriesList_OfflineDoesNotCallRemote(t *testing.T) {
	env := newCLIEnv(t, "opaque-token")

	out, err := run(t, "stories", "list", "--user", "u1", "--offline", "--json")
	require.NoError(t, err)
	assert.JSONEq(t, "[]", out)
	assert.Zero(t, env.requests.Load())
}

func TestStoriesList_UserFromToken(t *testing.T) {
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{Subject: "u9"}).
		SignedString([]byte("secret"))
	require.NoError(t, err)
	newCLIEnv(t, token)

	out, err := run(t, "stories", "list", "--json")
	require.NoError(t, err)
	var stories []models.Story
	require.NoError(t, json.Unmarshal([]byte(out), &stories), out)
	require.NotEmpty(t, stories)
	assert.Equal(t, "u9", stories[0].OwnerID)
}

func TestCacheClear(t *testing.T) {
	env := newCLIEnv(t, "opaque-token")

	_, err := run(t, "stories", "list", "--user", "u1")
	require.NoError(t, err)

	out, err := run(t, "cache", "clear", "--user", "u1")
	require.NoError(t, err)
	assert.Contains(t, out, "cache cleared for user u1")

	env.server.Close()
	_, err = run(t, "stories", "list", "--user", "u1")
	assert.ErrorIs(t, err, models.ErrTransientNetwork)
}

func TestStoriesList_RejectsUnknownOrder(t *testing.T) {
	newCLIEnv(t, "opaque-token")
	_, err := run(t, "stories", "list", "--user", "u1", "--order", "shuffle")
	assert.ErrorIs(t, err, models.ErrInvalidInput)
}

func TestServe_ReturnsErrorWhenPortIsBusy(t *testing.T) {
	newCLIEnv(t, "opaque-token")
	busy, err := net.Listen("tcp", ":0")
	require.NoError(t, err)
	defer busy.Close()
	t.Setenv("STORYSYNC_PORT", strconv.Itoa(busy.Addr().(*net.TCPAddr).Port))
	t.Setenv("HISTORY_DATABASE_URL", "")
	t.Setenv("RABBITMQ_URL", "")

	_, err = run(t, "serve")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "http server failed")
}

func TestHistoryMigrate_RequiresDatabaseURL(t *testing.T) {
	newCLIEnv(t, "opaque-token")
	t.Setenv("HISTORY_DATABASE_URL", "")

	for _, sub := range []string{"up", "down", "version"} {
		_, err := run(t, "history", "migrate", sub)
		assert.ErrorIs(t, err, errHistoryNotConfigured, sub)
	}
}
