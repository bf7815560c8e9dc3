package main

import (
	"bytes"
	"context"
	"fmt"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"taskmanager/internal/domain/errors"
	"taskmanager/internal/server"
	storage "taskmanager/repository/inmemory"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func newCLIEnv(t *testing.T) string {
	t.Helper()
	repo := storage.NewStorage()
	api := server.NewTaskAPI(repo, repo, &server.Config{
		JWTSecret:     "cli-test-secret",
		AdminEmail:    "root@example.com",
		AdminPassword: "rootpass",
	})
	require.NotNil(t, api)
	require.NoError(t, api.EnsureAdmin(context.Background()))
	srv := httptest.NewServer(api.Handler())
	t.Cleanup(srv.Close)

	dir := t.TempDir()
	t.Setenv("HOME", dir)
	cfgPath := filepath.Join(dir, "taskctl.yaml")
	cfg := fmt.Sprintf("server: %s\nsession_file: %s\ntimeout: 5s\n", srv.URL, filepath.Join(dir, "session.yaml"))
	require.NoError(t, os.WriteFile(cfgPath, []byte(cfg), 0o600))
	return cfgPath
}

func run(cfgPath string, args ...string) (string, error) {
	cmd := newRootCmd()
	var buf bytes.Buffer
	cmd.SetOut(&buf)
	cmd.SetErr(&buf)
	cmd.SetArgs(append([]string{"--config", cfgPath}, args...))
	err := cmd.Execute()
	return buf.String(), err
}

func lastLine(out string) string {
	lines := strings.Split(strings.TrimSpace(out), "\n")
	return strings.TrimSpace(lines[len(lines)-1])
}

func TestCLIWorkflow(t *testing.T) {
	cfg := newCLIEnv(t)

	out, err := run(cfg, "register", "--first-name", "Alice", "--last-name", "A", "-e", "alice@example.com", "-p", "secret1")
	require.NoError(t, err)
	assert.Contains(t, out, "as user")

	out, err = run(cfg, "me")
	require.NoError(t, err)
	assert.Contains(t, out, "alice@example.com")

	out, err = run(cfg, "create", "-t", "Write report", "--remind", "2h", "--priority", "high")
	require.NoError(t, err)
	assert.Contains(t, out, "[SUCCESS] Task Created")
	id := lastLine(out)
	require.NotEmpty(t, id)

	_, err = run(cfg, "create", "-t", "No reminder", "--remind", "sometime")
	assert.ErrorIs(t, err, errors.ErrValidationFailed)

	out, err = run(cfg, "list")
	require.NoError(t, err)
	assert.Contains(t, out, "Write report")
	assert.Contains(t, out, "HIGH")

	out, err = run(cfg, "list", "--status", "COMPLETED")
	require.NoError(t, err)
	assert.Contains(t, out, "No tasks")

	out, err = run(cfg, "update", id, "--status", "completed")
	require.NoError(t, err)
	assert.Contains(t, out, "COMPLETED")

	out, err = run(cfg, "list", "--status", "COMPLETED", "--search", "report")
	require.NoError(t, err)
	assert.Contains(t, out, id)

	_, err = run(cfg, "admin", "stats")
	assert.ErrorIs(t, err, errors.ErrForbidden)

	out, err = run(cfg, "delete", id)
	require.NoError(t, err)
	assert.Contains(t, out, "committed")

	out, err = run(cfg, "delete", id)
	require.NoError(t, err)
	assert.Contains(t, out, "may have already been deleted")

	out, err = run(cfg, "logout")
	require.NoError(t, err)
	assert.Contains(t, out, "Logged out")

	out, err = run(cfg, "me")
	require.NoError(t, err)
	assert.Contains(t, out, "Not logged in")
}

func TestCLIAdmin(t *testing.T) {
	cfg := newCLIEnv(t)

	_, err := run(cfg, "login", "-e", "root@example.com", "-p", "rootpass")
	require.NoError(t, err)
	_, err = run(cfg, "create", "-t", "Admin task", "--remind", "30m")
	require.NoError(t, err)

	out, err := run(cfg, "admin", "users", "--with-tasks")
	require.NoError(t, err)
	assert.Contains(t, out, "root@example.com")
	assert.Contains(t, out, "ASSIGNED")

	out, err = run(cfg, "admin", "tasks", "--priority", "MEDIUM")
	require.NoError(t, err)
	assert.Contains(t, out, "Admin task")

	out, err = run(cfg, "admin", "stats")
	require.NoError(t, err)
	assert.Contains(t, out, "users:   1")
	assert.Contains(t, out, "tasks:   1")
}

func TestCLILoginFailure(t *testing.T) {
	cfg := newCLIEnv(t)
	_, err := run(cfg, "login", "-e", "root@example.com", "-p", "wrong")
	assert.ErrorIs(t, err, errors.ErrUnauthorized)
}

func TestLoadConfig(t *testing.T) {
	t.Run("defaults without a file", func(t *testing.T) {
		home := t.TempDir()
		t.Setenv("HOME", home)
		cfg, err := LoadConfig("")
		require.NoError(t, err)
		assert.Equal(t, "http://localhost:8080", cfg.Server)
		assert.Equal(t, 15*time.Second, cfg.Timeout)
		assert.Equal(t, filepath.Join(home, ".taskctl", "session.yaml"), cfg.SessionFile)
	})

	t.Run("file then environment", func(t *testing.T) {
		home := t.TempDir()
		t.Setenv("HOME", home)
		require.NoError(t, os.WriteFile(filepath.Join(home, ".taskctl.yaml"), []byte("server: http://file:1\ntimeout: 3s\nrefresh: 1m\n"), 0o600))
		t.Setenv("TASKCTL_SERVER", "http://env:2")

		cfg, err := LoadConfig("")
		require.NoError(t, err)
		assert.Equal(t, "http://env:2", cfg.Server)
		assert.Equal(t, 3*time.Second, cfg.Timeout)
		assert.Equal(t, time.Minute, cfg.Refresh)
	})

	t.Run("broken file", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "bad.yaml")
		require.NoError(t, os.WriteFile(path, []byte("server: [oops"), 0o600))
		_, err := LoadConfig(path)
		assert.Error(t, err)
	})
}

func TestParseWhen(t *testing.T) {
	now := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
	tests := []struct {
		name  string
		value string
		want  struct {
			time  *time.Time
			isErr bool
		}
	}{
		{name: "empty", value: ""},
		{name: "offset", value: "2h", want: struct {
			time  *time.Time
			isErr bool
		}{time: ptr(now.Add(2 * time.Hour))}},
		{name: "rfc3339", value: "2026-04-01T09:30:00Z", want: struct {
			time  *time.Time
			isErr bool
		}{time: ptr(time.Date(2026, 4, 1, 9, 30, 0, 0, time.UTC))}},
		{name: "date", value: "2026-04-02", want: struct {
			time  *time.Time
			isErr bool
		}{time: ptr(time.Date(2026, 4, 2, 0, 0, 0, 0, time.UTC))}},
		{name: "garbage", value: "tomorrow-ish", want: struct {
			time  *time.Time
			isErr bool
		}{isErr: true}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := parseWhen(tt.value, now)
			if tt.want.isErr {
				assert.ErrorIs(t, err, errors.ErrValidationFailed)
				return
			}
			require.NoError(t, err)
			if tt.want.time == nil {
				assert.Nil(t, got)
				return
			}
			require.NotNil(t, got)
			assert.True(t, tt.want.time.Equal(*got), "got %s", got)
		})
	}
}

func ptr(t time.Time) *time.Time { return &t }
