package main

import (
	"bytes"
	"context"
	"encoding/json"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/require"

	"github.com/heartlink/onboardgate/internal/bootstrap"
	"github.com/heartlink/onboardgate/middleware"
	"github.com/heartlink/onboardgate/session"
)

func runCLI(t *testing.T, args ...string) (string, error) {
	t.Helper()
	t.Setenv("SUPABASE_JWT_SECRET", "cli-secret")
	t.Setenv("BACKEND_KIND", "memory")

	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&out)
	rootCmd.SetArgs(append([]string{"--config", filepath.Join(t.TempDir(), "none.yaml")}, args...))
	err := rootCmd.Execute()
	return out.String(), err
}

func TestTokenCommand(t *testing.T) {
	out, err := runCLI(t, "token", "--user", "u1", "--session", "s1")
	require.NoError(t, err)

	cfg, err := bootstrap.LoadConfig("")
	require.NoError(t, err)
	tokens, err := bootstrap.NewTokenManager(cfg.Auth)
	require.NoError(t, err)

	claims, err := tokens.Parse(strings.TrimSpace(out))
	require.NoError(t, err)
	require.Equal(t, "u1", claims.UserID())
	require.Equal(t, "s1", claims.SessionID)
}

func TestCheckCommand(t *testing.T) {
	tests := []struct {
		user   string
		path   string
		action string
		target string
	}{
		{"", "/dashboard", "redirect", "/sign-in"},
		{"u1", "/dashboard", "redirect", "/verify"},
		{"u1", "/verify", "allow", ""},
		{"", "/about", "allow", ""},
	}
	for _, tt := range tests {
		t.Run(tt.user+tt.path, func(t *testing.T) {
			out, err := runCLI(t, "check", "--user", tt.user, "--path", tt.path)
			require.NoError(t, err)

			var got middleware.CheckResponse
			require.NoError(t, json.Unmarshal([]byte(out), &got))
			require.Equal(t, tt.action, got.Action)
			require.Equal(t, tt.target, got.Target)
		})
	}
}

func TestCheckHelpNamesCommand(t *testing.T) {
	require.True(t, strings.HasPrefix(checkCmd.Long, "Check prints"))
	require.NotContains(t, checkCmd.Long, "Evaluate")
}

func TestCheckRejectsRelativePath(t *testing.T) {
	_, err := runCLI(t, "check", "--path", "dashboard")
	require.Error(t, err)
}

func TestBenchCommand(t *testing.T) {
	out, err := runCLI(t, "bench", "--users", "30", "--concurrency", "4", "--ops", "60")
	require.NoError(t, err)
	require.Contains(t, out, "using miniredis")
	require.Contains(t, out, "evaluate: ops=60 failures=0")
	require.Contains(t, out, "create: ops=60 failures=0")
}

func TestBenchRejectsZeroOps(t *testing.T) {
	_, err := runCLI(t, "bench", "--ops", "0")
	require.Error(t, err)
	benchOps = 100000
}

func TestPercentile(t *testing.T) {
	samples := []time.Duration{1, 2, 3, 4, 5, 6, 7, 8, 9, 10}
	require.Equal(t, time.Duration(1), percentile(samples, 0))
	require.Equal(t, time.Duration(5), percentile(samples, 50))
	require.Equal(t, time.Duration(9), percentile(samples, 95))
	require.Equal(t, time.Duration(10), percentile(samples, 100))
	require.Zero(t, percentile(nil, 50))
}

func resetRevokeFlags(t *testing.T) {
	t.Cleanup(func() {
		revokeSession = ""
		revokeUser = ""
		revokeTTL = time.Hour
	})
}

func TestRevokeCommand(t *testing.T) {
	mr := miniredis.RunT(t)
	t.Setenv("REDIS_URL", "redis://"+mr.Addr())
	resetRevokeFlags(t)

	out, err := runCLI(t, "revoke", "--session", "s1", "--ttl", "30m")
	require.NoError(t, err)
	require.Contains(t, out, "revoked session s1")
	require.True(t, mr.Exists("og:rs:s1"))
	ttl := mr.TTL("og:rs:s1")
	require.Greater(t, ttl, 29*time.Minute)
	require.LessOrEqual(t, ttl, 30*time.Minute)

	revokeSession = ""
	out, err = runCLI(t, "revoke", "--user", "u1")
	require.NoError(t, err)
	require.Contains(t, out, "revoked all sessions of user u1")

	client, err := bootstrap.OpenRedis(context.Background(), "redis://"+mr.Addr())
	require.NoError(t, err)
	defer client.Close()
	store := bootstrap.NewRevocationStore(client)

	revoked, err := store.IsRevoked(context.Background(), &session.Session{UserID: "u2", SessionID: "s1", IssuedAt: time.Now()})
	require.NoError(t, err)
	require.True(t, revoked)

	revoked, err = store.IsRevoked(context.Background(), &session.Session{UserID: "u1", IssuedAt: time.Now().Add(-time.Minute)})
	require.NoError(t, err)
	require.True(t, revoked)
}

func TestRevokeCommandRejectsBadInput(t *testing.T) {
	t.Setenv("REDIS_URL", "")
	resetRevokeFlags(t)

	_, err := runCLI(t, "revoke")
	require.Error(t, err)

	_, err = runCLI(t, "revoke", "--session", "s1", "--user", "u1")
	require.Error(t, err)

	revokeUser = ""
	_, err = runCLI(t, "revoke", "--session", "s1")
	require.ErrorContains(t, err, "REDIS_URL")
}
