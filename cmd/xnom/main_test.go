package main

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"xnom/internal/auth"
	"xnom/internal/config"
)

// run executes the root command with args and returns what it printed.
func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&out)
	rootCmd.SetArgs(append([]string{"--quiet"}, args...))
	err := rootCmd.Execute()
	return out.String(), err
}

func writeConfig(t *testing.T) string {
	t.Helper()
	for _, k := range []string{"DATABASE_PATH", "DATABASE_URL", "X_BEARER_TOKEN", "X_USER_TOKEN", "JWT_SECRET"} {
		t.Setenv(k, "")
	}
	dir := t.TempDir()
	cfg := config.Default()
	cfg.Storage.DBPath = filepath.Join(dir, "data", "xnom.db")
	cfg.Account.Username = "@gopher"
	cfg.Auth.JWTSecret = "cli-test-secret"
	path := filepath.Join(dir, "xnom.yaml")
	require.NoError(t, config.Save(path, cfg))
	return path
}

func TestInitWritesConfigOnce(t *testing.T) {
	path := filepath.Join(t.TempDir(), "xnom.yaml")
	initForce = false

	out, err := run(t, "init", "--config", path)
	require.NoError(t, err)
	assert.Contains(t, out, "Config written to:")
	_, err = os.Stat(path)
	require.NoError(t, err)

	_, err = run(t, "init", "--config", path)
	assert.ErrorContains(t, err, "already exists")
}

func TestIdeasGenerateAndList(t *testing.T) {
	path := writeConfig(t)
	ideasList, approveID, publishID = false, "", ""

	out, err := run(t, "ideas", "golang", "--config", path, "--count", "3")
	require.NoError(t, err)
	assert.Equal(t, 3, strings.Count(out, "golang"))

	ideasList = true
	defer func() { ideasList = false }()
	out, err = run(t, "ideas", "--config", path, "--list")
	require.NoError(t, err)
	assert.NotContains(t, out, "no ideas")
}

func TestStatsOnEmptyStore(t *testing.T) {
	path := writeConfig(t)
	out, err := run(t, "stats", "--config", path, "--json")
	require.NoError(t, err)
	assert.Contains(t, out, `"totalToday": 0`)
	assert.Contains(t, out, `"isAutoEngagementActive": false`)
}

func TestTokenFromConfiguredAccount(t *testing.T) {
	path := writeConfig(t)
	out, err := run(t, "token", "--config", path)
	require.NoError(t, err)

	iss, err := auth.NewIssuer("cli-test-secret", 0)
	require.NoError(t, err)
	claims, err := iss.Verify(strings.TrimSpace(out))
	require.NoError(t, err)
	assert.Equal(t, "gopher", claims.Username)
	assert.Equal(t, "local:gopher", claims.XUserID)
}

func TestUnknownStorageDriver(t *testing.T) {
	dir := t.TempDir()
	cfg := config.Default()
	cfg.Storage.Driver = "mongo"
	path := filepath.Join(dir, "xnom.yaml")
	require.NoError(t, config.Save(path, cfg))

	_, err := run(t, "stats", "--config", path)
	assert.ErrorContains(t, err, `unknown storage driver "mongo"`)
}
