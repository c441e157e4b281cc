package main

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/onnwee/live-herald/config"
	"github.com/onnwee/live-herald/envfile"
)

func TestInitialRefreshTokenPrefersEnvFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), ".env")
	require.NoError(t, os.WriteFile(path, []byte("TWITCH_REFRESH_TOKEN=rotated\n"), 0o600))
	t.Setenv(config.RefreshTokenKey, "from-env")

	cfg, err := config.Load(path)
	require.NoError(t, err)
	// the process environment wins inside config
	require.Equal(t, "from-env", cfg.TwitchRefreshToken)

	store := envfile.New(cfg.EnvFile, config.RefreshTokenKey)
	assert.Equal(t, "rotated", initialRefreshToken(store, cfg.TwitchRefreshToken))
}

func TestInitialRefreshTokenAfterRotation(t *testing.T) {
	path := filepath.Join(t.TempDir(), ".env")
	require.NoError(t, os.WriteFile(path, []byte("TWITCH_REFRESH_TOKEN=first\n"), 0o600))
	store := envfile.New(path, config.RefreshTokenKey)

	require.NoError(t, store.SaveRefreshToken("second"))
	assert.Equal(t, "second", initialRefreshToken(store, "first"))
}

func TestInitialRefreshTokenFallsBackToEnv(t *testing.T) {
	dir := t.TempDir()

	missing := envfile.New(filepath.Join(dir, "absent.env"), config.RefreshTokenKey)
	assert.Equal(t, "from-env", initialRefreshToken(missing, "from-env"))

	path := filepath.Join(dir, ".env")
	require.NoError(t, os.WriteFile(path, []byte("OTHER=1\n"), 0o600))
	assert.Equal(t, "from-env", initialRefreshToken(envfile.New(path, config.RefreshTokenKey), "from-env"))

	// a directory cannot be parsed as an env file
	assert.Equal(t, "from-env", initialRefreshToken(envfile.New(dir, config.RefreshTokenKey), "from-env"))
}
