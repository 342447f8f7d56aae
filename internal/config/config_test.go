// internal/config/config_test.go
package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaultsWithoutFile(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, ":8080", cfg.Server.Addr)
	assert.Equal(t, 32, cfg.Rating.KProvisional)
	assert.Equal(t, 16, cfg.Rating.KEstablished)
	assert.Equal(t, 20, cfg.Rating.ProvisionalGames)
	assert.Equal(t, 100, cfg.Matchmaking.BandBase)
	assert.Equal(t, 600, cfg.Matchmaking.BandMax)
	assert.NotEmpty(t, cfg.TimeControls)
}

func TestLoadMissingFileFallsBack(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	require.NoError(t, err)
	assert.Equal(t, 1200, cfg.Rating.InitialRating)
}

func TestLoadPartialYamlOverlay(t *testing.T) {
	path := filepath.Join(t.TempDir(), "stratum.yaml")
	data := []byte("rating:\n  k_provisional: 40\nmatchmaking:\n  band_base: 50\n")
	require.NoError(t, os.WriteFile(path, data, 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)

	// Overridden values take, everything else keeps its default.
	assert.Equal(t, 40, cfg.Rating.KProvisional)
	assert.Equal(t, 50, cfg.Matchmaking.BandBase)
	assert.Equal(t, 16, cfg.Rating.KEstablished)
	assert.Equal(t, 600, cfg.Matchmaking.BandMax)
}

func TestLoadRejectsInvalidValues(t *testing.T) {
	path := filepath.Join(t.TempDir(), "stratum.yaml")
	data := []byte("rating:\n  k_provisional: 0\n")
	require.NoError(t, os.WriteFile(path, data, 0o644))

	_, err := Load(path)
	assert.Error(t, err)
}

func TestEnvOverridesAddr(t *testing.T) {
	t.Setenv("STRATUM_ADDR", ":9999")
	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, ":9999", cfg.Server.Addr)

	t.Setenv("STRATUM_ADDR", "")
	t.Setenv("PORT", "7070")
	cfg, err = Load("")
	require.NoError(t, err)
	assert.Equal(t, ":7070", cfg.Server.Addr)
}
