package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"docchat/internal/storage"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load("", false)
	require.NoError(t, err)

	assert.Equal(t, "gemini", cfg.Provider)
	assert.Equal(t, "gemini-2.0-flash", cfg.Model)
	assert.Equal(t, 0.7, cfg.Temperature)
	assert.False(t, cfg.Debug)
}

func TestLoad_ConfigFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")
	require.NoError(t, os.WriteFile(path, []byte(`{
		"provider": "anthropic",
		"model": "some-model",
		"temperature": 0.2
	}`), 0644))

	cfg, err := Load(path, true)
	require.NoError(t, err)

	assert.Equal(t, "anthropic", cfg.Provider)
	assert.Equal(t, "some-model", cfg.Model)
	assert.Equal(t, 0.2, cfg.Temperature)
	assert.True(t, cfg.Debug)
}

func TestLoad_MissingExplicitFileFails(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.json"), false)
	require.Error(t, err)
}

func TestLoad_MalformedSearchPathFileFallsBackToDefaults(t *testing.T) {
	// A broken config.json found on the default search path must not abort
	// startup; it is reported and the defaults apply.
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.json"), []byte("{broken"), 0644))
	t.Chdir(dir)

	cfg, err := Load("", false)
	require.NoError(t, err)
	assert.Equal(t, "gemini", cfg.Provider)
	assert.Equal(t, "gemini-2.0-flash", cfg.Model)
}

func TestLoad_EnvOverride(t *testing.T) {
	t.Setenv("DOCCHAT_MODEL", "env-model")

	cfg, err := Load("", false)
	require.NoError(t, err)
	assert.Equal(t, "env-model", cfg.Model)
}

func TestDefaultSettings(t *testing.T) {
	t.Setenv("GEMINI_API_KEY", "test-key")

	cfg, err := Load("", false)
	require.NoError(t, err)

	settings := cfg.DefaultSettings()
	assert.Equal(t, "gemini", settings.Provider)
	assert.Equal(t, "test-key", settings.APIKey)
	assert.Equal(t, storage.StorageModeEmbedded, settings.StorageMode)
	assert.False(t, settings.Image.Enabled)
}

func TestAPIKeyForProvider(t *testing.T) {
	t.Setenv("ANTHROPIC_API_KEY", "a-key")
	t.Setenv("GEMINI_API_KEY", "")
	t.Setenv("GOOGLE_API_KEY", "g-key")

	assert.Equal(t, "a-key", APIKeyForProvider("anthropic"))
	assert.Equal(t, "a-key", APIKeyForProvider("Anthropic"))
	assert.Equal(t, "g-key", APIKeyForProvider("gemini"), "falls back to the GOOGLE_API_KEY alias")
	assert.Empty(t, APIKeyForProvider("unknown"))
}
