package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func isolate(t *testing.T) {
	t.Helper()
	t.Setenv("HOME", t.TempDir())
	t.Chdir(t.TempDir())
	for _, k := range []string{"GOOGLE_API_KEY", "GEMINI_API_KEY", "OPENROUTER_API_KEY", "AVALIA_PROVIDER", "AVALIA_DATA_DIR", "AVALIA_API_KEY"} {
		t.Setenv(k, "")
		os.Unsetenv(k)
	}
}

func TestLoadDefaults(t *testing.T) {
	isolate(t)
	c, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, "data", c.DataDir)
	assert.Equal(t, "gemini", c.Provider)
	assert.Equal(t, "gemini-2.5-flash", c.ResolvedModel())
	assert.Equal(t, 10, c.MaxIterations)
	assert.Equal(t, []string{"*"}, c.CORSOrigins)
	assert.Equal(t, ":8080", c.ServerAddr)
}

func TestLoadEnvOverridesFile(t *testing.T) {
	isolate(t)
	file := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(file, []byte("data_dir: /srv/csv\nprovider: openrouter\nmax_iterations: 4\n"), 0o644))
	t.Setenv("AVALIA_DATA_DIR", "/env/csv")

	c, err := Load(file)
	require.NoError(t, err)
	assert.Equal(t, "/env/csv", c.DataDir)
	assert.Equal(t, "openrouter", c.Provider)
	assert.Equal(t, 4, c.MaxIterations)
	assert.Equal(t, "google/gemini-2.5-flash", c.ResolvedModel())
}

func TestLoadDotEnvSuppliesProviderKey(t *testing.T) {
	isolate(t)
	require.NoError(t, os.WriteFile(".env", []byte("GOOGLE_API_KEY=from-dotenv\n"), 0o600))
	t.Cleanup(func() { os.Unsetenv("GOOGLE_API_KEY") })

	c, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, "from-dotenv", c.ResolvedAPIKey())

	c.APIKey = "explicit"
	assert.Equal(t, "explicit", c.ResolvedAPIKey())
}

func TestLoadRejectsInvalidValues(t *testing.T) {
	isolate(t)
	t.Setenv("AVALIA_PROVIDER", "ollama")
	_, err := Load("")
	assert.ErrorContains(t, err, "invalid provider")

	_, err = Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}

func TestSaveRoundTrip(t *testing.T) {
	isolate(t)
	path := filepath.Join(t.TempDir(), "nested", "config.yaml")
	in := &Global{DataDir: "/x", Provider: "gemini", MaxIterations: 3, ServerAddr: ":9000", LogLevel: "debug"}
	require.NoError(t, Save(in, path))

	out, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "/x", out.DataDir)
	assert.Equal(t, 3, out.MaxIterations)
	assert.Equal(t, ":9000", out.ServerAddr)
	_, err = os.Stat(path + ".tmp")
	assert.True(t, os.IsNotExist(err))
}
