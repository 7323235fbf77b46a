package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/jurisflow/calc-engine/index"
)

func chdirTemp(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	origDir, _ := os.Getwd()
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { os.Chdir(origDir) })
	return dir
}

func TestLoadDefaults(t *testing.T) {
	// Change to temp dir so no config.yaml is found
	chdirTemp(t)

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, "legalcalc.db", cfg.Store.Path)
	assert.Equal(t, "info", cfg.Log.Level)
	assert.Equal(t, "json", cfg.Log.Format)
	assert.Equal(t, "https://api.bcb.gov.br", cfg.Index.BaseURL)
	assert.Equal(t, 10, cfg.Index.TimeoutSecs)
	assert.InDelta(t, 2.0, cfg.Index.RequestsPerSecond, 0.001)
	assert.True(t, cfg.Index.Live)
	assert.Empty(t, cfg.Reference.File)
	assert.Equal(t, []string{"http://localhost:5173", "http://localhost:8080"}, cfg.CORS.AllowedOrigins)

	series, err := cfg.Index.Series()
	require.NoError(t, err)
	assert.Equal(t, map[index.Name]int{index.SELIC: 4390}, series)
	assert.NoError(t, cfg.Validate())
}

func TestLoadFromYAML(t *testing.T) {
	dir := chdirTemp(t)

	yaml := `
server:
  port: 9090
log:
  level: debug
  format: console
index:
  live: false
  monthly_series:
    selic: 4390
    inpc: 188
reference:
  file: tables.yaml
`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte(yaml), 0644))

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 9090, cfg.Server.Port)
	assert.Equal(t, "console", cfg.Log.Format)
	assert.False(t, cfg.Index.Live)
	assert.Equal(t, "tables.yaml", cfg.Reference.File)
	// Defaults still apply for unset values
	assert.Equal(t, "legalcalc.db", cfg.Store.Path)

	series, err := cfg.Index.Series()
	require.NoError(t, err)
	assert.Equal(t, 188, series[index.INPC])
	assert.Equal(t, 4390, series[index.SELIC])
}

func TestLoadEnvOverridesFile(t *testing.T) {
	dir := chdirTemp(t)

	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte("store:\n  path: file.db\n"), 0644))
	t.Setenv("LEGALCALC_STORE_PATH", "env.db")
	t.Setenv("LEGALCALC_SERVER_PORT", "3000")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "env.db", cfg.Store.Path)
	assert.Equal(t, 3000, cfg.Server.Port)
}

func TestValidate(t *testing.T) {
	chdirTemp(t)
	cfg, err := Load()
	require.NoError(t, err)

	cfg.Server.Port = 0
	cfg.Index.MonthlySeries = map[string]int{"TR": 226}

	err = cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "server.port")
	assert.Contains(t, err.Error(), "TR")
}

func TestInitLoggerConsole(t *testing.T) {
	err := InitLogger(LogConfig{Level: "debug", Format: "console"})
	require.NoError(t, err)
	assert.NotNil(t, zap.L())
}

func TestInitLoggerJSON(t *testing.T) {
	err := InitLogger(LogConfig{Level: "info", Format: "json"})
	require.NoError(t, err)
	assert.NotNil(t, zap.L())
}

func TestInitLoggerInvalidLevel(t *testing.T) {
	err := InitLogger(LogConfig{Level: "invalid", Format: "json"})
	assert.Error(t, err)
}
