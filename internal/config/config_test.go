package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func chtmp(t *testing.T) {
	t.Helper()
	dir := t.TempDir()
	origDir, _ := os.Getwd()
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { os.Chdir(origDir) })
}

func TestLoadDefaults(t *testing.T) {
	// Change to temp dir so no config.yaml is found
	chtmp(t)

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "postgres", cfg.Store.Driver)
	assert.Equal(t, "diligence.db", cfg.Store.SQLitePath)
	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, 20.0, cfg.Server.RateRPS)
	assert.Equal(t, 40, cfg.Server.RateBurst)
	assert.Equal(t, []string{"*"}, cfg.Server.CORSOrigins)
	assert.Equal(t, 15.0, cfg.Scoring.Credit.Critical)
	assert.Equal(t, 10.0, cfg.Scoring.Credit.High)
	assert.Equal(t, 5.0, cfg.Scoring.Credit.Medium)
	assert.Equal(t, "info", cfg.Log.Level)
	assert.Equal(t, "json", cfg.Log.Format)
}

func TestLoadFromYAML(t *testing.T) {
	chtmp(t)

	yaml := `
store:
  driver: sqlite
  sqlite_path: ledger.db
log:
  level: debug
  format: console
server:
  port: 9090
scoring:
  credit:
    critical: 20
`
	dir, _ := os.Getwd()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte(yaml), 0644))

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "sqlite", cfg.Store.Driver)
	assert.Equal(t, "ledger.db", cfg.Store.SQLitePath)
	assert.Equal(t, "debug", cfg.Log.Level)
	assert.Equal(t, "console", cfg.Log.Format)
	assert.Equal(t, 9090, cfg.Server.Port)
	assert.Equal(t, 20.0, cfg.Scoring.Credit.Critical)
	// Defaults still apply for unset values
	assert.Equal(t, 10.0, cfg.Scoring.Credit.High)
}

func TestLoadEnvOverridesFile(t *testing.T) {
	chtmp(t)

	yaml := `
store:
  driver: sqlite
log:
  level: debug
`
	dir, _ := os.Getwd()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte(yaml), 0644))

	t.Setenv("DILIGENCE_STORE_DRIVER", "postgres")
	t.Setenv("DILIGENCE_LOG_LEVEL", "warn")

	cfg, err := Load()
	require.NoError(t, err)

	// Env overrides file
	assert.Equal(t, "postgres", cfg.Store.Driver)
	assert.Equal(t, "warn", cfg.Log.Level)
}

func TestLoadEnvOverridesDefaults(t *testing.T) {
	chtmp(t)

	t.Setenv("DILIGENCE_SERVER_PORT", "3000")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, 3000, cfg.Server.Port)
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

// validDefaults returns a Config that passes validation.
func validDefaults() *Config {
	cfg := &Config{}
	cfg.Store.Driver = "sqlite"
	cfg.Server.Port = 8080
	cfg.Server.RateRPS = 20
	cfg.Server.RateBurst = 40
	return cfg
}

func TestValidate_OK(t *testing.T) {
	assert.NoError(t, validDefaults().Validate(true))
}

func TestValidate_PostgresNeedsURL(t *testing.T) {
	cfg := validDefaults()
	cfg.Store.Driver = "postgres"

	err := cfg.Validate(true)
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "store.database_url is required")

	cfg.Store.DatabaseURL = "postgres://localhost/diligence"
	assert.NoError(t, cfg.Validate(true))
}

func TestValidate_UnknownDriver(t *testing.T) {
	cfg := validDefaults()
	cfg.Store.Driver = "mysql"

	err := cfg.Validate(true)
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "store.driver must be sqlite or postgres")

	// A command that never opens the store skips the driver check.
	assert.NoError(t, cfg.Validate(false))
}

func TestValidate_PortBounds(t *testing.T) {
	cfg := validDefaults()

	cfg.Server.Port = 0
	assert.Error(t, cfg.Validate(true))

	cfg.Server.Port = 70000
	assert.Error(t, cfg.Validate(true))

	cfg.Server.Port = 8080
	assert.NoError(t, cfg.Validate(true))
}

func TestValidate_RateLimits(t *testing.T) {
	cfg := validDefaults()

	cfg.Server.RateRPS = 0
	err := cfg.Validate(true)
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "rate_rps")

	cfg.Server.RateRPS = 20
	cfg.Server.RateBurst = 0
	err = cfg.Validate(true)
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "rate_burst")
}

func TestValidate_NegativeCredits(t *testing.T) {
	cfg := validDefaults()
	cfg.Scoring.Credit.High = -1

	err := cfg.Validate(true)
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "scoring.credit values must be >= 0")
}
