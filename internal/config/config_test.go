package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, DriverPostgres, cfg.Storage.Driver)
	assert.Equal(t, 5, cfg.Scoring.ExactPoints)
	assert.Equal(t, 1, cfg.Scoring.ResultPoints)
	assert.Equal(t, "outcome", cfg.Scoring.Classifier)
	assert.Equal(t, "17:59", cfg.Deadline.Cutoff)
	assert.Equal(t, "Europe/Kyiv", cfg.Deadline.TimeZone)
	assert.Equal(t, "predictions", cfg.Kafka.Topic)
	assert.False(t, cfg.Refresh.Enabled)
	assert.NoError(t, cfg.Validate())
}

func TestParse_ExpandsEnvironment(t *testing.T) {
	t.Setenv("PREDICTOR_DB_URL", "postgres://u:p@db:5432/league")

	cfg, err := Parse([]byte(`
storage:
  driver: postgres
postgres:
  url: ${PREDICTOR_DB_URL}
scoring:
  exact_points: 3
  result_points: 0
  classifier: goal_difference
refresh:
  enabled: true
  interval: 90s
`))
	require.NoError(t, err)

	assert.Equal(t, "postgres://u:p@db:5432/league", cfg.Postgres.ConnectionString())
	assert.Equal(t, 3, cfg.Scoring.ExactPoints)
	assert.Equal(t, 0, cfg.Scoring.ResultPoints)
	assert.Equal(t, "goal_difference", cfg.Scoring.Classifier)
	assert.True(t, cfg.Refresh.Enabled)
	assert.Equal(t, 90*time.Second, cfg.Refresh.Interval)
}

func TestParse_RejectsUnknownDriver(t *testing.T) {
	_, err := Parse([]byte("storage:\n  driver: sqlite\n"))
	assert.Error(t, err)
}

func TestConnectionString_FromParts(t *testing.T) {
	c := PostgresConfig{Host: "h", Port: 5433, User: "u", Password: "p", Database: "d"}
	assert.Equal(t, "postgres://u:p@h:5433/d?sslmode=disable", c.ConnectionString())
}

func TestLoad(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("server:\n  port: 9090\nstorage:\n  driver: memory\n"), 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 9090, cfg.Server.Port)
	assert.Equal(t, DriverMemory, cfg.Storage.Driver)

	_, err = Load(filepath.Join(dir, "missing.yaml"))
	assert.Error(t, err)
}

func TestLoadEnv_MissingFileIgnored(t *testing.T) {
	assert.NoError(t, LoadEnv(filepath.Join(t.TempDir(), ".env")))

	path := filepath.Join(t.TempDir(), ".env")
	require.NoError(t, os.WriteFile(path, []byte("PREDICTOR_TEST_KEY=from-file\n"), 0o600))
	require.NoError(t, LoadEnv(path))
	t.Cleanup(func() { os.Unsetenv("PREDICTOR_TEST_KEY") })
	assert.Equal(t, "from-file", os.Getenv("PREDICTOR_TEST_KEY"))
}
