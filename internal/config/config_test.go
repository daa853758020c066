package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func chtemp(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	origDir, _ := os.Getwd()
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { os.Chdir(origDir) })
	return dir
}

func TestLoadDefaults(t *testing.T) {
	chtemp(t)

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "sqlite", cfg.Store.Driver)
	assert.Equal(t, "podium.db", cfg.Store.DatabaseURL)
	assert.Equal(t, "local", cfg.Storage.Driver)
	assert.Equal(t, "data", cfg.Storage.BaseDir)
	assert.True(t, cfg.Scoring.Async)
	assert.Equal(t, 4, cfg.Scoring.Workers)
	assert.Equal(t, 256, cfg.Scoring.QueueSize)
	assert.Equal(t, 3, cfg.Scoring.MaxAttempts)
	assert.Equal(t, 500, cfg.Scoring.InitialBackoffMS)
	assert.Equal(t, 30, cfg.Scoring.MaxBackoffSecs)
	assert.InDelta(t, 2.0, cfg.Scoring.BackoffMultiplier, 0.001)
	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, "info", cfg.Log.Level)
	assert.Equal(t, "json", cfg.Log.Format)
}

func TestLoadFromYAML(t *testing.T) {
	dir := chtemp(t)

	yaml := `
store:
  driver: postgres
  database_url: postgres://localhost/podium
scoring:
  async: false
  workers: 8
server:
  port: 9090
log:
  level: debug
  format: console
`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte(yaml), 0o644))

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "postgres", cfg.Store.Driver)
	assert.Equal(t, "postgres://localhost/podium", cfg.Store.DatabaseURL)
	assert.False(t, cfg.Scoring.Async)
	assert.Equal(t, 8, cfg.Scoring.Workers)
	assert.Equal(t, 9090, cfg.Server.Port)
	assert.Equal(t, "debug", cfg.Log.Level)
	// Unset keys keep defaults.
	assert.Equal(t, 256, cfg.Scoring.QueueSize)
}

func TestLoadFromEnv(t *testing.T) {
	chtemp(t)
	t.Setenv("PODIUM_STORE_DRIVER", "postgres")
	t.Setenv("PODIUM_SERVER_PORT", "7070")
	t.Setenv("PODIUM_LOG_LEVEL", "warn")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "postgres", cfg.Store.Driver)
	assert.Equal(t, 7070, cfg.Server.Port)
	assert.Equal(t, "warn", cfg.Log.Level)
}

func TestInitLogger(t *testing.T) {
	require.NoError(t, InitLogger(LogConfig{Level: "debug", Format: "console"}))
	require.NoError(t, InitLogger(LogConfig{Level: "info", Format: "json"}))
	require.Error(t, InitLogger(LogConfig{Level: "nonsense", Format: "json"}))
}

func TestLoadCompetitions(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "competitions.yaml")
	yaml := `
competitions:
  - id: c1
    title: Titanic Survival
    slug: titanic
    status: active
    evaluation_metric: auc_roc
    solution_key: solutions/titanic.csv
    daily_submission_limit: 5
    start_date: 2026-01-01T00:00:00Z
    end_date: 2026-06-01T00:00:00Z
  - id: c2
    title: House Prices
    slug: house-prices
    status: draft
    evaluation_metric: rmse
    solution_key: solutions/houses.csv
    team_mode: true
    max_team_size: 4
`
	require.NoError(t, os.WriteFile(path, []byte(yaml), 0o644))

	comps, err := LoadCompetitions(path)
	require.NoError(t, err)
	require.Len(t, comps, 2)

	assert.Equal(t, "titanic", comps[0].Slug)
	assert.Equal(t, "auc_roc", comps[0].EvaluationMetric)
	assert.Equal(t, 5, comps[0].DailySubmissionLimit)
	assert.Equal(t, 2026, comps[0].StartDate.Year())
	assert.True(t, comps[1].TeamMode)
	assert.Equal(t, 4, comps[1].MaxTeamSize)
}

func TestLoadCompetitionsErrors(t *testing.T) {
	_, err := LoadCompetitions(filepath.Join(t.TempDir(), "missing.yaml"))
	require.Error(t, err)

	empty := filepath.Join(t.TempDir(), "empty.yaml")
	require.NoError(t, os.WriteFile(empty, []byte("competitions: []\n"), 0o644))
	_, err = LoadCompetitions(empty)
	require.Error(t, err)
}
