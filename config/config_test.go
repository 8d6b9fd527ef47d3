package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pgcompare/pgcompare/database"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "pgcompare.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0644))
	return path
}

const minimalConfig = `
repo-host: repo.internal
repo-dbname: pgcompare
repo-user: app
source-host: src.internal
source-dbname: sales
source-user: reader
target-type: oracle
target-host: tgt.internal
target-port: 1521
target-dbname: SALES
target-user: reader
`

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load(writeConfig(t, minimalConfig))
	require.NoError(t, err)

	assert.Equal(t, 2000, cfg.BatchFetchSize)
	assert.Equal(t, 2, cfg.LoaderThreads)
	assert.Equal(t, 100, cfg.MessageQueueSize)
	assert.Equal(t, CastNotation, cfg.NumberCast)
	assert.Equal(t, CastNotation, cfg.FloatCast)
	assert.True(t, cfg.ObserverThrottle)
	assert.Equal(t, int64(2000000), cfg.ObserverThrottleSize)
	assert.Equal(t, HashMethodNormalized, cfg.ColumnHashMethod)
	assert.Equal(t, 1, cfg.Project)
	assert.Equal(t, "pgcompare", cfg.RepoSchema)
	assert.Equal(t, 5432, cfg.RepoPort)
}

func TestLoadOverrides(t *testing.T) {
	cfg, err := Load(writeConfig(t, minimalConfig+`
batch-fetch-size: 5000
loader-threads: 8
number-cast: standard
column-hash-method: raw
observer-throttle: false
log-level: debug
`))
	require.NoError(t, err)
	assert.Equal(t, 5000, cfg.BatchFetchSize)
	assert.Equal(t, 8, cfg.LoaderThreads)
	assert.Equal(t, CastStandard, cfg.NumberCast)
	assert.Equal(t, HashMethodRaw, cfg.ColumnHashMethod)
	assert.False(t, cfg.ObserverThrottle)
	assert.Equal(t, "debug", cfg.LogLevel)
}

func TestLoadMissingMandatory(t *testing.T) {
	_, err := Load(writeConfig(t, "source-host: x\n"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "repo-host")
}

func TestLoadUnknownDialect(t *testing.T) {
	_, err := Load(writeConfig(t, strings.Replace(minimalConfig, "target-type: oracle", "target-type: sybase", 1)))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "target-type")
}

func TestLoadBadCastMode(t *testing.T) {
	_, err := Load(writeConfig(t, minimalConfig+"float-cast: engineering\n"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "float-cast")
}

func TestLoadBadSSLMode(t *testing.T) {
	_, err := Load(writeConfig(t, minimalConfig+"source-sslmode: verify-full\n"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "source-sslmode")
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	assert.Error(t, err)
}

func TestEnvPasswordOverride(t *testing.T) {
	t.Setenv("PGCOMPARE_REPO_PASSWORD", "from-env")
	t.Setenv("PGCOMPARE_SOURCE_PASSWORD", "src-env")

	cfg, err := Load(writeConfig(t, minimalConfig+"repo-password: from-file\n"))
	require.NoError(t, err)
	assert.Equal(t, "from-env", cfg.RepoPassword)
	assert.Equal(t, "src-env", cfg.SourcePassword)
}

func TestSideConfigs(t *testing.T) {
	cfg, err := Load(writeConfig(t, minimalConfig))
	require.NoError(t, err)

	repoCfg := cfg.Repo()
	assert.Equal(t, database.Postgres, repoCfg.Type)
	assert.Equal(t, "repo.internal", repoCfg.Host)
	assert.Equal(t, "pgcompare", repoCfg.Schema)

	source := cfg.Side("source")
	assert.Equal(t, database.Postgres, source.Type)
	assert.Equal(t, "sales", source.DBName)

	target := cfg.Side("target")
	assert.Equal(t, database.Oracle, target.Type)
	assert.Equal(t, 1521, target.Port)
}

func TestRedactedHidesPasswords(t *testing.T) {
	cfg, err := Load(writeConfig(t, minimalConfig+"repo-password: hunter2\n"))
	require.NoError(t, err)

	for _, line := range cfg.Redacted() {
		assert.NotContains(t, line, "hunter2")
		assert.NotContains(t, line, "password")
	}
}
