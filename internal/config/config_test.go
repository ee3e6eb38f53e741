package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefault_IsValid(t *testing.T) {
	require.NoError(t, Default().Validate())
}

func TestLoad_NoPathUsesDefaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, Default().Batch.Provider, cfg.Batch.Provider)
}

func TestLoad_MissingFileIsSilentlySkipped(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "does-not-exist.json"))
	require.NoError(t, err)
	assert.Equal(t, Default().Store.DSN, cfg.Store.DSN)
}

func TestLoad_FileOverridesDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cfg.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"batch":{"provider":"pid","constant_size":99}}`), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "pid", cfg.Batch.Provider)
	assert.Equal(t, 99, cfg.Batch.ConstantSize)
	// Unspecified fields keep their default values.
	assert.Equal(t, Default().Dispatch.Workers, cfg.Dispatch.Workers)
}

func TestLoad_EnvOverridesFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cfg.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"batch":{"provider":"aimd"}}`), 0o644))

	t.Setenv("POTOK_BATCH_PROVIDER", "constant")
	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "constant", cfg.Batch.Provider)
}

func TestLoad_InvalidEnvIntIsIgnored(t *testing.T) {
	t.Setenv("POTOK_DISPATCH_WORKERS", "not-a-number")
	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, Default().Dispatch.Workers, cfg.Dispatch.Workers)
}

func TestLoad_InvalidResultFailsValidation(t *testing.T) {
	t.Setenv("POTOK_BATCH_PROVIDER", "nonsense")
	_, err := Load("")
	assert.Error(t, err)
}

func TestValidate_RejectsEmptyDSN(t *testing.T) {
	cfg := Default()
	cfg.Store.DSN = ""
	assert.Error(t, cfg.Validate())
}

func TestValidate_RejectsInconsistentAIMDBounds(t *testing.T) {
	cfg := Default()
	cfg.Batch.AIMDMinSize = 100
	cfg.Batch.AIMDMaxSize = 10
	assert.Error(t, cfg.Validate())
}

func TestValidate_RejectsNegativeTTL(t *testing.T) {
	cfg := Default()
	cfg.Timeout.QueuedTTL = -1
	assert.Error(t, cfg.Validate())
}

func TestValidate_RejectsZeroDispatchWorkers(t *testing.T) {
	cfg := Default()
	cfg.Dispatch.Workers = 0
	assert.Error(t, cfg.Validate())
}

func TestValidate_RejectsUnknownLogLevel(t *testing.T) {
	cfg := Default()
	cfg.Logging.Level = "verbose"
	assert.Error(t, cfg.Validate())
}

func TestValidate_RejectsUnknownLogFormat(t *testing.T) {
	cfg := Default()
	cfg.Logging.Format = "xml"
	assert.Error(t, cfg.Validate())
}

func TestValidate_RejectsZeroSnapshotInterval(t *testing.T) {
	cfg := Default()
	cfg.Telemetry.SnapshotInterval = 0
	assert.Error(t, cfg.Validate())
}

func TestValidate_RejectsZeroHistorySize(t *testing.T) {
	cfg := Default()
	cfg.Telemetry.HistorySize = 0
	assert.Error(t, cfg.Validate())
}

func TestValidate_AcceptsEachKnownProvider(t *testing.T) {
	for _, p := range []string{"constant", "aimd", "pid"} {
		cfg := Default()
		cfg.Batch.Provider = p
		assert.NoError(t, cfg.Validate(), "provider %q should validate", p)
	}
}
