package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadFallsBackToDefaultsWhenFileMissing(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	require.NoError(t, err)
	assert.Equal(t, Default().Threshold, cfg.Threshold)
}

func TestLoadAppliesYAMLOverrides(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, ".drift.yaml")
	os.WriteFile(path, []byte("threshold: 0.5\noutputDir: custom-output\n"), 0o644)

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 0.5, cfg.Threshold)
	assert.Equal(t, "custom-output", cfg.OutputDir)
}

func TestLoadRejectsInvalidThreshold(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, ".drift.yaml")
	os.WriteFile(path, []byte("threshold: 1.5\n"), 0o644)

	_, err := Load(path)
	assert.Error(t, err, "expected error for out-of-range threshold")
}

func TestLoadAppliesEnvOverride(t *testing.T) {
	t.Setenv("DRIFT_THRESHOLD", "0.7")
	cfg, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	require.NoError(t, err)
	assert.Equal(t, 0.7, cfg.Threshold)
}
