package config

import (
	"os"
	"path/filepath"
	"testing"

	"kuanb/gosm-linematch/matching"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const validConfig = `
detection:
  distanceTolerance: 300
  detectionPercentage: 0.9
  trajectoryBatchSize: 5
  pathBatchSize: 5
  memoryBudgetMB: 512
correction:
  distanceTolerance: 300
  minGroupLength: 3
database:
  path: /var/lib/linematch/rio.db
kernel: parallel
`

func TestParse(t *testing.T) {
	cfg, err := Parse([]byte(validConfig))
	require.NoError(t, err)

	assert.Equal(t, matching.DetectionConfig{
		DistanceTolerance:   300,
		DetectionPercentage: 0.9,
		TrajectoryBatchSize: 5,
		PathBatchSize:       5,
		MemoryBudgetMB:      512,
		Prefilter:           true,
	}, cfg.Detection)
	assert.Equal(t, 3, cfg.Correction.MinGroupLength)
	assert.Equal(t, "/var/lib/linematch/rio.db", cfg.Database.Path)
	assert.Equal(t, DefaultPort, cfg.Server.Port)
	assert.Equal(t, "parallel", cfg.Kernel)
	assert.False(t, cfg.Filters.Any())
}

func TestParse_Invalid(t *testing.T) {
	tests := map[string]string{
		"missing detection section": `
correction: {distanceTolerance: 300, minGroupLength: 3}
database: {path: x.db}
`,
		"non numeric tolerance": `
detection: {distanceTolerance: far, detectionPercentage: 0.9, trajectoryBatchSize: 5, pathBatchSize: 5}
correction: {distanceTolerance: 300, minGroupLength: 3}
database: {path: x.db}
`,
		"percentage out of range": `
detection: {distanceTolerance: 300, detectionPercentage: 1.5, trajectoryBatchSize: 5, pathBatchSize: 5}
correction: {distanceTolerance: 300, minGroupLength: 3}
database: {path: x.db}
`,
		"missing database": `
detection: {distanceTolerance: 300, detectionPercentage: 0.9, trajectoryBatchSize: 5, pathBatchSize: 5}
correction: {distanceTolerance: 300, minGroupLength: 3}
`,
		"unknown kernel": `
detection: {distanceTolerance: 300, detectionPercentage: 0.9, trajectoryBatchSize: 5, pathBatchSize: 5}
correction: {distanceTolerance: 300, minGroupLength: 3}
database: {path: x.db}
kernel: gpu
`,
		"missing filter file": `
detection: {distanceTolerance: 300, detectionPercentage: 0.9, trajectoryBatchSize: 5, pathBatchSize: 5}
correction: {distanceTolerance: 300, minGroupLength: 3}
database: {path: x.db}
filters: {busWhitelist: /nonexistent/buses.txt}
`,
	}
	for name, data := range tests {
		t.Run(name, func(t *testing.T) {
			_, err := Parse([]byte(data))
			assert.ErrorIs(t, err, matching.ErrInvalidConfig)
		})
	}
}

func TestLoad(t *testing.T) {
	dir := t.TempDir()
	lines := filepath.Join(dir, "lines.txt")
	require.NoError(t, os.WriteFile(lines, []byte("474\n"), 0o644))

	path := filepath.Join(dir, "config.yml")
	data := validConfig + "filters:\n  lineWhitelist: " + lines + "\nserver:\n  port: 9090\n"
	require.NoError(t, os.WriteFile(path, []byte(data), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 9090, cfg.Server.Port)
	assert.Equal(t, lines, cfg.Filters.LineWhitelist)
	assert.True(t, cfg.Filters.Any())

	_, err = Load(filepath.Join(dir, "missing.yml"))
	assert.Error(t, err)
	assert.NotErrorIs(t, err, matching.ErrInvalidConfig)
}
