package sysinfo

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGetMetricsCountsUploads(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "avatars"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "avatars", "a.png"), make([]byte, 1024), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "avatars", "b.png"), make([]byte, 2048), 0o644))

	m, err := GetMetrics(context.Background(), dir)
	require.NoError(t, err)
	assert.Equal(t, 2, m.UploadFiles)
	assert.InDelta(t, 3.0/1024, m.UploadsMB, 1e-9)
	assert.Positive(t, m.CPUCount)
	assert.NotEmpty(t, m.GoVersion)
}

func TestGetMetricsMissingUploadDir(t *testing.T) {
	m, err := GetMetrics(context.Background(), filepath.Join(t.TempDir(), "missing"))
	require.NoError(t, err)
	assert.Zero(t, m.UploadFiles)
}

func TestGetMemoryInfo(t *testing.T) {
	path := filepath.Join(t.TempDir(), "meminfo")
	data := "MemTotal:       8388608 kB\nMemFree:        1048576 kB\nMemAvailable:   2097152 kB\n"
	require.NoError(t, os.WriteFile(path, []byte(data), 0o644))

	var m Metrics
	require.NoError(t, getMemoryInfo(path, &m))
	assert.InDelta(t, 8.0, m.MemoryTotalGB, 1e-9)
	assert.InDelta(t, 2.0, m.MemoryFreeGB, 1e-9)
	assert.InDelta(t, 6.0, m.MemoryUsedGB, 1e-9)
}
