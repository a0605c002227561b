package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaults(t *testing.T) {
	opts := Default()
	assert.Equal(t, 5, opts.MaxDepth)
	assert.Equal(t, 500, opts.MaxPages)
	assert.Equal(t, 8, opts.CrawlWorkers)
	assert.Equal(t, 16, opts.ScanWorkers)
	assert.Equal(t, 10*time.Second, opts.RequestTimeout)
	assert.Equal(t, 15*time.Second, opts.TimingTimeout)
	assert.Equal(t, 5*time.Second, opts.TimingDelay)
}

func TestLoadOverridesDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "scan.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
max_depth: 3
max_pages: 50
scan_workers: 4
request_timeout: 2s
requests_per_second: 10
seed: 99
`), 0o644))

	opts, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 3, opts.MaxDepth)
	assert.Equal(t, 50, opts.MaxPages)
	assert.Equal(t, 4, opts.ScanWorkers)
	assert.Equal(t, 2*time.Second, opts.RequestTimeout)
	assert.Equal(t, 10.0, opts.RequestsPerSecond)
	assert.Equal(t, int64(99), opts.Seed)
	// Untouched fields keep their defaults.
	assert.Equal(t, 8, opts.CrawlWorkers)
	assert.Equal(t, 15*time.Second, opts.TimingTimeout)
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	assert.Error(t, err)
}

func TestLoadMalformedYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.yaml")
	require.NoError(t, os.WriteFile(path, []byte("max_depth: [not an int"), 0o644))

	_, err := Load(path)
	assert.Error(t, err)
}
