package tmpfile

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/louistrue/openBIM-service/internal/observability"
)

func testLogger() *observability.Logger {
	return observability.NewLogger(observability.LogConfig{Level: "error", Format: "json"})
}

func writeAged(t *testing.T, dir, name string, age time.Duration) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte("x"), 0o644))
	if age > 0 {
		stamp := time.Now().Add(-age)
		require.NoError(t, os.Chtimes(path, stamp, stamp))
	}
	return path
}

func TestJanitor_SweepOnce_RemovesStaleUploads(t *testing.T) {
	dir := t.TempDir()
	stale := writeAged(t, dir, "openbim-upload-123", 2*time.Hour)
	fresh := writeAged(t, dir, "openbim-upload-456", 0)
	other := writeAged(t, dir, "unrelated.json", 2*time.Hour)

	j := NewJanitor(testLogger(), dir, time.Hour, time.Hour)
	removed := j.SweepOnce()

	assert.Equal(t, 1, removed)
	assert.NoFileExists(t, stale)
	assert.FileExists(t, fresh)
	assert.FileExists(t, other)
}

func TestJanitor_SweepOnce_EmptyDir(t *testing.T) {
	j := NewJanitor(testLogger(), t.TempDir(), time.Hour, time.Hour)

	assert.Equal(t, 0, j.SweepOnce())
}

func TestJanitor_SweepOnce_SkipsDirectories(t *testing.T) {
	dir := t.TempDir()
	sub := filepath.Join(dir, "openbim-upload-dir")
	require.NoError(t, os.Mkdir(sub, 0o755))
	stamp := time.Now().Add(-2 * time.Hour)
	require.NoError(t, os.Chtimes(sub, stamp, stamp))

	j := NewJanitor(testLogger(), dir, time.Hour, time.Hour)

	assert.Equal(t, 0, j.SweepOnce())
	assert.DirExists(t, sub)
}
