// Package tmpfile sweeps stale uploaded model files out of the temp
// directory.
package tmpfile

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"time"

	"github.com/louistrue/openBIM-service/internal/observability"
)

// UploadPattern matches the temp files the handlers spool uploads into.
const UploadPattern = "openbim-upload-*"

// Janitor periodically removes spooled uploads older than MaxAge.
// Handlers delete their own files on the happy path; the janitor catches
// files orphaned by crashes or dropped connections.
type Janitor struct {
	logger *observability.Logger
	dir    string
	maxAge time.Duration
	sweep  time.Duration
}

// NewJanitor creates a janitor over the given directory.
func NewJanitor(logger *observability.Logger, dir string, maxAge, sweep time.Duration) *Janitor {
	return &Janitor{
		logger: logger,
		dir:    dir,
		maxAge: maxAge,
		sweep:  sweep,
	}
}

// Start runs the sweep loop until the context is cancelled.
func (j *Janitor) Start(ctx context.Context) {
	if j.sweep <= 0 || j.maxAge <= 0 {
		return
	}
	go func() {
		ticker := time.NewTicker(j.sweep)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				j.SweepOnce()
			}
		}
	}()
}

// SweepOnce removes stale uploads and returns how many were deleted.
func (j *Janitor) SweepOnce() int {
	matches, err := filepath.Glob(filepath.Join(j.dir, UploadPattern))
	if err != nil {
		j.logger.Warn().Err(err).Str("dir", j.dir).Msg("Upload sweep failed")
		return 0
	}

	cutoff := time.Now().Add(-j.maxAge)
	removed := 0
	for _, path := range matches {
		info, err := os.Stat(path)
		if err != nil || info.IsDir() {
			continue
		}
		if info.ModTime().After(cutoff) {
			continue
		}
		if err := os.Remove(path); err != nil {
			if !errors.Is(err, os.ErrNotExist) {
				j.logger.Warn().Err(err).Str("path", path).Msg("Failed to remove stale upload")
			}
			continue
		}
		removed++
	}

	if removed > 0 {
		j.logger.Info().Int("removed", removed).Str("dir", j.dir).Msg("Swept stale uploads")
	}
	return removed
}
