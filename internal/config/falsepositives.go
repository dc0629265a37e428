package config

import (
	"context"
	"path/filepath"
	"sync/atomic"

	"github.com/fsnotify/fsnotify"

	"github.com/turtacn/PII-Anonymizer/internal/infrastructure/monitoring/logging"
	"github.com/turtacn/PII-Anonymizer/internal/intelligence/pii"
)

// FalsePositiveReloader serves the false-positive table from a JSON file and
// swaps in a fresh table whenever the file changes.  It satisfies
// pii.FalsePositiveSource, so a running pipeline picks up edits without a
// restart.
type FalsePositiveReloader struct {
	path   string
	table  atomic.Pointer[pii.FalsePositiveTable]
	logger logging.Logger
}

// NewFalsePositiveReloader loads path once.  A missing or malformed file
// leaves an empty table and is logged, not returned.
func NewFalsePositiveReloader(path string, logger logging.Logger) *FalsePositiveReloader {
	if logger == nil {
		logger = logging.NewNopLogger()
	}
	r := &FalsePositiveReloader{path: path, logger: logger.Named("false_positives")}
	r.table.Store(pii.NewFalsePositiveTable(nil))
	_ = r.Reload()
	return r
}

// FalsePositives implements pii.FalsePositiveSource.
func (r *FalsePositiveReloader) FalsePositives() *pii.FalsePositiveTable {
	return r.table.Load()
}

// Reload re-reads the file.  On failure the previous table stays active.
func (r *FalsePositiveReloader) Reload() error {
	t, err := pii.LoadFalsePositiveTable(r.path)
	if err != nil {
		r.logger.Warn("false-positive list not loaded", logging.String("path", r.path), logging.Err(err))
		return err
	}
	r.table.Store(t)
	r.logger.Info("false-positive list loaded",
		logging.String("path", r.path),
		logging.Int("entries", t.Len()),
		logging.Strings("labels", t.Labels()),
	)
	return nil
}

// Watch reloads on every write, create or rename of the file until ctx is
// done.  The parent directory is watched so atomic replace-by-rename is seen.
func (r *FalsePositiveReloader) Watch(ctx context.Context) error {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer w.Close()

	if err := w.Add(filepath.Dir(r.path)); err != nil {
		return err
	}
	target := filepath.Clean(r.path)

	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-w.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(ev.Name) != target {
				continue
			}
			if ev.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) != 0 {
				_ = r.Reload()
			}
		case err, ok := <-w.Errors:
			if !ok {
				return nil
			}
			r.logger.Warn("false-positive watcher error", logging.Err(err))
		}
	}
}

//Personal.AI order the ending
