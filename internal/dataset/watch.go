package dataset

import (
	"context"
	"fmt"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"

	"nemprice.org/internal/obs"
)

const watchDebounce = 250 * time.Millisecond

// Watch reloads the dataset whenever its file is written or replaced. The
// parent directory is watched so editors that rename into place are seen.
// It blocks until ctx is done. A failed reload keeps the previous snapshot.
func (s *Service) Watch(ctx context.Context) error {
	if s.path == "" {
		return fmt.Errorf("%w: no dataset path configured", ErrNotFound)
	}
	target, err := filepath.Abs(s.path)
	if err != nil {
		return fmt.Errorf("resolve dataset path: %w", err)
	}

	w, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create watcher: %w", err)
	}
	defer w.Close()

	if err := w.Add(filepath.Dir(target)); err != nil {
		return fmt.Errorf("watch %s: %w", filepath.Dir(target), err)
	}

	timer := time.NewTimer(watchDebounce)
	if !timer.Stop() {
		<-timer.C
	}

	for {
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil
		case ev, ok := <-w.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(ev.Name) != target {
				continue
			}
			if !ev.Has(fsnotify.Write) && !ev.Has(fsnotify.Create) && !ev.Has(fsnotify.Rename) {
				continue
			}
			timer.Reset(watchDebounce)
		case err, ok := <-w.Errors:
			if !ok {
				return nil
			}
			obs.LogEvent("warn", "dataset_watch_error", map[string]any{"error": err.Error()})
		case <-timer.C:
			st, err := s.Reload()
			if err != nil {
				obs.LogEvent("error", "dataset_reload_failed", map[string]any{
					"source": s.path,
					"error":  err.Error(),
				})
				continue
			}
			obs.LogEvent("info", "dataset_reloaded", map[string]any{
				"source":      st.Source,
				"snapshot_id": st.SnapshotID,
				"records":     st.Records,
				"regions":     st.Regions,
			})
		}
	}
}
