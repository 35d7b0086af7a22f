package rbac

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/fsnotify/fsnotify"

	"github.com/digiklausur/data-gateway/pkg/observability"
)

// WatchPolicyFile reloads the policy file into the engine whenever it
// changes, until ctx is done. Invalid edits are logged and skipped; the
// engine keeps its last good policy.
//
// The watch is on the containing directory so editors that replace the
// file (rename-over) are picked up too.
func WatchPolicyFile(ctx context.Context, path string, engine *Engine, log *observability.Logger) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create policy watcher: %w", err)
	}

	dir := filepath.Dir(path)
	if err := watcher.Add(dir); err != nil {
		watcher.Close()
		return fmt.Errorf("failed to watch %s: %w", dir, err)
	}

	target, err := filepath.Abs(path)
	if err != nil {
		watcher.Close()
		return err
	}

	go func() {
		defer watcher.Close()
		for {
			select {
			case <-ctx.Done():
				return
			case event, ok := <-watcher.Events:
				if !ok {
					return
				}
				name, _ := filepath.Abs(event.Name)
				if name != target {
					continue
				}
				if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) && !event.Has(fsnotify.Rename) {
					continue
				}
				reloadPolicy(path, engine, log)
			case err, ok := <-watcher.Errors:
				if !ok {
					return
				}
				log.WithError(err).Warn("policy watcher error")
			}
		}
	}()

	log.WithField("path", path).Info("watching permission policy file")
	return nil
}

func reloadPolicy(path string, engine *Engine, log *observability.Logger) {
	policy, err := LoadPolicyFile(path)
	if err != nil {
		log.WithError(err).WithField("path", path).Warn("policy reload skipped")
		return
	}
	if err := engine.Update(policy); err != nil {
		log.WithError(err).WithField("path", path).Warn("policy reload skipped")
		return
	}
	log.WithField("path", path).Info("permission policy reloaded")
}
