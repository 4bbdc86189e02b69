package secrets

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"
)

// WatchAllowlist reloads the allowlist file whenever it changes and blocks
// until ctx is done. It returns immediately when scrubbing is disabled or
// no allowlist file is configured. A file that fails to parse keeps the
// previous allowlist.
func (s *Scrubber) WatchAllowlist(ctx context.Context) error {
	if !s.enabled || s.allowlistFile == "" {
		return nil
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("creating allowlist watcher: %w", err)
	}
	defer func() { _ = watcher.Close() }()

	// Watch the directory: editors often replace the file rather than write it.
	target := filepath.Clean(s.allowlistFile)
	if err := watcher.Add(filepath.Dir(target)); err != nil {
		return fmt.Errorf("watching %s: %w", filepath.Dir(target), err)
	}
	s.logger.Info("watching secrets allowlist", zap.String("path", target))

	for {
		select {
		case <-ctx.Done():
			return nil
		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(event.Name) != target || !event.Has(fsnotify.Write|fsnotify.Create) {
				continue
			}
			if err := s.reloadAllowlist(); err != nil {
				s.logger.Warn("allowlist reload failed, keeping previous", zap.Error(err))
			}
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			s.logger.Warn("allowlist watcher error", zap.Error(err))
		}
	}
}

func (s *Scrubber) reloadAllowlist() error {
	allowlist, err := LoadAllowlist(s.allowlistFile)
	if err != nil {
		return err
	}
	compiled, err := compileAll(allowlist.Regexes)
	if err != nil {
		return err
	}
	s.allowMu.Lock()
	s.allow = compiled
	s.allowMu.Unlock()
	s.logger.Info("secrets allowlist reloaded", zap.Int("patterns", len(compiled)))
	return nil
}
