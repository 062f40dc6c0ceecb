package config

import (
	"log/slog"
	"path/filepath"

	"github.com/fsnotify/fsnotify"
)

// Watch reloads yamlPath on every write event and invokes onReload with
// the freshly parsed config. Only a narrow slice of fields are meant to be
// hot-reloaded in practice (log level, poll intervals); callers that
// apply onReload's result should ignore fields that require a restart
// (database DSN, server addr).
func Watch(yamlPath string, log *slog.Logger, onReload func(*Config)) (*fsnotify.Watcher, error) {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	dir := filepath.Dir(yamlPath)
	if err := watcher.Add(dir); err != nil {
		watcher.Close()
		return nil, err
	}

	go func() {
		for {
			select {
			case ev, ok := <-watcher.Events:
				if !ok {
					return
				}
				if filepath.Clean(ev.Name) != filepath.Clean(yamlPath) {
					continue
				}
				if ev.Op&(fsnotify.Write|fsnotify.Create) == 0 {
					continue
				}
				cfg, err := Load(yamlPath)
				if err != nil {
					log.Warn("config: reload failed, keeping previous config", "error", err)
					continue
				}
				log.Info("config: reloaded", "path", yamlPath)
				onReload(cfg)
			case err, ok := <-watcher.Errors:
				if !ok {
					return
				}
				log.Warn("config: watcher error", "error", err)
			}
		}
	}()

	return watcher, nil
}
