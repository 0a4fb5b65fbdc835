// portal - A cross-server message relay for chat channels.
// Copyright (C) 2026 Beaver Labs
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.

package portalconfig

import (
	"context"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog"
)

const reloadDebounce = 250 * time.Millisecond

// Watch reloads the config whenever the file changes and hands the parsed
// result to onChange. Parse failures are logged and skipped, keeping the
// last good config active. Blocks until ctx is cancelled.
//
// The watch is on the containing directory, not the file itself: editors
// that write via rename would otherwise silently detach the watcher.
func Watch(ctx context.Context, path string, log zerolog.Logger, onChange func(*Config)) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer func() {
		_ = watcher.Close()
	}()
	if err = watcher.Add(filepath.Dir(path)); err != nil {
		return err
	}
	log = log.With().Str("component", "config reload").Str("path", path).Logger()

	var debounce *time.Timer
	defer func() {
		if debounce != nil {
			debounce.Stop()
		}
	}()
	fileName := filepath.Base(path)
	for {
		var debounceC <-chan time.Time
		if debounce != nil {
			debounceC = debounce.C
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case evt, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if filepath.Base(evt.Name) != fileName || !evt.Op.Has(fsnotify.Write|fsnotify.Create|fsnotify.Rename) {
				continue
			}
			if debounce == nil {
				debounce = time.NewTimer(reloadDebounce)
			} else {
				debounce.Reset(reloadDebounce)
			}
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			log.Warn().Err(err).Msg("Config watcher error")
		case <-debounceC:
			debounce = nil
			cfg, err := Load(path, false)
			if err != nil {
				log.Warn().Err(err).Msg("Ignoring config change that failed to parse")
				continue
			}
			log.Info().Msg("Config reloaded")
			onChange(cfg)
		}
	}
}
