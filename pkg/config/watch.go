/*
 * Copyright 2025 Carver Automation Corporation.
 *
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *     http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

package config

import (
	"context"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/punchsync/punchsync/pkg/logger"
)

// debounceInterval suppresses the duplicate write events editors and
// atomic-rename tools produce for a single save.
const debounceInterval = 2 * time.Second

// Watch observes a configuration file for changes and invokes onChange
// after each (debounced) write. It returns once the watcher is installed;
// the watch loop runs until ctx is canceled.
func Watch(ctx context.Context, path string, log logger.Logger, onChange func()) error {
	absPath, err := filepath.Abs(path)
	if err != nil {
		return err
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}

	// Watch the directory: editors replace files by rename, which drops
	// a watch installed on the file itself.
	if err := watcher.Add(filepath.Dir(absPath)); err != nil {
		_ = watcher.Close()
		return err
	}

	go func() {
		defer func() {
			_ = watcher.Close()
		}()

		var lastChange time.Time

		for {
			select {
			case <-ctx.Done():
				return
			case event, ok := <-watcher.Events:
				if !ok {
					return
				}

				if filepath.Clean(event.Name) != absPath {
					continue
				}

				if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) {
					continue
				}

				now := time.Now()
				if now.Sub(lastChange) < debounceInterval {
					continue
				}

				lastChange = now

				log.Info().Str("path", absPath).Msg("Configuration file changed")
				onChange()
			case err, ok := <-watcher.Errors:
				if !ok {
					return
				}

				log.Warn().Err(err).Msg("Config watcher error")
			}
		}
	}()

	return nil
}
