// Copyright 2025 Tom Barlow
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package configsource

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/fsnotify/fsnotify"
	"gopkg.in/yaml.v3"

	"github.com/pulselab/pulselab-go/internal/metrics"
	"github.com/pulselab/pulselab-go/pkg/errors"
)

// File serves configuration from a local YAML file and reloads it when
// the file changes. As with the HTTP source, a bad reload keeps the last
// good generation in place.
type File struct {
	store

	path    string
	logger  *slog.Logger
	watcher *fsnotify.Watcher

	stopCh chan struct{}
	doneCh chan struct{}
}

// NewFile loads path and starts watching it for changes. The initial
// load is fatal on failure.
func NewFile(path string, logger *slog.Logger) (*File, error) {
	if path == "" {
		return nil, &errors.ConfigError{Key: "path", Reason: "configuration file path is required"}
	}
	absPath, err := filepath.Abs(path)
	if err != nil {
		return nil, &errors.ConfigError{Key: "path", Reason: "cannot resolve path", Cause: err}
	}
	if logger == nil {
		logger = slog.Default()
	}

	s := &File{
		path:   absPath,
		logger: logger,
		stopCh: make(chan struct{}),
		doneCh: make(chan struct{}),
	}

	if err := s.reload(); err != nil {
		return nil, err
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create file watcher: %w", err)
	}
	// Watch the directory, not the file: editors replace files on save
	// and a direct watch is lost after the first rename.
	if err := watcher.Add(filepath.Dir(absPath)); err != nil {
		watcher.Close()
		return nil, fmt.Errorf("failed to watch config directory: %w", err)
	}
	s.watcher = watcher

	go s.watchLoop()
	return s, nil
}

// Close stops the watcher.
func (s *File) Close() error {
	close(s.stopCh)
	<-s.doneCh
	return s.watcher.Close()
}

func (s *File) watchLoop() {
	defer close(s.doneCh)

	for {
		select {
		case <-s.stopCh:
			return
		case event, ok := <-s.watcher.Events:
			if !ok {
				return
			}
			if event.Name != s.path {
				continue
			}
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) {
				continue
			}
			if err := s.reload(); err != nil {
				s.logger.Warn("configuration reload failed, serving previous generation",
					"path", s.path,
					"error", err.Error(),
				)
			} else {
				s.logger.Debug("configuration reloaded", "path", s.path)
			}
		case err, ok := <-s.watcher.Errors:
			if !ok {
				return
			}
			s.logger.Warn("config watcher error", "error", err.Error())
		}
	}
}

// reload parses, compiles and swaps one configuration generation.
func (s *File) reload() error {
	err := s.reloadOnce()
	if err != nil {
		metrics.ConfigRefreshes.WithLabelValues(metrics.RefreshOutcomeError).Inc()
		return err
	}
	metrics.ConfigRefreshes.WithLabelValues(metrics.RefreshOutcomeSuccess).Inc()
	return nil
}

func (s *File) reloadOnce() error {
	data, err := os.ReadFile(s.path)
	if err != nil {
		return &errors.ConfigError{Key: "path", Reason: "cannot read configuration file", Cause: err}
	}

	var doc Document
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return &errors.ConfigError{Key: "path", Reason: "invalid YAML", Cause: err}
	}

	c, err := compile(doc)
	if err != nil {
		return err
	}
	s.swap(c)
	return nil
}
