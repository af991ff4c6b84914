// Package watcher hot-reloads the automation script templates: any edit
// under the scripts directory invalidates the dispatcher's cache so the
// next press reads the new script.
package watcher

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
)

const debounce = 500 * time.Millisecond

type Service struct {
	dir      string
	logger   *slog.Logger
	onChange func()
	watcher  *fsnotify.Watcher
}

func New(dir string, logger *slog.Logger, onChange func()) (*Service, error) {
	fileWatcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("create fsnotify watcher: %w", err)
	}
	return &Service{
		dir:      dir,
		logger:   logger.With("component", "watcher"),
		onChange: onChange,
		watcher:  fileWatcher,
	}, nil
}

func (s *Service) Start(ctx context.Context) error {
	defer s.watcher.Close()

	if err := s.watcher.Add(s.dir); err != nil {
		return fmt.Errorf("watch scripts dir %s: %w", s.dir, err)
	}
	s.logger.Info("scripts watcher started", "dir", s.dir)

	var pending *time.Timer
	fire := make(chan struct{}, 1)
	for {
		select {
		case <-ctx.Done():
			s.logger.Info("scripts watcher stopped")
			return nil
		case <-fire:
			s.logger.Info("script templates changed, cache invalidated")
			s.onChange()
		case event := <-s.watcher.Events:
			if !s.relevant(event) {
				continue
			}
			if pending != nil {
				pending.Stop()
			}
			pending = time.AfterFunc(debounce, func() {
				select {
				case fire <- struct{}{}:
				default:
				}
			})
		case err := <-s.watcher.Errors:
			if err != nil {
				s.logger.Error("file watcher error", "error", err)
			}
		}
	}
}

func (s *Service) relevant(event fsnotify.Event) bool {
	switch filepath.Ext(event.Name) {
	case ".applescript", ".txt":
	default:
		return false
	}
	return event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename|fsnotify.Remove) != 0
}
