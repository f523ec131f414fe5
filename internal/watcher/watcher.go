// Package watcher observes the per-user generated directories and logs
// artifact writes made by the external engine.
package watcher

import (
	"context"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"sync"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"
)

var finalPDFName = regexp.MustCompile(`^docentlik_atif_dosyasi_\d{8}_\d{6}\.pdf$`)

// ArtifactWatcher watches the base output directory tree. The engine is a
// black box writing files from a separate process; the watcher gives the
// server visibility into those writes, and announces when a final PDF
// lands (a generation run has completed its artifact set).
type ArtifactWatcher struct {
	base     string
	watcher  *fsnotify.Watcher
	logger   *zap.Logger
	mu       sync.Mutex
	started  bool
	stopOnce sync.Once
	done     chan struct{}
}

// NewArtifactWatcher creates a watcher for the given base output directory.
func NewArtifactWatcher(base string, logger *zap.Logger) *ArtifactWatcher {
	return &ArtifactWatcher{
		base:   base,
		logger: logger,
		done:   make(chan struct{}),
	}
}

// Start begins watching. It runs until ctx is cancelled or Stop is
// called. User workspaces created after Start are picked up as their
// directories appear.
func (w *ArtifactWatcher) Start(ctx context.Context) error {
	w.mu.Lock()
	if w.started {
		w.mu.Unlock()
		return nil
	}
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		w.mu.Unlock()
		return err
	}
	w.watcher = watcher
	w.started = true
	w.mu.Unlock()

	if err := os.MkdirAll(w.base, 0755); err != nil {
		return err
	}
	if err := w.addTree(w.base); err != nil {
		return err
	}

	go w.loop(ctx)
	return nil
}

// addTree registers base and every directory below it.
func (w *ArtifactWatcher) addTree(root string) error {
	return filepath.WalkDir(root, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		if d.IsDir() {
			if addErr := w.watcher.Add(path); addErr != nil {
				w.logger.Warn("watch add failed", zap.String("path", path), zap.Error(addErr))
			}
		}
		return nil
	})
}

func (w *ArtifactWatcher) loop(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			w.Stop()
			return
		case <-w.done:
			return
		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			w.handleEvent(event)
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			w.logger.Warn("watch error", zap.Error(err))
		}
	}
}

func (w *ArtifactWatcher) handleEvent(event fsnotify.Event) {
	if !event.Has(fsnotify.Create) {
		return
	}
	info, err := os.Stat(event.Name)
	if err != nil {
		return
	}
	if info.IsDir() {
		// New user workspace or subdirectory: start watching it too.
		_ = w.addTree(event.Name)
		return
	}
	if !strings.Contains(event.Name, string(filepath.Separator)+"generated"+string(filepath.Separator)) {
		return
	}
	name := filepath.Base(event.Name)
	if finalPDFName.MatchString(name) {
		w.logger.Info("artifact set completed", zap.String("path", event.Name))
		return
	}
	w.logger.Debug("artifact written", zap.String("path", event.Name))
}

// Stop stops the watcher. Safe to call more than once.
func (w *ArtifactWatcher) Stop() {
	w.stopOnce.Do(func() {
		close(w.done)
		w.mu.Lock()
		if w.watcher != nil {
			_ = w.watcher.Close()
		}
		w.mu.Unlock()
	})
}
