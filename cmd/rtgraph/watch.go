package main

import (
	"context"
	"fmt"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/sirupsen/logrus"
)

// watcher reports changes of a single file. Changes within the debounce
// window are reported once.
type watcher struct {
	name     string
	debounce time.Duration
	logger   logrus.FieldLogger
	fs       *fsnotify.Watcher
}

// newWatcher starts watching the file. Editors often replace the file
// instead of writing it, so its directory is watched.
func newWatcher(path string, debounce time.Duration, logger logrus.FieldLogger) (*watcher, error) {
	fs, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	name, err := filepath.Abs(path)
	if err != nil {
		fs.Close()
		return nil, err
	}
	if err := fs.Add(filepath.Dir(name)); err != nil {
		fs.Close()
		return nil, fmt.Errorf("error watching %s: %w", path, err)
	}
	return &watcher{
		name:     name,
		debounce: debounce,
		logger:   logger,
		fs:       fs,
	}, nil
}

// run calls changed after the file was written. It returns when ctx is
// done and closes the watcher.
func (w *watcher) run(ctx context.Context, changed func()) error {
	defer w.fs.Close()
	var (
		timer  *time.Timer
		timerC <-chan time.Time
	)
	defer func() {
		if timer != nil {
			timer.Stop()
		}
	}()
	for {
		select {
		case <-ctx.Done():
			return nil
		case e, ok := <-w.fs.Events:
			if !ok {
				return nil
			}
			if !w.matches(e) {
				continue
			}
			if timer == nil {
				timer = time.NewTimer(w.debounce)
			} else {
				timer.Reset(w.debounce)
			}
			timerC = timer.C
		case <-timerC:
			timerC = nil
			changed()
		case err, ok := <-w.fs.Errors:
			if !ok {
				return nil
			}
			w.logger.WithError(err).Warn("config watcher error")
		}
	}
}

func (w *watcher) matches(e fsnotify.Event) bool {
	if !e.Has(fsnotify.Write) && !e.Has(fsnotify.Create) {
		return false
	}
	name, err := filepath.Abs(e.Name)
	return err == nil && name == w.name
}
