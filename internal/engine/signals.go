package engine

import (
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

// SignalWatcher notices out-of-band stop requests delivered as files in
// a signals directory. A watcher catches signals immediately; callers
// that poll ShouldStop also get a direct file check as a fallback.
type SignalWatcher struct {
	signalsDir string

	mu         sync.RWMutex
	stopSignal bool

	watcher *fsnotify.Watcher
	done    chan struct{}
}

// NewSignalWatcher creates a watcher over <dir>/.taskforge/signals,
// creating the directory if needed. A failed fsnotify setup degrades to
// polling; it is not an error.
func NewSignalWatcher(dir string) (*SignalWatcher, error) {
	signalsDir := filepath.Join(dir, ".taskforge", "signals")
	if err := os.MkdirAll(signalsDir, 0755); err != nil {
		return nil, err
	}

	sw := &SignalWatcher{
		signalsDir: signalsDir,
		done:       make(chan struct{}),
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return sw, nil
	}
	if err := watcher.Add(signalsDir); err != nil {
		watcher.Close()
		return sw, nil
	}
	sw.watcher = watcher
	go sw.watch()

	return sw, nil
}

func (sw *SignalWatcher) watch() {
	for {
		select {
		case <-sw.done:
			return
		case event, ok := <-sw.watcher.Events:
			if !ok {
				return
			}
			if filepath.Base(event.Name) == "stop" &&
				(event.Op&fsnotify.Create != 0 || event.Op&fsnotify.Write != 0) {
				sw.mu.Lock()
				sw.stopSignal = true
				sw.mu.Unlock()
			}
		case <-sw.watcher.Errors:
			// Keep watching; ShouldStop still polls the file.
		}
	}
}

// ShouldStop returns true once a stop signal has been received.
func (sw *SignalWatcher) ShouldStop() bool {
	stopPath := filepath.Join(sw.signalsDir, "stop")
	if _, err := os.Stat(stopPath); err == nil {
		sw.mu.Lock()
		sw.stopSignal = true
		sw.mu.Unlock()
	}

	sw.mu.RLock()
	defer sw.mu.RUnlock()
	return sw.stopSignal
}

// SendStop writes the stop signal file.
func (sw *SignalWatcher) SendStop() error {
	path := filepath.Join(sw.signalsDir, "stop")
	return os.WriteFile(path, []byte(time.Now().Format(time.RFC3339)), 0644)
}

// Clear removes any pending stop signal.
func (sw *SignalWatcher) Clear() error {
	sw.mu.Lock()
	sw.stopSignal = false
	sw.mu.Unlock()

	path := filepath.Join(sw.signalsDir, "stop")
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}

// Close stops the watcher goroutine.
func (sw *SignalWatcher) Close() error {
	close(sw.done)
	if sw.watcher != nil {
		return sw.watcher.Close()
	}
	return nil
}
