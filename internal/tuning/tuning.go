// Package tuning watches a small JSON config file and republishes predictor
// tuning parameters (spec.md §4.8) without requiring a process restart,
// grounded on internal/runtime/vfs's fsnotify.Watcher wrapper.
package tuning

import (
	"encoding/json"
	"os"
	"sync"
	"sync/atomic"

	"github.com/fsnotify/fsnotify"
)

// Params holds the subset of allocator.Config the operator may want to
// adjust at runtime: the predictor's fuzz-zone width and compress threshold.
type Params struct {
	PredictorFuzz      int    `json:"predictor_fuzz"`
	PCompressThreshold uint64 `json:"pcompress_threshold"`
}

// Watcher reloads Params from a JSON file whenever it changes on disk and
// exposes the latest value via Current, lock-free on the read side.
type Watcher struct {
	path string
	w    *fsnotify.Watcher

	current atomic.Pointer[Params]

	closeOnce sync.Once
	done      chan struct{}
}

// New starts watching path, loading its initial contents synchronously so
// Current never returns a zero Params before the first successful read.
func New(path string, fallback Params) (*Watcher, error) {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}

	t := &Watcher{path: path, w: watcher, done: make(chan struct{})}
	t.current.Store(&fallback)

	if p, err := readParams(path); err == nil {
		t.current.Store(p)
	}

	if err := watcher.Add(path); err != nil {
		watcher.Close()
		return nil, err
	}

	go t.loop()

	return t, nil
}

// Current returns the most recently loaded Params. Safe for concurrent use
// by any number of Handles.
func (t *Watcher) Current() Params {
	return *t.current.Load()
}

func (t *Watcher) loop() {
	for {
		select {
		case ev, ok := <-t.w.Events:
			if !ok {
				return
			}

			if ev.Op&(fsnotify.Write|fsnotify.Create) == 0 {
				continue
			}

			if p, err := readParams(t.path); err == nil {
				t.current.Store(p)
			}
		case _, ok := <-t.w.Errors:
			if !ok {
				return
			}
		case <-t.done:
			return
		}
	}
}

// Close stops the underlying filesystem watch.
func (t *Watcher) Close() error {
	t.closeOnce.Do(func() { close(t.done) })
	return t.w.Close()
}

func readParams(path string) (*Params, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var p Params
	if err := json.Unmarshal(b, &p); err != nil {
		return nil, err
	}

	return &p, nil
}
