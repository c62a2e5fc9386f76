package ingest

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

// Watch re-ingests files as they change under the extractor's root.
// Create and write events re-run extraction and chunking for the file
// after a per-path quiet period; remove and rename events delete the
// file's chunk set. New directories are watched as they appear. Watch
// blocks until ctx is done.
//
// Watch only maintains the local chunk store; delivering updates to the
// backend is a separate upload run.
func (p *Pipeline) Watch(ctx context.Context) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("creating watcher: %w", err)
	}
	defer watcher.Close()

	if err := addRecursive(watcher, p.extractor.Root()); err != nil {
		return fmt.Errorf("watching %s: %w", p.extractor.Root(), err)
	}

	deb := newDebouncer(p.debounce)
	defer deb.stop()

	p.logger.Info("watching for changes",
		"root", p.extractor.Root(), "debounce", p.debounce)

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			p.handleEvent(ctx, watcher, deb, event)

		case watchErr, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			p.logger.Error("watch error", "err", watchErr)
		}
	}
}

// handleEvent maps one filesystem event to a pipeline action. Hidden
// files and office lock files are ignored, matching the walker's rules.
func (p *Pipeline) handleEvent(ctx context.Context, watcher *fsnotify.Watcher, deb *debouncer, event fsnotify.Event) {
	name := filepath.Base(event.Name)
	if strings.HasPrefix(name, ".") || strings.HasPrefix(name, "~$") {
		return
	}

	switch {
	case event.Op.Has(fsnotify.Create):
		if info, statErr := os.Stat(event.Name); statErr == nil && info.IsDir() {
			if err := p.watchTree(ctx, watcher, deb, event.Name); err != nil {
				p.logger.Error("watching new directory", "path", event.Name, "err", err)
			}
			return
		}
		deb.schedule(event.Name, func() { p.reingest(ctx, event.Name) })

	case event.Op.Has(fsnotify.Write):
		deb.schedule(event.Name, func() { p.reingest(ctx, event.Name) })

	case event.Op.Has(fsnotify.Remove), event.Op.Has(fsnotify.Rename):
		deb.cancel(event.Name)
		if err := p.RemoveFile(ctx, event.Name); err != nil {
			p.logger.Error("removing document", "path", event.Name, "err", err)
		}
	}
}

// reingest runs one file through the pipeline after its quiet period.
func (p *Pipeline) reingest(ctx context.Context, path string) {
	info, err := os.Stat(path)
	if err != nil {
		// Gone again already; the remove event cleans up.
		return
	}
	if info.IsDir() {
		return
	}
	if info.Size() > p.extractor.MaxFileSize() {
		p.logger.Warn("skipping oversized file", "path", path, "size", info.Size())
		return
	}

	n, err := p.IngestFile(ctx, path)
	switch {
	case err == nil:
		p.logger.Info("re-ingested file", "path", path, "chunks", n)
	case errors.Is(err, context.Canceled):
	case skippable(err):
		p.logger.Warn("skipping file", "path", path, "reason", err)
	default:
		p.logger.Error("re-ingest failed", "path", path, "err", err)
	}
}

// addRecursive registers root and every non-hidden subdirectory.
func addRecursive(watcher *fsnotify.Watcher, root string) error {
	return filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() {
			return nil
		}
		if path != root && strings.HasPrefix(d.Name(), ".") {
			return fs.SkipDir
		}
		return watcher.Add(path)
	})
}

// watchTree registers a directory that appeared mid-watch and schedules
// any files already inside it; those arrived before the watch did and
// will not emit their own events.
func (p *Pipeline) watchTree(ctx context.Context, watcher *fsnotify.Watcher, deb *debouncer, root string) error {
	return filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}

		name := d.Name()
		if d.IsDir() {
			if path != root && strings.HasPrefix(name, ".") {
				return fs.SkipDir
			}
			return watcher.Add(path)
		}

		if strings.HasPrefix(name, ".") || strings.HasPrefix(name, "~$") {
			return nil
		}
		deb.schedule(path, func() { p.reingest(ctx, path) })
		return nil
	})
}

// debouncer coalesces bursts of events per key into one callback after
// a quiet period. Editors and copy tools emit several writes per save;
// only the last one should trigger work.
type debouncer struct {
	delay time.Duration

	mu      sync.Mutex
	timers  map[string]*time.Timer
	stopped bool
}

func newDebouncer(delay time.Duration) *debouncer {
	return &debouncer{
		delay:  delay,
		timers: make(map[string]*time.Timer),
	}
}

// schedule runs fn after the quiet period, restarting the clock when
// the key is scheduled again first.
func (d *debouncer) schedule(key string, fn func()) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.stopped {
		return
	}

	if t, ok := d.timers[key]; ok {
		t.Stop()
	}
	d.timers[key] = time.AfterFunc(d.delay, func() {
		d.mu.Lock()
		delete(d.timers, key)
		stopped := d.stopped
		d.mu.Unlock()

		if !stopped {
			fn()
		}
	})
}

// cancel drops any pending callback for key.
func (d *debouncer) cancel(key string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if t, ok := d.timers[key]; ok {
		t.Stop()
		delete(d.timers, key)
	}
}

// stop cancels everything; the debouncer is unusable afterwards.
func (d *debouncer) stop() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.stopped = true
	for key, t := range d.timers {
		t.Stop()
		delete(d.timers, key)
	}
}
