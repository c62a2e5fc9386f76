package ingest

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/syntropic/vecfeed/core"
	"github.com/syntropic/vecfeed/storage"
)

const testDebounce = 20 * time.Millisecond

func newEventFixture(t *testing.T, root string) (*Pipeline, storage.ChunkRepository, *fsnotify.Watcher, *debouncer) {
	t.Helper()

	pipeline, repo := newTestPipeline(t, root, WithDebounce(testDebounce))

	watcher, err := fsnotify.NewWatcher()
	require.NoError(t, err)
	t.Cleanup(func() { watcher.Close() })

	deb := newDebouncer(testDebounce)
	t.Cleanup(deb.stop)

	return pipeline, repo, watcher, deb
}

func hasChunks(repo storage.ChunkRepository, rel string) func() bool {
	return func() bool {
		_, err := repo.GetChunks(context.Background(), core.DocIDFromPath(rel))
		return err == nil
	}
}

func TestHandleEventCreateIngests(t *testing.T) {
	root := t.TempDir()
	path := writeFile(t, root, "policies/a.txt", "fresh content worth chunking")
	pipeline, repo, watcher, deb := newEventFixture(t, root)

	pipeline.handleEvent(context.Background(), watcher, deb,
		fsnotify.Event{Name: path, Op: fsnotify.Create})

	assert.Eventually(t, hasChunks(repo, "policies/a.txt"), 2*time.Second, 10*time.Millisecond)
}

func TestHandleEventWriteReplacesChunks(t *testing.T) {
	root := t.TempDir()
	path := writeFile(t, root, "a.txt", "the first version")
	pipeline, repo, watcher, deb := newEventFixture(t, root)

	_, err := pipeline.IngestFile(context.Background(), path)
	require.NoError(t, err)

	require.NoError(t, os.WriteFile(path, []byte("the second version"), 0o644))
	pipeline.handleEvent(context.Background(), watcher, deb,
		fsnotify.Event{Name: path, Op: fsnotify.Write})

	assert.Eventually(t, func() bool {
		chunks, err := repo.GetChunks(context.Background(), core.DocIDFromPath("a.txt"))
		return err == nil && len(chunks) == 1 && chunks[0].Text == "the second version"
	}, 2*time.Second, 10*time.Millisecond)
}

func TestHandleEventRemoveDeletesChunkSet(t *testing.T) {
	root := t.TempDir()
	path := writeFile(t, root, "a.txt", "about to disappear")
	pipeline, repo, watcher, deb := newEventFixture(t, root)

	_, err := pipeline.IngestFile(context.Background(), path)
	require.NoError(t, err)
	require.NoError(t, os.Remove(path))

	pipeline.handleEvent(context.Background(), watcher, deb,
		fsnotify.Event{Name: path, Op: fsnotify.Remove})

	_, err = repo.GetChunks(context.Background(), core.DocIDFromPath("a.txt"))
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

func TestHandleEventRenameDeletesChunkSet(t *testing.T) {
	root := t.TempDir()
	path := writeFile(t, root, "a.txt", "about to move away")
	pipeline, repo, watcher, deb := newEventFixture(t, root)

	_, err := pipeline.IngestFile(context.Background(), path)
	require.NoError(t, err)

	pipeline.handleEvent(context.Background(), watcher, deb,
		fsnotify.Event{Name: path, Op: fsnotify.Rename})

	_, err = repo.GetChunks(context.Background(), core.DocIDFromPath("a.txt"))
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

func TestHandleEventIgnoresHiddenAndLockFiles(t *testing.T) {
	root := t.TempDir()
	hidden := writeFile(t, root, ".secret.txt", "not for ingestion")
	lock := writeFile(t, root, "~$handbook.docx", "lock")
	pipeline, repo, watcher, deb := newEventFixture(t, root)

	pipeline.handleEvent(context.Background(), watcher, deb,
		fsnotify.Event{Name: hidden, Op: fsnotify.Create})
	pipeline.handleEvent(context.Background(), watcher, deb,
		fsnotify.Event{Name: lock, Op: fsnotify.Create})

	time.Sleep(4 * testDebounce)
	docs, err := repo.Documents(context.Background())
	require.NoError(t, err)
	assert.Empty(t, docs)
}

func TestHandleEventNewDirectoryIngestsContents(t *testing.T) {
	root := t.TempDir()
	pipeline, repo, watcher, deb := newEventFixture(t, root)

	// A directory copied into the tree arrives with files already inside.
	dir := filepath.Join(root, "imported")
	writeFile(t, root, "imported/doc.txt", "content that came with the directory")

	pipeline.handleEvent(context.Background(), watcher, deb,
		fsnotify.Event{Name: dir, Op: fsnotify.Create})

	assert.Eventually(t, hasChunks(repo, "imported/doc.txt"), 2*time.Second, 10*time.Millisecond)
}

func TestWatchReactsToFilesystem(t *testing.T) {
	root := t.TempDir()
	pipeline, repo := newTestPipeline(t, root, WithDebounce(testDebounce))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	done := make(chan error, 1)
	go func() { done <- pipeline.Watch(ctx) }()

	// Give the watcher a moment to register the root.
	time.Sleep(50 * time.Millisecond)

	path := filepath.Join(root, "live.txt")
	require.NoError(t, os.WriteFile(path, []byte("written while watching"), 0o644))
	assert.Eventually(t, hasChunks(repo, "live.txt"), 3*time.Second, 10*time.Millisecond)

	require.NoError(t, os.Remove(path))
	assert.Eventually(t, func() bool {
		_, err := repo.GetChunks(context.Background(), core.DocIDFromPath("live.txt"))
		return errors.Is(err, storage.ErrNotFound)
	}, 3*time.Second, 10*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(3 * time.Second):
		t.Fatal("watch did not stop on cancellation")
	}
}

func TestDebouncerCoalesces(t *testing.T) {
	var runs atomic.Int32
	deb := newDebouncer(30 * time.Millisecond)
	defer deb.stop()

	for range 5 {
		deb.schedule("key", func() { runs.Add(1) })
		time.Sleep(5 * time.Millisecond)
	}

	assert.Eventually(t, func() bool { return runs.Load() == 1 }, time.Second, 5*time.Millisecond)
	time.Sleep(60 * time.Millisecond)
	assert.Equal(t, int32(1), runs.Load(), "burst collapses to a single run")
}

func TestDebouncerKeysAreIndependent(t *testing.T) {
	var runs atomic.Int32
	deb := newDebouncer(10 * time.Millisecond)
	defer deb.stop()

	deb.schedule("a", func() { runs.Add(1) })
	deb.schedule("b", func() { runs.Add(1) })

	assert.Eventually(t, func() bool { return runs.Load() == 2 }, time.Second, 5*time.Millisecond)
}

func TestDebouncerCancel(t *testing.T) {
	var runs atomic.Int32
	deb := newDebouncer(20 * time.Millisecond)
	defer deb.stop()

	deb.schedule("key", func() { runs.Add(1) })
	deb.cancel("key")

	time.Sleep(60 * time.Millisecond)
	assert.Zero(t, runs.Load())
}

func TestDebouncerStop(t *testing.T) {
	var runs atomic.Int32
	deb := newDebouncer(20 * time.Millisecond)

	deb.schedule("key", func() { runs.Add(1) })
	deb.stop()

	time.Sleep(60 * time.Millisecond)
	assert.Zero(t, runs.Load())

	// Scheduling after stop is inert.
	deb.schedule("key", func() { runs.Add(1) })
	time.Sleep(60 * time.Millisecond)
	assert.Zero(t, runs.Load())
}
