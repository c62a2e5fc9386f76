package jsonl

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/syntropic/vecfeed/core"
	"github.com/syntropic/vecfeed/storage"
)

func newTestRepository(t *testing.T) storage.ChunkRepository {
	t.Helper()
	repo, err := NewChunkRepository(t.TempDir(), nil)
	require.NoError(t, err)
	t.Cleanup(func() { repo.Close() })
	return repo
}

func makeChunks(docID core.DocID, n int) []core.ChunkRecord {
	chunks := make([]core.ChunkRecord, n)
	for i := range chunks {
		start := i * 80
		chunks[i] = core.ChunkRecord{
			ChunkID:    core.ChunkIDFor(docID, i),
			DocID:      string(docID),
			Source:     "local",
			FileName:   "doc.txt",
			FileExt:    ".txt",
			Text:       fmt.Sprintf("chunk %d of %s", i, docID),
			ChunkIndex: i,
			CharStart:  start,
			CharEnd:    start + 100,
		}
	}
	return chunks
}

func TestPutGetChunks(t *testing.T) {
	repo := newTestRepository(t)
	ctx := context.Background()
	docID := core.DocIDFromPath("docs/a.txt")

	before := time.Now().Unix()
	require.NoError(t, repo.PutChunks(ctx, docID, makeChunks(docID, 3)))

	got, err := repo.GetChunks(ctx, docID)
	require.NoError(t, err)
	require.Len(t, got, 3)

	for i, record := range got {
		assert.Equal(t, core.ChunkIDFor(docID, i), record.ChunkID)
		assert.Equal(t, i, record.ChunkIndex)
		assert.GreaterOrEqual(t, record.IngestedAt, before, "ingestion time is stamped at persistence")
	}
}

func TestPutChunks_PreservesExplicitIngestedAt(t *testing.T) {
	repo := newTestRepository(t)
	ctx := context.Background()
	docID := core.DocIDFromPath("docs/a.txt")

	chunks := makeChunks(docID, 1)
	chunks[0].IngestedAt = 12345

	require.NoError(t, repo.PutChunks(ctx, docID, chunks))

	got, err := repo.GetChunks(ctx, docID)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, int64(12345), got[0].IngestedAt)
}

func TestPutChunks_FullReplace(t *testing.T) {
	repo := newTestRepository(t)
	ctx := context.Background()
	docID := core.DocIDFromPath("docs/a.txt")

	require.NoError(t, repo.PutChunks(ctx, docID, makeChunks(docID, 5)))
	require.NoError(t, repo.PutChunks(ctx, docID, makeChunks(docID, 2)))

	got, err := repo.GetChunks(ctx, docID)
	require.NoError(t, err)
	assert.Len(t, got, 2, "re-chunking fully replaces the previous set")
}

func TestPutChunks_RejectsInvalidRecord(t *testing.T) {
	repo := newTestRepository(t)
	ctx := context.Background()
	docID := core.DocIDFromPath("docs/a.txt")

	chunks := makeChunks(docID, 1)
	chunks[0].Text = ""

	err := repo.PutChunks(ctx, docID, chunks)
	require.Error(t, err)
	assert.ErrorIs(t, err, core.ErrInvalidChunkRecord)
}

func TestGetChunks_NotFound(t *testing.T) {
	repo := newTestRepository(t)

	_, err := repo.GetChunks(context.Background(), core.DocIDFromPath("docs/missing.txt"))
	require.Error(t, err)
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

func TestDeleteChunks(t *testing.T) {
	repo := newTestRepository(t)
	ctx := context.Background()
	docID := core.DocIDFromPath("docs/a.txt")

	require.NoError(t, repo.PutChunks(ctx, docID, makeChunks(docID, 2)))
	require.NoError(t, repo.DeleteChunks(ctx, docID))

	_, err := repo.GetChunks(ctx, docID)
	assert.ErrorIs(t, err, storage.ErrNotFound)

	docs, err := repo.Documents(ctx)
	require.NoError(t, err)
	assert.Empty(t, docs)
}

func TestDeleteChunks_UnknownIsNoop(t *testing.T) {
	repo := newTestRepository(t)
	assert.NoError(t, repo.DeleteChunks(context.Background(), core.DocIDFromPath("docs/missing.txt")))
}

func TestAllChunks_Order(t *testing.T) {
	repo := newTestRepository(t)
	ctx := context.Background()

	first := core.DocIDFromPath("docs/first.txt")
	second := core.DocIDFromPath("docs/second.txt")
	require.NoError(t, repo.PutChunks(ctx, first, makeChunks(first, 2)))
	require.NoError(t, repo.PutChunks(ctx, second, makeChunks(second, 1)))

	// Re-writing an existing document must not change its position.
	require.NoError(t, repo.PutChunks(ctx, first, makeChunks(first, 2)))

	var ids []string
	for record, err := range repo.AllChunks(ctx) {
		require.NoError(t, err)
		ids = append(ids, record.ChunkID)
	}

	want := []string{
		core.ChunkIDFor(first, 0),
		core.ChunkIDFor(first, 1),
		core.ChunkIDFor(second, 0),
	}
	assert.Equal(t, want, ids, "document insertion order, then chunk index")
}

func TestAllChunks_StopsEarly(t *testing.T) {
	repo := newTestRepository(t)
	ctx := context.Background()
	docID := core.DocIDFromPath("docs/a.txt")
	require.NoError(t, repo.PutChunks(ctx, docID, makeChunks(docID, 5)))

	seen := 0
	for _, err := range repo.AllChunks(ctx) {
		require.NoError(t, err)
		seen++
		if seen == 2 {
			break
		}
	}
	assert.Equal(t, 2, seen)
}

func TestDocumentsAndCount(t *testing.T) {
	repo := newTestRepository(t)
	ctx := context.Background()

	a := core.DocIDFromPath("docs/a.txt")
	b := core.DocIDFromPath("docs/b.txt")
	require.NoError(t, repo.PutChunks(ctx, a, makeChunks(a, 3)))
	require.NoError(t, repo.PutChunks(ctx, b, makeChunks(b, 4)))

	docs, err := repo.Documents(ctx)
	require.NoError(t, err)
	assert.Equal(t, []core.DocID{a, b}, docs)

	count, err := repo.CountChunks(ctx)
	require.NoError(t, err)
	assert.Equal(t, 7, count)
}

func TestPutChunks_AtomicReplace(t *testing.T) {
	repo := newTestRepository(t)
	ctx := context.Background()
	docID := core.DocIDFromPath("docs/contended.txt")

	require.NoError(t, repo.PutChunks(ctx, docID, makeChunks(docID, 2)))

	var wg sync.WaitGroup
	stop := make(chan struct{})

	wg.Add(1)
	go func() {
		defer wg.Done()
		for i := 0; i < 50; i++ {
			n := 2 + i%2
			if err := repo.PutChunks(ctx, docID, makeChunks(docID, n)); err != nil {
				t.Error(err)
				return
			}
		}
		close(stop)
	}()

	wg.Add(1)
	go func() {
		defer wg.Done()
		for {
			select {
			case <-stop:
				return
			default:
			}
			got, err := repo.GetChunks(ctx, docID)
			if err != nil {
				t.Error(err)
				return
			}
			if len(got) != 2 && len(got) != 3 {
				t.Errorf("observed partially replaced chunk set: %d records", len(got))
				return
			}
		}
	}()

	wg.Wait()
}

func TestPutChunks_ContextCanceled(t *testing.T) {
	repo := newTestRepository(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	docID := core.DocIDFromPath("docs/a.txt")
	err := repo.PutChunks(ctx, docID, makeChunks(docID, 1))
	assert.ErrorIs(t, err, context.Canceled)
}
