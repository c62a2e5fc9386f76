package badger

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

func newTestLedger(t *testing.T) storage.LedgerRepository {
	t.Helper()
	ledger, backend, err := NewMemoryLedger()
	require.NoError(t, err)
	t.Cleanup(func() {
		ledger.Close()
		backend.Close()
	})
	return ledger
}

func entry(chunkID string, attempts int) core.LedgerEntry {
	return core.LedgerEntry{
		ChunkID:     chunkID,
		DeliveredAt: time.Now().UTC(),
		Attempts:    attempts,
	}
}

func TestMarkAndIsDelivered(t *testing.T) {
	ledger := newTestLedger(t)
	ctx := context.Background()

	require.NoError(t, ledger.MarkDelivered(ctx, entry("doc1-0", 1), entry("doc1-1", 1)))

	delivered, err := ledger.IsDelivered(ctx, "doc1-0")
	require.NoError(t, err)
	assert.True(t, delivered)

	delivered, err = ledger.IsDelivered(ctx, "doc1-9")
	require.NoError(t, err)
	assert.False(t, delivered)
}

func TestMarkDelivered_Idempotent(t *testing.T) {
	ledger := newTestLedger(t)
	ctx := context.Background()

	require.NoError(t, ledger.MarkDelivered(ctx, entry("doc1-0", 1)))
	require.NoError(t, ledger.MarkDelivered(ctx, entry("doc1-0", 3)))

	n, err := ledger.Len(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n, "re-marking must not grow the set")
}

func TestMarkDelivered_Empty(t *testing.T) {
	ledger := newTestLedger(t)
	assert.NoError(t, ledger.MarkDelivered(context.Background()))
}

func TestDeliveredIDs(t *testing.T) {
	ledger := newTestLedger(t)
	ctx := context.Background()

	require.NoError(t, ledger.MarkDelivered(ctx, entry("a-0", 1), entry("a-1", 2), entry("b-0", 1)))

	ids, err := ledger.DeliveredIDs(ctx)
	require.NoError(t, err)
	assert.Equal(t, map[string]struct{}{
		"a-0": {},
		"a-1": {},
		"b-0": {},
	}, ids)
}

func TestLedgerLenAndClear(t *testing.T) {
	ledger := newTestLedger(t)
	ctx := context.Background()

	require.NoError(t, ledger.MarkDelivered(ctx, entry("a-0", 1), entry("a-1", 1)))

	n, err := ledger.Len(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	require.NoError(t, ledger.Clear(ctx))

	n, err = ledger.Len(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestGetEntry(t *testing.T) {
	ledger, backend, err := NewMemoryLedger()
	require.NoError(t, err)
	defer backend.Close()
	defer ledger.Close()
	ctx := context.Background()

	repo := ledger.(*LedgerRepository)

	delivered := entry("a-0", 4)
	require.NoError(t, repo.MarkDelivered(ctx, delivered))

	got, err := repo.GetEntry(ctx, "a-0")
	require.NoError(t, err)
	assert.Equal(t, "a-0", got.ChunkID)
	assert.Equal(t, 4, got.Attempts)
	assert.True(t, delivered.DeliveredAt.Truncate(time.Second).Equal(got.DeliveredAt))

	_, err = repo.GetEntry(ctx, "missing-0")
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

func TestMarkDelivered_Concurrent(t *testing.T) {
	ledger := newTestLedger(t)
	ctx := context.Background()

	var wg sync.WaitGroup
	for w := 0; w < 4; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			for i := 0; i < 20; i++ {
				if err := ledger.MarkDelivered(ctx, entry(fmt.Sprintf("doc%d-%d", w, i), 1)); err != nil {
					t.Error(err)
					return
				}
			}
		}(w)
	}
	wg.Wait()

	n, err := ledger.Len(ctx)
	require.NoError(t, err)
	assert.Equal(t, 80, n)
}

func TestLedger_SurvivesReopen(t *testing.T) {
	dir := t.TempDir()
	ctx := context.Background()

	backend, err := OpenBackend(dir, false)
	require.NoError(t, err)
	ledger := NewLedgerRepository(backend)
	require.NoError(t, ledger.MarkDelivered(ctx, entry("doc1-0", 1), entry("doc1-1", 2)))
	require.NoError(t, ledger.Close())
	require.NoError(t, backend.Close())

	backend, err = OpenBackend(dir, false)
	require.NoError(t, err)
	defer backend.Close()
	ledger = NewLedgerRepository(backend)
	defer ledger.Close()

	delivered, err := ledger.IsDelivered(ctx, "doc1-0")
	require.NoError(t, err)
	assert.True(t, delivered, "delivered set must survive a restart")

	n, err := ledger.Len(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, n)
}

func TestLedger_ContextCanceled(t *testing.T) {
	ledger := newTestLedger(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := ledger.MarkDelivered(ctx, entry("a-0", 1))
	assert.ErrorIs(t, err, context.Canceled)

	_, err = ledger.IsDelivered(ctx, "a-0")
	assert.ErrorIs(t, err, context.Canceled)
}
