package upload

import (
	"iter"

	"github.com/google/uuid"

	"github.com/syntropic/vecfeed/chunker"
	"github.com/syntropic/vecfeed/core"
)

// BatchStatus tracks where a batch is in its lifecycle.
type BatchStatus string

const (
	StatusPending   BatchStatus = "pending"
	StatusInFlight  BatchStatus = "in_flight"
	StatusDelivered BatchStatus = "delivered"
	StatusFailed    BatchStatus = "failed"
)

// Batch is the unit of delivery: an ordered set of chunk records that
// travel to the backend in one call. Each batch is owned by exactly one
// worker at a time.
type Batch struct {
	ID       string
	Chunks   []core.ChunkRecord
	Attempts int
	Status   BatchStatus
}

// ChunkIDs returns the IDs of every chunk in the batch.
func (b *Batch) ChunkIDs() []string {
	ids := make([]string, len(b.Chunks))
	for i, chunk := range b.Chunks {
		ids[i] = chunk.ChunkID
	}
	return ids
}

// EstimatedCost approximates the token cost of delivering the batch,
// proportional to the total chunk text length. Used to gate admission
// against the embedding quota.
func (b *Batch) EstimatedCost() int {
	cost := 0
	for _, chunk := range b.Chunks {
		cost += chunker.EstimateTokens(chunk.Text)
	}
	return cost
}

// batchBuilder drains a chunk source into delivery batches, filtering
// out chunks already recorded in the ledger snapshot. Not safe for
// concurrent use; the producer loop owns it.
type batchBuilder struct {
	pull    func() (core.ChunkRecord, error, bool)
	stop    func()
	size    int
	skip    map[string]struct{}
	skipped int
	done    bool
}

func newBatchBuilder(source iter.Seq2[core.ChunkRecord, error], size int, skip map[string]struct{}) *batchBuilder {
	pull, stop := iter.Pull2(source)
	return &batchBuilder{pull: pull, stop: stop, size: size, skip: skip}
}

// Next returns the next batch of at most size chunks. A nil batch with
// a nil error means the source is exhausted. A source error ends the
// run: what was read before it stays undelivered.
func (b *batchBuilder) Next() (*Batch, error) {
	if b.done {
		return nil, nil
	}

	var chunks []core.ChunkRecord
	for len(chunks) < b.size {
		record, err, ok := b.pull()
		if !ok {
			b.Close()
			break
		}
		if err != nil {
			b.Close()
			return nil, err
		}
		if _, delivered := b.skip[record.ChunkID]; delivered {
			b.skipped++
			continue
		}
		chunks = append(chunks, record)
	}

	if len(chunks) == 0 {
		return nil, nil
	}
	return &Batch{ID: uuid.NewString(), Chunks: chunks, Status: StatusPending}, nil
}

// Skipped reports how many chunks were filtered out as already
// delivered.
func (b *batchBuilder) Skipped() int {
	return b.skipped
}

// Close releases the underlying iterator. Idempotent.
func (b *batchBuilder) Close() {
	if !b.done {
		b.done = true
		b.stop()
	}
}
