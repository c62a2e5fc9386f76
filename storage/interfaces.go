package storage

import (
	"context"
	"iter"

	"github.com/syntropic/vecfeed/core"
)

// Repository provides common storage operations shared across all repositories.
// Implementations must be thread-safe and support concurrent access.
type Repository interface {
	// Close closes the storage backend and releases resources.
	Close() error
}

// ChunkRepository is the durable mapping from a document to its current
// ordered chunk set. It is the stage contract between ingestion and
// upload: ingestion writes here, upload reads from here, and a
// partially completed run resumes from what is on disk.
type ChunkRepository interface {
	Repository

	// PutChunks replaces the stored chunk set of a document atomically.
	// A concurrent reader observes either the previous complete set or
	// the new complete set, never a mix. Records with IngestedAt=0 get
	// the current time stamped before writing.
	PutChunks(ctx context.Context, docID core.DocID, chunks []core.ChunkRecord) error

	// GetChunks retrieves a document's chunk set in chunk index order.
	// Returns ErrNotFound if the document has no stored chunks.
	GetChunks(ctx context.Context, docID core.DocID) ([]core.ChunkRecord, error)

	// AllChunks iterates over every stored chunk lazily, in document
	// insertion order and chunk index order within a document. Iteration
	// errors are yielded in place; callers decide whether to continue.
	AllChunks(ctx context.Context) iter.Seq2[core.ChunkRecord, error]

	// DeleteChunks removes a document's chunk set.
	// Deleting an unknown document is a no-op, not an error.
	DeleteChunks(ctx context.Context, docID core.DocID) error

	// Documents lists the IDs of documents with stored chunks,
	// in insertion order.
	Documents(ctx context.Context) ([]core.DocID, error)

	// CountChunks reports the number of stored chunks across all documents.
	CountChunks(ctx context.Context) (int, error)
}

// LedgerRepository is the durable set of successfully delivered chunk IDs.
// Membership here is the idempotency gate: the uploader never re-sends a
// chunk whose ID is present. Implementations must be crash-durable and
// safe for concurrent idempotent inserts from the upload worker pool.
type LedgerRepository interface {
	Repository

	// MarkDelivered records the given entries. Re-marking an already
	// delivered chunk is a no-op upsert.
	MarkDelivered(ctx context.Context, entries ...core.LedgerEntry) error

	// IsDelivered reports whether a chunk ID is in the delivered set.
	IsDelivered(ctx context.Context, chunkID string) (bool, error)

	// DeliveredIDs returns the full delivered set.
	DeliveredIDs(ctx context.Context) (map[string]struct{}, error)

	// Len reports the size of the delivered set.
	Len(ctx context.Context) (int, error)

	// Clear empties the ledger. Explicit and destructive; used after a
	// schema reset when the backend's contents are gone.
	Clear(ctx context.Context) error
}
