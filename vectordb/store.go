package vectordb

import (
	"context"

	"github.com/google/uuid"

	"github.com/syntropic/vecfeed/core"
)

// objectNamespace is the fixed namespace for deriving object IDs.
// Changing it orphans every object already delivered, so don't.
var objectNamespace = uuid.MustParse("8d7a3e52-9c41-4f0b-b2da-6e1f0c5a9d37")

// ObjectID derives the backend object ID for a chunk: a v5 UUID of the
// chunk ID in a fixed namespace. Chunk identity is deterministic, so the
// object ID is too, and re-delivery overwrites instead of duplicating.
func ObjectID(chunkID string) string {
	return uuid.NewSHA1(objectNamespace, []byte(chunkID)).String()
}

// Object is one chunk shaped for delivery: a deterministic ID, the
// persisted property set, and an optional client-side vector.
type Object struct {
	UUID       string
	ChunkID    string
	Properties map[string]any
	Vector     []float32 // nil when the backend vectorizes server-side
}

// NewObject shapes a chunk record for upsert. The property keys are the
// persisted backend contract; the weaviate package defines the matching
// class properties.
func NewObject(record core.ChunkRecord, vector []float32) Object {
	return Object{
		UUID:    ObjectID(record.ChunkID),
		ChunkID: record.ChunkID,
		Properties: map[string]any{
			"text":        record.Text,
			"chunk_id":    record.ChunkID,
			"doc_id":      record.DocID,
			"source":      record.Source,
			"file_name":   record.FileName,
			"file_ext":    record.FileExt,
			"role":        record.Role,
			"chunk_index": record.ChunkIndex,
			"ingested_at": record.IngestedAt,
		},
		Vector: vector,
	}
}

// Rejection is a per-chunk permanent failure inside an otherwise
// successful batch call.
type Rejection struct {
	ChunkID string
	Reason  string
}

// BatchResult reports the per-item outcome of one batch upsert.
type BatchResult struct {
	Delivered []string    // chunk IDs the backend accepted
	Rejected  []Rejection // chunk IDs the backend refused permanently
}

// Store is the vector-search backend chunks are delivered to.
// Implementations must be safe for concurrent use by the upload worker
// pool, and must map their failures onto the package error taxonomy so
// the uploader can tell throttling from permanent rejection.
type Store interface {
	// Ready reports whether the backend is reachable and serving.
	Ready(ctx context.Context) error

	// UpsertBatch delivers a batch of objects in one call. A nil error
	// means the call itself succeeded; per-item failures are reported
	// in the result, not the error. Upsert is idempotent per object ID.
	UpsertBatch(ctx context.Context, objects []Object) (*BatchResult, error)
}
