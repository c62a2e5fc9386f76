package core

import (
	"encoding/hex"
	"path/filepath"
	"strconv"
	"time"

	"github.com/go-crypt/x/blake2b"
)

// DocID is a stable identifier for a source document.
// It is derived from the document's path, never generated randomly,
// so repeated ingestion of the same tree yields the same IDs.
type DocID string

// DocIDFromPath derives a deterministic DocID from a source path using
// BLAKE2b hashing. The path is cleaned and slash-normalized first so the
// same file produces the same ID on every platform and every run.
func DocIDFromPath(path string) DocID {
	h, _ := blake2b.New(8, nil) // 8 bytes = 64 bits
	h.Write([]byte(filepath.ToSlash(filepath.Clean(path))))
	return DocID(hex.EncodeToString(h.Sum(nil)))
}

// ChunkIDFor builds the identifier for chunk index of a document.
// The format is "<doc_id>-<index>". Chunk identity is a pure function of
// (DocID, index); re-chunking unchanged input always reproduces it.
func ChunkIDFor(doc DocID, index int) string {
	return string(doc) + "-" + strconv.Itoa(index)
}

// Document is the unit handed from extraction to chunking.
// Immutable once created; its lifetime ends after chunking.
type Document struct {
	DocID      DocID
	SourcePath string
	FileName   string
	FileExt    string // lowercase, with leading dot
	Role       string // corpus role, e.g. "policies" (may be empty)
	Source     string // origin label, e.g. "local"
	RawText    string
}

// ChunkRecord is a bounded span of a document's text with positional and
// provenance metadata. Created by the chunker, persisted as one JSON object
// per line in the chunk store, read-only thereafter. The JSON field names
// are the durable stage contract and must not change.
type ChunkRecord struct {
	ChunkID    string `json:"chunk_id"`
	DocID      string `json:"doc_id"`
	Source     string `json:"source"`
	FileName   string `json:"file_name"`
	FileExt    string `json:"file_ext"`
	Role       string `json:"role"`
	Text       string `json:"text"`
	ChunkIndex int    `json:"chunk_index"`
	CharStart  int    `json:"char_start"`
	CharEnd    int    `json:"char_end"`
	IngestedAt int64  `json:"ingested_at"` // unix seconds, stamped at persistence time
}

// LedgerEntry records one successfully delivered chunk.
// The set of entries is append-only; membership is the idempotency gate
// for uploads.
type LedgerEntry struct {
	ChunkID     string
	DeliveredAt time.Time // second precision survives serialization
	Attempts    int
}
