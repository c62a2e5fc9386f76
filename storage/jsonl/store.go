package jsonl

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"iter"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"sync"
	"time"

	"github.com/syntropic/vecfeed/core"
	"github.com/syntropic/vecfeed/storage"
)

const (
	chunkFileExt = ".jsonl"
	manifestName = "manifest.json"

	// maxLineBytes bounds a single chunk line; chunk texts are capped by
	// the chunker at around a kilobyte, so this leaves generous headroom
	// for JSON escaping and metadata.
	maxLineBytes = 1 << 20
)

// chunkRepository stores each document's chunk set as one JSON-lines
// file under dir, plus a manifest recording document insertion order.
// Replacement is atomic: files are written to a temp name and renamed
// into place, so readers see the old set or the new set, never a mix.
type chunkRepository struct {
	dir    string
	mu     sync.RWMutex // guards the manifest file
	logger *slog.Logger
}

var _ storage.ChunkRepository = (*chunkRepository)(nil)

// NewChunkRepository creates a ChunkRepository backed by JSON-lines
// files under dir. The directory is created if it does not exist.
func NewChunkRepository(dir string, logger *slog.Logger) (storage.ChunkRepository, error) {
	if dir == "" {
		return nil, fmt.Errorf("chunk store directory required")
	}
	if logger == nil {
		logger = slog.Default()
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("creating chunk store directory: %w", err)
	}
	return &chunkRepository{
		dir:    dir,
		logger: logger.With("component", "chunkstore"),
	}, nil
}

// PutChunks replaces the stored chunk set of a document atomically.
func (r *chunkRepository) PutChunks(ctx context.Context, docID core.DocID, chunks []core.ChunkRecord) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if docID == "" {
		return core.ErrEmptyDocID
	}

	now := time.Now().Unix()
	var buf bytes.Buffer
	for i := range chunks {
		record := chunks[i]
		if record.IngestedAt == 0 {
			record.IngestedAt = now
		}
		if err := core.ValidateChunkRecord(&record); err != nil {
			return err
		}
		line, err := json.Marshal(record)
		if err != nil {
			return fmt.Errorf("%w: %w", storage.ErrSerializationFailed, err)
		}
		buf.Write(line)
		buf.WriteByte('\n')
	}

	if err := r.writeFileAtomic(r.chunkPath(docID), buf.Bytes()); err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	m, err := r.loadManifest()
	if err != nil {
		return err
	}
	if !slices.Contains(m.Documents, string(docID)) {
		m.Documents = append(m.Documents, string(docID))
		if err := r.saveManifest(m); err != nil {
			return err
		}
	}

	r.logger.Debug("stored chunk set", "doc", docID, "chunks", len(chunks))
	return nil
}

// GetChunks retrieves a document's chunk set in chunk index order.
func (r *chunkRepository) GetChunks(ctx context.Context, docID core.DocID) ([]core.ChunkRecord, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	records, err := r.readChunkFile(docID)
	if err != nil {
		return nil, err
	}
	return records, nil
}

// AllChunks iterates lazily over every stored chunk, in document
// insertion order and chunk index order within each document.
func (r *chunkRepository) AllChunks(ctx context.Context) iter.Seq2[core.ChunkRecord, error] {
	return func(yield func(core.ChunkRecord, error) bool) {
		docs, err := r.Documents(ctx)
		if err != nil {
			yield(core.ChunkRecord{}, err)
			return
		}

		for _, docID := range docs {
			if err := ctx.Err(); err != nil {
				yield(core.ChunkRecord{}, err)
				return
			}

			records, err := r.readChunkFile(docID)
			if err != nil {
				if !yield(core.ChunkRecord{}, err) {
					return
				}
				continue
			}
			for _, record := range records {
				if !yield(record, nil) {
					return
				}
			}
		}
	}
}

// DeleteChunks removes a document's chunk set. Unknown documents are a no-op.
func (r *chunkRepository) DeleteChunks(ctx context.Context, docID core.DocID) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	if err := os.Remove(r.chunkPath(docID)); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("removing chunk file: %w", err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	m, err := r.loadManifest()
	if err != nil {
		return err
	}
	before := len(m.Documents)
	m.Documents = slices.DeleteFunc(m.Documents, func(d string) bool { return d == string(docID) })
	if len(m.Documents) != before {
		return r.saveManifest(m)
	}
	return nil
}

// Documents lists stored document IDs in insertion order.
func (r *chunkRepository) Documents(ctx context.Context) ([]core.DocID, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	r.mu.RLock()
	defer r.mu.RUnlock()
	m, err := r.loadManifest()
	if err != nil {
		return nil, err
	}
	docs := make([]core.DocID, len(m.Documents))
	for i, d := range m.Documents {
		docs[i] = core.DocID(d)
	}
	return docs, nil
}

// CountChunks reports the number of stored chunks across all documents.
func (r *chunkRepository) CountChunks(ctx context.Context) (int, error) {
	docs, err := r.Documents(ctx)
	if err != nil {
		return 0, err
	}

	total := 0
	for _, docID := range docs {
		n, err := countLines(r.chunkPath(docID))
		if err != nil {
			if os.IsNotExist(err) {
				continue
			}
			return 0, fmt.Errorf("counting chunks of %s: %w", docID, err)
		}
		total += n
	}
	return total, nil
}

// Close releases resources. The JSON-lines store holds no open handles
// between calls, so this is a no-op kept for interface symmetry.
func (r *chunkRepository) Close() error {
	return nil
}

func (r *chunkRepository) chunkPath(docID core.DocID) string {
	return filepath.Join(r.dir, string(docID)+chunkFileExt)
}

func (r *chunkRepository) readChunkFile(docID core.DocID) ([]core.ChunkRecord, error) {
	f, err := os.Open(r.chunkPath(docID))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: no chunks for document %s", storage.ErrNotFound, docID)
		}
		return nil, fmt.Errorf("opening chunk file: %w", err)
	}
	defer f.Close()

	var records []core.ChunkRecord
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), maxLineBytes)
	for scanner.Scan() {
		line := scanner.Bytes()
		if len(bytes.TrimSpace(line)) == 0 {
			continue
		}
		var record core.ChunkRecord
		if err := json.Unmarshal(line, &record); err != nil {
			return nil, fmt.Errorf("%w: document %s: %w", storage.ErrSerializationFailed, docID, err)
		}
		records = append(records, record)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("%w: document %s: %w", storage.ErrSerializationFailed, docID, err)
	}
	return records, nil
}

// writeFileAtomic writes data to a temp file in the target directory,
// syncs it, and renames it over path.
func (r *chunkRepository) writeFileAtomic(path string, data []byte) error {
	tmp, err := os.CreateTemp(r.dir, filepath.Base(path)+".tmp-*")
	if err != nil {
		return fmt.Errorf("creating temp file: %w", err)
	}
	tmpName := tmp.Name()

	_, err = tmp.Write(data)
	if err == nil {
		err = tmp.Sync()
	}
	if cerr := tmp.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("writing temp file: %w", err)
	}

	if err := os.Rename(tmpName, path); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("replacing %s: %w", filepath.Base(path), err)
	}
	return nil
}

type manifest struct {
	Documents []string `json:"documents"`
}

// loadManifest reads the manifest; a missing file means an empty store.
// Callers hold r.mu.
func (r *chunkRepository) loadManifest() (*manifest, error) {
	data, err := os.ReadFile(filepath.Join(r.dir, manifestName))
	if err != nil {
		if os.IsNotExist(err) {
			return &manifest{}, nil
		}
		return nil, fmt.Errorf("reading manifest: %w", err)
	}

	var m manifest
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("%w: manifest: %w", storage.ErrSerializationFailed, err)
	}
	return &m, nil
}

// saveManifest persists the manifest atomically. Callers hold r.mu.
func (r *chunkRepository) saveManifest(m *manifest) error {
	data, err := json.Marshal(m)
	if err != nil {
		return fmt.Errorf("%w: manifest: %w", storage.ErrSerializationFailed, err)
	}
	return r.writeFileAtomic(filepath.Join(r.dir, manifestName), data)
}

func countLines(path string) (int, error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, err
	}
	defer f.Close()

	n := 0
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), maxLineBytes)
	for scanner.Scan() {
		if len(bytes.TrimSpace(scanner.Bytes())) > 0 {
			n++
		}
	}
	return n, scanner.Err()
}
