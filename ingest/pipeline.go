// Copyright 2025 Syntropic Systems
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.


package ingest

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/syntropic/vecfeed/chunker"
	"github.com/syntropic/vecfeed/core"
	"github.com/syntropic/vecfeed/extract"
	"github.com/syntropic/vecfeed/storage"
)

// DefaultDebounce is how long the watcher waits after the last event on
// a path before re-ingesting it.
const DefaultDebounce = 500 * time.Millisecond

// Pipeline walks a document tree, extracts text, chunks it, and stores
// the chunk sets. Files fan out across a bounded group of goroutines;
// chunk sets are per-document files, so concurrent writers do not
// contend. Per-file failures (unsupported format, broken file, empty
// text) are logged and skipped, never aborting the run.
type Pipeline struct {
	chunks    storage.ChunkRepository
	extractor *extract.Extractor
	chunker   *chunker.Chunker
	parallel  int
	debounce  time.Duration
	logger    *slog.Logger
}

// Option configures a Pipeline.
type Option func(*Pipeline) error

// WithChunker sets the chunking geometry.
// Default is chunker.DefaultConfig().
func WithChunker(c *chunker.Chunker) Option {
	return func(p *Pipeline) error {
		if c != nil {
			p.chunker = c
		}
		return nil
	}
}

// WithParallelism sets how many files are processed concurrently.
// Default is runtime.NumCPU() / 2, with a minimum of 1.
func WithParallelism(n int) Option {
	return func(p *Pipeline) error {
		if n < 1 {
			n = 1
		}
		p.parallel = n
		return nil
	}
}

// WithDebounce sets the watcher's quiet period per path.
// Default is DefaultDebounce.
func WithDebounce(d time.Duration) Option {
	return func(p *Pipeline) error {
		if d > 0 {
			p.debounce = d
		}
		return nil
	}
}

// WithLogger sets a custom logger.
// Default is slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(p *Pipeline) error {
		if logger == nil {
			logger = slog.Default()
		}
		p.logger = logger
		return nil
	}
}

// NewPipeline creates an ingest pipeline writing to chunks.
func NewPipeline(chunks storage.ChunkRepository, extractor *extract.Extractor, opts ...Option) (*Pipeline, error) {
	if chunks == nil {
		return nil, ErrChunkRepositoryRequired
	}
	if extractor == nil {
		return nil, ErrExtractorRequired
	}

	parallel := runtime.NumCPU() / 2
	if parallel < 1 {
		parallel = 1
	}

	defaultChunker, err := chunker.New(chunker.DefaultConfig())
	if err != nil {
		return nil, err
	}

	p := &Pipeline{
		chunks:    chunks,
		extractor: extractor,
		chunker:   defaultChunker,
		parallel:  parallel,
		debounce:  DefaultDebounce,
		logger:    slog.Default(),
	}

	for _, opt := range opts {
		if optErr := opt(p); optErr != nil {
			return nil, optErr
		}
	}

	p.logger = p.logger.With("component", "ingest")
	return p, nil
}

// Report summarizes one directory ingestion.
type Report struct {
	// Files is the number of documents whose chunk sets were written.
	Files int

	// Chunks is the total number of chunk records written.
	Chunks int

	// Skipped is the number of files passed over: unsupported format,
	// failed extraction, or empty after normalization.
	Skipped int
}

// IngestDir processes every candidate file under the extractor's root.
// Storage failures abort the run; per-file conditions are logged and
// counted as skipped.
func (p *Pipeline) IngestDir(ctx context.Context) (*Report, error) {
	files, err := p.extractor.ListFiles(ctx)
	if err != nil {
		return nil, fmt.Errorf("listing files: %w", err)
	}

	var (
		mu     sync.Mutex
		report Report
	)

	start := time.Now()
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(p.parallel)

	for _, path := range files {
		g.Go(func() error {
			n, err := p.IngestFile(gctx, path)
			if err != nil {
				if !skippable(err) {
					return err
				}
				p.logger.Warn("skipping file", "path", path, "reason", err)
				mu.Lock()
				report.Skipped++
				mu.Unlock()
				return nil
			}

			p.logger.Info("ingested file", "path", path, "chunks", n)
			mu.Lock()
			report.Files++
			report.Chunks += n
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	p.logger.Info("ingestion finished",
		"files", report.Files,
		"chunks", report.Chunks,
		"skipped", report.Skipped,
		"elapsed", time.Since(start).Round(time.Millisecond))
	return &report, nil
}

// IngestFile extracts, normalizes, chunks, and stores one file,
// replacing any previous chunk set for the same document. It returns
// the number of chunks written. Unsupported formats, extraction
// failures, and empty documents surface as their sentinel errors for
// the caller to skip.
func (p *Pipeline) IngestFile(ctx context.Context, path string) (int, error) {
	doc, err := p.extractor.Extract(ctx, path)
	if err != nil {
		return 0, err
	}
	if err := core.ValidateDocument(&doc); err != nil {
		return 0, fmt.Errorf("extractor produced invalid document for %s: %w", path, err)
	}

	doc.RawText = chunker.NormalizeWhitespace(doc.RawText)
	if strings.TrimSpace(doc.RawText) == "" {
		return 0, fmt.Errorf("%w: %s", ErrEmptyDocument, doc.FileName)
	}

	records := p.chunker.Chunk(doc)
	if len(records) == 0 {
		return 0, fmt.Errorf("%w: %s", ErrEmptyDocument, doc.FileName)
	}

	if err := p.chunks.PutChunks(ctx, doc.DocID, records); err != nil {
		return 0, fmt.Errorf("storing chunks for %s: %w", doc.FileName, err)
	}
	return len(records), nil
}

// RemoveFile deletes the chunk set of a file that is gone from the
// tree. Removing a document that was never ingested is a no-op.
func (p *Pipeline) RemoveFile(ctx context.Context, path string) error {
	docID := p.extractor.DocIDFor(path)
	if err := p.chunks.DeleteChunks(ctx, docID); err != nil {
		return fmt.Errorf("deleting chunks for %s: %w", path, err)
	}
	p.logger.Info("removed document", "path", path, "doc", docID)
	return nil
}

// skippable reports whether err is a per-file condition rather than a
// pipeline failure.
func skippable(err error) bool {
	return errors.Is(err, extract.ErrUnsupportedFormat) ||
		errors.Is(err, extract.ErrExtraction) ||
		errors.Is(err, ErrEmptyDocument)
}
