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


package vecfeed

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/syntropic/vecfeed/extract"
	"github.com/syntropic/vecfeed/ingest"
	"github.com/syntropic/vecfeed/storage"
	"github.com/syntropic/vecfeed/storage/badger"
	"github.com/syntropic/vecfeed/storage/jsonl"
	"github.com/syntropic/vecfeed/upload"
	"github.com/syntropic/vecfeed/vectordb"
)

// Feed bundles the local pipeline state under one data directory: the
// chunk store the ingest stage writes and the delivery ledger the
// upload stage consults.
type Feed struct {
	backend *badger.Backend
	chunks  storage.ChunkRepository
	ledger  storage.LedgerRepository
	logger  *slog.Logger
}

// FeedOption configures a Feed.
type FeedOption func(*feedOptions)

type feedOptions struct {
	logger *slog.Logger
}

// WithLogger sets the logger shared by the Feed and its repositories.
func WithLogger(logger *slog.Logger) FeedOption {
	return func(o *feedOptions) {
		o.logger = logger
	}
}

func Open(dataDir string, opts ...FeedOption) (*Feed, error) {
	// Apply options
	options := &feedOptions{
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(options)
	}
	if options.logger == nil {
		options.logger = slog.Default()
	}

	if err := os.MkdirAll(dataDir, 0o755); err != nil {
		return nil, fmt.Errorf("creating data directory %s: %w", dataDir, err)
	}

	// Open chunk store
	chunks, err := jsonl.NewChunkRepository(filepath.Join(dataDir, "chunks"), options.logger)
	if err != nil {
		return nil, err
	}

	// Open ledger backend
	backend, err := badger.OpenBackend(filepath.Join(dataDir, "ledger"), false)
	if err != nil {
		chunks.Close()
		return nil, err
	}

	ledger := badger.NewLedgerRepository(backend)

	return &Feed{
		backend: backend,
		chunks:  chunks,
		ledger:  ledger,
		logger:  options.logger,
	}, nil
}

func (f *Feed) Close() error {
	// Close repositories
	if err := f.ledger.Close(); err != nil {
		f.logger.Error("error closing delivery ledger", "err", err)
		return err
	}
	if err := f.chunks.Close(); err != nil {
		f.logger.Error("error closing chunk store", "err", err)
		return err
	}

	// Close backend
	if err := f.backend.Close(); err != nil {
		f.logger.Error("error closing ledger backend", "err", err)
		return err
	}
	return nil
}

func (f *Feed) Chunks() storage.ChunkRepository {
	return f.chunks
}

func (f *Feed) Ledger() storage.LedgerRepository {
	return f.ledger
}

// NewIngestPipeline builds a pipeline writing into this Feed's chunk
// store.
func (f *Feed) NewIngestPipeline(extractor *extract.Extractor, opts ...ingest.Option) (*ingest.Pipeline, error) {
	return ingest.NewPipeline(f.chunks, extractor, opts...)
}

// NewUploader builds an uploader delivering to store, filtered and
// recorded through this Feed's ledger.
func (f *Feed) NewUploader(store vectordb.Store, opts ...upload.Option) (*upload.Uploader, error) {
	return upload.New(store, f.ledger, opts...)
}
