package ingest

import "errors"

var (
	// ErrChunkRepositoryRequired is returned when a chunk repository is not provided.
	ErrChunkRepositoryRequired = errors.New("chunk repository required")

	// ErrExtractorRequired is returned when an extractor is not provided.
	ErrExtractorRequired = errors.New("extractor required")

	// ErrEmptyDocument is returned when a file yields no text after
	// extraction and normalization. Callers skip the file and continue.
	ErrEmptyDocument = errors.New("document is empty")
)
