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


package extract

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"code.sajari.com/docconv"

	"github.com/syntropic/vecfeed/core"
)

const (
	// DefaultRole is assigned to files sitting directly under the root,
	// outside any role directory.
	DefaultRole = "public"

	// DefaultMaxFileSize is the walker's file size cap.
	DefaultMaxFileSize = 64 << 20 // 64 MiB
)

// parseFunc turns a file into raw text.
type parseFunc func(path string) (string, error)

// parsers maps lowercase extensions to their parser.
// Extensions absent here are unsupported.
var parsers = map[string]parseFunc{
	".pdf":  parseOffice,
	".docx": parseOffice,
	".pptx": parseOffice,
	".xlsx": parseWorkbook,
	".txt":  parseTextFile,
	".md":   parseTextFile,
	".csv":  parseTextFile,
	".log":  parseTextFile,
	".json": parseTextFile,
}

// Extractor turns files under a root directory into core.Documents.
// Document identity (DocID) and provenance fields derive from the path
// relative to the root, so the same tree yields the same IDs on every
// machine and every run. The extractor does not normalize or chunk
// text; that is the ingest pipeline's job.
type Extractor struct {
	root         string
	role         string // override; empty derives the role from the path
	sourcePrefix string
	maxFileSize  int64
	logger       *slog.Logger
}

// Option configures an Extractor.
type Option func(*Extractor) error

// WithRole forces every document's role instead of deriving it from the
// first path segment under the root.
func WithRole(role string) Option {
	return func(e *Extractor) error {
		e.role = role
		return nil
	}
}

// WithSource prefixes every document's source label, e.g. a base URL
// for corpora mirrored from elsewhere. Default is no prefix: the source
// is the path relative to the root.
func WithSource(prefix string) Option {
	return func(e *Extractor) error {
		e.sourcePrefix = strings.TrimRight(prefix, "/")
		return nil
	}
}

// WithMaxFileSize sets the walker's file size cap.
// Default is DefaultMaxFileSize.
func WithMaxFileSize(n int64) Option {
	return func(e *Extractor) error {
		if n > 0 {
			e.maxFileSize = n
		}
		return nil
	}
}

// WithLogger sets a custom logger.
// Default is slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(e *Extractor) error {
		if logger == nil {
			logger = slog.Default()
		}
		e.logger = logger
		return nil
	}
}

// New creates an extractor rooted at the given directory.
func New(root string, opts ...Option) (*Extractor, error) {
	if root == "" {
		return nil, ErrRootRequired
	}

	e := &Extractor{
		root:        filepath.Clean(root),
		maxFileSize: DefaultMaxFileSize,
		logger:      slog.Default(),
	}

	for _, opt := range opts {
		if err := opt(e); err != nil {
			return nil, err
		}
	}

	e.logger = e.logger.With("component", "extractor")
	return e, nil
}

// Root returns the cleaned root directory.
func (e *Extractor) Root() string {
	return e.root
}

// MaxFileSize returns the walker's file size cap.
func (e *Extractor) MaxFileSize() int64 {
	return e.maxFileSize
}

// Extract parses one file into a Document. Unknown extensions return
// ErrUnsupportedFormat and parser failures return ErrExtraction; both
// are per-file conditions the caller logs and skips. The returned text
// is raw parser output, possibly empty.
func (e *Extractor) Extract(ctx context.Context, path string) (core.Document, error) {
	if err := ctx.Err(); err != nil {
		return core.Document{}, err
	}

	ext := strings.ToLower(filepath.Ext(path))
	parse, ok := parsers[ext]
	if !ok {
		return core.Document{}, fmt.Errorf("%w: %q", ErrUnsupportedFormat, ext)
	}

	text, err := parse(path)
	if err != nil {
		return core.Document{}, fmt.Errorf("%w: %s: %w", ErrExtraction, filepath.Base(path), err)
	}

	rel := e.relPath(path)
	return core.Document{
		DocID:      core.DocIDFromPath(rel),
		SourcePath: path,
		FileName:   filepath.Base(path),
		FileExt:    ext,
		Role:       e.roleFor(rel),
		Source:     e.sourceFor(rel),
		RawText:    text,
	}, nil
}

// DocIDFor derives the identity Extract would assign to path without
// reading the file. Used to delete the chunk set of a file that no
// longer exists.
func (e *Extractor) DocIDFor(path string) core.DocID {
	return core.DocIDFromPath(e.relPath(path))
}

// relPath resolves path against the root, slash-normalized. Paths
// outside the root fall back to their base name so Extract stays total
// for stray watcher events.
func (e *Extractor) relPath(path string) string {
	rel, err := filepath.Rel(e.root, path)
	if err != nil || strings.HasPrefix(rel, "..") {
		return filepath.Base(path)
	}
	return filepath.ToSlash(rel)
}

func (e *Extractor) roleFor(rel string) string {
	if e.role != "" {
		return e.role
	}
	if dir, _, found := strings.Cut(rel, "/"); found {
		return dir
	}
	return DefaultRole
}

func (e *Extractor) sourceFor(rel string) string {
	if e.sourcePrefix == "" {
		return rel
	}
	return e.sourcePrefix + "/" + rel
}

// parseOffice extracts text from PDF, DOCX and PPTX files.
func parseOffice(path string) (string, error) {
	res, err := docconv.ConvertPath(path)
	if err != nil {
		return "", err
	}
	return res.Body, nil
}

// parseTextFile reads a plain text file, dropping any invalid UTF-8.
func parseTextFile(path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", err
	}
	return strings.ToValidUTF8(string(data), ""), nil
}
