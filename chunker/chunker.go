package chunker

import (
	"errors"
	"fmt"
	"strings"

	"github.com/syntropic/vecfeed/core"
)

// Default chunking geometry, tuned for embedding models that take
// roughly 250 tokens of context per chunk.
const (
	DefaultTargetSize = 1000
	DefaultOverlap    = 200
)

// lookbackDivisor sets the boundary-snap window and the tail-absorption
// threshold to a tenth of the target size.
const lookbackDivisor = 10

// ErrInvalidConfig indicates the chunking configuration is unusable.
var ErrInvalidConfig = errors.New("invalid chunker configuration")

// Config controls chunk geometry. Sizes are in bytes of the (normalized)
// input text.
type Config struct {
	// TargetSize is the upper bound on chunk length. A chunk may exceed it
	// by at most TargetSize/10 when the final chunk absorbs a short tail.
	TargetSize int

	// Overlap is the number of trailing bytes of one chunk repeated at the
	// start of the next. Must be less than TargetSize.
	Overlap int
}

// DefaultConfig returns the default chunk geometry.
func DefaultConfig() Config {
	return Config{TargetSize: DefaultTargetSize, Overlap: DefaultOverlap}
}

// Chunker splits document text into overlapping chunks with stable
// identities. It performs no I/O; output is a pure function of the
// input text and the configuration.
type Chunker struct {
	cfg      Config
	lookback int
	minTail  int
}

// New creates a Chunker, validating the configuration.
func New(cfg Config) (*Chunker, error) {
	if cfg.TargetSize <= 0 {
		return nil, fmt.Errorf("%w: target size must be positive, got %d", ErrInvalidConfig, cfg.TargetSize)
	}
	if cfg.Overlap < 0 {
		return nil, fmt.Errorf("%w: overlap must not be negative, got %d", ErrInvalidConfig, cfg.Overlap)
	}
	if cfg.Overlap >= cfg.TargetSize {
		return nil, fmt.Errorf("%w: overlap (%d) must be less than target size (%d)", ErrInvalidConfig, cfg.Overlap, cfg.TargetSize)
	}

	return &Chunker{
		cfg:      cfg,
		lookback: cfg.TargetSize / lookbackDivisor,
		minTail:  cfg.TargetSize / lookbackDivisor,
	}, nil
}

// Chunk splits a document's text into an ordered sequence of chunk records.
//
// The text is walked in windows of TargetSize bytes. A window that would
// cut mid-word is snapped back to the nearest whitespace within the
// look-back window; the following window then starts Overlap bytes before
// the actual cut, so consecutive chunks always share exactly Overlap bytes
// and no text is lost between them. A tail shorter than TargetSize/10 is
// absorbed into the final chunk instead of forming a near-empty trailing
// one, and a trailing chunk that is pure whitespace is discarded.
//
// Empty text yields a nil slice. ChunkIndex is assigned in emission order
// and is contiguous from zero. IngestedAt is left zero; the store stamps
// it at persistence time so chunk identity stays a pure function of the
// input.
func (c *Chunker) Chunk(doc core.Document) []core.ChunkRecord {
	text := doc.RawText
	if len(text) == 0 {
		return nil
	}

	var records []core.ChunkRecord
	start := 0
	for {
		end := start + c.cfg.TargetSize
		last := end >= len(text)
		if last {
			end = len(text)
		} else {
			if snapped, ok := c.snapEnd(text, start, end); ok {
				end = snapped
			}
			if len(text)-end <= c.minTail {
				end = len(text)
				last = true
			}
		}

		if last && strings.TrimSpace(text[start:end]) == "" {
			break
		}
		records = append(records, record(doc, len(records), start, end))
		if last {
			break
		}

		next := end - c.cfg.Overlap
		if next <= start {
			next = start + 1 // forward progress even under degenerate geometry
		}
		start = next
	}

	return records
}

// snapEnd moves a cut that splits a word back to the nearest preceding
// whitespace inside the look-back window. It reports false when the cut
// already falls on a word boundary or no whitespace is within reach.
func (c *Chunker) snapEnd(text string, start, end int) (int, bool) {
	if isSpace(text[end]) || isSpace(text[end-1]) {
		return 0, false
	}

	floor := end - c.lookback
	if floor <= start {
		floor = start + 1
	}
	for j := end - 1; j >= floor; j-- {
		if isSpace(text[j]) {
			return j, true
		}
	}
	return 0, false
}

func record(doc core.Document, index, start, end int) core.ChunkRecord {
	return core.ChunkRecord{
		ChunkID:    core.ChunkIDFor(doc.DocID, index),
		DocID:      string(doc.DocID),
		Source:     doc.Source,
		FileName:   doc.FileName,
		FileExt:    doc.FileExt,
		Role:       doc.Role,
		Text:       doc.RawText[start:end],
		ChunkIndex: index,
		CharStart:  start,
		CharEnd:    end,
	}
}

func isSpace(b byte) bool {
	return b == ' ' || b == '\n' || b == '\t' || b == '\r'
}
