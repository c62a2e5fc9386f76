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


package core

import "fmt"

// ValidateChunkRecord validates a ChunkRecord according to domain rules.
//
// Validation rules:
//   - ChunkID and DocID must not be empty
//   - Text must not be empty
//   - ChunkIndex must be zero or positive
//   - CharStart must be strictly less than CharEnd
//
// NOT validated (populated at persistence time):
//   - IngestedAt (0 is valid until the record is stored)
//   - Role and Source (optional provenance labels)
func ValidateChunkRecord(record *ChunkRecord) error {
	if record == nil {
		return fmt.Errorf("%w: record is nil", ErrInvalidChunkRecord)
	}

	if record.ChunkID == "" {
		return fmt.Errorf("%w: %w", ErrInvalidChunkRecord, ErrEmptyChunkID)
	}

	if record.DocID == "" {
		return fmt.Errorf("%w: %w", ErrInvalidChunkRecord, ErrEmptyDocID)
	}

	if record.Text == "" {
		return fmt.Errorf("%w: %w", ErrInvalidChunkRecord, ErrEmptyText)
	}

	if record.ChunkIndex < 0 {
		return fmt.Errorf("%w: %w", ErrInvalidChunkRecord, ErrNegativeChunkIndex)
	}

	if record.CharStart >= record.CharEnd {
		return fmt.Errorf("%w: %w", ErrInvalidChunkRecord, ErrInvalidCharRange)
	}

	return nil
}

// ValidateDocument validates a Document before chunking.
//
// Validation rules:
//   - DocID must not be empty
//   - SourcePath must not be empty
//
// NOT validated:
//   - RawText (an empty document chunks to an empty sequence, which is a
//     valid outcome, not an error)
func ValidateDocument(doc *Document) error {
	if doc == nil {
		return fmt.Errorf("%w: document is nil", ErrInvalidDocument)
	}

	if doc.DocID == "" {
		return fmt.Errorf("%w: %w", ErrInvalidDocument, ErrEmptyDocID)
	}

	if doc.SourcePath == "" {
		return fmt.Errorf("%w: source path cannot be empty", ErrInvalidDocument)
	}

	return nil
}
