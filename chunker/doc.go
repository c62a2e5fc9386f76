// Package chunker splits document text into overlapping chunks with
// deterministic identities and byte offsets.
//
// Chunking is pure: the same text and configuration always produce the
// same chunk boundaries and chunk IDs, which is what makes re-ingestion
// and idempotent upload possible. The package also provides the
// whitespace normalization applied to extracted text before chunking
// and a token estimate used for quota accounting.
package chunker
