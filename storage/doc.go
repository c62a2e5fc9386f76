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


// Package storage provides the storage abstraction layer for vecfeed.
//
// This package defines repository interfaces that decouple storage
// implementation from pipeline logic. Two stores back the pipeline:
//
//   - ChunkRepository: the intermediate chunk store. Implemented by the
//     jsonl subpackage as one JSON-lines file per document; the file
//     format is the durable contract between the ingest stage and the
//     upload stage.
//   - LedgerRepository: the delivery progress ledger. Implemented by the
//     badger subpackage as a crash-durable set of delivered chunk IDs;
//     membership here is what makes re-running an upload idempotent.
//
// # Constructor Return Type Pattern
//
// Public constructors return the repository interfaces, not concrete
// types, to keep callers decoupled from the backing store:
//
//	chunks, err := jsonl.NewChunkRepository(dir)    // storage.ChunkRepository
//	ledger, err := badger.NewLedgerRepository(path) // storage.LedgerRepository
//
// Internal constructors may return concrete types since they are only
// used within the implementation packages.
//
// # Thread Safety
//
// All repository implementations must be thread-safe. The upload worker
// pool reads chunks and inserts ledger entries concurrently; the chunk
// store's atomic per-document replace guarantees a reader never observes
// a partially written chunk set.
//
// # Context Support
//
// All repository methods accept context.Context for cancellation and
// timeout support. Pass context.Background() for operations without
// specific timeout requirements.
package storage
