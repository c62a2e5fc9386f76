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


// Package upload delivers chunk records to a vector store in batched,
// rate-limited, idempotent fashion.
//
// The uploader streams chunks from a source iterator, filters out IDs
// already recorded in the delivery ledger, groups the rest into batches
// and fans them out over a bounded worker pool. Every batch passes
// through one shared RateLimiter before touching the backend: a
// proactive token bucket sized from the embedding quota plus a reactive
// throttle window fed by the backend's 429/503 responses.
//
// # Delivery Semantics
//
// At-least-once with idempotent effect: a chunk is marked in the ledger
// only after the backend accepted it, and the backend's object IDs are
// deterministic per chunk, so a crash between acceptance and marking
// causes a harmless re-upsert on the next run. Per-chunk rejections are
// permanent and end up in the run summary's failed set; throttling is
// never failure, only delay. A batch that keeps failing is abandoned
// after its attempt limit so one poisoned batch cannot halt a run.
//
// Batches complete out of order. Consumers must not assume document
// order in the backend.
package upload
