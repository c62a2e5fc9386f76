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


// Package vectordb defines the vector-search backend abstraction the
// upload pipeline delivers chunks to.
//
// The Store interface models the backend as a capability with quota and
// transient-failure characteristics, not as a database to reimplement:
// one batched upsert call, a readiness probe, and an error taxonomy that
// separates throttling (retry with back-pressure) from permanent
// rejection (isolate and continue) from auth failure (abort the run).
//
// # Implementation Packages
//
//   - vectordb/weaviate: production client for a Weaviate instance over
//     its REST API, including schema management and query passthrough.
//   - vectordb/mock: test double with injectable func fields.
//
// # Object Identity
//
// Backend object IDs are deterministic v5 UUIDs derived from the chunk
// ID, so re-delivering a chunk overwrites the same object instead of
// duplicating it. Idempotent re-upload is a structural property of the
// ID scheme, not a convention callers must remember.
package vectordb
