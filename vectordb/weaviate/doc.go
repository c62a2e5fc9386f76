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


// Package weaviate implements vectordb.Store against a Weaviate
// instance over its REST API.
//
// The client covers four concerns:
//
//   - Readiness and build info (GET /v1/meta).
//   - Schema lifecycle for the chunk class: EnsureSchema creates the
//     class or verifies the stored definition matches the expected
//     property contract, and ResetSchema drops and recreates it.
//   - Batched object upsert (POST /v1/batch/objects) with per-item
//     status parsing, used by the upload pipeline.
//   - Query passthrough (Count, NearText) over GraphQL, used by the
//     status and query commands to verify delivered data.
//
// Every failure is mapped onto the vectordb error taxonomy. Throttle
// responses (429, 503) carry the server's Retry-After hint through
// vectordb.ThrottledError so the uploader's rate limiter can align its
// back-off with the backend's quota window.
package weaviate
