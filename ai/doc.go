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


// Package ai provides the text embedding abstraction used by the upload
// pipeline when vectors are computed client-side.
//
// Embedding is optional: by default the vector backend vectorizes
// server-side and this package never runs. When client-side vectors are
// requested, the uploader embeds each batch through an Embedder before
// delivery.
//
// # Implementation Packages
//
//   - ai/openai: Production implementation for OpenAI-compatible APIs
//     (OpenAI, Ollama, LocalAI, vLLM) via langchaingo.
//   - ai/mock: Deterministic test double for unit testing without an
//     external service.
//
// Public constructors (openai.NewEmbedder) return the Embedder
// interface to enforce abstraction; mock constructors return concrete
// types so tests can inject behavior and assert call counts.
package ai
