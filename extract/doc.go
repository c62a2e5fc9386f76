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


// Package extract turns source files into core.Documents.
//
// The Extractor dispatches on file extension: PDF, DOCX and PPTX go
// through docconv, XLSX through excelize, and plain text formats are
// read directly. Document identity and provenance (DocID, source, role)
// derive from the path relative to the extractor's root, so repeated
// ingestion of the same tree is stable.
//
// Unsupported and unparseable files are per-file conditions
// (ErrUnsupportedFormat, ErrExtraction); callers skip them and keep
// going. Extraction returns raw text; normalization and chunking happen
// downstream.
package extract
