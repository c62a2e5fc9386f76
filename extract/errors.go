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

import "errors"

var (
	// ErrRootRequired is returned when no root directory is provided.
	ErrRootRequired = errors.New("root directory required")

	// ErrUnsupportedFormat is returned for file extensions no parser
	// handles. Callers skip the file and continue.
	ErrUnsupportedFormat = errors.New("unsupported format")

	// ErrExtraction is returned when a parser fails on a file.
	// Callers skip the file and continue.
	ErrExtraction = errors.New("extraction failed")
)
