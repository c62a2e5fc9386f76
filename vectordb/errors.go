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


package vectordb

import (
	"errors"
	"fmt"
	"time"
)

// The error taxonomy every Store implementation must map its failures
// onto. The uploader branches on these with errors.Is, so wrapping must
// preserve the chain.
var (
	// ErrInvalidConfig indicates invalid backend configuration.
	ErrInvalidConfig = errors.New("invalid vector store configuration")

	// ErrUnavailable indicates the backend could not be reached or
	// answered with a server-side failure. Transient; callers retry.
	ErrUnavailable = errors.New("vector store unavailable")

	// ErrThrottled indicates the backend refused the request due to
	// quota or rate limits. Transient; callers back off and retry.
	ErrThrottled = errors.New("vector store throttled the request")

	// ErrRejected indicates the backend refused the request as
	// malformed or unprocessable. Permanent; retrying is pointless.
	ErrRejected = errors.New("vector store rejected the request")

	// ErrNotFound indicates the addressed resource does not exist.
	ErrNotFound = errors.New("not found in vector store")

	// ErrAuth indicates the backend refused the credentials.
	// Permanent for the whole run; callers abort.
	ErrAuth = errors.New("vector store authentication failed")

	// ErrSchemaConflict indicates the backend already holds the target
	// collection with an incompatible definition.
	ErrSchemaConflict = errors.New("vector store schema conflict")
)

// ThrottledError is a throttle response carrying the backend's retry
// hint. It unwraps to ErrThrottled so errors.Is still matches.
type ThrottledError struct {
	// RetryAfter is how long the backend asked us to wait.
	// Zero when the backend gave no hint.
	RetryAfter time.Duration
}

func (e *ThrottledError) Error() string {
	if e.RetryAfter > 0 {
		return fmt.Sprintf("vector store throttled the request, retry after %s", e.RetryAfter)
	}
	return "vector store throttled the request"
}

func (e *ThrottledError) Unwrap() error { return ErrThrottled }

// RetryAfterHint extracts the backend's retry hint from an error chain.
// Returns zero when the error is not a throttle or carries no hint.
func RetryAfterHint(err error) time.Duration {
	var throttled *ThrottledError
	if errors.As(err, &throttled) {
		return throttled.RetryAfter
	}
	return 0
}
