// Copyright 2025 The Reagent Authors
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

package httpclient

import (
	"fmt"
	"time"
)

// RetryableError reports a request the client gave up retrying. Status is
// the last response's status code (0 when no response arrived), RetryAfter
// is the backoff the next attempt would have waited, and the wrapped error
// is the final attempt's failure so callers can errors.Is/As through it.
type RetryableError struct {
	Status     int
	Message    string
	RetryAfter time.Duration
	Err        error
}

func (e *RetryableError) Error() string {
	if e.RetryAfter > 0 {
		return fmt.Sprintf("HTTP %d: %s (retry after %v)", e.Status, e.Message, e.RetryAfter)
	}
	return fmt.Sprintf("HTTP %d: %s", e.Status, e.Message)
}

func (e *RetryableError) Unwrap() error { return e.Err }
