// Copyright 2025 deepset GmbH
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


package objectstore

import (
	"errors"
	"fmt"
)

// ErrUploadRejected indicates a storage response outside the 2xx family
// that is not worth retrying.
var ErrUploadRejected = errors.New("storage rejected the upload")

// RetryableHTTPError marks a storage failure as transient: a connection
// error or a response in the retryable status set (500, 502, 503, 504,
// 408). The uploader retries these with bounded attempts.
type RetryableHTTPError struct {
	// StatusCode is the HTTP status, or 0 for connection errors.
	StatusCode int

	// Err is the underlying error or response detail.
	Err error
}

func (e *RetryableHTTPError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("retryable storage error (status %d): %v", e.StatusCode, e.Err)
	}
	return fmt.Sprintf("retryable storage error: %v", e.Err)
}

func (e *RetryableHTTPError) Unwrap() error {
	return e.Err
}

// IsRetryable reports whether err is a RetryableHTTPError.
func IsRetryable(err error) bool {
	var retryable *RetryableHTTPError
	return errors.As(err, &retryable)
}
