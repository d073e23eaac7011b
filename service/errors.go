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


package service

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrIngestionTimedOut indicates the blocking wait for server-side
	// ingestion exceeded its deadline. Uploaded files are not rolled back.
	ErrIngestionTimedOut = errors.New("ingestion timed out")

	// ErrListTimedOut indicates a paginated listing exceeded its deadline.
	ErrListTimedOut = errors.New("listing timed out")

	// ErrDownloadTimedOut indicates a bulk download exceeded its deadline.
	ErrDownloadTimedOut = errors.New("download timed out")
)

// ValidationError rejects a batch before any network activity. Files lists
// the offending paths so the caller can act on them.
type ValidationError struct {
	Reason string
	Files  []string
}

func (e *ValidationError) Error() string {
	if len(e.Files) == 0 {
		return e.Reason
	}
	return fmt.Sprintf("%s: %s", e.Reason, strings.Join(e.Files, ", "))
}
