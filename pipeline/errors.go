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


package pipeline

import (
	"errors"
	"fmt"
	"strings"
)

// ErrImportFailed indicates the platform rejected the create or
// overwrite request.
var ErrImportFailed = errors.New("pipeline import failed")

// ValidationDetail is one finding from remote YAML validation.
type ValidationDetail struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// ValidationFailedError reports that remote validation rejected a
// rendered definition.
type ValidationFailedError struct {
	StatusCode int
	Details    []ValidationDetail
}

func (e *ValidationFailedError) Error() string {
	if len(e.Details) == 0 {
		return fmt.Sprintf("validation failed with status %d", e.StatusCode)
	}
	messages := make([]string, len(e.Details))
	for i, detail := range e.Details {
		messages[i] = fmt.Sprintf("%s: %s", detail.Code, detail.Message)
	}
	return fmt.Sprintf("validation failed with status %d: %s", e.StatusCode, strings.Join(messages, "; "))
}
