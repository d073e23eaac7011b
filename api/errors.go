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


package api

import "errors"

var (
	// ErrMissingAPIKey indicates that no API key was configured. Go to
	// Connections in the deepset AI Platform to generate one.
	ErrMissingAPIKey = errors.New("API_KEY is not set")

	// ErrMissingAPIURL indicates that the API base URL was configured empty.
	ErrMissingAPIURL = errors.New("API_URL is not set")

	// ErrWorkspaceNotDefined indicates that a request was attempted without
	// a workspace name.
	ErrWorkspaceNotDefined = errors.New("workspace name is not defined")

	// ErrFileNotFound indicates that a file does not exist in the workspace.
	ErrFileNotFound = errors.New("file not found in deepset AI Platform")

	// ErrFileUploadFailed indicates that a direct file upload was rejected.
	ErrFileUploadFailed = errors.New("failed to upload file")

	// ErrSessionRequest indicates that an upload session could not be
	// created, closed, or queried.
	ErrSessionRequest = errors.New("upload session request failed")

	// ErrPipelineNotFound indicates that a pipeline does not exist in the
	// workspace.
	ErrPipelineNotFound = errors.New("pipeline not found")

	// ErrFetchFileIDs indicates that pipeline file IDs could not be fetched.
	ErrFetchFileIDs = errors.New("failed to fetch pipeline file ids")

	// ErrUnexpectedStatus indicates a response outside the expected status
	// family for the endpoint.
	ErrUnexpectedStatus = errors.New("unexpected response status")
)
