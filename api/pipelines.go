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

import (
	"context"
	"fmt"
	"net/http"
	"net/url"

	"github.com/google/uuid"
)

// FileIndexingStatus filters pipeline files by how indexing went.
type FileIndexingStatus string

const (
	// FileIndexingFailed selects files that failed during indexing.
	FileIndexingFailed FileIndexingStatus = "FAILED"
	// FileIndexingNoDocuments selects files that produced no documents.
	FileIndexingNoDocuments FileIndexingStatus = "INDEXED_NO_DOCUMENTS"
)

// PipelinesAPI wraps the pipeline-related file endpoints.
type PipelinesAPI struct {
	client *Client
}

// NewPipelinesAPI creates a PipelinesAPI on top of the given client.
func NewPipelinesAPI(client *Client) *PipelinesAPI {
	return &PipelinesAPI{client: client}
}

// FileIDs returns the IDs of files with the given indexing status for a
// pipeline.
func (a *PipelinesAPI) FileIDs(ctx context.Context, workspace, pipelineName string, status FileIndexingStatus) ([]uuid.UUID, error) {
	params := url.Values{}
	params.Set("status", string(status))

	resp, err := a.client.Get(ctx, workspace, "pipelines/"+url.PathEscape(pipelineName)+"/files", WithParams(params))
	if err != nil {
		return nil, err
	}
	if resp.StatusCode == http.StatusNotFound {
		return nil, fmt.Errorf("%w: %s", ErrPipelineNotFound, pipelineName)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%w: status %d: %s", ErrFetchFileIDs, resp.StatusCode, resp.Text())
	}

	var ids []uuid.UUID
	if err := resp.JSON(&ids); err != nil {
		return nil, fmt.Errorf("decoding file ids: %w", err)
	}
	return ids, nil
}
