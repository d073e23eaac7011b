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
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"mime/multipart"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/google/uuid"
)

// File is the file primitive of the deepset AI Platform. It carries file
// metadata only, never the file content.
type File struct {
	FileID    uuid.UUID      `json:"file_id"`
	URL       string         `json:"url"`
	Name      string         `json:"name"`
	Size      int64          `json:"size"`
	CreatedAt time.Time      `json:"created_at"`
	Meta      map[string]any `json:"meta"`
}

// FileList is one page of a cursor-paginated file listing.
type FileList struct {
	Total   int    `json:"total"`
	Data    []File `json:"data"`
	HasMore bool   `json:"has_more"`
}

// ListParams are the filters and cursor for a paginated file listing.
type ListParams struct {
	// Limit is the page size.
	Limit int

	// Name filters by substring match on the file name.
	Name string

	// Content filters by file content.
	Content string

	// Filter is an OData filter applied to file metadata.
	Filter string

	// AfterValue and AfterFileID form the pagination cursor; both must be
	// set for the cursor to apply.
	AfterValue  string
	AfterFileID uuid.UUID
}

func (p ListParams) values() url.Values {
	params := url.Values{}
	if p.Limit > 0 {
		params.Set("limit", strconv.Itoa(p.Limit))
	}
	if p.AfterValue != "" && p.AfterFileID != uuid.Nil {
		params.Set("after_value", p.AfterValue)
		params.Set("after_file_id", p.AfterFileID.String())
	}
	if p.Name != "" {
		params.Set("name", p.Name)
	}
	if p.Content != "" {
		params.Set("content", p.Content)
	}
	if p.Filter != "" {
		params.Set("filter", p.Filter)
	}
	return params
}

// FilesAPI wraps the file endpoints: listing, direct upload, download, and
// deletion.
type FilesAPI struct {
	client *Client
}

// NewFilesAPI creates a FilesAPI on top of the given client.
func NewFilesAPI(client *Client) *FilesAPI {
	return &FilesAPI{client: client}
}

// ListPaginated fetches one page of files using cursor-based pagination.
func (a *FilesAPI) ListPaginated(ctx context.Context, workspace string, params ListParams) (FileList, error) {
	resp, err := a.client.Get(ctx, workspace, "files", WithParams(params.values()))
	if err != nil {
		return FileList{}, err
	}
	if resp.StatusCode != http.StatusOK {
		return FileList{}, fmt.Errorf("%w: failed to list files, status %d: %s",
			ErrUnexpectedStatus, resp.StatusCode, resp.Text())
	}

	var list FileList
	if err := resp.JSON(&list); err != nil {
		return FileList{}, fmt.Errorf("decoding file list: %w", err)
	}
	return list, nil
}

// uploadForm builds the multipart body for a direct upload: the file content
// under "file" and the metadata JSON under "meta".
func uploadForm(fileName string, content []byte, meta map[string]any) (string, []byte, error) {
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)

	part, err := w.CreateFormFile("file", fileName)
	if err != nil {
		return "", nil, err
	}
	if _, err := part.Write(content); err != nil {
		return "", nil, err
	}

	metaJSON, err := json.Marshal(meta)
	if err != nil {
		return "", nil, fmt.Errorf("encoding file meta: %w", err)
	}
	if err := w.WriteField("meta", string(metaJSON)); err != nil {
		return "", nil, err
	}

	if err := w.Close(); err != nil {
		return "", nil, err
	}
	return w.FormDataContentType(), buf.Bytes(), nil
}

func (a *FilesAPI) directUpload(ctx context.Context, workspace, fileName string, content []byte, meta map[string]any, writeMode WriteMode) (uuid.UUID, error) {
	contentType, body, err := uploadForm(fileName, content, meta)
	if err != nil {
		return uuid.Nil, err
	}

	params := url.Values{}
	params.Set("write_mode", string(writeMode))

	resp, err := a.client.Post(ctx, workspace, "files", WithParams(params), WithBody(contentType, body))
	if err != nil {
		return uuid.Nil, err
	}
	if resp.StatusCode != http.StatusCreated {
		return uuid.Nil, fmt.Errorf("%w: status %d: %s", ErrFileUploadFailed, resp.StatusCode, resp.Text())
	}

	var created struct {
		FileID uuid.UUID `json:"file_id"`
	}
	if err := resp.JSON(&created); err != nil || created.FileID == uuid.Nil {
		return uuid.Nil, fmt.Errorf("%w: response carried no file_id: %s", ErrFileUploadFailed, resp.Text())
	}
	return created.FileID, nil
}

// DirectUploadPath uploads a single file from disk through the API server,
// bypassing upload sessions. fileName defaults to the path's base name.
func (a *FilesAPI) DirectUploadPath(ctx context.Context, workspace, path, fileName string, meta map[string]any, writeMode WriteMode) (uuid.UUID, error) {
	if fileName == "" {
		fileName = filepath.Base(path)
	}
	content, err := os.ReadFile(path)
	if err != nil {
		return uuid.Nil, fmt.Errorf("reading %s: %w", path, err)
	}
	return a.directUpload(ctx, workspace, fileName, content, meta, writeMode)
}

// DirectUploadInMemory uploads in-memory content as a file through the API
// server, bypassing upload sessions.
func (a *FilesAPI) DirectUploadInMemory(ctx context.Context, workspace, fileName string, content []byte, meta map[string]any, writeMode WriteMode) (uuid.UUID, error) {
	return a.directUpload(ctx, workspace, fileName, content, meta, writeMode)
}

// Delete removes files from the workspace.
func (a *FilesAPI) Delete(ctx context.Context, workspace string, fileIDs []uuid.UUID) error {
	ids := make([]string, len(fileIDs))
	for i, id := range fileIDs {
		ids[i] = id.String()
	}
	resp, err := a.client.Delete(ctx, workspace, "files", WithJSON(map[string]any{"file_ids": ids}))
	if err != nil {
		return err
	}
	if !resp.Success() {
		return fmt.Errorf("%w: failed to delete files, status %d: %s",
			ErrUnexpectedStatus, resp.StatusCode, resp.Text())
	}
	return nil
}

// Download fetches a file's content, and optionally its metadata sidecar,
// into dir. Existing files are never overwritten: a numeric suffix is added
// to the name instead. dir defaults to the current working directory.
func (a *FilesAPI) Download(ctx context.Context, workspace string, fileID uuid.UUID, fileName, dir string, includeMeta bool) error {
	if dir == "" {
		wd, err := os.Getwd()
		if err != nil {
			return err
		}
		dir = wd
	}

	resp, err := a.client.Get(ctx, workspace, "files/"+fileID.String())
	if err != nil {
		return err
	}
	if resp.StatusCode == http.StatusNotFound {
		return fmt.Errorf("%w: %s", ErrFileNotFound, fileID)
	}
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("%w: failed to download file, status %d: %s",
			ErrUnexpectedStatus, resp.StatusCode, resp.Text())
	}

	savedName, err := saveToDisk(dir, fileName, resp.Body)
	if err != nil {
		return err
	}

	if !includeMeta {
		return nil
	}
	metaResp, err := a.client.Get(ctx, workspace, "files/"+fileID.String()+"/meta")
	if err != nil {
		return err
	}
	if metaResp.StatusCode == http.StatusNotFound {
		return fmt.Errorf("%w: meta for %s", ErrFileNotFound, fileID)
	}
	if metaResp.StatusCode != http.StatusOK {
		return fmt.Errorf("%w: failed to download file meta, status %d: %s",
			ErrUnexpectedStatus, metaResp.StatusCode, metaResp.Text())
	}
	_, err = saveToDisk(dir, savedName+".meta.json", metaResp.Body)
	return err
}

// saveToDisk writes content under dir, creating it if needed. On a name
// collision the file is stored as name_1.ext, name_2.ext, and so on. The
// name actually used is returned.
func saveToDisk(dir, fileName string, content []byte) (string, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", err
	}

	name := fileName
	if _, err := os.Stat(filepath.Join(dir, name)); err == nil {
		name = availableFileName(dir, fileName)
	}
	if err := os.WriteFile(filepath.Join(dir, name), content, 0o644); err != nil {
		return "", err
	}
	return name, nil
}

func availableFileName(dir, fileName string) string {
	ext := filepath.Ext(fileName)
	base := fileName[:len(fileName)-len(ext)]
	for i := 1; ; i++ {
		candidate := fmt.Sprintf("%s_%d%s", base, i, ext)
		// Any stat failure means the candidate is not a visible existing
		// file; the write will surface real problems with the path.
		if _, err := os.Stat(filepath.Join(dir, candidate)); err != nil {
			return candidate
		}
	}
}
