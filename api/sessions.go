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
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/google/uuid"
)

// WriteMode controls the server-side handling of duplicate file names. It
// is fixed at session creation and applies to every file in the session.
type WriteMode string

const (
	// WriteModeKeep uploads duplicates under the same name and keeps both.
	WriteModeKeep WriteMode = "KEEP"
	// WriteModeOverwrite replaces a file that already exists.
	WriteModeOverwrite WriteMode = "OVERWRITE"
	// WriteModeFail rejects an upload whose name already exists.
	WriteModeFail WriteMode = "FAIL"
)

// SessionState is the lifecycle state of an upload session.
type SessionState string

const (
	// SessionStateOpen accepts uploads.
	SessionStateOpen SessionState = "OPEN"
	// SessionStateClosed no longer accepts uploads; ingestion has started.
	SessionStateClosed SessionState = "CLOSED"
)

// StorageConfig is the pre-signed request config for writing directly to
// object storage: the destination URL plus the form fields (policy,
// signature, key prefix) that authenticate the write.
type StorageConfig struct {
	URL    string            `json:"url"`
	Fields map[string]string `json:"fields"`
}

// UploadSession is a server-side batch-ingestion slot. It stays open for 24
// hours unless closed earlier; closing is irreversible and triggers
// asynchronous ingestion of everything uploaded into it.
type UploadSession struct {
	SessionID        uuid.UUID     `json:"session_id"`
	ExpiresAt        time.Time     `json:"expires_at"`
	DocumentationURL string        `json:"documentation_url"`
	StorageConfig    StorageConfig `json:"aws_prefixed_request_config"`
}

// IngestionStatus carries the monotonically non-decreasing counters of
// server-side ingestion. The total uploaded count is tracked by the client.
type IngestionStatus struct {
	FinishedFiles int `json:"finished_files"`
	FailedFiles   int `json:"failed_files"`
}

// SessionStatus is the polled state of an upload session.
type SessionStatus struct {
	SessionID        uuid.UUID       `json:"session_id"`
	ExpiresAt        time.Time       `json:"expires_at"`
	DocumentationURL string          `json:"documentation_url"`
	IngestionStatus  IngestionStatus `json:"ingestion_status"`
}

// UserInfo identifies the user that created a session.
type UserInfo struct {
	UserID     uuid.UUID `json:"user_id"`
	GivenName  string    `json:"given_name"`
	FamilyName string    `json:"family_name"`
}

// SessionDetail describes one upload session in a listing.
type SessionDetail struct {
	SessionID uuid.UUID    `json:"session_id"`
	CreatedBy UserInfo     `json:"created_by"`
	CreatedAt time.Time    `json:"created_at"`
	ExpiresAt time.Time    `json:"expires_at"`
	WriteMode WriteMode    `json:"write_mode"`
	Status    SessionState `json:"status"`
}

// SessionDetailList is one page of an upload session listing.
type SessionDetailList struct {
	Total   int             `json:"total"`
	Data    []SessionDetail `json:"data"`
	HasMore bool            `json:"has_more"`
}

// UploadSessionsAPI wraps the upload session lifecycle endpoints.
type UploadSessionsAPI struct {
	client *Client
	retry  RetryPolicy
}

// NewUploadSessionsAPI creates an UploadSessionsAPI on top of the given
// client. Status and List are retried on failure; Create and Close are not.
func NewUploadSessionsAPI(client *Client) *UploadSessionsAPI {
	return &UploadSessionsAPI{
		client: client,
		retry:  DefaultRetryPolicy(func(err error) bool { return errors.Is(err, ErrSessionRequest) }),
	}
}

// Create opens a new upload session with the given write mode. A failure
// here is fatal for the whole batch.
func (a *UploadSessionsAPI) Create(ctx context.Context, workspace string, writeMode WriteMode) (UploadSession, error) {
	if writeMode == "" {
		writeMode = WriteModeKeep
	}
	resp, err := a.client.Post(ctx, workspace, "upload_sessions",
		WithJSON(map[string]string{"write_mode": string(writeMode)}))
	if err != nil {
		return UploadSession{}, err
	}
	if resp.StatusCode != http.StatusCreated {
		a.client.logger.Error("failed to create upload session",
			"status", resp.StatusCode, "body", resp.Text())
		return UploadSession{}, fmt.Errorf("%w: create returned status %d", ErrSessionRequest, resp.StatusCode)
	}

	var session UploadSession
	if err := resp.JSON(&session); err != nil {
		return UploadSession{}, fmt.Errorf("decoding upload session: %w", err)
	}
	return session, nil
}

// Close closes an upload session, which starts the server-side ingestion of
// its files. A closed session accepts no further uploads.
func (a *UploadSessionsAPI) Close(ctx context.Context, workspace string, sessionID uuid.UUID) error {
	resp, err := a.client.Put(ctx, workspace, "upload_sessions/"+sessionID.String(),
		WithJSON(map[string]string{"status": string(SessionStateClosed)}))
	if err != nil {
		return err
	}
	if resp.StatusCode != http.StatusNoContent {
		a.client.logger.Error("failed to close upload session",
			"session_id", sessionID, "status", resp.StatusCode, "body", resp.Text())
		return fmt.Errorf("%w: close returned status %d", ErrSessionRequest, resp.StatusCode)
	}
	return nil
}

// Status fetches the ingestion status of a session.
func (a *UploadSessionsAPI) Status(ctx context.Context, workspace string, sessionID uuid.UUID) (SessionStatus, error) {
	var status SessionStatus
	err := a.retry.Do(ctx, func() error {
		resp, err := a.client.Get(ctx, workspace, "upload_sessions/"+sessionID.String())
		if err != nil {
			return err
		}
		if resp.StatusCode != http.StatusOK {
			return fmt.Errorf("%w: status returned status %d", ErrSessionRequest, resp.StatusCode)
		}
		return resp.JSON(&status)
	})
	if err != nil {
		return SessionStatus{}, err
	}
	return status, nil
}

// List fetches one page of upload sessions. Pagination is page-number
// based, unlike the cursor-based file listing.
func (a *UploadSessionsAPI) List(ctx context.Context, workspace string, isExpired bool, limit, pageNumber int) (SessionDetailList, error) {
	params := url.Values{}
	params.Set("limit", strconv.Itoa(limit))
	params.Set("page_number", strconv.Itoa(pageNumber))
	if isExpired {
		params.Set("is_expired", "true")
	}

	var list SessionDetailList
	err := a.retry.Do(ctx, func() error {
		resp, err := a.client.Get(ctx, workspace, "upload_sessions", WithParams(params))
		if err != nil {
			return err
		}
		if resp.StatusCode != http.StatusOK {
			return fmt.Errorf("%w: list returned status %d", ErrSessionRequest, resp.StatusCode)
		}
		return resp.JSON(&list)
	})
	if err != nil {
		return SessionDetailList{}, err
	}
	return list, nil
}
