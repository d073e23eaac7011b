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
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/deepset-ai/deepset-cloud-sdk-go/api"
	"github.com/deepset-ai/deepset-cloud-sdk-go/objectstore"
)

const (
	// DirectUploadThreshold is the batch size at or below which files go
	// straight to the files endpoint instead of through an upload session.
	DirectUploadThreshold = 20

	// DefaultPollInterval is how often ingestion status is polled after a
	// session is closed.
	DefaultPollInterval = 2 * time.Second

	// DefaultTimeout bounds blocking operations such as ingestion polling
	// and full listings.
	DefaultTimeout = 300 * time.Second

	// DefaultDownloadConcurrency caps the parallel downloads within one
	// listing page.
	DefaultDownloadConcurrency = 10
)

// NoTimeout disables the deadline on a blocking operation. A zero timeout
// expires before the first attempt.
const NoTimeout = time.Duration(-1)

// UploadOptions controls a single upload batch.
type UploadOptions struct {
	// WriteMode decides what happens when a file of the same name already
	// exists in the workspace.
	WriteMode api.WriteMode

	// Blocking makes the upload wait until ingestion has processed every
	// uploaded file.
	Blocking bool

	// Timeout bounds the blocking wait. NoTimeout disables it.
	Timeout time.Duration

	// ShowProgress renders a progress bar on stderr.
	ShowProgress bool

	// Recursive descends into subdirectories when a directory is given.
	Recursive bool

	// FileTypes restricts the upload to the given extensions. Empty means
	// all supported types.
	FileTypes []string
}

// DefaultFileTypes is the conservative default upload filter. Other
// supported types must be opted into through FileTypes.
var DefaultFileTypes = []string{".txt", ".pdf"}

// DefaultUploadOptions returns the options used when callers have no
// special requirements: keep existing files, block until ingested, report
// progress, and upload only text and PDF files.
func DefaultUploadOptions() UploadOptions {
	return UploadOptions{
		WriteMode:    api.WriteModeKeep,
		Blocking:     true,
		Timeout:      DefaultTimeout,
		ShowProgress: true,
		FileTypes:    DefaultFileTypes,
	}
}

// FilesService coordinates uploads, ingestion polling, listings, and
// downloads for one workspace. Batches at or below DirectUploadThreshold
// go through the files endpoint directly; larger batches go through an
// upload session and the object storage uploader.
type FilesService struct {
	client       *api.Client
	sessions     *api.UploadSessionsAPI
	files        *api.FilesAPI
	store        *objectstore.Uploader
	logger       *slog.Logger
	pollInterval time.Duration
}

// Option customizes a FilesService.
type Option func(*FilesService)

// WithUploader replaces the object storage uploader.
func WithUploader(store *objectstore.Uploader) Option {
	return func(s *FilesService) {
		s.store = store
	}
}

// WithLogger sets the logger for upload and polling progress.
func WithLogger(logger *slog.Logger) Option {
	return func(s *FilesService) {
		s.logger = logger
	}
}

// WithPollInterval overrides the ingestion polling interval.
func WithPollInterval(d time.Duration) Option {
	return func(s *FilesService) {
		s.pollInterval = d
	}
}

// New creates a FilesService on top of an API client.
func New(client *api.Client, opts ...Option) *FilesService {
	s := &FilesService{
		client:       client,
		sessions:     api.NewUploadSessionsAPI(client),
		files:        api.NewFilesAPI(client),
		logger:       slog.Default(),
		pollInterval: DefaultPollInterval,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.store == nil {
		s.store = objectstore.New(objectstore.WithUploadLogger(s.logger))
	}
	return s
}

// NewFromEnv builds a FilesService from the environment, loading .env
// files the same way the CLI does.
func NewFromEnv(opts ...api.ConfigOption) (*FilesService, error) {
	api.LoadEnv()
	client, err := api.NewClient(api.ConfigFromEnv(opts...))
	if err != nil {
		return nil, err
	}
	return New(client), nil
}

func (s *FilesService) workspace() string {
	return s.client.Workspace()
}

// Upload validates and uploads the files under the given paths. Paths may
// be files or directories. Metadata sidecars named <file>.meta.json ride
// along with their raw files. The returned summary reflects the upload
// stage only; ingestion failures surface through SessionStatus.
func (s *FilesService) Upload(ctx context.Context, paths []string, opts UploadOptions) (objectstore.UploadSummary, error) {
	filePaths, err := s.preprocessPaths(paths, opts.Recursive, opts.FileTypes)
	if err != nil {
		return objectstore.UploadSummary{}, err
	}
	return s.UploadFilePaths(ctx, filePaths, opts)
}

// UploadFilePaths uploads an already-expanded list of file paths. The
// paths are validated before any network call is made.
func (s *FilesService) UploadFilePaths(ctx context.Context, filePaths []string, opts UploadOptions) (objectstore.UploadSummary, error) {
	if err := validateFilePaths(filePaths); err != nil {
		return objectstore.UploadSummary{}, err
	}

	if len(filePaths) <= DirectUploadThreshold {
		return s.uploadPathsDirectly(ctx, filePaths, opts)
	}
	return s.uploadPathsViaSession(ctx, filePaths, opts)
}

// UploadTexts uploads in-memory files. Small batches go directly to the
// files endpoint; larger ones go through an upload session.
func (s *FilesService) UploadTexts(ctx context.Context, files []objectstore.TextFile, opts UploadOptions) (objectstore.UploadSummary, error) {
	if len(files) <= DirectUploadThreshold {
		return s.uploadTextsDirectly(ctx, files, opts)
	}
	return s.uploadTextsViaSession(ctx, files, opts)
}

// metaSidecars maps each raw file path to its metadata sidecar, when one
// is present in the batch.
func metaSidecars(filePaths []string) (raw []string, sidecars map[string]string) {
	sidecars = make(map[string]string)
	metaByName := make(map[string]string)
	for _, path := range filePaths {
		if isMetaPath(path) {
			name := strings.TrimSuffix(strings.ToLower(filepath.Base(path)), metaSuffix)
			metaByName[name] = path
		}
	}
	for _, path := range filePaths {
		if isMetaPath(path) {
			continue
		}
		raw = append(raw, path)
		if metaPath, ok := metaByName[strings.ToLower(filepath.Base(path))]; ok {
			sidecars[path] = metaPath
		}
	}
	return raw, sidecars
}

func readMeta(path string) (map[string]any, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var meta map[string]any
	if err := json.Unmarshal(content, &meta); err != nil {
		return nil, fmt.Errorf("parsing metadata file %s: %w", path, err)
	}
	return meta, nil
}

func (s *FilesService) uploadPathsDirectly(ctx context.Context, filePaths []string, opts UploadOptions) (objectstore.UploadSummary, error) {
	rawPaths, sidecars := metaSidecars(filePaths)

	results := make([]objectstore.UploadResult, len(rawPaths))
	group, groupCtx := errgroup.WithContext(ctx)
	group.SetLimit(DefaultDownloadConcurrency)
	for i, path := range rawPaths {
		group.Go(func() error {
			result := objectstore.UploadResult{FileName: filepath.Base(path), Success: true}

			var meta map[string]any
			if metaPath, ok := sidecars[path]; ok {
				var err error
				if meta, err = readMeta(metaPath); err != nil {
					results[i] = objectstore.UploadResult{FileName: result.FileName, Err: err}
					return nil
				}
			}

			_, err := s.files.DirectUploadPath(groupCtx, s.workspace(), path, "", meta, opts.WriteMode)
			if err != nil {
				s.logger.Error("direct upload failed", "file_name", result.FileName, "error", err)
				result.Success = false
				result.Err = err
			}
			results[i] = result
			return nil
		})
	}
	if err := group.Wait(); err != nil {
		return objectstore.UploadSummary{}, err
	}

	return summarizeDirect(results, s.logger), nil
}

func (s *FilesService) uploadTextsDirectly(ctx context.Context, files []objectstore.TextFile, opts UploadOptions) (objectstore.UploadSummary, error) {
	results := make([]objectstore.UploadResult, len(files))
	group, groupCtx := errgroup.WithContext(ctx)
	group.SetLimit(DefaultDownloadConcurrency)
	for i, file := range files {
		group.Go(func() error {
			result := objectstore.UploadResult{FileName: file.Name, Success: true}
			_, err := s.files.DirectUploadInMemory(groupCtx, s.workspace(), file.Name, []byte(file.Text), file.Meta, opts.WriteMode)
			if err != nil {
				s.logger.Error("direct upload failed", "file_name", file.Name, "error", err)
				result.Success = false
				result.Err = err
			}
			results[i] = result
			return nil
		})
	}
	if err := group.Wait(); err != nil {
		return objectstore.UploadSummary{}, err
	}

	return summarizeDirect(results, s.logger), nil
}

func summarizeDirect(results []objectstore.UploadResult, logger *slog.Logger) objectstore.UploadSummary {
	summary := objectstore.UploadSummary{TotalFiles: len(results)}
	for _, result := range results {
		if result.Success {
			summary.SuccessfulUploadCount++
		} else {
			summary.FailedUploadCount++
			summary.Failed = append(summary.Failed, result)
		}
	}
	logger.Info("direct upload finished",
		"total", summary.TotalFiles,
		"successful", summary.SuccessfulUploadCount,
		"failed", summary.FailedUploadCount)
	return summary
}

// withSession runs the upload stage inside an upload session. The session
// is closed on every exit path; closing triggers server-side ingestion of
// whatever made it into storage. logicalFiles is the number of files
// excluding metadata sidecars, which is what ingestion counts.
func (s *FilesService) withSession(ctx context.Context, opts UploadOptions, logicalFiles int, upload func(session api.UploadSession) (objectstore.UploadSummary, error)) (objectstore.UploadSummary, error) {
	session, err := s.sessions.Create(ctx, s.workspace(), opts.WriteMode)
	if err != nil {
		return objectstore.UploadSummary{}, err
	}
	s.logger.Info("upload session opened", "session_id", session.SessionID)

	summary, uploadErr := s.uploadThenClose(ctx, session, upload)
	if uploadErr != nil {
		return summary, uploadErr
	}

	if opts.Blocking {
		if err := s.waitForIngestion(ctx, session.SessionID, logicalFiles, opts); err != nil {
			return summary, err
		}
	}
	return summary, nil
}

// uploadThenClose runs the upload stage and closes the session on every
// exit path, panics included. The close uses an uncancelled context so an
// aborted upload still releases the session.
func (s *FilesService) uploadThenClose(ctx context.Context, session api.UploadSession, upload func(session api.UploadSession) (objectstore.UploadSummary, error)) (summary objectstore.UploadSummary, err error) {
	defer func() {
		closeCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), api.DefaultTimeout)
		defer cancel()
		if closeErr := s.sessions.Close(closeCtx, s.workspace(), session.SessionID); closeErr != nil {
			s.logger.Error("failed to close upload session", "session_id", session.SessionID, "error", closeErr)
			if err == nil {
				err = closeErr
			}
		}
	}()
	return upload(session)
}

func (s *FilesService) uploadPathsViaSession(ctx context.Context, filePaths []string, opts UploadOptions) (objectstore.UploadSummary, error) {
	logicalFiles := 0
	for _, path := range filePaths {
		if !isMetaPath(path) {
			logicalFiles++
		}
	}
	return s.withSession(ctx, opts, logicalFiles, func(session api.UploadSession) (objectstore.UploadSummary, error) {
		return s.store.UploadPaths(ctx, session, filePaths, opts.ShowProgress)
	})
}

func (s *FilesService) uploadTextsViaSession(ctx context.Context, files []objectstore.TextFile, opts UploadOptions) (objectstore.UploadSummary, error) {
	return s.withSession(ctx, opts, len(files), func(session api.UploadSession) (objectstore.UploadSummary, error) {
		return s.store.UploadInMemory(ctx, session, files, opts.ShowProgress)
	})
}

// waitForIngestion polls session status until the server has processed
// every uploaded file, counting failed files as processed.
func (s *FilesService) waitForIngestion(ctx context.Context, sessionID uuid.UUID, totalFiles int, opts UploadOptions) error {
	if totalFiles == 0 {
		s.logger.Info("nothing was uploaded, skipping ingestion wait", "session_id", sessionID)
		return nil
	}

	var tracker *objectstore.Tracker
	if opts.ShowProgress {
		tracker = objectstore.NewTracker(os.Stderr, "Ingesting", totalFiles, 1)
		tracker.Start()
		defer tracker.Finish()
	}

	start := time.Now()
	for {
		if opts.Timeout >= 0 && time.Since(start) >= opts.Timeout {
			return fmt.Errorf("%w after %s: session %s", ErrIngestionTimedOut, opts.Timeout, sessionID)
		}

		status, err := s.sessions.Status(ctx, s.workspace(), sessionID)
		if err != nil {
			return err
		}
		processed := status.IngestionStatus.FinishedFiles + status.IngestionStatus.FailedFiles
		if tracker != nil {
			tracker.Update(min(processed, totalFiles))
		}
		s.logger.Debug("ingestion progress",
			"session_id", sessionID,
			"finished", status.IngestionStatus.FinishedFiles,
			"failed", status.IngestionStatus.FailedFiles,
			"total", totalFiles)
		if processed >= totalFiles {
			if status.IngestionStatus.FailedFiles > 0 {
				s.logger.Warn("some files failed ingestion",
					"session_id", sessionID,
					"failed", status.IngestionStatus.FailedFiles)
			}
			return nil
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(s.pollInterval):
		}
	}
}

// ListAll walks the full file listing in pages, invoking fn once per
// page. Iteration stops when fn returns an error, the listing is
// exhausted, or the timeout elapses.
func (s *FilesService) ListAll(ctx context.Context, params api.ListParams, timeout time.Duration, fn func(page api.FileList) error) error {
	if params.Limit <= 0 {
		params.Limit = 100
	}

	start := time.Now()
	for {
		if timeout >= 0 && time.Since(start) >= timeout {
			return fmt.Errorf("%w after %s", ErrListTimedOut, timeout)
		}

		page, err := s.files.ListPaginated(ctx, s.workspace(), params)
		if err != nil {
			return err
		}
		if len(page.Data) == 0 {
			return nil
		}
		if err := fn(page); err != nil {
			return err
		}
		if !page.HasMore {
			return nil
		}

		last := page.Data[len(page.Data)-1]
		params.AfterValue = last.CreatedAt.Format(time.RFC3339Nano)
		params.AfterFileID = last.FileID
	}
}

// ListUploadSessions fetches one page of upload sessions.
func (s *FilesService) ListUploadSessions(ctx context.Context, isExpired bool, limit, pageNumber int) (api.SessionDetailList, error) {
	return s.sessions.List(ctx, s.workspace(), isExpired, limit, pageNumber)
}

// SessionStatus fetches the ingestion status of one upload session.
func (s *FilesService) SessionStatus(ctx context.Context, sessionID uuid.UUID) (api.SessionStatus, error) {
	return s.sessions.Status(ctx, s.workspace(), sessionID)
}

// DownloadOptions controls a bulk download.
type DownloadOptions struct {
	// Dir is the target directory. It is created if missing.
	Dir string

	// IncludeMeta downloads each file's metadata next to it as
	// <saved_name>.meta.json.
	IncludeMeta bool

	// Timeout bounds the whole download. NoTimeout disables it.
	Timeout time.Duration

	// ShowProgress renders a progress bar on stderr.
	ShowProgress bool

	// Concurrency caps parallel downloads within one listing page.
	Concurrency int
}

// Download fetches every file matching params into opts.Dir. Name
// collisions on disk are resolved by suffixing, and individual download
// failures are logged and counted without aborting the batch.
func (s *FilesService) Download(ctx context.Context, params api.ListParams, opts DownloadOptions) (int, error) {
	if opts.Dir == "" {
		opts.Dir = "."
	}
	if err := os.MkdirAll(opts.Dir, 0o755); err != nil {
		return 0, err
	}
	concurrency := opts.Concurrency
	if concurrency <= 0 {
		concurrency = DefaultDownloadConcurrency
	}

	var (
		mu         sync.Mutex
		downloaded int
		failed     int
		tracker    *objectstore.Tracker
	)

	err := s.ListAll(ctx, params, opts.Timeout, func(page api.FileList) error {
		if opts.ShowProgress && tracker == nil {
			tracker = objectstore.NewTracker(os.Stderr, "Downloading", page.Total, 1)
			tracker.Start()
		}
		group, groupCtx := errgroup.WithContext(ctx)
		group.SetLimit(concurrency)
		for _, file := range page.Data {
			group.Go(func() error {
				err := s.files.Download(groupCtx, s.workspace(), file.FileID, file.Name, opts.Dir, opts.IncludeMeta)
				mu.Lock()
				defer mu.Unlock()
				if err != nil {
					s.logger.Error("download failed", "file_name", file.Name, "file_id", file.FileID, "error", err)
					failed++
					return nil
				}
				downloaded++
				if tracker != nil {
					tracker.Increment(1)
				}
				return nil
			})
		}
		return group.Wait()
	})
	if tracker != nil {
		tracker.Finish()
	}
	if err != nil {
		if errors.Is(err, ErrListTimedOut) {
			err = fmt.Errorf("%w: downloaded %d files before the deadline", ErrDownloadTimedOut, downloaded)
		}
		return downloaded, err
	}
	if failed > 0 {
		s.logger.Warn("some downloads failed", "failed", failed, "downloaded", downloaded)
	}
	return downloaded, nil
}
