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
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"net/url"
	"os"
	"path/filepath"
	"regexp"
	"sync"
	"time"

	"github.com/panjf2000/ants/v2"

	"github.com/deepset-ai/deepset-cloud-sdk-go/api"
	"github.com/deepset-ai/deepset-cloud-sdk-go/ratelimit"
)

const (
	// DefaultConcurrency is the default size of the worker gate: the number
	// of uploads in flight at once. The rate limiter independently bounds
	// the request rate.
	DefaultConcurrency = 30

	// MaxConcurrency caps the worker gate.
	MaxConcurrency = 120

	// DefaultMaxAttempts is the number of attempts for a retryable storage
	// failure.
	DefaultMaxAttempts = 3

	// DefaultRetryDelay is the fixed pause between storage retry attempts.
	DefaultRetryDelay = 500 * time.Millisecond

	// MetaSuffix is appended to a file name to form its metadata sidecar.
	MetaSuffix = ".meta.json"
)

// unsafeKeyChars matches the characters object storage does not accept in
// keys: control characters plus \ # % " ' | < > { } ` ^ [ ] ~.
var unsafeKeyChars = regexp.MustCompile("[\\\\#%\"'|<>{}`^\\[\\]~\\x00-\\x1F]")

// SafeName transforms a file name into a storage-safe object key by
// replacing disallowed characters with underscores.
func SafeName(fileName string) string {
	return unsafeKeyChars.ReplaceAllString(fileName, "_")
}

// UploadResult records the outcome of uploading one object. A logical file
// can produce two results: its content and its metadata sidecar.
type UploadResult struct {
	FileName string
	Success  bool
	Err      error
}

// UploadSummary is the reduction of a batch of UploadResults.
// SuccessfulUploadCount + FailedUploadCount == TotalFiles and
// len(Failed) == FailedUploadCount always hold.
type UploadSummary struct {
	TotalFiles            int
	SuccessfulUploadCount int
	FailedUploadCount     int
	Failed                []UploadResult
}

// TextFile is an in-memory file with optional metadata. Metadata is
// uploaded as a separate <name>.meta.json object.
type TextFile struct {
	Name string
	Text string
	Meta map[string]any
}

// MetaJSON returns the metadata encoded for the sidecar object.
func (f TextFile) MetaJSON() ([]byte, error) {
	return json.Marshal(f.Meta)
}

// Uploader pushes file content to the pre-signed storage destination of an
// upload session. One Uploader holds one connection pool sized to its
// concurrency gate; do not share it across unrelated batches unless a
// global ceiling is intended.
type Uploader struct {
	concurrency int
	limiter     *ratelimit.Limiter
	retry       api.RetryPolicy
	httpClient  *http.Client
	logger      *slog.Logger
}

// Option configures an Uploader.
type Option func(*Uploader)

// WithConcurrency sets the number of simultaneous in-flight uploads,
// clamped to [1, MaxConcurrency].
func WithConcurrency(n int) Option {
	return func(u *Uploader) {
		if n < 1 {
			n = 1
		}
		if n > MaxConcurrency {
			n = MaxConcurrency
		}
		u.concurrency = n
	}
}

// WithLimiter replaces the token-bucket rate limiter.
func WithLimiter(limiter *ratelimit.Limiter) Option {
	return func(u *Uploader) {
		if limiter != nil {
			u.limiter = limiter
		}
	}
}

// WithMaxAttempts sets the attempt bound for retryable storage failures.
func WithMaxAttempts(n int) Option {
	return func(u *Uploader) {
		if n > 0 {
			u.retry.MaxAttempts = n
		}
	}
}

// WithRetryDelay sets the fixed delay between storage retry attempts.
func WithRetryDelay(d time.Duration) Option {
	return func(u *Uploader) {
		if d >= 0 {
			u.retry.Delay = d
		}
	}
}

// WithHTTPClient replaces the underlying HTTP client. The client must not
// follow redirects: 307 responses are handled explicitly because multipart
// bodies are single-use.
func WithHTTPClient(hc *http.Client) Option {
	return func(u *Uploader) {
		if hc != nil {
			u.httpClient = hc
		}
	}
}

// WithUploadLogger sets a custom logger. Default is slog.Default().
func WithUploadLogger(logger *slog.Logger) Option {
	return func(u *Uploader) {
		if logger != nil {
			u.logger = logger
		}
	}
}

// New creates an Uploader with bounded concurrency and a token-bucket rate
// limit calibrated to the storage backend's write ceiling.
func New(opts ...Option) *Uploader {
	u := &Uploader{
		concurrency: DefaultConcurrency,
		limiter:     ratelimit.Default(),
		retry: api.RetryPolicy{
			MaxAttempts: DefaultMaxAttempts,
			Delay:       DefaultRetryDelay,
			RetryIf:     IsRetryable,
		},
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(u)
	}
	if u.httpClient == nil {
		u.httpClient = &http.Client{
			Transport: &http.Transport{
				MaxIdleConnsPerHost: u.concurrency,
				MaxConnsPerHost:     u.concurrency,
			},
		}
	}
	u.httpClient.CheckRedirect = func(req *http.Request, via []*http.Request) error {
		return http.ErrUseLastResponse
	}
	u.retry.RetryIf = IsRetryable
	return u
}

// buildForm assembles the pre-signed multipart body: the session's required
// fields first, then the file content under the "file" field. The body is
// single-use and must be rebuilt for a redirect resubmission.
func buildForm(session api.UploadSession, safeName string, content []byte) (string, []byte, error) {
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)

	for key, value := range session.StorageConfig.Fields {
		if err := w.WriteField(key, value); err != nil {
			return "", nil, err
		}
	}

	header := make(textproto.MIMEHeader)
	header.Set("Content-Disposition",
		fmt.Sprintf(`form-data; name="file"; filename="%s"`, url.PathEscape(safeName)))
	header.Set("Content-Type", "text/plain")
	part, err := w.CreatePart(header)
	if err != nil {
		return "", nil, err
	}
	if _, err := part.Write(content); err != nil {
		return "", nil, err
	}

	if err := w.Close(); err != nil {
		return "", nil, err
	}
	return w.FormDataContentType(), buf.Bytes(), nil
}

// retryableStatus is the set of storage responses worth retrying.
func retryableStatus(code int) bool {
	switch code {
	case http.StatusInternalServerError,
		http.StatusBadGateway,
		http.StatusServiceUnavailable,
		http.StatusGatewayTimeout,
		http.StatusRequestTimeout:
		return true
	}
	return false
}

// post sends one rate-limited multipart POST and returns the response
// status and the Location header. Connection errors are retryable.
func (u *Uploader) post(ctx context.Context, destination string, session api.UploadSession, safeName string, content []byte) (int, string, error) {
	if err := u.limiter.Acquire(ctx); err != nil {
		return 0, "", err
	}

	contentType, body, err := buildForm(session, safeName, content)
	if err != nil {
		return 0, "", err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, destination, bytes.NewReader(body))
	if err != nil {
		return 0, "", err
	}
	req.Header.Set("Content-Type", contentType)

	resp, err := u.httpClient.Do(req)
	if err != nil {
		return 0, "", &RetryableHTTPError{Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		io.Copy(io.Discard, resp.Body)
		return resp.StatusCode, "", nil
	}

	detail, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
	location := resp.Header.Get("Location")
	if retryableStatus(resp.StatusCode) {
		return resp.StatusCode, location, &RetryableHTTPError{
			StatusCode: resp.StatusCode,
			Err:        fmt.Errorf("%s", detail),
		}
	}
	if resp.StatusCode == http.StatusTemporaryRedirect {
		return resp.StatusCode, location, nil
	}
	return resp.StatusCode, location, fmt.Errorf("%w: status %d: %s", ErrUploadRejected, resp.StatusCode, detail)
}

// attempt performs one upload attempt. Storage occasionally answers the
// first POST with a 307 pointing at a region-qualified URL; the form body
// is rebuilt and resubmitted once. A second redirect fails the attempt.
func (u *Uploader) attempt(ctx context.Context, session api.UploadSession, safeName string, content []byte) error {
	status, location, err := u.post(ctx, session.StorageConfig.URL, session, safeName, content)
	if err != nil {
		return err
	}
	if status != http.StatusTemporaryRedirect {
		return nil
	}

	if location == "" {
		return fmt.Errorf("%w: redirect without location", ErrUploadRejected)
	}
	status, _, err = u.post(ctx, location, session, safeName, content)
	if err != nil {
		return err
	}
	if status == http.StatusTemporaryRedirect {
		return fmt.Errorf("%w: storage redirected twice", ErrUploadRejected)
	}
	return nil
}

// UploadBytes uploads one object into the session's storage namespace,
// retrying transient failures. Errors are captured in the result, never
// returned: the per-file boundary of a batch must not throw.
func (u *Uploader) UploadBytes(ctx context.Context, session api.UploadSession, fileName string, content []byte) UploadResult {
	safeName := SafeName(fileName)

	err := u.retry.Do(ctx, func() error {
		return u.attempt(ctx, session, safeName, content)
	})
	if err != nil {
		u.logger.Error("could not upload file to deepset AI Platform",
			"file_name", fileName,
			"session_id", session.SessionID,
			"reason", err)
		return UploadResult{FileName: fileName, Success: false, Err: err}
	}
	return UploadResult{FileName: fileName, Success: true}
}

// uploadPath reads a file from disk and uploads it under its base name.
func (u *Uploader) uploadPath(ctx context.Context, session api.UploadSession, path string) UploadResult {
	fileName := filepath.Base(path)
	content, err := os.ReadFile(path)
	if err != nil {
		u.logger.Error("could not read file for upload", "path", path, "reason", err)
		return UploadResult{FileName: fileName, Success: false, Err: err}
	}
	return u.UploadBytes(ctx, session, fileName, content)
}

// uploadTask pairs an object name with the closure producing its result.
type uploadTask struct {
	name string
	run  func() UploadResult
}

// run executes tasks on a worker pool sized to the concurrency gate and
// reduces their results. Every task runs to completion; a batch is never
// short-circuited by individual failures.
func (u *Uploader) run(tasks []uploadTask, showProgress bool) (UploadSummary, error) {
	pool, err := ants.NewPool(u.concurrency)
	if err != nil {
		return UploadSummary{}, err
	}
	defer pool.Release()

	var tracker *Tracker
	if showProgress {
		tracker = NewTracker(os.Stderr, "Uploading", len(tasks), 1)
		tracker.Start()
	}

	results := make([]UploadResult, len(tasks))
	var wg sync.WaitGroup
	for i, task := range tasks {
		wg.Add(1)
		submitErr := pool.Submit(func() {
			defer wg.Done()
			results[i] = task.run()
			if tracker != nil {
				tracker.Increment(1)
			}
		})
		if submitErr != nil {
			results[i] = UploadResult{FileName: task.name, Success: false, Err: submitErr}
			wg.Done()
		}
	}
	wg.Wait()

	if tracker != nil {
		tracker.Finish()
	}
	return u.summarize(results), nil
}

func (u *Uploader) summarize(results []UploadResult) UploadSummary {
	summary := UploadSummary{TotalFiles: len(results)}
	for _, result := range results {
		if result.Success {
			summary.SuccessfulUploadCount++
		} else {
			summary.FailedUploadCount++
			summary.Failed = append(summary.Failed, result)
		}
	}

	u.logger.Info("finished uploading files",
		"total", summary.TotalFiles,
		"successful", summary.SuccessfulUploadCount,
		"failed", summary.FailedUploadCount)
	if summary.TotalFiles > 0 && summary.SuccessfulUploadCount == 0 {
		u.logger.Error("could not upload any files to object storage")
	}
	return summary
}

// UploadPaths uploads files from disk into the session, one object per
// path. Metadata sidecar paths are uploaded as objects like any other.
func (u *Uploader) UploadPaths(ctx context.Context, session api.UploadSession, paths []string, showProgress bool) (UploadSummary, error) {
	tasks := make([]uploadTask, len(paths))
	for i, path := range paths {
		tasks[i] = uploadTask{
			name: filepath.Base(path),
			run: func() UploadResult {
				return u.uploadPath(ctx, session, path)
			},
		}
	}
	return u.run(tasks, showProgress)
}

// UploadInMemory uploads in-memory files into the session. A file with
// metadata produces a second <name>.meta.json object.
func (u *Uploader) UploadInMemory(ctx context.Context, session api.UploadSession, files []TextFile, showProgress bool) (UploadSummary, error) {
	var tasks []uploadTask
	for _, file := range files {
		tasks = append(tasks, uploadTask{
			name: file.Name,
			run: func() UploadResult {
				return u.UploadBytes(ctx, session, file.Name, []byte(file.Text))
			},
		})

		if file.Meta == nil {
			continue
		}
		metaName := file.Name + MetaSuffix
		tasks = append(tasks, uploadTask{
			name: metaName,
			run: func() UploadResult {
				meta, err := file.MetaJSON()
				if err != nil {
					return UploadResult{FileName: metaName, Success: false, Err: err}
				}
				return u.UploadBytes(ctx, session, metaName, meta)
			},
		})
	}
	return u.run(tasks, showProgress)
}
