package objectstore

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/deepset-ai/deepset-cloud-sdk-go/api"
	"github.com/deepset-ai/deepset-cloud-sdk-go/ratelimit"
)

func testUploader(opts ...Option) *Uploader {
	base := []Option{
		WithConcurrency(4),
		WithMaxAttempts(3),
		WithRetryDelay(5 * time.Millisecond),
		WithLimiter(ratelimit.New(1000, 1000)),
	}
	return New(append(base, opts...)...)
}

func testSession(storageURL string) api.UploadSession {
	return api.UploadSession{
		StorageConfig: api.StorageConfig{
			URL: storageURL,
			Fields: map[string]string{
				"key":    "workspace/${filename}",
				"policy": "signed-policy",
			},
		},
	}
}

func TestSafeName(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected string
	}{
		{"clean name", "report.txt", "report.txt"},
		{"hash and percent", "a#b%c.txt", "a_b_c.txt"},
		{"quotes and brackets", `a"b'c[d]e.txt`, "a_b_c_d_e.txt"},
		{"backslash and caret", `a\b^c.txt`, "a_b_c.txt"},
		{"control characters", "a\x00b\x1fc.txt", "a_b_c.txt"},
		{"spaces survive", "my report.txt", "my report.txt"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, SafeName(tt.input))
		})
	}
}

func TestUploadBytes_FormLayout(t *testing.T) {
	var gotKey, gotPolicy, gotFileName, gotContent string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseMultipartForm(1<<20))
		gotKey = r.FormValue("key")
		gotPolicy = r.FormValue("policy")

		file, header, err := r.FormFile("file")
		require.NoError(t, err)
		defer file.Close()
		gotFileName = header.Filename
		buf := make([]byte, 64)
		n, _ := file.Read(buf)
		gotContent = string(buf[:n])

		w.WriteHeader(http.StatusNoContent)
	}))
	defer server.Close()

	u := testUploader()
	result := u.UploadBytes(context.Background(), testSession(server.URL), "my#file.txt", []byte("hello"))

	require.True(t, result.Success, "upload should succeed: %v", result.Err)
	assert.Equal(t, "workspace/${filename}", gotKey)
	assert.Equal(t, "signed-policy", gotPolicy)
	assert.Equal(t, "my_file.txt", gotFileName, "unsafe characters are replaced before upload")
	assert.Equal(t, "hello", gotContent)
}

func TestUploadBytes_RetriesServerErrors(t *testing.T) {
	var attempts atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if attempts.Add(1) < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}))
	defer server.Close()

	u := testUploader()
	result := u.UploadBytes(context.Background(), testSession(server.URL), "a.txt", []byte("x"))

	assert.True(t, result.Success)
	assert.Equal(t, int32(3), attempts.Load())
}

func TestUploadBytes_ExhaustsRetries(t *testing.T) {
	var attempts atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		attempts.Add(1)
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer server.Close()

	u := testUploader()
	result := u.UploadBytes(context.Background(), testSession(server.URL), "a.txt", []byte("x"))

	assert.False(t, result.Success)
	assert.Equal(t, int32(3), attempts.Load(), "retryable statuses get exactly three attempts")
	assert.True(t, IsRetryable(result.Err))
}

func TestUploadBytes_ClientErrorsAreNotRetried(t *testing.T) {
	var attempts atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		attempts.Add(1)
		w.WriteHeader(http.StatusForbidden)
	}))
	defer server.Close()

	u := testUploader()
	result := u.UploadBytes(context.Background(), testSession(server.URL), "a.txt", []byte("x"))

	assert.False(t, result.Success)
	assert.ErrorIs(t, result.Err, ErrUploadRejected)
	assert.Equal(t, int32(1), attempts.Load(), "a rejection is final")
}

func TestUploadBytes_FollowsOneRedirect(t *testing.T) {
	var regionalHits atomic.Int32
	regional := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		regionalHits.Add(1)
		require.NoError(t, r.ParseMultipartForm(1<<20))
		assert.Equal(t, "signed-policy", r.FormValue("policy"), "redirect resubmission must rebuild the full form")
		w.WriteHeader(http.StatusNoContent)
	}))
	defer regional.Close()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Location", regional.URL)
		w.WriteHeader(http.StatusTemporaryRedirect)
	}))
	defer server.Close()

	u := testUploader()
	result := u.UploadBytes(context.Background(), testSession(server.URL), "a.txt", []byte("x"))

	assert.True(t, result.Success, "one redirect is followed: %v", result.Err)
	assert.Equal(t, int32(1), regionalHits.Load())
}

func TestUploadBytes_SecondRedirectFails(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Location", "http://"+r.Host+r.URL.Path)
		w.WriteHeader(http.StatusTemporaryRedirect)
	}))
	defer server.Close()

	u := testUploader()
	result := u.UploadBytes(context.Background(), testSession(server.URL), "a.txt", []byte("x"))

	assert.False(t, result.Success)
	assert.ErrorIs(t, result.Err, ErrUploadRejected)
}

func TestUploadPaths_Summary(t *testing.T) {
	dir := t.TempDir()
	good := filepath.Join(dir, "good.txt")
	require.NoError(t, os.WriteFile(good, []byte("ok"), 0o644))
	missing := filepath.Join(dir, "missing.txt")

	var uploads atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		uploads.Add(1)
		w.WriteHeader(http.StatusNoContent)
	}))
	defer server.Close()

	u := testUploader()
	summary, err := u.UploadPaths(context.Background(), testSession(server.URL), []string{good, missing}, false)
	require.NoError(t, err)

	assert.Equal(t, 2, summary.TotalFiles)
	assert.Equal(t, 1, summary.SuccessfulUploadCount)
	assert.Equal(t, 1, summary.FailedUploadCount)
	require.Len(t, summary.Failed, 1)
	assert.Equal(t, "missing.txt", summary.Failed[0].FileName)
	assert.Equal(t, int32(1), uploads.Load(), "an unreadable file never reaches storage")
}

func TestUploadInMemory_MetaSidecars(t *testing.T) {
	var names []string
	var mu sync.Mutex
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseMultipartForm(1<<20))
		_, header, err := r.FormFile("file")
		require.NoError(t, err)
		mu.Lock()
		names = append(names, header.Filename)
		mu.Unlock()
		w.WriteHeader(http.StatusNoContent)
	}))
	defer server.Close()

	u := testUploader()
	files := []TextFile{
		{Name: "a.txt", Text: "alpha", Meta: map[string]any{"source": "test"}},
		{Name: "b.txt", Text: "beta"},
	}
	summary, err := u.UploadInMemory(context.Background(), testSession(server.URL), files, false)
	require.NoError(t, err)

	assert.Equal(t, 3, summary.TotalFiles, "one sidecar object per file with metadata")
	assert.Equal(t, 3, summary.SuccessfulUploadCount)
	assert.ElementsMatch(t, []string{"a.txt", "a.txt.meta.json", "b.txt"}, names)
}

func TestWithConcurrency_Clamped(t *testing.T) {
	u := New(WithConcurrency(10_000))
	assert.Equal(t, MaxConcurrency, u.concurrency)

	u = New(WithConcurrency(0))
	assert.Equal(t, 1, u.concurrency)
}
