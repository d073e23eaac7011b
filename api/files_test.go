package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestListPaginated_CursorParams(t *testing.T) {
	fileID := uuid.New()
	var gotQuery map[string][]string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotQuery = r.URL.Query()
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprintf(w, `{"total": 1, "data": [{"file_id": %q, "name": "a.txt", "size": 3, "created_at": "2024-01-02T03:04:05Z"}], "has_more": false}`, fileID)
	}))
	defer server.Close()

	files := NewFilesAPI(testClient(t, server))
	list, err := files.ListPaginated(context.Background(), "test-workspace", ListParams{
		Limit:       25,
		Name:        "a",
		AfterValue:  "2024-01-02T03:04:05Z",
		AfterFileID: fileID,
	})
	require.NoError(t, err)

	assert.Equal(t, []string{"25"}, gotQuery["limit"])
	assert.Equal(t, []string{"a"}, gotQuery["name"])
	assert.Equal(t, []string{"2024-01-02T03:04:05Z"}, gotQuery["after_value"])
	assert.Equal(t, []string{fileID.String()}, gotQuery["after_file_id"])

	require.Len(t, list.Data, 1)
	assert.Equal(t, fileID, list.Data[0].FileID)
	assert.Equal(t, "a.txt", list.Data[0].Name)
	assert.False(t, list.HasMore)
}

func TestListPaginated_CursorRequiresBothParts(t *testing.T) {
	params := ListParams{Limit: 10, AfterValue: "2024-01-02T03:04:05Z"}
	values := params.values()
	assert.Empty(t, values.Get("after_value"), "half a cursor must not be sent")
	assert.Empty(t, values.Get("after_file_id"))
}

func TestDirectUpload_Success(t *testing.T) {
	fileID := uuid.New()
	var gotWriteMode, gotMeta string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodPost, r.Method)
		gotWriteMode = r.URL.Query().Get("write_mode")

		require.NoError(t, r.ParseMultipartForm(1<<20))
		gotMeta = r.FormValue("meta")
		file, header, err := r.FormFile("file")
		require.NoError(t, err)
		defer file.Close()
		assert.Equal(t, "notes.txt", header.Filename)

		w.WriteHeader(http.StatusCreated)
		fmt.Fprintf(w, `{"file_id": %q}`, fileID)
	}))
	defer server.Close()

	files := NewFilesAPI(testClient(t, server))
	got, err := files.DirectUploadInMemory(context.Background(), "test-workspace", "notes.txt",
		[]byte("hello"), map[string]any{"source": "test"}, WriteModeOverwrite)
	require.NoError(t, err)

	assert.Equal(t, fileID, got)
	assert.Equal(t, "OVERWRITE", gotWriteMode)
	assert.JSONEq(t, `{"source": "test"}`, gotMeta)
}

func TestDirectUpload_UnexpectedStatus(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
	}))
	defer server.Close()

	files := NewFilesAPI(testClient(t, server))
	_, err := files.DirectUploadInMemory(context.Background(), "test-workspace", "notes.txt", []byte("hello"), nil, WriteModeKeep)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrFileUploadFailed)
}

func TestDirectUploadPath_UsesBaseName(t *testing.T) {
	path := filepath.Join(t.TempDir(), "report.pdf")
	require.NoError(t, os.WriteFile(path, []byte("%PDF"), 0o644))

	var gotName string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseMultipartForm(1<<20))
		_, header, err := r.FormFile("file")
		require.NoError(t, err)
		gotName = header.Filename
		w.WriteHeader(http.StatusCreated)
		fmt.Fprintf(w, `{"file_id": %q}`, uuid.New())
	}))
	defer server.Close()

	files := NewFilesAPI(testClient(t, server))
	_, err := files.DirectUploadPath(context.Background(), "test-workspace", path, "", nil, WriteModeKeep)
	require.NoError(t, err)
	assert.Equal(t, "report.pdf", gotName)
}

func TestDelete_SendsFileIDs(t *testing.T) {
	ids := []uuid.UUID{uuid.New(), uuid.New()}
	var gotBody map[string][]string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodDelete, r.Method)
		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotBody))
		w.WriteHeader(http.StatusNoContent)
	}))
	defer server.Close()

	files := NewFilesAPI(testClient(t, server))
	require.NoError(t, files.Delete(context.Background(), "test-workspace", ids))
	assert.Equal(t, []string{ids[0].String(), ids[1].String()}, gotBody["file_ids"])
}

func TestDownload_WritesFileAndMeta(t *testing.T) {
	fileID := uuid.New()
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/workspaces/test-workspace/files/" + fileID.String():
			w.Write([]byte("file content"))
		case "/workspaces/test-workspace/files/" + fileID.String() + "/meta":
			w.Write([]byte(`{"source": "test"}`))
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	defer server.Close()

	dir := t.TempDir()
	files := NewFilesAPI(testClient(t, server))
	require.NoError(t, files.Download(context.Background(), "test-workspace", fileID, "doc.txt", dir, true))

	content, err := os.ReadFile(filepath.Join(dir, "doc.txt"))
	require.NoError(t, err)
	assert.Equal(t, "file content", string(content))

	meta, err := os.ReadFile(filepath.Join(dir, "doc.txt.meta.json"))
	require.NoError(t, err)
	assert.JSONEq(t, `{"source": "test"}`, string(meta))
}

func TestDownload_CollisionRename(t *testing.T) {
	fileID := uuid.New()
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("second"))
	}))
	defer server.Close()

	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "doc.txt"), []byte("first"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "doc_1.txt"), []byte("also first"), 0o644))

	files := NewFilesAPI(testClient(t, server))
	require.NoError(t, files.Download(context.Background(), "test-workspace", fileID, "doc.txt", dir, false))

	content, err := os.ReadFile(filepath.Join(dir, "doc_2.txt"))
	require.NoError(t, err)
	assert.Equal(t, "second", string(content))

	original, err := os.ReadFile(filepath.Join(dir, "doc.txt"))
	require.NoError(t, err)
	assert.Equal(t, "first", string(original), "existing files are never overwritten")
}

func TestAvailableFileName_StatErrorTerminates(t *testing.T) {
	// A directory path that is really a file makes os.Stat fail with
	// ENOTDIR rather than ENOENT; the search must still terminate.
	notADir := filepath.Join(t.TempDir(), "plain.txt")
	require.NoError(t, os.WriteFile(notADir, []byte("x"), 0o644))

	assert.Equal(t, "doc_1.txt", availableFileName(notADir, "doc.txt"))
}

func TestDownload_NotFound(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer server.Close()

	files := NewFilesAPI(testClient(t, server))
	err := files.Download(context.Background(), "test-workspace", uuid.New(), "doc.txt", t.TempDir(), false)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrFileNotFound)
}

func TestRetryPolicy_Do(t *testing.T) {
	t.Run("stops when not retryable", func(t *testing.T) {
		policy := RetryPolicy{MaxAttempts: 3, Delay: time.Millisecond, RetryIf: func(error) bool { return false }}
		attempts := 0
		err := policy.Do(context.Background(), func() error {
			attempts++
			return fmt.Errorf("permanent")
		})
		require.Error(t, err)
		assert.Equal(t, 1, attempts)
	})

	t.Run("retries up to max attempts", func(t *testing.T) {
		policy := RetryPolicy{MaxAttempts: 3, Delay: time.Millisecond, RetryIf: func(error) bool { return true }}
		attempts := 0
		err := policy.Do(context.Background(), func() error {
			attempts++
			return fmt.Errorf("flaky")
		})
		require.Error(t, err)
		assert.Equal(t, 3, attempts)
	})

	t.Run("honors context cancellation", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		policy := RetryPolicy{MaxAttempts: 10, Delay: 10 * time.Millisecond, RetryIf: func(error) bool { return true }}
		attempts := 0
		err := policy.Do(ctx, func() error {
			attempts++
			if attempts == 2 {
				cancel()
			}
			return fmt.Errorf("flaky")
		})
		require.Error(t, err)
		assert.LessOrEqual(t, attempts, 2)
	})
}
