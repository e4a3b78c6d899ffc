package scheduler

import (
	"bytes"
	"context"
	"crypto/rand"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mirrorget/mirrorget/internal/download"
	"github.com/mirrorget/mirrorget/internal/retry"
	"github.com/mirrorget/mirrorget/internal/utils"
)

func randomBytes(t *testing.T, n int) []byte {
	t.Helper()
	data := make([]byte, n)
	_, err := rand.Read(data)
	require.NoError(t, err)
	return data
}

func serveFiles(files map[string][]byte) *httptest.Server {
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		data, ok := files[r.URL.Path]
		if !ok {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		http.ServeContent(w, r, filepath.Base(r.URL.Path), time.Time{}, bytes.NewReader(data))
	}))
}

func newRunner(limit int) *download.Runner {
	policy := retry.Policy{MaxRetries: 2, BaseDelay: time.Millisecond, MaxDelay: 10 * time.Millisecond}
	return download.NewRunner(utils.NewHTTPClient(utils.HTTPClientConfig{}), policy, download.NewLimiter(limit))
}

func TestRunMirrorsTree(t *testing.T) {
	readme := randomBytes(t, 100)
	big := randomBytes(t, 1_000_000)
	server := serveFiles(map[string][]byte{
		"/readme.txt": readme,
		"/big.bin":    big,
	})
	defer server.Close()

	dir := t.TempDir()
	tasks := []*download.FileTask{
		download.NewFileTask(server.URL+"/readme.txt", filepath.Join(dir, "readme.txt")),
		download.NewFileTask(server.URL+"/big.bin", filepath.Join(dir, "big.bin")),
	}

	runner := newRunner(4)
	runner.Chunked = true
	runner.ChunkSize = 100_000
	runner.ChunkThreshold = 500_000

	summary := Run(context.Background(), runner, tasks, 4)
	assert.Equal(t, 2, summary.Succeeded)
	assert.Equal(t, 0, summary.Failed)
	assert.Equal(t, int64(1_000_100), summary.Bytes)

	gotReadme, err := os.ReadFile(filepath.Join(dir, "readme.txt"))
	require.NoError(t, err)
	assert.Equal(t, readme, gotReadme)

	gotBig, err := os.ReadFile(filepath.Join(dir, "big.bin"))
	require.NoError(t, err)
	assert.Equal(t, big, gotBig)

	_, err = os.Stat(filepath.Join(dir, utils.TempDirName))
	assert.True(t, os.IsNotExist(err), "no chunk temp files may remain after a clean run")
}

func TestRunContinuesPastFailures(t *testing.T) {
	good := randomBytes(t, 256)
	server := serveFiles(map[string][]byte{"/good.bin": good})
	defer server.Close()

	dir := t.TempDir()
	tasks := []*download.FileTask{
		download.NewFileTask(server.URL+"/missing.bin", filepath.Join(dir, "missing.bin")),
		download.NewFileTask(server.URL+"/good.bin", filepath.Join(dir, "good.bin")),
	}

	summary := Run(context.Background(), newRunner(2), tasks, 2)
	assert.Equal(t, 1, summary.Succeeded)
	assert.Equal(t, 1, summary.Failed)
	require.Len(t, summary.Failures, 1)
	assert.Equal(t, filepath.Join(dir, "missing.bin"), summary.Failures[0].LocalPath)
	assert.NotEmpty(t, summary.Failures[0].Reason)

	got, err := os.ReadFile(filepath.Join(dir, "good.bin"))
	require.NoError(t, err)
	assert.Equal(t, good, got)
}

func TestRunEmptyTaskList(t *testing.T) {
	summary := Run(context.Background(), newRunner(1), nil, 4)
	assert.Equal(t, 0, summary.Succeeded)
	assert.Equal(t, 0, summary.Failed)
}

func TestRunCancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	dir := t.TempDir()
	tasks := []*download.FileTask{
		download.NewFileTask("http://127.0.0.1:0/x", filepath.Join(dir, "x")),
		download.NewFileTask("http://127.0.0.1:0/y", filepath.Join(dir, "y")),
	}
	summary := Run(ctx, newRunner(1), tasks, 2)
	assert.Equal(t, 0, summary.Succeeded)
	assert.Equal(t, 2, summary.Failed)
}
