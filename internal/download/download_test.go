package download

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func sha(payload []byte) string {
	sum := sha256.Sum256(payload)
	return hex.EncodeToString(sum[:])
}

// rangeServer serves payload with Range support and records each Range header.
func rangeServer(t *testing.T, payload []byte) (*httptest.Server, func() []string) {
	t.Helper()

	var mu sync.Mutex
	var ranges []string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		ranges = append(ranges, r.Header.Get("Range"))
		mu.Unlock()
		http.ServeContent(w, r, "model.bin", time.Time{}, bytes.NewReader(payload))
	}))
	t.Cleanup(server.Close)

	return server, func() []string {
		mu.Lock()
		defer mu.Unlock()
		return append([]string(nil), ranges...)
	}
}

func TestVerifyFileChecksum(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "payload.bin")
	payload := []byte("whispercppkit")
	require.NoError(t, os.WriteFile(path, payload, 0o644))

	require.NoError(t, VerifyFileChecksum(path, sha(payload)))
	require.NoError(t, VerifyFileChecksum(path, ""))

	var sumErr *ChecksumError
	require.ErrorAs(t, VerifyFileChecksum(path, "deadbeef"), &sumErr)
	require.Equal(t, sha(payload), sumErr.Actual)
}

func TestDownloadFileFresh(t *testing.T) {
	t.Parallel()

	payload := bytes.Repeat([]byte("ggml"), 1024)
	server, ranges := rangeServer(t, payload)
	destination := filepath.Join(t.TempDir(), "models", "ggml-tiny.bin")

	err := DownloadFile(context.Background(), Options{
		URL:            server.URL + "/model.bin",
		Destination:    destination,
		ExpectedSHA256: sha(payload),
		NoProgress:     true,
		Retries:        1,
	})
	require.NoError(t, err)

	onDisk, err := os.ReadFile(destination)
	require.NoError(t, err)
	require.Equal(t, payload, onDisk)
	require.NoFileExists(t, PartialPath(destination))
	require.Equal(t, []string{""}, ranges())
}

func TestDownloadFileResumesPartial(t *testing.T) {
	t.Parallel()

	payload := bytes.Repeat([]byte("0123456789"), 500)
	server, ranges := rangeServer(t, payload)
	destination := filepath.Join(t.TempDir(), "ggml-base.bin")
	require.NoError(t, os.WriteFile(PartialPath(destination), payload[:1234], 0o644))

	err := DownloadFile(context.Background(), Options{
		URL:            server.URL,
		Destination:    destination,
		ExpectedSHA256: sha(payload),
		NoProgress:     true,
		Retries:        1,
	})
	require.NoError(t, err)

	onDisk, err := os.ReadFile(destination)
	require.NoError(t, err)
	require.Equal(t, payload, onDisk)
	require.Equal(t, []string{"bytes=1234-"}, ranges())
}

func TestDownloadFileCompletePartial(t *testing.T) {
	t.Parallel()

	payload := []byte("already all here")
	server, _ := rangeServer(t, payload)
	destination := filepath.Join(t.TempDir(), "ggml-small.bin")
	require.NoError(t, os.WriteFile(PartialPath(destination), payload, 0o644))

	err := DownloadFile(context.Background(), Options{
		URL:            server.URL,
		Destination:    destination,
		ExpectedSHA256: sha(payload),
		NoProgress:     true,
		Retries:        1,
	})
	require.NoError(t, err)

	onDisk, err := os.ReadFile(destination)
	require.NoError(t, err)
	require.Equal(t, payload, onDisk)
}

func TestDownloadFileRestartsWhenRangeIgnored(t *testing.T) {
	t.Parallel()

	payload := []byte("fresh bytes from the top")
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write(payload)
	}))
	defer server.Close()

	destination := filepath.Join(t.TempDir(), "ggml-medium.bin")
	require.NoError(t, os.WriteFile(PartialPath(destination), []byte("stale stale stale stale stale stale"), 0o644))

	err := DownloadFile(context.Background(), Options{
		URL:         server.URL,
		Destination: destination,
		NoProgress:  true,
		Retries:     1,
	})
	require.NoError(t, err)

	onDisk, err := os.ReadFile(destination)
	require.NoError(t, err)
	require.Equal(t, payload, onDisk)
}

func TestDownloadFileRestartsOnMisalignedRange(t *testing.T) {
	t.Parallel()

	payload := []byte("0123456789abcdefghij")
	var mu sync.Mutex
	var ranges []string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		ranges = append(ranges, r.Header.Get("Range"))
		mu.Unlock()
		if r.Header.Get("Range") != "" {
			// Claims partial content but always starts from byte zero.
			w.Header().Set("Content-Range", fmt.Sprintf("bytes 0-%d/%d", len(payload)-1, len(payload)))
			w.WriteHeader(http.StatusPartialContent)
			_, _ = w.Write(payload)
			return
		}
		_, _ = w.Write(payload)
	}))
	defer server.Close()

	destination := filepath.Join(t.TempDir(), "ggml-base.bin")
	require.NoError(t, os.WriteFile(PartialPath(destination), payload[:8], 0o644))

	err := DownloadFile(context.Background(), Options{
		URL:         server.URL,
		Destination: destination,
		NoProgress:  true,
		Retries:     1,
	})
	require.NoError(t, err)

	onDisk, err := os.ReadFile(destination)
	require.NoError(t, err)
	require.Equal(t, payload, onDisk)
	require.NoFileExists(t, PartialPath(destination))

	mu.Lock()
	defer mu.Unlock()
	require.Equal(t, []string{"bytes=8-", ""}, ranges)
}

func TestContentRangeStart(t *testing.T) {
	t.Parallel()

	tests := []struct {
		header string
		want   int64
		ok     bool
	}{
		{header: "bytes 1234-4095/4096", want: 1234, ok: true},
		{header: "bytes 0-9/*", want: 0, ok: true},
		{header: "bytes */4096", ok: false},
		{header: "items 1-2/3", ok: false},
		{header: "", ok: false},
	}

	for _, tt := range tests {
		got, ok := contentRangeStart(tt.header)
		require.Equal(t, tt.ok, ok, tt.header)
		if tt.ok {
			require.Equal(t, tt.want, got, tt.header)
		}
	}
}

func TestDownloadFileChecksumMismatchDropsPartial(t *testing.T) {
	t.Parallel()

	var hits atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		hits.Add(1)
		_, _ = w.Write([]byte("corrupted"))
	}))
	defer server.Close()

	destination := filepath.Join(t.TempDir(), "ggml-tiny.bin")
	err := DownloadFile(context.Background(), Options{
		URL:            server.URL,
		Destination:    destination,
		ExpectedSHA256: sha([]byte("pristine")),
		NoProgress:     true,
		Retries:        3,
	})

	var sumErr *ChecksumError
	require.ErrorAs(t, err, &sumErr)
	require.Equal(t, int32(1), hits.Load())
	require.NoFileExists(t, destination)
	require.NoFileExists(t, PartialPath(destination))
}

func TestDownloadFileRetriesServerErrors(t *testing.T) {
	t.Parallel()

	payload := []byte("third time lucky")
	var hits atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		if hits.Add(1) < 3 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		_, _ = w.Write(payload)
	}))
	defer server.Close()

	destination := filepath.Join(t.TempDir(), "ggml-tiny.bin")
	err := DownloadFile(context.Background(), Options{
		URL:         server.URL,
		Destination: destination,
		NoProgress:  true,
		Retries:     3,
	})
	require.NoError(t, err)
	require.Equal(t, int32(3), hits.Load())
}

func TestDownloadFileStopsOnCancel(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer server.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := DownloadFile(ctx, Options{
		URL:         server.URL,
		Destination: filepath.Join(t.TempDir(), "ggml-tiny.bin"),
		NoProgress:  true,
		Retries:     5,
	})
	require.ErrorIs(t, err, context.Canceled)
}

func TestDownloadFileRequiresURLAndDestination(t *testing.T) {
	t.Parallel()

	require.Error(t, DownloadFile(context.Background(), Options{Destination: "x"}))
	require.Error(t, DownloadFile(context.Background(), Options{URL: "http://example.invalid"}))
}

func TestShouldRenderProgress(t *testing.T) {
	t.Parallel()

	require.False(t, shouldRenderProgress(true, 100))
	require.False(t, shouldRenderProgress(false, 0))
	require.False(t, shouldRenderProgress(false, -1))
}
