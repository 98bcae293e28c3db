// Package download fetches large artifacts over HTTP into a resumable partial file
// and moves them into place only once they are complete and verified.
package download

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"hash"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/schollz/progressbar/v3"
	"go.uber.org/zap"
	"golang.org/x/term"
)

// PartialSuffix marks an incomplete download next to its destination.
const PartialSuffix = ".partial"

const userAgent = "whispercppkit/1"

// Options describes one download.
type Options struct {
	URL         string
	Destination string
	// ExpectedSHA256 is checked against the complete file when set.
	ExpectedSHA256 string
	Retries        int
	NoProgress     bool
	HTTPClient     *http.Client
	Logger         *zap.Logger
	// Description labels the progress bar. Defaults to the destination file name.
	Description string
}

// ChecksumError means the downloaded bytes do not match the pinned digest. The
// partial file is discarded, so retrying starts from scratch.
type ChecksumError struct {
	Expected string
	Actual   string
}

func (e *ChecksumError) Error() string {
	return fmt.Sprintf("checksum mismatch: expected %s, got %s", e.Expected, e.Actual)
}

// PartialPath returns where an in-progress download of destination is kept.
func PartialPath(destination string) string {
	return destination + PartialSuffix
}

// DownloadFile fetches opts.URL into opts.Destination. Bytes already present in the
// partial file are kept and the rest is requested with a Range header.
func DownloadFile(ctx context.Context, opts Options) error {
	if opts.URL == "" {
		return errors.New("download URL is required")
	}
	if opts.Destination == "" {
		return errors.New("destination path is required")
	}
	if opts.Retries <= 0 {
		opts.Retries = 3
	}
	if opts.HTTPClient == nil {
		// No overall timeout: large models take longer than any sane fixed limit.
		opts.HTTPClient = &http.Client{}
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	if opts.Description == "" {
		opts.Description = filepath.Base(opts.Destination)
	}

	expected := strings.ToLower(strings.TrimSpace(opts.ExpectedSHA256))

	if err := os.MkdirAll(filepath.Dir(opts.Destination), 0o755); err != nil {
		return fmt.Errorf("create destination directory: %w", err)
	}

	var lastErr error
	for attempt := 1; attempt <= opts.Retries; attempt++ {
		if attempt > 1 {
			opts.Logger.Warn("retrying download",
				zap.Int("attempt", attempt),
				zap.Int("max", opts.Retries),
				zap.String("url", opts.URL),
				zap.Error(lastErr),
			)
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(time.Duration(attempt) * 300 * time.Millisecond):
			}
		}

		lastErr = downloadOnce(ctx, opts, expected)
		if lastErr == nil {
			return nil
		}

		var sumErr *ChecksumError
		if errors.As(lastErr, &sumErr) || ctx.Err() != nil {
			return lastErr
		}
	}

	return lastErr
}

// VerifyFileChecksum hashes path and compares it to expectedSHA256. An empty
// expectation always passes.
func VerifyFileChecksum(path, expectedSHA256 string) error {
	expected := strings.ToLower(strings.TrimSpace(expectedSHA256))
	if expected == "" {
		return nil
	}

	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("open file for checksum: %w", err)
	}
	defer f.Close()

	h := sha256.New()
	if _, err := io.Copy(h, f); err != nil {
		return fmt.Errorf("hash file: %w", err)
	}

	actual := hex.EncodeToString(h.Sum(nil))
	if actual != expected {
		return &ChecksumError{Expected: expected, Actual: actual}
	}
	return nil
}

func downloadOnce(ctx context.Context, opts Options, expected string) error {
	partial := PartialPath(opts.Destination)

	outFile, err := os.OpenFile(partial, os.O_CREATE|os.O_RDWR, 0o644)
	if err != nil {
		return fmt.Errorf("open partial file: %w", err)
	}
	defer outFile.Close()

	offset, err := outFile.Seek(0, io.SeekEnd)
	if err != nil {
		return fmt.Errorf("seek partial file: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, opts.URL, nil)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("User-Agent", userAgent)
	if offset > 0 {
		req.Header.Set("Range", fmt.Sprintf("bytes=%d-", offset))
	}

	resp, err := opts.HTTPClient.Do(req)
	if err != nil {
		return fmt.Errorf("download request failed: %w", err)
	}
	defer resp.Body.Close()

	hasher := sha256.New()
	switch {
	case resp.StatusCode == http.StatusPartialContent && offset > 0:
		if start, ok := contentRangeStart(resp.Header.Get("Content-Range")); !ok || start != offset {
			opts.Logger.Warn("server answered with a different range, restarting",
				zap.String("file", opts.Description),
				zap.Int64("offset", offset),
				zap.String("content_range", resp.Header.Get("Content-Range")),
			)
			_ = resp.Body.Close()
			if err := outFile.Truncate(0); err != nil {
				return fmt.Errorf("truncate partial file: %w", err)
			}
			return downloadOnce(ctx, opts, expected)
		}
		opts.Logger.Info("resuming download", zap.String("file", opts.Description), zap.Int64("offset", offset))
		if err := hashPrefix(outFile, hasher, offset); err != nil {
			return err
		}
	case resp.StatusCode == http.StatusRequestedRangeNotSatisfiable && offset > 0:
		// The partial file already holds every byte.
		if err := hashPrefix(outFile, hasher, offset); err != nil {
			return err
		}
		return finish(outFile, partial, opts.Destination, hasher, expected)
	case resp.StatusCode == http.StatusOK:
		if offset > 0 {
			opts.Logger.Debug("server ignored range request, restarting", zap.String("file", opts.Description))
		}
		if err := outFile.Truncate(0); err != nil {
			return fmt.Errorf("truncate partial file: %w", err)
		}
		if _, err := outFile.Seek(0, io.SeekStart); err != nil {
			return fmt.Errorf("seek partial file: %w", err)
		}
		offset = 0
	default:
		return fmt.Errorf("unexpected status code: %d", resp.StatusCode)
	}

	writer := io.MultiWriter(outFile, hasher)

	var bar *progressbar.ProgressBar
	if shouldRenderProgress(opts.NoProgress, resp.ContentLength) {
		bar = progressbar.NewOptions64(
			offset+resp.ContentLength,
			progressbar.OptionSetDescription(opts.Description),
			progressbar.OptionSetWidth(20),
			progressbar.OptionShowBytes(true),
			progressbar.OptionThrottle(65*time.Millisecond),
			progressbar.OptionSetRenderBlankState(true),
			progressbar.OptionSetWriter(os.Stderr),
			progressbar.OptionClearOnFinish(),
		)
		_ = bar.Set64(offset)
		writer = io.MultiWriter(outFile, hasher, bar)
	}

	if _, err := io.Copy(writer, resp.Body); err != nil {
		return fmt.Errorf("download body: %w", err)
	}
	if bar != nil {
		_ = bar.Finish()
	}

	return finish(outFile, partial, opts.Destination, hasher, expected)
}

// contentRangeStart returns the first byte position of a "bytes start-end/total"
// Content-Range header.
func contentRangeStart(header string) (int64, bool) {
	spec, ok := strings.CutPrefix(strings.TrimSpace(header), "bytes ")
	if !ok {
		return 0, false
	}
	first, _, ok := strings.Cut(spec, "-")
	if !ok {
		return 0, false
	}
	start, err := strconv.ParseInt(strings.TrimSpace(first), 10, 64)
	if err != nil || start < 0 {
		return 0, false
	}
	return start, true
}

func hashPrefix(f *os.File, h hash.Hash, n int64) error {
	if _, err := f.Seek(0, io.SeekStart); err != nil {
		return fmt.Errorf("seek partial file: %w", err)
	}
	if _, err := io.CopyN(h, f, n); err != nil {
		return fmt.Errorf("hash partial file: %w", err)
	}
	if _, err := f.Seek(n, io.SeekStart); err != nil {
		return fmt.Errorf("seek partial file: %w", err)
	}
	return nil
}

func finish(f *os.File, partial, destination string, h hash.Hash, expected string) error {
	if err := f.Sync(); err != nil {
		return fmt.Errorf("sync partial file: %w", err)
	}

	actual := hex.EncodeToString(h.Sum(nil))
	if expected != "" && actual != expected {
		_ = f.Close()
		_ = os.Remove(partial)
		return &ChecksumError{Expected: expected, Actual: actual}
	}

	if err := f.Close(); err != nil {
		return fmt.Errorf("close partial file: %w", err)
	}
	if err := os.Rename(partial, destination); err != nil {
		return fmt.Errorf("move partial file into destination: %w", err)
	}
	return nil
}

func shouldRenderProgress(noProgress bool, contentLength int64) bool {
	if noProgress || contentLength <= 0 {
		return false
	}
	return term.IsTerminal(int(os.Stderr.Fd()))
}
