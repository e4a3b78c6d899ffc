package download

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/mirrorget/mirrorget/internal/retry"
	"github.com/mirrorget/mirrorget/internal/utils"
)

// fetchRange performs one transfer attempt: it streams the remote bytes
// [start, end] of url (end < 0 means to EOF) into path. localOffset is the
// number of bytes already on disk; the file is opened in append mode when it
// is non-zero and truncated otherwise.
//
// A 206 is streamed as requested. A 200 against an unbounded resume
// (start > 0, end < 0) means the server ignored the range; the attempt
// restarts from byte zero rather than splicing overlap, since the 200 body
// may not be the full resource. A 200 against a bounded range is unusable
// and reported as retry.ErrRangeUnsupported so the caller can downgrade.
//
// On mid-stream errors the partial bytes are left on disk; the next attempt
// re-stats the file and resumes from there. Total transfer time is
// unbounded; only read inactivity past the client's idle timeout aborts the
// attempt.
func fetchRange(ctx context.Context, client *utils.HTTPClient, url, path string, start, end, localOffset int64) error {
	flag := os.O_CREATE | os.O_WRONLY
	if localOffset > 0 {
		flag |= os.O_APPEND
	} else {
		flag |= os.O_TRUNC
	}
	outFile, err := os.OpenFile(path, flag, 0644)
	if err != nil {
		return fmt.Errorf("opening sink: %w", err)
	}
	defer outFile.Close()

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return fmt.Errorf("creating GET request: %w", err)
	}
	if start > 0 || end >= 0 {
		if end >= 0 {
			req.Header.Set("Range", fmt.Sprintf("bytes=%d-%d", start, end))
		} else {
			req.Header.Set("Range", fmt.Sprintf("bytes=%d-", start))
		}
	}
	req.Header.Set("Connection", "keep-alive")

	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("executing GET request: %w", err)
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusPartialContent:
	case http.StatusOK:
		if end >= 0 {
			// bounded chunk request answered with the whole resource
			return retry.ErrRangeUnsupported
		}
		if start > 0 {
			log.Warn().Str("op", "download/transfer").Msgf("Server ignored resume request for %s, restarting from zero", path)
			if err := outFile.Truncate(0); err != nil {
				return fmt.Errorf("truncating for restart: %w", err)
			}
			if _, err := outFile.Seek(0, io.SeekStart); err != nil {
				return fmt.Errorf("rewinding for restart: %w", err)
			}
			start = 0
		}
	default:
		return retry.StatusError(resp.StatusCode)
	}

	// abort only on read inactivity; a slow but progressing body may take
	// arbitrarily long in total
	idle := client.ReadIdleTimeout()
	watchdog := time.AfterFunc(idle, cancel)
	defer watchdog.Stop()

	buffer := make([]byte, utils.DefaultBufferSize)
	var written int64
	for {
		bytesRead, readErr := resp.Body.Read(buffer)
		if bytesRead > 0 {
			watchdog.Reset(idle)
			if _, writeErr := outFile.Write(buffer[:bytesRead]); writeErr != nil {
				return fmt.Errorf("writing to sink: %w", writeErr)
			}
			written += int64(bytesRead)
		}
		if readErr != nil {
			if readErr == io.EOF {
				break
			}
			return fmt.Errorf("reading response body: %w", readErr)
		}
	}
	if end >= 0 {
		if expected := end - start + 1; written != expected {
			return fmt.Errorf("short read: got %d of %d bytes", written, expected)
		}
	}
	return outFile.Sync()
}

// statSize returns the size of path, or 0 when it does not exist.
func statSize(path string) int64 {
	info, err := os.Stat(path)
	if err != nil {
		return 0
	}
	return info.Size()
}
