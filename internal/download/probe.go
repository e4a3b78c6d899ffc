package download

import (
	"context"
	"fmt"
	"net/http"
	"strconv"

	"github.com/mirrorget/mirrorget/internal/retry"
	"github.com/mirrorget/mirrorget/internal/utils"
)

// FileInfo is the result of a metadata probe.
type FileInfo struct {
	Size          int64 // -1 when the server did not report a length
	AcceptsRanges bool
}

// Probe issues a HEAD request to learn the remote size and range support
// without transferring the body.
func Probe(ctx context.Context, client *utils.HTTPClient, url string) (*FileInfo, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodHead, url, nil)
	if err != nil {
		return nil, fmt.Errorf("creating probe request: %w", err)
	}
	resp, err := client.DoProbe(req)
	if err != nil {
		return nil, fmt.Errorf("probe request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return nil, retry.StatusError(resp.StatusCode)
	}

	info := &FileInfo{Size: -1}
	info.AcceptsRanges = resp.Header.Get("Accept-Ranges") == "bytes"
	if cl := resp.Header.Get("Content-Length"); cl != "" {
		if size, err := strconv.ParseInt(cl, 10, 64); err == nil && size >= 0 {
			info.Size = size
		}
	}
	return info, nil
}
