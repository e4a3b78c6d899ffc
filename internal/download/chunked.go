package download

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"

	"github.com/mirrorget/mirrorget/internal/retry"
	"github.com/mirrorget/mirrorget/internal/utils"
)

// chunkSpec is one contiguous byte range of a file, owned by a single
// chunked download and never shared across files.
type chunkSpec struct {
	index int
	start int64 // inclusive
	end   int64 // inclusive
	path  string
}

func (c chunkSpec) length() int64 {
	return c.end - c.start + 1
}

// splitChunks divides [0, size) into count = size/chunkSize (at least 1)
// contiguous non-overlapping ranges; the last chunk absorbs the remainder.
func splitChunks(size, chunkSize int64, tempDir, baseName string) []chunkSpec {
	count := size / chunkSize
	if count < 1 {
		count = 1
	}
	per := size / count
	chunks := make([]chunkSpec, 0, count)
	for i := int64(0); i < count; i++ {
		start := i * per
		end := start + per - 1
		if i == count-1 {
			end = size - 1
		}
		chunks = append(chunks, chunkSpec{
			index: int(i),
			start: start,
			end:   end,
			path:  filepath.Join(tempDir, fmt.Sprintf("%s.part%d", baseName, i)),
		})
	}
	return chunks
}

// chunkedDownload fans a known-size file out into concurrent range
// transfers, then assembles the chunk files in index order. Concurrency is
// bounded by the runner's shared limiter, not by the chunk count.
func (r *Runner) chunkedDownload(ctx context.Context, task *FileTask) error {
	tempDir := filepath.Join(filepath.Dir(task.LocalPath), utils.TempDirName)
	if err := os.MkdirAll(tempDir, 0755); err != nil {
		return fmt.Errorf("creating temp directory: %w", err)
	}
	chunks := splitChunks(task.Size, r.ChunkSize, tempDir, filepath.Base(task.LocalPath))

	// bytes already appended by an earlier interrupted merge (or a partial
	// direct transfer); chunks fully covered by them need no re-fetch
	merged := statSize(task.LocalPath)
	if merged > task.Size {
		merged = 0
	}

	var wg sync.WaitGroup
	errs := make([]error, len(chunks))
	for i := range chunks {
		if chunks[i].end < merged {
			continue
		}
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			errs[i] = r.downloadChunk(ctx, task.URL, chunks[i])
		}(i)
	}
	wg.Wait()

	for _, err := range errs {
		if err != nil {
			return err
		}
	}
	if err := mergeChunks(task.LocalPath, chunks, task.Size); err != nil {
		return err
	}
	removeIfEmpty(tempDir)
	return nil
}

// downloadChunk transfers one chunk into its temp file, resuming from the
// temp file's own offset and retrying per policy.
func (r *Runner) downloadChunk(ctx context.Context, url string, chunk chunkSpec) error {
	for attempt := 0; ; attempt++ {
		offset := statSize(chunk.path)
		if offset == chunk.length() {
			return nil
		}
		if offset > chunk.length() {
			// stale temp file from a different split, redo from scratch
			os.Remove(chunk.path)
			offset = 0
		}

		err := r.withSlot(ctx, func() error {
			return fetchRange(ctx, r.Client, url, chunk.path, chunk.start+offset, chunk.end, offset)
		})
		if err == nil {
			if statSize(chunk.path) == chunk.length() {
				return nil
			}
			err = fmt.Errorf("chunk %d incomplete: got %d of %d bytes", chunk.index, statSize(chunk.path), chunk.length())
		}
		ok, delay := r.Policy.Decide(attempt, retry.Classify(err))
		if !ok {
			return fmt.Errorf("chunk %d: %w", chunk.index, err)
		}
		r.log.Warn().Str("url", url).Err(err).Msgf("Chunk %d attempt %d failed, retrying in %s", chunk.index, attempt+1, delay)
		if !retry.Wait(ctx, delay) {
			return ctx.Err()
		}
	}
}

// mergeChunks appends chunk files to outputPath in ascending index order.
// Each temp file is deleted only after its bytes are appended, so an
// interrupted merge resumes from the first chunk not yet written: bytes
// already in the output are skipped by offset accounting.
func mergeChunks(outputPath string, chunks []chunkSpec, size int64) error {
	existing := statSize(outputPath)
	if existing > size {
		if err := os.Truncate(outputPath, 0); err != nil {
			return fmt.Errorf("resetting oversized output: %w", err)
		}
		existing = 0
	}

	out, err := os.OpenFile(outputPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return fmt.Errorf("opening output for merge: %w", err)
	}
	defer out.Close()

	for _, chunk := range chunks {
		if existing >= chunk.end+1 {
			os.Remove(chunk.path)
			continue
		}
		in, err := os.Open(chunk.path)
		if err != nil {
			return fmt.Errorf("opening chunk %d for merge: %w", chunk.index, err)
		}
		if existing > chunk.start {
			if _, err := in.Seek(existing-chunk.start, io.SeekStart); err != nil {
				in.Close()
				return fmt.Errorf("seeking within chunk %d: %w", chunk.index, err)
			}
		}
		_, err = io.Copy(out, in)
		in.Close()
		if err != nil {
			return fmt.Errorf("appending chunk %d: %w", chunk.index, err)
		}
		existing = chunk.end + 1
		os.Remove(chunk.path)
	}

	if err := out.Sync(); err != nil {
		return err
	}
	if final := statSize(outputPath); final != size {
		return fmt.Errorf("assembled %d bytes, expected %d: %w", final, size, retry.ErrIntegrity)
	}
	return nil
}

func removeIfEmpty(dir string) {
	entries, err := os.ReadDir(dir)
	if err == nil && len(entries) == 0 {
		os.Remove(dir)
	}
}
