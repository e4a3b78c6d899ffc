package download

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/mirrorget/mirrorget/internal/retry"
	"github.com/mirrorget/mirrorget/internal/utils"
)

type State int

const (
	StatePending State = iota
	StateProbing
	StateDirect
	StateChunked
	StateComplete
	StateFailed
)

func (s State) String() string {
	switch s {
	case StatePending:
		return "pending"
	case StateProbing:
		return "probing"
	case StateDirect:
		return "direct"
	case StateChunked:
		return "chunked"
	case StateComplete:
		return "complete"
	case StateFailed:
		return "failed"
	}
	return "unknown"
}

// FileTask is one file to mirror. A single worker owns a task end to end;
// size and range-support fields are filled by the probe.
type FileTask struct {
	ID            string
	URL           string
	LocalPath     string
	Size          int64
	AcceptsRanges bool
	State         State
	Err           error
}

func NewFileTask(url, localPath string) *FileTask {
	return &FileTask{
		ID:        uuid.New().String(),
		URL:       url,
		LocalPath: localPath,
		Size:      -1,
		State:     StatePending,
	}
}

// Runner executes file tasks against one remote server.
type Runner struct {
	Client         *utils.HTTPClient
	Policy         retry.Policy
	Limiter        Limiter
	Chunked        bool
	ChunkSize      int64
	ChunkThreshold int64

	log zerolog.Logger
}

func NewRunner(client *utils.HTTPClient, policy retry.Policy, limiter Limiter) *Runner {
	return &Runner{
		Client:         client,
		Policy:         policy,
		Limiter:        limiter,
		ChunkSize:      10 * 1024 * 1024,
		ChunkThreshold: 20 * 1024 * 1024,
		log:            utils.GetLogger("download"),
	}
}

// Run drives a task through probing, transfer and a terminal state. Failures
// stay local to the task; the returned error is also recorded on it.
func (r *Runner) Run(ctx context.Context, task *FileTask) error {
	err := r.run(ctx, task)
	if err != nil {
		task.State = StateFailed
		task.Err = err
		return err
	}
	task.State = StateComplete
	return nil
}

func (r *Runner) run(ctx context.Context, task *FileTask) error {
	task.State = StateProbing
	info, err := r.probeWithRetry(ctx, task.URL)
	if err != nil {
		return fmt.Errorf("probe failed: %w", err)
	}
	task.Size = info.Size
	task.AcceptsRanges = info.AcceptsRanges

	if task.Size > 0 && statSize(task.LocalPath) == task.Size {
		r.log.Debug().Str("url", task.URL).Msgf("Already complete, skipping %s", task.LocalPath)
		return nil
	}
	if err := os.MkdirAll(filepath.Dir(task.LocalPath), 0755); err != nil {
		return fmt.Errorf("creating output directory: %w", err)
	}

	if r.Chunked && task.AcceptsRanges && task.Size > 0 && task.Size >= r.ChunkThreshold {
		task.State = StateChunked
		err = r.chunkedDownload(ctx, task)
		if err != nil && retry.Classify(err) == retry.KindRangeUnsupported {
			r.log.Warn().Str("url", task.URL).Msg("Range support withdrawn mid-run, downgrading to direct transfer")
			task.State = StateDirect
			err = r.directDownload(ctx, task)
		}
		return err
	}
	task.State = StateDirect
	return r.directDownload(ctx, task)
}

func (r *Runner) probeWithRetry(ctx context.Context, url string) (*FileInfo, error) {
	for attempt := 0; ; attempt++ {
		info, err := Probe(ctx, r.Client, url)
		if err == nil {
			return info, nil
		}
		kind := retry.Classify(err)
		if kind == retry.KindTransient {
			kind = retry.KindProbe
		}
		ok, delay := r.Policy.Decide(attempt, kind)
		if !ok {
			return nil, err
		}
		r.log.Warn().Str("url", url).Err(err).Msgf("Probe attempt %d failed, retrying in %s", attempt+1, delay)
		if !retry.Wait(ctx, delay) {
			return nil, ctx.Err()
		}
	}
}

// directDownload transfers the whole remaining range in a single stream,
// resuming from the current local size on every attempt.
func (r *Runner) directDownload(ctx context.Context, task *FileTask) error {
	restarted := false
	for attempt := 0; ; attempt++ {
		localSize := statSize(task.LocalPath)
		if task.Size >= 0 && localSize > task.Size {
			// on-disk bytes exceed the remote size, the file must have
			// changed upstream; start over
			localSize = 0
		}
		if task.Size > 0 && localSize == task.Size {
			return nil
		}

		err := r.withSlot(ctx, func() error {
			return fetchRange(ctx, r.Client, task.URL, task.LocalPath, localSize, -1, localSize)
		})
		if err == nil {
			if task.Size >= 0 && statSize(task.LocalPath) != task.Size {
				err = fmt.Errorf("%s: %w", task.LocalPath, retry.ErrIntegrity)
			} else {
				return nil
			}
		}
		if !restarted && localSize > 0 && retry.Classify(err) == retry.KindRangeUnsupported {
			// resume rejected outright (416 or similar): downgrade once to a
			// restart from byte zero
			restarted = true
			if terr := os.Truncate(task.LocalPath, 0); terr == nil {
				continue
			}
		}
		ok, delay := r.Policy.Decide(attempt, retry.Classify(err))
		if !ok {
			return err
		}
		r.log.Warn().Str("url", task.URL).Err(err).Msgf("Transfer attempt %d failed, retrying in %s", attempt+1, delay)
		if !retry.Wait(ctx, delay) {
			return ctx.Err()
		}
	}
}

func (r *Runner) withSlot(ctx context.Context, fn func() error) error {
	if err := r.Limiter.Acquire(ctx); err != nil {
		return err
	}
	defer r.Limiter.Release()
	return fn()
}
