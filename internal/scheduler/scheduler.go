package scheduler

import (
	"context"
	"sync"

	"github.com/mirrorget/mirrorget/internal/download"
	"github.com/mirrorget/mirrorget/internal/utils"
)

// Result is the terminal outcome of one task.
type Result struct {
	Task *download.FileTask
	Err  error
}

// Failure describes one file that ended in the failed state.
type Failure struct {
	LocalPath string
	URL       string
	Reason    string
}

// Summary aggregates a run. It is built by a single goroutine consuming the
// result channel, so no counters are shared between workers.
type Summary struct {
	Succeeded int
	Failed    int
	Bytes     int64 // total size of the files that completed
	Failures  []Failure
}

// Run executes tasks on a fixed pool of workers. Each worker owns a task end
// to end; chunk sub-transfers inside a task are bounded by the runner's
// limiter, which callers should size to the same worker count. Task failures
// never abort the run.
func Run(ctx context.Context, runner *download.Runner, tasks []*download.FileTask, workers int) Summary {
	if workers < 1 {
		workers = 1
	}
	log := utils.GetLogger("scheduler")

	taskCh := make(chan *download.FileTask, len(tasks))
	for _, task := range tasks {
		taskCh <- task
	}
	close(taskCh)

	resultCh := make(chan Result, len(tasks))
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for task := range taskCh {
				if err := ctx.Err(); err != nil {
					task.State = download.StateFailed
					task.Err = err
					resultCh <- Result{Task: task, Err: err}
					continue
				}
				err := runner.Run(ctx, task)
				resultCh <- Result{Task: task, Err: err}
			}
		}()
	}
	go func() {
		wg.Wait()
		close(resultCh)
	}()

	var summary Summary
	for res := range resultCh {
		if res.Err != nil {
			summary.Failed++
			summary.Failures = append(summary.Failures, Failure{
				LocalPath: res.Task.LocalPath,
				URL:       res.Task.URL,
				Reason:    res.Err.Error(),
			})
			log.Error().Str("id", res.Task.ID).Err(res.Err).Msgf("Failed %s", res.Task.LocalPath)
			continue
		}
		summary.Succeeded++
		if res.Task.Size > 0 {
			summary.Bytes += res.Task.Size
		}
		log.Info().Str("id", res.Task.ID).Msgf("Completed %s", res.Task.LocalPath)
	}
	return summary
}
