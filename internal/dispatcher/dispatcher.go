// Package dispatcher fans a batch of tasks out to a fixed pool of workers.
package dispatcher

import (
	"context"
	"sync"

	"go.uber.org/zap"

	"github.com/JakeFAU/research-scraper/internal/queue/memory"
	"github.com/JakeFAU/research-scraper/internal/scraper"
	"github.com/JakeFAU/research-scraper/internal/worker"
)

// Runner is the per-slot worker loop.
type Runner interface {
	Run(ctx context.Context, src worker.Source, out chan<- scraper.TaskResult)
}

// Config sizes the pool.
type Config struct {
	Concurrency int
	QueueDepth  int
}

// Dispatcher runs one batch at a time through newRunner(i) for each slot.
type Dispatcher struct {
	cfg       Config
	newRunner func(index int) Runner
	logger    *zap.Logger
}

// New creates a Dispatcher. newRunner is called once per worker slot.
func New(cfg Config, newRunner func(index int) Runner, logger *zap.Logger) *Dispatcher {
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 1
	}
	if cfg.QueueDepth <= 0 {
		cfg.QueueDepth = cfg.Concurrency
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Dispatcher{cfg: cfg, newRunner: newRunner, logger: logger.Named("dispatcher")}
}

// Run processes every task and returns exactly one result per task, in
// input order. Canceling ctx stops workers from taking new tasks; each task
// that never started is reported as fetch_skipped. Run returns only after
// every goroutine it started has exited.
func (d *Dispatcher) Run(ctx context.Context, tasks []scraper.FetchTask) []scraper.TaskResult {
	queue := memory.NewQueue(d.cfg.QueueDepth)
	results := make(chan scraper.TaskResult, len(tasks))

	var feeder sync.WaitGroup
	feeder.Add(1)
	go func() {
		defer feeder.Done()
		defer queue.Close()
		for _, task := range tasks {
			if err := queue.Enqueue(ctx, task); err != nil {
				d.logger.Info("stopped enqueueing", zap.String("next_task_id", task.ID), zap.Error(err))
				return
			}
		}
	}()

	workers := min(d.cfg.Concurrency, max(len(tasks), 1))
	var wg sync.WaitGroup
	for i := range workers {
		runner := d.newRunner(i)
		wg.Add(1)
		go func() {
			defer wg.Done()
			runner.Run(ctx, queue, results)
		}()
	}
	wg.Wait()
	// Workers only exit once ctx ends or the queue is closed and drained;
	// either way the feeder is done or about to be.
	feeder.Wait()
	close(results)

	byID := make(map[string]scraper.TaskResult, len(tasks))
	for res := range results {
		byID[res.ID] = res
	}
	out := make([]scraper.TaskResult, 0, len(tasks))
	for _, task := range tasks {
		res, ok := byID[task.ID]
		if !ok {
			res = scraper.TaskResult{
				ID:          task.ID,
				URL:         task.URL,
				SubQuestion: task.SubQuestion,
				Status:      scraper.StatusFetchSkipped,
				Notes:       []string{"canceled"},
			}
		}
		out = append(out, res)
	}
	return out
}
