package worker

import (
	"context"
	"sync"
	"time"

	"github.com/amankumarsingh77/streamscale-pipeline/internal/config"
	"github.com/amankumarsingh77/streamscale-pipeline/internal/models"
	"github.com/amankumarsingh77/streamscale-pipeline/internal/videos"
	"github.com/amankumarsingh77/streamscale-pipeline/pkg/logger"
	"github.com/amankumarsingh77/streamscale-pipeline/pkg/utils"
)

const (
	cpuBusyBackoff   = 5 * time.Second
	dequeueErrorWait = time.Second
)

// JobHandler processes one dequeued job.
type JobHandler interface {
	Handle(ctx context.Context, job *models.Job) error
}

// Worker is a fixed pool of consumers plus the scheduler and retry sweep loops.
type Worker struct {
	cfg     *config.Config
	logger  logger.Logger
	queue   videos.JobQueue
	handler JobHandler
	sweeper *RetrySweeper
	cpuGate utils.CPUGate
	wg      sync.WaitGroup
}

func NewWorker(cfg *config.Config, logger logger.Logger, queue videos.JobQueue, handler JobHandler, sweeper *RetrySweeper) *Worker {
	return &Worker{
		cfg:     cfg,
		logger:  logger,
		queue:   queue,
		handler: handler,
		sweeper: sweeper,
		cpuGate: utils.NewCPUGate(cfg.Worker.MaxCPUUsage),
	}
}

// Start launches the pool. Everything stops when ctx is cancelled; call Wait to block until then.
func (w *Worker) Start(ctx context.Context) {
	w.logger.Infof("Starting worker pool with %d consumers", w.cfg.Worker.Concurrency)
	for i := range w.cfg.Worker.Concurrency {
		w.wg.Add(1)
		go w.consume(ctx, i)
	}

	w.wg.Add(1)
	go w.every(ctx, w.cfg.Worker.SchedulerInterval(), w.schedule)

	if w.sweeper != nil {
		w.wg.Add(1)
		go w.every(ctx, w.cfg.Worker.SweepInterval(), func(ctx context.Context) {
			if _, err := w.sweeper.Sweep(ctx); err != nil && ctx.Err() == nil {
				w.logger.Errorf("Sweep - %v", err)
			}
		})
	}
}

func (w *Worker) Wait() {
	w.wg.Wait()
}

func (w *Worker) consume(ctx context.Context, id int) {
	defer w.wg.Done()
	for {
		if ctx.Err() != nil {
			w.logger.Infof("Worker %d stopped", id)
			return
		}

		if ok, usage := w.cpuGate(); !ok {
			w.logger.Infof("Worker %d - CPU usage is high: %.1f%%", id, usage)
			sleep(ctx, cpuBusyBackoff)
			continue
		}

		job, err := w.queue.Dequeue(ctx, w.cfg.Worker.DequeueTimeout())
		if err != nil {
			if ctx.Err() == nil {
				w.logger.Errorf("Worker %d - failed to dequeue: %v", id, err)
				sleep(ctx, dequeueErrorWait)
			}
			continue
		}
		if job == nil {
			continue
		}

		w.logger.Infof("Worker %d - processing job %s (delivery %d)", id, job.ID, job.Deliveries)
		if err = w.handler.Handle(ctx, job); err != nil {
			w.logger.Errorf("Worker %d - job %s: %v", id, job.ID, err)
		}
	}
}

// schedule promotes due delayed jobs and requeues jobs whose worker died.
func (w *Worker) schedule(ctx context.Context) {
	if n, err := w.queue.PromoteDelayed(ctx); err != nil {
		w.logger.Errorf("Scheduler - failed to promote delayed jobs: %v", err)
	} else if n > 0 {
		w.logger.Infof("Scheduler - promoted %d delayed jobs", n)
	}
	if n, err := w.queue.RecoverStalled(ctx); err != nil {
		w.logger.Errorf("Scheduler - failed to recover stalled jobs: %v", err)
	} else if n > 0 {
		w.logger.Warnf("Scheduler - recovered %d stalled jobs", n)
	}
}

func (w *Worker) every(ctx context.Context, interval time.Duration, fn func(context.Context)) {
	defer w.wg.Done()
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			fn(ctx)
		}
	}
}

func sleep(ctx context.Context, d time.Duration) {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
	case <-timer.C:
	}
}
