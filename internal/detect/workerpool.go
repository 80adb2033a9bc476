package detect

import (
	"context"
	"runtime"
	"sync"

	"github.com/rs/zerolog/log"
)

// Job is a unit of best-effort background work, typically an evidence
// upload plus the follow-up aggregate record.
type Job interface {
	Execute(ctx context.Context) error
}

// WorkerPool bounds the concurrency of evidence and record jobs so a burst
// of violations cannot spawn an unbounded number of uploads.
type WorkerPool struct {
	workers  int
	jobQueue chan Job
	wg       sync.WaitGroup
	ctx      context.Context
	cancel   context.CancelFunc
	closed   sync.Once
}

// NewWorkerPool sizes the pool from the CPU count unless an explicit size is
// given, keeping a quarter of the cores free for the rest of the service.
func NewWorkerPool(ctx context.Context, size int) *WorkerPool {
	if size <= 0 {
		totalCPU := runtime.NumCPU()
		reserve := totalCPU / 4
		if reserve < 1 {
			reserve = 1
		}
		size = totalCPU - reserve
		if size < 1 {
			size = 1
		}
	}
	log.Info().Int("workers", size).Msg("Evidence worker pool initialized")

	poolCtx, cancel := context.WithCancel(ctx)
	pool := &WorkerPool{
		workers:  size,
		jobQueue: make(chan Job, size*2),
		ctx:      poolCtx,
		cancel:   cancel,
	}

	for i := 0; i < pool.workers; i++ {
		pool.wg.Add(1)
		go pool.worker()
	}

	return pool
}

func (p *WorkerPool) worker() {
	defer p.wg.Done()

	for {
		select {
		case <-p.ctx.Done():
			return
		case job, ok := <-p.jobQueue:
			if !ok {
				return
			}
			if err := job.Execute(p.ctx); err != nil {
				log.Error().Err(err).Msg("Worker failed to execute job")
			}
		}
	}
}

// Submit enqueues a job, blocking only while the buffered queue is full.
func (p *WorkerPool) Submit(job Job) error {
	select {
	case <-p.ctx.Done():
		return p.ctx.Err()
	case p.jobQueue <- job:
		return nil
	}
}

// Close drains the pool and waits for in-flight jobs.
func (p *WorkerPool) Close() {
	p.closed.Do(func() {
		close(p.jobQueue)
		p.cancel()
		p.wg.Wait()
	})
}

func (p *WorkerPool) Size() int {
	return p.workers
}
