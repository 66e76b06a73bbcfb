// Package worker runs webhook events in the background using goroutines.
//
// Go Pattern: Goroutines and channels are Go's concurrency primitives.
// A goroutine is like a lightweight thread (thousands are fine), and
// channels are typed pipes for communication between goroutines.
//
// This worker pool pattern is very common in Go:
// 1. Create a buffered channel as a job queue
// 2. Spawn N worker goroutines that read from the channel
// 3. Send jobs to the channel from the webhook handler
// 4. Workers process jobs concurrently
//
// LINE expects the webhook to answer quickly, so the handler only queues
// events and the slow part (download, Gemini, Forms) happens here.
package worker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/Shimizu-Technology/voice-forms-bot/internal/models"
)

// ErrQueueFull is returned by Submit when the queue has no room.
var ErrQueueFull = errors.New("job queue is full")

// ErrStopped is returned by Submit after Stop.
var ErrStopped = errors.New("worker pool stopped")

// JobType identifies what kind of work a job represents.
type JobType string

const (
	JobAudio JobType = "audio" // A voice message to turn into a form
	JobText  JobType = "text"  // A bot command
)

// Job represents a unit of work to be processed by a worker.
type Job struct {
	ID        string
	Type      JobType
	Audio     *models.AudioEvent
	Text      *models.TextEvent
	CreatedAt time.Time
}

// AudioJob wraps an audio event in a Job.
func AudioJob(ev models.AudioEvent) Job {
	return Job{ID: uuid.NewString(), Type: JobAudio, Audio: &ev, CreatedAt: time.Now()}
}

// TextJob wraps a text event in a Job.
func TextJob(ev models.TextEvent) Job {
	return Job{ID: uuid.NewString(), Type: JobText, Text: &ev, CreatedAt: time.Now()}
}

// Handler does the actual work for each job type.
type Handler interface {
	HandleAudio(ctx context.Context, ev models.AudioEvent) error
	HandleText(ctx context.Context, ev models.TextEvent) error
}

// Pool manages a pool of worker goroutines.
type Pool struct {
	// Go Pattern: This buffered channel acts as our job queue.
	// Buffered means it can hold `queueSize` jobs before Submit fails.
	jobs       chan Job
	workers    int
	jobTimeout time.Duration
	logger     *slog.Logger

	// mu guards stopped so Submit never sends on a closed channel.
	mu      sync.RWMutex
	stopped bool

	wg sync.WaitGroup

	// Cancelling ctx aborts jobs still running when Stop gives up waiting.
	ctx    context.Context
	cancel context.CancelFunc
}

// NewPool creates a new worker pool.
func NewPool(workers, queueSize int, jobTimeout time.Duration, logger *slog.Logger) *Pool {
	ctx, cancel := context.WithCancel(context.Background())
	return &Pool{
		jobs:       make(chan Job, queueSize),
		workers:    workers,
		jobTimeout: jobTimeout,
		logger:     logger,
		ctx:        ctx,
		cancel:     cancel,
	}
}

// Start launches the worker goroutines.
func (p *Pool) Start(h Handler) {
	p.logger.Info(fmt.Sprintf("🚀 Starting %d background workers", p.workers))
	for i := 0; i < p.workers; i++ {
		p.wg.Add(1)
		go p.worker(i, h)
	}
}

// Stop closes the queue and waits up to grace for queued and running jobs.
// Whatever is still running after that is cancelled.
func (p *Pool) Stop(grace time.Duration) {
	p.logger.Info("⏹️  Stopping workers...")

	p.mu.Lock()
	if p.stopped {
		p.mu.Unlock()
		return
	}
	p.stopped = true
	close(p.jobs)
	p.mu.Unlock()

	done := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(grace):
		p.logger.Warn("workers did not drain in time, cancelling running jobs", "queued", len(p.jobs))
		p.cancel()
		<-done
	}
	p.cancel()
	p.logger.Info("✅ All workers stopped")
}

// Submit adds a job to the queue without blocking.
func (p *Pool) Submit(job Job) error {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.stopped {
		return ErrStopped
	}

	// Go Pattern: `select` with `default` makes channel operations non-blocking.
	// Without default, a full queue would stall the webhook response.
	select {
	case p.jobs <- job:
		p.logger.Debug("📥 Job queued", "job_id", job.ID, "type", job.Type)
		return nil
	default:
		return ErrQueueFull
	}
}

// QueueSize returns the current number of jobs in the queue.
func (p *Pool) QueueSize() int {
	return len(p.jobs)
}

// WorkerCount returns the number of workers.
func (p *Pool) WorkerCount() int {
	return p.workers
}

// worker is the main loop for each worker goroutine.
func (p *Pool) worker(id int, h Handler) {
	defer p.wg.Done()

	logger := p.logger.With("worker", id)
	logger.Debug("👷 Worker started")

	// Go Pattern: `range` over a channel reads values until the channel is closed.
	for job := range p.jobs {
		if p.ctx.Err() != nil {
			logger.Warn("dropping job after shutdown", "job_id", job.ID)
			continue
		}

		start := time.Now()
		err := p.run(h, job)
		if err != nil {
			logger.Error("❌ job failed", "job_id", job.ID, "type", job.Type, "error", err)
		} else {
			logger.Info("✅ job completed", "job_id", job.ID, "type", job.Type, "elapsed", time.Since(start))
		}
	}

	logger.Debug("👷 Worker stopped")
}

// run executes one job. A panic in a handler fails the job instead of
// killing the worker.
func (p *Pool) run(h Handler, job Job) (err error) {
	ctx, cancel := context.WithTimeout(p.ctx, p.jobTimeout)
	defer cancel()

	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
		}
	}()

	switch job.Type {
	case JobAudio:
		if job.Audio == nil {
			return fmt.Errorf("audio job %s has no event", job.ID)
		}
		return h.HandleAudio(ctx, *job.Audio)
	case JobText:
		if job.Text == nil {
			return fmt.Errorf("text job %s has no event", job.ID)
		}
		return h.HandleText(ctx, *job.Text)
	default:
		return fmt.Errorf("unknown job type: %s", job.Type)
	}
}
