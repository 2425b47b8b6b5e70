// Package housekeeping runs the node's periodic background jobs — as
// wired in cmd/squeaknode, expiring stale offers, syncing the followed
// timeline, and broadcasting shared items — each on its own ticker, all
// of them stopping together on context cancellation. Peer dialing and
// pings are not jobs here; peerserver and peer.Connection run those.
package housekeeping

import (
	"context"
	"sync"
	"time"

	"github.com/squeaknode/node/internal/logger"
)

// Job is one named periodic task.
type Job struct {
	Name     string
	Interval time.Duration
	Run      func(ctx context.Context) error
}

// Pool runs a fixed set of Jobs, each on its own ticker, until Stop is
// called or the context passed to Start is canceled.
type Pool struct {
	jobs []Job
	log  *logger.Logger

	mu      sync.Mutex
	running bool
	cancel  context.CancelFunc
	wg      sync.WaitGroup
}

// New constructs a Pool over the given jobs. Jobs with a non-positive
// interval are skipped.
func New(jobs []Job, log *logger.Logger) *Pool {
	return &Pool{jobs: jobs, log: log.Named("housekeeping")}
}

// Start launches one goroutine per job, each running immediately and
// then again every Interval, until ctx is canceled or Stop is called.
// Calling Start on an already-running Pool is a no-op.
func (p *Pool) Start(ctx context.Context) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.running {
		return
	}

	runCtx, cancel := context.WithCancel(ctx)
	p.cancel = cancel
	p.running = true

	for _, job := range p.jobs {
		if job.Interval <= 0 {
			continue
		}
		job := job
		p.wg.Add(1)
		go p.runJob(runCtx, job)
	}
}

func (p *Pool) runJob(ctx context.Context, job Job) {
	defer p.wg.Done()

	p.tick(ctx, job)

	ticker := time.NewTicker(job.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			p.tick(ctx, job)
		}
	}
}

func (p *Pool) tick(ctx context.Context, job Job) {
	if err := job.Run(ctx); err != nil {
		p.log.Warn("housekeeping job failed", "job", job.Name, "error", err)
	}
}

// Stop cancels all running jobs and waits for them to return.
func (p *Pool) Stop() {
	p.mu.Lock()
	if !p.running {
		p.mu.Unlock()
		return
	}
	cancel := p.cancel
	p.running = false
	p.mu.Unlock()

	cancel()
	p.wg.Wait()
}
