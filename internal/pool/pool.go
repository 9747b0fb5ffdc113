package pool

import (
	"context"
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/bhrochdi/parentguard/internal/agent"
	"github.com/bhrochdi/parentguard/internal/metrics"
	"github.com/rs/zerolog"
)

// Op identifies the agent operation a job carries.
type Op string

const (
	OpReplaceRuleSet  Op = "replace_rule_set"
	OpStartMonitoring Op = "start_monitoring"
	OpStopMonitoring  Op = "stop_monitoring"
	OpBlockSite       Op = "block_site"
	OpUnblockSite     Op = "unblock_site"
)

// SyncJob is a unit of work for the worker pool: one enforcement agent call.
type SyncJob struct {
	Op      Op
	RuleSet *agent.RuleSet // set for OpReplaceRuleSet
	Domain  string         // set for OpBlockSite / OpUnblockSite
}

// JobHandler processes a single SyncJob. Returns an error if the job should
// be retried.
type JobHandler func(ctx context.Context, job SyncJob) error

// Config holds worker pool configuration.
type Config struct {
	Workers    int
	QueueDepth int
	MaxRetries int
	RetryBase  time.Duration
}

// Pool is a bounded worker pool that carries agent calls off the caller's
// goroutine, so policy editing and session transitions never block on
// enforcement agent availability.
type Pool struct {
	cfg      Config
	jobs     chan SyncJob
	handler  JobHandler
	log      zerolog.Logger
	wg       sync.WaitGroup
	stopOnce sync.Once
}

// New creates a Pool with the given config and handler.
func New(cfg Config, handler JobHandler, log zerolog.Logger) (*Pool, error) {
	if cfg.Workers < 1 || cfg.Workers > 16 {
		return nil, fmt.Errorf("POOL_WORKERS must be 1–16, got %d", cfg.Workers)
	}
	if cfg.QueueDepth < 1 {
		cfg.QueueDepth = 256
	}
	if cfg.RetryBase == 0 {
		cfg.RetryBase = time.Second
	}
	return &Pool{
		cfg:     cfg,
		jobs:    make(chan SyncJob, cfg.QueueDepth),
		handler: handler,
		log:     log,
	}, nil
}

// Start launches the worker goroutines. ctx controls worker lifetime.
func (p *Pool) Start(ctx context.Context) {
	for i := 0; i < p.cfg.Workers; i++ {
		p.wg.Add(1)
		go p.worker(ctx, i)
	}
}

// Enqueue attempts a non-blocking send. Returns false if the buffer is full.
func (p *Pool) Enqueue(job SyncJob) bool {
	select {
	case p.jobs <- job:
		metrics.JobsEnqueued.WithLabelValues(string(job.Op)).Inc()
		return true
	default:
		metrics.JobsDropped.WithLabelValues("buffer_full").Inc()
		p.log.Warn().Str("op", string(job.Op)).Msg("job dropped: queue full")
		return false
	}
}

// Stop closes the job channel and waits for all workers to drain.
// Safe to call only once.
func (p *Pool) Stop() {
	p.stopOnce.Do(func() {
		close(p.jobs)
	})
	p.wg.Wait()
}

// Depth returns the current number of pending jobs.
func (p *Pool) Depth() int {
	return len(p.jobs)
}

// worker dequeues jobs and processes them with inline retry (no re-enqueue).
// Inline retry avoids the channel close/send race condition.
func (p *Pool) worker(ctx context.Context, id int) {
	defer p.wg.Done()
	log := p.log.With().Int("worker_id", id).Logger()

	for {
		select {
		case <-ctx.Done():
			return
		case job, ok := <-p.jobs:
			if !ok {
				return // channel closed by Stop()
			}
			metrics.WorkerQueueDepth.Set(float64(len(p.jobs)))
			p.processWithRetry(ctx, job, log)
		}
	}
}

// processWithRetry runs the handler inline with exponential backoff.
func (p *Pool) processWithRetry(ctx context.Context, job SyncJob, log zerolog.Logger) {
	for attempt := 0; attempt <= p.cfg.MaxRetries; attempt++ {
		if attempt > 0 {
			backoff := p.backoff(attempt - 1)
			log.Warn().Str("op", string(job.Op)).Int("attempt", attempt).
				Dur("backoff", backoff).Msg("retrying job")
			select {
			case <-ctx.Done():
				metrics.SyncJobs.WithLabelValues(string(job.Op), "error").Inc()
				return
			case <-time.After(backoff):
			}
		}

		if err := p.handler(ctx, job); err != nil {
			if attempt < p.cfg.MaxRetries {
				metrics.SyncJobs.WithLabelValues(string(job.Op), "retried").Inc()
				continue
			}
			metrics.SyncJobs.WithLabelValues(string(job.Op), "error").Inc()
			log.Warn().Err(err).Str("op", string(job.Op)).
				Int("max_retries", p.cfg.MaxRetries).Msg("job failed")
			return
		}

		metrics.SyncJobs.WithLabelValues(string(job.Op), "success").Inc()
		return
	}
}

// backoff computes exponential backoff with a max cap.
func (p *Pool) backoff(retries int) time.Duration {
	multiplier := math.Pow(2, float64(retries))
	d := time.Duration(float64(p.cfg.RetryBase) * multiplier)
	if max := time.Minute; d > max {
		d = max
	}
	return d
}
