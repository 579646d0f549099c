// Package intake implements the bounded acceptance queue and worker pool
// that sit between the HTTP upgrade path and a running tunnel.Session.
// The channel-as-bounded-queue plus fixed worker pool shape hands each
// accepted connection off to a goroutine rather than letting an
// unbounded number run unsupervised.
package intake

import (
	"context"
	"sync"
	"sync/atomic"

	"golang.org/x/time/rate"

	"github.com/sammck-go/guacgw/internal/gwerr"
	"github.com/sammck-go/guacgw/internal/metrics"
	"github.com/sammck-go/guacgw/internal/obslog"
)

// Job is one accepted connection waiting for a worker. Run performs the
// handshake and relay and must itself be idempotent-safe to call exactly
// once; the queue calls it exactly once per accepted Job.
type Job struct {
	ID  int64
	Run func(ctx context.Context) error
}

// Config bundles the worker-pool and backpressure settings, mirroring
// the intake section of internal/config.Config.
type Config struct {
	Workers           int
	QueueDepth        int
	MaxSessionsPerSec float64
	Logger            obslog.Logger
	Metrics           *metrics.Collectors
}

// Queue is the bounded intake surface: Enqueue either admits a Job onto
// a fixed-depth channel or fails fast — queues are never unbounded. A
// fixed pool of worker goroutines drains it.
type Queue struct {
	cfg     Config
	jobs    chan *Job
	limiter *rate.Limiter
	nextID  atomic.Int64

	wg sync.WaitGroup
}

// New builds a Queue. Start must be called to launch its worker pool.
func New(cfg Config) *Queue {
	if cfg.Workers <= 0 {
		cfg.Workers = 1
	}
	if cfg.QueueDepth <= 0 {
		cfg.QueueDepth = 1
	}
	q := &Queue{
		cfg:  cfg,
		jobs: make(chan *Job, cfg.QueueDepth),
	}
	if cfg.MaxSessionsPerSec > 0 {
		q.limiter = rate.NewLimiter(rate.Limit(cfg.MaxSessionsPerSec), int(cfg.MaxSessionsPerSec)+1)
	}
	q.nextID.Store(0)
	return q
}

// NextID allocates the next monotonic session ID, starting at 1.
func (q *Queue) NextID() int64 {
	return q.nextID.Add(1)
}

// Start launches the fixed worker pool. Workers exit when ctx is
// cancelled and the queue has been drained of already-admitted jobs.
func (q *Queue) Start(ctx context.Context) {
	for i := 0; i < q.cfg.Workers; i++ {
		q.wg.Add(1)
		go q.worker(ctx)
	}
}

// Wait blocks until every worker has exited, for use during process
// shutdown after the intake HTTP surface has stopped accepting.
func (q *Queue) Wait() {
	q.wg.Wait()
}

func (q *Queue) worker(ctx context.Context) {
	defer q.wg.Done()
	for {
		select {
		case <-ctx.Done():
			// Run every already-admitted job once, with ctx cancelled,
			// before exiting.
			for {
				select {
				case job := <-q.jobs:
					if err := job.Run(ctx); err != nil {
						q.cfg.Logger.DLogf("session #%d ended: %s", job.ID, err)
					}
				default:
					return
				}
			}
		case job, ok := <-q.jobs:
			if !ok {
				return
			}
			if err := job.Run(ctx); err != nil {
				q.cfg.Logger.DLogf("session #%d ended: %s", job.ID, err)
			}
		}
	}
}

// Enqueue admits job onto the bounded queue, subject to the rate
// limiter's backpressure. It returns a *gwerr.GatewayError with Kind
// Internal if the job is rejected, either because the limiter denied it
// or because the queue is already full. The caller is responsible for
// closing the client connection with an internal-error code on that
// failure.
func (q *Queue) Enqueue(job *Job) error {
	if q.limiter != nil && !q.limiter.Allow() {
		if q.cfg.Metrics != nil {
			q.cfg.Metrics.IntakeRejected.Inc()
		}
		return gwerr.Newf(gwerr.Internal, "intake rate limit exceeded")
	}
	select {
	case q.jobs <- job:
		return nil
	default:
		if q.cfg.Metrics != nil {
			q.cfg.Metrics.IntakeRejected.Inc()
		}
		return gwerr.Newf(gwerr.Internal, "intake queue full")
	}
}
