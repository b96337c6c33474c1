package scheduler

import (
	"context"
	"hash/fnv"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/semaphore"

	"github.com/BatmanBruc/paygate-bot/types"
)

// Job is one unit of post-commit work, usually the effects of a transition.
type Job func(ctx context.Context)

type queuedJob struct {
	key string
	run Job
}

// Scheduler runs jobs on a fixed worker pool and periodically sweeps expired
// state. Jobs with the same key always land on the same worker, so they run
// in the order they were enqueued.
type Scheduler struct {
	workers       int
	queues        []chan queuedJob
	sweepers      []types.Sweeper
	sweepInterval time.Duration
	jobTimeout    time.Duration
	background    *semaphore.Weighted
	logger        *slog.Logger
	now           func() time.Time

	ctx     context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	mu      sync.RWMutex
	running bool
}

type Config struct {
	Workers       int
	QueueSize     int
	SweepInterval time.Duration
	// JobTimeout bounds a single job; zero means one minute.
	JobTimeout time.Duration
	// Background caps the unkeyed jobs started with Go that run at once.
	Background int
}

func NewScheduler(config Config, logger *slog.Logger, sweepers ...types.Sweeper) *Scheduler {
	if config.Workers <= 0 {
		config.Workers = 3
	}
	if config.QueueSize <= 0 {
		config.QueueSize = config.Workers * 2
		if config.QueueSize < 10 {
			config.QueueSize = 10
		}
	}
	if config.JobTimeout <= 0 {
		config.JobTimeout = time.Minute
	}
	if config.Background <= 0 {
		config.Background = 16
	}
	if logger == nil {
		logger = slog.Default()
	}

	ctx, cancel := context.WithCancel(context.Background())

	queues := make([]chan queuedJob, config.Workers)
	for i := range queues {
		queues[i] = make(chan queuedJob, config.QueueSize)
	}

	return &Scheduler{
		workers:       config.Workers,
		queues:        queues,
		sweepers:      sweepers,
		sweepInterval: config.SweepInterval,
		jobTimeout:    config.JobTimeout,
		background:    semaphore.NewWeighted(int64(config.Background)),
		logger:        logger,
		now:           time.Now,
		ctx:           ctx,
		cancel:        cancel,
	}
}

func (s *Scheduler) Start() {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return
	}
	s.running = true
	s.mu.Unlock()

	s.logger.Info("scheduler started", "workers", s.workers, "sweepers", len(s.sweepers))

	for i := 0; i < s.workers; i++ {
		s.wg.Add(1)
		go s.worker(i)
	}

	if s.sweepInterval > 0 && len(s.sweepers) > 0 {
		s.wg.Add(1)
		go s.sweepLoop()
	}
}

// Stop cancels the workers and waits for the job in progress on each.
// Jobs still queued are dropped.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return
	}
	s.running = false
	s.mu.Unlock()

	s.logger.Info("stopping scheduler")
	s.cancel()
	s.wg.Wait()
	s.logger.Info("scheduler stopped")
}

// Run starts the scheduler and blocks until ctx is done.
func (s *Scheduler) Run(ctx context.Context) error {
	s.Start()
	<-ctx.Done()
	s.Stop()
	return nil
}

// Dispatch queues job under key. It never blocks: when the worker's queue is
// full or the scheduler is not running the job is dropped and false returned.
func (s *Scheduler) Dispatch(key string, job Job) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if !s.running {
		s.logger.Warn("scheduler not running, job dropped", "key", key)
		return false
	}

	select {
	case s.queues[s.shard(key)] <- queuedJob{key: key, run: job}:
		return true
	default:
		s.logger.Warn("scheduler queue full, job dropped", "key", key)
		return false
	}
}

// DispatchWait is Dispatch for jobs that must not be lost: it waits for room
// in the worker's queue until ctx is done or the scheduler stops.
func (s *Scheduler) DispatchWait(ctx context.Context, key string, job Job) bool {
	s.mu.RLock()
	running := s.running
	s.mu.RUnlock()
	if !running {
		s.logger.Warn("scheduler not running, job dropped", "key", key)
		return false
	}

	select {
	case s.queues[s.shard(key)] <- queuedJob{key: key, run: job}:
		return true
	case <-ctx.Done():
		s.logger.Warn("scheduler queue full, job dropped after wait", "key", key, "error", ctx.Err())
		return false
	case <-s.ctx.Done():
		return false
	}
}

// Go runs job on its own goroutine, outside the keyed queues. At most
// Config.Background such jobs run at once; the rest wait for a slot.
func (s *Scheduler) Go(job Job) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if !s.running {
		s.logger.Warn("scheduler not running, background job dropped")
		return false
	}

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		if err := s.background.Acquire(s.ctx, 1); err != nil {
			return
		}
		defer s.background.Release(1)
		s.runJob(-1, queuedJob{key: "background", run: job})
	}()
	return true
}

func (s *Scheduler) shard(key string) int {
	h := fnv.New32a()
	_, _ = h.Write([]byte(key))
	return int(h.Sum32() % uint32(s.workers))
}

func (s *Scheduler) worker(id int) {
	defer s.wg.Done()

	for {
		select {
		case <-s.ctx.Done():
			return
		case j := <-s.queues[id]:
			s.runJob(id, j)
		}
	}
}

func (s *Scheduler) runJob(id int, j queuedJob) {
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("job panicked", "worker", id, "key", j.key, "panic", r)
		}
	}()

	ctx, cancel := context.WithTimeout(s.ctx, s.jobTimeout)
	defer cancel()
	j.run(ctx)
}

func (s *Scheduler) sweepLoop() {
	defer s.wg.Done()

	ticker := time.NewTicker(s.sweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-s.ctx.Done():
			return
		case <-ticker.C:
			s.SweepOnce(s.ctx)
		}
	}
}

// SweepOnce runs every sweeper once and returns the number of removed items.
func (s *Scheduler) SweepOnce(ctx context.Context) int {
	total := 0
	now := s.now()
	for _, sw := range s.sweepers {
		n, err := sw.Sweep(ctx, now)
		if err != nil {
			s.logger.Error("sweep failed", "error", err)
			continue
		}
		total += n
	}
	if total > 0 {
		s.logger.Info("sweep finished", "removed", total)
	}
	return total
}
