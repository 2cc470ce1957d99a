// Package refresh re-runs resource refreshes on a fixed interval so the
// cache is warm before its entries expire.
package refresh

import (
	"container/heap"
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"
)

var ErrSchedulerStopped = errors.New("refresh scheduler is stopped")

// RunFunc performs one refresh of a resource.
type RunFunc func(ctx context.Context) error

// Scheduler keeps recurring jobs in a min-heap ordered by next run time and
// hands due jobs to a fixed pool of workers.
type Scheduler struct {
	heap    jobHeap
	mu      sync.Mutex
	wakeup  chan struct{}
	jobs    map[string]*job
	work    chan *job
	workers int
	wg      sync.WaitGroup
	started bool
	stopped bool
	stopCh  chan struct{}
	cancel  context.CancelFunc
	logger  *slog.Logger
	now     func() time.Time

	runs     int
	failures int
	lastErr  error
}

// NewScheduler creates a scheduler with the given number of workers.
func NewScheduler(workers int, logger *slog.Logger) *Scheduler {
	if workers <= 0 {
		workers = 1
	}
	if logger == nil {
		logger = slog.Default()
	}
	s := &Scheduler{
		wakeup:  make(chan struct{}, 1),
		jobs:    make(map[string]*job),
		work:    make(chan *job),
		workers: workers,
		stopCh:  make(chan struct{}),
		logger:  logger,
		now:     time.Now,
	}
	heap.Init(&s.heap)
	return s
}

// Start launches the workers and the scheduling loop. Jobs run with a
// context derived from ctx that is cancelled by Stop.
func (s *Scheduler) Start(ctx context.Context) {
	s.mu.Lock()
	if s.started || s.stopped {
		s.mu.Unlock()
		return
	}
	s.started = true
	ctx, s.cancel = context.WithCancel(ctx)
	s.mu.Unlock()

	for i := 0; i < s.workers; i++ {
		s.wg.Add(1)
		go s.worker(ctx)
	}

	s.wg.Add(1)
	go s.run()
}

// Stop cancels in-flight jobs and waits for the workers to exit.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	if s.stopped {
		s.mu.Unlock()
		return
	}
	s.stopped = true
	close(s.stopCh)
	if s.cancel != nil {
		s.cancel()
	}
	s.mu.Unlock()

	s.wg.Wait()
}

// Schedule registers a job that first runs at first and then every interval
// after each run completes. Scheduling an existing id replaces it.
func (s *Scheduler) Schedule(id string, first time.Time, interval time.Duration, fn RunFunc) error {
	if interval <= 0 {
		return errors.New("refresh interval must be positive")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.stopped {
		return ErrSchedulerStopped
	}

	s.removeLocked(id)

	j := &job{resourceID: id, next: first, interval: interval, index: -1}
	j.run = func(ctx context.Context) { s.execute(ctx, j, fn) }
	heap.Push(&s.heap, j)
	s.jobs[id] = j

	if s.heap[0] == j {
		s.signal()
	}
	return nil
}

// Cancel removes a job. A run already in progress completes but is not
// re-armed.
func (s *Scheduler) Cancel(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.jobs[id]; !ok {
		return false
	}
	s.removeLocked(id)
	return true
}

func (s *Scheduler) removeLocked(id string) {
	existing, ok := s.jobs[id]
	if !ok {
		return
	}
	if existing.index >= 0 {
		heap.Remove(&s.heap, existing.index)
	}
	delete(s.jobs, id)
}

func (s *Scheduler) signal() {
	select {
	case s.wakeup <- struct{}{}:
	default:
	}
}

// run is the main scheduling loop
func (s *Scheduler) run() {
	defer s.wg.Done()

	for {
		s.mu.Lock()
		if s.stopped {
			s.mu.Unlock()
			return
		}

		waitDuration := 24 * time.Hour
		if s.heap.Len() > 0 {
			next := s.heap[0]
			waitDuration = next.next.Sub(s.now())
			if waitDuration <= 0 {
				j := heap.Pop(&s.heap).(*job)
				s.mu.Unlock()

				select {
				case s.work <- j:
				case <-s.stopCh:
					return
				}
				continue
			}
		}
		s.mu.Unlock()

		timer := time.NewTimer(waitDuration)
		select {
		case <-timer.C:
		case <-s.wakeup:
			timer.Stop()
		case <-s.stopCh:
			timer.Stop()
			return
		}
	}
}

func (s *Scheduler) worker(ctx context.Context) {
	defer s.wg.Done()

	for {
		select {
		case j := <-s.work:
			j.run(ctx)
		case <-s.stopCh:
			return
		}
	}
}

func (s *Scheduler) execute(ctx context.Context, j *job, fn RunFunc) {
	start := s.now()
	err := fn(ctx)

	s.mu.Lock()
	defer s.mu.Unlock()

	s.runs++
	if err != nil {
		s.failures++
		s.lastErr = err
		s.logger.Error("refresh failed", "resource_id", j.resourceID, "error", err)
	} else {
		s.logger.Info("refresh completed", "resource_id", j.resourceID, "duration", s.now().Sub(start))
	}

	if s.stopped || s.jobs[j.resourceID] != j {
		return
	}
	j.next = s.now().Add(j.interval)
	heap.Push(&s.heap, j)
	if s.heap[0] == j {
		s.signal()
	}
}

// Stats returns statistics about the scheduler
func (s *Scheduler) Stats() Stats {
	s.mu.Lock()
	defer s.mu.Unlock()

	stats := Stats{
		ScheduledJobs: len(s.jobs),
		Workers:       s.workers,
		Runs:          s.runs,
		Failures:      s.failures,
	}
	if s.heap.Len() > 0 {
		stats.NextRun = s.heap[0].next
	}
	if s.lastErr != nil {
		stats.LastError = s.lastErr.Error()
	}
	return stats
}

// Stats contains statistics about the scheduler
type Stats struct {
	ScheduledJobs int       `json:"scheduled_jobs"`
	Workers       int       `json:"workers"`
	Runs          int       `json:"runs"`
	Failures      int       `json:"failures"`
	NextRun       time.Time `json:"next_run,omitempty"`
	LastError     string    `json:"last_error,omitempty"`
}

// Interval is how often a resource cached for ttl is refreshed so that the
// refresh lands lead before expiry. A lead at or beyond the ttl refreshes
// every ttl.
func Interval(ttl, lead time.Duration) time.Duration {
	if lead <= 0 || lead >= ttl {
		return ttl
	}
	return ttl - lead
}

// NextRunTime returns when a resource fetched at fetchedAt should next be
// refreshed. Times already in the past collapse to now.
func NextRunTime(now, fetchedAt time.Time, ttl, lead time.Duration) time.Time {
	if fetchedAt.IsZero() {
		return now
	}
	next := fetchedAt.Add(Interval(ttl, lead))
	if next.Before(now) {
		return now
	}
	return next
}
