// Package scheduler runs named jobs on fixed intervals over a bounded worker
// pool.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/semaphore"
)

var (
	ErrUnknownJob   = errors.New("unknown job")
	ErrJobRunning   = errors.New("job already running")
	ErrDuplicateJob = errors.New("job already registered")
	ErrStarted      = errors.New("scheduler already started")
)

// Job is one unit of periodic work. Run must honor ctx cancellation.
type Job interface {
	Name() string
	Run(ctx context.Context) error
}

// Stats is a snapshot of one job's run history.
type Stats struct {
	Name         string        `json:"name"`
	Interval     time.Duration `json:"interval"`
	Running      bool          `json:"running"`
	Runs         int64         `json:"runs"`
	Failures     int64         `json:"failures"`
	Skipped      int64         `json:"skipped"`
	LastRun      time.Time     `json:"last_run,omitempty"`
	LastDuration time.Duration `json:"last_duration"`
	LastError    string        `json:"last_error,omitempty"`
}

type entry struct {
	job      Job
	interval time.Duration
	running  atomic.Bool

	mu    sync.Mutex
	stats Stats
}

// Scheduler fires each registered job on its own ticker. A tick that lands
// while the job's previous run is still in flight is skipped, not queued.
// Different jobs run concurrently, bounded by the worker count.
type Scheduler struct {
	workers *semaphore.Weighted
	logger  *slog.Logger

	mu      sync.Mutex
	entries map[string]*entry
	started bool
	cancel  context.CancelFunc
	wg      sync.WaitGroup
}

// New creates a scheduler that runs at most workers jobs at a time.
func New(workers int, logger *slog.Logger) *Scheduler {
	if workers < 1 {
		workers = 1
	}
	return &Scheduler{
		workers: semaphore.NewWeighted(int64(workers)),
		logger:  logger.With("component", "scheduler"),
		entries: make(map[string]*entry),
	}
}

// Register adds a job fired every interval. The first run happens one
// interval after Start. Jobs must be registered before Start.
func (s *Scheduler) Register(job Job, interval time.Duration) error {
	if interval <= 0 {
		return fmt.Errorf("register %s: interval must be positive, got %s", job.Name(), interval)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.started {
		return fmt.Errorf("register %s: %w", job.Name(), ErrStarted)
	}
	if _, ok := s.entries[job.Name()]; ok {
		return fmt.Errorf("register %s: %w", job.Name(), ErrDuplicateJob)
	}
	s.entries[job.Name()] = &entry{
		job:      job,
		interval: interval,
		stats:    Stats{Name: job.Name(), Interval: interval},
	}
	return nil
}

// Start launches one ticker goroutine per job. Calling Start on a running
// scheduler does nothing.
func (s *Scheduler) Start() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.started {
		return
	}
	s.started = true

	ctx, cancel := context.WithCancel(context.Background())
	s.cancel = cancel

	for _, e := range s.entries {
		s.wg.Add(1)
		go func(e *entry) {
			defer s.wg.Done()
			s.loop(ctx, e)
		}(e)
	}
	s.logger.Info("scheduler started", "jobs", len(s.entries))
}

// Stop cancels every job and waits for in-flight runs to return.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	cancel := s.cancel
	s.mu.Unlock()
	if cancel != nil {
		cancel()
	}
	s.wg.Wait()
	s.logger.Info("scheduler stopped")
}

func (s *Scheduler) loop(ctx context.Context, e *entry) {
	ticker := time.NewTicker(e.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.fire(ctx, e)
		}
	}
}

// fire starts a run in the background unless one is in flight.
func (s *Scheduler) fire(ctx context.Context, e *entry) {
	if !e.running.CompareAndSwap(false, true) {
		e.mu.Lock()
		e.stats.Skipped++
		e.mu.Unlock()
		s.logger.Debug("skipping tick: previous run in flight", "job", e.job.Name())
		return
	}

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		defer e.running.Store(false)
		if err := s.workers.Acquire(ctx, 1); err != nil {
			return
		}
		defer s.workers.Release(1)
		_ = s.execute(ctx, e)
	}()
}

// Trigger runs the named job now and waits for it. It fails with
// ErrJobRunning when a run is already in flight.
func (s *Scheduler) Trigger(ctx context.Context, name string) error {
	s.mu.Lock()
	e, ok := s.entries[name]
	s.mu.Unlock()
	if !ok {
		return fmt.Errorf("trigger %s: %w", name, ErrUnknownJob)
	}
	if !e.running.CompareAndSwap(false, true) {
		return fmt.Errorf("trigger %s: %w", name, ErrJobRunning)
	}
	defer e.running.Store(false)

	if err := s.workers.Acquire(ctx, 1); err != nil {
		return fmt.Errorf("trigger %s: %w", name, err)
	}
	defer s.workers.Release(1)
	return s.execute(ctx, e)
}

// execute runs the job once, converting a panic into an error so one bad
// run never takes the scheduler down.
func (s *Scheduler) execute(ctx context.Context, e *entry) (err error) {
	name := e.job.Name()
	start := time.Now()

	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("job %s panicked: %v", name, r)
		}
		elapsed := time.Since(start)

		e.mu.Lock()
		e.stats.Runs++
		e.stats.LastRun = start
		e.stats.LastDuration = elapsed
		e.stats.LastError = ""
		if err != nil {
			e.stats.Failures++
			e.stats.LastError = err.Error()
		}
		e.mu.Unlock()

		if err != nil {
			s.logger.Error("job failed", "job", name, "duration", elapsed, "err", err)
			return
		}
		s.logger.Debug("job completed", "job", name, "duration", elapsed)
	}()

	return e.job.Run(ctx)
}

// Stats returns a snapshot of every job, sorted by name.
func (s *Scheduler) Stats() []Stats {
	s.mu.Lock()
	entries := make([]*entry, 0, len(s.entries))
	for _, e := range s.entries {
		entries = append(entries, e)
	}
	s.mu.Unlock()

	out := make([]Stats, 0, len(entries))
	for _, e := range entries {
		e.mu.Lock()
		st := e.stats
		e.mu.Unlock()
		st.Running = e.running.Load()
		out = append(out, st)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// Names returns the registered job names, sorted.
func (s *Scheduler) Names() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	names := make([]string, 0, len(s.entries))
	for n := range s.entries {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

type funcJob struct {
	name string
	fn   func(ctx context.Context) error
}

func (j funcJob) Name() string                  { return j.name }
func (j funcJob) Run(ctx context.Context) error { return j.fn(ctx) }

// Func adapts a plain function to a Job.
func Func(name string, fn func(ctx context.Context) error) Job {
	return funcJob{name: name, fn: fn}
}
