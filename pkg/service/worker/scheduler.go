package worker

import (
	"context"
	"sync"
	"time"

	"github.com/m-mizutani/goerr/v2"
	"github.com/robfig/cron/v3"

	"github.com/Netflix/dispatch-sub000/pkg/service/metrics"
	"github.com/Netflix/dispatch-sub000/pkg/utils/errutil"
	"github.com/Netflix/dispatch-sub000/pkg/utils/logging"
)

// Job is a named periodic task. Spec is a standard five-field cron
// expression or a descriptor such as "@every 1m".
type Job struct {
	Name string
	Spec string
	Run  func(ctx context.Context) error
}

// Scheduler runs jobs on cron schedules. A job never overlaps itself; a tick
// arriving while the previous run is still in progress is skipped.
type Scheduler struct {
	cron    *cron.Cron
	metrics metrics.Recorder

	mu   sync.Mutex
	jobs map[string]Job
}

// SchedulerOption configures the scheduler
type SchedulerOption func(*Scheduler)

// WithMetrics records job durations and outcomes
func WithMetrics(r metrics.Recorder) SchedulerOption {
	return func(s *Scheduler) {
		s.metrics = r
	}
}

// WithLocation evaluates schedules in loc instead of UTC
func WithLocation(loc *time.Location) SchedulerOption {
	return func(s *Scheduler) {
		s.cron = cron.New(cron.WithLocation(loc), cron.WithChain(cron.SkipIfStillRunning(cron.DiscardLogger)))
	}
}

// NewScheduler creates a stopped scheduler
func NewScheduler(opts ...SchedulerOption) *Scheduler {
	s := &Scheduler{
		cron:    cron.New(cron.WithLocation(time.UTC), cron.WithChain(cron.SkipIfStillRunning(cron.DiscardLogger))),
		metrics: metrics.Nop{},
		jobs:    make(map[string]Job),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Register adds a job. It must be called before Start.
func (s *Scheduler) Register(ctx context.Context, job Job) error {
	if job.Name == "" || job.Run == nil {
		return goerr.New("job requires a name and a run function")
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.jobs[job.Name]; ok {
		return goerr.New("job is already registered", goerr.V("job", job.Name))
	}
	if _, err := s.cron.AddFunc(job.Spec, func() { _ = s.execute(ctx, job) }); err != nil {
		return goerr.Wrap(err, "failed to schedule job", goerr.V("job", job.Name), goerr.V("spec", job.Spec))
	}
	s.jobs[job.Name] = job
	return nil
}

// Start launches the cron loop in the background
func (s *Scheduler) Start() {
	logging.Default().Info("scheduler starting", "jobs", len(s.jobs))
	s.cron.Start()
}

// Stop stops scheduling and waits for running jobs to finish or ctx to end
func (s *Scheduler) Stop(ctx context.Context) {
	done := s.cron.Stop()
	select {
	case <-done.Done():
	case <-ctx.Done():
		logging.Default().Warn("scheduler stopped before running jobs finished")
		return
	}
	logging.Default().Info("scheduler stopped")
}

// RunNow executes a registered job synchronously
func (s *Scheduler) RunNow(ctx context.Context, name string) error {
	s.mu.Lock()
	job, ok := s.jobs[name]
	s.mu.Unlock()
	if !ok {
		return goerr.New("job is not registered", goerr.V("job", name))
	}
	return s.execute(ctx, job)
}

// Jobs returns the registered job names
func (s *Scheduler) Jobs() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	names := make([]string, 0, len(s.jobs))
	for name := range s.jobs {
		names = append(names, name)
	}
	return names
}

func (s *Scheduler) execute(ctx context.Context, job Job) (err error) {
	ctx = logging.With(ctx, logging.From(ctx).With("job", job.Name))
	start := time.Now()
	defer func() {
		if r := recover(); r != nil {
			err = goerr.New("job panicked", goerr.V("job", job.Name), goerr.V("panic", r))
		}
		s.metrics.JobRun(job.Name, err, time.Since(start))
		if err != nil {
			errutil.Handle(ctx, err, "scheduled job failed")
		}
	}()

	err = job.Run(ctx)
	return err
}
