package scheduler

import (
	"context"
	"fmt"
	"sync"
	"time"

	applogger "VNFlow/pkg/logger"
	"VNFlow/pkg/util"

	"github.com/robfig/cron/v3"
)

// JobFunc runs one scheduled pass. The context carries the per-run timeout.
type JobFunc func(ctx context.Context) error

type job struct {
	name    string
	spec    string
	run     JobFunc
	id      cron.EntryID
	running bool
	lastRun time.Time
	lastErr string
}

// Scheduler drives the standing analysis jobs on exchange-local wall time.
// A job that is still running when its next tick fires is skipped, not
// stacked.
type Scheduler struct {
	cron    *cron.Cron
	loc     *time.Location
	timeout time.Duration
	l       *applogger.Logger

	mu      sync.Mutex
	jobs    map[string]*job
	started bool
}

// New creates a scheduler in the given timezone. An empty timezone falls
// back to Asia/Ho_Chi_Minh, matching the trading session the jobs follow.
func New(timezone string, timeout time.Duration, l *applogger.Logger) (*Scheduler, error) {
	loc := util.VNLocation()
	if timezone != "" {
		parsed, err := time.LoadLocation(timezone)
		if err != nil {
			return nil, fmt.Errorf("load timezone %q: %w", timezone, err)
		}
		loc = parsed
	}
	if timeout <= 0 {
		timeout = 30 * time.Minute
	}
	return &Scheduler{
		cron:    cron.New(cron.WithLocation(loc)),
		loc:     loc,
		timeout: timeout,
		l:       l,
		jobs:    make(map[string]*job),
	}, nil
}

// Location returns the scheduler's timezone.
func (s *Scheduler) Location() *time.Location { return s.loc }

// Register adds a named job on the given cron spec.
func (s *Scheduler) Register(name, spec string, run JobFunc) error {
	if name == "" || spec == "" || run == nil {
		return fmt.Errorf("job name, spec and func are required")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.jobs[name]; exists {
		return fmt.Errorf("job %s already registered", name)
	}

	id, err := s.cron.AddFunc(spec, func() { s.execute(name) })
	if err != nil {
		return fmt.Errorf("add job %s: %w", name, err)
	}
	s.jobs[name] = &job{name: name, spec: spec, run: run, id: id}

	if s.l != nil {
		s.l.Info("scheduler job registered",
			applogger.String("job", name), applogger.String("spec", spec))
	}
	return nil
}

// Start begins firing registered jobs.
func (s *Scheduler) Start() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.started {
		return
	}
	s.cron.Start()
	s.started = true
	if s.l != nil {
		s.l.Info("scheduler started",
			applogger.Int("jobs", len(s.jobs)),
			applogger.String("timezone", s.loc.String()))
	}
}

// Stop halts the ticker and waits for in-flight jobs, bounded by ctx.
func (s *Scheduler) Stop(ctx context.Context) error {
	s.mu.Lock()
	if !s.started {
		s.mu.Unlock()
		return nil
	}
	s.started = false
	s.mu.Unlock()

	done := s.cron.Stop()
	select {
	case <-done.Done():
		if s.l != nil {
			s.l.Info("scheduler stopped")
		}
		return nil
	case <-ctx.Done():
		if s.l != nil {
			s.l.Warn("timeout waiting for scheduled jobs", applogger.Error(ctx.Err()))
		}
		return fmt.Errorf("scheduler stop: %w", ctx.Err())
	}
}

// RunOnce executes a registered job immediately, outside its schedule.
func (s *Scheduler) RunOnce(ctx context.Context, name string) error {
	s.mu.Lock()
	j, ok := s.jobs[name]
	if !ok {
		s.mu.Unlock()
		return fmt.Errorf("job %s not found", name)
	}
	run := j.run
	s.mu.Unlock()
	return run(ctx)
}

func (s *Scheduler) execute(name string) {
	defer func() {
		if r := recover(); r != nil {
			if s.l != nil {
				s.l.Error("scheduled job panic",
					applogger.String("job", name), applogger.Any("panic", r))
			}
			s.mu.Lock()
			if j, ok := s.jobs[name]; ok {
				j.running = false
				j.lastErr = fmt.Sprintf("panic: %v", r)
			}
			s.mu.Unlock()
		}
	}()

	s.mu.Lock()
	j, ok := s.jobs[name]
	if !ok {
		s.mu.Unlock()
		return
	}
	if j.running {
		s.mu.Unlock()
		if s.l != nil {
			s.l.Warn("scheduled job still running, tick skipped", applogger.String("job", name))
		}
		return
	}
	j.running = true
	run := j.run
	s.mu.Unlock()

	start := time.Now()
	ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
	err := run(ctx)
	cancel()

	s.mu.Lock()
	j.running = false
	j.lastRun = time.Now()
	if err != nil {
		j.lastErr = err.Error()
	} else {
		j.lastErr = ""
	}
	s.mu.Unlock()

	if err != nil {
		if s.l != nil {
			s.l.Error("scheduled job failed",
				applogger.String("job", name),
				applogger.Duration("duration_ms", time.Since(start)),
				applogger.Error(err))
		}
		return
	}
	if s.l != nil {
		s.l.Info("scheduled job done",
			applogger.String("job", name),
			applogger.Duration("duration_ms", time.Since(start)))
	}
}

// Status describes one registered job for introspection.
type Status struct {
	Name    string
	Spec    string
	Running bool
	LastRun time.Time
	NextRun time.Time
	LastErr string
}

// Jobs lists registered jobs with their next fire time.
func (s *Scheduler) Jobs() []Status {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]Status, 0, len(s.jobs))
	for _, j := range s.jobs {
		st := Status{
			Name:    j.name,
			Spec:    j.spec,
			Running: j.running,
			LastRun: j.lastRun,
			LastErr: j.lastErr,
		}
		if e := s.cron.Entry(j.id); e.ID == j.id {
			st.NextRun = e.Next
		}
		out = append(out, st)
	}
	return out
}
