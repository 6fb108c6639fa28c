// Package scheduler runs recurring maintenance tasks: cron triggers feed a
// queue drained by a single worker, so tasks never overlap.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/lazypower/newswire/internal/logging"
	"github.com/lazypower/newswire/internal/metrics"
	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"
)

var (
	// ErrUnknownTask is returned by Enqueue for unregistered names.
	ErrUnknownTask = errors.New("unknown task")
	// ErrQueued is returned by Enqueue when the task is already pending.
	ErrQueued = errors.New("task already queued")
)

// Task is a named unit of recurring work. Spec is a cron expression or
// descriptor such as "@every 1h"; an empty Spec registers a task that only
// runs when enqueued by hand.
type Task struct {
	Name string
	Spec string
	Run  func(ctx context.Context) error
}

// Scheduler triggers registered tasks on their schedules.
type Scheduler struct {
	cron  *cron.Cron
	queue chan string
	log   zerolog.Logger

	mu      sync.Mutex
	tasks   map[string]Task
	pending map[string]bool
	running string
}

// New creates a Scheduler evaluating cron specs in the named IANA zone.
func New(timezone string) (*Scheduler, error) {
	loc := time.Local
	if timezone != "" {
		var err error
		loc, err = time.LoadLocation(timezone)
		if err != nil {
			return nil, fmt.Errorf("load timezone %q: %w", timezone, err)
		}
	}
	return &Scheduler{
		cron:    cron.New(cron.WithLocation(loc)),
		queue:   make(chan string, 16),
		log:     logging.Component("scheduler"),
		tasks:   make(map[string]Task),
		pending: make(map[string]bool),
	}, nil
}

// Register adds a task. Names must be unique.
func (s *Scheduler) Register(t Task) error {
	if t.Name == "" || t.Run == nil {
		return errors.New("task needs a name and a run function")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.tasks[t.Name]; ok {
		return fmt.Errorf("task %q already registered", t.Name)
	}
	if t.Spec != "" {
		name := t.Name
		if _, err := s.cron.AddFunc(t.Spec, func() {
			if err := s.Enqueue(name); err != nil && !errors.Is(err, ErrQueued) {
				s.log.Warn().Err(err).Str("task", name).Msg("scheduled enqueue failed")
			}
		}); err != nil {
			return fmt.Errorf("schedule task %q: %w", t.Name, err)
		}
	}
	s.tasks[t.Name] = t
	return nil
}

// Tasks lists registered task names.
func (s *Scheduler) Tasks() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	names := make([]string, 0, len(s.tasks))
	for name := range s.tasks {
		names = append(names, name)
	}
	return names
}

// Running returns the name of the task being run, or "" when idle.
func (s *Scheduler) Running() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running
}

// Enqueue requests a run of the named task. A task already waiting in the
// queue is not queued twice; a task that is currently running may be
// queued once more.
func (s *Scheduler) Enqueue(name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.tasks[name]; !ok {
		return fmt.Errorf("%w: %s", ErrUnknownTask, name)
	}
	if s.pending[name] {
		return ErrQueued
	}
	select {
	case s.queue <- name:
		s.pending[name] = true
		return nil
	default:
		return fmt.Errorf("task queue full, dropping %s", name)
	}
}

// Serve starts the cron triggers and runs queued tasks one at a time until
// ctx is canceled. It implements suture.Service.
func (s *Scheduler) Serve(ctx context.Context) error {
	s.cron.Start()
	defer func() {
		<-s.cron.Stop().Done()
	}()

	s.log.Info().Int("tasks", len(s.Tasks())).Msg("scheduler started")
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case name := <-s.queue:
			s.mu.Lock()
			delete(s.pending, name)
			task := s.tasks[name]
			s.running = name
			s.mu.Unlock()

			s.run(ctx, task)

			s.mu.Lock()
			s.running = ""
			s.mu.Unlock()
		}
	}
}

func (s *Scheduler) String() string { return "scheduler" }

func (s *Scheduler) run(ctx context.Context, t Task) {
	ctx = logging.ContextWithNewCorrelationID(ctx)
	log := logging.Ctx(ctx, s.log).With().Str("task", t.Name).Logger()

	start := time.Now()
	defer func() {
		metrics.TaskDuration.WithLabelValues(t.Name).Observe(time.Since(start).Seconds())
		if r := recover(); r != nil {
			log.Error().Interface("panic", r).Msg("task panicked")
		}
	}()

	log.Debug().Msg("task started")
	if err := t.Run(ctx); err != nil {
		log.Error().Err(err).Dur("elapsed", time.Since(start)).Msg("task failed")
		return
	}
	log.Info().Dur("elapsed", time.Since(start)).Msg("task done")
}
