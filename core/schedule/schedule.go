// Package schedule runs jobs on their own timeline: on a fixed interval or once a day at a
// wall-clock time, never two runs of the same job at once.
package schedule

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/pkg/errors"

	"github.com/trezcool/ulearn/core"
)

var ErrAlreadyStarted = errors.New("scheduler already started")

// Clock abstracts time for the scheduler.
type Clock interface {
	Now() time.Time
	After(d time.Duration) <-chan time.Time
}

type realClock struct{}

func (realClock) Now() time.Time                         { return time.Now() }
func (realClock) After(d time.Duration) <-chan time.Time { return time.After(d) }

// RealClock is the wall clock.
var RealClock Clock = realClock{}

// Trigger computes the fire times of a job.
type Trigger interface {
	// Next returns the first fire time strictly after `t`.
	Next(t time.Time) time.Time
	String() string
}

// Every fires every `period`, starting one period after `start`.
func Every(period time.Duration, start time.Time) Trigger {
	return interval{period: period, anchor: start}
}

type interval struct {
	period time.Duration
	anchor time.Time
}

func (iv interval) Next(t time.Time) time.Time {
	if t.Before(iv.anchor) {
		return iv.anchor.Add(iv.period)
	}
	n := t.Sub(iv.anchor)/iv.period + 1
	return iv.anchor.Add(n * iv.period)
}

func (iv interval) String() string {
	return "every " + iv.period.String()
}

// DailyAt fires every day at hour:minute in `loc`.
func DailyAt(hour, minute int, loc *time.Location) Trigger {
	if loc == nil {
		loc = time.Local
	}
	return daily{hour: hour, minute: minute, loc: loc}
}

// ParseDaily parses a "HH:MM" time of day.
func ParseDaily(clock string, loc *time.Location) (Trigger, error) {
	t, err := time.Parse("15:04", clock)
	if err != nil {
		return nil, errors.Wrapf(err, "parsing time of day %q", clock)
	}
	return DailyAt(t.Hour(), t.Minute(), loc), nil
}

type daily struct {
	hour, minute int
	loc          *time.Location
}

func (d daily) Next(t time.Time) time.Time {
	t = t.In(d.loc)
	next := time.Date(t.Year(), t.Month(), t.Day(), d.hour, d.minute, 0, 0, d.loc)
	if !next.After(t) {
		next = time.Date(t.Year(), t.Month(), t.Day()+1, d.hour, d.minute, 0, 0, d.loc)
	}
	return next
}

func (d daily) String() string {
	return fmt.Sprintf("daily at %02d:%02d", d.hour, d.minute)
}

// Job is a named run-to-completion callable.
type Job struct {
	Name    string
	Trigger Trigger
	// Grace is how late a firing may start; later firings are skipped, not queued.
	Grace time.Duration
	Run   func(ctx context.Context)
}

// Scheduler runs jobs, one timer goroutine per job. It is single use: once stopped, it
// admits no new run.
type Scheduler struct {
	clock  Clock
	logger core.Logger

	mu      sync.Mutex
	jobs    []Job
	started bool
	ctx     context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	running map[string]*atomic.Bool
}

func New(clock Clock, logger core.Logger) *Scheduler {
	if clock == nil {
		clock = RealClock
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Scheduler{
		clock:   clock,
		logger:  logger,
		ctx:     ctx,
		cancel:  cancel,
		running: make(map[string]*atomic.Bool),
	}
}

// Add registers a job. Jobs must be added before Start.
func (s *Scheduler) Add(job Job) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.started {
		return ErrAlreadyStarted
	}
	if job.Run == nil || job.Trigger == nil {
		return core.NewArgumentError(fmt.Sprintf("job %q: trigger and run func are required", job.Name))
	}
	s.jobs = append(s.jobs, job)
	s.running[job.Name] = new(atomic.Bool)
	return nil
}

// Start launches the timer goroutines.
func (s *Scheduler) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.started {
		return ErrAlreadyStarted
	}
	s.started = true
	for _, job := range s.jobs {
		s.logger.Info(fmt.Sprintf("scheduled %s: %s", job.Name, job.Trigger))
		s.wg.Add(1)
		go s.loop(job)
	}
	return nil
}

// Stop stops the timers and returns without waiting for in-flight runs.
func (s *Scheduler) Stop() {
	s.cancel()
}

// Wait blocks until every timer goroutine has returned. In-flight runs are not waited for.
func (s *Scheduler) Wait() {
	s.wg.Wait()
}

// Running reports whether the scheduler was started and not stopped.
func (s *Scheduler) Running() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.started && s.ctx.Err() == nil
}

// Busy reports whether a run of job `name` is in flight.
func (s *Scheduler) Busy(name string) bool {
	flag, ok := s.running[name]
	return ok && flag.Load()
}

func (s *Scheduler) loop(job Job) {
	defer s.wg.Done()
	next := job.Trigger.Next(s.clock.Now())
	for {
		select {
		case <-s.ctx.Done():
			return
		case <-s.clock.After(next.Sub(s.clock.Now())):
		}
		// no run is admitted once stopped
		if s.ctx.Err() != nil {
			return
		}

		now := s.clock.Now()
		if late := now.Sub(next); late > job.Grace {
			s.logger.Warn(fmt.Sprintf("%s: missed run at %s by %s, skipped", job.Name, next.Format(time.RFC3339), late))
		} else {
			s.fire(job)
		}
		next = job.Trigger.Next(now)
	}
}

// fire runs `job` in its own goroutine unless a previous run is still in flight.
func (s *Scheduler) fire(job Job) {
	flag := s.running[job.Name]
	if !flag.CompareAndSwap(false, true) {
		s.logger.Warn(job.Name + ": previous run still in progress, tick skipped")
		return
	}
	// in-flight runs outlive Stop: their network calls end on their own timeouts
	ctx := context.WithoutCancel(s.ctx)
	go func() {
		defer flag.Store(false)
		defer func() {
			if r := recover(); r != nil {
				s.logger.Error(fmt.Sprintf("%s: run panicked: %v", job.Name, r))
			}
		}()
		job.Run(ctx)
	}()
}

// Manager owns at most one Scheduler at a time.
type Manager struct {
	mu      sync.Mutex
	current *Scheduler
	factory func() (*Scheduler, error)
	logger  core.Logger
}

// NewManager returns a Manager building schedulers with `factory`.
func NewManager(factory func() (*Scheduler, error), logger core.Logger) *Manager {
	return &Manager{factory: factory, logger: logger}
}

// Start stops and discards the current scheduler, if any, then starts a new one.
func (m *Manager) Start() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.current != nil {
		m.current.Stop()
		m.current.Wait()
		m.current = nil
		m.logger.Info("previous scheduler stopped")
	}
	s, err := m.factory()
	if err != nil {
		return errors.Wrap(err, "building scheduler")
	}
	if err = s.Start(); err != nil {
		return errors.Wrap(err, "starting scheduler")
	}
	m.current = s
	return nil
}

// Stop stops the current scheduler without waiting for in-flight runs.
func (m *Manager) Stop() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.current != nil {
		m.current.Stop()
		m.current = nil
		m.logger.Info("scheduler stopped")
	}
}

// Running reports whether a scheduler is running.
func (m *Manager) Running() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.current != nil && m.current.Running()
}
