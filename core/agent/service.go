// Package agent ties the engines to the scheduler and keeps the latest reports for the
// operator surfaces.
package agent

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/kat-co/vala"
	"github.com/pkg/errors"

	"github.com/trezcool/ulearn/core"
	"github.com/trezcool/ulearn/core/attendance"
	"github.com/trezcool/ulearn/core/homework"
	"github.com/trezcool/ulearn/core/schedule"
	"github.com/trezcool/ulearn/core/session"
)

const (
	JobCheckin  = "checkin"
	JobHomework = "homework"
)

// ErrCheckinInProgress is returned by CheckIn while another check-in runs.
var ErrCheckinInProgress = errors.New("a check-in is already in progress")

type (
	// HomeworkReport is the outcome of one homework scan.
	HomeworkReport struct {
		At         time.Time `json:"at"`
		Unfinished []string  `json:"unfinished"`
	}

	Status struct {
		Running      bool               `json:"running"`
		User         string             `json:"user"`
		HasToken     bool               `json:"has_token"`
		LastCheckin  *attendance.Report `json:"last_checkin"`
		LastHomework *HomeworkReport    `json:"last_homework"`
	}

	Deps struct {
		Engine   *attendance.Engine
		Monitor  *homework.Monitor
		Sessions *session.Store
		Courses  session.CourseLister
		Schedule core.ScheduleConfig
		Clock    schedule.Clock
		Logger   core.Logger
	}

	// Service is the operator-facing agent: scheduled service, manual runs, token replacement.
	Service struct {
		Deps
		manager    *schedule.Manager
		checkingIn atomic.Bool

		mu           sync.Mutex
		lastCheckin  *attendance.Report
		lastHomework *HomeworkReport
	}
)

func New(deps Deps) (*Service, error) {
	err := vala.BeginValidation().Validate(
		vala.IsNotNil(deps.Engine, "engine"),
		vala.IsNotNil(deps.Monitor, "monitor"),
		vala.IsNotNil(deps.Sessions, "sessions"),
		vala.IsNotNil(deps.Courses, "courses"),
		vala.IsNotNil(deps.Logger, "logger"),
		vala.StringNotEmpty(deps.Schedule.DailyAt, "daily at"),
		vala.GreaterThan(int(deps.Schedule.Interval), 0, "interval"),
	).Check()
	if err != nil {
		return nil, core.NewArgumentError(err.Error())
	}
	if deps.Clock == nil {
		deps.Clock = schedule.RealClock
	}
	svc := &Service{Deps: deps}
	svc.manager = schedule.NewManager(svc.newScheduler, deps.Logger)
	return svc, nil
}

func (s *Service) newScheduler() (*schedule.Scheduler, error) {
	daily, err := schedule.ParseDaily(s.Schedule.DailyAt, time.Local)
	if err != nil {
		return nil, err
	}
	sch := schedule.New(s.Clock, s.Logger)
	if err = sch.Add(schedule.Job{
		Name:    JobHomework,
		Trigger: daily,
		Grace:   s.Schedule.DailyGrace,
		Run:     func(ctx context.Context) { s.Homework(ctx) },
	}); err != nil {
		return nil, err
	}
	err = sch.Add(schedule.Job{
		Name:    JobCheckin,
		Trigger: schedule.Every(s.Schedule.Interval, s.Clock.Now()),
		Grace:   s.Schedule.IntervalGrace,
		Run:     func(ctx context.Context) { _, _ = s.CheckIn(ctx, attendance.Unattended) },
	})
	return sch, err
}

// Start starts the scheduled service, replacing a running one.
func (s *Service) Start() error {
	if err := s.manager.Start(); err != nil {
		return errors.Wrap(err, "starting service")
	}
	s.Logger.Info(fmt.Sprintf("service started: check-in every %s, homework daily at %s", s.Schedule.Interval, s.Schedule.DailyAt))
	return nil
}

// Stop stops the scheduled service without waiting for in-flight runs.
func (s *Service) Stop() {
	s.manager.Stop()
}

func (s *Service) Running() bool {
	return s.manager.Running()
}

// CheckIn runs one attendance cycle and keeps its report. Manual and scheduled check-ins
// never overlap: a call made while one runs returns ErrCheckinInProgress.
func (s *Service) CheckIn(ctx context.Context, mode attendance.Mode) (attendance.Report, error) {
	if !s.checkingIn.CompareAndSwap(false, true) {
		s.Logger.Warn("check-in skipped: " + ErrCheckinInProgress.Error())
		return attendance.Report{}, ErrCheckinInProgress
	}
	defer s.checkingIn.Store(false)

	rep := s.Engine.Run(ctx, mode)
	s.mu.Lock()
	s.lastCheckin = &rep
	s.mu.Unlock()
	return rep, nil
}

// Homework runs one homework scan and keeps its report.
func (s *Service) Homework(ctx context.Context) []string {
	unfinished := s.Monitor.Run(ctx)
	s.mu.Lock()
	s.lastHomework = &HomeworkReport{At: s.Clock.Now(), Unfinished: unfinished}
	s.mu.Unlock()
	return unfinished
}

// ReplaceToken stores a new token then verifies it. A token failing verification is kept.
func (s *Service) ReplaceToken(ctx context.Context, token string) (session.Session, bool, error) {
	sess, verified, err := s.Sessions.ReplaceAndVerify(ctx, token, s.Courses)
	if errors.Cause(err) == session.ErrEmptyToken {
		return sess, false, err
	}
	if verified {
		s.Logger.Info("token verified", sess)
	} else {
		s.Logger.Warn("token saved but not verified", sess)
	}
	return sess, verified, err
}

func (s *Service) VerifyToken(ctx context.Context) bool {
	return s.Sessions.Verify(ctx, s.Courses)
}

func (s *Service) Status() Status {
	st := Status{Running: s.Running()}
	if sess, ok := s.Sessions.Current(); ok {
		st.User = sess.User()
		st.HasToken = true
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	st.LastCheckin = s.lastCheckin
	st.LastHomework = s.lastHomework
	return st
}
