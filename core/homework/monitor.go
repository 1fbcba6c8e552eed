// Package homework reports homework past its deadline that was neither submitted nor graded.
package homework

import (
	"context"
	"fmt"
	"strings"

	"github.com/kat-co/vala"

	"github.com/trezcool/ulearn/core"
	"github.com/trezcool/ulearn/core/course"
	"github.com/trezcool/ulearn/core/history"
	"github.com/trezcool/ulearn/core/lms"
	"github.com/trezcool/ulearn/core/resolver"
	"github.com/trezcool/ulearn/core/session"
)

const NotifySubject = "Homework reminder"

type Monitor struct {
	resolver  *resolver.Resolver
	endpoints lms.Endpoints
	courses   session.CourseLister
	sessions  session.IdentitySource
	history   history.Repository
	notifier  core.Notifier
	logger    core.Logger
}

func NewMonitor(
	r *resolver.Resolver,
	endpoints lms.Endpoints,
	courses session.CourseLister,
	sessions session.IdentitySource,
	hist history.Repository,
	notifier core.Notifier,
	logger core.Logger,
) (*Monitor, error) {
	if err := vala.BeginValidation().Validate(
		vala.IsNotNil(r, "resolver"),
		vala.IsNotNil(courses, "courses"),
		vala.IsNotNil(sessions, "sessions"),
		vala.IsNotNil(logger, "logger"),
	).Check(); err != nil {
		return nil, core.NewArgumentError(err.Error())
	}
	if hist == nil {
		hist = history.Nop{}
	}
	if notifier == nil {
		notifier = core.NopNotifier{}
	}
	return &Monitor{
		resolver:  r,
		endpoints: endpoints,
		courses:   courses,
		sessions:  sessions,
		history:   hist,
		notifier:  notifier,
		logger:    logger,
	}, nil
}

// Run scans every course and returns the unfinished homework as "<course> - <title>" entries.
// The operator is notified when the list is not empty.
func (m *Monitor) Run(ctx context.Context) []string {
	runID := history.NewRunID()
	m.logger.Info("homework scan " + runID)
	unfinished := make([]string, 0)

	id := m.sessions.Identity()
	if !id.Valid() {
		m.logger.Warn("no token, skipping homework scan")
		return unfinished
	}
	courses := m.courses.ListCourses(ctx, id)
	if len(courses) == 0 {
		m.logger.Info("no courses, skipping homework scan")
		return unfinished
	}

	records := make([]history.Record, 0)
	for _, crs := range courses {
		for _, hw := range m.unfinished(ctx, id, crs) {
			entry := crs.Name + " - " + hw.DisplayTitle()
			m.logger.Info("unfinished: " + entry)
			unfinished = append(unfinished, entry)
			records = append(records, history.NewRecord(runID, history.KindHomework, crs.Name, hw.DisplayTitle(), history.OutcomeUnfinished))
		}
	}

	if err := m.history.Add(ctx, records...); err != nil {
		m.logger.Error(fmt.Sprintf("could not record homework history: %v", err))
	}
	if len(unfinished) == 0 {
		m.logger.Info("no unfinished homework")
		return unfinished
	}
	m.logger.Info(fmt.Sprintf("%d unfinished homework", len(unfinished)))
	m.notifier.Notify(NotifySubject, strings.Join(unfinished, "\n"))
	return unfinished
}

func (m *Monitor) unfinished(ctx context.Context, id session.Identity, crs lms.Course) (items []lms.Homework) {
	defer func() {
		if r := recover(); r != nil {
			m.logger.Error(fmt.Sprintf("homework scan of %s aborted: %v", crs.Name, r))
			items = nil
		}
	}()

	call := resolver.Call{
		Op:       "list homework of " + crs.Name,
		URLs:     m.endpoints.HomeworkURLs(crs.Key()),
		Decorate: course.Decorator(id, m.endpoints, crs.Key()),
	}
	list, ok := resolver.Resolve(ctx, m.resolver, call, lms.ExtractList[lms.Homework](lms.HomeworkShapes))
	if !ok {
		m.logger.Warn("could not list homework of " + crs.Name)
		return nil
	}
	for _, hw := range list {
		if hw.Incomplete() {
			items = append(items, hw)
		}
	}
	return items
}
