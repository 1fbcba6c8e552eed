// Package attendance finds open check-in activities and signs them.
package attendance

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"github.com/kat-co/vala"

	"github.com/trezcool/ulearn/core"
	"github.com/trezcool/ulearn/core/course"
	"github.com/trezcool/ulearn/core/history"
	"github.com/trezcool/ulearn/core/lms"
	"github.com/trezcool/ulearn/core/resolver"
	"github.com/trezcool/ulearn/core/session"
)

const NotifySubject = "Check-in notice"

// Mode selects how code-required activities are handled.
type Mode int

const (
	// Unattended signs code-required activities with preset codes only.
	Unattended Mode = iota
	// Interactive asks the operator for every code.
	Interactive
)

func (m Mode) String() string {
	if m == Interactive {
		return "interactive"
	}
	return "unattended"
}

// Action is the classification of one activity.
type Action int

const (
	Ineligible Action = iota
	SignPlain
	SignWithCode
)

// Classify decides what to do with `act`. Only open activities not signed yet are eligible.
func Classify(act lms.Activity) Action {
	switch {
	case !act.Open() || act.Signed():
		return Ineligible
	case act.CodeRequired():
		return SignWithCode
	default:
		return SignPlain
	}
}

type (
	// CodeBook holds the preset sign codes, keyed by course name.
	CodeBook interface {
		Code(courseName string) (string, bool)
	}

	// Prompter asks the operator for the sign code of a course.
	Prompter interface {
		PromptCode(ctx context.Context, c lms.Course) (string, error)
	}

	Deps struct {
		Resolver  *resolver.Resolver
		Endpoints lms.Endpoints
		Courses   session.CourseLister
		Sessions  session.IdentitySource
		Location  core.LocationConfig
		Codes     CodeBook
		Prompter  Prompter // optional, required by Interactive runs
		History   history.Repository
		Notifier  core.Notifier
		Logger    core.Logger
	}
)

type Engine struct {
	Deps
}

func NewEngine(deps Deps) (*Engine, error) {
	if err := vala.BeginValidation().Validate(
		vala.IsNotNil(deps.Resolver, "resolver"),
		vala.IsNotNil(deps.Courses, "courses"),
		vala.IsNotNil(deps.Sessions, "sessions"),
		vala.IsNotNil(deps.Logger, "logger"),
		vala.StringNotEmpty(deps.Location.Lat, "latitude"),
		vala.StringNotEmpty(deps.Location.Lon, "longitude"),
	).Check(); err != nil {
		return nil, core.NewArgumentError(err.Error())
	}
	if deps.Codes == nil {
		deps.Codes = NoCodes{}
	}
	if deps.History == nil {
		deps.History = history.Nop{}
	}
	if deps.Notifier == nil {
		deps.Notifier = core.NopNotifier{}
	}
	return &Engine{Deps: deps}, nil
}

// NoCodes is an empty CodeBook.
type NoCodes struct{}

func (NoCodes) Code(string) (string, bool) { return "", false }

// Run performs one check-in cycle over every enrolled course. A course failing never aborts
// the cycle. The identity is read once and used for the whole cycle.
func (e *Engine) Run(ctx context.Context, mode Mode) Report {
	rep := newReport(mode)
	e.Logger.Info(fmt.Sprintf("check-in cycle %s (%s)", rep.RunID, mode))

	id := e.Sessions.Identity()
	if !id.Valid() {
		e.Logger.Warn("no token, skipping check-in")
		return rep
	}
	courses := e.Courses.ListCourses(ctx, id)
	rep.Courses = len(courses)
	if len(courses) == 0 {
		e.Logger.Info("no courses, skipping check-in")
		return rep
	}

	c := &cycle{Engine: e, id: id, mode: mode, rep: &rep}
	for _, crs := range courses {
		c.course(ctx, crs)
	}

	if err := e.History.Add(ctx, c.records...); err != nil {
		e.Logger.Error(fmt.Sprintf("could not record check-in history: %v", err))
	}
	e.finish(rep)
	return rep
}

func (e *Engine) finish(rep Report) {
	if len(rep.Signed) > 0 {
		e.Logger.Info(fmt.Sprintf("signed %d course(s): %s", len(rep.Signed), strings.Join(rep.Signed, ", ")))
		e.Notifier.Notify(NotifySubject, "Signed: "+strings.Join(rep.Signed, ", "))
	}
	if len(rep.NeedsCode) > 0 && rep.Mode == Unattended {
		e.Logger.Warn(fmt.Sprintf("%d course(s) need a sign code: %s", len(rep.NeedsCode), strings.Join(rep.NeedsCode, ", ")))
	}
	if len(rep.Failed) > 0 {
		e.Logger.Warn(fmt.Sprintf("could not sign: %s", strings.Join(rep.Failed, ", ")))
	}
	if rep.Empty() {
		e.Logger.Info("nothing to sign")
	}
}

// cycle is the state of one Run.
type cycle struct {
	*Engine
	id      session.Identity
	mode    Mode
	rep     *Report
	records []history.Record
}

func (c *cycle) course(ctx context.Context, crs lms.Course) {
	defer func() {
		if r := recover(); r != nil {
			c.Logger.Error(fmt.Sprintf("check-in of %s aborted: %v", crs.Name, r))
		}
	}()

	call := resolver.Call{
		Op:       "list activities of " + crs.Name,
		URLs:     c.Endpoints.ActivityURLs(crs.Key()),
		Decorate: course.Decorator(c.id, c.Endpoints, crs.Key()),
	}
	activities, ok := resolver.Resolve(ctx, c.Resolver, call, lms.ExtractList[lms.Activity](lms.ActivityShapes))
	if !ok {
		c.Logger.Warn("could not list activities of " + crs.Name)
		return
	}

	for _, act := range activities {
		switch Classify(act) {
		case Ineligible:
			continue
		case SignPlain:
			c.sign(ctx, crs, act, "")
		case SignWithCode:
			c.Logger.Info(crs.Name + " needs a sign code")
			code, ok := c.code(ctx, crs)
			if !ok {
				c.rep.NeedsCode = appendOnce(c.rep.NeedsCode, crs.Name)
				c.record(crs, act, history.OutcomeNeedsCode)
				continue
			}
			c.sign(ctx, crs, act, code)
		}
	}
}

func (c *cycle) code(ctx context.Context, crs lms.Course) (string, bool) {
	if c.mode == Interactive && c.Prompter != nil {
		code, err := c.Prompter.PromptCode(ctx, crs)
		if err != nil {
			c.Logger.Warn(fmt.Sprintf("no code entered for %s: %v", crs.Name, err))
			return "", false
		}
		// an empty answer is submitted as is; the backend decides
		return strings.TrimSpace(code), true
	}
	return c.Codes.Code(crs.Name)
}

func (c *cycle) sign(ctx context.Context, crs lms.Course, act lms.Activity, code string) {
	payload := lms.NewAttendancePayload(act, crs.ClassID, c.id.UserID, c.Location.Lat, c.Location.Lon, code)
	body, err := json.Marshal(payload)
	if err != nil {
		c.Logger.Error(fmt.Sprintf("encoding attendance of %s: %v", crs.Name, err))
		return
	}

	call := resolver.Call{
		Op:       "submit attendance for " + crs.Name,
		Method:   http.MethodPost,
		URLs:     c.Endpoints.SubmitURLs(),
		Body:     body,
		Decorate: course.Decorator(c.id, c.Endpoints, 0),
	}
	if accepted, _ := resolver.Resolve(ctx, c.Resolver, call, lms.ExtractAccepted); !accepted {
		c.rep.Failed = appendOnce(c.rep.Failed, crs.Name)
		c.record(crs, act, history.OutcomeFailed)
		return
	}
	c.Logger.Info("signed " + crs.Name)
	c.rep.Signed = appendOnce(c.rep.Signed, crs.Name)
	c.record(crs, act, history.OutcomeSigned)
}

func (c *cycle) record(crs lms.Course, act lms.Activity, outcome string) {
	detail := fmt.Sprintf("activity %d", act.SubmissionID())
	c.records = append(c.records, history.NewRecord(c.rep.RunID, history.KindCheckin, crs.Name, detail, outcome))
}

func appendOnce(list []string, s string) []string {
	for _, v := range list {
		if v == s {
			return list
		}
	}
	return append(list, s)
}
