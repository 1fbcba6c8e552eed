// Package course enumerates the enrolled courses every scan starts from.
package course

import (
	"context"
	"fmt"
	"net/http"

	"github.com/trezcool/ulearn/core"
	"github.com/trezcool/ulearn/core/lms"
	"github.com/trezcool/ulearn/core/resolver"
	"github.com/trezcool/ulearn/core/session"
)

// Directory lists courses. It holds no roster: every call refetches the full list.
type Directory struct {
	resolver  *resolver.Resolver
	endpoints lms.Endpoints
	logger    core.Logger
}

var _ session.CourseLister = (*Directory)(nil)

func NewDirectory(r *resolver.Resolver, endpoints lms.Endpoints, logger core.Logger) *Directory {
	return &Directory{resolver: r, endpoints: endpoints, logger: logger}
}

// ListCourses returns the enrolled courses of `id`, first page of all course types. An empty
// result is not an error: callers skip the rest of their cycle.
func (d *Directory) ListCourses(ctx context.Context, id session.Identity) []lms.Course {
	call := resolver.Call{
		Op:       "list courses",
		URLs:     d.endpoints.CourseURLs(),
		Decorate: Decorator(id, d.endpoints, 0),
	}
	courses, ok := resolver.Resolve(ctx, d.resolver, call, lms.ExtractList[lms.Course](lms.CourseShapes))
	if !ok {
		d.logger.Warn("could not list courses")
		return nil
	}
	d.logger.Info(fmt.Sprintf("found %d courses", len(courses)))
	return courses
}

// Decorator merges `id` and the referrer/origin pair of `courseID` (0 for the index page)
// into a request.
func Decorator(id session.Identity, endpoints lms.Endpoints, courseID int) func(*http.Request) {
	referer := endpoints.Referer(courseID)
	return func(req *http.Request) {
		id.Apply(req)
		req.Header.Set("Referer", referer)
		req.Header.Set("Origin", endpoints.Origin)
	}
}
