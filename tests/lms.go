package testutil

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/trezcool/ulearn/core/lms"
)

// Operations served by FakeLMS.
const (
	OpCourses    = "courses"
	OpHomework   = "homework"
	OpActivities = "activities"
	OpSubmit     = "submit"
)

var (
	ReadHosts   = []string{"h1", "h2", "h3", "h4"}
	SubmitHosts = []string{"h1", "h2", "h3", "s4"}
)

// Request is a request received by FakeLMS.
type Request struct {
	Host     string
	Op       string
	CourseID int
	Header   http.Header
	Body     []byte
}

// FakeLMS is a multi-host fake of the learning platform. Every "host" is a path prefix of a
// single httptest.Server. Unhandled operations answer 404.
type FakeLMS struct {
	*httptest.Server

	mu       sync.Mutex
	handlers map[string]http.HandlerFunc // "host op" or "* op"
	requests []Request
}

func NewFakeLMS(t *testing.T) *FakeLMS {
	f := &FakeLMS{handlers: make(map[string]http.HandlerFunc)}
	f.Server = httptest.NewServer(http.HandlerFunc(f.serve))
	t.Cleanup(f.Close)
	return f
}

// Endpoints points every candidate base at the fake hosts.
func (f *FakeLMS) Endpoints() lms.Endpoints {
	bases := func(hosts []string) []string {
		urls := make([]string, 0, len(hosts))
		for _, h := range hosts {
			urls = append(urls, f.URL+"/"+h)
		}
		return urls
	}
	return lms.Endpoints{
		ReadBases:   bases(ReadHosts),
		SubmitBases: bases(SubmitHosts),
		Origin:      f.URL,
		IndexPage:   f.URL + "/index.html",
	}
}

// Handle serves `op` on `host`; host "*" serves every host without a specific handler.
func (f *FakeLMS) Handle(host, op string, h http.HandlerFunc) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.handlers[host+" "+op] = h
}

func (f *FakeLMS) HandleAll(op string, h http.HandlerFunc) {
	f.Handle("*", op, h)
}

func (f *FakeLMS) serve(w http.ResponseWriter, r *http.Request) {
	parts := strings.SplitN(strings.TrimPrefix(r.URL.Path, "/"), "/", 2)
	if len(parts) < 2 {
		http.NotFound(w, r)
		return
	}
	host, rest := parts[0], "/"+parts[1]
	op, courseID := classify(rest, r)
	body, _ := io.ReadAll(r.Body)

	f.mu.Lock()
	f.requests = append(f.requests, Request{Host: host, Op: op, CourseID: courseID, Header: r.Header.Clone(), Body: body})
	h, ok := f.handlers[host+" "+op]
	if !ok {
		h, ok = f.handlers["* "+op]
	}
	f.mu.Unlock()

	if !ok {
		http.NotFound(w, r)
		return
	}
	h(w, r)
}

func classify(path string, r *http.Request) (string, int) {
	switch {
	case strings.HasPrefix(path, "/courses/students"):
		return OpCourses, 0
	case strings.HasPrefix(path, "/homeworks/student"):
		id, _ := strconv.Atoi(r.URL.Query().Get("ocId"))
		return OpHomework, id
	case strings.HasPrefix(path, "/classActivity/stu/"):
		seg := strings.Split(strings.TrimPrefix(path, "/classActivity/stu/"), "/")
		id, _ := strconv.Atoi(seg[0])
		return OpActivities, id
	case strings.HasPrefix(path, "/newAttendance/signByStu"):
		return OpSubmit, 0
	}
	return "unknown", 0
}

// Requests returns the received requests, optionally filtered by operation.
func (f *FakeLMS) Requests(ops ...string) []Request {
	f.mu.Lock()
	defer f.mu.Unlock()
	reqs := make([]Request, 0, len(f.requests))
	for _, req := range f.requests {
		if len(ops) == 0 || contains(ops, req.Op) {
			reqs = append(reqs, req)
		}
	}
	return reqs
}

// Hits counts the requests received for `op` (all operations when op is empty).
func (f *FakeLMS) Hits(op string) int {
	if op == "" {
		return len(f.Requests())
	}
	return len(f.Requests(op))
}

// HostHits counts the requests received by `host` for `op`.
func (f *FakeLMS) HostHits(host, op string) int {
	n := 0
	for _, req := range f.Requests(op) {
		if req.Host == host {
			n++
		}
	}
	return n
}

// Submissions decodes the received attendance payloads.
func (f *FakeLMS) Submissions(t *testing.T) []lms.AttendancePayload {
	payloads := make([]lms.AttendancePayload, 0)
	for _, req := range f.Requests(OpSubmit) {
		var p lms.AttendancePayload
		if err := json.Unmarshal(req.Body, &p); err != nil {
			t.Fatalf("Submissions(): %v", err)
		}
		payloads = append(payloads, p)
	}
	return payloads
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}

// JSON answers 200 with `body`.
func JSON(body string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = fmt.Fprint(w, body)
	}
}

// Status answers `code` with a JSON error body.
func Status(code int) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(code)
		_, _ = fmt.Fprintf(w, `{"code":%d}`, code)
	}
}

// Hang answers only after `d` or once the client gives up.
func Hang(d time.Duration) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-time.After(d):
		case <-r.Context().Done():
		}
	}
}

// PerCourse serves the body registered for the requested course, or an empty list.
func PerCourse(listKey string, bodies map[int]string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		_, id := classify("/"+strings.SplitN(r.URL.Path, "/", 3)[2], r)
		body, ok := bodies[id]
		if !ok {
			body = `{"` + listKey + `":[]}`
		}
		JSON(body)(w, r)
	}
}

// ClosedURL returns the URL of a server that no longer accepts connections.
func ClosedURL() string {
	srv := httptest.NewServer(http.NotFoundHandler())
	u := srv.URL
	srv.Close()
	return u
}
