// Package echoapi serves the agent control API.
package echoapi

import (
	"context"
	"net/http"

	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/labstack/gommon/log"
	"github.com/pkg/errors"

	"github.com/trezcool/ulearn/core"
	"github.com/trezcool/ulearn/core/agent"
	"github.com/trezcool/ulearn/core/attendance"
	"github.com/trezcool/ulearn/core/session"
)

type (
	// Agent is what the API drives.
	Agent interface {
		Status() agent.Status
		CheckIn(ctx context.Context, mode attendance.Mode) (attendance.Report, error)
		Homework(ctx context.Context) []string
		ReplaceToken(ctx context.Context, token string) (session.Session, bool, error)
	}

	ServerDeps struct {
		Address        string
		APIKeyHash     string // bcrypt hash of the bearer key; empty disables authentication
		Debug          bool
		DisableReqLogs bool
		Agent          Agent
		Logger         core.Logger
		Validate       *validator.Validate
		Translator     ut.Translator
	}

	Server interface {
		http.Handler
		Start()
		Stop(context.Context) error
		Errors() <-chan error
	}

	server struct {
		deps   ServerDeps
		app    *echo.Echo
		errors chan error
	}
)

var _ Server = (*server)(nil)

func NewServer(deps ServerDeps) Server {
	s := &server{
		deps:   deps,
		app:    echo.New(),
		errors: make(chan error, 1),
	}
	s.setup()
	return s
}

func (s *server) setup() {
	s.app.HideBanner = true
	s.app.Pre(middleware.RemoveTrailingSlash())
	if !s.deps.DisableReqLogs {
		s.app.Use(middleware.Logger())
	}
	// do not recover in debug mode
	if !s.deps.Debug {
		s.app.Use(middleware.RecoverWithConfig(middleware.RecoverConfig{LogLevel: log.ERROR}))
	}

	s.app.HTTPErrorHandler = newAppHTTPErrorHandler(s.deps.Logger, s.deps.Translator)
	s.app.Debug = s.deps.Debug

	s.app.GET("/", home)

	v1 := s.app.Group("/v1")
	if s.deps.APIKeyHash != "" {
		v1.Use(apiKeyAuth(s.deps.APIKeyHash))
	}
	registerAgentAPI(v1, s.deps)
}

// Start serves until Stop; a listener failure is sent on Errors.
func (s *server) Start() {
	if err := s.app.Start(s.deps.Address); err != nil && err != http.ErrServerClosed {
		s.errors <- errors.Wrap(err, "control API")
	}
}

func (s *server) Stop(ctx context.Context) error {
	return s.app.Shutdown(ctx)
}

func (s *server) Errors() <-chan error {
	return s.errors
}

func (s *server) ServeHTTP(w http.ResponseWriter, r *http.Request) { // for tests
	s.app.ServeHTTP(w, r)
}

func home(ctx echo.Context) error {
	return ctx.String(http.StatusOK, "uLearn agent is up")
}
