package echoapi

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/trezcool/ulearn/core"
	"github.com/trezcool/ulearn/core/agent"
	"github.com/trezcool/ulearn/core/attendance"
)

type (
	sessionPayload struct {
		Token string `json:"token" validate:"required,notblank"`
	}

	sessionResponse struct {
		User      string `json:"user"`
		Token     string `json:"token"` // masked
		Verified  bool   `json:"verified"`
		Persisted bool   `json:"persisted"`
	}

	homeworkResponse struct {
		Unfinished []string `json:"unfinished"`
	}
)

type agentAPI struct {
	deps ServerDeps
}

func registerAgentAPI(v1 *echo.Group, deps ServerDeps) {
	api := agentAPI{deps: deps}
	v1.GET("/status", api.status)
	v1.POST("/checkin", api.checkIn)
	v1.POST("/homework", api.homework)
	v1.PUT("/session", api.replaceSession)
}

func (api agentAPI) status(ctx echo.Context) error {
	return ctx.JSON(http.StatusOK, api.deps.Agent.Status())
}

func (api agentAPI) checkIn(ctx echo.Context) error {
	rep, err := api.deps.Agent.CheckIn(ctx.Request().Context(), attendance.Unattended)
	if errors.Is(err, agent.ErrCheckinInProgress) {
		return echo.NewHTTPError(http.StatusConflict, err.Error())
	}
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusOK, rep)
}

func (api agentAPI) homework(ctx echo.Context) error {
	unfinished := api.deps.Agent.Homework(ctx.Request().Context())
	if unfinished == nil {
		unfinished = []string{}
	}
	return ctx.JSON(http.StatusOK, homeworkResponse{Unfinished: unfinished})
}

func (api agentAPI) replaceSession(ctx echo.Context) error {
	var data sessionPayload
	if err := ctx.Bind(&data); err != nil {
		return err
	}
	if err := core.ValidateStruct(api.deps.Validate, api.deps.Translator, data); err != nil {
		return err
	}

	sess, verified, err := api.deps.Agent.ReplaceToken(ctx.Request().Context(), data.Token)
	if sess.Token == "" {
		return err
	}
	if err != nil {
		api.deps.Logger.Error("could not persist session: "+err.Error(), sess)
	}
	return ctx.JSON(http.StatusOK, sessionResponse{
		User:      sess.User(),
		Token:     sess.MaskedToken(),
		Verified:  verified,
		Persisted: err == nil,
	})
}
