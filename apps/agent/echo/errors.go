package echoapi

import (
	"net/http"

	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/trezcool/ulearn/core"
	"github.com/trezcool/ulearn/core/session"
)

// httpError maps `err` to a status code and a response body. ok is false for server errors.
func httpError(err error, translator ut.Translator) (code int, message interface{}, ok bool) {
	switch origErr := errors.Cause(err).(type) {
	case *echo.HTTPError:
		if herr, isHTTP := origErr.Internal.(*echo.HTTPError); isHTTP {
			origErr = herr
		}
		return origErr.Code, origErr.Message, true
	case *core.ValidationError:
		if len(origErr.Fields) == 0 {
			return http.StatusBadRequest, origErr.Error(), true
		}
		fldErrs := make(map[string]string, len(origErr.Fields))
		for _, fErr := range origErr.Fields {
			fldErrs[fErr.Field] = fErr.Error
		}
		return http.StatusBadRequest, fldErrs, true
	case validator.ValidationErrors:
		fldErrs := make(map[string]string, len(origErr))
		for _, vErr := range origErr {
			fldErrs[vErr.Field()] = vErr.Translate(translator)
		}
		return http.StatusBadRequest, fldErrs, true
	case *core.ArgumentError:
		return http.StatusBadRequest, origErr.Error(), true
	}
	if errors.Cause(err) == session.ErrEmptyToken {
		return http.StatusBadRequest, err.Error(), true
	}
	return http.StatusInternalServerError, http.StatusText(http.StatusInternalServerError), false
}

// newAppHTTPErrorHandler returns a custom echo.HTTPErrorHandler that knows how to handle our errors.
func newAppHTTPErrorHandler(logger core.Logger, translator ut.Translator) echo.HTTPErrorHandler {
	return func(err error, ctx echo.Context) {
		code, message, ok := httpError(err, translator)
		if !ok {
			msg := message.(string)
			logger.Error(msg+": "+err.Error(), errors.Wrap(err, ctx.Request().Method+" "+ctx.Path()))
		}
		if ctx.Echo().Debug {
			message = err.Error()
		}
		if m, isStr := message.(string); isStr {
			message = echo.Map{"error": m}
		}

		if ctx.Response().Committed {
			return
		}
		if ctx.Request().Method == http.MethodHead {
			err = ctx.NoContent(code)
		} else {
			err = ctx.JSON(code, message)
		}
		if err != nil {
			ctx.Echo().Logger.Error(err)
		}
	}
}
