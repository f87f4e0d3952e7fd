package echoapi

import (
	"database/sql"
	"net/http"

	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/pkg/errors"

	"github.com/cdlbuddy/cdltrainer/core"
	"github.com/cdlbuddy/cdltrainer/core/walkthrough"
)

var (
	errUnauthorized   = echo.NewHTTPError(http.StatusUnauthorized, "user not authenticated")
	errHttpForbidden  = echo.NewHTTPError(http.StatusForbidden, "permission denied")
	errFileTooLarge   = echo.NewHTTPError(http.StatusRequestEntityTooLarge, "uploaded file is too large")
	errInvalidRequest = echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
)

// newAppHTTPErrorHandler returns a custom echo.HTTPErrorHandler that knows how to handle our errors.
// signalShutdown is called in order to gracefully shutdown the Server once the store has been closed.
func newAppHTTPErrorHandler(logger core.Logger, translator ut.Translator, signalShutdown func()) echo.HTTPErrorHandler {
	return func(err error, ctx echo.Context) {
		var code int
		var message interface{}

		cause := errors.Cause(err)
		switch cause {
		case walkthrough.ErrNotFound:
			code, message = http.StatusNotFound, cause.Error()
		case walkthrough.ErrForbidden, walkthrough.ErrDefaultImmutable:
			code, message = http.StatusForbidden, cause.Error()
		case walkthrough.ErrConflict:
			code, message = http.StatusConflict, cause.Error()
		case walkthrough.ErrFormatUnavailable, walkthrough.ErrUnknownFormat, walkthrough.ErrOrganizationReq:
			code, message = http.StatusBadRequest, cause.Error()
		}

		if code == 0 {
			switch origErr := cause.(type) {
			case *echo.HTTPError:
				if origErr == middleware.ErrJWTMissing {
					code = http.StatusUnauthorized
					message = origErr.Message
					break
				}
				if origErr.Internal != nil {
					if herr, ok := origErr.Internal.(*echo.HTTPError); ok {
						origErr = herr
					}
				}
				code = origErr.Code
				message = origErr.Message
			case validator.ValidationErrors:
				fldErrs := make(map[string]string, len(origErr))
				for _, vErr := range origErr {
					fldErrs[vErr.Field()] = vErr.Translate(translator)
				}
				code = http.StatusBadRequest
				message = fldErrs
			case *core.ValidationError:
				if fldErrs := origErr.FieldMap(); fldErrs != nil {
					message = fldErrs
				} else {
					message = origErr.Error()
				}
				code = http.StatusBadRequest
			case *walkthrough.ParseError:
				code, message = http.StatusBadRequest, origErr.Error()
			case *walkthrough.InvalidScriptError:
				code = http.StatusUnprocessableEntity
				message = echo.Map{"error": "walkthrough is not valid", "problems": origErr.Problems}
			case *walkthrough.TransitionError:
				code, message = http.StatusConflict, origErr.Error()
			case *walkthrough.StoreError:
				code = http.StatusServiceUnavailable
				message = "temporarily unable to save changes, please try again"
				actor, _ := getContextActor(ctx)
				logger.Error(origErr.Error(), err, actor)

				// the connection pool is gone, nothing more can be served
				if storeClosed(origErr) {
					signalShutdown()
				}
			default: // any other error is a server error
				code = http.StatusInternalServerError
				msg := http.StatusText(http.StatusInternalServerError)
				message = msg

				actor, _ := getContextActor(ctx)
				logger.Error(msg, errors.Wrap(err, msg), actor)
			}
		}

		if ctx.Echo().Debug && code >= http.StatusInternalServerError {
			message = err.Error()
		}
		if m, ok := message.(string); ok {
			message = echo.Map{"error": m}
		}

		// Send response
		if !ctx.Response().Committed {
			if ctx.Request().Method == http.MethodHead { // Issue #608
				err = ctx.NoContent(code)
			} else {
				err = ctx.JSON(code, message)
			}
			if err != nil {
				ctx.Echo().Logger.Error(err)
			}
		}
	}
}

func storeClosed(err error) bool {
	return errors.Is(err, sql.ErrConnDone)
}
