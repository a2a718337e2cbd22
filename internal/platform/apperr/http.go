package apperr

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"
)

// Body is the JSON envelope for every error response.
type Body struct {
	Error BodyError `json:"error"`
}

type BodyError struct {
	Kind     Kind         `json:"kind"`
	Conflict ConflictKind `json:"conflict,omitempty"`
	Message  string       `json:"message"`
}

// HTTPErrorHandler renders *Error and *echo.HTTPError values in the shared
// envelope. Internal causes are logged and replaced with a generic message.
func HTTPErrorHandler(logger zerolog.Logger) echo.HTTPErrorHandler {
	return func(err error, c echo.Context) {
		if c.Response().Committed {
			return
		}

		status, body := render(err)
		if status >= http.StatusInternalServerError {
			rid, _ := c.Get("request_id").(string)
			logger.Error().Err(err).
				Str("request_id", rid).
				Str("path", c.Request().URL.Path).
				Msg("request failed")
		}

		var werr error
		if c.Request().Method == http.MethodHead {
			werr = c.NoContent(status)
		} else {
			werr = c.JSON(status, body)
		}
		if werr != nil {
			logger.Error().Err(werr).Msg("write error response")
		}
	}
}

func render(err error) (int, Body) {
	if e, ok := As(err); ok {
		msg := e.Message
		if e.Kind == KindInternal {
			msg = "internal server error"
		}
		return e.Status(), Body{Error: BodyError{Kind: e.Kind, Conflict: e.Conflict, Message: msg}}
	}

	var he *echo.HTTPError
	if errors.As(err, &he) {
		msg := http.StatusText(he.Code)
		if s, ok := he.Message.(string); ok && s != "" {
			msg = s
		}
		if he.Code >= http.StatusInternalServerError {
			msg = "internal server error"
		}
		return he.Code, Body{Error: BodyError{Kind: kindForStatus(he.Code), Message: msg}}
	}

	return http.StatusInternalServerError, Body{Error: BodyError{Kind: KindInternal, Message: "internal server error"}}
}

func kindForStatus(code int) Kind {
	switch code {
	case http.StatusUnauthorized:
		return KindUnauthenticated
	case http.StatusForbidden:
		return KindForbidden
	case http.StatusBadRequest, http.StatusUnsupportedMediaType, http.StatusRequestEntityTooLarge:
		return KindInvalidInput
	case http.StatusNotFound, http.StatusMethodNotAllowed:
		return KindNotFound
	case http.StatusConflict:
		return KindConflict
	case http.StatusTooManyRequests:
		return KindTooManyRequests
	default:
		return KindInternal
	}
}
