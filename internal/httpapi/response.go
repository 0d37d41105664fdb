package httpapi

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"

	"geosvc/pkg/apperror"
)

// ErrorResponse is the envelope used for every non-2xx response.
// Success responses are written as the raw domain object instead (see the
// handlers), so internal/usage's analytics extraction can read a body
// shaped exactly like the domain output it documents, not a generic
// wrapper around it. The envelope is driven by apperror.Error rather
// than a hand-maintained error-code table.
type ErrorResponse struct {
	Error ErrorBody `json:"error"`
}

// ErrorBody is the envelope's error payload. Details carries structured
// context like the supported transport modes on an alias failure.
type ErrorBody struct {
	Code    string         `json:"code"`
	Message string         `json:"message"`
	Field   string         `json:"field,omitempty"`
	Details map[string]any `json:"details,omitempty"`
}

// HandleError is the echo.HTTPErrorHandler installed on the router.
func HandleError(err error, c echo.Context) {
	if c.Response().Committed {
		return
	}

	var appErr *apperror.Error
	if errors.As(err, &appErr) {
		body := ErrorBody{
			Code:    string(appErr.Code),
			Message: appErr.Message,
			Field:   appErr.Field,
		}
		if len(appErr.Details) > 0 {
			body.Details = appErr.Details
		}
		_ = c.JSON(appErr.HTTPStatus(), ErrorResponse{Error: body})
		return
	}

	var httpErr *echo.HTTPError
	if errors.As(err, &httpErr) {
		msg, _ := httpErr.Message.(string)
		if msg == "" {
			msg = http.StatusText(httpErr.Code)
		}
		_ = c.JSON(httpErr.Code, ErrorResponse{Error: ErrorBody{
			Code:    string(apperror.CodeBadRequest),
			Message: msg,
		}})
		return
	}

	_ = c.JSON(http.StatusInternalServerError, ErrorResponse{Error: ErrorBody{
		Code:    string(apperror.CodeInternal),
		Message: "internal server error",
	}})
}
