// Package apperr defines the error categories shared by the domain packages
// and their mapping onto HTTP responses.
//
// Domain packages declare their own sentinels on top of a category, e.g.
//
//	var ErrSlotUnavailable = apperr.Conflict("slot is no longer available")
//
// so callers can match either the specific sentinel or the category with
// errors.Is.
package apperr

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/labstack/echo/v4"
)

// Categories.
var (
	ErrNotFound   = errors.New("not found")
	ErrConflict   = errors.New("conflict")
	ErrValidation = errors.New("validation failed")
	ErrForbidden  = errors.New("access denied")
)

// Error is a categorized error carrying a caller-facing message.
type Error struct {
	kind error
	msg  string
}

func (e *Error) Error() string { return e.msg }

// Unwrap exposes the category so errors.Is(err, ErrConflict) matches.
func (e *Error) Unwrap() error { return e.kind }

func NotFound(msg string) *Error   { return &Error{kind: ErrNotFound, msg: msg} }
func Conflict(msg string) *Error   { return &Error{kind: ErrConflict, msg: msg} }
func Validation(msg string) *Error { return &Error{kind: ErrValidation, msg: msg} }
func Forbidden(msg string) *Error  { return &Error{kind: ErrForbidden, msg: msg} }

// Validationf builds a one-off validation error.
func Validationf(format string, args ...interface{}) error {
	return Validation(fmt.Sprintf(format, args...))
}

// Status returns the HTTP status code for err's category.
func Status(err error) int {
	switch {
	case err == nil:
		return http.StatusOK
	case errors.Is(err, ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, ErrConflict):
		return http.StatusConflict
	case errors.Is(err, ErrValidation):
		return http.StatusBadRequest
	case errors.Is(err, ErrForbidden):
		return http.StatusForbidden
	default:
		return http.StatusInternalServerError
	}
}

// HTTPError converts err into an echo error. Uncategorized errors become a
// generic 500 so driver messages never reach the client.
func HTTPError(err error) *echo.HTTPError {
	var he *echo.HTTPError
	if errors.As(err, &he) {
		return he
	}
	status := Status(err)
	if status == http.StatusInternalServerError {
		return echo.NewHTTPError(status, "internal server error").SetInternal(err)
	}
	return echo.NewHTTPError(status, err.Error())
}
