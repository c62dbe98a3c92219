package identity

import "github.com/telecare/telecare/internal/platform/apperr"

var (
	ErrProfileNotFound  = apperr.NotFound("profile not found")
	ErrPatientNotFound  = apperr.NotFound("patient not found")
	ErrProviderNotFound = apperr.NotFound("provider not found")
	ErrAdminNotFound    = apperr.NotFound("admin not found")

	ErrEmailTaken = apperr.Conflict("email is already registered")

	ErrForbidden = apperr.Forbidden("access denied")
)
