package assignment

import "github.com/telecare/telecare/internal/platform/apperr"

var (
	ErrAssignmentNotFound = apperr.NotFound("assignment not found")
	ErrPatientNotFound    = apperr.NotFound("patient not found")
	ErrProviderNotFound   = apperr.NotFound("provider not found")

	ErrDuplicateAssignment = apperr.Conflict("patient is already assigned to this provider for this treatment type")
	ErrPrimaryConflict     = apperr.Conflict("another primary assignment was created concurrently")
	ErrInactiveAssignment  = apperr.Conflict("assignment is not active")

	ErrForbidden = apperr.Forbidden("access denied")
)
