package medication

import "github.com/telecare/telecare/internal/platform/apperr"

var (
	ErrOrderNotFound   = apperr.NotFound("medication order not found")
	ErrPatientNotFound = apperr.NotFound("patient not found")

	ErrInvalidTransition = apperr.Conflict("medication order cannot move to the requested status")
	ErrStatusChanged     = apperr.Conflict("medication order status changed concurrently")

	ErrNotAssigned = apperr.Forbidden("provider is not assigned to this patient for the treatment type")
	ErrForbidden   = apperr.Forbidden("access denied")
)
