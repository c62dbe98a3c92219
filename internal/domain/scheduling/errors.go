package scheduling

import "github.com/telecare/telecare/internal/platform/apperr"

var (
	ErrProviderNotFound    = apperr.NotFound("provider not found")
	ErrPatientNotFound     = apperr.NotFound("patient not found")
	ErrAppointmentNotFound = apperr.NotFound("appointment not found")
	ErrBlockNotFound       = apperr.NotFound("schedule block not found")
	ErrOverrideNotFound    = apperr.NotFound("availability override not found")
	ErrNoAssignment        = apperr.NotFound("no active assignment for this patient, provider and treatment type")

	ErrSlotUnavailable   = apperr.Conflict("slot is no longer available")
	ErrInvalidTransition = apperr.Conflict("invalid appointment status transition")

	ErrForbidden = apperr.Forbidden("access denied")
)
