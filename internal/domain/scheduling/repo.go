package scheduling

import (
	"context"

	"github.com/google/uuid"
)

// Directory reads the provider and patient rows scheduling depends on.
type Directory interface {
	GetProvider(ctx context.Context, id uuid.UUID) (*ProviderRef, error)
	// LockProvider takes a row lock on the provider for the rest of the
	// enclosing transaction, serializing bookings against that provider.
	LockProvider(ctx context.Context, id uuid.UUID) (*ProviderRef, error)
	PatientExists(ctx context.Context, id uuid.UUID) (bool, error)
}

type BlockRepository interface {
	Create(ctx context.Context, b *ScheduleBlock) error
	GetByID(ctx context.Context, id uuid.UUID) (*ScheduleBlock, error)
	Update(ctx context.Context, b *ScheduleBlock) error
	Delete(ctx context.Context, id uuid.UUID) error
	ListByProvider(ctx context.Context, providerID uuid.UUID, activeOnly bool) ([]*ScheduleBlock, error)
	CountByProvider(ctx context.Context, providerID uuid.UUID) (int, error)
}

type OverrideRepository interface {
	Create(ctx context.Context, o *AvailabilityOverride) error
	GetByID(ctx context.Context, id uuid.UUID) (*AvailabilityOverride, error)
	Delete(ctx context.Context, id uuid.UUID) error
	ListByProvider(ctx context.Context, providerID uuid.UUID, from, to Date) ([]*AvailabilityOverride, error)
}

type AppointmentRepository interface {
	// Create returns ErrSlotUnavailable when the provider already holds a
	// live appointment at that date and start time.
	Create(ctx context.Context, a *Appointment) error
	GetByID(ctx context.Context, id uuid.UUID) (*Appointment, error)
	// UpdateStatus moves a from one status to another. It returns
	// ErrInvalidTransition when the row is no longer in from.
	UpdateStatus(ctx context.Context, id uuid.UUID, from, to string, reason *string) (*Appointment, error)
	// ListLive returns a provider's non-cancelled appointments in [from, to].
	ListLive(ctx context.Context, providerID uuid.UUID, from, to Date) ([]*Appointment, error)
	Search(ctx context.Context, f AppointmentFilter, limit, offset int) ([]*Appointment, int, error)
}

// AssignmentChecker answers whether a patient is assigned to a provider for
// a treatment type.
type AssignmentChecker interface {
	HasActiveAssignment(ctx context.Context, patientID, providerID uuid.UUID, treatmentType string) (bool, error)
}
