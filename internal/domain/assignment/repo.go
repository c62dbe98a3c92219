package assignment

import (
	"context"

	"github.com/google/uuid"
)

type Repository interface {
	// Create returns ErrDuplicateAssignment or ErrPrimaryConflict when a
	// partial unique index rejects the row.
	Create(ctx context.Context, a *Assignment) error
	GetByID(ctx context.Context, id uuid.UUID) (*Assignment, error)
	// DemotePrimaries clears is_primary on every active primary for the
	// patient and treatment type except keep, returning how many changed.
	DemotePrimaries(ctx context.Context, patientID uuid.UUID, treatmentType string, keep uuid.UUID) (int64, error)
	SetPrimary(ctx context.Context, id uuid.UUID) (*Assignment, error)
	Deactivate(ctx context.Context, id uuid.UUID) (*Assignment, error)
	ListByPatient(ctx context.Context, patientID uuid.UUID, activeOnly bool) ([]*Assignment, error)
	ListByProvider(ctx context.Context, providerID uuid.UUID, activeOnly bool) ([]*Assignment, error)
	HasActive(ctx context.Context, patientID, providerID uuid.UUID, treatmentType string) (bool, error)
}

// Directory answers the identity questions assignment management asks.
type Directory interface {
	PatientExists(ctx context.Context, id uuid.UUID) (bool, error)
	ProviderExists(ctx context.Context, id uuid.UUID) (bool, error)
	// ProviderIDForProfile returns ErrProviderNotFound when the profile has
	// no provider row.
	ProviderIDForProfile(ctx context.Context, profileID uuid.UUID) (uuid.UUID, error)
	AssignedPatients(ctx context.Context, providerID uuid.UUID) ([]*AssignedPatient, error)
	AllPatients(ctx context.Context, limit, offset int) ([]*PatientSummary, int, error)
}
