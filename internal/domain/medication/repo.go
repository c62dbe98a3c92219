package medication

import (
	"context"

	"github.com/google/uuid"
)

type Repository interface {
	Create(ctx context.Context, o *Order) error
	GetByID(ctx context.Context, id uuid.UUID) (*Order, error)
	// Transition moves the order from one status to another and applies c.
	// It returns ErrStatusChanged when the stored status is no longer from.
	Transition(ctx context.Context, id uuid.UUID, from, to string, c Change) (*Order, error)
	Search(ctx context.Context, f OrderFilter, limit, offset int) ([]*Order, int, error)
}

// AssignmentChecker reports active patient/provider assignments.
type AssignmentChecker interface {
	HasActiveAssignment(ctx context.Context, patientID, providerID uuid.UUID, treatmentType string) (bool, error)
	IsAssigned(ctx context.Context, patientID, providerID uuid.UUID) (bool, error)
}
