package identity

import (
	"context"

	"github.com/google/uuid"
)

type ProfileRepository interface {
	Create(ctx context.Context, p *Profile) error
	GetByID(ctx context.Context, id uuid.UUID) (*Profile, error)
	GetByAuthUserID(ctx context.Context, authUserID uuid.UUID) (*Profile, error)
	UpdateNames(ctx context.Context, p *Profile) error
	// ListMissingRoleRecord returns profiles whose role has no matching
	// patient, provider or admin row.
	ListMissingRoleRecord(ctx context.Context) ([]*Profile, error)
}

type PatientRepository interface {
	Create(ctx context.Context, p *Patient) error
	GetByID(ctx context.Context, id uuid.UUID) (*Patient, error)
	GetByProfileID(ctx context.Context, profileID uuid.UUID) (*Patient, error)
	Update(ctx context.Context, p *Patient) error
}

type ProviderRepository interface {
	Create(ctx context.Context, p *Provider) error
	GetByID(ctx context.Context, id uuid.UUID) (*Provider, error)
	GetByProfileID(ctx context.Context, profileID uuid.UUID) (*Provider, error)
	Update(ctx context.Context, p *Provider) error
	List(ctx context.Context, activeOnly bool, limit, offset int) ([]*ProviderListing, int, error)
	// ListWithoutSchedule returns providers that have no schedule blocks.
	ListWithoutSchedule(ctx context.Context) ([]*Provider, error)
}

type AdminRepository interface {
	Create(ctx context.Context, a *Admin) error
	GetByProfileID(ctx context.Context, profileID uuid.UUID) (*Admin, error)
}

// ScheduleSeeder creates the default weekly schedule for a new provider.
type ScheduleSeeder interface {
	SeedDefaultSchedule(ctx context.Context, providerID uuid.UUID, slotMinutes int) (int, error)
	HasSchedule(ctx context.Context, providerID uuid.UUID) (bool, error)
}
