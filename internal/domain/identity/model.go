package identity

import (
	"time"

	"github.com/google/uuid"
)

// Profile maps to the profile table. Every auth user has exactly one, and
// Role selects which role record hangs off it.
type Profile struct {
	ID         uuid.UUID `db:"id" json:"id"`
	AuthUserID uuid.UUID `db:"auth_user_id" json:"auth_user_id"`
	Email      string    `db:"email" json:"email"`
	Role       string    `db:"role" json:"role"`
	FirstName  string    `db:"first_name" json:"first_name"`
	LastName   string    `db:"last_name" json:"last_name"`
	CreatedAt  time.Time `db:"created_at" json:"created_at"`
	UpdatedAt  time.Time `db:"updated_at" json:"updated_at"`
}

func (p *Profile) FullName() string { return p.FirstName + " " + p.LastName }

// Patient maps to the patient table.
type Patient struct {
	ID             uuid.UUID  `db:"id" json:"id"`
	ProfileID      uuid.UUID  `db:"profile_id" json:"profile_id"`
	Phone          *string    `db:"phone" json:"phone,omitempty"`
	DateOfBirth    *time.Time `db:"date_of_birth" json:"date_of_birth,omitempty"`
	IntakeComplete bool       `db:"intake_complete" json:"intake_complete"`
	CreatedAt      time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt      time.Time  `db:"updated_at" json:"updated_at"`
}

// Provider maps to the provider table.
type Provider struct {
	ID                 uuid.UUID `db:"id" json:"id"`
	ProfileID          uuid.UUID `db:"profile_id" json:"profile_id"`
	Specialty          *string   `db:"specialty" json:"specialty,omitempty"`
	LicenseNumber      *string   `db:"license_number" json:"license_number,omitempty"`
	Active             bool      `db:"active" json:"active"`
	DefaultSlotMinutes int       `db:"default_slot_minutes" json:"default_slot_minutes"`
	CreatedAt          time.Time `db:"created_at" json:"created_at"`
	UpdatedAt          time.Time `db:"updated_at" json:"updated_at"`
}

// Admin maps to the admin table.
type Admin struct {
	ID        uuid.UUID `db:"id" json:"id"`
	ProfileID uuid.UUID `db:"profile_id" json:"profile_id"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
}

// ProviderListing is a provider joined with its profile names.
type ProviderListing struct {
	Provider
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
	Email     string `json:"email"`
}

// Me is the caller's profile and whichever role record it owns.
type Me struct {
	Profile  *Profile  `json:"profile"`
	Patient  *Patient  `json:"patient,omitempty"`
	Provider *Provider `json:"provider,omitempty"`
	Admin    *Admin    `json:"admin,omitempty"`
}
