package assignment

import (
	"time"

	"github.com/google/uuid"

	"github.com/telecare/telecare/internal/domain/treatment"
)

// Assignment maps to the assignment table: a patient's link to a provider
// for one treatment type. At most one active assignment per patient and
// treatment type is primary.
type Assignment struct {
	ID            uuid.UUID      `db:"id" json:"id"`
	PatientID     uuid.UUID      `db:"patient_id" json:"patient_id"`
	ProviderID    uuid.UUID      `db:"provider_id" json:"provider_id"`
	TreatmentType treatment.Type `db:"treatment_type" json:"treatment_type"`
	IsPrimary     bool           `db:"is_primary" json:"is_primary"`
	Active        bool           `db:"active" json:"active"`
	AssignedDate  time.Time      `db:"assigned_date" json:"assigned_date"`
	CreatedAt     time.Time      `db:"created_at" json:"created_at"`
	UpdatedAt     time.Time      `db:"updated_at" json:"updated_at"`
}

// AssignedPatient is one row of get_assigned_patients_for_provider.
type AssignedPatient struct {
	AssignmentID   uuid.UUID      `json:"assignment_id"`
	PatientID      uuid.UUID      `json:"patient_id"`
	ProfileID      uuid.UUID      `json:"profile_id"`
	FirstName      string         `json:"first_name"`
	LastName       string         `json:"last_name"`
	Email          string         `json:"email"`
	Phone          *string        `json:"phone,omitempty"`
	IntakeComplete bool           `json:"intake_complete"`
	TreatmentType  treatment.Type `json:"treatment_type"`
	IsPrimary      bool           `json:"is_primary"`
	AssignedDate   time.Time      `json:"assigned_date"`
}

// ProviderLink is an active assignment as seen from the patient side.
type ProviderLink struct {
	AssignmentID  uuid.UUID      `json:"assignment_id"`
	ProviderID    uuid.UUID      `json:"provider_id"`
	ProviderName  string         `json:"provider_name"`
	TreatmentType treatment.Type `json:"treatment_type"`
	IsPrimary     bool           `json:"is_primary"`
}

// PatientSummary is one row of get_all_patients_for_admin.
type PatientSummary struct {
	PatientID      uuid.UUID      `json:"patient_id"`
	ProfileID      uuid.UUID      `json:"profile_id"`
	FirstName      string         `json:"first_name"`
	LastName       string         `json:"last_name"`
	Email          string         `json:"email"`
	IntakeComplete bool           `json:"intake_complete"`
	Providers      []ProviderLink `json:"providers"`
}
