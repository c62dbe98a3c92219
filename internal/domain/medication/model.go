package medication

import (
	"time"

	"github.com/google/uuid"

	"github.com/telecare/telecare/internal/domain/treatment"
)

const (
	StatusRequested = "requested"
	StatusApproved  = "approved"
	StatusDenied    = "denied"
	StatusFulfilled = "fulfilled"
	StatusCancelled = "cancelled"
)

var transitions = map[string][]string{
	StatusRequested: {StatusApproved, StatusDenied, StatusCancelled},
	StatusApproved:  {StatusFulfilled, StatusCancelled},
}

func canTransition(from, to string) bool {
	for _, s := range transitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

func validStatus(s string) bool {
	switch s {
	case StatusRequested, StatusApproved, StatusDenied, StatusFulfilled, StatusCancelled:
		return true
	}
	return false
}

// Order maps to the medication_order table. ProviderID is empty until a
// provider decides on the request.
type Order struct {
	ID             uuid.UUID      `db:"id" json:"id"`
	PatientID      uuid.UUID      `db:"patient_id" json:"patient_id"`
	ProviderID     *uuid.UUID     `db:"provider_id" json:"provider_id,omitempty"`
	TreatmentType  treatment.Type `db:"treatment_type" json:"treatment_type"`
	MedicationName string         `db:"medication_name" json:"medication_name"`
	Dosage         *string        `db:"dosage" json:"dosage,omitempty"`
	Quantity       int            `db:"quantity" json:"quantity"`
	Status         string         `db:"status" json:"status"`
	DecisionNote   *string        `db:"decision_note" json:"decision_note,omitempty"`
	DecidedBy      *uuid.UUID     `db:"decided_by" json:"decided_by,omitempty"`
	DecidedAt      *time.Time     `db:"decided_at" json:"decided_at,omitempty"`
	FulfilledAt    *time.Time     `db:"fulfilled_at" json:"fulfilled_at,omitempty"`
	TrackingNumber *string        `db:"tracking_number" json:"tracking_number,omitempty"`
	CreatedAt      time.Time      `db:"created_at" json:"created_at"`
	UpdatedAt      time.Time      `db:"updated_at" json:"updated_at"`
}

// Change carries the columns a status transition sets besides status.
// Nil fields are left untouched.
type Change struct {
	ProviderID     *uuid.UUID
	DecisionNote   *string
	DecidedBy      *uuid.UUID
	Decided        bool
	Fulfilled      bool
	TrackingNumber *string
}

type OrderFilter struct {
	PatientID  *uuid.UUID
	ProviderID *uuid.UUID
	// AssignedTo limits results to patients with an active assignment to
	// this provider for the order's treatment type.
	AssignedTo    *uuid.UUID
	Status        string
	TreatmentType string
}
