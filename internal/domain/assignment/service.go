package assignment

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/telecare/telecare/internal/domain/treatment"
	"github.com/telecare/telecare/internal/platform/apperr"
	"github.com/telecare/telecare/internal/platform/auth"
	"github.com/telecare/telecare/internal/platform/db"
	"github.com/telecare/telecare/internal/platform/events"
	"github.com/telecare/telecare/internal/platform/metrics"
)

const (
	EventAssignmentCreated     = "assignment.created"
	EventAssignmentDeactivated = "assignment.deactivated"
	EventPrimaryChanged        = "assignment.primary_changed"
)

type Service struct {
	repo    Repository
	dir     Directory
	tx      db.TxRunner
	events  *events.Emitter
	metrics *metrics.Collector
	logger  zerolog.Logger
}

func NewService(repo Repository, dir Directory, tx db.TxRunner, emitter *events.Emitter, m *metrics.Collector, logger zerolog.Logger) *Service {
	return &Service{repo: repo, dir: dir, tx: tx, events: emitter, metrics: m, logger: logger}
}

type AssignRequest struct {
	PatientID     uuid.UUID `json:"patient_id"`
	ProviderID    uuid.UUID `json:"provider_id"`
	TreatmentType string    `json:"treatment_type"`
	IsPrimary     bool      `json:"is_primary"`
}

type primaryChange struct {
	PatientID     uuid.UUID      `json:"patient_id"`
	TreatmentType treatment.Type `json:"treatment_type"`
	PrimaryID     uuid.UUID      `json:"primary_assignment_id"`
	Demoted       int64          `json:"demoted"`
}

// Assign links a patient to a provider for a treatment type. A primary
// assignment demotes any other primary for the same patient and treatment
// type in the same transaction.
func (s *Service) Assign(ctx context.Context, caller auth.Principal, req AssignRequest) (*Assignment, error) {
	if !caller.IsAdmin() {
		return nil, ErrForbidden
	}
	if req.PatientID == uuid.Nil || req.ProviderID == uuid.Nil {
		return nil, apperr.Validation("patient_id and provider_id are required")
	}
	tt, err := treatment.Parse(req.TreatmentType)
	if err != nil {
		return nil, apperr.Validation(err.Error())
	}
	if ok, err := s.dir.PatientExists(ctx, req.PatientID); err != nil {
		return nil, err
	} else if !ok {
		return nil, ErrPatientNotFound
	}
	if ok, err := s.dir.ProviderExists(ctx, req.ProviderID); err != nil {
		return nil, err
	} else if !ok {
		return nil, ErrProviderNotFound
	}
	if dup, err := s.repo.HasActive(ctx, req.PatientID, req.ProviderID, string(tt)); err != nil {
		return nil, err
	} else if dup {
		return nil, ErrDuplicateAssignment
	}

	a := &Assignment{
		PatientID:     req.PatientID,
		ProviderID:    req.ProviderID,
		TreatmentType: tt,
		IsPrimary:     req.IsPrimary,
	}
	var demoted int64
	err = s.tx.InTx(ctx, func(ctx context.Context) error {
		if a.IsPrimary {
			n, err := s.repo.DemotePrimaries(ctx, a.PatientID, string(tt), uuid.Nil)
			if err != nil {
				return err
			}
			demoted = n
		}
		return s.repo.Create(ctx, a)
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info().
		Str("assignment_id", a.ID.String()).
		Str("patient_id", a.PatientID.String()).
		Str("provider_id", a.ProviderID.String()).
		Str("treatment_type", string(tt)).
		Bool("primary", a.IsPrimary).
		Int64("demoted", demoted).
		Msg("patient assigned")
	s.events.Emit(ctx, EventAssignmentCreated, a.ID.String(), a)
	if demoted > 0 {
		s.events.Emit(ctx, EventPrimaryChanged, a.ID.String(), primaryChange{a.PatientID, tt, a.ID, demoted})
	}
	return a, nil
}

// SetPrimary promotes an active assignment and demotes the previous primary
// atomically.
func (s *Service) SetPrimary(ctx context.Context, caller auth.Principal, id uuid.UUID) (*Assignment, error) {
	if !caller.IsAdmin() {
		return nil, ErrForbidden
	}
	a, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if !a.Active {
		return nil, ErrInactiveAssignment
	}
	if a.IsPrimary {
		return a, nil
	}

	var updated *Assignment
	var demoted int64
	err = s.tx.InTx(ctx, func(ctx context.Context) error {
		n, err := s.repo.DemotePrimaries(ctx, a.PatientID, string(a.TreatmentType), a.ID)
		if err != nil {
			return err
		}
		demoted = n
		updated, err = s.repo.SetPrimary(ctx, a.ID)
		return err
	})
	if err != nil {
		return nil, err
	}
	s.events.Emit(ctx, EventPrimaryChanged, id.String(), primaryChange{a.PatientID, a.TreatmentType, id, demoted})
	return updated, nil
}

func (s *Service) Deactivate(ctx context.Context, caller auth.Principal, id uuid.UUID) (*Assignment, error) {
	if !caller.IsAdmin() {
		return nil, ErrForbidden
	}
	a, err := s.repo.Deactivate(ctx, id)
	if err != nil {
		return nil, err
	}
	s.metrics.StatusTransition("assignment", "inactive")
	s.events.Emit(ctx, EventAssignmentDeactivated, id.String(), a)
	return a, nil
}

func (s *Service) Get(ctx context.Context, caller auth.Principal, id uuid.UUID) (*Assignment, error) {
	a, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if !caller.IsAdmin() && !caller.IsPatient(a.PatientID) && !caller.IsProvider(a.ProviderID) {
		return nil, ErrForbidden
	}
	return a, nil
}

// ListForPatient is visible to the patient, admins, and providers the
// patient is assigned to.
func (s *Service) ListForPatient(ctx context.Context, caller auth.Principal, patientID uuid.UUID, activeOnly bool) ([]*Assignment, error) {
	items, err := s.repo.ListByPatient(ctx, patientID, activeOnly)
	if err != nil {
		return nil, err
	}
	if caller.IsAdmin() || caller.IsPatient(patientID) {
		return items, nil
	}
	for _, a := range items {
		if a.Active && caller.IsProvider(a.ProviderID) {
			return items, nil
		}
	}
	return nil, ErrForbidden
}

func (s *Service) ListForProvider(ctx context.Context, caller auth.Principal, providerID uuid.UUID, activeOnly bool) ([]*Assignment, error) {
	if !caller.IsAdmin() && !caller.IsProvider(providerID) {
		return nil, ErrForbidden
	}
	return s.repo.ListByProvider(ctx, providerID, activeOnly)
}

// HasActiveAssignment reports whether the patient is actively assigned to
// the provider for the treatment type.
func (s *Service) HasActiveAssignment(ctx context.Context, patientID, providerID uuid.UUID, treatmentType string) (bool, error) {
	ok, err := s.repo.HasActive(ctx, patientID, providerID, treatmentType)
	if err != nil {
		return false, fmt.Errorf("check assignment: %w", err)
	}
	return ok, nil
}

// AssignedPatientsForProvider backs get_assigned_patients_for_provider. It is
// keyed by the provider's profile id.
func (s *Service) AssignedPatientsForProvider(ctx context.Context, caller auth.Principal, providerProfileID uuid.UUID) ([]*AssignedPatient, error) {
	if providerProfileID == uuid.Nil {
		return nil, apperr.Validation("provider_profile_id is required")
	}
	if !caller.IsAdmin() && caller.ProfileID != providerProfileID {
		return nil, ErrForbidden
	}
	providerID, err := s.dir.ProviderIDForProfile(ctx, providerProfileID)
	if err != nil {
		return nil, err
	}
	return s.dir.AssignedPatients(ctx, providerID)
}

// AllPatients backs get_all_patients_for_admin.
func (s *Service) AllPatients(ctx context.Context, caller auth.Principal, limit, offset int) ([]*PatientSummary, int, error) {
	if !caller.IsAdmin() {
		return nil, 0, ErrForbidden
	}
	return s.dir.AllPatients(ctx, limit, offset)
}

// IsAssigned reports whether the provider has any active assignment with the
// patient.
func (s *Service) IsAssigned(ctx context.Context, patientID, providerID uuid.UUID) (bool, error) {
	items, err := s.repo.ListByPatient(ctx, patientID, true)
	if err != nil {
		return false, err
	}
	for _, a := range items {
		if a.ProviderID == providerID {
			return true, nil
		}
	}
	return false, nil
}
