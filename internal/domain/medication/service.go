package medication

import (
	"context"
	"strings"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/telecare/telecare/internal/domain/treatment"
	"github.com/telecare/telecare/internal/platform/apperr"
	"github.com/telecare/telecare/internal/platform/auth"
	"github.com/telecare/telecare/internal/platform/events"
	"github.com/telecare/telecare/internal/platform/metrics"
)

const (
	EventOrderRequested = "medication.requested"
	EventStatusChanged  = "medication.status_changed"
)

const maxNameLength = 200

type Service struct {
	repo     Repository
	careTeam AssignmentChecker
	events   *events.Emitter
	metrics  *metrics.Collector
	logger   zerolog.Logger
}

func NewService(repo Repository, careTeam AssignmentChecker, emitter *events.Emitter, m *metrics.Collector, logger zerolog.Logger) *Service {
	return &Service{repo: repo, careTeam: careTeam, events: emitter, metrics: m, logger: logger}
}

type OrderRequest struct {
	PatientID      uuid.UUID `json:"patient_id"`
	TreatmentType  string    `json:"treatment_type"`
	MedicationName string    `json:"medication_name"`
	Dosage         *string   `json:"dosage,omitempty"`
	Quantity       int       `json:"quantity"`
}

type statusChange struct {
	OrderID   uuid.UUID `json:"order_id"`
	PatientID uuid.UUID `json:"patient_id"`
	From      string    `json:"from"`
	To        string    `json:"to"`
	By        uuid.UUID `json:"by"`
}

// Request creates an order in the requested state. Patients may only
// request for themselves.
func (s *Service) Request(ctx context.Context, caller auth.Principal, req OrderRequest) (*Order, error) {
	switch {
	case caller.IsAdmin():
	case caller.Role == auth.RolePatient && caller.PatientID != uuid.Nil:
		if req.PatientID == uuid.Nil {
			req.PatientID = caller.PatientID
		}
		if req.PatientID != caller.PatientID {
			return nil, ErrForbidden
		}
	default:
		return nil, ErrForbidden
	}
	if req.PatientID == uuid.Nil {
		return nil, apperr.Validation("patient_id is required")
	}
	tt, err := treatment.Parse(req.TreatmentType)
	if err != nil {
		return nil, apperr.Validation(err.Error())
	}
	name := strings.TrimSpace(req.MedicationName)
	if name == "" {
		return nil, apperr.Validation("medication_name is required")
	}
	if len(name) > maxNameLength {
		return nil, apperr.Validationf("medication_name must be at most %d characters", maxNameLength)
	}
	if req.Quantity == 0 {
		req.Quantity = 1
	}
	if req.Quantity < 0 {
		return nil, apperr.Validation("quantity must be positive")
	}

	o := &Order{
		PatientID:      req.PatientID,
		TreatmentType:  tt,
		MedicationName: name,
		Dosage:         req.Dosage,
		Quantity:       req.Quantity,
	}
	if err := s.repo.Create(ctx, o); err != nil {
		return nil, err
	}
	s.logger.Info().
		Str("order_id", o.ID.String()).
		Str("patient_id", o.PatientID.String()).
		Str("treatment_type", string(tt)).
		Msg("medication requested")
	s.metrics.StatusTransition("medication_order", StatusRequested)
	s.events.Emit(ctx, EventOrderRequested, o.ID.String(), o)
	return o, nil
}

func (s *Service) Get(ctx context.Context, caller auth.Principal, id uuid.UUID) (*Order, error) {
	o, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := s.canView(ctx, caller, o); err != nil {
		return nil, err
	}
	return o, nil
}

func (s *Service) canView(ctx context.Context, caller auth.Principal, o *Order) error {
	switch {
	case caller.IsAdmin(), caller.IsPatient(o.PatientID):
		return nil
	case o.ProviderID != nil && caller.IsProvider(*o.ProviderID):
		return nil
	case caller.Role == auth.RoleProvider && caller.ProviderID != uuid.Nil:
		ok, err := s.careTeam.HasActiveAssignment(ctx, o.PatientID, caller.ProviderID, string(o.TreatmentType))
		if err != nil {
			return err
		}
		if ok {
			return nil
		}
	}
	return ErrForbidden
}

// List narrows f to what the caller may see: patients their own orders,
// providers the orders of their assigned patients.
func (s *Service) List(ctx context.Context, caller auth.Principal, f OrderFilter, limit, offset int) ([]*Order, int, error) {
	switch {
	case caller.IsAdmin():
	case caller.Role == auth.RolePatient && caller.PatientID != uuid.Nil:
		f.PatientID = &caller.PatientID
	case caller.Role == auth.RoleProvider && caller.ProviderID != uuid.Nil:
		f.AssignedTo = &caller.ProviderID
	default:
		return nil, 0, ErrForbidden
	}
	if f.Status != "" && !validStatus(f.Status) {
		return nil, 0, apperr.Validationf("unknown status %q", f.Status)
	}
	if f.TreatmentType != "" {
		if _, err := treatment.Parse(f.TreatmentType); err != nil {
			return nil, 0, apperr.Validation(err.Error())
		}
	}
	return s.repo.Search(ctx, f, limit, offset)
}

// ListForPatient is visible to the patient, admins and providers the patient
// is assigned to.
func (s *Service) ListForPatient(ctx context.Context, caller auth.Principal, patientID uuid.UUID, limit, offset int) ([]*Order, int, error) {
	switch {
	case caller.IsAdmin(), caller.IsPatient(patientID):
	case caller.Role == auth.RoleProvider && caller.ProviderID != uuid.Nil:
		ok, err := s.careTeam.IsAssigned(ctx, patientID, caller.ProviderID)
		if err != nil {
			return nil, 0, err
		}
		if !ok {
			return nil, 0, ErrForbidden
		}
	default:
		return nil, 0, ErrForbidden
	}
	return s.repo.Search(ctx, OrderFilter{PatientID: &patientID}, limit, offset)
}

// Approve and Deny record a provider's decision. Only a provider actively
// assigned to the patient for the order's treatment type may decide.
func (s *Service) Approve(ctx context.Context, caller auth.Principal, id uuid.UUID, note *string) (*Order, error) {
	return s.decide(ctx, caller, id, StatusApproved, note)
}

func (s *Service) Deny(ctx context.Context, caller auth.Principal, id uuid.UUID, note *string) (*Order, error) {
	if note == nil || strings.TrimSpace(*note) == "" {
		return nil, apperr.Validation("a decision note is required to deny an order")
	}
	return s.decide(ctx, caller, id, StatusDenied, note)
}

func (s *Service) decide(ctx context.Context, caller auth.Principal, id uuid.UUID, to string, note *string) (*Order, error) {
	if caller.Role != auth.RoleProvider || caller.ProviderID == uuid.Nil {
		return nil, ErrForbidden
	}
	o, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	ok, err := s.careTeam.HasActiveAssignment(ctx, o.PatientID, caller.ProviderID, string(o.TreatmentType))
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrNotAssigned
	}
	providerID, profileID := caller.ProviderID, caller.ProfileID
	c := Change{ProviderID: &providerID, DecisionNote: note, Decided: true}
	if profileID != uuid.Nil {
		c.DecidedBy = &profileID
	}
	return s.transition(ctx, caller, o, to, c)
}

// Fulfill marks an approved order as shipped.
func (s *Service) Fulfill(ctx context.Context, caller auth.Principal, id uuid.UUID, trackingNumber string) (*Order, error) {
	if !caller.IsAdmin() {
		return nil, ErrForbidden
	}
	trackingNumber = strings.TrimSpace(trackingNumber)
	if trackingNumber == "" {
		return nil, apperr.Validation("tracking_number is required")
	}
	o, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	return s.transition(ctx, caller, o, StatusFulfilled, Change{Fulfilled: true, TrackingNumber: &trackingNumber})
}

// Cancel withdraws a pending or approved order. Patients may cancel their
// own orders.
func (s *Service) Cancel(ctx context.Context, caller auth.Principal, id uuid.UUID) (*Order, error) {
	o, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if !caller.IsAdmin() && !caller.IsPatient(o.PatientID) {
		return nil, ErrForbidden
	}
	return s.transition(ctx, caller, o, StatusCancelled, Change{})
}

func (s *Service) transition(ctx context.Context, caller auth.Principal, o *Order, to string, c Change) (*Order, error) {
	if !canTransition(o.Status, to) {
		return nil, ErrInvalidTransition
	}
	updated, err := s.repo.Transition(ctx, o.ID, o.Status, to, c)
	if err != nil {
		return nil, err
	}
	s.logger.Info().
		Str("order_id", o.ID.String()).
		Str("from", o.Status).
		Str("to", to).
		Str("by", caller.ProfileID.String()).
		Msg("medication order status changed")
	s.metrics.StatusTransition("medication_order", to)
	s.events.Emit(ctx, EventStatusChanged, o.ID.String(), statusChange{
		OrderID:   o.ID,
		PatientID: o.PatientID,
		From:      o.Status,
		To:        to,
		By:        caller.ProfileID,
	})
	return updated, nil
}
