package scheduling

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/telecare/telecare/internal/domain/treatment"
	"github.com/telecare/telecare/internal/platform/apperr"
	"github.com/telecare/telecare/internal/platform/auth"
	"github.com/telecare/telecare/internal/platform/db"
	"github.com/telecare/telecare/internal/platform/events"
	"github.com/telecare/telecare/internal/platform/metrics"
)

// DefaultMaxResolveDays bounds the span of one availability query.
const DefaultMaxResolveDays = 62

// Event types.
const (
	EventAppointmentBooked    = "appointment.booked"
	EventAppointmentCompleted = "appointment.completed"
	EventAppointmentCancelled = "appointment.cancelled"
)

// Options carries the optional collaborators and tunables of a Service.
type Options struct {
	MaxResolveDays int
	// DefaultSlotMinutes is the slot length of seeded schedules when the
	// provider has none configured.
	DefaultSlotMinutes int
	Location       *time.Location
	Events         *events.Emitter
	Metrics        *metrics.Collector
	Logger         zerolog.Logger
	Now            func() time.Time
}

type Service struct {
	directory   Directory
	blocks      BlockRepository
	overrides   OverrideRepository
	appts       AppointmentRepository
	assignments AssignmentChecker
	tx          db.TxRunner

	maxDays int
	slotMin int
	loc     *time.Location
	events  *events.Emitter
	metrics *metrics.Collector
	logger  zerolog.Logger
	now     func() time.Time
}

func NewService(dir Directory, blocks BlockRepository, overrides OverrideRepository, appts AppointmentRepository,
	assignments AssignmentChecker, tx db.TxRunner, opts Options) *Service {
	s := &Service{
		directory:   dir,
		blocks:      blocks,
		overrides:   overrides,
		appts:       appts,
		assignments: assignments,
		tx:          tx,
		maxDays:     opts.MaxResolveDays,
		slotMin:     opts.DefaultSlotMinutes,
		loc:         opts.Location,
		events:      opts.Events,
		metrics:     opts.Metrics,
		logger:      opts.Logger,
		now:         opts.Now,
	}
	if s.maxDays <= 0 {
		s.maxDays = DefaultMaxResolveDays
	}
	if s.slotMin <= 0 {
		s.slotMin = DefaultSlotMinutes
	}
	if s.loc == nil {
		s.loc = time.UTC
	}
	if s.now == nil {
		s.now = time.Now
	}
	return s
}

// -- Slots --

// SlotQuery asks for a provider's availability over [Start, End].
type SlotQuery struct {
	ProviderID    uuid.UUID `json:"provider_id"`
	Start         Date      `json:"start_date"`
	End           Date      `json:"end_date"`
	TreatmentType string    `json:"treatment_type"`
}

func (s *Service) validateQuery(q SlotQuery) (treatment.Type, error) {
	if q.ProviderID == uuid.Nil {
		return "", apperr.Validation("provider_id is required")
	}
	if q.Start.IsZero() || q.End.IsZero() {
		return "", apperr.Validation("start_date and end_date are required")
	}
	if q.End.Before(q.Start) {
		return "", apperr.Validation("end_date must not be before start_date")
	}
	if days := q.Start.DaysUntil(q.End) + 1; days > s.maxDays {
		return "", apperr.Validationf("date range spans %d days, at most %d allowed", days, s.maxDays)
	}
	tt, err := treatment.Parse(q.TreatmentType)
	if err != nil {
		return "", apperr.Validation(err.Error())
	}
	return tt, nil
}

// AvailableSlots returns the bookable slots for q. A missing or inactive
// provider yields an empty list, not an error.
func (s *Service) AvailableSlots(ctx context.Context, q SlotQuery) ([]Slot, error) {
	tt, err := s.validateQuery(q)
	if err != nil {
		return nil, err
	}
	p, err := s.directory.GetProvider(ctx, q.ProviderID)
	if errors.Is(err, ErrProviderNotFound) {
		return []Slot{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load provider: %w", err)
	}
	if !p.Active {
		return []Slot{}, nil
	}
	slots, err := s.resolve(ctx, p, q.Start, q.End, tt)
	if err != nil {
		return nil, err
	}
	s.metrics.ObserveSlotsResolved(len(slots))
	return slots, nil
}

func (s *Service) resolve(ctx context.Context, p *ProviderRef, start, end Date, tt treatment.Type) ([]Slot, error) {
	blocks, err := s.blocks.ListByProvider(ctx, p.ID, true)
	if err != nil {
		return nil, fmt.Errorf("load schedule blocks: %w", err)
	}
	overrides, err := s.overrides.ListByProvider(ctx, p.ID, start, end)
	if err != nil {
		return nil, fmt.Errorf("load overrides: %w", err)
	}
	appts, err := s.appts.ListLive(ctx, p.ID, start, end)
	if err != nil {
		return nil, fmt.Errorf("load appointments: %w", err)
	}
	return Resolve(ResolveInput{
		Provider:      p,
		Start:         start,
		End:           end,
		TreatmentType: tt,
		Blocks:        derefBlocks(blocks),
		Overrides:     derefOverrides(overrides),
		Appointments:  derefAppointments(appts),
		NotBefore:     s.now(),
		Location:      s.loc,
	}), nil
}

// -- Booking --

type BookingRequest struct {
	PatientID     uuid.UUID `json:"patient_id"`
	ProviderID    uuid.UUID `json:"provider_id"`
	Date          Date      `json:"date"`
	StartTime     ClockTime `json:"start_time"`
	TreatmentType string    `json:"treatment_type"`
}

// Book turns a free slot into an appointment. The slot is re-resolved under
// a row lock on the provider, so two callers racing for the same slot are
// serialized and the loser gets ErrSlotUnavailable.
func (s *Service) Book(ctx context.Context, caller auth.Principal, req BookingRequest) (*Appointment, error) {
	if req.PatientID == uuid.Nil || req.ProviderID == uuid.Nil {
		return nil, apperr.Validation("patient_id and provider_id are required")
	}
	if req.Date.IsZero() {
		return nil, apperr.Validation("date is required")
	}
	tt, err := treatment.Parse(req.TreatmentType)
	if err != nil {
		return nil, apperr.Validation(err.Error())
	}
	if !caller.IsAdmin() && !caller.IsPatient(req.PatientID) && !caller.IsProvider(req.ProviderID) {
		return nil, ErrForbidden
	}

	ok, err := s.directory.PatientExists(ctx, req.PatientID)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrPatientNotFound
	}
	p, err := s.directory.GetProvider(ctx, req.ProviderID)
	if err != nil {
		return nil, err
	}
	if !p.Active {
		return nil, ErrProviderNotFound
	}
	assigned, err := s.assignments.HasActiveAssignment(ctx, req.PatientID, req.ProviderID, string(tt))
	if err != nil {
		return nil, fmt.Errorf("check assignment: %w", err)
	}
	if !assigned {
		return nil, ErrNoAssignment
	}

	var appt *Appointment
	err = s.tx.InTx(ctx, func(ctx context.Context) error {
		locked, err := s.directory.LockProvider(ctx, req.ProviderID)
		if err != nil {
			return err
		}
		if !locked.Active {
			return ErrProviderNotFound
		}
		slots, err := s.resolve(ctx, locked, req.Date, req.Date, tt)
		if err != nil {
			return err
		}
		slot, found := findSlot(slots, req.StartTime)
		if !found {
			return ErrSlotUnavailable
		}
		appt = &Appointment{
			PatientID:       req.PatientID,
			ProviderID:      req.ProviderID,
			Date:            req.Date,
			StartTime:       slot.StartTime,
			DurationMinutes: slot.DurationMinutes,
			TreatmentType:   tt,
			Status:          StatusScheduled,
		}
		return s.appts.Create(ctx, appt)
	})
	if err != nil {
		if errors.Is(err, ErrSlotUnavailable) {
			s.metrics.Booking("conflict")
		} else {
			s.metrics.Booking("error")
		}
		return nil, err
	}

	s.metrics.Booking("ok")
	s.logger.Info().
		Str("appointment_id", appt.ID.String()).
		Str("provider_id", appt.ProviderID.String()).
		Str("date", appt.Date.String()).
		Str("start_time", appt.StartTime.String()).
		Msg("appointment booked")
	s.events.Emit(ctx, EventAppointmentBooked, appt.ID.String(), appt)
	return appt, nil
}

func findSlot(slots []Slot, start ClockTime) (Slot, bool) {
	for _, sl := range slots {
		if sl.StartTime == start {
			return sl, true
		}
	}
	return Slot{}, false
}

// -- Appointments --

// transitions lists the statuses reachable from each status.
var transitions = map[string][]string{
	StatusScheduled: {StatusCompleted, StatusCancelled},
}

func canTransition(from, to string) bool {
	for _, s := range transitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

func canView(caller auth.Principal, a *Appointment) bool {
	return caller.IsAdmin() || caller.IsPatient(a.PatientID) || caller.IsProvider(a.ProviderID)
}

func (s *Service) GetAppointment(ctx context.Context, caller auth.Principal, id uuid.UUID) (*Appointment, error) {
	a, err := s.appts.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if !canView(caller, a) {
		return nil, ErrForbidden
	}
	return a, nil
}

// ListAppointments narrows f to what the caller may see: patients get their
// own appointments, providers their own calendar.
func (s *Service) ListAppointments(ctx context.Context, caller auth.Principal, f AppointmentFilter, limit, offset int) ([]*Appointment, int, error) {
	switch {
	case caller.IsAdmin():
	case caller.Role == auth.RolePatient && caller.PatientID != uuid.Nil:
		f.PatientID = &caller.PatientID
	case caller.Role == auth.RoleProvider && caller.ProviderID != uuid.Nil:
		f.ProviderID = &caller.ProviderID
	default:
		return nil, 0, ErrForbidden
	}
	if f.Status != "" && f.Status != StatusScheduled && f.Status != StatusCompleted && f.Status != StatusCancelled {
		return nil, 0, apperr.Validationf("unknown status %q", f.Status)
	}
	return s.appts.Search(ctx, f, limit, offset)
}

// Transition moves an appointment to status to. Patients may only cancel
// their own appointments; providers may complete or cancel theirs.
func (s *Service) Transition(ctx context.Context, caller auth.Principal, id uuid.UUID, to string, reason *string) (*Appointment, error) {
	if to != StatusCompleted && to != StatusCancelled {
		return nil, apperr.Validationf("unknown target status %q", to)
	}
	a, err := s.appts.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	switch {
	case caller.IsAdmin(), caller.IsProvider(a.ProviderID):
	case caller.IsPatient(a.PatientID) && to == StatusCancelled:
	default:
		return nil, ErrForbidden
	}
	if !canTransition(a.Status, to) {
		return nil, ErrInvalidTransition
	}
	if to != StatusCancelled {
		reason = nil
	}

	updated, err := s.appts.UpdateStatus(ctx, id, a.Status, to, reason)
	if err != nil {
		return nil, err
	}
	s.metrics.StatusTransition("appointment", to)
	s.logger.Info().
		Str("appointment_id", id.String()).
		Str("from", a.Status).
		Str("to", to).
		Msg("appointment status changed")

	evt := EventAppointmentCompleted
	if to == StatusCancelled {
		evt = EventAppointmentCancelled
	}
	s.events.Emit(ctx, evt, id.String(), updated)
	return updated, nil
}

// -- Schedule blocks --

func canManage(caller auth.Principal, providerID uuid.UUID) bool {
	return caller.IsAdmin() || caller.IsProvider(providerID)
}

func validateBlock(b *ScheduleBlock) error {
	if b.ProviderID == uuid.Nil {
		return apperr.Validation("provider_id is required")
	}
	if b.DayOfWeek < 0 || b.DayOfWeek > 6 {
		return apperr.Validation("day_of_week must be between 0 (Sunday) and 6 (Saturday)")
	}
	if b.StartTime >= b.EndTime {
		return apperr.Validation("start_time must be before end_time")
	}
	if b.SlotDurationMinutes <= 0 {
		return apperr.Validation("slot_duration_minutes must be positive")
	}
	if b.SlotDurationMinutes > int(b.EndTime-b.StartTime) {
		return apperr.Validation("slot_duration_minutes does not fit in the block")
	}
	if len(b.TreatmentTypes) == 0 {
		return apperr.Validation("at least one treatment type is required")
	}
	for _, t := range b.TreatmentTypes {
		if !t.Valid() {
			return apperr.Validationf("unknown treatment type %q", t)
		}
	}
	return nil
}

func (s *Service) CreateBlock(ctx context.Context, caller auth.Principal, b *ScheduleBlock) error {
	if err := validateBlock(b); err != nil {
		return err
	}
	if !canManage(caller, b.ProviderID) {
		return ErrForbidden
	}
	return s.blocks.Create(ctx, b)
}

func (s *Service) GetBlock(ctx context.Context, id uuid.UUID) (*ScheduleBlock, error) {
	return s.blocks.GetByID(ctx, id)
}

// UpdateBlock replaces the mutable fields of an existing block. The owning
// provider cannot change.
func (s *Service) UpdateBlock(ctx context.Context, caller auth.Principal, b *ScheduleBlock) error {
	existing, err := s.blocks.GetByID(ctx, b.ID)
	if err != nil {
		return err
	}
	if !canManage(caller, existing.ProviderID) {
		return ErrForbidden
	}
	b.ProviderID = existing.ProviderID
	b.CreatedAt = existing.CreatedAt
	if err := validateBlock(b); err != nil {
		return err
	}
	return s.blocks.Update(ctx, b)
}

func (s *Service) DeleteBlock(ctx context.Context, caller auth.Principal, id uuid.UUID) error {
	existing, err := s.blocks.GetByID(ctx, id)
	if err != nil {
		return err
	}
	if !canManage(caller, existing.ProviderID) {
		return ErrForbidden
	}
	return s.blocks.Delete(ctx, id)
}

func (s *Service) ListBlocks(ctx context.Context, providerID uuid.UUID, activeOnly bool) ([]*ScheduleBlock, error) {
	return s.blocks.ListByProvider(ctx, providerID, activeOnly)
}

// SeedDefaultSchedule gives a provider without any blocks the standard
// Monday to Friday 09:00-17:00 week for every treatment type. It returns the
// number of blocks created, which is zero when the provider already has a
// schedule.
func (s *Service) SeedDefaultSchedule(ctx context.Context, providerID uuid.UUID, slotMinutes int) (int, error) {
	if slotMinutes <= 0 {
		slotMinutes = s.slotMin
	}
	n, err := s.blocks.CountByProvider(ctx, providerID)
	if err != nil {
		return 0, fmt.Errorf("count schedule blocks: %w", err)
	}
	if n > 0 {
		return 0, nil
	}
	created := 0
	err = s.tx.InTx(ctx, func(ctx context.Context) error {
		for day := int(time.Monday); day <= int(time.Friday); day++ {
			b := &ScheduleBlock{
				ProviderID:          providerID,
				DayOfWeek:           day,
				StartTime:           Clock(9, 0),
				EndTime:             Clock(17, 0),
				SlotDurationMinutes: slotMinutes,
				TreatmentTypes:      treatment.All(),
				Active:              true,
			}
			if err := s.blocks.Create(ctx, b); err != nil {
				return fmt.Errorf("create block for day %d: %w", day, err)
			}
			created++
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return created, nil
}

// HasSchedule reports whether the provider has at least one block.
func (s *Service) HasSchedule(ctx context.Context, providerID uuid.UUID) (bool, error) {
	n, err := s.blocks.CountByProvider(ctx, providerID)
	return n > 0, err
}

// -- Overrides --

func validateOverride(o *AvailabilityOverride) error {
	if o.ProviderID == uuid.Nil {
		return apperr.Validation("provider_id is required")
	}
	if o.Date.IsZero() {
		return apperr.Validation("date is required")
	}
	if (o.StartTime == nil) != (o.EndTime == nil) {
		return apperr.Validation("start_time and end_time must be set together")
	}
	if o.StartTime != nil && *o.StartTime >= *o.EndTime {
		return apperr.Validation("start_time must be before end_time")
	}
	if o.Available && o.StartTime == nil {
		return apperr.Validation("an availability addition needs a time window")
	}
	for _, t := range o.TreatmentTypes {
		if !t.Valid() {
			return apperr.Validationf("unknown treatment type %q", t)
		}
	}
	return nil
}

func (s *Service) CreateOverride(ctx context.Context, caller auth.Principal, o *AvailabilityOverride) error {
	if err := validateOverride(o); err != nil {
		return err
	}
	if !canManage(caller, o.ProviderID) {
		return ErrForbidden
	}
	if err := s.overrides.Create(ctx, o); err != nil {
		return err
	}
	s.logger.Info().
		Str("override_id", o.ID.String()).
		Str("provider_id", o.ProviderID.String()).
		Str("date", o.Date.String()).
		Str("kind", o.Kind().String()).
		Msg("availability override created")
	return nil
}

func (s *Service) DeleteOverride(ctx context.Context, caller auth.Principal, id uuid.UUID) error {
	existing, err := s.overrides.GetByID(ctx, id)
	if err != nil {
		return err
	}
	if !canManage(caller, existing.ProviderID) {
		return ErrForbidden
	}
	return s.overrides.Delete(ctx, id)
}

func (s *Service) ListOverrides(ctx context.Context, providerID uuid.UUID, from, to Date) ([]*AvailabilityOverride, error) {
	if to.Before(from) {
		return nil, apperr.Validation("to must not be before from")
	}
	return s.overrides.ListByProvider(ctx, providerID, from, to)
}

func derefBlocks(in []*ScheduleBlock) []ScheduleBlock {
	out := make([]ScheduleBlock, 0, len(in))
	for _, b := range in {
		out = append(out, *b)
	}
	return out
}

func derefOverrides(in []*AvailabilityOverride) []AvailabilityOverride {
	out := make([]AvailabilityOverride, 0, len(in))
	for _, o := range in {
		out = append(out, *o)
	}
	return out
}

func derefAppointments(in []*Appointment) []Appointment {
	out := make([]Appointment, 0, len(in))
	for _, a := range in {
		out = append(out, *a)
	}
	return out
}
