package scheduling

import (
	"context"
	"errors"
	"sort"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/telecare/telecare/internal/domain/treatment"
	"github.com/telecare/telecare/internal/platform/apperr"
	"github.com/telecare/telecare/internal/platform/auth"
)

// -- Mock Repositories --

type mockDirectory struct {
	providers map[uuid.UUID]*ProviderRef
	patients  map[uuid.UUID]bool
	locks     int
}

func newMockDirectory() *mockDirectory {
	return &mockDirectory{providers: make(map[uuid.UUID]*ProviderRef), patients: make(map[uuid.UUID]bool)}
}

func (m *mockDirectory) GetProvider(_ context.Context, id uuid.UUID) (*ProviderRef, error) {
	p, ok := m.providers[id]
	if !ok {
		return nil, ErrProviderNotFound
	}
	cp := *p
	return &cp, nil
}

func (m *mockDirectory) LockProvider(ctx context.Context, id uuid.UUID) (*ProviderRef, error) {
	m.locks++
	return m.GetProvider(ctx, id)
}

func (m *mockDirectory) PatientExists(_ context.Context, id uuid.UUID) (bool, error) {
	return m.patients[id], nil
}

type mockBlockRepo struct {
	blocks map[uuid.UUID]*ScheduleBlock
}

func newMockBlockRepo() *mockBlockRepo {
	return &mockBlockRepo{blocks: make(map[uuid.UUID]*ScheduleBlock)}
}

func (m *mockBlockRepo) Create(_ context.Context, b *ScheduleBlock) error {
	b.ID = uuid.New()
	b.CreatedAt = time.Now()
	b.UpdatedAt = b.CreatedAt
	cp := *b
	m.blocks[b.ID] = &cp
	return nil
}

func (m *mockBlockRepo) GetByID(_ context.Context, id uuid.UUID) (*ScheduleBlock, error) {
	b, ok := m.blocks[id]
	if !ok {
		return nil, ErrBlockNotFound
	}
	cp := *b
	return &cp, nil
}

func (m *mockBlockRepo) Update(_ context.Context, b *ScheduleBlock) error {
	if _, ok := m.blocks[b.ID]; !ok {
		return ErrBlockNotFound
	}
	cp := *b
	m.blocks[b.ID] = &cp
	return nil
}

func (m *mockBlockRepo) Delete(_ context.Context, id uuid.UUID) error {
	if _, ok := m.blocks[id]; !ok {
		return ErrBlockNotFound
	}
	delete(m.blocks, id)
	return nil
}

func (m *mockBlockRepo) ListByProvider(_ context.Context, providerID uuid.UUID, activeOnly bool) ([]*ScheduleBlock, error) {
	var out []*ScheduleBlock
	for _, b := range m.blocks {
		if b.ProviderID == providerID && (!activeOnly || b.Active) {
			cp := *b
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].DayOfWeek != out[j].DayOfWeek {
			return out[i].DayOfWeek < out[j].DayOfWeek
		}
		return out[i].StartTime < out[j].StartTime
	})
	return out, nil
}

func (m *mockBlockRepo) CountByProvider(_ context.Context, providerID uuid.UUID) (int, error) {
	n := 0
	for _, b := range m.blocks {
		if b.ProviderID == providerID {
			n++
		}
	}
	return n, nil
}

type mockOverrideRepo struct {
	overrides map[uuid.UUID]*AvailabilityOverride
}

func newMockOverrideRepo() *mockOverrideRepo {
	return &mockOverrideRepo{overrides: make(map[uuid.UUID]*AvailabilityOverride)}
}

func (m *mockOverrideRepo) Create(_ context.Context, o *AvailabilityOverride) error {
	o.ID = uuid.New()
	o.CreatedAt = time.Now()
	cp := *o
	m.overrides[o.ID] = &cp
	return nil
}

func (m *mockOverrideRepo) GetByID(_ context.Context, id uuid.UUID) (*AvailabilityOverride, error) {
	o, ok := m.overrides[id]
	if !ok {
		return nil, ErrOverrideNotFound
	}
	cp := *o
	return &cp, nil
}

func (m *mockOverrideRepo) Delete(_ context.Context, id uuid.UUID) error {
	if _, ok := m.overrides[id]; !ok {
		return ErrOverrideNotFound
	}
	delete(m.overrides, id)
	return nil
}

func (m *mockOverrideRepo) ListByProvider(_ context.Context, providerID uuid.UUID, from, to Date) ([]*AvailabilityOverride, error) {
	var out []*AvailabilityOverride
	for _, o := range m.overrides {
		if o.ProviderID == providerID && !o.Date.Before(from) && !to.Before(o.Date) {
			cp := *o
			out = append(out, &cp)
		}
	}
	return out, nil
}

// mockApptRepo enforces the live-slot uniqueness the partial index gives
// in Postgres.
type mockApptRepo struct {
	appts map[uuid.UUID]*Appointment
}

func newMockApptRepo() *mockApptRepo {
	return &mockApptRepo{appts: make(map[uuid.UUID]*Appointment)}
}

func (m *mockApptRepo) Create(_ context.Context, a *Appointment) error {
	for _, x := range m.appts {
		if x.ProviderID == a.ProviderID && x.Date.Equal(a.Date) && x.StartTime == a.StartTime && x.Status != StatusCancelled {
			return ErrSlotUnavailable
		}
	}
	a.ID = uuid.New()
	a.CreatedAt = time.Now()
	a.UpdatedAt = a.CreatedAt
	cp := *a
	m.appts[a.ID] = &cp
	return nil
}

func (m *mockApptRepo) GetByID(_ context.Context, id uuid.UUID) (*Appointment, error) {
	a, ok := m.appts[id]
	if !ok {
		return nil, ErrAppointmentNotFound
	}
	cp := *a
	return &cp, nil
}

func (m *mockApptRepo) UpdateStatus(_ context.Context, id uuid.UUID, from, to string, reason *string) (*Appointment, error) {
	a, ok := m.appts[id]
	if !ok {
		return nil, ErrAppointmentNotFound
	}
	if a.Status != from {
		return nil, ErrInvalidTransition
	}
	a.Status = to
	if reason != nil {
		a.CancellationReason = reason
	}
	cp := *a
	return &cp, nil
}

func (m *mockApptRepo) ListLive(_ context.Context, providerID uuid.UUID, from, to Date) ([]*Appointment, error) {
	var out []*Appointment
	for _, a := range m.appts {
		if a.ProviderID == providerID && a.Status != StatusCancelled && !a.Date.Before(from) && !to.Before(a.Date) {
			cp := *a
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (m *mockApptRepo) Search(_ context.Context, f AppointmentFilter, limit, offset int) ([]*Appointment, int, error) {
	var out []*Appointment
	for _, a := range m.appts {
		if f.PatientID != nil && a.PatientID != *f.PatientID {
			continue
		}
		if f.ProviderID != nil && a.ProviderID != *f.ProviderID {
			continue
		}
		if f.Status != "" && a.Status != f.Status {
			continue
		}
		cp := *a
		out = append(out, &cp)
	}
	return out, len(out), nil
}

type mockAssignments struct {
	active map[string]bool
}

func assignmentKey(patientID, providerID uuid.UUID, tt string) string {
	return patientID.String() + "|" + providerID.String() + "|" + tt
}

func (m *mockAssignments) HasActiveAssignment(_ context.Context, patientID, providerID uuid.UUID, tt string) (bool, error) {
	return m.active[assignmentKey(patientID, providerID, tt)], nil
}

type fakeTx struct{ calls int }

func (f *fakeTx) InTx(ctx context.Context, fn func(ctx context.Context) error) error {
	f.calls++
	return fn(ctx)
}

// -- Fixture --

type fixture struct {
	svc       *Service
	dir       *mockDirectory
	blocks    *mockBlockRepo
	overrides *mockOverrideRepo
	appts     *mockApptRepo
	assign    *mockAssignments
	tx        *fakeTx

	providerID uuid.UUID
	patientID  uuid.UUID
	patient    auth.Principal
	provider   auth.Principal
	admin      auth.Principal
}

// fixedNow is the Thursday before the Monday the tests book on.
var fixedNow = time.Date(2026, time.January, 1, 8, 0, 0, 0, time.UTC)

func newFixture() *fixture {
	f := &fixture{
		dir:        newMockDirectory(),
		blocks:     newMockBlockRepo(),
		overrides:  newMockOverrideRepo(),
		appts:      newMockApptRepo(),
		assign:     &mockAssignments{active: make(map[string]bool)},
		tx:         &fakeTx{},
		providerID: uuid.New(),
		patientID:  uuid.New(),
	}
	f.svc = NewService(f.dir, f.blocks, f.overrides, f.appts, f.assign, f.tx, Options{
		Now: func() time.Time { return fixedNow },
	})
	f.dir.providers[f.providerID] = &ProviderRef{ID: f.providerID, Active: true, DefaultSlotMinutes: 30}
	f.dir.patients[f.patientID] = true
	f.assign.active[assignmentKey(f.patientID, f.providerID, string(treatment.WeightLoss))] = true

	f.patient = auth.Principal{ProfileID: uuid.New(), Role: auth.RolePatient, PatientID: f.patientID}
	f.provider = auth.Principal{ProfileID: uuid.New(), Role: auth.RoleProvider, ProviderID: f.providerID}
	f.admin = auth.Principal{ProfileID: uuid.New(), Role: auth.RoleAdmin}

	b := mondayBlock(&ProviderRef{ID: f.providerID})
	f.blocks.Create(context.Background(), &b)
	return f
}

func (f *fixture) bookingRequest(start ClockTime) BookingRequest {
	return BookingRequest{
		PatientID:     f.patientID,
		ProviderID:    f.providerID,
		Date:          monday,
		StartTime:     start,
		TreatmentType: "weight_loss",
	}
}

// -- Slot Tests --

func TestAvailableSlots(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	f.overrides.Create(ctx, &AvailabilityOverride{
		ProviderID: f.providerID, Date: monday, StartTime: clockPtr(10, 0), EndTime: clockPtr(10, 30),
	})

	slots, err := f.svc.AvailableSlots(ctx, SlotQuery{
		ProviderID: f.providerID, Start: monday, End: monday, TreatmentType: "weight_loss",
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	assertStarts(t, slots, "09:00", "09:30", "10:30", "11:00", "11:30")
}

func TestAvailableSlots_UnknownProviderIsEmpty(t *testing.T) {
	f := newFixture()
	slots, err := f.svc.AvailableSlots(context.Background(), SlotQuery{
		ProviderID: uuid.New(), Start: monday, End: monday, TreatmentType: "weight_loss",
	})
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if slots == nil || len(slots) != 0 {
		t.Errorf("expected empty list, got %v", slots)
	}
}

func TestAvailableSlots_InactiveProviderIsEmpty(t *testing.T) {
	f := newFixture()
	f.dir.providers[f.providerID].Active = false
	slots, err := f.svc.AvailableSlots(context.Background(), SlotQuery{
		ProviderID: f.providerID, Start: monday, End: monday, TreatmentType: "weight_loss",
	})
	if err != nil || len(slots) != 0 {
		t.Errorf("expected empty list and no error, got %v, %v", slots, err)
	}
}

func TestAvailableSlots_Validation(t *testing.T) {
	f := newFixture()
	tests := []struct {
		name string
		q    SlotQuery
	}{
		{"missing provider", SlotQuery{Start: monday, End: monday, TreatmentType: "weight_loss"}},
		{"missing dates", SlotQuery{ProviderID: f.providerID, TreatmentType: "weight_loss"}},
		{"end before start", SlotQuery{ProviderID: f.providerID, Start: tuesday, End: monday, TreatmentType: "weight_loss"}},
		{"range too long", SlotQuery{ProviderID: f.providerID, Start: monday, End: monday.AddDays(DefaultMaxResolveDays), TreatmentType: "weight_loss"}},
		{"bad treatment", SlotQuery{ProviderID: f.providerID, Start: monday, End: monday, TreatmentType: "astrology"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.svc.AvailableSlots(context.Background(), tt.q)
			if !errors.Is(err, apperr.ErrValidation) {
				t.Errorf("expected validation error, got %v", err)
			}
		})
	}

	// The full window is allowed.
	_, err := f.svc.AvailableSlots(context.Background(), SlotQuery{
		ProviderID: f.providerID, Start: monday, End: monday.AddDays(DefaultMaxResolveDays - 1), TreatmentType: "weight_loss",
	})
	if err != nil {
		t.Errorf("expected a %d-day range to be accepted, got %v", DefaultMaxResolveDays, err)
	}
}

func TestAvailableSlots_DropsPastSlots(t *testing.T) {
	f := newFixture()
	f.svc.now = func() time.Time { return time.Date(2026, time.January, 5, 11, 0, 0, 0, time.UTC) }
	slots, err := f.svc.AvailableSlots(context.Background(), SlotQuery{
		ProviderID: f.providerID, Start: monday, End: monday, TreatmentType: "weight_loss",
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	assertStarts(t, slots, "11:00", "11:30")
}

// -- Booking Tests --

func TestBook(t *testing.T) {
	f := newFixture()
	ctx := context.Background()

	appt, err := f.svc.Book(ctx, f.patient, f.bookingRequest(Clock(9, 30)))
	if err != nil {
		t.Fatalf("Book: %v", err)
	}
	if appt.ID == uuid.Nil || appt.Status != StatusScheduled || appt.DurationMinutes != 30 {
		t.Errorf("unexpected appointment: %+v", appt)
	}
	if f.tx.calls != 1 || f.dir.locks != 1 {
		t.Errorf("expected one transaction with a provider lock, got tx=%d locks=%d", f.tx.calls, f.dir.locks)
	}

	slots, err := f.svc.AvailableSlots(ctx, SlotQuery{
		ProviderID: f.providerID, Start: monday, End: monday, TreatmentType: "weight_loss",
	})
	if err != nil {
		t.Fatalf("AvailableSlots: %v", err)
	}
	for _, s := range slots {
		if s.StartTime == Clock(9, 30) {
			t.Error("booked slot must not be offered again")
		}
	}
}

func TestBook_SameSlotTwiceConflicts(t *testing.T) {
	f := newFixture()
	ctx := context.Background()

	if _, err := f.svc.Book(ctx, f.patient, f.bookingRequest(Clock(9, 0))); err != nil {
		t.Fatalf("first booking: %v", err)
	}
	_, err := f.svc.Book(ctx, f.admin, f.bookingRequest(Clock(9, 0)))
	if !errors.Is(err, ErrSlotUnavailable) {
		t.Fatalf("expected ErrSlotUnavailable, got %v", err)
	}
	if !errors.Is(err, apperr.ErrConflict) {
		t.Error("slot unavailability must be a conflict")
	}
}

func TestBook_StartNotOnSlotBoundary(t *testing.T) {
	f := newFixture()
	_, err := f.svc.Book(context.Background(), f.patient, f.bookingRequest(Clock(9, 15)))
	if !errors.Is(err, ErrSlotUnavailable) {
		t.Errorf("expected ErrSlotUnavailable, got %v", err)
	}
}

func TestBook_BlockedByOverride(t *testing.T) {
	f := newFixture()
	f.overrides.Create(context.Background(), &AvailabilityOverride{ProviderID: f.providerID, Date: monday})
	_, err := f.svc.Book(context.Background(), f.patient, f.bookingRequest(Clock(9, 0)))
	if !errors.Is(err, ErrSlotUnavailable) {
		t.Errorf("expected ErrSlotUnavailable, got %v", err)
	}
}

func TestBook_AfterCancellationSlotIsFree(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	appt, err := f.svc.Book(ctx, f.patient, f.bookingRequest(Clock(10, 0)))
	if err != nil {
		t.Fatalf("Book: %v", err)
	}
	if _, err := f.svc.Transition(ctx, f.patient, appt.ID, StatusCancelled, nil); err != nil {
		t.Fatalf("cancel: %v", err)
	}
	if _, err := f.svc.Book(ctx, f.patient, f.bookingRequest(Clock(10, 0))); err != nil {
		t.Errorf("expected rebooking a cancelled slot to succeed, got %v", err)
	}
}

func TestBook_NotFound(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(f *fixture, req *BookingRequest)
		want   error
	}{
		{"unknown patient", func(f *fixture, req *BookingRequest) { req.PatientID = uuid.New() }, ErrPatientNotFound},
		{"unknown provider", func(f *fixture, req *BookingRequest) { req.ProviderID = uuid.New() }, ErrProviderNotFound},
		{"inactive provider", func(f *fixture, req *BookingRequest) { f.dir.providers[f.providerID].Active = false }, ErrProviderNotFound},
		{"no assignment", func(f *fixture, req *BookingRequest) { req.TreatmentType = "dermatology" }, ErrNoAssignment},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture()
			req := f.bookingRequest(Clock(9, 0))
			tt.mutate(f, &req)
			_, err := f.svc.Book(context.Background(), f.admin, req)
			if !errors.Is(err, tt.want) {
				t.Errorf("expected %v, got %v", tt.want, err)
			}
			if !errors.Is(err, apperr.ErrNotFound) {
				t.Errorf("expected not-found category, got %v", err)
			}
		})
	}
}

func TestBook_Validation(t *testing.T) {
	f := newFixture()
	req := f.bookingRequest(Clock(9, 0))
	req.TreatmentType = "unknown"
	if _, err := f.svc.Book(context.Background(), f.patient, req); !errors.Is(err, apperr.ErrValidation) {
		t.Errorf("expected validation error, got %v", err)
	}
	req = f.bookingRequest(Clock(9, 0))
	req.Date = Date{}
	if _, err := f.svc.Book(context.Background(), f.patient, req); !errors.Is(err, apperr.ErrValidation) {
		t.Errorf("expected validation error for missing date, got %v", err)
	}
}

func TestBook_PatientCannotBookForSomeoneElse(t *testing.T) {
	f := newFixture()
	other := auth.Principal{Role: auth.RolePatient, PatientID: uuid.New()}
	_, err := f.svc.Book(context.Background(), other, f.bookingRequest(Clock(9, 0)))
	if !errors.Is(err, apperr.ErrForbidden) {
		t.Errorf("expected forbidden, got %v", err)
	}
}

// -- Transition Tests --

func TestTransition(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	appt, err := f.svc.Book(ctx, f.patient, f.bookingRequest(Clock(11, 0)))
	if err != nil {
		t.Fatalf("Book: %v", err)
	}

	if _, err := f.svc.Transition(ctx, f.patient, appt.ID, StatusCompleted, nil); !errors.Is(err, apperr.ErrForbidden) {
		t.Errorf("patients must not complete appointments, got %v", err)
	}
	done, err := f.svc.Transition(ctx, f.provider, appt.ID, StatusCompleted, nil)
	if err != nil {
		t.Fatalf("complete: %v", err)
	}
	if done.Status != StatusCompleted {
		t.Errorf("expected completed, got %s", done.Status)
	}
	if _, err := f.svc.Transition(ctx, f.admin, appt.ID, StatusCancelled, nil); !errors.Is(err, ErrInvalidTransition) {
		t.Errorf("expected ErrInvalidTransition from completed, got %v", err)
	}
}

func TestTransition_CancelKeepsReason(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	appt, err := f.svc.Book(ctx, f.patient, f.bookingRequest(Clock(11, 30)))
	if err != nil {
		t.Fatalf("Book: %v", err)
	}
	reason := "feeling better"
	got, err := f.svc.Transition(ctx, f.patient, appt.ID, StatusCancelled, &reason)
	if err != nil {
		t.Fatalf("cancel: %v", err)
	}
	if got.Status != StatusCancelled || got.CancellationReason == nil || *got.CancellationReason != reason {
		t.Errorf("unexpected appointment after cancel: %+v", got)
	}
}

func TestTransition_Errors(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	if _, err := f.svc.Transition(ctx, f.admin, uuid.New(), StatusCancelled, nil); !errors.Is(err, ErrAppointmentNotFound) {
		t.Errorf("expected not found, got %v", err)
	}
	appt, _ := f.svc.Book(ctx, f.patient, f.bookingRequest(Clock(9, 0)))
	if _, err := f.svc.Transition(ctx, f.admin, appt.ID, StatusScheduled, nil); !errors.Is(err, apperr.ErrValidation) {
		t.Errorf("expected validation error for unknown target, got %v", err)
	}
	stranger := auth.Principal{Role: auth.RoleProvider, ProviderID: uuid.New()}
	if _, err := f.svc.Transition(ctx, stranger, appt.ID, StatusCancelled, nil); !errors.Is(err, apperr.ErrForbidden) {
		t.Errorf("expected forbidden for another provider, got %v", err)
	}
}

func TestListAppointments_ScopedToCaller(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	if _, err := f.svc.Book(ctx, f.patient, f.bookingRequest(Clock(9, 0))); err != nil {
		t.Fatalf("Book: %v", err)
	}
	other := uuid.New()
	f.appts.Create(ctx, &Appointment{PatientID: other, ProviderID: uuid.New(), Date: monday, StartTime: Clock(9, 0), DurationMinutes: 30, Status: StatusScheduled})

	_, total, err := f.svc.ListAppointments(ctx, f.patient, AppointmentFilter{PatientID: &other}, 20, 0)
	if err != nil {
		t.Fatalf("ListAppointments: %v", err)
	}
	if total != 1 {
		t.Errorf("patient must only see their own appointment, got %d", total)
	}
	_, total, _ = f.svc.ListAppointments(ctx, f.admin, AppointmentFilter{}, 20, 0)
	if total != 2 {
		t.Errorf("admin should see both appointments, got %d", total)
	}
	if _, _, err := f.svc.ListAppointments(ctx, auth.Principal{}, AppointmentFilter{}, 20, 0); !errors.Is(err, apperr.ErrForbidden) {
		t.Errorf("unresolved caller must be rejected, got %v", err)
	}
}

// -- Schedule Management Tests --

func TestCreateBlock_Validation(t *testing.T) {
	f := newFixture()
	valid := func() *ScheduleBlock {
		return &ScheduleBlock{
			ProviderID: f.providerID, DayOfWeek: 2, StartTime: Clock(9, 0), EndTime: Clock(10, 0),
			SlotDurationMinutes: 30, TreatmentTypes: []treatment.Type{treatment.PrimaryCare}, Active: true,
		}
	}
	tests := []struct {
		name   string
		mutate func(b *ScheduleBlock)
	}{
		{"bad day", func(b *ScheduleBlock) { b.DayOfWeek = 7 }},
		{"inverted window", func(b *ScheduleBlock) { b.EndTime = Clock(8, 0) }},
		{"zero duration", func(b *ScheduleBlock) { b.SlotDurationMinutes = 0 }},
		{"duration too long", func(b *ScheduleBlock) { b.SlotDurationMinutes = 90 }},
		{"no treatments", func(b *ScheduleBlock) { b.TreatmentTypes = nil }},
		{"unknown treatment", func(b *ScheduleBlock) { b.TreatmentTypes = []treatment.Type{"yoga"} }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b := valid()
			tt.mutate(b)
			if err := f.svc.CreateBlock(context.Background(), f.provider, b); !errors.Is(err, apperr.ErrValidation) {
				t.Errorf("expected validation error, got %v", err)
			}
		})
	}
	if err := f.svc.CreateBlock(context.Background(), f.provider, valid()); err != nil {
		t.Errorf("expected valid block to be created, got %v", err)
	}
}

func TestCreateBlock_OnlyOwnerOrAdmin(t *testing.T) {
	f := newFixture()
	b := &ScheduleBlock{
		ProviderID: f.providerID, DayOfWeek: 3, StartTime: Clock(9, 0), EndTime: Clock(10, 0),
		SlotDurationMinutes: 30, TreatmentTypes: []treatment.Type{treatment.PrimaryCare},
	}
	stranger := auth.Principal{Role: auth.RoleProvider, ProviderID: uuid.New()}
	if err := f.svc.CreateBlock(context.Background(), stranger, b); !errors.Is(err, apperr.ErrForbidden) {
		t.Errorf("expected forbidden, got %v", err)
	}
	if err := f.svc.CreateBlock(context.Background(), f.patient, b); !errors.Is(err, apperr.ErrForbidden) {
		t.Errorf("expected forbidden for patient, got %v", err)
	}
	if err := f.svc.CreateBlock(context.Background(), f.admin, b); err != nil {
		t.Errorf("admin should manage any schedule, got %v", err)
	}
}

func TestUpdateAndDeleteBlock(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	blocks, _ := f.svc.ListBlocks(ctx, f.providerID, false)
	if len(blocks) != 1 {
		t.Fatalf("expected fixture block, got %d", len(blocks))
	}
	b := blocks[0]
	b.EndTime = Clock(13, 0)
	b.ProviderID = uuid.New()
	if err := f.svc.UpdateBlock(ctx, f.provider, b); err != nil {
		t.Fatalf("UpdateBlock: %v", err)
	}
	got, _ := f.svc.GetBlock(ctx, b.ID)
	if got.EndTime != Clock(13, 0) || got.ProviderID != f.providerID {
		t.Errorf("unexpected block after update: %+v", got)
	}
	if err := f.svc.DeleteBlock(ctx, f.provider, b.ID); err != nil {
		t.Fatalf("DeleteBlock: %v", err)
	}
	if _, err := f.svc.GetBlock(ctx, b.ID); !errors.Is(err, ErrBlockNotFound) {
		t.Errorf("expected block to be gone, got %v", err)
	}
}

func TestSeedDefaultSchedule(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	providerID := uuid.New()

	n, err := f.svc.SeedDefaultSchedule(ctx, providerID, 0)
	if err != nil {
		t.Fatalf("SeedDefaultSchedule: %v", err)
	}
	if n != 5 {
		t.Fatalf("expected 5 weekday blocks, got %d", n)
	}
	blocks, _ := f.svc.ListBlocks(ctx, providerID, true)
	for i, b := range blocks {
		if b.DayOfWeek != i+1 || b.StartTime != Clock(9, 0) || b.EndTime != Clock(17, 0) {
			t.Errorf("unexpected block %d: %+v", i, b)
		}
		if b.SlotDurationMinutes != DefaultSlotMinutes || len(b.TreatmentTypes) != len(treatment.All()) {
			t.Errorf("unexpected block defaults: %+v", b)
		}
	}

	again, err := f.svc.SeedDefaultSchedule(ctx, providerID, 30)
	if err != nil || again != 0 {
		t.Errorf("expected a second seed to be a no-op, got %d, %v", again, err)
	}
	has, _ := f.svc.HasSchedule(ctx, providerID)
	if !has {
		t.Error("expected provider to have a schedule")
	}
}

func TestCreateOverride_Validation(t *testing.T) {
	f := newFixture()
	tests := []struct {
		name string
		o    AvailabilityOverride
	}{
		{"missing date", AvailabilityOverride{ProviderID: f.providerID}},
		{"one time only", AvailabilityOverride{ProviderID: f.providerID, Date: monday, StartTime: clockPtr(9, 0)}},
		{"inverted window", AvailabilityOverride{ProviderID: f.providerID, Date: monday, StartTime: clockPtr(10, 0), EndTime: clockPtr(9, 0)}},
		{"addition without window", AvailabilityOverride{ProviderID: f.providerID, Date: monday, Available: true}},
		{"unknown treatment", AvailabilityOverride{ProviderID: f.providerID, Date: monday, Available: true,
			StartTime: clockPtr(9, 0), EndTime: clockPtr(10, 0), TreatmentTypes: []treatment.Type{"yoga"}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			o := tt.o
			if err := f.svc.CreateOverride(context.Background(), f.provider, &o); !errors.Is(err, apperr.ErrValidation) {
				t.Errorf("expected validation error, got %v", err)
			}
		})
	}
}

func TestOverrideLifecycle(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	o := &AvailabilityOverride{ProviderID: f.providerID, Date: monday}
	if err := f.svc.CreateOverride(ctx, f.provider, o); err != nil {
		t.Fatalf("CreateOverride: %v", err)
	}
	items, err := f.svc.ListOverrides(ctx, f.providerID, monday, tuesday)
	if err != nil || len(items) != 1 {
		t.Fatalf("expected one override, got %d, %v", len(items), err)
	}
	if _, err := f.svc.ListOverrides(ctx, f.providerID, tuesday, monday); !errors.Is(err, apperr.ErrValidation) {
		t.Errorf("expected validation error for inverted range, got %v", err)
	}
	if err := f.svc.DeleteOverride(ctx, f.patient, o.ID); !errors.Is(err, apperr.ErrForbidden) {
		t.Errorf("patients cannot delete overrides, got %v", err)
	}
	if err := f.svc.DeleteOverride(ctx, f.provider, o.ID); err != nil {
		t.Fatalf("DeleteOverride: %v", err)
	}
}
