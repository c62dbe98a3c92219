package integration

import (
	"errors"
	"testing"

	"github.com/telecare/telecare/internal/domain/assignment"
	"github.com/telecare/telecare/internal/domain/medication"
	"github.com/telecare/telecare/internal/platform/auth"
)

func TestMedicationOrder_Workflow(t *testing.T) {
	tenantID := newTenant(t, "medication")
	ctx := tenantCtx(t, tenantID)
	s := newStack()

	_, admin := s.register(t, ctx, auth.RoleAdmin)
	_, patient := s.register(t, ctx, auth.RolePatient)
	_, provider := s.register(t, ctx, auth.RoleProvider)
	_, outsider := s.register(t, ctx, auth.RoleProvider)

	if _, err := s.assignment.Assign(ctx, admin, assignment.AssignRequest{
		PatientID: patient.PatientID, ProviderID: provider.ProviderID, TreatmentType: "hormone_therapy",
	}); err != nil {
		t.Fatalf("Assign: %v", err)
	}

	o, err := s.medication.Request(ctx, patient, medication.OrderRequest{
		TreatmentType:  "hormone_therapy",
		MedicationName: "Estradiol",
	})
	if err != nil {
		t.Fatalf("Request: %v", err)
	}
	if o.Status != medication.StatusRequested || o.Quantity != 1 {
		t.Errorf("unexpected new order: %+v", o)
	}

	if _, err := s.medication.Approve(ctx, outsider, o.ID, nil); !errors.Is(err, medication.ErrNotAssigned) {
		t.Errorf("expected ErrNotAssigned for an unassigned provider, got %v", err)
	}

	approved, err := s.medication.Approve(ctx, provider, o.ID, nil)
	if err != nil {
		t.Fatalf("Approve: %v", err)
	}
	if approved.Status != medication.StatusApproved || approved.ProviderID == nil || *approved.ProviderID != provider.ProviderID {
		t.Errorf("unexpected approved order: %+v", approved)
	}
	if approved.DecidedAt == nil {
		t.Error("expected decided_at to be set")
	}

	fulfilled, err := s.medication.Fulfill(ctx, admin, o.ID, "1Z999")
	if err != nil {
		t.Fatalf("Fulfill: %v", err)
	}
	if fulfilled.FulfilledAt == nil || fulfilled.TrackingNumber == nil || *fulfilled.TrackingNumber != "1Z999" {
		t.Errorf("unexpected fulfilled order: %+v", fulfilled)
	}

	if _, err := s.medication.Cancel(ctx, patient, o.ID); !errors.Is(err, medication.ErrInvalidTransition) {
		t.Errorf("expected ErrInvalidTransition cancelling a fulfilled order, got %v", err)
	}

	items, total, err := s.medication.List(ctx, provider, medication.OrderFilter{}, 10, 0)
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if total != 1 || len(items) != 1 {
		t.Errorf("expected the assigned provider to see one order, got %d", total)
	}
	if _, total, err := s.medication.List(ctx, outsider, medication.OrderFilter{}, 10, 0); err != nil || total != 0 {
		t.Errorf("expected an unassigned provider to see nothing, got %d (%v)", total, err)
	}
}

// A transition computed from a stale read must not overwrite a newer status.
func TestMedicationOrder_StaleTransition(t *testing.T) {
	tenantID := newTenant(t, "stale")
	ctx := tenantCtx(t, tenantID)
	s := newStack()

	_, patient := s.register(t, ctx, auth.RolePatient)
	o, err := s.medication.Request(ctx, patient, medication.OrderRequest{
		TreatmentType:  "weight_loss",
		MedicationName: "Semaglutide",
		Quantity:       2,
	})
	if err != nil {
		t.Fatalf("Request: %v", err)
	}

	repo := medication.NewRepoPG(globalDB.Pool)
	if _, err := repo.Transition(ctx, o.ID, medication.StatusRequested, medication.StatusCancelled, medication.Change{}); err != nil {
		t.Fatalf("first transition: %v", err)
	}
	if _, err := repo.Transition(ctx, o.ID, medication.StatusRequested, medication.StatusApproved, medication.Change{}); !errors.Is(err, medication.ErrStatusChanged) {
		t.Errorf("expected ErrStatusChanged, got %v", err)
	}

	got, err := s.medication.Get(ctx, patient, o.ID)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got.Status != medication.StatusCancelled {
		t.Errorf("expected status to stay cancelled, got %s", got.Status)
	}
}
