package identity

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/telecare/telecare/internal/platform/auth"
	"github.com/telecare/telecare/internal/platform/metrics"
)

// ReconcileFailure is a repair that was attempted and failed.
type ReconcileFailure struct {
	ProfileID uuid.UUID `json:"profile_id"`
	Step      string    `json:"step"`
	Error     string    `json:"error"`
}

// ReconcileRepair is a repair that was made, or in a dry run would be.
type ReconcileRepair struct {
	ProfileID uuid.UUID `json:"profile_id"`
	Step      string    `json:"step"`
}

type ReconcileReport struct {
	DryRun   bool               `json:"dry_run"`
	Scanned  int                `json:"scanned"`
	Repaired int                `json:"repaired"`
	Repairs  []ReconcileRepair  `json:"repairs"`
	Failures []ReconcileFailure `json:"failures"`
}

// Reconciler finds accounts left half-registered and finishes them with the
// same steps the Registrar runs. Running it twice repairs nothing the second
// time.
type Reconciler struct {
	registrar *Registrar
	profiles  ProfileRepository
	providers ProviderRepository
	metrics   *metrics.Collector
	logger    zerolog.Logger
}

func NewReconciler(registrar *Registrar, m *metrics.Collector, logger zerolog.Logger) *Reconciler {
	return &Reconciler{
		registrar: registrar,
		profiles:  registrar.profiles,
		providers: registrar.providers,
		metrics:   m,
		logger:    logger,
	}
}

func (r *Reconciler) Reconcile(ctx context.Context, dryRun bool) (*ReconcileReport, error) {
	report := &ReconcileReport{DryRun: dryRun, Repairs: []ReconcileRepair{}, Failures: []ReconcileFailure{}}

	orphans, err := r.profiles.ListMissingRoleRecord(ctx)
	if err != nil {
		return nil, fmt.Errorf("list profiles without role record: %w", err)
	}
	// Providers repaired above get their schedule in the same pass.
	seeded := make(map[uuid.UUID]bool)
	for _, p := range orphans {
		report.Scanned++
		if dryRun {
			report.Repairs = append(report.Repairs, ReconcileRepair{p.ID, StepRoleRecord})
			if p.Role == auth.RoleProvider {
				report.Repairs = append(report.Repairs, ReconcileRepair{p.ID, StepDefaultSchedule})
			}
			continue
		}
		provider, err := r.registrar.ensureRoleRecord(ctx, p, roleDetails{})
		if err != nil {
			r.fail(report, p.ID, StepRoleRecord, err)
			continue
		}
		r.repaired(report, p.ID, StepRoleRecord)
		if provider == nil {
			continue
		}
		seeded[provider.ID] = true
		if n, err := r.registrar.ensureSchedule(ctx, provider); err != nil {
			r.fail(report, p.ID, StepDefaultSchedule, err)
		} else if n > 0 {
			r.repaired(report, p.ID, StepDefaultSchedule)
		}
	}

	unscheduled, err := r.providers.ListWithoutSchedule(ctx)
	if err != nil {
		return nil, fmt.Errorf("list providers without schedule: %w", err)
	}
	for _, p := range unscheduled {
		if seeded[p.ID] {
			continue
		}
		report.Scanned++
		if dryRun {
			report.Repairs = append(report.Repairs, ReconcileRepair{p.ProfileID, StepDefaultSchedule})
			continue
		}
		if n, err := r.registrar.ensureSchedule(ctx, p); err != nil {
			r.fail(report, p.ProfileID, StepDefaultSchedule, err)
		} else if n > 0 {
			r.repaired(report, p.ProfileID, StepDefaultSchedule)
		}
	}

	r.metrics.ReconcileRepaired(report.Repaired)
	r.logger.Info().
		Bool("dry_run", dryRun).
		Int("scanned", report.Scanned).
		Int("repaired", report.Repaired).
		Int("failures", len(report.Failures)).
		Msg("reconciliation finished")
	return report, nil
}

func (r *Reconciler) repaired(report *ReconcileReport, profileID uuid.UUID, step string) {
	report.Repaired++
	report.Repairs = append(report.Repairs, ReconcileRepair{profileID, step})
	r.metrics.RegistrationStep(step, string(StepOK))
	r.logger.Info().Str("profile_id", profileID.String()).Str("step", step).Msg("repaired registration")
}

func (r *Reconciler) fail(report *ReconcileReport, profileID uuid.UUID, step string, err error) {
	report.Failures = append(report.Failures, ReconcileFailure{profileID, step, err.Error()})
	r.metrics.RegistrationStep(step, string(StepFailed))
	r.logger.Error().Err(err).Str("profile_id", profileID.String()).Str("step", step).Msg("repair failed")
}
