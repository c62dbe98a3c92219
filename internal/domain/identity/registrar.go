package identity

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/telecare/telecare/internal/platform/apperr"
	"github.com/telecare/telecare/internal/platform/auth"
	"github.com/telecare/telecare/internal/platform/metrics"
)

// Registration step names, as reported in results and metrics.
const (
	StepProfile         = "profile"
	StepRoleRecord      = "role_record"
	StepDefaultSchedule = "default_schedule"
)

type StepStatus string

const (
	StepOK      StepStatus = "ok"
	StepFailed  StepStatus = "failed"
	StepSkipped StepStatus = "skipped"
)

type StepResult struct {
	Status StepStatus `json:"status"`
	Error  string     `json:"error,omitempty"`
}

func ok() StepResult      { return StepResult{Status: StepOK} }
func skipped() StepResult { return StepResult{Status: StepSkipped} }
func failed(err error) StepResult {
	return StepResult{Status: StepFailed, Error: err.Error()}
}

// RegistrationResult reports each post-signup step separately. A failed
// step marks the steps that depend on it as skipped.
type RegistrationResult struct {
	ProfileID       uuid.UUID  `json:"profile_id"`
	Role            string     `json:"role"`
	Profile         StepResult `json:"profile"`
	RoleRecord      StepResult `json:"role_record"`
	DefaultSchedule StepResult `json:"default_schedule"`
	BlocksCreated   int        `json:"blocks_created"`
}

// Err returns the first failed step as an error, or nil.
func (r RegistrationResult) Err() error {
	for _, s := range []struct {
		name string
		res  StepResult
	}{
		{StepProfile, r.Profile},
		{StepRoleRecord, r.RoleRecord},
		{StepDefaultSchedule, r.DefaultSchedule},
	} {
		if s.res.Status == StepFailed {
			return fmt.Errorf("registration step %s: %s", s.name, s.res.Error)
		}
	}
	return nil
}

// SignupMetadata is what the identity provider sends after a user signs up.
type SignupMetadata struct {
	AuthUserID    string  `json:"user_id"`
	Email         string  `json:"email"`
	Role          string  `json:"role"`
	FirstName     string  `json:"first_name"`
	LastName      string  `json:"last_name"`
	Phone         *string `json:"phone,omitempty"`
	DateOfBirth   string  `json:"date_of_birth,omitempty"`
	Specialty     *string `json:"specialty,omitempty"`
	LicenseNumber *string `json:"license_number,omitempty"`
}

const (
	defaultFirstName = "New"
	defaultLastName  = "User"
)

// normalize applies signup defaults and validates the fields every step
// needs.
func (m *SignupMetadata) normalize() (uuid.UUID, *time.Time, error) {
	id, err := uuid.Parse(strings.TrimSpace(m.AuthUserID))
	if err != nil {
		return uuid.Nil, nil, apperr.Validation("user_id must be a UUID")
	}
	m.Email = strings.ToLower(strings.TrimSpace(m.Email))
	if m.Email == "" || !strings.Contains(m.Email, "@") {
		return uuid.Nil, nil, apperr.Validation("a valid email is required")
	}
	m.Role = strings.ToLower(strings.TrimSpace(m.Role))
	if m.Role == "" {
		m.Role = auth.RolePatient
	}
	if !auth.ValidRole(m.Role) {
		return uuid.Nil, nil, apperr.Validationf("unknown role %q", m.Role)
	}
	if m.FirstName = strings.TrimSpace(m.FirstName); m.FirstName == "" {
		m.FirstName = defaultFirstName
	}
	if m.LastName = strings.TrimSpace(m.LastName); m.LastName == "" {
		m.LastName = defaultLastName
	}
	var dob *time.Time
	if m.DateOfBirth != "" {
		t, err := time.Parse(time.DateOnly, m.DateOfBirth)
		if err != nil {
			return uuid.Nil, nil, apperr.Validation("date_of_birth must be YYYY-MM-DD")
		}
		dob = &t
	}
	return id, dob, nil
}

// Registrar materializes a profile, its role record and, for providers, a
// default schedule. Every step is get-or-create, so Register may be called
// again for the same user to finish a partial registration.
type Registrar struct {
	profiles  ProfileRepository
	patients  PatientRepository
	providers ProviderRepository
	admins    AdminRepository
	schedules ScheduleSeeder
	metrics   *metrics.Collector
	logger    zerolog.Logger
}

func NewRegistrar(profiles ProfileRepository, patients PatientRepository, providers ProviderRepository,
	admins AdminRepository, schedules ScheduleSeeder, m *metrics.Collector, logger zerolog.Logger) *Registrar {
	return &Registrar{
		profiles:  profiles,
		patients:  patients,
		providers: providers,
		admins:    admins,
		schedules: schedules,
		metrics:   m,
		logger:    logger,
	}
}

// Register runs the registration steps. The returned error is non-nil only
// for malformed metadata; step failures are reported in the result.
func (r *Registrar) Register(ctx context.Context, md SignupMetadata) (RegistrationResult, error) {
	authUserID, dob, err := md.normalize()
	if err != nil {
		return RegistrationResult{}, err
	}
	res := RegistrationResult{Role: md.Role}

	profile := &Profile{
		AuthUserID: authUserID,
		Email:      md.Email,
		Role:       md.Role,
		FirstName:  md.FirstName,
		LastName:   md.LastName,
	}
	if err := r.profiles.Create(ctx, profile); err != nil {
		res.Profile = r.record(StepProfile, failed(err), authUserID.String(), err)
		res.RoleRecord = r.record(StepRoleRecord, skipped(), authUserID.String(), nil)
		res.DefaultSchedule = r.record(StepDefaultSchedule, skipped(), authUserID.String(), nil)
		return res, nil
	}
	res.ProfileID = profile.ID
	// An existing profile keeps its original role.
	res.Role = profile.Role
	res.Profile = r.record(StepProfile, ok(), profile.ID.String(), nil)

	details := roleDetails{phone: md.Phone, dateOfBirth: dob, specialty: md.Specialty, licenseNumber: md.LicenseNumber}
	provider, err := r.ensureRoleRecord(ctx, profile, details)
	if err != nil {
		res.RoleRecord = r.record(StepRoleRecord, failed(err), profile.ID.String(), err)
		res.DefaultSchedule = r.record(StepDefaultSchedule, skipped(), profile.ID.String(), nil)
		return res, nil
	}
	res.RoleRecord = r.record(StepRoleRecord, ok(), profile.ID.String(), nil)

	if provider == nil {
		res.DefaultSchedule = r.record(StepDefaultSchedule, skipped(), profile.ID.String(), nil)
		return res, nil
	}
	n, err := r.ensureSchedule(ctx, provider)
	switch {
	case err != nil:
		res.DefaultSchedule = r.record(StepDefaultSchedule, failed(err), profile.ID.String(), err)
	case n == 0:
		res.DefaultSchedule = r.record(StepDefaultSchedule, skipped(), profile.ID.String(), nil)
	default:
		res.BlocksCreated = n
		res.DefaultSchedule = r.record(StepDefaultSchedule, ok(), profile.ID.String(), nil)
	}
	return res, nil
}

type roleDetails struct {
	phone         *string
	dateOfBirth   *time.Time
	specialty     *string
	licenseNumber *string
}

// ensureRoleRecord creates the row matching profile.Role. It returns the
// provider row for providers and nil otherwise.
func (r *Registrar) ensureRoleRecord(ctx context.Context, profile *Profile, d roleDetails) (*Provider, error) {
	switch profile.Role {
	case auth.RolePatient:
		return nil, r.patients.Create(ctx, &Patient{ProfileID: profile.ID, Phone: d.phone, DateOfBirth: d.dateOfBirth})
	case auth.RoleProvider:
		p := &Provider{ProfileID: profile.ID, Specialty: d.specialty, LicenseNumber: d.licenseNumber}
		if err := r.providers.Create(ctx, p); err != nil {
			return nil, err
		}
		return p, nil
	case auth.RoleAdmin:
		return nil, r.admins.Create(ctx, &Admin{ProfileID: profile.ID})
	default:
		return nil, apperr.Validationf("unknown role %q", profile.Role)
	}
}

// ensureSchedule seeds the default week when the provider has no blocks and
// returns how many were created.
func (r *Registrar) ensureSchedule(ctx context.Context, p *Provider) (int, error) {
	has, err := r.schedules.HasSchedule(ctx, p.ID)
	if err != nil {
		return 0, err
	}
	if has {
		return 0, nil
	}
	return r.schedules.SeedDefaultSchedule(ctx, p.ID, p.DefaultSlotMinutes)
}

func (r *Registrar) record(step string, res StepResult, subject string, err error) StepResult {
	r.metrics.RegistrationStep(step, string(res.Status))
	ev := r.logger.Info()
	if res.Status == StepFailed {
		ev = r.logger.Error().Err(err)
	}
	ev.Str("step", step).Str("status", string(res.Status)).Str("subject", subject).Msg("registration step")
	return res
}
