package identity

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/telecare/telecare/internal/platform/apperr"
	"github.com/telecare/telecare/internal/platform/auth"
)

// maxSlotMinutes bounds a provider's default appointment length.
const maxSlotMinutes = 480

// CareTeam reports whether a provider currently treats a patient.
type CareTeam interface {
	IsAssigned(ctx context.Context, patientID, providerID uuid.UUID) (bool, error)
}

type Service struct {
	profiles  ProfileRepository
	patients  PatientRepository
	providers ProviderRepository
	admins    AdminRepository
	careTeam  CareTeam
	logger    zerolog.Logger
}

func NewService(profiles ProfileRepository, patients PatientRepository, providers ProviderRepository,
	admins AdminRepository, careTeam CareTeam, logger zerolog.Logger) *Service {
	return &Service{
		profiles:  profiles,
		patients:  patients,
		providers: providers,
		admins:    admins,
		careTeam:  careTeam,
		logger:    logger,
	}
}

// -- Principal --

// ResolvePrincipal maps an auth user to its profile and role record.
func (s *Service) ResolvePrincipal(ctx context.Context, authUserID string) (auth.Principal, error) {
	p := auth.Principal{AuthUserID: authUserID}
	id, err := uuid.Parse(authUserID)
	if err != nil {
		return p, ErrProfileNotFound
	}
	profile, err := s.profiles.GetByAuthUserID(ctx, id)
	if err != nil {
		return p, err
	}
	p.ProfileID = profile.ID
	p.Role = profile.Role
	switch profile.Role {
	case auth.RolePatient:
		if pt, err := s.patients.GetByProfileID(ctx, profile.ID); err == nil {
			p.PatientID = pt.ID
		} else if !errors.Is(err, ErrPatientNotFound) {
			return p, err
		}
	case auth.RoleProvider:
		if pv, err := s.providers.GetByProfileID(ctx, profile.ID); err == nil {
			p.ProviderID = pv.ID
		} else if !errors.Is(err, ErrProviderNotFound) {
			return p, err
		}
	}
	return p, nil
}

// -- Profile --

func (s *Service) Me(ctx context.Context, caller auth.Principal) (*Me, error) {
	if caller.ProfileID == uuid.Nil {
		return nil, ErrProfileNotFound
	}
	profile, err := s.profiles.GetByID(ctx, caller.ProfileID)
	if err != nil {
		return nil, err
	}
	me := &Me{Profile: profile}
	switch profile.Role {
	case auth.RolePatient:
		me.Patient, err = s.patients.GetByProfileID(ctx, profile.ID)
		if errors.Is(err, ErrPatientNotFound) {
			err = nil
		}
	case auth.RoleProvider:
		me.Provider, err = s.providers.GetByProfileID(ctx, profile.ID)
		if errors.Is(err, ErrProviderNotFound) {
			err = nil
		}
	case auth.RoleAdmin:
		me.Admin, err = s.admins.GetByProfileID(ctx, profile.ID)
		if errors.Is(err, ErrAdminNotFound) {
			err = nil
		}
	}
	if err != nil {
		return nil, err
	}
	return me, nil
}

// GetProfile returns the caller's own profile, any provider's profile, or
// any profile for admins.
func (s *Service) GetProfile(ctx context.Context, caller auth.Principal, id uuid.UUID) (*Profile, error) {
	p, err := s.profiles.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if caller.IsAdmin() || caller.ProfileID == id || p.Role == auth.RoleProvider {
		return p, nil
	}
	return nil, ErrForbidden
}

// UpdateProfileNames changes first and last name. The role is immutable.
func (s *Service) UpdateProfileNames(ctx context.Context, caller auth.Principal, id uuid.UUID, firstName, lastName string) (*Profile, error) {
	if !caller.IsAdmin() && caller.ProfileID != id {
		return nil, ErrForbidden
	}
	firstName, lastName = strings.TrimSpace(firstName), strings.TrimSpace(lastName)
	if firstName == "" || lastName == "" {
		return nil, apperr.Validation("first_name and last_name are required")
	}
	p, err := s.profiles.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	p.FirstName, p.LastName = firstName, lastName
	if err := s.profiles.UpdateNames(ctx, p); err != nil {
		return nil, err
	}
	return p, nil
}

// -- Provider --

// ListProviders returns providers with their names. Only admins see
// inactive providers.
func (s *Service) ListProviders(ctx context.Context, caller auth.Principal, includeInactive bool, limit, offset int) ([]*ProviderListing, int, error) {
	activeOnly := !(includeInactive && caller.IsAdmin())
	return s.providers.List(ctx, activeOnly, limit, offset)
}

func (s *Service) GetProvider(ctx context.Context, id uuid.UUID) (*Provider, error) {
	return s.providers.GetByID(ctx, id)
}

type ProviderUpdate struct {
	Specialty          *string `json:"specialty"`
	LicenseNumber      *string `json:"license_number"`
	Active             *bool   `json:"active"`
	DefaultSlotMinutes *int    `json:"default_slot_minutes"`
}

func (s *Service) UpdateProvider(ctx context.Context, caller auth.Principal, id uuid.UUID, u ProviderUpdate) (*Provider, error) {
	if !caller.IsAdmin() {
		return nil, ErrForbidden
	}
	p, err := s.providers.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if u.Specialty != nil {
		p.Specialty = u.Specialty
	}
	if u.LicenseNumber != nil {
		p.LicenseNumber = u.LicenseNumber
	}
	if u.Active != nil {
		p.Active = *u.Active
	}
	if u.DefaultSlotMinutes != nil {
		if *u.DefaultSlotMinutes <= 0 || *u.DefaultSlotMinutes > maxSlotMinutes {
			return nil, apperr.Validationf("default_slot_minutes must be between 1 and %d", maxSlotMinutes)
		}
		p.DefaultSlotMinutes = *u.DefaultSlotMinutes
	}
	if err := s.providers.Update(ctx, p); err != nil {
		return nil, err
	}
	s.logger.Info().Str("provider_id", id.String()).Bool("active", p.Active).Msg("provider updated")
	return p, nil
}

// -- Patient --

// GetPatient is visible to the patient, admins, and providers the patient
// is assigned to.
func (s *Service) GetPatient(ctx context.Context, caller auth.Principal, id uuid.UUID) (*Patient, error) {
	p, err := s.patients.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if caller.IsAdmin() || caller.IsPatient(id) {
		return p, nil
	}
	if caller.Role == auth.RoleProvider && caller.ProviderID != uuid.Nil {
		ok, err := s.careTeam.IsAssigned(ctx, id, caller.ProviderID)
		if err != nil {
			return nil, err
		}
		if ok {
			return p, nil
		}
	}
	return nil, ErrForbidden
}

type PatientUpdate struct {
	Phone          *string `json:"phone"`
	DateOfBirth    *string `json:"date_of_birth"`
	IntakeComplete *bool   `json:"intake_complete"`
}

func (s *Service) UpdatePatient(ctx context.Context, caller auth.Principal, id uuid.UUID, u PatientUpdate) (*Patient, error) {
	if !caller.IsAdmin() && !caller.IsPatient(id) {
		return nil, ErrForbidden
	}
	p, err := s.patients.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if u.Phone != nil {
		p.Phone = u.Phone
	}
	if u.DateOfBirth != nil {
		t, err := time.Parse(time.DateOnly, *u.DateOfBirth)
		if err != nil {
			return nil, apperr.Validation("date_of_birth must be YYYY-MM-DD")
		}
		p.DateOfBirth = &t
	}
	if u.IntakeComplete != nil {
		p.IntakeComplete = *u.IntakeComplete
	}
	if err := s.patients.Update(ctx, p); err != nil {
		return nil, err
	}
	return p, nil
}
