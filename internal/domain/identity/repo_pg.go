package identity

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/telecare/telecare/internal/platform/db"
)

// Creates are get-or-create: a conflicting insert on the natural key loads
// the existing row instead, so registration steps can be re-run safely.

// =========== Profile Repository ===========

type profileRepoPG struct{ pool *pgxpool.Pool }

func NewProfileRepoPG(pool *pgxpool.Pool) ProfileRepository { return &profileRepoPG{pool: pool} }

const profileCols = `id, auth_user_id, email, role, first_name, last_name, created_at, updated_at`

func scanProfile(row pgx.Row) (*Profile, error) {
	var p Profile
	if err := row.Scan(&p.ID, &p.AuthUserID, &p.Email, &p.Role, &p.FirstName, &p.LastName,
		&p.CreatedAt, &p.UpdatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrProfileNotFound
		}
		return nil, err
	}
	return &p, nil
}

func (r *profileRepoPG) Create(ctx context.Context, p *Profile) error {
	conn := db.Conn(ctx, r.pool)
	created, err := scanProfile(conn.QueryRow(ctx, `
		INSERT INTO profile (id, auth_user_id, email, role, first_name, last_name)
		VALUES ($1,$2,$3,$4,$5,$6)
		ON CONFLICT (auth_user_id) DO NOTHING
		RETURNING `+profileCols,
		uuid.New(), p.AuthUserID, p.Email, p.Role, p.FirstName, p.LastName))
	switch {
	case errors.Is(err, ErrProfileNotFound):
		created, err = r.GetByAuthUserID(ctx, p.AuthUserID)
		if err != nil {
			return fmt.Errorf("load existing profile: %w", err)
		}
	case db.IsUniqueViolation(err):
		return ErrEmailTaken
	case err != nil:
		return fmt.Errorf("insert profile: %w", err)
	}
	*p = *created
	return nil
}

func (r *profileRepoPG) GetByID(ctx context.Context, id uuid.UUID) (*Profile, error) {
	return scanProfile(db.Conn(ctx, r.pool).QueryRow(ctx, `SELECT `+profileCols+` FROM profile WHERE id = $1`, id))
}

func (r *profileRepoPG) GetByAuthUserID(ctx context.Context, authUserID uuid.UUID) (*Profile, error) {
	return scanProfile(db.Conn(ctx, r.pool).QueryRow(ctx,
		`SELECT `+profileCols+` FROM profile WHERE auth_user_id = $1`, authUserID))
}

func (r *profileRepoPG) UpdateNames(ctx context.Context, p *Profile) error {
	tag, err := db.Conn(ctx, r.pool).Exec(ctx, `
		UPDATE profile SET first_name = $2, last_name = $3, updated_at = NOW()
		WHERE id = $1`, p.ID, p.FirstName, p.LastName)
	if err != nil {
		return fmt.Errorf("update profile: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrProfileNotFound
	}
	return nil
}

func (r *profileRepoPG) ListMissingRoleRecord(ctx context.Context) ([]*Profile, error) {
	rows, err := db.Conn(ctx, r.pool).Query(ctx, `
		SELECT `+profileCols+` FROM profile pr
		WHERE (pr.role = 'patient' AND NOT EXISTS (SELECT 1 FROM patient WHERE profile_id = pr.id))
		   OR (pr.role = 'provider' AND NOT EXISTS (SELECT 1 FROM provider WHERE profile_id = pr.id))
		   OR (pr.role = 'admin' AND NOT EXISTS (SELECT 1 FROM admin WHERE profile_id = pr.id))
		ORDER BY pr.created_at`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []*Profile
	for rows.Next() {
		p, err := scanProfile(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, p)
	}
	return items, rows.Err()
}

// =========== Patient Repository ===========

type patientRepoPG struct{ pool *pgxpool.Pool }

func NewPatientRepoPG(pool *pgxpool.Pool) PatientRepository { return &patientRepoPG{pool: pool} }

const patientCols = `id, profile_id, phone, date_of_birth, intake_complete, created_at, updated_at`

func scanPatient(row pgx.Row) (*Patient, error) {
	var p Patient
	if err := row.Scan(&p.ID, &p.ProfileID, &p.Phone, &p.DateOfBirth, &p.IntakeComplete,
		&p.CreatedAt, &p.UpdatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrPatientNotFound
		}
		return nil, err
	}
	return &p, nil
}

func (r *patientRepoPG) Create(ctx context.Context, p *Patient) error {
	created, err := scanPatient(db.Conn(ctx, r.pool).QueryRow(ctx, `
		INSERT INTO patient (id, profile_id, phone, date_of_birth)
		VALUES ($1,$2,$3,$4)
		ON CONFLICT (profile_id) DO NOTHING
		RETURNING `+patientCols,
		uuid.New(), p.ProfileID, p.Phone, p.DateOfBirth))
	switch {
	case errors.Is(err, ErrPatientNotFound):
		created, err = r.GetByProfileID(ctx, p.ProfileID)
		if err != nil {
			return fmt.Errorf("load existing patient: %w", err)
		}
	case db.IsForeignKeyViolation(err):
		return ErrProfileNotFound
	case err != nil:
		return fmt.Errorf("insert patient: %w", err)
	}
	*p = *created
	return nil
}

func (r *patientRepoPG) GetByID(ctx context.Context, id uuid.UUID) (*Patient, error) {
	return scanPatient(db.Conn(ctx, r.pool).QueryRow(ctx, `SELECT `+patientCols+` FROM patient WHERE id = $1`, id))
}

func (r *patientRepoPG) GetByProfileID(ctx context.Context, profileID uuid.UUID) (*Patient, error) {
	return scanPatient(db.Conn(ctx, r.pool).QueryRow(ctx,
		`SELECT `+patientCols+` FROM patient WHERE profile_id = $1`, profileID))
}

func (r *patientRepoPG) Update(ctx context.Context, p *Patient) error {
	err := db.Conn(ctx, r.pool).QueryRow(ctx, `
		UPDATE patient SET phone = $2, date_of_birth = $3, intake_complete = $4, updated_at = NOW()
		WHERE id = $1
		RETURNING updated_at`,
		p.ID, p.Phone, p.DateOfBirth, p.IntakeComplete).Scan(&p.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return ErrPatientNotFound
	}
	return err
}

// =========== Provider Repository ===========

type providerRepoPG struct{ pool *pgxpool.Pool }

func NewProviderRepoPG(pool *pgxpool.Pool) ProviderRepository { return &providerRepoPG{pool: pool} }

const providerCols = `id, profile_id, specialty, license_number, active, default_slot_minutes, created_at, updated_at`

func scanProvider(row pgx.Row) (*Provider, error) {
	var p Provider
	if err := row.Scan(&p.ID, &p.ProfileID, &p.Specialty, &p.LicenseNumber, &p.Active,
		&p.DefaultSlotMinutes, &p.CreatedAt, &p.UpdatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrProviderNotFound
		}
		return nil, err
	}
	return &p, nil
}

func (r *providerRepoPG) Create(ctx context.Context, p *Provider) error {
	slot := p.DefaultSlotMinutes
	if slot <= 0 {
		slot = 30
	}
	created, err := scanProvider(db.Conn(ctx, r.pool).QueryRow(ctx, `
		INSERT INTO provider (id, profile_id, specialty, license_number, active, default_slot_minutes)
		VALUES ($1,$2,$3,$4,TRUE,$5)
		ON CONFLICT (profile_id) DO NOTHING
		RETURNING `+providerCols,
		uuid.New(), p.ProfileID, p.Specialty, p.LicenseNumber, slot))
	switch {
	case errors.Is(err, ErrProviderNotFound):
		created, err = r.GetByProfileID(ctx, p.ProfileID)
		if err != nil {
			return fmt.Errorf("load existing provider: %w", err)
		}
	case db.IsForeignKeyViolation(err):
		return ErrProfileNotFound
	case err != nil:
		return fmt.Errorf("insert provider: %w", err)
	}
	*p = *created
	return nil
}

func (r *providerRepoPG) GetByID(ctx context.Context, id uuid.UUID) (*Provider, error) {
	return scanProvider(db.Conn(ctx, r.pool).QueryRow(ctx, `SELECT `+providerCols+` FROM provider WHERE id = $1`, id))
}

func (r *providerRepoPG) GetByProfileID(ctx context.Context, profileID uuid.UUID) (*Provider, error) {
	return scanProvider(db.Conn(ctx, r.pool).QueryRow(ctx,
		`SELECT `+providerCols+` FROM provider WHERE profile_id = $1`, profileID))
}

func (r *providerRepoPG) Update(ctx context.Context, p *Provider) error {
	err := db.Conn(ctx, r.pool).QueryRow(ctx, `
		UPDATE provider SET specialty = $2, license_number = $3, active = $4,
			default_slot_minutes = $5, updated_at = NOW()
		WHERE id = $1
		RETURNING updated_at`,
		p.ID, p.Specialty, p.LicenseNumber, p.Active, p.DefaultSlotMinutes).Scan(&p.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return ErrProviderNotFound
	}
	return err
}

func (r *providerRepoPG) List(ctx context.Context, activeOnly bool, limit, offset int) ([]*ProviderListing, int, error) {
	where := ""
	if activeOnly {
		where = " WHERE pv.active"
	}
	conn := db.Conn(ctx, r.pool)

	var total int
	if err := conn.QueryRow(ctx, `SELECT COUNT(*) FROM provider pv`+where).Scan(&total); err != nil {
		return nil, 0, err
	}

	rows, err := conn.Query(ctx, `
		SELECT pv.id, pv.profile_id, pv.specialty, pv.license_number, pv.active, pv.default_slot_minutes,
			pv.created_at, pv.updated_at, pr.first_name, pr.last_name, pr.email
		FROM provider pv JOIN profile pr ON pr.id = pv.profile_id`+where+`
		ORDER BY pr.last_name, pr.first_name
		LIMIT $1 OFFSET $2`, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()
	items := []*ProviderListing{}
	for rows.Next() {
		var l ProviderListing
		if err := rows.Scan(&l.ID, &l.ProfileID, &l.Specialty, &l.LicenseNumber, &l.Active, &l.DefaultSlotMinutes,
			&l.CreatedAt, &l.UpdatedAt, &l.FirstName, &l.LastName, &l.Email); err != nil {
			return nil, 0, err
		}
		items = append(items, &l)
	}
	return items, total, rows.Err()
}

func (r *providerRepoPG) ListWithoutSchedule(ctx context.Context) ([]*Provider, error) {
	rows, err := db.Conn(ctx, r.pool).Query(ctx, `
		SELECT `+providerCols+` FROM provider pv
		WHERE NOT EXISTS (SELECT 1 FROM schedule_block sb WHERE sb.provider_id = pv.id)
		ORDER BY pv.created_at`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []*Provider
	for rows.Next() {
		p, err := scanProvider(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, p)
	}
	return items, rows.Err()
}

// =========== Admin Repository ===========

type adminRepoPG struct{ pool *pgxpool.Pool }

func NewAdminRepoPG(pool *pgxpool.Pool) AdminRepository { return &adminRepoPG{pool: pool} }

func (r *adminRepoPG) Create(ctx context.Context, a *Admin) error {
	err := db.Conn(ctx, r.pool).QueryRow(ctx, `
		INSERT INTO admin (id, profile_id) VALUES ($1,$2)
		ON CONFLICT (profile_id) DO UPDATE SET profile_id = EXCLUDED.profile_id
		RETURNING id, profile_id, created_at`,
		uuid.New(), a.ProfileID).Scan(&a.ID, &a.ProfileID, &a.CreatedAt)
	if db.IsForeignKeyViolation(err) {
		return ErrProfileNotFound
	}
	if err != nil {
		return fmt.Errorf("insert admin: %w", err)
	}
	return nil
}

func (r *adminRepoPG) GetByProfileID(ctx context.Context, profileID uuid.UUID) (*Admin, error) {
	var a Admin
	err := db.Conn(ctx, r.pool).QueryRow(ctx,
		`SELECT id, profile_id, created_at FROM admin WHERE profile_id = $1`, profileID).
		Scan(&a.ID, &a.ProfileID, &a.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrAdminNotFound
	}
	if err != nil {
		return nil, err
	}
	return &a, nil
}
