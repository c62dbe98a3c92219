package assignment

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/telecare/telecare/internal/domain/treatment"
	"github.com/telecare/telecare/internal/platform/db"
)

// =========== Assignment Repository ===========

type repoPG struct{ pool *pgxpool.Pool }

func NewRepoPG(pool *pgxpool.Pool) Repository { return &repoPG{pool: pool} }

const cols = `id, patient_id, provider_id, treatment_type, is_primary, active, assigned_date, created_at, updated_at`

func scanAssignment(row pgx.Row) (*Assignment, error) {
	var a Assignment
	var tt string
	if err := row.Scan(&a.ID, &a.PatientID, &a.ProviderID, &tt, &a.IsPrimary, &a.Active,
		&a.AssignedDate, &a.CreatedAt, &a.UpdatedAt); err != nil {
		return nil, err
	}
	a.TreatmentType = treatment.Type(tt)
	return &a, nil
}

func (r *repoPG) Create(ctx context.Context, a *Assignment) error {
	a.ID = uuid.New()
	a.Active = true
	err := db.Conn(ctx, r.pool).QueryRow(ctx, `
		INSERT INTO assignment (id, patient_id, provider_id, treatment_type, is_primary, active)
		VALUES ($1,$2,$3,$4,$5,TRUE)
		RETURNING assigned_date, created_at, updated_at`,
		a.ID, a.PatientID, a.ProviderID, string(a.TreatmentType), a.IsPrimary,
	).Scan(&a.AssignedDate, &a.CreatedAt, &a.UpdatedAt)
	switch {
	case err == nil:
		return nil
	case db.IsUniqueViolation(err):
		if db.ConstraintName(err) == "assignment_primary_uniq" {
			return ErrPrimaryConflict
		}
		return ErrDuplicateAssignment
	case db.IsForeignKeyViolation(err):
		if db.ConstraintName(err) == "assignment_patient_id_fkey" {
			return ErrPatientNotFound
		}
		return ErrProviderNotFound
	default:
		return fmt.Errorf("insert assignment: %w", err)
	}
}

func (r *repoPG) GetByID(ctx context.Context, id uuid.UUID) (*Assignment, error) {
	a, err := scanAssignment(db.Conn(ctx, r.pool).QueryRow(ctx, `SELECT `+cols+` FROM assignment WHERE id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrAssignmentNotFound
	}
	return a, err
}

func (r *repoPG) DemotePrimaries(ctx context.Context, patientID uuid.UUID, treatmentType string, keep uuid.UUID) (int64, error) {
	tag, err := db.Conn(ctx, r.pool).Exec(ctx, `
		UPDATE assignment SET is_primary = FALSE, updated_at = NOW()
		WHERE patient_id = $1 AND treatment_type = $2 AND is_primary AND active AND id <> $3`,
		patientID, treatmentType, keep)
	if err != nil {
		return 0, fmt.Errorf("demote primary assignments: %w", err)
	}
	return tag.RowsAffected(), nil
}

func (r *repoPG) SetPrimary(ctx context.Context, id uuid.UUID) (*Assignment, error) {
	a, err := scanAssignment(db.Conn(ctx, r.pool).QueryRow(ctx, `
		UPDATE assignment SET is_primary = TRUE, updated_at = NOW()
		WHERE id = $1 AND active
		RETURNING `+cols, id))
	switch {
	case errors.Is(err, pgx.ErrNoRows):
		return nil, ErrInactiveAssignment
	case db.IsUniqueViolation(err):
		return nil, ErrPrimaryConflict
	}
	return a, err
}

func (r *repoPG) Deactivate(ctx context.Context, id uuid.UUID) (*Assignment, error) {
	a, err := scanAssignment(db.Conn(ctx, r.pool).QueryRow(ctx, `
		UPDATE assignment SET active = FALSE, is_primary = FALSE, updated_at = NOW()
		WHERE id = $1
		RETURNING `+cols, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrAssignmentNotFound
	}
	return a, err
}

func (r *repoPG) list(ctx context.Context, column string, id uuid.UUID, activeOnly bool) ([]*Assignment, error) {
	query := `SELECT ` + cols + ` FROM assignment WHERE ` + column + ` = $1`
	if activeOnly {
		query += ` AND active`
	}
	query += ` ORDER BY treatment_type, is_primary DESC, assigned_date`
	rows, err := db.Conn(ctx, r.pool).Query(ctx, query, id)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []*Assignment
	for rows.Next() {
		a, err := scanAssignment(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, a)
	}
	return items, rows.Err()
}

func (r *repoPG) ListByPatient(ctx context.Context, patientID uuid.UUID, activeOnly bool) ([]*Assignment, error) {
	return r.list(ctx, "patient_id", patientID, activeOnly)
}

func (r *repoPG) ListByProvider(ctx context.Context, providerID uuid.UUID, activeOnly bool) ([]*Assignment, error) {
	return r.list(ctx, "provider_id", providerID, activeOnly)
}

func (r *repoPG) HasActive(ctx context.Context, patientID, providerID uuid.UUID, treatmentType string) (bool, error) {
	var ok bool
	err := db.Conn(ctx, r.pool).QueryRow(ctx, `
		SELECT EXISTS (SELECT 1 FROM assignment
			WHERE patient_id = $1 AND provider_id = $2 AND treatment_type = $3 AND active)`,
		patientID, providerID, treatmentType).Scan(&ok)
	return ok, err
}

// =========== Directory ===========

type directoryPG struct{ pool *pgxpool.Pool }

func NewDirectoryPG(pool *pgxpool.Pool) Directory { return &directoryPG{pool: pool} }

func (r *directoryPG) exists(ctx context.Context, table string, id uuid.UUID) (bool, error) {
	var ok bool
	err := db.Conn(ctx, r.pool).QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM `+table+` WHERE id = $1)`, id).Scan(&ok)
	return ok, err
}

func (r *directoryPG) PatientExists(ctx context.Context, id uuid.UUID) (bool, error) {
	return r.exists(ctx, "patient", id)
}

func (r *directoryPG) ProviderExists(ctx context.Context, id uuid.UUID) (bool, error) {
	return r.exists(ctx, "provider", id)
}

func (r *directoryPG) ProviderIDForProfile(ctx context.Context, profileID uuid.UUID) (uuid.UUID, error) {
	var id uuid.UUID
	err := db.Conn(ctx, r.pool).QueryRow(ctx, `SELECT id FROM provider WHERE profile_id = $1`, profileID).Scan(&id)
	if errors.Is(err, pgx.ErrNoRows) {
		return uuid.Nil, ErrProviderNotFound
	}
	return id, err
}

func (r *directoryPG) AssignedPatients(ctx context.Context, providerID uuid.UUID) ([]*AssignedPatient, error) {
	rows, err := db.Conn(ctx, r.pool).Query(ctx, `
		SELECT a.id, pt.id, pr.id, pr.first_name, pr.last_name, pr.email, pt.phone, pt.intake_complete,
			a.treatment_type, a.is_primary, a.assigned_date
		FROM assignment a
		JOIN patient pt ON pt.id = a.patient_id
		JOIN profile pr ON pr.id = pt.profile_id
		WHERE a.provider_id = $1 AND a.active
		ORDER BY pr.last_name, pr.first_name, a.treatment_type`, providerID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	items := []*AssignedPatient{}
	for rows.Next() {
		var p AssignedPatient
		var tt string
		if err := rows.Scan(&p.AssignmentID, &p.PatientID, &p.ProfileID, &p.FirstName, &p.LastName, &p.Email,
			&p.Phone, &p.IntakeComplete, &tt, &p.IsPrimary, &p.AssignedDate); err != nil {
			return nil, err
		}
		p.TreatmentType = treatment.Type(tt)
		items = append(items, &p)
	}
	return items, rows.Err()
}

func (r *directoryPG) AllPatients(ctx context.Context, limit, offset int) ([]*PatientSummary, int, error) {
	q := db.Conn(ctx, r.pool)
	var total int
	if err := q.QueryRow(ctx, `SELECT COUNT(*) FROM patient`).Scan(&total); err != nil {
		return nil, 0, err
	}

	rows, err := q.Query(ctx, `
		SELECT pt.id, pr.id, pr.first_name, pr.last_name, pr.email, pt.intake_complete
		FROM patient pt
		JOIN profile pr ON pr.id = pt.profile_id
		ORDER BY pr.last_name, pr.first_name, pt.id
		LIMIT $1 OFFSET $2`, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	items := []*PatientSummary{}
	byID := make(map[uuid.UUID]*PatientSummary)
	var ids []string
	for rows.Next() {
		s := &PatientSummary{Providers: []ProviderLink{}}
		if err := rows.Scan(&s.PatientID, &s.ProfileID, &s.FirstName, &s.LastName, &s.Email, &s.IntakeComplete); err != nil {
			rows.Close()
			return nil, 0, err
		}
		items = append(items, s)
		byID[s.PatientID] = s
		ids = append(ids, s.PatientID.String())
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, 0, err
	}
	if len(ids) == 0 {
		return items, total, nil
	}

	links, err := q.Query(ctx, `
		SELECT a.patient_id, a.id, a.provider_id, pr.first_name || ' ' || pr.last_name,
			a.treatment_type, a.is_primary
		FROM assignment a
		JOIN provider pv ON pv.id = a.provider_id
		JOIN profile pr ON pr.id = pv.profile_id
		WHERE a.patient_id = ANY($1::uuid[]) AND a.active
		ORDER BY a.treatment_type, a.is_primary DESC`, ids)
	if err != nil {
		return nil, 0, err
	}
	defer links.Close()
	for links.Next() {
		var patientID uuid.UUID
		var l ProviderLink
		var tt string
		if err := links.Scan(&patientID, &l.AssignmentID, &l.ProviderID, &l.ProviderName, &tt, &l.IsPrimary); err != nil {
			return nil, 0, err
		}
		l.TreatmentType = treatment.Type(tt)
		if s, ok := byID[patientID]; ok {
			s.Providers = append(s.Providers, l)
		}
	}
	return items, total, links.Err()
}
