package medication

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

type repoPG struct{ pool *pgxpool.Pool }

func NewRepoPG(pool *pgxpool.Pool) Repository { return &repoPG{pool: pool} }

const cols = `id, patient_id, provider_id, treatment_type, medication_name, dosage, quantity,
	status, decision_note, decided_by, decided_at, fulfilled_at, tracking_number, created_at, updated_at`

func scanOrder(row pgx.Row) (*Order, error) {
	var o Order
	var tt string
	if err := row.Scan(&o.ID, &o.PatientID, &o.ProviderID, &tt, &o.MedicationName, &o.Dosage, &o.Quantity,
		&o.Status, &o.DecisionNote, &o.DecidedBy, &o.DecidedAt, &o.FulfilledAt, &o.TrackingNumber,
		&o.CreatedAt, &o.UpdatedAt); err != nil {
		return nil, err
	}
	o.TreatmentType = treatment.Type(tt)
	return &o, nil
}

func (r *repoPG) Create(ctx context.Context, o *Order) error {
	o.ID = uuid.New()
	o.Status = StatusRequested
	err := db.Conn(ctx, r.pool).QueryRow(ctx, `
		INSERT INTO medication_order (id, patient_id, treatment_type, medication_name, dosage, quantity, status)
		VALUES ($1,$2,$3,$4,$5,$6,$7)
		RETURNING created_at, updated_at`,
		o.ID, o.PatientID, string(o.TreatmentType), o.MedicationName, o.Dosage, o.Quantity, o.Status,
	).Scan(&o.CreatedAt, &o.UpdatedAt)
	switch {
	case err == nil:
		return nil
	case db.IsForeignKeyViolation(err):
		return ErrPatientNotFound
	default:
		return fmt.Errorf("insert medication order: %w", err)
	}
}

func (r *repoPG) GetByID(ctx context.Context, id uuid.UUID) (*Order, error) {
	o, err := scanOrder(db.Conn(ctx, r.pool).QueryRow(ctx, `SELECT `+cols+` FROM medication_order WHERE id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrOrderNotFound
	}
	return o, err
}

func (r *repoPG) Transition(ctx context.Context, id uuid.UUID, from, to string, c Change) (*Order, error) {
	q := db.Conn(ctx, r.pool)
	o, err := scanOrder(q.QueryRow(ctx, `
		UPDATE medication_order SET
			status = $3,
			provider_id = COALESCE($4, provider_id),
			decision_note = COALESCE($5, decision_note),
			decided_by = COALESCE($6, decided_by),
			decided_at = CASE WHEN $7::boolean THEN NOW() ELSE decided_at END,
			fulfilled_at = CASE WHEN $8::boolean THEN NOW() ELSE fulfilled_at END,
			tracking_number = COALESCE($9, tracking_number),
			updated_at = NOW()
		WHERE id = $1 AND status = $2
		RETURNING `+cols,
		id, from, to, c.ProviderID, c.DecisionNote, c.DecidedBy, c.Decided, c.Fulfilled, c.TrackingNumber))
	if errors.Is(err, pgx.ErrNoRows) {
		var exists bool
		if err := q.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM medication_order WHERE id = $1)`, id).Scan(&exists); err != nil {
			return nil, err
		}
		if !exists {
			return nil, ErrOrderNotFound
		}
		return nil, ErrStatusChanged
	}
	if err != nil {
		return nil, fmt.Errorf("update medication order: %w", err)
	}
	return o, nil
}

func (r *repoPG) Search(ctx context.Context, f OrderFilter, limit, offset int) ([]*Order, int, error) {
	where := ` WHERE 1=1`
	var args []interface{}
	idx := 1

	if f.PatientID != nil {
		where += fmt.Sprintf(` AND patient_id = $%d`, idx)
		args = append(args, *f.PatientID)
		idx++
	}
	if f.ProviderID != nil {
		where += fmt.Sprintf(` AND provider_id = $%d`, idx)
		args = append(args, *f.ProviderID)
		idx++
	}
	if f.AssignedTo != nil {
		where += fmt.Sprintf(` AND EXISTS (SELECT 1 FROM assignment a
			WHERE a.patient_id = medication_order.patient_id AND a.provider_id = $%d
			AND a.treatment_type = medication_order.treatment_type AND a.active)`, idx)
		args = append(args, *f.AssignedTo)
		idx++
	}
	if f.Status != "" {
		where += fmt.Sprintf(` AND status = $%d`, idx)
		args = append(args, f.Status)
		idx++
	}
	if f.TreatmentType != "" {
		where += fmt.Sprintf(` AND treatment_type = $%d`, idx)
		args = append(args, f.TreatmentType)
		idx++
	}

	q := db.Conn(ctx, r.pool)
	var total int
	if err := q.QueryRow(ctx, `SELECT COUNT(*) FROM medication_order`+where, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	query := `SELECT ` + cols + ` FROM medication_order` + where +
		fmt.Sprintf(` ORDER BY created_at DESC LIMIT $%d OFFSET $%d`, idx, idx+1)
	args = append(args, limit, offset)
	rows, err := q.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()
	var items []*Order
	for rows.Next() {
		o, err := scanOrder(rows)
		if err != nil {
			return nil, 0, err
		}
		items = append(items, o)
	}
	return items, total, rows.Err()
}
