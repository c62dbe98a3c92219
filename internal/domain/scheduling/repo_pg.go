package scheduling

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/telecare/telecare/internal/domain/treatment"
	"github.com/telecare/telecare/internal/platform/db"
)

// =========== Directory ===========

type directoryPG struct{ pool *pgxpool.Pool }

func NewDirectoryPG(pool *pgxpool.Pool) Directory { return &directoryPG{pool: pool} }

func (r *directoryPG) GetProvider(ctx context.Context, id uuid.UUID) (*ProviderRef, error) {
	return r.scanProvider(db.Conn(ctx, r.pool).QueryRow(ctx,
		`SELECT id, active, default_slot_minutes FROM provider WHERE id = $1`, id))
}

func (r *directoryPG) LockProvider(ctx context.Context, id uuid.UUID) (*ProviderRef, error) {
	return r.scanProvider(db.Conn(ctx, r.pool).QueryRow(ctx,
		`SELECT id, active, default_slot_minutes FROM provider WHERE id = $1 FOR UPDATE`, id))
}

func (r *directoryPG) scanProvider(row pgx.Row) (*ProviderRef, error) {
	var p ProviderRef
	if err := row.Scan(&p.ID, &p.Active, &p.DefaultSlotMinutes); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrProviderNotFound
		}
		return nil, fmt.Errorf("scan provider: %w", err)
	}
	return &p, nil
}

func (r *directoryPG) PatientExists(ctx context.Context, id uuid.UUID) (bool, error) {
	var ok bool
	err := db.Conn(ctx, r.pool).QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM patient WHERE id = $1)`, id).Scan(&ok)
	if err != nil {
		return false, fmt.Errorf("check patient: %w", err)
	}
	return ok, nil
}

// =========== Schedule Block Repository ===========

type blockRepoPG struct{ pool *pgxpool.Pool }

func NewBlockRepoPG(pool *pgxpool.Pool) BlockRepository { return &blockRepoPG{pool: pool} }

const blockCols = `id, provider_id, day_of_week, start_time, end_time, slot_duration_minutes,
	treatment_types, active, created_at, updated_at`

func (r *blockRepoPG) scanBlock(row pgx.Row) (*ScheduleBlock, error) {
	var b ScheduleBlock
	var start, end pgtype.Time
	var types []string
	err := row.Scan(&b.ID, &b.ProviderID, &b.DayOfWeek, &start, &end, &b.SlotDurationMinutes,
		&types, &b.Active, &b.CreatedAt, &b.UpdatedAt)
	if err != nil {
		return nil, err
	}
	b.StartTime = clockFromPG(start)
	b.EndTime = clockFromPG(end)
	b.TreatmentTypes = treatment.FromStrings(types)
	return &b, nil
}

func (r *blockRepoPG) Create(ctx context.Context, b *ScheduleBlock) error {
	b.ID = uuid.New()
	err := db.Conn(ctx, r.pool).QueryRow(ctx, `
		INSERT INTO schedule_block (id, provider_id, day_of_week, start_time, end_time,
			slot_duration_minutes, treatment_types, active)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
		RETURNING created_at, updated_at`,
		b.ID, b.ProviderID, b.DayOfWeek, b.StartTime.PG(), b.EndTime.PG(),
		b.SlotDurationMinutes, treatment.Strings(b.TreatmentTypes), b.Active,
	).Scan(&b.CreatedAt, &b.UpdatedAt)
	if db.IsForeignKeyViolation(err) {
		return ErrProviderNotFound
	}
	return err
}

func (r *blockRepoPG) GetByID(ctx context.Context, id uuid.UUID) (*ScheduleBlock, error) {
	b, err := r.scanBlock(db.Conn(ctx, r.pool).QueryRow(ctx, `SELECT `+blockCols+` FROM schedule_block WHERE id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrBlockNotFound
	}
	return b, err
}

func (r *blockRepoPG) Update(ctx context.Context, b *ScheduleBlock) error {
	err := db.Conn(ctx, r.pool).QueryRow(ctx, `
		UPDATE schedule_block SET day_of_week=$2, start_time=$3, end_time=$4,
			slot_duration_minutes=$5, treatment_types=$6, active=$7, updated_at=NOW()
		WHERE id = $1
		RETURNING updated_at`,
		b.ID, b.DayOfWeek, b.StartTime.PG(), b.EndTime.PG(),
		b.SlotDurationMinutes, treatment.Strings(b.TreatmentTypes), b.Active,
	).Scan(&b.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return ErrBlockNotFound
	}
	return err
}

func (r *blockRepoPG) Delete(ctx context.Context, id uuid.UUID) error {
	tag, err := db.Conn(ctx, r.pool).Exec(ctx, `DELETE FROM schedule_block WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrBlockNotFound
	}
	return nil
}

func (r *blockRepoPG) ListByProvider(ctx context.Context, providerID uuid.UUID, activeOnly bool) ([]*ScheduleBlock, error) {
	query := `SELECT ` + blockCols + ` FROM schedule_block WHERE provider_id = $1`
	if activeOnly {
		query += ` AND active`
	}
	query += ` ORDER BY day_of_week, start_time`
	rows, err := db.Conn(ctx, r.pool).Query(ctx, query, providerID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []*ScheduleBlock
	for rows.Next() {
		b, err := r.scanBlock(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, b)
	}
	return items, rows.Err()
}

func (r *blockRepoPG) CountByProvider(ctx context.Context, providerID uuid.UUID) (int, error) {
	var n int
	err := db.Conn(ctx, r.pool).QueryRow(ctx, `SELECT COUNT(*) FROM schedule_block WHERE provider_id = $1`, providerID).Scan(&n)
	return n, err
}

// =========== Availability Override Repository ===========

type overrideRepoPG struct{ pool *pgxpool.Pool }

func NewOverrideRepoPG(pool *pgxpool.Pool) OverrideRepository { return &overrideRepoPG{pool: pool} }

const overrideCols = `id, provider_id, override_date, start_time, end_time, available,
	treatment_types, reason, created_at`

func (r *overrideRepoPG) scanOverride(row pgx.Row) (*AvailabilityOverride, error) {
	var o AvailabilityOverride
	var date time.Time
	var start, end pgtype.Time
	var types []string
	err := row.Scan(&o.ID, &o.ProviderID, &date, &start, &end, &o.Available,
		&types, &o.Reason, &o.CreatedAt)
	if err != nil {
		return nil, err
	}
	o.Date = dateFromPG(date)
	o.StartTime = clockPtrFromPG(start)
	o.EndTime = clockPtrFromPG(end)
	o.TreatmentTypes = treatment.FromStrings(types)
	return &o, nil
}

func (r *overrideRepoPG) Create(ctx context.Context, o *AvailabilityOverride) error {
	o.ID = uuid.New()
	var types []string
	if o.TreatmentTypes != nil {
		types = treatment.Strings(o.TreatmentTypes)
	}
	err := db.Conn(ctx, r.pool).QueryRow(ctx, `
		INSERT INTO availability_override (id, provider_id, override_date, start_time, end_time,
			available, treatment_types, reason)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
		RETURNING created_at`,
		o.ID, o.ProviderID, o.Date.Time, clockPtrPG(o.StartTime), clockPtrPG(o.EndTime),
		o.Available, types, o.Reason,
	).Scan(&o.CreatedAt)
	if db.IsForeignKeyViolation(err) {
		return ErrProviderNotFound
	}
	return err
}

func (r *overrideRepoPG) GetByID(ctx context.Context, id uuid.UUID) (*AvailabilityOverride, error) {
	o, err := r.scanOverride(db.Conn(ctx, r.pool).QueryRow(ctx, `SELECT `+overrideCols+` FROM availability_override WHERE id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrOverrideNotFound
	}
	return o, err
}

func (r *overrideRepoPG) Delete(ctx context.Context, id uuid.UUID) error {
	tag, err := db.Conn(ctx, r.pool).Exec(ctx, `DELETE FROM availability_override WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrOverrideNotFound
	}
	return nil
}

func (r *overrideRepoPG) ListByProvider(ctx context.Context, providerID uuid.UUID, from, to Date) ([]*AvailabilityOverride, error) {
	rows, err := db.Conn(ctx, r.pool).Query(ctx, `SELECT `+overrideCols+` FROM availability_override
		WHERE provider_id = $1 AND override_date BETWEEN $2 AND $3
		ORDER BY override_date, start_time NULLS FIRST`, providerID, from.Time, to.Time)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []*AvailabilityOverride
	for rows.Next() {
		o, err := r.scanOverride(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, o)
	}
	return items, rows.Err()
}

// =========== Appointment Repository ===========

type appointmentRepoPG struct{ pool *pgxpool.Pool }

func NewAppointmentRepoPG(pool *pgxpool.Pool) AppointmentRepository {
	return &appointmentRepoPG{pool: pool}
}

const apptCols = `id, patient_id, provider_id, appointment_date, start_time, duration_minutes,
	treatment_type, status, cancellation_reason, created_at, updated_at`

func (r *appointmentRepoPG) scanAppointment(row pgx.Row) (*Appointment, error) {
	var a Appointment
	var date time.Time
	var start pgtype.Time
	var tt string
	err := row.Scan(&a.ID, &a.PatientID, &a.ProviderID, &date, &start, &a.DurationMinutes,
		&tt, &a.Status, &a.CancellationReason, &a.CreatedAt, &a.UpdatedAt)
	if err != nil {
		return nil, err
	}
	a.Date = dateFromPG(date)
	a.StartTime = clockFromPG(start)
	a.TreatmentType = treatment.Type(tt)
	return &a, nil
}

func (r *appointmentRepoPG) Create(ctx context.Context, a *Appointment) error {
	a.ID = uuid.New()
	if a.Status == "" {
		a.Status = StatusScheduled
	}
	err := db.Conn(ctx, r.pool).QueryRow(ctx, `
		INSERT INTO appointment (id, patient_id, provider_id, appointment_date, start_time,
			duration_minutes, treatment_type, status)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
		RETURNING created_at, updated_at`,
		a.ID, a.PatientID, a.ProviderID, a.Date.Time, a.StartTime.PG(),
		a.DurationMinutes, string(a.TreatmentType), a.Status,
	).Scan(&a.CreatedAt, &a.UpdatedAt)
	switch {
	case err == nil:
		return nil
	case db.IsUniqueViolation(err):
		return ErrSlotUnavailable
	case db.IsForeignKeyViolation(err):
		if strings.Contains(db.ConstraintName(err), "patient") {
			return ErrPatientNotFound
		}
		return ErrProviderNotFound
	default:
		return fmt.Errorf("insert appointment: %w", err)
	}
}

func (r *appointmentRepoPG) GetByID(ctx context.Context, id uuid.UUID) (*Appointment, error) {
	a, err := r.scanAppointment(db.Conn(ctx, r.pool).QueryRow(ctx, `SELECT `+apptCols+` FROM appointment WHERE id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrAppointmentNotFound
	}
	return a, err
}

func (r *appointmentRepoPG) UpdateStatus(ctx context.Context, id uuid.UUID, from, to string, reason *string) (*Appointment, error) {
	q := db.Conn(ctx, r.pool)
	a, err := r.scanAppointment(q.QueryRow(ctx, `
		UPDATE appointment SET status = $3,
			cancellation_reason = COALESCE($4, cancellation_reason),
			updated_at = NOW()
		WHERE id = $1 AND status = $2
		RETURNING `+apptCols, id, from, to, reason))
	if err == nil {
		return a, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("update appointment status: %w", err)
	}
	// Either the row is gone or someone moved it first.
	var exists bool
	if err := q.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM appointment WHERE id = $1)`, id).Scan(&exists); err != nil {
		return nil, fmt.Errorf("check appointment: %w", err)
	}
	if !exists {
		return nil, ErrAppointmentNotFound
	}
	return nil, ErrInvalidTransition
}

func (r *appointmentRepoPG) ListLive(ctx context.Context, providerID uuid.UUID, from, to Date) ([]*Appointment, error) {
	rows, err := db.Conn(ctx, r.pool).Query(ctx, `SELECT `+apptCols+` FROM appointment
		WHERE provider_id = $1 AND appointment_date BETWEEN $2 AND $3 AND status <> 'cancelled'
		ORDER BY appointment_date, start_time`, providerID, from.Time, to.Time)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return r.collect(rows)
}

func (r *appointmentRepoPG) Search(ctx context.Context, f AppointmentFilter, limit, offset int) ([]*Appointment, int, error) {
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
	if f.Status != "" {
		where += fmt.Sprintf(` AND status = $%d`, idx)
		args = append(args, f.Status)
		idx++
	}
	if f.From != nil {
		where += fmt.Sprintf(` AND appointment_date >= $%d`, idx)
		args = append(args, f.From.Time)
		idx++
	}
	if f.To != nil {
		where += fmt.Sprintf(` AND appointment_date <= $%d`, idx)
		args = append(args, f.To.Time)
		idx++
	}

	q := db.Conn(ctx, r.pool)
	var total int
	if err := q.QueryRow(ctx, `SELECT COUNT(*) FROM appointment`+where, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	query := `SELECT ` + apptCols + ` FROM appointment` + where +
		fmt.Sprintf(` ORDER BY appointment_date, start_time LIMIT $%d OFFSET $%d`, idx, idx+1)
	args = append(args, limit, offset)
	rows, err := q.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()
	items, err := r.collect(rows)
	return items, total, err
}

func (r *appointmentRepoPG) collect(rows pgx.Rows) ([]*Appointment, error) {
	var items []*Appointment
	for rows.Next() {
		a, err := r.scanAppointment(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, a)
	}
	return items, rows.Err()
}
