package scheduling

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgtype"

	"github.com/telecare/telecare/internal/domain/treatment"
)

// ClockTime is a wall-clock time of day in minutes since midnight. It
// travels on the wire as "HH:MM".
type ClockTime int

const minutesPerDay = 24 * 60

// Clock builds a ClockTime from hours and minutes.
func Clock(h, m int) ClockTime { return ClockTime(h*60 + m) }

// ParseClock accepts "HH:MM" and "HH:MM:SS" with zero seconds.
func ParseClock(s string) (ClockTime, error) {
	parts := strings.Split(strings.TrimSpace(s), ":")
	if len(parts) < 2 || len(parts) > 3 {
		return 0, fmt.Errorf("invalid time %q: expected HH:MM", s)
	}
	h, err := strconv.Atoi(parts[0])
	if err != nil || h < 0 || h > 23 {
		return 0, fmt.Errorf("invalid time %q: bad hour", s)
	}
	m, err := strconv.Atoi(parts[1])
	if err != nil || m < 0 || m > 59 || len(parts[1]) != 2 {
		return 0, fmt.Errorf("invalid time %q: bad minute", s)
	}
	if len(parts) == 3 && parts[2] != "00" {
		return 0, fmt.Errorf("invalid time %q: seconds are not supported", s)
	}
	return Clock(h, m), nil
}

func (c ClockTime) String() string {
	return fmt.Sprintf("%02d:%02d", int(c)/60, int(c)%60)
}

func (c ClockTime) Add(minutes int) ClockTime { return c + ClockTime(minutes) }

func (c ClockTime) MarshalJSON() ([]byte, error) {
	return json.Marshal(c.String())
}

func (c *ClockTime) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return fmt.Errorf("time must be a string: %w", err)
	}
	parsed, err := ParseClock(s)
	if err != nil {
		return err
	}
	*c = parsed
	return nil
}

// PG converts c for a TIME column.
func (c ClockTime) PG() pgtype.Time {
	return pgtype.Time{Microseconds: int64(c) * int64(time.Minute/time.Microsecond), Valid: true}
}

func clockFromPG(t pgtype.Time) ClockTime {
	return ClockTime(t.Microseconds / int64(time.Minute/time.Microsecond))
}

func clockPtrPG(c *ClockTime) pgtype.Time {
	if c == nil {
		return pgtype.Time{}
	}
	return c.PG()
}

func clockPtrFromPG(t pgtype.Time) *ClockTime {
	if !t.Valid {
		return nil
	}
	c := clockFromPG(t)
	return &c
}

// Date is a calendar date with no time zone, stored at midnight UTC. It
// travels on the wire as "YYYY-MM-DD".
type Date struct {
	time.Time
}

const dateLayout = "2006-01-02"

func NewDate(year int, month time.Month, day int) Date {
	return Date{time.Date(year, month, day, 0, 0, 0, 0, time.UTC)}
}

// DateOf returns the calendar date of t in t's own location.
func DateOf(t time.Time) Date {
	return NewDate(t.Year(), t.Month(), t.Day())
}

func ParseDate(s string) (Date, error) {
	t, err := time.Parse(dateLayout, strings.TrimSpace(s))
	if err != nil {
		return Date{}, fmt.Errorf("invalid date %q: expected YYYY-MM-DD", s)
	}
	return Date{t}, nil
}

func (d Date) String() string { return d.Format(dateLayout) }

func (d Date) AddDays(n int) Date { return Date{d.Time.AddDate(0, 0, n)} }

func (d Date) Before(o Date) bool { return d.Time.Before(o.Time) }

func (d Date) Equal(o Date) bool { return d.Time.Equal(o.Time) }

// DaysUntil returns the number of days from d to o.
func (d Date) DaysUntil(o Date) int {
	return int(o.Time.Sub(d.Time).Hours() / 24)
}

// At returns the instant c on d in loc.
func (d Date) At(c ClockTime, loc *time.Location) time.Time {
	if loc == nil {
		loc = time.UTC
	}
	return time.Date(d.Year(), d.Month(), d.Day(), int(c)/60, int(c)%60, 0, 0, loc)
}

func (d Date) MarshalJSON() ([]byte, error) {
	return json.Marshal(d.String())
}

func (d *Date) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return fmt.Errorf("date must be a string: %w", err)
	}
	parsed, err := ParseDate(s)
	if err != nil {
		return err
	}
	*d = parsed
	return nil
}

// MarshalText and UnmarshalText replace the RFC 3339 forms promoted from
// time.Time so query binding and map keys use YYYY-MM-DD too.
func (d Date) MarshalText() ([]byte, error) { return []byte(d.String()), nil }

func (d *Date) UnmarshalText(b []byte) error {
	parsed, err := ParseDate(string(b))
	if err != nil {
		return err
	}
	*d = parsed
	return nil
}

func dateFromPG(t time.Time) Date { return NewDate(t.Year(), t.Month(), t.Day()) }

// ProviderRef is the slice of a provider row that scheduling depends on.
type ProviderRef struct {
	ID                 uuid.UUID `db:"id" json:"id"`
	Active             bool      `db:"active" json:"active"`
	DefaultSlotMinutes int       `db:"default_slot_minutes" json:"default_slot_minutes"`
}

// ScheduleBlock maps to the schedule_block table: a recurring weekly window.
type ScheduleBlock struct {
	ID                  uuid.UUID        `db:"id" json:"id"`
	ProviderID          uuid.UUID        `db:"provider_id" json:"provider_id"`
	DayOfWeek           int              `db:"day_of_week" json:"day_of_week"`
	StartTime           ClockTime        `db:"start_time" json:"start_time"`
	EndTime             ClockTime        `db:"end_time" json:"end_time"`
	SlotDurationMinutes int              `db:"slot_duration_minutes" json:"slot_duration_minutes"`
	TreatmentTypes      []treatment.Type `db:"treatment_types" json:"treatment_types"`
	Active              bool             `db:"active" json:"active"`
	CreatedAt           time.Time        `db:"created_at" json:"created_at"`
	UpdatedAt           time.Time        `db:"updated_at" json:"updated_at"`
}

// OverrideKind classifies an AvailabilityOverride by its shape.
type OverrideKind int

const (
	FullDayBlock OverrideKind = iota
	PartialBlock
	Addition
)

func (k OverrideKind) String() string {
	switch k {
	case FullDayBlock:
		return "full_day_block"
	case PartialBlock:
		return "partial_block"
	default:
		return "addition"
	}
}

// AvailabilityOverride maps to the availability_override table: a
// date-specific exception to the weekly schedule.
type AvailabilityOverride struct {
	ID             uuid.UUID        `db:"id" json:"id"`
	ProviderID     uuid.UUID        `db:"provider_id" json:"provider_id"`
	Date           Date             `db:"override_date" json:"date"`
	StartTime      *ClockTime       `db:"start_time" json:"start_time,omitempty"`
	EndTime        *ClockTime       `db:"end_time" json:"end_time,omitempty"`
	Available      bool             `db:"available" json:"available"`
	TreatmentTypes []treatment.Type `db:"treatment_types" json:"treatment_types,omitempty"`
	Reason         *string          `db:"reason" json:"reason,omitempty"`
	CreatedAt      time.Time        `db:"created_at" json:"created_at"`
}

func (o *AvailabilityOverride) Kind() OverrideKind {
	switch {
	case o.Available:
		return Addition
	case o.StartTime == nil:
		return FullDayBlock
	default:
		return PartialBlock
	}
}

// Appointment statuses.
const (
	StatusScheduled = "scheduled"
	StatusCompleted = "completed"
	StatusCancelled = "cancelled"
)

// Appointment maps to the appointment table.
type Appointment struct {
	ID                 uuid.UUID      `db:"id" json:"id"`
	PatientID          uuid.UUID      `db:"patient_id" json:"patient_id"`
	ProviderID         uuid.UUID      `db:"provider_id" json:"provider_id"`
	Date               Date           `db:"appointment_date" json:"date"`
	StartTime          ClockTime      `db:"start_time" json:"start_time"`
	DurationMinutes    int            `db:"duration_minutes" json:"duration_minutes"`
	TreatmentType      treatment.Type `db:"treatment_type" json:"treatment_type"`
	Status             string         `db:"status" json:"status"`
	CancellationReason *string        `db:"cancellation_reason" json:"cancellation_reason,omitempty"`
	CreatedAt          time.Time      `db:"created_at" json:"created_at"`
	UpdatedAt          time.Time      `db:"updated_at" json:"updated_at"`
}

func (a *Appointment) EndTime() ClockTime { return a.StartTime.Add(a.DurationMinutes) }

// Slot sources.
const (
	SourceSchedule = "schedule"
	SourceOverride = "override"
)

// Slot is a bookable window computed by Resolve. It is never stored.
type Slot struct {
	ProviderID      uuid.UUID      `json:"provider_id"`
	Date            Date           `json:"date"`
	StartTime       ClockTime      `json:"start_time"`
	EndTime         ClockTime      `json:"end_time"`
	DurationMinutes int            `json:"duration_minutes"`
	TreatmentType   treatment.Type `json:"treatment_type"`
	Source          string         `json:"source"`
}

func (s Slot) overlaps(start, end ClockTime) bool {
	return s.StartTime < end && start < s.EndTime
}

// AppointmentFilter narrows ListAppointments. Zero values match everything.
type AppointmentFilter struct {
	PatientID  *uuid.UUID
	ProviderID *uuid.UUID
	Status     string
	From       *Date
	To         *Date
}
