package db

import (
	"errors"
	"fmt"
	"testing"

	"github.com/jackc/pgx/v5/pgconn"
)

func TestPgErrorClassification(t *testing.T) {
	unique := fmt.Errorf("insert appointment: %w", &pgconn.PgError{
		Code:           "23505",
		ConstraintName: "appointment_provider_slot_uniq",
	})
	fk := &pgconn.PgError{Code: "23503"}
	check := &pgconn.PgError{Code: "23514"}

	if !IsUniqueViolation(unique) {
		t.Error("expected wrapped 23505 to be a unique violation")
	}
	if ConstraintName(unique) != "appointment_provider_slot_uniq" {
		t.Errorf("unexpected constraint name %q", ConstraintName(unique))
	}
	if !IsForeignKeyViolation(fk) {
		t.Error("expected 23503 to be a foreign key violation")
	}
	if !IsCheckViolation(check) {
		t.Error("expected 23514 to be a check violation")
	}
	if IsUniqueViolation(errors.New("plain")) {
		t.Error("plain errors are not unique violations")
	}
	if ConstraintName(errors.New("plain")) != "" {
		t.Error("plain errors have no constraint")
	}
}
