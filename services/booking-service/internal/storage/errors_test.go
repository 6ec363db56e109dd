package storage

import (
	"errors"
	"fmt"
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

func TestErrorClassification(t *testing.T) {
	exclusion := &pgconn.PgError{Code: "23P01"}
	if !IsConflict(exclusion) || !IsConflict(fmt.Errorf("insert: %w", exclusion)) {
		t.Fatalf("exclusion violation should be a conflict")
	}
	if !IsConflict(ErrOverlap) {
		t.Fatalf("ErrOverlap should be a conflict")
	}
	if IsConflict(&pgconn.PgError{Code: "23505"}) {
		t.Fatalf("unique violation is not a conflict")
	}
	if !isUniqueViolation(&pgconn.PgError{Code: "23505"}) {
		t.Fatalf("expected unique violation")
	}
	if !IsNotFound(pgx.ErrNoRows) || !IsNotFound(ErrNotFound) || !IsNotFound(&pgconn.PgError{Code: "22P02"}) {
		t.Fatalf("expected not found")
	}
	if IsNotFound(errors.New("boom")) {
		t.Fatalf("plain error is not not-found")
	}
	if !errors.Is(notFound(pgx.ErrNoRows), ErrNotFound) {
		t.Fatalf("notFound should wrap ErrNotFound")
	}
	if !errors.Is(refErr(&pgconn.PgError{Code: "23503"}), ErrNotFound) {
		t.Fatalf("foreign key violation should map to ErrNotFound")
	}
}
