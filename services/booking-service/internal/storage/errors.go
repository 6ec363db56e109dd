package storage

import (
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

var (
	ErrNotFound          = errors.New("not found")
	ErrOverlap           = errors.New("time range overlaps an active booking")
	ErrRuleOverlap       = errors.New("rule overlaps an existing rule for the same day")
	ErrInUse             = errors.New("referenced by active bookings")
	ErrInvalidTransition = errors.New("invalid status transition")
	ErrDuplicateKey      = errors.New("duplicate key")
)

const (
	pgExclusionViolation  = "23P01"
	pgUniqueViolation     = "23505"
	pgForeignKeyViolation = "23503"
	pgInvalidText         = "22P02"
)

func IsConflict(err error) bool {
	return errors.Is(err, ErrOverlap) || pgCode(err) == pgExclusionViolation
}

// IsNotFound also covers malformed ids, which can never match a row.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound) || errors.Is(err, pgx.ErrNoRows) || pgCode(err) == pgInvalidText
}

func isUniqueViolation(err error) bool {
	return pgCode(err) == pgUniqueViolation
}

func isForeignKeyViolation(err error) bool {
	return pgCode(err) == pgForeignKeyViolation
}

func pgCode(err error) string {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code
	}
	return ""
}
