package repository

import (
	"context"
	"database/sql"
	"errors"
	"strings"

	"github.com/lib/pq"
	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"

	"github.com/13jisse-music/ChanteEnScene-sub003/internal/domain/model"
)

const pqUniqueViolation = "23505"

// isUniqueViolation reports whether err is a unique constraint failure on either driver.
func isUniqueViolation(err error) bool {
	var se *sqlite.Error
	if errors.As(err, &se) {
		switch se.Code() {
		case sqlite3.SQLITE_CONSTRAINT_UNIQUE, sqlite3.SQLITE_CONSTRAINT_PRIMARYKEY:
			return true
		case sqlite3.SQLITE_CONSTRAINT:
			return strings.Contains(se.Error(), "UNIQUE")
		}
		return false
	}
	var pe *pq.Error
	if errors.As(err, &pe) {
		return pe.Code == pqUniqueViolation
	}
	return false
}

// classify maps driver errors onto the shared error kinds.
func classify(op string, err error) error {
	switch {
	case err == nil:
		return nil
	case model.KindOf(err) != nil:
		return model.Wrap(op, err)
	case errors.Is(err, sql.ErrNoRows):
		return model.WrapKind(op, model.ErrNotFound, err)
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return model.Wrap(op, err)
	case isUniqueViolation(err):
		return model.WrapKind(op, model.ErrDuplicateEntry, err)
	default:
		return model.WrapKind(op, model.ErrUpstreamUnavailable, err)
	}
}
