package sqlstore

import (
	"errors"

	"github.com/lib/pq"
	"github.com/mattn/go-sqlite3"

	"github.com/jacentio/twine/store"
)

// PostgreSQL SQLSTATE codes.
const (
	pqUniqueViolation     = pq.ErrorCode("23505")
	pqForeignKeyViolation = pq.ErrorCode("23503")
)

// mapConstraintError maps driver constraint violations to store errors.
// A foreign key violation means a missing parent on insert and a live
// child on delete, so the caller picks fkErr.
func mapConstraintError(err, fkErr error) error {
	var sqliteErr sqlite3.Error
	if errors.As(err, &sqliteErr) {
		switch sqliteErr.ExtendedCode {
		case sqlite3.ErrConstraintPrimaryKey, sqlite3.ErrConstraintUnique:
			return store.ErrAlreadyExists
		case sqlite3.ErrConstraintForeignKey:
			return fkErr
		}
		return err
	}

	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		switch pqErr.Code {
		case pqUniqueViolation:
			return store.ErrAlreadyExists
		case pqForeignKeyViolation:
			return fkErr
		}
	}
	return err
}
