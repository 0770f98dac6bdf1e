package store

import (
	"database/sql"
	"errors"
)

// translateNoRows maps sql.ErrNoRows to the package's ErrNotFound so callers
// never need to import database/sql themselves.
func translateNoRows(err error) error {
	if errors.Is(err, sql.ErrNoRows) {
		return ErrNotFound
	}
	return err
}
