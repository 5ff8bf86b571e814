package repository

import (
	"database/sql"
	"fmt"
)

// expectAffected maps a zero-row write to sql.ErrNoRows so services can report NOT_FOUND.
func expectAffected(res sql.Result, op string) error {
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	if affected == 0 {
		return fmt.Errorf("%s: %w", op, sql.ErrNoRows)
	}
	return nil
}
