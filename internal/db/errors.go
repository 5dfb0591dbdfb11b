package db

import (
	"errors"
	"fmt"
	"strings"

	"github.com/surrealdb/surrealdb.go"

	"github.com/pressbridge/pressbridge/internal/store"
)

// ErrTransactionConflict indicates a SurrealDB transaction conflict.
// This occurs when concurrent operations modify the same records; callers
// should typically retry or skip.
var ErrTransactionConflict = errors.New("transaction conflict")

// Queries that guard an invariant server-side signal the violation with
// THROW; wrapQueryError maps the marker onto the store sentinel the caller
// checks for.
const throwCursorConflict = "cursor conflict"

// wrapQueryError inspects a SurrealDB error and wraps it with the
// appropriate sentinel if it matches a known pattern. Returns the original
// error otherwise.
func wrapQueryError(err error) error {
	if err == nil {
		return nil
	}

	var queryErr *surrealdb.QueryError
	if errors.As(err, &queryErr) {
		msg := queryErr.Message
		if strings.Contains(msg, throwCursorConflict) {
			return fmt.Errorf("%w: %s", store.ErrCursorConflict, msg)
		}
		if strings.Contains(msg, "Transaction conflict") {
			return fmt.Errorf("%w: %s", ErrTransactionConflict, msg)
		}
	}

	return err
}
