package eventdb

import (
	"context"

	"github.com/roach88/facetdb/internal/backend"
)

// execute submits ops as one backend transaction and translates the outcome.
// It never retries.
func (db *DB) execute(ctx context.Context, ops []backend.Op) error {
	err := db.backend.TransactWrite(ctx, db.table, ops)
	if err == nil {
		return nil
	}
	return translate("putState", err)
}

// translate maps a backend error onto the store's error kinds.
func translate(op string, err error) *Error {
	switch {
	case backend.IsConditionFailed(err):
		return &Error{
			Kind:    KindConcurrencyConflict,
			Message: op + ": state version changed since it was read",
			Err:     err,
		}
	case backend.IsUnavailable(err):
		return &Error{
			Kind:    KindBackendUnavailable,
			Message: op + ": backend unavailable",
			Err:     err,
		}
	default:
		return &Error{
			Kind:    KindBackendRejected,
			Message: op + ": backend rejected request",
			Err:     err,
		}
	}
}
