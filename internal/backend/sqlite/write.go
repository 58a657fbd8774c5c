package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/roach88/facetdb/internal/backend"
	"github.com/roach88/facetdb/internal/record"
)

type itemKey struct{ key, sort string }

// TransactWrite applies ops atomically inside one transaction.
//
// Two ops addressing the same (key, sort) are rejected before the
// transaction starts, matching engines that refuse to touch one item twice
// per transaction.
func (s *Store) TransactWrite(ctx context.Context, table string, ops []backend.Op) error {
	if len(ops) > backend.MaxTransactionItems {
		return fmt.Errorf("transact write: %d ops exceeds limit of %d", len(ops), backend.MaxTransactionItems)
	}
	seen := make(map[itemKey]bool, len(ops))
	for _, op := range ops {
		k := itemKey{op.Record.Key, record.StorageSort(op.Record)}
		if seen[k] {
			return fmt.Errorf("transact write: multiple ops for item %s %s", k.key, k.sort)
		}
		seen[k] = true
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return classify("transact write: begin tx", err)
	}
	defer tx.Rollback() // No-op if committed

	for i, op := range ops {
		if op.Kind == backend.OpPutState {
			if err := checkStateVersion(ctx, tx, table, op); err != nil {
				return err
			}
		}
		if err := putRecord(ctx, tx, table, op); err != nil {
			return classify(fmt.Sprintf("transact write: op %d", i), err)
		}
	}

	if err := tx.Commit(); err != nil {
		return classify("transact write: commit", err)
	}
	return nil
}

// checkStateVersion enforces the OpPutState condition against the stored row.
func checkStateVersion(ctx context.Context, tx *sql.Tx, table string, op backend.Op) error {
	var stored int64
	err := tx.QueryRowContext(ctx, `
		SELECT version FROM records
		WHERE tbl = ? AND record_key = ? AND sort_key = ?
	`, table, op.Record.Key, op.Record.Sort).Scan(&stored)

	switch {
	case errors.Is(err, sql.ErrNoRows):
		if op.ExpectedVersion != 0 {
			return fmt.Errorf("transact write: %s: no state stored, expected version %d: %w",
				op.Record.Key, op.ExpectedVersion, backend.ErrConditionFailed)
		}
		return nil
	case err != nil:
		return classify("transact write: read state version", err)
	case stored != op.ExpectedVersion:
		return fmt.Errorf("transact write: %s: stored version %d, expected %d: %w",
			op.Record.Key, stored, op.ExpectedVersion, backend.ErrConditionFailed)
	}
	return nil
}

// putRecord upserts one record row. The state or payload bytes go to the
// data column untouched; body holds the remaining fields.
func putRecord(ctx context.Context, tx *sql.Tx, table string, op backend.Op) error {
	r := op.Record
	data := blobOf(r)
	r.State, r.Payload = nil, nil
	body, err := json.Marshal(r)
	if err != nil {
		return fmt.Errorf("marshal record: %w", err)
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO records
		(tbl, record_key, sort_key, record_type, version, body, data, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(tbl, record_key, sort_key) DO UPDATE SET
			record_type = excluded.record_type,
			version     = excluded.version,
			body        = excluded.body,
			data        = excluded.data,
			created_at  = excluded.created_at
	`,
		table,
		r.Key,
		record.StorageSort(r),
		string(r.Type),
		r.Version,
		string(body),
		data,
		r.CreatedAt.UTC().Format(time.RFC3339Nano),
	)
	return err
}

// blobOf returns the opaque bytes of r, or nil (stored as NULL) if it has none.
func blobOf(r record.Record) []byte {
	blob := r.Payload
	if r.Type == record.TypeState {
		blob = r.State
	}
	if len(blob) == 0 {
		return nil
	}
	return blob
}
