package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/roach88/facetdb/internal/record"
)

// Get retrieves a single record by key and sort.
func (s *Store) Get(ctx context.Context, table, key, sort string) (record.Record, bool, error) {
	var (
		body string
		data []byte
	)
	err := s.db.QueryRowContext(ctx, `
		SELECT body, data FROM records
		WHERE tbl = ? AND record_key = ? AND sort_key = ?
	`, table, key, sort).Scan(&body, &data)
	if errors.Is(err, sql.ErrNoRows) {
		return record.Record{}, false, nil
	}
	if err != nil {
		return record.Record{}, false, classify("get record", err)
	}

	r, err := decodeRow(body, data)
	if err != nil {
		return record.Record{}, false, fmt.Errorf("get record: %w", err)
	}
	return r, true, nil
}

// Query returns all records under key ordered by sort key.
// Returns an empty slice (not nil) if no records exist.
func (s *Store) Query(ctx context.Context, table, key string) ([]record.Record, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT body, data FROM records
		WHERE tbl = ? AND record_key = ?
		ORDER BY sort_key COLLATE BINARY ASC
	`, table, key)
	if err != nil {
		return nil, classify("query records", err)
	}
	defer rows.Close()

	records := []record.Record{}
	for rows.Next() {
		var (
			body string
			data []byte
		)
		if err := rows.Scan(&body, &data); err != nil {
			return nil, fmt.Errorf("scan record: %w", err)
		}
		r, err := decodeRow(body, data)
		if err != nil {
			return nil, fmt.Errorf("query records: %w", err)
		}
		records = append(records, r)
	}

	if err := rows.Err(); err != nil {
		return nil, classify("iterate records", err)
	}

	return records, nil
}

// CountByType returns the number of stored records per record type in table.
func (s *Store) CountByType(ctx context.Context, table string) (map[record.Type]int, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT record_type, COUNT(*) FROM records
		WHERE tbl = ?
		GROUP BY record_type
	`, table)
	if err != nil {
		return nil, classify("count records", err)
	}
	defer rows.Close()

	counts := make(map[record.Type]int)
	for rows.Next() {
		var typ string
		var n int
		if err := rows.Scan(&typ, &n); err != nil {
			return nil, fmt.Errorf("scan count: %w", err)
		}
		counts[record.Type(typ)] = n
	}
	if err := rows.Err(); err != nil {
		return nil, classify("iterate counts", err)
	}
	return counts, nil
}

// decodeRow rebuilds a record from its body and data columns. A NULL data
// column leaves whatever body carried, which covers rows written before v2.
func decodeRow(body string, data []byte) (record.Record, error) {
	var r record.Record
	if err := json.Unmarshal([]byte(body), &r); err != nil {
		return record.Record{}, fmt.Errorf("unmarshal record: %w", err)
	}
	if data == nil {
		return r, nil
	}
	if r.Type == record.TypeState {
		r.State = json.RawMessage(data)
	} else {
		r.Payload = json.RawMessage(data)
	}
	return r, nil
}
