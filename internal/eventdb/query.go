package eventdb

import (
	"context"

	"github.com/roach88/facetdb/internal/record"
)

// GetState returns the current state record for id.
// found is false, with a nil error, if no state has been written.
func (db *DB) GetState(ctx context.Context, id string) (r record.Record, found bool, err error) {
	db.metrics.read()
	r, found, err = db.backend.Get(ctx, db.table, record.StateKey(db.facet, id), record.SortState)
	if err != nil {
		return record.Record{}, false, translate("getState", err)
	}
	return r, found, nil
}

// QueryRecords returns the full history of id: inbound records by sequence,
// then outbound records by state version and sequence, then the state
// record. Returns an empty slice if nothing was written for id.
func (db *DB) QueryRecords(ctx context.Context, id string) ([]record.Record, error) {
	db.metrics.read()
	records, err := db.backend.Query(ctx, db.table, record.StateKey(db.facet, id))
	if err != nil {
		return nil, translate("queryRecords", err)
	}
	return records, nil
}

// QueryRecordsBySecondaryIndex returns the records projected under
// "{facet}/{indexName}/{indexValue}" in the order the backend returns them.
func (db *DB) QueryRecordsBySecondaryIndex(ctx context.Context, indexName, indexValue string) ([]record.Record, error) {
	db.metrics.read()
	records, err := db.backend.Query(ctx, db.table, record.IndexKey(db.facet, indexName, indexValue))
	if err != nil {
		return nil, translate("queryRecordsBySecondaryIndex", err)
	}
	return records, nil
}

// QueryInbound returns the inbound records of id in sequence order.
func (db *DB) QueryInbound(ctx context.Context, id string) ([]record.Record, error) {
	return db.queryType(ctx, id, record.TypeInbound)
}

// QueryOutbound returns the outbound records of id ordered by state version
// and sequence.
func (db *DB) QueryOutbound(ctx context.Context, id string) ([]record.Record, error) {
	return db.queryType(ctx, id, record.TypeOutbound)
}

func (db *DB) queryType(ctx context.Context, id string, typ record.Type) ([]record.Record, error) {
	records, err := db.QueryRecords(ctx, id)
	if err != nil {
		return nil, err
	}
	filtered := []record.Record{}
	for _, r := range records {
		if r.Type == typ {
			filtered = append(filtered, r)
		}
	}
	return filtered, nil
}
