package eventdb

import (
	"github.com/roach88/facetdb/internal/backend"
	"github.com/roach88/facetdb/internal/record"
)

// Build assembles the transaction for one state transition.
//
// The first op is the conditional state put, with the record's version set
// to expectedVersion+1. It is followed by one unconditional put per inbound,
// outbound and index record, in that order. Build fails before any backend
// call if the batch exceeds backend.MaxTransactionItems or expectedVersion is
// negative. state is passed by value; the caller's record is not modified.
func Build(state record.Record, expectedVersion int64, inbound, outbound, indexes []record.Record) ([]backend.Op, error) {
	count := 1 + len(inbound) + len(outbound) + len(indexes)
	if count > backend.MaxTransactionItems {
		return nil, newError(KindTransactionTooLarge,
			"putState: cannot exceed maximum transaction count of %d. The transaction attempted to write %d.",
			backend.MaxTransactionItems, count)
	}
	if expectedVersion < 0 {
		return nil, newError(KindInvalidExpectedVersion,
			"putState: expected version must be non-negative, got %d", expectedVersion)
	}

	state.Version = expectedVersion + 1

	ops := make([]backend.Op, 0, count)
	ops = append(ops, backend.Op{
		Kind:            backend.OpPutState,
		Record:          state,
		ExpectedVersion: expectedVersion,
	})
	for _, group := range [][]record.Record{inbound, outbound} {
		for _, r := range group {
			ops = append(ops, backend.Op{Kind: backend.OpPut, Record: r})
		}
	}
	for _, r := range indexes {
		// Index copies of the state being written carry the version it is
		// written with.
		if r.Type == record.TypeState && r.ID == state.ID {
			r.Version = state.Version
		}
		ops = append(ops, backend.Op{Kind: backend.OpPut, Record: r})
	}
	return ops, nil
}
