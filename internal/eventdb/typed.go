package eventdb

import (
	"context"
	"fmt"
	"time"

	"github.com/roach88/facetdb/internal/record"
)

// Event is an inbound or outbound event to append with a state transition.
// Payload is JSON-encoded.
type Event struct {
	Sequence int64
	Type     string
	Payload  any
}

// Typed is a DB view whose state payload is S.
type Typed[S any] struct {
	db  *DB
	now func() time.Time
}

// NewTyped wraps db with state type S.
func NewTyped[S any](db *DB) *Typed[S] {
	return &Typed[S]{db: db, now: time.Now}
}

// WithClock returns a copy of t that timestamps records with now.
func (t *Typed[S]) WithClock(now func() time.Time) *Typed[S] {
	return &Typed[S]{db: t.db, now: now}
}

// Get returns the decoded state of id and its version.
func (t *Typed[S]) Get(ctx context.Context, id string) (state S, version int64, found bool, err error) {
	r, found, err := t.db.GetState(ctx, id)
	if err != nil || !found {
		return state, 0, found, err
	}
	state, err = record.StateOf[S](r)
	if err != nil {
		return state, 0, false, err
	}
	return state, r.Version, true, nil
}

// Put writes state as version expectedVersion+1 of id. Outbound events are
// tagged with that version. Every projector runs over every record of the
// batch to produce its secondary-index records.
func (t *Typed[S]) Put(ctx context.Context, id string, expectedVersion int64, state S, inbound, outbound []Event, projectors ...record.Projector) error {
	ts := t.now()
	facet := t.db.facet
	version := expectedVersion + 1

	body, err := record.EncodeJSON(state)
	if err != nil {
		return err
	}
	stateRecord := record.NewState(facet, id, version, body, ts)

	inRecords := make([]record.Record, 0, len(inbound))
	for _, e := range inbound {
		payload, err := record.EncodeJSON(e.Payload)
		if err != nil {
			return fmt.Errorf("inbound %d: %w", e.Sequence, err)
		}
		inRecords = append(inRecords, record.NewInbound(facet, id, e.Sequence, e.Type, payload, ts))
	}

	outRecords := make([]record.Record, 0, len(outbound))
	for _, e := range outbound {
		payload, err := record.EncodeJSON(e.Payload)
		if err != nil {
			return fmt.Errorf("outbound %d: %w", e.Sequence, err)
		}
		outRecords = append(outRecords, record.NewOutbound(facet, id, version, e.Sequence, e.Type, payload, ts))
	}

	all := make([]record.Record, 0, len(inRecords)+len(outRecords)+1)
	all = append(all, inRecords...)
	all = append(all, outRecords...)
	all = append(all, stateRecord)
	indexes := record.ProjectAll(all, projectors...)

	return t.db.PutState(ctx, stateRecord, expectedVersion, inRecords, outRecords, indexes)
}
