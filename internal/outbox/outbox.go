// Package outbox turns outbound records into CloudEvents so a relay can
// publish them after the state transition that produced them committed.
package outbox

import (
	"context"
	"fmt"

	cloudevents "github.com/cloudevents/sdk-go/v2"

	"github.com/roach88/facetdb/internal/eventdb"
	"github.com/roach88/facetdb/internal/record"
)

// Extension attribute names carried by every exported event.
const (
	ExtStateVersion = "stateversion"
	ExtSequence     = "sequence"
)

// DefaultSource returns the event source used when none is given.
func DefaultSource(facet string) string {
	return "/facetdb/" + facet
}

// ToCloudEvent converts an outbound record. The event id is the record's
// key and sort key, so re-exporting the same record yields the same id.
func ToCloudEvent(r record.Record, source string) (cloudevents.Event, error) {
	if r.Type != record.TypeOutbound {
		return cloudevents.Event{}, fmt.Errorf("convert %s: record is %s, not outbound", r.Key, r.Type)
	}

	e := cloudevents.NewEvent()
	e.SetID(r.Key + "/" + r.Sort)
	e.SetSource(source)
	e.SetType(r.EventType)
	e.SetSubject(r.ID)
	e.SetTime(r.CreatedAt)
	// CloudEvents integers are 32-bit; larger values fail here.
	if err := e.Context.SetExtension(ExtStateVersion, r.StateVersion); err != nil {
		return cloudevents.Event{}, fmt.Errorf("convert %s: %w", r.Key, err)
	}
	if err := e.Context.SetExtension(ExtSequence, r.Sequence); err != nil {
		return cloudevents.Event{}, fmt.Errorf("convert %s: %w", r.Key, err)
	}
	if len(r.Payload) > 0 {
		if err := e.SetData(cloudevents.ApplicationJSON, r.Payload); err != nil {
			return cloudevents.Event{}, fmt.Errorf("convert %s: %w", r.Key, err)
		}
	}
	if err := e.Validate(); err != nil {
		return cloudevents.Event{}, fmt.Errorf("convert %s: %w", r.Key, err)
	}
	return e, nil
}

// Export returns the outbound records of id as CloudEvents, ordered by state
// version and sequence. An empty source means DefaultSource(db.Facet()).
func Export(ctx context.Context, db *eventdb.DB, id, source string) ([]cloudevents.Event, error) {
	if source == "" {
		source = DefaultSource(db.Facet())
	}
	records, err := db.QueryOutbound(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("export %s: %w", id, err)
	}

	events := make([]cloudevents.Event, 0, len(records))
	for _, r := range records {
		e, err := ToCloudEvent(r, source)
		if err != nil {
			return nil, err
		}
		events = append(events, e)
	}
	return events, nil
}
