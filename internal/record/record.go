// Package record defines the records facetdb stores: one versioned state
// record per entity plus append-only inbound and outbound event records,
// and secondary-index projections of any of them.
//
// Every record lives under a record key and a sort key. Record keys group
// an entity's state and history ("{facet}/{id}") or an index bucket
// ("{facet}/{index}/{value}"). Sort keys order the records inside a key:
//
//	INBOUND/{sequence}
//	OUTBOUND/{stateVersion}/{sequence}
//	STATE
//
// so a range read over a record key returns inbound events, then outbound
// events, then the state record.
package record

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"golang.org/x/text/unicode/norm"
)

// Type is the record discriminant.
type Type string

const (
	TypeState    Type = "state"
	TypeInbound  Type = "inbound"
	TypeOutbound Type = "outbound"
)

// Sort key prefixes. Their lexical order is the history order.
const (
	SortState          = "STATE"
	sortInboundPrefix  = "INBOUND/"
	sortOutboundPrefix = "OUTBOUND/"
)

// Record is a single stored item.
//
// Kind-specific fields are zero for kinds that do not use them:
// Version and State belong to state records, Sequence, EventType and
// Payload to events, StateVersion to outbound events.
type Record struct {
	Key       string    `json:"_id" dynamodbav:"_id"`
	Sort      string    `json:"_rng" dynamodbav:"_rng"`
	Facet     string    `json:"_facet" dynamodbav:"_facet"`
	ID        string    `json:"id" dynamodbav:"id"`
	Type      Type      `json:"_typ" dynamodbav:"_typ"`
	CreatedAt time.Time `json:"_ts" dynamodbav:"_ts"`

	Version int64           `json:"_v,omitempty" dynamodbav:"_v,omitempty"`
	State   json.RawMessage `json:"state,omitempty" dynamodbav:"state,omitempty"`

	Sequence     int64           `json:"_seq,omitempty" dynamodbav:"_seq,omitempty"`
	StateVersion int64           `json:"_sv,omitempty" dynamodbav:"_sv,omitempty"`
	EventType    string          `json:"event,omitempty" dynamodbav:"event,omitempty"`
	Payload      json.RawMessage `json:"payload,omitempty" dynamodbav:"payload,omitempty"`
}

// NewState builds the state record for an entity.
func NewState(facet, id string, version int64, state json.RawMessage, ts time.Time) Record {
	return Record{
		Key:       StateKey(facet, id),
		Sort:      SortState,
		Facet:     facet,
		ID:        id,
		Type:      TypeState,
		CreatedAt: ts.UTC(),
		Version:   version,
		State:     state,
	}
}

// NewInbound builds an inbound event record.
func NewInbound(facet, id string, sequence int64, eventType string, payload json.RawMessage, ts time.Time) Record {
	return Record{
		Key:       StateKey(facet, id),
		Sort:      InboundSort(sequence),
		Facet:     facet,
		ID:        id,
		Type:      TypeInbound,
		CreatedAt: ts.UTC(),
		Sequence:  sequence,
		EventType: eventType,
		Payload:   payload,
	}
}

// NewOutbound builds an outbound event record emitted alongside stateVersion.
func NewOutbound(facet, id string, stateVersion, sequence int64, eventType string, payload json.RawMessage, ts time.Time) Record {
	return Record{
		Key:          StateKey(facet, id),
		Sort:         OutboundSort(stateVersion, sequence),
		Facet:        facet,
		ID:           id,
		Type:         TypeOutbound,
		CreatedAt:    ts.UTC(),
		Sequence:     sequence,
		StateVersion: stateVersion,
		EventType:    eventType,
		Payload:      payload,
	}
}

// StateKey returns the record key shared by an entity's state and history.
func StateKey(facet, id string) string {
	return joinKey(facet, id)
}

// IndexKey returns the record key of a secondary-index bucket.
func IndexKey(facet, indexName, indexValue string) string {
	return joinKey(facet, indexName, indexValue)
}

// InboundSort returns the sort key of the inbound event with the given sequence.
func InboundSort(sequence int64) string {
	return sortInboundPrefix + orderedInt(sequence)
}

// OutboundSort returns the sort key of an outbound event.
func OutboundSort(stateVersion, sequence int64) string {
	return sortOutboundPrefix + orderedInt(stateVersion) + "/" + orderedInt(sequence)
}

// IsEvent reports whether the record is an inbound or outbound event.
func (r Record) IsEvent() bool {
	return r.Type == TypeInbound || r.Type == TypeOutbound
}

// String is used in logs and CLI text output.
func (r Record) String() string {
	switch r.Type {
	case TypeState:
		return fmt.Sprintf("%s %s v%d", r.Type, r.Key, r.Version)
	case TypeOutbound:
		return fmt.Sprintf("%s %s sv%d #%d %s", r.Type, r.Key, r.StateVersion, r.Sequence, r.EventType)
	default:
		return fmt.Sprintf("%s %s #%d %s", r.Type, r.Key, r.Sequence, r.EventType)
	}
}

// joinKey NFC-normalizes each part so canonically equivalent ids share a key.
func joinKey(parts ...string) string {
	normalized := make([]string, len(parts))
	for i, p := range parts {
		normalized[i] = norm.NFC.String(p)
	}
	return strings.Join(normalized, "/")
}

// orderedInt encodes n as fixed-width decimal of its sign-flipped bits, so
// lexical order of the encoding matches numeric order of every int64.
func orderedInt(n int64) string {
	return fmt.Sprintf("%020d", uint64(n)^(1<<63))
}
