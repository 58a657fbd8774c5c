package record

import (
	"encoding/json"
	"fmt"
)

// EncodeJSON marshals v into the opaque blob stored in State or Payload.
func EncodeJSON(v any) (json.RawMessage, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("encode record body: %w", err)
	}
	return data, nil
}

// MustJSON is EncodeJSON for values known to marshal, such as literals in tests.
func MustJSON(v any) json.RawMessage {
	data, err := EncodeJSON(v)
	if err != nil {
		panic(err)
	}
	return data
}

// StateOf decodes the state payload of a state record into S.
func StateOf[S any](r Record) (S, error) {
	var s S
	if r.Type != TypeState {
		return s, fmt.Errorf("decode state: record %s is %s, not state", r.Key, r.Type)
	}
	if len(r.State) == 0 {
		return s, nil
	}
	if err := json.Unmarshal(r.State, &s); err != nil {
		return s, fmt.Errorf("decode state: %w", err)
	}
	return s, nil
}

// PayloadOf decodes the payload of an event record into P.
func PayloadOf[P any](r Record) (P, error) {
	var p P
	if !r.IsEvent() {
		return p, fmt.Errorf("decode payload: record %s is %s, not an event", r.Key, r.Type)
	}
	if len(r.Payload) == 0 {
		return p, nil
	}
	if err := json.Unmarshal(r.Payload, &p); err != nil {
		return p, fmt.Errorf("decode payload: %w", err)
	}
	return p, nil
}
