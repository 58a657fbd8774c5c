package eventdb

import "github.com/roach88/facetdb/internal/record"

// Validate checks that a write batch belongs to facet and that every record
// has the type its position requires. Checks run in a fixed order (state
// type, state facet, then type and facet of each inbound record, then of each
// outbound record) and the first violation is returned.
func Validate(facet string, state record.Record, inbound, outbound []record.Record) error {
	if state.Type != record.TypeState {
		return newError(KindInvalidRecordType, "putState: invalid state record")
	}
	if state.Facet != facet {
		return newError(KindFacetMismatch,
			"putState: state record has mismatched facet. Expected: %q, got: %q", facet, state.Facet)
	}
	if err := validateEvents(facet, "inbound", record.TypeInbound, inbound); err != nil {
		return err
	}
	return validateEvents(facet, "outbound", record.TypeOutbound, outbound)
}

func validateEvents(facet, role string, want record.Type, records []record.Record) error {
	for _, r := range records {
		if r.Type != want {
			return newError(KindInvalidRecordType, "putState: invalid %s record", role)
		}
		if r.Facet != facet {
			return newError(KindFacetMismatch,
				"putState: invalid facet for %s record. Expected: %q, got: %q", role, facet, r.Facet)
		}
	}
	return nil
}
