package record

// Projector derives a secondary-index entry from a record. ok reports
// whether the record is indexed at all. The index value may come from any
// field of the record.
type Projector func(r Record) (indexName, indexValue string, ok bool)

// Project returns a copy of r filed under the secondary-index key
// "{facet}/{indexName}/{indexValue}". Sort, ID and Facet are kept so the copy
// still identifies the record it was projected from. r is not modified.
func Project(r Record, indexName, indexValue string) Record {
	projected := r
	projected.Key = IndexKey(r.Facet, indexName, indexValue)
	return projected
}

// StorageSort returns the sort key a backend stores r under. Entity records
// are stored under Sort. Index records are stored under Sort prefixed with
// the key of the entity they were projected from, so entries of different
// entities under one index value never share an item, and rewriting one
// entity's entry replaces it.
func StorageSort(r Record) string {
	source := StateKey(r.Facet, r.ID)
	if r.Key == source {
		return r.Sort
	}
	return source + "/" + r.Sort
}

// ProjectAll runs every projector over every record and returns the
// resulting index records in record-major order.
func ProjectAll(records []Record, projectors ...Projector) []Record {
	var out []Record
	for _, r := range records {
		for _, p := range projectors {
			name, value, ok := p(r)
			if !ok {
				continue
			}
			out = append(out, Project(r, name, value))
		}
	}
	return out
}

// ByID indexes state records under indexName keyed by their entity id.
func ByID(indexName string) Projector {
	return func(r Record) (string, string, bool) {
		if r.Type != TypeState {
			return "", "", false
		}
		return indexName, r.ID, true
	}
}

// ByEventType indexes event records under indexName keyed by event type.
func ByEventType(indexName string) Projector {
	return func(r Record) (string, string, bool) {
		if !r.IsEvent() {
			return "", "", false
		}
		return indexName, r.EventType, true
	}
}
