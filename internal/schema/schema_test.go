package schema

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidateBatch_Valid(t *testing.T) {
	docs := map[string]string{
		"minimal": `{"id": "o-1", "expected_version": 0}`,
		"full": `{
			"id": "o-1",
			"expected_version": 2,
			"state": {"status": "shipped", "lines": [1, 2]},
			"inbound": [{"sequence": 1, "event_type": "OrderShipped", "payload": {"carrier": "ups"}}],
			"outbound": [{"state_version": 3, "sequence": 0, "event_type": "NotifyCustomer"}],
			"indexes": [{"name": "byStatus", "value": "shipped"}]
		}`,
		"null state":                `{"id": "o-1", "expected_version": 0, "state": null}`,
		"negative expected version": `{"id": "o-1", "expected_version": -1}`,
		"empty index value":         `{"id": "o-1", "expected_version": 0, "indexes": [{"name": "n", "value": ""}]}`,
	}

	for name, doc := range docs {
		t.Run(name, func(t *testing.T) {
			assert.NoError(t, ValidateBatch("batch.json", []byte(doc)))
		})
	}
}

func TestValidateBatch_Invalid(t *testing.T) {
	docs := map[string]string{
		"not json":            `{`,
		"missing id":          `{"expected_version": 0}`,
		"empty id":            `{"id": "", "expected_version": 0}`,
		"missing version":     `{"id": "o-1"}`,
		"fractional version":  `{"id": "o-1", "expected_version": 1.5}`,
		"unknown field":       `{"id": "o-1", "expected_version": 0, "version": 3}`,
		"event without type":  `{"id": "o-1", "expected_version": 0, "inbound": [{"sequence": 1}]}`,
		"unknown event field": `{"id": "o-1", "expected_version": 0, "outbound": [{"sequence": 0, "event_type": "x", "kind": "y"}]}`,
		"index without name":  `{"id": "o-1", "expected_version": 0, "indexes": [{"value": "v"}]}`,
	}

	for name, doc := range docs {
		t.Run(name, func(t *testing.T) {
			err := ValidateBatch("batch.json", []byte(doc))
			require.Error(t, err)
			var schemaErr *Error
			assert.True(t, errors.As(err, &schemaErr), "got %T: %v", err, err)
		})
	}
}

func TestError_Format(t *testing.T) {
	assert.Equal(t, "bad field", (&Error{Message: "bad field"}).Error())
}
