// Package backend defines the transactional key-value engine facetdb writes
// to, and the failure classes every engine reports.
//
// An engine stores records under (table, key, sort) and offers three
// primitives: an all-or-nothing transaction of puts, a point get, and a range
// read over one record key ordered by sort key. The item sort is
// record.StorageSort of the record; reads return the record with its own
// Sort. Engines translate their
// native errors into ErrConditionFailed and ErrUnavailable so the store can
// map them without knowing the engine.
package backend

import (
	"context"
	"errors"
	"fmt"

	"github.com/roach88/facetdb/internal/record"
)

// MaxTransactionItems is the hard ceiling of operations in one transaction.
const MaxTransactionItems = 25

// OpKind selects how an Op is applied.
type OpKind int

const (
	// OpPut writes the record unconditionally, replacing any record at the
	// same key and storage sort.
	OpPut OpKind = iota

	// OpPutState writes a state record only if no state record exists and
	// ExpectedVersion is 0, or the stored state version equals
	// ExpectedVersion.
	OpPutState
)

func (k OpKind) String() string {
	switch k {
	case OpPut:
		return "put"
	case OpPutState:
		return "put-state"
	default:
		return fmt.Sprintf("OpKind(%d)", int(k))
	}
}

// Op is one write inside a transaction.
type Op struct {
	Kind            OpKind
	Record          record.Record
	ExpectedVersion int64
}

// Backend is a transactional key-value engine.
// Implementations must be safe for concurrent use.
type Backend interface {
	// TransactWrite applies every op or none of them.
	// Returns an error wrapping ErrConditionFailed if an OpPutState
	// condition did not hold.
	TransactWrite(ctx context.Context, table string, ops []Op) error

	// Get returns the record stored at (key, sort). found is false if absent.
	Get(ctx context.Context, table, key, sort string) (r record.Record, found bool, err error)

	// Query returns every record under key ordered by storage sort
	// ascending. State and payload bytes come back exactly as written.
	// Returns an empty slice (not nil) if there are none.
	Query(ctx context.Context, table, key string) ([]record.Record, error)

	// Close releases the engine's resources.
	Close() error
}

var (
	// ErrConditionFailed reports that a conditional write found a different
	// stored version than expected.
	ErrConditionFailed = errors.New("condition check failed")

	// ErrUnavailable reports a transient engine failure (network, throttling,
	// lock contention). The same request may succeed later.
	ErrUnavailable = errors.New("backend unavailable")
)

// Unavailable wraps err as a transient failure of op.
func Unavailable(op string, err error) error {
	return fmt.Errorf("%s: %w: %w", op, ErrUnavailable, err)
}

// IsConditionFailed reports whether err is or wraps ErrConditionFailed.
func IsConditionFailed(err error) bool {
	return errors.Is(err, ErrConditionFailed)
}

// IsUnavailable reports whether err is or wraps ErrUnavailable.
func IsUnavailable(err error) bool {
	return errors.Is(err, ErrUnavailable)
}
