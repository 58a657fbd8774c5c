// Package eventdb is facetdb's store: it validates write batches, assembles
// them into one conditional transaction, and reads state and history back.
//
// A DB is scoped to one table and one facet. It holds no locks and no
// mutable state; concurrent writers to the same id are ordered by the
// backend's version condition on the state record, and all but one of them
// fail with KindConcurrencyConflict.
package eventdb

import (
	"context"
	"errors"
	"io"
	"log/slog"

	"github.com/VictoriaMetrics/metrics"

	"github.com/roach88/facetdb/internal/backend"
	"github.com/roach88/facetdb/internal/record"
)

// DB is an event-sourced record store for one facet.
type DB struct {
	backend backend.Backend
	table   string
	facet   string
	logger  *slog.Logger
	metrics *storeMetrics
}

// Option configures a DB.
type Option func(*options)

type options struct {
	logger     *slog.Logger
	metricsSet *metrics.Set
}

// WithLogger sets the logger. The default discards all output.
func WithLogger(l *slog.Logger) Option {
	return func(o *options) { o.logger = l }
}

// WithMetrics registers the DB's metrics in set. The default is a private set.
func WithMetrics(set *metrics.Set) Option {
	return func(o *options) { o.metricsSet = set }
}

// New creates a DB over b. table and facet are fixed for the DB's lifetime.
func New(b backend.Backend, table, facet string, opts ...Option) (*DB, error) {
	if b == nil {
		return nil, errors.New("eventdb: backend is required")
	}
	if table == "" {
		return nil, errors.New("eventdb: table name is required")
	}
	if facet == "" {
		return nil, errors.New("eventdb: facet is required")
	}

	o := options{
		logger:     slog.New(slog.NewTextHandler(io.Discard, nil)),
		metricsSet: metrics.NewSet(),
	}
	for _, opt := range opts {
		opt(&o)
	}

	return &DB{
		backend: b,
		table:   table,
		facet:   facet,
		logger:  o.logger.With("table", table, "facet", facet),
		metrics: newStoreMetrics(o.metricsSet, facet),
	}, nil
}

// Facet returns the facet the DB is scoped to.
func (db *DB) Facet() string { return db.facet }

// Table returns the backend table the DB writes to.
func (db *DB) Table() string { return db.table }

// PutState writes state with version expectedVersion+1 together with the
// inbound, outbound and secondary-index records, atomically.
//
// The write succeeds only if no state exists for the id and expectedVersion
// is 0, or the stored version equals expectedVersion. Validation and size
// errors are reported before the backend is called. Backend failures are
// reported as KindConcurrencyConflict, KindBackendUnavailable or
// KindBackendRejected; PutState does not retry.
func (db *DB) PutState(ctx context.Context, state record.Record, expectedVersion int64, inbound, outbound, indexes []record.Record) error {
	err := db.putState(ctx, state, expectedVersion, inbound, outbound, indexes)
	if err != nil {
		kind := KindOf(err)
		db.metrics.writeFailed(kind)
		level := slog.LevelDebug
		if kind == KindBackendUnavailable || kind == KindBackendRejected {
			level = slog.LevelWarn
		}
		db.logger.Log(ctx, level, "put state failed",
			"id", state.ID, "expected_version", expectedVersion, "kind", kind, "error", err)
		return err
	}
	return nil
}

func (db *DB) putState(ctx context.Context, state record.Record, expectedVersion int64, inbound, outbound, indexes []record.Record) error {
	if err := Validate(db.facet, state, inbound, outbound); err != nil {
		return err
	}
	ops, err := Build(state, expectedVersion, inbound, outbound, indexes)
	if err != nil {
		return err
	}
	if err := db.execute(ctx, ops); err != nil {
		return err
	}

	db.metrics.writeSucceeded(len(ops))
	db.logger.Debug("state written",
		"id", state.ID,
		"version", expectedVersion+1,
		"inbound", len(inbound),
		"outbound", len(outbound),
		"indexes", len(indexes),
	)
	return nil
}
