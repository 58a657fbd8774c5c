package harness

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"reflect"

	"github.com/roach88/facetdb/internal/backend/sqlite"
	"github.com/roach88/facetdb/internal/eventdb"
	"github.com/roach88/facetdb/internal/record"
	"github.com/roach88/facetdb/internal/testutil"
)

// scenarioTable is the table every scenario writes to.
const scenarioTable = "records"

// Harness executes the steps of one scenario against its own store.
type Harness struct {
	db      *eventdb.DB
	clock   *testutil.DeterministicClock
	logger  *slog.Logger
	touched []string
	seen    map[string]bool
}

// Option configures a scenario run.
type Option func(*runOptions)

type runOptions struct {
	logger *slog.Logger
}

// WithLogger routes store and step logs to l. Runs are silent by default.
func WithLogger(l *slog.Logger) Option {
	return func(o *runOptions) { o.logger = l }
}

// Run executes a scenario and returns the result.
//
// Each scenario runs in a fresh SQLite database in a temporary directory
// that is removed afterwards. A returned error means the scenario could not
// be executed; unmet expectations are reported in Result.Errors.
func Run(scenario *Scenario, opts ...Option) (*Result, error) {
	o := runOptions{logger: slog.New(slog.NewTextHandler(io.Discard, nil))}
	for _, opt := range opts {
		opt(&o)
	}

	dir, err := os.MkdirTemp("", "facetdb-scenario-*")
	if err != nil {
		return nil, fmt.Errorf("failed to create scenario directory: %w", err)
	}
	defer os.RemoveAll(dir)

	st, err := sqlite.Open(filepath.Join(dir, "scenario.db"))
	if err != nil {
		return nil, fmt.Errorf("failed to create scenario store: %w", err)
	}
	defer st.Close()

	db, err := eventdb.New(st, scenarioTable, scenario.Facet, eventdb.WithLogger(o.logger))
	if err != nil {
		return nil, err
	}

	h := &Harness{
		db:     db,
		clock:  testutil.NewDeterministicClock(),
		logger: o.logger,
		seen:   make(map[string]bool),
	}

	ctx := context.Background()
	result := NewResult()
	for i, step := range scenario.Steps {
		n := i + 1
		var err error
		switch {
		case step.Put != nil:
			err = h.executePut(ctx, n, step.Put, result)
		case step.Get != nil:
			err = h.executeGet(ctx, n, step.Get, result)
		case step.History != nil:
			err = h.executeHistory(ctx, n, step.History, result)
		case step.Index != nil:
			err = h.executeIndex(ctx, n, step.Index, result)
		}
		if err != nil {
			return nil, fmt.Errorf("step %d (%s): %w", n, step.Op(), err)
		}
	}

	for _, id := range h.touched {
		history, err := db.QueryRecords(ctx, id)
		if err != nil {
			return nil, fmt.Errorf("failed to read history of %s: %w", id, err)
		}
		result.Histories[id] = history
	}
	return result, nil
}

func (h *Harness) executePut(ctx context.Context, n int, step *PutStep, result *Result) error {
	if !h.seen[step.ID] {
		h.seen[step.ID] = true
		h.touched = append(h.touched, step.ID)
	}

	// One tick per put, whether or not it commits.
	ts := h.clock.Now()
	version := step.ExpectedVersion + 1

	body, err := record.EncodeJSON(step.State)
	if err != nil {
		return err
	}
	state := record.NewState(h.db.Facet(), step.ID, version, body, ts)

	inbound := make([]record.Record, 0, len(step.Inbound))
	for _, e := range step.Inbound {
		payload, err := encodePayload(e.Payload)
		if err != nil {
			return err
		}
		inbound = append(inbound, record.NewInbound(h.facetOf(e), step.ID, e.Sequence, e.EventType, payload, ts))
	}

	outbound := make([]record.Record, 0, len(step.Outbound))
	for _, e := range step.Outbound {
		payload, err := encodePayload(e.Payload)
		if err != nil {
			return err
		}
		sv := e.StateVersion
		if sv == 0 {
			sv = version
		}
		outbound = append(outbound, record.NewOutbound(h.facetOf(e), step.ID, sv, e.Sequence, e.EventType, payload, ts))
	}

	indexes := make([]record.Record, 0, len(step.Indexes))
	for _, idx := range step.Indexes {
		indexes = append(indexes, record.Project(state, idx.Name, idx.Value))
	}

	err = h.db.PutState(ctx, state, step.ExpectedVersion, inbound, outbound, indexes)
	outcome := fmt.Sprintf("ok v%d", version)
	if err != nil {
		outcome = string(eventdb.KindOf(err))
	}
	result.AddOutcome(n, "put", step.ID, outcome)
	h.logger.Debug("put step completed", "step", n, "id", step.ID, "outcome", outcome)

	switch {
	case step.ExpectError == "" && err != nil:
		result.AddError(fmt.Sprintf("step %d: put %s failed: %v", n, step.ID, err))
	case step.ExpectError != "" && err == nil:
		result.AddError(fmt.Sprintf("step %d: put %s succeeded, expected %s", n, step.ID, step.ExpectError))
	case step.ExpectError != "" && string(eventdb.KindOf(err)) != step.ExpectError:
		result.AddError(fmt.Sprintf("step %d: put %s failed with %s, expected %s", n, step.ID, eventdb.KindOf(err), step.ExpectError))
	}
	return nil
}

func (h *Harness) executeGet(ctx context.Context, n int, step *GetStep, result *Result) error {
	r, found, err := h.db.GetState(ctx, step.ID)
	if err != nil {
		return err
	}

	if !found {
		result.AddOutcome(n, "get", step.ID, "missing")
		if !step.ExpectMissing {
			result.AddError(fmt.Sprintf("step %d: get %s: state not found", n, step.ID))
		}
		return nil
	}

	result.AddOutcome(n, "get", step.ID, fmt.Sprintf("v%d", r.Version))
	if step.ExpectMissing {
		result.AddError(fmt.Sprintf("step %d: get %s: expected no state, found v%d", n, step.ID, r.Version))
		return nil
	}
	if step.ExpectVersion != 0 && r.Version != step.ExpectVersion {
		result.AddError(fmt.Sprintf("step %d: get %s: expected version %d, got %d", n, step.ID, step.ExpectVersion, r.Version))
	}
	if step.ExpectState != nil {
		equal, err := jsonEqual(step.ExpectState, r.State)
		if err != nil {
			return err
		}
		if !equal {
			result.AddError(fmt.Sprintf("step %d: get %s: state %s does not match expected", n, step.ID, r.State))
		}
	}
	return nil
}

func (h *Harness) executeHistory(ctx context.Context, n int, step *HistoryStep, result *Result) error {
	records, err := h.db.QueryRecords(ctx, step.ID)
	if err != nil {
		return err
	}
	result.AddOutcome(n, "history", step.ID, fmt.Sprintf("%d records", len(records)))

	if step.ExpectTypes == nil {
		return nil
	}
	types := make([]string, len(records))
	for i, r := range records {
		types[i] = string(r.Type)
	}
	if !reflect.DeepEqual(types, step.ExpectTypes) {
		result.AddError(fmt.Sprintf("step %d: history %s: expected types %v, got %v", n, step.ID, step.ExpectTypes, types))
	}
	return nil
}

func (h *Harness) executeIndex(ctx context.Context, n int, step *IndexStep, result *Result) error {
	records, err := h.db.QueryRecordsBySecondaryIndex(ctx, step.Name, step.Value)
	if err != nil {
		return err
	}
	target := step.Name + "/" + step.Value
	result.AddOutcome(n, "index", target, fmt.Sprintf("%d records", len(records)))

	if len(records) != step.ExpectCount {
		result.AddError(fmt.Sprintf("step %d: index %s: expected %d records, got %d", n, target, step.ExpectCount, len(records)))
	}
	return nil
}

func (h *Harness) facetOf(e EventSpec) string {
	if e.Facet != "" {
		return e.Facet
	}
	return h.db.Facet()
}

// encodePayload leaves absent payloads empty rather than encoding null.
func encodePayload(v any) (json.RawMessage, error) {
	if v == nil {
		return nil, nil
	}
	return record.EncodeJSON(v)
}

// jsonEqual compares a YAML-decoded value with a stored JSON body after
// normalizing both through encoding/json.
func jsonEqual(expected any, actual json.RawMessage) (bool, error) {
	data, err := json.Marshal(expected)
	if err != nil {
		return false, fmt.Errorf("encode expected state: %w", err)
	}
	var want, got any
	if err := json.Unmarshal(data, &want); err != nil {
		return false, err
	}
	if err := json.Unmarshal(actual, &got); err != nil {
		return false, fmt.Errorf("decode stored state: %w", err)
	}
	return reflect.DeepEqual(want, got), nil
}
