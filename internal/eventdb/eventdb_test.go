package eventdb

import (
	"bytes"
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/facetdb/internal/backend"
	"github.com/roach88/facetdb/internal/backend/sqlite"
	"github.com/roach88/facetdb/internal/record"
)

const facet = "facetName"

var ts = time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

// createTestDB creates a DB over a fresh SQLite database.
func createTestDB(t *testing.T) *DB {
	t.Helper()
	st, err := sqlite.Open(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })

	db, err := New(st, "records", facet)
	require.NoError(t, err)
	return db
}

// fakeBackend records calls and returns configured errors.
type fakeBackend struct {
	transactCalls int
	ops           []backend.Op
	transactErr   error
	readErr       error
}

func (f *fakeBackend) TransactWrite(_ context.Context, _ string, ops []backend.Op) error {
	f.transactCalls++
	f.ops = ops
	return f.transactErr
}

func (f *fakeBackend) Get(context.Context, string, string, string) (record.Record, bool, error) {
	return record.Record{}, false, f.readErr
}

func (f *fakeBackend) Query(context.Context, string, string) ([]record.Record, error) {
	if f.readErr != nil {
		return nil, f.readErr
	}
	return []record.Record{}, nil
}

func (f *fakeBackend) Close() error { return nil }

func createFakeDB(t *testing.T, fb *fakeBackend) *DB {
	t.Helper()
	db, err := New(fb, "records", facet)
	require.NoError(t, err)
	return db
}

func state(id string, version int64, body any) record.Record {
	return record.NewState(facet, id, version, record.MustJSON(body), ts)
}

func withVersion(r record.Record, v int64) record.Record {
	r.Version = v
	return r
}

func TestNew_RequiresConfiguration(t *testing.T) {
	fb := &fakeBackend{}

	_, err := New(nil, "t", "f")
	assert.Error(t, err)
	_, err = New(fb, "", "f")
	assert.Error(t, err)
	_, err = New(fb, "t", "")
	assert.Error(t, err)

	db, err := New(fb, "t", "f")
	require.NoError(t, err)
	assert.Equal(t, "t", db.Table())
	assert.Equal(t, "f", db.Facet())
}

func TestGetState_ReturnsWrittenRecord(t *testing.T) {
	db := createTestDB(t)
	ctx := context.Background()
	s := state("idValue", 1, map[string]string{"key": "value"})

	require.NoError(t, db.PutState(ctx, s, 0, nil, nil, nil))

	got, found, err := db.GetState(ctx, "idValue")
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, s, got)
}

func TestGetState_NotFound(t *testing.T) {
	db := createTestDB(t)

	got, found, err := db.GetState(context.Background(), "missing")

	require.NoError(t, err)
	assert.False(t, found)
	assert.Equal(t, record.Record{}, got)
}

func TestPutState_SequentialVersions(t *testing.T) {
	db := createTestDB(t)
	ctx := context.Background()

	s1 := state("idValue", 1, map[string]string{"key": "value1"})
	s2 := state("idValue", 2, map[string]string{"key": "value2"})
	require.NoError(t, db.PutState(ctx, s1, 0, nil, nil, nil))
	require.NoError(t, db.PutState(ctx, s2, 1, nil, nil, nil))

	got, found, err := db.GetState(ctx, "idValue")
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, s2, got)
	assert.Equal(t, int64(2), got.Version)
}

func TestPutState_VersionIsExpectedPlusOne(t *testing.T) {
	db := createTestDB(t)
	ctx := context.Background()

	require.NoError(t, db.PutState(ctx, state("a", 42, nil), 0, nil, nil, nil))

	got, _, err := db.GetState(ctx, "a")
	require.NoError(t, err)
	assert.Equal(t, int64(1), got.Version)
}

func TestPutState_StaleVersionConflicts(t *testing.T) {
	db := createTestDB(t)
	ctx := context.Background()

	require.NoError(t, db.PutState(ctx, state("a", 1, "first"), 0, nil, nil, nil))
	require.NoError(t, db.PutState(ctx, state("a", 2, "second"), 1, nil, nil, nil))

	for _, expected := range []int64{0, 1} {
		in := record.NewInbound(facet, "a", 99, "late", nil, ts)
		err := db.PutState(ctx, state("a", expected+1, "stale"), expected, []record.Record{in}, nil, nil)
		require.Error(t, err)
		assert.True(t, IsConflict(err), "expected %d: %v", expected, err)
		assert.ErrorIs(t, err, ErrConcurrencyConflict)
		assert.True(t, IsRetryable(err))
	}

	got, _, err := db.GetState(ctx, "a")
	require.NoError(t, err)
	assert.Equal(t, state("a", 2, "second"), got)

	history, err := db.QueryRecords(ctx, "a")
	require.NoError(t, err)
	assert.Len(t, history, 1, "conflicting writes must not leave events behind")
}

func TestPutState_ExpectedVersionAheadConflicts(t *testing.T) {
	db := createTestDB(t)
	ctx := context.Background()

	err := db.PutState(ctx, state("a", 3, nil), 2, nil, nil, nil)
	assert.True(t, IsConflict(err), "missing state: %v", err)

	require.NoError(t, db.PutState(ctx, state("a", 1, nil), 0, nil, nil, nil))
	err = db.PutState(ctx, state("a", 5, nil), 4, nil, nil, nil)
	assert.True(t, IsConflict(err), "ahead of stored: %v", err)
}

func TestPutState_InboundRecords(t *testing.T) {
	db := createTestDB(t)
	ctx := context.Background()

	s := state("idValue", 3, map[string]string{"key": "value1"})
	inbound := []record.Record{
		record.NewInbound(facet, "idValue", 1, "inbound", record.MustJSON(map[string]string{"record": "inbound1"}), ts),
		record.NewInbound(facet, "idValue", 2, "inbound", record.MustJSON(map[string]string{"record": "inbound2"}), ts),
	}
	require.NoError(t, db.PutState(ctx, s, 0, inbound, nil, nil))

	got, err := db.QueryRecords(ctx, "idValue")
	require.NoError(t, err)
	assert.Equal(t, []record.Record{inbound[0], inbound[1], withVersion(s, 1)}, got)
}

func TestPutState_OutboundRecords(t *testing.T) {
	db := createTestDB(t)
	ctx := context.Background()

	s := state("idValue", 1, map[string]string{"key": "value1"})
	inbound := []record.Record{
		record.NewInbound(facet, "idValue", 1, "inbound", record.MustJSON(map[string]string{"record": "inbound1"}), ts),
		record.NewInbound(facet, "idValue", 2, "inbound", record.MustJSON(map[string]string{"record": "inbound2"}), ts),
	}
	outbound := []record.Record{
		record.NewOutbound(facet, "idValue", 3, 0, "inbound", record.MustJSON(map[string]string{"record": "inbound1"}), ts),
		record.NewOutbound(facet, "idValue", 3, 1, "outbound", record.MustJSON(map[string]string{"outbound": "test1"}), ts),
	}
	require.NoError(t, db.PutState(ctx, s, 0, inbound, outbound, nil))

	got, err := db.QueryRecords(ctx, "idValue")
	require.NoError(t, err)
	assert.Equal(t, []record.Record{inbound[0], inbound[1], outbound[0], outbound[1], s}, got)

	gotIn, err := db.QueryInbound(ctx, "idValue")
	require.NoError(t, err)
	assert.Equal(t, inbound, gotIn)

	gotOut, err := db.QueryOutbound(ctx, "idValue")
	require.NoError(t, err)
	assert.Equal(t, outbound, gotOut)
}

func TestPutState_HistoryAccumulatesAcrossVersions(t *testing.T) {
	db := createTestDB(t)
	ctx := context.Background()

	in1 := record.NewInbound(facet, "a", 1, "opened", nil, ts)
	out1 := record.NewOutbound(facet, "a", 1, 0, "notified", nil, ts)
	require.NoError(t, db.PutState(ctx, state("a", 1, "v1"), 0, []record.Record{in1}, []record.Record{out1}, nil))

	in2 := record.NewInbound(facet, "a", 2, "closed", nil, ts)
	out2 := record.NewOutbound(facet, "a", 2, 0, "notified", nil, ts)
	s2 := state("a", 2, "v2")
	require.NoError(t, db.PutState(ctx, s2, 1, []record.Record{in2}, []record.Record{out2}, nil))

	got, err := db.QueryRecords(ctx, "a")
	require.NoError(t, err)
	assert.Equal(t, []record.Record{in1, in2, out1, out2, s2}, got)
}

func TestQueryRecords_Empty(t *testing.T) {
	db := createTestDB(t)

	got, err := db.QueryRecords(context.Background(), "none")

	require.NoError(t, err)
	assert.NotNil(t, got)
	assert.Empty(t, got)
}

func TestPutState_SecondaryIndex(t *testing.T) {
	db := createTestDB(t)
	ctx := context.Background()
	byID := func(r record.Record, value string) record.Record {
		return record.Project(r, "secondaryIndex", value)
	}

	s1 := state("idValue", 1, map[string]string{"key": "value1"})
	require.NoError(t, db.PutState(ctx, s1, 0, nil, nil, []record.Record{byID(s1, "idValue")}))

	s2 := state("idValue", 2, map[string]string{"key": "value2"})
	require.NoError(t, db.PutState(ctx, s2, 1, nil, nil, []record.Record{byID(s2, "idValue")}))

	got, found, err := db.GetState(ctx, "idValue")
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, s2, got)

	indexed, err := db.QueryRecordsBySecondaryIndex(ctx, "secondaryIndex", "idValue")
	require.NoError(t, err)
	require.Len(t, indexed, 1)
	want := s2
	want.Key = "facetName/secondaryIndex/idValue"
	assert.Equal(t, want, indexed[0])
}

func TestPutState_SecondaryIndexSharedByEntities(t *testing.T) {
	db := createTestDB(t)
	ctx := context.Background()

	a := state("a", 1, map[string]string{"status": "placed"})
	b := state("b", 1, map[string]string{"status": "placed"})
	require.NoError(t, db.PutState(ctx, a, 0, nil, nil, []record.Record{record.Project(a, "byStatus", "placed")}))
	require.NoError(t, db.PutState(ctx, b, 0, nil, nil, []record.Record{record.Project(b, "byStatus", "placed")}))

	placed, err := db.QueryRecordsBySecondaryIndex(ctx, "byStatus", "placed")
	require.NoError(t, err)
	require.Len(t, placed, 2)
	assert.Equal(t, record.Project(a, "byStatus", "placed"), placed[0])
	assert.Equal(t, record.Project(b, "byStatus", "placed"), placed[1])

	a2 := state("a", 2, map[string]string{"status": "placed", "note": "gift"})
	require.NoError(t, db.PutState(ctx, a2, 1, nil, nil, []record.Record{record.Project(a2, "byStatus", "placed")}))

	placed, err = db.QueryRecordsBySecondaryIndex(ctx, "byStatus", "placed")
	require.NoError(t, err)
	require.Len(t, placed, 2, "rewriting one entity's entry replaces only that entry")
	assert.Equal(t, record.Project(a2, "byStatus", "placed"), placed[0])
}

func TestPutState_EventIndexSharedByEntities(t *testing.T) {
	db := createTestDB(t)
	ctx := context.Background()

	for _, id := range []string{"a", "b"} {
		in := record.NewInbound(facet, id, 1, "paid", nil, ts)
		indexes := record.ProjectAll([]record.Record{in}, record.ByEventType("byType"))
		require.NoError(t, db.PutState(ctx, state(id, 1, nil), 0, []record.Record{in}, nil, indexes))
	}

	paid, err := db.QueryRecordsBySecondaryIndex(ctx, "byType", "paid")
	require.NoError(t, err)
	require.Len(t, paid, 2)
	assert.Equal(t, "a", paid[0].ID)
	assert.Equal(t, "b", paid[1].ID)
}

func TestPutState_IndexOfStateTracksWrittenVersion(t *testing.T) {
	db := createTestDB(t)
	ctx := context.Background()

	s := state("a", 9, nil)
	require.NoError(t, db.PutState(ctx, s, 0, nil, nil, []record.Record{record.Project(s, "idx", "a")}))

	indexed, err := db.QueryRecordsBySecondaryIndex(ctx, "idx", "a")
	require.NoError(t, err)
	require.Len(t, indexed, 1)
	assert.Equal(t, int64(1), indexed[0].Version)
}

func TestPutState_IndexesEventsByArbitraryField(t *testing.T) {
	db := createTestDB(t)
	ctx := context.Background()

	in := record.NewInbound(facet, "a", 1, "paid", nil, ts)
	out := record.NewOutbound(facet, "a", 1, 0, "receipt", nil, ts)
	indexes := record.ProjectAll([]record.Record{in, out}, record.ByEventType("byType"))
	require.NoError(t, db.PutState(ctx, state("a", 1, nil), 0, []record.Record{in}, []record.Record{out}, indexes))

	paid, err := db.QueryRecordsBySecondaryIndex(ctx, "byType", "paid")
	require.NoError(t, err)
	require.Len(t, paid, 1)
	assert.Equal(t, record.Project(in, "byType", "paid"), paid[0])

	none, err := db.QueryRecordsBySecondaryIndex(ctx, "byType", "refunded")
	require.NoError(t, err)
	assert.Empty(t, none)
}

func TestPutState_OutboundAsStateRejected(t *testing.T) {
	fb := &fakeBackend{}
	db := createFakeDB(t, fb)

	err := db.PutState(context.Background(), record.NewOutbound("not_important", "", 0, 0, "test", nil, ts), 0, nil, nil, nil)

	require.Error(t, err)
	assert.Equal(t, KindInvalidRecordType, KindOf(err))
	assert.EqualError(t, err, "putState: invalid state record")
	assert.Equal(t, 0, fb.transactCalls)
}

func TestPutState_TooLarge(t *testing.T) {
	fb := &fakeBackend{}
	db := createFakeDB(t, fb)

	inbound := make([]record.Record, 26)
	for i := range inbound {
		inbound[i] = record.NewInbound(facet, "id", int64(i), "anyTypeName", nil, ts)
	}
	err := db.PutState(context.Background(), state("", 0, nil), 0, inbound, nil, nil)

	require.Error(t, err)
	assert.ErrorIs(t, err, ErrTransactionTooLarge)
	assert.EqualError(t, err,
		"putState: cannot exceed maximum transaction count of 25. The transaction attempted to write 27.")
	assert.False(t, IsRetryable(err))
	assert.Equal(t, 0, fb.transactCalls)
}

func TestPutState_ExactlyAtLimit(t *testing.T) {
	db := createTestDB(t)
	ctx := context.Background()

	inbound := make([]record.Record, 12)
	outbound := make([]record.Record, 12)
	for i := range inbound {
		inbound[i] = record.NewInbound(facet, "a", int64(i), "in", nil, ts)
		outbound[i] = record.NewOutbound(facet, "a", 1, int64(i), "out", nil, ts)
	}
	require.NoError(t, db.PutState(ctx, state("a", 1, nil), 0, inbound, outbound, nil))

	got, err := db.QueryRecords(ctx, "a")
	require.NoError(t, err)
	assert.Len(t, got, 25)
}

func TestPutState_TooLargeWritesNothing(t *testing.T) {
	db := createTestDB(t)
	ctx := context.Background()

	inbound := make([]record.Record, 20)
	for i := range inbound {
		inbound[i] = record.NewInbound(facet, "a", int64(i), "in", nil, ts)
	}
	s := state("a", 1, nil)
	indexes := []record.Record{}
	for i := 0; i < 5; i++ {
		indexes = append(indexes, record.Project(s, "idx", string(rune('a'+i))))
	}

	err := db.PutState(ctx, s, 0, inbound, nil, indexes)
	assert.ErrorIs(t, err, ErrTransactionTooLarge)

	got, err := db.QueryRecords(ctx, "a")
	require.NoError(t, err)
	assert.Empty(t, got)
	_, found, err := db.GetState(ctx, "a")
	require.NoError(t, err)
	assert.False(t, found)
}

func TestPutState_NegativeExpectedVersion(t *testing.T) {
	fb := &fakeBackend{}
	db := createFakeDB(t, fb)

	err := db.PutState(context.Background(), state("a", 0, nil), -1, nil, nil, nil)

	assert.ErrorIs(t, err, ErrInvalidExpectedVersion)
	assert.Equal(t, 0, fb.transactCalls)
}

func TestPutState_BackendRejectionIsAtomic(t *testing.T) {
	db := createTestDB(t)
	ctx := context.Background()

	// Two inbound records with the same sequence address the same item.
	in := record.NewInbound(facet, "a", 1, "dup", nil, ts)
	err := db.PutState(ctx, state("a", 1, nil), 0, []record.Record{in, in}, nil, nil)

	require.Error(t, err)
	assert.Equal(t, KindBackendRejected, KindOf(err))
	assert.False(t, IsRetryable(err))

	got, err := db.QueryRecords(ctx, "a")
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestPutState_TranslatesBackendErrors(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want Kind
	}{
		{"condition", conditionFailed(), KindConcurrencyConflict},
		{"unavailable", backend.Unavailable("transact", errors.New("throttled")), KindBackendUnavailable},
		{"other", errors.New("malformed item"), KindBackendRejected},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fb := &fakeBackend{transactErr: tt.err}
			db := createFakeDB(t, fb)

			err := db.PutState(context.Background(), state("a", 1, nil), 0, nil, nil, nil)

			assert.Equal(t, tt.want, KindOf(err))
			assert.ErrorIs(t, err, tt.err, "backend detail must stay reachable")
			assert.Equal(t, 1, fb.transactCalls, "no automatic retry")
		})
	}
}

func conditionFailed() error {
	return errors.Join(errors.New("stored version 3, expected 1"), backend.ErrConditionFailed)
}

func TestPutState_OpsOrder(t *testing.T) {
	fb := &fakeBackend{}
	db := createFakeDB(t, fb)

	s := state("a", 1, nil)
	in := record.NewInbound(facet, "a", 1, "in", nil, ts)
	out := record.NewOutbound(facet, "a", 1, 0, "out", nil, ts)
	idx := record.Project(in, "idx", "v")
	require.NoError(t, db.PutState(context.Background(), s, 0, []record.Record{in}, []record.Record{out}, []record.Record{idx}))

	require.Len(t, fb.ops, 4)
	assert.Equal(t, backend.Op{Kind: backend.OpPutState, Record: s, ExpectedVersion: 0}, fb.ops[0])
	assert.Equal(t, backend.Op{Kind: backend.OpPut, Record: in}, fb.ops[1])
	assert.Equal(t, backend.Op{Kind: backend.OpPut, Record: out}, fb.ops[2])
	assert.Equal(t, backend.Op{Kind: backend.OpPut, Record: idx}, fb.ops[3])
}

func TestReads_TranslateBackendErrors(t *testing.T) {
	fb := &fakeBackend{readErr: backend.Unavailable("get", errors.New("timeout"))}
	db := createFakeDB(t, fb)
	ctx := context.Background()

	_, _, err := db.GetState(ctx, "a")
	assert.ErrorIs(t, err, ErrBackendUnavailable)

	_, err = db.QueryRecords(ctx, "a")
	assert.ErrorIs(t, err, ErrBackendUnavailable)

	_, err = db.QueryRecordsBySecondaryIndex(ctx, "idx", "v")
	assert.ErrorIs(t, err, ErrBackendUnavailable)

	fb.readErr = errors.New("bad key")
	_, err = db.QueryInbound(ctx, "a")
	assert.ErrorIs(t, err, ErrBackendRejected)
}

func TestWriteMetrics(t *testing.T) {
	db := createTestDB(t)
	ctx := context.Background()

	require.NoError(t, db.PutState(ctx, state("a", 1, nil), 0, nil, nil, nil))
	_ = db.PutState(ctx, state("a", 1, nil), 0, nil, nil, nil)
	_, _, _ = db.GetState(ctx, "a")

	var buf bytes.Buffer
	db.WriteMetrics(&buf)
	out := buf.String()
	assert.Contains(t, out, `facetdb_writes_total{facet="facetName"} 1`)
	assert.Contains(t, out, `facetdb_write_errors_total{facet="facetName",kind="CONCURRENCY_CONFLICT"} 1`)
	assert.Contains(t, out, `facetdb_reads_total{facet="facetName"} 1`)
}
