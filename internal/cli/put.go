package cli

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/roach88/facetdb/internal/record"
	"github.com/roach88/facetdb/internal/schema"
)

// Batch is the JSON document the put command reads.
type Batch struct {
	ID              string          `json:"id"`
	ExpectedVersion int64           `json:"expected_version"`
	State           json.RawMessage `json:"state"`
	Inbound         []BatchEvent    `json:"inbound"`
	Outbound        []BatchEvent    `json:"outbound"`
	Indexes         []BatchIndex    `json:"indexes"`
}

// BatchEvent is an inbound or outbound event of a batch. StateVersion is
// only read for outbound events; zero means the version being written.
type BatchEvent struct {
	StateVersion int64           `json:"state_version,omitempty"`
	Sequence     int64           `json:"sequence"`
	EventType    string          `json:"event_type"`
	Payload      json.RawMessage `json:"payload,omitempty"`
}

// BatchIndex files the batch's state record under {name}/{value}.
type BatchIndex struct {
	Name  string `json:"name"`
	Value string `json:"value"`
}

// PutResult describes a committed batch.
type PutResult struct {
	ID      string `json:"id"`
	Version int64  `json:"version"`
	Items   int    `json:"items"`
}

func (r PutResult) String() string {
	return fmt.Sprintf("wrote %s v%d (%d items)", r.ID, r.Version, r.Items)
}

// NewPutCommand creates the put command.
func NewPutCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "put <batch.json|->",
		Short: "Write a state transition",
		Long: `Write a state record with its inbound, outbound and index records
in one transaction.

The batch is read from a JSON file, or from stdin when the argument is "-":

  {
    "id": "o-1",
    "expected_version": 0,
    "state": {"status": "placed"},
    "inbound": [{"sequence": 1, "event_type": "OrderPlaced", "payload": {}}],
    "outbound": [{"sequence": 0, "event_type": "ReserveStock"}],
    "indexes": [{"name": "byStatus", "value": "placed"}]
  }

The write fails with CONCURRENCY_CONFLICT (exit 1) if the stored version
is not expected_version.

Examples:
  facetdb put --facet orders batch.json
  cat batch.json | facetdb put --facet orders --format json -`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runPut(rootOpts, cmd, args[0])
		},
	}
	return cmd
}

func runPut(opts *RootOptions, cmd *cobra.Command, path string) error {
	batch, err := readBatch(cmd, path)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to read batch", err)
	}

	db, b, err := opts.openStore(cmd)
	if err != nil {
		return err
	}
	defer b.Close()

	ts := opts.Now()
	facet := db.Facet()
	version := batch.ExpectedVersion + 1

	state := record.NewState(facet, batch.ID, version, batch.State, ts)
	inbound := make([]record.Record, 0, len(batch.Inbound))
	for _, e := range batch.Inbound {
		inbound = append(inbound, record.NewInbound(facet, batch.ID, e.Sequence, e.EventType, e.Payload, ts))
	}
	outbound := make([]record.Record, 0, len(batch.Outbound))
	for _, e := range batch.Outbound {
		sv := e.StateVersion
		if sv == 0 {
			sv = version
		}
		outbound = append(outbound, record.NewOutbound(facet, batch.ID, sv, e.Sequence, e.EventType, e.Payload, ts))
	}
	indexes := make([]record.Record, 0, len(batch.Indexes))
	for _, idx := range batch.Indexes {
		indexes = append(indexes, record.Project(state, idx.Name, idx.Value))
	}

	f := opts.formatter(cmd)
	if err := db.PutState(cmd.Context(), state, batch.ExpectedVersion, inbound, outbound, indexes); err != nil {
		return storeFailure(f, "put failed", err)
	}
	return f.Success(PutResult{
		ID:      batch.ID,
		Version: version,
		Items:   1 + len(inbound) + len(outbound) + len(indexes),
	})
}

// readBatch decodes a batch from path, or from stdin for "-", after checking
// it against the batch schema. JSON bodies are compacted so stored records
// do not carry the file's formatting.
func readBatch(cmd *cobra.Command, path string) (*Batch, error) {
	var (
		data []byte
		err  error
	)
	if path == "-" {
		data, err = io.ReadAll(cmd.InOrStdin())
		path = "stdin"
	} else {
		data, err = os.ReadFile(path)
	}
	if err != nil {
		return nil, err
	}

	if err := schema.ValidateBatch(path, data); err != nil {
		return nil, err
	}
	var batch Batch
	if err := json.Unmarshal(data, &batch); err != nil {
		return nil, fmt.Errorf("decode batch: %w", err)
	}

	if batch.State, err = compact(batch.State); err != nil {
		return nil, fmt.Errorf("state: %w", err)
	}
	for i := range batch.Inbound {
		if batch.Inbound[i].Payload, err = compact(batch.Inbound[i].Payload); err != nil {
			return nil, fmt.Errorf("inbound %d: %w", i, err)
		}
	}
	for i := range batch.Outbound {
		if batch.Outbound[i].Payload, err = compact(batch.Outbound[i].Payload); err != nil {
			return nil, fmt.Errorf("outbound %d: %w", i, err)
		}
	}
	return &batch, nil
}

func compact(raw json.RawMessage) (json.RawMessage, error) {
	if len(raw) == 0 {
		return nil, nil
	}
	var buf bytes.Buffer
	if err := json.Compact(&buf, raw); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
