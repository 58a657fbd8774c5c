package harness

import (
	"bytes"
	"errors"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Scenario is a scripted sequence of store operations with expectations.
type Scenario struct {
	// Name uniquely identifies this scenario and names its golden file.
	Name string `yaml:"name"`

	// Description explains what this scenario validates.
	Description string `yaml:"description"`

	// Facet is the facet the scenario's store is scoped to.
	Facet string `yaml:"facet"`

	// Steps run in order against one fresh store.
	Steps []Step `yaml:"steps"`
}

// Step holds exactly one operation.
type Step struct {
	Put     *PutStep     `yaml:"put,omitempty"`
	Get     *GetStep     `yaml:"get,omitempty"`
	History *HistoryStep `yaml:"history,omitempty"`
	Index   *IndexStep   `yaml:"index,omitempty"`
}

// PutStep writes a state transition.
type PutStep struct {
	ID              string       `yaml:"id"`
	ExpectedVersion int64        `yaml:"expected_version"`
	State           any          `yaml:"state"`
	Inbound         []EventSpec  `yaml:"inbound,omitempty"`
	Outbound        []EventSpec  `yaml:"outbound,omitempty"`
	Indexes         []IndexEntry `yaml:"indexes,omitempty"`

	// ExpectError is the error kind the write must fail with, e.g.
	// CONCURRENCY_CONFLICT. Empty means the write must succeed.
	ExpectError string `yaml:"expect_error,omitempty"`
}

// EventSpec describes one inbound or outbound record.
type EventSpec struct {
	Sequence  int64  `yaml:"sequence"`
	EventType string `yaml:"event_type"`
	Payload   any    `yaml:"payload,omitempty"`

	// StateVersion applies to outbound records; zero means the version the
	// put writes.
	StateVersion int64 `yaml:"state_version,omitempty"`

	// Facet overrides the scenario facet, to script foreign-facet records.
	Facet string `yaml:"facet,omitempty"`
}

// IndexEntry files the put's state record under {name}/{value}.
type IndexEntry struct {
	Name  string `yaml:"name"`
	Value string `yaml:"value"`
}

// GetStep reads the current state of an id.
type GetStep struct {
	ID            string `yaml:"id"`
	ExpectMissing bool   `yaml:"expect_missing,omitempty"`
	ExpectVersion int64  `yaml:"expect_version,omitempty"`
	ExpectState   any    `yaml:"expect_state,omitempty"`
}

// HistoryStep reads the full history of an id.
type HistoryStep struct {
	ID          string   `yaml:"id"`
	ExpectTypes []string `yaml:"expect_types"`
}

// IndexStep reads a secondary-index bucket.
type IndexStep struct {
	Name        string `yaml:"name"`
	Value       string `yaml:"value"`
	ExpectCount int    `yaml:"expect_count"`
}

// Op returns the name of the step's operation.
func (s Step) Op() string {
	switch {
	case s.Put != nil:
		return "put"
	case s.Get != nil:
		return "get"
	case s.History != nil:
		return "history"
	case s.Index != nil:
		return "index"
	}
	return ""
}

// LoadScenario reads and parses a scenario YAML file.
// Returns an error if the file doesn't exist, is malformed,
// contains unknown fields (typos), or is missing required fields.
func LoadScenario(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read scenario file: %w", err)
	}
	return ParseScenario(data)
}

// ParseScenario parses scenario YAML.
func ParseScenario(data []byte) (*Scenario, error) {
	var scenario Scenario
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true) // Reject unknown fields
	if err := decoder.Decode(&scenario); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	if err := validateScenario(&scenario); err != nil {
		return nil, fmt.Errorf("invalid scenario: %w", err)
	}
	return &scenario, nil
}

// validateScenario checks that required fields are present and valid.
func validateScenario(s *Scenario) error {
	if s.Name == "" {
		return errors.New("name is required")
	}
	if s.Facet == "" {
		return errors.New("facet is required")
	}
	if len(s.Steps) == 0 {
		return errors.New("steps list is required and must be non-empty")
	}

	for i, step := range s.Steps {
		n := 0
		for _, set := range []bool{step.Put != nil, step.Get != nil, step.History != nil, step.Index != nil} {
			if set {
				n++
			}
		}
		if n != 1 {
			return fmt.Errorf("step %d: exactly one of put, get, history or index is required", i+1)
		}
		if err := validateStep(step); err != nil {
			return fmt.Errorf("step %d (%s): %w", i+1, step.Op(), err)
		}
	}
	return nil
}

func validateStep(step Step) error {
	switch {
	case step.Put != nil:
		if step.Put.ID == "" {
			return errors.New("id is required")
		}
		for _, idx := range step.Put.Indexes {
			if idx.Name == "" {
				return errors.New("index name is required")
			}
		}
	case step.Get != nil:
		if step.Get.ID == "" {
			return errors.New("id is required")
		}
	case step.History != nil:
		if step.History.ID == "" {
			return errors.New("id is required")
		}
	case step.Index != nil:
		if step.Index.Name == "" {
			return errors.New("name is required")
		}
	}
	return nil
}
