package harness

import "github.com/roach88/facetdb/internal/record"

// StepOutcome is the observed result of one step.
type StepOutcome struct {
	Step    int    `json:"step"`
	Op      string `json:"op"`
	Target  string `json:"target"`
	Outcome string `json:"outcome"`
}

// Result is the outcome of a scenario execution.
type Result struct {
	// Pass indicates overall scenario success.
	// True if every step matched its expectations.
	Pass bool `json:"pass"`

	// Steps holds one outcome per executed step, in order.
	Steps []StepOutcome `json:"steps"`

	// Errors contains expectation failures.
	// Empty if Pass is true.
	Errors []string `json:"errors,omitempty"`

	// Histories maps every id written by a put step to its final history.
	Histories map[string][]record.Record `json:"histories"`
}

// NewResult creates a new passing result.
func NewResult() *Result {
	return &Result{
		Pass:      true,
		Steps:     []StepOutcome{},
		Errors:    []string{},
		Histories: make(map[string][]record.Record),
	}
}

// AddError adds an expectation failure and marks the result as failed.
func (r *Result) AddError(err string) {
	r.Errors = append(r.Errors, err)
	r.Pass = false
}

// AddOutcome records what a step did.
func (r *Result) AddOutcome(step int, op, target, outcome string) {
	r.Steps = append(r.Steps, StepOutcome{Step: step, Op: op, Target: target, Outcome: outcome})
}
