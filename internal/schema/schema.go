// Package schema checks JSON batch documents against an embedded CUE
// schema before they are decoded, so malformed input is reported with the
// offending field and position.
package schema

import (
	_ "embed"
	"fmt"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	"cuelang.org/go/cue/errors"
	"cuelang.org/go/cue/token"
)

//go:embed batch.cue
var batchSchema string

// Error is a schema violation with its source position when known.
type Error struct {
	Message string
	Pos     token.Pos
}

func (e *Error) Error() string {
	if e.Pos.IsValid() {
		return fmt.Sprintf("%s:%d:%d: %s", e.Pos.Filename(), e.Pos.Line(), e.Pos.Column(), e.Message)
	}
	return e.Message
}

// ValidateBatch checks a batch document. name labels positions in errors.
func ValidateBatch(name string, data []byte) error {
	// cue.Context is not safe for concurrent use; build one per call.
	ctx := cuecontext.New()

	s := ctx.CompileString(batchSchema, cue.Filename("batch.cue"))
	if err := s.Err(); err != nil {
		return fmt.Errorf("compile batch schema: %w", err)
	}
	def := s.LookupPath(cue.ParsePath("#Batch"))

	doc := ctx.CompileBytes(data, cue.Filename(name))
	if err := doc.Err(); err != nil {
		return formatCUEError(err)
	}
	if err := def.Unify(doc).Validate(cue.Concrete(true)); err != nil {
		return formatCUEError(err)
	}
	return nil
}

// formatCUEError keeps the first error and its position.
func formatCUEError(err error) error {
	errs := errors.Errors(err)
	if len(errs) == 0 {
		return &Error{Message: err.Error()}
	}

	first := errs[0]
	e := &Error{Message: first.Error()}
	if positions := errors.Positions(first); len(positions) > 0 {
		e.Pos = positions[0]
	}
	return e
}
