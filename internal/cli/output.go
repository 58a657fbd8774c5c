package cli

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"github.com/roach88/facetdb/internal/eventdb"
)

// Process exit codes.
const (
	ExitSuccess      = 0
	ExitFailure      = 1 // the store refused the operation, or a scenario failed
	ExitCommandError = 2 // bad flags, unreadable input, unreachable backend
)

// ExitError carries the process exit code for a failed command.
type ExitError struct {
	Code    int
	Message string
	Err     error
}

func (e *ExitError) Error() string {
	if e.Err == nil {
		return e.Message
	}
	return fmt.Sprintf("%s: %v", e.Message, e.Err)
}

func (e *ExitError) Unwrap() error { return e.Err }

// NewExitError returns an ExitError without an underlying cause.
func NewExitError(code int, message string) *ExitError {
	return WrapExitError(code, message, nil)
}

// WrapExitError attaches an exit code and message to err.
func WrapExitError(code int, message string, err error) *ExitError {
	return &ExitError{Code: code, Message: message, Err: err}
}

// GetExitCode returns the code of the first ExitError in err's chain,
// or ExitFailure.
func GetExitCode(err error) int {
	var exitErr *ExitError
	if errors.As(err, &exitErr) {
		return exitErr.Code
	}
	return ExitFailure
}

// OutputFormatter writes command results as text or as a JSON envelope.
type OutputFormatter struct {
	Format string
	Writer io.Writer
}

// CLIResponse is the JSON envelope around every result.
type CLIResponse struct {
	Status string    `json:"status"`
	Data   any       `json:"data,omitempty"`
	Error  *CLIError `json:"error,omitempty"`
}

// CLIError describes a failed store operation. Code is the error kind,
// e.g. CONCURRENCY_CONFLICT.
type CLIError struct {
	Code      string `json:"code"`
	Message   string `json:"message"`
	Retryable bool   `json:"retryable"`
}

func (f *OutputFormatter) json() bool { return f.Format == "json" }

func (f *OutputFormatter) emit(resp CLIResponse) error {
	return json.NewEncoder(f.Writer).Encode(resp)
}

// Success writes data. Text output uses fmt.Fprintln, so result types
// implement fmt.Stringer.
func (f *OutputFormatter) Success(data any) error {
	if f.json() {
		return f.emit(CLIResponse{Status: "ok", Data: data})
	}
	_, err := fmt.Fprintln(f.Writer, data)
	return err
}

// Error writes a store failure.
func (f *OutputFormatter) Error(code, message string, retryable bool) error {
	if f.json() {
		return f.emit(CLIResponse{
			Status: "error",
			Error:  &CLIError{Code: code, Message: message, Retryable: retryable},
		})
	}
	_, err := fmt.Fprintf(f.Writer, "Error [%s]: %s\n", code, message)
	return err
}

// storeFailure reports a store error and returns the ExitError for it.
// Store errors exit with ExitFailure; anything else is a command error.
func storeFailure(f *OutputFormatter, message string, err error) error {
	kind := eventdb.KindOf(err)
	if kind == "" {
		return WrapExitError(ExitCommandError, message, err)
	}
	if outErr := f.Error(string(kind), err.Error(), kind.Retryable()); outErr != nil {
		return outErr
	}
	return WrapExitError(ExitFailure, message, err)
}
