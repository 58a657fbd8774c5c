package cli

import (
	"bytes"
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/facetdb/internal/eventdb"
)

func TestOutputFormatter_JSONSuccess(t *testing.T) {
	buf := &bytes.Buffer{}
	formatter := &OutputFormatter{Format: "json", Writer: buf}

	require.NoError(t, formatter.Success(PutResult{ID: "o-1", Version: 2, Items: 3}))

	var resp struct {
		Status string    `json:"status"`
		Data   PutResult `json:"data"`
	}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &resp))
	assert.Equal(t, "ok", resp.Status)
	assert.Equal(t, PutResult{ID: "o-1", Version: 2, Items: 3}, resp.Data)
}

func TestOutputFormatter_TextSuccess(t *testing.T) {
	buf := &bytes.Buffer{}
	formatter := &OutputFormatter{Format: "text", Writer: buf}

	require.NoError(t, formatter.Success(PutResult{ID: "o-1", Version: 2, Items: 3}))

	assert.Equal(t, "wrote o-1 v2 (3 items)\n", buf.String())
}

func TestOutputFormatter_JSONError(t *testing.T) {
	buf := &bytes.Buffer{}
	formatter := &OutputFormatter{Format: "json", Writer: buf}

	require.NoError(t, formatter.Error("CONCURRENCY_CONFLICT", "putState: state version changed since it was read", true))

	var resp CLIResponse
	require.NoError(t, json.Unmarshal(buf.Bytes(), &resp))
	assert.Equal(t, "error", resp.Status)
	require.NotNil(t, resp.Error)
	assert.Equal(t, "CONCURRENCY_CONFLICT", resp.Error.Code)
	assert.True(t, resp.Error.Retryable)
}

func TestOutputFormatter_TextError(t *testing.T) {
	buf := &bytes.Buffer{}
	formatter := &OutputFormatter{Format: "text", Writer: buf}

	require.NoError(t, formatter.Error("FACET_MISMATCH", "wrong facet", false))

	assert.Equal(t, "Error [FACET_MISMATCH]: wrong facet\n", buf.String())
}

func TestGetExitCode(t *testing.T) {
	assert.Equal(t, ExitCommandError, GetExitCode(NewExitError(ExitCommandError, "bad flag")))
	assert.Equal(t, ExitFailure, GetExitCode(errors.New("plain")))

	wrapped := WrapExitError(ExitFailure, "put failed", errors.New("conflict"))
	assert.Equal(t, "put failed: conflict", wrapped.Error())
	assert.Equal(t, "conflict", errors.Unwrap(wrapped).Error())
}

func TestStoreFailure(t *testing.T) {
	buf := &bytes.Buffer{}
	formatter := &OutputFormatter{Format: "text", Writer: buf}

	err := storeFailure(formatter, "put failed", eventdb.ErrConcurrencyConflict)
	assert.Equal(t, ExitFailure, GetExitCode(err))
	assert.Contains(t, buf.String(), "Error [CONCURRENCY_CONFLICT]")

	buf.Reset()
	err = storeFailure(formatter, "put failed", errors.New("disk on fire"))
	assert.Equal(t, ExitCommandError, GetExitCode(err))
	assert.Empty(t, buf.String())
}
