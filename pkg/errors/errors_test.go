package errors_test

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	scanerr "github.com/mrz1836/hdscan/pkg/errors"
)

var (
	errInner     = errors.New("inner")
	errRootCause = errors.New("root cause")
	errPlain     = errors.New("plain error")
)

func TestExitCodes(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name     string
		err      error
		expected int
	}{
		{"success", nil, scanerr.ExitSuccess},
		{"general error", scanerr.ErrGeneral, scanerr.ExitGeneral},
		{"input error", scanerr.ErrInvalidInput, scanerr.ExitInput},
		{"invalid key", scanerr.ErrInvalidKeyMaterial, scanerr.ExitInput},
		{"not found error", scanerr.ErrNotFound, scanerr.ExitNotFound},
		{"endpoints down", scanerr.ErrAllEndpointsUnavailable, scanerr.ExitUnavailable},
		{"connection lost", scanerr.ErrConnectionLost, scanerr.ExitUnavailable},
		{"query failed", scanerr.ErrIndexerQueryFailed, scanerr.ExitUnavailable},
		{"plain error", errPlain, scanerr.ExitGeneral},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.expected, scanerr.ExitCode(tt.err))
		})
	}
}

func TestExitCodeWrappedError(t *testing.T) {
	t.Parallel()
	wrapped := scanerr.Wrap(scanerr.ErrAllEndpointsUnavailable, "connect")
	assert.Equal(t, scanerr.ExitUnavailable, scanerr.ExitCode(wrapped))

	// fmt wrapping keeps the code reachable through errors.As
	wrapped = fmt.Errorf("scan: %w", wrapped)
	assert.Equal(t, scanerr.ExitUnavailable, scanerr.ExitCode(wrapped))
}

func TestSentinelErrors(t *testing.T) {
	t.Parallel()
	sentinels := []*scanerr.ScanError{
		scanerr.ErrGeneral,
		scanerr.ErrInvalidKeyMaterial,
		scanerr.ErrDerivationFailed,
		scanerr.ErrAllEndpointsUnavailable,
		scanerr.ErrConnectionLost,
		scanerr.ErrIndexerQueryFailed,
		scanerr.ErrSweepFailed,
		scanerr.ErrConfigInvalid,
	}
	for _, s := range sentinels {
		require.ErrorIs(t, scanerr.Wrap(s, "wrapped"), s)
	}
	assert.NotErrorIs(t, scanerr.ErrConnectionLost, scanerr.ErrIndexerQueryFailed)
}

func TestErrorCode(t *testing.T) {
	t.Parallel()
	assert.Equal(t, "INVALID_KEY_MATERIAL", scanerr.Code(scanerr.ErrInvalidKeyMaterial))
	assert.Equal(t, "SWEEP_FAILED", scanerr.Code(scanerr.Wrap(scanerr.ErrSweepFailed, "hook")))
	assert.Equal(t, "GENERAL_ERROR", scanerr.Code(errPlain))
	assert.Equal(t, "GENERAL_ERROR", scanerr.Code(nil))
}

func TestWithDetails(t *testing.T) {
	t.Parallel()
	err := scanerr.WithDetails(scanerr.ErrAllEndpointsUnavailable, map[string]string{"a.example:50002": "refused"})

	var se *scanerr.ScanError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, "refused", se.Details["a.example:50002"])
	require.ErrorIs(t, err, scanerr.ErrAllEndpointsUnavailable)
	assert.Contains(t, err.Error(), "(a.example:50002: refused)")

	assert.NoError(t, scanerr.WithDetails(nil, map[string]string{"k": "v"}))

	plain := scanerr.WithDetails(errPlain, map[string]string{"k": "v"})
	require.ErrorAs(t, plain, &se)
	assert.Equal(t, "GENERAL_ERROR", se.Code)
	assert.ErrorIs(t, plain, errPlain)
}

func TestWithSuggestion(t *testing.T) {
	t.Parallel()
	err := scanerr.WithSuggestion(scanerr.ErrInvalidKeyMaterial, "check the words")

	var se *scanerr.ScanError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, "check the words", se.Suggestion)
	assert.Equal(t, scanerr.ExitInput, se.ExitCode)

	assert.NoError(t, scanerr.WithSuggestion(nil, "x"))
}

func TestWithCause(t *testing.T) {
	t.Parallel()
	err := scanerr.WithCause(scanerr.ErrConnectionLost, errRootCause)
	require.ErrorIs(t, err, scanerr.ErrConnectionLost)
	require.ErrorIs(t, err, errRootCause)
	assert.Equal(t, "indexer connection lost: root cause", err.Error())
}

func TestWrap(t *testing.T) {
	t.Parallel()
	assert.NoError(t, scanerr.Wrap(nil, "nothing"))

	err := scanerr.Wrap(errInner, "loading %s", "config")
	assert.Equal(t, "loading config: inner", err.Error())
	require.ErrorIs(t, err, errInner)

	err = scanerr.Wrap(scanerr.ErrDerivationFailed, "index %d", 7)
	var se *scanerr.ScanError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, "index 7: address derivation failed", se.Message)
}

func TestScanError_Error_deterministic(t *testing.T) {
	t.Parallel()
	err := &scanerr.ScanError{
		Message: "msg",
		Details: map[string]string{"b": "2", "a": "1", "c": "3"},
	}
	for i := 0; i < 10; i++ {
		assert.Equal(t, "msg (a: 1) (b: 2) (c: 3)", err.Error())
	}
}

func TestNew(t *testing.T) {
	t.Parallel()
	err := scanerr.New("CUSTOM", "custom failure")
	assert.Equal(t, "CUSTOM", err.Code)
	assert.Equal(t, scanerr.ExitGeneral, err.ExitCode)
	assert.True(t, scanerr.Is(err, scanerr.New("CUSTOM", "other message")))
}
