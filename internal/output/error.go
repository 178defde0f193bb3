package output

import (
	"errors"
	"fmt"
	"io"
	"sort"
	"strings"

	scanerr "github.com/mrz1836/hdscan/pkg/errors"
)

// ErrorOutput represents a structured error for JSON output.
type ErrorOutput struct {
	Error ErrorDetail `json:"error"`
}

// ErrorDetail contains error details.
type ErrorDetail struct {
	Code       string            `json:"code"`
	Message    string            `json:"message"`
	Details    map[string]string `json:"details,omitempty"`
	Suggestion string            `json:"suggestion,omitempty"`
	ExitCode   int               `json:"exit_code"`
}

// NewErrorOutput converts err to its structured form. Errors that are not
// ScanErrors become GENERAL_ERROR.
func NewErrorOutput(err error) ErrorOutput {
	var se *scanerr.ScanError
	if errors.As(err, &se) {
		return ErrorOutput{Error: ErrorDetail{
			Code:       se.Code,
			Message:    se.Message,
			Details:    se.Details,
			Suggestion: se.Suggestion,
			ExitCode:   se.ExitCode,
		}}
	}
	return ErrorOutput{Error: ErrorDetail{
		Code:     "GENERAL_ERROR",
		Message:  err.Error(),
		ExitCode: scanerr.ExitGeneral,
	}}
}

// FormatError formats an error for display.
func FormatError(w io.Writer, err error, format Format) error {
	if err == nil {
		return nil
	}

	if format == FormatJSON {
		return writeJSON(w, NewErrorOutput(err))
	}
	return formatErrorText(w, err)
}

func formatErrorText(w io.Writer, err error) error {
	var sb strings.Builder

	var se *scanerr.ScanError
	if errors.As(err, &se) {
		sb.WriteString(fmt.Sprintf("Error: %s\n", se.Message))

		if len(se.Details) > 0 {
			keys := make([]string, 0, len(se.Details))
			for k := range se.Details {
				keys = append(keys, k)
			}
			sort.Strings(keys)

			sb.WriteString("\nDetails:\n")
			for _, k := range keys {
				sb.WriteString(fmt.Sprintf("  %s: %s\n", k, se.Details[k]))
			}
		}

		if se.Suggestion != "" {
			sb.WriteString(fmt.Sprintf("\nSuggestion: %s\n", se.Suggestion))
		}
	} else {
		sb.WriteString(fmt.Sprintf("Error: %s\n", err.Error()))
	}

	_, writeErr := io.WriteString(w, sb.String())
	return writeErr
}
