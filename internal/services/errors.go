package services

import (
	"errors"
	"fmt"
	"strings"
)

var (
	ErrExternalTool  = errors.New("external tool error")
	ErrValidation    = errors.New("validation error")
	ErrConfiguration = errors.New("configuration error")
	ErrNotFound      = errors.New("not found")
	ErrTimeout       = errors.New("timeout")
	ErrTransient     = errors.New("transient failure")
	ErrPermanent     = errors.New("permanent failure")
)

// Wrap builds an error message that includes stage context while tagging it with
// the provided marker for later disposition classification. The marker should be
// one of the exported sentinel errors above.
func Wrap(marker error, stage, operation, message string, err error) error {
	detail := buildDetail(stage, operation, message)
	if marker == nil {
		marker = ErrTransient
	}
	if err != nil {
		return fmt.Errorf("%w: %s: %w", marker, detail, err)
	}
	return fmt.Errorf("%w: %s", marker, detail)
}

// Disposition tells the workflow manager what to do with a failed document.
type Disposition int

const (
	// DispositionRetry records the failure and leaves the document eligible
	// for another attempt on a later pass.
	DispositionRetry Disposition = iota
	// DispositionAttention parks the document for operator review. The
	// scheduler skips it until an explicit retry.
	DispositionAttention
	// DispositionAbort stops the whole run. Used for configuration errors
	// that would fail every document identically.
	DispositionAbort
)

// Classify maps a stage error to the disposition the workflow manager should
// apply. Unrecognized errors are treated as transient.
func Classify(err error) Disposition {
	switch {
	case errors.Is(err, ErrConfiguration):
		return DispositionAbort
	case errors.Is(err, ErrPermanent), errors.Is(err, ErrValidation):
		return DispositionAttention
	default:
		return DispositionRetry
	}
}

func buildDetail(stage, operation, message string) string {
	parts := make([]string, 0, 3)
	if stage = strings.TrimSpace(stage); stage != "" {
		parts = append(parts, stage)
	}
	if operation = strings.TrimSpace(operation); operation != "" {
		parts = append(parts, operation)
	}
	if message = strings.TrimSpace(message); message != "" {
		parts = append(parts, message)
	}
	if len(parts) == 0 {
		return "service failure"
	}
	return strings.Join(parts, ": ")
}
