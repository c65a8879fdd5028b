package model

import (
	"errors"
	"fmt"
	"strings"
)

// Error markers. Callers classify failures with errors.Is.
var (
	ErrSchemaValidation = errors.New("schema validation error")
	ErrLLMTransport     = errors.New("llm transport error")
	ErrAllocation       = errors.New("allocation error")
	ErrExportValidation = errors.New("export validation error")
	ErrAuth             = errors.New("auth error")
	ErrQuota            = errors.New("quota error")

	ErrAlreadyExported = errors.New("run already exported")
	ErrStageOrder      = errors.New("stage transition not allowed")
	ErrNotResumable    = errors.New("run not resumable")
)

// Wrap builds an error that carries stage context and is tagged with marker.
func Wrap(marker error, stage Stage, operation, message string, err error) error {
	detail := buildDetail(string(stage), operation, message)
	if err != nil {
		return fmt.Errorf("%w: %s: %w", marker, detail, err)
	}
	return fmt.Errorf("%w: %s", marker, detail)
}

// Retryable reports whether a collaborator error may be retried by the core.
// Auth and quota errors are surfaced unchanged.
func Retryable(err error) bool {
	if err == nil || errors.Is(err, ErrAuth) || errors.Is(err, ErrQuota) {
		return false
	}
	return errors.Is(err, ErrSchemaValidation) || errors.Is(err, ErrLLMTransport)
}

// StageError is a fatal stage failure with an itemized reason list.
type StageError struct {
	Stage   Stage
	Reasons []string
	Err     error
}

func (e *StageError) Error() string {
	msg := fmt.Sprintf("stage %s failed", e.Stage)
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	if len(e.Reasons) > 0 {
		msg += " (" + strings.Join(e.Reasons, "; ") + ")"
	}
	return msg
}

func (e *StageError) Unwrap() error {
	return e.Err
}

// ReasonLister is implemented by errors that carry per-item diagnostics.
type ReasonLister interface {
	Reasons() []string
}

// ReasonsOf extracts the reason list from err, falling back to its message.
func ReasonsOf(err error) []string {
	if err == nil {
		return nil
	}
	var lister ReasonLister
	if errors.As(err, &lister) {
		if r := lister.Reasons(); len(r) > 0 {
			return r
		}
	}
	return []string{err.Error()}
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
		return "pipeline failure"
	}
	return strings.Join(parts, ": ")
}
