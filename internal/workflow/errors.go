package workflow

import (
	"errors"
	"fmt"

	"bondarchitect/internal/llmclient"
)

// ErrRetryBudgetExceeded marks an analyst loop that ran out of automatic
// retries and now requires human action.
var ErrRetryBudgetExceeded = errors.New("workflow: analyst retry budget exceeded")

// TransportError is a network/timeout-class failure talking to the
// generative model. Transport failures are retried once automatically.
type TransportError struct {
	Stage string
	Err   error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("workflow: %s transport failure: %v", e.Stage, e.Err)
}
func (e *TransportError) Unwrap() error { return e.Err }

// SchemaError is a structural-validation failure of the model's response.
// Schema failures are never retried automatically.
type SchemaError struct {
	Stage string
	Err   error
}

func (e *SchemaError) Error() string {
	return fmt.Sprintf("workflow: %s returned malformed output: %v", e.Stage, e.Err)
}
func (e *SchemaError) Unwrap() error { return e.Err }

// ValidationError rejects malformed client input before any state mutation.
type ValidationError struct {
	Msg string
}

func (e *ValidationError) Error() string { return "workflow: " + e.Msg }

// NewValidationError formats a ValidationError.
func NewValidationError(format string, args ...any) error {
	return &ValidationError{Msg: fmt.Sprintf(format, args...)}
}

// classifyCallError maps an external-call failure onto the taxonomy. The
// LLM client marks schema-class failures permanent; everything else is
// treated as transport.
func classifyCallError(stage string, err error) error {
	if llmclient.IsPermanent(err) {
		return &SchemaError{Stage: stage, Err: err}
	}
	return &TransportError{Stage: stage, Err: err}
}

// isTransport reports whether err is transport-class.
func isTransport(err error) bool {
	var t *TransportError
	return errors.As(err, &t)
}
