package checkout

import (
	"errors"
	"fmt"
	"strings"
)

// Stage identifies how far a transaction got before it finished or failed.
type Stage string

const (
	StageReceived  Stage = "received"
	StageValidated Stage = "validated"
	StageQuoted    Stage = "quoted"
	StageCharged   Stage = "charged"
	StageIssued    Stage = "issued"
	StagePersisted Stage = "persisted"
	StageNotified  Stage = "notified"
	StageCompleted Stage = "completed"
)

// ErrPriceMismatch means the submitted total did not match the recomputed
// price: either the form was tampered with or it went stale under the buyer.
var ErrPriceMismatch = errors.New("checkout: submitted total does not match the computed price")

// FieldError is one user-correctable problem with a submitted field.
type FieldError struct {
	Field   string
	Message string
}

// ValidationError collects all field-level problems of one submission.
type ValidationError struct {
	Fields []FieldError
}

func (e *ValidationError) Error() string {
	msgs := make([]string, 0, len(e.Fields))
	for _, f := range e.Fields {
		msgs = append(msgs, fmt.Sprintf("%s: %s", f.Field, f.Message))
	}
	return "checkout: invalid order: " + strings.Join(msgs, "; ")
}

// StageError is the single failure type of the pipeline. It records the
// stage that failed and, once a charge exists, the transaction reference
// operators need for manual reconciliation.
type StageError struct {
	Stage          Stage
	TransactionRef string
	Err            error
}

func (e *StageError) Error() string {
	if e.TransactionRef != "" {
		return fmt.Sprintf("checkout: stage %s failed (transaction ref %s): %v", e.Stage, e.TransactionRef, e.Err)
	}
	return fmt.Sprintf("checkout: stage %s failed: %v", e.Stage, e.Err)
}

func (e *StageError) Unwrap() error {
	return e.Err
}

// Recoverable reports whether the failure is user-correctable: the buyer can
// fix the form and resubmit, and nothing was charged.
func (e *StageError) Recoverable() bool {
	if e.Stage == StageValidated {
		return true
	}
	return e.Stage == StageQuoted && errors.Is(e.Err, ErrPriceMismatch)
}
