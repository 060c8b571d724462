package investigation

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidState is returned when a case carries an unknown status.
	ErrInvalidState = errors.New("invalid case state")

	// ErrCaseTerminal is returned when mutating a RESOLVED or CLOSED case.
	ErrCaseTerminal = errors.New("case is in a terminal status")

	// ErrNilCase is returned when no case is supplied.
	ErrNilCase = errors.New("nil case")
)

// EngineError wraps any failure raised while processing a turn.
type EngineError struct {
	CaseID string
	Op     string
	Err    error
}

func (e *EngineError) Error() string {
	if e.CaseID == "" {
		return fmt.Sprintf("investigation %s: %v", e.Op, e.Err)
	}
	return fmt.Sprintf("investigation %s (case %s): %v", e.Op, e.CaseID, e.Err)
}

func (e *EngineError) Unwrap() error {
	return e.Err
}

func newEngineError(caseID, op string, err error) *EngineError {
	return &EngineError{CaseID: caseID, Op: op, Err: err}
}
