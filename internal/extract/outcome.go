// internal/extract/outcome.go
package extract

import (
	"errors"
	"fmt"
)

// Outcome classifies the result of a per-page extraction step. The engine
// distinguishes fatal failures (abort the run) from recoverable-empty
// results (report, keep going or stop cleanly) instead of overloading empty
// slices and thrown errors.
type Outcome int

const (
	// OutcomeSuccess means items were extracted normally.
	OutcomeSuccess Outcome = iota
	// OutcomeEmpty means no container could be detected; the caller should
	// prompt the operator rather than treat the run as failed.
	OutcomeEmpty
	// OutcomeFatal means the page contradicts the config (explicit
	// container matched nothing, navigation failed, script threw).
	OutcomeFatal
)

func (o Outcome) String() string {
	switch o {
	case OutcomeSuccess:
		return "success"
	case OutcomeEmpty:
		return "empty"
	case OutcomeFatal:
		return "fatal"
	default:
		return "unknown"
	}
}

// ReasonNoContainer is reported when auto-detection found no repeating
// container. It is a structured empty result, never an error.
const ReasonNoContainer = "NO_CONTAINER_DETECTED"

// Common engine errors.
var (
	ErrNavigationFailed  = errors.New("navigation failed")
	ErrContainerNotFound = errors.New("item container matched no elements")
	ErrEvaluation        = errors.New("page script evaluation failed")
)

// FatalError carries a fatal extraction failure with its code for the
// result's errors list.
type FatalError struct {
	Code    string
	Message string
	Err     error
}

func (e *FatalError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *FatalError) Unwrap() error { return e.Err }

func fatal(code, message string, err error) *FatalError {
	return &FatalError{Code: code, Message: message, Err: err}
}
