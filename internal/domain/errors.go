package domain

import (
	"errors"
	"fmt"
)

var (
	// ErrNotConfigured is returned when a required credential is missing.
	ErrNotConfigured = errors.New("NotConfigured")
	// ErrUnreachable is returned when an external service cannot be contacted.
	ErrUnreachable = errors.New("Unreachable")
	// ErrTimeout is returned when an external call exceeds its deadline.
	ErrTimeout = errors.New("Timeout")
	// ErrParse marks a malformed streamed record. It never leaves the gateway.
	ErrParse = errors.New("ParseError")

	ErrConversationBusy = errors.New("conversation busy")
	ErrStreamConsumed   = errors.New("stream already consumed")
	ErrEmptyMessage     = errors.New("message is empty")
)

// RemoteError is a failure payload returned by an external service.
type RemoteError struct {
	Code    int
	Message string
}

func (e *RemoteError) Error() string {
	return fmt.Sprintf("RemoteError(%d): %s", e.Code, e.Message)
}

// PlanAbandonedError reports the invoke step that stopped a plan.
// Steps before it were executed and are not rolled back.
type PlanAbandonedError struct {
	Step        int // 1-based
	Operation   Operation
	Description string
	Err         error
}

func (e *PlanAbandonedError) Error() string {
	return fmt.Sprintf("step %d (%s) failed: %v", e.Step, e.Description, e.Err)
}

func (e *PlanAbandonedError) Unwrap() error {
	return e.Err
}
