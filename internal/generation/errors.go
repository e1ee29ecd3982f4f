package generation

import (
	"errors"
	"fmt"
)

// ErrTimeout is returned when the poll budget runs out before a terminal state.
var ErrTimeout = errors.New("timed out waiting for generation result")

// JobFailedError reports a job that reached a failure state. Status holds the
// provider document that carried the failure.
type JobFailedError struct {
	RequestID string
	State     string
	Status    Payload
}

func (e *JobFailedError) Error() string {
	return fmt.Sprintf("generation failed: job %s reported %q", e.RequestID, e.State)
}
