package domain

import (
	"errors"
	"fmt"
	"time"
)

var (
	// ErrValidation: the completion service returned content that does not
	// fit the expected shape.
	ErrValidation = errors.New("validation error")
	// ErrInvariant: run state is inconsistent, e.g. content and score logs differ in length.
	ErrInvariant = errors.New("invariant violation")
	// ErrConfiguration: invalid run parameters or duplicate topic ownership.
	ErrConfiguration = errors.New("configuration error")
	// ErrCollaborator: the completion service itself failed.
	ErrCollaborator = errors.New("collaborator error")
	ErrStalledRound = errors.New("stalled round")
)

// StalledRoundError is returned by the run driver when no record arrived
// within the watchdog timeout. Role and Cause are set when an agent recorded
// a validation stall before the timeout fired.
type StalledRoundError struct {
	Round  int
	Role   string
	Waited time.Duration
	Cause  error
}

func (e *StalledRoundError) Error() string {
	msg := fmt.Sprintf("stalled round %d after %s", e.Round, e.Waited)
	if e.Role != "" {
		msg += " in " + e.Role
	}
	if e.Cause != nil {
		msg += ": " + e.Cause.Error()
	}
	return msg
}

func (e *StalledRoundError) Is(target error) bool {
	return target == ErrStalledRound
}

func (e *StalledRoundError) Unwrap() error {
	return e.Cause
}
