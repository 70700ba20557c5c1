package service

import (
	"errors"
	"fmt"
)

var (
	// ErrAlreadyActive is returned when a user starts a quiz while one is live.
	ErrAlreadyActive = errors.New("quiz already in progress")

	// ErrStaleInteraction covers taps from another user, on an old prompt,
	// or for a step the session has already left.
	ErrStaleInteraction = errors.New("stale or foreign interaction")

	// ErrNotFound is returned when the user has no live session.
	ErrNotFound = errors.New("no active quiz session")

	// ErrMalformedChoice means the gateway reported a choice that does not
	// exist for the prompt. It is a collaborator bug, not a user mistake.
	ErrMalformedChoice = errors.New("malformed choice")

	// ErrDeliveryDenied is returned by gateways when the platform refuses
	// to deliver to a channel.
	ErrDeliveryDenied = errors.New("delivery denied")

	// ErrUndelivered means a prompt could not be shown. The session has
	// been dropped and the user already told.
	ErrUndelivered = errors.New("prompt could not be delivered")

	// ErrInvalidCatalog wraps every catalog validation failure.
	ErrInvalidCatalog = errors.New("invalid quiz catalog")
)

// AlreadyActiveError carries the step of the session that blocked a start.
type AlreadyActiveError struct {
	Step Step
}

func (e *AlreadyActiveError) Error() string {
	return fmt.Sprintf("quiz already in progress (at %s)", e.Step.Describe())
}

func (e *AlreadyActiveError) Is(target error) bool {
	return target == ErrAlreadyActive
}

// UserMessage turns an engine error into text suitable for the user.
func UserMessage(err error) string {
	var active *AlreadyActiveError
	switch {
	case err == nil:
		return ""
	case errors.As(err, &active):
		return fmt.Sprintf("You already have a quiz in progress (at %s). Please complete it or wait for it to time out.", active.Step.Describe())
	case errors.Is(err, ErrAlreadyActive):
		return "You already have a quiz in progress. Please complete it or wait for it to time out."
	case errors.Is(err, ErrStaleInteraction):
		return "This question is no longer active or your session has changed."
	case errors.Is(err, ErrNotFound):
		return "Couldn't find your quiz session. Please use /startquiz to begin again."
	case errors.Is(err, ErrUndelivered):
		return "Sorry, something went wrong while sending your quiz. Please try /startquiz again."
	default:
		return "An error occurred. Please try /startquiz again."
	}
}
