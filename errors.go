package ignis

import "errors"

// Error sentinels for the event subsystem. All are raised synchronously at
// the call that detects them; there is no retry or recoverable-error path.
// Match with errors.Is.
var (
	// ErrInvalidArgument is returned for malformed construction input:
	// zero or multiple filter strategies in a FilterSpec, a non-positive
	// Every/Once value, a non-event operand appended to an EventGroup, or
	// an unusable configuration value.
	ErrInvalidArgument = errors.New("ignis: invalid argument")

	// ErrInvalidCallable is returned when a FilterSpec.Filter is not a
	// function of the shape func(*Engine, int) bool.
	ErrInvalidCallable = errors.New("ignis: invalid filter callable")

	// ErrUnknownEvent is returned by State.GetEventAttribValue for kinds
	// that carry no progress counter (ExceptionRaised).
	ErrUnknownEvent = errors.New("ignis: unknown event")

	// ErrIncomparableType is returned by FilteredEvent.Matches when the
	// operand is neither event-like nor a plain name string. This is a
	// hard error rather than a permissive false, so mistaken comparisons
	// surface instead of silently failing.
	ErrIncomparableType = errors.New("ignis: incomparable type")
)
