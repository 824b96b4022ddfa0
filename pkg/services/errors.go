package services

import "github.com/luci/swarmsched/internal/swarmerr"

// The service layer speaks the same error vocabulary as the scheduling
// packages it composes; these are aliases onto internal/swarmerr rather than
// a second definition, so errors.Is/errors.As work across the package
// boundary either way a caller names them.
var (
	// ErrNotFound is returned when a request, task, or run result does not exist.
	ErrNotFound = swarmerr.ErrNotFound

	// ErrConflict is returned when an operation would violate the task FSM,
	// e.g. updating a task that has already reached a terminal state, or
	// writing output after its command's exit code has been recorded.
	ErrConflict = swarmerr.ErrConflict

	// ErrContention is returned when a reservation claim loses a race to
	// another bot; the caller should retry against the next candidate.
	ErrContention = swarmerr.ErrContention

	// ErrUnavailable is returned when no task matches the bot's dimensions
	// at poll time.
	ErrUnavailable = swarmerr.ErrUnavailable
)

// ValidationError wraps a field-specific request validation failure.
type ValidationError = swarmerr.ValidationError

// NewValidationError builds a ValidationError for field.
func NewValidationError(field, message string) error {
	return swarmerr.NewValidationError(field, message)
}

// IsValidationError reports whether err is (or wraps) a *ValidationError.
func IsValidationError(err error) bool {
	return swarmerr.IsValidationError(err)
}
