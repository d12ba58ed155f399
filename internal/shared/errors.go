package shared

import "errors"

var (
	// ErrNotFound indicates a referenced student, challan, structure or head is absent.
	ErrNotFound = errors.New("not found")
	// ErrConflict indicates a unique-key violation, e.g. a duplicate fee structure
	// for a (program, class) pair.
	ErrConflict = errors.New("conflict")
	// ErrInvalidState indicates an operation that is not legal for the entity's
	// current lifecycle state, e.g. promoting a passed-out student.
	ErrInvalidState = errors.New("invalid state")
	// ErrValidation indicates malformed caller input.
	ErrValidation = errors.New("validation failed")
)

// UserSafeMessage returns an error message suitable for API consumers.
// Internal errors collapse to a generic message.
func UserSafeMessage(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrNotFound),
		errors.Is(err, ErrConflict),
		errors.Is(err, ErrInvalidState),
		errors.Is(err, ErrValidation):
		return err.Error()
	default:
		return "internal error"
	}
}
