package dispatch

import "errors"

var (
	// ErrNoAvailableTaxi means every taxi was busy or offline when matching ran.
	ErrNoAvailableTaxi = errors.New("no available taxi")
	// ErrAssignmentTimeout means the chosen taxi's mailbox stayed full for the
	// whole assignment timeout.
	ErrAssignmentTimeout = errors.New("assignment timed out")
	// ErrQueueNotFound means the roster returned a taxi without a mailbox.
	// It signals a broken roster, not a transient condition.
	ErrQueueNotFound = errors.New("taxi queue not found")
)

// failureReason is the label used in metrics and history for err.
func failureReason(err error) string {
	switch {
	case errors.Is(err, ErrNoAvailableTaxi):
		return "no_available_taxi"
	case errors.Is(err, ErrAssignmentTimeout):
		return "assignment_timeout"
	case errors.Is(err, ErrQueueNotFound):
		return "queue_not_found"
	default:
		return "interrupted"
	}
}
