package domain

import "fmt"

// InvalidTransitionError reports a rejected state-machine move. Callers check
// it with errors.As; it never doubles as control flow inside the service.
type InvalidTransitionError struct {
	From OrderStatus
	To   OrderStatus
}

func (e *InvalidTransitionError) Error() string {
	return fmt.Sprintf("invalid_transition from %s to %s", e.From, e.To)
}

// allowedTransitions is the full order state machine. Payment-driven moves
// (partial, paid) and staff-driven moves (hold, start, complete, recall,
// cancel, refund) share one table so every mutation path is validated the
// same way.
var allowedTransitions = map[OrderStatus][]OrderStatus{
	StatusPending:    {StatusHeld, StatusPartial, StatusPaid, StatusInProgress, StatusCompleted, StatusCancelled},
	StatusHeld:       {StatusPending, StatusCancelled},
	StatusPartial:    {StatusPartial, StatusPaid, StatusCancelled, StatusRefunded},
	StatusPaid:       {StatusInProgress, StatusCompleted, StatusRefunded},
	StatusInProgress: {StatusCompleted},
	StatusCompleted:  {StatusPending, StatusRefunded},
	StatusCancelled:  {},
	StatusRefunded:   {},
}

// CanTransition reports whether the state machine permits from → to.
func CanTransition(from, to OrderStatus) bool {
	for _, next := range allowedTransitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// Transition validates and returns the typed rejection when not allowed.
func Transition(from, to OrderStatus) error {
	if !CanTransition(from, to) {
		return &InvalidTransitionError{From: from, To: to}
	}
	return nil
}
