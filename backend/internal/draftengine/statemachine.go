// Package draftengine implements C11: the DraftOrder state machine,
// ready-check gate, and confidence aggregation, plus the optimistic-
// concurrency retry wrapper every mutation goes through.
package draftengine

import (
	"github.com/orderflow/orderflow/internal/coreerr"
)

// Status values, per spec.md §4.11.
const (
	StatusNew          = "NEW"
	StatusExtracted    = "EXTRACTED"
	StatusNeedsReview  = "NEEDS_REVIEW"
	StatusReady        = "READY"
	StatusApproved     = "APPROVED"
	StatusPushing      = "PUSHING"
	StatusPushed       = "PUSHED"
	StatusError        = "ERROR"
	StatusRejected     = "REJECTED"
)

// allowedTransitions is the complete transition table of spec.md §4.11.
// Anything not listed here is a state-machine violation.
var allowedTransitions = map[string]map[string]bool{
	StatusNew:         {StatusExtracted: true},
	StatusExtracted:   {StatusNeedsReview: true, StatusReady: true},
	StatusNeedsReview: {StatusReady: true, StatusRejected: true},
	StatusReady:       {StatusApproved: true, StatusNeedsReview: true},
	StatusApproved:    {StatusPushing: true},
	StatusPushing:     {StatusPushed: true, StatusError: true},
	StatusError:       {StatusNeedsReview: true, StatusPushing: true},
	StatusRejected:    {},
	StatusPushed:      {},
}

// CanTransition reports whether from -> to is one of the allowed edges.
func CanTransition(from, to string) bool {
	if from == to {
		return false
	}
	edges, ok := allowedTransitions[from]
	if !ok {
		return false
	}
	return edges[to]
}

// CheckTransition returns a coreerr.StateMachineViolation when from -> to is
// not allowed, nil otherwise.
func CheckTransition(from, to string) error {
	if CanTransition(from, to) {
		return nil
	}
	return coreerr.New(coreerr.StateMachineViolation, "illegal draft order transition "+from+" -> "+to)
}

// IsTerminal reports whether a status has no outgoing edges (REJECTED,
// PUSHED).
func IsTerminal(status string) bool {
	edges, ok := allowedTransitions[status]
	return ok && len(edges) == 0
}
