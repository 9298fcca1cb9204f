package models

import (
	"slices"
	"strings"

	dErrors "cityledger/pkg/domain-errors"
)

// Status is a proposition lifecycle state.
type Status string

const (
	StatusPlaced    Status = "PLACED"
	StatusDelivered Status = "DELIVERED"
	StatusAccepted  Status = "ACCEPTED"
	StatusDenied    Status = "DENIED"
)

func (s Status) String() string { return string(s) }

// Lifecycle is the closed status set and transition graph propositions follow.
// PLACED is only set by Place and DELIVERED only by Deliver; every other
// status is terminal and reachable from DELIVERED through Update.
//
// The terminal set is configuration: DefaultLifecycle uses ACCEPTED and DENIED.
type Lifecycle struct {
	terminal []Status
}

// DefaultLifecycle returns PLACED -> DELIVERED -> {ACCEPTED, DENIED}.
func DefaultLifecycle() *Lifecycle {
	return &Lifecycle{terminal: []Status{StatusAccepted, StatusDenied}}
}

// NewLifecycle builds a lifecycle with the given terminal statuses.
func NewLifecycle(terminal ...Status) (*Lifecycle, error) {
	if len(terminal) == 0 {
		return nil, dErrors.New(dErrors.CodeValidation, "lifecycle needs at least one terminal status")
	}
	seen := make(map[Status]bool, len(terminal))
	out := make([]Status, 0, len(terminal))
	for _, s := range terminal {
		s = Status(strings.ToUpper(strings.TrimSpace(string(s))))
		switch {
		case s == "":
			return nil, dErrors.New(dErrors.CodeValidation, "terminal status cannot be empty")
		case s == StatusPlaced || s == StatusDelivered:
			return nil, dErrors.New(dErrors.CodeValidation, "terminal status cannot be "+string(s))
		case seen[s]:
			continue
		}
		seen[s] = true
		out = append(out, s)
	}
	return &Lifecycle{terminal: out}, nil
}

// Statuses lists every status in lifecycle order.
func (l *Lifecycle) Statuses() []Status {
	return append([]Status{StatusPlaced, StatusDelivered}, l.terminal...)
}

// Terminal lists the statuses Update may set.
func (l *Lifecycle) Terminal() []Status {
	return slices.Clone(l.terminal)
}

// IsTerminal reports whether s ends the lifecycle.
func (l *Lifecycle) IsTerminal(s Status) bool {
	return slices.Contains(l.terminal, s)
}

// Contains reports whether s belongs to the closed status set.
func (l *Lifecycle) Contains(s Status) bool {
	return s == StatusPlaced || s == StatusDelivered || l.IsTerminal(s)
}

// ParseTerminal validates a caller-supplied Update status. Matching is
// case-insensitive, like NewLifecycle and the status query.
func (l *Lifecycle) ParseTerminal(raw string) (Status, error) {
	s := Status(strings.ToUpper(strings.TrimSpace(raw)))
	if !l.IsTerminal(s) {
		return "", dErrors.New(dErrors.CodeInvalidTransition, "status not allowed for update").WithSubject(raw)
	}
	return s, nil
}

// CanDeliver checks whether a proposition in status from may be (re)delivered.
func (l *Lifecycle) CanDeliver(from Status) error {
	if from == StatusPlaced || from == StatusDelivered {
		return nil
	}
	return transitionError(from, StatusDelivered)
}

// CanUpdate checks whether Update may move a proposition from one status to a terminal one.
func (l *Lifecycle) CanUpdate(from, to Status) error {
	if from != StatusDelivered || !l.IsTerminal(to) {
		return transitionError(from, to)
	}
	return nil
}

func transitionError(from, to Status) error {
	return dErrors.New(dErrors.CodeInvalidTransition, "transition "+string(from)+" -> "+string(to)+" not allowed")
}
