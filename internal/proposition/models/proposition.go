package models

import (
	id "cityledger/pkg/domain"
	dErrors "cityledger/pkg/domain-errors"
)

const maxDetailsLength = 4096

// Proposition is the offer asset placed by a Business.
//
// Invariants:
//   - ID is assigned once by the allocator and never reassigned
//   - Owner references the placing Business; it is a reference, not ownership
//   - Recipient is set by the first delivery and never changes afterwards
//   - Status only moves along the configured Lifecycle; PLACED is never re-entered
//   - Version increases by one on every registry write
//
// The record in the Proposition registry is canonical. Copies embedded in a
// MultipassUser's Props must equal it after every transaction.
type Proposition struct {
	ID        id.PropositionID `json:"propId"`
	Details   string           `json:"propDetails"`
	Status    Status           `json:"propStatus"`
	Owner     id.Ref           `json:"owner"`
	Recipient id.Ref           `json:"multipassOwner,omitzero"`
	Version   int64            `json:"version"`
}

// NewProposition builds a freshly placed proposition.
func NewProposition(propID id.PropositionID, details string, owner id.Ref) (*Proposition, error) {
	if propID.IsNil() {
		return nil, dErrors.New(dErrors.CodeInvariantViolation, "proposition ID cannot be empty")
	}
	if err := validateDetails(details); err != nil {
		return nil, err
	}
	if owner.IsZero() || owner.Type != id.TypeBusiness {
		return nil, dErrors.New(dErrors.CodeInvariantViolation, "proposition owner must reference a business")
	}
	return &Proposition{
		ID:      propID,
		Details: details,
		Status:  StatusPlaced,
		Owner:   owner,
	}, nil
}

// Ref returns the relationship pointing at this proposition.
func (p *Proposition) Ref() id.Ref {
	return id.PropositionRef(p.ID)
}

// CanDeliverTo checks that the proposition has not already gone to another user.
// A single recipient keeps every embedded copy rewritable by one transaction.
func (p *Proposition) CanDeliverTo(user id.Ref) error {
	if !p.Recipient.IsZero() && !p.Recipient.SameEntity(user) {
		return dErrors.New(dErrors.CodeConflict, "proposition already delivered to another user").WithSubject(p.ID.String())
	}
	return nil
}

// Snapshot returns a copy suitable for embedding in a user record.
func (p *Proposition) Snapshot() Proposition {
	return *p
}

func validateDetails(details string) error {
	if details == "" {
		return dErrors.New(dErrors.CodeInvariantViolation, "proposition details cannot be empty")
	}
	if len(details) > maxDetailsLength {
		return dErrors.New(dErrors.CodeInvariantViolation, "proposition details too long")
	}
	return nil
}
