package models

import (
	id "cityledger/pkg/domain"
	dErrors "cityledger/pkg/domain-errors"
)

// Business is a participant that places propositions.
type Business struct {
	ID   id.BusinessID `json:"businessId"`
	Name string        `json:"name,omitempty"`
}

// MultipassUser is an end user receiving propositions. Props is exclusively
// mutated by the proposition lifecycle.
type MultipassUser struct {
	ID      id.MultipassUserID `json:"userId"`
	Props   Props              `json:"props"`
	Version int64              `json:"version"`
}

// Props holds the propositions delivered to a user, keyed by propId and kept
// in first-delivery order. A propId appears at most once.
type Props []Proposition

// Find returns the snapshot for propID, if delivered.
func (p Props) Find(propID id.PropositionID) (Proposition, bool) {
	if i := p.index(propID); i >= 0 {
		return p[i], true
	}
	return Proposition{}, false
}

func (p Props) index(propID id.PropositionID) int {
	for i := range p {
		if p[i].ID == propID {
			return i
		}
	}
	return -1
}

// Receive records a delivered proposition. Redelivery replaces the existing
// snapshot in place.
func (u *MultipassUser) Receive(prop Proposition) {
	if u.Props == nil {
		u.Props = Props{}
	}
	if i := u.Props.index(prop.ID); i >= 0 {
		u.Props[i] = prop
		return
	}
	u.Props = append(u.Props, prop)
}

// Replace swaps the snapshot for prop.ID. It fails without touching Props when
// the proposition was never delivered to this user.
func (u *MultipassUser) Replace(prop Proposition) error {
	i := u.Props.index(prop.ID)
	if i < 0 {
		return dErrors.NotFound("proposition not delivered to user", prop.ID.String())
	}
	u.Props[i] = prop
	return nil
}

// Ref returns the relationship pointing at this user.
func (u *MultipassUser) Ref() id.Ref {
	return id.MultipassUserRef(u.ID)
}

// Clone deep-copies the user so registries never share Props backing arrays.
func (u *MultipassUser) Clone() *MultipassUser {
	cp := *u
	if u.Props != nil {
		cp.Props = append(Props{}, u.Props...)
	}
	return &cp
}
