package models

import (
	id "cityledger/pkg/domain"
)

// PlaceProposition is submitted by a Business to create a proposition.
type PlaceProposition struct {
	PropDetails string
	Orderer     id.Ref
}

// DeliverProposition hands an existing proposition to a multipass user.
type DeliverProposition struct {
	Prop           id.Ref
	MultipassOwner id.Ref
}

// UpdateProposition records the user's answer to a delivered proposition.
type UpdateProposition struct {
	Prop           id.Ref
	MultipassOwner id.Ref
	PropStatus     string
}

// Delivery is the state of both registries after Deliver or Update commits.
type Delivery struct {
	Proposition *Proposition   `json:"proposition"`
	User        *MultipassUser `json:"multipassOwner"`
}
