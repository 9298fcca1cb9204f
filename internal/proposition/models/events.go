package models

import (
	id "cityledger/pkg/domain"
)

// Event type names emitted on the ledger event channel.
const (
	EventPlaceProposition   = "PlacePropositionEvent"
	EventDeliverProposition = "DeliverPropositionEvent"
	EventUpdateProposition  = "UpdatePropositionEvent"
)

// PlacePropositionEvent announces a newly placed proposition.
type PlacePropositionEvent struct {
	PropID      id.PropositionID `json:"propId"`
	PropDetails string           `json:"propDetails"`
	Orderer     id.Ref           `json:"orderer"`
}

// DeliverPropositionEvent announces a delivery to a multipass user.
type DeliverPropositionEvent struct {
	Prop           id.Ref `json:"prop"`
	MultipassOwner id.Ref `json:"multipassOwner"`
	Redelivered    bool   `json:"redelivered"`
}

// UpdatePropositionEvent announces the user's answer.
type UpdatePropositionEvent struct {
	Prop           id.Ref `json:"prop"`
	MultipassOwner id.Ref `json:"multipassOwner"`
	PropStatus     Status `json:"propStatus"`
}
