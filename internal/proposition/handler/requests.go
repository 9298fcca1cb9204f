package handler

import (
	"strings"

	"cityledger/internal/proposition/models"
	id "cityledger/pkg/domain"
	dErrors "cityledger/pkg/domain-errors"
)

// References are accepted either as bare identifiers or as
// resource:org.cityledger.<Type>#<id> URIs.

type PlacePropositionRequest struct {
	PropDetails string `json:"propDetails"`
	Orderer     string `json:"orderer,omitempty"`
}

// Normalize fills the orderer from the authenticated submitter when absent.
func (r *PlacePropositionRequest) Normalize(submitter id.Ref) {
	r.PropDetails = strings.TrimSpace(r.PropDetails)
	r.Orderer = strings.TrimSpace(r.Orderer)
	if r.Orderer == "" && submitter.Type == id.TypeBusiness {
		r.Orderer = submitter.String()
	}
}

func (r *PlacePropositionRequest) Transaction() (models.PlaceProposition, error) {
	if r.PropDetails == "" {
		return models.PlaceProposition{}, dErrors.New(dErrors.CodeValidation, "propDetails is required")
	}
	if r.Orderer == "" {
		return models.PlaceProposition{}, dErrors.New(dErrors.CodeValidation, "orderer is required")
	}
	orderer, err := parseRef(r.Orderer, id.TypeBusiness, "orderer")
	if err != nil {
		return models.PlaceProposition{}, err
	}
	return models.PlaceProposition{PropDetails: r.PropDetails, Orderer: orderer}, nil
}

type DeliverPropositionRequest struct {
	Prop           string `json:"prop"`
	MultipassOwner string `json:"multipassOwner"`
}

func (r *DeliverPropositionRequest) Transaction() (models.DeliverProposition, error) {
	prop, err := parseRef(r.Prop, id.TypeProposition, "prop")
	if err != nil {
		return models.DeliverProposition{}, err
	}
	owner, err := parseRef(r.MultipassOwner, id.TypeMultipassUser, "multipassOwner")
	if err != nil {
		return models.DeliverProposition{}, err
	}
	return models.DeliverProposition{Prop: prop, MultipassOwner: owner}, nil
}

type UpdatePropositionRequest struct {
	Prop           string `json:"prop"`
	MultipassOwner string `json:"multipassOwner"`
	PropStatus     string `json:"propStatus"`
}

func (r *UpdatePropositionRequest) Transaction() (models.UpdateProposition, error) {
	prop, err := parseRef(r.Prop, id.TypeProposition, "prop")
	if err != nil {
		return models.UpdateProposition{}, err
	}
	owner, err := parseRef(r.MultipassOwner, id.TypeMultipassUser, "multipassOwner")
	if err != nil {
		return models.UpdateProposition{}, err
	}
	if strings.TrimSpace(r.PropStatus) == "" {
		return models.UpdateProposition{}, dErrors.New(dErrors.CodeValidation, "propStatus is required")
	}
	return models.UpdateProposition{Prop: prop, MultipassOwner: owner, PropStatus: r.PropStatus}, nil
}

func parseRef(raw string, want id.EntityType, field string) (id.Ref, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return id.Ref{}, dErrors.New(dErrors.CodeValidation, field+" is required")
	}
	ref, err := id.ParseRef(raw, want)
	if err != nil {
		return id.Ref{}, dErrors.Wrap(err, dErrors.CodeValidation, "invalid "+field).WithSubject(raw)
	}
	return ref, nil
}
