package service

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/attribute"

	"cityledger/internal/ledger/ports"
	"cityledger/internal/proposition/models"
	id "cityledger/pkg/domain"
	dErrors "cityledger/pkg/domain-errors"
)

const txPlace = "PlaceProposition"

// Place creates a new proposition owned by the ordering business and emits
// PlacePropositionEvent. No multipass user is touched.
//
// The orderer is trusted: identity is established by the submission layer.
func (s *Service) Place(ctx context.Context, tx models.PlaceProposition) (_ *models.Proposition, err error) {
	ctx, span := s.startSpan(ctx, txPlace, attribute.String("orderer", tx.Orderer.String()))
	start := time.Now()
	defer func() { s.finish(ctx, span, txPlace, start, err) }()

	if err := requireRef(tx.Orderer, id.TypeBusiness, "orderer"); err != nil {
		return nil, err
	}

	var placed *models.Proposition
	err = s.ledger.RunInTx(ctx, func(ctx context.Context, r ports.Registries) error {
		pid, err := s.nextID(ctx, r)
		if err != nil {
			return err
		}
		prop, err := models.NewProposition(pid, tx.PropDetails, tx.Orderer)
		if err != nil {
			if dErrors.HasCode(err, dErrors.CodeInvariantViolation) {
				return dErrors.New(dErrors.CodeValidation, err.Error())
			}
			return err
		}
		if err := r.Propositions.Add(ctx, prop); err != nil {
			return registryError(err, "proposition", pid.String())
		}
		if err := emit(ctx, r, models.EventPlaceProposition, pid.String(), models.PlacePropositionEvent{
			PropID:      pid,
			PropDetails: prop.Details,
			Orderer:     prop.Owner,
		}); err != nil {
			return err
		}
		placed = prop
		return nil
	})
	if err != nil {
		return nil, err
	}

	span.SetAttributes(attribute.String("prop_id", placed.ID.String()))
	s.logAudit(ctx, "proposition_placed",
		"prop_id", placed.ID.String(),
		"owner", placed.Owner.String(),
	)
	if s.metrics != nil {
		s.metrics.IncrementPropositionsPlaced()
	}
	return placed, nil
}
