package service

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/attribute"

	"cityledger/internal/ledger/ports"
	"cityledger/internal/proposition/models"
	id "cityledger/pkg/domain"
)

const txDeliver = "DeliverProposition"

// Deliver marks a proposition DELIVERED and records it in the target user's
// props. Redelivering to the same user refreshes the existing entry rather
// than adding a second one.
func (s *Service) Deliver(ctx context.Context, tx models.DeliverProposition) (_ *models.Delivery, err error) {
	ctx, span := s.startSpan(ctx, txDeliver,
		attribute.String("prop", tx.Prop.String()),
		attribute.String("user", tx.MultipassOwner.String()),
	)
	start := time.Now()
	defer func() { s.finish(ctx, span, txDeliver, start, err) }()

	if err := requireRef(tx.Prop, id.TypeProposition, "prop"); err != nil {
		return nil, err
	}
	if err := requireRef(tx.MultipassOwner, id.TypeMultipassUser, "multipassOwner"); err != nil {
		return nil, err
	}
	propID := id.PropositionID(tx.Prop.ID)
	userID := id.MultipassUserID(tx.MultipassOwner.ID)

	var (
		result      *models.Delivery
		redelivered bool
	)
	err = s.ledger.RunInTx(ctx, func(ctx context.Context, r ports.Registries) error {
		prop, err := r.Propositions.Get(ctx, propID)
		if err != nil {
			return registryError(err, "proposition", propID.String())
		}
		if err := s.lifecycle.CanDeliver(prop.Status); err != nil {
			return withSubject(err, propID.String())
		}
		if err := prop.CanDeliverTo(tx.MultipassOwner); err != nil {
			return err
		}
		user, err := r.Users.Get(ctx, userID)
		if err != nil {
			return registryError(err, "multipass user", userID.String())
		}
		_, redelivered = user.Props.Find(propID)

		prop.Status = models.StatusDelivered
		prop.Recipient = user.Ref()
		if err := r.Propositions.Update(ctx, prop); err != nil {
			return registryError(err, "proposition", propID.String())
		}

		user.Receive(prop.Snapshot())
		if err := r.Users.Update(ctx, user); err != nil {
			return registryError(err, "multipass user", userID.String())
		}

		if err := emit(ctx, r, models.EventDeliverProposition, propID.String(), models.DeliverPropositionEvent{
			Prop:           prop.Ref(),
			MultipassOwner: user.Ref(),
			Redelivered:    redelivered,
		}); err != nil {
			return err
		}
		result = &models.Delivery{Proposition: prop, User: user}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.logAudit(ctx, "proposition_delivered",
		"prop_id", propID.String(),
		"user_id", userID.String(),
		"redelivered", redelivered,
	)
	return result, nil
}
