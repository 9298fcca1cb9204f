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

const txUpdate = "UpdateProposition"

// Update records the user's answer: the proposition moves from DELIVERED to a
// terminal status and the user's entry for it is replaced in place. A user who
// never received the proposition gets NotFound and nothing is written.
func (s *Service) Update(ctx context.Context, tx models.UpdateProposition) (_ *models.Delivery, err error) {
	ctx, span := s.startSpan(ctx, txUpdate,
		attribute.String("prop", tx.Prop.String()),
		attribute.String("user", tx.MultipassOwner.String()),
		attribute.String("status", tx.PropStatus),
	)
	start := time.Now()
	defer func() { s.finish(ctx, span, txUpdate, start, err) }()

	if err := requireRef(tx.Prop, id.TypeProposition, "prop"); err != nil {
		return nil, err
	}
	if err := requireRef(tx.MultipassOwner, id.TypeMultipassUser, "multipassOwner"); err != nil {
		return nil, err
	}
	status, err := s.lifecycle.ParseTerminal(tx.PropStatus)
	if err != nil {
		return nil, err
	}
	propID := id.PropositionID(tx.Prop.ID)
	userID := id.MultipassUserID(tx.MultipassOwner.ID)

	var (
		result *models.Delivery
		from   models.Status
	)
	err = s.ledger.RunInTx(ctx, func(ctx context.Context, r ports.Registries) error {
		prop, err := r.Propositions.Get(ctx, propID)
		if err != nil {
			return registryError(err, "proposition", propID.String())
		}
		user, err := r.Users.Get(ctx, userID)
		if err != nil {
			return registryError(err, "multipass user", userID.String())
		}
		if _, ok := user.Props.Find(propID); !ok {
			return dErrors.NotFound("proposition not delivered to user", propID.String())
		}
		from = prop.Status
		if err := s.lifecycle.CanUpdate(prop.Status, status); err != nil {
			return withSubject(err, propID.String())
		}

		prop.Status = status
		if err := r.Propositions.Update(ctx, prop); err != nil {
			return registryError(err, "proposition", propID.String())
		}
		if err := user.Replace(prop.Snapshot()); err != nil {
			return err
		}
		if err := r.Users.Update(ctx, user); err != nil {
			return registryError(err, "multipass user", userID.String())
		}

		if err := emit(ctx, r, models.EventUpdateProposition, propID.String(), models.UpdatePropositionEvent{
			Prop:           prop.Ref(),
			MultipassOwner: user.Ref(),
			PropStatus:     status,
		}); err != nil {
			return err
		}
		result = &models.Delivery{Proposition: prop, User: user}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.logAudit(ctx, "proposition_updated",
		"prop_id", propID.String(),
		"user_id", userID.String(),
		"from", from.String(),
		"to", status.String(),
	)
	return result, nil
}

func withSubject(err error, subject string) error {
	if de, ok := dErrors.As(err); ok && de.Subject == "" {
		return de.WithSubject(subject)
	}
	return err
}
