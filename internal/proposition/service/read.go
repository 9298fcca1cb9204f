package service

import (
	"context"

	"cityledger/internal/ledger/ports"
	"cityledger/internal/proposition/models"
	id "cityledger/pkg/domain"
)

// Get returns the canonical record for propID.
func (s *Service) Get(ctx context.Context, propID id.PropositionID) (*models.Proposition, error) {
	var prop *models.Proposition
	err := s.ledger.RunInTx(ctx, func(ctx context.Context, r ports.Registries) error {
		p, err := r.Propositions.Get(ctx, propID)
		if err != nil {
			return registryError(err, "proposition", propID.String())
		}
		prop = p
		return nil
	})
	if err != nil {
		return nil, err
	}
	return prop, nil
}
