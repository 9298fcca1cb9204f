// Package ports declares the registry collaborator the proposition lifecycle
// runs against. Stores implement these; services depend only on them.
package ports

import (
	"context"

	"cityledger/internal/proposition/models"
	id "cityledger/pkg/domain"
	"cityledger/pkg/platform/events"
)

// PropositionRegistry is the asset registry for propositions.
// Get returns sentinel.ErrNotFound, Add sentinel.ErrAlreadyUsed, Update
// sentinel.ErrNotFound or sentinel.ErrConflict. Add and Update set the
// record's Version to the stored value.
type PropositionRegistry interface {
	Get(ctx context.Context, propID id.PropositionID) (*models.Proposition, error)
	Add(ctx context.Context, prop *models.Proposition) error
	Update(ctx context.Context, prop *models.Proposition) error
}

// MultipassUserRegistry is the participant registry for multipass users.
type MultipassUserRegistry interface {
	Get(ctx context.Context, userID id.MultipassUserID) (*models.MultipassUser, error)
	Update(ctx context.Context, user *models.MultipassUser) error
}

// Allocator hands out proposition identifiers. No two committed transactions
// receive the same identifier; aborted transactions may leave gaps.
type Allocator interface {
	Next(ctx context.Context) (id.PropositionID, error)
}

// Registries is the view of the ledger available inside one transaction.
type Registries struct {
	Propositions PropositionRegistry
	Users        MultipassUserRegistry
	IDs          Allocator
	Events       events.Store
}

// LedgerTx runs fn as a single unit of work: either every registry write and
// event made through the Registries is persisted, or none is. Transactions
// touching the same records are serialized.
type LedgerTx interface {
	RunInTx(ctx context.Context, fn func(ctx context.Context, r Registries) error) error
}

// PropositionFilter narrows a proposition listing. Zero fields match everything.
type PropositionFilter struct {
	Owner  id.Ref
	Status models.Status
}

// PropositionReader serves read-only queries over the asset registry.
type PropositionReader interface {
	ListPropositions(ctx context.Context, filter PropositionFilter) ([]*models.Proposition, error)
}

// ParticipantStore manages the participant registries outside the lifecycle.
type ParticipantStore interface {
	AddBusiness(ctx context.Context, b *models.Business) error
	GetBusiness(ctx context.Context, businessID id.BusinessID) (*models.Business, error)
	AddMultipassUser(ctx context.Context, u *models.MultipassUser) error
	GetMultipassUser(ctx context.Context, userID id.MultipassUserID) (*models.MultipassUser, error)
}
