// Package memory is an in-process ledger: proposition and participant
// registries plus a transaction boundary. Transactions run one at a time under
// a coarse lock and stage their writes on a copy of the registry state, which
// replaces the live state only when the callback succeeds.
package memory

import (
	"context"
	"maps"
	"slices"
	"strconv"
	"sync"
	"time"

	"cityledger/internal/ledger/ports"
	"cityledger/internal/proposition/models"
	id "cityledger/pkg/domain"
	dErrors "cityledger/pkg/domain-errors"
	"cityledger/pkg/platform/events"
	"cityledger/pkg/platform/sentinel"
)

const defaultTxTimeout = 5 * time.Second

// state is treated as immutable once published; records are replaced, never
// mutated in place, so cloning only copies the maps.
type state struct {
	propositions map[id.PropositionID]*models.Proposition
	order        []id.PropositionID
	users        map[id.MultipassUserID]*models.MultipassUser
	businesses   map[id.BusinessID]*models.Business
	seq          uint64
}

func newState() *state {
	return &state{
		propositions: make(map[id.PropositionID]*models.Proposition),
		users:        make(map[id.MultipassUserID]*models.MultipassUser),
		businesses:   make(map[id.BusinessID]*models.Business),
	}
}

func (s *state) clone() *state {
	return &state{
		propositions: maps.Clone(s.propositions),
		order:        slices.Clone(s.order),
		users:        maps.Clone(s.users),
		businesses:   maps.Clone(s.businesses),
		seq:          s.seq,
	}
}

// Ledger implements ports.LedgerTx, ports.PropositionReader and ports.ParticipantStore.
type Ledger struct {
	mu      sync.RWMutex
	state   *state
	outbox  events.Store
	timeout time.Duration
}

// Option configures the Ledger.
type Option func(*Ledger)

// WithOutbox sets where committed events go. Without one, events are dropped.
func WithOutbox(outbox events.Store) Option {
	return func(l *Ledger) { l.outbox = outbox }
}

// WithTxTimeout bounds transactions whose context has no deadline.
func WithTxTimeout(d time.Duration) Option {
	return func(l *Ledger) {
		if d > 0 {
			l.timeout = d
		}
	}
}

func New(opts ...Option) *Ledger {
	l := &Ledger{state: newState(), timeout: defaultTxTimeout}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

func (l *Ledger) RunInTx(ctx context.Context, fn func(ctx context.Context, r ports.Registries) error) error {
	if err := ctx.Err(); err != nil {
		return dErrors.Wrap(err, dErrors.CodeTimeout, "transaction aborted: context cancelled")
	}
	if _, hasDeadline := ctx.Deadline(); !hasDeadline {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, l.timeout)
		defer cancel()
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return dErrors.Wrap(err, dErrors.CodeTimeout, "transaction aborted: context cancelled")
	}

	staged := l.state.clone()
	var pending []events.Event
	regs := ports.Registries{
		Propositions: &propositionRegistry{st: staged},
		Users:        &userRegistry{st: staged},
		IDs:          &sequence{st: staged},
		Events:       &eventBuffer{events: &pending},
	}
	if err := fn(ctx, regs); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return dErrors.Wrap(err, dErrors.CodeTimeout, "transaction aborted: context cancelled")
	}

	if l.outbox != nil {
		for _, e := range pending {
			if err := l.outbox.Append(ctx, e); err != nil {
				return dErrors.Wrap(err, dErrors.CodeInternal, "failed to record ledger event")
			}
		}
	}
	l.state = staged
	return nil
}

// ListPropositions returns propositions in creation order.
func (l *Ledger) ListPropositions(_ context.Context, filter ports.PropositionFilter) ([]*models.Proposition, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	out := make([]*models.Proposition, 0, len(l.state.order))
	for _, pid := range l.state.order {
		p := l.state.propositions[pid]
		if !filter.Owner.IsZero() && p.Owner != filter.Owner {
			continue
		}
		if filter.Status != "" && p.Status != filter.Status {
			continue
		}
		cp := *p
		out = append(out, &cp)
	}
	return out, nil
}

func (l *Ledger) AddBusiness(_ context.Context, b *models.Business) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if _, ok := l.state.businesses[b.ID]; ok {
		return sentinel.ErrAlreadyUsed
	}
	next := l.state.clone()
	cp := *b
	next.businesses[b.ID] = &cp
	l.state = next
	return nil
}

func (l *Ledger) GetBusiness(_ context.Context, businessID id.BusinessID) (*models.Business, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	b, ok := l.state.businesses[businessID]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	cp := *b
	return &cp, nil
}

func (l *Ledger) AddMultipassUser(_ context.Context, u *models.MultipassUser) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if _, ok := l.state.users[u.ID]; ok {
		return sentinel.ErrAlreadyUsed
	}
	next := l.state.clone()
	cp := u.Clone()
	cp.Version = 1
	next.users[u.ID] = cp
	l.state = next
	u.Version = cp.Version
	return nil
}

func (l *Ledger) GetMultipassUser(_ context.Context, userID id.MultipassUserID) (*models.MultipassUser, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	u, ok := l.state.users[userID]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	return u.Clone(), nil
}

type propositionRegistry struct {
	st *state
}

func (r *propositionRegistry) Get(_ context.Context, propID id.PropositionID) (*models.Proposition, error) {
	p, ok := r.st.propositions[propID]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	cp := *p
	return &cp, nil
}

func (r *propositionRegistry) Add(_ context.Context, prop *models.Proposition) error {
	if _, ok := r.st.propositions[prop.ID]; ok {
		return sentinel.ErrAlreadyUsed
	}
	cp := *prop
	cp.Version = 1
	r.st.propositions[prop.ID] = &cp
	r.st.order = append(r.st.order, prop.ID)
	// Keep the sequence ahead of identifiers added without the allocator.
	if n, err := strconv.ParseUint(string(prop.ID), 10, 64); err == nil && n > r.st.seq {
		r.st.seq = n
	}
	prop.Version = cp.Version
	return nil
}

func (r *propositionRegistry) Update(_ context.Context, prop *models.Proposition) error {
	current, ok := r.st.propositions[prop.ID]
	if !ok {
		return sentinel.ErrNotFound
	}
	if current.Version != prop.Version {
		return sentinel.ErrConflict
	}
	cp := *prop
	cp.Version = current.Version + 1
	r.st.propositions[prop.ID] = &cp
	prop.Version = cp.Version
	return nil
}

type userRegistry struct {
	st *state
}

func (r *userRegistry) Get(_ context.Context, userID id.MultipassUserID) (*models.MultipassUser, error) {
	u, ok := r.st.users[userID]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	return u.Clone(), nil
}

func (r *userRegistry) Update(_ context.Context, user *models.MultipassUser) error {
	current, ok := r.st.users[user.ID]
	if !ok {
		return sentinel.ErrNotFound
	}
	if current.Version != user.Version {
		return sentinel.ErrConflict
	}
	cp := user.Clone()
	cp.Version = current.Version + 1
	r.st.users[user.ID] = cp
	user.Version = cp.Version
	return nil
}

// sequence is the monotonic proposition counter. It lives in the staged state,
// so it is only advanced by transactions that commit.
type sequence struct {
	st *state
}

func (s *sequence) Next(_ context.Context) (id.PropositionID, error) {
	s.st.seq++
	return id.PropositionID(strconv.FormatUint(s.st.seq, 10)), nil
}

type eventBuffer struct {
	events *[]events.Event
}

func (b *eventBuffer) Append(_ context.Context, e events.Event) error {
	*b.events = append(*b.events, e)
	return nil
}
