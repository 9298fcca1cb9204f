//go:build integration

package postgres_test

import (
	"context"
	"database/sql"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/stretchr/testify/suite"

	"cityledger/internal/ledger/ports"
	"cityledger/internal/ledger/postgres"
	"cityledger/internal/proposition/models"
	"cityledger/internal/proposition/service"
	id "cityledger/pkg/domain"
	dErrors "cityledger/pkg/domain-errors"
	"cityledger/pkg/platform/sentinel"
	"cityledger/pkg/testutil/containers"
)

type PostgresLedgerSuite struct {
	suite.Suite
	postgres *containers.PostgresContainer
	ledger   *postgres.Ledger
	ctx      context.Context
}

func TestPostgresLedgerSuite(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	suite.Run(t, new(PostgresLedgerSuite))
}

func (s *PostgresLedgerSuite) SetupSuite() {
	s.ctx = context.Background()
	s.postgres = containers.GetManager().GetPostgres(s.T())
	s.Require().NoError(postgres.Migrate(s.ctx, s.postgres.DB))
	s.ledger = postgres.New(s.postgres.DB)
}

func (s *PostgresLedgerSuite) SetupTest() {
	s.Require().NoError(s.postgres.TruncateTables(s.ctx, "ledger_outbox", "propositions", "multipass_users", "businesses"))
	_, err := s.postgres.DB.ExecContext(s.ctx, `ALTER SEQUENCE proposition_id_seq RESTART WITH 1`)
	s.Require().NoError(err)
	s.Require().NoError(s.ledger.AddBusiness(s.ctx, &models.Business{ID: "B1", Name: "Bakery"}))
	s.Require().NoError(s.ledger.AddMultipassUser(s.ctx, &models.MultipassUser{ID: "U1"}))
}

func (s *PostgresLedgerSuite) TestRegistries() {
	s.Run("add get update round trip", func() {
		s.Require().NoError(s.ledger.RunInTx(s.ctx, func(ctx context.Context, r ports.Registries) error {
			p, err := models.NewProposition("p-1", "offer", id.BusinessRef("B1"))
			s.Require().NoError(err)
			s.Require().NoError(r.Propositions.Add(ctx, p))
			s.Equal(int64(1), p.Version)

			got, err := r.Propositions.Get(ctx, "p-1")
			s.Require().NoError(err)
			s.Equal(*p, *got)

			got.Status = models.StatusDelivered
			got.Recipient = id.MultipassUserRef("U1")
			s.Require().NoError(r.Propositions.Update(ctx, got))
			s.Equal(int64(2), got.Version)
			return nil
		}))
	})

	s.Run("duplicate add", func() {
		err := s.ledger.RunInTx(s.ctx, func(ctx context.Context, r ports.Registries) error {
			p, _ := models.NewProposition("p-1", "again", id.BusinessRef("B1"))
			return r.Propositions.Add(ctx, p)
		})
		s.ErrorIs(err, sentinel.ErrAlreadyUsed)
	})

	s.Run("stale version and missing record", func() {
		err := s.ledger.RunInTx(s.ctx, func(ctx context.Context, r ports.Registries) error {
			return r.Propositions.Update(ctx, &models.Proposition{ID: "p-1", Details: "x", Status: models.StatusPlaced, Owner: id.BusinessRef("B1"), Version: 1})
		})
		s.ErrorIs(err, sentinel.ErrConflict)

		err = s.ledger.RunInTx(s.ctx, func(ctx context.Context, r ports.Registries) error {
			return r.Users.Update(ctx, &models.MultipassUser{ID: "ghost", Version: 1})
		})
		s.ErrorIs(err, sentinel.ErrNotFound)
	})
}

func (s *PostgresLedgerSuite) TestRollback() {
	boom := errors.New("boom")
	err := s.ledger.RunInTx(s.ctx, func(ctx context.Context, r ports.Registries) error {
		p, _ := models.NewProposition("p-9", "offer", id.BusinessRef("B1"))
		s.Require().NoError(r.Propositions.Add(ctx, p))
		return boom
	})
	s.ErrorIs(err, boom)

	props, err := s.ledger.ListPropositions(s.ctx, ports.PropositionFilter{})
	s.Require().NoError(err)
	s.Empty(props)
}

func (s *PostgresLedgerSuite) TestLifecycleAgainstPostgres() {
	svc := service.New(s.ledger)

	prop, err := svc.Place(s.ctx, models.PlaceProposition{PropDetails: "10% discount", Orderer: id.BusinessRef("B1")})
	s.Require().NoError(err)
	s.Equal(id.PropositionID("1"), prop.ID)

	d, err := svc.Deliver(s.ctx, models.DeliverProposition{Prop: prop.Ref(), MultipassOwner: id.MultipassUserRef("U1")})
	s.Require().NoError(err)
	s.Require().Len(d.User.Props, 1)

	_, err = svc.Update(s.ctx, models.UpdateProposition{Prop: prop.Ref(), MultipassOwner: id.MultipassUserRef("U1"), PropStatus: "ACCEPTED"})
	s.Require().NoError(err)

	user, err := s.ledger.GetMultipassUser(s.ctx, "U1")
	s.Require().NoError(err)
	canonical, err := svc.Get(s.ctx, prop.ID)
	s.Require().NoError(err)
	s.Require().Len(user.Props, 1)
	s.Equal(*canonical, user.Props[0])
	s.Equal(models.StatusAccepted, canonical.Status)

	pending, err := s.ledger.Outbox().Pending(s.ctx, 10)
	s.Require().NoError(err)
	s.Require().Len(pending, 3)
	s.Equal(models.EventPlaceProposition, pending[0].Type)
	s.Equal(models.EventDeliverProposition, pending[1].Type)
	s.Equal(models.EventUpdateProposition, pending[2].Type)

	s.Require().NoError(s.ledger.Outbox().MarkPublished(s.ctx, []uuid.UUID{pending[0].ID, pending[1].ID}, time.Now()))
	pending, err = s.ledger.Outbox().Pending(s.ctx, 10)
	s.Require().NoError(err)
	s.Require().Len(pending, 1)
	s.Equal(models.EventUpdateProposition, pending[0].Type)
}

func (s *PostgresLedgerSuite) TestPgxDriver() {
	db, err := sql.Open("pgx", s.postgres.DSN)
	s.Require().NoError(err)
	defer db.Close()

	ledger := postgres.New(db)
	svc := service.New(ledger)

	prop, err := svc.Place(s.ctx, models.PlaceProposition{PropDetails: "free coffee", Orderer: id.BusinessRef("B1")})
	s.Require().NoError(err)
	_, err = svc.Deliver(s.ctx, models.DeliverProposition{Prop: prop.Ref(), MultipassOwner: id.MultipassUserRef("U1")})
	s.Require().NoError(err)

	err = ledger.AddBusiness(s.ctx, &models.Business{ID: "B1"})
	s.Require().ErrorIs(err, sentinel.ErrAlreadyUsed, "unique violations map the same under pgx")

	pending, err := ledger.Outbox().Pending(s.ctx, 10)
	s.Require().NoError(err)
	s.Require().Len(pending, 2)
	s.Require().NoError(ledger.Outbox().MarkPublished(s.ctx, []uuid.UUID{pending[0].ID, pending[1].ID}, time.Now()))
}

func (s *PostgresLedgerSuite) TestConcurrentPlacements() {
	svc := service.New(s.ledger)
	const workers = 20

	var (
		wg   sync.WaitGroup
		mu   sync.Mutex
		seen = map[id.PropositionID]bool{}
	)
	for range workers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			prop, err := svc.Place(s.ctx, models.PlaceProposition{PropDetails: "bulk", Orderer: id.BusinessRef("B1")})
			if !s.NoError(err) {
				return
			}
			mu.Lock()
			defer mu.Unlock()
			s.False(seen[prop.ID])
			seen[prop.ID] = true
		}()
	}
	wg.Wait()
	s.Len(seen, workers)
}

func (s *PostgresLedgerSuite) TestConcurrentDeliveriesSerialize() {
	svc := service.New(s.ledger)
	var props []*models.Proposition
	for range 5 {
		p, err := svc.Place(s.ctx, models.PlaceProposition{PropDetails: "offer", Orderer: id.BusinessRef("B1")})
		s.Require().NoError(err)
		props = append(props, p)
	}

	var wg sync.WaitGroup
	for _, p := range props {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := svc.Deliver(s.ctx, models.DeliverProposition{Prop: p.Ref(), MultipassOwner: id.MultipassUserRef("U1")})
			s.NoError(err)
		}()
	}
	wg.Wait()

	user, err := s.ledger.GetMultipassUser(s.ctx, "U1")
	s.Require().NoError(err)
	s.Len(user.Props, len(props), "no delivery may be lost")
}

func (s *PostgresLedgerSuite) TestParticipants() {
	err := s.ledger.AddBusiness(s.ctx, &models.Business{ID: "B1"})
	s.ErrorIs(err, sentinel.ErrAlreadyUsed)

	_, err = s.ledger.GetBusiness(s.ctx, "B404")
	s.ErrorIs(err, sentinel.ErrNotFound)

	svc := service.New(s.ledger)
	_, err = svc.Deliver(s.ctx, models.DeliverProposition{Prop: id.PropositionRef("404"), MultipassOwner: id.MultipassUserRef("U1")})
	s.True(dErrors.HasCode(err, dErrors.CodeNotFound))
}
