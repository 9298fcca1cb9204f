//go:build integration

package redisseq_test

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/suite"

	"cityledger/internal/ledger/memory"
	"cityledger/internal/ledger/redisseq"
	"cityledger/internal/proposition/models"
	"cityledger/internal/proposition/service"
	id "cityledger/pkg/domain"
	"cityledger/pkg/testutil/containers"
)

type AllocatorSuite struct {
	suite.Suite
	redis     *containers.RedisContainer
	allocator *redisseq.Allocator
	ctx       context.Context
}

func TestAllocatorSuite(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	suite.Run(t, new(AllocatorSuite))
}

func (s *AllocatorSuite) SetupSuite() {
	s.ctx = context.Background()
	s.redis = containers.GetManager().GetRedis(s.T())
	s.allocator = redisseq.New(s.redis.Client, s.redis.Client.SequenceKey())
}

func (s *AllocatorSuite) SetupTest() {
	s.Require().NoError(s.redis.Reset(s.ctx))
}

func (s *AllocatorSuite) TestStartsAtOne() {
	first, err := s.allocator.Next(s.ctx)
	s.Require().NoError(err)
	s.Equal(id.PropositionID("1"), first)

	second, err := s.allocator.Next(s.ctx)
	s.Require().NoError(err)
	s.Equal(id.PropositionID("2"), second)
}

func (s *AllocatorSuite) TestEnsureAtLeast() {
	n, err := s.allocator.EnsureAtLeast(s.ctx, 5)
	s.Require().NoError(err)
	s.Equal(int64(5), n)

	next, err := s.allocator.Next(s.ctx)
	s.Require().NoError(err)
	s.Equal(id.PropositionID("6"), next)

	n, err = s.allocator.EnsureAtLeast(s.ctx, 2)
	s.Require().NoError(err)
	s.Equal(int64(6), n, "never lowers the counter")
}

func (s *AllocatorSuite) TestConcurrentAllocationIsUnique() {
	const workers = 100
	var (
		wg   sync.WaitGroup
		mu   sync.Mutex
		seen = make(map[id.PropositionID]bool, workers)
	)
	for range workers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			pid, err := s.allocator.Next(s.ctx)
			if !s.NoError(err) {
				return
			}
			mu.Lock()
			defer mu.Unlock()
			s.False(seen[pid])
			seen[pid] = true
		}()
	}
	wg.Wait()
	s.Len(seen, workers)
}

func (s *AllocatorSuite) TestSharedSequenceAcrossLedgers() {
	// Two processes with separate stores draw from one sequence.
	a := service.New(memory.New(), service.WithAllocator(s.allocator))
	b := service.New(memory.New(), service.WithAllocator(s.allocator))

	pa, err := a.Place(s.ctx, models.PlaceProposition{PropDetails: "a", Orderer: id.BusinessRef("B1")})
	s.Require().NoError(err)
	pb, err := b.Place(s.ctx, models.PlaceProposition{PropDetails: "b", Orderer: id.BusinessRef("B1")})
	s.Require().NoError(err)
	s.NotEqual(pa.ID, pb.ID)
}
