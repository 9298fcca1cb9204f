// Package redisseq allocates proposition identifiers from a Redis counter so
// several ledger processes can share one sequence.
package redisseq

import (
	"context"
	"fmt"
	"strconv"

	"github.com/redis/go-redis/v9"

	id "cityledger/pkg/domain"
)

const DefaultKey = "cityledger:proposition:seq"

// raiseTo lifts the counter to ARGV[1] if it is currently lower.
var raiseTo = redis.NewScript(`
local current = tonumber(redis.call("GET", KEYS[1]) or "0")
local floor = tonumber(ARGV[1])
if current < floor then
  redis.call("SET", KEYS[1], floor)
  return floor
end
return current
`)

// Client is the subset of go-redis the allocator uses.
type Client interface {
	redis.Scripter
	Incr(ctx context.Context, key string) *redis.IntCmd
}

// Allocator hands out decimal identifiers starting at "1". INCR is atomic, so
// concurrent callers never receive the same value; a transaction that aborts
// after allocating leaves a gap.
type Allocator struct {
	client Client
	key    string
}

// New creates an allocator on key. An empty key uses DefaultKey.
func New(client Client, key string) *Allocator {
	if key == "" {
		key = DefaultKey
	}
	return &Allocator{client: client, key: key}
}

func (a *Allocator) Next(ctx context.Context) (id.PropositionID, error) {
	n, err := a.client.Incr(ctx, a.key).Result()
	if err != nil {
		return "", fmt.Errorf("incr proposition sequence: %w", err)
	}
	return id.PropositionID(strconv.FormatInt(n, 10)), nil
}

// EnsureAtLeast raises the counter to floor so the next identifier is above
// every identifier already stored. It never lowers the counter.
func (a *Allocator) EnsureAtLeast(ctx context.Context, floor int64) (int64, error) {
	n, err := raiseTo.Run(ctx, a.client, []string{a.key}, floor).Int64()
	if err != nil {
		return 0, fmt.Errorf("raise proposition sequence: %w", err)
	}
	return n, nil
}
