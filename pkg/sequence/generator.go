package sequence

import (
	"context"
	"fmt"

	"licensing-controlplane/pkg/rediskey"

	"github.com/redis/go-redis/v9"
	"go.uber.org/fx"
)

var Module = fx.Module("sequence",
	fx.Provide(NewRedisGenerator),
)

// Generator hands out monotonically increasing counters shared by every replica.
type Generator interface {
	NextLicenceSequence(ctx context.Context, year int) (int64, error)
}

type RedisGenerator struct {
	rdb *redis.Client
}

type Params struct {
	fx.In

	Redis *redis.Client
}

func NewRedisGenerator(p Params) Generator {
	return &RedisGenerator{
		rdb: p.Redis,
	}
}

func (g *RedisGenerator) NextLicenceSequence(ctx context.Context, year int) (int64, error) {
	seq, err := g.rdb.Incr(ctx, rediskey.BuildLicenceSequenceKey(year)).Result()
	if err != nil {
		return 0, fmt.Errorf("incr licence sequence: %w", err)
	}
	return seq, nil
}
