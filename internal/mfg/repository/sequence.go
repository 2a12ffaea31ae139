package repository

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
)

const sequenceTTL = 400 * 24 * time.Hour

// Sequence 单号流水；有 redis 时用 INCR，否则退回计数查询（不保证无间隙）
type Sequence struct {
	rdb *redis.Client
}

func NewSequence(rdb *redis.Client) *Sequence {
	return &Sequence{rdb: rdb}
}

// Next 返回 key 下的下一个序号；seed 给出当前已有数量
func (s *Sequence) Next(ctx context.Context, key string, seed func(context.Context) (int64, error)) (int64, error) {
	if s.rdb == nil {
		n, err := seed(ctx)
		if err != nil {
			return 0, err
		}
		return n + 1, nil
	}

	redisKey := "mfg:seq:" + key
	exists, err := s.rdb.Exists(ctx, redisKey).Result()
	if err != nil {
		n, seedErr := seed(ctx)
		if seedErr != nil {
			return 0, seedErr
		}
		return n + 1, nil
	}
	if exists == 0 {
		n, err := seed(ctx)
		if err != nil {
			return 0, err
		}
		s.rdb.SetNX(ctx, redisKey, n, sequenceTTL)
	}
	return s.rdb.Incr(ctx, redisKey).Result()
}
