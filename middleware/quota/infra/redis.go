package infra

import (
	"context"
	"errors"
	"fmt"
	"time"

	"verity-gateway/middleware/quota/domain"

	"github.com/redis/go-redis/v9"
)

// RedisStore implementa domain.KV sobre um Redis "de verdade" via go-redis.
// É a opção recomendada quando o gateway roda perto do Redis (mesma VPC);
// o RESTStore existe para Redis gerenciado atrás de HTTP.
type RedisStore struct {
	rdb *redis.Client
}

func NewRedisStore(rdb *redis.Client) *RedisStore {
	return &RedisStore{rdb: rdb}
}

func (s *RedisStore) Get(ctx context.Context, key string) (string, bool, error) {
	v, err := s.rdb.Get(ctx, key).Result()
	if errors.Is(err, redis.Nil) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return v, true, nil
}

func (s *RedisStore) Set(ctx context.Context, key, value string, opts domain.SetOptions) (bool, error) {
	args := redis.SetArgs{}
	switch {
	case opts.PX > 0:
		args.TTL = opts.PX
	case opts.EX > 0:
		args.TTL = opts.EX
	}
	if opts.NX {
		args.Mode = "NX"
	} else if opts.XX {
		args.Mode = "XX"
	}

	_, err := s.rdb.SetArgs(ctx, key, value, args).Result()
	if errors.Is(err, redis.Nil) {
		// NX/XX não satisfeito
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

func (s *RedisStore) Incr(ctx context.Context, key string) (int64, error) {
	return s.rdb.Incr(ctx, key).Result()
}

func (s *RedisStore) IncrBy(ctx context.Context, key string, n int64) (int64, error) {
	return s.rdb.IncrBy(ctx, key, n).Result()
}

func (s *RedisStore) Expire(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	return s.rdb.Expire(ctx, key, ttl).Result()
}

func (s *RedisStore) TTL(ctx context.Context, key string) (time.Duration, error) {
	d, err := s.rdb.TTL(ctx, key).Result()
	if err != nil {
		return 0, err
	}
	// go-redis devolve -1/-2 "crus"; normaliza para a convenção em segundos
	if d == -1 || d == -2 {
		return d * time.Second, nil
	}
	return d, nil
}

func (s *RedisStore) Del(ctx context.Context, keys ...string) (int64, error) {
	return s.rdb.Del(ctx, keys...).Result()
}

func (s *RedisStore) ZAdd(ctx context.Context, key string, score float64, member string) (int64, error) {
	return s.rdb.ZAdd(ctx, key, redis.Z{Score: score, Member: member}).Result()
}

func (s *RedisStore) ZRemRangeByScore(ctx context.Context, key string, min, max float64) (int64, error) {
	return s.rdb.ZRemRangeByScore(ctx, key, formatScore(min), formatScore(max)).Result()
}

func (s *RedisStore) ZCard(ctx context.Context, key string) (int64, error) {
	return s.rdb.ZCard(ctx, key).Result()
}

func (s *RedisStore) ZRange(ctx context.Context, key string, start, stop int64) ([]string, error) {
	return s.rdb.ZRange(ctx, key, start, stop).Result()
}

func (s *RedisStore) ZRangeWithScores(ctx context.Context, key string, start, stop int64) ([]domain.ZMember, error) {
	zs, err := s.rdb.ZRangeWithScores(ctx, key, start, stop).Result()
	if err != nil {
		return nil, err
	}
	out := make([]domain.ZMember, 0, len(zs))
	for _, z := range zs {
		m, ok := z.Member.(string)
		if !ok {
			return nil, fmt.Errorf("store: unexpected member type %T", z.Member)
		}
		out = append(out, domain.ZMember{Member: m, Score: z.Score})
	}
	return out, nil
}

func (s *RedisStore) HSet(ctx context.Context, key, field, value string) error {
	return s.rdb.HSet(ctx, key, field, value).Err()
}

func (s *RedisStore) HGet(ctx context.Context, key, field string) (string, bool, error) {
	v, err := s.rdb.HGet(ctx, key, field).Result()
	if errors.Is(err, redis.Nil) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return v, true, nil
}

func (s *RedisStore) HGetAll(ctx context.Context, key string) (map[string]string, error) {
	return s.rdb.HGetAll(ctx, key).Result()
}

func (s *RedisStore) HIncrBy(ctx context.Context, key, field string, n int64) (int64, error) {
	return s.rdb.HIncrBy(ctx, key, field, n).Result()
}
