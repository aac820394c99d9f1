package snapshot

import (
	"context"
	"errors"
	"fmt"

	"github.com/park285/goban-state/internal/domain"
	"github.com/park285/goban-state/internal/sgf"
	"github.com/redis/go-redis/v9"
)

const (
	keySnapshot = "goban:state:snapshot"
	keyMoveLog  = "goban:state:movelog"
)

// RedisStore keeps both formats as plain string keys. The client is owned by
// the caller.
type RedisStore struct{ rdb *redis.Client }

func NewRedisStore(rdb *redis.Client) *RedisStore { return &RedisStore{rdb: rdb} }

func (s *RedisStore) WriteSnapshot(ctx context.Context, snap *domain.GameSnapshot) error {
	raw, log, err := encode(snap)
	if err != nil {
		return err
	}
	_, err = s.rdb.TxPipelined(ctx, func(p redis.Pipeliner) error {
		p.Set(ctx, keyMoveLog, log, 0)
		p.Set(ctx, keySnapshot, raw, 0)
		return nil
	})
	if err != nil {
		return fmt.Errorf("redis write state: %w", err)
	}
	return nil
}

func (s *RedisStore) ReadSnapshot(ctx context.Context) (*domain.GameSnapshot, error) {
	raw, err := s.get(ctx, keySnapshot)
	if err != nil {
		return nil, err
	}
	return decodeSnapshot(raw)
}

func (s *RedisStore) ReadMoveLog(ctx context.Context) (*sgf.Record, error) {
	raw, err := s.get(ctx, keyMoveLog)
	if err != nil {
		return nil, err
	}
	return decodeMoveLog(raw)
}

func (s *RedisStore) get(ctx context.Context, key string) ([]byte, error) {
	raw, err := s.rdb.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("redis get %s: %w", key, err)
	}
	return raw, nil
}

func (s *RedisStore) Close() error { return nil }
