package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/energyos/espi-authz/internal/common/config"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// redisStateIndex decorates a Store with a Redis-backed state-token index
// shared by all server instances. GETDEL sheds the pending-token key early;
// the wrapped store's row-level guard remains the sole decision point for
// single-use consumption. The index key TTL must be at least the
// Created-record TTL so a pending token never expires from the index before
// the sweep expires its record.
type redisStateIndex struct {
	Store
	client *redis.Client
	prefix string
	ttl    time.Duration
	logger *zap.Logger
}

// NewRedisStateIndex wraps the given store with a Redis consumption index.
func NewRedisStateIndex(logger *zap.Logger, inner Store, cfg *config.RedisIndexConfig) (Store, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Username: cfg.Username,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	if err := client.Ping(context.Background()).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	return &redisStateIndex{
		Store:  inner,
		client: client,
		prefix: cfg.Prefix,
		ttl:    cfg.TTL,
		logger: logger.Named("storage.stateindex"),
	}, nil
}

func (s *redisStateIndex) Close() error {
	if err := s.client.Close(); err != nil {
		return err
	}
	return s.Store.Close()
}

func (s *redisStateIndex) Create(ctx context.Context, authz *Authorization) error {
	if err := s.Store.Create(ctx, authz); err != nil {
		return err
	}
	if authz.State == "" {
		return nil
	}
	if err := s.client.Set(ctx, s.prefix+authz.State, authz.ID, s.ttl).Err(); err != nil {
		// The relational guard still enforces single use; the index is only
		// the fast path. Log and continue.
		s.logger.Warn("failed to index state token", zap.Error(err))
	}
	return nil
}

func (s *redisStateIndex) ConsumeState(ctx context.Context, state string) (*Authorization, error) {
	// Shed the index entry first; consumption itself always goes through the
	// wrapped store, whose row-level guard is the single decision point for
	// single use. An index hit must never short-circuit that guard: a caller
	// on another instance may race through the relational path at the same
	// moment (its index read saw nil after this GETDEL, or the entry had
	// already expired) and exactly one of the two may win.
	if err := s.client.GetDel(ctx, s.prefix+state).Err(); err != nil && !errors.Is(err, redis.Nil) {
		s.logger.Warn("state index unavailable", zap.Error(err))
	}
	return s.Store.ConsumeState(ctx, state)
}
