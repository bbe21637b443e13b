package stats

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"github.com/redis/go-redis/v9"
)

// Store persists per-player journals keyed by account address.
type Store interface {
	Load(ctx context.Context, player common.Address) (PlayerStats, error)
	Save(ctx context.Context, player common.Address, s PlayerStats) error
}

// RedisStore keeps journals in Redis as JSON blobs.
type RedisStore struct {
	rdb *redis.Client
}

func NewRedisStore(addr, password string, db int) *RedisStore {
	return &RedisStore{rdb: redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})}
}

func statsKey(player common.Address) string {
	return "chadflip:stats:" + strings.ToLower(player.Hex())
}

func (r *RedisStore) Load(ctx context.Context, player common.Address) (PlayerStats, error) {
	raw, err := r.rdb.Get(ctx, statsKey(player)).Bytes()
	if errors.Is(err, redis.Nil) {
		return newPlayerStats(), nil
	}
	if err != nil {
		return PlayerStats{}, fmt.Errorf("load stats: %w", err)
	}
	var s PlayerStats
	if err := json.Unmarshal(raw, &s); err != nil {
		return PlayerStats{}, fmt.Errorf("decode stats: %w", err)
	}
	s.normalize()
	return s, nil
}

func (r *RedisStore) Save(ctx context.Context, player common.Address, s PlayerStats) error {
	raw, err := json.Marshal(s)
	if err != nil {
		return fmt.Errorf("encode stats: %w", err)
	}
	if err := r.rdb.Set(ctx, statsKey(player), raw, 0).Err(); err != nil {
		return fmt.Errorf("save stats: %w", err)
	}
	return nil
}

func (r *RedisStore) Ping(ctx context.Context) error { return r.rdb.Ping(ctx).Err() }

func (r *RedisStore) Close() error { return r.rdb.Close() }

// MemoryStore is a process-local Store for tests and Redis-less runs.
type MemoryStore struct {
	mu sync.Mutex
	m  map[common.Address]PlayerStats
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{m: make(map[common.Address]PlayerStats)}
}

func (ms *MemoryStore) Load(_ context.Context, player common.Address) (PlayerStats, error) {
	ms.mu.Lock()
	defer ms.mu.Unlock()
	s, ok := ms.m[player]
	if !ok {
		return newPlayerStats(), nil
	}
	s.normalize()
	return s, nil
}

func (ms *MemoryStore) Save(_ context.Context, player common.Address, s PlayerStats) error {
	ms.mu.Lock()
	defer ms.mu.Unlock()
	ms.m[player] = s
	return nil
}
