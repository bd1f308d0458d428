package syncer

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const stateKeyPrefix = "pam:sync:state:"

// RedisStateStore stores each source's state in a hash.
type RedisStateStore struct {
	rdb *redis.Client
}

func NewRedisStateStore(rdb *redis.Client) *RedisStateStore {
	return &RedisStateStore{rdb: rdb}
}

func (s *RedisStateStore) Get(ctx context.Context, key string) (SyncState, bool, error) {
	fields, err := s.rdb.HGetAll(ctx, stateKeyPrefix+key).Result()
	if err != nil {
		return SyncState{}, false, fmt.Errorf("failed to read sync state: %w", err)
	}
	if len(fields) == 0 {
		return SyncState{}, false, nil
	}

	st := SyncState{Fingerprint: fields["fingerprint"]}
	if raw := fields["last_sync_at"]; raw != "" {
		t, err := time.Parse(time.RFC3339Nano, raw)
		if err != nil {
			return SyncState{}, false, fmt.Errorf("corrupt last_sync_at %q: %w", raw, err)
		}
		st.LastSyncAt = t
	}
	return st, true, nil
}

func (s *RedisStateStore) Set(ctx context.Context, key string, st SyncState) error {
	err := s.rdb.HSet(ctx, stateKeyPrefix+key,
		"fingerprint", st.Fingerprint,
		"last_sync_at", st.LastSyncAt.UTC().Format(time.RFC3339Nano),
	).Err()
	if err != nil {
		return fmt.Errorf("failed to write sync state: %w", err)
	}
	return nil
}
