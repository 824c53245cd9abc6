package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"learningodyssey/internal/adventure"
)

// RedisStore backs the State Store Adapter with Redis — the product this
// component's contract describes ("external key-value row store") is
// Redis's own description of itself. Records live under
// "adventure:{state_id}"; the per-client resumption pointer lives under
// "adventure:active:{client_uuid}" and is cleared once an adventure
// completes.
type RedisStore struct {
	client redis.UniversalClient
	ttl    time.Duration
}

func NewRedisStore(addr, password string, db int) (*RedisStore, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})
	if err := client.Ping(context.Background()).Err(); err != nil {
		return nil, &adventure.StoreUnavailable{Cause: fmt.Errorf("redis ping: %w", err)}
	}
	return &RedisStore{client: client, ttl: 30 * 24 * time.Hour}, nil
}

func snapshotKey(stateID string) string    { return "adventure:" + stateID }
func activeKey(clientUUID string) string { return "adventure:active:" + clientUUID }

func (s *RedisStore) Store(ctx context.Context, state *adventure.AdventureState, environment, clientUUID string, isComplete bool) (string, error) {
	stateID, _, err := s.ActiveForClient(ctx, clientUUID)
	if err != nil {
		return "", err
	}
	if stateID == "" {
		stateID = uuid.NewString()
	}

	snap := recordFrom(state)
	rec := Record{
		StateID:     stateID,
		Environment: environment,
		UserID:      stringifyUserID(snap),
		ClientUUID:  clientUUID,
		IsComplete:  isComplete,
		Snapshot:    snap,
		UpdatedAt:   time.Now().UTC(),
	}

	if existing, err := s.loadRaw(ctx, stateID); err == nil {
		rec.CreatedAt = existing.CreatedAt
	} else {
		rec.CreatedAt = rec.UpdatedAt
	}

	data, err := json.Marshal(rec)
	if err != nil {
		return "", fmt.Errorf("store: marshal record: %w", err)
	}
	if err := s.client.Set(ctx, snapshotKey(stateID), data, s.ttl).Err(); err != nil {
		return "", &adventure.StoreUnavailable{Cause: fmt.Errorf("write record: %w", err)}
	}

	if isComplete {
		if err := s.client.Del(ctx, activeKey(clientUUID)).Err(); err != nil {
			return "", &adventure.StoreUnavailable{Cause: fmt.Errorf("clear active pointer: %w", err)}
		}
	} else {
		if err := s.client.Set(ctx, activeKey(clientUUID), stateID, s.ttl).Err(); err != nil {
			return "", &adventure.StoreUnavailable{Cause: fmt.Errorf("write active pointer: %w", err)}
		}
	}

	return stateID, nil
}

func (s *RedisStore) Load(ctx context.Context, stateID string) (Record, error) {
	return s.loadRaw(ctx, stateID)
}

func (s *RedisStore) loadRaw(ctx context.Context, stateID string) (Record, error) {
	val, err := s.client.Get(ctx, snapshotKey(stateID)).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return Record{}, ErrNotFound
		}
		return Record{}, &adventure.StoreUnavailable{Cause: fmt.Errorf("read record: %w", err)}
	}
	var rec Record
	if err := json.Unmarshal([]byte(val), &rec); err != nil {
		return Record{}, fmt.Errorf("store: unmarshal record: %w", err)
	}
	return rec, nil
}

func (s *RedisStore) ActiveForClient(ctx context.Context, clientUUID string) (string, bool, error) {
	val, err := s.client.Get(ctx, activeKey(clientUUID)).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return "", false, nil
		}
		return "", false, &adventure.StoreUnavailable{Cause: fmt.Errorf("read active pointer: %w", err)}
	}
	return val, true, nil
}

func (s *RedisStore) Close() error {
	return s.client.Close()
}
