// Package redistore backs the presence table with a Redis hash per
// scope. Redis is schemaless, so the unknown-attribute degrade path
// never triggers here; connection errors are transient and left to the
// presence client to swallow.
package redistore

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/LiveStak-Brad/mylivelinks-sub009/internal/domain"
)

const DefaultKeyPrefix = "presence:"

type Config struct {
	Addr      string
	Password  string
	DB        int
	KeyPrefix string
}

type Store struct {
	client    *redis.Client
	keyPrefix string
}

// NewStore connects to Redis and verifies the connection.
func NewStore(cfg Config) (*Store, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	prefix := cfg.KeyPrefix
	if prefix == "" {
		prefix = DefaultKeyPrefix
	}
	return &Store{client: client, keyPrefix: prefix}, nil
}

// New wraps an existing client, owned by the caller.
func New(client *redis.Client, keyPrefix string) *Store {
	if keyPrefix == "" {
		keyPrefix = DefaultKeyPrefix
	}
	return &Store{client: client, keyPrefix: keyPrefix}
}

func (s *Store) Close() error { return s.client.Close() }

func (s *Store) key(scope domain.ScopeID) string {
	return s.keyPrefix + string(scope)
}

func (s *Store) Upsert(ctx context.Context, rec domain.PresenceRecord) error {
	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("marshal presence record: %w", err)
	}
	if err := s.client.HSet(ctx, s.key(rec.ScopeID), string(rec.SubjectID), data).Err(); err != nil {
		return fmt.Errorf("upsert presence: %w", err)
	}
	return nil
}

func (s *Store) Delete(ctx context.Context, subject domain.SubjectID, scope domain.ScopeID) error {
	if scope != "" {
		if err := s.client.HDel(ctx, s.key(scope), string(subject)).Err(); err != nil {
			return fmt.Errorf("delete presence: %w", err)
		}
		return nil
	}
	// Subject-wide delete: walk every scope hash under the prefix.
	iter := s.client.Scan(ctx, 0, s.keyPrefix+"*", 0).Iterator()
	for iter.Next(ctx) {
		if err := s.client.HDel(ctx, iter.Val(), string(subject)).Err(); err != nil {
			return fmt.Errorf("delete presence: %w", err)
		}
	}
	if err := iter.Err(); err != nil {
		return fmt.Errorf("scan presence keys: %w", err)
	}
	return nil
}

func (s *Store) Scan(ctx context.Context, scope domain.ScopeID) ([]domain.PresenceRecord, error) {
	entries, err := s.client.HGetAll(ctx, s.key(scope)).Result()
	if err != nil {
		return nil, fmt.Errorf("scan presence: %w", err)
	}
	out := make([]domain.PresenceRecord, 0, len(entries))
	for _, raw := range entries {
		var rec domain.PresenceRecord
		if err := json.Unmarshal([]byte(raw), &rec); err != nil {
			// A malformed row is skipped, not fatal to the roster.
			continue
		}
		out = append(out, rec)
	}
	return out, nil
}
