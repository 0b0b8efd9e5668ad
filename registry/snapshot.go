package registry

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/BaSui01/agentcore/retry"
	"github.com/BaSui01/agentcore/types"
)

// SnapshotStore persists the registry's agent view so a restarted
// orchestrator can restore it. Task and message state is deliberately not
// persisted; only the agent table survives a restart.
type SnapshotStore interface {
	// Save persists the given agent records, replacing any prior snapshot.
	Save(ctx context.Context, agents []*types.Agent) error

	// Load returns the last persisted snapshot, or an empty slice when
	// none exists.
	Load(ctx context.Context) ([]*types.Agent, error)
}

// RedisSnapshotConfig holds configuration for the Redis snapshot store.
type RedisSnapshotConfig struct {
	// Key is the Redis key holding the snapshot.
	Key string `json:"key" yaml:"key"`

	// TTL expires stale snapshots. Zero keeps them forever.
	TTL time.Duration `json:"ttl" yaml:"ttl"`
}

// DefaultRedisSnapshotConfig returns a RedisSnapshotConfig with sensible
// defaults.
func DefaultRedisSnapshotConfig() RedisSnapshotConfig {
	return RedisSnapshotConfig{
		Key: "agentcore:registry:snapshot",
		TTL: 24 * time.Hour,
	}
}

// RedisSnapshotStore persists registry snapshots in Redis as a single JSON
// document. Writes are retried with backoff.
type RedisSnapshotStore struct {
	client  redis.UniversalClient
	config  RedisSnapshotConfig
	retryer retry.Retryer
	logger  *zap.Logger
}

// NewRedisSnapshotStore creates a snapshot store on the given Redis client.
func NewRedisSnapshotStore(client redis.UniversalClient, config RedisSnapshotConfig, logger *zap.Logger) *RedisSnapshotStore {
	if config.Key == "" {
		config.Key = DefaultRedisSnapshotConfig().Key
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RedisSnapshotStore{
		client: client,
		config: config,
		retryer: retry.NewBackoff(&retry.Policy{
			MaxRetries:   2,
			InitialDelay: 100 * time.Millisecond,
			MaxDelay:     time.Second,
			Multiplier:   2.0,
			Jitter:       true,
		}, logger),
		logger: logger.With(zap.String("component", "snapshot_store")),
	}
}

// Save implements SnapshotStore.
func (s *RedisSnapshotStore) Save(ctx context.Context, agents []*types.Agent) error {
	data, err := json.Marshal(agents)
	if err != nil {
		return fmt.Errorf("marshal snapshot: %w", err)
	}

	err = s.retryer.Do(ctx, func() error {
		return s.client.Set(ctx, s.config.Key, data, s.config.TTL).Err()
	})
	if err != nil {
		return fmt.Errorf("save snapshot: %w", err)
	}

	s.logger.Debug("registry snapshot saved",
		zap.Int("agents", len(agents)),
		zap.Int("bytes", len(data)),
	)
	return nil
}

// Load implements SnapshotStore.
func (s *RedisSnapshotStore) Load(ctx context.Context) ([]*types.Agent, error) {
	data, err := s.client.Get(ctx, s.config.Key).Bytes()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load snapshot: %w", err)
	}

	var agents []*types.Agent
	if err := json.Unmarshal(data, &agents); err != nil {
		return nil, fmt.Errorf("decode snapshot: %w", err)
	}
	return agents, nil
}

var _ SnapshotStore = (*RedisSnapshotStore)(nil)
