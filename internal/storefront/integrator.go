package storefront

import (
	"context"
	"maps"
	"sync"

	"github.com/redis/go-redis/v9"
)

// Integrator receives per-fragment integration metadata.
type Integrator interface {
	Register(ctx context.Context, key string, cfg WardenConfig) error
	Unregister(ctx context.Context, key string) error
}

// MemoryIntegrator keeps registrations in process.
type MemoryIntegrator struct {
	routes map[string]WardenConfig
	calls  []string
	mu     sync.RWMutex
}

// NewMemoryIntegrator creates an empty in-memory integrator.
func NewMemoryIntegrator() *MemoryIntegrator {
	return &MemoryIntegrator{routes: make(map[string]WardenConfig)}
}

func (m *MemoryIntegrator) Register(_ context.Context, key string, cfg WardenConfig) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.routes[key] = cfg
	m.calls = append(m.calls, "register "+key)

	return nil
}

func (m *MemoryIntegrator) Unregister(_ context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	delete(m.routes, key)
	m.calls = append(m.calls, "unregister "+key)

	return nil
}

// Routes returns a copy of the current registrations.
func (m *MemoryIntegrator) Routes() map[string]WardenConfig {
	m.mu.RLock()
	defer m.mu.RUnlock()

	return maps.Clone(m.routes)
}

// Calls returns every register and unregister call in order.
func (m *MemoryIntegrator) Calls() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()

	return append([]string(nil), m.calls...)
}

// HashClient is the subset of the redis client used by RedisIntegrator.
type HashClient interface {
	HSet(ctx context.Context, key string, values ...any) *redis.IntCmd
	HDel(ctx context.Context, key string, fields ...string) *redis.IntCmd
	HGetAll(ctx context.Context, key string) *redis.MapStringStringCmd
}

// RedisIntegrator stores registrations as JSON values in the hash
// "<prefix>:routes" so other processes can read them.
type RedisIntegrator struct {
	client HashClient
	key    string
}

// NewRedisIntegrator creates an integrator over client.
func NewRedisIntegrator(client HashClient, prefix string) *RedisIntegrator {
	if prefix == "" {
		prefix = "puzzle"
	}

	return &RedisIntegrator{client: client, key: prefix + ":routes"}
}

// Key returns the redis hash key.
func (r *RedisIntegrator) Key() string {
	return r.key
}

func (r *RedisIntegrator) Register(ctx context.Context, key string, cfg WardenConfig) error {
	value, err := json.Marshal(cfg)
	if err != nil {
		return err
	}

	return r.client.HSet(ctx, r.key, key, string(value)).Err()
}

func (r *RedisIntegrator) Unregister(ctx context.Context, key string) error {
	return r.client.HDel(ctx, r.key, key).Err()
}

// Routes reads every registration back from redis.
func (r *RedisIntegrator) Routes(ctx context.Context) (map[string]WardenConfig, error) {
	raw, err := r.client.HGetAll(ctx, r.key).Result()
	if err != nil {
		return nil, err
	}

	out := make(map[string]WardenConfig, len(raw))

	for key, value := range raw {
		var cfg WardenConfig
		if err := json.Unmarshal([]byte(value), &cfg); err != nil {
			return nil, err
		}

		out[key] = cfg
	}

	return out, nil
}
