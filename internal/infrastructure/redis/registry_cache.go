package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/wms-platform/opname-service/internal/application"
)

const (
	registryPrefix = "opname:registry"
	generationKey  = registryPrefix + ":gen"
)

// RegistryCache stores session list pages as JSON. Pages are namespaced by a
// generation counter; Invalidate bumps it, orphaning every older page until
// its TTL expires.
type RegistryCache struct {
	client goredis.Cmdable
	ttl    time.Duration
}

func NewRegistryCache(client goredis.Cmdable, ttl time.Duration) *RegistryCache {
	if ttl <= 0 {
		ttl = 30 * time.Second
	}
	return &RegistryCache{client: client, ttl: ttl}
}

func (c *RegistryCache) generation(ctx context.Context) (int64, error) {
	gen, err := c.client.Get(ctx, generationKey).Int64()
	if errors.Is(err, goredis.Nil) {
		return 0, nil
	}
	return gen, err
}

func pageKey(gen int64, key string) string {
	return fmt.Sprintf("%s:%d:%s", registryPrefix, gen, key)
}

// GetSessionList returns the cached page, or nil on a miss, along with the
// generation it was looked up under.
func (c *RegistryCache) GetSessionList(ctx context.Context, key string) (*application.SessionListDTO, int64, error) {
	gen, err := c.generation(ctx)
	if err != nil {
		return nil, 0, err
	}
	raw, err := c.client.Get(ctx, pageKey(gen, key)).Bytes()
	if errors.Is(err, goredis.Nil) {
		return nil, gen, nil
	}
	if err != nil {
		return nil, gen, err
	}

	var list application.SessionListDTO
	if err := json.Unmarshal(raw, &list); err != nil {
		return nil, gen, fmt.Errorf("failed to decode cached session list: %w", err)
	}
	return &list, gen, nil
}

// SetSessionList writes list under gen. A page computed before an Invalidate
// lands in the orphaned namespace and is never read.
func (c *RegistryCache) SetSessionList(ctx context.Context, key string, gen int64, list *application.SessionListDTO) error {
	raw, err := json.Marshal(list)
	if err != nil {
		return err
	}
	return c.client.Set(ctx, pageKey(gen, key), raw, c.ttl).Err()
}

func (c *RegistryCache) Invalidate(ctx context.Context) error {
	return c.client.Incr(ctx, generationKey).Err()
}

var _ application.RegistryCache = (*RegistryCache)(nil)
