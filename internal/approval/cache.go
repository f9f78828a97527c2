package approval

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/singleflight"
)

// ConfigSnapshot is a read-only view of a tenant's chain for one document type.
type ConfigSnapshot struct {
	Configured bool          `json:"configured"`
	Levels     []LevelConfig `json:"levels"`
}

// TotalLevels returns the chain length.
func (s ConfigSnapshot) TotalLevels() int {
	return len(s.Levels)
}

// Level returns the configuration of the 1-based level index.
func (s ConfigSnapshot) Level(index int) (LevelConfig, bool) {
	for _, l := range s.Levels {
		if l.LevelIndex == index {
			return l, true
		}
	}
	return LevelConfig{}, false
}

// ConfigCache keeps configuration snapshots in Redis. A nil cache or client
// loads straight from the loader.
type ConfigCache struct {
	client *redis.Client
	ttl    time.Duration
	logger *slog.Logger
	group  singleflight.Group
}

// NewConfigCache constructs the cache.
func NewConfigCache(client *redis.Client, ttl time.Duration, logger *slog.Logger) *ConfigCache {
	if logger == nil {
		logger = slog.Default()
	}
	return &ConfigCache{client: client, ttl: ttl, logger: logger}
}

func configKey(tenantID int64, docType DocumentType) string {
	return fmt.Sprintf("approval:config:%d:%s", tenantID, docType)
}

// Load returns the cached snapshot or populates it from loader.
func (c *ConfigCache) Load(ctx context.Context, tenantID int64, docType DocumentType, loader func(context.Context) (ConfigSnapshot, error)) (ConfigSnapshot, error) {
	if loader == nil {
		return ConfigSnapshot{}, errors.New("approval: config loader required")
	}
	if c == nil || c.client == nil {
		return loader(ctx)
	}
	key := configKey(tenantID, docType)
	payload, err := c.client.Get(ctx, key).Bytes()
	if err == nil {
		var snap ConfigSnapshot
		if err := json.Unmarshal(payload, &snap); err == nil {
			return snap, nil
		}
		c.logger.Warn("approval config cache corrupt", slog.String("key", key))
	} else if !errors.Is(err, redis.Nil) {
		c.logger.Warn("approval config cache get", slog.String("key", key), slog.Any("error", err))
	}

	v, err, _ := c.group.Do(key, func() (interface{}, error) {
		snap, err := loader(ctx)
		if err != nil {
			return ConfigSnapshot{}, err
		}
		// A Put that landed while the loader ran holds the newer chain.
		c.write(ctx, key, snap, false)
		return snap, nil
	})
	if err != nil {
		return ConfigSnapshot{}, err
	}
	return v.(ConfigSnapshot), nil
}

// Put overwrites the cached snapshot after a configuration change. When the
// write fails the key is dropped so readers fall back to the database.
func (c *ConfigCache) Put(ctx context.Context, tenantID int64, docType DocumentType, snap ConfigSnapshot) {
	if c == nil || c.client == nil {
		return
	}
	key := configKey(tenantID, docType)
	if c.write(ctx, key, snap, true) {
		return
	}
	if err := c.client.Del(ctx, key).Err(); err != nil {
		c.logger.Error("approval config cache invalidate", slog.String("key", key), slog.Any("error", err))
	}
}

// write stores the snapshot. Without overwrite the key is only set when
// absent (SETNX), so a loader never clobbers a snapshot written by Put.
func (c *ConfigCache) write(ctx context.Context, key string, snap ConfigSnapshot, overwrite bool) bool {
	raw, err := json.Marshal(snap)
	if err != nil {
		c.logger.Warn("approval config cache marshal", slog.Any("error", err))
		return false
	}
	if !overwrite {
		if err := c.client.SetNX(ctx, key, raw, c.ttl).Err(); err != nil {
			c.logger.Warn("approval config cache setnx", slog.String("key", key), slog.Any("error", err))
			return false
		}
		return true
	}
	if err := c.client.Set(ctx, key, raw, c.ttl).Err(); err != nil {
		c.logger.Warn("approval config cache set", slog.String("key", key), slog.Any("error", err))
		return false
	}
	return true
}
