// Package cache holds the redis-backed chat history cache. Cached
// entries are the stored rows with their ciphertext fields intact, so
// no plaintext ever reaches redis.
package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	redisv9 "github.com/redis/go-redis/v9"

	"docuvault/internal/model"
	"docuvault/internal/tenantdb"
)

type HistoryCache struct {
	client         *redisv9.Client
	historyTTL     time.Duration
	dirtyMarkerTTL time.Duration
}

func NewHistoryCache(client *redisv9.Client, historyTTL, dirtyMarkerTTL time.Duration) *HistoryCache {
	if historyTTL <= 0 {
		historyTTL = 60 * time.Second
	}
	if dirtyMarkerTTL <= 0 {
		dirtyMarkerTTL = 5 * time.Second
	}
	return &HistoryCache{
		client:         client,
		historyTTL:     historyTTL,
		dirtyMarkerTTL: dirtyMarkerTTL,
	}
}

func (c *HistoryCache) GetHistory(ctx context.Context, scope *tenantdb.Scope, sessionID string) ([]model.ChatMessage, bool, error) {
	if err := tenantdb.Guard(scope); err != nil {
		return nil, false, err
	}
	raw, err := c.client.Get(ctx, c.historyKey(scope, sessionID)).Result()
	if err == redisv9.Nil {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("redis get history failed: %w", err)
	}

	var messages []model.ChatMessage
	if err := json.Unmarshal([]byte(raw), &messages); err != nil {
		return nil, false, fmt.Errorf("unmarshal cached history failed: %w", err)
	}
	return messages, true, nil
}

func (c *HistoryCache) SetHistory(ctx context.Context, scope *tenantdb.Scope, sessionID string, messages []model.ChatMessage) error {
	if err := tenantdb.Guard(scope); err != nil {
		return err
	}
	payload, err := json.Marshal(messages)
	if err != nil {
		return fmt.Errorf("marshal history cache failed: %w", err)
	}
	if err := c.client.Set(ctx, c.historyKey(scope, sessionID), payload, c.historyTTL).Err(); err != nil {
		return fmt.Errorf("redis set history failed: %w", err)
	}
	return nil
}

func (c *HistoryCache) DeleteHistory(ctx context.Context, scope *tenantdb.Scope, sessionID string) error {
	if err := tenantdb.Guard(scope); err != nil {
		return err
	}
	if err := c.client.Del(ctx, c.historyKey(scope, sessionID)).Err(); err != nil {
		return fmt.Errorf("redis delete history failed: %w", err)
	}
	return nil
}

// MarkDirty flags a session whose cached history is stale after a
// write. The short-lived marker suppresses cache fills until the next
// database read repopulates it.
func (c *HistoryCache) MarkDirty(ctx context.Context, scope *tenantdb.Scope, sessionID string) error {
	if err := tenantdb.Guard(scope); err != nil {
		return err
	}
	if err := c.client.Set(ctx, c.dirtyKey(scope, sessionID), "1", c.dirtyMarkerTTL).Err(); err != nil {
		return fmt.Errorf("redis set dirty marker failed: %w", err)
	}
	return nil
}

func (c *HistoryCache) IsDirty(ctx context.Context, scope *tenantdb.Scope, sessionID string) (bool, error) {
	if err := tenantdb.Guard(scope); err != nil {
		return false, err
	}
	exists, err := c.client.Exists(ctx, c.dirtyKey(scope, sessionID)).Result()
	if err != nil {
		return false, fmt.Errorf("redis check dirty marker failed: %w", err)
	}
	return exists > 0, nil
}

// Keys carry the tenant id so entries for different tenants can never
// collide, whatever the session ids look like.
func (c *HistoryCache) historyKey(scope *tenantdb.Scope, sessionID string) string {
	return fmt.Sprintf("chat:history:%s:%s", scope.TenantID(), sessionID)
}

func (c *HistoryCache) dirtyKey(scope *tenantdb.Scope, sessionID string) string {
	return fmt.Sprintf("chat:history:dirty:%s:%s", scope.TenantID(), sessionID)
}
