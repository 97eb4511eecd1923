package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	redislib "github.com/redis/go-redis/v9"

	"github.com/fastygo/catalog/domain"
	"github.com/fastygo/catalog/usecase"
)

type treeCache struct {
	client *redislib.Client
	prefix string
	ttl    time.Duration
}

// NewTreeCache creates a Redis-backed tree cache. Invalidation bumps a
// version counter instead of scanning keys; stale entries expire with ttl.
func NewTreeCache(client *redislib.Client, ttl time.Duration) usecase.TreeCache {
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	return &treeCache{
		client: client,
		prefix: "catalog:tree:",
		ttl:    ttl,
	}
}

func (c *treeCache) Load(ctx context.Context, rootID string) ([]*domain.TreeNode, int64, bool, error) {
	version, err := c.version(ctx)
	if err != nil {
		return nil, 0, false, err
	}

	result, err := c.client.Get(ctx, c.key(version, rootID)).Result()
	if err != nil {
		if errors.Is(err, redislib.Nil) {
			return nil, version, false, nil
		}
		return nil, version, false, err
	}

	var tree []*domain.TreeNode
	if err := json.Unmarshal([]byte(result), &tree); err != nil {
		return nil, version, false, err
	}
	return tree, version, true, nil
}

func (c *treeCache) Store(ctx context.Context, rootID string, version int64, tree []*domain.TreeNode) error {
	payload, err := json.Marshal(tree)
	if err != nil {
		return err
	}
	return c.client.Set(ctx, c.key(version, rootID), payload, c.ttl).Err()
}

func (c *treeCache) Invalidate(ctx context.Context) error {
	return c.client.Incr(ctx, c.versionKey()).Err()
}

func (c *treeCache) version(ctx context.Context) (int64, error) {
	raw, err := c.client.Get(ctx, c.versionKey()).Result()
	if err != nil {
		if errors.Is(err, redislib.Nil) {
			return 0, nil
		}
		return 0, err
	}
	return strconv.ParseInt(raw, 10, 64)
}

func (c *treeCache) versionKey() string {
	return c.prefix + "version"
}

func (c *treeCache) key(version int64, rootID string) string {
	if rootID == "" {
		rootID = "*"
	}
	return fmt.Sprintf("%sv%d:%s", c.prefix, version, rootID)
}
