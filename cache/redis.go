package cache

import (
	"time"

	"bitbucket.org/mmdatafocus/workspace_backend/config"
	"bitbucket.org/mmdatafocus/workspace_backend/utils"
)

// RedisResults is the redis-backed ResultCache for multi-process
// deployments. TTL expiry is delegated to redis; per-workspace key sets make
// invalidation a bounded DEL instead of a scan. All redis helpers degrade to
// no-ops when redis is unavailable, so reads simply miss.
type RedisResults struct {
	ttl time.Duration
	key KeyFunc
}

func NewRedisResults(ttl time.Duration, key KeyFunc) *RedisResults {
	if ttl <= 0 {
		ttl = utils.GetCacheLifespan()
	}
	if key == nil {
		key = DefaultKey
	}
	return &RedisResults{ttl: ttl, key: key}
}

func workspaceKeySet(workspaceId string) string {
	return "ResultKeys:" + workspaceId
}

func (c *RedisResults) Get(partition, workspaceId, qualifier string, dest interface{}) (bool, error) {
	k := c.key(partition, workspaceId, qualifier)
	found, err := config.GetRedisObject(k, dest)
	if err != nil {
		return false, err
	}
	if found {
		config.CacheHits.WithLabelValues(partition).Inc()
	} else {
		config.CacheMisses.WithLabelValues(partition).Inc()
	}
	return found, nil
}

func (c *RedisResults) Set(partition, workspaceId, qualifier string, payload interface{}) error {
	k := c.key(partition, workspaceId, qualifier)
	if err := config.SetRedisObject(k, payload, c.ttl); err != nil {
		return err
	}
	return config.AddRedisSet(workspaceKeySet(workspaceId), k)
}

func (c *RedisResults) InvalidateWorkspace(workspaceId string) error {
	setKey := workspaceKeySet(workspaceId)
	members, err := config.GetRedisSetMembers(setKey)
	if err != nil {
		return err
	}
	return config.RemoveRedisKey(append(members, setKey)...)
}

func (c *RedisResults) InvalidateAll() error {
	return config.ClearRedis(config.GetRedisContext())
}
