// Package cache holds the TTL-bounded result cache for expense lists,
// category lists and analytics snapshots. The cache is an explicit object
// with an injected clock and key-hash function so expiry and invalidation
// are deterministic under test; it is never package-level state.
package cache

import (
	"encoding/json"
	"fmt"
	"hash/fnv"
	"sync"
	"time"

	"bitbucket.org/mmdatafocus/workspace_backend/config"
	"bitbucket.org/mmdatafocus/workspace_backend/utils"
)

// Cache partitions. Metrics and keys are namespaced by these.
const (
	PartitionExpenses   = "expenses"
	PartitionCategories = "categories"
	PartitionAnalytics  = "analytics"
)

type Clock func() time.Time

// KeyFunc builds the storage key for one cached result. The qualifier is the
// serialized query options (empty for workspace-wide entries).
type KeyFunc func(partition, workspaceId, qualifier string) string

// ResultCache is what the read paths depend on. Both the in-process and the
// redis-backed implementations satisfy it.
type ResultCache interface {
	Get(partition, workspaceId, qualifier string, dest interface{}) (bool, error)
	Set(partition, workspaceId, qualifier string, payload interface{}) error
	// InvalidateWorkspace drops every entry for one workspace; mutating
	// writes call it synchronously before reporting success.
	InvalidateWorkspace(workspaceId string) error
	// InvalidateAll clears every partition (tests/ops, not a hot path).
	InvalidateAll() error
}

// DefaultKey hashes the qualifier so arbitrarily long option strings stay
// bounded, while keeping the workspace id visible for debugging.
func DefaultKey(partition, workspaceId, qualifier string) string {
	h := fnv.New64a()
	h.Write([]byte(qualifier))
	return fmt.Sprintf("Results:%s:%s:%x", partition, workspaceId, h.Sum64())
}

type entry struct {
	payload   []byte
	timestamp time.Time
}

// Results is the in-process ResultCache. Entries expire lazily on read;
// there is no background sweeper.
type Results struct {
	mu            sync.Mutex
	ttl           time.Duration
	now           Clock
	key           KeyFunc
	entries       map[string]entry
	workspaceKeys map[string]map[string]bool
}

func NewResults(ttl time.Duration, now Clock, key KeyFunc) *Results {
	if ttl <= 0 {
		ttl = utils.GetCacheLifespan()
	}
	if now == nil {
		now = time.Now
	}
	if key == nil {
		key = DefaultKey
	}
	return &Results{
		ttl:           ttl,
		now:           now,
		key:           key,
		entries:       make(map[string]entry),
		workspaceKeys: make(map[string]map[string]bool),
	}
}

func (c *Results) Get(partition, workspaceId, qualifier string, dest interface{}) (bool, error) {
	k := c.key(partition, workspaceId, qualifier)

	c.mu.Lock()
	e, ok := c.entries[k]
	if ok && c.now().Sub(e.timestamp) >= c.ttl {
		// expired; drop it now rather than waiting for a sweeper
		delete(c.entries, k)
		delete(c.workspaceKeys[workspaceId], k)
		ok = false
	}
	c.mu.Unlock()

	if !ok {
		config.CacheMisses.WithLabelValues(partition).Inc()
		return false, nil
	}
	if err := json.Unmarshal(e.payload, dest); err != nil {
		return false, err
	}
	config.CacheHits.WithLabelValues(partition).Inc()
	return true, nil
}

func (c *Results) Set(partition, workspaceId, qualifier string, payload interface{}) error {
	raw, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	k := c.key(partition, workspaceId, qualifier)

	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[k] = entry{payload: raw, timestamp: c.now()}
	keys := c.workspaceKeys[workspaceId]
	if keys == nil {
		keys = make(map[string]bool)
		c.workspaceKeys[workspaceId] = keys
	}
	keys[k] = true
	return nil
}

func (c *Results) InvalidateWorkspace(workspaceId string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	for k := range c.workspaceKeys[workspaceId] {
		delete(c.entries, k)
	}
	delete(c.workspaceKeys, workspaceId)
	return nil
}

func (c *Results) InvalidateAll() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = make(map[string]entry)
	c.workspaceKeys = make(map[string]map[string]bool)
	return nil
}
