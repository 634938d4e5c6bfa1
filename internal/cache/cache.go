// Package cache wraps patrickmn/go-cache with the same TTL-keyed
// response cache the teacher uses in front of its ClinicalTrials.gov
// client, now fronting the orchestrator's Rank/Search responses instead.
package cache

import (
	"fmt"
	"sort"
	"strconv"
	"time"

	gocache "github.com/patrickmn/go-cache"
)

// Cache provides caching functionality for orchestrator responses.
type Cache struct {
	memCache *gocache.Cache
}

// NewCache creates a new cache instance with default TTL
func NewCache(defaultTTL time.Duration) *Cache {
	if defaultTTL == 0 {
		defaultTTL = 6 * time.Hour // Default 6 hour cache
	}
	cleanupInterval := defaultTTL / 2
	if cleanupInterval < time.Minute {
		cleanupInterval = time.Minute
	}
	return &Cache{
		memCache: gocache.New(defaultTTL, cleanupInterval),
	}
}

// Get retrieves a value from the cache
func (c *Cache) Get(key string) (interface{}, bool) {
	return c.memCache.Get(key)
}

// Set stores a value in the cache with the default TTL
func (c *Cache) Set(key string, value interface{}) {
	c.memCache.Set(key, value, gocache.DefaultExpiration)
}

// SetWithTTL stores a value in the cache with a custom TTL
func (c *Cache) SetWithTTL(key string, value interface{}, ttl time.Duration) {
	c.memCache.Set(key, value, ttl)
}

// Delete removes a value from the cache
func (c *Cache) Delete(key string) {
	c.memCache.Delete(key)
}

// Clear removes all values from the cache
func (c *Cache) Clear() {
	c.memCache.Flush()
}

// GenerateCacheKey generates a cache key from request parameters. Keys
// are sorted before joining so that two calls with the same params
// (range order over a Go map is otherwise randomized) produce the same
// cache key.
func GenerateCacheKey(base string, params map[string]interface{}) string {
	keys := make([]string, 0, len(params))
	for k := range params {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	key := base
	for _, k := range keys {
		key += ":" + k + "=" + toString(params[k])
	}
	return key
}

// toString converts a value to string for cache key generation.
func toString(v interface{}) string {
	switch val := v.(type) {
	case string:
		return val
	case []string:
		result := ""
		for i, s := range val {
			if i > 0 {
				result += ","
			}
			result += s
		}
		return result
	case int:
		return strconv.Itoa(val)
	case float64:
		return strconv.FormatFloat(val, 'g', -1, 64)
	case bool:
		return strconv.FormatBool(val)
	default:
		return fmt.Sprintf("%v", val)
	}
}
