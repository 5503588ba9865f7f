package digest

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	gocache "github.com/patrickmn/go-cache"
)

const (
	// DefaultCacheExpiration is how long a computed file digest stays cached.
	DefaultCacheExpiration = 10 * time.Minute
	// DefaultCacheCleanupInterval is how often expired entries are purged.
	DefaultCacheCleanupInterval = 30 * time.Minute
)

// Cache memoizes file digests by path, size and modification time.
// A file rewritten in place gets a new size or mtime and therefore a new key.
type Cache struct {
	cache *gocache.Cache
}

// NewCache creates a digest cache with the provided entry lifetime.
func NewCache(expiration time.Duration) *Cache {
	if expiration <= 0 {
		expiration = DefaultCacheExpiration
	}

	return &Cache{
		cache: gocache.New(expiration, DefaultCacheCleanupInterval),
	}
}

// SumFile returns the digest of the file at path, reusing a cached value when
// the file has not changed since it was last hashed.
func (c *Cache) SumFile(algorithm Algorithm, path string) (string, error) {
	info, err := os.Stat(filepath.Clean(path))
	if err != nil {
		return "", fmt.Errorf("stat %s: %w", path, err)
	}

	key := cacheKey(algorithm, path, info)

	if cached, found := c.cache.Get(key); found {
		if sum, ok := cached.(string); ok {
			return sum, nil
		}
	}

	sum, err := SumFile(algorithm, path)
	if err != nil {
		return "", err
	}

	c.cache.Set(key, sum, gocache.DefaultExpiration)

	return sum, nil
}

// MatchesFile reports whether the file at path has the expected digest.
func (c *Cache) MatchesFile(algorithm Algorithm, path, expected string) (bool, error) {
	sum, err := c.SumFile(algorithm, path)
	if err != nil {
		return false, err
	}

	return MatchesSum(algorithm, sum, expected), nil
}

// Len returns the number of cached digests.
func (c *Cache) Len() int {
	return c.cache.ItemCount()
}

func cacheKey(algorithm Algorithm, path string, info os.FileInfo) string {
	return strings.Join([]string{
		string(algorithm),
		filepath.Clean(path),
		strconv.FormatInt(info.Size(), 10),
		strconv.FormatInt(info.ModTime().UnixNano(), 10),
	}, "|")
}
