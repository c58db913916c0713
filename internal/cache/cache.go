package cache

import (
	"crypto/sha256"
	"encoding/hex"
	"time"
)

// Cache stores raw upstream response bodies keyed by request URL
type Cache interface {
	Get(key string) ([]byte, bool)
	Set(key string, value []byte, ttl time.Duration) error
	Delete(key string) error
	Clear() error
}

// CacheKey generates a cache key from a full request URL (query included)
func CacheKey(url string) string {
	hash := sha256.Sum256([]byte(url))
	return "lexruler:v1:" + hex.EncodeToString(hash[:])
}
