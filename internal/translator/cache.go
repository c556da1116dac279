package translator

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"os"
	"sync"

	"latex-project-translator/internal/logger"
	"latex-project-translator/internal/types"
)

// Cache stores completed translations keyed by a digest of the target
// language and the source text, so re-running a project only pays for runs
// that changed. It is safe for concurrent use.
type Cache struct {
	mu      sync.RWMutex
	entries map[string]string
	path    string
}

// NewCache creates a cache persisted at path; an empty path keeps the cache
// in memory only.
func NewCache(path string) *Cache {
	return &Cache{entries: make(map[string]string), path: path}
}

// Load reads the persisted cache. A missing file is not an error.
func (c *Cache) Load() error {
	if c.path == "" {
		return nil
	}
	data, err := os.ReadFile(c.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return types.NewAppError(types.ErrInternal, "failed to read translation cache", err)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if err := json.Unmarshal(data, &c.entries); err != nil {
		// A corrupt cache is discarded rather than blocking the run.
		logger.Warn("translation cache is corrupt, starting empty",
			logger.String("path", c.path), logger.Err(err))
		c.entries = make(map[string]string)
	}
	logger.Debug("translation cache loaded",
		logger.String("path", c.path),
		logger.Int("entries", len(c.entries)))
	return nil
}

// Save writes the cache to its path.
func (c *Cache) Save() error {
	if c.path == "" {
		return nil
	}
	c.mu.RLock()
	data, err := json.MarshalIndent(c.entries, "", "  ")
	c.mu.RUnlock()
	if err != nil {
		return types.NewAppError(types.ErrInternal, "failed to encode translation cache", err)
	}
	if err := os.WriteFile(c.path, data, 0644); err != nil {
		return types.NewAppError(types.ErrInternal, "failed to write translation cache", err)
	}
	return nil
}

// Get looks up a previous translation.
func (c *Cache) Get(targetLanguage, text string) (string, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out, ok := c.entries[cacheKey(targetLanguage, text)]
	return out, ok
}

// Put records a completed translation.
func (c *Cache) Put(targetLanguage, text, translated string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[cacheKey(targetLanguage, text)] = translated
}

// Len returns the number of cached translations.
func (c *Cache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}

func cacheKey(targetLanguage, text string) string {
	h := sha256.New()
	h.Write([]byte(targetLanguage))
	h.Write([]byte{0})
	h.Write([]byte(text))
	return hex.EncodeToString(h.Sum(nil))
}

// cachingService consults the cache before calling the inner service.
type cachingService struct {
	inner Service
	cache *Cache
}

// WithCache wraps a service with the translation cache.
func WithCache(inner Service, cache *Cache) Service {
	return &cachingService{inner: inner, cache: cache}
}

func (c *cachingService) Translate(ctx context.Context, text string, tctx *types.TranslationContext) (string, error) {
	if out, ok := c.cache.Get(tctx.TargetLanguage, text); ok {
		return out, nil
	}
	out, err := c.inner.Translate(ctx, text, tctx)
	if err != nil {
		return "", err
	}
	c.cache.Put(tctx.TargetLanguage, text, out)
	return out, nil
}
