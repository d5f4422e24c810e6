package intelligence

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"time"

	"trainer-match-workers/internal/common/logger"
	"trainer-match-workers/internal/common/metrics"
	"trainer-match-workers/internal/matching"

	"github.com/redis/go-redis/v9"
)

// Cache stores verdicts in Redis keyed by a hash of the scorer identity and
// both contexts.
type Cache struct {
	client redis.Cmdable
	ttl    time.Duration
}

func NewCache(client redis.Cmdable, ttl time.Duration) *Cache {
	return &Cache{client: client, ttl: ttl}
}

// CacheKey is stable for equal inputs.
func CacheKey(scorer, requirementContext, candidateContext string) string {
	h := sha256.New()
	h.Write([]byte(scorer))
	h.Write([]byte{0})
	h.Write([]byte(requirementContext))
	h.Write([]byte{0})
	h.Write([]byte(candidateContext))
	return "intel:" + hex.EncodeToString(h.Sum(nil))
}

func (c *Cache) Get(ctx context.Context, key string) (matching.Verdict, bool, error) {
	raw, err := c.client.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return matching.Verdict{}, false, nil
	}
	if err != nil {
		return matching.Verdict{}, false, err
	}
	var v matching.Verdict
	if err := json.Unmarshal(raw, &v); err != nil {
		return matching.Verdict{}, false, err
	}
	return v, true, nil
}

func (c *Cache) Set(ctx context.Context, key string, v matching.Verdict) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return c.client.Set(ctx, key, data, c.ttl).Err()
}

type cachedScorer struct {
	next   matching.IntelligenceScorer
	cache  *Cache
	name   string
	logger logger.Logger
}

// WithCache wraps next so repeated (requirement, candidate) contexts are
// answered from Redis. Cache errors are logged and never fail a call.
func WithCache(next matching.IntelligenceScorer, cache *Cache, name string, log logger.Logger) matching.IntelligenceScorer {
	if cache == nil {
		return next
	}
	return &cachedScorer{next: next, cache: cache, name: name, logger: logger.ForComponent(log, "intelligence-cache")}
}

func (s *cachedScorer) Score(ctx context.Context, requirementContext, candidateContext string) (matching.Verdict, error) {
	key := CacheKey(s.name, requirementContext, candidateContext)

	v, ok, err := s.cache.Get(ctx, key)
	switch {
	case err != nil:
		s.logger.Warn("cache read failed", map[string]interface{}{"error": err.Error()})
	case ok:
		metrics.IntelligenceCacheLookups.WithLabelValues("hit").Inc()
		return v, nil
	default:
		metrics.IntelligenceCacheLookups.WithLabelValues("miss").Inc()
	}

	v, err = s.next.Score(ctx, requirementContext, candidateContext)
	if err != nil {
		return v, err
	}
	if err := s.cache.Set(ctx, key, v); err != nil {
		s.logger.Warn("cache write failed", map[string]interface{}{"error": err.Error()})
	}
	return v, nil
}
