package routes

import (
	"context"
	"fmt"
	"time"

	"github.com/eko/gocache/lib/v4/cache"
	"github.com/eko/gocache/lib/v4/store"
	redisstore "github.com/eko/gocache/store/redis/v4"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
	"github.com/travigo/railcontrol/pkg/ctdf"
)

// ResponseCache keeps rendered responses for a timetable version. Versions
// are immutable, so entries never need invalidating; they only expire.
type ResponseCache struct {
	Cache *cache.Cache[string]
}

func NewResponseCache(client *redis.Client, expiration time.Duration) *ResponseCache {
	redisStore := redisstore.NewRedis(client, store.WithExpiration(expiration))

	return &ResponseCache{
		Cache: cache.New[string](redisStore),
	}
}

// scheduleCacheKey includes the generation because versions restart from one
// in every process.
func scheduleCacheKey(timetable *ctdf.Timetable, sectionID string, view string) string {
	return fmt.Sprintf("railcontrol/schedule/%s/%s/%s/%d/%s", timetable.ServiceDate, timetable.Generation, sectionID, timetable.Version, view)
}

func (r *ResponseCache) Get(ctx context.Context, key string) (string, bool) {
	if r == nil {
		return "", false
	}

	value, err := r.Cache.Get(ctx, key)
	if err != nil {
		return "", false
	}
	return value, true
}

func (r *ResponseCache) Set(ctx context.Context, key string, value string) {
	if r == nil {
		return
	}

	if err := r.Cache.Set(ctx, key, value); err != nil {
		log.Warn().Err(err).Str("key", key).Msg("Failed to cache response")
	}
}
