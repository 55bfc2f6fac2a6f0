package redis

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/redis/go-redis/v9"

	"github.com/brunovh/grainalloc/internal/domain"
)

// distancesKey is the hash holding every cached route distance. Fields
// are "<from>|<to>", values the distance in kilometers.
const distancesKey = "distances"

// routeSep separates the location ids inside a hash field. Location ids
// are upstream object ids and never contain it.
const routeSep = "|"

// DistanceCache implements domain.DistanceCache using a single Redis
// hash. Once written, an entry is authoritative for every later run.
type DistanceCache struct {
	rdb *redis.Client
}

// NewDistanceCache creates a DistanceCache backed by the given Client.
func NewDistanceCache(c *Client) *DistanceCache {
	return &DistanceCache{rdb: c.Underlying()}
}

// LoadAll returns every cached distance. Malformed fields are skipped
// rather than failing the preload.
func (dc *DistanceCache) LoadAll(ctx context.Context) (map[domain.RouteKey]float64, error) {
	vals, err := dc.rdb.HGetAll(ctx, distancesKey).Result()
	if err != nil {
		return nil, fmt.Errorf("redis: load distances: %w", err)
	}

	out := make(map[domain.RouteKey]float64, len(vals))
	for field, raw := range vals {
		from, to, ok := strings.Cut(field, routeSep)
		if !ok {
			continue
		}
		km, err := strconv.ParseFloat(raw, 64)
		if err != nil || km < 0 {
			continue
		}
		out[domain.RouteKey{From: from, To: to}] = km
	}
	return out, nil
}

// Put stores a freshly computed distance.
func (dc *DistanceCache) Put(ctx context.Context, key domain.RouteKey, km float64) error {
	field := key.From + routeSep + key.To
	value := strconv.FormatFloat(km, 'f', -1, 64)
	if err := dc.rdb.HSet(ctx, distancesKey, field, value).Err(); err != nil {
		return fmt.Errorf("redis: put distance %s: %w", field, err)
	}
	return nil
}

// Compile-time interface check.
var _ domain.DistanceCache = (*DistanceCache)(nil)
