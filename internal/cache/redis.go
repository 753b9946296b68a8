// Package cache keeps computed post averages in Redis behind a circuit
// breaker, so a flaky Redis degrades to direct store reads instead of
// slowing every request down.
package cache

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/goccy/go-json"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	gobreaker "github.com/sony/gobreaker/v2"

	"github.com/Clark-Hu/post-ratings/internal/domain"
	"github.com/Clark-Hu/post-ratings/internal/metrics"
)

const (
	keyPrefix        = "post-ratings:average:"
	generationPrefix = "post-ratings:average-gen:"
)

// Connect initializes a Redis client from URL or host:port input.
func Connect(ctx context.Context, redisURL string) (*redis.Client, error) {
	var client *redis.Client
	if strings.HasPrefix(redisURL, "redis://") || strings.HasPrefix(redisURL, "rediss://") {
		opt, err := redis.ParseURL(redisURL)
		if err != nil {
			return nil, fmt.Errorf("parse redis url: %w", err)
		}
		client = redis.NewClient(opt)
	} else {
		client = redis.NewClient(&redis.Options{Addr: redisURL})
	}

	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}
	return client, nil
}

// Options tunes an AverageCache.
type Options struct {
	TTL time.Duration
	// OpTimeout bounds each Redis round trip. Defaults to 200ms.
	OpTimeout time.Duration
	// FailureThreshold is the number of consecutive failures that opens the
	// breaker. Defaults to 5.
	FailureThreshold uint32
	// OpenTimeout is how long the breaker stays open before probing again.
	// Defaults to 10s.
	OpenTimeout time.Duration
	Logger      zerolog.Logger
}

// AverageCache stores rating aggregates keyed by post id.
type AverageCache struct {
	client    redis.UniversalClient
	ttl       time.Duration
	opTimeout time.Duration
	breaker   *gobreaker.CircuitBreaker[[]byte]
	logger    zerolog.Logger
}

// cachedAggregate carries the generation it was computed under. An entry
// whose generation trails the post's current one is ignored.
type cachedAggregate struct {
	Average    float64 `json:"avg"`
	Sum        int64   `json:"s"`
	Count      int64   `json:"n"`
	Generation int64   `json:"g"`
}

// NewAverageCache wraps client. The caller keeps ownership of client.
func NewAverageCache(client redis.UniversalClient, opts Options) *AverageCache {
	if opts.OpTimeout <= 0 {
		opts.OpTimeout = 200 * time.Millisecond
	}
	if opts.FailureThreshold == 0 {
		opts.FailureThreshold = 5
	}
	if opts.OpenTimeout <= 0 {
		opts.OpenTimeout = 10 * time.Second
	}

	c := &AverageCache{
		client:    client,
		ttl:       opts.TTL,
		opTimeout: opts.OpTimeout,
		logger:    opts.Logger.With().Str("component", "average_cache").Logger(),
	}
	c.breaker = gobreaker.NewCircuitBreaker[[]byte](gobreaker.Settings{
		Name:        "average-cache",
		MaxRequests: 1,
		Interval:    30 * time.Second,
		Timeout:     opts.OpenTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= opts.FailureThreshold
		},
		// a miss is a healthy answer
		IsSuccessful: func(err error) bool {
			return err == nil || errors.Is(err, redis.Nil)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			c.logger.Warn().Str("from", from.String()).Str("to", to.String()).Msg("cache circuit breaker state change")
		},
	})
	return c
}

// Get returns the cached aggregate for postID together with the post's
// current generation. Any failure counts as a miss.
func (c *AverageCache) Get(ctx context.Context, postID int64) (domain.RatingAggregate, int64, bool) {
	var generation int64
	raw, err := c.breaker.Execute(func() ([]byte, error) {
		ctx, cancel := context.WithTimeout(ctx, c.opTimeout)
		defer cancel()
		values, err := c.client.MGet(ctx, key(postID), generationKey(postID)).Result()
		if err != nil {
			return nil, err
		}
		generation = parseGeneration(values[1])
		entry, ok := values[0].(string)
		if !ok {
			return nil, redis.Nil
		}
		return []byte(entry), nil
	})
	switch {
	case err == nil:
	case errors.Is(err, redis.Nil):
		metrics.RecordCacheLookup("miss")
		return domain.RatingAggregate{}, generation, false
	default:
		metrics.RecordCacheLookup("error")
		c.logger.Debug().Err(err).Int64("post_id", postID).Msg("cache get failed")
		return domain.RatingAggregate{}, generation, false
	}

	var v cachedAggregate
	if err := json.Unmarshal(raw, &v); err != nil {
		metrics.RecordCacheLookup("error")
		c.logger.Warn().Err(err).Int64("post_id", postID).Msg("discarding malformed cache entry")
		return domain.RatingAggregate{}, generation, false
	}
	if v.Generation != generation {
		metrics.RecordCacheLookup("stale")
		return domain.RatingAggregate{}, generation, false
	}
	metrics.RecordCacheLookup("hit")
	return domain.RatingAggregate{Average: v.Average, Sum: v.Sum, Count: v.Count}, generation, true
}

// Set stores agg for postID with the configured TTL, tagged with the
// generation returned by the Get that preceded the store read.
func (c *AverageCache) Set(ctx context.Context, postID int64, generation int64, agg domain.RatingAggregate) {
	payload, err := json.Marshal(cachedAggregate{
		Average:    agg.Average,
		Sum:        agg.Sum,
		Count:      agg.Count,
		Generation: generation,
	})
	if err != nil {
		return
	}
	_, err = c.breaker.Execute(func() ([]byte, error) {
		ctx, cancel := context.WithTimeout(ctx, c.opTimeout)
		defer cancel()
		return nil, c.client.Set(ctx, key(postID), payload, c.ttl).Err()
	})
	if err != nil {
		c.logger.Debug().Err(err).Int64("post_id", postID).Msg("cache set failed")
	}
}

// Invalidate bumps the post's generation and drops its cached aggregate. A
// Set still carrying the previous generation can land afterwards but is never
// served.
func (c *AverageCache) Invalidate(ctx context.Context, postID int64) {
	_, err := c.breaker.Execute(func() ([]byte, error) {
		ctx, cancel := context.WithTimeout(ctx, c.opTimeout)
		defer cancel()
		_, err := c.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Incr(ctx, generationKey(postID))
			if c.ttl > 0 {
				// outlives every entry written under the previous generation
				pipe.Expire(ctx, generationKey(postID), 2*c.ttl)
			}
			pipe.Del(ctx, key(postID))
			return nil
		})
		return nil, err
	})
	if err != nil {
		// the entry expires with its TTL
		c.logger.Warn().Err(err).Int64("post_id", postID).Msg("cache invalidation failed")
	}
}

// State reports the breaker state.
func (c *AverageCache) State() gobreaker.State {
	return c.breaker.State()
}

func key(postID int64) string {
	return keyPrefix + strconv.FormatInt(postID, 10)
}

func generationKey(postID int64) string {
	return generationPrefix + strconv.FormatInt(postID, 10)
}

// parseGeneration reads an MGET slot; an absent key is generation 0.
func parseGeneration(value any) int64 {
	s, ok := value.(string)
	if !ok {
		return 0
	}
	n, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return 0
	}
	return n
}
