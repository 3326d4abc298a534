package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/footballistika/predictor/internal/config"
	"github.com/footballistika/predictor/internal/domain"
)

// LeaderboardCache keeps a read copy of the leaderboard projection in Redis.
// A sorted set holds each entry as JSON scored by its board position, and a
// hash maps user ids to the same JSON for single-user lookups.
type LeaderboardCache struct {
	client *redis.Client
	prefix string
	logger *slog.Logger
}

// ErrCacheEmpty is returned by View before the cache was first filled
var ErrCacheEmpty = errors.New("leaderboard cache is empty")

// NewLeaderboardCache creates a new Redis leaderboard cache
func NewLeaderboardCache(ctx context.Context, cfg *config.RedisConfig, logger *slog.Logger) (*LeaderboardCache, error) {
	client := redis.NewClient(&redis.Options{
		Addr:         cfg.Addr,
		Password:     cfg.Password,
		DB:           cfg.DB,
		PoolSize:     cfg.PoolSize,
		MinIdleConns: cfg.MinIdleConns,
		DialTimeout:  cfg.DialTimeout,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
	})

	// Test connection
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("connecting to redis: %w", err)
	}

	return &LeaderboardCache{
		client: client,
		prefix: cfg.KeyPrefix,
		logger: logger,
	}, nil
}

// Close closes the Redis connection
func (c *LeaderboardCache) Close() error {
	return c.client.Close()
}

// Ping checks Redis is reachable
func (c *LeaderboardCache) Ping(ctx context.Context) error {
	return c.client.Ping(ctx).Err()
}

// rankKey returns the key of the sorted set scored by board position
func (c *LeaderboardCache) rankKey() string {
	return fmt.Sprintf("%s:leaderboard:ranked", c.prefix)
}

// entriesKey returns the key of the user id -> entry hash
func (c *LeaderboardCache) entriesKey() string {
	return fmt.Sprintf("%s:leaderboard:entries", c.prefix)
}

// metaKey returns the key of the refresh metadata hash
func (c *LeaderboardCache) metaKey() string {
	return fmt.Sprintf("%s:leaderboard:meta", c.prefix)
}

// ReplaceLeaderboard swaps the cached projection in a single MULTI/EXEC, so
// readers never see a half-written board. The metadata key is watched and a
// board older than the cached one is refused.
func (c *LeaderboardCache) ReplaceLeaderboard(ctx context.Context, entries []domain.LeaderboardEntry, refreshedAt time.Time) error {
	members := make([]redis.Z, 0, len(entries))
	values := make(map[string]any, len(entries))
	for i, e := range entries {
		raw, err := json.Marshal(e)
		if err != nil {
			return fmt.Errorf("marshaling entry: %w", err)
		}
		members = append(members, redis.Z{Score: float64(i), Member: string(raw)})
		values[strconv.FormatInt(e.UserID, 10)] = string(raw)
	}

	replace := func(tx *redis.Tx) error {
		current, err := tx.HGet(ctx, c.metaKey(), "refreshed_at").Result()
		switch {
		case errors.Is(err, redis.Nil):
		case err != nil:
			return fmt.Errorf("getting refresh time: %w", err)
		default:
			if at, err := time.Parse(time.RFC3339Nano, current); err == nil && refreshedAt.Before(at) {
				return domain.ErrStaleLeaderboard
			}
		}

		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Del(ctx, c.rankKey(), c.entriesKey())
			if len(members) > 0 {
				pipe.ZAdd(ctx, c.rankKey(), members...)
				pipe.HSet(ctx, c.entriesKey(), values)
			}
			pipe.HSet(ctx, c.metaKey(),
				"refreshed_at", refreshedAt.UTC().Format(time.RFC3339Nano),
				"total", len(entries),
			)
			return nil
		})
		return err
	}

	if err := c.client.Watch(ctx, replace, c.metaKey()); err != nil {
		return fmt.Errorf("replacing leaderboard: %w", err)
	}
	return nil
}

// View returns the n best-placed entries, userID's own entry and the refresh
// metadata. All reads go out in one MULTI/EXEC, so they describe the same
// board even while a replace is running.
func (c *LeaderboardCache) View(ctx context.Context, n int, userID int64) (domain.LeaderboardView, error) {
	var (
		meta *redis.MapStringStringCmd
		top  *redis.StringSliceCmd
		own  *redis.StringCmd
	)
	_, err := c.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		meta = pipe.HGetAll(ctx, c.metaKey())
		if n > 0 {
			top = pipe.ZRange(ctx, c.rankKey(), 0, int64(n-1))
		}
		if userID != 0 {
			own = pipe.HGet(ctx, c.entriesKey(), strconv.FormatInt(userID, 10))
		}
		return nil
	})
	// a user without an entry surfaces as redis.Nil from the pipeline
	if err != nil && !errors.Is(err, redis.Nil) {
		return domain.LeaderboardView{}, fmt.Errorf("reading leaderboard: %w", err)
	}

	view, err := decodeMeta(meta.Val())
	if err != nil {
		return domain.LeaderboardView{}, err
	}

	view.Top = []domain.LeaderboardEntry{}
	if top != nil {
		for _, raw := range top.Val() {
			e, err := decodeEntry(raw)
			if err != nil {
				return domain.LeaderboardView{}, err
			}
			view.Top = append(view.Top, e)
		}
	}

	if own != nil {
		raw, err := own.Result()
		switch {
		case errors.Is(err, redis.Nil):
		case err != nil:
			return domain.LeaderboardView{}, fmt.Errorf("getting user entry: %w", err)
		default:
			e, err := decodeEntry(raw)
			if err != nil {
				return domain.LeaderboardView{}, err
			}
			view.User = &e
		}
	}
	return view, nil
}

// decodeMeta reads the refresh hash. A cache that was never filled has no
// refresh time and reports ErrCacheEmpty so callers use the stored projection.
func decodeMeta(fields map[string]string) (domain.LeaderboardView, error) {
	raw, ok := fields["refreshed_at"]
	if !ok {
		return domain.LeaderboardView{}, ErrCacheEmpty
	}
	at, err := time.Parse(time.RFC3339Nano, raw)
	if err != nil {
		return domain.LeaderboardView{}, fmt.Errorf("parsing refresh time: %w", err)
	}
	total, err := strconv.ParseInt(fields["total"], 10, 64)
	if err != nil {
		return domain.LeaderboardView{}, fmt.Errorf("parsing total: %w", err)
	}
	return domain.LeaderboardView{TotalUsers: total, RefreshedAt: at}, nil
}

func decodeEntry(raw string) (domain.LeaderboardEntry, error) {
	var e domain.LeaderboardEntry
	if err := json.Unmarshal([]byte(raw), &e); err != nil {
		return domain.LeaderboardEntry{}, fmt.Errorf("decoding entry: %w", err)
	}
	return e, nil
}
