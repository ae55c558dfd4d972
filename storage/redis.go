package storage

import (
	"context"
	"errors"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"versus/domain"
)

type StatsSource interface {
	GetStats(ctx context.Context, userId string) (domain.UserStats, error)
	RecordMatch(ctx context.Context, result domain.MatchResult) error
}

// StatsCache keeps each player's rolling average WPM in redis so quick play
// does not hit postgres on every matchmaking request.
type StatsCache struct {
	client *redis.Client
	source StatsSource
	ttl    time.Duration
}

func NewStatsCache(client *redis.Client, source StatsSource, ttl time.Duration) *StatsCache {
	return &StatsCache{client: client, source: source, ttl: ttl}
}

func avgWpmKey(userId string) string {
	return "stats:avg_wpm:" + userId
}

func (c *StatsCache) AverageWpm(ctx context.Context, userId string) (float64, error) {
	cached, err := c.client.Get(ctx, avgWpmKey(userId)).Result()
	if err == nil {
		if wpm, parseErr := strconv.ParseFloat(cached, 64); parseErr == nil {
			return wpm, nil
		}
	} else if !errors.Is(err, redis.Nil) {
		return 0, err
	}

	stats, err := c.source.GetStats(ctx, userId)
	if err != nil {
		return 0, err
	}

	c.client.Set(ctx, avgWpmKey(userId), strconv.FormatFloat(stats.AvgWpm, 'f', -1, 64), c.ttl)
	return stats.AvgWpm, nil
}

// RecordMatch writes through to the source and drops the participants' entries.
func (c *StatsCache) RecordMatch(ctx context.Context, result domain.MatchResult) error {
	if err := c.source.RecordMatch(ctx, result); err != nil {
		return err
	}
	if len(result.Participants) == 0 {
		return nil
	}

	keys := make([]string, 0, len(result.Participants))
	for _, p := range result.Participants {
		keys = append(keys, avgWpmKey(p.UserId))
	}
	return c.client.Del(ctx, keys...).Err()
}
