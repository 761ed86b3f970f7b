package votes

import (
	"context"
	"encoding/json"
	"errors"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/surapp/backend/internal/models"
)

const tallyKeyPrefix = "tally:voting:"

// RedisCache stores serialized tallies under tally:voting:{id}:{gen}, where gen
// is the counter kept at tally:voting:{id}:gen. Invalidate bumps the counter,
// orphaning every entry written under an older one until its TTL runs out.
// Cache failures are logged and treated as misses.
type RedisCache struct {
	client *redis.Client
	ttl    time.Duration
	logger *zap.Logger
}

// NewRedisCache creates a tally cache with the given entry lifetime.
func NewRedisCache(client *redis.Client, ttl time.Duration, logger *zap.Logger) *RedisCache {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RedisCache{client: client, ttl: ttl, logger: logger}
}

func genKey(votingID int64) string {
	return tallyKeyPrefix + strconv.FormatInt(votingID, 10) + ":gen"
}

func tallyKey(votingID, gen int64) string {
	return tallyKeyPrefix + strconv.FormatInt(votingID, 10) + ":" + strconv.FormatInt(gen, 10)
}

func (c *RedisCache) generation(ctx context.Context, votingID int64) (int64, error) {
	gen, err := c.client.Get(ctx, genKey(votingID)).Int64()
	if errors.Is(err, redis.Nil) {
		return 0, nil
	}
	return gen, err
}

func (c *RedisCache) Get(ctx context.Context, votingID int64) ([]models.QuestionTally, int64, bool) {
	gen, err := c.generation(ctx, votingID)
	if err != nil {
		c.logger.Warn("tally cache generation", zap.Int64("voting_id", votingID), zap.Error(err))
		return nil, -1, false
	}
	raw, err := c.client.Get(ctx, tallyKey(votingID, gen)).Bytes()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			c.logger.Warn("tally cache get", zap.Int64("voting_id", votingID), zap.Error(err))
		}
		return nil, gen, false
	}
	var out []models.QuestionTally
	if err := json.Unmarshal(raw, &out); err != nil {
		c.logger.Warn("tally cache decode", zap.Int64("voting_id", votingID), zap.Error(err))
		return nil, gen, false
	}
	return out, gen, true
}

func (c *RedisCache) Set(ctx context.Context, votingID, gen int64, tally []models.QuestionTally) {
	raw, err := json.Marshal(tally)
	if err != nil {
		return
	}
	if err := c.client.Set(ctx, tallyKey(votingID, gen), raw, c.ttl).Err(); err != nil {
		c.logger.Warn("tally cache set", zap.Int64("voting_id", votingID), zap.Error(err))
	}
}

// Invalidate advances the voting's generation. It also satisfies the engine
// and validator invalidation hooks.
func (c *RedisCache) Invalidate(ctx context.Context, votingID int64) {
	if err := c.client.Incr(ctx, genKey(votingID)).Err(); err != nil {
		c.logger.Warn("tally cache invalidate", zap.Int64("voting_id", votingID), zap.Error(err))
	}
}
