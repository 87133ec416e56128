package publish

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"

	"PhenomenonIndexer/internal/interfaces"

	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
)

const defaultBufferLimit = 1000

// RedisPublisher publishes committed game changes on <prefix>:game:<id> and
// keeps the latest BufferLimit of them in a sorted set for late subscribers.
type RedisPublisher struct {
	DB          *redis.Client
	Prefix      string
	BufferLimit int64
	logger      *logrus.Logger
}

// NewRedisPublisher connString is a redis:// URL
func NewRedisPublisher(connString, prefix string, bufferLimit int64, logger *logrus.Logger) (*RedisPublisher, error) {
	opts, err := redis.ParseURL(connString)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	logger.WithField("addr", opts.Addr).Info("connecting redis publisher")
	if prefix == "" {
		prefix = "phenomenon"
	}
	if bufferLimit <= 0 {
		bufferLimit = defaultBufferLimit
	}
	return &RedisPublisher{
		DB:          redis.NewClient(opts),
		Prefix:      prefix,
		BufferLimit: bufferLimit,
		logger:      logger,
	}, nil
}

// Topic pub/sub channel for a game
func (r *RedisPublisher) Topic(gameID string) string {
	return fmt.Sprintf("%s:game:%s", r.Prefix, gameID)
}

func (r *RedisPublisher) bufferKey(gameID string) string {
	return "events:" + r.Topic(gameID)
}

// Score orders changes by chain position
func Score(c interfaces.GameChange) float64 {
	return float64(c.BlockNumber)*100000 + float64(c.LogIndex)
}

func (r *RedisPublisher) PublishGameChange(ctx context.Context, change interfaces.GameChange) error {
	data, err := json.Marshal(change)
	if err != nil {
		return fmt.Errorf("marshal change: %w", err)
	}
	score := Score(change)
	_, err = r.DB.Pipelined(ctx, func(p redis.Pipeliner) error {
		key := r.bufferKey(change.GameID)
		if err := p.ZAdd(ctx, key, redis.Z{Score: score, Member: string(data)}).Err(); err != nil {
			return err
		}
		if err := p.ZRemRangeByRank(ctx, key, 0, -r.BufferLimit-1).Err(); err != nil {
			return err
		}
		return p.Publish(ctx, r.Topic(change.GameID), string(data)).Err()
	})
	if err != nil {
		return fmt.Errorf("publish %s: %w", r.Topic(change.GameID), err)
	}
	return nil
}

// Recent buffered changes for a game with score strictly above since, oldest first
func (r *RedisPublisher) Recent(ctx context.Context, gameID string, since float64) ([]interfaces.GameChange, error) {
	results, err := r.DB.ZRangeByScore(ctx, r.bufferKey(gameID), &redis.ZRangeBy{
		Min: "(" + strconv.FormatFloat(since, 'f', -1, 64),
		Max: "+inf",
	}).Result()
	if err != nil {
		return nil, err
	}
	changes := make([]interfaces.GameChange, 0, len(results))
	for _, raw := range results {
		var c interfaces.GameChange
		if err := json.Unmarshal([]byte(raw), &c); err != nil {
			r.logger.WithError(err).WithField("game_id", gameID).Warn("skip malformed buffered change")
			continue
		}
		changes = append(changes, c)
	}
	return changes, nil
}

func (r *RedisPublisher) Close() error {
	return r.DB.Close()
}
