package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/chapter-agent/backend/pkg/logger"
)

type Client struct {
	client *redis.Client
}

func NewClient(host string, port int, password string, db int) (*Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     fmt.Sprintf("%s:%d", host, port),
		Password: password,
		DB:       db,
	})

	ctx := context.Background()
	_, err := client.Ping(ctx).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	logger.Info("Redis client initialized", zap.String("addr", fmt.Sprintf("%s:%d", host, port)))

	return &Client{client: client}, nil
}

func (c *Client) Close() error {
	return c.client.Close()
}

func (c *Client) SetAnswer(ctx context.Context, questionHash string, answer interface{}, ttl time.Duration) error {
	data, err := json.Marshal(answer)
	if err != nil {
		return fmt.Errorf("failed to marshal answer: %w", err)
	}

	err = c.client.Set(ctx, "answer:"+questionHash, data, ttl).Err()
	if err != nil {
		return fmt.Errorf("failed to set answer cache: %w", err)
	}

	logger.Debug("Answer cached", zap.String("question_hash", questionHash))
	return nil
}

func (c *Client) GetAnswer(ctx context.Context, questionHash string, answer interface{}) (bool, error) {
	data, err := c.client.Get(ctx, "answer:"+questionHash).Bytes()
	if err == redis.Nil {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to get answer cache: %w", err)
	}

	if err := json.Unmarshal(data, answer); err != nil {
		return false, fmt.Errorf("failed to unmarshal answer: %w", err)
	}

	logger.Debug("Answer cache hit", zap.String("question_hash", questionHash))
	return true, nil
}

func (c *Client) SetEmbedding(ctx context.Context, textHash string, embedding []float32, ttl time.Duration) error {
	data, err := json.Marshal(embedding)
	if err != nil {
		return fmt.Errorf("failed to marshal embedding: %w", err)
	}

	err = c.client.Set(ctx, "embedding:"+textHash, data, ttl).Err()
	if err != nil {
		return fmt.Errorf("failed to set embedding cache: %w", err)
	}

	return nil
}

func (c *Client) GetEmbedding(ctx context.Context, textHash string) ([]float32, bool, error) {
	data, err := c.client.Get(ctx, "embedding:"+textHash).Bytes()
	if err == redis.Nil {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("failed to get embedding cache: %w", err)
	}

	var embedding []float32
	if err := json.Unmarshal(data, &embedding); err != nil {
		return nil, false, fmt.Errorf("failed to unmarshal embedding: %w", err)
	}

	return embedding, true, nil
}

// SetPatterns caches a chapter's mined behavior patterns. Readers accept
// the slight staleness; the mining worker refreshes every cycle.
func (c *Client) SetPatterns(ctx context.Context, chapterID string, patterns interface{}, ttl time.Duration) error {
	data, err := json.Marshal(patterns)
	if err != nil {
		return fmt.Errorf("failed to marshal patterns: %w", err)
	}

	err = c.client.Set(ctx, "patterns:"+chapterID, data, ttl).Err()
	if err != nil {
		return fmt.Errorf("failed to set pattern cache: %w", err)
	}

	logger.Debug("Patterns cached", zap.String("chapter_id", chapterID))
	return nil
}

func (c *Client) GetPatterns(ctx context.Context, chapterID string, patterns interface{}) (bool, error) {
	data, err := c.client.Get(ctx, "patterns:"+chapterID).Bytes()
	if err == redis.Nil {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to get pattern cache: %w", err)
	}

	if err := json.Unmarshal(data, patterns); err != nil {
		return false, fmt.Errorf("failed to unmarshal patterns: %w", err)
	}

	return true, nil
}

// InvalidateChapter drops cached answers tied to a chapter after its
// content changes.
func (c *Client) InvalidateChapter(ctx context.Context, chapterID string) error {
	iter := c.client.Scan(ctx, 0, "answer:"+chapterID+":*", 0).Iterator()
	for iter.Next(ctx) {
		if err := c.client.Del(ctx, iter.Val()).Err(); err != nil {
			logger.Warn("Failed to delete cache key", zap.Error(err))
		}
	}

	if err := iter.Err(); err != nil {
		return fmt.Errorf("failed to iterate cache keys: %w", err)
	}

	logger.Info("Chapter answer cache invalidated", zap.String("chapter_id", chapterID))
	return nil
}

// WarmAnswer stores a prefetched answer without a caller waiting on it.
func (c *Client) WarmAnswer(ctx context.Context, questionHash string, answer interface{}, ttl time.Duration) {
	if err := c.SetAnswer(ctx, questionHash, answer, ttl); err != nil {
		logger.Warn("Failed to warm answer cache", zap.Error(err))
	}
}
