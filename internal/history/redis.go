package history

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/redis/go-redis/v9"
)

const redisKeyPrefix = "rwelens:chat:history:"

// Redis is a Store backed by a Redis list, so chat history survives process
// restarts and can be shared between the CLI and the dashboard.
type Redis struct {
	client  *redis.Client
	key     string
	limit   int
	ownConn bool
}

// NewRedis connects to addr and verifies the connection with a ping. The
// session name isolates independent conversations.
func NewRedis(ctx context.Context, addr, session string, limit int) (*Redis, error) {
	client := redis.NewClient(&redis.Options{Addr: addr})
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("redis ping %s: %w", addr, err)
	}
	r := NewRedisWithClient(client, session, limit)
	r.ownConn = true
	return r, nil
}

// NewRedisWithClient wraps an existing client (used in tests).
func NewRedisWithClient(client *redis.Client, session string, limit int) *Redis {
	if session == "" {
		session = "default"
	}
	if limit <= 0 {
		limit = DefaultLimit
	}
	return &Redis{client: client, key: redisKeyPrefix + session, limit: limit}
}

func (r *Redis) Append(ctx context.Context, e Entry) error {
	payload, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("marshal history entry: %w", err)
	}
	pipe := r.client.TxPipeline()
	pipe.LPush(ctx, r.key, payload)
	pipe.LTrim(ctx, r.key, 0, int64(r.limit-1))
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("append history: %w", err)
	}
	return nil
}

func (r *Redis) Recent(ctx context.Context, n int) ([]Entry, error) {
	if n <= 0 || n > r.limit {
		n = r.limit
	}
	raw, err := r.client.LRange(ctx, r.key, 0, int64(n-1)).Result()
	if err != nil {
		return nil, fmt.Errorf("read history: %w", err)
	}
	// LPUSH stores newest first; callers expect oldest first.
	out := make([]Entry, 0, len(raw))
	for i := len(raw) - 1; i >= 0; i-- {
		var e Entry
		if err := json.Unmarshal([]byte(raw[i]), &e); err != nil {
			return nil, fmt.Errorf("decode history entry: %w", err)
		}
		out = append(out, e)
	}
	return out, nil
}

func (r *Redis) Len(ctx context.Context) (int, error) {
	n, err := r.client.LLen(ctx, r.key).Result()
	if err != nil {
		return 0, fmt.Errorf("history length: %w", err)
	}
	return int(n), nil
}

func (r *Redis) Clear(ctx context.Context) error {
	if err := r.client.Del(ctx, r.key).Err(); err != nil {
		return fmt.Errorf("clear history: %w", err)
	}
	return nil
}

// Close releases the connection when this store opened it.
func (r *Redis) Close() error {
	if r.ownConn {
		return r.client.Close()
	}
	return nil
}
