package redisclient

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"kitchen-display/internal/models"

	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"
)

// releaseLockScript deletes the lock only when the caller still owns it
const releaseLockScript = `
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0`

type Client struct {
	rdb           *redis.Client
	releaseScript *redis.Script
}

// NewClient creates a new Redis client
func NewClient(addr, password string, db int) (*Client, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := rdb.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("redis ping failed: %w", err)
	}

	return &Client{
		rdb:           rdb,
		releaseScript: redis.NewScript(releaseLockScript),
	}, nil
}

// Close closes the Redis connection
func (c *Client) Close() error {
	return c.rdb.Close()
}

// Ping checks the Redis connection
func (c *Client) Ping(ctx context.Context) error {
	return c.rdb.Ping(ctx).Err()
}

func stockKey(threshold int) string {
	return fmt.Sprintf("stock:low:%d", threshold)
}

func stockMarkerKey(threshold int) string {
	return fmt.Sprintf("stock:low:%d:fetched_at", threshold)
}

// CacheStockLevels stores a low-stock result under its threshold with a TTL.
// An empty result is cached too so the database is not hit on every poll.
func (c *Client) CacheStockLevels(ctx context.Context, threshold int, levels []models.StockLevel, ttl time.Duration) error {
	fields, err := encodeLevels(levels)
	if err != nil {
		return err
	}

	key := stockKey(threshold)
	pipe := c.rdb.TxPipeline()
	pipe.Del(ctx, key)
	if len(fields) > 0 {
		pipe.HSet(ctx, key, fields)
		pipe.Expire(ctx, key, ttl)
	}
	pipe.Set(ctx, stockMarkerKey(threshold), time.Now().Unix(), ttl)

	_, err = pipe.Exec(ctx)
	return err
}

// GetStockLevels returns the cached low-stock result. hit is false when the
// cache is cold or expired.
func (c *Client) GetStockLevels(ctx context.Context, threshold int) (levels []models.StockLevel, hit bool, err error) {
	pipe := c.rdb.Pipeline()
	marker := pipe.Exists(ctx, stockMarkerKey(threshold))
	all := pipe.HGetAll(ctx, stockKey(threshold))
	if _, err := pipe.Exec(ctx); err != nil && err != redis.Nil {
		return nil, false, err
	}

	if marker.Val() == 0 {
		return nil, false, nil
	}

	levels, err = decodeLevels(all.Val())
	if err != nil {
		return nil, false, err
	}
	return levels, true, nil
}

// InvalidateStock drops the cached result for threshold
func (c *Client) InvalidateStock(ctx context.Context, threshold int) error {
	return c.rdb.Del(ctx, stockKey(threshold), stockMarkerKey(threshold)).Err()
}

func encodeLevels(levels []models.StockLevel) (map[string]interface{}, error) {
	fields := make(map[string]interface{}, len(levels))
	for _, l := range levels {
		b, err := json.Marshal(l)
		if err != nil {
			return nil, fmt.Errorf("encode stock level %d: %w", l.MenuItemID, err)
		}
		fields[strconv.FormatInt(l.MenuItemID, 10)] = string(b)
	}
	return fields, nil
}

func decodeLevels(fields map[string]string) ([]models.StockLevel, error) {
	levels := make([]models.StockLevel, 0, len(fields))
	for id, raw := range fields {
		var l models.StockLevel
		if err := json.Unmarshal([]byte(raw), &l); err != nil {
			return nil, fmt.Errorf("decode stock level %s: %w", id, err)
		}
		levels = append(levels, l)
	}
	return levels, nil
}

// AcquireLock acquires a distributed lock. The returned token must be passed
// to ReleaseLock; ok is false when someone else holds the lock.
func (c *Client) AcquireLock(ctx context.Context, lockKey string, ttl time.Duration) (token string, ok bool, err error) {
	token = uuid.NewString()
	ok, err = c.rdb.SetNX(ctx, fmt.Sprintf("lock:%s", lockKey), token, ttl).Result()
	if err != nil {
		return "", false, err
	}
	return token, ok, nil
}

// ReleaseLock releases a distributed lock held with token
func (c *Client) ReleaseLock(ctx context.Context, lockKey, token string) error {
	return c.releaseScript.Run(ctx, c.rdb, []string{fmt.Sprintf("lock:%s", lockKey)}, token).Err()
}
