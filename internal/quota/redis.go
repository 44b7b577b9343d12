package quota

import (
	"context"
	"fmt"
	"time"

	goredis "github.com/redis/go-redis/v9"
)

var allowScript = goredis.NewScript(`
local current = redis.call("INCR", KEYS[1])
if current == 1 then
  redis.call("EXPIRE", KEYS[1], ARGV[2])
end
if current > tonumber(ARGV[1]) then
  return 0
end
return 1
`)

var refundScript = goredis.NewScript(`
if redis.call("EXISTS", KEYS[1]) == 1 then
  return redis.call("DECR", KEYS[1])
end
return 0
`)

var _ SecondGuard = (*RedisGuard)(nil)

// RedisGuard enforces the per-second window across instances with a shared
// Redis counter. Day and month accounting stays in the local ledger; the
// guard only protects the upstream-facing burst limit.
type RedisGuard struct {
	client *goredis.Client
	now    func() time.Time
	script *goredis.Script
}

func NewRedisGuard(client *goredis.Client) (*RedisGuard, error) {
	if client == nil {
		return nil, fmt.Errorf("redis client is required")
	}
	return &RedisGuard{
		client: client,
		now:    time.Now,
		script: allowScript,
	}, nil
}

func (g *RedisGuard) Allow(ctx context.Context, tenantID string, limit int64) (bool, error) {
	if tenantID == "" {
		return false, fmt.Errorf("tenant id is required")
	}
	if ctx == nil {
		ctx = context.Background()
	}

	key := fmt.Sprintf("quota:%s:%d", tenantID, g.now().UTC().Unix())
	result, err := g.script.Run(ctx, g.client, []string{key}, limit, 1).Int()
	if err != nil {
		return false, fmt.Errorf("failed to evaluate second window: %w", err)
	}
	return result == 1, nil
}

// Refund decrements the current second's counter after an admission whose
// send never reached the upstream. A refund landing after the key expired
// is a no-op; the counter never goes negative through this path.
func (g *RedisGuard) Refund(ctx context.Context, tenantID string) error {
	if tenantID == "" {
		return fmt.Errorf("tenant id is required")
	}
	if ctx == nil {
		ctx = context.Background()
	}

	key := fmt.Sprintf("quota:%s:%d", tenantID, g.now().UTC().Unix())
	if err := refundScript.Run(ctx, g.client, []string{key}).Err(); err != nil {
		return fmt.Errorf("failed to refund second window: %w", err)
	}
	return nil
}
