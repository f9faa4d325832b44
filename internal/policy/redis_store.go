package policy

import (
	"context"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisWindowStore implements WindowStore with a fixed window per key using
// INCR/PEXPIRE. Keys are namespaced under sw: (send window).
type RedisWindowStore struct {
	rc *redis.Client
}

func NewRedisWindowStore(addr string, db int) *RedisWindowStore {
	return &RedisWindowStore{rc: redis.NewClient(&redis.Options{Addr: addr, DB: db})}
}

var luaRecordWindow = redis.NewScript(`
local current = redis.call('INCR', KEYS[1])
if current == 1 then redis.call('PEXPIRE', KEYS[1], ARGV[1]) end
return current
`)

func (s *RedisWindowStore) Count(ctx context.Context, key string) (int, error) {
	v, err := s.rc.Get(ctx, "sw:"+key).Result()
	if err == redis.Nil {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, err
	}
	return n, nil
}

func (s *RedisWindowStore) Record(ctx context.Context, key string, window time.Duration) error {
	return luaRecordWindow.Run(ctx, s.rc, []string{"sw:" + key}, window.Milliseconds()).Err()
}

var _ WindowStore = (*RedisWindowStore)(nil)
