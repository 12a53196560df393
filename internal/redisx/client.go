package redisx

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

func New(addr string) *redis.Client {
	return redis.NewClient(&redis.Options{
		Addr:         addr,
		DialTimeout:  2 * time.Second,
		ReadTimeout:  2 * time.Second,
		WriteTimeout: 2 * time.Second,
	})
}

// Cache wraps a redis client for the read cache, idempotency keys, dedup and
// the low-stock set. A nil *Cache (or nil client) behaves as an always-miss
// cache, so callers don't need to special-case a missing Redis.
type Cache struct {
	rdb *redis.Client
}

func NewCache(rdb *redis.Client) *Cache {
	if rdb == nil {
		return nil
	}
	return &Cache{rdb: rdb}
}

func (c *Cache) enabled() bool { return c != nil && c.rdb != nil }

// Get returns ok=false on miss.
func (c *Cache) Get(ctx context.Context, key string) ([]byte, bool, error) {
	if !c.enabled() {
		return nil, false, nil
	}
	b, err := c.rdb.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return b, true, nil
}

func (c *Cache) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	if !c.enabled() {
		return nil
	}
	return c.rdb.Set(ctx, key, value, ttl).Err()
}

func (c *Cache) Del(ctx context.Context, keys ...string) error {
	if !c.enabled() || len(keys) == 0 {
		return nil
	}
	return c.rdb.Del(ctx, keys...).Err()
}

// Generation returns the current generation of a cached key ("" if it was
// never invalidated). Read it before loading from the database and hand it to
// SetIfGeneration.
func (c *Cache) Generation(ctx context.Context, key string) (string, error) {
	if !c.enabled() {
		return "", nil
	}
	g, err := c.rdb.Get(ctx, key+KeyGenSuffix).Result()
	if errors.Is(err, redis.Nil) {
		return "", nil
	}
	return g, err
}

var setIfGeneration = redis.NewScript(`
local g = redis.call('GET', KEYS[2])
if not g then g = '' end
if g ~= ARGV[2] then return 0 end
redis.call('SET', KEYS[1], ARGV[1], 'PX', ARGV[3])
return 1
`)

// SetIfGeneration stores value only if key has not been invalidated since gen
// was read. It reports whether the value was stored.
func (c *Cache) SetIfGeneration(ctx context.Context, key, gen string, value []byte, ttl time.Duration) (bool, error) {
	if !c.enabled() {
		return false, nil
	}
	n, err := setIfGeneration.Run(ctx, c.rdb, []string{key, key + KeyGenSuffix}, value, gen, ttl.Milliseconds()).Int()
	return n == 1, err
}

// InvalidateProducts drops the cached entries of the given products and the
// cached product list, bumping their generations so an in-flight read-through
// cannot put an older copy back.
func (c *Cache) InvalidateProducts(ctx context.Context, ids ...int64) error {
	if !c.enabled() {
		return nil
	}
	keys := make([]string, 0, len(ids)+1)
	keys = append(keys, KeyProductList)
	for _, id := range ids {
		keys = append(keys, fmt.Sprintf(KeyProduct, id))
	}
	_, err := c.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		for _, k := range keys {
			pipe.Incr(ctx, k+KeyGenSuffix)
			pipe.Expire(ctx, k+KeyGenSuffix, TTLGeneration)
		}
		pipe.Del(ctx, keys...)
		return nil
	})
	return err
}

// MarkOnce sets key if absent and reports whether this call set it.
func (c *Cache) MarkOnce(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	if !c.enabled() {
		return true, nil
	}
	return c.rdb.SetNX(ctx, key, "1", ttl).Result()
}

var applyLowStock = redis.NewScript(`
local cur = tonumber(redis.call('HGET', KEYS[1], ARGV[1]) or '0')
if tonumber(ARGV[2]) <= cur then return 0 end
redis.call('HSET', KEYS[1], ARGV[1], ARGV[2])
if ARGV[3] == '1' then
  redis.call('SADD', KEYS[2], ARGV[1])
else
  redis.call('SREM', KEYS[2], ARGV[1])
end
return 1
`)

// ApplyLowStock adds (low=true) or removes product id from the low-stock set,
// but only if version is newer than the last version applied for that
// product. Older or repeated versions are ignored and reported as false.
func (c *Cache) ApplyLowStock(ctx context.Context, id, version int64, low bool) (bool, error) {
	if !c.enabled() {
		return false, nil
	}
	flag := "0"
	if low {
		flag = "1"
	}
	n, err := applyLowStock.Run(ctx, c.rdb, []string{KeyLowStockVersion, KeyLowStock},
		strconv.FormatInt(id, 10), strconv.FormatInt(version, 10), flag).Int()
	return n == 1, err
}

func (c *Cache) LowStockIDs(ctx context.Context) ([]int64, error) {
	if !c.enabled() {
		return nil, nil
	}
	members, err := c.rdb.SMembers(ctx, KeyLowStock).Result()
	if err != nil {
		return nil, err
	}
	ids := make([]int64, 0, len(members))
	for _, m := range members {
		id, err := strconv.ParseInt(m, 10, 64)
		if err != nil {
			continue
		}
		ids = append(ids, id)
	}
	return ids, nil
}
