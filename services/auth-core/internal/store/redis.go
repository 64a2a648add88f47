package store

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/go-redis/redis/v8"

	"AuthCorePlatform/pkg/metrics"
	"AuthCorePlatform/services/auth-core/internal/domain"
)

// DefaultOpTimeout ограничение по времени на одну операцию
const DefaultOpTimeout = 300 * time.Millisecond

// revokeSetScript переносит все элементы множества в ключи черного списка и удаляет множество.
// Ключи записей формируются внутри скрипта, поэтому скрипт рассчитан на одиночный Redis
// или на кластер, где все ключи пользователя попадают в один слот.
var revokeSetScript = redis.NewScript(`
local members = redis.call('SMEMBERS', KEYS[1])
for _, member in ipairs(members) do
	redis.call('SET', ARGV[1] .. member, ARGV[2], 'EX', ARGV[3])
end
redis.call('DEL', KEYS[1])
return #members
`)

// hashTouchScript обновляет поля хэша и TTL, не создавая удаленный ключ заново
var hashTouchScript = redis.NewScript(`
if redis.call('EXISTS', KEYS[1]) == 0 then
	return 0
end
redis.call('HSET', KEYS[1], unpack(ARGV, 2))
redis.call('EXPIRE', KEYS[1], ARGV[1])
return 1
`)

// RedisStore реализация Store на go-redis
type RedisStore struct {
	client    redis.UniversalClient
	opTimeout time.Duration
	metrics   *metrics.Metrics
}

// NewRedisStore создает хранилище поверх готового клиента
func NewRedisStore(client redis.UniversalClient, opTimeout time.Duration, m *metrics.Metrics) *RedisStore {
	if opTimeout <= 0 {
		opTimeout = DefaultOpTimeout
	}
	return &RedisStore{client: client, opTimeout: opTimeout, metrics: m}
}

func (s *RedisStore) op(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, s.opTimeout)
}

func (s *RedisStore) fail(operation string, err error) error {
	s.metrics.IncStoreError(operation)
	return fmt.Errorf("%w: %s: %w", domain.ErrStoreUnavailable, operation, err)
}

// Set записывает строку с TTL
func (s *RedisStore) Set(ctx context.Context, key, value string, ttl time.Duration) error {
	ctx, cancel := s.op(ctx)
	defer cancel()

	if ttl < 0 {
		ttl = 0
	}
	if err := s.client.Set(ctx, key, value, ttl).Err(); err != nil {
		return s.fail("set", err)
	}
	return nil
}

// Get возвращает значение ключа
func (s *RedisStore) Get(ctx context.Context, key string) (string, bool, error) {
	ctx, cancel := s.op(ctx)
	defer cancel()

	value, err := s.client.Get(ctx, key).Result()
	if err == redis.Nil {
		return "", false, nil
	}
	if err != nil {
		return "", false, s.fail("get", err)
	}
	return value, true, nil
}

// Exists проверяет наличие ключа
func (s *RedisStore) Exists(ctx context.Context, key string) (bool, error) {
	ctx, cancel := s.op(ctx)
	defer cancel()

	n, err := s.client.Exists(ctx, key).Result()
	if err != nil {
		return false, s.fail("exists", err)
	}
	return n > 0, nil
}

// Delete удаляет ключи
func (s *RedisStore) Delete(ctx context.Context, keys ...string) (int64, error) {
	if len(keys) == 0 {
		return 0, nil
	}
	ctx, cancel := s.op(ctx)
	defer cancel()

	n, err := s.client.Del(ctx, keys...).Result()
	if err != nil {
		return 0, s.fail("del", err)
	}
	return n, nil
}

// Expire обновляет TTL ключа
func (s *RedisStore) Expire(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	ctx, cancel := s.op(ctx)
	defer cancel()

	ok, err := s.client.Expire(ctx, key, ttl).Result()
	if err != nil {
		return false, s.fail("expire", err)
	}
	return ok, nil
}

// SetAdd добавляет элементы в множество и обновляет TTL
func (s *RedisStore) SetAdd(ctx context.Context, key string, ttl time.Duration, members ...string) error {
	if len(members) == 0 {
		return nil
	}
	ctx, cancel := s.op(ctx)
	defer cancel()

	values := make([]interface{}, len(members))
	for i, m := range members {
		values[i] = m
	}

	_, err := s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.SAdd(ctx, key, values...)
		pipe.Expire(ctx, key, ttl)
		return nil
	})
	if err != nil {
		return s.fail("sadd", err)
	}
	return nil
}

// SetMembers возвращает элементы множества
func (s *RedisStore) SetMembers(ctx context.Context, key string) ([]string, error) {
	ctx, cancel := s.op(ctx)
	defer cancel()

	members, err := s.client.SMembers(ctx, key).Result()
	if err != nil {
		return nil, s.fail("smembers", err)
	}
	return members, nil
}

// HashSet записывает поля хэша и обновляет TTL
func (s *RedisStore) HashSet(ctx context.Context, key string, fields map[string]string, ttl time.Duration) error {
	if len(fields) == 0 {
		return nil
	}
	ctx, cancel := s.op(ctx)
	defer cancel()

	values := make(map[string]interface{}, len(fields))
	for k, v := range fields {
		values[k] = v
	}

	_, err := s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.HSet(ctx, key, values)
		if ttl > 0 {
			pipe.Expire(ctx, key, ttl)
		}
		return nil
	})
	if err != nil {
		return s.fail("hset", err)
	}
	return nil
}

// HashTouch обновляет поля и TTL хэша, если он существует
func (s *RedisStore) HashTouch(ctx context.Context, key string, fields map[string]string, ttl time.Duration) (bool, error) {
	ctx, cancel := s.op(ctx)
	defer cancel()

	seconds := int64(ttl / time.Second)
	if seconds < 1 {
		seconds = 1
	}

	if len(fields) == 0 {
		ok, err := s.client.Expire(ctx, key, ttl).Result()
		if err != nil {
			return false, s.fail("htouch", err)
		}
		return ok, nil
	}

	args := make([]interface{}, 0, 1+2*len(fields))
	args = append(args, strconv.FormatInt(seconds, 10))
	for k, v := range fields {
		args = append(args, k, v)
	}

	n, err := hashTouchScript.Run(ctx, s.client, []string{key}, args...).Int()
	if err != nil {
		return false, s.fail("htouch", err)
	}
	return n == 1, nil
}

// HashGetAll возвращает все поля хэша
func (s *RedisStore) HashGetAll(ctx context.Context, key string) (map[string]string, error) {
	ctx, cancel := s.op(ctx)
	defer cancel()

	fields, err := s.client.HGetAll(ctx, key).Result()
	if err != nil {
		return nil, s.fail("hgetall", err)
	}
	return fields, nil
}

// GetDel атомарно читает и удаляет строку
func (s *RedisStore) GetDel(ctx context.Context, key string) (string, bool, error) {
	ctx, cancel := s.op(ctx)
	defer cancel()

	value, err := s.client.GetDel(ctx, key).Result()
	if err == redis.Nil {
		return "", false, nil
	}
	if err != nil {
		return "", false, s.fail("getdel", err)
	}
	return value, true, nil
}

// ScanKeys перечисляет ключи командой SCAN
func (s *RedisStore) ScanKeys(ctx context.Context, pattern string) ([]string, error) {
	// Полный обход может занять больше одной операции
	ctx, cancel := context.WithTimeout(ctx, 10*s.opTimeout)
	defer cancel()

	var keys []string
	iter := s.client.Scan(ctx, 0, pattern, 500).Iterator()
	for iter.Next(ctx) {
		keys = append(keys, iter.Val())
	}
	if err := iter.Err(); err != nil {
		return nil, s.fail("scan", err)
	}
	return keys, nil
}

// Inspect возвращает TTL и размер значений одним конвейером
func (s *RedisStore) Inspect(ctx context.Context, keys []string) ([]KeyInfo, error) {
	if len(keys) == 0 {
		return nil, nil
	}
	ctx, cancel := context.WithTimeout(ctx, 10*s.opTimeout)
	defer cancel()

	ttls := make([]*redis.DurationCmd, len(keys))
	sizes := make([]*redis.IntCmd, len(keys))
	_, err := s.client.Pipelined(ctx, func(pipe redis.Pipeliner) error {
		for i, key := range keys {
			ttls[i] = pipe.TTL(ctx, key)
			sizes[i] = pipe.StrLen(ctx, key)
		}
		return nil
	})
	if err != nil {
		return nil, s.fail("inspect", err)
	}

	infos := make([]KeyInfo, len(keys))
	for i, key := range keys {
		ttl := ttls[i].Val()
		infos[i] = KeyInfo{
			Key:  key,
			Size: sizes[i].Val(),
			// go-redis возвращает -2 для отсутствующего ключа и -1 для ключа без срока жизни
			Exists: ttl != -2,
			TTL:    ttl,
		}
	}
	return infos, nil
}

// RevokeSet атомарно переносит элементы множества в записи черного списка
func (s *RedisStore) RevokeSet(ctx context.Context, setKey, entryPrefix, value string, ttl time.Duration) (int, error) {
	ctx, cancel := s.op(ctx)
	defer cancel()

	seconds := int64(ttl / time.Second)
	if seconds < 1 {
		seconds = 1
	}

	n, err := revokeSetScript.Run(ctx, s.client, []string{setKey}, entryPrefix, value, strconv.FormatInt(seconds, 10)).Int()
	if err != nil {
		return 0, s.fail("revoke_set", err)
	}
	return n, nil
}

// Ping проверяет доступность Redis
func (s *RedisStore) Ping(ctx context.Context) error {
	ctx, cancel := s.op(ctx)
	defer cancel()

	if err := s.client.Ping(ctx).Err(); err != nil {
		return s.fail("ping", err)
	}
	return nil
}

// Close закрывает клиент
func (s *RedisStore) Close() error {
	return s.client.Close()
}
