package store

import (
	"context"
	"fmt"
	"path"
	"sort"
	"sync"
	"time"

	"AuthCorePlatform/services/auth-core/internal/domain"
)

type kind int

const (
	kindString kind = iota
	kindSet
	kindHash
)

type memoryEntry struct {
	kind      kind
	str       string
	set       map[string]struct{}
	hash      map[string]string
	expiresAt time.Time // нулевое значение - без срока жизни
}

// MemoryStore реализация Store в памяти процесса.
// Используется в тестах и в режиме без Redis: состояние не разделяется между экземплярами.
type MemoryStore struct {
	mu      sync.Mutex
	entries map[string]*memoryEntry
	now     func() time.Time
	closed  bool
}

// MemoryOption настройка MemoryStore
type MemoryOption func(*MemoryStore)

// WithClock подменяет источник времени для проверки TTL
func WithClock(now func() time.Time) MemoryOption {
	return func(s *MemoryStore) {
		s.now = now
	}
}

// NewMemoryStore создает пустое хранилище
func NewMemoryStore(opts ...MemoryOption) *MemoryStore {
	s := &MemoryStore{entries: make(map[string]*memoryEntry), now: time.Now}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// lookup возвращает живую запись; истекшие удаляются. Вызывается под mu.
func (s *MemoryStore) lookup(key string) *memoryEntry {
	e, ok := s.entries[key]
	if !ok {
		return nil
	}
	if !e.expiresAt.IsZero() && !s.now().Before(e.expiresAt) {
		delete(s.entries, key)
		return nil
	}
	return e
}

func (s *MemoryStore) deadline(ttl time.Duration) time.Time {
	if ttl <= 0 {
		return time.Time{}
	}
	return s.now().Add(ttl)
}

func (s *MemoryStore) begin(ctx context.Context, operation string) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("%w: %s: %w", domain.ErrStoreUnavailable, operation, err)
	}
	if s.closed {
		return fmt.Errorf("%w: %s: store is closed", domain.ErrStoreUnavailable, operation)
	}
	return nil
}

func wrongType(operation, key string) error {
	return fmt.Errorf("%w: %s: key %s holds the wrong kind of value", domain.ErrStoreUnavailable, operation, key)
}

// Set записывает строку с TTL
func (s *MemoryStore) Set(ctx context.Context, key, value string, ttl time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.begin(ctx, "set"); err != nil {
		return err
	}

	s.entries[key] = &memoryEntry{kind: kindString, str: value, expiresAt: s.deadline(ttl)}
	return nil
}

// Get возвращает значение ключа
func (s *MemoryStore) Get(ctx context.Context, key string) (string, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.begin(ctx, "get"); err != nil {
		return "", false, err
	}

	e := s.lookup(key)
	if e == nil {
		return "", false, nil
	}
	if e.kind != kindString {
		return "", false, wrongType("get", key)
	}
	return e.str, true, nil
}

// Exists проверяет наличие ключа
func (s *MemoryStore) Exists(ctx context.Context, key string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.begin(ctx, "exists"); err != nil {
		return false, err
	}

	return s.lookup(key) != nil, nil
}

// Delete удаляет ключи
func (s *MemoryStore) Delete(ctx context.Context, keys ...string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.begin(ctx, "del"); err != nil {
		return 0, err
	}

	var n int64
	for _, key := range keys {
		if s.lookup(key) != nil {
			delete(s.entries, key)
			n++
		}
	}
	return n, nil
}

// Expire обновляет TTL ключа
func (s *MemoryStore) Expire(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.begin(ctx, "expire"); err != nil {
		return false, err
	}

	e := s.lookup(key)
	if e == nil {
		return false, nil
	}
	if ttl <= 0 {
		delete(s.entries, key)
		return true, nil
	}
	e.expiresAt = s.deadline(ttl)
	return true, nil
}

// SetAdd добавляет элементы в множество и обновляет TTL
func (s *MemoryStore) SetAdd(ctx context.Context, key string, ttl time.Duration, members ...string) error {
	if len(members) == 0 {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.begin(ctx, "sadd"); err != nil {
		return err
	}

	e := s.lookup(key)
	if e == nil {
		e = &memoryEntry{kind: kindSet, set: make(map[string]struct{})}
		s.entries[key] = e
	}
	if e.kind != kindSet {
		return wrongType("sadd", key)
	}
	for _, m := range members {
		e.set[m] = struct{}{}
	}
	e.expiresAt = s.deadline(ttl)
	return nil
}

// SetMembers возвращает элементы множества в отсортированном порядке
func (s *MemoryStore) SetMembers(ctx context.Context, key string) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.begin(ctx, "smembers"); err != nil {
		return nil, err
	}

	e := s.lookup(key)
	if e == nil {
		return []string{}, nil
	}
	if e.kind != kindSet {
		return nil, wrongType("smembers", key)
	}
	return sortedMembers(e.set), nil
}

func sortedMembers(set map[string]struct{}) []string {
	members := make([]string, 0, len(set))
	for m := range set {
		members = append(members, m)
	}
	sort.Strings(members)
	return members
}

// HashSet записывает поля хэша и обновляет TTL
func (s *MemoryStore) HashSet(ctx context.Context, key string, fields map[string]string, ttl time.Duration) error {
	if len(fields) == 0 {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.begin(ctx, "hset"); err != nil {
		return err
	}

	e := s.lookup(key)
	if e == nil {
		e = &memoryEntry{kind: kindHash, hash: make(map[string]string)}
		s.entries[key] = e
	}
	if e.kind != kindHash {
		return wrongType("hset", key)
	}
	for k, v := range fields {
		e.hash[k] = v
	}
	if ttl > 0 {
		e.expiresAt = s.deadline(ttl)
	}
	return nil
}

// HashTouch обновляет поля и TTL хэша, если он существует
func (s *MemoryStore) HashTouch(ctx context.Context, key string, fields map[string]string, ttl time.Duration) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.begin(ctx, "htouch"); err != nil {
		return false, err
	}

	e := s.lookup(key)
	if e == nil {
		return false, nil
	}
	if e.kind != kindHash {
		return false, wrongType("htouch", key)
	}
	for k, v := range fields {
		e.hash[k] = v
	}
	if ttl > 0 {
		e.expiresAt = s.deadline(ttl)
	}
	return true, nil
}

// HashGetAll возвращает копию полей хэша
func (s *MemoryStore) HashGetAll(ctx context.Context, key string) (map[string]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.begin(ctx, "hgetall"); err != nil {
		return nil, err
	}

	result := make(map[string]string)
	e := s.lookup(key)
	if e == nil {
		return result, nil
	}
	if e.kind != kindHash {
		return nil, wrongType("hgetall", key)
	}
	for k, v := range e.hash {
		result[k] = v
	}
	return result, nil
}

// GetDel атомарно читает и удаляет строку
func (s *MemoryStore) GetDel(ctx context.Context, key string) (string, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.begin(ctx, "getdel"); err != nil {
		return "", false, err
	}

	e := s.lookup(key)
	if e == nil {
		return "", false, nil
	}
	if e.kind != kindString {
		return "", false, wrongType("getdel", key)
	}
	delete(s.entries, key)
	return e.str, true, nil
}

// ScanKeys перечисляет ключи по glob шаблону
func (s *MemoryStore) ScanKeys(ctx context.Context, pattern string) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.begin(ctx, "scan"); err != nil {
		return nil, err
	}

	var keys []string
	for key := range s.entries {
		if s.lookup(key) == nil {
			continue
		}
		matched, err := path.Match(pattern, key)
		if err != nil {
			return nil, fmt.Errorf("%w: scan: %w", domain.ErrStoreUnavailable, err)
		}
		if matched {
			keys = append(keys, key)
		}
	}
	sort.Strings(keys)
	return keys, nil
}

// Inspect возвращает TTL и размер значений
func (s *MemoryStore) Inspect(ctx context.Context, keys []string) ([]KeyInfo, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.begin(ctx, "inspect"); err != nil {
		return nil, err
	}

	infos := make([]KeyInfo, len(keys))
	for i, key := range keys {
		infos[i] = KeyInfo{Key: key, TTL: -2}
		e := s.lookup(key)
		if e == nil {
			continue
		}
		infos[i].Exists = true
		infos[i].TTL = -1
		if !e.expiresAt.IsZero() {
			infos[i].TTL = e.expiresAt.Sub(s.now())
		}
		if e.kind == kindString {
			infos[i].Size = int64(len(e.str))
		}
	}
	return infos, nil
}

// RevokeSet атомарно переносит элементы множества в записи черного списка
func (s *MemoryStore) RevokeSet(ctx context.Context, setKey, entryPrefix, value string, ttl time.Duration) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.begin(ctx, "revoke_set"); err != nil {
		return 0, err
	}

	e := s.lookup(setKey)
	if e == nil {
		return 0, nil
	}
	if e.kind != kindSet {
		return 0, wrongType("revoke_set", setKey)
	}

	for member := range e.set {
		s.entries[entryPrefix+member] = &memoryEntry{kind: kindString, str: value, expiresAt: s.deadline(ttl)}
	}
	delete(s.entries, setKey)
	return len(e.set), nil
}

// Ping проверяет, что хранилище не закрыто
func (s *MemoryStore) Ping(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.begin(ctx, "ping")
}

// Close закрывает хранилище; последующие операции завершаются ошибкой
func (s *MemoryStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}
