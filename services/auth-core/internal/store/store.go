// Package store описывает key-value хранилище, через которое координируются
// все экземпляры сервиса. Реализации: Redis и память процесса.
package store

import (
	"context"
	"time"
)

// KeyInfo оставшееся время жизни и размер значения ключа
type KeyInfo struct {
	Key    string
	TTL    time.Duration // отрицательное значение - ключ без срока жизни
	Size   int64
	Exists bool
}

// Store операции хранилища. Каждая операция выполняется с ограничением по времени;
// любой отказ или таймаут возвращается как ошибка, оборачивающая domain.ErrStoreUnavailable.
type Store interface {
	// Set записывает строку с TTL (ttl <= 0 - без срока жизни)
	Set(ctx context.Context, key, value string, ttl time.Duration) error
	// Get возвращает значение и признак наличия ключа
	Get(ctx context.Context, key string) (string, bool, error)
	Exists(ctx context.Context, key string) (bool, error)
	// Delete удаляет ключи и возвращает количество удаленных
	Delete(ctx context.Context, keys ...string) (int64, error)
	Expire(ctx context.Context, key string, ttl time.Duration) (bool, error)
	// SetAdd добавляет элементы в множество и обновляет его TTL одной транзакцией
	SetAdd(ctx context.Context, key string, ttl time.Duration, members ...string) error
	SetMembers(ctx context.Context, key string) ([]string, error)
	// HashSet записывает поля хэша и обновляет его TTL одной транзакцией
	HashSet(ctx context.Context, key string, fields map[string]string, ttl time.Duration) error
	// HashTouch обновляет поля и TTL только существующего хэша и сообщает, был ли он найден
	HashTouch(ctx context.Context, key string, fields map[string]string, ttl time.Duration) (bool, error)
	// HashGetAll возвращает пустую карту, если ключа нет
	HashGetAll(ctx context.Context, key string) (map[string]string, error)
	// GetDel атомарно читает и удаляет строку
	GetDel(ctx context.Context, key string) (string, bool, error)
	// ScanKeys перечисляет ключи по glob шаблону без блокировки сервера
	ScanKeys(ctx context.Context, pattern string) ([]string, error)
	// Inspect возвращает TTL и размер значений для набора ключей
	Inspect(ctx context.Context, keys []string) ([]KeyInfo, error)
	// RevokeSet атомарно переносит элементы множества setKey в отдельные ключи
	// entryPrefix+элемент со значением value и TTL, затем удаляет множество.
	// Возвращает количество перенесенных элементов.
	RevokeSet(ctx context.Context, setKey, entryPrefix, value string, ttl time.Duration) (int, error)
	Ping(ctx context.Context) error
	Close() error
}
