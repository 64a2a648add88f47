// Package session хранит денормализованные записи о вошедших субъектах
// со скользящим сроком жизни, а также одноразовые токены.
package session

import (
	"context"
	"fmt"
	"time"

	"AuthCorePlatform/pkg/connection"
	"AuthCorePlatform/pkg/logger"
	"AuthCorePlatform/services/auth-core/internal/domain"
	"AuthCorePlatform/services/auth-core/internal/store"
)

// TTL время жизни сессии, продлевается при каждом чтении
const TTL = 23 * time.Hour

const (
	fieldID          = "id"
	fieldEmail       = "email"
	fieldUsername    = "username"
	fieldDisplayName = "displayName"
	fieldRole        = "role"
	fieldAdminRole   = "adminRole"
	fieldTenantID    = "tenantId"
	fieldLastActive  = "lastActive"
)

// Key возвращает ключ сессии: user:<id>:session или admin:<id>:session
func Key(scope domain.SessionScope, userID string) string {
	return fmt.Sprintf("%s:%s:session", scope, userID)
}

// OneTimeKey возвращает ключ одноразового токена
func OneTimeKey(kind, tok string) string {
	return fmt.Sprintf("token:%s:%s", kind, tok)
}

// Store хранилище сессий
type Store struct {
	kv     store.Store
	logger logger.Logger
	now    func() time.Time
	retry  connection.RetryConfig
}

// Option настройка Store
type Option func(*Store)

// WithClock подменяет источник времени
func WithClock(now func() time.Time) Option {
	return func(s *Store) {
		s.now = now
	}
}

// WithRetry задает повторные попытки записи
func WithRetry(cfg connection.RetryConfig) Option {
	return func(s *Store) {
		s.retry = cfg
	}
}

// NewStore создает хранилище сессий
func NewStore(kv store.Store, log logger.Logger, opts ...Option) *Store {
	s := &Store{
		kv:     kv,
		logger: log,
		now:    time.Now,
		retry:  connection.StoreWriteRetryConfig(3),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func toFields(rec domain.Session) map[string]string {
	return map[string]string{
		fieldID:          rec.ID,
		fieldEmail:       rec.Email,
		fieldUsername:    rec.Username,
		fieldDisplayName: rec.DisplayName,
		fieldRole:        string(rec.Role),
		fieldAdminRole:   string(rec.AdminRole),
		fieldTenantID:    rec.TenantID,
		fieldLastActive:  rec.LastActive.UTC().Format(time.RFC3339Nano),
	}
}

func fromFields(fields map[string]string) domain.Session {
	rec := domain.Session{
		ID:          fields[fieldID],
		Email:       fields[fieldEmail],
		Username:    fields[fieldUsername],
		DisplayName: fields[fieldDisplayName],
		Role:        domain.Role(fields[fieldRole]),
		AdminRole:   domain.AdminRole(fields[fieldAdminRole]),
		TenantID:    fields[fieldTenantID],
	}
	if ts, err := time.Parse(time.RFC3339Nano, fields[fieldLastActive]); err == nil {
		rec.LastActive = ts
	}
	return rec
}

// Put сохраняет запись и устанавливает TTL. Отказ хранилища возвращается как ErrStoreWriteFailed.
func (s *Store) Put(ctx context.Context, rec domain.Session) error {
	if rec.ID == "" {
		return fmt.Errorf("%w: session id is required", domain.ErrInvalidPrincipal)
	}
	if rec.LastActive.IsZero() {
		rec.LastActive = s.now().UTC()
	}

	key := Key(rec.Scope(), rec.ID)
	err := connection.WithRetry(ctx, s.retry, func(ctx context.Context) error {
		return s.kv.HashSet(ctx, key, toFields(rec), TTL)
	})
	if err != nil {
		s.logger.Error("Failed to store session",
			logger.String("user_id", rec.ID),
			logger.Error(err),
			logger.CtxField(ctx))
		return fmt.Errorf("%w: %w", domain.ErrStoreWriteFailed, err)
	}
	return nil
}

// Get возвращает запись и продлевает ее срок жизни.
// Продление не создает запись заново: если ее удалили после чтения, Get вернет found=false.
// Ошибка продления только логируется, запись уже прочитана.
func (s *Store) Get(ctx context.Context, scope domain.SessionScope, userID string) (domain.Session, bool, error) {
	key := Key(scope, userID)

	fields, err := s.kv.HashGetAll(ctx, key)
	if err != nil {
		return domain.Session{}, false, err
	}
	if len(fields) == 0 {
		return domain.Session{}, false, nil
	}

	rec := fromFields(fields)
	rec.LastActive = s.now().UTC()

	touch := map[string]string{fieldLastActive: rec.LastActive.Format(time.RFC3339Nano)}
	touched, err := s.kv.HashTouch(ctx, key, touch, TTL)
	if err != nil {
		s.logger.Warn("Failed to refresh session",
			logger.String("user_id", userID),
			logger.Error(err),
			logger.CtxField(ctx))
		return rec, true, nil
	}
	if !touched {
		return domain.Session{}, false, nil
	}

	return rec, true, nil
}

// Exists проверяет наличие записи без продления срока жизни
func (s *Store) Exists(ctx context.Context, scope domain.SessionScope, userID string) (bool, error) {
	return s.kv.Exists(ctx, Key(scope, userID))
}

// Delete удаляет запись
func (s *Store) Delete(ctx context.Context, scope domain.SessionScope, userID string) error {
	_, err := s.kv.Delete(ctx, Key(scope, userID))
	return err
}

// PutOneTime сохраняет одноразовый токен, например для подтверждения email
func (s *Store) PutOneTime(ctx context.Context, kind, tok, userID string, ttl time.Duration) error {
	if kind == "" || tok == "" {
		return fmt.Errorf("%w: one-time token kind and value are required", domain.ErrInvalidPrincipal)
	}

	err := connection.WithRetry(ctx, s.retry, func(ctx context.Context) error {
		return s.kv.Set(ctx, OneTimeKey(kind, tok), userID, ttl)
	})
	if err != nil {
		return fmt.Errorf("%w: %w", domain.ErrStoreWriteFailed, err)
	}
	return nil
}

// ConsumeOneTime атомарно забирает одноразовый токен. Второй вызов вернет found=false.
func (s *Store) ConsumeOneTime(ctx context.Context, kind, tok string) (string, bool, error) {
	return s.kv.GetDel(ctx, OneTimeKey(kind, tok))
}
