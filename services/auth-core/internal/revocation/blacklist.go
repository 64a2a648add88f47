// Package revocation хранит отозванные токены и наборы активных токенов пользователей.
//
// Запись черного списка адресуется последними 32 символами подписи токена
// и живет не дольше, чем сам токен. Чтение при недоступном хранилище выполняется
// по явно заданной политике OnStoreError, запись повторяется и затем завершается ошибкой.
package revocation

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"AuthCorePlatform/pkg/connection"
	"AuthCorePlatform/pkg/logger"
	"AuthCorePlatform/pkg/metrics"
	"AuthCorePlatform/services/auth-core/internal/domain"
	"AuthCorePlatform/services/auth-core/internal/pkg/base64url"
	"AuthCorePlatform/services/auth-core/internal/pkg/token"
	"AuthCorePlatform/services/auth-core/internal/store"
)

const (
	// KeyPrefix префикс записей черного списка
	KeyPrefix = "blacklist:token:"
	// UserTokensPrefix префикс множеств подписей пользователя
	UserTokensPrefix = "user:tokens:"

	// SignatureIDLength длина идентификатора подписи
	SignatureIDLength = 32

	MinTTL     = 60 * time.Second
	MaxTTL     = 24 * time.Hour
	DefaultTTL = time.Hour
	// UserSetTTL время жизни множества подписей, обновляется при каждом входе
	UserSetTTL = 24 * time.Hour
	// BulkRevokeTTL единый TTL записей при отзыве всех токенов пользователя
	BulkRevokeTTL = 24 * time.Hour
	// ExpiringSoonWindow записи с меньшим остатком считаются истекающими
	ExpiringSoonWindow = time.Hour

	sentinel = "1"
	// entryOverheadBytes примерные накладные расходы Redis на один ключ
	entryOverheadBytes = 64
)

// OnStoreError политика проверки черного списка при недоступном хранилище
type OnStoreError int

const (
	// FailOpen токен считается не отозванным, результат помечается как degraded
	FailOpen OnStoreError = iota
	// FailClosed токен считается отозванным
	FailClosed
)

// String возвращает название политики
func (p OnStoreError) String() string {
	if p == FailClosed {
		return "fail_closed"
	}
	return "fail_open"
}

// CheckResult результат проверки черного списка
type CheckResult struct {
	Blacklisted bool
	// Degraded хранилище не ответило, решение принято по политике
	Degraded bool
	Err      error
	Duration time.Duration
}

// BlacklistStore черный список токенов
type BlacklistStore struct {
	kv      store.Store
	logger  logger.Logger
	metrics *metrics.Metrics
	now     func() time.Time
	retry   connection.RetryConfig
}

// Option настройка BlacklistStore
type Option func(*BlacklistStore)

// WithClock подменяет источник времени
func WithClock(now func() time.Time) Option {
	return func(b *BlacklistStore) {
		b.now = now
	}
}

// WithRetry задает повторные попытки записи
func WithRetry(cfg connection.RetryConfig) Option {
	return func(b *BlacklistStore) {
		b.retry = cfg
	}
}

// WithMetrics подключает метрики проверок
func WithMetrics(m *metrics.Metrics) Option {
	return func(b *BlacklistStore) {
		b.metrics = m
	}
}

// NewBlacklistStore создает черный список поверх хранилища
func NewBlacklistStore(kv store.Store, log logger.Logger, opts ...Option) *BlacklistStore {
	b := &BlacklistStore{
		kv:     kv,
		logger: log,
		now:    time.Now,
		retry:  connection.StoreWriteRetryConfig(3),
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// SignatureOf возвращает идентификатор подписи: последние 32 символа третьего сегмента.
// Сегмент должен быть в канонической base64url форме, иначе один токен имел бы несколько идентификаторов.
func SignatureOf(tok string) (string, error) {
	parts := strings.Split(tok, ".")
	if len(parts) != 3 {
		return "", domain.ErrMalformedToken
	}
	signature := parts[2]
	if len(signature) < SignatureIDLength {
		return "", fmt.Errorf("%w: signature is too short", domain.ErrMalformedToken)
	}
	if _, err := base64url.Decode(signature); err != nil {
		return "", fmt.Errorf("%w: %v", domain.ErrMalformedToken, err)
	}
	return signature[len(signature)-SignatureIDLength:], nil
}

func entryKey(signatureID string) string {
	return KeyPrefix + signatureID
}

func userTokensKey(userID string) string {
	return UserTokensPrefix + userID
}

// TTLFor вычисляет срок хранения записи по остатку жизни токена.
// Подпись не проверяется: отзывают как раз подозрительные токены.
func (b *BlacklistStore) TTLFor(tok string) time.Duration {
	claims, err := token.PeekClaims(tok)
	if err != nil || claims.ExpiresAt == nil {
		return DefaultTTL
	}

	remaining := claims.ExpiresAt.Time.Sub(b.now()).Truncate(time.Second)
	switch {
	case remaining < MinTTL:
		return MinTTL
	case remaining > MaxTTL:
		return MaxTTL
	default:
		return remaining
	}
}

// Blacklist отзывает токен. ttl <= 0 означает расчет по остатку жизни токена.
func (b *BlacklistStore) Blacklist(ctx context.Context, tok string, ttl time.Duration) error {
	signatureID, err := SignatureOf(tok)
	if err != nil {
		return err
	}
	if ttl <= 0 {
		ttl = b.TTLFor(tok)
	}

	err = connection.WithRetry(ctx, b.retry, func(ctx context.Context) error {
		return b.kv.Set(ctx, entryKey(signatureID), sentinel, ttl)
	})
	if err != nil {
		b.logger.Error("Failed to blacklist token",
			logger.String("signature", signatureID),
			logger.Error(err),
			logger.CtxField(ctx))
		return fmt.Errorf("%w: %w", domain.ErrStoreWriteFailed, err)
	}

	b.logger.Debug("Token blacklisted",
		logger.String("signature", signatureID),
		logger.Duration("ttl", ttl))
	return nil
}

// IsBlacklisted проверяет отзыв токена. Недоступность хранилища трактуется как "не отозван".
func (b *BlacklistStore) IsBlacklisted(ctx context.Context, tok string) bool {
	return b.Check(ctx, tok, FailOpen).Blacklisted
}

// Check проверяет отзыв токена с явной политикой на случай отказа хранилища
func (b *BlacklistStore) Check(ctx context.Context, tok string, policy OnStoreError) CheckResult {
	start := time.Now()

	signatureID, err := SignatureOf(tok)
	if err != nil {
		// Токен без подписи не может быть принят, отзывать в нем нечего
		return CheckResult{Err: err, Duration: time.Since(start)}
	}

	exists, err := b.kv.Exists(ctx, entryKey(signatureID))
	result := CheckResult{Duration: time.Since(start)}
	if err != nil {
		result.Degraded = true
		result.Err = fmt.Errorf("%w: %w", domain.ErrStoreReadDegraded, err)
		result.Blacklisted = policy == FailClosed
		b.metrics.IncBlacklistCheck("degraded")
		b.logger.Warn("Blacklist check degraded",
			logger.String("policy", policy.String()),
			logger.Duration("duration", result.Duration),
			logger.Error(err),
			logger.CtxField(ctx))
		return result
	}

	result.Blacklisted = exists
	if exists {
		b.metrics.IncBlacklistCheck("blacklisted")
	} else {
		b.metrics.IncBlacklistCheck("clear")
	}
	return result
}

// Track добавляет подпись токена в множество пользователя.
// Ошибки только логируются: вход пользователя не должен от них зависеть.
func (b *BlacklistStore) Track(ctx context.Context, userID, tok string) {
	signatureID, err := SignatureOf(tok)
	if err != nil {
		b.logger.Warn("Skip tracking malformed token", logger.String("user_id", userID), logger.Error(err))
		return
	}

	if err := b.kv.SetAdd(ctx, userTokensKey(userID), UserSetTTL, signatureID); err != nil {
		b.logger.Warn("Failed to track user token",
			logger.String("user_id", userID),
			logger.Error(err),
			logger.CtxField(ctx))
	}
}

// Tracked возвращает подписи, отслеживаемые для пользователя
func (b *BlacklistStore) Tracked(ctx context.Context, userID string) ([]string, error) {
	return b.kv.SetMembers(ctx, userTokensKey(userID))
}

// HasTracked сообщает, есть ли у пользователя отслеживаемые токены
func (b *BlacklistStore) HasTracked(ctx context.Context, userID string) (bool, error) {
	return b.kv.Exists(ctx, userTokensKey(userID))
}

// BlacklistAll отзывает все отслеживаемые токены пользователя одним атомарным шагом
// и очищает множество. Повторный вызов безопасен и вернет 0.
func (b *BlacklistStore) BlacklistAll(ctx context.Context, userID, reason string) (int, error) {
	var count int
	err := connection.WithRetry(ctx, b.retry, func(ctx context.Context) error {
		n, err := b.kv.RevokeSet(ctx, userTokensKey(userID), KeyPrefix, sentinel, BulkRevokeTTL)
		if err != nil {
			return err
		}
		count = n
		return nil
	})
	if err != nil {
		b.logger.Error("Failed to blacklist user tokens",
			logger.String("user_id", userID),
			logger.Error(err),
			logger.CtxField(ctx))
		return 0, fmt.Errorf("%w: %w", domain.ErrStoreWriteFailed, err)
	}

	b.logger.Info("User tokens blacklisted",
		logger.String("user_id", userID),
		logger.Int("count", count),
		logger.String("reason", reason))
	return count, nil
}

// Unblacklist удаляет запись и сообщает, существовала ли она
func (b *BlacklistStore) Unblacklist(ctx context.Context, tok string) (bool, error) {
	signatureID, err := SignatureOf(tok)
	if err != nil {
		return false, err
	}

	var removed int64
	err = connection.WithRetry(ctx, b.retry, func(ctx context.Context) error {
		n, err := b.kv.Delete(ctx, entryKey(signatureID))
		if err != nil {
			return err
		}
		removed = n
		return nil
	})
	if err != nil {
		return false, fmt.Errorf("%w: %w", domain.ErrStoreWriteFailed, err)
	}
	return removed > 0, nil
}

// RemainingTTL возвращает остаток жизни записи для токена
func (b *BlacklistStore) RemainingTTL(ctx context.Context, tok string) (time.Duration, bool, error) {
	signatureID, err := SignatureOf(tok)
	if err != nil {
		return 0, false, err
	}
	infos, err := b.kv.Inspect(ctx, []string{entryKey(signatureID)})
	if err != nil {
		return 0, false, err
	}
	if len(infos) == 0 || !infos[0].Exists {
		return 0, false, nil
	}
	return infos[0].TTL, true, nil
}

// Stats перечисляет записи черного списка и оценивает занимаемую память
func (b *BlacklistStore) Stats(ctx context.Context) (domain.BlacklistStats, error) {
	keys, err := b.kv.ScanKeys(ctx, KeyPrefix+"*")
	if err != nil {
		return domain.BlacklistStats{}, err
	}

	infos, err := b.kv.Inspect(ctx, keys)
	if err != nil {
		return domain.BlacklistStats{}, err
	}

	var stats domain.BlacklistStats
	for _, info := range infos {
		if !info.Exists {
			continue
		}
		stats.Total++
		if info.TTL >= 0 && info.TTL <= ExpiringSoonWindow {
			stats.ExpiringSoon++
		}
		stats.ApproxMemoryBytes += int64(len(info.Key)) + info.Size + entryOverheadBytes
	}
	stats.ApproxMemory = FormatBytes(stats.ApproxMemoryBytes)

	b.metrics.SetBlacklistSize(stats.Total, stats.ExpiringSoon)
	return stats, nil
}

// FormatBytes форматирует размер в человекочитаемый вид
func FormatBytes(n int64) string {
	const unit = 1024
	if n < unit {
		return fmt.Sprintf("%d B", n)
	}
	div, exp := int64(unit), 0
	for v := n / unit; v >= unit; v /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %cB", float64(n)/float64(div), "KMGT"[exp])
}

// IsStoreError сообщает, что ошибка вызвана хранилищем, а не токеном
func IsStoreError(err error) bool {
	return errors.Is(err, domain.ErrStoreUnavailable) ||
		errors.Is(err, domain.ErrStoreWriteFailed) ||
		errors.Is(err, domain.ErrStoreReadDegraded)
}
