package domain

import "errors"

// Ошибки ядра аутентификации. Шлюз превращает любую из них в одно из трех решений,
// административный API отображает их в коды pkg/errors.
var (
	// ErrMalformedToken токен не состоит из трех сегментов или не декодируется
	ErrMalformedToken = errors.New("malformed token")
	// ErrInvalidSignature подпись не совпадает или слишком короткая
	ErrInvalidSignature = errors.New("invalid token signature")
	// ErrExpiredToken срок действия токена истек
	ErrExpiredToken = errors.New("token expired")
	// ErrBlacklisted токен отозван
	ErrBlacklisted = errors.New("token is blacklisted")
	// ErrStoreUnavailable хранилище недоступно или не ответило за отведенное время
	ErrStoreUnavailable = errors.New("store unavailable")
	// ErrStoreReadDegraded проверка черного списка не выполнена, запрос пропущен
	ErrStoreReadDegraded = errors.New("store read degraded")
	// ErrStoreWriteFailed запись об отзыве или сессии не сохранена
	ErrStoreWriteFailed = errors.New("store write failed")
	// ErrRoleMismatch роль токена не подходит для пространства маршрутов
	ErrRoleMismatch = errors.New("role mismatch")
	// ErrNotFound запись не найдена
	ErrNotFound = errors.New("not found")
	// ErrInvalidPrincipal данные субъекта не согласованы
	ErrInvalidPrincipal = errors.New("invalid principal")
)
