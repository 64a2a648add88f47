package service

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"AuthCorePlatform/pkg/logger"
	"AuthCorePlatform/services/auth-core/internal/domain"
	"AuthCorePlatform/services/auth-core/internal/pkg/token"
	"AuthCorePlatform/services/auth-core/internal/revocation"
	"AuthCorePlatform/services/auth-core/internal/routing"
	"AuthCorePlatform/services/auth-core/internal/session"
)

// ErrNoToken запрос не содержит токена
var ErrNoToken = errors.New("no token presented")

// Issued результат входа
type Issued struct {
	Token   string
	Claims  *token.Claims
	Session domain.Session
}

// Authentication результат проверки токена
type Authentication struct {
	Token     string
	Claims    *token.Claims
	Principal domain.Principal
	// Degraded черный список не проверен из-за отказа хранилища
	Degraded bool
	// BlacklistCheck время проверки черного списка
	BlacklistCheck time.Duration
}

// AuthService интерфейс ядра аутентификации для остальных частей системы
type AuthService interface {
	IssueSession(ctx context.Context, principal domain.Principal) (*Issued, error)
	Authenticate(ctx context.Context, tok string) (*Authentication, error)
	ResolvePrincipal(r *http.Request) (*Authentication, error)
	CurrentSession(ctx context.Context, auth *Authentication) (domain.Session, bool, error)
	Logout(ctx context.Context, tok string) error
	RevokeToken(ctx context.Context, tok string) (*token.Claims, error)
	RevokeAllForUser(ctx context.Context, userID, reason string) (int, error)
	RestoreToken(ctx context.Context, tok string) error
	BlacklistStats(ctx context.Context) (domain.BlacklistStats, error)
	IsPermitted(path string, claims *token.Claims) bool
}

// Service реализация AuthService
type Service struct {
	tokens     token.Service
	blacklist  *revocation.BlacklistStore
	sessions   *session.Store
	router     *routing.Router
	cookieName string
	logger     logger.Logger
}

// NewAuthService создает новый экземпляр Service
func NewAuthService(
	tokens token.Service,
	blacklist *revocation.BlacklistStore,
	sessions *session.Store,
	router *routing.Router,
	cookieName string,
	log logger.Logger,
) *Service {
	return &Service{
		tokens:     tokens,
		blacklist:  blacklist,
		sessions:   sessions,
		router:     router,
		cookieName: cookieName,
		logger:     log,
	}
}

// TokenFromRequest извлекает токен из cookie или заголовка Authorization.
// fromCookie сообщает, что токен взят из cookie.
func TokenFromRequest(r *http.Request, cookieName string) (tok string, fromCookie bool) {
	if cookie, err := r.Cookie(cookieName); err == nil && cookie.Value != "" {
		return cookie.Value, true
	}

	authHeader := r.Header.Get("Authorization")
	if len(authHeader) > 7 && strings.EqualFold(authHeader[:7], "Bearer ") {
		return strings.TrimSpace(authHeader[7:]), false
	}
	return "", false
}

// IssueSession выпускает токен и создает сессию.
// Отказ записи сессии прерывает вход, отслеживание токена выполняется по возможности.
func (s *Service) IssueSession(ctx context.Context, principal domain.Principal) (*Issued, error) {
	tok, claims, err := s.tokens.Mint(principal)
	if err != nil {
		return nil, err
	}

	rec := domain.SessionFromPrincipal(principal, claims.IssuedAt.Time)
	if err := s.sessions.Put(ctx, rec); err != nil {
		return nil, fmt.Errorf("failed to store session: %w", err)
	}

	s.blacklist.Track(ctx, principal.ID, tok)

	s.logger.Info("Session issued",
		logger.String("user_id", principal.ID),
		logger.String("role", string(principal.Role)),
		logger.CtxField(ctx))

	return &Issued{Token: tok, Claims: claims, Session: rec}, nil
}

// Authenticate проверяет подпись, срок действия и отзыв токена.
// Недоступность черного списка не блокирует запрос, результат помечается Degraded.
func (s *Service) Authenticate(ctx context.Context, tok string) (*Authentication, error) {
	if tok == "" {
		return nil, ErrNoToken
	}

	claims, err := s.tokens.Verify(tok)
	if err != nil {
		return nil, err
	}
	if !s.tokens.IsLive(claims) {
		return nil, domain.ErrExpiredToken
	}

	check := s.blacklist.Check(ctx, tok, revocation.FailOpen)
	if check.Blacklisted {
		return nil, domain.ErrBlacklisted
	}

	return &Authentication{
		Token:          tok,
		Claims:         claims,
		Principal:      claims.Principal(),
		Degraded:       check.Degraded,
		BlacklistCheck: check.Duration,
	}, nil
}

// ResolvePrincipal определяет субъекта по запросу
func (s *Service) ResolvePrincipal(r *http.Request) (*Authentication, error) {
	tok, _ := TokenFromRequest(r, s.cookieName)
	return s.Authenticate(r.Context(), tok)
}

// CurrentSession возвращает запись сессии субъекта и продлевает ее
func (s *Service) CurrentSession(ctx context.Context, auth *Authentication) (domain.Session, bool, error) {
	return s.sessions.Get(ctx, domain.ScopeFor(auth.Principal.Role), auth.Principal.ID)
}

// Logout отзывает токен и удаляет сессию.
// Ошибка записи в черный список возвращается: выход без отзыва не считается выполненным.
func (s *Service) Logout(ctx context.Context, tok string) error {
	claims, err := s.tokens.Verify(tok)
	if err != nil {
		return err
	}

	if err := s.blacklist.Blacklist(ctx, tok, 0); err != nil {
		return err
	}

	principal := claims.Principal()
	if err := s.sessions.Delete(ctx, domain.ScopeFor(principal.Role), principal.ID); err != nil {
		s.logger.Warn("Failed to delete session on logout",
			logger.String("user_id", principal.ID),
			logger.Error(err),
			logger.CtxField(ctx))
	}

	s.logger.Info("User logged out", logger.String("user_id", principal.ID), logger.CtxField(ctx))
	return nil
}

// RevokeToken отзывает конкретный токен. Токен с неверной подписью не принимается,
// истекший токен допускается.
func (s *Service) RevokeToken(ctx context.Context, tok string) (*token.Claims, error) {
	claims, err := s.tokens.Verify(tok)
	if err != nil {
		return nil, err
	}
	if err := s.blacklist.Blacklist(ctx, tok, 0); err != nil {
		return nil, err
	}
	return claims, nil
}

// RevokeAllForUser отзывает все отслеживаемые токены пользователя и удаляет его сессии.
// Пользователь без сессий и без отслеживаемых токенов считается неизвестным.
func (s *Service) RevokeAllForUser(ctx context.Context, userID, reason string) (int, error) {
	known, err := s.userKnown(ctx, userID)
	if err != nil {
		return 0, err
	}
	if !known {
		return 0, fmt.Errorf("user %s: %w", userID, domain.ErrNotFound)
	}

	count, err := s.blacklist.BlacklistAll(ctx, userID, reason)
	if err != nil {
		return 0, err
	}

	for _, scope := range []domain.SessionScope{domain.ScopeUser, domain.ScopeAdmin} {
		if err := s.sessions.Delete(ctx, scope, userID); err != nil {
			s.logger.Warn("Failed to delete session after revocation",
				logger.String("user_id", userID),
				logger.String("scope", string(scope)),
				logger.Error(err))
		}
	}

	return count, nil
}

func (s *Service) userKnown(ctx context.Context, userID string) (bool, error) {
	tracked, err := s.blacklist.HasTracked(ctx, userID)
	if err != nil || tracked {
		return tracked, err
	}
	for _, scope := range []domain.SessionScope{domain.ScopeUser, domain.ScopeAdmin} {
		found, err := s.sessions.Exists(ctx, scope, userID)
		if err != nil {
			return false, err
		}
		if found {
			return true, nil
		}
	}
	return false, nil
}

// RestoreToken удаляет токен из черного списка
func (s *Service) RestoreToken(ctx context.Context, tok string) error {
	existed, err := s.blacklist.Unblacklist(ctx, tok)
	if err != nil {
		return err
	}
	if !existed {
		return fmt.Errorf("blacklist entry: %w", domain.ErrNotFound)
	}
	return nil
}

// BlacklistStats возвращает сводку по черному списку
func (s *Service) BlacklistStats(ctx context.Context) (domain.BlacklistStats, error) {
	return s.blacklist.Stats(ctx)
}

// IsPermitted сообщает, разрешен ли путь владельцу токена. nil означает анонимный запрос.
func (s *Service) IsPermitted(path string, claims *token.Claims) bool {
	if claims == nil {
		return s.router.Permitted(path, nil)
	}
	principal := claims.Principal()
	return s.router.Permitted(path, &principal)
}
