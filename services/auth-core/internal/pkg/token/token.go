package token

import (
	"crypto/sha256"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"AuthCorePlatform/services/auth-core/internal/domain"
	"AuthCorePlatform/services/auth-core/internal/pkg/base64url"
)

// Lifetime срок жизни токена: exp всегда ровно iat + 23 часа
const Lifetime = 23 * time.Hour

// MinSignatureBytes минимальная длина декодированной подписи HS256
const MinSignatureBytes = sha256.Size

// Claims содержимое токена
type Claims struct {
	UserID       string           `json:"id"`
	Email        string           `json:"email"`
	Username     string           `json:"username"`
	Role         domain.Role      `json:"role"`
	AdminRole    domain.AdminRole `json:"adminRole,omitempty"`
	AdvertiserID string           `json:"advertiserId,omitempty"`
	jwt.RegisteredClaims
}

// Principal восстанавливает субъекта из токена
func (c *Claims) Principal() domain.Principal {
	return domain.Principal{
		ID:           c.UserID,
		Email:        c.Email,
		Username:     c.Username,
		Role:         c.Role,
		AdminRole:    c.AdminRole,
		AdvertiserID: c.AdvertiserID,
	}
}

// Service интерфейс выпуска и проверки токенов
type Service interface {
	Mint(principal domain.Principal) (string, *Claims, error)
	Verify(token string) (*Claims, error)
	IsLive(claims *Claims) bool
	Validate(token string) (*Claims, error)
}

// Manager реализация Service на HMAC-SHA256
type Manager struct {
	secret []byte
	now    func() time.Time
	parser *jwt.Parser
}

// Option настройка Manager
type Option func(*Manager)

// WithClock подменяет источник времени
func WithClock(now func() time.Time) Option {
	return func(m *Manager) {
		m.now = now
	}
}

// NewManager создает новый экземпляр менеджера токенов
func NewManager(secret string, opts ...Option) (*Manager, error) {
	if secret == "" {
		return nil, errors.New("token secret is required")
	}

	m := &Manager{
		secret: []byte(secret),
		now:    time.Now,
		// Срок действия проверяется отдельно в IsLive
		parser: jwt.NewParser(
			jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
			jwt.WithoutClaimsValidation(),
			jwt.WithStrictDecoding(),
		),
	}
	for _, opt := range opts {
		opt(m)
	}

	return m, nil
}

// Mint выпускает токен для субъекта
func (m *Manager) Mint(principal domain.Principal) (string, *Claims, error) {
	if err := principal.Validate(); err != nil {
		return "", nil, err
	}

	issuedAt := m.now().UTC().Truncate(time.Second)
	claims := &Claims{
		UserID:       principal.ID,
		Email:        principal.Email,
		Username:     principal.Username,
		Role:         principal.Role,
		AdminRole:    principal.AdminRole,
		AdvertiserID: principal.AdvertiserID,
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt:  jwt.NewNumericDate(issuedAt),
			ExpiresAt: jwt.NewNumericDate(issuedAt.Add(Lifetime)),
		},
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(m.secret)
	if err != nil {
		return "", nil, fmt.Errorf("failed to sign token: %w", err)
	}

	return signed, claims, nil
}

// Verify проверяет подпись и возвращает содержимое токена.
// Срок действия не проверяется.
func (m *Manager) Verify(token string) (*Claims, error) {
	parts := strings.Split(token, ".")
	if len(parts) != 3 {
		return nil, domain.ErrMalformedToken
	}

	signature, err := base64url.Decode(parts[2])
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrMalformedToken, err)
	}
	if len(signature) < MinSignatureBytes {
		return nil, domain.ErrInvalidSignature
	}

	claims := &Claims{}
	_, err = m.parser.ParseWithClaims(token, claims, func(*jwt.Token) (interface{}, error) {
		return m.secret, nil
	})
	if err != nil {
		switch {
		case errors.Is(err, jwt.ErrTokenSignatureInvalid), errors.Is(err, jwt.ErrTokenUnverifiable):
			return nil, fmt.Errorf("%w: %v", domain.ErrInvalidSignature, err)
		default:
			return nil, fmt.Errorf("%w: %v", domain.ErrMalformedToken, err)
		}
	}

	return claims, nil
}

// IsLive сообщает, что срок действия еще не наступил. Токен без exp считается недействительным.
func (m *Manager) IsLive(claims *Claims) bool {
	if claims == nil || claims.ExpiresAt == nil {
		return false
	}
	return m.now().Before(claims.ExpiresAt.Time)
}

// Validate проверяет подпись и срок действия
func (m *Manager) Validate(token string) (*Claims, error) {
	claims, err := m.Verify(token)
	if err != nil {
		return nil, err
	}
	if !m.IsLive(claims) {
		return nil, domain.ErrExpiredToken
	}
	return claims, nil
}

// PeekClaims читает содержимое токена без проверки подписи.
// Используется только там, где токен уже считается подозрительным, например при отзыве.
func PeekClaims(token string) (*Claims, error) {
	claims := &Claims{}
	if _, _, err := jwt.NewParser().ParseUnverified(token, claims); err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrMalformedToken, err)
	}
	return claims, nil
}
