package middleware

import (
	"context"

	"AuthCorePlatform/services/auth-core/internal/domain"
	"AuthCorePlatform/services/auth-core/internal/service"
)

type contextKey int

const (
	authenticationKey contextKey = iota
	localeKey
)

// WithAuthentication кладет результат аутентификации в контекст
func WithAuthentication(ctx context.Context, auth *service.Authentication) context.Context {
	return context.WithValue(ctx, authenticationKey, auth)
}

// AuthenticationFrom достает результат аутентификации из контекста
func AuthenticationFrom(ctx context.Context) (*service.Authentication, bool) {
	auth, ok := ctx.Value(authenticationKey).(*service.Authentication)
	return auth, ok && auth != nil
}

// PrincipalFrom возвращает субъекта текущего запроса
func PrincipalFrom(ctx context.Context) (domain.Principal, bool) {
	auth, ok := AuthenticationFrom(ctx)
	if !ok {
		return domain.Principal{}, false
	}
	return auth.Principal, true
}

// LocaleFrom возвращает локаль, определенную по пути
func LocaleFrom(ctx context.Context) string {
	locale, _ := ctx.Value(localeKey).(string)
	return locale
}
