package middleware

import (
	"net/http"
	"strconv"
	"time"
)

// LoopCookieName cookie счетчика последовательных перенаправлений
const LoopCookieName = "redirect_count"

// Cookies параметры cookie с токеном
type Cookies struct {
	Name   string
	Domain string
	MaxAge time.Duration
	Secure bool
	// LoopTTL время жизни счетчика перенаправлений
	LoopTTL time.Duration
}

func (c Cookies) cookie(name, value string, maxAge int) *http.Cookie {
	return &http.Cookie{
		Name:     name,
		Value:    value,
		Path:     "/",
		Domain:   c.Domain,
		MaxAge:   maxAge,
		HttpOnly: true,
		Secure:   c.Secure,
		SameSite: http.SameSiteLaxMode,
	}
}

// SetToken устанавливает cookie с токеном
func (c Cookies) SetToken(w http.ResponseWriter, tok string) {
	http.SetCookie(w, c.cookie(c.Name, tok, int(c.MaxAge/time.Second)))
}

// ClearToken удаляет cookie с токеном
func (c Cookies) ClearToken(w http.ResponseWriter) {
	http.SetCookie(w, c.cookie(c.Name, "", -1))
}

// LoopCount возвращает значение счетчика перенаправлений
func LoopCount(r *http.Request) int {
	cookie, err := r.Cookie(LoopCookieName)
	if err != nil {
		return 0
	}
	n, err := strconv.Atoi(cookie.Value)
	if err != nil || n < 0 {
		return 0
	}
	return n
}

// SetLoopCount записывает счетчик перенаправлений
func (c Cookies) SetLoopCount(w http.ResponseWriter, n int) {
	ttl := c.LoopTTL
	if ttl <= 0 {
		ttl = time.Minute
	}
	http.SetCookie(w, c.cookie(LoopCookieName, strconv.Itoa(n), int(ttl/time.Second)))
}

// ClearLoopCount сбрасывает счетчик, если он был установлен
func (c Cookies) ClearLoopCount(w http.ResponseWriter, r *http.Request) {
	if _, err := r.Cookie(LoopCookieName); err != nil {
		return
	}
	http.SetCookie(w, c.cookie(LoopCookieName, "", -1))
}
