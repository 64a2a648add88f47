package http

import (
	"errors"
	"net/http"

	apperrors "AuthCorePlatform/pkg/errors"
	"AuthCorePlatform/pkg/logger"
	"AuthCorePlatform/services/auth-core/internal/audit"
	"AuthCorePlatform/services/auth-core/internal/domain"
	"AuthCorePlatform/services/auth-core/internal/middleware"
	"AuthCorePlatform/services/auth-core/internal/pkg/token"
	"AuthCorePlatform/services/auth-core/internal/service"
)

// handleLogout отзывает предъявленный токен и удаляет cookie.
// Cookie удаляется всегда, но отказ записи в черный список возвращается клиенту как ошибка.
func (h *Handler) handleLogout(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		h.methodNotAllowed(w, r, domain.AdminAction{}, http.MethodPost)
		return
	}

	tok, _ := service.TokenFromRequest(r, h.cookies.Name)
	h.cookies.ClearToken(w)

	if tok == "" {
		h.writeJSON(w, http.StatusOK, envelope{Success: true, Message: "Already logged out"})
		return
	}

	err := h.auth.Logout(r.Context(), tok)
	switch {
	case err == nil:
	case errors.Is(err, domain.ErrMalformedToken), errors.Is(err, domain.ErrInvalidSignature):
		// Поддельный токен отзывать незачем, клиент уже без cookie
		h.logger.Debug("Logout with invalid token", logger.Error(err), logger.CtxField(r.Context()))
		h.writeJSON(w, http.StatusOK, envelope{Success: true, Message: "Logged out"})
		return
	default:
		h.logger.Error("Logout failed", logger.Error(err), logger.CtxField(r.Context()))
		h.writeError(w, mapError(err, apperrors.ErrNotFound), nil)
		return
	}

	var userID string
	if claims, err := token.PeekClaims(tok); err == nil {
		userID = claims.UserID
	}
	action := audit.NewAction(domain.ActionLogout, userID, userID, "")
	h.finish(r.Context(), action, resultSuccess)

	h.writeJSON(w, http.StatusOK, envelope{Success: true, Message: "Logged out", Action: actionOf(action)})
}

// handleSession возвращает запись сессии текущего субъекта
func (h *Handler) handleSession(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		h.methodNotAllowed(w, r, domain.AdminAction{}, http.MethodGet)
		return
	}

	auth, ok := middleware.AuthenticationFrom(r.Context())
	if !ok {
		h.writeError(w, apperrors.New(apperrors.ErrUnauthorized, "authentication required"), nil)
		return
	}

	sess, found, err := h.auth.CurrentSession(r.Context(), auth)
	if err != nil {
		h.writeError(w, mapError(err, apperrors.ErrNotFound), nil)
		return
	}
	if !found {
		h.writeError(w, apperrors.New(apperrors.ErrNotFound, "session not found"), nil)
		return
	}

	h.writeJSON(w, http.StatusOK, envelope{
		Success: true,
		Data: map[string]interface{}{
			"session":   sess,
			"expiresAt": auth.Claims.ExpiresAt,
			"degraded":  auth.Degraded,
		},
	})
}
