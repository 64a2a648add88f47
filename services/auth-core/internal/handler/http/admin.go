package http

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strings"

	apperrors "AuthCorePlatform/pkg/errors"
	"AuthCorePlatform/pkg/logger"
	"AuthCorePlatform/services/auth-core/internal/audit"
	"AuthCorePlatform/services/auth-core/internal/domain"
	"AuthCorePlatform/services/auth-core/internal/revocation"
)

const (
	resultSuccess      = "success"
	resultFailed       = "failed"
	resultForbidden    = "forbidden"
	resultUnauthorized = "unauthorized"
	resultRateLimited  = "rate_limited"

	maxReasonLength = 500
	maxBodyBytes    = 64 << 10
)

// adminHandlerFunc получает подготовленную запись действия с типом и исполнителем
type adminHandlerFunc func(w http.ResponseWriter, r *http.Request, admin domain.Principal, action domain.AdminAction)

// tokenRequest тело запросов с токеном
type tokenRequest struct {
	Token  string `json:"token"`
	Reason string `json:"reason"`
}

// userRequest тело запроса отзыва всех токенов пользователя
type userRequest struct {
	UserID string `json:"userId"`
	Reason string `json:"reason"`
}

// handleAdmin проверяет токен, роль и лимит запросов администратора.
// Административный API аутентифицирует запросы сам: шлюз пропускает /admin/auth/.
// Каждый ответ, включая отказы, содержит описание действия.
func (h *Handler) handleAdmin(actionType domain.ActionType, next adminHandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		auth, err := h.auth.ResolvePrincipal(r)
		if err != nil {
			action := audit.NewAction(actionType, "", "", "")
			h.metrics.IncAdminAction(string(actionType), resultUnauthorized)
			h.writeError(w, apperrors.Wrap(err, apperrors.ErrUnauthorized, "authentication required"), actionOf(action))
			return
		}

		admin := auth.Principal
		action := audit.NewAction(actionType, admin.ID, "", "")
		if admin.Role != domain.RoleAdmin {
			h.logger.Warn("Admin API access denied",
				logger.String("user_id", admin.ID),
				logger.String("role", string(admin.Role)),
				logger.String("path", r.URL.Path),
				logger.CtxField(r.Context()))
			h.forbid(w, r, action, "admin role required")
			return
		}

		exceeded, err := h.limiter.CheckRateLimit(r.Context(), "admin:"+admin.ID, h.adminLimit, h.adminWindow)
		if err != nil {
			h.logger.Error("Rate limiter error, allowing request",
				logger.Error(err),
				logger.String("user_id", admin.ID))
		} else if exceeded {
			h.metrics.IncAdminAction(string(actionType), resultRateLimited)
			h.writeError(w, apperrors.New(apperrors.ErrTooManyRequests, "too many admin requests"), actionOf(action))
			return
		}

		next(w, r, admin, action)
	}
}

// handleBlacklistStats возвращает сводку по черному списку
func (h *Handler) handleBlacklistStats(w http.ResponseWriter, r *http.Request, _ domain.Principal, action domain.AdminAction) {
	if r.Method != http.MethodGet && r.Method != http.MethodPost {
		h.methodNotAllowed(w, r, action, http.MethodGet, http.MethodPost)
		return
	}

	stats, err := h.auth.BlacklistStats(r.Context())
	if err != nil {
		h.fail(w, r, action, mapError(err, apperrors.ErrNotFound))
		return
	}

	h.succeed(w, r, action, "Blacklist statistics retrieved", map[string]interface{}{
		"stats": stats,
	})
}

// handleBlacklistToken отзывает конкретный токен
func (h *Handler) handleBlacklistToken(w http.ResponseWriter, r *http.Request, _ domain.Principal, action domain.AdminAction) {
	if r.Method != http.MethodPost {
		h.methodNotAllowed(w, r, action, http.MethodPost)
		return
	}

	var req tokenRequest
	if err := h.decode(r, &req); err != nil {
		h.writeError(w, err, actionOf(action))
		return
	}
	action.Reason = strings.TrimSpace(req.Reason)
	if err := h.validate(map[string]string{"token": req.Token}, map[string]string{"token": "Token"}, req.Reason); err != nil {
		h.writeError(w, err, actionOf(action))
		return
	}

	signature, err := revocation.SignatureOf(req.Token)
	if err != nil {
		h.fail(w, r, action, mapError(err, apperrors.ErrNotFound))
		return
	}
	action.Target = signature

	claims, err := h.auth.RevokeToken(r.Context(), req.Token)
	if err != nil {
		h.fail(w, r, action, mapError(err, apperrors.ErrNotFound))
		return
	}
	action.Count = 1

	data := map[string]interface{}{"userId": claims.UserID}
	if claims.ExpiresAt != nil {
		data["expiresAt"] = claims.ExpiresAt.Time
	}
	h.succeed(w, r, action, "Token blacklisted", data)
}

// handleBlacklistUserTokens отзывает все токены пользователя.
// Отзыв собственных токенов разрешен только суперадминистратору.
func (h *Handler) handleBlacklistUserTokens(w http.ResponseWriter, r *http.Request, admin domain.Principal, action domain.AdminAction) {
	if r.Method != http.MethodPost {
		h.methodNotAllowed(w, r, action, http.MethodPost)
		return
	}

	var req userRequest
	if err := h.decode(r, &req); err != nil {
		h.writeError(w, err, actionOf(action))
		return
	}
	action.Reason = strings.TrimSpace(req.Reason)
	if err := h.validate(map[string]string{"userId": req.UserID}, map[string]string{"userId": "User ID"}, req.Reason); err != nil {
		h.writeError(w, err, actionOf(action))
		return
	}
	if err := h.validator.ValidateIdentifier(req.UserID, "userId"); err != nil {
		h.writeError(w, apperrors.Wrap(err, apperrors.ErrInvalidRequest, "invalid request").WithDetails(err.Error()), actionOf(action))
		return
	}
	action.Target = req.UserID

	if req.UserID == admin.ID && !admin.IsSuperadmin() {
		h.forbid(w, r, action, "only superadmin can revoke own tokens")
		return
	}

	count, err := h.auth.RevokeAllForUser(r.Context(), req.UserID, action.Reason)
	if err != nil {
		h.fail(w, r, action, mapError(err, apperrors.ErrUserNotFound))
		return
	}
	action.Count = count

	h.succeed(w, r, action, "User tokens blacklisted", map[string]interface{}{
		"userId":  req.UserID,
		"revoked": count,
	})
}

// handleUnblacklistToken восстанавливает токен. Только для суперадминистратора.
func (h *Handler) handleUnblacklistToken(w http.ResponseWriter, r *http.Request, admin domain.Principal, action domain.AdminAction) {
	if r.Method != http.MethodPost {
		h.methodNotAllowed(w, r, action, http.MethodPost)
		return
	}

	var req tokenRequest
	if err := h.decode(r, &req); err != nil {
		h.writeError(w, err, actionOf(action))
		return
	}
	action.Reason = strings.TrimSpace(req.Reason)
	if err := h.validate(map[string]string{"token": req.Token}, map[string]string{"token": "Token"}, req.Reason); err != nil {
		h.writeError(w, err, actionOf(action))
		return
	}

	if !admin.IsSuperadmin() {
		h.forbid(w, r, action, "superadmin role required")
		return
	}

	signature, err := revocation.SignatureOf(req.Token)
	if err != nil {
		h.fail(w, r, action, mapError(err, apperrors.ErrNotFound))
		return
	}
	action.Target = signature

	if err := h.auth.RestoreToken(r.Context(), req.Token); err != nil {
		h.fail(w, r, action, mapError(err, apperrors.ErrNotFound))
		return
	}
	action.Count = 1

	h.succeed(w, r, action, "Token removed from blacklist", nil)
}

// decode читает тело запроса
func (h *Handler) decode(r *http.Request, dst interface{}) *apperrors.Error {
	if err := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes)).Decode(dst); err != nil {
		return apperrors.Wrap(err, apperrors.ErrInvalidRequest, "invalid request body")
	}
	return nil
}

// validate проверяет обязательные поля и длину причины
func (h *Handler) validate(fields, required map[string]string, reason string) *apperrors.Error {
	if err := h.validator.ValidateRequiredFields(fields, required); err != nil {
		return apperrors.Wrap(err, apperrors.ErrInvalidRequest, "invalid request").WithDetails(err.Error())
	}
	if err := h.validator.ValidateStringLength(reason, "reason", 0, maxReasonLength); err != nil {
		return apperrors.Wrap(err, apperrors.ErrInvalidRequest, "invalid request").WithDetails(err.Error())
	}
	return nil
}

func (h *Handler) methodNotAllowed(w http.ResponseWriter, r *http.Request, action domain.AdminAction, allowed ...string) {
	w.Header().Set("Allow", strings.Join(allowed, ", "))
	h.writeJSON(w, http.StatusMethodNotAllowed, envelope{
		Success: false,
		Error:   "method " + r.Method + " not allowed",
		Code:    apperrors.ErrInvalidRequest,
		Action:  actionOf(action),
	})
}

func (h *Handler) forbid(w http.ResponseWriter, r *http.Request, action domain.AdminAction, message string) {
	h.finish(r.Context(), action, resultForbidden)
	h.writeError(w, apperrors.New(apperrors.ErrForbidden, message), actionOf(action))
}

func (h *Handler) fail(w http.ResponseWriter, r *http.Request, action domain.AdminAction, err *apperrors.Error) {
	if err.Code == apperrors.ErrInternal {
		h.logger.Error("Admin action failed",
			logger.String("type", string(action.Type)),
			logger.String("performed_by", action.PerformedBy),
			logger.Error(err),
			logger.CtxField(r.Context()))
	}
	h.finish(r.Context(), action, resultFailed)
	h.writeError(w, err, actionOf(action))
}

func (h *Handler) succeed(w http.ResponseWriter, r *http.Request, action domain.AdminAction, message string, data map[string]interface{}) {
	h.finish(r.Context(), action, resultSuccess)
	h.writeJSON(w, http.StatusOK, envelope{
		Success: true,
		Message: message,
		Data:    data,
		Action:  actionOf(action),
	})
}

// finish записывает действие в журнал аудита и в метрики
func (h *Handler) finish(ctx context.Context, action domain.AdminAction, result string) {
	action.Result = result
	if err := h.audit.Record(ctx, action); err != nil {
		h.logger.Error("Failed to record admin action",
			logger.String("action_id", action.ID),
			logger.Error(err),
			logger.CtxField(ctx))
	}
	h.metrics.IncAdminAction(string(action.Type), result)
}
