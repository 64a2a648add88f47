package http

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	apperrors "AuthCorePlatform/pkg/errors"
	"AuthCorePlatform/pkg/logger"
	"AuthCorePlatform/services/auth-core/internal/domain"
)

// actionInfo описание действия в ответе административного API
type actionInfo struct {
	Type        domain.ActionType `json:"type"`
	PerformedBy string            `json:"performedBy"`
	Reason      string            `json:"reason,omitempty"`
	Timestamp   time.Time         `json:"timestamp"`
}

// envelope формат всех ответов административного API
type envelope struct {
	Success bool                   `json:"success"`
	Message string                 `json:"message,omitempty"`
	Error   string                 `json:"error,omitempty"`
	Code    apperrors.ErrorCode    `json:"code,omitempty"`
	Data    map[string]interface{} `json:"data,omitempty"`
	Action  *actionInfo            `json:"action,omitempty"`
}

func actionOf(a domain.AdminAction) *actionInfo {
	return &actionInfo{
		Type:        a.Type,
		PerformedBy: a.PerformedBy,
		Reason:      a.Reason,
		Timestamp:   a.Timestamp,
	}
}

// writeJSON записывает ответ
func (h *Handler) writeJSON(w http.ResponseWriter, status int, body envelope) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		h.logger.Error("Failed to encode response", logger.Error(err))
	}
}

// writeError записывает ошибку в формате конверта
func (h *Handler) writeError(w http.ResponseWriter, err *apperrors.Error, action *actionInfo) {
	message := err.Message
	if err.Details != "" {
		message = message + ": " + err.Details
	}
	h.writeJSON(w, err.HTTPStatus(), envelope{
		Success: false,
		Error:   message,
		Code:    err.Code,
		Action:  action,
	})
}

// mapError переводит ошибку ядра в код ответа.
// notFound задает код для отсутствующей записи: пользователь или запись черного списка.
func mapError(err error, notFound apperrors.ErrorCode) *apperrors.Error {
	if e, ok := apperrors.As(err); ok {
		return e
	}

	switch {
	case errors.Is(err, domain.ErrMalformedToken):
		return apperrors.Wrap(err, apperrors.ErrInvalidToken, "token is malformed")
	case errors.Is(err, domain.ErrInvalidSignature):
		return apperrors.Wrap(err, apperrors.ErrInvalidToken, "token signature is invalid")
	case errors.Is(err, domain.ErrExpiredToken):
		return apperrors.Wrap(err, apperrors.ErrInvalidToken, "token expired")
	case errors.Is(err, domain.ErrInvalidPrincipal):
		return apperrors.Wrap(err, apperrors.ErrInvalidRequest, "invalid principal")
	case errors.Is(err, domain.ErrNotFound):
		if notFound == apperrors.ErrUserNotFound {
			return apperrors.Wrap(err, notFound, "user not found")
		}
		return apperrors.Wrap(err, apperrors.ErrNotFound, "entry not found")
	case errors.Is(err, domain.ErrStoreWriteFailed), errors.Is(err, domain.ErrStoreUnavailable):
		return apperrors.Wrap(err, apperrors.ErrInternal, "revocation store unavailable")
	default:
		return apperrors.Wrap(err, apperrors.ErrInternal, "internal error")
	}
}
