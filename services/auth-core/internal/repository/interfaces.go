package repository

import (
	"context"

	"AuthCorePlatform/services/auth-core/internal/domain"
)

// AdminActionRepository журнал действий администраторов
type AdminActionRepository interface {
	Save(ctx context.Context, action domain.AdminAction) error
	// ListRecent возвращает последние действия, новые первыми
	ListRecent(ctx context.Context, limit int) ([]domain.AdminAction, error)
	ListByTarget(ctx context.Context, target string, limit int) ([]domain.AdminAction, error)
}
