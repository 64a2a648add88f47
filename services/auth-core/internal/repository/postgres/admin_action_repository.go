package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"AuthCorePlatform/services/auth-core/internal/domain"
	"AuthCorePlatform/services/auth-core/internal/repository"
)

// Migrations создают таблицу журнала действий администраторов
var Migrations = []string{
	`CREATE TABLE IF NOT EXISTS auth_admin_actions (
		id           UUID PRIMARY KEY,
		action_type  TEXT        NOT NULL,
		performed_by TEXT        NOT NULL,
		target       TEXT        NOT NULL DEFAULT '',
		reason       TEXT        NOT NULL DEFAULT '',
		result       TEXT        NOT NULL DEFAULT '',
		affected     INTEGER     NOT NULL DEFAULT 0,
		created_at   TIMESTAMPTZ NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_auth_admin_actions_target ON auth_admin_actions (target, created_at DESC)`,
	`CREATE INDEX IF NOT EXISTS idx_auth_admin_actions_created_at ON auth_admin_actions (created_at DESC)`,
}

const selectActions = `SELECT id, action_type, performed_by, target, reason, result, affected, created_at
	FROM auth_admin_actions`

// AdminActionRepository реализация журнала действий для PostgreSQL
type AdminActionRepository struct {
	pool *pgxpool.Pool
}

// NewAdminActionRepository создает новый экземпляр AdminActionRepository
func NewAdminActionRepository(pool *pgxpool.Pool) repository.AdminActionRepository {
	return &AdminActionRepository{pool: pool}
}

// Save сохраняет запись о действии
func (r *AdminActionRepository) Save(ctx context.Context, action domain.AdminAction) error {
	query := `INSERT INTO auth_admin_actions (id, action_type, performed_by, target, reason, result, affected, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`

	_, err := r.pool.Exec(ctx, query,
		action.ID,
		string(action.Type),
		action.PerformedBy,
		action.Target,
		action.Reason,
		action.Result,
		action.Count,
		action.Timestamp)
	if err != nil {
		return fmt.Errorf("failed to save admin action: %w", err)
	}

	return nil
}

// ListRecent возвращает последние действия
func (r *AdminActionRepository) ListRecent(ctx context.Context, limit int) ([]domain.AdminAction, error) {
	rows, err := r.pool.Query(ctx, selectActions+` ORDER BY created_at DESC LIMIT $1`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list admin actions: %w", err)
	}
	return collectActions(rows)
}

// ListByTarget возвращает действия над конкретной целью
func (r *AdminActionRepository) ListByTarget(ctx context.Context, target string, limit int) ([]domain.AdminAction, error) {
	rows, err := r.pool.Query(ctx, selectActions+` WHERE target = $1 ORDER BY created_at DESC LIMIT $2`, target, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list admin actions by target: %w", err)
	}
	return collectActions(rows)
}

func collectActions(rows pgx.Rows) ([]domain.AdminAction, error) {
	actions, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (domain.AdminAction, error) {
		var (
			action     domain.AdminAction
			actionType string
		)
		err := row.Scan(
			&action.ID,
			&actionType,
			&action.PerformedBy,
			&action.Target,
			&action.Reason,
			&action.Result,
			&action.Count,
			&action.Timestamp,
		)
		action.Type = domain.ActionType(actionType)
		return action, err
	})
	if err != nil {
		return nil, fmt.Errorf("failed to scan admin actions: %w", err)
	}
	return actions, nil
}
