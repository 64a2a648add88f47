// Package audit записывает действия администраторов в журнал приложения,
// в PostgreSQL и в RabbitMQ. Каждый приемник необязателен.
package audit

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"AuthCorePlatform/pkg/logger"
	"AuthCorePlatform/pkg/rabbitmq"
	"AuthCorePlatform/services/auth-core/internal/domain"
	"AuthCorePlatform/services/auth-core/internal/repository"
)

// Recorder приемник записей о действиях
type Recorder interface {
	Record(ctx context.Context, action domain.AdminAction) error
}

// NewAction создает запись с новым идентификатором и текущим временем
func NewAction(actionType domain.ActionType, performedBy, target, reason string) domain.AdminAction {
	return domain.AdminAction{
		ID:          uuid.NewString(),
		Type:        actionType,
		PerformedBy: performedBy,
		Target:      target,
		Reason:      reason,
		Timestamp:   time.Now().UTC(),
	}
}

// LogRecorder пишет действия в журнал приложения
type LogRecorder struct {
	logger logger.Logger
}

// NewLogRecorder создает LogRecorder
func NewLogRecorder(log logger.Logger) *LogRecorder {
	return &LogRecorder{logger: log}
}

// Record пишет действие в журнал
func (r *LogRecorder) Record(ctx context.Context, action domain.AdminAction) error {
	r.logger.Info("Admin action",
		logger.String("action_id", action.ID),
		logger.String("type", string(action.Type)),
		logger.String("performed_by", action.PerformedBy),
		logger.String("target", action.Target),
		logger.String("reason", action.Reason),
		logger.String("result", action.Result),
		logger.Int("count", action.Count),
		logger.CtxField(ctx))
	return nil
}

// RepositoryRecorder сохраняет действия в базе данных
type RepositoryRecorder struct {
	repo repository.AdminActionRepository
}

// NewRepositoryRecorder создает RepositoryRecorder
func NewRepositoryRecorder(repo repository.AdminActionRepository) *RepositoryRecorder {
	return &RepositoryRecorder{repo: repo}
}

// Record сохраняет действие
func (r *RepositoryRecorder) Record(ctx context.Context, action domain.AdminAction) error {
	return r.repo.Save(ctx, action)
}

// Publisher отправляет сообщения в брокер
type Publisher interface {
	Publish(ctx context.Context, body []byte, options ...rabbitmq.PublishOption) error
}

// EventRecorder публикует действия как события auth.revocation.<type>
type EventRecorder struct {
	publisher  Publisher
	routingKey string
}

// NewEventRecorder создает EventRecorder. routingKey - префикс ключа маршрутизации.
func NewEventRecorder(publisher Publisher, routingKey string) *EventRecorder {
	return &EventRecorder{publisher: publisher, routingKey: routingKey}
}

// RoutingKey возвращает ключ маршрутизации для типа действия
func (r *EventRecorder) RoutingKey(actionType domain.ActionType) string {
	return fmt.Sprintf("%s.%s", r.routingKey, actionType)
}

// Record публикует действие
func (r *EventRecorder) Record(ctx context.Context, action domain.AdminAction) error {
	body, err := json.Marshal(action)
	if err != nil {
		return fmt.Errorf("failed to marshal admin action: %w", err)
	}

	return r.publisher.Publish(ctx, body,
		rabbitmq.WithRoutingKey(r.RoutingKey(action.Type)),
		rabbitmq.WithMessageID(action.ID))
}

type namedRecorder struct {
	name     string
	recorder Recorder
}

// Multi рассылает действие во все приемники.
// Ошибка приемника логируется и не прерывает действие администратора.
type Multi struct {
	recorders []namedRecorder
	logger    logger.Logger
	timeout   time.Duration
}

// NewMulti создает Multi
func NewMulti(log logger.Logger) *Multi {
	return &Multi{logger: log, timeout: 2 * time.Second}
}

// Add подключает приемник
func (m *Multi) Add(name string, recorder Recorder) *Multi {
	m.recorders = append(m.recorders, namedRecorder{name: name, recorder: recorder})
	return m
}

// Record рассылает действие. Всегда возвращает nil.
func (m *Multi) Record(ctx context.Context, action domain.AdminAction) error {
	for _, r := range m.recorders {
		rctx, cancel := context.WithTimeout(ctx, m.timeout)
		err := r.recorder.Record(rctx, action)
		cancel()
		if err != nil {
			m.logger.Warn("Failed to record admin action",
				logger.String("sink", r.name),
				logger.String("action_id", action.ID),
				logger.Error(err))
		}
	}
	return nil
}
