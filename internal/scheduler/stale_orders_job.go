package scheduler

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"
)

// OrderExpirer определяет методы для автоотмены просроченных заказов
type OrderExpirer interface {
	ExpirePending(ctx context.Context, olderThan time.Time) (int64, error)
}

// StaleOrdersJob отменяет заказы, не оплаченные в отведенный срок
type StaleOrdersJob struct {
	orders OrderExpirer
	ttl    time.Duration
	logger *zap.Logger
}

// NewStaleOrdersJob создает задачу автоотмены заказов
func NewStaleOrdersJob(orders OrderExpirer, ttl time.Duration, logger *zap.Logger) *StaleOrdersJob {
	return &StaleOrdersJob{
		orders: orders,
		ttl:    ttl,
		logger: logger,
	}
}

// Name возвращает имя задачи
func (j *StaleOrdersJob) Name() string {
	return "stale_orders"
}

// Run отменяет все pending заказы старше TTL
func (j *StaleOrdersJob) Run(ctx context.Context) error {
	cutoff := time.Now().Add(-j.ttl)

	cancelled, err := j.orders.ExpirePending(ctx, cutoff)
	if err != nil {
		return fmt.Errorf("ошибка автоотмены заказов: %w", err)
	}

	if cancelled > 0 {
		j.logger.Info("просроченные заказы отменены",
			zap.Int64("count", cancelled),
			zap.Duration("ttl", j.ttl))
	}

	return nil
}
