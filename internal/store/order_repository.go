package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"rede-mlm/pkg/models"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"
)

// OrderRepository интерфейс для работы с заказами
type OrderRepository interface {
	Create(ctx context.Context, order *models.Order) error
	GetByID(ctx context.Context, id int64) (*models.Order, error)
	ListByBuyer(ctx context.Context, buyerID int64) ([]*models.Order, error)
	MarkPaid(ctx context.Context, orderID int64) error
	Cancel(ctx context.Context, orderID int64) error
	ExpirePending(ctx context.Context, olderThan time.Time) (int64, error)
}

// orderRepository реализует OrderRepository
type orderRepository struct {
	db     *pgxpool.Pool
	logger *zap.Logger
}

// NewOrderRepository создает новый репозиторий заказов
func NewOrderRepository(db *pgxpool.Pool, logger *zap.Logger) OrderRepository {
	return &orderRepository{
		db:     db,
		logger: logger,
	}
}

const orderColumns = `id, buyer_id, product_id, amount, status, created_at, paid_at`

func scanOrder(row pgx.Row) (*models.Order, error) {
	order := &models.Order{}
	err := row.Scan(
		&order.ID, &order.BuyerID, &order.ProductID, &order.Amount,
		&order.Status, &order.CreatedAt, &order.PaidAt,
	)
	if err != nil {
		return nil, err
	}
	return order, nil
}

// Create создает новый заказ в статусе pending
func (r *orderRepository) Create(ctx context.Context, order *models.Order) error {
	query := `
		INSERT INTO orders (buyer_id, product_id, amount, status, created_at)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id`

	order.CreatedAt = time.Now()
	if order.Status == "" {
		order.Status = models.OrderStatusPending
	}

	err := r.db.QueryRow(ctx, query,
		order.BuyerID, order.ProductID, order.Amount, order.Status, order.CreatedAt,
	).Scan(&order.ID)

	if err != nil {
		return fmt.Errorf("ошибка создания заказа: %w", err)
	}

	r.logger.Info("заказ создан",
		zap.Int64("order_id", order.ID),
		zap.Int64("buyer_id", order.BuyerID),
		zap.Float64("amount", order.Amount))

	return nil
}

// GetByID получает заказ по ID
func (r *orderRepository) GetByID(ctx context.Context, id int64) (*models.Order, error) {
	query := `SELECT ` + orderColumns + ` FROM orders WHERE id = $1`

	order, err := scanOrder(r.db.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("заказ с ID %d: %w", id, models.ErrNotFound)
		}
		return nil, fmt.Errorf("ошибка получения заказа: %w", err)
	}

	return order, nil
}

// ListByBuyer получает заказы покупателя
func (r *orderRepository) ListByBuyer(ctx context.Context, buyerID int64) ([]*models.Order, error) {
	query := `SELECT ` + orderColumns + ` FROM orders WHERE buyer_id = $1 ORDER BY created_at DESC`

	rows, err := r.db.Query(ctx, query, buyerID)
	if err != nil {
		return nil, fmt.Errorf("ошибка получения заказов покупателя: %w", err)
	}
	defer rows.Close()

	var orders []*models.Order
	for rows.Next() {
		order, err := scanOrder(rows)
		if err != nil {
			return nil, fmt.Errorf("ошибка сканирования заказа: %w", err)
		}
		orders = append(orders, order)
	}

	return orders, nil
}

// MarkPaid переводит заказ pending -> paid.
// Переход условный на уровне одного UPDATE: повторный вызов и вызов
// для отмененного заказа не проходят и различаются по текущему статусу.
func (r *orderRepository) MarkPaid(ctx context.Context, orderID int64) error {
	query := `UPDATE orders SET status = $2, paid_at = $3 WHERE id = $1 AND status = $4`

	result, err := r.db.Exec(ctx, query,
		orderID, string(models.OrderStatusPaid), time.Now(), string(models.OrderStatusPending))
	if err != nil {
		return fmt.Errorf("ошибка оплаты заказа: %w", err)
	}

	if result.RowsAffected() == 0 {
		order, getErr := r.GetByID(ctx, orderID)
		if getErr != nil {
			return getErr
		}
		return fmt.Errorf("заказ %d в статусе %s: %w", orderID, order.Status, models.ErrInvalidState)
	}

	r.logger.Info("заказ оплачен", zap.Int64("order_id", orderID))
	return nil
}

// Cancel переводит заказ pending -> cancelled
func (r *orderRepository) Cancel(ctx context.Context, orderID int64) error {
	query := `UPDATE orders SET status = $2 WHERE id = $1 AND status = $3`

	result, err := r.db.Exec(ctx, query,
		orderID, string(models.OrderStatusCancelled), string(models.OrderStatusPending))
	if err != nil {
		return fmt.Errorf("ошибка отмены заказа: %w", err)
	}

	if result.RowsAffected() == 0 {
		order, getErr := r.GetByID(ctx, orderID)
		if getErr != nil {
			return getErr
		}
		return fmt.Errorf("заказ %d в статусе %s: %w", orderID, order.Status, models.ErrInvalidState)
	}

	r.logger.Info("заказ отменен", zap.Int64("order_id", orderID))
	return nil
}

// ExpirePending отменяет неоплаченные заказы старше указанного времени
func (r *orderRepository) ExpirePending(ctx context.Context, olderThan time.Time) (int64, error) {
	query := `UPDATE orders SET status = $1 WHERE status = $2 AND created_at < $3`

	result, err := r.db.Exec(ctx, query,
		string(models.OrderStatusCancelled), string(models.OrderStatusPending), olderThan)
	if err != nil {
		return 0, fmt.Errorf("ошибка автоотмены заказов: %w", err)
	}

	return result.RowsAffected(), nil
}
