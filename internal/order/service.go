package order

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"rede-mlm/pkg/models"
)

// OrderRepository определяет методы для работы с заказами
type OrderRepository interface {
	Create(ctx context.Context, order *models.Order) error
	GetByID(ctx context.Context, id int64) (*models.Order, error)
	ListByBuyer(ctx context.Context, buyerID int64) ([]*models.Order, error)
	MarkPaid(ctx context.Context, orderID int64) error
	Cancel(ctx context.Context, orderID int64) error
}

// MemberRepository определяет методы для проверки покупателя
type MemberRepository interface {
	GetByID(ctx context.Context, id int64) (*models.Member, error)
}

// ConfigRepository определяет методы для чтения настроек заказов
type ConfigRepository interface {
	Get(ctx context.Context) (*models.BonusConfig, error)
}

// BonusDistributor определяет методы для начислений по оплаченному заказу
type BonusDistributor interface {
	Distribute(ctx context.Context, orderID int64) (int, error)
}

// Notifier определяет методы для уведомления администратора
type Notifier interface {
	NotifyOrderPaid(order *models.Order, buyer *models.Member)
}

// MetricsRecorder определяет методы для записи метрик заказов
type MetricsRecorder interface {
	RecordOrderPaid(kind string, amount float64)
}

// Service предоставляет методы для работы с заказами
type Service struct {
	orders   OrderRepository
	members  MemberRepository
	config   ConfigRepository
	bonus    BonusDistributor
	notifier Notifier
	metrics  MetricsRecorder
	logger   *zap.Logger
}

// NewService создает новый сервис заказов
func NewService(
	orders OrderRepository,
	members MemberRepository,
	config ConfigRepository,
	bonus BonusDistributor,
	notifier Notifier,
	metrics MetricsRecorder,
	logger *zap.Logger,
) *Service {
	return &Service{
		orders:   orders,
		members:  members,
		config:   config,
		bonus:    bonus,
		notifier: notifier,
		metrics:  metrics,
		logger:   logger,
	}
}

// Checkout создает заказ в статусе pending. Заказ без товара считается
// вступительным взносом: его сумма берется из настроек и доступен он
// только неподтвержденным участникам. Покупка товара наоборот требует
// подтвержденного покупателя.
func (s *Service) Checkout(ctx context.Context, buyerID int64, productID *int64, amount float64) (*models.Order, error) {
	buyer, err := s.members.GetByID(ctx, buyerID)
	if err != nil {
		return nil, fmt.Errorf("ошибка получения покупателя: %w", err)
	}

	order := &models.Order{
		BuyerID:   buyerID,
		ProductID: productID,
	}

	if order.IsAdhesion() {
		if buyer.IsApproved() {
			return nil, fmt.Errorf("участник %d уже подтвержден, повторный взнос не требуется: %w",
				buyerID, models.ErrInvalidState)
		}

		cfg, err := s.config.Get(ctx)
		if err != nil {
			return nil, fmt.Errorf("ошибка получения настроек взноса: %w", err)
		}
		order.Amount = cfg.AdhesionFee
	} else {
		if !buyer.IsApproved() {
			return nil, fmt.Errorf("участник %d не подтвержден для покупок: %w",
				buyerID, models.ErrInvalidState)
		}
		if amount <= 0 {
			return nil, fmt.Errorf("сумма заказа должна быть положительной: %w", models.ErrValidation)
		}
		order.Amount = models.Round2(amount)
	}

	if err := s.orders.Create(ctx, order); err != nil {
		return nil, fmt.Errorf("ошибка создания заказа: %w", err)
	}

	return order, nil
}

// ConfirmPayment подтверждает оплату заказа и запускает начисления
// по цепочке спонсоров покупателя. Вызов идемпотентен: повторное
// подтверждение уже оплаченного заказа лишь перезапускает начисления,
// и уже выплаченные уровни пропускаются по ключу журнала.
func (s *Service) ConfirmPayment(ctx context.Context, orderID int64) (*models.Order, error) {
	alreadyPaid := false

	if err := s.orders.MarkPaid(ctx, orderID); err != nil {
		if !errors.Is(err, models.ErrInvalidState) {
			return nil, fmt.Errorf("ошибка подтверждения оплаты: %w", err)
		}
		order, getErr := s.orders.GetByID(ctx, orderID)
		if getErr != nil {
			return nil, fmt.Errorf("ошибка получения заказа: %w", getErr)
		}
		if order.Status != models.OrderStatusPaid {
			return nil, fmt.Errorf("ошибка подтверждения оплаты: %w", err)
		}
		alreadyPaid = true
		s.logger.Info("повторное подтверждение оплаты, начисления будут перепроверены",
			zap.Int64("order_id", orderID))
	}

	order, err := s.orders.GetByID(ctx, orderID)
	if err != nil {
		return nil, fmt.Errorf("ошибка получения заказа после оплаты: %w", err)
	}

	if s.metrics != nil && !alreadyPaid {
		kind := "product"
		if order.IsAdhesion() {
			kind = "adhesion"
		}
		s.metrics.RecordOrderPaid(kind, order.Amount)
	}

	// Ошибка начислений возвращается наружу: шлюз повторит callback,
	// а ключ идемпотентности журнала исключит двойные выплаты
	if _, err := s.bonus.Distribute(ctx, orderID); err != nil {
		return nil, fmt.Errorf("ошибка начислений по заказу %d: %w", orderID, err)
	}

	if s.notifier != nil && !alreadyPaid {
		buyer, err := s.members.GetByID(ctx, order.BuyerID)
		if err != nil {
			s.logger.Warn("не удалось получить покупателя для уведомления",
				zap.Int64("order_id", orderID),
				zap.Error(err))
		} else {
			s.notifier.NotifyOrderPaid(order, buyer)
		}
	}

	return order, nil
}

// Cancel отменяет неоплаченный заказ
func (s *Service) Cancel(ctx context.Context, orderID int64) error {
	if err := s.orders.Cancel(ctx, orderID); err != nil {
		return fmt.Errorf("ошибка отмены заказа: %w", err)
	}
	return nil
}

// GetByID возвращает заказ по идентификатору
func (s *Service) GetByID(ctx context.Context, orderID int64) (*models.Order, error) {
	order, err := s.orders.GetByID(ctx, orderID)
	if err != nil {
		return nil, fmt.Errorf("ошибка получения заказа: %w", err)
	}
	return order, nil
}

// ListByBuyer возвращает заказы покупателя
func (s *Service) ListByBuyer(ctx context.Context, buyerID int64) ([]*models.Order, error) {
	orders, err := s.orders.ListByBuyer(ctx, buyerID)
	if err != nil {
		return nil, fmt.Errorf("ошибка получения заказов: %w", err)
	}
	return orders, nil
}
