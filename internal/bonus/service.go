package bonus

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"rede-mlm/pkg/models"
)

// OrderRepository определяет методы для работы с заказами
type OrderRepository interface {
	GetByID(ctx context.Context, id int64) (*models.Order, error)
}

// LedgerRepository определяет методы для записи начислений
type LedgerRepository interface {
	ApplyBonusPayouts(ctx context.Context, orderID int64, payouts []models.BonusPayout) ([]models.BonusPayout, error)
}

// ConfigRepository определяет методы для чтения настроек начислений
type ConfigRepository interface {
	Get(ctx context.Context) (*models.BonusConfig, error)
}

// NetworkService определяет методы для обхода структуры спонсоров
type NetworkService interface {
	AncestorChain(ctx context.Context, memberID int64, maxDepth int) ([]*models.Member, error)
}

// MetricsRecorder определяет методы для записи метрик начислений
type MetricsRecorder interface {
	RecordBonusPaid(level int, amount float64)
}

// Service предоставляет методы для распределения начислений по структуре
type Service struct {
	orders  OrderRepository
	ledger  LedgerRepository
	config  ConfigRepository
	network NetworkService
	metrics MetricsRecorder
	logger  *zap.Logger
}

// NewService создает новый сервис начислений
func NewService(
	orders OrderRepository,
	ledger LedgerRepository,
	config ConfigRepository,
	network NetworkService,
	metrics MetricsRecorder,
	logger *zap.Logger,
) *Service {
	return &Service{
		orders:  orders,
		ledger:  ledger,
		config:  config,
		network: network,
		metrics: metrics,
		logger:  logger,
	}
}

// Distribute начисляет бонусы по цепочке спонсоров покупателя.
// Заказ должен быть оплачен. Процент каждого уровня читается из настроек
// при каждом вызове. Повторный вызов для того же заказа не создает
// дублей: уже выплаченные уровни пропускаются.
func (s *Service) Distribute(ctx context.Context, orderID int64) (int, error) {
	order, err := s.orders.GetByID(ctx, orderID)
	if err != nil {
		return 0, fmt.Errorf("ошибка получения заказа для начислений: %w", err)
	}

	if order.Status != models.OrderStatusPaid {
		return 0, fmt.Errorf("заказ %d не оплачен (статус %s): %w",
			orderID, order.Status, models.ErrInvalidState)
	}

	cfg, err := s.config.Get(ctx)
	if err != nil {
		return 0, fmt.Errorf("ошибка получения настроек начислений: %w", err)
	}

	chain, err := s.network.AncestorChain(ctx, order.BuyerID, models.MaxBonusLevels)
	if err != nil {
		return 0, fmt.Errorf("ошибка построения цепочки спонсоров: %w", err)
	}

	if len(chain) == 0 {
		s.logger.Info("у покупателя нет спонсоров, начисления не требуются",
			zap.Int64("order_id", orderID),
			zap.Int64("buyer_id", order.BuyerID))
		return 0, nil
	}

	percents := cfg.LevelPercents()

	payouts := make([]models.BonusPayout, 0, len(chain))
	for i, ancestor := range chain {
		level := i + 1
		amount := models.Round2(order.Amount * percents[i] / 100)
		if amount <= 0 {
			continue
		}

		payouts = append(payouts, models.BonusPayout{
			MemberID:    ancestor.ID,
			Level:       level,
			Amount:      amount,
			Description: fmt.Sprintf("Бонус %d уровня за заказ #%d", level, orderID),
		})
	}

	if len(payouts) == 0 {
		return 0, nil
	}

	applied, err := s.ledger.ApplyBonusPayouts(ctx, orderID, payouts)
	if err != nil {
		return 0, fmt.Errorf("ошибка записи начислений: %w", err)
	}

	if len(applied) < len(payouts) {
		s.logger.Warn("часть начислений по заказу уже была выплачена",
			zap.Int64("order_id", orderID),
			zap.Int("requested", len(payouts)),
			zap.Int("applied", len(applied)))
	}

	// Метрики только по фактически примененным уровням: доначисленные
	// повтором уровни учитываются, уже выплаченные не задваиваются
	if s.metrics != nil {
		for _, p := range applied {
			s.metrics.RecordBonusPaid(p.Level, p.Amount)
		}
	}

	s.logger.Info("начисления по заказу выполнены",
		zap.Int64("order_id", orderID),
		zap.Int64("buyer_id", order.BuyerID),
		zap.Int("levels", len(applied)))

	return len(applied), nil
}
