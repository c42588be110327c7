package withdrawal

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"rede-mlm/pkg/models"
)

// WithdrawalRepository определяет методы для работы с заявками на вывод
type WithdrawalRepository interface {
	Request(ctx context.Context, withdrawal *models.Withdrawal) error
	GetByID(ctx context.Context, id int64) (*models.Withdrawal, error)
	ListByMember(ctx context.Context, memberID int64) ([]*models.Withdrawal, error)
	Approve(ctx context.Context, withdrawalID int64) error
	MarkPaid(ctx context.Context, withdrawalID int64) error
	Reject(ctx context.Context, withdrawalID int64) error
	SumReserved(ctx context.Context, memberID int64) (float64, error)
}

// MemberRepository определяет методы для проверки участников
type MemberRepository interface {
	GetByID(ctx context.Context, id int64) (*models.Member, error)
}

// ConfigRepository определяет методы для чтения настроек вывода
type ConfigRepository interface {
	Get(ctx context.Context) (*models.BonusConfig, error)
}

// Notifier определяет методы для уведомления администратора
type Notifier interface {
	NotifyWithdrawalRequested(withdrawal *models.Withdrawal, member *models.Member)
}

// MetricsRecorder определяет методы для записи метрик выводов
type MetricsRecorder interface {
	RecordWithdrawal(action string, amount float64)
}

// Service предоставляет методы для работы с выводом средств
type Service struct {
	withdrawals WithdrawalRepository
	members     MemberRepository
	config      ConfigRepository
	notifier    Notifier
	metrics     MetricsRecorder
	logger      *zap.Logger
}

// NewService создает новый сервис вывода средств
func NewService(
	withdrawals WithdrawalRepository,
	members MemberRepository,
	config ConfigRepository,
	notifier Notifier,
	metrics MetricsRecorder,
	logger *zap.Logger,
) *Service {
	return &Service{
		withdrawals: withdrawals,
		members:     members,
		config:      config,
		notifier:    notifier,
		metrics:     metrics,
		logger:      logger,
	}
}

// Request создает заявку на вывод средств и резервирует сумму на балансе.
// Сумма не может быть меньше минимальной из настроек, участник должен
// быть подтвержден.
func (s *Service) Request(ctx context.Context, memberID int64, amount float64, payoutDetails string) (*models.Withdrawal, error) {
	if amount <= 0 {
		return nil, fmt.Errorf("сумма вывода должна быть положительной: %w", models.ErrValidation)
	}

	member, err := s.members.GetByID(ctx, memberID)
	if err != nil {
		return nil, fmt.Errorf("ошибка получения участника: %w", err)
	}

	if !member.IsApproved() {
		return nil, fmt.Errorf("участник %d не подтвержден: %w", memberID, models.ErrInvalidState)
	}

	cfg, err := s.config.Get(ctx)
	if err != nil {
		return nil, fmt.Errorf("ошибка получения настроек вывода: %w", err)
	}

	amount = models.Round2(amount)
	if amount < cfg.MinWithdrawal {
		return nil, fmt.Errorf("минимальная сумма вывода %.2f: %w",
			cfg.MinWithdrawal, models.ErrValidation)
	}

	withdrawal := &models.Withdrawal{
		MemberID:      memberID,
		Amount:        amount,
		Status:        models.WithdrawalStatusPending,
		PayoutDetails: payoutDetails,
	}

	if err := s.withdrawals.Request(ctx, withdrawal); err != nil {
		return nil, fmt.Errorf("ошибка создания заявки на вывод: %w", err)
	}

	if s.metrics != nil {
		s.metrics.RecordWithdrawal("requested", amount)
	}

	if s.notifier != nil {
		s.notifier.NotifyWithdrawalRequested(withdrawal, member)
	}

	s.logger.Info("создана заявка на вывод средств",
		zap.Int64("withdrawal_id", withdrawal.ID),
		zap.Int64("member_id", memberID),
		zap.Float64("amount", amount))

	return withdrawal, nil
}

// Transition переводит заявку в следующий статус. Операция доступна
// только администратору. Отклонение возвращает зарезервированную сумму
// на баланс участника.
func (s *Service) Transition(ctx context.Context, adminID, withdrawalID int64, action models.WithdrawalAction) (*models.Withdrawal, error) {
	admin, err := s.members.GetByID(ctx, adminID)
	if err != nil {
		return nil, fmt.Errorf("ошибка получения администратора: %w", err)
	}

	if !admin.IsAdmin() {
		return nil, fmt.Errorf("участник %d не является администратором: %w",
			adminID, models.ErrForbidden)
	}

	var metricAction string
	switch action {
	case models.WithdrawalActionApprove:
		err = s.withdrawals.Approve(ctx, withdrawalID)
		metricAction = "approved"
	case models.WithdrawalActionPay:
		err = s.withdrawals.MarkPaid(ctx, withdrawalID)
		metricAction = "paid"
	case models.WithdrawalActionReject:
		err = s.withdrawals.Reject(ctx, withdrawalID)
		metricAction = "rejected"
	default:
		return nil, fmt.Errorf("неизвестное действие %q: %w", action, models.ErrValidation)
	}
	if err != nil {
		return nil, fmt.Errorf("ошибка обработки заявки %d: %w", withdrawalID, err)
	}

	withdrawal, err := s.withdrawals.GetByID(ctx, withdrawalID)
	if err != nil {
		return nil, fmt.Errorf("ошибка получения заявки после обработки: %w", err)
	}

	if s.metrics != nil {
		s.metrics.RecordWithdrawal(metricAction, withdrawal.Amount)
	}

	s.logger.Info("заявка на вывод обработана",
		zap.Int64("withdrawal_id", withdrawalID),
		zap.Int64("admin_id", adminID),
		zap.String("action", string(action)),
		zap.String("status", string(withdrawal.Status)))

	return withdrawal, nil
}

// Reserved возвращает сумму средств участника, зарезервированную
// незавершенными заявками на вывод
func (s *Service) Reserved(ctx context.Context, memberID int64) (float64, error) {
	total, err := s.withdrawals.SumReserved(ctx, memberID)
	if err != nil {
		return 0, fmt.Errorf("ошибка подсчета резервов участника: %w", err)
	}
	return total, nil
}

// ListByMember возвращает заявки участника на вывод
func (s *Service) ListByMember(ctx context.Context, memberID int64) ([]*models.Withdrawal, error) {
	withdrawals, err := s.withdrawals.ListByMember(ctx, memberID)
	if err != nil {
		return nil, fmt.Errorf("ошибка получения заявок участника: %w", err)
	}
	return withdrawals, nil
}
