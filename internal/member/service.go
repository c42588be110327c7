package member

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"rede-mlm/pkg/models"
)

// MemberRepository определяет методы для работы с участниками
type MemberRepository interface {
	Create(ctx context.Context, member *models.Member) error
	GetByID(ctx context.Context, id int64) (*models.Member, error)
	GetByEmail(ctx context.Context, email string) (*models.Member, error)
	GetByReferralCode(ctx context.Context, code string) (*models.Member, error)
	Update(ctx context.Context, member *models.Member) error
	GenerateReferralCode(ctx context.Context) (string, error)
}

// LedgerRepository определяет методы для чтения журнала движений участника
type LedgerRepository interface {
	ListByMember(ctx context.Context, memberID int64, limit int) ([]*models.Transaction, error)
	SumBonusByMember(ctx context.Context, memberID int64) (float64, error)
}

// ConfigRepository определяет методы для работы с бонусной таблицей
type ConfigRepository interface {
	Get(ctx context.Context) (*models.BonusConfig, error)
	Update(ctx context.Context, cfg *models.BonusConfig) error
}

// PlacementService определяет методы для размещения участника в структуре
type PlacementService interface {
	Resolve(ctx context.Context, memberID int64) (*models.Member, error)
}

// NetworkService определяет методы для просмотра структуры
type NetworkService interface {
	DirectsOf(ctx context.Context, memberID int64) ([]*models.Member, error)
	Downline(ctx context.Context, memberID int64, maxDepth int) (*models.DownlineNode, error)
}

// Service предоставляет методы для работы с участниками
type Service struct {
	members   MemberRepository
	ledger    LedgerRepository
	config    ConfigRepository
	placement PlacementService
	network   NetworkService
	logger    *zap.Logger
}

// NewService создает новый сервис участников
func NewService(
	members MemberRepository,
	ledger LedgerRepository,
	config ConfigRepository,
	placement PlacementService,
	network NetworkService,
	logger *zap.Logger,
) *Service {
	return &Service{
		members:   members,
		ledger:    ledger,
		config:    config,
		placement: placement,
		network:   network,
		logger:    logger,
	}
}

// Register регистрирует нового участника. Реферальный код определяет
// пригласившего: ссылка referred_by фиксируется навсегда, а окончательный
// спонсор определяется только при подтверждении. Участник создается
// неподтвержденным.
func (s *Service) Register(ctx context.Context, req *models.RegisterMemberRequest) (*models.Member, error) {
	name := strings.TrimSpace(req.Name)
	email := strings.ToLower(strings.TrimSpace(req.Email))

	if name == "" || email == "" {
		return nil, fmt.Errorf("имя и email обязательны: %w", models.ErrValidation)
	}

	existing, err := s.members.GetByEmail(ctx, email)
	if err != nil && !errors.Is(err, models.ErrNotFound) {
		return nil, fmt.Errorf("ошибка проверки email: %w", err)
	}
	if existing != nil {
		return nil, fmt.Errorf("участник с email %s уже существует: %w", email, models.ErrConflict)
	}

	var referredBy *int64
	if code := strings.TrimSpace(req.ReferralCode); code != "" {
		sponsor, err := s.members.GetByReferralCode(ctx, code)
		if err != nil {
			if errors.Is(err, models.ErrNotFound) {
				return nil, fmt.Errorf("реферальный код %q не найден: %w", code, models.ErrValidation)
			}
			return nil, fmt.Errorf("ошибка поиска спонсора по коду: %w", err)
		}
		if !sponsor.IsApproved() {
			return nil, fmt.Errorf("спонсор %d еще не подтвержден: %w", sponsor.ID, models.ErrValidation)
		}
		referredBy = &sponsor.ID
	}

	member := &models.Member{
		Name:       name,
		Email:      email,
		Role:       models.RoleMember,
		ReferredBy: referredBy,
	}

	if err := s.members.Create(ctx, member); err != nil {
		return nil, fmt.Errorf("ошибка создания участника: %w", err)
	}

	s.logger.Info("зарегистрирован новый участник",
		zap.Int64("member_id", member.ID),
		zap.String("email", email),
		zap.Int64p("referred_by", referredBy))

	return member, nil
}

// Approve подтверждает участника после оплаты вступительного взноса.
// Операция доступна только администратору. Окончательный спонсор
// определяется при размещении.
func (s *Service) Approve(ctx context.Context, adminID, memberID int64) (*models.Member, error) {
	admin, err := s.members.GetByID(ctx, adminID)
	if err != nil {
		return nil, fmt.Errorf("ошибка получения администратора: %w", err)
	}

	if !admin.IsAdmin() {
		return nil, fmt.Errorf("участник %d не является администратором: %w",
			adminID, models.ErrForbidden)
	}

	member, err := s.placement.Resolve(ctx, memberID)
	if err != nil {
		return nil, err
	}

	return member, nil
}

// GetByID возвращает участника по идентификатору
func (s *Service) GetByID(ctx context.Context, memberID int64) (*models.Member, error) {
	member, err := s.members.GetByID(ctx, memberID)
	if err != nil {
		return nil, fmt.Errorf("ошибка получения участника: %w", err)
	}
	return member, nil
}

// GetByReferralCode возвращает участника по реферальному коду
func (s *Service) GetByReferralCode(ctx context.Context, code string) (*models.Member, error) {
	member, err := s.members.GetByReferralCode(ctx, code)
	if err != nil {
		return nil, fmt.Errorf("ошибка поиска по реферальному коду: %w", err)
	}
	return member, nil
}

// GetOrGenerateReferralCode возвращает реферальный код участника,
// создавая его при первом обращении. Код выдается только
// подтвержденным участникам.
func (s *Service) GetOrGenerateReferralCode(ctx context.Context, memberID int64) (string, error) {
	member, err := s.members.GetByID(ctx, memberID)
	if err != nil {
		return "", fmt.Errorf("ошибка получения участника: %w", err)
	}

	if !member.IsApproved() {
		return "", fmt.Errorf("участник %d не подтвержден: %w", memberID, models.ErrInvalidState)
	}

	if member.ReferralCode != nil && *member.ReferralCode != "" {
		return *member.ReferralCode, nil
	}

	// Код генерируется базой, уникальность проверяется с повторами
	var code string
	for attempt := 0; attempt < 5; attempt++ {
		candidate, err := s.members.GenerateReferralCode(ctx)
		if err != nil {
			return "", fmt.Errorf("ошибка генерации реферального кода: %w", err)
		}

		_, err = s.members.GetByReferralCode(ctx, candidate)
		if errors.Is(err, models.ErrNotFound) {
			code = candidate
			break
		}
		if err != nil {
			return "", fmt.Errorf("ошибка проверки реферального кода: %w", err)
		}
	}
	if code == "" {
		return "", fmt.Errorf("не удалось подобрать уникальный реферальный код")
	}

	member.ReferralCode = &code
	if err := s.members.Update(ctx, member); err != nil {
		return "", fmt.Errorf("ошибка сохранения реферального кода: %w", err)
	}

	s.logger.Info("создан реферальный код",
		zap.Int64("member_id", memberID),
		zap.String("referral_code", code))

	return code, nil
}

// Statement возвращает последние движения по кошельку участника
// и сумму всех выплаченных ему начислений
func (s *Service) Statement(ctx context.Context, memberID int64, limit int) ([]*models.Transaction, float64, error) {
	if _, err := s.members.GetByID(ctx, memberID); err != nil {
		return nil, 0, fmt.Errorf("ошибка получения участника: %w", err)
	}

	transactions, err := s.ledger.ListByMember(ctx, memberID, limit)
	if err != nil {
		return nil, 0, fmt.Errorf("ошибка получения журнала участника: %w", err)
	}

	bonusTotal, err := s.ledger.SumBonusByMember(ctx, memberID)
	if err != nil {
		return nil, 0, fmt.Errorf("ошибка подсчета начислений участника: %w", err)
	}

	return transactions, bonusTotal, nil
}

// BonusConfig возвращает действующую бонусную таблицу
func (s *Service) BonusConfig(ctx context.Context) (*models.BonusConfig, error) {
	cfg, err := s.config.Get(ctx)
	if err != nil {
		return nil, fmt.Errorf("ошибка получения бонусной таблицы: %w", err)
	}
	return cfg, nil
}

// UpdateBonusConfig обновляет проценты уровней, минимальный вывод и
// вступительный взнос. Операция доступна только администратору.
// Новые значения применяются к следующим начислениям, уже выплаченные
// бонусы не пересчитываются. Спонсор по умолчанию здесь не меняется.
func (s *Service) UpdateBonusConfig(ctx context.Context, adminID int64, updated *models.BonusConfig) (*models.BonusConfig, error) {
	admin, err := s.members.GetByID(ctx, adminID)
	if err != nil {
		return nil, fmt.Errorf("ошибка получения администратора: %w", err)
	}

	if !admin.IsAdmin() {
		return nil, fmt.Errorf("участник %d не является администратором: %w",
			adminID, models.ErrForbidden)
	}

	for _, pct := range updated.LevelPercents() {
		if pct < 0 || pct > 100 {
			return nil, fmt.Errorf("процент уровня должен быть от 0 до 100: %w", models.ErrValidation)
		}
	}
	if updated.MinWithdrawal <= 0 {
		return nil, fmt.Errorf("минимальная сумма вывода должна быть положительной: %w", models.ErrValidation)
	}
	if updated.AdhesionFee <= 0 {
		return nil, fmt.Errorf("вступительный взнос должен быть положительным: %w", models.ErrValidation)
	}

	current, err := s.config.Get(ctx)
	if err != nil {
		return nil, fmt.Errorf("ошибка получения бонусной таблицы: %w", err)
	}

	current.Level1 = updated.Level1
	current.Level2 = updated.Level2
	current.Level3 = updated.Level3
	current.Level4 = updated.Level4
	current.Level5 = updated.Level5
	current.MinWithdrawal = updated.MinWithdrawal
	current.AdhesionFee = updated.AdhesionFee

	if err := s.config.Update(ctx, current); err != nil {
		return nil, fmt.Errorf("ошибка сохранения бонусной таблицы: %w", err)
	}

	s.logger.Info("бонусная таблица обновлена администратором",
		zap.Int64("admin_id", adminID),
		zap.Float64("min_withdrawal", current.MinWithdrawal),
		zap.Float64("adhesion_fee", current.AdhesionFee))

	return current, nil
}

// Directs возвращает прямых рефералов участника
func (s *Service) Directs(ctx context.Context, memberID int64) ([]*models.Member, error) {
	return s.network.DirectsOf(ctx, memberID)
}

// Downline возвращает дерево структуры участника до заданной глубины
func (s *Service) Downline(ctx context.Context, memberID int64, maxDepth int) (*models.DownlineNode, error) {
	if _, err := s.members.GetByID(ctx, memberID); err != nil {
		return nil, fmt.Errorf("ошибка получения участника: %w", err)
	}
	return s.network.Downline(ctx, memberID, maxDepth)
}
