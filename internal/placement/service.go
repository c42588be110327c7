package placement

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"rede-mlm/pkg/models"
)

// MemberRepository определяет методы для подтверждения участника
type MemberRepository interface {
	GetByID(ctx context.Context, id int64) (*models.Member, error)
	ApproveWithPlacement(ctx context.Context, memberID, defaultSponsorID int64) (int64, error)
}

// ConfigRepository определяет методы для чтения настроек размещения
type ConfigRepository interface {
	Get(ctx context.Context) (*models.BonusConfig, error)
}

// MetricsRecorder определяет методы для записи метрик подтверждений
type MetricsRecorder interface {
	RecordMemberApproved()
}

// Service отвечает за размещение участника в структуре при подтверждении
type Service struct {
	members MemberRepository
	config  ConfigRepository
	metrics MetricsRecorder
	logger  *zap.Logger
}

// NewService создает новый сервис размещения
func NewService(members MemberRepository, config ConfigRepository, metrics MetricsRecorder, logger *zap.Logger) *Service {
	return &Service{
		members: members,
		config:  config,
		metrics: metrics,
		logger:  logger,
	}
}

// Resolve подтверждает участника и определяет его окончательного спонсора.
// Участник без предварительного спонсора размещается под спонсором по
// умолчанию из настроек. Повторное подтверждение возвращает ошибку.
func (s *Service) Resolve(ctx context.Context, memberID int64) (*models.Member, error) {
	cfg, err := s.config.Get(ctx)
	if err != nil {
		return nil, fmt.Errorf("ошибка получения настроек размещения: %w", err)
	}

	finalSponsorID, err := s.members.ApproveWithPlacement(ctx, memberID, cfg.DefaultSponsorID)
	if err != nil {
		return nil, fmt.Errorf("ошибка размещения участника %d: %w", memberID, err)
	}

	member, err := s.members.GetByID(ctx, memberID)
	if err != nil {
		return nil, fmt.Errorf("ошибка получения участника после размещения: %w", err)
	}

	if s.metrics != nil {
		s.metrics.RecordMemberApproved()
	}

	s.logger.Info("участник размещен в структуре",
		zap.Int64("member_id", memberID),
		zap.Int64("sponsor_id", finalSponsorID))

	return member, nil
}
