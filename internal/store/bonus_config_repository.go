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

// BonusConfigRepository интерфейс для работы с бонусной таблицей.
// Движок начислений перечитывает таблицу при каждом запуске:
// правки администратора применяются к следующим заказам сразу,
// но никогда задним числом.
type BonusConfigRepository interface {
	Get(ctx context.Context) (*models.BonusConfig, error)
	Update(ctx context.Context, cfg *models.BonusConfig) error
}

// bonusConfigRepository реализует BonusConfigRepository
type bonusConfigRepository struct {
	db     *pgxpool.Pool
	logger *zap.Logger
}

// NewBonusConfigRepository создает новый репозиторий бонусной таблицы
func NewBonusConfigRepository(db *pgxpool.Pool, logger *zap.Logger) BonusConfigRepository {
	return &bonusConfigRepository{
		db:     db,
		logger: logger,
	}
}

// Get получает действующую бонусную таблицу
func (r *bonusConfigRepository) Get(ctx context.Context) (*models.BonusConfig, error) {
	query := `
		SELECT id, level1, level2, level3, level4, level5,
		       min_withdrawal, adhesion_fee, default_sponsor_id, updated_at
		FROM bonus_config
		ORDER BY id
		LIMIT 1`

	cfg := &models.BonusConfig{}
	err := r.db.QueryRow(ctx, query).Scan(
		&cfg.ID, &cfg.Level1, &cfg.Level2, &cfg.Level3, &cfg.Level4, &cfg.Level5,
		&cfg.MinWithdrawal, &cfg.AdhesionFee, &cfg.DefaultSponsorID, &cfg.UpdatedAt,
	)

	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("бонусная таблица не заполнена: %w", models.ErrNotFound)
		}
		return nil, fmt.Errorf("ошибка получения бонусной таблицы: %w", err)
	}

	return cfg, nil
}

// Update обновляет бонусную таблицу
func (r *bonusConfigRepository) Update(ctx context.Context, cfg *models.BonusConfig) error {
	query := `
		UPDATE bonus_config
		SET level1 = $2, level2 = $3, level3 = $4, level4 = $5, level5 = $6,
		    min_withdrawal = $7, adhesion_fee = $8, default_sponsor_id = $9, updated_at = $10
		WHERE id = $1`

	cfg.UpdatedAt = time.Now()

	result, err := r.db.Exec(ctx, query,
		cfg.ID, cfg.Level1, cfg.Level2, cfg.Level3, cfg.Level4, cfg.Level5,
		cfg.MinWithdrawal, cfg.AdhesionFee, cfg.DefaultSponsorID, cfg.UpdatedAt,
	)

	if err != nil {
		return fmt.Errorf("ошибка обновления бонусной таблицы: %w", err)
	}

	if result.RowsAffected() == 0 {
		return fmt.Errorf("бонусная таблица с ID %d: %w", cfg.ID, models.ErrNotFound)
	}

	r.logger.Info("бонусная таблица обновлена", zap.Int64("config_id", cfg.ID))
	return nil
}
