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

// LedgerRepository интерфейс для работы с журналом движений кошелька.
// Записи журнала никогда не обновляются и не удаляются.
type LedgerRepository interface {
	ApplyBonusPayouts(ctx context.Context, orderID int64, payouts []models.BonusPayout) ([]models.BonusPayout, error)
	ListByMember(ctx context.Context, memberID int64, limit int) ([]*models.Transaction, error)
	SumBonusByMember(ctx context.Context, memberID int64) (float64, error)
}

// ledgerRepository реализует LedgerRepository
type ledgerRepository struct {
	db     *pgxpool.Pool
	logger *zap.Logger
}

// NewLedgerRepository создает новый репозиторий журнала
func NewLedgerRepository(db *pgxpool.Pool, logger *zap.Logger) LedgerRepository {
	return &ledgerRepository{
		db:     db,
		logger: logger,
	}
}

// ApplyBonusPayouts записывает начисления по заказу и пополняет кошельки
// получателей. Все уровни применяются в одной транзакции. Вставка каждого
// уровня идет через ON CONFLICT DO NOTHING по ключу (order_id, member_id),
// и кошелек пополняется только если строка действительно вставилась:
// повтор после сбоя доначисляет недостающие уровни и никогда не удваивает
// уже выплаченные. Возвращает фактически примененные начисления.
func (r *ledgerRepository) ApplyBonusPayouts(ctx context.Context, orderID int64, payouts []models.BonusPayout) ([]models.BonusPayout, error) {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("ошибка открытия транзакции начислений: %w", err)
	}
	defer tx.Rollback(ctx)

	insertQuery := `
		INSERT INTO transactions (member_id, order_id, amount, type, level, description, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (order_id, member_id) WHERE type = 'bonus' DO NOTHING
		RETURNING id`

	creditQuery := `UPDATE members SET balance = balance + $2, updated_at = $3 WHERE id = $1`

	applied := make([]models.BonusPayout, 0, len(payouts))
	now := time.Now()

	for _, payout := range payouts {
		var txID int64
		err := tx.QueryRow(ctx, insertQuery,
			payout.MemberID, orderID, payout.Amount, string(models.TransactionTypeBonus),
			payout.Level, payout.Description, now,
		).Scan(&txID)

		if err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				// Уровень уже выплачен прошлым запуском
				continue
			}
			return nil, fmt.Errorf("ошибка записи начисления уровня %d: %w", payout.Level, err)
		}

		result, err := tx.Exec(ctx, creditQuery, payout.MemberID, payout.Amount, now)
		if err != nil {
			return nil, fmt.Errorf("ошибка пополнения кошелька участника %d: %w", payout.MemberID, err)
		}
		if result.RowsAffected() == 0 {
			return nil, fmt.Errorf("получатель начисления %d: %w", payout.MemberID, models.ErrNotFound)
		}

		applied = append(applied, payout)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("ошибка фиксации транзакции начислений: %w", err)
	}

	return applied, nil
}

const transactionColumns = `id, member_id, order_id, amount, type, level, description, created_at`

func scanTransaction(row pgx.Row) (*models.Transaction, error) {
	t := &models.Transaction{}
	err := row.Scan(
		&t.ID, &t.MemberID, &t.OrderID, &t.Amount,
		&t.Type, &t.Level, &t.Description, &t.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	return t, nil
}

// ListByMember получает движения по кошельку участника, новые первыми
func (r *ledgerRepository) ListByMember(ctx context.Context, memberID int64, limit int) ([]*models.Transaction, error) {
	query := `SELECT ` + transactionColumns + ` FROM transactions WHERE member_id = $1 ORDER BY created_at DESC, id DESC LIMIT $2`

	rows, err := r.db.Query(ctx, query, memberID, limit)
	if err != nil {
		return nil, fmt.Errorf("ошибка получения журнала участника: %w", err)
	}
	defer rows.Close()

	var transactions []*models.Transaction
	for rows.Next() {
		t, err := scanTransaction(rows)
		if err != nil {
			return nil, fmt.Errorf("ошибка сканирования движения: %w", err)
		}
		transactions = append(transactions, t)
	}

	return transactions, nil
}

// SumBonusByMember возвращает сумму всех начислений участника
func (r *ledgerRepository) SumBonusByMember(ctx context.Context, memberID int64) (float64, error) {
	query := `
		SELECT COALESCE(SUM(amount), 0)
		FROM transactions
		WHERE member_id = $1 AND type = $2`

	var total float64
	err := r.db.QueryRow(ctx, query, memberID, string(models.TransactionTypeBonus)).Scan(&total)
	if err != nil {
		return 0, fmt.Errorf("ошибка подсчета начислений участника: %w", err)
	}

	return total, nil
}
