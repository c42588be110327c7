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

// WithdrawalRepository интерфейс для работы с заявками на вывод
type WithdrawalRepository interface {
	Request(ctx context.Context, withdrawal *models.Withdrawal) error
	GetByID(ctx context.Context, id int64) (*models.Withdrawal, error)
	ListByMember(ctx context.Context, memberID int64) ([]*models.Withdrawal, error)
	Approve(ctx context.Context, withdrawalID int64) error
	MarkPaid(ctx context.Context, withdrawalID int64) error
	Reject(ctx context.Context, withdrawalID int64) error
	SumReserved(ctx context.Context, memberID int64) (float64, error)
	SumReservedAll(ctx context.Context) (float64, error)
}

// withdrawalRepository реализует WithdrawalRepository
type withdrawalRepository struct {
	db     *pgxpool.Pool
	logger *zap.Logger
}

// NewWithdrawalRepository создает новый репозиторий заявок на вывод
func NewWithdrawalRepository(db *pgxpool.Pool, logger *zap.Logger) WithdrawalRepository {
	return &withdrawalRepository{
		db:     db,
		logger: logger,
	}
}

const withdrawalColumns = `id, member_id, amount, status, payout_details, requested_at, approved_at, paid_at, rejected_at`

func scanWithdrawal(row pgx.Row) (*models.Withdrawal, error) {
	w := &models.Withdrawal{}
	err := row.Scan(
		&w.ID, &w.MemberID, &w.Amount, &w.Status, &w.PayoutDetails,
		&w.RequestedAt, &w.ApprovedAt, &w.PaidAt, &w.RejectedAt,
	)
	if err != nil {
		return nil, err
	}
	return w, nil
}

// Request создает заявку на вывод и сразу резервирует сумму на кошельке.
// Списание условное и однооператорное: при нехватке средств UPDATE
// не затрагивает строку, и заявка не создается. Конкурентные заявки
// одного участника поэтому не могут зарезервировать больше баланса.
func (r *withdrawalRepository) Request(ctx context.Context, withdrawal *models.Withdrawal) error {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("ошибка открытия транзакции заявки: %w", err)
	}
	defer tx.Rollback(ctx)

	debitQuery := `
		UPDATE members SET balance = balance - $2, updated_at = $3
		WHERE id = $1 AND balance >= $2`

	now := time.Now()
	result, err := tx.Exec(ctx, debitQuery, withdrawal.MemberID, withdrawal.Amount, now)
	if err != nil {
		return fmt.Errorf("ошибка резервирования средств: %w", err)
	}

	if result.RowsAffected() == 0 {
		// Различаем отсутствующего участника и нехватку средств
		var exists bool
		if err := tx.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM members WHERE id = $1)`, withdrawal.MemberID).Scan(&exists); err != nil {
			return fmt.Errorf("ошибка проверки участника: %w", err)
		}
		if !exists {
			return fmt.Errorf("участник с ID %d: %w", withdrawal.MemberID, models.ErrNotFound)
		}
		return fmt.Errorf("недостаточно средств для вывода %.2f: %w", withdrawal.Amount, models.ErrValidation)
	}

	withdrawal.Status = models.WithdrawalStatusPending
	withdrawal.RequestedAt = now

	err = tx.QueryRow(ctx, `
		INSERT INTO withdrawals (member_id, amount, status, payout_details, requested_at)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id`,
		withdrawal.MemberID, withdrawal.Amount, withdrawal.Status, withdrawal.PayoutDetails, withdrawal.RequestedAt,
	).Scan(&withdrawal.ID)
	if err != nil {
		return fmt.Errorf("ошибка создания заявки на вывод: %w", err)
	}

	// След резерва в журнале движений
	_, err = tx.Exec(ctx, `
		INSERT INTO transactions (member_id, amount, type, description, created_at)
		VALUES ($1, $2, $3, $4, $5)`,
		withdrawal.MemberID, -withdrawal.Amount, string(models.TransactionTypeWithdrawalReserve),
		fmt.Sprintf("Резерв по заявке на вывод #%d", withdrawal.ID), now)
	if err != nil {
		return fmt.Errorf("ошибка записи резерва в журнал: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("ошибка фиксации транзакции заявки: %w", err)
	}

	r.logger.Info("заявка на вывод создана",
		zap.Int64("withdrawal_id", withdrawal.ID),
		zap.Int64("member_id", withdrawal.MemberID),
		zap.Float64("amount", withdrawal.Amount))

	return nil
}

// GetByID получает заявку по ID
func (r *withdrawalRepository) GetByID(ctx context.Context, id int64) (*models.Withdrawal, error) {
	query := `SELECT ` + withdrawalColumns + ` FROM withdrawals WHERE id = $1`

	withdrawal, err := scanWithdrawal(r.db.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("заявка с ID %d: %w", id, models.ErrNotFound)
		}
		return nil, fmt.Errorf("ошибка получения заявки: %w", err)
	}

	return withdrawal, nil
}

// ListByMember получает заявки участника, новые первыми
func (r *withdrawalRepository) ListByMember(ctx context.Context, memberID int64) ([]*models.Withdrawal, error) {
	query := `SELECT ` + withdrawalColumns + ` FROM withdrawals WHERE member_id = $1 ORDER BY requested_at DESC`

	rows, err := r.db.Query(ctx, query, memberID)
	if err != nil {
		return nil, fmt.Errorf("ошибка получения заявок участника: %w", err)
	}
	defer rows.Close()

	var withdrawals []*models.Withdrawal
	for rows.Next() {
		withdrawal, err := scanWithdrawal(rows)
		if err != nil {
			return nil, fmt.Errorf("ошибка сканирования заявки: %w", err)
		}
		withdrawals = append(withdrawals, withdrawal)
	}

	return withdrawals, nil
}

// Approve переводит заявку pending -> approved, баланс не меняется
func (r *withdrawalRepository) Approve(ctx context.Context, withdrawalID int64) error {
	query := `UPDATE withdrawals SET status = $2, approved_at = $3 WHERE id = $1 AND status = $4`

	result, err := r.db.Exec(ctx, query,
		withdrawalID, string(models.WithdrawalStatusApproved), time.Now(), string(models.WithdrawalStatusPending))
	if err != nil {
		return fmt.Errorf("ошибка одобрения заявки: %w", err)
	}

	if result.RowsAffected() == 0 {
		return r.invalidTransition(ctx, withdrawalID)
	}

	r.logger.Info("заявка на вывод одобрена", zap.Int64("withdrawal_id", withdrawalID))
	return nil
}

// MarkPaid переводит заявку approved -> paid. Сумма уже списана
// при создании заявки, баланс не меняется.
func (r *withdrawalRepository) MarkPaid(ctx context.Context, withdrawalID int64) error {
	query := `UPDATE withdrawals SET status = $2, paid_at = $3 WHERE id = $1 AND status = $4`

	result, err := r.db.Exec(ctx, query,
		withdrawalID, string(models.WithdrawalStatusPaid), time.Now(), string(models.WithdrawalStatusApproved))
	if err != nil {
		return fmt.Errorf("ошибка выплаты заявки: %w", err)
	}

	if result.RowsAffected() == 0 {
		return r.invalidTransition(ctx, withdrawalID)
	}

	r.logger.Info("заявка на вывод выплачена", zap.Int64("withdrawal_id", withdrawalID))
	return nil
}

// Reject переводит заявку pending|approved -> rejected и возвращает
// зарезервированную сумму на кошелек в той же транзакции
func (r *withdrawalRepository) Reject(ctx context.Context, withdrawalID int64) error {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("ошибка открытия транзакции отклонения: %w", err)
	}
	defer tx.Rollback(ctx)

	now := time.Now()

	var memberID int64
	var amount float64
	err = tx.QueryRow(ctx, `
		UPDATE withdrawals SET status = $2, rejected_at = $3
		WHERE id = $1 AND status IN ($4, $5)
		RETURNING member_id, amount`,
		withdrawalID, string(models.WithdrawalStatusRejected), now,
		string(models.WithdrawalStatusPending), string(models.WithdrawalStatusApproved),
	).Scan(&memberID, &amount)

	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return r.invalidTransition(ctx, withdrawalID)
		}
		return fmt.Errorf("ошибка отклонения заявки: %w", err)
	}

	_, err = tx.Exec(ctx,
		`UPDATE members SET balance = balance + $2, updated_at = $3 WHERE id = $1`,
		memberID, amount, now)
	if err != nil {
		return fmt.Errorf("ошибка возврата резерва: %w", err)
	}

	_, err = tx.Exec(ctx, `
		INSERT INTO transactions (member_id, amount, type, description, created_at)
		VALUES ($1, $2, $3, $4, $5)`,
		memberID, amount, string(models.TransactionTypeWithdrawalRefund),
		fmt.Sprintf("Возврат резерва по отклоненной заявке #%d", withdrawalID), now)
	if err != nil {
		return fmt.Errorf("ошибка записи возврата в журнал: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("ошибка фиксации транзакции отклонения: %w", err)
	}

	r.logger.Info("заявка на вывод отклонена, резерв возвращен",
		zap.Int64("withdrawal_id", withdrawalID),
		zap.Int64("member_id", memberID),
		zap.Float64("amount", amount))

	return nil
}

// SumReserved возвращает сумму зарезервированных средств участника
// по незавершенным заявкам
func (r *withdrawalRepository) SumReserved(ctx context.Context, memberID int64) (float64, error) {
	query := `
		SELECT COALESCE(SUM(amount), 0)
		FROM withdrawals
		WHERE member_id = $1 AND status IN ($2, $3)`

	var total float64
	err := r.db.QueryRow(ctx, query, memberID,
		string(models.WithdrawalStatusPending), string(models.WithdrawalStatusApproved)).Scan(&total)
	if err != nil {
		return 0, fmt.Errorf("ошибка подсчета резервов участника: %w", err)
	}

	return total, nil
}

// SumReservedAll возвращает сумму резервов по всем незавершенным заявкам.
// Используется для восстановления метрики резервов после перезапуска.
func (r *withdrawalRepository) SumReservedAll(ctx context.Context) (float64, error) {
	query := `
		SELECT COALESCE(SUM(amount), 0)
		FROM withdrawals
		WHERE status IN ($1, $2)`

	var total float64
	err := r.db.QueryRow(ctx, query,
		string(models.WithdrawalStatusPending), string(models.WithdrawalStatusApproved)).Scan(&total)
	if err != nil {
		return 0, fmt.Errorf("ошибка подсчета общих резервов: %w", err)
	}

	return total, nil
}

// invalidTransition формирует ошибку по фактическому статусу заявки
func (r *withdrawalRepository) invalidTransition(ctx context.Context, withdrawalID int64) error {
	withdrawal, err := r.GetByID(ctx, withdrawalID)
	if err != nil {
		return err
	}
	return fmt.Errorf("заявка %d в статусе %s: %w", withdrawalID, withdrawal.Status, models.ErrInvalidState)
}
