package models

import (
	"time"
)

// Transaction представляет неизменяемую запись в журнале движений кошелька
type Transaction struct {
	ID          int64     `json:"id" db:"id"`
	MemberID    int64     `json:"member_id" db:"member_id"`
	OrderID     *int64    `json:"order_id" db:"order_id"` // Заказ-источник, NULL для выводов
	Amount      float64   `json:"amount" db:"amount"`     // Со знаком: начисления положительные, резервы отрицательные
	Type        string    `json:"type" db:"type"`
	Level       int       `json:"level" db:"level"` // Уровень начисления, 0 для прочих движений
	Description string    `json:"description" db:"description"`
	CreatedAt   time.Time `json:"created_at" db:"created_at"`
}

// TransactionType представляет тип движения по кошельку
type TransactionType string

const (
	TransactionTypeBonus             TransactionType = "bonus"
	TransactionTypeWithdrawalReserve TransactionType = "withdrawal_reserve"
	TransactionTypeWithdrawalRefund  TransactionType = "withdrawal_refund"
)

// IsValid проверяет валидность типа движения
func (tt TransactionType) IsValid() bool {
	switch tt {
	case TransactionTypeBonus, TransactionTypeWithdrawalReserve, TransactionTypeWithdrawalRefund:
		return true
	default:
		return false
	}
}

// Withdrawal представляет заявку участника на вывод средств
type Withdrawal struct {
	ID            int64            `json:"id" db:"id"`
	MemberID      int64            `json:"member_id" db:"member_id"`
	Amount        float64          `json:"amount" db:"amount"`
	Status        WithdrawalStatus `json:"status" db:"status"`
	PayoutDetails string           `json:"payout_details" db:"payout_details"` // Реквизиты для выплаты
	RequestedAt   time.Time        `json:"requested_at" db:"requested_at"`
	ApprovedAt    *time.Time       `json:"approved_at,omitempty" db:"approved_at"`
	PaidAt        *time.Time       `json:"paid_at,omitempty" db:"paid_at"`
	RejectedAt    *time.Time       `json:"rejected_at,omitempty" db:"rejected_at"`
}

// WithdrawalStatus представляет статус заявки на вывод
type WithdrawalStatus string

const (
	WithdrawalStatusPending  WithdrawalStatus = "pending"
	WithdrawalStatusApproved WithdrawalStatus = "approved"
	WithdrawalStatusPaid     WithdrawalStatus = "paid"
	WithdrawalStatusRejected WithdrawalStatus = "rejected"
)

// IsValid проверяет валидность статуса заявки
func (ws WithdrawalStatus) IsValid() bool {
	switch ws {
	case WithdrawalStatusPending, WithdrawalStatusApproved, WithdrawalStatusPaid, WithdrawalStatusRejected:
		return true
	default:
		return false
	}
}

// IsTerminal сообщает, является ли статус заявки конечным
func (ws WithdrawalStatus) IsTerminal() bool {
	return ws == WithdrawalStatusPaid || ws == WithdrawalStatusRejected
}

// WithdrawalAction представляет административное действие над заявкой
type WithdrawalAction string

const (
	WithdrawalActionApprove WithdrawalAction = "approve"
	WithdrawalActionPay     WithdrawalAction = "pay"
	WithdrawalActionReject  WithdrawalAction = "reject"
)

// BonusPayout представляет одно рассчитанное начисление до записи в журнал
type BonusPayout struct {
	MemberID    int64   `json:"member_id"`
	Level       int     `json:"level"`
	Amount      float64 `json:"amount"`
	Description string  `json:"description"`
}
