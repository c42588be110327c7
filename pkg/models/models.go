package models

import (
	"math"
	"time"
)

// Member представляет участника сети
type Member struct {
	ID           int64      `json:"id" db:"id"`
	Name         string     `json:"name" db:"name"`
	Email        string     `json:"email" db:"email"`
	Role         string     `json:"role" db:"role"`                   // admin, member
	ReferredBy   *int64     `json:"referred_by" db:"referred_by"`     // Пригласивший участник; пишется при регистрации и не меняется
	SponsorID    *int64     `json:"sponsor_id" db:"sponsor_id"`       // Окончательный спонсор, фиксируется при подтверждении
	Balance      float64    `json:"balance" db:"balance"`             // Баланс кошелька, не бывает отрицательным
	ReferralCode *string    `json:"referral_code" db:"referral_code"` // Уникальный реферальный код
	ApprovedAt   *time.Time `json:"approved_at" db:"approved_at"`     // Момент подтверждения и фиксации спонсора
	CreatedAt    time.Time  `json:"created_at" db:"created_at"`
	UpdatedAt    time.Time  `json:"updated_at" db:"updated_at"`
}

// IsApproved сообщает, подтвержден ли участник администратором
func (m *Member) IsApproved() bool {
	return m.ApprovedAt != nil
}

// IsAdmin сообщает, является ли участник администратором
func (m *Member) IsAdmin() bool {
	return m.Role == RoleAdmin
}

// Order представляет покупку товара или вступительного взноса
type Order struct {
	ID        int64       `json:"id" db:"id"`
	BuyerID   int64       `json:"buyer_id" db:"buyer_id"`
	ProductID *int64      `json:"product_id" db:"product_id"` // NULL для вступительного взноса
	Amount    float64     `json:"amount" db:"amount"`
	Status    OrderStatus `json:"status" db:"status"` // pending, paid, cancelled
	CreatedAt time.Time   `json:"created_at" db:"created_at"`
	PaidAt    *time.Time  `json:"paid_at" db:"paid_at"`
}

// IsAdhesion сообщает, является ли заказ вступительным взносом
func (o *Order) IsAdhesion() bool {
	return o.ProductID == nil
}

// BonusConfig содержит проценты по уровням и лимиты выплат.
// Единственная строка в таблице, редактируется администратором
// и перечитывается движком при каждом начислении.
type BonusConfig struct {
	ID               int64     `json:"id" db:"id"`
	Level1           float64   `json:"level1" db:"level1"`
	Level2           float64   `json:"level2" db:"level2"`
	Level3           float64   `json:"level3" db:"level3"`
	Level4           float64   `json:"level4" db:"level4"`
	Level5           float64   `json:"level5" db:"level5"`
	MinWithdrawal    float64   `json:"min_withdrawal" db:"min_withdrawal"`
	AdhesionFee      float64   `json:"adhesion_fee" db:"adhesion_fee"`
	DefaultSponsorID int64     `json:"default_sponsor_id" db:"default_sponsor_id"`
	UpdatedAt        time.Time `json:"updated_at" db:"updated_at"`
}

// LevelPercents возвращает проценты по уровням в порядке глубины
func (c *BonusConfig) LevelPercents() [MaxBonusLevels]float64 {
	return [MaxBonusLevels]float64{c.Level1, c.Level2, c.Level3, c.Level4, c.Level5}
}

// MaxBonusLevels — глубина цепочки начислений
const MaxBonusLevels = 5

// Constants для ролей участников
const (
	RoleAdmin  = "admin"
	RoleMember = "member"
)

// OrderStatus представляет статус заказа
type OrderStatus string

const (
	OrderStatusPending   OrderStatus = "pending"
	OrderStatusPaid      OrderStatus = "paid"
	OrderStatusCancelled OrderStatus = "cancelled"
)

// IsValid проверяет валидность статуса заказа
func (os OrderStatus) IsValid() bool {
	switch os {
	case OrderStatusPending, OrderStatusPaid, OrderStatusCancelled:
		return true
	default:
		return false
	}
}

// IsValidRole проверяет корректность роли участника
func IsValidRole(role string) bool {
	switch role {
	case RoleAdmin, RoleMember:
		return true
	default:
		return false
	}
}

// Round2 округляет денежную сумму до двух знаков.
// Каждый уровень округляется независимо, остаток между уровнями не переносится.
func Round2(v float64) float64 {
	return math.Round(v*100) / 100
}

// RegisterMemberRequest представляет запрос на регистрацию участника
type RegisterMemberRequest struct {
	Name         string `json:"name" validate:"required"`
	Email        string `json:"email" validate:"required,email"`
	ReferralCode string `json:"referral_code"` // Пустой код означает спонсора по умолчанию
}

// DownlineNode представляет узел дерева структуры для отображения
type DownlineNode struct {
	Member   *Member         `json:"member"`
	Children []*DownlineNode `json:"children,omitempty"`
}
