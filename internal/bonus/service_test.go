package bonus

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"rede-mlm/pkg/models"
)

type mockOrderRepo struct {
	orders map[int64]*models.Order
}

func (m *mockOrderRepo) GetByID(ctx context.Context, id int64) (*models.Order, error) {
	order, ok := m.orders[id]
	if !ok {
		return nil, models.ErrNotFound
	}
	return order, nil
}

// mockLedgerRepo имитирует ключ идемпотентности журнала:
// пара заказ-участник начисляется не более одного раза
type mockLedgerRepo struct {
	applied map[int64]map[int64]models.BonusPayout
}

func newMockLedgerRepo() *mockLedgerRepo {
	return &mockLedgerRepo{applied: make(map[int64]map[int64]models.BonusPayout)}
}

func (m *mockLedgerRepo) ApplyBonusPayouts(ctx context.Context, orderID int64, payouts []models.BonusPayout) ([]models.BonusPayout, error) {
	if m.applied[orderID] == nil {
		m.applied[orderID] = make(map[int64]models.BonusPayout)
	}

	newlyApplied := make([]models.BonusPayout, 0, len(payouts))
	for _, p := range payouts {
		if _, exists := m.applied[orderID][p.MemberID]; exists {
			continue
		}
		m.applied[orderID][p.MemberID] = p
		newlyApplied = append(newlyApplied, p)
	}
	return newlyApplied, nil
}

type mockMetrics struct {
	paidByLevel map[int]float64
}

func newMockMetrics() *mockMetrics {
	return &mockMetrics{paidByLevel: make(map[int]float64)}
}

func (m *mockMetrics) RecordBonusPaid(level int, amount float64) {
	m.paidByLevel[level] += amount
}

type mockConfigRepo struct {
	cfg *models.BonusConfig
}

func (m *mockConfigRepo) Get(ctx context.Context) (*models.BonusConfig, error) {
	if m.cfg == nil {
		return nil, models.ErrNotFound
	}
	return m.cfg, nil
}

type mockNetwork struct {
	chains map[int64][]*models.Member
}

func (m *mockNetwork) AncestorChain(ctx context.Context, memberID int64, maxDepth int) ([]*models.Member, error) {
	chain := m.chains[memberID]
	if len(chain) > maxDepth {
		chain = chain[:maxDepth]
	}
	return chain, nil
}

func defaultConfig() *models.BonusConfig {
	return &models.BonusConfig{
		ID:            1,
		Level1:        10,
		Level2:        5,
		Level3:        3,
		Level4:        2,
		Level5:        1,
		MinWithdrawal: 50,
		AdhesionFee:   250,
	}
}

func paidOrder(id, buyerID int64, amount float64) *models.Order {
	now := time.Now()
	return &models.Order{
		ID:      id,
		BuyerID: buyerID,
		Amount:  amount,
		Status:  models.OrderStatusPaid,
		PaidAt:  &now,
	}
}

func TestDistributeThreeLevels(t *testing.T) {
	// Покупатель 10, цепочка предков 3 <- 2 <- 1
	orders := &mockOrderRepo{orders: map[int64]*models.Order{
		100: paidOrder(100, 10, 250),
	}}
	ledger := newMockLedgerRepo()
	network := &mockNetwork{chains: map[int64][]*models.Member{
		10: {{ID: 3}, {ID: 2}, {ID: 1}},
	}}

	service := NewService(orders, ledger, &mockConfigRepo{cfg: defaultConfig()}, network, nil, zap.NewNop())

	applied, err := service.Distribute(context.Background(), 100)
	require.NoError(t, err)
	assert.Equal(t, 3, applied)

	// 10%, 5% и 3% от 250
	assert.Equal(t, 25.0, ledger.applied[100][3].Amount)
	assert.Equal(t, 12.5, ledger.applied[100][2].Amount)
	assert.Equal(t, 7.5, ledger.applied[100][1].Amount)

	assert.Equal(t, 1, ledger.applied[100][3].Level)
	assert.Equal(t, 2, ledger.applied[100][2].Level)
	assert.Equal(t, 3, ledger.applied[100][1].Level)
}

func TestDistributeChainLongerThanLevels(t *testing.T) {
	orders := &mockOrderRepo{orders: map[int64]*models.Order{
		100: paidOrder(100, 10, 1000),
	}}
	ledger := newMockLedgerRepo()
	network := &mockNetwork{chains: map[int64][]*models.Member{
		10: {{ID: 7}, {ID: 6}, {ID: 5}, {ID: 4}, {ID: 3}, {ID: 2}, {ID: 1}},
	}}

	service := NewService(orders, ledger, &mockConfigRepo{cfg: defaultConfig()}, network, nil, zap.NewNop())

	applied, err := service.Distribute(context.Background(), 100)
	require.NoError(t, err)

	// Начисления строго по пяти уровням
	assert.Equal(t, models.MaxBonusLevels, applied)
	assert.Len(t, ledger.applied[100], models.MaxBonusLevels)
	_, paidBeyond := ledger.applied[100][2]
	assert.False(t, paidBeyond, "шестой уровень не должен получать начисление")
}

func TestDistributeNoSponsor(t *testing.T) {
	orders := &mockOrderRepo{orders: map[int64]*models.Order{
		100: paidOrder(100, 10, 250),
	}}
	ledger := newMockLedgerRepo()
	network := &mockNetwork{chains: map[int64][]*models.Member{}}

	service := NewService(orders, ledger, &mockConfigRepo{cfg: defaultConfig()}, network, nil, zap.NewNop())

	applied, err := service.Distribute(context.Background(), 100)
	require.NoError(t, err)
	assert.Equal(t, 0, applied)
	assert.Empty(t, ledger.applied[100])
}

func TestDistributeUnpaidOrder(t *testing.T) {
	orders := &mockOrderRepo{orders: map[int64]*models.Order{
		100: {ID: 100, BuyerID: 10, Amount: 250, Status: models.OrderStatusPending},
	}}
	ledger := newMockLedgerRepo()
	network := &mockNetwork{chains: map[int64][]*models.Member{
		10: {{ID: 1}},
	}}

	service := NewService(orders, ledger, &mockConfigRepo{cfg: defaultConfig()}, network, nil, zap.NewNop())

	_, err := service.Distribute(context.Background(), 100)
	assert.ErrorIs(t, err, models.ErrInvalidState)
	assert.Empty(t, ledger.applied[100])
}

func TestDistributeIdempotent(t *testing.T) {
	orders := &mockOrderRepo{orders: map[int64]*models.Order{
		100: paidOrder(100, 10, 250),
	}}
	ledger := newMockLedgerRepo()
	network := &mockNetwork{chains: map[int64][]*models.Member{
		10: {{ID: 3}, {ID: 2}, {ID: 1}},
	}}

	service := NewService(orders, ledger, &mockConfigRepo{cfg: defaultConfig()}, network, nil, zap.NewNop())

	applied, err := service.Distribute(context.Background(), 100)
	require.NoError(t, err)
	assert.Equal(t, 3, applied)

	// Повторный запуск не создает двойных выплат
	applied, err = service.Distribute(context.Background(), 100)
	require.NoError(t, err)
	assert.Equal(t, 0, applied)
	assert.Len(t, ledger.applied[100], 3)
}

func TestDistributeRetryRecordsMetricsForNewLevels(t *testing.T) {
	orders := &mockOrderRepo{orders: map[int64]*models.Order{
		100: paidOrder(100, 10, 250),
	}}

	// Первый уровень уже выплачен прошлым запуском, оборвавшимся до конца
	ledger := newMockLedgerRepo()
	ledger.applied[100] = map[int64]models.BonusPayout{
		3: {MemberID: 3, Level: 1, Amount: 25},
	}

	network := &mockNetwork{chains: map[int64][]*models.Member{
		10: {{ID: 3}, {ID: 2}, {ID: 1}},
	}}
	metrics := newMockMetrics()

	service := NewService(orders, ledger, &mockConfigRepo{cfg: defaultConfig()}, network, metrics, zap.NewNop())

	applied, err := service.Distribute(context.Background(), 100)
	require.NoError(t, err)
	assert.Equal(t, 2, applied)

	// Метрики записаны только по доначисленным уровням
	assert.NotContains(t, metrics.paidByLevel, 1)
	assert.Equal(t, 12.5, metrics.paidByLevel[2])
	assert.Equal(t, 7.5, metrics.paidByLevel[3])
}

func TestDistributeZeroPercentLevelSkipped(t *testing.T) {
	cfg := defaultConfig()
	cfg.Level2 = 0

	orders := &mockOrderRepo{orders: map[int64]*models.Order{
		100: paidOrder(100, 10, 250),
	}}
	ledger := newMockLedgerRepo()
	network := &mockNetwork{chains: map[int64][]*models.Member{
		10: {{ID: 3}, {ID: 2}, {ID: 1}},
	}}

	service := NewService(orders, ledger, &mockConfigRepo{cfg: cfg}, network, nil, zap.NewNop())

	applied, err := service.Distribute(context.Background(), 100)
	require.NoError(t, err)

	// Нулевой уровень пропущен, остальные выплачены
	assert.Equal(t, 2, applied)
	_, secondLevelPaid := ledger.applied[100][2]
	assert.False(t, secondLevelPaid)
	assert.Equal(t, 25.0, ledger.applied[100][3].Amount)
	assert.Equal(t, 7.5, ledger.applied[100][1].Amount)
}

func TestDistributeRounding(t *testing.T) {
	orders := &mockOrderRepo{orders: map[int64]*models.Order{
		100: paidOrder(100, 10, 99.99),
	}}
	ledger := newMockLedgerRepo()
	network := &mockNetwork{chains: map[int64][]*models.Member{
		10: {{ID: 2}, {ID: 1}},
	}}

	service := NewService(orders, ledger, &mockConfigRepo{cfg: defaultConfig()}, network, nil, zap.NewNop())

	_, err := service.Distribute(context.Background(), 100)
	require.NoError(t, err)

	// Каждый уровень округляется до копеек независимо
	assert.Equal(t, 10.0, ledger.applied[100][2].Amount)
	assert.Equal(t, 5.0, ledger.applied[100][1].Amount)
}

func TestDistributeMissingOrder(t *testing.T) {
	service := NewService(
		&mockOrderRepo{orders: map[int64]*models.Order{}},
		newMockLedgerRepo(),
		&mockConfigRepo{cfg: defaultConfig()},
		&mockNetwork{chains: map[int64][]*models.Member{}},
		nil,
		zap.NewNop(),
	)

	_, err := service.Distribute(context.Background(), 404)
	assert.ErrorIs(t, err, models.ErrNotFound)
}
