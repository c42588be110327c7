package member

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"rede-mlm/pkg/models"
)

type mockMemberRepo struct {
	members map[int64]*models.Member
	nextID  int64
	codes   int
}

func newMockMemberRepo(members ...*models.Member) *mockMemberRepo {
	repo := &mockMemberRepo{members: make(map[int64]*models.Member), nextID: 100}
	for _, m := range members {
		repo.members[m.ID] = m
	}
	return repo
}

func (r *mockMemberRepo) Create(ctx context.Context, member *models.Member) error {
	member.ID = r.nextID
	r.nextID++
	member.CreatedAt = time.Now()
	r.members[member.ID] = member
	return nil
}

func (r *mockMemberRepo) GetByID(ctx context.Context, id int64) (*models.Member, error) {
	member, ok := r.members[id]
	if !ok {
		return nil, models.ErrNotFound
	}
	return member, nil
}

func (r *mockMemberRepo) GetByEmail(ctx context.Context, email string) (*models.Member, error) {
	for _, m := range r.members {
		if m.Email == email {
			return m, nil
		}
	}
	return nil, models.ErrNotFound
}

func (r *mockMemberRepo) GetByReferralCode(ctx context.Context, code string) (*models.Member, error) {
	for _, m := range r.members {
		if m.ReferralCode != nil && *m.ReferralCode == code {
			return m, nil
		}
	}
	return nil, models.ErrNotFound
}

func (r *mockMemberRepo) Update(ctx context.Context, member *models.Member) error {
	if _, ok := r.members[member.ID]; !ok {
		return models.ErrNotFound
	}
	r.members[member.ID] = member
	return nil
}

func (r *mockMemberRepo) GenerateReferralCode(ctx context.Context) (string, error) {
	r.codes++
	return fmt.Sprintf("CODE%04d", r.codes), nil
}

type mockPlacement struct {
	resolved []int64
	repo     *mockMemberRepo
}

func (p *mockPlacement) Resolve(ctx context.Context, memberID int64) (*models.Member, error) {
	member, err := p.repo.GetByID(ctx, memberID)
	if err != nil {
		return nil, err
	}
	if member.IsApproved() {
		return nil, fmt.Errorf("участник %d уже подтвержден: %w", memberID, models.ErrInvalidState)
	}
	now := time.Now()
	member.ApprovedAt = &now
	p.resolved = append(p.resolved, memberID)
	return member, nil
}

type mockLedgerRepo struct {
	transactions []*models.Transaction
}

func (m *mockLedgerRepo) ListByMember(ctx context.Context, memberID int64, limit int) ([]*models.Transaction, error) {
	var result []*models.Transaction
	for _, tr := range m.transactions {
		if tr.MemberID == memberID {
			result = append(result, tr)
		}
		if len(result) == limit {
			break
		}
	}
	return result, nil
}

func (m *mockLedgerRepo) SumBonusByMember(ctx context.Context, memberID int64) (float64, error) {
	total := 0.0
	for _, tr := range m.transactions {
		if tr.MemberID == memberID && tr.Type == string(models.TransactionTypeBonus) {
			total += tr.Amount
		}
	}
	return total, nil
}

type mockConfigRepo struct {
	cfg *models.BonusConfig
}

func (m *mockConfigRepo) Get(ctx context.Context) (*models.BonusConfig, error) {
	if m.cfg == nil {
		return nil, models.ErrNotFound
	}
	copied := *m.cfg
	return &copied, nil
}

func (m *mockConfigRepo) Update(ctx context.Context, cfg *models.BonusConfig) error {
	if m.cfg == nil {
		return models.ErrNotFound
	}
	copied := *cfg
	m.cfg = &copied
	return nil
}

type mockNetwork struct{}

func (mockNetwork) DirectsOf(ctx context.Context, memberID int64) ([]*models.Member, error) {
	return nil, nil
}

func (mockNetwork) Downline(ctx context.Context, memberID int64, maxDepth int) (*models.DownlineNode, error) {
	return &models.DownlineNode{}, nil
}

func newTestService(repo *mockMemberRepo) *Service {
	return NewService(repo, &mockLedgerRepo{}, &mockConfigRepo{cfg: testBonusConfig()},
		&mockPlacement{repo: repo}, mockNetwork{}, zap.NewNop())
}

func testBonusConfig() *models.BonusConfig {
	return &models.BonusConfig{
		ID:               1,
		Level1:           10,
		Level2:           5,
		Level3:           3,
		Level4:           2,
		Level5:           1,
		MinWithdrawal:    50,
		AdhesionFee:      250,
		DefaultSponsorID: 1,
	}
}

func approvedSponsor(id int64, code string) *models.Member {
	now := time.Now()
	return &models.Member{
		ID:           id,
		Role:         models.RoleMember,
		ReferralCode: &code,
		ApprovedAt:   &now,
	}
}

func TestRegisterWithReferralCode(t *testing.T) {
	repo := newMockMemberRepo(approvedSponsor(5, "ABC123"))
	service := newTestService(repo)

	member, err := service.Register(context.Background(), &models.RegisterMemberRequest{
		Name:         "Maria Silva",
		Email:        "Maria@Example.com",
		ReferralCode: "ABC123",
	})
	require.NoError(t, err)

	assert.Equal(t, "maria@example.com", member.Email, "email нормализуется")
	require.NotNil(t, member.ReferredBy)
	assert.Equal(t, int64(5), *member.ReferredBy)
	assert.Nil(t, member.SponsorID, "окончательный спонсор фиксируется только при подтверждении")
	assert.False(t, member.IsApproved())
	assert.Equal(t, models.RoleMember, member.Role)
}

func TestRegisterWithoutReferralCode(t *testing.T) {
	repo := newMockMemberRepo()
	service := newTestService(repo)

	member, err := service.Register(context.Background(), &models.RegisterMemberRequest{
		Name:  "Joao Souza",
		Email: "joao@example.com",
	})
	require.NoError(t, err)

	// Пригласивший и спонсор остаются пустыми до подтверждения
	assert.Nil(t, member.ReferredBy)
	assert.Nil(t, member.SponsorID)
}

func TestRegisterUnknownReferralCode(t *testing.T) {
	repo := newMockMemberRepo()
	service := newTestService(repo)

	_, err := service.Register(context.Background(), &models.RegisterMemberRequest{
		Name:         "Maria",
		Email:        "maria@example.com",
		ReferralCode: "NOPE",
	})
	assert.ErrorIs(t, err, models.ErrValidation)
}

func TestRegisterUnapprovedSponsor(t *testing.T) {
	code := "ABC123"
	repo := newMockMemberRepo(&models.Member{ID: 5, ReferralCode: &code})
	service := newTestService(repo)

	_, err := service.Register(context.Background(), &models.RegisterMemberRequest{
		Name:         "Maria",
		Email:        "maria@example.com",
		ReferralCode: code,
	})
	assert.ErrorIs(t, err, models.ErrValidation)
}

func TestRegisterDuplicateEmail(t *testing.T) {
	repo := newMockMemberRepo(&models.Member{ID: 5, Email: "maria@example.com"})
	service := newTestService(repo)

	_, err := service.Register(context.Background(), &models.RegisterMemberRequest{
		Name:  "Maria",
		Email: "maria@example.com",
	})
	assert.ErrorIs(t, err, models.ErrConflict)
}

func TestRegisterEmptyFields(t *testing.T) {
	repo := newMockMemberRepo()
	service := newTestService(repo)

	_, err := service.Register(context.Background(), &models.RegisterMemberRequest{Name: "  "})
	assert.ErrorIs(t, err, models.ErrValidation)
}

func TestApproveRequiresAdmin(t *testing.T) {
	now := time.Now()
	repo := newMockMemberRepo(
		&models.Member{ID: 1, Role: models.RoleMember, ApprovedAt: &now},
		&models.Member{ID: 10, Role: models.RoleMember},
	)
	placement := &mockPlacement{repo: repo}
	service := NewService(repo, &mockLedgerRepo{}, &mockConfigRepo{cfg: testBonusConfig()},
		placement, mockNetwork{}, zap.NewNop())

	_, err := service.Approve(context.Background(), 1, 10)
	assert.ErrorIs(t, err, models.ErrForbidden)
	assert.Empty(t, placement.resolved)
}

func TestApprove(t *testing.T) {
	repo := newMockMemberRepo(
		&models.Member{ID: 1, Role: models.RoleAdmin},
		&models.Member{ID: 10, Role: models.RoleMember},
	)
	placement := &mockPlacement{repo: repo}
	service := NewService(repo, &mockLedgerRepo{}, &mockConfigRepo{cfg: testBonusConfig()},
		placement, mockNetwork{}, zap.NewNop())

	member, err := service.Approve(context.Background(), 1, 10)
	require.NoError(t, err)

	assert.True(t, member.IsApproved())
	assert.Equal(t, []int64{10}, placement.resolved)

	// Повторное подтверждение не проходит
	_, err = service.Approve(context.Background(), 1, 10)
	assert.ErrorIs(t, err, models.ErrInvalidState)
}

func TestGetOrGenerateReferralCode(t *testing.T) {
	now := time.Now()
	repo := newMockMemberRepo(&models.Member{ID: 10, Role: models.RoleMember, ApprovedAt: &now})
	service := newTestService(repo)

	code, err := service.GetOrGenerateReferralCode(context.Background(), 10)
	require.NoError(t, err)
	assert.NotEmpty(t, code)

	// Повторный вызов возвращает тот же код
	again, err := service.GetOrGenerateReferralCode(context.Background(), 10)
	require.NoError(t, err)
	assert.Equal(t, code, again)
	assert.Equal(t, 1, repo.codes)
}

func TestStatement(t *testing.T) {
	repo := newMockMemberRepo(&models.Member{ID: 10, Role: models.RoleMember, Balance: 70})
	ledger := &mockLedgerRepo{transactions: []*models.Transaction{
		{ID: 1, MemberID: 10, Amount: 25, Type: string(models.TransactionTypeBonus)},
		{ID: 2, MemberID: 10, Amount: 12.5, Type: string(models.TransactionTypeBonus)},
		{ID: 3, MemberID: 10, Amount: -30, Type: string(models.TransactionTypeWithdrawalReserve)},
		{ID: 4, MemberID: 99, Amount: 100, Type: string(models.TransactionTypeBonus)},
	}}
	service := NewService(repo, ledger, &mockConfigRepo{cfg: testBonusConfig()},
		&mockPlacement{repo: repo}, mockNetwork{}, zap.NewNop())

	transactions, bonusTotal, err := service.Statement(context.Background(), 10, 20)
	require.NoError(t, err)

	// Чужие движения не попадают в выписку, сумма только по начислениям
	assert.Len(t, transactions, 3)
	assert.Equal(t, 37.5, bonusTotal)
}

func TestStatementMissingMember(t *testing.T) {
	service := newTestService(newMockMemberRepo())

	_, _, err := service.Statement(context.Background(), 404, 20)
	assert.ErrorIs(t, err, models.ErrNotFound)
}

func TestUpdateBonusConfig(t *testing.T) {
	repo := newMockMemberRepo(&models.Member{ID: 1, Role: models.RoleAdmin})
	config := &mockConfigRepo{cfg: testBonusConfig()}
	service := NewService(repo, &mockLedgerRepo{}, config,
		&mockPlacement{repo: repo}, mockNetwork{}, zap.NewNop())

	updated := testBonusConfig()
	updated.Level1 = 12
	updated.MinWithdrawal = 100

	result, err := service.UpdateBonusConfig(context.Background(), 1, updated)
	require.NoError(t, err)
	assert.Equal(t, 12.0, result.Level1)
	assert.Equal(t, 100.0, result.MinWithdrawal)

	// Изменения сохранены и видны следующему чтению
	stored, err := service.BonusConfig(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 12.0, stored.Level1)
	assert.Equal(t, 100.0, stored.MinWithdrawal)
	assert.Equal(t, int64(1), stored.DefaultSponsorID, "спонсор по умолчанию не меняется")
}

func TestUpdateBonusConfigRequiresAdmin(t *testing.T) {
	repo := newMockMemberRepo(&models.Member{ID: 10, Role: models.RoleMember})
	service := newTestService(repo)

	_, err := service.UpdateBonusConfig(context.Background(), 10, testBonusConfig())
	assert.ErrorIs(t, err, models.ErrForbidden)
}

func TestUpdateBonusConfigValidation(t *testing.T) {
	repo := newMockMemberRepo(&models.Member{ID: 1, Role: models.RoleAdmin})
	service := newTestService(repo)

	badPercent := testBonusConfig()
	badPercent.Level2 = 150
	_, err := service.UpdateBonusConfig(context.Background(), 1, badPercent)
	assert.ErrorIs(t, err, models.ErrValidation)

	badMin := testBonusConfig()
	badMin.MinWithdrawal = 0
	_, err = service.UpdateBonusConfig(context.Background(), 1, badMin)
	assert.ErrorIs(t, err, models.ErrValidation)
}

func TestGetOrGenerateReferralCodeUnapproved(t *testing.T) {
	repo := newMockMemberRepo(&models.Member{ID: 10, Role: models.RoleMember})
	service := newTestService(repo)

	_, err := service.GetOrGenerateReferralCode(context.Background(), 10)
	assert.ErrorIs(t, err, models.ErrInvalidState)
}
