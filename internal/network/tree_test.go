package network

import (
	"context"
	"testing"

	"go.uber.org/zap"

	"rede-mlm/pkg/models"
)

// mockMemberStore хранит участников в памяти для тестов дерева
type mockMemberStore struct {
	members map[int64]*models.Member
}

func newMockMemberStore(members ...*models.Member) *mockMemberStore {
	store := &mockMemberStore{members: make(map[int64]*models.Member)}
	for _, m := range members {
		store.members[m.ID] = m
	}
	return store
}

func (s *mockMemberStore) GetByID(ctx context.Context, id int64) (*models.Member, error) {
	member, ok := s.members[id]
	if !ok {
		return nil, models.ErrNotFound
	}
	return member, nil
}

func (s *mockMemberStore) GetDirects(ctx context.Context, sponsorID int64) ([]*models.Member, error) {
	var directs []*models.Member
	// Порядок по ID совпадает с порядком создания в тестовых данных
	for id := int64(1); id <= int64(len(s.members))+10; id++ {
		m, ok := s.members[id]
		if !ok {
			continue
		}
		if m.SponsorID != nil && *m.SponsorID == sponsorID {
			directs = append(directs, m)
		}
	}
	return directs, nil
}

func memberWithSponsor(id int64, sponsorID *int64) *models.Member {
	return &models.Member{ID: id, SponsorID: sponsorID}
}

func ptr(v int64) *int64 {
	return &v
}

func TestGiftSponsor(t *testing.T) {
	sponsor := memberWithSponsor(1, nil)
	first := memberWithSponsor(2, ptr(sponsor.ID))

	tests := []struct {
		name        string
		directs     []*models.Member
		newMemberID int64
		expected    int64
	}{
		{
			name:        "первый реферал остается у спонсора",
			directs:     []*models.Member{first},
			newMemberID: first.ID,
			expected:    sponsor.ID,
		},
		{
			name: "второй реферал уходит в подарок первому",
			directs: []*models.Member{
				first,
				memberWithSponsor(3, ptr(sponsor.ID)),
			},
			newMemberID: 3,
			expected:    first.ID,
		},
		{
			name: "третий реферал уходит в подарок первому",
			directs: []*models.Member{
				first,
				memberWithSponsor(3, ptr(sponsor.ID)),
				memberWithSponsor(4, ptr(sponsor.ID)),
			},
			newMemberID: 4,
			expected:    first.ID,
		},
		{
			name: "четвертый реферал остается у спонсора",
			directs: []*models.Member{
				first,
				memberWithSponsor(3, ptr(sponsor.ID)),
				memberWithSponsor(4, ptr(sponsor.ID)),
				memberWithSponsor(5, ptr(sponsor.ID)),
			},
			newMemberID: 5,
			expected:    sponsor.ID,
		},
		{
			name:        "участник вне списка остается у спонсора",
			directs:     []*models.Member{first},
			newMemberID: 99,
			expected:    sponsor.ID,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := GiftSponsor(sponsor.ID, tt.directs, tt.newMemberID)
			if got != tt.expected {
				t.Errorf("ожидался спонсор %d, получен %d", tt.expected, got)
			}
		})
	}
}

func TestPositionOf(t *testing.T) {
	directs := []*models.Member{
		memberWithSponsor(2, ptr(1)),
		memberWithSponsor(3, ptr(1)),
		memberWithSponsor(4, ptr(1)),
	}

	tests := []struct {
		name     string
		memberID int64
		expected int
	}{
		{"первый в списке", 2, 1},
		{"второй в списке", 3, 2},
		{"третий в списке", 4, 3},
		{"отсутствует в списке", 99, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := PositionOf(directs, tt.memberID)
			if got != tt.expected {
				t.Errorf("ожидалась позиция %d, получена %d", tt.expected, got)
			}
		})
	}
}

func TestAncestorChain(t *testing.T) {
	// Цепочка 5 <- 4 <- 3 <- 2 <- 1, у корня спонсора нет
	store := newMockMemberStore(
		memberWithSponsor(1, nil),
		memberWithSponsor(2, ptr(1)),
		memberWithSponsor(3, ptr(2)),
		memberWithSponsor(4, ptr(3)),
		memberWithSponsor(5, ptr(4)),
	)
	service := NewService(store, zap.NewNop())

	chain, err := service.AncestorChain(context.Background(), 5, models.MaxBonusLevels)
	if err != nil {
		t.Fatalf("неожиданная ошибка: %v", err)
	}

	expected := []int64{4, 3, 2, 1}
	if len(chain) != len(expected) {
		t.Fatalf("ожидалась цепочка из %d предков, получено %d", len(expected), len(chain))
	}
	for i, id := range expected {
		if chain[i].ID != id {
			t.Errorf("на уровне %d ожидался участник %d, получен %d", i+1, id, chain[i].ID)
		}
	}
}

func TestAncestorChainDepthLimit(t *testing.T) {
	// Цепочка длиннее лимита уровней
	store := newMockMemberStore(
		memberWithSponsor(1, nil),
		memberWithSponsor(2, ptr(1)),
		memberWithSponsor(3, ptr(2)),
		memberWithSponsor(4, ptr(3)),
		memberWithSponsor(5, ptr(4)),
		memberWithSponsor(6, ptr(5)),
		memberWithSponsor(7, ptr(6)),
	)
	service := NewService(store, zap.NewNop())

	chain, err := service.AncestorChain(context.Background(), 7, models.MaxBonusLevels)
	if err != nil {
		t.Fatalf("неожиданная ошибка: %v", err)
	}

	if len(chain) != models.MaxBonusLevels {
		t.Errorf("ожидалось %d предков, получено %d", models.MaxBonusLevels, len(chain))
	}
}

func TestAncestorChainCycle(t *testing.T) {
	// Поврежденные данные: 2 и 3 ссылаются друг на друга
	store := newMockMemberStore(
		memberWithSponsor(2, ptr(3)),
		memberWithSponsor(3, ptr(2)),
	)
	service := NewService(store, zap.NewNop())

	chain, err := service.AncestorChain(context.Background(), 2, models.MaxBonusLevels)
	if err != nil {
		t.Fatalf("неожиданная ошибка: %v", err)
	}

	// Обход останавливается на лимите глубины, а не зависает
	if len(chain) != models.MaxBonusLevels {
		t.Errorf("ожидалось %d предков, получено %d", models.MaxBonusLevels, len(chain))
	}
}

func TestAncestorChainDanglingSponsor(t *testing.T) {
	// Спонсор участника 3 удален из базы
	store := newMockMemberStore(
		memberWithSponsor(3, ptr(99)),
	)
	service := NewService(store, zap.NewNop())

	chain, err := service.AncestorChain(context.Background(), 3, models.MaxBonusLevels)
	if err != nil {
		t.Fatalf("неожиданная ошибка: %v", err)
	}

	if len(chain) != 0 {
		t.Errorf("цепочка должна оборваться, получено %d предков", len(chain))
	}
}

func TestDownline(t *testing.T) {
	// 1 -> {2, 3}, 2 -> {4}
	store := newMockMemberStore(
		memberWithSponsor(1, nil),
		memberWithSponsor(2, ptr(1)),
		memberWithSponsor(3, ptr(1)),
		memberWithSponsor(4, ptr(2)),
	)
	service := NewService(store, zap.NewNop())

	tree, err := service.Downline(context.Background(), 1, models.MaxBonusLevels)
	if err != nil {
		t.Fatalf("неожиданная ошибка: %v", err)
	}

	if len(tree.Children) != 2 {
		t.Fatalf("ожидалось 2 прямых реферала, получено %d", len(tree.Children))
	}
	if tree.Children[0].Member.ID != 2 || tree.Children[1].Member.ID != 3 {
		t.Errorf("неверный порядок прямых рефералов: %d, %d",
			tree.Children[0].Member.ID, tree.Children[1].Member.ID)
	}
	if len(tree.Children[0].Children) != 1 || tree.Children[0].Children[0].Member.ID != 4 {
		t.Errorf("ожидался участник 4 под участником 2")
	}
}
