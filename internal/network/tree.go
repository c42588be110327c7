package network

import (
	"context"
	"errors"
	"fmt"

	"rede-mlm/pkg/models"

	"go.uber.org/zap"
)

// Service отвечает за запросы к дереву спонсорства.
// Дерево не хранится в памяти между вызовами: оно каждый раз читается
// из базы по ссылкам sponsor_id.
type Service struct {
	members MemberStore
	logger  *zap.Logger
}

// MemberStore интерфейс для чтения участников
type MemberStore interface {
	GetByID(ctx context.Context, id int64) (*models.Member, error)
	GetDirects(ctx context.Context, sponsorID int64) ([]*models.Member, error)
}

// NewService создает новый сервис дерева спонсорства
func NewService(members MemberStore, logger *zap.Logger) *Service {
	return &Service{
		members: members,
		logger:  logger,
	}
}

// DirectsOf возвращает прямых рефералов участника в порядке создания
func (s *Service) DirectsOf(ctx context.Context, memberID int64) ([]*models.Member, error) {
	directs, err := s.members.GetDirects(ctx, memberID)
	if err != nil {
		return nil, fmt.Errorf("ошибка получения прямых рефералов: %w", err)
	}
	return directs, nil
}

// AncestorChain возвращает цепочку предков участника: индекс 0 — его
// непосредственный спонсор. Обход идет по ссылкам sponsor_id и жестко
// ограничен maxDepth шагами, поэтому даже поврежденный граф с циклом
// не приводит к бесконечному обходу.
func (s *Service) AncestorChain(ctx context.Context, memberID int64, maxDepth int) ([]*models.Member, error) {
	member, err := s.members.GetByID(ctx, memberID)
	if err != nil {
		return nil, fmt.Errorf("ошибка получения участника для цепочки предков: %w", err)
	}

	chain := make([]*models.Member, 0, maxDepth)
	currentID := member.SponsorID

	for depth := 0; depth < maxDepth && currentID != nil; depth++ {
		ancestor, err := s.members.GetByID(ctx, *currentID)
		if err != nil {
			// Висячая ссылка на спонсора обрывает цепочку, а не начисления
			if errors.Is(err, models.ErrNotFound) {
				s.logger.Warn("цепочка предков оборвана: спонсор не найден",
					zap.Int64("member_id", memberID),
					zap.Int64("sponsor_id", *currentID))
				break
			}
			return nil, fmt.Errorf("ошибка получения предка: %w", err)
		}

		chain = append(chain, ancestor)
		currentID = ancestor.SponsorID
	}

	return chain, nil
}

// Downline строит поддерево структуры участника для отображения.
// Глубина ограничена maxDepth по той же причине, что и в AncestorChain.
func (s *Service) Downline(ctx context.Context, memberID int64, maxDepth int) (*models.DownlineNode, error) {
	member, err := s.members.GetByID(ctx, memberID)
	if err != nil {
		return nil, fmt.Errorf("ошибка получения участника для структуры: %w", err)
	}

	root := &models.DownlineNode{Member: member}

	// Обход в ширину с ограничением глубины
	level := []*models.DownlineNode{root}
	for depth := 0; depth < maxDepth && len(level) > 0; depth++ {
		var next []*models.DownlineNode
		for _, node := range level {
			directs, err := s.members.GetDirects(ctx, node.Member.ID)
			if err != nil {
				return nil, fmt.Errorf("ошибка получения структуры: %w", err)
			}
			for _, direct := range directs {
				child := &models.DownlineNode{Member: direct}
				node.Children = append(node.Children, child)
				next = append(next, child)
			}
		}
		level = next
	}

	return root, nil
}

// PositionOf возвращает позицию участника среди прямых рефералов (с единицы).
// Список должен быть отсортирован по времени создания. Ноль означает,
// что участника в списке нет.
func PositionOf(directs []*models.Member, memberID int64) int {
	for i, direct := range directs {
		if direct.ID == memberID {
			return i + 1
		}
	}
	return 0
}

// GiftSponsor применяет правило "первые два в подарок": второй и третий
// приглашенный переходят под первого. Список directs должен быть построен
// по неизменной ссылке на пригласившего (referred_by), а не по итоговому
// sponsor_id: подаренные участники остаются в списке и позиции следующих
// не сдвигаются. Во всех остальных случаях, включая расхождения в данных,
// остается предварительный спонсор.
func GiftSponsor(provisionalID int64, directs []*models.Member, newMemberID int64) int64 {
	position := PositionOf(directs, newMemberID)

	if position != 2 && position != 3 {
		return provisionalID
	}

	first := directs[0]
	if first.ID == newMemberID {
		return provisionalID
	}

	return first.ID
}
