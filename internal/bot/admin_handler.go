package bot

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"go.uber.org/zap"

	"rede-mlm/internal/member"
	"rede-mlm/internal/withdrawal"
	"rede-mlm/pkg/models"
)

// AdminHandler обрабатывает команды администратора в Telegram.
// Команды выполняются от имени корневого администратора.
type AdminHandler struct {
	api               *tgbotapi.BotAPI
	memberService     *member.Service
	withdrawalService *withdrawal.Service
	adminChatID       int64
	adminMemberID     int64
	logger            *zap.Logger
}

// NewAdminHandler создает новый обработчик команд администратора
func NewAdminHandler(
	api *tgbotapi.BotAPI,
	memberService *member.Service,
	withdrawalService *withdrawal.Service,
	adminChatID int64,
	adminMemberID int64,
	logger *zap.Logger,
) *AdminHandler {
	return &AdminHandler{
		api:               api,
		memberService:     memberService,
		withdrawalService: withdrawalService,
		adminChatID:       adminChatID,
		adminMemberID:     adminMemberID,
		logger:            logger,
	}
}

// HandleUpdate обрабатывает обновление от Telegram
func (h *AdminHandler) HandleUpdate(ctx context.Context, update tgbotapi.Update) error {
	if update.Message == nil || !update.Message.IsCommand() {
		return nil
	}

	// Команды принимаются только из чата администратора
	if update.Message.Chat.ID != h.adminChatID {
		h.logger.Warn("команда из постороннего чата проигнорирована",
			zap.Int64("chat_id", update.Message.Chat.ID))
		return nil
	}

	command := update.Message.Command()
	args := strings.Fields(update.Message.CommandArguments())

	h.logger.Info("получена команда администратора",
		zap.String("command", command),
		zap.Strings("args", args))

	var reply string
	var err error

	switch command {
	case "start", "help":
		reply = h.helpText()
	case "aprovar":
		reply, err = h.handleApprove(ctx, args)
	case "rede":
		reply, err = h.handleDownline(ctx, args)
	case "extrato":
		reply, err = h.handleStatement(ctx, args)
	case "config":
		reply, err = h.handleShowConfig(ctx)
	case "config_niveis":
		reply, err = h.handleConfigLevels(ctx, args)
	case "config_min":
		reply, err = h.handleConfigMin(ctx, args)
	case "config_taxa":
		reply, err = h.handleConfigFee(ctx, args)
	case "saques":
		reply, err = h.handleListWithdrawals(ctx, args)
	case "saque_aprovar":
		reply, err = h.handleWithdrawalAction(ctx, args, models.WithdrawalActionApprove)
	case "saque_pagar":
		reply, err = h.handleWithdrawalAction(ctx, args, models.WithdrawalActionPay)
	case "saque_rejeitar":
		reply, err = h.handleWithdrawalAction(ctx, args, models.WithdrawalActionReject)
	default:
		reply = "Неизвестная команда. Отправьте /help для списка команд."
	}

	if err != nil {
		h.logger.Error("ошибка выполнения команды",
			zap.String("command", command),
			zap.Error(err))
		reply = fmt.Sprintf("Ошибка: %v", err)
	}

	msg := tgbotapi.NewMessage(h.adminChatID, reply)
	if _, sendErr := h.api.Send(msg); sendErr != nil {
		return fmt.Errorf("ошибка отправки ответа: %w", sendErr)
	}

	return nil
}

func (h *AdminHandler) helpText() string {
	return strings.Join([]string{
		"Команды администратора:",
		"/aprovar <id> — подтвердить участника и разместить в структуре",
		"/rede <id> — показать структуру участника",
		"/extrato <id> — выписка по кошельку участника",
		"/config — показать бонусную таблицу",
		"/config_niveis <p1> <p2> <p3> <p4> <p5> — проценты уровней",
		"/config_min <сумма> — минимальная сумма вывода",
		"/config_taxa <сумма> — вступительный взнос",
		"/saques <id> — заявки участника на вывод",
		"/saque_aprovar <id> — одобрить заявку на вывод",
		"/saque_pagar <id> — отметить заявку выплаченной",
		"/saque_rejeitar <id> — отклонить заявку и вернуть резерв",
	}, "\n")
}

// handleApprove подтверждает участника и сообщает итогового спонсора
func (h *AdminHandler) handleApprove(ctx context.Context, args []string) (string, error) {
	memberID, err := h.parseID(args)
	if err != nil {
		return "", err
	}

	approved, err := h.memberService.Approve(ctx, h.adminMemberID, memberID)
	if err != nil {
		return "", err
	}

	var sponsorID int64
	if approved.SponsorID != nil {
		sponsorID = *approved.SponsorID
	}

	return fmt.Sprintf("Участник %s (ID %d) подтвержден, спонсор: %d",
		approved.Name, approved.ID, sponsorID), nil
}

// handleDownline показывает дерево структуры участника
func (h *AdminHandler) handleDownline(ctx context.Context, args []string) (string, error) {
	memberID, err := h.parseID(args)
	if err != nil {
		return "", err
	}

	tree, err := h.memberService.Downline(ctx, memberID, models.MaxBonusLevels)
	if err != nil {
		return "", err
	}

	var sb strings.Builder
	writeDownline(&sb, tree, 0)
	return sb.String(), nil
}

// handleStatement показывает выписку по кошельку участника: баланс,
// сумму начислений, резерв и последние движения
func (h *AdminHandler) handleStatement(ctx context.Context, args []string) (string, error) {
	memberID, err := h.parseID(args)
	if err != nil {
		return "", err
	}

	member, err := h.memberService.GetByID(ctx, memberID)
	if err != nil {
		return "", err
	}

	transactions, bonusTotal, err := h.memberService.Statement(ctx, memberID, 20)
	if err != nil {
		return "", err
	}

	reserved, err := h.withdrawalService.Reserved(ctx, memberID)
	if err != nil {
		return "", err
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "Кошелек %s (ID %d): баланс %.2f, начислено %.2f, в резерве %.2f\n",
		member.Name, member.ID, member.Balance, bonusTotal, reserved)

	if len(transactions) == 0 {
		sb.WriteString("Движений нет.")
		return sb.String(), nil
	}

	for _, tr := range transactions {
		fmt.Fprintf(&sb, "#%d %s %+.2f %s\n",
			tr.ID, tr.CreatedAt.Format("02.01 15:04"), tr.Amount, tr.Description)
	}
	return sb.String(), nil
}

// handleShowConfig показывает действующую бонусную таблицу
func (h *AdminHandler) handleShowConfig(ctx context.Context) (string, error) {
	cfg, err := h.memberService.BonusConfig(ctx)
	if err != nil {
		return "", err
	}

	return fmt.Sprintf(
		"Уровни: %.1f%% %.1f%% %.1f%% %.1f%% %.1f%%\nМинимальный вывод: %.2f\nВступительный взнос: %.2f",
		cfg.Level1, cfg.Level2, cfg.Level3, cfg.Level4, cfg.Level5,
		cfg.MinWithdrawal, cfg.AdhesionFee), nil
}

// handleConfigLevels обновляет проценты пяти уровней
func (h *AdminHandler) handleConfigLevels(ctx context.Context, args []string) (string, error) {
	if len(args) != models.MaxBonusLevels {
		return "", fmt.Errorf("укажите %d процентов через пробел", models.MaxBonusLevels)
	}

	percents := make([]float64, models.MaxBonusLevels)
	for i, arg := range args {
		pct, err := h.parseAmount(arg)
		if err != nil {
			return "", err
		}
		percents[i] = pct
	}

	cfg, err := h.memberService.BonusConfig(ctx)
	if err != nil {
		return "", err
	}
	cfg.Level1, cfg.Level2, cfg.Level3, cfg.Level4, cfg.Level5 =
		percents[0], percents[1], percents[2], percents[3], percents[4]

	updated, err := h.memberService.UpdateBonusConfig(ctx, h.adminMemberID, cfg)
	if err != nil {
		return "", err
	}

	return fmt.Sprintf("Проценты уровней обновлены: %.1f%% %.1f%% %.1f%% %.1f%% %.1f%%",
		updated.Level1, updated.Level2, updated.Level3, updated.Level4, updated.Level5), nil
}

// handleConfigMin обновляет минимальную сумму вывода
func (h *AdminHandler) handleConfigMin(ctx context.Context, args []string) (string, error) {
	if len(args) != 1 {
		return "", fmt.Errorf("укажите одну сумму")
	}

	amount, err := h.parseAmount(args[0])
	if err != nil {
		return "", err
	}

	cfg, err := h.memberService.BonusConfig(ctx)
	if err != nil {
		return "", err
	}
	cfg.MinWithdrawal = amount

	updated, err := h.memberService.UpdateBonusConfig(ctx, h.adminMemberID, cfg)
	if err != nil {
		return "", err
	}

	return fmt.Sprintf("Минимальная сумма вывода: %.2f", updated.MinWithdrawal), nil
}

// handleConfigFee обновляет вступительный взнос
func (h *AdminHandler) handleConfigFee(ctx context.Context, args []string) (string, error) {
	if len(args) != 1 {
		return "", fmt.Errorf("укажите одну сумму")
	}

	amount, err := h.parseAmount(args[0])
	if err != nil {
		return "", err
	}

	cfg, err := h.memberService.BonusConfig(ctx)
	if err != nil {
		return "", err
	}
	cfg.AdhesionFee = amount

	updated, err := h.memberService.UpdateBonusConfig(ctx, h.adminMemberID, cfg)
	if err != nil {
		return "", err
	}

	return fmt.Sprintf("Вступительный взнос: %.2f", updated.AdhesionFee), nil
}

// handleListWithdrawals показывает заявки участника на вывод
func (h *AdminHandler) handleListWithdrawals(ctx context.Context, args []string) (string, error) {
	memberID, err := h.parseID(args)
	if err != nil {
		return "", err
	}

	withdrawals, err := h.withdrawalService.ListByMember(ctx, memberID)
	if err != nil {
		return "", err
	}

	if len(withdrawals) == 0 {
		return "Заявок на вывод нет.", nil
	}

	var sb strings.Builder
	for _, w := range withdrawals {
		fmt.Fprintf(&sb, "#%d: %.2f [%s] %s\n", w.ID, w.Amount, w.Status, w.PayoutDetails)
	}
	return sb.String(), nil
}

// handleWithdrawalAction выполняет административное действие над заявкой
func (h *AdminHandler) handleWithdrawalAction(ctx context.Context, args []string, action models.WithdrawalAction) (string, error) {
	withdrawalID, err := h.parseID(args)
	if err != nil {
		return "", err
	}

	w, err := h.withdrawalService.Transition(ctx, h.adminMemberID, withdrawalID, action)
	if err != nil {
		return "", err
	}

	return fmt.Sprintf("Заявка #%d переведена в статус %s", w.ID, w.Status), nil
}

func (h *AdminHandler) parseID(args []string) (int64, error) {
	if len(args) != 1 {
		return 0, fmt.Errorf("укажите один числовой ID")
	}

	id, err := strconv.ParseInt(args[0], 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("некорректный ID %q", args[0])
	}

	return id, nil
}

func (h *AdminHandler) parseAmount(arg string) (float64, error) {
	value, err := strconv.ParseFloat(arg, 64)
	if err != nil || value < 0 {
		return 0, fmt.Errorf("некорректное число %q", arg)
	}
	return value, nil
}

// writeDownline печатает дерево структуры с отступами по уровням
func writeDownline(sb *strings.Builder, node *models.DownlineNode, depth int) {
	fmt.Fprintf(sb, "%s%s (ID %d)\n",
		strings.Repeat("  ", depth), node.Member.Name, node.Member.ID)
	for _, child := range node.Children {
		writeDownline(sb, child, depth+1)
	}
}
