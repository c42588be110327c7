package notify

import (
	"fmt"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"go.uber.org/zap"

	"rede-mlm/pkg/models"
)

// Notifier отправляет служебные уведомления администратору в Telegram
type Notifier struct {
	bot         *tgbotapi.BotAPI
	adminChatID int64
	logger      *zap.Logger
}

// New создает новый notifier. Без бота или чата администратора
// уведомления отключены: возвращается nil, методы на nil получателе
// безопасны.
func New(bot *tgbotapi.BotAPI, adminChatID int64, logger *zap.Logger) *Notifier {
	if bot == nil || adminChatID == 0 {
		logger.Info("уведомления в Telegram отключены")
		return nil
	}

	logger.Info("уведомления в Telegram включены",
		zap.Int64("admin_chat_id", adminChatID))

	return &Notifier{
		bot:         bot,
		adminChatID: adminChatID,
		logger:      logger,
	}
}

// NotifyWithdrawalRequested уведомляет о новой заявке на вывод
func (n *Notifier) NotifyWithdrawalRequested(withdrawal *models.Withdrawal, member *models.Member) {
	if n == nil {
		return
	}

	text := fmt.Sprintf(
		"💸 Новая заявка на вывод #%d\n\nУчастник: %s (ID %d)\nСумма: %.2f\nРеквизиты: %s",
		withdrawal.ID, member.Name, member.ID, withdrawal.Amount, withdrawal.PayoutDetails)

	n.send(text)
}

// NotifyOrderPaid уведомляет об оплаченном заказе
func (n *Notifier) NotifyOrderPaid(order *models.Order, buyer *models.Member) {
	if n == nil {
		return
	}

	kind := "Покупка"
	if order.IsAdhesion() {
		kind = "Вступительный взнос"
	}

	text := fmt.Sprintf(
		"✅ %s: заказ #%d оплачен\n\nПокупатель: %s (ID %d)\nСумма: %.2f",
		kind, order.ID, buyer.Name, buyer.ID, order.Amount)

	n.send(text)
}

// NotifyMemberRegistered уведомляет о новой регистрации, ожидающей подтверждения
func (n *Notifier) NotifyMemberRegistered(member *models.Member) {
	if n == nil {
		return
	}

	text := fmt.Sprintf(
		"👤 Новый участник ожидает подтверждения\n\nИмя: %s\nEmail: %s\nID: %d",
		member.Name, member.Email, member.ID)

	n.send(text)
}

func (n *Notifier) send(text string) {
	msg := tgbotapi.NewMessage(n.adminChatID, text)
	if _, err := n.bot.Send(msg); err != nil {
		n.logger.Error("ошибка отправки уведомления в Telegram", zap.Error(err))
	}
}
