package webhook

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"

	"go.uber.org/zap"

	"rede-mlm/pkg/models"
)

// OrderService определяет методы для обработки платежей по заказам
type OrderService interface {
	ConfirmPayment(ctx context.Context, orderID int64) (*models.Order, error)
	Cancel(ctx context.Context, orderID int64) error
}

// GatewayWebhookHandler обрабатывает webhook'и платежного шлюза
type GatewayWebhookHandler struct {
	orderService OrderService
	logger       *zap.Logger
	secretKey    string
}

// NewGatewayWebhookHandler создает новый обработчик webhook'ов
func NewGatewayWebhookHandler(orderService OrderService, secretKey string, logger *zap.Logger) *GatewayWebhookHandler {
	return &GatewayWebhookHandler{
		orderService: orderService,
		logger:       logger,
		secretKey:    secretKey,
	}
}

// PaymentWebhook представляет webhook платежного шлюза
type PaymentWebhook struct {
	Type   string `json:"type"`
	Event  string `json:"event"`
	Object struct {
		ID     string `json:"id"`
		Status string `json:"status"`
		Amount struct {
			Value    string `json:"value"`
			Currency string `json:"currency"`
		} `json:"amount"`
		Metadata map[string]string `json:"metadata"`
	} `json:"object"`
}

// HandleWebhook обрабатывает входящий webhook платежного шлюза
func (h *GatewayWebhookHandler) HandleWebhook(w http.ResponseWriter, r *http.Request) {
	h.logger.Info("получен webhook запрос",
		zap.String("method", r.Method),
		zap.String("url", r.URL.String()),
		zap.String("content_type", r.Header.Get("Content-Type")))

	// Проверяем метод запроса
	if r.Method != http.MethodPost {
		h.logger.Warn("неверный метод webhook запроса", zap.String("method", r.Method))
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	// Читаем тело запроса
	body, err := io.ReadAll(r.Body)
	if err != nil {
		h.logger.Error("ошибка чтения тела запроса", zap.Error(err))
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}
	defer r.Body.Close()

	// Проверяем подпись webhook'а (если настроена)
	if !h.verifySignature(r.Header.Get("X-Gateway-Signature"), body) {
		h.logger.Warn("неверная подпись webhook'а")
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	// Парсим webhook
	var webhook PaymentWebhook
	if err := json.Unmarshal(body, &webhook); err != nil {
		h.logger.Error("ошибка парсинга webhook'а", zap.Error(err))
		http.Error(w, "Bad request", http.StatusBadRequest)
		return
	}

	orderID, err := h.orderIDFromMetadata(webhook)
	if err != nil {
		h.logger.Error("webhook без корректного order_id", zap.Error(err))
		http.Error(w, "Bad request", http.StatusBadRequest)
		return
	}

	h.logger.Info("получен webhook платежного шлюза",
		zap.String("event", webhook.Event),
		zap.String("payment_id", webhook.Object.ID),
		zap.Int64("order_id", orderID))

	// Обрабатываем webhook в зависимости от типа события
	switch webhook.Event {
	case "payment.succeeded":
		if err := h.handlePaymentSucceeded(r.Context(), orderID, webhook); err != nil {
			h.logger.Error("ошибка обработки успешного платежа", zap.Error(err))
			http.Error(w, "Internal server error", http.StatusInternalServerError)
			return
		}
	case "payment.canceled":
		if err := h.handlePaymentCanceled(r.Context(), orderID, webhook); err != nil {
			h.logger.Error("ошибка обработки отмененного платежа", zap.Error(err))
			http.Error(w, "Internal server error", http.StatusInternalServerError)
			return
		}
	default:
		h.logger.Info("неизвестное событие webhook'а", zap.String("event", webhook.Event))
	}

	// Отвечаем успехом
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("OK"))
}

// handlePaymentSucceeded обрабатывает успешный платеж
func (h *GatewayWebhookHandler) handlePaymentSucceeded(ctx context.Context, orderID int64, webhook PaymentWebhook) error {
	if _, err := h.orderService.ConfirmPayment(ctx, orderID); err != nil {
		return fmt.Errorf("ошибка подтверждения оплаты заказа: %w", err)
	}

	h.logger.Info("платеж успешно обработан",
		zap.String("payment_id", webhook.Object.ID),
		zap.Int64("order_id", orderID))

	return nil
}

// handlePaymentCanceled обрабатывает отмененный платеж
func (h *GatewayWebhookHandler) handlePaymentCanceled(ctx context.Context, orderID int64, webhook PaymentWebhook) error {
	if err := h.orderService.Cancel(ctx, orderID); err != nil {
		// Заказ уже в конечном статусе, повторная отмена не требуется
		if errors.Is(err, models.ErrInvalidState) {
			h.logger.Info("отмена заказа пропущена",
				zap.Int64("order_id", orderID),
				zap.Error(err))
			return nil
		}
		return fmt.Errorf("ошибка отмены заказа: %w", err)
	}

	h.logger.Info("платеж отменен",
		zap.String("payment_id", webhook.Object.ID),
		zap.Int64("order_id", orderID))

	return nil
}

// orderIDFromMetadata извлекает ID заказа из метаданных платежа
func (h *GatewayWebhookHandler) orderIDFromMetadata(webhook PaymentWebhook) (int64, error) {
	raw, ok := webhook.Object.Metadata["order_id"]
	if !ok {
		return 0, fmt.Errorf("метаданные платежа %s не содержат order_id", webhook.Object.ID)
	}

	orderID, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("некорректный order_id %q: %w", raw, err)
	}

	return orderID, nil
}

// verifySignature проверяет подпись webhook'а
func (h *GatewayWebhookHandler) verifySignature(signature string, body []byte) bool {
	if h.secretKey == "" || signature == "" {
		// Если секретный ключ не настроен, пропускаем проверку
		return true
	}

	// Создаем HMAC подпись
	h256 := hmac.New(sha256.New, []byte(h.secretKey))
	h256.Write(body)
	expectedSignature := hex.EncodeToString(h256.Sum(nil))

	// Сравниваем подписи
	return hmac.Equal([]byte(signature), []byte(expectedSignature))
}
