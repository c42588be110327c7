package metrics

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

// Handler обрабатывает HTTP запросы для метрик
type Handler struct {
	logger *zap.Logger
}

// NewHandler создает новый обработчик метрик
func NewHandler(logger *zap.Logger) *Handler {
	return &Handler{
		logger: logger,
	}
}

// MetricsHandler возвращает обработчик для эндпоинта /metrics
func (h *Handler) MetricsHandler() http.Handler {
	return promhttp.Handler()
}

// HealthHandler возвращает обработчик для проверки здоровья сервиса
func (h *Handler) HealthHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)

		response := map[string]interface{}{
			"status":    "ok",
			"timestamp": time.Now().Format(time.RFC3339),
		}

		if err := json.NewEncoder(w).Encode(response); err != nil {
			h.logger.Error("ошибка кодирования ответа health check", zap.Error(err))
		}
	}
}
