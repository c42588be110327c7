package metrics

import (
	"strconv"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"
)

// Metrics содержит все метрики приложения
type Metrics struct {
	logger *zap.Logger

	// Счетчики
	ordersPaid            *prometheus.CounterVec
	bonusesPaid           *prometheus.CounterVec
	membersApproved       prometheus.Counter
	withdrawalTransitions *prometheus.CounterVec

	// Гистограммы
	bonusAmount *prometheus.HistogramVec

	// Gauge метрики
	reservedTotal prometheus.Gauge

	// Мьютекс для thread-safety
	mu sync.Mutex
}

// New создает новый экземпляр метрик
func New(logger *zap.Logger) *Metrics {
	m := &Metrics{
		logger: logger,

		ordersPaid: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "orders_paid_total",
				Help: "Общее количество оплаченных заказов",
			},
			[]string{"kind"}, // product, adhesion
		),

		bonusesPaid: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "bonuses_paid_total",
				Help: "Общее количество выплаченных начислений",
			},
			[]string{"level"}, // 1..5
		),

		membersApproved: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "members_approved_total",
				Help: "Общее количество подтвержденных участников",
			},
		),

		withdrawalTransitions: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "withdrawal_transitions_total",
				Help: "Переходы заявок на вывод по статусам",
			},
			[]string{"action"}, // requested, approved, paid, rejected
		),

		bonusAmount: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "bonus_amount",
				Help:    "Размер одного начисления",
				Buckets: []float64{1, 5, 10, 25, 50, 100, 250, 500, 1000},
			},
			[]string{"level"},
		),

		reservedTotal: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "withdrawal_reserved_total",
				Help: "Сумма зарезервированных к выводу средств",
			},
		),
	}

	// Регистрируем все метрики
	prometheus.MustRegister(
		m.ordersPaid,
		m.bonusesPaid,
		m.membersApproved,
		m.withdrawalTransitions,
		m.bonusAmount,
		m.reservedTotal,
	)

	return m
}

// RecordOrderPaid записывает оплату заказа
func (m *Metrics) RecordOrderPaid(kind string, amount float64) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.ordersPaid.WithLabelValues(kind).Inc()
	m.logger.Debug("метрика оплаты заказа обновлена",
		zap.String("kind", kind),
		zap.Float64("amount", amount))
}

// RecordBonusPaid записывает выплаченное начисление
func (m *Metrics) RecordBonusPaid(level int, amount float64) {
	m.mu.Lock()
	defer m.mu.Unlock()

	label := strconv.Itoa(level)
	m.bonusesPaid.WithLabelValues(label).Inc()
	m.bonusAmount.WithLabelValues(label).Observe(amount)
}

// RecordMemberApproved записывает подтверждение участника
func (m *Metrics) RecordMemberApproved() {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.membersApproved.Inc()
}

// SetWithdrawalReserved выставляет резерв выводов по данным хранилища.
// Вызывается на старте: gauge не переживает перезапуск процесса,
// и без восстановления резерв начинался бы с нуля.
func (m *Metrics) SetWithdrawalReserved(total float64) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.reservedTotal.Set(total)
	m.logger.Debug("метрика резервов восстановлена", zap.Float64("total", total))
}

// RecordWithdrawal записывает переход заявки на вывод.
// Резерв растет при создании заявки и уменьшается при выплате и отклонении.
func (m *Metrics) RecordWithdrawal(action string, amount float64) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.withdrawalTransitions.WithLabelValues(action).Inc()

	switch action {
	case "requested":
		m.reservedTotal.Add(amount)
	case "paid", "rejected":
		m.reservedTotal.Sub(amount)
	}
}
