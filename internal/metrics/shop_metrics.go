package metrics

import (
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// ShopMetrics содержит метрики заказов, баллов, каталога и уведомлений.
type ShopMetrics struct {
	// Жизненный цикл заказа
	ordersPlaced       *prometheus.CounterVec
	ordersCanceled     prometheus.Counter
	returnsRequested   prometheus.Counter
	returnsConfirmed   prometheus.Counter
	invalidTransitions *prometheus.CounterVec

	// Баллы
	pointsDebited      prometheus.Counter
	pointsCredited     prometheus.Counter
	insufficientPoints prometheus.Counter

	// Популярность тегов
	tagSales prometheus.Counter

	// Уведомления
	notificationsSent   *prometheus.CounterVec
	notificationsFailed *prometheus.CounterVec
	notificationsQueued prometheus.Gauge

	// Каталог
	imageCacheHits   prometheus.Counter
	imageCacheMisses prometheus.Counter

	// Transactional outbox
	outboxPublishAttempts *prometheus.CounterVec
	outboxPending         prometheus.Gauge
	outboxOldestAge       prometheus.Gauge

	operationDuration *prometheus.HistogramVec
}

// NewShopMetrics создаёт метрики и регистрирует их в DefaultRegisterer.
func NewShopMetrics() *ShopMetrics {
	return NewShopMetricsWithRegisterer(prometheus.DefaultRegisterer)
}

// NewShopMetricsWithRegisterer регистрирует метрики в переданном реестре.
// Повторная регистрация возвращает уже существующие коллекторы.
func NewShopMetricsWithRegisterer(registerer prometheus.Registerer) *ShopMetrics {
	if registerer == nil {
		registerer = prometheus.DefaultRegisterer
	}

	return &ShopMetrics{
		ordersPlaced: registerCounterVec(registerer, prometheus.CounterOpts{
			Name: "shop_orders_placed_total",
			Help: "Total number of orders placed",
		}, []string{"kind"}),
		ordersCanceled: registerCounter(registerer, prometheus.CounterOpts{
			Name: "shop_orders_canceled_total",
			Help: "Total number of orders canceled",
		}),
		returnsRequested: registerCounter(registerer, prometheus.CounterOpts{
			Name: "shop_returns_requested_total",
			Help: "Total number of return requests",
		}),
		returnsConfirmed: registerCounter(registerer, prometheus.CounterOpts{
			Name: "shop_returns_confirmed_total",
			Help: "Total number of confirmed returns",
		}),
		invalidTransitions: registerCounterVec(registerer, prometheus.CounterOpts{
			Name: "shop_order_invalid_transitions_total",
			Help: "Total number of rejected order state transitions",
		}, []string{"transition"}),
		pointsDebited: registerCounter(registerer, prometheus.CounterOpts{
			Name: "shop_points_debited_total",
			Help: "Total number of points debited from members",
		}),
		pointsCredited: registerCounter(registerer, prometheus.CounterOpts{
			Name: "shop_points_credited_total",
			Help: "Total number of points credited to members",
		}),
		insufficientPoints: registerCounter(registerer, prometheus.CounterOpts{
			Name: "shop_points_insufficient_total",
			Help: "Total number of orders rejected due to insufficient points",
		}),
		tagSales: registerCounter(registerer, prometheus.CounterOpts{
			Name: "shop_tag_sales_total",
			Help: "Total number of tag sell counter increments",
		}),
		notificationsSent: registerCounterVec(registerer, prometheus.CounterOpts{
			Name: "shop_notifications_sent_total",
			Help: "Total number of purchase notifications delivered",
		}, []string{"channel"}),
		notificationsFailed: registerCounterVec(registerer, prometheus.CounterOpts{
			Name: "shop_notifications_failed_total",
			Help: "Total number of purchase notifications that failed",
		}, []string{"channel"}),
		notificationsQueued: registerGauge(registerer, prometheus.GaugeOpts{
			Name: "shop_notifications_in_flight",
			Help: "Number of purchase notifications being delivered",
		}),
		imageCacheHits: registerCounter(registerer, prometheus.CounterOpts{
			Name: "shop_image_cache_hits_total",
			Help: "Total number of representative image cache hits",
		}),
		imageCacheMisses: registerCounter(registerer, prometheus.CounterOpts{
			Name: "shop_image_cache_misses_total",
			Help: "Total number of representative image cache misses",
		}),
		outboxPublishAttempts: registerCounterVec(registerer, prometheus.CounterOpts{
			Name: "shop_outbox_publish_attempts_total",
			Help: "Total number of outbox publish attempts grouped by result",
		}, []string{"result"}),
		outboxPending: registerGauge(registerer, prometheus.GaugeOpts{
			Name: "shop_outbox_pending_records",
			Help: "Current number of pending records in transactional outbox",
		}),
		outboxOldestAge: registerGauge(registerer, prometheus.GaugeOpts{
			Name: "shop_outbox_oldest_pending_age_seconds",
			Help: "Age in seconds of the oldest pending outbox record",
		}),
		operationDuration: registerHistogramVec(registerer, prometheus.HistogramOpts{
			Name:    "shop_operation_duration_seconds",
			Help:    "Duration of core operations in seconds",
			Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0, 2.5, 5.0},
		}, []string{"operation", "result"}),
	}
}

func registerCounter(registerer prometheus.Registerer, opts prometheus.CounterOpts) prometheus.Counter {
	collector := prometheus.NewCounter(opts)
	if err := registerer.Register(collector); err != nil {
		if alreadyRegistered, ok := err.(prometheus.AlreadyRegisteredError); ok {
			existing, ok := alreadyRegistered.ExistingCollector.(prometheus.Counter)
			if !ok {
				panic(fmt.Sprintf("collector %q already registered with unexpected type", opts.Name))
			}
			return existing
		}
		panic(fmt.Sprintf("register counter %q: %v", opts.Name, err))
	}
	return collector
}

func registerCounterVec(registerer prometheus.Registerer, opts prometheus.CounterOpts, labels []string) *prometheus.CounterVec {
	collector := prometheus.NewCounterVec(opts, labels)
	if err := registerer.Register(collector); err != nil {
		if alreadyRegistered, ok := err.(prometheus.AlreadyRegisteredError); ok {
			existing, ok := alreadyRegistered.ExistingCollector.(*prometheus.CounterVec)
			if !ok {
				panic(fmt.Sprintf("collector %q already registered with unexpected type", opts.Name))
			}
			return existing
		}
		panic(fmt.Sprintf("register counter vec %q: %v", opts.Name, err))
	}
	return collector
}

func registerGauge(registerer prometheus.Registerer, opts prometheus.GaugeOpts) prometheus.Gauge {
	collector := prometheus.NewGauge(opts)
	if err := registerer.Register(collector); err != nil {
		if alreadyRegistered, ok := err.(prometheus.AlreadyRegisteredError); ok {
			existing, ok := alreadyRegistered.ExistingCollector.(prometheus.Gauge)
			if !ok {
				panic(fmt.Sprintf("collector %q already registered with unexpected type", opts.Name))
			}
			return existing
		}
		panic(fmt.Sprintf("register gauge %q: %v", opts.Name, err))
	}
	return collector
}

func registerHistogramVec(registerer prometheus.Registerer, opts prometheus.HistogramOpts, labels []string) *prometheus.HistogramVec {
	collector := prometheus.NewHistogramVec(opts, labels)
	if err := registerer.Register(collector); err != nil {
		if alreadyRegistered, ok := err.(prometheus.AlreadyRegisteredError); ok {
			existing, ok := alreadyRegistered.ExistingCollector.(*prometheus.HistogramVec)
			if !ok {
				panic(fmt.Sprintf("collector %q already registered with unexpected type", opts.Name))
			}
			return existing
		}
		panic(fmt.Sprintf("register histogram vec %q: %v", opts.Name, err))
	}
	return collector
}

// Все методы допускают nil-получатель: сервисы без метрик просто ничего не пишут.

// RecordOrderPlaced увеличивает счётчик заказов; kind: single или cart.
func (m *ShopMetrics) RecordOrderPlaced(kind string) {
	if m == nil {
		return
	}
	m.ordersPlaced.WithLabelValues(kind).Inc()
}

// RecordOrderCanceled увеличивает счётчик отмен.
func (m *ShopMetrics) RecordOrderCanceled() {
	if m == nil {
		return
	}
	m.ordersCanceled.Inc()
}

// RecordReturnRequested увеличивает счётчик запросов на возврат.
func (m *ShopMetrics) RecordReturnRequested() {
	if m == nil {
		return
	}
	m.returnsRequested.Inc()
}

// RecordReturnConfirmed увеличивает счётчик подтверждённых возвратов.
func (m *ShopMetrics) RecordReturnConfirmed() {
	if m == nil {
		return
	}
	m.returnsConfirmed.Inc()
}

// RecordInvalidTransition фиксирует отклонённый переход состояния.
func (m *ShopMetrics) RecordInvalidTransition(transition string) {
	if m == nil {
		return
	}
	m.invalidTransitions.WithLabelValues(transition).Inc()
}

// RecordPointsDebited добавляет списанные баллы.
func (m *ShopMetrics) RecordPointsDebited(amount int64) {
	if m == nil || amount <= 0 {
		return
	}
	m.pointsDebited.Add(float64(amount))
}

// RecordPointsCredited добавляет начисленные баллы.
func (m *ShopMetrics) RecordPointsCredited(amount int64) {
	if m == nil || amount <= 0 {
		return
	}
	m.pointsCredited.Add(float64(amount))
}

// RecordInsufficientPoints увеличивает счётчик отказов из-за нехватки баллов.
func (m *ShopMetrics) RecordInsufficientPoints() {
	if m == nil {
		return
	}
	m.insufficientPoints.Inc()
}

// RecordTagSales добавляет число увеличенных счётчиков тегов.
func (m *ShopMetrics) RecordTagSales(n int) {
	if m == nil || n <= 0 {
		return
	}
	m.tagSales.Add(float64(n))
}

// RecordNotificationSent фиксирует доставленное уведомление.
func (m *ShopMetrics) RecordNotificationSent(channel string) {
	if m == nil {
		return
	}
	m.notificationsSent.WithLabelValues(channel).Inc()
}

// RecordNotificationFailed фиксирует ошибку доставки уведомления.
func (m *ShopMetrics) RecordNotificationFailed(channel string) {
	if m == nil {
		return
	}
	m.notificationsFailed.WithLabelValues(channel).Inc()
}

// NotificationStarted увеличивает число уведомлений в полёте.
func (m *ShopMetrics) NotificationStarted() {
	if m == nil {
		return
	}
	m.notificationsQueued.Inc()
}

// NotificationFinished уменьшает число уведомлений в полёте.
func (m *ShopMetrics) NotificationFinished() {
	if m == nil {
		return
	}
	m.notificationsQueued.Dec()
}

// RecordImageCacheHit увеличивает счётчик попаданий в кэш изображений.
func (m *ShopMetrics) RecordImageCacheHit(n int) {
	if m == nil || n <= 0 {
		return
	}
	m.imageCacheHits.Add(float64(n))
}

// RecordImageCacheMiss увеличивает счётчик промахов кэша изображений.
func (m *ShopMetrics) RecordImageCacheMiss(n int) {
	if m == nil || n <= 0 {
		return
	}
	m.imageCacheMisses.Add(float64(n))
}

// RecordOutboxPublish учитывает попытку публикации: sent, retry_error, failed, dlq_failed.
func (m *ShopMetrics) RecordOutboxPublish(result string) {
	if m == nil {
		return
	}
	m.outboxPublishAttempts.WithLabelValues(result).Inc()
}

// SetOutboxBacklog обновляет размер backlog и возраст самой старой записи.
func (m *ShopMetrics) SetOutboxBacklog(pending int, oldestAge time.Duration) {
	if m == nil {
		return
	}
	if oldestAge < 0 {
		oldestAge = 0
	}
	m.outboxPending.Set(float64(pending))
	m.outboxOldestAge.Set(oldestAge.Seconds())
}

// ObserveOperation записывает длительность операции; result: ok или error.
func (m *ShopMetrics) ObserveOperation(operation string, started time.Time, err error) {
	if m == nil {
		return
	}
	result := "ok"
	if err != nil {
		result = "error"
	}
	m.operationDuration.WithLabelValues(operation, result).Observe(time.Since(started).Seconds())
}
