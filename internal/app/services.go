package app

import (
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/shop/internal/domain"
	"github.com/vladislavdragonenkov/shop/internal/messaging/kafka"
	"github.com/vladislavdragonenkov/shop/internal/metrics"
	"github.com/vladislavdragonenkov/shop/internal/service/cart"
	"github.com/vladislavdragonenkov/shop/internal/service/catalog"
	"github.com/vladislavdragonenkov/shop/internal/service/notify"
	"github.com/vladislavdragonenkov/shop/internal/service/order"
	"github.com/vladislavdragonenkov/shop/internal/service/outbox"
	"github.com/vladislavdragonenkov/shop/internal/service/points"
	"github.com/vladislavdragonenkov/shop/internal/service/tags"
)

const (
	notifyBreakerFailures = 5
	notifyBreakerReset    = 30 * time.Second
)

// Services — граф бизнес-сервисов поверх выбранного хранилища.
type Services struct {
	Ledger  *points.Ledger
	Tags    *tags.Tracker
	Catalog *catalog.Engine
	Orders  *order.Manager
	Carts   *cart.Service

	Images   *catalog.ImageCache
	Notifier *notify.Async
	Outbox   *outbox.Worker
}

// buildServices связывает сервисы. producer может быть nil: тогда уведомления
// пишутся в лог, а outbox worker выключен.
func buildServices(cfg Config, store storage, producer *kafka.Producer, m *metrics.ShopMetrics, logger *log.Entry) (*Services, error) {
	images, err := catalog.NewImageCache(store, cfg.ImageCacheSize, cfg.ImageCacheTTL, m)
	if err != nil {
		return nil, err
	}

	// оба типа уведомлений уходят в одну внешнюю службу доставки
	var channel notify.Channel = notify.NewLogChannel(logger.WithField("component", "notify-log-channel"))
	if producer != nil {
		channelLogger := logger.WithField("component", "notify-kafka-channel")
		channel = notify.NewResilientChannel(
			notify.NewKafkaChannel(producer, cfg.KafkaTopicNotifications),
			notify.DefaultRetryConfig(),
			notify.NewCircuitBreaker(notifyBreakerFailures, notifyBreakerReset, channelLogger),
			channelLogger,
		)
	}
	router := notify.NewRouter(
		notify.WithChannel(domain.NoticeTypeEmail, channel),
		notify.WithChannel(domain.NoticeTypeSMS, channel),
		notify.WithRouterMetrics(m),
		notify.WithRouterLogger(logger.WithField("component", "notify-router")),
	)
	notifier := notify.NewAsync(router, cfg.NotifyWorkers, cfg.NotifyTimeout, m,
		logger.WithField("component", "notify-async"))

	ledger := points.NewLedger(points.WithAccrualRate(cfg.PointAccrualBPS), points.WithMetrics(m))
	tracker := tags.NewTracker(store, m, logger.WithField("component", "tag-tracker"))

	orders := order.NewManager(store, ledger, tracker,
		order.WithNotifier(notifier),
		order.WithImages(images),
		order.WithMetrics(m),
		order.WithLogger(logger.WithField("component", "order-manager")),
	)
	carts := cart.NewService(store, orders,
		cart.WithImages(images),
		cart.WithMetrics(m),
		cart.WithLogger(logger.WithField("component", "cart-service")),
	)
	engine := catalog.NewEngine(store, images,
		catalog.WithMetrics(m),
		catalog.WithLogger(logger.WithField("component", "catalog-engine")),
	)

	workerOptions := []outbox.Option{
		outbox.WithLogger(logger.WithField("component", "outbox-worker")),
		outbox.WithMetrics(m),
		outbox.WithPollInterval(cfg.OutboxPollInterval),
		outbox.WithBatchSize(cfg.OutboxBatchSize),
		outbox.WithMaxAttempts(cfg.OutboxMaxAttempts),
	}
	var publisher domain.OutboxPublisher
	if producer != nil {
		publisher = kafka.NewOutboxPublisher(producer, cfg.KafkaTopicOrders)
		workerOptions = append(workerOptions, outbox.WithDLQPublisher(kafka.NewOutboxPublisher(producer, kafka.TopicDeadLetterQueue)))
	}

	return &Services{
		Ledger:   ledger,
		Tags:     tracker,
		Catalog:  engine,
		Orders:   orders,
		Carts:    carts,
		Images:   images,
		Notifier: notifier,
		Outbox:   outbox.NewWorker(store, publisher, workerOptions...),
	}, nil
}
