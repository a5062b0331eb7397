// Package order управляет жизненным циклом заказа: размещение, отмена, возврат.
package order

import (
	"context"
	"errors"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/shop/internal/domain"
	"github.com/vladislavdragonenkov/shop/internal/metrics"
	"github.com/vladislavdragonenkov/shop/internal/service/points"
	"github.com/vladislavdragonenkov/shop/internal/service/tags"
	"github.com/vladislavdragonenkov/shop/internal/validation"
)

// MaxPageSize ограничивает размер страницы истории заказов.
const MaxPageSize = 100

// Manager размещает заказы и проводит их по машине состояний.
// Баллы, счётчики тегов, заказ и событие outbox меняются в одной единице работы;
// уведомление отправляется только после фиксации.
type Manager struct {
	uow      domain.UnitOfWork
	ledger   *points.Ledger
	tracker  *tags.Tracker
	notifier domain.NotificationDispatcher
	images   domain.ImageLookup
	metrics  *metrics.ShopMetrics
	logger   *log.Entry
	now      func() time.Time
}

// Option настраивает Manager.
type Option func(*Manager)

// WithNotifier задаёт dispatcher уведомлений о покупке.
func WithNotifier(notifier domain.NotificationDispatcher) Option {
	return func(m *Manager) {
		m.notifier = notifier
	}
}

// WithImages задаёт источник изображений для истории заказов.
func WithImages(images domain.ImageLookup) Option {
	return func(m *Manager) {
		m.images = images
	}
}

// WithMetrics подключает метрики.
func WithMetrics(metrics *metrics.ShopMetrics) Option {
	return func(m *Manager) {
		m.metrics = metrics
	}
}

// WithLogger задаёт logger.
func WithLogger(logger *log.Entry) Option {
	return func(m *Manager) {
		m.logger = logger
	}
}

// WithClock подменяет источник текущего времени.
func WithClock(now func() time.Time) Option {
	return func(m *Manager) {
		if now != nil {
			m.now = now
		}
	}
}

// NewManager создаёт Manager.
func NewManager(uow domain.UnitOfWork, ledger *points.Ledger, tracker *tags.Tracker, options ...Option) *Manager {
	m := &Manager{
		uow:     uow,
		ledger:  ledger,
		tracker: tracker,
		now:     func() time.Time { return time.Now().UTC() },
	}
	for _, option := range options {
		option(m)
	}
	if m.logger == nil {
		m.logger = log.WithField("component", "order-manager")
	}
	if m.ledger == nil {
		m.ledger = points.NewLedger(points.WithMetrics(m.metrics))
	}
	if m.tracker == nil {
		m.tracker = tags.NewTracker(uow, m.metrics, nil)
	}
	return m
}

// ValidateOwnership сообщает, принадлежит ли заказ участнику с email.
func (m *Manager) ValidateOwnership(ctx context.Context, orderID int64, email string) (bool, error) {
	var owned bool
	err := m.uow.WithinReadTx(ctx, func(ctx context.Context, tx domain.Tx) error {
		var err error
		owned, err = isOwner(ctx, tx, orderID, email)
		return err
	})
	return owned, err
}

func isOwner(ctx context.Context, tx domain.Tx, orderID int64, email string) (bool, error) {
	owner, err := tx.Orders().OwnerEmail(ctx, orderID)
	if err != nil {
		return false, err
	}
	return owner == email, nil
}

// authorize проверяет владельца внутри транзакции до любых записей.
func authorize(ctx context.Context, tx domain.Tx, orderID int64, email string) error {
	owned, err := isOwner(ctx, tx, orderID, email)
	if err != nil {
		return err
	}
	if !owned {
		return &domain.UnauthorizedError{Kind: domain.KindOrder, ID: orderID}
	}
	return nil
}

func requireEmail(email string) error {
	return validation.Var("email", email, "required")
}

func (m *Manager) recordTransitionError(err error) {
	var transitionErr *domain.InvalidStateTransitionError
	if errors.As(err, &transitionErr) {
		m.metrics.RecordInvalidTransition(string(transitionErr.Attempted))
	}
}
