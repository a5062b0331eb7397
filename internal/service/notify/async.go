package notify

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/shop/internal/domain"
	"github.com/vladislavdragonenkov/shop/internal/metrics"
)

const (
	defaultWorkers         = 8
	defaultDeliveryTimeout = 10 * time.Second
)

// ErrDispatcherClosed возвращается для уведомлений после Close.
var ErrDispatcherClosed = errors.New("notification dispatcher is closed")

// Async отправляет уведомления в фоне. Одновременно живёт не больше workers
// доставок: при заполнении вызывающий ждёт свободный слот, пока жив его ctx.
// Ошибки доставки логируются.
type Async struct {
	next    domain.NotificationDispatcher
	sem     chan struct{}
	timeout time.Duration
	metrics *metrics.ShopMetrics
	logger  *log.Entry

	mu     sync.RWMutex
	closed bool
	wg     sync.WaitGroup
}

// NewAsync оборачивает dispatcher.
func NewAsync(next domain.NotificationDispatcher, workers int, timeout time.Duration, m *metrics.ShopMetrics, logger *log.Entry) *Async {
	if workers <= 0 {
		workers = defaultWorkers
	}
	if timeout <= 0 {
		timeout = defaultDeliveryTimeout
	}
	if logger == nil {
		logger = log.WithField("component", "notify-async")
	}
	return &Async{
		next:    next,
		sem:     make(chan struct{}, workers),
		timeout: timeout,
		metrics: m,
		logger:  logger,
	}
}

func (a *Async) SendPurchaseNotice(ctx context.Context, member domain.Member, summary domain.OrderSummary) error {
	return a.spawn(ctx, log.Fields{"member_id": member.ID, "order_id": summary.OrderID}, func(ctx context.Context) error {
		return a.next.SendPurchaseNotice(ctx, member, summary)
	})
}

func (a *Async) SendCartPurchaseNotice(ctx context.Context, member domain.Member, lines []domain.NoticeLine, totalPrice int64) error {
	lines = append([]domain.NoticeLine(nil), lines...)
	return a.spawn(ctx, log.Fields{"member_id": member.ID, "lines": len(lines)}, func(ctx context.Context) error {
		return a.next.SendCartPurchaseNotice(ctx, member, lines, totalPrice)
	})
}

func (a *Async) spawn(ctx context.Context, fields log.Fields, send func(ctx context.Context) error) error {
	select {
	case a.sem <- struct{}{}:
	case <-ctx.Done():
		a.logger.WithFields(fields).Warn("notification dropped: no free delivery slot")
		return fmt.Errorf("wait for delivery slot: %w", ctx.Err())
	}

	a.mu.RLock()
	defer a.mu.RUnlock()
	if a.closed {
		<-a.sem
		return ErrDispatcherClosed
	}

	// Доставка переживает отмену запроса, но не дольше timeout.
	base := context.WithoutCancel(ctx)

	a.wg.Add(1)
	a.metrics.NotificationStarted()
	go func() {
		defer a.wg.Done()
		defer a.metrics.NotificationFinished()
		defer func() { <-a.sem }()

		sendCtx, cancel := context.WithTimeout(base, a.timeout)
		defer cancel()

		if err := send(sendCtx); err != nil {
			a.logger.WithError(err).WithFields(fields).Warn("purchase notification failed")
		}
	}()
	return nil
}

// Close перестаёт принимать уведомления и ждёт завершения начатых доставок.
func (a *Async) Close(ctx context.Context) error {
	a.mu.Lock()
	a.closed = true
	a.mu.Unlock()

	done := make(chan struct{})
	go func() {
		a.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

var _ domain.NotificationDispatcher = (*Async)(nil)
