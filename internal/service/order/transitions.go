package order

import (
	"context"
	"fmt"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/shop/internal/domain"
)

// step описывает один переход машины состояний.
type step struct {
	operation string
	apply     func(order *domain.Order, now time.Time) error
	// reverse: вернуть списанные баллы и забрать начисленные.
	reverse bool
	event   string
	record  func()
}

// CancelOrder отменяет заказ участника и возвращает баллы.
// Отмена возможна только из ORDERED; счётчики тегов не уменьшаются.
func (m *Manager) CancelOrder(ctx context.Context, email string, orderID int64) error {
	if err := requireEmail(email); err != nil {
		return err
	}
	return m.transition(ctx, orderID, email, step{
		operation: "cancel_order",
		apply:     (*domain.Order).Cancel,
		reverse:   true,
		event:     domain.EventOrderCanceled,
		record:    m.metrics.RecordOrderCanceled,
	})
}

// RequestReturn оформляет возврат всех позиций. Баллы не меняются до подтверждения.
func (m *Manager) RequestReturn(ctx context.Context, email string, orderID int64) error {
	if err := requireEmail(email); err != nil {
		return err
	}
	return m.transition(ctx, orderID, email, step{
		operation: "request_return",
		apply:     (*domain.Order).RequestReturn,
		event:     domain.EventOrderReturnRequested,
		record:    m.metrics.RecordReturnRequested,
	})
}

// ConfirmReturn подтверждает возврат и восстанавливает баланс участника.
// Вызывается администратором, поэтому владелец не проверяется.
func (m *Manager) ConfirmReturn(ctx context.Context, orderID int64) error {
	return m.transition(ctx, orderID, "", step{
		operation: "confirm_return",
		apply:     (*domain.Order).ConfirmReturn,
		reverse:   true,
		event:     domain.EventOrderReturnConfirmed,
		record:    m.metrics.RecordReturnConfirmed,
	})
}

// ConfirmReturns подтверждает возвраты по списку заказов, каждый в своей транзакции.
// Останавливается на первой ошибке; уже подтверждённые возвраты остаются в силе.
func (m *Manager) ConfirmReturns(ctx context.Context, orderIDs []int64) error {
	if len(orderIDs) == 0 {
		return domain.NewValidation("order_ids", "must not be empty")
	}
	for _, orderID := range orderIDs {
		if err := m.ConfirmReturn(ctx, orderID); err != nil {
			return fmt.Errorf("confirm return of order %d: %w", orderID, err)
		}
	}
	return nil
}

// transition применяет шаг в одной транзакции. Пустой email отключает проверку владельца.
func (m *Manager) transition(ctx context.Context, orderID int64, email string, s step) (err error) {
	started := time.Now()
	defer func() { m.metrics.ObserveOperation(s.operation, started, err) }()

	var order domain.Order
	err = m.uow.WithinTx(ctx, func(ctx context.Context, tx domain.Tx) error {
		if email != "" {
			if err := authorize(ctx, tx, orderID, email); err != nil {
				return err
			}
		}

		var err error
		order, err = tx.Orders().GetForUpdate(ctx, orderID)
		if err != nil {
			return err
		}

		now := m.now()
		if err := s.apply(&order, now); err != nil {
			m.recordTransitionError(err)
			return err
		}
		if err := tx.Orders().Update(ctx, order); err != nil {
			return fmt.Errorf("update order %d: %w", orderID, err)
		}
		if s.reverse {
			if _, err := m.ledger.ReverseOrderSettlement(ctx, tx.Members(), order.MemberID, order.UsedPoint, order.AccPoint); err != nil {
				return err
			}
		}
		return enqueueEvent(ctx, tx.Outbox(), s.event, order, now)
	})
	if err != nil {
		return err
	}

	s.record()
	m.logger.WithFields(log.Fields{
		"order_id":      order.ID,
		"member_id":     order.MemberID,
		"state":         order.State(),
		"return_status": order.ReturnStatus,
	}).Info(s.operation)
	return nil
}
