package order

import (
	"context"
	"errors"
	"fmt"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/shop/internal/domain"
	"github.com/vladislavdragonenkov/shop/internal/validation"
)

const (
	kindSingle = "single"
	kindCart   = "cart"
)

// PlaceOrderRequest — покупка одного товара.
type PlaceOrderRequest struct {
	ItemID    int64 `validate:"gt=0"`
	Count     int   `validate:"gt=0"`
	UsedPoint int64 `validate:"gte=0"`
	// GiftStatus по умолчанию BUY.
	GiftStatus domain.GiftStatus `validate:"omitempty,oneof=BUY GIFT"`
}

type cartOrderRequest struct {
	Lines     []domain.OrderLine `validate:"required,min=1,dive"`
	UsedPoint int64              `validate:"gte=0"`
}

// Placement описывает результат размещения внутри транзакции.
// После фиксации передаётся в Complete.
type Placement struct {
	Order  domain.Order
	Member domain.Member
	kind   string
}

// PlaceSingleItemOrder размещает заказ на один товар и возвращает его id.
// Списание баллов, начисление, счётчики тегов и заказ фиксируются вместе.
func (m *Manager) PlaceSingleItemOrder(ctx context.Context, email string, req PlaceOrderRequest) (_ int64, err error) {
	started := time.Now()
	defer func() { m.metrics.ObserveOperation("place_order", started, err) }()

	if err := requireEmail(email); err != nil {
		return 0, err
	}
	if err := validation.Struct(req); err != nil {
		return 0, err
	}
	gift := req.GiftStatus
	if gift == "" {
		gift = domain.GiftStatusBuy
	}

	var placement Placement
	err = m.uow.WithinTx(ctx, func(ctx context.Context, tx domain.Tx) error {
		lines := []domain.OrderLine{{ItemID: req.ItemID, Count: req.Count}}
		p, err := m.place(ctx, tx, email, lines, req.UsedPoint, gift, kindSingle)
		if err != nil {
			return err
		}
		placement = p
		return nil
	})
	if err != nil {
		return 0, err
	}

	m.Complete(ctx, placement)
	return placement.Order.ID, nil
}

// PlaceCartOrder размещает один заказ на несколько строк.
func (m *Manager) PlaceCartOrder(ctx context.Context, email string, lines []domain.OrderLine, usedPoint int64) (_ int64, err error) {
	started := time.Now()
	defer func() { m.metrics.ObserveOperation("place_cart_order", started, err) }()

	var placement Placement
	err = m.uow.WithinTx(ctx, func(ctx context.Context, tx domain.Tx) error {
		p, err := m.PlaceCartOrderTx(ctx, tx, email, lines, usedPoint)
		placement = p
		return err
	})
	if err != nil {
		return 0, err
	}

	m.Complete(ctx, placement)
	return placement.Order.ID, nil
}

// PlaceCartOrderTx размещает заказ из строк в уже открытой транзакции.
// Вызывающий обязан вызвать Complete после успешной фиксации.
func (m *Manager) PlaceCartOrderTx(ctx context.Context, tx domain.Tx, email string, lines []domain.OrderLine, usedPoint int64) (Placement, error) {
	if err := requireEmail(email); err != nil {
		return Placement{}, err
	}
	if err := validation.Struct(cartOrderRequest{Lines: lines, UsedPoint: usedPoint}); err != nil {
		return Placement{}, err
	}

	return m.place(ctx, tx, email, lines, usedPoint, domain.GiftStatusBuy, kindCart)
}

// place проверяет баланс до чтения товаров для корзины и после него для
// одиночного заказа: неизвестный товар в одиночном заказе даёт NotFound.
func (m *Manager) place(ctx context.Context, tx domain.Tx, email string, lines []domain.OrderLine, usedPoint int64, gift domain.GiftStatus, kind string) (Placement, error) {
	member, err := tx.Members().GetByEmail(ctx, email)
	if err != nil {
		return Placement{}, err
	}
	if kind == kindCart {
		if err := m.requirePoints(member, usedPoint); err != nil {
			return Placement{}, err
		}
	}

	now := m.now()
	order := domain.Order{
		MemberID:   member.ID,
		OrderDate:  now,
		Status:     domain.OrderStatusOrder,
		GiftStatus: gift,
		UsedPoint:  usedPoint,
		Items:      make([]domain.OrderItem, 0, len(lines)),
	}
	for _, line := range lines {
		item, err := tx.Items().Get(ctx, line.ItemID)
		if err != nil {
			return Placement{}, err
		}
		if item.SellStatus == domain.SellStatusSoldOut {
			return Placement{}, domain.NewValidation("item_id", fmt.Sprintf("item %d is sold out", item.ID))
		}
		order.Items = append(order.Items, domain.OrderItem{
			ItemID:     item.ID,
			ItemName:   item.Name,
			Count:      line.Count,
			OrderPrice: item.Price * int64(line.Count),
			CreatedAt:  now,
		})
	}
	if kind == kindSingle {
		if err := m.requirePoints(member, usedPoint); err != nil {
			return Placement{}, err
		}
	}
	order.AccPoint = m.ledger.Accrual(order.TotalPrice())

	if errs := order.ValidateInvariants(); len(errs) > 0 {
		return Placement{}, errors.Join(errs...)
	}
	if err := tx.Orders().Create(ctx, &order); err != nil {
		return Placement{}, fmt.Errorf("create order: %w", err)
	}
	soldIDs := make([]int64, 0, len(order.Items))
	for _, item := range order.Items {
		soldIDs = append(soldIDs, item.ItemID)
	}
	if err := m.tracker.RecordSales(ctx, tx.Tags(), soldIDs); err != nil {
		return Placement{}, err
	}

	member, err = m.ledger.ApplyOrderSettlement(ctx, tx.Members(), member.ID, usedPoint, order.AccPoint)
	if err != nil {
		return Placement{}, err
	}
	if err := enqueueEvent(ctx, tx.Outbox(), domain.EventOrderPlaced, order, now); err != nil {
		return Placement{}, err
	}

	return Placement{Order: order, Member: member, kind: kind}, nil
}

func (m *Manager) requirePoints(member domain.Member, usedPoint int64) error {
	if usedPoint > member.Point {
		m.metrics.RecordInsufficientPoints()
		return &domain.InsufficientPointsError{Required: usedPoint, Available: member.Point}
	}
	return nil
}

// Complete выполняет действия после фиксации: метрики, лог и уведомление.
// Ошибка уведомления не отменяет заказ.
func (m *Manager) Complete(ctx context.Context, p Placement) {
	kind := p.kind
	if kind == "" {
		kind = kindCart
	}
	m.metrics.RecordOrderPlaced(kind)

	logger := m.logger.WithFields(log.Fields{
		"order_id":   p.Order.ID,
		"member_id":  p.Member.ID,
		"kind":       kind,
		"total":      p.Order.TotalPrice(),
		"used_point": p.Order.UsedPoint,
		"acc_point":  p.Order.AccPoint,
	})
	logger.Info("order placed")

	if m.notifier == nil {
		return
	}

	var err error
	switch kind {
	case kindSingle:
		// о подарках не уведомляем
		if p.Order.GiftStatus != domain.GiftStatusBuy || len(p.Order.Items) == 0 {
			return
		}
		line := p.Order.Items[0]
		err = m.notifier.SendPurchaseNotice(ctx, p.Member, domain.OrderSummary{
			OrderID:    p.Order.ID,
			ItemName:   line.ItemName,
			Count:      line.Count,
			TotalPrice: p.Order.TotalPrice(),
			UsedPoint:  p.Order.UsedPoint,
			AccPoint:   p.Order.AccPoint,
			OrderDate:  p.Order.OrderDate,
		})
	default:
		lines := make([]domain.NoticeLine, 0, len(p.Order.Items))
		for _, item := range p.Order.Items {
			lines = append(lines, domain.NoticeLine{ItemName: item.ItemName, Count: item.Count, OrderPrice: item.OrderPrice})
		}
		err = m.notifier.SendCartPurchaseNotice(ctx, p.Member, lines, p.Order.TotalPrice())
	}
	if err != nil {
		logger.WithError(err).Warn("purchase notification failed")
	}
}
