package order

import (
	"context"
	"fmt"
	"time"

	"github.com/vladislavdragonenkov/shop/internal/domain"
	"github.com/vladislavdragonenkov/shop/internal/validation"
)

// GetOrder возвращает заказ участника с позициями.
func (m *Manager) GetOrder(ctx context.Context, email string, orderID int64) (domain.OrderHistory, error) {
	if err := requireEmail(email); err != nil {
		return domain.OrderHistory{}, err
	}

	var order domain.Order
	err := m.uow.WithinReadTx(ctx, func(ctx context.Context, tx domain.Tx) error {
		if err := authorize(ctx, tx, orderID, email); err != nil {
			return err
		}
		var err error
		order, err = tx.Orders().Get(ctx, orderID)
		return err
	})
	if err != nil {
		return domain.OrderHistory{}, err
	}

	images := m.lookupImages(ctx, []domain.Order{order})
	return toHistory(order, images), nil
}

// ListOrders возвращает историю заказов участника по убыванию даты.
func (m *Manager) ListOrders(ctx context.Context, email string, page, pageSize int) (domain.OrderHistoryPage, error) {
	return m.listOrders(ctx, "list_orders", email, domain.OrderFilter{}, page, pageSize)
}

// ListOrdersByGiftStatus возвращает только покупки или только подарки.
func (m *Manager) ListOrdersByGiftStatus(ctx context.Context, email string, status domain.GiftStatus, page, pageSize int) (domain.OrderHistoryPage, error) {
	if !status.Valid() {
		return domain.OrderHistoryPage{}, domain.NewValidation("gift_status", "must be BUY or GIFT")
	}
	return m.listOrders(ctx, "list_orders_by_gift", email, domain.OrderFilter{GiftStatus: &status}, page, pageSize)
}

// ListReturns возвращает заказы с запрошенным или подтверждённым возвратом.
func (m *Manager) ListReturns(ctx context.Context, email string, page, pageSize int) (domain.OrderHistoryPage, error) {
	status := domain.OrderStatusReturn
	return m.listOrders(ctx, "list_returns", email, domain.OrderFilter{Status: &status}, page, pageSize)
}

func (m *Manager) listOrders(ctx context.Context, operation, email string, filter domain.OrderFilter, page, pageSize int) (_ domain.OrderHistoryPage, err error) {
	started := time.Now()
	defer func() { m.metrics.ObserveOperation(operation, started, err) }()

	if err := requireEmail(email); err != nil {
		return domain.OrderHistoryPage{}, err
	}
	if err := validatePage(page, pageSize); err != nil {
		return domain.OrderHistoryPage{}, err
	}

	var (
		orders []domain.Order
		total  int64
	)
	err = m.uow.WithinReadTx(ctx, func(ctx context.Context, tx domain.Tx) error {
		member, err := tx.Members().GetByEmail(ctx, email)
		if err != nil {
			return err
		}
		filter.MemberID = member.ID
		orders, total, err = tx.Orders().List(ctx, filter, page*pageSize, pageSize)
		if err != nil {
			return fmt.Errorf("list orders: %w", err)
		}
		return nil
	})
	if err != nil {
		return domain.OrderHistoryPage{}, err
	}

	images := m.lookupImages(ctx, orders)
	result := domain.OrderHistoryPage{
		Orders:   make([]domain.OrderHistory, 0, len(orders)),
		Total:    total,
		Page:     page,
		PageSize: pageSize,
	}
	for _, order := range orders {
		result.Orders = append(result.Orders, toHistory(order, images))
	}
	return result, nil
}

func validatePage(page, pageSize int) error {
	if err := validation.Var("page", page, "gte=0"); err != nil {
		return err
	}
	return validation.Var("page_size", pageSize, fmt.Sprintf("gte=1,lte=%d", MaxPageSize))
}

// lookupImages вызывается вне транзакции. Ошибка источника изображений
// не ломает историю: строки остаются без URL.
func (m *Manager) lookupImages(ctx context.Context, orders []domain.Order) map[int64]string {
	if m.images == nil {
		return nil
	}
	seen := make(map[int64]struct{})
	ids := make([]int64, 0)
	for _, order := range orders {
		for _, item := range order.Items {
			if _, ok := seen[item.ItemID]; ok {
				continue
			}
			seen[item.ItemID] = struct{}{}
			ids = append(ids, item.ItemID)
		}
	}
	if len(ids) == 0 {
		return nil
	}

	images, err := m.images.RepresentativeImages(ctx, ids)
	if err != nil {
		m.logger.WithError(err).WithField("items", len(ids)).Warn("image lookup failed")
		return nil
	}
	return images
}

func toHistory(order domain.Order, images map[int64]string) domain.OrderHistory {
	history := domain.OrderHistory{
		OrderID:      order.ID,
		OrderDate:    order.OrderDate,
		Status:       order.Status,
		GiftStatus:   order.GiftStatus,
		ReturnStatus: order.ReturnStatus,
		UsedPoint:    order.UsedPoint,
		AccPoint:     order.AccPoint,
		TotalPrice:   order.TotalPrice(),
		Lines:        make([]domain.OrderLineView, 0, len(order.Items)),
	}
	for _, item := range order.Items {
		history.Lines = append(history.Lines, domain.OrderLineView{
			ItemID:       item.ItemID,
			ItemName:     item.ItemName,
			Count:        item.Count,
			OrderPrice:   item.OrderPrice,
			ImageURL:     images[item.ItemID],
			ReturnStatus: item.ReturnStatus,
			ReturnCount:  item.ReturnCount,
			ReturnPrice:  item.ReturnPrice,
		})
	}
	return history
}
