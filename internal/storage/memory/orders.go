package memory

import (
	"context"
	"sort"

	"github.com/vladislavdragonenkov/shop/internal/domain"
)

type orderRepository struct{ tx *memTx }

// copyOrder отвязывает срез позиций от хранимого значения.
func copyOrder(order domain.Order) domain.Order {
	order.Items = append([]domain.OrderItem(nil), order.Items...)
	return order
}

// Create сохраняет заказ и присваивает идентификаторы ему и его позициям.
func (r orderRepository) Create(_ context.Context, order *domain.Order) error {
	if err := r.tx.writable(); err != nil {
		return err
	}
	seq := &r.tx.st.seq
	seq.order++
	order.ID = seq.order
	for i := range order.Items {
		seq.orderItem++
		order.Items[i].ID = seq.orderItem
		order.Items[i].OrderID = order.ID
		if order.Items[i].CreatedAt.IsZero() {
			order.Items[i].CreatedAt = order.OrderDate
		}
	}
	r.tx.st.orders[order.ID] = copyOrder(*order)
	return nil
}

// Get возвращает заказ или NotFoundError.
func (r orderRepository) Get(_ context.Context, id int64) (domain.Order, error) {
	order, ok := r.tx.st.orders[id]
	if !ok {
		return domain.Order{}, domain.NewNotFound(domain.KindOrder, id)
	}
	return copyOrder(order), nil
}

func (r orderRepository) GetForUpdate(ctx context.Context, id int64) (domain.Order, error) {
	return r.Get(ctx, id)
}

// Update перезаписывает заказ целиком.
func (r orderRepository) Update(_ context.Context, order domain.Order) error {
	if err := r.tx.writable(); err != nil {
		return err
	}
	if _, ok := r.tx.st.orders[order.ID]; !ok {
		return domain.NewNotFound(domain.KindOrder, order.ID)
	}
	r.tx.st.orders[order.ID] = copyOrder(order)
	return nil
}

func (r orderRepository) OwnerEmail(_ context.Context, orderID int64) (string, error) {
	order, ok := r.tx.st.orders[orderID]
	if !ok {
		return "", domain.NewNotFound(domain.KindOrder, orderID)
	}
	member, ok := r.tx.st.members[order.MemberID]
	if !ok {
		return "", domain.NewNotFound(domain.KindMember, order.MemberID)
	}
	return member.Email, nil
}

// List возвращает заказы по убыванию даты, затем по убыванию ID.
func (r orderRepository) List(_ context.Context, filter domain.OrderFilter, offset, limit int) ([]domain.Order, int64, error) {
	matched := make([]domain.Order, 0)
	for _, order := range r.tx.st.orders {
		if filter.MemberID != 0 && order.MemberID != filter.MemberID {
			continue
		}
		if filter.GiftStatus != nil && order.GiftStatus != *filter.GiftStatus {
			continue
		}
		if filter.Status != nil && order.Status != *filter.Status {
			continue
		}
		matched = append(matched, order)
	}

	sort.Slice(matched, func(i, j int) bool {
		if !matched[i].OrderDate.Equal(matched[j].OrderDate) {
			return matched[i].OrderDate.After(matched[j].OrderDate)
		}
		return matched[i].ID > matched[j].ID
	})

	total := int64(len(matched))
	page := paginate(matched, offset, limit)
	result := make([]domain.Order, 0, len(page))
	for _, order := range page {
		result = append(result, copyOrder(order))
	}
	return result, total, nil
}

func paginate[T any](rows []T, offset, limit int) []T {
	if offset < 0 {
		offset = 0
	}
	if offset >= len(rows) {
		return nil
	}
	rows = rows[offset:]
	if limit > 0 && len(rows) > limit {
		rows = rows[:limit]
	}
	return rows
}
