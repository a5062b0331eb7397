package postgres

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/vladislavdragonenkov/shop/internal/domain"
)

type orderRepository struct{ q querier }

const orderColumns = `id, member_id, order_date, order_status, gift_status, used_point, acc_point,
	return_status, return_requested_at, return_confirmed_at, canceled_at`

func (r orderRepository) Create(ctx context.Context, order *domain.Order) error {
	err := r.q.QueryRowContext(ctx, `
		INSERT INTO orders (member_id, order_date, order_status, gift_status, used_point, acc_point, return_status)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING id
	`,
		order.MemberID, order.OrderDate, string(order.Status), string(order.GiftStatus),
		order.UsedPoint, order.AccPoint, string(order.ReturnStatus),
	).Scan(&order.ID)
	if err != nil {
		return fmt.Errorf("insert order: %w", err)
	}

	for i := range order.Items {
		item := &order.Items[i]
		item.OrderID = order.ID
		if item.CreatedAt.IsZero() {
			item.CreatedAt = order.OrderDate
		}
		if err := r.q.QueryRowContext(ctx, `
			INSERT INTO order_items (order_id, item_id, item_name, count, order_price, created_at)
			VALUES ($1, $2, $3, $4, $5, $6)
			RETURNING id
		`, order.ID, item.ItemID, item.ItemName, item.Count, item.OrderPrice, item.CreatedAt).Scan(&item.ID); err != nil {
			return fmt.Errorf("insert order item: %w", err)
		}
	}
	return nil
}

func (r orderRepository) Get(ctx context.Context, id int64) (domain.Order, error) {
	return r.get(ctx, id, "")
}

// GetForUpdate блокирует строку заказа до конца транзакции.
func (r orderRepository) GetForUpdate(ctx context.Context, id int64) (domain.Order, error) {
	return r.get(ctx, id, " FOR UPDATE")
}

func (r orderRepository) get(ctx context.Context, id int64, lock string) (domain.Order, error) {
	order, err := scanOrder(r.q.QueryRowContext(ctx, `SELECT `+orderColumns+` FROM orders WHERE id = $1`+lock, id))
	if err != nil {
		return domain.Order{}, notFound(err, domain.KindOrder, id)
	}

	items, err := r.loadItems(ctx, []int64{id})
	if err != nil {
		return domain.Order{}, err
	}
	order.Items = items[id]
	return order, nil
}

// Update сохраняет статусы заказа и поля возврата каждой позиции.
func (r orderRepository) Update(ctx context.Context, order domain.Order) error {
	res, err := r.q.ExecContext(ctx, `
		UPDATE orders
		SET order_status = $2,
			return_status = $3,
			return_requested_at = $4,
			return_confirmed_at = $5,
			canceled_at = $6
		WHERE id = $1
	`,
		order.ID, string(order.Status), string(order.ReturnStatus),
		order.ReturnRequestedAt, order.ReturnConfirmedAt, order.CanceledAt,
	)
	if err != nil {
		return fmt.Errorf("update order: %w", err)
	}
	if err := requireAffected(res, domain.KindOrder, order.ID); err != nil {
		return err
	}

	for _, item := range order.Items {
		if _, err := r.q.ExecContext(ctx, `
			UPDATE order_items
			SET return_status = $2,
				return_count = $3,
				return_price = $4,
				return_requested_at = $5,
				return_confirmed_at = $6,
				review_flag = $7
			WHERE id = $1
		`,
			item.ID, string(item.ReturnStatus), item.ReturnCount, item.ReturnPrice,
			item.ReturnRequestedAt, item.ReturnConfirmedAt, item.ReviewFlag,
		); err != nil {
			return fmt.Errorf("update order item %d: %w", item.ID, err)
		}
	}
	return nil
}

func (r orderRepository) OwnerEmail(ctx context.Context, orderID int64) (string, error) {
	var email string
	err := r.q.QueryRowContext(ctx, `
		SELECT m.email
		FROM orders o
		JOIN members m ON m.id = o.member_id
		WHERE o.id = $1
	`, orderID).Scan(&email)
	if err != nil {
		return "", notFound(err, domain.KindOrder, orderID)
	}
	return email, nil
}

func (r orderRepository) List(ctx context.Context, filter domain.OrderFilter, offset, limit int) ([]domain.Order, int64, error) {
	filters := orderFilters(filter)
	where := filters.where()
	countArgs := append([]any(nil), filters.args...)
	limitArg := filters.next(limit)
	offsetArg := filters.next(offset)

	rows, err := r.q.QueryContext(ctx, fmt.Sprintf(`
		SELECT %s, COUNT(*) OVER ()
		FROM orders%s
		ORDER BY order_date DESC, id DESC
		LIMIT %s OFFSET %s
	`, orderColumns, where, limitArg, offsetArg), filters.args...)
	if err != nil {
		return nil, 0, fmt.Errorf("list orders: %w", err)
	}
	defer rows.Close()

	var (
		orders []domain.Order
		ids    []int64
		total  int64
	)
	for rows.Next() {
		order, err := scanOrder(rows, &total)
		if err != nil {
			return nil, 0, fmt.Errorf("scan order: %w", err)
		}
		orders = append(orders, order)
		ids = append(ids, order.ID)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("iterate orders: %w", err)
	}

	// окно пустое, если offset за пределами выборки; total считаем отдельно
	if len(orders) == 0 && offset > 0 {
		if err := r.q.QueryRowContext(ctx, `SELECT COUNT(*) FROM orders`+where, countArgs...).Scan(&total); err != nil {
			return nil, 0, fmt.Errorf("count orders: %w", err)
		}
	}
	if len(ids) == 0 {
		return []domain.Order{}, total, nil
	}

	items, err := r.loadItems(ctx, ids)
	if err != nil {
		return nil, 0, err
	}
	for i := range orders {
		orders[i].Items = items[orders[i].ID]
	}
	return orders, total, nil
}

func (r orderRepository) loadItems(ctx context.Context, orderIDs []int64) (map[int64][]domain.OrderItem, error) {
	rows, err := r.q.QueryContext(ctx, `
		SELECT id, order_id, item_id, item_name, count, order_price, return_status, return_count,
			return_price, return_requested_at, return_confirmed_at, review_flag, created_at
		FROM order_items
		WHERE order_id = ANY($1)
		ORDER BY order_id, id
	`, orderIDs)
	if err != nil {
		return nil, fmt.Errorf("query order items: %w", err)
	}
	defer rows.Close()

	result := make(map[int64][]domain.OrderItem, len(orderIDs))
	for rows.Next() {
		var (
			item                 domain.OrderItem
			returnStatus         string
			requested, confirmed sql.NullTime
		)
		if err := rows.Scan(
			&item.ID, &item.OrderID, &item.ItemID, &item.ItemName, &item.Count, &item.OrderPrice,
			&returnStatus, &item.ReturnCount, &item.ReturnPrice, &requested, &confirmed,
			&item.ReviewFlag, &item.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("scan order item: %w", err)
		}
		item.ReturnStatus = domain.ReturnStatus(returnStatus)
		item.ReturnRequestedAt = nullTime(&requested)
		item.ReturnConfirmedAt = nullTime(&confirmed)
		item.CreatedAt = item.CreatedAt.UTC()
		result[item.OrderID] = append(result[item.OrderID], item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate order items: %w", err)
	}
	return result, nil
}

func orderFilters(filter domain.OrderFilter) *argBinder {
	b := &argBinder{}
	if filter.MemberID != 0 {
		b.bind("member_id = ?", filter.MemberID)
	}
	if filter.GiftStatus != nil {
		b.bind("gift_status = ?", string(*filter.GiftStatus))
	}
	if filter.Status != nil {
		b.bind("order_status = ?", string(*filter.Status))
	}
	return b
}

// scanOrder читает колонки orderColumns, затем колонки extra.
func scanOrder(row interface{ Scan(dest ...any) error }, extra ...any) (domain.Order, error) {
	var (
		order                          domain.Order
		status, gift, returnStatus     string
		requested, confirmed, canceled sql.NullTime
	)
	dest := []any{
		&order.ID, &order.MemberID, &order.OrderDate, &status, &gift, &order.UsedPoint, &order.AccPoint,
		&returnStatus, &requested, &confirmed, &canceled,
	}
	if err := row.Scan(append(dest, extra...)...); err != nil {
		return domain.Order{}, err
	}
	order.OrderDate = order.OrderDate.UTC()
	order.Status = domain.OrderStatus(status)
	order.GiftStatus = domain.GiftStatus(gift)
	order.ReturnStatus = domain.ReturnStatus(returnStatus)
	order.ReturnRequestedAt = nullTime(&requested)
	order.ReturnConfirmedAt = nullTime(&confirmed)
	order.CanceledAt = nullTime(&canceled)
	return order, nil
}
