package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/vladislavdragonenkov/shop/internal/domain"
)

type cartRepository struct{ q querier }

func (r cartRepository) GetByMember(ctx context.Context, memberID int64) (domain.Cart, error) {
	cart := domain.Cart{MemberID: memberID}
	err := r.q.QueryRowContext(ctx, `SELECT id FROM carts WHERE member_id = $1`, memberID).Scan(&cart.ID)
	if err != nil {
		return domain.Cart{}, notFound(err, domain.KindCart, memberID)
	}
	return cart, nil
}

// Create создаёт корзину; при гонке двух первых добавлений вторая вставка читает существующую.
func (r cartRepository) Create(ctx context.Context, memberID int64) (domain.Cart, error) {
	cart := domain.Cart{MemberID: memberID}
	err := r.q.QueryRowContext(ctx, `
		INSERT INTO carts (member_id) VALUES ($1)
		ON CONFLICT (member_id) DO UPDATE SET member_id = EXCLUDED.member_id
		RETURNING id
	`, memberID).Scan(&cart.ID)
	if err != nil {
		return domain.Cart{}, fmt.Errorf("insert cart: %w", err)
	}
	return cart, nil
}

func (r cartRepository) FindItem(ctx context.Context, cartID, itemID int64) (domain.CartItem, bool, error) {
	line, err := r.scanItem(ctx, `WHERE cart_id = $1 AND item_id = $2 FOR UPDATE`, cartID, itemID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.CartItem{}, false, nil
		}
		return domain.CartItem{}, false, fmt.Errorf("find cart item: %w", err)
	}
	return line, true, nil
}

func (r cartRepository) GetItem(ctx context.Context, cartItemID int64) (domain.CartItem, error) {
	line, err := r.scanItem(ctx, `WHERE id = $1`, cartItemID)
	if err != nil {
		return domain.CartItem{}, notFound(err, domain.KindCartItem, cartItemID)
	}
	return line, nil
}

func (r cartRepository) scanItem(ctx context.Context, where string, args ...any) (domain.CartItem, error) {
	var line domain.CartItem
	err := r.q.QueryRowContext(ctx, `SELECT id, cart_id, item_id, count FROM cart_items `+where, args...).
		Scan(&line.ID, &line.CartID, &line.ItemID, &line.Count)
	return line, err
}

func (r cartRepository) AddItem(ctx context.Context, item domain.CartItem) (domain.CartItem, error) {
	err := r.q.QueryRowContext(ctx, `
		INSERT INTO cart_items (cart_id, item_id, count) VALUES ($1, $2, $3)
		RETURNING id
	`, item.CartID, item.ItemID, item.Count).Scan(&item.ID)
	if err != nil {
		if isUniqueViolation(err) {
			return domain.CartItem{}, domain.NewValidation("item_id", fmt.Sprintf("item %d is already in cart", item.ItemID))
		}
		return domain.CartItem{}, fmt.Errorf("insert cart item: %w", err)
	}
	return item, nil
}

func (r cartRepository) UpdateItemCount(ctx context.Context, cartItemID int64, count int) error {
	res, err := r.q.ExecContext(ctx, `UPDATE cart_items SET count = $2 WHERE id = $1`, cartItemID, count)
	if err != nil {
		return fmt.Errorf("update cart item: %w", err)
	}
	return requireAffected(res, domain.KindCartItem, cartItemID)
}

func (r cartRepository) DeleteItem(ctx context.Context, cartItemID int64) error {
	res, err := r.q.ExecContext(ctx, `DELETE FROM cart_items WHERE id = $1`, cartItemID)
	if err != nil {
		return fmt.Errorf("delete cart item: %w", err)
	}
	return requireAffected(res, domain.KindCartItem, cartItemID)
}

func (r cartRepository) ListItems(ctx context.Context, cartID int64) ([]domain.CartItem, error) {
	rows, err := r.q.QueryContext(ctx, `
		SELECT id, cart_id, item_id, count
		FROM cart_items
		WHERE cart_id = $1
		ORDER BY id
	`, cartID)
	if err != nil {
		return nil, fmt.Errorf("list cart items: %w", err)
	}
	defer rows.Close()

	lines := make([]domain.CartItem, 0)
	for rows.Next() {
		var line domain.CartItem
		if err := rows.Scan(&line.ID, &line.CartID, &line.ItemID, &line.Count); err != nil {
			return nil, fmt.Errorf("scan cart item: %w", err)
		}
		lines = append(lines, line)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate cart items: %w", err)
	}
	return lines, nil
}

func (r cartRepository) ItemOwnerEmail(ctx context.Context, cartItemID int64) (string, error) {
	var email string
	err := r.q.QueryRowContext(ctx, `
		SELECT m.email
		FROM cart_items ci
		JOIN carts c ON c.id = ci.cart_id
		JOIN members m ON m.id = c.member_id
		WHERE ci.id = $1
	`, cartItemID).Scan(&email)
	if err != nil {
		return "", notFound(err, domain.KindCartItem, cartItemID)
	}
	return email, nil
}
