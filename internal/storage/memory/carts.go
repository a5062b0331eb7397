package memory

import (
	"context"
	"sort"

	"github.com/vladislavdragonenkov/shop/internal/domain"
)

type cartRepository struct{ tx *memTx }

func (r cartRepository) GetByMember(_ context.Context, memberID int64) (domain.Cart, error) {
	for _, cart := range r.tx.st.carts {
		if cart.MemberID == memberID {
			return cart, nil
		}
	}
	return domain.Cart{}, domain.NewNotFound(domain.KindCart, memberID)
}

func (r cartRepository) Create(_ context.Context, memberID int64) (domain.Cart, error) {
	if err := r.tx.writable(); err != nil {
		return domain.Cart{}, err
	}
	r.tx.st.seq.cart++
	cart := domain.Cart{ID: r.tx.st.seq.cart, MemberID: memberID}
	r.tx.st.carts[cart.ID] = cart
	return cart, nil
}

func (r cartRepository) FindItem(_ context.Context, cartID, itemID int64) (domain.CartItem, bool, error) {
	for _, line := range r.tx.st.cartItems {
		if line.CartID == cartID && line.ItemID == itemID {
			return line, true, nil
		}
	}
	return domain.CartItem{}, false, nil
}

func (r cartRepository) GetItem(_ context.Context, cartItemID int64) (domain.CartItem, error) {
	line, ok := r.tx.st.cartItems[cartItemID]
	if !ok {
		return domain.CartItem{}, domain.NewNotFound(domain.KindCartItem, cartItemID)
	}
	return line, nil
}

func (r cartRepository) AddItem(_ context.Context, item domain.CartItem) (domain.CartItem, error) {
	if err := r.tx.writable(); err != nil {
		return domain.CartItem{}, err
	}
	r.tx.st.seq.cartItem++
	item.ID = r.tx.st.seq.cartItem
	r.tx.st.cartItems[item.ID] = item
	return item, nil
}

func (r cartRepository) UpdateItemCount(_ context.Context, cartItemID int64, count int) error {
	if err := r.tx.writable(); err != nil {
		return err
	}
	line, ok := r.tx.st.cartItems[cartItemID]
	if !ok {
		return domain.NewNotFound(domain.KindCartItem, cartItemID)
	}
	line.Count = count
	r.tx.st.cartItems[cartItemID] = line
	return nil
}

func (r cartRepository) DeleteItem(_ context.Context, cartItemID int64) error {
	if err := r.tx.writable(); err != nil {
		return err
	}
	if _, ok := r.tx.st.cartItems[cartItemID]; !ok {
		return domain.NewNotFound(domain.KindCartItem, cartItemID)
	}
	delete(r.tx.st.cartItems, cartItemID)
	return nil
}

// ListItems возвращает строки корзины в порядке добавления.
func (r cartRepository) ListItems(_ context.Context, cartID int64) ([]domain.CartItem, error) {
	lines := make([]domain.CartItem, 0)
	for _, line := range r.tx.st.cartItems {
		if line.CartID == cartID {
			lines = append(lines, line)
		}
	}
	sort.Slice(lines, func(i, j int) bool { return lines[i].ID < lines[j].ID })
	return lines, nil
}

func (r cartRepository) ItemOwnerEmail(_ context.Context, cartItemID int64) (string, error) {
	line, ok := r.tx.st.cartItems[cartItemID]
	if !ok {
		return "", domain.NewNotFound(domain.KindCartItem, cartItemID)
	}
	cart, ok := r.tx.st.carts[line.CartID]
	if !ok {
		return "", domain.NewNotFound(domain.KindCart, line.CartID)
	}
	member, ok := r.tx.st.members[cart.MemberID]
	if !ok {
		return "", domain.NewNotFound(domain.KindMember, cart.MemberID)
	}
	return member.Email, nil
}
