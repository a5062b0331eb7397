package domain

// Cart создаётся при первом добавлении товара.
type Cart struct {
	ID       int64
	MemberID int64
}

// CartItem — строка корзины.
type CartItem struct {
	ID     int64
	CartID int64
	ItemID int64
	Count  int
}

// CartLineView — строка корзины для отображения.
type CartLineView struct {
	CartItemID int64
	ItemID     int64
	ItemName   string
	Price      int64
	Count      int
	ImageURL   string
}
