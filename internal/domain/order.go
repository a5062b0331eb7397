package domain

import "time"

// OrderStatus хранится в колонке orders.order_status.
type OrderStatus string

const (
	OrderStatusOrder  OrderStatus = "ORDER"
	OrderStatusCancel OrderStatus = "CANCEL"
	OrderStatusReturn OrderStatus = "RETURN"
)

// GiftStatus отличает покупку для себя от подарка.
type GiftStatus string

const (
	GiftStatusBuy  GiftStatus = "BUY"
	GiftStatusGift GiftStatus = "GIFT"
)

// Valid сообщает, известен ли статус.
func (s GiftStatus) Valid() bool {
	return s == GiftStatusBuy || s == GiftStatusGift
}

// ReturnStatus: пустое значение означает, что возврата не было.
type ReturnStatus string

const (
	ReturnStatusNone      ReturnStatus = ""
	ReturnStatusRequested ReturnStatus = "REQUESTED"
	ReturnStatusConfirmed ReturnStatus = "CONFIRMED"
)

// OrderItem — позиция заказа.
type OrderItem struct {
	ID      int64
	OrderID int64
	ItemID  int64
	// ItemName фиксирует название товара на момент заказа.
	ItemName string
	Count    int
	// OrderPrice равна цене за единицу, умноженной на количество на момент заказа.
	OrderPrice        int64
	ReturnStatus      ReturnStatus
	ReturnCount       int
	ReturnPrice       int64
	ReturnRequestedAt *time.Time
	ReturnConfirmedAt *time.Time
	ReviewFlag        bool
	CreatedAt         time.Time
}

// Order агрегирует заказ участника и его позиции.
type Order struct {
	ID                int64
	MemberID          int64
	OrderDate         time.Time
	Status            OrderStatus
	GiftStatus        GiftStatus
	UsedPoint         int64
	AccPoint          int64
	ReturnStatus      ReturnStatus
	ReturnRequestedAt *time.Time
	ReturnConfirmedAt *time.Time
	CanceledAt        *time.Time
	Items             []OrderItem
}

// TotalPrice возвращает сумму позиций заказа.
func (o *Order) TotalPrice() int64 {
	var total int64
	for _, item := range o.Items {
		total += item.OrderPrice
	}
	return total
}

// ValidateInvariants проверяет базовые инварианты заказа перед сохранением.
func (o *Order) ValidateInvariants() []error {
	var errs []error

	if o.MemberID <= 0 {
		errs = append(errs, NewValidation("member_id", "is required"))
	}
	if !o.GiftStatus.Valid() {
		errs = append(errs, NewValidation("gift_status", "must be BUY or GIFT"))
	}
	if len(o.Items) == 0 {
		errs = append(errs, NewValidation("items", "order must contain at least one item"))
	}
	if o.UsedPoint < 0 {
		errs = append(errs, NewValidation("used_point", "must be non-negative"))
	}
	if o.AccPoint < 0 {
		errs = append(errs, NewValidation("acc_point", "must be non-negative"))
	}
	for _, item := range o.Items {
		if item.Count <= 0 {
			errs = append(errs, NewValidation("count", "must be greater than zero"))
		}
		if item.OrderPrice < 0 {
			errs = append(errs, NewValidation("order_price", "must be non-negative"))
		}
	}

	return errs
}

// Cancel переводит заказ в CANCEL.
func (o *Order) Cancel(now time.Time) error {
	if _, err := NextState(o.State(), TransitionCancel); err != nil {
		return err
	}
	o.Status = OrderStatusCancel
	o.CanceledAt = &now
	return nil
}

// RequestReturn оформляет запрос на возврат всех позиций заказа.
func (o *Order) RequestReturn(now time.Time) error {
	if _, err := NextState(o.State(), TransitionRequestReturn); err != nil {
		return err
	}
	for i := range o.Items {
		item := &o.Items[i]
		item.ReturnRequestedAt = &now
		item.ReturnPrice = item.OrderPrice
		item.ReturnCount = item.Count
		item.ReturnStatus = ReturnStatusRequested
	}
	o.ReturnRequestedAt = &now
	o.Status = OrderStatusReturn
	o.ReturnStatus = ReturnStatusRequested
	return nil
}

// ConfirmReturn подтверждает ранее запрошенный возврат.
func (o *Order) ConfirmReturn(now time.Time) error {
	if _, err := NextState(o.State(), TransitionConfirmReturn); err != nil {
		return err
	}
	for i := range o.Items {
		item := &o.Items[i]
		item.ReturnConfirmedAt = &now
		item.ReturnPrice = item.OrderPrice
		item.ReturnCount = item.Count
		item.ReturnStatus = ReturnStatusConfirmed
	}
	o.ReturnConfirmedAt = &now
	o.Status = OrderStatusReturn
	o.ReturnStatus = ReturnStatusConfirmed
	return nil
}

// OrderFilter ограничивает выборку истории заказов.
type OrderFilter struct {
	MemberID   int64
	GiftStatus *GiftStatus
	Status     *OrderStatus
}

// OrderLine — строка заказа из корзины или прямой покупки.
type OrderLine struct {
	ItemID int64 `validate:"gt=0"`
	Count  int   `validate:"gt=0"`
}

// OrderSummary передаётся в уведомление о покупке одного товара.
type OrderSummary struct {
	OrderID    int64
	ItemName   string
	Count      int
	TotalPrice int64
	UsedPoint  int64
	AccPoint   int64
	OrderDate  time.Time
}

// NoticeLine — строка агрегированного уведомления о покупке из корзины.
type NoticeLine struct {
	ItemName   string
	Count      int
	OrderPrice int64
}
