package order

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"

	"github.com/vladislavdragonenkov/shop/internal/domain"
)

// orderEvent — payload события заказа в outbox.
type orderEvent struct {
	OrderID      int64               `json:"order_id"`
	MemberID     int64               `json:"member_id"`
	Status       domain.OrderStatus  `json:"status"`
	ReturnStatus domain.ReturnStatus `json:"return_status,omitempty"`
	GiftStatus   domain.GiftStatus   `json:"gift_status"`
	TotalPrice   int64               `json:"total_price"`
	UsedPoint    int64               `json:"used_point"`
	AccPoint     int64               `json:"acc_point"`
	Lines        []eventLine         `json:"lines"`
	OccurredAt   time.Time           `json:"occurred_at"`
}

type eventLine struct {
	ItemID     int64 `json:"item_id"`
	Count      int   `json:"count"`
	OrderPrice int64 `json:"order_price"`
}

func enqueueEvent(ctx context.Context, outbox domain.OutboxWriter, eventType string, order domain.Order, at time.Time) error {
	event := orderEvent{
		OrderID:      order.ID,
		MemberID:     order.MemberID,
		Status:       order.Status,
		ReturnStatus: order.ReturnStatus,
		GiftStatus:   order.GiftStatus,
		TotalPrice:   order.TotalPrice(),
		UsedPoint:    order.UsedPoint,
		AccPoint:     order.AccPoint,
		Lines:        make([]eventLine, 0, len(order.Items)),
		OccurredAt:   at,
	}
	for _, item := range order.Items {
		event.Lines = append(event.Lines, eventLine{ItemID: item.ItemID, Count: item.Count, OrderPrice: item.OrderPrice})
	}

	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal %s event: %w", eventType, err)
	}

	_, err = outbox.Enqueue(ctx, domain.OutboxMessage{
		ID:            uuid.NewString(),
		AggregateType: domain.AggregateOrder,
		AggregateID:   strconv.FormatInt(order.ID, 10),
		EventType:     eventType,
		Payload:       payload,
	})
	if err != nil {
		return fmt.Errorf("enqueue %s event: %w", eventType, err)
	}
	return nil
}
