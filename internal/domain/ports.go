package domain

import (
	"context"
	"time"
)

// ImageLookup возвращает URL представительного изображения товара.
// Хранилище изображений находится вне ядра.
type ImageLookup interface {
	// RepresentativeImages возвращает URL по id товара; товары без изображения отсутствуют в карте.
	RepresentativeImages(ctx context.Context, itemIDs []int64) (map[int64]string, error)
}

// NotificationDispatcher отправляет уведомления о покупках по каналу, выбранному участником.
// Ошибки доставки не влияют на уже зафиксированный заказ.
type NotificationDispatcher interface {
	SendPurchaseNotice(ctx context.Context, member Member, summary OrderSummary) error
	SendCartPurchaseNotice(ctx context.Context, member Member, lines []NoticeLine, totalPrice int64) error
}

// OutboxPublisher публикует события из transactional outbox.
type OutboxPublisher interface {
	// Publish передаёт событие наружу; должен быть идемпотентным.
	Publish(event OutboxMessage) error
}

// OutboxMessage хранит данные для публикуемого события.
type OutboxMessage struct {
	ID            string
	AggregateType string
	AggregateID   string
	EventType     string
	Payload       []byte
}

// OutboxStats описывает текущее состояние backlog transactional outbox.
type OutboxStats struct {
	PendingCount    int
	OldestPendingAt time.Time
}

// Типы событий заказа, которые пишутся в outbox.
const (
	AggregateOrder = "order"

	EventOrderPlaced          = "order.placed"
	EventOrderCanceled        = "order.canceled"
	EventOrderReturnRequested = "order.return_requested"
	EventOrderReturnConfirmed = "order.return_confirmed"
)
