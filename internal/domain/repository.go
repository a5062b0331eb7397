package domain

import (
	"context"
	"time"
)

// MemberRepository описывает доступ к участникам.
type MemberRepository interface {
	// GetByEmail возвращает участника или NotFoundError.
	GetByEmail(ctx context.Context, email string) (Member, error)
	// GetForUpdate читает участника с блокировкой строки до конца транзакции.
	GetForUpdate(ctx context.Context, id int64) (Member, error)
	// UpdatePoint сохраняет новый баланс.
	UpdatePoint(ctx context.Context, id int64, point int64) error
}

// ItemRepository — чтение товаров каталога.
type ItemRepository interface {
	Get(ctx context.Context, id int64) (Item, error)
}

// TagRepository — счётчики популярности тегов.
type TagRepository interface {
	// LockForItems блокирует теги переданных товаров в порядке id до конца транзакции.
	LockForItems(ctx context.Context, itemIDs []int64) error
	// IncrementSellForItem увеличивает total_sell всех тегов товара на 1 и
	// возвращает число затронутых тегов.
	IncrementSellForItem(ctx context.Context, itemID int64) (int, error)
	// ListByTotalSell возвращает теги по убыванию total_sell; limit<=0 снимает ограничение.
	ListByTotalSell(ctx context.Context, limit int) ([]Tag, error)
}

// OrderRepository описывает требования к хранилищу заказов.
type OrderRepository interface {
	// Create сохраняет заказ с позициями и проставляет им идентификаторы.
	Create(ctx context.Context, order *Order) error
	// Get возвращает заказ с позициями или NotFoundError.
	Get(ctx context.Context, id int64) (Order, error)
	// GetForUpdate читает заказ с блокировкой строки до конца транзакции.
	GetForUpdate(ctx context.Context, id int64) (Order, error)
	// Update сохраняет статусы заказа и поля возврата позиций.
	Update(ctx context.Context, order Order) error
	// OwnerEmail возвращает email владельца заказа.
	OwnerEmail(ctx context.Context, orderID int64) (string, error)
	// List возвращает страницу заказов по убыванию даты и общее число совпадений.
	List(ctx context.Context, filter OrderFilter, offset, limit int) ([]Order, int64, error)
}

// CartRepository описывает хранилище корзин.
type CartRepository interface {
	GetByMember(ctx context.Context, memberID int64) (Cart, error)
	Create(ctx context.Context, memberID int64) (Cart, error)
	// FindItem ищет строку корзины с товаром; ok=false, если её нет.
	FindItem(ctx context.Context, cartID, itemID int64) (CartItem, bool, error)
	GetItem(ctx context.Context, cartItemID int64) (CartItem, error)
	AddItem(ctx context.Context, item CartItem) (CartItem, error)
	UpdateItemCount(ctx context.Context, cartItemID int64, count int) error
	DeleteItem(ctx context.Context, cartItemID int64) error
	ListItems(ctx context.Context, cartID int64) ([]CartItem, error)
	// ItemOwnerEmail возвращает email владельца корзины, к которой относится строка.
	ItemOwnerEmail(ctx context.Context, cartItemID int64) (string, error)
}

// OutboxWriter ставит событие в transactional outbox внутри транзакции.
type OutboxWriter interface {
	Enqueue(ctx context.Context, msg OutboxMessage) (OutboxMessage, error)
}

// OutboxRepository описывает сторону outbox, которую читает воркер публикации.
type OutboxRepository interface {
	OutboxWriter
	PullPending(ctx context.Context, limit int) ([]OutboxMessage, error)
	Stats(ctx context.Context) (OutboxStats, error)
	MarkSent(ctx context.Context, id string) error
	MarkFailed(ctx context.Context, id string) error
}

// Tx открывает репозитории в рамках одной единицы работы.
type Tx interface {
	Members() MemberRepository
	Items() ItemRepository
	Tags() TagRepository
	Orders() OrderRepository
	Carts() CartRepository
	Outbox() OutboxWriter
}

// UnitOfWork скрывает начало, фиксацию и откат транзакции.
type UnitOfWork interface {
	// WithinTx выполняет fn атомарно: при ошибке ни одна запись не сохраняется.
	WithinTx(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error
	// WithinReadTx выполняет fn на согласованном снимке без блокировки писателей.
	WithinReadTx(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error
}

// CatalogRepository выполняет запросы каталога вне транзакций записи.
type CatalogRepository interface {
	// SearchItems возвращает страницу товаров и общее число совпадений одним снимком.
	SearchItems(ctx context.Context, query ItemQuery) ([]ListingRow, int64, error)
	// CountSalesBetween ранжирует все товары по числу позиций заказов с created_at в [since, until].
	CountSalesBetween(ctx context.Context, since, until time.Time) ([]BestSellerRow, error)
}
