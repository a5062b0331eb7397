package memory_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/vladislavdragonenkov/shop/internal/domain"
	"github.com/vladislavdragonenkov/shop/internal/storage/memory"
)

func newOrder(memberID int64, at time.Time) domain.Order {
	return domain.Order{
		MemberID:   memberID,
		OrderDate:  at,
		Status:     domain.OrderStatusOrder,
		GiftStatus: domain.GiftStatusBuy,
		Items: []domain.OrderItem{
			{ItemID: 1, ItemName: "lamp", Count: 1, OrderPrice: 500},
		},
	}
}

func TestOrderRepository_CreateGet(t *testing.T) {
	store := memory.NewStore()
	ctx := context.Background()
	order := newOrder(1, time.Now().UTC())

	err := store.WithinTx(ctx, func(ctx context.Context, tx domain.Tx) error {
		return tx.Orders().Create(ctx, &order)
	})
	if err != nil {
		t.Fatalf("create failed: %v", err)
	}
	if order.ID == 0 || order.Items[0].ID == 0 || order.Items[0].OrderID != order.ID {
		t.Fatalf("expected ids to be assigned, got %+v", order)
	}
	if !order.Items[0].CreatedAt.Equal(order.OrderDate) {
		t.Fatal("expected item created_at to default to order date")
	}

	var stored domain.Order
	err = store.WithinReadTx(ctx, func(ctx context.Context, tx domain.Tx) error {
		var err error
		stored, err = tx.Orders().Get(ctx, order.ID)
		return err
	})
	if err != nil {
		t.Fatalf("get failed: %v", err)
	}
	if stored.ID != order.ID || len(stored.Items) != 1 {
		t.Fatalf("unexpected stored order: %+v", stored)
	}

	stored.Items[0].Count = 99
	_ = store.WithinReadTx(ctx, func(ctx context.Context, tx domain.Tx) error {
		again, _ := tx.Orders().Get(ctx, order.ID)
		if again.Items[0].Count != 1 {
			t.Fatal("mutating a returned order must not change the store")
		}
		return nil
	})
}

func TestOrderRepository_GetMissing(t *testing.T) {
	store := memory.NewStore()
	err := store.WithinReadTx(context.Background(), func(ctx context.Context, tx domain.Tx) error {
		_, err := tx.Orders().Get(ctx, 42)
		return err
	})
	if !domain.IsNotFound(err) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestOrderRepository_ListFiltersAndOrders(t *testing.T) {
	store := memory.NewStore()
	ctx := context.Background()
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	err := store.WithinTx(ctx, func(ctx context.Context, tx domain.Tx) error {
		for i := 0; i < 3; i++ {
			order := newOrder(1, base.Add(time.Duration(i)*time.Hour))
			if i == 1 {
				order.GiftStatus = domain.GiftStatusGift
			}
			if err := tx.Orders().Create(ctx, &order); err != nil {
				return err
			}
		}
		other := newOrder(2, base)
		return tx.Orders().Create(ctx, &other)
	})
	if err != nil {
		t.Fatalf("seed failed: %v", err)
	}

	gift := domain.GiftStatusGift
	_ = store.WithinReadTx(ctx, func(ctx context.Context, tx domain.Tx) error {
		orders, total, err := tx.Orders().List(ctx, domain.OrderFilter{MemberID: 1}, 0, 2)
		if err != nil {
			t.Fatalf("list failed: %v", err)
		}
		if total != 3 || len(orders) != 2 {
			t.Fatalf("expected 2 of 3 orders, got %d of %d", len(orders), total)
		}
		if !orders[0].OrderDate.After(orders[1].OrderDate) {
			t.Fatal("expected newest order first")
		}

		orders, total, err = tx.Orders().List(ctx, domain.OrderFilter{MemberID: 1, GiftStatus: &gift}, 0, 10)
		if err != nil {
			t.Fatalf("list gifts failed: %v", err)
		}
		if total != 1 || len(orders) != 1 || orders[0].GiftStatus != domain.GiftStatusGift {
			t.Fatalf("unexpected gift orders: %+v", orders)
		}

		orders, total, _ = tx.Orders().List(ctx, domain.OrderFilter{MemberID: 1}, 10, 5)
		if total != 3 || len(orders) != 0 {
			t.Fatalf("expected empty page past the end, got %d (total %d)", len(orders), total)
		}
		return nil
	})
}

func TestStore_WithinTxRollsBackOnError(t *testing.T) {
	store := memory.NewStore()
	member := store.AddMember(domain.Member{Email: "a@shop.io", Point: 100})
	ctx := context.Background()
	boom := errors.New("boom")

	err := store.WithinTx(ctx, func(ctx context.Context, tx domain.Tx) error {
		if err := tx.Members().UpdatePoint(ctx, member.ID, 0); err != nil {
			return err
		}
		order := newOrder(member.ID, time.Now())
		if err := tx.Orders().Create(ctx, &order); err != nil {
			return err
		}
		return boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("expected boom, got %v", err)
	}

	got, _ := store.Member(member.ID)
	if got.Point != 100 {
		t.Fatalf("expected balance untouched, got %d", got.Point)
	}
	_ = store.WithinReadTx(ctx, func(ctx context.Context, tx domain.Tx) error {
		_, total, _ := tx.Orders().List(ctx, domain.OrderFilter{}, 0, 10)
		if total != 0 {
			t.Fatalf("expected no orders after rollback, got %d", total)
		}
		return nil
	})
}

func TestStore_ReadTxRejectsWrites(t *testing.T) {
	store := memory.NewStore()
	member := store.AddMember(domain.Member{Email: "a@shop.io", Point: 100})

	err := store.WithinReadTx(context.Background(), func(ctx context.Context, tx domain.Tx) error {
		return tx.Members().UpdatePoint(ctx, member.ID, 1)
	})
	if err == nil {
		t.Fatal("expected write inside read transaction to fail")
	}
}

func TestStore_WithinTxHonoursCanceledContext(t *testing.T) {
	store := memory.NewStore()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	called := false
	err := store.WithinTx(ctx, func(context.Context, domain.Tx) error {
		called = true
		return nil
	})
	if !errors.Is(err, context.Canceled) || called {
		t.Fatalf("expected canceled context to short-circuit, err=%v called=%v", err, called)
	}
}
