package postgres

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vladislavdragonenkov/shop/internal/domain"
)

func integrationContext(t *testing.T) context.Context {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	t.Cleanup(cancel)
	return ctx
}

func createOrder(t *testing.T, ctx context.Context, store *Store, f fixture, at time.Time, gift domain.GiftStatus) domain.Order {
	t.Helper()
	order := domain.Order{
		MemberID:   f.memberID,
		OrderDate:  at,
		Status:     domain.OrderStatusOrder,
		GiftStatus: gift,
		UsedPoint:  100,
		AccPoint:   50,
		Items: []domain.OrderItem{
			{ItemID: f.lampID, ItemName: "Desk lamp", Count: 1, OrderPrice: 10000, CreatedAt: at},
		},
	}
	err := store.WithinTx(ctx, func(ctx context.Context, tx domain.Tx) error {
		return tx.Orders().Create(ctx, &order)
	})
	require.NoError(t, err)
	return order
}

func TestUnitOfWork_RollbackOnError(t *testing.T) {
	store := integrationStore(t)
	f := seedFixture(t, store, 1000)
	ctx := integrationContext(t)

	boom := errors.New("boom")
	err := store.WithinTx(ctx, func(ctx context.Context, tx domain.Tx) error {
		if err := tx.Members().UpdatePoint(ctx, f.memberID, 0); err != nil {
			return err
		}
		if _, err := tx.Tags().IncrementSellForItem(ctx, f.lampID); err != nil {
			return err
		}
		return boom
	})
	require.ErrorIs(t, err, boom)

	err = store.WithinReadTx(ctx, func(ctx context.Context, tx domain.Tx) error {
		member, err := tx.Members().GetByEmail(ctx, f.email)
		require.NoError(t, err)
		assert.Equal(t, int64(1000), member.Point)

		tags, err := tx.Tags().ListByTotalSell(ctx, 0)
		require.NoError(t, err)
		for _, tag := range tags {
			assert.Zero(t, tag.TotalSell)
		}
		return nil
	})
	require.NoError(t, err)
}

func TestUnitOfWork_RollbackOnPanic(t *testing.T) {
	store := integrationStore(t)
	f := seedFixture(t, store, 1000)
	ctx := integrationContext(t)

	assert.PanicsWithValue(t, "boom", func() {
		_ = store.WithinTx(ctx, func(ctx context.Context, tx domain.Tx) error {
			require.NoError(t, tx.Members().UpdatePoint(ctx, f.memberID, 0))
			panic("boom")
		})
	})
	assert.Zero(t, store.DB().Stats().InUse, "connection must return to the pool")

	err := store.WithinReadTx(ctx, func(ctx context.Context, tx domain.Tx) error {
		member, err := tx.Members().GetByEmail(ctx, f.email)
		require.NoError(t, err)
		assert.Equal(t, int64(1000), member.Point)
		return nil
	})
	require.NoError(t, err)
}

func TestTagRepository_LockForItems(t *testing.T) {
	store := integrationStore(t)
	f := seedFixture(t, store, 0)
	ctx := integrationContext(t)

	err := store.WithinTx(ctx, func(ctx context.Context, tx domain.Tx) error {
		require.NoError(t, tx.Tags().LockForItems(ctx, []int64{f.lampID, f.mugID}))
		require.NoError(t, tx.Tags().LockForItems(ctx, nil))
		return nil
	})
	require.NoError(t, err)
}

func TestReadTx_RejectsWrites(t *testing.T) {
	store := integrationStore(t)
	f := seedFixture(t, store, 1000)
	ctx := integrationContext(t)

	err := store.WithinReadTx(ctx, func(ctx context.Context, tx domain.Tx) error {
		return tx.Members().UpdatePoint(ctx, f.memberID, 1)
	})
	require.Error(t, err)
}

func TestMemberAndItemRepositories(t *testing.T) {
	store := integrationStore(t)
	f := seedFixture(t, store, 700)
	ctx := integrationContext(t)

	err := store.WithinTx(ctx, func(ctx context.Context, tx domain.Tx) error {
		member, err := tx.Members().GetForUpdate(ctx, f.memberID)
		require.NoError(t, err)
		assert.Equal(t, f.email, member.Email)
		assert.Equal(t, domain.NoticeTypeEmail, member.NoticeType)
		require.NoError(t, tx.Members().UpdatePoint(ctx, f.memberID, 650))

		item, err := tx.Items().Get(ctx, f.mugID)
		require.NoError(t, err)
		assert.Equal(t, domain.SellStatusSoldOut, item.SellStatus)
		assert.Equal(t, int64(3000), item.Price)
		return nil
	})
	require.NoError(t, err)

	err = store.WithinReadTx(ctx, func(ctx context.Context, tx domain.Tx) error {
		member, err := tx.Members().GetByEmail(ctx, f.email)
		require.NoError(t, err)
		assert.Equal(t, int64(650), member.Point)

		_, err = tx.Members().GetByEmail(ctx, "nobody@shop.test")
		var nf *domain.NotFoundError
		assert.ErrorAs(t, err, &nf)

		_, err = tx.Items().Get(ctx, 999)
		assert.ErrorAs(t, err, &nf)
		return nil
	})
	require.NoError(t, err)

	err = store.WithinTx(ctx, func(ctx context.Context, tx domain.Tx) error {
		return tx.Members().UpdatePoint(ctx, 999, 1)
	})
	var nf *domain.NotFoundError
	require.ErrorAs(t, err, &nf)
}

func TestTagRepository_IncrementAndRank(t *testing.T) {
	store := integrationStore(t)
	f := seedFixture(t, store, 0)
	ctx := integrationContext(t)

	err := store.WithinTx(ctx, func(ctx context.Context, tx domain.Tx) error {
		n, err := tx.Tags().IncrementSellForItem(ctx, f.lampID)
		require.NoError(t, err)
		assert.Equal(t, 2, n)

		n, err = tx.Tags().IncrementSellForItem(ctx, f.mugID)
		require.NoError(t, err)
		assert.Zero(t, n)
		return nil
	})
	require.NoError(t, err)
	mustExec(t, store, `UPDATE tags SET total_sell = total_sell + 5 WHERE id = $1`, f.tagIDs[1])

	err = store.WithinReadTx(ctx, func(ctx context.Context, tx domain.Tx) error {
		tags, err := tx.Tags().ListByTotalSell(ctx, 0)
		require.NoError(t, err)
		require.Len(t, tags, 2)
		assert.Equal(t, f.tagIDs[1], tags[0].ID)
		assert.Equal(t, int64(6), tags[0].TotalSell)
		assert.Equal(t, int64(1), tags[1].TotalSell)

		top, err := tx.Tags().ListByTotalSell(ctx, 1)
		require.NoError(t, err)
		assert.Len(t, top, 1)
		return nil
	})
	require.NoError(t, err)
}

func TestOrderRepository_CreateGetUpdate(t *testing.T) {
	store := integrationStore(t)
	f := seedFixture(t, store, 1000)
	ctx := integrationContext(t)

	at := time.Date(2026, 6, 1, 12, 0, 0, 0, time.UTC)
	order := createOrder(t, ctx, store, f, at, domain.GiftStatusBuy)
	require.NotZero(t, order.ID)
	require.NotZero(t, order.Items[0].ID)

	err := store.WithinTx(ctx, func(ctx context.Context, tx domain.Tx) error {
		loaded, err := tx.Orders().GetForUpdate(ctx, order.ID)
		require.NoError(t, err)
		assert.Equal(t, at, loaded.OrderDate)
		assert.Equal(t, int64(10000), loaded.TotalPrice())
		require.NoError(t, loaded.RequestReturn(at.Add(time.Hour)))
		return tx.Orders().Update(ctx, loaded)
	})
	require.NoError(t, err)

	err = store.WithinReadTx(ctx, func(ctx context.Context, tx domain.Tx) error {
		loaded, err := tx.Orders().Get(ctx, order.ID)
		require.NoError(t, err)
		assert.Equal(t, domain.ReturnStatusRequested, loaded.ReturnStatus)
		require.NotNil(t, loaded.ReturnRequestedAt)
		assert.Equal(t, at.Add(time.Hour), *loaded.ReturnRequestedAt)
		assert.Equal(t, domain.ReturnStatusRequested, loaded.Items[0].ReturnStatus)
		assert.Equal(t, 1, loaded.Items[0].ReturnCount)

		owner, err := tx.Orders().OwnerEmail(ctx, order.ID)
		require.NoError(t, err)
		assert.Equal(t, f.email, owner)

		_, err = tx.Orders().Get(ctx, order.ID+100)
		var nf *domain.NotFoundError
		assert.ErrorAs(t, err, &nf)
		return nil
	})
	require.NoError(t, err)
}

func TestOrderRepository_ListFiltersAndPaging(t *testing.T) {
	store := integrationStore(t)
	f := seedFixture(t, store, 1000)
	ctx := integrationContext(t)

	base := time.Date(2026, 6, 1, 0, 0, 0, 0, time.UTC)
	var ids []int64
	for i := range 5 {
		gift := domain.GiftStatusBuy
		if i%2 == 1 {
			gift = domain.GiftStatusGift
		}
		ids = append(ids, createOrder(t, ctx, store, f, base.Add(time.Duration(i)*time.Hour), gift).ID)
	}

	err := store.WithinReadTx(ctx, func(ctx context.Context, tx domain.Tx) error {
		page, total, err := tx.Orders().List(ctx, domain.OrderFilter{MemberID: f.memberID}, 0, 2)
		require.NoError(t, err)
		assert.Equal(t, int64(5), total)
		require.Len(t, page, 2)
		assert.Equal(t, ids[4], page[0].ID)
		assert.Equal(t, ids[3], page[1].ID)
		assert.Len(t, page[0].Items, 1)

		gift := domain.GiftStatusGift
		page, total, err = tx.Orders().List(ctx, domain.OrderFilter{MemberID: f.memberID, GiftStatus: &gift}, 0, 10)
		require.NoError(t, err)
		assert.Equal(t, int64(2), total)
		assert.Len(t, page, 2)

		page, total, err = tx.Orders().List(ctx, domain.OrderFilter{MemberID: f.memberID}, 20, 2)
		require.NoError(t, err)
		assert.Empty(t, page)
		assert.Equal(t, int64(5), total)

		status := domain.OrderStatusReturn
		page, total, err = tx.Orders().List(ctx, domain.OrderFilter{MemberID: f.memberID, Status: &status}, 0, 10)
		require.NoError(t, err)
		assert.Empty(t, page)
		assert.Zero(t, total)
		return nil
	})
	require.NoError(t, err)
}

func TestCartRepository_Lifecycle(t *testing.T) {
	store := integrationStore(t)
	f := seedFixture(t, store, 0)
	ctx := integrationContext(t)

	var lineID int64
	err := store.WithinTx(ctx, func(ctx context.Context, tx domain.Tx) error {
		_, err := tx.Carts().GetByMember(ctx, f.memberID)
		var nf *domain.NotFoundError
		require.ErrorAs(t, err, &nf)

		cart, err := tx.Carts().Create(ctx, f.memberID)
		require.NoError(t, err)
		again, err := tx.Carts().Create(ctx, f.memberID)
		require.NoError(t, err)
		assert.Equal(t, cart.ID, again.ID)

		_, ok, err := tx.Carts().FindItem(ctx, cart.ID, f.lampID)
		require.NoError(t, err)
		assert.False(t, ok)

		_, err = tx.Carts().AddItem(ctx, domain.CartItem{CartID: cart.ID, ItemID: f.lampID, Count: 2})
		require.NoError(t, err)
		_, err = tx.Carts().AddItem(ctx, domain.CartItem{CartID: cart.ID, ItemID: f.lampID, Count: 1})
		return err
	})
	// дубль строки откатывает всю транзакцию, корзина не сохраняется
	var ve *domain.ValidationError
	require.ErrorAs(t, err, &ve)

	err = store.WithinTx(ctx, func(ctx context.Context, tx domain.Tx) error {
		cart, err := tx.Carts().Create(ctx, f.memberID)
		require.NoError(t, err)
		line, err := tx.Carts().AddItem(ctx, domain.CartItem{CartID: cart.ID, ItemID: f.lampID, Count: 2})
		require.NoError(t, err)
		lineID = line.ID

		found, ok, err := tx.Carts().FindItem(ctx, cart.ID, f.lampID)
		require.NoError(t, err)
		require.True(t, ok)
		assert.Equal(t, lineID, found.ID)
		return tx.Carts().UpdateItemCount(ctx, lineID, 5)
	})
	require.NoError(t, err)

	err = store.WithinReadTx(ctx, func(ctx context.Context, tx domain.Tx) error {
		cart, err := tx.Carts().GetByMember(ctx, f.memberID)
		require.NoError(t, err)
		lines, err := tx.Carts().ListItems(ctx, cart.ID)
		require.NoError(t, err)
		require.Len(t, lines, 1)
		assert.Equal(t, 5, lines[0].Count)

		owner, err := tx.Carts().ItemOwnerEmail(ctx, lineID)
		require.NoError(t, err)
		assert.Equal(t, f.email, owner)
		return nil
	})
	require.NoError(t, err)

	err = store.WithinTx(ctx, func(ctx context.Context, tx domain.Tx) error {
		require.NoError(t, tx.Carts().DeleteItem(ctx, lineID))
		err := tx.Carts().DeleteItem(ctx, lineID)
		var nf *domain.NotFoundError
		assert.ErrorAs(t, err, &nf)
		return nil
	})
	require.NoError(t, err)
}

func TestCatalogRepository_SearchItems(t *testing.T) {
	store := integrationStore(t)
	f := seedFixture(t, store, 0)
	ctx := integrationContext(t)

	rows, total, err := store.SearchItems(ctx, domain.ItemQuery{SortColumn: domain.SortByPrice, SortDirection: domain.SortAsc, Limit: 10})
	require.NoError(t, err)
	assert.Equal(t, int64(2), total)
	require.Len(t, rows, 2)
	assert.Equal(t, f.mugID, rows[0].ItemID)

	sell := domain.SellStatusSell
	rows, total, err = store.SearchItems(ctx, domain.ItemQuery{SellStatus: &sell, Limit: 10})
	require.NoError(t, err)
	assert.Equal(t, int64(1), total)
	require.Len(t, rows, 1)
	assert.Equal(t, int64(2500), rows[0].ShippingFee)

	// % в подстроке ищется буквально
	rows, _, err = store.SearchItems(ctx, domain.ItemQuery{CreatorContains: "100%", Limit: 10})
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, f.lampID, rows[0].ItemID)

	rows, _, err = store.SearchItems(ctx, domain.ItemQuery{NameContains: "%", Limit: 10})
	require.NoError(t, err)
	assert.Empty(t, rows)

	rows, total, err = store.SearchItems(ctx, domain.ItemQuery{TagIDs: []int64{f.tagIDs[0]}, Limit: 10})
	require.NoError(t, err)
	assert.Equal(t, int64(1), total)
	require.Len(t, rows, 1)

	after := time.Date(2026, 5, 1, 10, 30, 0, 0, time.UTC)
	rows, _, err = store.SearchItems(ctx, domain.ItemQuery{RegisteredAfter: &after, Limit: 10})
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, f.mugID, rows[0].ItemID)

	rows, total, err = store.SearchItems(ctx, domain.ItemQuery{Offset: 10, Limit: 10})
	require.NoError(t, err)
	assert.Empty(t, rows)
	assert.Equal(t, int64(2), total)
}

func TestCatalogRepository_SalesAndImages(t *testing.T) {
	store := integrationStore(t)
	f := seedFixture(t, store, 1000)
	ctx := integrationContext(t)

	at := time.Date(2026, 6, 1, 12, 0, 0, 0, time.UTC)
	createOrder(t, ctx, store, f, at, domain.GiftStatusBuy)
	createOrder(t, ctx, store, f, at.Add(-48*time.Hour), domain.GiftStatusBuy)
	createOrder(t, ctx, store, f, at.Add(time.Hour), domain.GiftStatusBuy)

	rows, err := store.CountSalesBetween(ctx, at.Add(-24*time.Hour), at)
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, f.lampID, rows[0].ItemID)
	assert.Equal(t, int64(1), rows[0].SoldCount)
	assert.Zero(t, rows[1].SoldCount)

	rows, err = store.CountSalesBetween(ctx, time.Time{}, at.Add(2*time.Hour))
	require.NoError(t, err)
	assert.Equal(t, int64(3), rows[0].SoldCount)

	images, err := store.RepresentativeImages(ctx, []int64{f.lampID, f.mugID})
	require.NoError(t, err)
	assert.Equal(t, map[int64]string{f.lampID: "lamp.png"}, images)

	images, err = store.RepresentativeImages(ctx, nil)
	require.NoError(t, err)
	assert.Empty(t, images)
}

func TestOutboxRepository_PendingFlow(t *testing.T) {
	store := integrationStore(t)
	ctx := integrationContext(t)

	err := store.WithinTx(ctx, func(ctx context.Context, tx domain.Tx) error {
		_, err := tx.Outbox().Enqueue(ctx, domain.OutboxMessage{
			ID: "evt-1", AggregateType: domain.AggregateOrder, AggregateID: "1",
			EventType: domain.EventOrderPlaced, Payload: []byte(`{"order_id":1}`),
		})
		return err
	})
	require.NoError(t, err)

	second, err := store.Enqueue(ctx, domain.OutboxMessage{
		AggregateType: domain.AggregateOrder, AggregateID: "2",
		EventType: domain.EventOrderCanceled, Payload: []byte(`{"order_id":2}`),
	})
	require.NoError(t, err)
	require.NotEmpty(t, second.ID)

	stats, err := store.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, stats.PendingCount)
	assert.False(t, stats.OldestPendingAt.IsZero())

	pending, err := store.PullPending(ctx, 10)
	require.NoError(t, err)
	require.Len(t, pending, 2)
	assert.Equal(t, "evt-1", pending[0].ID)
	assert.JSONEq(t, `{"order_id":1}`, string(pending[0].Payload))

	require.NoError(t, store.MarkSent(ctx, "evt-1"))
	require.NoError(t, store.MarkFailed(ctx, second.ID))
	require.ErrorIs(t, store.MarkSent(ctx, "missing"), domain.ErrOutboxPublish)

	pending, err = store.PullPending(ctx, 10)
	require.NoError(t, err)
	assert.Empty(t, pending)

	stats, err = store.Stats(ctx)
	require.NoError(t, err)
	assert.Zero(t, stats.PendingCount)
	assert.True(t, stats.OldestPendingAt.IsZero())
}

func TestOutboxRepository_RolledBackWithBusinessTx(t *testing.T) {
	store := integrationStore(t)
	ctx := integrationContext(t)

	boom := errors.New("boom")
	err := store.WithinTx(ctx, func(ctx context.Context, tx domain.Tx) error {
		if _, err := tx.Outbox().Enqueue(ctx, domain.OutboxMessage{
			AggregateType: domain.AggregateOrder, AggregateID: "1",
			EventType: domain.EventOrderPlaced, Payload: []byte(`{}`),
		}); err != nil {
			return err
		}
		return boom
	})
	require.ErrorIs(t, err, boom)

	pending, err := store.PullPending(ctx, 10)
	require.NoError(t, err)
	assert.Empty(t, pending)
}
