package postgres

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"

	"github.com/vladislavdragonenkov/shop/internal/domain"
	"github.com/vladislavdragonenkov/shop/internal/service/order"
)

func TestCartOrders_OppositeLineOrderSerialiseOnTags(t *testing.T) {
	store := integrationStore(t)
	f := seedFixture(t, store, 0)
	ctx := integrationContext(t)

	// лампа несёт первый тег, кружка второй
	lampTag, mugTag := f.tagIDs[0], f.tagIDs[1]
	mustExec(t, store, `DELETE FROM item_tags WHERE item_id = $1 AND tag_id = $2`, f.lampID, mugTag)
	mustExec(t, store, `INSERT INTO item_tags (item_id, tag_id) VALUES ($1, $2)`, f.mugID, mugTag)
	mustExec(t, store, `UPDATE items SET sell_status = 'SELL' WHERE id = $1`, f.mugID)

	manager := order.NewManager(store, nil, nil)
	forward := []domain.OrderLine{{ItemID: f.lampID, Count: 1}, {ItemID: f.mugID, Count: 1}}
	backward := []domain.OrderLine{{ItemID: f.mugID, Count: 1}, {ItemID: f.lampID, Count: 1}}

	const rounds = 10
	for range rounds {
		var g errgroup.Group
		for _, lines := range [][]domain.OrderLine{forward, backward} {
			g.Go(func() error {
				_, err := manager.PlaceCartOrder(ctx, f.email, lines, 0)
				return err
			})
		}
		require.NoError(t, g.Wait())
	}

	err := store.WithinReadTx(ctx, func(ctx context.Context, tx domain.Tx) error {
		tags, err := tx.Tags().ListByTotalSell(ctx, 0)
		require.NoError(t, err)
		totals := make(map[int64]int64, len(tags))
		for _, tag := range tags {
			totals[tag.ID] = tag.TotalSell
		}
		assert.Equal(t, int64(2*rounds), totals[lampTag])
		assert.Equal(t, int64(2*rounds), totals[mugTag])
		return nil
	})
	require.NoError(t, err)
}
