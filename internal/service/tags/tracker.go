// Package tags ведёт счётчики популярности тегов.
package tags

import (
	"context"
	"fmt"
	"slices"

	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/shop/internal/domain"
	"github.com/vladislavdragonenkov/shop/internal/metrics"
)

// Tracker увеличивает total_sell тегов при продаже и отдаёт популярные теги.
// Счётчики только растут: отмена и возврат их не уменьшают.
type Tracker struct {
	uow     domain.UnitOfWork
	metrics *metrics.ShopMetrics
	logger  *log.Entry
}

// NewTracker создаёт Tracker. uow нужен только для PopularTags.
func NewTracker(uow domain.UnitOfWork, m *metrics.ShopMetrics, logger *log.Entry) *Tracker {
	if logger == nil {
		logger = log.WithField("component", "tag-tracker")
	}
	return &Tracker{uow: uow, metrics: m, logger: logger}
}

// RecordSale увеличивает счётчик каждого тега товара на 1.
// Вызывается один раз на позицию заказа внутри транзакции размещения;
// количество единиц в позиции не учитывается.
func (t *Tracker) RecordSale(ctx context.Context, repo domain.TagRepository, itemID int64) error {
	updated, err := repo.IncrementSellForItem(ctx, itemID)
	if err != nil {
		return fmt.Errorf("increment tag sales for item %d: %w", itemID, err)
	}
	t.metrics.RecordTagSales(updated)
	if updated == 0 {
		t.logger.WithField("item_id", itemID).Debug("item has no tags")
	}
	return nil
}

// RecordSales учитывает продажу каждой позиции заказа. Теги всех товаров
// блокируются заранее, затем счётчики увеличиваются в порядке id товара,
// так что порядок строк в корзине не влияет на порядок блокировок.
func (t *Tracker) RecordSales(ctx context.Context, repo domain.TagRepository, itemIDs []int64) error {
	ordered := slices.Clone(itemIDs)
	slices.Sort(ordered)
	if err := repo.LockForItems(ctx, slices.Compact(slices.Clone(ordered))); err != nil {
		return fmt.Errorf("lock tags for items %v: %w", ordered, err)
	}
	for _, itemID := range ordered {
		if err := t.RecordSale(ctx, repo, itemID); err != nil {
			return err
		}
	}
	return nil
}

// PopularTags возвращает теги по убыванию total_sell; при limit<=0 возвращаются все теги.
func (t *Tracker) PopularTags(ctx context.Context, limit int) ([]domain.Tag, error) {
	var result []domain.Tag
	err := t.uow.WithinReadTx(ctx, func(ctx context.Context, tx domain.Tx) error {
		tags, err := tx.Tags().ListByTotalSell(ctx, limit)
		if err != nil {
			return err
		}
		result = tags
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("list popular tags: %w", err)
	}
	return result, nil
}
