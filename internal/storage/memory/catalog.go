package memory

import (
	"context"
	"sort"
	"strings"
	"time"

	"github.com/vladislavdragonenkov/shop/internal/domain"
)

type itemPredicate func(item domain.Item, tags []int64) bool

// itemPredicates переводит ItemQuery в набор проверок; пустые критерии пропускаются.
func itemPredicates(q domain.ItemQuery) []itemPredicate {
	var preds []itemPredicate
	if q.SellStatus != nil {
		status := *q.SellStatus
		preds = append(preds, func(item domain.Item, _ []int64) bool { return item.SellStatus == status })
	}
	if q.RegisteredAfter != nil {
		after := *q.RegisteredAfter
		preds = append(preds, func(item domain.Item, _ []int64) bool { return item.RegTime.After(after) })
	}
	if q.NameContains != "" {
		needle := strings.ToLower(q.NameContains)
		preds = append(preds, func(item domain.Item, _ []int64) bool {
			return strings.Contains(strings.ToLower(item.Name), needle)
		})
	}
	if q.CreatorContains != "" {
		needle := strings.ToLower(q.CreatorContains)
		preds = append(preds, func(item domain.Item, _ []int64) bool {
			return strings.Contains(strings.ToLower(item.CreatedBy), needle)
		})
	}
	if q.CategoryID != nil {
		categoryID := *q.CategoryID
		preds = append(preds, func(item domain.Item, _ []int64) bool { return item.CategoryID == categoryID })
	}
	if len(q.TagIDs) > 0 {
		wanted := q.TagIDs
		preds = append(preds, func(_ domain.Item, tags []int64) bool { return hasAnyTag(tags, wanted) })
	}
	return preds
}

func itemLess(column domain.SortColumn, direction domain.SortDirection) func(a, b domain.Item) bool {
	desc := direction != domain.SortAsc
	return func(a, b domain.Item) bool {
		var cmp int
		switch column {
		case domain.SortByName:
			cmp = strings.Compare(a.Name, b.Name)
		case domain.SortByPrice:
			cmp = compareInt64(a.Price, b.Price)
		default:
			cmp = a.RegTime.Compare(b.RegTime)
		}
		if cmp != 0 {
			if desc {
				return cmp > 0
			}
			return cmp < 0
		}
		return a.ID > b.ID
	}
}

func compareInt64(a, b int64) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	}
	return 0
}

// SearchItems фильтрует и сортирует товары одного снимка,
// поэтому строки и total согласованы.
func (s *Store) SearchItems(ctx context.Context, query domain.ItemQuery) ([]domain.ListingRow, int64, error) {
	if err := ctx.Err(); err != nil {
		return nil, 0, err
	}

	st := s.snapshot()
	preds := itemPredicates(query)
	matched := make([]domain.Item, 0)
outer:
	for _, item := range st.items {
		tags := st.itemTags[item.ID]
		for _, pred := range preds {
			if !pred(item, tags) {
				continue outer
			}
		}
		matched = append(matched, item)
	}

	less := itemLess(query.SortColumn, query.SortDirection)
	sort.Slice(matched, func(i, j int) bool { return less(matched[i], matched[j]) })

	page := paginate(matched, query.Offset, query.Limit)
	rows := make([]domain.ListingRow, 0, len(page))
	for _, item := range page {
		rows = append(rows, domain.ListingRow{
			ItemID:      item.ID,
			Name:        item.Name,
			Detail:      item.Detail,
			Price:       item.Price,
			ShippingFee: item.ShippingFee,
		})
	}
	return rows, int64(len(matched)), nil
}

// CountSalesBetween ранжирует все товары по числу позиций заказов, созданных в [since, until].
// Товары без продаж остаются в выдаче с нулём.
func (s *Store) CountSalesBetween(ctx context.Context, since, until time.Time) ([]domain.BestSellerRow, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	st := s.snapshot()
	counts := make(map[int64]int64, len(st.items))
	for _, order := range st.orders {
		for _, line := range order.Items {
			if line.CreatedAt.Before(since) || line.CreatedAt.After(until) {
				continue
			}
			counts[line.ItemID]++
		}
	}

	rows := make([]domain.BestSellerRow, 0, len(st.items))
	for _, item := range st.items {
		rows = append(rows, domain.BestSellerRow{
			ItemID:    item.ID,
			Name:      item.Name,
			Detail:    item.Detail,
			Price:     item.Price,
			SoldCount: counts[item.ID],
		})
	}
	sort.Slice(rows, func(i, j int) bool {
		if rows[i].SoldCount != rows[j].SoldCount {
			return rows[i].SoldCount > rows[j].SoldCount
		}
		return rows[i].ItemID > rows[j].ItemID
	})
	return rows, nil
}

// RepresentativeImages возвращает URL изображений для переданных товаров.
func (s *Store) RepresentativeImages(ctx context.Context, itemIDs []int64) (map[int64]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	images := s.snapshot().images
	result := make(map[int64]string, len(itemIDs))
	for _, id := range itemIDs {
		if url, ok := images[id]; ok {
			result[id] = url
		}
	}
	return result, nil
}
