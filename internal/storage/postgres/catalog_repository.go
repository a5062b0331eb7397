package postgres

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/vladislavdragonenkov/shop/internal/domain"
)

// argBinder собирает условия WHERE с позиционными параметрами $n.
type argBinder struct {
	conds []string
	args  []any
}

// bind заменяет каждое "?" в cond на следующий $n.
func (b *argBinder) bind(cond string, value any) {
	b.args = append(b.args, value)
	b.conds = append(b.conds, strings.ReplaceAll(cond, "?", "$"+strconv.Itoa(len(b.args))))
}

func (b *argBinder) next(value any) string {
	b.args = append(b.args, value)
	return "$" + strconv.Itoa(len(b.args))
}

func (b *argBinder) where() string {
	if len(b.conds) == 0 {
		return ""
	}
	return " WHERE " + strings.Join(b.conds, " AND ")
}

var sortColumns = map[domain.SortColumn]string{
	domain.SortByRegTime: "i.reg_time",
	domain.SortByName:    "i.name",
	domain.SortByPrice:   "i.price",
}

func itemFilters(q domain.ItemQuery) *argBinder {
	b := &argBinder{}
	if q.SellStatus != nil {
		b.bind("i.sell_status = ?", string(*q.SellStatus))
	}
	if q.RegisteredAfter != nil {
		b.bind("i.reg_time > ?", *q.RegisteredAfter)
	}
	if q.NameContains != "" {
		b.bind(`i.name ILIKE ? ESCAPE '\'`, "%"+domain.EscapeLike(q.NameContains)+"%")
	}
	if q.CreatorContains != "" {
		b.bind(`i.created_by ILIKE ? ESCAPE '\'`, "%"+domain.EscapeLike(q.CreatorContains)+"%")
	}
	if q.CategoryID != nil {
		b.bind("i.category_id = ?", *q.CategoryID)
	}
	if len(q.TagIDs) > 0 {
		b.bind("EXISTS (SELECT 1 FROM item_tags it WHERE it.item_id = i.id AND it.tag_id = ANY(?))", q.TagIDs)
	}
	return b
}

// SearchItems возвращает страницу и total одним запросом (COUNT(*) OVER ()).
func (s *Store) SearchItems(ctx context.Context, query domain.ItemQuery) ([]domain.ListingRow, int64, error) {
	if s == nil || s.db == nil {
		return nil, 0, errNotInitialized
	}

	b := itemFilters(query)
	column, ok := sortColumns[query.SortColumn]
	if !ok {
		column = sortColumns[domain.SortByRegTime]
	}
	direction := "DESC"
	if query.SortDirection == domain.SortAsc {
		direction = "ASC"
	}

	where := b.where()
	limit := b.next(query.Limit)
	offset := b.next(query.Offset)
	sqlText := fmt.Sprintf(`
		SELECT i.id, i.name, i.detail, i.price, i.shipping_fee, COUNT(*) OVER ()
		FROM items i%s
		ORDER BY %s %s, i.id DESC
		LIMIT %s OFFSET %s
	`, where, column, direction, limit, offset)

	rows, err := s.db.QueryContext(ctx, sqlText, b.args...)
	if err != nil {
		return nil, 0, fmt.Errorf("search items: %w", err)
	}
	defer rows.Close()

	var total int64
	result := make([]domain.ListingRow, 0, query.Limit)
	for rows.Next() {
		var row domain.ListingRow
		if err := rows.Scan(&row.ItemID, &row.Name, &row.Detail, &row.Price, &row.ShippingFee, &total); err != nil {
			return nil, 0, fmt.Errorf("scan listing row: %w", err)
		}
		result = append(result, row)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("iterate listing rows: %w", err)
	}

	if len(result) == 0 && query.Offset > 0 {
		count := itemFilters(query)
		if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM items i`+count.where(), count.args...).Scan(&total); err != nil {
			return nil, 0, fmt.Errorf("count items: %w", err)
		}
	}
	return result, total, nil
}

// CountSalesBetween считает позиции заказов по товарам в окне [since, until]; товары без продаж получают 0.
func (s *Store) CountSalesBetween(ctx context.Context, since, until time.Time) ([]domain.BestSellerRow, error) {
	if s == nil || s.db == nil {
		return nil, errNotInitialized
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT i.id, i.name, i.detail, i.price, COUNT(oi.id) AS sold
		FROM items i
		LEFT JOIN order_items oi ON oi.item_id = i.id AND oi.created_at >= $1 AND oi.created_at <= $2
		GROUP BY i.id
		ORDER BY sold DESC, i.id DESC
	`, since, until)
	if err != nil {
		return nil, fmt.Errorf("count sales: %w", err)
	}
	defer rows.Close()

	result := make([]domain.BestSellerRow, 0)
	for rows.Next() {
		var row domain.BestSellerRow
		if err := rows.Scan(&row.ItemID, &row.Name, &row.Detail, &row.Price, &row.SoldCount); err != nil {
			return nil, fmt.Errorf("scan best seller row: %w", err)
		}
		result = append(result, row)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate best seller rows: %w", err)
	}
	return result, nil
}

// RepresentativeImages возвращает первое представительное изображение каждого товара.
func (s *Store) RepresentativeImages(ctx context.Context, itemIDs []int64) (map[int64]string, error) {
	if s == nil || s.db == nil {
		return nil, errNotInitialized
	}
	result := make(map[int64]string, len(itemIDs))
	if len(itemIDs) == 0 {
		return result, nil
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT DISTINCT ON (item_id) item_id, url
		FROM item_images
		WHERE representative AND item_id = ANY($1)
		ORDER BY item_id, id
	`, itemIDs)
	if err != nil {
		return nil, fmt.Errorf("query representative images: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			itemID int64
			url    string
		)
		if err := rows.Scan(&itemID, &url); err != nil {
			return nil, fmt.Errorf("scan image: %w", err)
		}
		result[itemID] = url
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate images: %w", err)
	}
	return result, nil
}
