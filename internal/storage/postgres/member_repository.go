package postgres

import (
	"context"
	"fmt"

	"github.com/vladislavdragonenkov/shop/internal/domain"
)

type memberRepository struct{ q querier }

const memberColumns = `id, email, phone, point, notice_type`

func scanMember(row interface{ Scan(dest ...any) error }) (domain.Member, error) {
	var (
		m          domain.Member
		noticeType string
	)
	if err := row.Scan(&m.ID, &m.Email, &m.Phone, &m.Point, &noticeType); err != nil {
		return domain.Member{}, err
	}
	m.NoticeType = domain.NoticeType(noticeType)
	return m, nil
}

func (r memberRepository) GetByEmail(ctx context.Context, email string) (domain.Member, error) {
	member, err := scanMember(r.q.QueryRowContext(ctx,
		`SELECT `+memberColumns+` FROM members WHERE email = $1`, email))
	if err != nil {
		return domain.Member{}, notFound(err, domain.KindMember, email)
	}
	return member, nil
}

func (r memberRepository) GetForUpdate(ctx context.Context, id int64) (domain.Member, error) {
	member, err := scanMember(r.q.QueryRowContext(ctx,
		`SELECT `+memberColumns+` FROM members WHERE id = $1 FOR UPDATE`, id))
	if err != nil {
		return domain.Member{}, notFound(err, domain.KindMember, id)
	}
	return member, nil
}

func (r memberRepository) UpdatePoint(ctx context.Context, id int64, point int64) error {
	res, err := r.q.ExecContext(ctx, `UPDATE members SET point = $2 WHERE id = $1`, id, point)
	if err != nil {
		return fmt.Errorf("update member point: %w", err)
	}
	return requireAffected(res, domain.KindMember, id)
}

type itemRepository struct{ q querier }

func (r itemRepository) Get(ctx context.Context, id int64) (domain.Item, error) {
	var (
		item       domain.Item
		sellStatus string
	)
	err := r.q.QueryRowContext(ctx, `
		SELECT id, name, detail, price, shipping_fee, sell_status, category_id, created_by, reg_time
		FROM items
		WHERE id = $1
	`, id).Scan(
		&item.ID, &item.Name, &item.Detail, &item.Price, &item.ShippingFee,
		&sellStatus, &item.CategoryID, &item.CreatedBy, &item.RegTime,
	)
	if err != nil {
		return domain.Item{}, notFound(err, domain.KindItem, id)
	}
	item.SellStatus = domain.SellStatus(sellStatus)
	item.RegTime = item.RegTime.UTC()
	return item, nil
}

type tagRepository struct{ q querier }

// LockForItems берёт блокировки тегов одним запросом в порядке id, чтобы
// параллельные заказы с теми же тегами ждали друг друга, а не взаимоблокировались.
func (r tagRepository) LockForItems(ctx context.Context, itemIDs []int64) error {
	if len(itemIDs) == 0 {
		return nil
	}
	rows, err := r.q.QueryContext(ctx, `
		SELECT id
		FROM tags
		WHERE id IN (SELECT tag_id FROM item_tags WHERE item_id = ANY($1))
		ORDER BY id
		FOR UPDATE
	`, itemIDs)
	if err != nil {
		return fmt.Errorf("lock tags: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return fmt.Errorf("scan locked tag: %w", err)
		}
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("lock tags: %w", err)
	}
	return nil
}

// IncrementSellForItem увеличивает счётчики одним UPDATE, без чтения и записи в приложении.
func (r tagRepository) IncrementSellForItem(ctx context.Context, itemID int64) (int, error) {
	res, err := r.q.ExecContext(ctx, `
		UPDATE tags
		SET total_sell = total_sell + 1
		WHERE id IN (SELECT tag_id FROM item_tags WHERE item_id = $1)
	`, itemID)
	if err != nil {
		return 0, fmt.Errorf("increment tag total_sell: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("tag rows affected: %w", err)
	}
	return int(affected), nil
}

func (r tagRepository) ListByTotalSell(ctx context.Context, limit int) ([]domain.Tag, error) {
	query := `SELECT id, name, total_sell FROM tags ORDER BY total_sell DESC, id ASC`
	args := []any{}
	if limit > 0 {
		query += ` LIMIT $1`
		args = append(args, limit)
	}

	rows, err := r.q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list tags: %w", err)
	}
	defer rows.Close()

	tags := make([]domain.Tag, 0)
	for rows.Next() {
		var tag domain.Tag
		if err := rows.Scan(&tag.ID, &tag.Name, &tag.TotalSell); err != nil {
			return nil, fmt.Errorf("scan tag: %w", err)
		}
		tags = append(tags, tag)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate tags: %w", err)
	}
	return tags, nil
}
