package memory

import (
	"context"
	"slices"
	"sort"

	"github.com/vladislavdragonenkov/shop/internal/domain"
)

type memberRepository struct{ tx *memTx }

func (r memberRepository) GetByEmail(_ context.Context, email string) (domain.Member, error) {
	for _, member := range r.tx.st.members {
		if member.Email == email {
			return member, nil
		}
	}
	return domain.Member{}, domain.NewNotFound(domain.KindMember, email)
}

// GetForUpdate не отличается от чтения: транзакции записи уже сериализованы.
func (r memberRepository) GetForUpdate(_ context.Context, id int64) (domain.Member, error) {
	member, ok := r.tx.st.members[id]
	if !ok {
		return domain.Member{}, domain.NewNotFound(domain.KindMember, id)
	}
	return member, nil
}

func (r memberRepository) UpdatePoint(_ context.Context, id int64, point int64) error {
	if err := r.tx.writable(); err != nil {
		return err
	}
	member, ok := r.tx.st.members[id]
	if !ok {
		return domain.NewNotFound(domain.KindMember, id)
	}
	member.Point = point
	r.tx.st.members[id] = member
	return nil
}

type itemRepository struct{ tx *memTx }

func (r itemRepository) Get(_ context.Context, id int64) (domain.Item, error) {
	item, ok := r.tx.st.items[id]
	if !ok {
		return domain.Item{}, domain.NewNotFound(domain.KindItem, id)
	}
	return item, nil
}

type tagRepository struct{ tx *memTx }

// LockForItems ничего не блокирует: писатели и так сериализованы.
func (r tagRepository) LockForItems(_ context.Context, _ []int64) error {
	return r.tx.writable()
}

func (r tagRepository) IncrementSellForItem(_ context.Context, itemID int64) (int, error) {
	if err := r.tx.writable(); err != nil {
		return 0, err
	}
	updated := 0
	for _, tagID := range r.tx.st.itemTags[itemID] {
		tag, ok := r.tx.st.tags[tagID]
		if !ok {
			continue
		}
		tag.TotalSell++
		r.tx.st.tags[tagID] = tag
		updated++
	}
	return updated, nil
}

func (r tagRepository) ListByTotalSell(_ context.Context, limit int) ([]domain.Tag, error) {
	tags := make([]domain.Tag, 0, len(r.tx.st.tags))
	for _, tag := range r.tx.st.tags {
		tags = append(tags, tag)
	}
	sort.Slice(tags, func(i, j int) bool {
		if tags[i].TotalSell != tags[j].TotalSell {
			return tags[i].TotalSell > tags[j].TotalSell
		}
		return tags[i].ID < tags[j].ID
	})
	if limit > 0 && len(tags) > limit {
		tags = tags[:limit]
	}
	return tags, nil
}

func hasAnyTag(itemTags, wanted []int64) bool {
	for _, id := range wanted {
		if slices.Contains(itemTags, id) {
			return true
		}
	}
	return false
}
