package tags

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"testing"

	"github.com/vladislavdragonenkov/shop/internal/domain"
	"github.com/vladislavdragonenkov/shop/internal/storage/memory"
)

type failingTags struct{ domain.TagRepository }

func (failingTags) IncrementSellForItem(context.Context, int64) (int, error) {
	return 0, errors.New("db down")
}

func TestTracker_RecordSaleIncrementsEveryTagOnce(t *testing.T) {
	store := memory.NewStore()
	red := store.AddTag(domain.Tag{Name: "red"})
	blue := store.AddTag(domain.Tag{Name: "blue"})
	item := store.AddItem(domain.Item{Name: "lamp"}, []int64{red.ID, blue.ID}, "")
	untagged := store.AddItem(domain.Item{Name: "chair"}, nil, "")

	tracker := NewTracker(store, nil, nil)
	ctx := context.Background()

	err := store.WithinTx(ctx, func(ctx context.Context, tx domain.Tx) error {
		if err := tracker.RecordSale(ctx, tx.Tags(), item.ID); err != nil {
			return err
		}
		return tracker.RecordSale(ctx, tx.Tags(), untagged.ID)
	})
	if err != nil {
		t.Fatalf("record sale: %v", err)
	}

	for _, id := range []int64{red.ID, blue.ID} {
		tag, _ := store.Tag(id)
		if tag.TotalSell != 1 {
			t.Fatalf("tag %d total = %d, want 1", id, tag.TotalSell)
		}
	}
}

func TestTracker_RecordSaleWrapsError(t *testing.T) {
	tracker := NewTracker(nil, nil, nil)
	err := tracker.RecordSale(context.Background(), failingTags{}, 1)
	if err == nil {
		t.Fatal("expected error")
	}
}

// recordingTags запоминает порядок обращений к репозиторию.
type recordingTags struct {
	domain.TagRepository
	calls []string
}

func (r *recordingTags) LockForItems(_ context.Context, itemIDs []int64) error {
	r.calls = append(r.calls, fmt.Sprintf("lock %v", itemIDs))
	return nil
}

func (r *recordingTags) IncrementSellForItem(_ context.Context, itemID int64) (int, error) {
	r.calls = append(r.calls, fmt.Sprintf("inc %d", itemID))
	return 1, nil
}

func TestTracker_RecordSalesLocksBeforeIncrementInIDOrder(t *testing.T) {
	repo := &recordingTags{}
	tracker := NewTracker(nil, nil, nil)

	if err := tracker.RecordSales(context.Background(), repo, []int64{7, 3, 7, 5}); err != nil {
		t.Fatalf("record sales: %v", err)
	}

	want := []string{"lock [3 5 7]", "inc 3", "inc 5", "inc 7", "inc 7"}
	if !slices.Equal(repo.calls, want) {
		t.Fatalf("calls = %v, want %v", repo.calls, want)
	}
}

func TestTracker_RecordSalesCountsEveryLine(t *testing.T) {
	store := memory.NewStore()
	red := store.AddTag(domain.Tag{Name: "red"})
	lamp := store.AddItem(domain.Item{Name: "lamp"}, []int64{red.ID}, "")
	chair := store.AddItem(domain.Item{Name: "chair"}, []int64{red.ID}, "")

	tracker := NewTracker(store, nil, nil)
	err := store.WithinTx(context.Background(), func(ctx context.Context, tx domain.Tx) error {
		return tracker.RecordSales(ctx, tx.Tags(), []int64{chair.ID, lamp.ID})
	})
	if err != nil {
		t.Fatalf("record sales: %v", err)
	}

	tag, _ := store.Tag(red.ID)
	if tag.TotalSell != 2 {
		t.Fatalf("tag total = %d, want 2", tag.TotalSell)
	}
}

func TestTracker_PopularTags(t *testing.T) {
	store := memory.NewStore()
	store.AddTag(domain.Tag{Name: "cold", TotalSell: 1})
	hot := store.AddTag(domain.Tag{Name: "hot", TotalSell: 10})
	warm := store.AddTag(domain.Tag{Name: "warm", TotalSell: 5})

	tracker := NewTracker(store, nil, nil)
	tags, err := tracker.PopularTags(context.Background(), 2)
	if err != nil {
		t.Fatalf("popular tags: %v", err)
	}
	if len(tags) != 2 || tags[0].ID != hot.ID || tags[1].ID != warm.ID {
		t.Fatalf("unexpected ranking: %+v", tags)
	}
}
