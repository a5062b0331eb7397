package points

import (
	"context"
	"errors"
	"testing"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/vladislavdragonenkov/shop/internal/domain"
	"github.com/vladislavdragonenkov/shop/internal/metrics"
	"github.com/vladislavdragonenkov/shop/internal/storage/memory"
)

func TestDebitCredit(t *testing.T) {
	member := domain.Member{Point: 100}

	if err := Debit(&member, 30); err != nil {
		t.Fatalf("debit: %v", err)
	}
	if member.Point != 70 {
		t.Fatalf("expected 70, got %d", member.Point)
	}

	err := Debit(&member, 71)
	var insufficient *domain.InsufficientPointsError
	if !errors.As(err, &insufficient) {
		t.Fatalf("expected InsufficientPointsError, got %v", err)
	}
	if insufficient.Required != 71 || insufficient.Available != 70 {
		t.Fatalf("unexpected payload %+v", insufficient)
	}
	if member.Point != 70 {
		t.Fatal("failed debit must not change balance")
	}

	if err := Credit(&member, 5); err != nil || member.Point != 75 {
		t.Fatalf("credit: %v, balance %d", err, member.Point)
	}

	if err := Debit(&member, -1); !errors.Is(err, domain.ErrValidation) {
		t.Fatalf("negative debit must be a validation error, got %v", err)
	}
	if err := Credit(&member, -1); !errors.Is(err, domain.ErrValidation) {
		t.Fatalf("negative credit must be a validation error, got %v", err)
	}
}

func TestLedger_Accrual(t *testing.T) {
	cases := []struct {
		bps   int64
		total int64
		want  int64
	}{
		{bps: DefaultAccrualRateBps, total: 10000, want: 50},
		{bps: DefaultAccrualRateBps, total: 199, want: 0},
		{bps: 100, total: 12345, want: 123},
		{bps: 0, total: 10000, want: 0},
		{bps: 50, total: -10, want: 0},
	}
	for _, tc := range cases {
		ledger := NewLedger(WithAccrualRate(tc.bps))
		if got := ledger.Accrual(tc.total); got != tc.want {
			t.Fatalf("Accrual(%d) at %d bps = %d, want %d", tc.total, tc.bps, got, tc.want)
		}
	}
}

func TestLedger_Settlement(t *testing.T) {
	store := memory.NewStore()
	member := store.AddMember(domain.Member{Email: "m@shop.io", Point: 1000})
	ledger := NewLedger(WithMetrics(metrics.NewShopMetricsWithRegisterer(prometheus.NewRegistry())))
	ctx := context.Background()

	err := store.WithinTx(ctx, func(ctx context.Context, tx domain.Tx) error {
		updated, err := ledger.ApplyOrderSettlement(ctx, tx.Members(), member.ID, 200, 50)
		if err != nil {
			return err
		}
		if updated.Point != 850 {
			t.Fatalf("expected 850 after settlement, got %d", updated.Point)
		}
		return nil
	})
	if err != nil {
		t.Fatalf("apply: %v", err)
	}
	if got, _ := store.Member(member.ID); got.Point != 850 {
		t.Fatalf("expected persisted 850, got %d", got.Point)
	}

	err = store.WithinTx(ctx, func(ctx context.Context, tx domain.Tx) error {
		_, err := ledger.ReverseOrderSettlement(ctx, tx.Members(), member.ID, 200, 50)
		return err
	})
	if err != nil {
		t.Fatalf("reverse: %v", err)
	}
	if got, _ := store.Member(member.ID); got.Point != 1000 {
		t.Fatalf("expected balance restored to 1000, got %d", got.Point)
	}
}

func TestLedger_SettlementInsufficient(t *testing.T) {
	store := memory.NewStore()
	member := store.AddMember(domain.Member{Email: "m@shop.io", Point: 100})
	ledger := NewLedger()
	ctx := context.Background()

	err := store.WithinTx(ctx, func(ctx context.Context, tx domain.Tx) error {
		_, err := ledger.ApplyOrderSettlement(ctx, tx.Members(), member.ID, 200, 10)
		return err
	})
	if !errors.Is(err, domain.ErrInsufficientPoints) {
		t.Fatalf("expected insufficient points, got %v", err)
	}
	if got, _ := store.Member(member.ID); got.Point != 100 {
		t.Fatalf("balance must stay 100, got %d", got.Point)
	}

	err = store.WithinTx(ctx, func(ctx context.Context, tx domain.Tx) error {
		_, err := ledger.ReverseOrderSettlement(ctx, tx.Members(), member.ID, 0, 500)
		return err
	})
	if !errors.Is(err, domain.ErrInsufficientPoints) {
		t.Fatalf("expected reversal of spent accrual to fail, got %v", err)
	}

	err = store.WithinTx(ctx, func(ctx context.Context, tx domain.Tx) error {
		_, err := ledger.ApplyOrderSettlement(ctx, tx.Members(), 999, 0, 0)
		return err
	})
	if !domain.IsNotFound(err) {
		t.Fatalf("expected not found for unknown member, got %v", err)
	}
}
