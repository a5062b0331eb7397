// Package points ведёт баланс баллов участника.
package points

import (
	"context"
	"errors"
	"fmt"

	"github.com/vladislavdragonenkov/shop/internal/domain"
	"github.com/vladislavdragonenkov/shop/internal/metrics"
)

// DefaultAccrualRateBps задаёт ставку начисления по умолчанию: 0.5% от суммы заказа.
const DefaultAccrualRateBps = 50

// Ledger списывает и начисляет баллы. Баланс никогда не уходит в минус.
type Ledger struct {
	accrualRateBps int64
	metrics        *metrics.ShopMetrics
}

// Option настраивает Ledger.
type Option func(*Ledger)

// WithAccrualRate задаёт ставку начисления в базисных пунктах.
func WithAccrualRate(bps int64) Option {
	return func(l *Ledger) {
		if bps >= 0 {
			l.accrualRateBps = bps
		}
	}
}

// WithMetrics подключает метрики.
func WithMetrics(m *metrics.ShopMetrics) Option {
	return func(l *Ledger) {
		l.metrics = m
	}
}

// NewLedger создаёт Ledger.
func NewLedger(options ...Option) *Ledger {
	l := &Ledger{accrualRateBps: DefaultAccrualRateBps}
	for _, option := range options {
		option(l)
	}
	return l
}

// Accrual возвращает баллы за заказ на сумму totalPrice.
func (l *Ledger) Accrual(totalPrice int64) int64 {
	if totalPrice <= 0 {
		return 0
	}
	return totalPrice * l.accrualRateBps / 10000
}

// Debit уменьшает баланс на amount.
func Debit(member *domain.Member, amount int64) error {
	if amount < 0 {
		return domain.NewValidation("amount", "must be non-negative")
	}
	if member.Point < amount {
		return &domain.InsufficientPointsError{Required: amount, Available: member.Point}
	}
	member.Point -= amount
	return nil
}

// Credit увеличивает баланс на amount.
func Credit(member *domain.Member, amount int64) error {
	if amount < 0 {
		return domain.NewValidation("amount", "must be non-negative")
	}
	member.Point += amount
	return nil
}

// ApplyOrderSettlement списывает used и начисляет accrued одной записью.
// Вызывается внутри единицы работы; при ошибке баланс не сохраняется.
func (l *Ledger) ApplyOrderSettlement(ctx context.Context, members domain.MemberRepository, memberID, used, accrued int64) (domain.Member, error) {
	member, err := members.GetForUpdate(ctx, memberID)
	if err != nil {
		return domain.Member{}, err
	}
	if err := Debit(&member, used); err != nil {
		if errors.Is(err, domain.ErrInsufficientPoints) {
			l.metrics.RecordInsufficientPoints()
		}
		return domain.Member{}, err
	}
	if err := Credit(&member, accrued); err != nil {
		return domain.Member{}, err
	}
	if err := members.UpdatePoint(ctx, member.ID, member.Point); err != nil {
		return domain.Member{}, fmt.Errorf("update point: %w", err)
	}

	l.metrics.RecordPointsDebited(used)
	l.metrics.RecordPointsCredited(accrued)
	return member, nil
}

// ReverseOrderSettlement возвращает used и забирает accrued.
// Если начисленные баллы уже потрачены, возвращает InsufficientPointsError.
func (l *Ledger) ReverseOrderSettlement(ctx context.Context, members domain.MemberRepository, memberID, used, accrued int64) (domain.Member, error) {
	member, err := members.GetForUpdate(ctx, memberID)
	if err != nil {
		return domain.Member{}, err
	}
	if err := Credit(&member, used); err != nil {
		return domain.Member{}, err
	}
	if err := Debit(&member, accrued); err != nil {
		return domain.Member{}, err
	}
	if err := members.UpdatePoint(ctx, member.ID, member.Point); err != nil {
		return domain.Member{}, fmt.Errorf("update point: %w", err)
	}

	l.metrics.RecordPointsCredited(used)
	l.metrics.RecordPointsDebited(accrued)
	return member, nil
}
