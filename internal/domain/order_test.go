package domain_test

import (
	"errors"
	"testing"
	"time"

	"github.com/vladislavdragonenkov/shop/internal/domain"
)

// helper для создания базового заказа с одной позицией.
func makeOrder() domain.Order {
	now := time.Now().UTC()
	return domain.Order{
		ID:         1,
		MemberID:   10,
		OrderDate:  now,
		Status:     domain.OrderStatusOrder,
		GiftStatus: domain.GiftStatusBuy,
		UsedPoint:  200,
		AccPoint:   50,
		Items: []domain.OrderItem{
			{ID: 1, OrderID: 1, ItemID: 100, ItemName: "lamp", Count: 2, OrderPrice: 5000, CreatedAt: now},
			{ID: 2, OrderID: 1, ItemID: 101, ItemName: "desk", Count: 1, OrderPrice: 7000, CreatedAt: now},
		},
	}
}

func TestOrderValidateInvariants_Ok(t *testing.T) {
	order := makeOrder()
	if errs := order.ValidateInvariants(); len(errs) != 0 {
		t.Fatalf("expected no validation errors, got %v", errs)
	}
}

func TestOrderValidateInvariants_Errors(t *testing.T) {
	cases := []struct {
		name string
		mut  func(o *domain.Order)
	}{
		{name: "no member", mut: func(o *domain.Order) { o.MemberID = 0 }},
		{name: "unknown gift status", mut: func(o *domain.Order) { o.GiftStatus = "SWAP" }},
		{name: "no items", mut: func(o *domain.Order) { o.Items = nil }},
		{name: "negative used point", mut: func(o *domain.Order) { o.UsedPoint = -1 }},
		{name: "negative acc point", mut: func(o *domain.Order) { o.AccPoint = -1 }},
		{name: "zero count", mut: func(o *domain.Order) { o.Items[0].Count = 0 }},
		{name: "negative price", mut: func(o *domain.Order) { o.Items[1].OrderPrice = -5 }},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			order := makeOrder()
			tc.mut(&order)
			errs := order.ValidateInvariants()
			if len(errs) == 0 {
				t.Fatal("expected validation errors")
			}
			for _, err := range errs {
				if !errors.Is(err, domain.ErrValidation) {
					t.Fatalf("expected validation error, got %v", err)
				}
			}
		})
	}
}

func TestOrderTotalPrice(t *testing.T) {
	order := makeOrder()
	if got := order.TotalPrice(); got != 12000 {
		t.Fatalf("TotalPrice() = %d, want 12000", got)
	}
}

func TestOrderLifecycle_ReturnFlow(t *testing.T) {
	order := makeOrder()
	if order.State() != domain.StateOrdered {
		t.Fatalf("initial state = %s", order.State())
	}

	requestedAt := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	if err := order.RequestReturn(requestedAt); err != nil {
		t.Fatalf("request return: %v", err)
	}
	if order.State() != domain.StateReturnRequested {
		t.Fatalf("state after request = %s", order.State())
	}
	if order.Status != domain.OrderStatusReturn || order.ReturnStatus != domain.ReturnStatusRequested {
		t.Fatalf("unexpected statuses: %s/%s", order.Status, order.ReturnStatus)
	}
	for _, item := range order.Items {
		if item.ReturnStatus != domain.ReturnStatusRequested {
			t.Fatalf("item %d return status = %s", item.ID, item.ReturnStatus)
		}
		if item.ReturnCount != item.Count || item.ReturnPrice != item.OrderPrice {
			t.Fatalf("item %d return amounts not stamped: %+v", item.ID, item)
		}
		if item.ReturnRequestedAt == nil || !item.ReturnRequestedAt.Equal(requestedAt) {
			t.Fatalf("item %d return requested at not stamped", item.ID)
		}
	}

	confirmedAt := requestedAt.Add(time.Hour)
	if err := order.ConfirmReturn(confirmedAt); err != nil {
		t.Fatalf("confirm return: %v", err)
	}
	if order.State() != domain.StateReturnConfirmed {
		t.Fatalf("state after confirm = %s", order.State())
	}
	if order.ReturnConfirmedAt == nil || !order.ReturnConfirmedAt.Equal(confirmedAt) {
		t.Fatal("order confirm time not stamped")
	}

	err := order.ConfirmReturn(confirmedAt.Add(time.Minute))
	var transitionErr *domain.InvalidStateTransitionError
	if !errors.As(err, &transitionErr) {
		t.Fatalf("second confirm must be rejected, got %v", err)
	}
	if transitionErr.Current != domain.StateReturnConfirmed || transitionErr.Attempted != domain.TransitionConfirmReturn {
		t.Fatalf("unexpected transition error payload: %+v", transitionErr)
	}
	if !order.ReturnConfirmedAt.Equal(confirmedAt) {
		t.Fatal("rejected transition must not mutate the order")
	}
}

func TestOrderLifecycle_TransitionTable(t *testing.T) {
	cases := []struct {
		from       domain.LifecycleState
		transition domain.Transition
		want       domain.LifecycleState
		ok         bool
	}{
		{domain.StateOrdered, domain.TransitionCancel, domain.StateCanceled, true},
		{domain.StateOrdered, domain.TransitionRequestReturn, domain.StateReturnRequested, true},
		{domain.StateOrdered, domain.TransitionConfirmReturn, domain.StateOrdered, false},
		{domain.StateReturnRequested, domain.TransitionConfirmReturn, domain.StateReturnConfirmed, true},
		{domain.StateReturnRequested, domain.TransitionCancel, domain.StateReturnRequested, false},
		{domain.StateReturnRequested, domain.TransitionRequestReturn, domain.StateReturnRequested, false},
		{domain.StateCanceled, domain.TransitionRequestReturn, domain.StateCanceled, false},
		{domain.StateCanceled, domain.TransitionCancel, domain.StateCanceled, false},
		{domain.StateReturnConfirmed, domain.TransitionCancel, domain.StateReturnConfirmed, false},
	}

	for _, tc := range cases {
		t.Run(string(tc.from)+"/"+string(tc.transition), func(t *testing.T) {
			got, err := domain.NextState(tc.from, tc.transition)
			if tc.ok && err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if !tc.ok && !errors.Is(err, domain.ErrInvalidStateTransition) {
				t.Fatalf("expected invalid transition, got %v", err)
			}
			if got != tc.want {
				t.Fatalf("NextState = %s, want %s", got, tc.want)
			}
		})
	}
}

func TestOrderLifecycle_TerminalStates(t *testing.T) {
	if !domain.StateCanceled.IsTerminal() || !domain.StateReturnConfirmed.IsTerminal() {
		t.Fatal("canceled and return-confirmed must be terminal")
	}
	if domain.StateOrdered.IsTerminal() || domain.StateReturnRequested.IsTerminal() {
		t.Fatal("ordered and return-requested must not be terminal")
	}
}

func TestOrderCancel(t *testing.T) {
	order := makeOrder()
	now := time.Now().UTC()
	if err := order.Cancel(now); err != nil {
		t.Fatalf("cancel: %v", err)
	}
	if order.Status != domain.OrderStatusCancel || order.CanceledAt == nil {
		t.Fatalf("cancel not applied: %+v", order)
	}
	if err := order.RequestReturn(now); !errors.Is(err, domain.ErrInvalidStateTransition) {
		t.Fatalf("return after cancel must be rejected, got %v", err)
	}
}

func TestDateWindowSince(t *testing.T) {
	now := time.Date(2026, 7, 15, 12, 0, 0, 0, time.UTC)
	cases := []struct {
		window domain.DateWindow
		want   time.Time
		ok     bool
	}{
		{domain.DateWindowAll, time.Time{}, false},
		{"", time.Time{}, false},
		{domain.DateWindowDay, now.Add(-24 * time.Hour), true},
		{domain.DateWindowWeek, now.Add(-7 * 24 * time.Hour), true},
		{domain.DateWindowMonth, time.Date(2026, 6, 15, 12, 0, 0, 0, time.UTC), true},
		{domain.DateWindowHalfYear, time.Date(2026, 1, 15, 12, 0, 0, 0, time.UTC), true},
	}
	for _, tc := range cases {
		got, ok := tc.window.Since(now)
		if ok != tc.ok || !got.Equal(tc.want) {
			t.Fatalf("%q.Since() = %v,%v want %v,%v", tc.window, got, ok, tc.want, tc.ok)
		}
	}
}

func TestEscapeLike(t *testing.T) {
	if got := domain.EscapeLike(`50%_off\`); got != `50\%\_off\\` {
		t.Fatalf("EscapeLike = %q", got)
	}
}
