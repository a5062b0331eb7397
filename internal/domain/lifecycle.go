package domain

// LifecycleState — состояние заказа в машине состояний.
// Выводится из пары (OrderStatus, ReturnStatus), которая хранится в БД.
type LifecycleState string

const (
	StateOrdered         LifecycleState = "ORDERED"
	StateCanceled        LifecycleState = "CANCELED"
	StateReturnRequested LifecycleState = "RETURN_REQUESTED"
	StateReturnConfirmed LifecycleState = "RETURN_CONFIRMED"
)

// Transition — операция над заказом.
type Transition string

const (
	TransitionCancel        Transition = "cancel"
	TransitionRequestReturn Transition = "request_return"
	TransitionConfirmReturn Transition = "confirm_return"
)

// lifecycleTransitions перечисляет все допустимые переходы.
// CANCELED и RETURN_CONFIRMED терминальны.
var lifecycleTransitions = map[LifecycleState]map[Transition]LifecycleState{
	StateOrdered: {
		TransitionCancel:        StateCanceled,
		TransitionRequestReturn: StateReturnRequested,
	},
	StateReturnRequested: {
		TransitionConfirmReturn: StateReturnConfirmed,
	},
}

// State возвращает текущее состояние заказа.
func (o *Order) State() LifecycleState {
	switch {
	case o.Status == OrderStatusCancel:
		return StateCanceled
	case o.ReturnStatus == ReturnStatusConfirmed:
		return StateReturnConfirmed
	case o.Status == OrderStatusReturn || o.ReturnStatus == ReturnStatusRequested:
		return StateReturnRequested
	default:
		return StateOrdered
	}
}

// NextState возвращает состояние после перехода или InvalidStateTransitionError.
func NextState(from LifecycleState, transition Transition) (LifecycleState, error) {
	next, ok := lifecycleTransitions[from][transition]
	if !ok {
		return from, &InvalidStateTransitionError{Current: from, Attempted: transition}
	}
	return next, nil
}

// IsTerminal сообщает, что из состояния нет переходов.
func (s LifecycleState) IsTerminal() bool {
	return len(lifecycleTransitions[s]) == 0
}
