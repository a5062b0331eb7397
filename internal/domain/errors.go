package domain

import (
	"errors"
	"fmt"
)

var (
	// ErrNotFound: сущность не найдена в хранилище.
	ErrNotFound = errors.New("not found")
	// ErrInsufficientPoints: на балансе участника недостаточно баллов.
	ErrInsufficientPoints = errors.New("insufficient points")
	// ErrUnauthorized: ресурс принадлежит другому участнику.
	ErrUnauthorized = errors.New("unauthorized")
	// ErrInvalidStateTransition: переход запрещён таблицей переходов заказа.
	ErrInvalidStateTransition = errors.New("invalid state transition")
	// ErrValidation: входные данные не прошли проверку.
	ErrValidation = errors.New("validation failed")
	// ErrOutboxPublish — ошибка при публикации сообщения из outbox.
	ErrOutboxPublish = errors.New("outbox publish failed")
)

// Виды сущностей для NotFoundError/UnauthorizedError.
const (
	KindMember   = "member"
	KindItem     = "item"
	KindOrder    = "order"
	KindCart     = "cart"
	KindCartItem = "cart_item"
)

// NotFoundError описывает отсутствующую сущность.
type NotFoundError struct {
	Kind string
	ID   any
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s %v not found", e.Kind, e.ID)
}

func (e *NotFoundError) Is(target error) bool { return target == ErrNotFound }

// NewNotFound создаёт NotFoundError.
func NewNotFound(kind string, id any) error {
	return &NotFoundError{Kind: kind, ID: id}
}

// InsufficientPointsError возвращается, когда списание превышает баланс.
type InsufficientPointsError struct {
	Required  int64
	Available int64
}

func (e *InsufficientPointsError) Error() string {
	return fmt.Sprintf("insufficient points: required %d, available %d", e.Required, e.Available)
}

func (e *InsufficientPointsError) Is(target error) bool { return target == ErrInsufficientPoints }

// UnauthorizedError: владелец ресурса не совпадает с текущим участником.
type UnauthorizedError struct {
	Kind string
	ID   int64
}

func (e *UnauthorizedError) Error() string {
	return fmt.Sprintf("%s %d belongs to another member", e.Kind, e.ID)
}

func (e *UnauthorizedError) Is(target error) bool { return target == ErrUnauthorized }

// InvalidStateTransitionError: операция недопустима из текущего состояния заказа.
type InvalidStateTransitionError struct {
	Current   LifecycleState
	Attempted Transition
}

func (e *InvalidStateTransitionError) Error() string {
	return fmt.Sprintf("cannot %s order in state %s", e.Attempted, e.Current)
}

func (e *InvalidStateTransitionError) Is(target error) bool {
	return target == ErrInvalidStateTransition
}

// ValidationError описывает некорректное поле запроса.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

func (e *ValidationError) Is(target error) bool { return target == ErrValidation }

// NewValidation создаёт ValidationError.
func NewValidation(field, reason string) error {
	return &ValidationError{Field: field, Reason: reason}
}

// IsNotFound проверяет, является ли ошибка NotFound.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}
