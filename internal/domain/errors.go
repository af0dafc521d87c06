package domain

import (
	"errors"
	"fmt"
)

var (
	// ErrValidation — некорректные входные данные, отклоняются до изменения состояния.
	ErrValidation = errors.New("validation failed")
	// ErrInsufficientStock — на складе меньше сетов, чем запрошено.
	ErrInsufficientStock = errors.New("insufficient stock")
	// ErrPreconditionNotMet — переход статуса запрошен без обязательного документа или подтверждения.
	ErrPreconditionNotMet = errors.New("precondition not met")
	// ErrIllegalTransition — переход отсутствует в графе статусов.
	ErrIllegalTransition = errors.New("illegal status transition")
	// ErrConcurrencyConflict — состояние изменилось между чтением и условной записью.
	ErrConcurrencyConflict = errors.New("concurrency conflict")
	// ErrOrderVersionConflict оставлен как синоним для репозиториев с optimistic locking.
	ErrOrderVersionConflict = ErrConcurrencyConflict
	// ErrDiscountRejected — предложенная скидка превышает потолок.
	ErrDiscountRejected = errors.New("discount rejected")

	// ErrOrderNotFound возвращается, если заказ не найден в репозитории.
	ErrOrderNotFound = errors.New("order not found")
	// ErrVariantNotFound возвращается, если вариант товара не найден.
	ErrVariantNotFound = errors.New("product variant not found")
	// ErrAccountNotFound возвращается, если аккаунт не найден.
	ErrAccountNotFound = errors.New("account not found")
	// ErrVariantExists — вариант с таким ID уже заведён.
	ErrVariantExists = errors.New("product variant already exists")
	// ErrTransactionExists — проводка с таким ID уже записана.
	ErrTransactionExists = errors.New("transaction already exists")

	// ErrOutboxPublish — ошибка при публикации сообщения из outbox.
	ErrOutboxPublish = errors.New("outbox publish failed")
	// ErrOutboxMessageNotFound — сообщения нет или оно уже не pending.
	ErrOutboxMessageNotFound = errors.New("outbox message not found")

	// Ошибки идемпотентности.
	ErrIdempotencyKeyRequired         = errors.New("idempotency key is required")
	ErrIdempotencyMethodRequired      = errors.New("idempotency method is required")
	ErrIdempotencyRequestHashRequired = errors.New("idempotency request hash is required")
	ErrIdempotencyKeyNotFound         = errors.New("idempotency key not found")
	ErrIdempotencyKeyAlreadyExists    = errors.New("idempotency key already exists")
	ErrIdempotencyHashMismatch        = errors.New("idempotency key reused with different request")
)

// ValidationError описывает поле, не прошедшее проверку.
type ValidationError struct {
	Field  string
	Reason string
}

// NewValidationError создаёт ошибку валидации для поля.
func NewValidationError(field, reason string) *ValidationError {
	return &ValidationError{Field: field, Reason: reason}
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return fmt.Sprintf("validation failed: %s", e.Reason)
	}
	return fmt.Sprintf("validation failed: %s %s", e.Field, e.Reason)
}

func (e *ValidationError) Unwrap() error { return ErrValidation }

// InsufficientStockError несёт недостачу по варианту.
type InsufficientStockError struct {
	VariantID string
	Requested int32
	Available int32
}

// Shortfall возвращает, скольких сетов не хватает.
func (e *InsufficientStockError) Shortfall() int32 {
	return e.Requested - e.Available
}

func (e *InsufficientStockError) Error() string {
	return fmt.Sprintf("insufficient stock for variant %s: requested %d sets, available %d (short by %d)",
		e.VariantID, e.Requested, e.Available, e.Shortfall())
}

func (e *InsufficientStockError) Unwrap() error { return ErrInsufficientStock }

// PreconditionError указывает, какое требование перехода не выполнено.
type PreconditionError struct {
	From        OrderStatus
	To          OrderStatus
	Requirement string
}

func (e *PreconditionError) Error() string {
	return fmt.Sprintf("%s required before moving order from %s to %s", e.Requirement, e.From, e.To)
}

func (e *PreconditionError) Unwrap() error { return ErrPreconditionNotMet }

// IllegalTransitionError содержит текущий и запрошенный статусы.
type IllegalTransitionError struct {
	From OrderStatus
	To   OrderStatus
}

func (e *IllegalTransitionError) Error() string {
	return fmt.Sprintf("cannot move order from %s to %s", e.From, e.To)
}

func (e *IllegalTransitionError) Unwrap() error { return ErrIllegalTransition }

// DiscountRejectedError возвращается при превышении потолка скидки.
type DiscountRejectedError struct {
	Percent int
	Max     int
}

func (e *DiscountRejectedError) Error() string {
	return fmt.Sprintf("discount of %d%% exceeds the %d%% ceiling", e.Percent, e.Max)
}

func (e *DiscountRejectedError) Unwrap() error { return ErrDiscountRejected }

// IsVersionConflict проверяет, является ли ошибка конфликтом версий.
func IsVersionConflict(err error) bool {
	return errors.Is(err, ErrConcurrencyConflict)
}

// IsIdempotencyConflict проверяет, что ключ уже использован.
func IsIdempotencyConflict(err error) bool {
	return errors.Is(err, ErrIdempotencyKeyAlreadyExists) || errors.Is(err, ErrIdempotencyHashMismatch)
}

// IsBusinessError отличает ожидаемые бизнес-отказы от инфраструктурных сбоев.
func IsBusinessError(err error) bool {
	switch {
	case errors.Is(err, ErrValidation),
		errors.Is(err, ErrInsufficientStock),
		errors.Is(err, ErrPreconditionNotMet),
		errors.Is(err, ErrIllegalTransition),
		errors.Is(err, ErrDiscountRejected),
		errors.Is(err, ErrConcurrencyConflict):
		return true
	default:
		return false
	}
}
