package domain

import "time"

// TransactionType различает начисления и оплаты в леджере аккаунта.
type TransactionType string

const (
	// TransactionTypePayment уменьшает задолженность.
	TransactionTypePayment TransactionType = "payment"
	// TransactionTypeCharge увеличивает задолженность.
	TransactionTypeCharge TransactionType = "charge"
)

// Valid проверяет тип проводки.
func (t TransactionType) Valid() bool {
	return t == TransactionTypePayment || t == TransactionTypeCharge
}

// Transaction — запись леджера. Долг считается сверткой по истории, отдельного счётчика нет.
type Transaction struct {
	ID          string
	AccountID   string
	Type        TransactionType
	AmountMinor int64
	Date        time.Time
	Description string
	ReferenceID string
	CreatedBy   string
	CreatedAt   time.Time
}

// Validate проверяет проводку перед записью.
func (t *Transaction) Validate() []error {
	var errs []error

	if t.AccountID == "" {
		errs = append(errs, NewValidationError("account_id", "is required"))
	}
	if !t.Type.Valid() {
		errs = append(errs, NewValidationError("type", "must be payment or charge"))
	}
	if t.AmountMinor <= 0 {
		errs = append(errs, NewValidationError("amount_minor", "must be greater than zero"))
	}
	if t.Date.IsZero() {
		errs = append(errs, NewValidationError("date", "is required"))
	}

	return errs
}

// Account — розничный клиент или дистрибьютор, закреплённый за торговым агентом.
type Account struct {
	ID      string
	Name    string
	AgentID string
}

// CommissionRate — ставка агента от стоимости заказа, в процентах.
const CommissionRate = 2

// CommissionStatus — статус комиссии агента.
type CommissionStatus string

const (
	CommissionStatusPending CommissionStatus = "pending"
	CommissionStatusPaid    CommissionStatus = "paid"
)

// CommissionRecord — проекция заказа для агента, не хранится.
type CommissionRecord struct {
	AgentID         string
	OrderID         string
	AccountID       string
	OrderStatus     OrderStatus
	OrderValueMinor int64
	CommissionMinor int64
	Status          CommissionStatus
}
