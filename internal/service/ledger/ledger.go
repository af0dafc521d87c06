// Package ledger ведёт проводки аккаунтов и считает производные величины:
// задолженность и комиссии агентов. Обе величины пересчитываются из истории
// при каждом чтении и нигде не хранятся.
package ledger

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/wholesale/internal/domain"
	"github.com/vladislavdragonenkov/wholesale/internal/pricing"
)

// chargeIDPrefix задаёт детерминированный ID начисления по заказу.
const chargeIDPrefix = "charge-"

// EntryInput описывает ручную проводку.
type EntryInput struct {
	// ID можно задать снаружи для идемпотентной записи.
	ID          string
	AccountID   string
	AmountMinor int64
	Date        time.Time
	Description string
	ReferenceID string
	CreatedBy   string
}

// Statement — выписка аккаунта: история и свёртка.
type Statement struct {
	AccountID     string
	Transactions  []domain.Transaction
	ChargesMinor  int64
	PaymentsMinor int64
	DuesMinor     int64
}

// Service — финансовый леджер поверх репозиториев проводок, аккаунтов и заказов.
type Service struct {
	transactions domain.TransactionRepository
	accounts     domain.AccountRepository
	orders       domain.OrderRepository
	outbox       domain.OutboxRepository
	logger       *log.Entry
	now          func() time.Time
}

// Option настраивает Service.
type Option func(*Service)

// WithLogger задаёт логгер.
func WithLogger(logger *log.Entry) Option {
	return func(s *Service) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithOutbox публикует начисления по заказам через outbox.
func WithOutbox(outbox domain.OutboxRepository) Option {
	return func(s *Service) { s.outbox = outbox }
}

// WithClock подменяет источник времени.
func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		if now != nil {
			s.now = now
		}
	}
}

// NewService создаёт финансовый леджер.
func NewService(
	transactions domain.TransactionRepository,
	accounts domain.AccountRepository,
	orders domain.OrderRepository,
	opts ...Option,
) *Service {
	s := &Service{
		transactions: transactions,
		accounts:     accounts,
		orders:       orders,
		logger:       log.New().WithField("component", "ledger"),
		now:          func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// OutstandingDues сворачивает историю: сумма начислений минус сумма оплат.
// Отрицательное значение означает переплату.
func OutstandingDues(transactions []domain.Transaction) int64 {
	var dues int64
	for _, tx := range transactions {
		switch tx.Type {
		case domain.TransactionTypeCharge:
			dues += tx.AmountMinor
		case domain.TransactionTypePayment:
			dues -= tx.AmountMinor
		}
	}
	return dues
}

// OutstandingDues возвращает текущий долг аккаунта по полной истории.
func (s *Service) OutstandingDues(ctx context.Context, accountID string) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	if accountID == "" {
		return 0, domain.NewValidationError("account_id", "is required")
	}
	history, err := s.transactions.ListByAccount(accountID)
	if err != nil {
		return 0, err
	}
	return OutstandingDues(history), nil
}

// Statement возвращает историю проводок аккаунта с итогами.
func (s *Service) Statement(ctx context.Context, accountID string) (Statement, error) {
	if err := ctx.Err(); err != nil {
		return Statement{}, err
	}
	if accountID == "" {
		return Statement{}, domain.NewValidationError("account_id", "is required")
	}
	history, err := s.transactions.ListByAccount(accountID)
	if err != nil {
		return Statement{}, err
	}

	st := Statement{AccountID: accountID, Transactions: history}
	for _, tx := range history {
		if tx.Type == domain.TransactionTypeCharge {
			st.ChargesMinor += tx.AmountMinor
		} else {
			st.PaymentsMinor += tx.AmountMinor
		}
	}
	st.DuesMinor = st.ChargesMinor - st.PaymentsMinor
	return st, nil
}

// RecordPayment записывает оплату от аккаунта.
func (s *Service) RecordPayment(ctx context.Context, in EntryInput) (domain.Transaction, error) {
	return s.Record(ctx, domain.TransactionTypePayment, in)
}

// RecordCharge записывает начисление на аккаунт.
func (s *Service) RecordCharge(ctx context.Context, in EntryInput) (domain.Transaction, error) {
	return s.Record(ctx, domain.TransactionTypeCharge, in)
}

// Record проверяет и добавляет проводку. Повтор с тем же ID даёт domain.ErrTransactionExists.
func (s *Service) Record(ctx context.Context, txType domain.TransactionType, in EntryInput) (domain.Transaction, error) {
	if err := ctx.Err(); err != nil {
		return domain.Transaction{}, err
	}

	now := s.now()
	tx := domain.Transaction{
		ID:          in.ID,
		AccountID:   in.AccountID,
		Type:        txType,
		AmountMinor: in.AmountMinor,
		Date:        in.Date,
		Description: strings.TrimSpace(in.Description),
		ReferenceID: in.ReferenceID,
		CreatedBy:   in.CreatedBy,
		CreatedAt:   now,
	}
	if tx.ID == "" {
		tx.ID = uuid.NewString()
	}
	if tx.Date.IsZero() {
		tx.Date = now
	}
	if errs := tx.Validate(); len(errs) > 0 {
		return domain.Transaction{}, errors.Join(errs...)
	}

	if err := s.transactions.Append(tx); err != nil {
		return domain.Transaction{}, err
	}

	s.logger.WithFields(log.Fields{
		"transaction_id": tx.ID,
		"account_id":     tx.AccountID,
		"type":           tx.Type,
		"amount_minor":   tx.AmountMinor,
	}).Info("ledger entry recorded")
	return tx, nil
}

// ChargeFor определяет, кому и сколько начислить за доставленный заказ.
// Через gaddi долг несёт посредник на сумму фабрики, кредитный заказ несёт
// сам аккаунт, прямая немедленная оплата в леджер не попадает.
func ChargeFor(order domain.Order) (accountID string, amountMinor int64, ok bool) {
	switch {
	case order.IntermediaryID != "":
		return order.IntermediaryID, order.FactoryAmountMinor, order.FactoryAmountMinor > 0
	case order.PaymentMethod == domain.PaymentMethodCredit:
		return order.AccountID, order.TotalMinor, order.TotalMinor > 0
	default:
		return "", 0, false
	}
}

// PostOrderCharge начисляет долг по доставленному заказу. Идемпотентно: ID
// проводки выводится из ID заказа, повтор не создаёт второй записи.
func (s *Service) PostOrderCharge(order domain.Order) error {
	if order.Status != domain.OrderStatusDelivered {
		return &domain.PreconditionError{From: order.Status, To: order.Status, Requirement: "delivered status"}
	}
	accountID, amount, ok := ChargeFor(order)
	if !ok {
		return nil
	}

	description := fmt.Sprintf("Order %s delivered", order.ID)
	if order.IntermediaryID != "" {
		description = fmt.Sprintf("Order %s delivered, settlement via intermediary within 60 days", order.ID)
	}

	tx, err := s.RecordCharge(context.Background(), EntryInput{
		ID:          chargeIDPrefix + order.ID,
		AccountID:   accountID,
		AmountMinor: amount,
		Date:        order.UpdatedAt,
		Description: description,
		ReferenceID: order.ID,
		CreatedBy:   "system",
	})
	if errors.Is(err, domain.ErrTransactionExists) {
		s.logger.WithField("order_id", order.ID).Debug("order charge already posted")
		return nil
	}
	if err != nil {
		return err
	}

	s.enqueueCharge(tx)
	return nil
}

func (s *Service) enqueueCharge(tx domain.Transaction) {
	if s.outbox == nil {
		return
	}
	payload, err := json.Marshal(map[string]interface{}{
		"transaction_id": tx.ID,
		"account_id":     tx.AccountID,
		"order_id":       tx.ReferenceID,
		"amount_minor":   tx.AmountMinor,
	})
	if err != nil {
		s.logger.WithError(err).WithField("transaction_id", tx.ID).Error("marshal charge event failed")
		return
	}
	if _, err := s.outbox.Enqueue(domain.OutboxMessage{
		AggregateType: "order",
		AggregateID:   tx.ReferenceID,
		EventType:     domain.OutboxEventChargePosted,
		Payload:       payload,
	}); err != nil {
		s.logger.WithError(err).WithField("transaction_id", tx.ID).Error("enqueue charge event failed")
	}
}

// AgentCommissions — проекция комиссий агента: по одной записи на каждый заказ
// закреплённых за ним аккаунтов. Ставка 2% от итога заказа, оплачена только
// после доставки.
func AgentCommissions(agentID string, accounts []domain.Account, orders []domain.Order) []domain.CommissionRecord {
	assigned := make(map[string]struct{}, len(accounts))
	for _, account := range accounts {
		if account.AgentID == agentID {
			assigned[account.ID] = struct{}{}
		}
	}

	records := make([]domain.CommissionRecord, 0, len(orders))
	for _, order := range orders {
		if _, ok := assigned[order.AccountID]; !ok {
			continue
		}
		status := domain.CommissionStatusPending
		if order.Status == domain.OrderStatusDelivered {
			status = domain.CommissionStatusPaid
		}
		records = append(records, domain.CommissionRecord{
			AgentID:         agentID,
			OrderID:         order.ID,
			AccountID:       order.AccountID,
			OrderStatus:     order.Status,
			OrderValueMinor: order.TotalMinor,
			CommissionMinor: pricing.PercentOf(order.TotalMinor, domain.CommissionRate),
			Status:          status,
		})
	}

	sort.Slice(records, func(i, j int) bool { return records[i].OrderID < records[j].OrderID })
	return records
}

// AgentCommissions загружает аккаунты агента и их заказы и строит проекцию.
func (s *Service) AgentCommissions(ctx context.Context, agentID string) ([]domain.CommissionRecord, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if agentID == "" {
		return nil, domain.NewValidationError("agent_id", "is required")
	}

	accounts, err := s.accounts.ListByAgent(agentID)
	if err != nil {
		return nil, err
	}

	var orders []domain.Order
	for _, account := range accounts {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		list, err := s.orders.ListByAccount(account.ID, 0)
		if err != nil {
			return nil, fmt.Errorf("list orders of account %s: %w", account.ID, err)
		}
		orders = append(orders, list...)
	}
	return AgentCommissions(agentID, accounts, orders), nil
}
