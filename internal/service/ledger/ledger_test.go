package ledger

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"

	"github.com/vladislavdragonenkov/wholesale/internal/domain"
	"github.com/vladislavdragonenkov/wholesale/internal/storage/memory"
)

type LedgerSuite struct {
	suite.Suite

	transactions domain.TransactionRepository
	accounts     domain.AccountRepository
	orders       domain.OrderRepository
	outbox       *memory.OutboxRepository
	svc          *Service
	now          time.Time
}

func TestLedgerSuite(t *testing.T) {
	suite.Run(t, new(LedgerSuite))
}

func (s *LedgerSuite) SetupTest() {
	s.transactions = memory.NewTransactionRepository()
	s.accounts = memory.NewAccountRepository()
	s.orders = memory.NewOrderRepository()
	s.outbox = memory.NewOutboxRepository()
	s.now = time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	s.svc = NewService(s.transactions, s.accounts, s.orders,
		WithOutbox(s.outbox),
		WithClock(func() time.Time { return s.now }),
	)
}

func (s *LedgerSuite) TestOutstandingDuesFold() {
	ctx := context.Background()

	_, err := s.svc.RecordCharge(ctx, EntryInput{AccountID: "acc-1", AmountMinor: 5000, Description: "opening balance"})
	s.Require().NoError(err)
	_, err = s.svc.RecordCharge(ctx, EntryInput{AccountID: "acc-1", AmountMinor: 3000})
	s.Require().NoError(err)
	_, err = s.svc.RecordPayment(ctx, EntryInput{AccountID: "acc-1", AmountMinor: 6000, Description: "NEFT"})
	s.Require().NoError(err)
	_, err = s.svc.RecordCharge(ctx, EntryInput{AccountID: "acc-2", AmountMinor: 100})
	s.Require().NoError(err)

	dues, err := s.svc.OutstandingDues(ctx, "acc-1")
	s.Require().NoError(err)
	s.Equal(int64(2000), dues)

	st, err := s.svc.Statement(ctx, "acc-1")
	s.Require().NoError(err)
	s.Len(st.Transactions, 3)
	s.Equal(int64(8000), st.ChargesMinor)
	s.Equal(int64(6000), st.PaymentsMinor)
	s.Equal(dues, st.DuesMinor)

	dues, err = s.svc.OutstandingDues(ctx, "unknown")
	s.Require().NoError(err)
	s.Zero(dues)
}

func (s *LedgerSuite) TestRecordValidation() {
	ctx := context.Background()

	_, err := s.svc.RecordPayment(ctx, EntryInput{AccountID: "acc-1", AmountMinor: 0})
	s.ErrorIs(err, domain.ErrValidation)

	_, err = s.svc.RecordCharge(ctx, EntryInput{AmountMinor: 10})
	s.ErrorIs(err, domain.ErrValidation)

	_, err = s.svc.OutstandingDues(ctx, "")
	s.ErrorIs(err, domain.ErrValidation)

	tx, err := s.svc.RecordPayment(ctx, EntryInput{ID: "pay-1", AccountID: "acc-1", AmountMinor: 10})
	s.Require().NoError(err)
	s.Equal(s.now, tx.Date, "date defaults to now")

	_, err = s.svc.RecordPayment(ctx, EntryInput{ID: "pay-1", AccountID: "acc-1", AmountMinor: 10})
	s.ErrorIs(err, domain.ErrTransactionExists)
}

func (s *LedgerSuite) TestPostOrderChargeCreditOrder() {
	order := deliveredOrder("order-1", "acc-1")

	s.Require().NoError(s.svc.PostOrderCharge(order))
	s.Require().NoError(s.svc.PostOrderCharge(order), "repeat posting is a no-op")

	dues, err := s.svc.OutstandingDues(context.Background(), "acc-1")
	s.Require().NoError(err)
	s.Equal(int64(3000), dues)
	s.Len(s.outbox.PendingByType(domain.OutboxEventChargePosted), 1)
}

func (s *LedgerSuite) TestPostOrderChargeIntermediary() {
	order := deliveredOrder("order-2", "acc-1")
	order.PaymentMethod = domain.PaymentMethodPayNow
	order.IntermediaryID = "gaddi-1"
	order.FactoryAmountMinor = 2910

	s.Require().NoError(s.svc.PostOrderCharge(order))

	dues, err := s.svc.OutstandingDues(context.Background(), "gaddi-1")
	s.Require().NoError(err)
	s.Equal(int64(2910), dues)

	dues, err = s.svc.OutstandingDues(context.Background(), "acc-1")
	s.Require().NoError(err)
	s.Zero(dues, "retailer owes nothing when the intermediary settles")
}

func (s *LedgerSuite) TestPostOrderChargeSkipsPayNowAndRejectsUndelivered() {
	order := deliveredOrder("order-3", "acc-1")
	order.PaymentMethod = domain.PaymentMethodPayNow
	order.DiscountPercent = 3
	s.Require().NoError(s.svc.PostOrderCharge(order))

	history, err := s.transactions.ListByAccount("acc-1")
	s.Require().NoError(err)
	s.Empty(history)

	order.Status = domain.OrderStatusCancelled
	s.ErrorIs(s.svc.PostOrderCharge(order), domain.ErrPreconditionNotMet)
}

func (s *LedgerSuite) TestAgentCommissionsFromRepositories() {
	s.Require().NoError(s.accounts.Put(domain.Account{ID: "acc-1", Name: "Shree Textiles", AgentID: "agent-1"}))
	s.Require().NoError(s.accounts.Put(domain.Account{ID: "acc-2", Name: "Other", AgentID: "agent-2"}))

	delivered := deliveredOrder("order-a", "acc-1")
	pending := deliveredOrder("order-b", "acc-1")
	pending.Status = domain.OrderStatusPending
	pending.TotalMinor = 1025
	foreign := deliveredOrder("order-c", "acc-2")
	for _, o := range []domain.Order{delivered, pending, foreign} {
		s.Require().NoError(s.orders.Create(o))
	}

	records, err := s.svc.AgentCommissions(context.Background(), "agent-1")
	s.Require().NoError(err)
	s.Require().Len(records, 2)

	s.Equal("order-a", records[0].OrderID)
	s.Equal(int64(60), records[0].CommissionMinor)
	s.Equal(domain.CommissionStatusPaid, records[0].Status)

	s.Equal("order-b", records[1].OrderID)
	// 2% от 1025 = 20.5, округляется вверх.
	s.Equal(int64(21), records[1].CommissionMinor)
	s.Equal(domain.CommissionStatusPending, records[1].Status)

	_, err = s.svc.AgentCommissions(context.Background(), "")
	s.ErrorIs(err, domain.ErrValidation)
}

func TestAgentCommissions_Pure(t *testing.T) {
	accounts := []domain.Account{{ID: "acc-1", AgentID: "agent-1"}}
	orders := []domain.Order{
		{ID: "o-2", AccountID: "acc-1", Status: domain.OrderStatusCancelled, TotalMinor: 500},
		{ID: "o-1", AccountID: "acc-1", Status: domain.OrderStatusDispatched, TotalMinor: 10000},
		{ID: "o-3", AccountID: "acc-9", Status: domain.OrderStatusDelivered, TotalMinor: 10000},
	}

	records := AgentCommissions("agent-1", accounts, orders)
	require.Len(t, records, 2)
	require.Equal(t, "o-1", records[0].OrderID)
	require.Equal(t, int64(200), records[0].CommissionMinor)
	require.Equal(t, domain.CommissionStatusPending, records[0].Status)
	require.Equal(t, int64(10), records[1].CommissionMinor)

	require.Empty(t, AgentCommissions("agent-2", accounts, orders))
}

func TestOutstandingDues_Pure(t *testing.T) {
	require.Zero(t, OutstandingDues(nil))
	require.Equal(t, int64(-50), OutstandingDues([]domain.Transaction{
		{Type: domain.TransactionTypeCharge, AmountMinor: 100},
		{Type: domain.TransactionTypePayment, AmountMinor: 150},
	}), "overpayment shows as credit")
}

func deliveredOrder(id, accountID string) domain.Order {
	now := time.Date(2026, 2, 20, 9, 0, 0, 0, time.UTC)
	return domain.Order{
		ID:                 id,
		AccountID:          accountID,
		Status:             domain.OrderStatusDelivered,
		PaymentMethod:      domain.PaymentMethodCredit,
		TotalMinor:         3000,
		FactoryAmountMinor: 3000,
		Items: []domain.OrderItem{{
			ID: "item-" + id, VariantID: "variant-1", PricePerPieceMinor: 100, PiecesPerSet: 6, QuantitySets: 5,
		}},
		CreatedAt: now,
		UpdatedAt: now,
	}
}
