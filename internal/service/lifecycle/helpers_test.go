package lifecycle

import (
	"sync"
	"testing"

	log "github.com/sirupsen/logrus"
	"github.com/stretchr/testify/require"

	"github.com/vladislavdragonenkov/wholesale/internal/domain"
	"github.com/vladislavdragonenkov/wholesale/internal/service/inventory"
	"github.com/vladislavdragonenkov/wholesale/internal/storage/memory"
)

type recordingNotifier struct {
	mu   sync.Mutex
	sent []domain.Notification
	err  error
}

func (n *recordingNotifier) Notify(notification domain.Notification) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.err != nil {
		return n.err
	}
	n.sent = append(n.sent, notification)
	return nil
}

func (n *recordingNotifier) all() []domain.Notification {
	n.mu.Lock()
	defer n.mu.Unlock()
	out := make([]domain.Notification, len(n.sent))
	copy(out, n.sent)
	return out
}

type chargeRecorder struct {
	mu      sync.Mutex
	charged []domain.Order
}

func (c *chargeRecorder) PostOrderCharge(order domain.Order) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.charged = append(c.charged, order)
	return nil
}

func (c *chargeRecorder) count() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.charged)
}

// flakyOrderRepository отдаёт конфликт версий на первых conflicts вызовах Save.
type flakyOrderRepository struct {
	domain.OrderRepository

	mu        sync.Mutex
	conflicts int
	saveErr   error
}

func (r *flakyOrderRepository) Save(order domain.Order) error {
	r.mu.Lock()
	if r.conflicts > 0 {
		r.conflicts--
		r.mu.Unlock()
		return domain.ErrConcurrencyConflict
	}
	saveErr := r.saveErr
	r.mu.Unlock()
	if saveErr != nil {
		return saveErr
	}
	return r.OrderRepository.Save(order)
}

type fixture struct {
	svc       *Service
	orders    *flakyOrderRepository
	variants  domain.VariantRepository
	inventory *inventory.Ledger
	outbox    *memory.OutboxRepository
	timeline  domain.TimelineRepository
	notifier  *recordingNotifier
	charges   *chargeRecorder
}

func newFixture(t *testing.T, stock int32, opts ...Option) *fixture {
	t.Helper()

	logger := log.New().WithField("test", t.Name())
	f := &fixture{
		orders:   &flakyOrderRepository{OrderRepository: memory.NewOrderRepository()},
		variants: memory.NewVariantRepository(),
		outbox:   memory.NewOutboxRepository(),
		timeline: memory.NewTimelineRepository(),
		notifier: &recordingNotifier{},
		charges:  &chargeRecorder{},
	}
	f.inventory = inventory.NewLedger(f.variants, logger)

	require.NoError(t, f.variants.Create(domain.ProductVariant{
		ID:                 "variant-1",
		ProductID:          "product-1",
		ProductName:        "Cotton kurti",
		Color:              "indigo",
		SizeRange:          "M-XXL",
		PricePerPieceMinor: 100,
		PiecesPerSet:       6,
		Stock:              stock,
	}))

	base := []Option{
		WithLogger(logger),
		WithOutbox(f.outbox),
		WithTimeline(f.timeline),
		WithStockAdvisor(f.inventory),
		WithChargePoster(f.charges),
		WithConflictRetryDelay(0),
	}
	f.svc = NewService(f.orders, f.variants, f.inventory, f.notifier, append(base, opts...)...)
	return f
}

func (f *fixture) createOrder(t *testing.T, sets int32) domain.Order {
	t.Helper()
	res, err := f.svc.CreateOrder(t.Context(), CreateOrderInput{
		AccountID: "account-1",
		Lines:     []CreateLine{{VariantID: "variant-1", QuantitySets: sets}},
	})
	require.NoError(t, err)
	return res.Order
}

func (f *fixture) stock(t *testing.T) int32 {
	t.Helper()
	available, err := f.inventory.Available("variant-1")
	require.NoError(t, err)
	return available
}

// seedOrder кладёт заказ напрямую в репозиторий в нужном статусе.
func seedOrder(t *testing.T, repo domain.OrderRepository, id string, status domain.OrderStatus) domain.Order {
	t.Helper()
	order := domain.Order{
		ID:            id,
		AccountID:     "account-1",
		Status:        status,
		PaymentMethod: domain.PaymentMethodCredit,
		TotalMinor:    3000,
		Items: []domain.OrderItem{{
			ID:                 "item-1",
			VariantID:          "variant-1",
			PricePerPieceMinor: 100,
			PiecesPerSet:       6,
			QuantitySets:       5,
		}},
	}
	require.NoError(t, repo.Create(order))
	return order
}
