package lifecycle

import (
	"time"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/wholesale/internal/domain"
	"github.com/vladislavdragonenkov/wholesale/internal/messaging/kafka"
	"github.com/vladislavdragonenkov/wholesale/internal/metrics"
	"github.com/vladislavdragonenkov/wholesale/internal/service/inventory"
)

const defaultConflictRetryDelay = 10 * time.Millisecond

// StockAdvisor даёт предварительную оценку остатков при создании заказа.
type StockAdvisor interface {
	CheckAvailability(items []domain.OrderItem) ([]inventory.Shortage, error)
}

// ChargePoster проводит начисление по доставленному заказу в леджер.
type ChargePoster interface {
	PostOrderCharge(order domain.Order) error
}

// Service ведёт заказ по графу статусов: проверяет предусловия, двигает склад,
// сохраняет с optimistic locking и после коммита рассылает уведомления и события.
type Service struct {
	orders    domain.OrderRepository
	variants  domain.VariantRepository
	inventory domain.InventoryService
	notifier  domain.Notifier
	locker    domain.OrderLocker

	outbox        domain.OutboxRepository
	timeline      domain.TimelineRepository
	advisor       StockAdvisor
	charges       ChargePoster
	kafkaProducer *kafka.Producer // опциональный, события дублируются в Kafka
	metrics       *metrics.LifecycleMetrics
	logger        *log.Entry

	now        func() time.Time
	newID      func() string
	retryDelay time.Duration
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

// WithOutbox включает запись событий в transactional outbox.
func WithOutbox(outbox domain.OutboxRepository) Option {
	return func(s *Service) { s.outbox = outbox }
}

// WithTimeline включает журнал событий заказа.
func WithTimeline(timeline domain.TimelineRepository) Option {
	return func(s *Service) { s.timeline = timeline }
}

// WithStockAdvisor включает предупреждения о нехватке при создании.
func WithStockAdvisor(advisor StockAdvisor) Option {
	return func(s *Service) { s.advisor = advisor }
}

// WithChargePoster включает начисление долга при доставке.
func WithChargePoster(poster ChargePoster) Option {
	return func(s *Service) { s.charges = poster }
}

// WithKafkaProducer дублирует события заказа в Kafka.
func WithKafkaProducer(producer *kafka.Producer) Option {
	return func(s *Service) { s.kafkaProducer = producer }
}

// WithOrderLocker задаёт блокировку заказов; по умолчанию она действует в пределах процесса.
func WithOrderLocker(locker domain.OrderLocker) Option {
	return func(s *Service) {
		if locker != nil {
			s.locker = locker
		}
	}
}

// WithMetrics задаёт prometheus-метрики; без опции метрики отключены.
func WithMetrics(m *metrics.LifecycleMetrics) Option {
	return func(s *Service) { s.metrics = m }
}

// WithClock подменяет источник времени (для тестов).
func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		if now != nil {
			s.now = now
		}
	}
}

// WithIDGenerator подменяет генератор идентификаторов (для тестов).
func WithIDGenerator(gen func() string) Option {
	return func(s *Service) {
		if gen != nil {
			s.newID = gen
		}
	}
}

// WithConflictRetryDelay задаёт паузу перед повтором после конфликта версий.
func WithConflictRetryDelay(delay time.Duration) Option {
	return func(s *Service) {
		if delay >= 0 {
			s.retryDelay = delay
		}
	}
}

// NewService создаёт сервис жизненного цикла заказа.
func NewService(
	orders domain.OrderRepository,
	variants domain.VariantRepository,
	inv domain.InventoryService,
	notifier domain.Notifier,
	opts ...Option,
) *Service {
	s := &Service{
		orders:     orders,
		variants:   variants,
		inventory:  inv,
		notifier:   notifier,
		locker:     newLocalOrderLocks(),
		logger:     log.New().WithField("component", "lifecycle"),
		now:        func() time.Time { return time.Now().UTC() },
		newID:      func() string { return uuid.NewString() },
		retryDelay: defaultConflictRetryDelay,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.notifier == nil {
		s.notifier = NewLogNotifier(s.logger)
	}
	return s
}

// Get возвращает заказ по идентификатору.
func (s *Service) Get(orderID string) (domain.Order, error) {
	return s.orders.Get(orderID)
}

// ListByAccount возвращает последние заказы аккаунта.
func (s *Service) ListByAccount(accountID string, limit int) ([]domain.Order, error) {
	if accountID == "" {
		return nil, domain.NewValidationError("account_id", "is required")
	}
	return s.orders.ListByAccount(accountID, limit)
}

// Timeline возвращает журнал заказа в порядке записи, суженный фильтром.
func (s *Service) Timeline(orderID string, filter domain.TimelineFilter) ([]domain.TimelineEvent, error) {
	if s.timeline == nil {
		return nil, nil
	}
	return s.timeline.List(orderID, filter)
}
