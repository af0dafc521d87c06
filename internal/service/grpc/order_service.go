package grpcsvc

import (
	"context"
	"errors"

	"github.com/go-playground/validator/v10"
	log "github.com/sirupsen/logrus"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/vladislavdragonenkov/wholesale/internal/domain"
	"github.com/vladislavdragonenkov/wholesale/internal/pricing"
	"github.com/vladislavdragonenkov/wholesale/internal/service/invoice"
	"github.com/vladislavdragonenkov/wholesale/internal/service/ledger"
	"github.com/vladislavdragonenkov/wholesale/internal/service/lifecycle"
)

const defaultListOrdersLimit = 100

var validate = validator.New()

// OrderService реализует gRPC API поверх сервисов жизненного цикла и леджера.
type OrderService struct {
	orders   *lifecycle.Service
	ledger   *ledger.Service
	idemRepo domain.IdempotencyRepository
	logger   *log.Entry

	invoiceOpts []invoice.Option
}

// Option настраивает OrderService.
type Option func(*OrderService)

// WithNegotiatedInvoiceDiscount переключает налоговый счёт на согласованную скидку заказа.
func WithNegotiatedInvoiceDiscount(enabled bool) Option {
	return func(s *OrderService) {
		if enabled {
			s.invoiceOpts = append(s.invoiceOpts, invoice.WithNegotiatedDiscount())
		}
	}
}

// NewOrderService конструирует сервис с зависимостями. idemRepo может быть nil:
// тогда мутирующие методы работают без idempotency-key.
func NewOrderService(
	orders *lifecycle.Service,
	ledgerSvc *ledger.Service,
	idemRepo domain.IdempotencyRepository,
	logger *log.Entry,
	opts ...Option,
) *OrderService {
	if logger == nil {
		logger = log.New().WithField("component", "order-service")
	}
	s := &OrderService{
		orders:   orders,
		ledger:   ledgerSvc,
		idemRepo: idemRepo,
		logger:   logger,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// CreateOrder фиксирует цены и создаёт заказ в статусе pending.
func (s *OrderService) CreateOrder(ctx context.Context, req *CreateOrderRequest) (*CreateOrderResponse, error) {
	if err := validateRequest(req); err != nil {
		return nil, err
	}

	return withIdempotency(s, ctx, MethodCreateOrder, req, func(ctx context.Context) (*CreateOrderResponse, error) {
		lines := make([]lifecycle.CreateLine, 0, len(req.Lines))
		for _, line := range req.Lines {
			lines = append(lines, lifecycle.CreateLine{VariantID: line.VariantID, QuantitySets: line.QuantitySets})
		}

		result, err := s.orders.CreateOrder(ctx, lifecycle.CreateOrderInput{
			OrderID:        req.OrderID,
			AccountID:      req.AccountID,
			PaymentMethod:  domain.PaymentMethod(req.PaymentMethod),
			IntermediaryID: req.IntermediaryID,
			Lines:          lines,
		})
		if errors.Is(err, domain.ErrConcurrencyConflict) {
			return nil, status.Error(codes.AlreadyExists, "order already exists")
		}
		if err != nil {
			return nil, s.statusFromError(err, "CreateOrder", req.OrderID)
		}

		return &CreateOrderResponse{
			Order:    NewOrderView(result.Order),
			Warnings: shortageViews(result.Warnings),
		}, nil
	})
}

// GetOrder возвращает состояние заказа и журнал событий.
func (s *OrderService) GetOrder(_ context.Context, req *GetOrderRequest) (*GetOrderResponse, error) {
	if err := validateRequest(req); err != nil {
		return nil, err
	}

	types, err := domain.ParseTimelineEventTypes(req.TimelineTypes)
	if err != nil {
		return nil, s.statusFromError(err, "GetOrder", req.OrderID)
	}

	order, err := s.loadOrder(req.OrderID, "GetOrder")
	if err != nil {
		return nil, err
	}

	return &GetOrderResponse{
		Order:    NewOrderView(order),
		Timeline: s.buildTimeline(order.ID, domain.TimelineFilter{Types: types, AfterSeq: req.TimelineAfterSeq}),
	}, nil
}

// ListOrders возвращает последние заказы аккаунта.
func (s *OrderService) ListOrders(_ context.Context, req *ListOrdersRequest) (*ListOrdersResponse, error) {
	if err := validateRequest(req); err != nil {
		return nil, err
	}

	limit := int(req.PageSize)
	if limit <= 0 {
		limit = defaultListOrdersLimit
	}

	orders, err := s.orders.ListByAccount(req.AccountID, limit)
	if err != nil {
		return nil, s.statusFromError(err, "ListOrders", "")
	}

	result := make([]OrderView, 0, len(orders))
	for _, order := range orders {
		result = append(result, NewOrderView(order))
	}
	return &ListOrdersResponse{Orders: result}, nil
}

// TransitionOrder переводит заказ в целевой статус с проверкой предусловий.
func (s *OrderService) TransitionOrder(ctx context.Context, req *TransitionOrderRequest) (*OrderResponse, error) {
	if err := validateRequest(req); err != nil {
		return nil, err
	}
	target, ok := domain.ParseOrderStatus(req.TargetStatus)
	if !ok {
		return nil, status.Errorf(codes.InvalidArgument, "unknown target_status %q", req.TargetStatus)
	}

	return withIdempotency(s, ctx, MethodTransitionOrder, req, func(ctx context.Context) (*OrderResponse, error) {
		order, err := s.orders.Transition(ctx, req.OrderID, target, lifecycle.TransitionInput{
			Confirmed: req.Confirmed,
			Documents: req.Documents.toDomain(),
			Transport: req.Transport.toDomain(),
			Reason:    req.Reason,
			Actor:     req.Actor,
		})
		if err != nil {
			return nil, s.statusFromError(err, "TransitionOrder", req.OrderID)
		}
		return &OrderResponse{Order: NewOrderView(order)}, nil
	})
}

// AmendDocuments заменяет ссылки на документы без смены статуса.
func (s *OrderService) AmendDocuments(ctx context.Context, req *AmendDocumentsRequest) (*OrderResponse, error) {
	if err := validateRequest(req); err != nil {
		return nil, err
	}

	return withIdempotency(s, ctx, MethodAmendDocuments, req, func(ctx context.Context) (*OrderResponse, error) {
		order, err := s.orders.AmendDocuments(ctx, req.OrderID, req.Documents.toDomain())
		if err != nil {
			return nil, s.statusFromError(err, "AmendDocuments", req.OrderID)
		}
		return &OrderResponse{Order: NewOrderView(order)}, nil
	})
}

// ApplyDiscount применяет согласованную скидку; потолок проверяется первым.
func (s *OrderService) ApplyDiscount(ctx context.Context, req *ApplyDiscountRequest) (*ApplyDiscountResponse, error) {
	if err := validateRequest(req); err != nil {
		return nil, err
	}

	return withIdempotency(s, ctx, MethodApplyDiscount, req, func(ctx context.Context) (*ApplyDiscountResponse, error) {
		order, applied, err := s.orders.ApplyDiscount(ctx, req.OrderID, domain.DiscountOffer{
			Percent: req.Percent,
			Message: req.Message,
			Applied: req.Applied,
		})
		if err != nil {
			return nil, s.statusFromError(err, "ApplyDiscount", req.OrderID)
		}
		return &ApplyDiscountResponse{
			Order:      NewOrderView(order),
			Changed:    applied.Changed,
			Disclosure: applied.Disclosure,
		}, nil
	})
}

// AcknowledgeDisclosure фиксирует, что условия скидки показаны контрагенту.
func (s *OrderService) AcknowledgeDisclosure(ctx context.Context, req *AcknowledgeDisclosureRequest) (*OrderResponse, error) {
	if err := validateRequest(req); err != nil {
		return nil, err
	}

	return withIdempotency(s, ctx, MethodAcknowledgeDisclosure, req, func(ctx context.Context) (*OrderResponse, error) {
		order, err := s.orders.AcknowledgeDisclosure(ctx, req.OrderID)
		if err != nil {
			return nil, s.statusFromError(err, "AcknowledgeDisclosure", req.OrderID)
		}
		return &OrderResponse{Order: NewOrderView(order)}, nil
	})
}

// ComposeInvoice собирает memo или налоговый счёт заказа.
func (s *OrderService) ComposeInvoice(_ context.Context, req *ComposeInvoiceRequest) (*ComposeInvoiceResponse, error) {
	if err := validateRequest(req); err != nil {
		return nil, err
	}

	order, err := s.loadOrder(req.OrderID, "ComposeInvoice")
	if err != nil {
		return nil, err
	}

	doc, err := ComposeInvoice(order, req.Mode, s.invoiceOpts...)
	if err != nil {
		return nil, s.statusFromError(err, "ComposeInvoice", req.OrderID)
	}
	return &ComposeInvoiceResponse{Document: doc}, nil
}

// ComposeInvoice выбирает режим документа: явный mode или, если он пуст,
// налоговый счёт для заказов через посредника и memo для остальных.
func ComposeInvoice(order domain.Order, rawMode string, opts ...invoice.Option) (invoice.Document, error) {
	mode := invoice.ModeRetailerMemo
	if order.IntermediaryID != "" {
		mode = invoice.ModeIntermediaryTaxInvoice
	}
	if rawMode != "" {
		parsed, err := invoice.ParseMode(rawMode)
		if err != nil {
			return invoice.Document{}, err
		}
		mode = parsed
	}
	return invoice.Compose(order, mode, opts...)
}

// RecordTransaction записывает оплату или начисление в леджер аккаунта.
func (s *OrderService) RecordTransaction(ctx context.Context, req *RecordTransactionRequest) (*RecordTransactionResponse, error) {
	if err := validateRequest(req); err != nil {
		return nil, err
	}

	return withIdempotency(s, ctx, MethodRecordTransaction, req, func(ctx context.Context) (*RecordTransactionResponse, error) {
		tx, err := s.ledger.Record(ctx, domain.TransactionType(req.Type), ledger.EntryInput{
			ID:          req.ID,
			AccountID:   req.AccountID,
			AmountMinor: req.AmountMinor,
			Date:        req.Date,
			Description: req.Description,
			ReferenceID: req.ReferenceID,
			CreatedBy:   req.CreatedBy,
		})
		if err != nil {
			return nil, s.statusFromError(err, "RecordTransaction", "")
		}

		dues, err := s.ledger.OutstandingDues(ctx, req.AccountID)
		if err != nil {
			return nil, s.statusFromError(err, "RecordTransaction", "")
		}
		return &RecordTransactionResponse{Transaction: NewTransactionView(tx), DuesMinor: dues}, nil
	})
}

// GetStatement возвращает историю проводок и задолженность аккаунта.
func (s *OrderService) GetStatement(ctx context.Context, req *GetStatementRequest) (*GetStatementResponse, error) {
	if err := validateRequest(req); err != nil {
		return nil, err
	}

	statement, err := s.ledger.Statement(ctx, req.AccountID)
	if err != nil {
		return nil, s.statusFromError(err, "GetStatement", "")
	}
	return NewStatementResponse(statement), nil
}

// ListAgentCommissions возвращает комиссии агента по заказам его аккаунтов.
func (s *OrderService) ListAgentCommissions(ctx context.Context, req *ListAgentCommissionsRequest) (*ListAgentCommissionsResponse, error) {
	if err := validateRequest(req); err != nil {
		return nil, err
	}

	records, err := s.ledger.AgentCommissions(ctx, req.AgentID)
	if err != nil {
		return nil, s.statusFromError(err, "ListAgentCommissions", "")
	}
	return NewCommissionsResponse(req.AgentID, records), nil
}

// QuoteLine считает цену позиции для корзины.
func (s *OrderService) QuoteLine(_ context.Context, req *QuoteLineRequest) (*QuoteLineResponse, error) {
	if req == nil {
		return nil, status.Error(codes.InvalidArgument, "request is required")
	}

	quote, err := pricing.Price(req.PricePerPieceMinor, req.PiecesPerSet, req.QuantitySets, req.DiscountPercent)
	if err != nil {
		return nil, status.Error(codes.InvalidArgument, err.Error())
	}
	return &QuoteLineResponse{
		PerSetMinor:    quote.PerSetMinor,
		UnitPriceMinor: quote.UnitPriceMinor,
		LineTotalMinor: quote.LineTotalMinor,
	}, nil
}

func validateRequest(req any) error {
	if req == nil {
		return status.Error(codes.InvalidArgument, "request is required")
	}
	if err := validate.Struct(req); err != nil {
		var invalid *validator.InvalidValidationError
		if errors.As(err, &invalid) {
			return status.Error(codes.InvalidArgument, "request is required")
		}
		return status.Error(codes.InvalidArgument, err.Error())
	}
	return nil
}

func (s *OrderService) loadOrder(orderID, operation string) (domain.Order, error) {
	order, err := s.orders.Get(orderID)
	if err == nil {
		return order, nil
	}

	s.logger.WithError(err).WithFields(log.Fields{
		"operation": operation,
		"order_id":  orderID,
	}).Warn("failed to load order")

	switch {
	case errors.Is(err, domain.ErrOrderNotFound):
		return domain.Order{}, status.Error(codes.NotFound, domain.ErrOrderNotFound.Error())
	default:
		return domain.Order{}, status.Error(codes.Internal, "failed to load order")
	}
}

// statusFromError переводит доменные ошибки в gRPC-коды. Бизнес-отказы
// логируются на уровне Info, инфраструктурные сбои скрываются за Internal.
func (s *OrderService) statusFromError(err error, operation, orderID string) error {
	if err == nil {
		return nil
	}
	if _, ok := status.FromError(err); ok {
		return err
	}

	entry := s.logger.WithError(err).WithFields(log.Fields{
		"operation": operation,
		"order_id":  orderID,
	})

	code := codeForError(err)
	if code == codes.Internal {
		entry.Error("operation failed")
		return status.Errorf(codes.Internal, "failed to %s", operation)
	}
	entry.WithField("code", code.String()).Info("operation rejected")
	return status.Error(code, err.Error())
}

func codeForError(err error) codes.Code {
	switch {
	case errors.Is(err, context.Canceled):
		return codes.Canceled
	case errors.Is(err, context.DeadlineExceeded):
		return codes.DeadlineExceeded
	case errors.Is(err, domain.ErrValidation):
		return codes.InvalidArgument
	case errors.Is(err, domain.ErrOrderNotFound),
		errors.Is(err, domain.ErrVariantNotFound),
		errors.Is(err, domain.ErrAccountNotFound):
		return codes.NotFound
	case errors.Is(err, domain.ErrInsufficientStock),
		errors.Is(err, domain.ErrPreconditionNotMet),
		errors.Is(err, domain.ErrIllegalTransition),
		errors.Is(err, domain.ErrDiscountRejected):
		return codes.FailedPrecondition
	case errors.Is(err, domain.ErrConcurrencyConflict):
		return codes.Aborted
	case errors.Is(err, domain.ErrTransactionExists):
		return codes.AlreadyExists
	default:
		return codes.Internal
	}
}

func (s *OrderService) buildTimeline(orderID string, filter domain.TimelineFilter) []TimelineEventView {
	events, err := s.orders.Timeline(orderID, filter)
	if err != nil {
		s.logger.WithError(err).WithField("order_id", orderID).Warn("failed to list timeline events")
		return nil
	}
	if len(events) == 0 {
		return nil
	}
	return NewTimelineView(events)
}
