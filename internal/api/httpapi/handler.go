// Package httpapi отдаёт read-only REST представление заказов, документов и леджера.
// Мутации идут только через gRPC с idempotency-key; здесь их нет.
package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"
	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/wholesale/internal/domain"
	grpcsvc "github.com/vladislavdragonenkov/wholesale/internal/service/grpc"
	"github.com/vladislavdragonenkov/wholesale/internal/service/invoice"
	"github.com/vladislavdragonenkov/wholesale/internal/service/ledger"
	"github.com/vladislavdragonenkov/wholesale/internal/service/lifecycle"
)

const (
	defaultListLimit = 50
	maxListLimit     = 500
)

// Response — общий конверт ответа REST API.
type Response struct {
	Success bool        `json:"success"`
	Data    interface{} `json:"data,omitempty"`
	Error   string      `json:"error,omitempty"`
}

// Handler обслуживает /api/v1 поверх сервисов жизненного цикла и леджера.
type Handler struct {
	orders      *lifecycle.Service
	ledger      *ledger.Service
	logger      *log.Entry
	invoiceOpts []invoice.Option
	router      *mux.Router
}

// Option настраивает Handler.
type Option func(*Handler)

// WithLogger задаёт логгер обработчика.
func WithLogger(logger *log.Entry) Option {
	return func(h *Handler) {
		if logger != nil {
			h.logger = logger
		}
	}
}

// WithNegotiatedInvoiceDiscount переключает налоговый счёт на согласованную скидку заказа.
func WithNegotiatedInvoiceDiscount(enabled bool) Option {
	return func(h *Handler) {
		if enabled {
			h.invoiceOpts = append(h.invoiceOpts, invoice.WithNegotiatedDiscount())
		}
	}
}

// NewHandler собирает роутер API.
func NewHandler(orders *lifecycle.Service, ledgerSvc *ledger.Service, opts ...Option) *Handler {
	h := &Handler{
		orders: orders,
		ledger: ledgerSvc,
		logger: log.New().WithField("component", "http-api"),
		router: mux.NewRouter(),
	}
	for _, opt := range opts {
		opt(h)
	}
	h.routes()
	return h
}

// Register монтирует маршруты API в существующий роутер.
func (h *Handler) Register(r *mux.Router) {
	r.PathPrefix("/api/v1/").Handler(h.router)
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.router.ServeHTTP(w, r)
}

func (h *Handler) routes() {
	h.router.Use(h.loggingMiddleware)
	h.router.NotFoundHandler = http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		h.respondWithError(w, http.StatusNotFound, "route not found")
	})

	api := h.router.PathPrefix("/api/v1").Subrouter()
	api.HandleFunc("/orders/{id}", h.getOrder).Methods(http.MethodGet)
	api.HandleFunc("/orders/{id}/invoice", h.getInvoice).Methods(http.MethodGet)
	api.HandleFunc("/accounts/{id}/orders", h.listAccountOrders).Methods(http.MethodGet)
	api.HandleFunc("/accounts/{id}/statement", h.getStatement).Methods(http.MethodGet)
	api.HandleFunc("/accounts/{id}/dues", h.getDues).Methods(http.MethodGet)
	api.HandleFunc("/agents/{id}/commissions", h.getCommissions).Methods(http.MethodGet)
}

func (h *Handler) getOrder(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	order, err := h.orders.Get(id)
	if err != nil {
		h.respondWithDomainError(w, err, "get order", id)
		return
	}

	filter, err := timelineFilter(r)
	if err != nil {
		h.respondWithDomainError(w, err, "get order", id)
		return
	}

	resp := grpcsvc.GetOrderResponse{Order: grpcsvc.NewOrderView(order)}
	if events, err := h.orders.Timeline(id, filter); err != nil {
		h.logger.WithError(err).WithField("order_id", id).Warn("failed to list timeline events")
	} else if len(events) > 0 {
		resp.Timeline = grpcsvc.NewTimelineView(events)
	}
	h.respondWithJSON(w, http.StatusOK, resp)
}

// timelineFilter читает ?timeline_type=...&timeline_after_seq=N.
func timelineFilter(r *http.Request) (domain.TimelineFilter, error) {
	query := r.URL.Query()
	types, err := domain.ParseTimelineEventTypes(query["timeline_type"])
	if err != nil {
		return domain.TimelineFilter{}, err
	}
	filter := domain.TimelineFilter{Types: types}
	if raw := query.Get("timeline_after_seq"); raw != "" {
		after, err := strconv.ParseInt(raw, 10, 64)
		if err != nil || after < 0 {
			return domain.TimelineFilter{}, domain.NewValidationError("timeline_after_seq", "must be a non-negative integer")
		}
		filter.AfterSeq = after
	}
	return filter, nil
}

func (h *Handler) getInvoice(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	order, err := h.orders.Get(id)
	if err != nil {
		h.respondWithDomainError(w, err, "get invoice", id)
		return
	}

	doc, err := grpcsvc.ComposeInvoice(order, r.URL.Query().Get("mode"), h.invoiceOpts...)
	if err != nil {
		h.respondWithDomainError(w, err, "compose invoice", id)
		return
	}
	h.respondWithJSON(w, http.StatusOK, doc)
}

func (h *Handler) listAccountOrders(w http.ResponseWriter, r *http.Request) {
	accountID := mux.Vars(r)["id"]
	limit, err := parseLimit(r.URL.Query().Get("limit"))
	if err != nil {
		h.respondWithDomainError(w, err, "list orders", accountID)
		return
	}

	orders, err := h.orders.ListByAccount(accountID, limit)
	if err != nil {
		h.respondWithDomainError(w, err, "list orders", accountID)
		return
	}
	views := make([]grpcsvc.OrderView, 0, len(orders))
	for _, order := range orders {
		views = append(views, grpcsvc.NewOrderView(order))
	}
	h.respondWithJSON(w, http.StatusOK, grpcsvc.ListOrdersResponse{Orders: views})
}

func (h *Handler) getStatement(w http.ResponseWriter, r *http.Request) {
	accountID := mux.Vars(r)["id"]
	statement, err := h.ledger.Statement(r.Context(), accountID)
	if err != nil {
		h.respondWithDomainError(w, err, "statement", accountID)
		return
	}
	h.respondWithJSON(w, http.StatusOK, grpcsvc.NewStatementResponse(statement))
}

type duesView struct {
	AccountID string `json:"account_id"`
	DuesMinor int64  `json:"dues_minor"`
}

func (h *Handler) getDues(w http.ResponseWriter, r *http.Request) {
	accountID := mux.Vars(r)["id"]
	dues, err := h.ledger.OutstandingDues(r.Context(), accountID)
	if err != nil {
		h.respondWithDomainError(w, err, "outstanding dues", accountID)
		return
	}
	h.respondWithJSON(w, http.StatusOK, duesView{AccountID: accountID, DuesMinor: dues})
}

func (h *Handler) getCommissions(w http.ResponseWriter, r *http.Request) {
	agentID := mux.Vars(r)["id"]
	records, err := h.ledger.AgentCommissions(r.Context(), agentID)
	if err != nil {
		h.respondWithDomainError(w, err, "agent commissions", agentID)
		return
	}
	h.respondWithJSON(w, http.StatusOK, grpcsvc.NewCommissionsResponse(agentID, records))
}

func parseLimit(raw string) (int, error) {
	if raw == "" {
		return defaultListLimit, nil
	}
	limit, err := strconv.Atoi(raw)
	if err != nil || limit <= 0 {
		return 0, domain.NewValidationError("limit", "must be a positive integer")
	}
	if limit > maxListLimit {
		limit = maxListLimit
	}
	return limit, nil
}

// statusForError переводит доменную ошибку в HTTP статус.
func statusForError(err error) int {
	switch {
	case errors.Is(err, context.Canceled):
		return 499
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	case errors.Is(err, domain.ErrValidation):
		return http.StatusBadRequest
	case errors.Is(err, domain.ErrOrderNotFound),
		errors.Is(err, domain.ErrVariantNotFound),
		errors.Is(err, domain.ErrAccountNotFound):
		return http.StatusNotFound
	case errors.Is(err, domain.ErrPreconditionNotMet),
		errors.Is(err, domain.ErrIllegalTransition),
		errors.Is(err, domain.ErrInsufficientStock),
		errors.Is(err, domain.ErrDiscountRejected):
		return http.StatusUnprocessableEntity
	case errors.Is(err, domain.ErrConcurrencyConflict):
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

func (h *Handler) respondWithDomainError(w http.ResponseWriter, err error, operation, id string) {
	code := statusForError(err)
	entry := h.logger.WithError(err).WithFields(log.Fields{"operation": operation, "id": id})
	if code >= http.StatusInternalServerError {
		entry.Error("request failed")
		h.respondWithError(w, code, "internal error")
		return
	}
	entry.Debug("request rejected")
	h.respondWithError(w, code, err.Error())
}

func (h *Handler) respondWithError(w http.ResponseWriter, code int, message string) {
	h.respondWithJSON(w, code, nil, message)
}

func (h *Handler) respondWithJSON(w http.ResponseWriter, code int, data interface{}, errMessage ...string) {
	resp := Response{Success: code < http.StatusBadRequest, Data: data}
	if len(errMessage) > 0 {
		resp.Error = errMessage[0]
	}

	body, err := json.Marshal(resp)
	if err != nil {
		h.logger.WithError(err).Error("failed to marshal response")
		w.WriteHeader(http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_, _ = w.Write(body)
}

func (h *Handler) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		next.ServeHTTP(w, r)
		h.logger.WithFields(log.Fields{
			"method":   r.Method,
			"path":     r.URL.Path,
			"duration": time.Since(start),
			"remote":   r.RemoteAddr,
		}).Debug("request processed")
	})
}
