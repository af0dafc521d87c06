package grpcsvc

import (
	"context"

	"google.golang.org/grpc"
)

// ServiceName — полное имя gRPC-сервиса заказов.
const ServiceName = "wholesale.v1.OrderService"

// Полные имена методов; используются и в дескрипторе, и в хэше идемпотентности.
const (
	MethodCreateOrder           = "/" + ServiceName + "/CreateOrder"
	MethodGetOrder              = "/" + ServiceName + "/GetOrder"
	MethodListOrders            = "/" + ServiceName + "/ListOrders"
	MethodTransitionOrder       = "/" + ServiceName + "/TransitionOrder"
	MethodAmendDocuments        = "/" + ServiceName + "/AmendDocuments"
	MethodApplyDiscount         = "/" + ServiceName + "/ApplyDiscount"
	MethodAcknowledgeDisclosure = "/" + ServiceName + "/AcknowledgeDisclosure"
	MethodComposeInvoice        = "/" + ServiceName + "/ComposeInvoice"
	MethodRecordTransaction     = "/" + ServiceName + "/RecordTransaction"
	MethodGetStatement          = "/" + ServiceName + "/GetStatement"
	MethodListAgentCommissions  = "/" + ServiceName + "/ListAgentCommissions"
	MethodQuoteLine             = "/" + ServiceName + "/QuoteLine"
)

// OrderServiceServer — серверная сторона API заказов.
type OrderServiceServer interface {
	CreateOrder(context.Context, *CreateOrderRequest) (*CreateOrderResponse, error)
	GetOrder(context.Context, *GetOrderRequest) (*GetOrderResponse, error)
	ListOrders(context.Context, *ListOrdersRequest) (*ListOrdersResponse, error)
	TransitionOrder(context.Context, *TransitionOrderRequest) (*OrderResponse, error)
	AmendDocuments(context.Context, *AmendDocumentsRequest) (*OrderResponse, error)
	ApplyDiscount(context.Context, *ApplyDiscountRequest) (*ApplyDiscountResponse, error)
	AcknowledgeDisclosure(context.Context, *AcknowledgeDisclosureRequest) (*OrderResponse, error)
	ComposeInvoice(context.Context, *ComposeInvoiceRequest) (*ComposeInvoiceResponse, error)
	RecordTransaction(context.Context, *RecordTransactionRequest) (*RecordTransactionResponse, error)
	GetStatement(context.Context, *GetStatementRequest) (*GetStatementResponse, error)
	ListAgentCommissions(context.Context, *ListAgentCommissionsRequest) (*ListAgentCommissionsResponse, error)
	QuoteLine(context.Context, *QuoteLineRequest) (*QuoteLineResponse, error)
}

// ServiceDesc описывает OrderService из api/proto/wholesale/v1/order_service.proto;
// сообщения кодирует structCodec.
var ServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*OrderServiceServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "CreateOrder", Handler: unaryHandler(MethodCreateOrder, OrderServiceServer.CreateOrder)},
		{MethodName: "GetOrder", Handler: unaryHandler(MethodGetOrder, OrderServiceServer.GetOrder)},
		{MethodName: "ListOrders", Handler: unaryHandler(MethodListOrders, OrderServiceServer.ListOrders)},
		{MethodName: "TransitionOrder", Handler: unaryHandler(MethodTransitionOrder, OrderServiceServer.TransitionOrder)},
		{MethodName: "AmendDocuments", Handler: unaryHandler(MethodAmendDocuments, OrderServiceServer.AmendDocuments)},
		{MethodName: "ApplyDiscount", Handler: unaryHandler(MethodApplyDiscount, OrderServiceServer.ApplyDiscount)},
		{MethodName: "AcknowledgeDisclosure", Handler: unaryHandler(MethodAcknowledgeDisclosure, OrderServiceServer.AcknowledgeDisclosure)},
		{MethodName: "ComposeInvoice", Handler: unaryHandler(MethodComposeInvoice, OrderServiceServer.ComposeInvoice)},
		{MethodName: "RecordTransaction", Handler: unaryHandler(MethodRecordTransaction, OrderServiceServer.RecordTransaction)},
		{MethodName: "GetStatement", Handler: unaryHandler(MethodGetStatement, OrderServiceServer.GetStatement)},
		{MethodName: "ListAgentCommissions", Handler: unaryHandler(MethodListAgentCommissions, OrderServiceServer.ListAgentCommissions)},
		{MethodName: "QuoteLine", Handler: unaryHandler(MethodQuoteLine, OrderServiceServer.QuoteLine)},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "wholesale/v1/order_service.proto",
}

// RegisterOrderServiceServer регистрирует реализацию на gRPC-сервере.
func RegisterOrderServiceServer(s grpc.ServiceRegistrar, srv OrderServiceServer) {
	s.RegisterService(&ServiceDesc, srv)
}

func unaryHandler[Req, Resp any](
	fullMethod string,
	call func(OrderServiceServer, context.Context, *Req) (*Resp, error),
) grpc.MethodHandler {
	return func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
		in := new(Req)
		if err := dec(in); err != nil {
			return nil, err
		}
		if interceptor == nil {
			return call(srv.(OrderServiceServer), ctx, in)
		}
		info := &grpc.UnaryServerInfo{Server: srv, FullMethod: fullMethod}
		handler := func(ctx context.Context, req any) (any, error) {
			return call(srv.(OrderServiceServer), ctx, req.(*Req))
		}
		return interceptor(ctx, in, info, handler)
	}
}

// OrderServiceClient — клиент API заказов; всегда запрашивает structCodec.
type OrderServiceClient struct {
	cc grpc.ClientConnInterface
}

// NewOrderServiceClient создаёт клиента поверх соединения.
func NewOrderServiceClient(cc grpc.ClientConnInterface) *OrderServiceClient {
	return &OrderServiceClient{cc: cc}
}

func invoke[Resp any](ctx context.Context, cc grpc.ClientConnInterface, method string, in any, opts []grpc.CallOption) (*Resp, error) {
	out := new(Resp)
	callOpts := append([]grpc.CallOption{grpc.CallContentSubtype(CodecName)}, opts...)
	if err := cc.Invoke(ctx, method, in, out, callOpts...); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *OrderServiceClient) CreateOrder(ctx context.Context, in *CreateOrderRequest, opts ...grpc.CallOption) (*CreateOrderResponse, error) {
	return invoke[CreateOrderResponse](ctx, c.cc, MethodCreateOrder, in, opts)
}

func (c *OrderServiceClient) GetOrder(ctx context.Context, in *GetOrderRequest, opts ...grpc.CallOption) (*GetOrderResponse, error) {
	return invoke[GetOrderResponse](ctx, c.cc, MethodGetOrder, in, opts)
}

func (c *OrderServiceClient) ListOrders(ctx context.Context, in *ListOrdersRequest, opts ...grpc.CallOption) (*ListOrdersResponse, error) {
	return invoke[ListOrdersResponse](ctx, c.cc, MethodListOrders, in, opts)
}

func (c *OrderServiceClient) TransitionOrder(ctx context.Context, in *TransitionOrderRequest, opts ...grpc.CallOption) (*OrderResponse, error) {
	return invoke[OrderResponse](ctx, c.cc, MethodTransitionOrder, in, opts)
}

func (c *OrderServiceClient) AmendDocuments(ctx context.Context, in *AmendDocumentsRequest, opts ...grpc.CallOption) (*OrderResponse, error) {
	return invoke[OrderResponse](ctx, c.cc, MethodAmendDocuments, in, opts)
}

func (c *OrderServiceClient) ApplyDiscount(ctx context.Context, in *ApplyDiscountRequest, opts ...grpc.CallOption) (*ApplyDiscountResponse, error) {
	return invoke[ApplyDiscountResponse](ctx, c.cc, MethodApplyDiscount, in, opts)
}

func (c *OrderServiceClient) AcknowledgeDisclosure(ctx context.Context, in *AcknowledgeDisclosureRequest, opts ...grpc.CallOption) (*OrderResponse, error) {
	return invoke[OrderResponse](ctx, c.cc, MethodAcknowledgeDisclosure, in, opts)
}

func (c *OrderServiceClient) ComposeInvoice(ctx context.Context, in *ComposeInvoiceRequest, opts ...grpc.CallOption) (*ComposeInvoiceResponse, error) {
	return invoke[ComposeInvoiceResponse](ctx, c.cc, MethodComposeInvoice, in, opts)
}

func (c *OrderServiceClient) RecordTransaction(ctx context.Context, in *RecordTransactionRequest, opts ...grpc.CallOption) (*RecordTransactionResponse, error) {
	return invoke[RecordTransactionResponse](ctx, c.cc, MethodRecordTransaction, in, opts)
}

func (c *OrderServiceClient) GetStatement(ctx context.Context, in *GetStatementRequest, opts ...grpc.CallOption) (*GetStatementResponse, error) {
	return invoke[GetStatementResponse](ctx, c.cc, MethodGetStatement, in, opts)
}

func (c *OrderServiceClient) ListAgentCommissions(ctx context.Context, in *ListAgentCommissionsRequest, opts ...grpc.CallOption) (*ListAgentCommissionsResponse, error) {
	return invoke[ListAgentCommissionsResponse](ctx, c.cc, MethodListAgentCommissions, in, opts)
}

func (c *OrderServiceClient) QuoteLine(ctx context.Context, in *QuoteLineRequest, opts ...grpc.CallOption) (*QuoteLineResponse, error) {
	return invoke[QuoteLineResponse](ctx, c.cc, MethodQuoteLine, in, opts)
}
