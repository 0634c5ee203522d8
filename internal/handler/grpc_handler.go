package handler

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/pesio-ai/be-print-rfq/internal/platform/errors"
	"github.com/pesio-ai/be-print-rfq/internal/platform/logger"
	"github.com/pesio-ai/be-print-rfq/internal/service"
)

// QuoteRequestServiceName is the fully qualified gRPC service name.
const QuoteRequestServiceName = "rfq.v1.QuoteRequestService"

// QuoteRequestServiceServer is the gRPC surface. Messages are
// google.protobuf.Struct values carrying the same JSON shapes as the HTTP API.
type QuoteRequestServiceServer interface {
	Create(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error)
	Dispatch(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error)
	RecordResponse(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error)
	Award(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error)
	Cancel(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error)
	Get(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error)
	ListForJob(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error)
}

type structMethod func(QuoteRequestServiceServer, context.Context, *structpb.Struct) (*structpb.Struct, error)

func unaryMethod(name string, call structMethod) grpc.MethodDesc {
	return grpc.MethodDesc{
		MethodName: name,
		Handler: func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
			in := new(structpb.Struct)
			if err := dec(in); err != nil {
				return nil, err
			}
			s := srv.(QuoteRequestServiceServer)
			if interceptor == nil {
				return call(s, ctx, in)
			}
			info := &grpc.UnaryServerInfo{Server: srv, FullMethod: "/" + QuoteRequestServiceName + "/" + name}
			return interceptor(ctx, in, info, func(ctx context.Context, req any) (any, error) {
				return call(s, ctx, req.(*structpb.Struct))
			})
		},
	}
}

var quoteRequestServiceDesc = grpc.ServiceDesc{
	ServiceName: QuoteRequestServiceName,
	HandlerType: (*QuoteRequestServiceServer)(nil),
	Methods: []grpc.MethodDesc{
		unaryMethod("Create", QuoteRequestServiceServer.Create),
		unaryMethod("Dispatch", QuoteRequestServiceServer.Dispatch),
		unaryMethod("RecordResponse", QuoteRequestServiceServer.RecordResponse),
		unaryMethod("Award", QuoteRequestServiceServer.Award),
		unaryMethod("Cancel", QuoteRequestServiceServer.Cancel),
		unaryMethod("Get", QuoteRequestServiceServer.Get),
		unaryMethod("ListForJob", QuoteRequestServiceServer.ListForJob),
	},
	Streams: []grpc.StreamDesc{},
}

// RegisterQuoteRequestServiceServer registers srv on s.
func RegisterQuoteRequestServiceServer(s grpc.ServiceRegistrar, srv QuoteRequestServiceServer) {
	s.RegisterService(&quoteRequestServiceDesc, srv)
}

// GRPCHandler implements the QuoteRequestService gRPC interface
type GRPCHandler struct {
	service QuoteService
	logger  *logger.Logger
}

// NewGRPCHandler creates a new gRPC handler
func NewGRPCHandler(svc QuoteService, log *logger.Logger) *GRPCHandler {
	if log == nil {
		log = logger.Nop()
	}
	return &GRPCHandler{
		service: svc,
		logger:  log.Component("grpc"),
	}
}

type grpcCreateRequest struct {
	JobID     string   `json:"job_id"`
	VendorIDs []string `json:"vendor_ids"`
	DueDate   string   `json:"due_date"`
}

type grpcRequestRef struct {
	QuoteRequestID string `json:"quote_request_id"`
	Reason         string `json:"reason"`
}

type grpcQuoteRef struct {
	VendorQuoteID string `json:"vendor_quote_id"`
	RecordResponseBody
}

type grpcJobRef struct {
	JobID string `json:"job_id"`
}

// Create creates a draft quote request
func (h *GRPCHandler) Create(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	var in grpcCreateRequest
	if err := decodeStruct(req, &in); err != nil {
		return nil, err
	}
	h.logger.Info().Str("job_id", in.JobID).Int("vendor_ids", len(in.VendorIDs)).Msg("gRPC Create called")

	due, err := parseDueDate(in.DueDate)
	if err != nil {
		return nil, mapErrorToGRPC(errors.InvalidInput("due_date", err.Error()))
	}

	qr, err := h.service.CreateQuoteRequest(ctx, &service.CreateQuoteRequestInput{
		JobID:     in.JobID,
		VendorIDs: in.VendorIDs,
		DueDate:   due,
		CreatedBy: actorFromContext(ctx),
	})
	if err != nil {
		return nil, h.fail(err, "Failed to create quote request")
	}
	return encodeStruct(toQuoteRequestDTO(qr))
}

// Dispatch sends a quote request to its vendors
func (h *GRPCHandler) Dispatch(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	var in grpcRequestRef
	if err := decodeStruct(req, &in); err != nil {
		return nil, err
	}
	h.logger.Info().Str("quote_request_id", in.QuoteRequestID).Msg("gRPC Dispatch called")

	res, err := h.service.DispatchQuoteRequest(ctx, in.QuoteRequestID, actorFromContext(ctx))
	if err != nil {
		return nil, h.fail(err, "Failed to dispatch quote request")
	}
	return encodeStruct(toDispatchDTO(res))
}

// RecordResponse stores a vendor's quote
func (h *GRPCHandler) RecordResponse(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	var in grpcQuoteRef
	if err := decodeStruct(req, &in); err != nil {
		return nil, err
	}
	h.logger.Info().Str("vendor_quote_id", in.VendorQuoteID).Msg("gRPC RecordResponse called")

	input, err := in.input(in.VendorQuoteID, actorFromContext(ctx))
	if err != nil {
		return nil, h.fail(err, "Invalid vendor quote response")
	}

	res, err := h.service.RecordVendorQuote(ctx, input)
	if err != nil {
		return nil, h.fail(err, "Failed to record vendor quote")
	}
	return encodeStruct(toResponseDTO(res))
}

// Award accepts a vendor quote
func (h *GRPCHandler) Award(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	var in grpcQuoteRef
	if err := decodeStruct(req, &in); err != nil {
		return nil, err
	}
	h.logger.Info().Str("vendor_quote_id", in.VendorQuoteID).Msg("gRPC Award called")

	res, err := h.service.AwardQuoteToVendor(ctx, in.VendorQuoteID, actorFromContext(ctx))
	if err != nil {
		return nil, h.fail(err, "Failed to award quote")
	}
	return encodeStruct(toAwardDTO(res))
}

// Cancel withdraws a quote request
func (h *GRPCHandler) Cancel(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	var in grpcRequestRef
	if err := decodeStruct(req, &in); err != nil {
		return nil, err
	}
	h.logger.Info().Str("quote_request_id", in.QuoteRequestID).Msg("gRPC Cancel called")

	qr, err := h.service.CancelQuoteRequest(ctx, in.QuoteRequestID, in.Reason, actorFromContext(ctx))
	if err != nil {
		return nil, h.fail(err, "Failed to cancel quote request")
	}
	return encodeStruct(toQuoteRequestDTO(qr))
}

// Get retrieves a quote request by ID
func (h *GRPCHandler) Get(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	var in grpcRequestRef
	if err := decodeStruct(req, &in); err != nil {
		return nil, err
	}

	qr, err := h.service.GetQuoteRequest(ctx, in.QuoteRequestID)
	if err != nil {
		return nil, h.fail(err, "Failed to get quote request")
	}
	return encodeStruct(toQuoteRequestDTO(qr))
}

// ListForJob lists the quote requests of a job
func (h *GRPCHandler) ListForJob(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	var in grpcJobRef
	if err := decodeStruct(req, &in); err != nil {
		return nil, err
	}

	list, err := h.service.ListQuoteRequestsForJob(ctx, in.JobID)
	if err != nil {
		return nil, h.fail(err, "Failed to list quote requests")
	}
	return encodeStruct(map[string]any{
		"quote_requests": toQuoteRequestDTOs(list),
		"total":          len(list),
	})
}

func (h *GRPCHandler) fail(err error, msg string) error {
	if errors.CodeOf(err) == errors.ErrCodeInternal {
		h.logger.Error().Err(err).Msg(msg)
	} else {
		h.logger.Warn().Err(err).Msg(msg)
	}
	return mapErrorToGRPC(err)
}

func decodeStruct(s *structpb.Struct, v any) error {
	if err := fromStruct(s, v); err != nil {
		return mapErrorToGRPC(errors.InvalidInput("request", "malformed request message"))
	}
	return nil
}

func encodeStruct(v any) (*structpb.Struct, error) {
	out, err := toStruct(v)
	if err != nil {
		return nil, mapErrorToGRPC(errors.Wrap(err, errors.ErrCodeInternal, "failed to encode response"))
	}
	return out, nil
}

var _ QuoteRequestServiceServer = (*GRPCHandler)(nil)
