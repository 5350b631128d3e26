package handler

import (
	"context"
	"encoding/json"
	"strings"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/pesio-ai/be-doc-approvals/internal/repository"
	"github.com/pesio-ai/be-doc-approvals/internal/routing"
	"github.com/pesio-ai/be-doc-approvals/internal/service"
	"github.com/pesio-ai/be-doc-approvals/pkg/auth"
	"github.com/pesio-ai/be-doc-approvals/pkg/errors"
	"github.com/pesio-ai/be-doc-approvals/pkg/logger"
)

// ServiceName is the fully qualified gRPC service name.
const ServiceName = "docapprovals.v1.DocumentApprovals"

// DocumentApprovalsServer is the gRPC surface of the approval lifecycle.
// Messages are google.protobuf.Struct values carrying the same snake_case
// fields as the HTTP API.
type DocumentApprovalsServer interface {
	CreateDocument(context.Context, *structpb.Struct) (*structpb.Struct, error)
	GetDocument(context.Context, *structpb.Struct) (*structpb.Struct, error)
	ListDocuments(context.Context, *structpb.Struct) (*structpb.Struct, error)
	SubmitForApproval(context.Context, *structpb.Struct) (*structpb.Struct, error)
	Decide(context.Context, *structpb.Struct) (*structpb.Struct, error)
	OverrideStatus(context.Context, *structpb.Struct) (*structpb.Struct, error)
	GetApprovalHistory(context.Context, *structpb.Struct) (*structpb.Struct, error)
	ListDocumentApprovals(context.Context, *structpb.Struct) (*structpb.Struct, error)
	ListPendingApprovals(context.Context, *structpb.Struct) (*structpb.Struct, error)
}

type unaryMethod func(DocumentApprovalsServer, context.Context, *structpb.Struct) (*structpb.Struct, error)

func methodDesc(name string, call unaryMethod) grpc.MethodDesc {
	return grpc.MethodDesc{
		MethodName: name,
		Handler: func(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
			in := new(structpb.Struct)
			if err := dec(in); err != nil {
				return nil, err
			}
			if interceptor == nil {
				return call(srv.(DocumentApprovalsServer), ctx, in)
			}
			info := &grpc.UnaryServerInfo{Server: srv, FullMethod: "/" + ServiceName + "/" + name}
			handler := func(ctx context.Context, req interface{}) (interface{}, error) {
				return call(srv.(DocumentApprovalsServer), ctx, req.(*structpb.Struct))
			}
			return interceptor(ctx, in, info, handler)
		},
	}
}

// ServiceDesc describes DocumentApprovalsServer for grpc.Server.RegisterService.
var ServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*DocumentApprovalsServer)(nil),
	Methods: []grpc.MethodDesc{
		methodDesc("CreateDocument", DocumentApprovalsServer.CreateDocument),
		methodDesc("GetDocument", DocumentApprovalsServer.GetDocument),
		methodDesc("ListDocuments", DocumentApprovalsServer.ListDocuments),
		methodDesc("SubmitForApproval", DocumentApprovalsServer.SubmitForApproval),
		methodDesc("Decide", DocumentApprovalsServer.Decide),
		methodDesc("OverrideStatus", DocumentApprovalsServer.OverrideStatus),
		methodDesc("GetApprovalHistory", DocumentApprovalsServer.GetApprovalHistory),
		methodDesc("ListDocumentApprovals", DocumentApprovalsServer.ListDocumentApprovals),
		methodDesc("ListPendingApprovals", DocumentApprovalsServer.ListPendingApprovals),
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "docapprovals/v1/document_approvals.proto",
}

// RegisterDocumentApprovalsServer registers srv on s.
func RegisterDocumentApprovalsServer(s grpc.ServiceRegistrar, srv DocumentApprovalsServer) {
	s.RegisterService(&ServiceDesc, srv)
}

// GRPCHandler implements DocumentApprovalsServer
type GRPCHandler struct {
	svc Services
	log *logger.Logger
}

// NewGRPCHandler creates a new gRPC handler
func NewGRPCHandler(svc Services, log *logger.Logger) *GRPCHandler {
	return &GRPCHandler{svc: svc, log: log.Component("grpc")}
}

var _ DocumentApprovalsServer = (*GRPCHandler)(nil)

// CreateDocument creates a DRAFT document
func (h *GRPCHandler) CreateDocument(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	caller, err := grpcCaller(ctx)
	if err != nil {
		return nil, mapErrorToGRPC(err)
	}
	doc, err := h.svc.Documents.CreateDocument(ctx, &service.CreateDocumentRequest{
		Title:       field(req, "title"),
		Description: optionalField(req, "description"),
		TemplateID:  optionalField(req, "template_id"),
		Caller:      caller,
	})
	if err != nil {
		return nil, mapErrorToGRPC(err)
	}
	return toStruct(doc)
}

func (h *GRPCHandler) GetDocument(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	doc, err := h.svc.Documents.GetDocument(ctx, field(req, "id"))
	if err != nil {
		return nil, mapErrorToGRPC(err)
	}
	return toStruct(doc)
}

func (h *GRPCHandler) ListDocuments(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	list := &service.ListDocumentsRequest{
		InitiatorID: optionalField(req, "initiator_id"),
		TemplateID:  optionalField(req, "template_id"),
		Page:        intField(req, "page"),
		PageSize:    intField(req, "page_size"),
	}
	if s := optionalField(req, "status"); s != nil {
		st := repository.DocumentStatus(strings.ToUpper(*s))
		list.Status = &st
	}
	docs, total, err := h.svc.Documents.ListDocuments(ctx, list)
	if err != nil {
		return nil, mapErrorToGRPC(err)
	}
	return toStruct(map[string]interface{}{"documents": docs, "total": total})
}

// SubmitForApproval moves a DRAFT document into approval
func (h *GRPCHandler) SubmitForApproval(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	caller, err := grpcCaller(ctx)
	if err != nil {
		return nil, mapErrorToGRPC(err)
	}
	h.log.Info().Str("document_id", field(req, "id")).Str("caller", caller.ID).Msg("gRPC SubmitForApproval called")

	doc, err := h.svc.Routing.SubmitForApproval(ctx, &service.SubmitRequest{
		DocumentID:       field(req, "id"),
		Caller:           caller,
		ManualApproverID: optionalField(req, "manual_approver_id"),
	})
	if err != nil {
		return nil, mapErrorToGRPC(err)
	}
	return toStruct(doc)
}

// Decide records an approve or reject vote
func (h *GRPCHandler) Decide(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	caller, err := grpcCaller(ctx)
	if err != nil {
		return nil, mapErrorToGRPC(err)
	}
	h.log.Info().
		Str("document_id", field(req, "id")).
		Str("action", field(req, "action")).
		Str("caller", caller.ID).
		Msg("gRPC Decide called")

	doc, err := h.svc.Routing.Decide(ctx, &service.DecideRequest{
		DocumentID: field(req, "id"),
		Caller:     caller,
		Action:     routing.Action(strings.ToLower(field(req, "action"))),
		Comment:    optionalField(req, "comment"),
	})
	if err != nil {
		return nil, mapErrorToGRPC(err)
	}
	return toStruct(doc)
}

func (h *GRPCHandler) OverrideStatus(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	caller, err := grpcCaller(ctx)
	if err != nil {
		return nil, mapErrorToGRPC(err)
	}
	doc, err := h.svc.Routing.OverrideStatus(ctx, &service.OverrideRequest{
		DocumentID: field(req, "id"),
		Caller:     caller,
		NewStatus:  repository.DocumentStatus(field(req, "status")),
	})
	if err != nil {
		return nil, mapErrorToGRPC(err)
	}
	return toStruct(doc)
}

func (h *GRPCHandler) GetApprovalHistory(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	entries, err := h.svc.Routing.GetApprovalHistory(ctx, field(req, "id"))
	if err != nil {
		return nil, mapErrorToGRPC(err)
	}
	return toStruct(map[string]interface{}{"history": entries})
}

func (h *GRPCHandler) ListDocumentApprovals(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	approvals, err := h.svc.Routing.ListDocumentApprovals(ctx, field(req, "id"))
	if err != nil {
		return nil, mapErrorToGRPC(err)
	}
	return toStruct(map[string]interface{}{"approvals": approvals})
}

func (h *GRPCHandler) ListPendingApprovals(ctx context.Context, _ *structpb.Struct) (*structpb.Struct, error) {
	caller, err := grpcCaller(ctx)
	if err != nil {
		return nil, mapErrorToGRPC(err)
	}
	approvals, err := h.svc.Routing.ListPendingApprovals(ctx, caller.ID)
	if err != nil {
		return nil, mapErrorToGRPC(err)
	}
	return toStruct(map[string]interface{}{"approvals": approvals})
}

func grpcCaller(ctx context.Context) (service.Caller, error) {
	uc, err := auth.GetUserContext(ctx)
	if err != nil {
		return service.Caller{}, err
	}
	return service.Caller{ID: uc.UserID, Role: repository.UserRole(uc.Role)}, nil
}

func field(s *structpb.Struct, key string) string {
	if s == nil {
		return ""
	}
	v, ok := s.GetFields()[key]
	if !ok {
		return ""
	}
	return strings.TrimSpace(v.GetStringValue())
}

func optionalField(s *structpb.Struct, key string) *string {
	v := field(s, key)
	if v == "" {
		return nil
	}
	return &v
}

func intField(s *structpb.Struct, key string) int {
	if s == nil {
		return 0
	}
	return int(s.GetFields()[key].GetNumberValue())
}

// toStruct converts v through its JSON form so both surfaces share field names.
func toStruct(v interface{}) (*structpb.Struct, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, status.Error(codes.Internal, err.Error())
	}
	var m map[string]interface{}
	if err := json.Unmarshal(raw, &m); err != nil {
		return nil, status.Error(codes.Internal, err.Error())
	}
	out, err := structpb.NewStruct(m)
	if err != nil {
		return nil, status.Error(codes.Internal, err.Error())
	}
	return out, nil
}

func mapErrorToGRPC(err error) error {
	if err == nil {
		return nil
	}
	if _, ok := status.FromError(err); ok {
		return err
	}

	msg := err.Error()
	var coded *errors.Error
	if errors.As(err, &coded) {
		msg = coded.Message
	}

	switch errors.CodeOf(err) {
	case errors.ErrCodeNotFound:
		return status.Error(codes.NotFound, msg)
	case errors.ErrCodeConflict:
		return status.Error(codes.AlreadyExists, msg)
	case errors.ErrCodeInvalidInput:
		return status.Error(codes.InvalidArgument, msg)
	case errors.ErrCodeUnauthorized:
		return status.Error(codes.Unauthenticated, msg)
	case errors.ErrCodeForbidden:
		return status.Error(codes.PermissionDenied, msg)
	case errors.ErrCodePreconditionFailed, errors.ErrCodeConfiguration:
		return status.Error(codes.FailedPrecondition, msg)
	case errors.ErrCodeUnavailable:
		return status.Error(codes.Unavailable, msg)
	default:
		return status.Error(codes.Internal, msg)
	}
}
