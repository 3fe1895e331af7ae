// Package budget exposes the budget operations as the
// trubudget.v1.BudgetService gRPC service. Requests and responses are
// google.protobuf.Struct values carrying the same JSON objects the HTTP API
// uses, so the service needs no generated stubs.
package budget

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"strings"
	"unicode"

	apperrors "github.com/openkfw/trubudget/internal/platform/errors"
	"github.com/openkfw/trubudget/internal/services/budget/api/auth"
	"github.com/openkfw/trubudget/internal/services/budget/api/operations"
	"github.com/openkfw/trubudget/internal/services/budget/app"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/encoding/protojson"
	"google.golang.org/protobuf/types/known/structpb"
)

// ServiceName is the fully qualified gRPC service name.
const ServiceName = "trubudget.v1.BudgetService"

// BudgetServer is implemented by Service; it exists for grpc.ServiceDesc.
type BudgetServer interface {
	invoke(ctx context.Context, op operations.Operation, in *structpb.Struct) (*structpb.Struct, error)
}

// Service serves budget operations over gRPC.
type Service struct {
	app *app.Service
}

// NewService returns a gRPC service over svc.
func NewService(svc *app.Service) *Service {
	return &Service{app: svc}
}

// Register adds the budget service to server.
func Register(server grpc.ServiceRegistrar, svc *Service) {
	desc := ServiceDesc()
	server.RegisterService(&desc, svc)
}

// MethodName returns the gRPC method name of an operation:
// "subproject.budget.updateProjected" becomes "SubprojectBudgetUpdateProjected".
func MethodName(operation string) string {
	var b strings.Builder
	for _, part := range strings.Split(operation, ".") {
		if part == "" {
			continue
		}
		runes := []rune(part)
		runes[0] = unicode.ToUpper(runes[0])
		b.WriteString(string(runes))
	}
	return b.String()
}

// FullMethod returns the request path of an operation.
func FullMethod(operation string) string {
	return "/" + ServiceName + "/" + MethodName(operation)
}

// ServiceDesc describes one unary method per registered operation.
func ServiceDesc() grpc.ServiceDesc {
	ops := operations.All()
	methods := make([]grpc.MethodDesc, 0, len(ops))
	for _, op := range ops {
		methods = append(methods, grpc.MethodDesc{
			MethodName: MethodName(op.Name),
			Handler:    methodHandler(op),
		})
	}
	return grpc.ServiceDesc{
		ServiceName: ServiceName,
		HandlerType: (*BudgetServer)(nil),
		Methods:     methods,
		Streams:     []grpc.StreamDesc{},
		Metadata:    "trubudget/v1/budget.proto",
	}
}

func methodHandler(op operations.Operation) grpc.MethodHandler {
	return func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
		in := new(structpb.Struct)
		if err := dec(in); err != nil {
			return nil, err
		}
		server := srv.(BudgetServer)
		if interceptor == nil {
			return server.invoke(ctx, op, in)
		}
		info := &grpc.UnaryServerInfo{Server: srv, FullMethod: FullMethod(op.Name)}
		handler := func(ctx context.Context, req any) (any, error) {
			return server.invoke(ctx, op, req.(*structpb.Struct))
		}
		return interceptor(ctx, in, info, handler)
	}
}

func (s *Service) invoke(ctx context.Context, op operations.Operation, in *structpb.Struct) (*structpb.Struct, error) {
	if s == nil || s.app == nil {
		return nil, status.Error(codes.Internal, "budget service is not configured")
	}
	actor, ok := auth.UserFromContext(ctx)
	if !ok {
		return nil, status.Error(codes.Unauthenticated, "authentication required")
	}
	raw, err := protojson.Marshal(in)
	if err != nil {
		return nil, status.Errorf(codes.InvalidArgument, "encode request: %v", err)
	}
	result, err := op.Handle(ctx, s.app, actor, operations.JSONInput(raw))
	if err != nil {
		if apperrors.IsKind(err, apperrors.KindUnexpected) {
			log.Printf("%s failed for %s: %v", op.Name, actor.ID, err)
		}
		return nil, apperrors.HandleError(err)
	}
	out, err := toStruct(result)
	if err != nil {
		return nil, status.Errorf(codes.Internal, "encode response: %v", err)
	}
	return out, nil
}

// toStruct wraps result as {"data": result}.
func toStruct(result any) (*structpb.Struct, error) {
	raw, err := json.Marshal(map[string]any{"data": result})
	if err != nil {
		return nil, err
	}
	out := new(structpb.Struct)
	if err := protojson.Unmarshal(raw, out); err != nil {
		return nil, fmt.Errorf("decode response struct: %w", err)
	}
	return out, nil
}
