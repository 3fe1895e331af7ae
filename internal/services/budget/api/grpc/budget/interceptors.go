package budget

import (
	"context"
	"strings"

	"github.com/openkfw/trubudget/internal/platform/requestctx"
	"github.com/openkfw/trubudget/internal/services/budget/api/auth"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
)

// AuthorizationHeader is the metadata key carrying the bearer token.
const AuthorizationHeader = "authorization"

// AuthInterceptor authenticates budget service calls with a bearer token.
// Calls to other services on the same server, such as health checks, pass
// through untouched.
func AuthInterceptor(verifier *auth.Verifier) grpc.UnaryServerInterceptor {
	prefix := "/" + ServiceName + "/"
	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
		if !strings.HasPrefix(info.FullMethod, prefix) {
			return handler(ctx, req)
		}
		token, ok := auth.BearerToken(firstMetadataValue(ctx, AuthorizationHeader))
		if !ok {
			return nil, status.Error(codes.Unauthenticated, "bearer token is required")
		}
		user, err := verifier.Verify(token)
		if err != nil {
			return nil, status.Error(codes.Unauthenticated, err.Error())
		}
		ctx = auth.WithUser(ctx, user)
		ctx = requestctx.WithSource(ctx, "grpc")
		return handler(ctx, req)
	}
}

func firstMetadataValue(ctx context.Context, key string) string {
	md, ok := metadata.FromIncomingContext(ctx)
	if !ok {
		return ""
	}
	values := md.Get(key)
	if len(values) == 0 {
		return ""
	}
	return values[0]
}
