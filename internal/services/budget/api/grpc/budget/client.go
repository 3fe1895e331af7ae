package budget

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/google.golang.org/grpc/otelgrpc"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	grpc_health_v1 "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/metadata"
	"google.golang.org/protobuf/encoding/protojson"
	"google.golang.org/protobuf/types/known/structpb"
)

// Client calls budget operations on a remote server.
type Client struct {
	conn  grpc.ClientConnInterface
	token string
}

// NewClient returns a client over conn that authenticates with token.
func NewClient(conn grpc.ClientConnInterface, token string) *Client {
	return &Client{conn: conn, token: token}
}

// Call runs operation with data as the request object and returns the raw
// JSON of the response's data field.
func (c *Client) Call(ctx context.Context, operation string, data map[string]any) (json.RawMessage, error) {
	if c == nil || c.conn == nil {
		return nil, fmt.Errorf("budget client is not configured")
	}
	if data == nil {
		data = map[string]any{}
	}
	in, err := structpb.NewStruct(data)
	if err != nil {
		return nil, fmt.Errorf("encode %s request: %w", operation, err)
	}
	if c.token != "" {
		ctx = metadata.AppendToOutgoingContext(ctx, AuthorizationHeader, "Bearer "+c.token)
	}
	out := new(structpb.Struct)
	if err := c.conn.Invoke(ctx, FullMethod(operation), in, out); err != nil {
		return nil, err
	}
	raw, err := protojson.Marshal(out)
	if err != nil {
		return nil, fmt.Errorf("decode %s response: %w", operation, err)
	}
	var envelope struct {
		Data json.RawMessage `json:"data"`
	}
	if err := json.Unmarshal(raw, &envelope); err != nil {
		return nil, fmt.Errorf("decode %s response: %w", operation, err)
	}
	return envelope.Data, nil
}

// DialOptions returns the options Dial uses: plaintext transport with
// client-side tracing.
func DialOptions() []grpc.DialOption {
	return []grpc.DialOption{
		grpc.WithTransportCredentials(insecure.NewCredentials()),
		grpc.WithStatsHandler(otelgrpc.NewClientHandler()),
	}
}

// Dial connects to addr and waits until the server reports the budget
// service as serving. The connection is closed when that does not happen
// before ctx ends.
func Dial(ctx context.Context, addr string, logf func(string, ...any), opts ...grpc.DialOption) (*grpc.ClientConn, error) {
	if len(opts) == 0 {
		opts = DialOptions()
	}
	conn, err := grpc.NewClient(addr, opts...)
	if err != nil {
		return nil, fmt.Errorf("connect %s: %w", addr, err)
	}
	if err := WaitForHealth(ctx, conn, ServiceName, logf); err != nil {
		_ = conn.Close()
		return nil, err
	}
	return conn, nil
}

// WaitForHealth polls the health service with backoff until service is
// SERVING or ctx ends.
func WaitForHealth(ctx context.Context, conn grpc.ClientConnInterface, service string, logf func(string, ...any)) error {
	if conn == nil {
		return fmt.Errorf("gRPC connection is not configured")
	}
	if logf == nil {
		logf = func(string, ...any) {}
	}
	health := grpc_health_v1.NewHealthClient(conn)
	backoff := 100 * time.Millisecond
	for {
		callCtx, cancel := context.WithTimeout(ctx, time.Second)
		response, err := health.Check(callCtx, &grpc_health_v1.HealthCheckRequest{Service: service})
		cancel()
		switch {
		case err != nil:
			logf("waiting for %s health: %v", service, err)
		case response.GetStatus() == grpc_health_v1.HealthCheckResponse_SERVING:
			return nil
		default:
			logf("waiting for %s health: status %s", service, response.GetStatus())
		}

		select {
		case <-ctx.Done():
			return fmt.Errorf("wait for %s health: %w", service, ctx.Err())
		case <-time.After(backoff):
		}
		backoff = min(backoff*2, time.Second)
	}
}
