package requestctx

import "context"

type sourceContextKey struct{}

// WithSource records the transport ("http" or "grpc") that received the
// request. Commands stamp it on the events they produce.
func WithSource(ctx context.Context, source string) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	return context.WithValue(ctx, sourceContextKey{}, source)
}

// SourceFromContext returns the recorded transport, or "".
func SourceFromContext(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	value, _ := ctx.Value(sourceContextKey{}).(string)
	return value
}
