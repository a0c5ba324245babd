package auth

import (
	"context"
	"strings"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
)

// mdRequest adapts gRPC metadata to [Request].
type mdRequest struct {
	method string
	md     metadata.MD
}

func (m mdRequest) Path() string { return m.method }

func (m mdRequest) Header(name string) string {
	if v := m.md.Get(name); len(v) > 0 {
		return v[0]
	}
	return ""
}

func (m mdRequest) HasHeader(name string) bool {
	return len(m.md.Get(name)) > 0
}

// UnaryServerInterceptor returns a gRPC unary server interceptor running
// the same decision as [Middleware.Handler]. The full method name takes the
// place of the request path for allow-list matching.
func (m *Middleware) UnaryServerInterceptor() grpc.UnaryServerInterceptor {
	return func(
		ctx context.Context,
		req any,
		info *grpc.UnaryServerInfo,
		handler grpc.UnaryHandler,
	) (any, error) {
		ctx, err := m.authorizeGRPC(ctx, info.FullMethod)
		if err != nil {
			return nil, err
		}
		return handler(ctx, req)
	}
}

// StreamServerInterceptor is the streaming form of
// [Middleware.UnaryServerInterceptor].
func (m *Middleware) StreamServerInterceptor() grpc.StreamServerInterceptor {
	return func(
		srv any,
		ss grpc.ServerStream,
		info *grpc.StreamServerInfo,
		handler grpc.StreamHandler,
	) error {
		ctx, err := m.authorizeGRPC(ss.Context(), info.FullMethod)
		if err != nil {
			return err
		}
		return handler(srv, &wrappedServerStream{ServerStream: ss, ctx: ctx})
	}
}

func (m *Middleware) authorizeGRPC(ctx context.Context, method string) (context.Context, error) {
	md, _ := metadata.FromIncomingContext(ctx)
	out := m.Decide(ctx, mdRequest{method: method, md: md})
	switch {
	case out.Decision == DecisionServiceUnavailable:
		return ctx, status.Error(codes.Unavailable, MessageServiceUnavailable)
	case !out.Forward:
		return ctx, status.Error(codes.Unauthenticated, MessageAuthenticationRequired)
	}
	return ContextWithAuthorization(ctx, out.Authorization), nil
}

// UnaryClientInterceptor returns a gRPC unary client interceptor that
// copies the tenant in the context into outgoing metadata, so internal
// callees resolve the same tenant.
func UnaryClientInterceptor() grpc.UnaryClientInterceptor {
	return func(
		ctx context.Context,
		method string,
		req, reply any,
		cc *grpc.ClientConn,
		invoker grpc.UnaryInvoker,
		opts ...grpc.CallOption,
	) error {
		return invoker(propagateTenantToGRPC(ctx), method, req, reply, cc, opts...)
	}
}

// StreamClientInterceptor is the streaming form of [UnaryClientInterceptor].
func StreamClientInterceptor() grpc.StreamClientInterceptor {
	return func(
		ctx context.Context,
		desc *grpc.StreamDesc,
		cc *grpc.ClientConn,
		method string,
		streamer grpc.Streamer,
		opts ...grpc.CallOption,
	) (grpc.ClientStream, error) {
		return streamer(propagateTenantToGRPC(ctx), desc, cc, method, opts...)
	}
}

func propagateTenantToGRPC(ctx context.Context) context.Context {
	tenantID, ok := TenantFromContext(ctx)
	if !ok {
		return ctx
	}
	key := strings.ToLower(HeaderTenant)
	if md, ok := metadata.FromOutgoingContext(ctx); ok && len(md.Get(key)) > 0 {
		return ctx
	}
	return metadata.AppendToOutgoingContext(ctx, key, tenantID)
}

// wrappedServerStream overrides Context so handlers see the authorization
// added by the interceptor.
type wrappedServerStream struct {
	grpc.ServerStream
	ctx context.Context
}

func (w *wrappedServerStream) Context() context.Context {
	return w.ctx
}
