package tracing

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"

	"github.com/GriffinCanCode/srvgate/internal/shared/id"
)

// Metadata keys carrying trace context between client and server.
const (
	TraceIDHeader = "x-trace-id"
	SpanIDHeader  = "x-span-id"
)

// GRPCUnaryInterceptor continues the caller's trace on the server side.
func GRPCUnaryInterceptor(tracer *Tracer) grpc.UnaryServerInterceptor {
	return func(
		ctx context.Context,
		req interface{},
		info *grpc.UnaryServerInfo,
		handler grpc.UnaryHandler,
	) (interface{}, error) {
		if md, ok := metadata.FromIncomingContext(ctx); ok {
			if vals := md.Get(TraceIDHeader); len(vals) > 0 {
				ctx = context.WithValue(ctx, traceIDKey, id.TraceID(vals[0]))
			}
			if vals := md.Get(SpanIDHeader); len(vals) > 0 {
				ctx = context.WithValue(ctx, spanIDKey, id.SpanID(vals[0]))
			}
		}

		span, ctx := tracer.StartSpan(ctx, info.FullMethod)
		span.SetTag("rpc.kind", "server")

		resp, err := handler(ctx, req)
		if err != nil {
			span.SetError(err)
			span.SetTag("rpc.code", status.Code(err).String())
		}
		span.Finish()
		tracer.Submit(span)
		return resp, err
	}
}

// GRPCClientInterceptor starts a client span and propagates it in metadata.
func GRPCClientInterceptor(tracer *Tracer) grpc.UnaryClientInterceptor {
	return func(
		ctx context.Context,
		method string,
		req, reply interface{},
		cc *grpc.ClientConn,
		invoker grpc.UnaryInvoker,
		opts ...grpc.CallOption,
	) error {
		span, ctx := tracer.StartSpan(ctx, method)
		span.SetTag("rpc.kind", "client")

		ctx = metadata.AppendToOutgoingContext(ctx,
			TraceIDHeader, span.TraceID.String(),
			SpanIDHeader, span.SpanID.String())

		err := invoker(ctx, method, req, reply, cc, opts...)
		if err != nil {
			span.SetError(err)
			span.SetTag("rpc.code", status.Code(err).String())
		}
		span.Finish()
		tracer.Submit(span)
		return err
	}
}
