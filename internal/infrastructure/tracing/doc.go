/*
Package tracing provides lightweight span tracing for remote kernel calls.

Trace context travels in gRPC metadata under x-trace-id and x-span-id. The
client interceptor starts a span per call and propagates it; the server
interceptor continues the caller's trace. Finished spans are buffered and
logged through zap.

	tracer := tracing.New("srvgate", logger)
	defer tracer.Close()

	server := grpc.NewServer(grpc.ChainUnaryInterceptor(tracing.GRPCUnaryInterceptor(tracer)))
	conn, err := grpc.NewClient(addr, grpc.WithUnaryInterceptor(tracing.GRPCClientInterceptor(tracer)))
*/
package tracing
