package tracing

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
	"google.golang.org/grpc"
	"google.golang.org/grpc/metadata"
)

func newObserved(t *testing.T) (*Tracer, *observer.ObservedLogs) {
	t.Helper()
	core, logs := observer.New(zap.DebugLevel)
	tracer := New("srvgate", zap.New(core))
	return tracer, logs
}

func TestStartSpanContinuesTrace(t *testing.T) {
	tracer, _ := newObserved(t)
	defer tracer.Close()

	parent, ctx := tracer.StartSpan(context.Background(), "outer")
	child, childCtx := tracer.StartSpan(ctx, "inner")

	assert.Equal(t, parent.TraceID, child.TraceID)
	assert.Equal(t, parent.SpanID, child.ParentID)
	assert.Empty(t, parent.ParentID)
	assert.Equal(t, child.SpanID, SpanIDFrom(childCtx))
	assert.Equal(t, parent.TraceID, TraceIDFrom(childCtx))
}

func TestCloseDrainsSubmittedSpans(t *testing.T) {
	tracer, logs := newObserved(t)

	ok, _ := tracer.StartSpan(context.Background(), "ok")
	ok.SetTag("port", "srv:")
	ok.Finish()
	tracer.Submit(ok)

	failed, _ := tracer.StartSpan(context.Background(), "failed")
	failed.SetError(errors.New("boom"))
	failed.Finish()
	tracer.Submit(failed)

	tracer.Close()
	require.Eventually(t, func() bool { return logs.Len() == 2 }, time.Second, 5*time.Millisecond)

	assert.Equal(t, 1, logs.FilterMessage("span completed").Len())
	assert.Equal(t, 1, logs.FilterMessage("span completed with error").Len())
	assert.Equal(t, 1, logs.FilterField(zap.String("port", "srv:")).Len())

	tracer.Submit(ok)
	assert.Equal(t, 2, logs.Len())
}

func TestInterceptorsPropagateTrace(t *testing.T) {
	tracer, _ := newObserved(t)
	defer tracer.Close()

	root, ctx := tracer.StartSpan(context.Background(), "caller")

	var outgoing metadata.MD
	invoker := func(ctx context.Context, method string, req, reply interface{}, cc *grpc.ClientConn, opts ...grpc.CallOption) error {
		outgoing, _ = metadata.FromOutgoingContext(ctx)
		return nil
	}
	require.NoError(t, GRPCClientInterceptor(tracer)(ctx, "/svc/Method", nil, nil, nil, invoker))
	require.Equal(t, []string{root.TraceID.String()}, outgoing.Get(TraceIDHeader))
	require.Len(t, outgoing.Get(SpanIDHeader), 1)

	var seen context.Context
	handler := func(ctx context.Context, req interface{}) (interface{}, error) {
		seen = ctx
		return "ok", nil
	}
	incoming := metadata.NewIncomingContext(context.Background(), outgoing)
	resp, err := GRPCUnaryInterceptor(tracer)(incoming, nil, &grpc.UnaryServerInfo{FullMethod: "/svc/Method"}, handler)
	require.NoError(t, err)
	assert.Equal(t, "ok", resp)
	assert.Equal(t, root.TraceID, TraceIDFrom(seen))
	assert.NotEqual(t, outgoing.Get(SpanIDHeader)[0], SpanIDFrom(seen).String())
}
