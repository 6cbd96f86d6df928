package remote

import (
	"context"

	"google.golang.org/grpc"
)

// ServiceName is the fully qualified gRPC service name.
const ServiceName = "srvgate.kernel.Kernel"

// TokenHeader is the metadata key carrying the client token returned by Attach.
const TokenHeader = "x-srvgate-client"

// Method names of the kernel service.
const (
	MethodAttach              = "Attach"
	MethodDetach              = "Detach"
	MethodConnectToPort       = "ConnectToPort"
	MethodSendSyncRequest     = "SendSyncRequest"
	MethodDuplicateHandle     = "DuplicateHandle"
	MethodCloseHandle         = "CloseHandle"
	MethodWaitSynchronization = "WaitSynchronization"
)

// KernelServer is the server side of the kernel service. Every method except
// Attach acts on the process named by the caller's token.
type KernelServer interface {
	Attach(context.Context, *AttachRequest) (*AttachResponse, error)
	Detach(context.Context, *Empty) (*Empty, error)
	ConnectToPort(context.Context, *ConnectRequest) (*HandleResponse, error)
	SendSyncRequest(context.Context, *SendRequest) (*SendResponse, error)
	DuplicateHandle(context.Context, *HandleRequest) (*HandleResponse, error)
	CloseHandle(context.Context, *HandleRequest) (*StatusResponse, error)
	WaitSynchronization(context.Context, *HandleRequest) (*StatusResponse, error)
}

// KernelServiceDesc describes the kernel service to grpc.Server.RegisterService.
var KernelServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*KernelServer)(nil),
	Methods: []grpc.MethodDesc{
		unary(MethodAttach, KernelServer.Attach),
		unary(MethodDetach, KernelServer.Detach),
		unary(MethodConnectToPort, KernelServer.ConnectToPort),
		unary(MethodSendSyncRequest, KernelServer.SendSyncRequest),
		unary(MethodDuplicateHandle, KernelServer.DuplicateHandle),
		unary(MethodCloseHandle, KernelServer.CloseHandle),
		unary(MethodWaitSynchronization, KernelServer.WaitSynchronization),
	},
	Metadata: "srvgate/kernel",
}

// RegisterKernelServer registers srv with r.
func RegisterKernelServer(r grpc.ServiceRegistrar, srv KernelServer) {
	r.RegisterService(&KernelServiceDesc, srv)
}

func fullMethod(method string) string {
	return "/" + ServiceName + "/" + method
}

func unary[Req, Resp any](method string, call func(KernelServer, context.Context, *Req) (*Resp, error)) grpc.MethodDesc {
	return grpc.MethodDesc{
		MethodName: method,
		Handler: func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
			in := new(Req)
			if err := dec(in); err != nil {
				return nil, err
			}
			if interceptor == nil {
				return call(srv.(KernelServer), ctx, in)
			}
			info := &grpc.UnaryServerInfo{Server: srv, FullMethod: fullMethod(method)}
			handler := func(ctx context.Context, req any) (any, error) {
				return call(srv.(KernelServer), ctx, req.(*Req))
			}
			return interceptor(ctx, in, info, handler)
		},
	}
}
