package router

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/joshp123/acbridge/internal/core"
)

// UnaryFunc handles one RPC whose request and response are google.protobuf.Struct.
type UnaryFunc func(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error)

// Unary builds a method descriptor around fn, honouring server interceptors.
func Unary(service, method string, fn UnaryFunc) grpc.MethodDesc {
	fullMethod := "/" + service + "/" + method
	return grpc.MethodDesc{
		MethodName: method,
		Handler: func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
			in := new(structpb.Struct)
			if err := dec(in); err != nil {
				return nil, err
			}
			if interceptor == nil {
				return fn(ctx, in)
			}
			info := &grpc.UnaryServerInfo{Server: srv, FullMethod: fullMethod}
			handler := func(ctx context.Context, req any) (any, error) {
				return fn(ctx, req.(*structpb.Struct))
			}
			return interceptor(ctx, in, info, handler)
		},
	}
}

// Service assembles a descriptor for a hand-written Struct-based service and publishes
// a matching file descriptor for reflection.
func Service(name string, methods ...grpc.MethodDesc) *grpc.ServiceDesc {
	return &grpc.ServiceDesc{
		ServiceName: name,
		HandlerType: (*any)(nil),
		Methods:     methods,
		Streams:     []grpc.StreamDesc{},
		Metadata:    publish(name, methods),
	}
}

// FullMethod is the invoke path clients use for service/method.
func FullMethod(service, method string) string {
	return "/" + service + "/" + method
}

// RegisterPlugins registers plugin services and core services on the gRPC server.
func RegisterPlugins(server *grpc.Server, plugins []core.Plugin) {
	registry := core.NewRegistryService(plugins)
	server.RegisterService(Service(core.RegistryServiceName,
		Unary(core.RegistryServiceName, "ListPlugins", registry.ListPlugins),
		Unary(core.RegistryServiceName, "DescribePlugin", registry.DescribePlugin),
	), registry)

	for _, p := range plugins {
		p.RegisterGRPC(server)
	}
}
