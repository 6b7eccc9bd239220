package router

import (
	"fmt"
	"strings"

	"github.com/rs/zerolog/log"
	"google.golang.org/grpc"
	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/reflect/protodesc"
	"google.golang.org/protobuf/reflect/protoregistry"
	"google.golang.org/protobuf/types/descriptorpb"
	"google.golang.org/protobuf/types/known/structpb"
)

const structType = ".google.protobuf.Struct"

// descriptorPath is the synthetic .proto path a service is published under.
func descriptorPath(service string) string {
	pkg, name := splitService(service)
	file := strings.ToLower(name) + ".proto"
	if pkg == "" {
		return file
	}
	return strings.ReplaceAll(pkg, ".", "/") + "/" + file
}

func splitService(service string) (string, string) {
	idx := strings.LastIndex(service, ".")
	if idx < 0 {
		return "", service
	}
	return service[:idx], service[idx+1:]
}

// publishDescriptor registers a file descriptor for a Struct-based service in the global
// registry so server reflection can describe and invoke it.
func publishDescriptor(service string, methods []grpc.MethodDesc) error {
	path := descriptorPath(service)
	if _, err := protoregistry.GlobalFiles.FindFileByPath(path); err == nil {
		return nil
	}

	pkg, name := splitService(service)
	svc := &descriptorpb.ServiceDescriptorProto{Name: proto.String(name)}
	for _, m := range methods {
		svc.Method = append(svc.Method, &descriptorpb.MethodDescriptorProto{
			Name:       proto.String(m.MethodName),
			InputType:  proto.String(structType),
			OutputType: proto.String(structType),
		})
	}
	file := &descriptorpb.FileDescriptorProto{
		Name:       proto.String(path),
		Package:    proto.String(pkg),
		Dependency: []string{structpb.File_google_protobuf_struct_proto.Path()},
		Service:    []*descriptorpb.ServiceDescriptorProto{svc},
		Syntax:     proto.String("proto3"),
	}

	fd, err := protodesc.NewFile(file, protoregistry.GlobalFiles)
	if err != nil {
		return fmt.Errorf("build descriptor for %s: %w", service, err)
	}
	if err := protoregistry.GlobalFiles.RegisterFile(fd); err != nil {
		return fmt.Errorf("register descriptor for %s: %w", service, err)
	}
	return nil
}

func publish(service string, methods []grpc.MethodDesc) string {
	if err := publishDescriptor(service, methods); err != nil {
		log.Warn().Err(err).Str("service", service).Msg("reflection descriptor unavailable")
	}
	return descriptorPath(service)
}
