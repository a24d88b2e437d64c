package grpccas

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/types/known/wrapperspb"
)

// ServiceName is the fully qualified gRPC service name. Messages are protobuf
// well-known wrappers, so no generated code is involved:
//
//	Put(BytesValue)  returns (StringValue)  snapshot bytes in, fingerprint out
//	Get(StringValue) returns (BytesValue)
//	Has(StringValue) returns (BoolValue)
const ServiceName = "xdao.resultledger.storage.grpccas.v1.CAS"

const (
	methodPut = "/" + ServiceName + "/Put"
	methodGet = "/" + ServiceName + "/Get"
	methodHas = "/" + ServiceName + "/Has"
)

// CASServer is implemented by Server; other implementations can embed
// UnimplementedCASServer.
type CASServer interface {
	Put(context.Context, *wrapperspb.BytesValue) (*wrapperspb.StringValue, error)
	Get(context.Context, *wrapperspb.StringValue) (*wrapperspb.BytesValue, error)
	Has(context.Context, *wrapperspb.StringValue) (*wrapperspb.BoolValue, error)
}

type UnimplementedCASServer struct{}

func (UnimplementedCASServer) Put(context.Context, *wrapperspb.BytesValue) (*wrapperspb.StringValue, error) {
	return nil, status.Error(codes.Unimplemented, "Put not implemented")
}

func (UnimplementedCASServer) Get(context.Context, *wrapperspb.StringValue) (*wrapperspb.BytesValue, error) {
	return nil, status.Error(codes.Unimplemented, "Get not implemented")
}

func (UnimplementedCASServer) Has(context.Context, *wrapperspb.StringValue) (*wrapperspb.BoolValue, error) {
	return nil, status.Error(codes.Unimplemented, "Has not implemented")
}

func RegisterCASServer(s grpc.ServiceRegistrar, srv CASServer) {
	s.RegisterService(&serviceDesc, srv)
}

// methodHandler matches grpc.MethodDesc.Handler.
type methodHandler = func(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error)

// unary adapts one typed server method to a grpc.MethodDesc handler.
func unary[Req proto.Message, Resp proto.Message](method string, newReq func() Req, call func(CASServer, context.Context, Req) (Resp, error)) methodHandler {
	return func(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
		in := newReq()
		if err := dec(in); err != nil {
			return nil, err
		}
		if interceptor == nil {
			return call(srv.(CASServer), ctx, in)
		}
		info := &grpc.UnaryServerInfo{Server: srv, FullMethod: method}
		return interceptor(ctx, in, info, func(ctx context.Context, req interface{}) (interface{}, error) {
			return call(srv.(CASServer), ctx, req.(Req))
		})
	}
}

var serviceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*CASServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "Put", Handler: unary(methodPut, func() *wrapperspb.BytesValue { return new(wrapperspb.BytesValue) }, CASServer.Put)},
		{MethodName: "Get", Handler: unary(methodGet, func() *wrapperspb.StringValue { return new(wrapperspb.StringValue) }, CASServer.Get)},
		{MethodName: "Has", Handler: unary(methodHas, func() *wrapperspb.StringValue { return new(wrapperspb.StringValue) }, CASServer.Has)},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "cas.proto",
}

// casClient is the raw RPC stub; Client wraps it with fingerprint checks.
type casClient struct{ cc grpc.ClientConnInterface }

func (c casClient) put(ctx context.Context, data []byte) (string, error) {
	out := new(wrapperspb.StringValue)
	if err := c.cc.Invoke(ctx, methodPut, wrapperspb.Bytes(data), out); err != nil {
		return "", err
	}
	return out.GetValue(), nil
}

func (c casClient) get(ctx context.Context, id string) ([]byte, error) {
	out := new(wrapperspb.BytesValue)
	if err := c.cc.Invoke(ctx, methodGet, wrapperspb.String(id), out); err != nil {
		return nil, err
	}
	return out.GetValue(), nil
}

func (c casClient) has(ctx context.Context, id string) (bool, error) {
	out := new(wrapperspb.BoolValue)
	if err := c.cc.Invoke(ctx, methodHas, wrapperspb.String(id), out); err != nil {
		return false, err
	}
	return out.GetValue(), nil
}
