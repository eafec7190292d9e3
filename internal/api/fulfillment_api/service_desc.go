package fulfillment_api

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/protobuf/types/known/structpb"
)

const ServiceName = "shipbox.v1.Fulfillment"

// FulfillmentServer is the admin RPC surface. Messages are google.protobuf.Struct so the
// service needs no generated code.
type FulfillmentServer interface {
	GetShipment(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error)
	ComputeShipBy(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error)
	CreateLabels(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error)
}

type unaryCall func(FulfillmentServer, context.Context, *structpb.Struct) (*structpb.Struct, error)

func unary(method string, call unaryCall) grpc.MethodDesc {
	return grpc.MethodDesc{
		MethodName: method,
		Handler: func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
			in := new(structpb.Struct)
			if err := dec(in); err != nil {
				return nil, err
			}
			if interceptor == nil {
				return call(srv.(FulfillmentServer), ctx, in)
			}
			info := &grpc.UnaryServerInfo{Server: srv, FullMethod: "/" + ServiceName + "/" + method}
			handler := func(ctx context.Context, req any) (any, error) {
				return call(srv.(FulfillmentServer), ctx, req.(*structpb.Struct))
			}
			return interceptor(ctx, in, info, handler)
		},
	}
}

var ServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*FulfillmentServer)(nil),
	Methods: []grpc.MethodDesc{
		unary("GetShipment", FulfillmentServer.GetShipment),
		unary("ComputeShipBy", FulfillmentServer.ComputeShipBy),
		unary("CreateLabels", FulfillmentServer.CreateLabels),
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "shipbox/v1/fulfillment.proto",
}

func RegisterFulfillmentServer(s grpc.ServiceRegistrar, srv FulfillmentServer) {
	s.RegisterService(&ServiceDesc, srv)
}

// Client is the hand-written stub for ServiceDesc.
type Client struct {
	cc grpc.ClientConnInterface
}

func NewClient(cc grpc.ClientConnInterface) *Client {
	return &Client{cc: cc}
}

func (c *Client) invoke(ctx context.Context, method string, in *structpb.Struct, opts ...grpc.CallOption) (*structpb.Struct, error) {
	out := new(structpb.Struct)
	if err := c.cc.Invoke(ctx, "/"+ServiceName+"/"+method, in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *Client) GetShipment(ctx context.Context, in *structpb.Struct, opts ...grpc.CallOption) (*structpb.Struct, error) {
	return c.invoke(ctx, "GetShipment", in, opts...)
}

func (c *Client) ComputeShipBy(ctx context.Context, in *structpb.Struct, opts ...grpc.CallOption) (*structpb.Struct, error) {
	return c.invoke(ctx, "ComputeShipBy", in, opts...)
}

func (c *Client) CreateLabels(ctx context.Context, in *structpb.Struct, opts ...grpc.CallOption) (*structpb.Struct, error) {
	return c.invoke(ctx, "CreateLabels", in, opts...)
}
