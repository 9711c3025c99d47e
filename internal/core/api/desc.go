package api

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/protobuf/types/known/structpb"
)

// ServiceName is the fully qualified gRPC service name.
const ServiceName = "agent00.decision.v1.DecisionService"

// Decision contexts have no schema, so every method exchanges
// google.protobuf.Struct messages and no generated stubs are needed.

// DecisionServer is the server side of the decision API.
type DecisionServer interface {
	EvaluateRules(context.Context, *structpb.Struct) (*structpb.Struct, error)
	EvaluateRule(context.Context, *structpb.Struct) (*structpb.Struct, error)
	ValidateCondition(context.Context, *structpb.Struct) (*structpb.Struct, error)
	GetRuleMetrics(context.Context, *structpb.Struct) (*structpb.Struct, error)
	GetSystemMetrics(context.Context, *structpb.Struct) (*structpb.Struct, error)
}

type unaryMethod func(DecisionServer, context.Context, *structpb.Struct) (*structpb.Struct, error)

func unaryHandler(name string, call unaryMethod) grpc.MethodDesc {
	return grpc.MethodDesc{
		MethodName: name,
		Handler: func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
			in := new(structpb.Struct)
			if err := dec(in); err != nil {
				return nil, err
			}
			if interceptor == nil {
				return call(srv.(DecisionServer), ctx, in)
			}
			info := &grpc.UnaryServerInfo{
				Server:     srv,
				FullMethod: "/" + ServiceName + "/" + name,
			}
			handler := func(ctx context.Context, req any) (any, error) {
				return call(srv.(DecisionServer), ctx, req.(*structpb.Struct))
			}
			return interceptor(ctx, in, info, handler)
		},
	}
}

// ServiceDesc describes DecisionService for grpc.Server.RegisterService.
var ServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*DecisionServer)(nil),
	Methods: []grpc.MethodDesc{
		unaryHandler("EvaluateRules", DecisionServer.EvaluateRules),
		unaryHandler("EvaluateRule", DecisionServer.EvaluateRule),
		unaryHandler("ValidateCondition", DecisionServer.ValidateCondition),
		unaryHandler("GetRuleMetrics", DecisionServer.GetRuleMetrics),
		unaryHandler("GetSystemMetrics", DecisionServer.GetSystemMetrics),
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "agent00/decision/v1/decision.proto",
}

// Client calls DecisionService over a client connection.
type Client struct {
	cc grpc.ClientConnInterface
}

// NewClient creates a decision API client.
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

// EvaluateRules evaluates the server's rule set against {context}.
func (c *Client) EvaluateRules(ctx context.Context, in *structpb.Struct, opts ...grpc.CallOption) (*structpb.Struct, error) {
	return c.invoke(ctx, "EvaluateRules", in, opts...)
}

// EvaluateRule evaluates {rule_id} against {context}.
func (c *Client) EvaluateRule(ctx context.Context, in *structpb.Struct, opts ...grpc.CallOption) (*structpb.Struct, error) {
	return c.invoke(ctx, "EvaluateRule", in, opts...)
}

// ValidateCondition checks {condition} syntax.
func (c *Client) ValidateCondition(ctx context.Context, in *structpb.Struct, opts ...grpc.CallOption) (*structpb.Struct, error) {
	return c.invoke(ctx, "ValidateCondition", in, opts...)
}

// GetRuleMetrics returns metrics for {rule_id}.
func (c *Client) GetRuleMetrics(ctx context.Context, in *structpb.Struct, opts ...grpc.CallOption) (*structpb.Struct, error) {
	return c.invoke(ctx, "GetRuleMetrics", in, opts...)
}

// GetSystemMetrics returns pooled engine metrics.
func (c *Client) GetSystemMetrics(ctx context.Context, in *structpb.Struct, opts ...grpc.CallOption) (*structpb.Struct, error) {
	return c.invoke(ctx, "GetSystemMetrics", in, opts...)
}
