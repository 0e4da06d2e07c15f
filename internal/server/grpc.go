package server

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	"google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/structpb"
)

const SessionsServiceName = "fieldcapture.v1.Sessions"

// SessionsService is the server API of fieldcapture.v1.Sessions. Requests and
// responses use protobuf well-known types so no generated code is needed.
type SessionsService interface {
	ListSessions(context.Context, *emptypb.Empty) (*structpb.ListValue, error)
	GetSession(context.Context, *structpb.Struct) (*structpb.Struct, error)
	DeleteSession(context.Context, *structpb.Struct) (*emptypb.Empty, error)
}

func _Sessions_ListSessions_Handler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(emptypb.Empty)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(SessionsService).ListSessions(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: "/" + SessionsServiceName + "/ListSessions"}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(SessionsService).ListSessions(ctx, req.(*emptypb.Empty))
	}
	return interceptor(ctx, in, info, handler)
}

func _Sessions_GetSession_Handler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(structpb.Struct)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(SessionsService).GetSession(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: "/" + SessionsServiceName + "/GetSession"}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(SessionsService).GetSession(ctx, req.(*structpb.Struct))
	}
	return interceptor(ctx, in, info, handler)
}

func _Sessions_DeleteSession_Handler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(structpb.Struct)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(SessionsService).DeleteSession(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: "/" + SessionsServiceName + "/DeleteSession"}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(SessionsService).DeleteSession(ctx, req.(*structpb.Struct))
	}
	return interceptor(ctx, in, info, handler)
}

// SessionsServiceDesc describes fieldcapture.v1.Sessions for grpc.Server.RegisterService.
var SessionsServiceDesc = grpc.ServiceDesc{
	ServiceName: SessionsServiceName,
	HandlerType: (*SessionsService)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "ListSessions", Handler: _Sessions_ListSessions_Handler},
		{MethodName: "GetSession", Handler: _Sessions_GetSession_Handler},
		{MethodName: "DeleteSession", Handler: _Sessions_DeleteSession_Handler},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "fieldcapture/v1/sessions.proto",
}

// RegisterSessionsServer registers srv on s.
func RegisterSessionsServer(s grpc.ServiceRegistrar, srv SessionsService) {
	s.RegisterService(&SessionsServiceDesc, srv)
}

// SessionsClient calls fieldcapture.v1.Sessions.
type SessionsClient struct {
	cc grpc.ClientConnInterface
}

func NewSessionsClient(cc grpc.ClientConnInterface) *SessionsClient {
	return &SessionsClient{cc: cc}
}

func (c *SessionsClient) ListSessions(ctx context.Context, in *emptypb.Empty, opts ...grpc.CallOption) (*structpb.ListValue, error) {
	out := new(structpb.ListValue)
	if err := c.cc.Invoke(ctx, "/"+SessionsServiceName+"/ListSessions", in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *SessionsClient) GetSession(ctx context.Context, in *structpb.Struct, opts ...grpc.CallOption) (*structpb.Struct, error) {
	out := new(structpb.Struct)
	if err := c.cc.Invoke(ctx, "/"+SessionsServiceName+"/GetSession", in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *SessionsClient) DeleteSession(ctx context.Context, in *structpb.Struct, opts ...grpc.CallOption) (*emptypb.Empty, error) {
	out := new(emptypb.Empty)
	if err := c.cc.Invoke(ctx, "/"+SessionsServiceName+"/DeleteSession", in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

// NewGRPCServer builds a server with the sessions and health services registered.
func NewGRPCServer(sessions SessionsService, opts ...grpc.ServerOption) (*grpc.Server, *health.Server) {
	grpcServer := grpc.NewServer(opts...)
	RegisterSessionsServer(grpcServer, sessions)

	healthServer := health.NewServer()
	grpc_health_v1.RegisterHealthServer(grpcServer, healthServer)
	// empty string means overall server health
	healthServer.SetServingStatus("", grpc_health_v1.HealthCheckResponse_SERVING)
	healthServer.SetServingStatus(SessionsServiceName, grpc_health_v1.HealthCheckResponse_SERVING)
	return grpcServer, healthServer
}
