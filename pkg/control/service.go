package control

import (
	"context"

	"google.golang.org/grpc"
)

const ServiceName = "hsu.procmaster.ProcessMaster"

type ProcessMasterServer interface {
	AddProcess(context.Context, *AddProcessRequest) (*Empty, error)
	StartProcess(context.Context, *ProcessRequest) (*Empty, error)
	StopProcess(context.Context, *ProcessRequest) (*Empty, error)
	RemoveProcess(context.Context, *ProcessRequest) (*Empty, error)
	SendMessage(context.Context, *MessageRequest) (*Empty, error)
	BroadcastMessage(context.Context, *MessageRequest) (*Empty, error)
	ListProcesses(context.Context, *ListProcessesRequest) (*ListProcessesResponse, error)
}

func RegisterProcessMasterServer(registrar grpc.ServiceRegistrar, srv ProcessMasterServer) {
	registrar.RegisterService(&processMasterServiceDesc, srv)
}

func unaryHandler[Req any, Resp any](method string, call func(ProcessMasterServer, context.Context, *Req) (*Resp, error)) func(interface{}, context.Context, func(interface{}) error, grpc.UnaryServerInterceptor) (interface{}, error) {
	return func(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
		in := new(Req)
		if err := dec(in); err != nil {
			return nil, err
		}
		if interceptor == nil {
			return call(srv.(ProcessMasterServer), ctx, in)
		}
		info := &grpc.UnaryServerInfo{
			Server:     srv,
			FullMethod: "/" + ServiceName + "/" + method,
		}
		handler := func(ctx context.Context, req interface{}) (interface{}, error) {
			return call(srv.(ProcessMasterServer), ctx, req.(*Req))
		}
		return interceptor(ctx, in, info, handler)
	}
}

var processMasterServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*ProcessMasterServer)(nil),
	Methods: []grpc.MethodDesc{
		{
			MethodName: "AddProcess",
			Handler:    unaryHandler("AddProcess", ProcessMasterServer.AddProcess),
		},
		{
			MethodName: "StartProcess",
			Handler:    unaryHandler("StartProcess", ProcessMasterServer.StartProcess),
		},
		{
			MethodName: "StopProcess",
			Handler:    unaryHandler("StopProcess", ProcessMasterServer.StopProcess),
		},
		{
			MethodName: "RemoveProcess",
			Handler:    unaryHandler("RemoveProcess", ProcessMasterServer.RemoveProcess),
		},
		{
			MethodName: "SendMessage",
			Handler:    unaryHandler("SendMessage", ProcessMasterServer.SendMessage),
		},
		{
			MethodName: "BroadcastMessage",
			Handler:    unaryHandler("BroadcastMessage", ProcessMasterServer.BroadcastMessage),
		},
		{
			MethodName: "ListProcesses",
			Handler:    unaryHandler("ListProcesses", ProcessMasterServer.ListProcesses),
		},
	},
	Streams: []grpc.StreamDesc{},
}

type ProcessMasterClient interface {
	AddProcess(ctx context.Context, in *AddProcessRequest, opts ...grpc.CallOption) (*Empty, error)
	StartProcess(ctx context.Context, in *ProcessRequest, opts ...grpc.CallOption) (*Empty, error)
	StopProcess(ctx context.Context, in *ProcessRequest, opts ...grpc.CallOption) (*Empty, error)
	RemoveProcess(ctx context.Context, in *ProcessRequest, opts ...grpc.CallOption) (*Empty, error)
	SendMessage(ctx context.Context, in *MessageRequest, opts ...grpc.CallOption) (*Empty, error)
	BroadcastMessage(ctx context.Context, in *MessageRequest, opts ...grpc.CallOption) (*Empty, error)
	ListProcesses(ctx context.Context, in *ListProcessesRequest, opts ...grpc.CallOption) (*ListProcessesResponse, error)
}

func NewProcessMasterClient(cc grpc.ClientConnInterface) ProcessMasterClient {
	return &processMasterClient{cc: cc}
}

type processMasterClient struct {
	cc grpc.ClientConnInterface
}

func (c *processMasterClient) invoke(ctx context.Context, method string, in, out interface{}, opts []grpc.CallOption) error {
	opts = append([]grpc.CallOption{grpc.CallContentSubtype(CodecName)}, opts...)
	return c.cc.Invoke(ctx, "/"+ServiceName+"/"+method, in, out, opts...)
}

func (c *processMasterClient) AddProcess(ctx context.Context, in *AddProcessRequest, opts ...grpc.CallOption) (*Empty, error) {
	out := new(Empty)
	if err := c.invoke(ctx, "AddProcess", in, out, opts); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *processMasterClient) StartProcess(ctx context.Context, in *ProcessRequest, opts ...grpc.CallOption) (*Empty, error) {
	out := new(Empty)
	if err := c.invoke(ctx, "StartProcess", in, out, opts); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *processMasterClient) StopProcess(ctx context.Context, in *ProcessRequest, opts ...grpc.CallOption) (*Empty, error) {
	out := new(Empty)
	if err := c.invoke(ctx, "StopProcess", in, out, opts); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *processMasterClient) RemoveProcess(ctx context.Context, in *ProcessRequest, opts ...grpc.CallOption) (*Empty, error) {
	out := new(Empty)
	if err := c.invoke(ctx, "RemoveProcess", in, out, opts); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *processMasterClient) SendMessage(ctx context.Context, in *MessageRequest, opts ...grpc.CallOption) (*Empty, error) {
	out := new(Empty)
	if err := c.invoke(ctx, "SendMessage", in, out, opts); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *processMasterClient) BroadcastMessage(ctx context.Context, in *MessageRequest, opts ...grpc.CallOption) (*Empty, error) {
	out := new(Empty)
	if err := c.invoke(ctx, "BroadcastMessage", in, out, opts); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *processMasterClient) ListProcesses(ctx context.Context, in *ListProcessesRequest, opts ...grpc.CallOption) (*ListProcessesResponse, error) {
	out := new(ListProcessesResponse)
	if err := c.invoke(ctx, "ListProcesses", in, out, opts); err != nil {
		return nil, err
	}
	return out, nil
}
