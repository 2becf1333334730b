package control

import (
	"context"

	"github.com/core-tools/hsu-procmaster/pkg/logging"
	"github.com/core-tools/hsu-procmaster/pkg/protocol"

	"google.golang.org/grpc"
)

// Contract is the client view of a running master
type Contract interface {
	AddProcess(ctx context.Context, req AddProcessRequest) error
	StartProcess(ctx context.Context, name string) error
	StopProcess(ctx context.Context, name string) error
	RemoveProcess(ctx context.Context, name string) error
	SendText(ctx context.Context, sender, recipient string, tokens []string) error
	SendBytes(ctx context.Context, sender, recipient string, data []byte) error
	BroadcastText(ctx context.Context, sender string, tokens []string) error
	BroadcastBytes(ctx context.Context, sender string, data []byte) error
	ListProcesses(ctx context.Context) ([]ProcessStatus, error)
}

func NewGRPCClientGateway(grpcClientConnection grpc.ClientConnInterface, logger logging.Logger) Contract {
	return &grpcClientGateway{
		grpcClient: NewProcessMasterClient(grpcClientConnection),
		logger:     logger,
	}
}

type grpcClientGateway struct {
	grpcClient ProcessMasterClient
	logger     logging.Logger
}

func (gw *grpcClientGateway) AddProcess(ctx context.Context, req AddProcessRequest) error {
	_, err := gw.grpcClient.AddProcess(ctx, &req)
	return gw.done("AddProcess", err)
}

func (gw *grpcClientGateway) StartProcess(ctx context.Context, name string) error {
	_, err := gw.grpcClient.StartProcess(ctx, &ProcessRequest{Name: name})
	return gw.done("StartProcess", err)
}

func (gw *grpcClientGateway) StopProcess(ctx context.Context, name string) error {
	_, err := gw.grpcClient.StopProcess(ctx, &ProcessRequest{Name: name})
	return gw.done("StopProcess", err)
}

func (gw *grpcClientGateway) RemoveProcess(ctx context.Context, name string) error {
	_, err := gw.grpcClient.RemoveProcess(ctx, &ProcessRequest{Name: name})
	return gw.done("RemoveProcess", err)
}

func (gw *grpcClientGateway) SendText(ctx context.Context, sender, recipient string, tokens []string) error {
	_, err := gw.grpcClient.SendMessage(ctx, &MessageRequest{
		Sender:    sender,
		Recipient: recipient,
		Kind:      PayloadKindText,
		Tokens:    tokens,
	})
	return gw.done("SendMessage", err)
}

func (gw *grpcClientGateway) SendBytes(ctx context.Context, sender, recipient string, data []byte) error {
	_, err := gw.grpcClient.SendMessage(ctx, bytesRequest(sender, recipient, data))
	return gw.done("SendMessage", err)
}

func (gw *grpcClientGateway) BroadcastText(ctx context.Context, sender string, tokens []string) error {
	_, err := gw.grpcClient.BroadcastMessage(ctx, &MessageRequest{
		Sender:    sender,
		Recipient: protocol.BroadcastRecipient,
		Kind:      PayloadKindText,
		Tokens:    tokens,
	})
	return gw.done("BroadcastMessage", err)
}

func (gw *grpcClientGateway) BroadcastBytes(ctx context.Context, sender string, data []byte) error {
	_, err := gw.grpcClient.BroadcastMessage(ctx, bytesRequest(sender, protocol.BroadcastRecipient, data))
	return gw.done("BroadcastMessage", err)
}

func (gw *grpcClientGateway) ListProcesses(ctx context.Context) ([]ProcessStatus, error) {
	resp, err := gw.grpcClient.ListProcesses(ctx, &ListProcessesRequest{})
	if err := gw.done("ListProcesses", err); err != nil {
		return nil, err
	}
	return resp.Processes, nil
}

func (gw *grpcClientGateway) done(method string, err error) error {
	if err != nil {
		gw.logger.Errorf("%s client gateway: %v", method, err)
		return err
	}
	gw.logger.Debugf("%s client gateway done", method)
	return nil
}

// bytesRequest checksums the payload on the client, so corruption in transit is detected by the child
func bytesRequest(sender, recipient string, data []byte) *MessageRequest {
	checksum := protocol.Checksum(data)
	return &MessageRequest{
		Sender:    sender,
		Recipient: recipient,
		Kind:      PayloadKindBytes,
		Data:      data,
		Checksum:  &checksum,
	}
}
