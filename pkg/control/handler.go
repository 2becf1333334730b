package control

import (
	"context"
	"os"

	"github.com/core-tools/hsu-procmaster/pkg/logging"
	"github.com/core-tools/hsu-procmaster/pkg/managedprocess"
	"github.com/core-tools/hsu-procmaster/pkg/processmanagement"
	"github.com/core-tools/hsu-procmaster/pkg/protocol"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

func RegisterGRPCServerHandler(server grpc.ServiceRegistrar, supervisor processmanagement.ProcessSupervisor, logger logging.Logger) {
	RegisterProcessMasterServer(server, &grpcServerHandler{
		supervisor: supervisor,
		logger:     logger,
	})
}

// grpcServerHandler forwards control requests to the supervisor. Only malformed requests are
// rejected; supervisor outcomes are logged on the master side and never reported back.
type grpcServerHandler struct {
	supervisor processmanagement.ProcessSupervisor
	logger     logging.Logger
}

func (h *grpcServerHandler) AddProcess(ctx context.Context, req *AddProcessRequest) (*Empty, error) {
	if req.Name == "" {
		return nil, status.Error(codes.InvalidArgument, "process name is required")
	}
	if len(req.Command) == 0 {
		return nil, status.Error(codes.InvalidArgument, "process command is required")
	}

	env := req.Environment
	if req.InheritEnvironment {
		env = managedprocess.MergeEnvironment(os.Environ(), req.Environment)
	}

	h.supervisor.AddProcess(req.Name, req.Command, env, req.WorkingDirectory)
	h.logger.Debugf("AddProcess server handler done, name: %s", req.Name)
	return &Empty{}, nil
}

func (h *grpcServerHandler) StartProcess(ctx context.Context, req *ProcessRequest) (*Empty, error) {
	if req.Name == "" {
		return nil, status.Error(codes.InvalidArgument, "process name is required")
	}
	h.supervisor.StartProcess(ctx, req.Name)
	h.logger.Debugf("StartProcess server handler done, name: %s", req.Name)
	return &Empty{}, nil
}

func (h *grpcServerHandler) StopProcess(ctx context.Context, req *ProcessRequest) (*Empty, error) {
	if req.Name == "" {
		return nil, status.Error(codes.InvalidArgument, "process name is required")
	}
	// The request context must not cut a graceful termination short
	h.supervisor.StopProcess(context.Background(), req.Name)
	h.logger.Debugf("StopProcess server handler done, name: %s", req.Name)
	return &Empty{}, nil
}

func (h *grpcServerHandler) RemoveProcess(ctx context.Context, req *ProcessRequest) (*Empty, error) {
	if req.Name == "" {
		return nil, status.Error(codes.InvalidArgument, "process name is required")
	}
	h.supervisor.RemoveProcess(req.Name)
	h.logger.Debugf("RemoveProcess server handler done, name: %s", req.Name)
	return &Empty{}, nil
}

func (h *grpcServerHandler) SendMessage(ctx context.Context, req *MessageRequest) (*Empty, error) {
	if req.Recipient == "" {
		return nil, status.Error(codes.InvalidArgument, "recipient is required")
	}
	if req.Recipient == protocol.BroadcastRecipient {
		return h.BroadcastMessage(ctx, req)
	}

	sender := senderOf(req)
	switch req.Kind {
	case PayloadKindText:
		h.supervisor.SendMessage(sender, req.Recipient, req.Tokens)
	case PayloadKindBytes:
		h.supervisor.SendBytes(sender, req.Recipient, req.Data, checksumOf(req))
	default:
		return nil, status.Errorf(codes.InvalidArgument, "unknown payload kind: %q", req.Kind)
	}
	h.logger.Debugf("SendMessage server handler done, recipient: %s, kind: %s", req.Recipient, req.Kind)
	return &Empty{}, nil
}

func (h *grpcServerHandler) BroadcastMessage(ctx context.Context, req *MessageRequest) (*Empty, error) {
	sender := senderOf(req)
	switch req.Kind {
	case PayloadKindText:
		h.supervisor.BroadcastMessage(sender, req.Tokens)
	case PayloadKindBytes:
		h.supervisor.BroadcastBytes(sender, req.Data, checksumOf(req))
	default:
		return nil, status.Errorf(codes.InvalidArgument, "unknown payload kind: %q", req.Kind)
	}
	h.logger.Debugf("BroadcastMessage server handler done, kind: %s", req.Kind)
	return &Empty{}, nil
}

func (h *grpcServerHandler) ListProcesses(ctx context.Context, req *ListProcessesRequest) (*ListProcessesResponse, error) {
	infos := h.supervisor.Processes()
	resp := &ListProcessesResponse{Processes: make([]ProcessStatus, 0, len(infos))}
	for _, info := range infos {
		resp.Processes = append(resp.Processes, ProcessStatus{
			Name:             info.Name,
			State:            string(info.State),
			Command:          info.Command,
			WorkingDirectory: info.WorkingDirectory,
			PID:              info.PID,
			StartTime:        info.StartTime,
			StartFailures:    info.StartFailures,
			LastError:        info.LastError,
			Transitions:      info.Transitions,
		})
	}
	h.logger.Debugf("ListProcesses server handler done, processes: %d", len(resp.Processes))
	return resp, nil
}

func senderOf(req *MessageRequest) string {
	if req.Sender == "" {
		return protocol.SupervisorSender
	}
	return req.Sender
}

func checksumOf(req *MessageRequest) uint64 {
	if req.Checksum == nil {
		return protocol.Checksum(req.Data)
	}
	return *req.Checksum
}
