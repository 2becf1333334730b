package control

import (
	"github.com/core-tools/hsu-procmaster/pkg/errors"
	"github.com/core-tools/hsu-procmaster/pkg/logging"

	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
)

type ConnectionOptions struct {
	// Address is an endpoint as accepted by ParseEndpoint
	Address     string
	DialOptions []grpc.DialOption
}

type Connection interface {
	GRPC() grpc.ClientConnInterface
	Shutdown()
}

func NewConnection(options ConnectionOptions, logger logging.Logger) (Connection, error) {
	if options.Address == "" {
		return nil, errors.NewValidationError("control server address is required", nil)
	}

	target := options.Address
	if endpoint, err := ParseEndpoint(options.Address); err == nil {
		target = endpoint.Target()
	}

	dialOpts := []grpc.DialOption{
		grpc.WithTransportCredentials(insecure.NewCredentials()),
		grpc.WithReadBufferSize(1 * 1024 * 1024),
		grpc.WithInitialWindowSize(1 * 1024 * 1024),
		grpc.WithInitialConnWindowSize(1 * 1024 * 1024),
	}
	dialOpts = append(dialOpts, options.DialOptions...)

	logger.Debugf("Dialing control server at %s", target)

	grpcClientConnection, err := grpc.Dial(target, dialOpts...)
	if err != nil {
		return nil, errors.NewIOError("failed to dial control server", err).WithContext("address", options.Address)
	}

	logger.Debugf("Connected to control server at %s", options.Address)

	return &connection{
		grpcClientConnection: grpcClientConnection,
		logger:               logger,
	}, nil
}

type connection struct {
	grpcClientConnection *grpc.ClientConn
	logger               logging.Logger
}

func (c *connection) GRPC() grpc.ClientConnInterface {
	return c.grpcClientConnection
}

func (c *connection) Shutdown() {
	c.logger.Debugf("Stopping gRPC client connection...")
	c.grpcClientConnection.Close()
	c.logger.Debugf("gRPC client connection stopped")
}
